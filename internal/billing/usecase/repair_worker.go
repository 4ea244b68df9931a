package usecase

import (
	"context"
	"log/slog"

	billingDomain "github.com/allisson/billingsync/internal/billing/domain"
	consistencyDomain "github.com/allisson/billingsync/internal/consistency/domain"
	"github.com/allisson/billingsync/internal/metrics"
	"github.com/allisson/billingsync/internal/worker"
)

// Repair worker defaults.
const (
	RepairWorkerName   = "billing_profile_repair"
	DefaultMaxPerRun   = 25
	DefaultMaxAttempts = 5
	DefaultScanLimit   = 25
)

// RepairWorkerConfig holds billing profile repair worker settings.
type RepairWorkerConfig struct {
	Poll        worker.Config
	MaxPerRun   int
	MaxAttempts int
	ScanLimit   int
}

func (c RepairWorkerConfig) withDefaults() RepairWorkerConfig {
	if c.Poll.Name == "" {
		c.Poll.Name = RepairWorkerName
	}
	if c.MaxPerRun <= 0 {
		c.MaxPerRun = DefaultMaxPerRun
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.ScanLimit <= 0 {
		c.ScanLimit = DefaultScanLimit
	}
	return c
}

// RepairResult summarizes one repair drain.
type RepairResult struct {
	Claimed   int `json:"claimed"`
	Resolved  int `json:"resolved"`
	Retried   int `json:"retried"`
	Escalated int `json:"escalated"`
}

// RepairWorker drains the billing profile repair queue. Per-task failures are retried or
// escalated; only store failures crash the tick.
type RepairWorker struct {
	*worker.Poller

	cfg     RepairWorkerConfig
	queue   RepairQueue
	updater ProfileUpdater
	alerts  metrics.AlertRecorder
	logger  *slog.Logger
}

// NewRepairWorker creates a stopped RepairWorker.
func NewRepairWorker(
	cfg RepairWorkerConfig,
	queue RepairQueue,
	updater ProfileUpdater,
	alerts metrics.AlertRecorder,
	bizMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *RepairWorker {
	cfg = cfg.withDefaults()
	if alerts == nil {
		alerts = metrics.NewNoOpAlertRecorder()
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &RepairWorker{
		cfg:     cfg,
		queue:   queue,
		updater: updater,
		alerts:  alerts,
		logger:  logger.With(slog.String("worker", cfg.Poll.Name)),
	}
	w.Poller = worker.NewPoller(cfg.Poll, func(ctx context.Context) error {
		_, err := w.Drain(ctx)
		return err
	}, alerts, bizMetrics, logger)
	return w
}

// Drain claims and applies up to MaxPerRun tasks. Tasks released for retry are skipped
// for the rest of the drain so a failing task is not reclaimed within the same tick.
func (w *RepairWorker) Drain(ctx context.Context) (*RepairResult, error) {
	result := &RepairResult{}
	var released []string

	for result.Claimed < w.cfg.MaxPerRun {
		task, err := w.queue.ClaimNextBillingProfileRepair(ctx, w.cfg.MaxAttempts, w.cfg.ScanLimit, released...)
		if err != nil {
			return result, err
		}
		if task == nil {
			break
		}
		result.Claimed++

		applyErr := w.updater.UpsertProfile(ctx, task.UserID, profileUpdateFor(task))
		if applyErr == nil {
			if err := w.queue.MarkBillingProfileRepairResolved(ctx, task.RepairKey); err != nil {
				return result, err
			}
			result.Resolved++
			w.logger.Info("billing profile repair resolved",
				slog.String("repair_key", task.RepairKey),
				slog.String("user_id", task.UserID),
				slog.Int("attempts", task.Attempts),
			)
			continue
		}

		nextAttempts := task.Attempts + 1
		if nextAttempts >= w.cfg.MaxAttempts {
			if err := w.queue.MarkBillingProfileRepairEscalated(ctx, task.RepairKey, applyErr); err != nil {
				return result, err
			}
			result.Escalated++
			w.escalated(ctx, task, nextAttempts, applyErr)
			continue
		}

		if err := w.queue.ReleaseBillingProfileRepairForRetry(ctx, task.RepairKey, applyErr); err != nil {
			return result, err
		}
		result.Retried++
		released = append(released, task.RepairKey)
		w.logger.Warn("billing profile repair failed, released for retry",
			slog.String("repair_key", task.RepairKey),
			slog.Int("attempts", nextAttempts),
			slog.Any("error", applyErr),
		)
	}

	if result.Claimed > 0 {
		w.logger.Info("billing profile repair drain finished",
			slog.Int("claimed", result.Claimed),
			slog.Int("resolved", result.Resolved),
			slog.Int("retried", result.Retried),
			slog.Int("escalated", result.Escalated),
		)
	}
	return result, nil
}

func (w *RepairWorker) escalated(
	ctx context.Context,
	task *consistencyDomain.BillingProfileRepair,
	attempts int,
	cause error,
) {
	referenceID := ""
	if task.ReferenceID != nil {
		referenceID = *task.ReferenceID
	}

	w.logger.Error("billing profile repair escalated",
		slog.String("repair_key", task.RepairKey),
		slog.String("user_id", task.UserID),
		slog.Int("attempts", attempts),
		slog.Any("error", cause),
	)
	w.alerts.RecordAlert(ctx, metrics.AlertBillingProfileRepairEscalated, map[string]any{
		"repair_key":   task.RepairKey,
		"user_id":      task.UserID,
		"source":       string(task.Source),
		"reference_id": referenceID,
		"attempts":     attempts,
	})
}

func profileUpdateFor(task *consistencyDomain.BillingProfileRepair) billingDomain.ProfileUpdate {
	return billingDomain.ProfileUpdate{
		StripeCustomerID:     task.StripeCustomerID,
		StripeLivemode:       task.StripeLivemode,
		StripeSubscriptionID: task.StripeSubscriptionID,
		PlanTier:             task.PlanTier,
		SubscriptionPriceID:  task.SubscriptionPriceID,
	}
}
