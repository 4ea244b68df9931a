package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/allisson/billingsync/internal/errors"
	"github.com/allisson/billingsync/internal/metrics"
	"github.com/allisson/billingsync/internal/processor"
	"github.com/allisson/billingsync/internal/worker"
)

const (
	// ReconciliationWorkerName identifies the worker in logs, metrics and status.
	ReconciliationWorkerName = "webhook_reconciliation"

	// DefaultLookback is how far back reconciliation lists processor events.
	DefaultLookback = 72 * time.Hour

	// lookbackEdgeDivisor marks the first tenth of the window as its edge.
	lookbackEdgeDivisor = 10
)

// ReconciliationConfig holds reconciliation worker settings.
type ReconciliationConfig struct {
	Poll     worker.Config
	Lookback time.Duration
}

// ReconciliationResult summarizes one reconciliation pass.
type ReconciliationResult struct {
	Scanned    int `json:"scanned"`
	Reconciled int `json:"reconciled"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	EdgeCount  int `json:"edge_count"`
}

// ReconciliationWorker replays processor events that never reached processed, then
// reports ledger and unresolved event backlog.
type ReconciliationWorker struct {
	*worker.Poller

	lookback   time.Duration
	client     processor.Client
	dispatcher *Dispatcher
	ledger     WebhookLedger
	unresolved UnresolvedSummaryReader
	alerts     metrics.AlertRecorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewReconciliationWorker creates a stopped ReconciliationWorker.
func NewReconciliationWorker(
	cfg ReconciliationConfig,
	client processor.Client,
	dispatcher *Dispatcher,
	ledger WebhookLedger,
	unresolved UnresolvedSummaryReader,
	alerts metrics.AlertRecorder,
	bizMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *ReconciliationWorker {
	if cfg.Poll.Name == "" {
		cfg.Poll.Name = ReconciliationWorkerName
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}
	if alerts == nil {
		alerts = metrics.NewNoOpAlertRecorder()
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &ReconciliationWorker{
		lookback:   cfg.Lookback,
		client:     client,
		dispatcher: dispatcher,
		ledger:     ledger,
		unresolved: unresolved,
		alerts:     alerts,
		logger:     logger.With(slog.String("worker", cfg.Poll.Name)),
		now:        time.Now,
	}
	w.Poller = worker.NewPoller(cfg.Poll, func(ctx context.Context) error {
		_, err := w.Reconcile(ctx)
		return err
	}, alerts, bizMetrics, logger)
	return w
}

// Reconcile runs one reconciliation pass. Handler failures are counted and left for the
// next pass; listing or ledger failures are returned after the backlog checks run.
func (w *ReconciliationWorker) Reconcile(ctx context.Context) (*ReconciliationResult, error) {
	now := w.now()
	windowStart := now.Add(-w.lookback)
	edgeBoundary := windowStart.Add(w.lookback / lookbackEdgeDivisor)

	result := &ReconciliationResult{}
	var errs []error
	var oldestEdge time.Time

	for _, eventType := range processor.WatchedEventTypes {
		events, err := w.client.ListRecentEvents(ctx, eventType, windowStart.Unix())
		if err != nil {
			errs = append(errs, apperrors.Wrap(err, "failed to list "+eventType+" events"))
			continue
		}

		for _, event := range events {
			result.Scanned++

			createdAt := event.CreatedAt()
			if createdAt.Before(edgeBoundary) {
				result.EdgeCount++
				if oldestEdge.IsZero() || createdAt.Before(oldestEdge) {
					oldestEdge = createdAt
				}
			}

			outcome, err := w.dispatcher.Dispatch(ctx, event)
			switch outcome {
			case DispatchProcessed:
				result.Reconciled++
				w.logger.Info("reconciled missed webhook event",
					slog.String("event_id", event.ID),
					slog.String("event_type", event.Type),
					slog.Time("created_at", createdAt),
				)
			case DispatchDuplicate, DispatchInProgress, DispatchIgnored:
				result.Skipped++
			case DispatchFailed:
				result.Failed++
			default:
				result.Failed++
				errs = append(errs, err)
			}
		}
	}

	if result.EdgeCount > 0 {
		w.logger.Warn("webhook events near the lookback window edge",
			slog.Int("count", result.EdgeCount),
			slog.Duration("oldest_age", now.Sub(oldestEdge)),
			slog.Duration("lookback", w.lookback),
		)
		w.alerts.RecordAlert(ctx, metrics.AlertWebhookLookbackEdgeWarning, map[string]any{
			"count":          result.EdgeCount,
			"oldest_age_ms":  now.Sub(oldestEdge).Milliseconds(),
			"lookback_hours": w.lookback.Hours(),
		})
	}

	if result.Reconciled > 0 {
		w.alerts.RecordAlert(ctx, metrics.AlertWebhookReconciliationRecovered, map[string]any{
			"count": result.Reconciled,
		})
	}

	w.checkBacklog(ctx)

	w.logger.Info("webhook reconciliation finished",
		slog.Int("scanned", result.Scanned),
		slog.Int("reconciled", result.Reconciled),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
	)

	return result, errors.Join(errs...)
}

// checkBacklog raises alerts for unprocessed ledger records and open unresolved events.
// Read failures are logged and never fail the pass.
func (w *ReconciliationWorker) checkBacklog(ctx context.Context) {
	backlog, err := w.ledger.GetBacklogSummary(ctx)
	switch {
	case err != nil:
		w.logger.Warn("failed to read webhook backlog summary", slog.Any("error", err))
	case backlog.HasBacklog():
		metadata := map[string]any{
			"processing_count":  backlog.ProcessingCount,
			"failed_count":      backlog.FailedCount,
			"unprocessed_count": backlog.UnprocessedCount,
		}
		if backlog.OldestUnprocessedAge != nil {
			metadata["oldest_age_ms"] = backlog.OldestUnprocessedAge.Milliseconds()
		}
		w.logger.Warn("stripe webhook backlog detected",
			slog.Int64("processing_count", backlog.ProcessingCount),
			slog.Int64("failed_count", backlog.FailedCount),
			slog.Int64("unprocessed_count", backlog.UnprocessedCount),
		)
		w.alerts.RecordAlert(ctx, metrics.AlertStripeWebhookBacklogWarning, metadata)
	}

	if w.unresolved == nil {
		return
	}
	summary := w.unresolved.GetUnresolvedSummary(ctx)
	if summary.OpenCount > 0 {
		metadata := map[string]any{"open_count": summary.OpenCount}
		if summary.OldestOpenAge != nil {
			metadata["oldest_age_ms"] = summary.OldestOpenAge.Milliseconds()
		}
		w.logger.Warn("unresolved payment events open", slog.Int64("open_count", summary.OpenCount))
		w.alerts.RecordAlert(ctx, metrics.AlertPaymentUnresolvedEventsWarning, metadata)
	}
}
