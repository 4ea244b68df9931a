package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/billingsync/internal/database"
	apperrors "github.com/allisson/billingsync/internal/errors"
	"github.com/allisson/billingsync/internal/resilience"
	webhookDomain "github.com/allisson/billingsync/internal/webhook/domain"
)

// DefaultProcessingTTL is how long a processing claim is honored before it is
// considered abandoned and may be reclaimed.
const DefaultProcessingTTL = 10 * time.Minute

// webhookLedger implements WebhookLedger on a transactional repository.
type webhookLedger struct {
	txManager     database.TxManager
	repo          WebhookEventRepository
	executor      resilience.Executor
	processingTTL time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// ClaimEvent runs the claim read-modify-write in a single transaction. The row lock
// taken by GetForUpdate serializes claimants, so two callers can never both observe
// a stale record and both reclaim it.
func (w *webhookLedger) ClaimEvent(
	ctx context.Context,
	eventID string,
	input webhookDomain.ClaimInput,
) (webhookDomain.ClaimState, error) {
	if eventID == "" {
		return "", webhookDomain.ErrEventIDRequired
	}

	var state webhookDomain.ClaimState
	err := w.executor.Execute(ctx, "claim_webhook_event", func(ctx context.Context) error {
		return w.txManager.WithTx(ctx, func(ctx context.Context) error {
			var err error
			state, err = w.claim(ctx, eventID, input)
			return err
		})
	})
	if apperrors.Is(err, webhookDomain.ErrWebhookEventAlreadyExists) {
		// Lost the insert race: the winner holds a fresh processing record.
		return webhookDomain.ClaimStateInProgress, nil
	}
	if err != nil {
		return "", err
	}
	return state, nil
}

func (w *webhookLedger) claim(
	ctx context.Context,
	eventID string,
	input webhookDomain.ClaimInput,
) (webhookDomain.ClaimState, error) {
	now := w.now()

	event, err := w.repo.GetForUpdate(ctx, eventID)
	if err != nil {
		if !apperrors.Is(err, webhookDomain.ErrWebhookEventNotFound) {
			return "", err
		}
		event = &webhookDomain.WebhookEvent{
			EventID:   eventID,
			Status:    webhookDomain.WebhookEventStatusProcessing,
			EventType: input.Type,
			Livemode:  input.Livemode,
			Attempt:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := w.repo.Create(ctx, event); err != nil {
			return "", err
		}
		return webhookDomain.ClaimStateClaimed, nil
	}

	switch {
	case event.Status == webhookDomain.WebhookEventStatusProcessed:
		return webhookDomain.ClaimStateProcessed, nil
	case event.Status == webhookDomain.WebhookEventStatusProcessing && !event.IsStale(now, w.processingTTL):
		return webhookDomain.ClaimStateInProgress, nil
	}

	if event.Status == webhookDomain.WebhookEventStatusProcessing {
		w.logger.Warn("reclaiming abandoned webhook event",
			slog.String("event_id", eventID),
			slog.Int("attempt", event.Attempt),
			slog.Duration("age", now.Sub(event.UpdatedAt)),
		)
	}

	event.Status = webhookDomain.WebhookEventStatusProcessing
	event.Attempt++
	event.LastError = nil
	event.UpdatedAt = now
	if input.Type != "" {
		event.EventType = input.Type
	}
	event.Livemode = input.Livemode
	if err := w.repo.Update(ctx, event); err != nil {
		return "", err
	}
	return webhookDomain.ClaimStateClaimed, nil
}

// HasProcessedEvent reports whether the event reached processed.
func (w *webhookLedger) HasProcessedEvent(ctx context.Context, eventID string) (bool, error) {
	var processed bool
	err := w.executor.Execute(ctx, "get_webhook_event", func(ctx context.Context) error {
		event, err := w.repo.Get(ctx, eventID)
		if err != nil {
			if apperrors.Is(err, webhookDomain.ErrWebhookEventNotFound) {
				processed = false
				return nil
			}
			return err
		}
		processed = event.Status == webhookDomain.WebhookEventStatusProcessed
		return nil
	})
	return processed, err
}

// MarkProcessed records the terminal processed state.
func (w *webhookLedger) MarkProcessed(ctx context.Context, eventID string) error {
	return w.executor.Execute(ctx, "mark_webhook_event_processed", func(ctx context.Context) error {
		return w.repo.UpsertProcessed(ctx, eventID, w.now())
	})
}

// MarkFailed records the handler error on the event.
func (w *webhookLedger) MarkFailed(ctx context.Context, eventID string, cause error) error {
	lastError := "unknown error"
	if cause != nil {
		lastError = cause.Error()
	}
	return w.executor.Execute(ctx, "mark_webhook_event_failed", func(ctx context.Context) error {
		return w.repo.UpsertFailed(ctx, eventID, lastError, w.now())
	})
}

// GetBacklogSummary aggregates records that have not been processed.
func (w *webhookLedger) GetBacklogSummary(ctx context.Context) (*webhookDomain.BacklogSummary, error) {
	var summary *webhookDomain.BacklogSummary
	err := w.executor.Execute(ctx, "get_webhook_backlog_summary", func(ctx context.Context) error {
		var err error
		summary, err = w.repo.GetBacklogSummary(ctx, w.now())
		return err
	})
	return summary, err
}

// NewWebhookLedger creates a new WebhookLedger. A non-positive processingTTL selects
// DefaultProcessingTTL.
func NewWebhookLedger(
	txManager database.TxManager,
	repo WebhookEventRepository,
	executor resilience.Executor,
	processingTTL time.Duration,
	logger *slog.Logger,
) WebhookLedger {
	if processingTTL <= 0 {
		processingTTL = DefaultProcessingTTL
	}
	if executor == nil {
		executor = resilience.Direct()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &webhookLedger{
		txManager:     txManager,
		repo:          repo,
		executor:      executor,
		processingTTL: processingTTL,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger,
	}
}
