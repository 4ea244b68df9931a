package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	billingDomain "github.com/allisson/billingsync/internal/billing/domain"
	apperrors "github.com/allisson/billingsync/internal/errors"
	"github.com/allisson/billingsync/internal/processor"
	webhookDomain "github.com/allisson/billingsync/internal/webhook/domain"
)

// DispatchOutcome describes what happened to a dispatched event.
type DispatchOutcome string

const (
	// DispatchProcessed means the handler ran and the event is now processed.
	DispatchProcessed DispatchOutcome = "processed"
	// DispatchDuplicate means the event was already processed; the handler did not run.
	DispatchDuplicate DispatchOutcome = "duplicate"
	// DispatchInProgress means another claimant owns the event.
	DispatchInProgress DispatchOutcome = "in_progress"
	// DispatchIgnored means the event type has no handler.
	DispatchIgnored DispatchOutcome = "ignored"
	// DispatchFailed means the handler failed and the event was marked failed.
	DispatchFailed DispatchOutcome = "failed"
)

// Dispatcher applies a payment event through the ledger claim protocol. Live webhook
// delivery and reconciliation both call Dispatch, so either path may apply an event
// and the other will observe it as a duplicate.
type Dispatcher struct {
	ledger  WebhookLedger
	handler EventHandler
	logger  *slog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(ledger WebhookLedger, handler EventHandler, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{ledger: ledger, handler: handler, logger: logger}
}

// Dispatch claims and handles event. A handler failure returns DispatchFailed together
// with the handler error; any other error means a ledger call failed.
func (d *Dispatcher) Dispatch(ctx context.Context, event processor.Event) (DispatchOutcome, error) {
	if !isWatched(event.Type) {
		return DispatchIgnored, nil
	}

	logger := d.logger.With(slog.String("event_id", event.ID), slog.String("event_type", event.Type))

	processed, err := d.ledger.HasProcessedEvent(ctx, event.ID)
	if err != nil {
		// The claim below re-reads the record, so the precheck is only an optimization.
		logger.Warn("processed check failed, falling back to claim", slog.Any("error", err))
	} else if processed {
		return DispatchDuplicate, nil
	}

	state, err := d.ledger.ClaimEvent(ctx, event.ID, webhookDomain.ClaimInput{
		Type:     event.Type,
		Livemode: event.Livemode,
	})
	if err != nil {
		return "", apperrors.Wrap(err, "failed to claim webhook event")
	}

	switch state {
	case webhookDomain.ClaimStateProcessed:
		return DispatchDuplicate, nil
	case webhookDomain.ClaimStateInProgress:
		return DispatchInProgress, nil
	}

	if handlerErr := d.handle(ctx, event); handlerErr != nil {
		logger.Error("webhook handler failed", slog.Any("error", handlerErr))
		if err := d.ledger.MarkFailed(ctx, event.ID, handlerErr); err != nil {
			logger.Error("failed to mark webhook event failed", slog.Any("error", err))
		}
		return DispatchFailed, handlerErr
	}

	if err := d.ledger.MarkProcessed(ctx, event.ID); err != nil {
		// The handler ran; the processing record goes stale after the TTL and a later
		// delivery or reconciliation pass re-runs the idempotent handler.
		return "", apperrors.Wrap(err, "failed to mark webhook event processed")
	}

	logger.Info("webhook event processed")
	return DispatchProcessed, nil
}

// handle decodes the data object and runs the matching handler. Panics become errors.
func (d *Dispatcher) handle(ctx context.Context, event processor.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("webhook handler panic: %v", r)
		}
	}()

	switch event.Type {
	case processor.EventTypeCheckoutSessionCompleted:
		var session billingDomain.CheckoutSession
		if err := json.Unmarshal(event.Data, &session); err != nil {
			return fmt.Errorf("%w: %v", billingDomain.ErrInvalidPayload, err)
		}
		return d.handler.HandleCheckoutSessionCompleted(ctx, &session, event.ID)
	case processor.EventTypeInvoicePaid:
		var invoice billingDomain.Invoice
		if err := json.Unmarshal(event.Data, &invoice); err != nil {
			return fmt.Errorf("%w: %v", billingDomain.ErrInvalidPayload, err)
		}
		return d.handler.HandleInvoicePaid(ctx, &invoice, event.ID)
	}
	return nil
}

func isWatched(eventType string) bool {
	return slices.Contains(processor.WatchedEventTypes, eventType)
}
