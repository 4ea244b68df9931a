package usecase

import (
	"context"
	"time"

	"github.com/allisson/billingsync/internal/metrics"
	webhookDomain "github.com/allisson/billingsync/internal/webhook/domain"
)

// webhookLedgerWithMetrics decorates WebhookLedger with metrics instrumentation.
type webhookLedgerWithMetrics struct {
	next    WebhookLedger
	metrics metrics.BusinessMetrics
}

// NewWebhookLedgerWithMetrics wraps a WebhookLedger with metrics recording.
func NewWebhookLedgerWithMetrics(ledger WebhookLedger, m metrics.BusinessMetrics) WebhookLedger {
	return &webhookLedgerWithMetrics{
		next:    ledger,
		metrics: m,
	}
}

func (w *webhookLedgerWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	w.metrics.RecordOperation(ctx, "webhook", operation, status)
	w.metrics.RecordDuration(ctx, "webhook", operation, time.Since(start), status)
}

// ClaimEvent records metrics for claims. The claim outcome is recorded as its own operation.
func (w *webhookLedgerWithMetrics) ClaimEvent(
	ctx context.Context,
	eventID string,
	input webhookDomain.ClaimInput,
) (webhookDomain.ClaimState, error) {
	start := time.Now()
	state, err := w.next.ClaimEvent(ctx, eventID, input)
	w.record(ctx, "event_claim", start, err)
	if err == nil {
		w.metrics.RecordOperation(ctx, "webhook", "event_claim_"+string(state), "success")
	}
	return state, err
}

// HasProcessedEvent records metrics for processed checks.
func (w *webhookLedgerWithMetrics) HasProcessedEvent(ctx context.Context, eventID string) (bool, error) {
	start := time.Now()
	processed, err := w.next.HasProcessedEvent(ctx, eventID)
	w.record(ctx, "event_check", start, err)
	return processed, err
}

// MarkProcessed records metrics for processed transitions.
func (w *webhookLedgerWithMetrics) MarkProcessed(ctx context.Context, eventID string) error {
	start := time.Now()
	err := w.next.MarkProcessed(ctx, eventID)
	w.record(ctx, "event_mark_processed", start, err)
	return err
}

// MarkFailed records metrics for failed transitions.
func (w *webhookLedgerWithMetrics) MarkFailed(ctx context.Context, eventID string, cause error) error {
	start := time.Now()
	err := w.next.MarkFailed(ctx, eventID, cause)
	w.record(ctx, "event_mark_failed", start, err)
	return err
}

// GetBacklogSummary records metrics for backlog reads.
func (w *webhookLedgerWithMetrics) GetBacklogSummary(ctx context.Context) (*webhookDomain.BacklogSummary, error) {
	start := time.Now()
	summary, err := w.next.GetBacklogSummary(ctx)
	w.record(ctx, "backlog_summary", start, err)
	return summary, err
}
