// Package usecase implements the webhook ledger claim protocol, the dispatcher shared by
// live delivery and reconciliation, and the reconciliation worker that replays missed events.
package usecase

import (
	"context"
	"time"

	billingDomain "github.com/allisson/billingsync/internal/billing/domain"
	consistencyDomain "github.com/allisson/billingsync/internal/consistency/domain"
	webhookDomain "github.com/allisson/billingsync/internal/webhook/domain"
)

// WebhookEventRepository persists ledger records.
type WebhookEventRepository interface {
	Get(ctx context.Context, eventID string) (*webhookDomain.WebhookEvent, error)
	GetForUpdate(ctx context.Context, eventID string) (*webhookDomain.WebhookEvent, error)
	Create(ctx context.Context, event *webhookDomain.WebhookEvent) error
	Update(ctx context.Context, event *webhookDomain.WebhookEvent) error
	UpsertProcessed(ctx context.Context, eventID string, now time.Time) error
	UpsertFailed(ctx context.Context, eventID string, lastError string, now time.Time) error
	GetBacklogSummary(ctx context.Context, now time.Time) (*webhookDomain.BacklogSummary, error)
}

// ProcessedCache remembers event IDs that reached the terminal processed state.
type ProcessedCache interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	SetProcessed(ctx context.Context, eventID string) error
}

// WebhookLedger is the per-event idempotency ledger.
type WebhookLedger interface {
	// ClaimEvent atomically decides whether the caller owns the event.
	ClaimEvent(
		ctx context.Context,
		eventID string,
		input webhookDomain.ClaimInput,
	) (webhookDomain.ClaimState, error)

	// HasProcessedEvent is a read-only check that lets callers skip the claim.
	HasProcessedEvent(ctx context.Context, eventID string) (bool, error)

	// MarkProcessed records the terminal processed state. Safe to repeat.
	MarkProcessed(ctx context.Context, eventID string) error

	// MarkFailed records a handler failure. Processed records are never downgraded.
	MarkFailed(ctx context.Context, eventID string, cause error) error

	GetBacklogSummary(ctx context.Context) (*webhookDomain.BacklogSummary, error)
}

// EventHandler applies payment events to billing state.
type EventHandler interface {
	HandleCheckoutSessionCompleted(ctx context.Context, session *billingDomain.CheckoutSession, eventID string) error
	HandleInvoicePaid(ctx context.Context, invoice *billingDomain.Invoice, eventID string) error
}

// UnresolvedSummaryReader reports open unresolved payment events.
type UnresolvedSummaryReader interface {
	GetUnresolvedSummary(ctx context.Context) consistencyDomain.UnresolvedSummary
}
