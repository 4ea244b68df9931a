// Package domain defines the webhook ledger records used to apply Stripe deliveries
// exactly once. A ledger record is keyed by the Stripe event ID and moves between
// processing, processed and failed; processed is terminal.
package domain

import (
	"time"
)

// WebhookEventStatus is the lifecycle state of a ledger record.
type WebhookEventStatus string

const (
	// WebhookEventStatusProcessing means a claimant currently owns the event.
	WebhookEventStatusProcessing WebhookEventStatus = "processing"
	// WebhookEventStatusProcessed means the event side effects were applied.
	WebhookEventStatusProcessed WebhookEventStatus = "processed"
	// WebhookEventStatusFailed means the last handler run returned an error.
	WebhookEventStatusFailed WebhookEventStatus = "failed"
)

// ClaimState is the outcome of a claim attempt.
type ClaimState string

const (
	// ClaimStateClaimed means the caller now owns the event and must run its handler.
	ClaimStateClaimed ClaimState = "claimed"
	// ClaimStateProcessed means the event was already applied and must be skipped.
	ClaimStateProcessed ClaimState = "processed"
	// ClaimStateInProgress means another claimant owns a fresh processing record.
	ClaimStateInProgress ClaimState = "in_progress"
)

// WebhookEvent is the ledger record of a Stripe event.
type WebhookEvent struct {
	EventID   string
	Status    WebhookEventStatus
	EventType string
	Livemode  bool
	// Attempt is incremented each time an abandoned or failed record is reclaimed.
	Attempt   int
	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClaimInput carries the source event attributes echoed onto the ledger record.
type ClaimInput struct {
	Type     string
	Livemode bool
}

// IsStale reports whether a processing record was abandoned by its claimant.
func (e *WebhookEvent) IsStale(now time.Time, ttl time.Duration) bool {
	return e.Status == WebhookEventStatusProcessing && now.Sub(e.UpdatedAt) > ttl
}

// BacklogSummary aggregates ledger records that have not reached processed.
type BacklogSummary struct {
	ProcessingCount  int64
	FailedCount      int64
	UnprocessedCount int64

	// OldestUnprocessedAge is nil when there is no backlog.
	OldestUnprocessedAge *time.Duration
}

// HasBacklog reports whether any record is still unprocessed.
func (s *BacklogSummary) HasBacklog() bool {
	return s != nil && s.UnprocessedCount > 0
}
