// Package usecase implements the consistency store: the unresolved payment event tally and
// the billing profile repair queue with its two-phase claim protocol.
package usecase

import (
	"context"
	"time"

	consistencyDomain "github.com/allisson/billingsync/internal/consistency/domain"
)

// UnresolvedEventRepository persists the unresolved payment event tally.
type UnresolvedEventRepository interface {
	Upsert(ctx context.Context, event *consistencyDomain.UnresolvedPaymentEvent) error
	ListOpen(ctx context.Context, limit int) ([]*consistencyDomain.UnresolvedPaymentEvent, error)
	GetSummary(ctx context.Context, now time.Time) (*consistencyDomain.UnresolvedSummary, error)
}

// BillingProfileRepairRepository persists billing profile repair tasks.
type BillingProfileRepairRepository interface {
	Create(ctx context.Context, repair *consistencyDomain.BillingProfileRepair) error
	Update(ctx context.Context, repair *consistencyDomain.BillingProfileRepair) error
	GetByRepairKey(ctx context.Context, repairKey string) (*consistencyDomain.BillingProfileRepair, error)
	GetByRepairKeyForUpdate(ctx context.Context, repairKey string) (*consistencyDomain.BillingProfileRepair, error)
	ListByStatus(
		ctx context.Context,
		status consistencyDomain.RepairStatus,
		limit int,
	) ([]*consistencyDomain.BillingProfileRepair, error)
}

// ConsistencyStore records unresolved payment events and owns the billing profile repair queue.
type ConsistencyStore interface {
	// RecordUnresolvedEvent tallies a sighting of an event that could not be applied.
	RecordUnresolvedEvent(ctx context.Context, input consistencyDomain.RecordUnresolvedEventInput) error

	// GetUnresolvedSummary never fails; read errors are logged and reported as an empty summary.
	GetUnresolvedSummary(ctx context.Context) consistencyDomain.UnresolvedSummary

	ListUnresolvedEvents(ctx context.Context, limit int) ([]*consistencyDomain.UnresolvedPaymentEvent, error)

	// EnqueueBillingProfileRepair upserts a repair task by repair key. Resolved tasks are left untouched.
	EnqueueBillingProfileRepair(ctx context.Context, input consistencyDomain.EnqueueBillingProfileRepairInput) error

	// ClaimNextBillingProfileRepair moves the oldest claimable pending task to processing,
	// ignoring tasks whose repair key is in skipKeys. Returns nil when nothing could be claimed.
	ClaimNextBillingProfileRepair(
		ctx context.Context,
		maxAttempts int,
		scanLimit int,
		skipKeys ...string,
	) (*consistencyDomain.BillingProfileRepair, error)

	MarkBillingProfileRepairResolved(ctx context.Context, repairKey string) error
	ReleaseBillingProfileRepairForRetry(ctx context.Context, repairKey string, cause error) error
	MarkBillingProfileRepairEscalated(ctx context.Context, repairKey string, cause error) error

	ListBillingProfileRepairs(
		ctx context.Context,
		status consistencyDomain.RepairStatus,
		limit int,
	) ([]*consistencyDomain.BillingProfileRepair, error)

	// ResolveBillingProfileRepairManually closes an escalated task after operator intervention.
	ResolveBillingProfileRepairManually(
		ctx context.Context,
		repairKey string,
	) (*consistencyDomain.BillingProfileRepair, error)
}
