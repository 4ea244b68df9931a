// Package usecase applies Stripe checkout and invoice events to billing profiles and runs
// the worker that retries profile writes which failed after the webhook was acknowledged.
package usecase

import (
	"context"

	billingDomain "github.com/allisson/billingsync/internal/billing/domain"
	consistencyDomain "github.com/allisson/billingsync/internal/consistency/domain"
)

// BillingProfileRepository persists billing profiles.
type BillingProfileRepository interface {
	Get(ctx context.Context, userID string) (*billingDomain.BillingProfile, error)
	GetForUpdate(ctx context.Context, userID string) (*billingDomain.BillingProfile, error)
	GetByCustomerID(ctx context.Context, customerID string) (*billingDomain.BillingProfile, error)
	Create(ctx context.Context, profile *billingDomain.BillingProfile) error
	Update(ctx context.Context, profile *billingDomain.BillingProfile) error
}

// ProfileUpdater applies partial billing profile writes.
type ProfileUpdater interface {
	UpsertProfile(ctx context.Context, userID string, update billingDomain.ProfileUpdate) error
}

// ProfileUseCase reads and writes billing profiles.
type ProfileUseCase interface {
	ProfileUpdater

	GetProfile(ctx context.Context, userID string) (*billingDomain.BillingProfile, error)

	// FindUserIDByCustomerID returns ErrBillingProfileNotFound when no profile links the customer.
	FindUserIDByCustomerID(ctx context.Context, customerID string) (string, error)
}

// ConsistencyRecorder is the part of the consistency store the webhook handlers write to.
type ConsistencyRecorder interface {
	RecordUnresolvedEvent(ctx context.Context, input consistencyDomain.RecordUnresolvedEventInput) error
	EnqueueBillingProfileRepair(ctx context.Context, input consistencyDomain.EnqueueBillingProfileRepairInput) error
}

// RepairQueue is the part of the consistency store the repair worker drains.
type RepairQueue interface {
	ClaimNextBillingProfileRepair(
		ctx context.Context,
		maxAttempts int,
		scanLimit int,
		skipKeys ...string,
	) (*consistencyDomain.BillingProfileRepair, error)
	MarkBillingProfileRepairResolved(ctx context.Context, repairKey string) error
	ReleaseBillingProfileRepairForRetry(ctx context.Context, repairKey string, cause error) error
	MarkBillingProfileRepairEscalated(ctx context.Context, repairKey string, cause error) error
}
