package usecase

import (
	"context"
	"time"

	billingDomain "github.com/allisson/billingsync/internal/billing/domain"
	"github.com/allisson/billingsync/internal/metrics"
)

// profileUseCaseWithMetrics decorates ProfileUseCase with metrics instrumentation.
type profileUseCaseWithMetrics struct {
	next    ProfileUseCase
	metrics metrics.BusinessMetrics
}

// NewProfileUseCaseWithMetrics wraps a ProfileUseCase with metrics recording.
func NewProfileUseCaseWithMetrics(useCase ProfileUseCase, m metrics.BusinessMetrics) ProfileUseCase {
	return &profileUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// UpsertProfile records metrics for profile writes.
func (p *profileUseCaseWithMetrics) UpsertProfile(
	ctx context.Context,
	userID string,
	update billingDomain.ProfileUpdate,
) error {
	start := time.Now()
	err := p.next.UpsertProfile(ctx, userID, update)
	p.record(ctx, "profile_upsert", start, err)
	return err
}

// GetProfile records metrics for profile reads.
func (p *profileUseCaseWithMetrics) GetProfile(
	ctx context.Context,
	userID string,
) (*billingDomain.BillingProfile, error) {
	start := time.Now()
	profile, err := p.next.GetProfile(ctx, userID)
	p.record(ctx, "profile_get", start, err)
	return profile, err
}

// FindUserIDByCustomerID records metrics for customer lookups.
func (p *profileUseCaseWithMetrics) FindUserIDByCustomerID(ctx context.Context, customerID string) (string, error) {
	start := time.Now()
	userID, err := p.next.FindUserIDByCustomerID(ctx, customerID)
	p.record(ctx, "profile_find_by_customer", start, err)
	return userID, err
}

func (p *profileUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordOperation(ctx, "billing", operation, status)
	p.metrics.RecordDuration(ctx, "billing", operation, time.Since(start), status)
}
