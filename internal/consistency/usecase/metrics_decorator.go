package usecase

import (
	"context"
	"time"

	consistencyDomain "github.com/allisson/billingsync/internal/consistency/domain"
	"github.com/allisson/billingsync/internal/metrics"
)

const metricsDomain = "consistency"

// consistencyStoreWithMetrics decorates ConsistencyStore with metrics instrumentation.
type consistencyStoreWithMetrics struct {
	next    ConsistencyStore
	metrics metrics.BusinessMetrics
}

// NewConsistencyStoreWithMetrics wraps a ConsistencyStore with metrics recording.
func NewConsistencyStoreWithMetrics(store ConsistencyStore, m metrics.BusinessMetrics) ConsistencyStore {
	return &consistencyStoreWithMetrics{
		next:    store,
		metrics: m,
	}
}

func (c *consistencyStoreWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	c.metrics.RecordOperation(ctx, metricsDomain, operation, status)
	c.metrics.RecordDuration(ctx, metricsDomain, operation, time.Since(start), status)
}

// RecordUnresolvedEvent records metrics for unresolved event sightings.
func (c *consistencyStoreWithMetrics) RecordUnresolvedEvent(
	ctx context.Context,
	input consistencyDomain.RecordUnresolvedEventInput,
) error {
	start := time.Now()
	err := c.next.RecordUnresolvedEvent(ctx, input)
	c.record(ctx, "unresolved_event_record", start, err)
	return err
}

// GetUnresolvedSummary is not instrumented; it never fails and runs on every reconciliation tick.
func (c *consistencyStoreWithMetrics) GetUnresolvedSummary(ctx context.Context) consistencyDomain.UnresolvedSummary {
	return c.next.GetUnresolvedSummary(ctx)
}

// ListUnresolvedEvents records metrics for unresolved event listings.
func (c *consistencyStoreWithMetrics) ListUnresolvedEvents(
	ctx context.Context,
	limit int,
) ([]*consistencyDomain.UnresolvedPaymentEvent, error) {
	start := time.Now()
	events, err := c.next.ListUnresolvedEvents(ctx, limit)
	c.record(ctx, "unresolved_event_list", start, err)
	return events, err
}

// EnqueueBillingProfileRepair records metrics for repair enqueues.
func (c *consistencyStoreWithMetrics) EnqueueBillingProfileRepair(
	ctx context.Context,
	input consistencyDomain.EnqueueBillingProfileRepairInput,
) error {
	start := time.Now()
	err := c.next.EnqueueBillingProfileRepair(ctx, input)
	c.record(ctx, "repair_enqueue", start, err)
	return err
}

// ClaimNextBillingProfileRepair records metrics for repair claims.
func (c *consistencyStoreWithMetrics) ClaimNextBillingProfileRepair(
	ctx context.Context,
	maxAttempts int,
	scanLimit int,
	skipKeys ...string,
) (*consistencyDomain.BillingProfileRepair, error) {
	start := time.Now()
	repair, err := c.next.ClaimNextBillingProfileRepair(ctx, maxAttempts, scanLimit, skipKeys...)
	c.record(ctx, "repair_claim", start, err)
	return repair, err
}

// MarkBillingProfileRepairResolved records metrics for repair resolution.
func (c *consistencyStoreWithMetrics) MarkBillingProfileRepairResolved(ctx context.Context, repairKey string) error {
	start := time.Now()
	err := c.next.MarkBillingProfileRepairResolved(ctx, repairKey)
	c.record(ctx, "repair_resolve", start, err)
	return err
}

// ReleaseBillingProfileRepairForRetry records metrics for repair retries.
func (c *consistencyStoreWithMetrics) ReleaseBillingProfileRepairForRetry(
	ctx context.Context,
	repairKey string,
	cause error,
) error {
	start := time.Now()
	err := c.next.ReleaseBillingProfileRepairForRetry(ctx, repairKey, cause)
	c.record(ctx, "repair_release", start, err)
	return err
}

// MarkBillingProfileRepairEscalated records metrics for repair escalation.
func (c *consistencyStoreWithMetrics) MarkBillingProfileRepairEscalated(
	ctx context.Context,
	repairKey string,
	cause error,
) error {
	start := time.Now()
	err := c.next.MarkBillingProfileRepairEscalated(ctx, repairKey, cause)
	c.record(ctx, "repair_escalate", start, err)
	return err
}

// ListBillingProfileRepairs records metrics for repair listings.
func (c *consistencyStoreWithMetrics) ListBillingProfileRepairs(
	ctx context.Context,
	status consistencyDomain.RepairStatus,
	limit int,
) ([]*consistencyDomain.BillingProfileRepair, error) {
	start := time.Now()
	repairs, err := c.next.ListBillingProfileRepairs(ctx, status, limit)
	c.record(ctx, "repair_list", start, err)
	return repairs, err
}

// ResolveBillingProfileRepairManually records metrics for manual resolution.
func (c *consistencyStoreWithMetrics) ResolveBillingProfileRepairManually(
	ctx context.Context,
	repairKey string,
) (*consistencyDomain.BillingProfileRepair, error) {
	start := time.Now()
	repair, err := c.next.ResolveBillingProfileRepairManually(ctx, repairKey)
	c.record(ctx, "repair_manual_resolve", start, err)
	return repair, err
}
