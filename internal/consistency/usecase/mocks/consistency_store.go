// Package mocks provides mock implementations of the consistency store for testing.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	consistencyDomain "github.com/allisson/billingsync/internal/consistency/domain"
)

// MockConsistencyStore is a mock implementation of ConsistencyStore for testing.
type MockConsistencyStore struct {
	mock.Mock
}

// RecordUnresolvedEvent mocks the RecordUnresolvedEvent method.
func (m *MockConsistencyStore) RecordUnresolvedEvent(
	ctx context.Context,
	input consistencyDomain.RecordUnresolvedEventInput,
) error {
	return m.Called(ctx, input).Error(0)
}

// GetUnresolvedSummary mocks the GetUnresolvedSummary method.
func (m *MockConsistencyStore) GetUnresolvedSummary(ctx context.Context) consistencyDomain.UnresolvedSummary {
	return m.Called(ctx).Get(0).(consistencyDomain.UnresolvedSummary)
}

// ListUnresolvedEvents mocks the ListUnresolvedEvents method.
func (m *MockConsistencyStore) ListUnresolvedEvents(
	ctx context.Context,
	limit int,
) ([]*consistencyDomain.UnresolvedPaymentEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consistencyDomain.UnresolvedPaymentEvent), args.Error(1)
}

// EnqueueBillingProfileRepair mocks the EnqueueBillingProfileRepair method.
func (m *MockConsistencyStore) EnqueueBillingProfileRepair(
	ctx context.Context,
	input consistencyDomain.EnqueueBillingProfileRepairInput,
) error {
	return m.Called(ctx, input).Error(0)
}

// ClaimNextBillingProfileRepair mocks the ClaimNextBillingProfileRepair method.
func (m *MockConsistencyStore) ClaimNextBillingProfileRepair(
	ctx context.Context,
	maxAttempts int,
	scanLimit int,
	skipKeys ...string,
) (*consistencyDomain.BillingProfileRepair, error) {
	callArgs := []any{ctx, maxAttempts, scanLimit}
	if len(skipKeys) > 0 {
		callArgs = append(callArgs, skipKeys)
	}
	args := m.Called(callArgs...)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consistencyDomain.BillingProfileRepair), args.Error(1)
}

// MarkBillingProfileRepairResolved mocks the MarkBillingProfileRepairResolved method.
func (m *MockConsistencyStore) MarkBillingProfileRepairResolved(ctx context.Context, repairKey string) error {
	return m.Called(ctx, repairKey).Error(0)
}

// ReleaseBillingProfileRepairForRetry mocks the ReleaseBillingProfileRepairForRetry method.
func (m *MockConsistencyStore) ReleaseBillingProfileRepairForRetry(
	ctx context.Context,
	repairKey string,
	cause error,
) error {
	return m.Called(ctx, repairKey, cause).Error(0)
}

// MarkBillingProfileRepairEscalated mocks the MarkBillingProfileRepairEscalated method.
func (m *MockConsistencyStore) MarkBillingProfileRepairEscalated(
	ctx context.Context,
	repairKey string,
	cause error,
) error {
	return m.Called(ctx, repairKey, cause).Error(0)
}

// ListBillingProfileRepairs mocks the ListBillingProfileRepairs method.
func (m *MockConsistencyStore) ListBillingProfileRepairs(
	ctx context.Context,
	status consistencyDomain.RepairStatus,
	limit int,
) ([]*consistencyDomain.BillingProfileRepair, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consistencyDomain.BillingProfileRepair), args.Error(1)
}

// ResolveBillingProfileRepairManually mocks the ResolveBillingProfileRepairManually method.
func (m *MockConsistencyStore) ResolveBillingProfileRepairManually(
	ctx context.Context,
	repairKey string,
) (*consistencyDomain.BillingProfileRepair, error) {
	args := m.Called(ctx, repairKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consistencyDomain.BillingProfileRepair), args.Error(1)
}
