// Package mocks provides mock implementations of the billing use cases for testing.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	billingDomain "github.com/allisson/billingsync/internal/billing/domain"
)

// MockProfileUseCase is a mock implementation of ProfileUseCase for testing.
type MockProfileUseCase struct {
	mock.Mock
}

// UpsertProfile mocks the UpsertProfile method.
func (m *MockProfileUseCase) UpsertProfile(
	ctx context.Context,
	userID string,
	update billingDomain.ProfileUpdate,
) error {
	return m.Called(ctx, userID, update).Error(0)
}

// GetProfile mocks the GetProfile method.
func (m *MockProfileUseCase) GetProfile(ctx context.Context, userID string) (*billingDomain.BillingProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingDomain.BillingProfile), args.Error(1)
}

// FindUserIDByCustomerID mocks the FindUserIDByCustomerID method.
func (m *MockProfileUseCase) FindUserIDByCustomerID(ctx context.Context, customerID string) (string, error) {
	args := m.Called(ctx, customerID)
	return args.String(0), args.Error(1)
}
