package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	billingDomain "github.com/allisson/billingsync/internal/billing/domain"
	"github.com/allisson/billingsync/internal/billing/usecase/mocks"
)

type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

func (m *mockBusinessMetrics) RecordWorkerRun(
	ctx context.Context,
	worker, status string,
	duration, pollInterval time.Duration,
) {
	m.Called(ctx, worker, status, duration, pollInterval)
}

func TestProfileUseCaseWithMetrics(t *testing.T) {
	ctx := context.Background()
	update := billingDomain.ProfileUpdate{StripeCustomerID: "cus_1"}

	t.Run("UpsertProfile_Success", func(t *testing.T) {
		next := &mocks.MockProfileUseCase{}
		m := &mockBusinessMetrics{}
		next.On("UpsertProfile", ctx, "user_1", update).Return(nil).Once()
		m.On("RecordOperation", ctx, "billing", "profile_upsert", "success").Return().Once()
		m.On("RecordDuration", ctx, "billing", "profile_upsert", mock.AnythingOfType("time.Duration"), "success").
			Return().Once()

		require.NoError(t, NewProfileUseCaseWithMetrics(next, m).UpsertProfile(ctx, "user_1", update))
		m.AssertExpectations(t)
	})

	t.Run("FindUserIDByCustomerID_Error", func(t *testing.T) {
		next := &mocks.MockProfileUseCase{}
		m := &mockBusinessMetrics{}
		next.On("FindUserIDByCustomerID", ctx, "cus_1").Return("", errors.New("boom")).Once()
		m.On("RecordOperation", ctx, "billing", "profile_find_by_customer", "error").Return().Once()
		m.On("RecordDuration", ctx, "billing", "profile_find_by_customer", mock.AnythingOfType("time.Duration"), "error").
			Return().Once()

		_, err := NewProfileUseCaseWithMetrics(next, m).FindUserIDByCustomerID(ctx, "cus_1")
		assert.Error(t, err)
		m.AssertExpectations(t)
	})
}
