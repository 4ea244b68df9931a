// Package mocks provides mock implementations of the webhook ledger and handlers for testing.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	billingDomain "github.com/allisson/billingsync/internal/billing/domain"
	webhookDomain "github.com/allisson/billingsync/internal/webhook/domain"
)

// MockWebhookLedger is a mock implementation of WebhookLedger for testing.
type MockWebhookLedger struct {
	mock.Mock
}

// ClaimEvent mocks the ClaimEvent method.
func (m *MockWebhookLedger) ClaimEvent(
	ctx context.Context,
	eventID string,
	input webhookDomain.ClaimInput,
) (webhookDomain.ClaimState, error) {
	args := m.Called(ctx, eventID, input)
	return args.Get(0).(webhookDomain.ClaimState), args.Error(1)
}

// HasProcessedEvent mocks the HasProcessedEvent method.
func (m *MockWebhookLedger) HasProcessedEvent(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

// MarkProcessed mocks the MarkProcessed method.
func (m *MockWebhookLedger) MarkProcessed(ctx context.Context, eventID string) error {
	return m.Called(ctx, eventID).Error(0)
}

// MarkFailed mocks the MarkFailed method.
func (m *MockWebhookLedger) MarkFailed(ctx context.Context, eventID string, cause error) error {
	return m.Called(ctx, eventID, cause).Error(0)
}

// GetBacklogSummary mocks the GetBacklogSummary method.
func (m *MockWebhookLedger) GetBacklogSummary(ctx context.Context) (*webhookDomain.BacklogSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhookDomain.BacklogSummary), args.Error(1)
}

// MockEventHandler is a mock implementation of EventHandler for testing.
type MockEventHandler struct {
	mock.Mock
}

// HandleCheckoutSessionCompleted mocks the HandleCheckoutSessionCompleted method.
func (m *MockEventHandler) HandleCheckoutSessionCompleted(
	ctx context.Context,
	session *billingDomain.CheckoutSession,
	eventID string,
) error {
	return m.Called(ctx, session, eventID).Error(0)
}

// HandleInvoicePaid mocks the HandleInvoicePaid method.
func (m *MockEventHandler) HandleInvoicePaid(
	ctx context.Context,
	invoice *billingDomain.Invoice,
	eventID string,
) error {
	return m.Called(ctx, invoice, eventID).Error(0)
}
