// Package mocks provides a mock payment processor client for testing.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/allisson/billingsync/internal/processor"
)

// MockClient is a mock implementation of processor.Client for testing.
type MockClient struct {
	mock.Mock
}

// ListRecentEvents mocks the ListRecentEvents method.
func (m *MockClient) ListRecentEvents(
	ctx context.Context,
	eventType string,
	createdAfterUnix int64,
) ([]processor.Event, error) {
	args := m.Called(ctx, eventType, createdAfterUnix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]processor.Event), args.Error(1)
}

// ConstructEvent mocks the ConstructEvent method.
func (m *MockClient) ConstructEvent(payload []byte, signature string) (processor.Event, error) {
	args := m.Called(payload, signature)
	return args.Get(0).(processor.Event), args.Error(1)
}
