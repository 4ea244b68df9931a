package commands

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	webhookUseCase "github.com/allisson/billingsync/internal/webhook/usecase"
)

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) Reconcile(ctx context.Context) (*webhookUseCase.ReconciliationResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhookUseCase.ReconciliationResult), args.Error(1)
}

func TestRunReconcileWebhooks(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	result := &webhookUseCase.ReconciliationResult{Scanned: 7, Reconciled: 2, Skipped: 4, Failed: 1, EdgeCount: 3}

	t.Run("text-output", func(t *testing.T) {
		reconciler := &mockReconciler{}
		reconciler.On("Reconcile", ctx).Return(result, nil)

		var out bytes.Buffer
		err := RunReconcileWebhooks(ctx, reconciler, logger, &out, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "Scanned 7 event(s): 2 reconciled, 4 skipped, 1 failed, 3 near the lookback edge")
		reconciler.AssertExpectations(t)
	})

	t.Run("json-output", func(t *testing.T) {
		reconciler := &mockReconciler{}
		reconciler.On("Reconcile", ctx).Return(result, nil)

		var out bytes.Buffer
		err := RunReconcileWebhooks(ctx, reconciler, logger, &out, "json")

		require.NoError(t, err)
		require.Contains(t, out.String(), `"reconciled": 2`)
		require.Contains(t, out.String(), `"edge_count": 3`)
	})

	t.Run("reconcile-error", func(t *testing.T) {
		reconciler := &mockReconciler{}
		reconciler.On("Reconcile", ctx).Return(nil, errors.New("stripe down"))

		err := RunReconcileWebhooks(ctx, reconciler, logger, &bytes.Buffer{}, "text")

		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to reconcile webhooks")
	})
}
