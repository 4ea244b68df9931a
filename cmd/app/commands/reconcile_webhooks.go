package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	webhookUseCase "github.com/allisson/billingsync/internal/webhook/usecase"
)

// WebhookReconciler runs one reconciliation pass.
type WebhookReconciler interface {
	Reconcile(ctx context.Context) (*webhookUseCase.ReconciliationResult, error)
}

// RunReconcileWebhooks runs a single webhook reconciliation pass and prints the result
// in text or JSON format.
//
// Requirements: Database must be migrated and the Stripe secret key configured.
func RunReconcileWebhooks(
	ctx context.Context,
	reconciler WebhookReconciler,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	logger.Info("reconciling webhooks")

	result, err := reconciler.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconcile webhooks: %w", err)
	}

	if format == "json" {
		if err := writeJSON(writer, result); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(
			writer,
			"Scanned %d event(s): %d reconciled, %d skipped, %d failed, %d near the lookback edge\n",
			result.Scanned,
			result.Reconciled,
			result.Skipped,
			result.Failed,
			result.EdgeCount,
		)
	}

	logger.Info("webhook reconciliation completed",
		slog.Int("scanned", result.Scanned),
		slog.Int("reconciled", result.Reconciled),
		slog.Int("failed", result.Failed),
	)
	return nil
}
