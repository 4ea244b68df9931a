package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	billingUseCase "github.com/allisson/billingsync/internal/billing/usecase"
)

// RepairDrainer runs one repair queue drain.
type RepairDrainer interface {
	Drain(ctx context.Context) (*billingUseCase.RepairResult, error)
}

// RunRepairBillingProfiles drains the billing profile repair queue once and prints the
// result in text or JSON format.
//
// Requirements: Database must be migrated and accessible.
func RunRepairBillingProfiles(
	ctx context.Context,
	drainer RepairDrainer,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	logger.Info("repairing billing profiles")

	result, err := drainer.Drain(ctx)
	if err != nil {
		return fmt.Errorf("failed to repair billing profiles: %w", err)
	}

	if format == "json" {
		if err := writeJSON(writer, result); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(
			writer,
			"Claimed %d repair(s): %d resolved, %d released for retry, %d escalated\n",
			result.Claimed,
			result.Resolved,
			result.Retried,
			result.Escalated,
		)
	}

	logger.Info("billing profile repair completed",
		slog.Int("claimed", result.Claimed),
		slog.Int("resolved", result.Resolved),
		slog.Int("escalated", result.Escalated),
	)
	return nil
}
