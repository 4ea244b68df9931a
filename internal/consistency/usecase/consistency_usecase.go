package usecase

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	consistencyDomain "github.com/allisson/billingsync/internal/consistency/domain"
	"github.com/allisson/billingsync/internal/database"
	apperrors "github.com/allisson/billingsync/internal/errors"
	"github.com/allisson/billingsync/internal/resilience"
)

// errMaxAttemptsReached is recorded on tasks escalated during a claim.
var errMaxAttemptsReached = apperrors.New("max repair attempts reached")

// consistencyStore implements ConsistencyStore on top of SQL repositories.
type consistencyStore struct {
	txManager      database.TxManager
	unresolvedRepo UnresolvedEventRepository
	repairRepo     BillingProfileRepairRepository
	executor       resilience.Executor
	now            func() time.Time
	logger         *slog.Logger
}

// RecordUnresolvedEvent tallies a sighting in one atomic upsert.
func (c *consistencyStore) RecordUnresolvedEvent(
	ctx context.Context,
	input consistencyDomain.RecordUnresolvedEventInput,
) error {
	if err := input.Validate(); err != nil {
		return err
	}

	now := c.now()
	event := &consistencyDomain.UnresolvedPaymentEvent{
		EventID:        input.EventID,
		Status:         consistencyDomain.UnresolvedEventStatusOpen,
		EventType:      input.EventType,
		Reason:         input.Reason,
		FirstSeenAt:    now,
		LastSeenAt:     now,
		StripeObjectID: input.StripeObjectID,
		UserID:         input.UserID,
		Metadata:       input.Metadata,
	}

	return c.executor.Execute(ctx, "record_unresolved_event", func(ctx context.Context) error {
		return c.unresolvedRepo.Upsert(ctx, event)
	})
}

// GetUnresolvedSummary reports open unresolved events. Failures yield an empty summary.
func (c *consistencyStore) GetUnresolvedSummary(ctx context.Context) consistencyDomain.UnresolvedSummary {
	var summary *consistencyDomain.UnresolvedSummary
	err := c.executor.Execute(ctx, "get_unresolved_summary", func(ctx context.Context) error {
		var err error
		summary, err = c.unresolvedRepo.GetSummary(ctx, c.now())
		return err
	})
	if err != nil || summary == nil {
		c.logger.Warn("failed to read unresolved payment event summary", slog.Any("error", err))
		return consistencyDomain.UnresolvedSummary{}
	}
	return *summary
}

// ListUnresolvedEvents returns open unresolved events, oldest first.
func (c *consistencyStore) ListUnresolvedEvents(
	ctx context.Context,
	limit int,
) ([]*consistencyDomain.UnresolvedPaymentEvent, error) {
	var events []*consistencyDomain.UnresolvedPaymentEvent
	err := c.executor.Execute(ctx, "list_unresolved_events", func(ctx context.Context) error {
		var err error
		events, err = c.unresolvedRepo.ListOpen(ctx, limit)
		return err
	})
	return events, err
}

// EnqueueBillingProfileRepair creates a pending task or refreshes an open one.
func (c *consistencyStore) EnqueueBillingProfileRepair(
	ctx context.Context,
	input consistencyDomain.EnqueueBillingProfileRepairInput,
) error {
	if err := input.Validate(); err != nil {
		return err
	}

	err := c.enqueue(ctx, input)
	if apperrors.Is(err, consistencyDomain.ErrRepairAlreadyExists) {
		// A concurrent enqueue inserted the key first; the row now exists so refresh it.
		err = c.enqueue(ctx, input)
	}
	return err
}

func (c *consistencyStore) enqueue(
	ctx context.Context,
	input consistencyDomain.EnqueueBillingProfileRepairInput,
) error {
	return c.executor.Execute(ctx, "enqueue_billing_profile_repair", func(ctx context.Context) error {
		return c.txManager.WithTx(ctx, func(ctx context.Context) error {
			now := c.now()

			repair, err := c.repairRepo.GetByRepairKeyForUpdate(ctx, input.RepairKey)
			if err != nil {
				if !apperrors.Is(err, consistencyDomain.ErrRepairNotFound) {
					return err
				}

				id, err := uuid.NewV7()
				if err != nil {
					return apperrors.Wrap(err, "failed to generate billing profile repair id")
				}
				repair = &consistencyDomain.BillingProfileRepair{
					ID:        id,
					RepairKey: input.RepairKey,
					Status:    consistencyDomain.RepairStatusPending,
					CreatedAt: now,
				}
				applyRepairInput(repair, input)
				repair.UpdatedAt = now
				return c.repairRepo.Create(ctx, repair)
			}

			if repair.Status == consistencyDomain.RepairStatusResolved {
				return nil
			}

			applyRepairInput(repair, input)
			repair.Status = consistencyDomain.RepairStatusPending
			repair.LastError = nil
			repair.ProcessingStartedAt = nil
			repair.UpdatedAt = now
			return c.repairRepo.Update(ctx, repair)
		})
	})
}

// applyRepairInput copies the descriptive fields of input onto repair. Optional fields
// only overwrite when provided, so a refresh never erases data an earlier enqueue supplied.
func applyRepairInput(
	repair *consistencyDomain.BillingProfileRepair,
	input consistencyDomain.EnqueueBillingProfileRepairInput,
) {
	repair.Source = input.Source
	repair.UserID = input.UserID
	repair.StripeCustomerID = input.StripeCustomerID
	repair.StripeLivemode = input.StripeLivemode
	if input.StripeSubscriptionID != nil {
		repair.StripeSubscriptionID = input.StripeSubscriptionID
	}
	if input.PlanTier != nil {
		repair.PlanTier = input.PlanTier
	}
	if input.SubscriptionPriceID != nil {
		repair.SubscriptionPriceID = input.SubscriptionPriceID
	}
	if input.EventID != nil {
		repair.EventID = input.EventID
	}
	if input.ReferenceID != nil {
		repair.ReferenceID = input.ReferenceID
	}
}

// ClaimNextBillingProfileRepair scans the oldest pending tasks, then re-validates each
// candidate under a row lock. Over-budget candidates are escalated and skipped; the first
// candidate still pending is claimed. Candidates lost to another claimant are skipped, and
// so are candidates named in skipKeys.
func (c *consistencyStore) ClaimNextBillingProfileRepair(
	ctx context.Context,
	maxAttempts int,
	scanLimit int,
	skipKeys ...string,
) (*consistencyDomain.BillingProfileRepair, error) {
	var candidates []*consistencyDomain.BillingProfileRepair
	err := c.executor.Execute(ctx, "scan_billing_profile_repairs", func(ctx context.Context) error {
		var err error
		candidates, err = c.repairRepo.ListByStatus(ctx, consistencyDomain.RepairStatusPending, scanLimit)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		if slices.Contains(skipKeys, candidate.RepairKey) {
			continue
		}
		claimed, err := c.claimCandidate(ctx, candidate.RepairKey, maxAttempts)
		if err != nil {
			if apperrors.Is(err, consistencyDomain.ErrRepairNotFound) || database.IsLockContention(err) {
				continue
			}
			return nil, err
		}
		if claimed != nil {
			return claimed, nil
		}
	}
	return nil, nil
}

func (c *consistencyStore) claimCandidate(
	ctx context.Context,
	repairKey string,
	maxAttempts int,
) (*consistencyDomain.BillingProfileRepair, error) {
	var claimed *consistencyDomain.BillingProfileRepair

	err := c.executor.Execute(ctx, "claim_billing_profile_repair", func(ctx context.Context) error {
		claimed = nil
		return c.txManager.WithTx(ctx, func(ctx context.Context) error {
			repair, err := c.repairRepo.GetByRepairKeyForUpdate(ctx, repairKey)
			if err != nil {
				return err
			}
			if repair.Status != consistencyDomain.RepairStatusPending {
				return nil
			}

			now := c.now()
			if repair.Attempts >= maxAttempts {
				lastError := errMaxAttemptsReached.Error()
				repair.Status = consistencyDomain.RepairStatusEscalated
				repair.EscalatedAt = &now
				repair.UpdatedAt = now
				if repair.LastError == nil {
					repair.LastError = &lastError
				}
				c.logger.Warn("escalated over-budget billing profile repair during claim",
					slog.String("repair_key", repair.RepairKey),
					slog.Int("attempts", repair.Attempts),
				)
				return c.repairRepo.Update(ctx, repair)
			}

			repair.Status = consistencyDomain.RepairStatusProcessing
			repair.ProcessingStartedAt = &now
			repair.UpdatedAt = now
			if err := c.repairRepo.Update(ctx, repair); err != nil {
				return err
			}
			claimed = repair
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkBillingProfileRepairResolved closes a task after its profile update was applied.
func (c *consistencyStore) MarkBillingProfileRepairResolved(ctx context.Context, repairKey string) error {
	return c.transition(ctx, "resolve_billing_profile_repair", repairKey,
		func(repair *consistencyDomain.BillingProfileRepair, now time.Time) {
			repair.Status = consistencyDomain.RepairStatusResolved
			repair.ResolvedAt = &now
			repair.LastError = nil
			repair.ProcessingStartedAt = nil
		})
}

// ReleaseBillingProfileRepairForRetry counts a failed attempt and returns the task to pending.
func (c *consistencyStore) ReleaseBillingProfileRepairForRetry(
	ctx context.Context,
	repairKey string,
	cause error,
) error {
	return c.transition(ctx, "release_billing_profile_repair", repairKey,
		func(repair *consistencyDomain.BillingProfileRepair, _ time.Time) {
			repair.Status = consistencyDomain.RepairStatusPending
			repair.Attempts++
			repair.LastError = errorMessage(cause)
			repair.ProcessingStartedAt = nil
		})
}

// MarkBillingProfileRepairEscalated counts a failed attempt and parks the task for an operator.
func (c *consistencyStore) MarkBillingProfileRepairEscalated(
	ctx context.Context,
	repairKey string,
	cause error,
) error {
	return c.transition(ctx, "escalate_billing_profile_repair", repairKey,
		func(repair *consistencyDomain.BillingProfileRepair, now time.Time) {
			repair.Status = consistencyDomain.RepairStatusEscalated
			repair.Attempts++
			repair.LastError = errorMessage(cause)
			repair.ProcessingStartedAt = nil
			repair.EscalatedAt = &now
		})
}

// transition applies mutate to a locked task. Resolved tasks are never mutated.
func (c *consistencyStore) transition(
	ctx context.Context,
	operation string,
	repairKey string,
	mutate func(repair *consistencyDomain.BillingProfileRepair, now time.Time),
) error {
	return c.executor.Execute(ctx, operation, func(ctx context.Context) error {
		return c.txManager.WithTx(ctx, func(ctx context.Context) error {
			repair, err := c.repairRepo.GetByRepairKeyForUpdate(ctx, repairKey)
			if err != nil {
				return err
			}
			if repair.Status == consistencyDomain.RepairStatusResolved {
				return nil
			}

			now := c.now()
			mutate(repair, now)
			repair.UpdatedAt = now
			return c.repairRepo.Update(ctx, repair)
		})
	})
}

// ListBillingProfileRepairs returns tasks in a status, least recently updated first.
func (c *consistencyStore) ListBillingProfileRepairs(
	ctx context.Context,
	status consistencyDomain.RepairStatus,
	limit int,
) ([]*consistencyDomain.BillingProfileRepair, error) {
	if !status.IsValid() {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "unknown repair status "+string(status))
	}

	var repairs []*consistencyDomain.BillingProfileRepair
	err := c.executor.Execute(ctx, "list_billing_profile_repairs", func(ctx context.Context) error {
		var err error
		repairs, err = c.repairRepo.ListByStatus(ctx, status, limit)
		return err
	})
	return repairs, err
}

// ResolveBillingProfileRepairManually resolves an escalated task.
func (c *consistencyStore) ResolveBillingProfileRepairManually(
	ctx context.Context,
	repairKey string,
) (*consistencyDomain.BillingProfileRepair, error) {
	var resolved *consistencyDomain.BillingProfileRepair

	err := c.executor.Execute(ctx, "manually_resolve_billing_profile_repair", func(ctx context.Context) error {
		return c.txManager.WithTx(ctx, func(ctx context.Context) error {
			repair, err := c.repairRepo.GetByRepairKeyForUpdate(ctx, repairKey)
			if err != nil {
				return err
			}
			if repair.Status != consistencyDomain.RepairStatusEscalated {
				return consistencyDomain.ErrRepairNotEscalated
			}

			now := c.now()
			repair.Status = consistencyDomain.RepairStatusResolved
			repair.ResolvedAt = &now
			repair.UpdatedAt = now
			if err := c.repairRepo.Update(ctx, repair); err != nil {
				return err
			}
			resolved = repair
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("billing profile repair resolved manually",
		slog.String("repair_key", resolved.RepairKey),
		slog.String("user_id", resolved.UserID),
		slog.Int("attempts", resolved.Attempts),
	)
	return resolved, nil
}

func errorMessage(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}

// NewConsistencyStore creates a new ConsistencyStore.
func NewConsistencyStore(
	txManager database.TxManager,
	unresolvedRepo UnresolvedEventRepository,
	repairRepo BillingProfileRepairRepository,
	executor resilience.Executor,
	logger *slog.Logger,
) ConsistencyStore {
	if executor == nil {
		executor = resilience.Direct()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &consistencyStore{
		txManager:      txManager,
		unresolvedRepo: unresolvedRepo,
		repairRepo:     repairRepo,
		executor:       executor,
		now:            func() time.Time { return time.Now().UTC() },
		logger:         logger,
	}
}
