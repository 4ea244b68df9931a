package usecase

import (
	"context"
	"log/slog"
	"time"

	billingDomain "github.com/allisson/billingsync/internal/billing/domain"
	"github.com/allisson/billingsync/internal/database"
	apperrors "github.com/allisson/billingsync/internal/errors"
	"github.com/allisson/billingsync/internal/resilience"
)

// profileUseCase implements ProfileUseCase with a locked read-merge-write per user.
type profileUseCase struct {
	txManager database.TxManager
	repo      BillingProfileRepository
	executor  resilience.Executor
	now       func() time.Time
	logger    *slog.Logger
}

// UpsertProfile creates the user's profile or merges update into it.
func (p *profileUseCase) UpsertProfile(
	ctx context.Context,
	userID string,
	update billingDomain.ProfileUpdate,
) error {
	if userID == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "user id is required")
	}
	if update.StripeCustomerID == "" {
		return billingDomain.ErrCustomerIDRequired
	}

	err := p.upsert(ctx, userID, update)
	if apperrors.Is(err, billingDomain.ErrBillingProfileAlreadyExists) {
		// Lost the insert race; the row exists now so merge into it.
		err = p.upsert(ctx, userID, update)
	}
	return err
}

func (p *profileUseCase) upsert(ctx context.Context, userID string, update billingDomain.ProfileUpdate) error {
	return p.executor.Execute(ctx, "upsert_billing_profile", func(ctx context.Context) error {
		return p.txManager.WithTx(ctx, func(ctx context.Context) error {
			now := p.now()

			profile, err := p.repo.GetForUpdate(ctx, userID)
			if err != nil {
				if !apperrors.Is(err, billingDomain.ErrBillingProfileNotFound) {
					return err
				}
				profile = &billingDomain.BillingProfile{UserID: userID, CreatedAt: now}
				update.Apply(profile, now)
				if err := p.repo.Create(ctx, profile); err != nil {
					return err
				}
				p.logger.Info("billing profile created",
					slog.String("user_id", userID),
					slog.String("stripe_customer_id", update.StripeCustomerID),
				)
				return nil
			}

			update.Apply(profile, now)
			return p.repo.Update(ctx, profile)
		})
	})
}

// GetProfile retrieves a billing profile by user ID.
func (p *profileUseCase) GetProfile(ctx context.Context, userID string) (*billingDomain.BillingProfile, error) {
	var profile *billingDomain.BillingProfile
	err := p.executor.Execute(ctx, "get_billing_profile", func(ctx context.Context) error {
		var err error
		profile, err = p.repo.Get(ctx, userID)
		return err
	})
	return profile, err
}

// FindUserIDByCustomerID resolves the user linked to a Stripe customer.
func (p *profileUseCase) FindUserIDByCustomerID(ctx context.Context, customerID string) (string, error) {
	var profile *billingDomain.BillingProfile
	err := p.executor.Execute(ctx, "find_billing_profile_by_customer", func(ctx context.Context) error {
		var err error
		profile, err = p.repo.GetByCustomerID(ctx, customerID)
		return err
	})
	if err != nil {
		return "", err
	}
	return profile.UserID, nil
}

// NewProfileUseCase creates a new ProfileUseCase. A nil executor calls the store directly.
func NewProfileUseCase(
	txManager database.TxManager,
	repo BillingProfileRepository,
	executor resilience.Executor,
	logger *slog.Logger,
) ProfileUseCase {
	if executor == nil {
		executor = resilience.Direct()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &profileUseCase{
		txManager: txManager,
		repo:      repo,
		executor:  executor,
		now:       time.Now,
		logger:    logger,
	}
}
