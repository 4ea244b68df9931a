// Package repository implements billing profile persistence for PostgreSQL and MySQL.
package repository

import (
	"context"
	"database/sql"
	"errors"

	billingDomain "github.com/allisson/billingsync/internal/billing/domain"
	"github.com/allisson/billingsync/internal/database"
	apperrors "github.com/allisson/billingsync/internal/errors"
)

const profileColumns = `user_id, stripe_customer_id, stripe_livemode, stripe_subscription_id, plan_tier,
	subscription_price_id, created_at, updated_at`

// PostgreSQLBillingProfileRepository implements billing profile persistence for PostgreSQL databases.
type PostgreSQLBillingProfileRepository struct {
	db *sql.DB
}

// NewPostgreSQLBillingProfileRepository creates a new PostgreSQL billing profile repository.
func NewPostgreSQLBillingProfileRepository(db *sql.DB) *PostgreSQLBillingProfileRepository {
	return &PostgreSQLBillingProfileRepository{db: db}
}

// Get retrieves a billing profile by user ID.
func (p *PostgreSQLBillingProfileRepository) Get(
	ctx context.Context,
	userID string,
) (*billingDomain.BillingProfile, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + profileColumns + ` FROM billing_profiles WHERE user_id = $1`

	return scanProfile(querier.QueryRowContext(ctx, query, userID))
}

// GetForUpdate retrieves a billing profile and locks its row until the transaction ends.
func (p *PostgreSQLBillingProfileRepository) GetForUpdate(
	ctx context.Context,
	userID string,
) (*billingDomain.BillingProfile, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + profileColumns + ` FROM billing_profiles WHERE user_id = $1 FOR UPDATE`

	return scanProfile(querier.QueryRowContext(ctx, query, userID))
}

// GetByCustomerID retrieves the most recently updated profile linked to a Stripe customer.
func (p *PostgreSQLBillingProfileRepository) GetByCustomerID(
	ctx context.Context,
	customerID string,
) (*billingDomain.BillingProfile, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + profileColumns + `
			  FROM billing_profiles
			  WHERE stripe_customer_id = $1
			  ORDER BY updated_at DESC
			  LIMIT 1`

	return scanProfile(querier.QueryRowContext(ctx, query, customerID))
}

// Create inserts a billing profile. Returns ErrBillingProfileAlreadyExists when the user
// already has one.
func (p *PostgreSQLBillingProfileRepository) Create(
	ctx context.Context,
	profile *billingDomain.BillingProfile,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO billing_profiles (` + profileColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := querier.ExecContext(
		ctx,
		query,
		profile.UserID,
		profile.StripeCustomerID,
		profile.StripeLivemode,
		profile.StripeSubscriptionID,
		profile.PlanTier,
		profile.SubscriptionPriceID,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return billingDomain.ErrBillingProfileAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create billing profile")
	}
	return nil
}

// Update overwrites the mutable fields of a billing profile.
func (p *PostgreSQLBillingProfileRepository) Update(
	ctx context.Context,
	profile *billingDomain.BillingProfile,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE billing_profiles
			  SET stripe_customer_id = $1, stripe_livemode = $2, stripe_subscription_id = $3, plan_tier = $4,
			      subscription_price_id = $5, updated_at = $6
			  WHERE user_id = $7`

	_, err := querier.ExecContext(
		ctx,
		query,
		profile.StripeCustomerID,
		profile.StripeLivemode,
		profile.StripeSubscriptionID,
		profile.PlanTier,
		profile.SubscriptionPriceID,
		profile.UpdatedAt,
		profile.UserID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update billing profile")
	}
	return nil
}

func scanProfile(row *sql.Row) (*billingDomain.BillingProfile, error) {
	var profile billingDomain.BillingProfile
	err := row.Scan(
		&profile.UserID,
		&profile.StripeCustomerID,
		&profile.StripeLivemode,
		&profile.StripeSubscriptionID,
		&profile.PlanTier,
		&profile.SubscriptionPriceID,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, billingDomain.ErrBillingProfileNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get billing profile")
	}
	return &profile, nil
}
