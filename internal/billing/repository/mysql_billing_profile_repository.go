package repository

import (
	"context"
	"database/sql"

	billingDomain "github.com/allisson/billingsync/internal/billing/domain"
	"github.com/allisson/billingsync/internal/database"
	apperrors "github.com/allisson/billingsync/internal/errors"
)

// MySQLBillingProfileRepository implements billing profile persistence for MySQL databases.
type MySQLBillingProfileRepository struct {
	db *sql.DB
}

// NewMySQLBillingProfileRepository creates a new MySQL billing profile repository.
func NewMySQLBillingProfileRepository(db *sql.DB) *MySQLBillingProfileRepository {
	return &MySQLBillingProfileRepository{db: db}
}

// Get retrieves a billing profile by user ID.
func (m *MySQLBillingProfileRepository) Get(
	ctx context.Context,
	userID string,
) (*billingDomain.BillingProfile, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + profileColumns + ` FROM billing_profiles WHERE user_id = ?`

	return scanProfile(querier.QueryRowContext(ctx, query, userID))
}

// GetForUpdate retrieves a billing profile and locks its row until the transaction ends.
func (m *MySQLBillingProfileRepository) GetForUpdate(
	ctx context.Context,
	userID string,
) (*billingDomain.BillingProfile, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + profileColumns + ` FROM billing_profiles WHERE user_id = ? FOR UPDATE`

	return scanProfile(querier.QueryRowContext(ctx, query, userID))
}

// GetByCustomerID retrieves the most recently updated profile linked to a Stripe customer.
func (m *MySQLBillingProfileRepository) GetByCustomerID(
	ctx context.Context,
	customerID string,
) (*billingDomain.BillingProfile, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + profileColumns + `
			  FROM billing_profiles
			  WHERE stripe_customer_id = ?
			  ORDER BY updated_at DESC
			  LIMIT 1`

	return scanProfile(querier.QueryRowContext(ctx, query, customerID))
}

// Create inserts a billing profile. InnoDB reports two transactions inserting the same
// missing user as a deadlock, which is mapped to ErrBillingProfileAlreadyExists.
func (m *MySQLBillingProfileRepository) Create(
	ctx context.Context,
	profile *billingDomain.BillingProfile,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO billing_profiles (` + profileColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

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
		if database.IsUniqueViolation(err) || database.IsLockContention(err) {
			return billingDomain.ErrBillingProfileAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create billing profile")
	}
	return nil
}

// Update overwrites the mutable fields of a billing profile.
func (m *MySQLBillingProfileRepository) Update(
	ctx context.Context,
	profile *billingDomain.BillingProfile,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE billing_profiles
			  SET stripe_customer_id = ?, stripe_livemode = ?, stripe_subscription_id = ?, plan_tier = ?,
			      subscription_price_id = ?, updated_at = ?
			  WHERE user_id = ?`

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
