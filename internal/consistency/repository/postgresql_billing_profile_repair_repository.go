package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	consistencyDomain "github.com/allisson/billingsync/internal/consistency/domain"
	"github.com/allisson/billingsync/internal/database"
	apperrors "github.com/allisson/billingsync/internal/errors"
)

const repairColumns = `id, repair_key, status, source, user_id, stripe_customer_id, stripe_livemode,
	stripe_subscription_id, plan_tier, subscription_price_id, event_id, reference_id, attempts, last_error,
	created_at, updated_at, processing_started_at, resolved_at, escalated_at`

// PostgreSQLBillingProfileRepairRepository implements the repair queue for PostgreSQL databases.
type PostgreSQLBillingProfileRepairRepository struct {
	db *sql.DB
}

// NewPostgreSQLBillingProfileRepairRepository creates a new PostgreSQL repair queue repository.
func NewPostgreSQLBillingProfileRepairRepository(db *sql.DB) *PostgreSQLBillingProfileRepairRepository {
	return &PostgreSQLBillingProfileRepairRepository{db: db}
}

// Create inserts a repair task. Returns ErrRepairAlreadyExists when the repair key is taken.
func (p *PostgreSQLBillingProfileRepairRepository) Create(
	ctx context.Context,
	repair *consistencyDomain.BillingProfileRepair,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO billing_profile_repairs (` + repairColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := querier.ExecContext(
		ctx,
		query,
		repair.ID,
		repair.RepairKey,
		repair.Status,
		repair.Source,
		repair.UserID,
		repair.StripeCustomerID,
		repair.StripeLivemode,
		repair.StripeSubscriptionID,
		repair.PlanTier,
		repair.SubscriptionPriceID,
		repair.EventID,
		repair.ReferenceID,
		repair.Attempts,
		repair.LastError,
		repair.CreatedAt,
		repair.UpdatedAt,
		repair.ProcessingStartedAt,
		repair.ResolvedAt,
		repair.EscalatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return consistencyDomain.ErrRepairAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create billing profile repair")
	}
	return nil
}

// Update overwrites every mutable field of a repair task.
func (p *PostgreSQLBillingProfileRepairRepository) Update(
	ctx context.Context,
	repair *consistencyDomain.BillingProfileRepair,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE billing_profile_repairs
			  SET status = $1, source = $2, user_id = $3, stripe_customer_id = $4, stripe_livemode = $5,
			      stripe_subscription_id = $6, plan_tier = $7, subscription_price_id = $8, event_id = $9,
			      reference_id = $10, attempts = $11, last_error = $12, updated_at = $13,
			      processing_started_at = $14, resolved_at = $15, escalated_at = $16
			  WHERE id = $17`

	_, err := querier.ExecContext(
		ctx,
		query,
		repair.Status,
		repair.Source,
		repair.UserID,
		repair.StripeCustomerID,
		repair.StripeLivemode,
		repair.StripeSubscriptionID,
		repair.PlanTier,
		repair.SubscriptionPriceID,
		repair.EventID,
		repair.ReferenceID,
		repair.Attempts,
		repair.LastError,
		repair.UpdatedAt,
		repair.ProcessingStartedAt,
		repair.ResolvedAt,
		repair.EscalatedAt,
		repair.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update billing profile repair")
	}
	return nil
}

// GetByRepairKey retrieves a repair task by its repair key.
func (p *PostgreSQLBillingProfileRepairRepository) GetByRepairKey(
	ctx context.Context,
	repairKey string,
) (*consistencyDomain.BillingProfileRepair, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + repairColumns + `
			  FROM billing_profile_repairs
			  WHERE repair_key = $1`

	return scanPostgreSQLRepair(querier.QueryRowContext(ctx, query, repairKey))
}

// GetByRepairKeyForUpdate retrieves a repair task and locks its row until the transaction ends.
func (p *PostgreSQLBillingProfileRepairRepository) GetByRepairKeyForUpdate(
	ctx context.Context,
	repairKey string,
) (*consistencyDomain.BillingProfileRepair, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + repairColumns + `
			  FROM billing_profile_repairs
			  WHERE repair_key = $1
			  FOR UPDATE`

	return scanPostgreSQLRepair(querier.QueryRowContext(ctx, query, repairKey))
}

// ListByStatus returns tasks in the given status ordered by updated_at ascending, served by
// the (status, updated_at) index.
func (p *PostgreSQLBillingProfileRepairRepository) ListByStatus(
	ctx context.Context,
	status consistencyDomain.RepairStatus,
	limit int,
) ([]*consistencyDomain.BillingProfileRepair, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + repairColumns + `
			  FROM billing_profile_repairs
			  WHERE status = $1
			  ORDER BY updated_at ASC, id ASC
			  LIMIT $2`

	rows, err := querier.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list billing profile repairs")
	}
	defer func() {
		_ = rows.Close()
	}()

	repairs := make([]*consistencyDomain.BillingProfileRepair, 0)
	for rows.Next() {
		var id uuid.UUID
		repair, err := scanRepair(rows, &id)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan billing profile repair")
		}
		repair.ID = id
		repairs = append(repairs, repair)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate billing profile repairs")
	}
	return repairs, nil
}

func scanPostgreSQLRepair(row *sql.Row) (*consistencyDomain.BillingProfileRepair, error) {
	var id uuid.UUID
	repair, err := scanRepair(row, &id)
	if err != nil {
		if apperrors.Is(err, sql.ErrNoRows) {
			return nil, consistencyDomain.ErrRepairNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get billing profile repair")
	}
	repair.ID = id
	return repair, nil
}

// scanRepair scans a repair row with the id column written to idDest, since PostgreSQL
// returns a UUID and MySQL returns its binary form.
func scanRepair(row rowScanner, idDest any) (*consistencyDomain.BillingProfileRepair, error) {
	var repair consistencyDomain.BillingProfileRepair
	err := row.Scan(
		idDest,
		&repair.RepairKey,
		&repair.Status,
		&repair.Source,
		&repair.UserID,
		&repair.StripeCustomerID,
		&repair.StripeLivemode,
		&repair.StripeSubscriptionID,
		&repair.PlanTier,
		&repair.SubscriptionPriceID,
		&repair.EventID,
		&repair.ReferenceID,
		&repair.Attempts,
		&repair.LastError,
		&repair.CreatedAt,
		&repair.UpdatedAt,
		&repair.ProcessingStartedAt,
		&repair.ResolvedAt,
		&repair.EscalatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &repair, nil
}
