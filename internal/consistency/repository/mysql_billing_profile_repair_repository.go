package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	consistencyDomain "github.com/allisson/billingsync/internal/consistency/domain"
	"github.com/allisson/billingsync/internal/database"
	apperrors "github.com/allisson/billingsync/internal/errors"
)

// MySQLBillingProfileRepairRepository implements the repair queue for MySQL databases.
// Repair IDs are stored as BINARY(16).
type MySQLBillingProfileRepairRepository struct {
	db *sql.DB
}

// NewMySQLBillingProfileRepairRepository creates a new MySQL repair queue repository.
func NewMySQLBillingProfileRepairRepository(db *sql.DB) *MySQLBillingProfileRepairRepository {
	return &MySQLBillingProfileRepairRepository{db: db}
}

// Create inserts a repair task. Returns ErrRepairAlreadyExists when the repair key is taken.
func (m *MySQLBillingProfileRepairRepository) Create(
	ctx context.Context,
	repair *consistencyDomain.BillingProfileRepair,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO billing_profile_repairs (` + repairColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	id, err := repair.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal billing profile repair id")
	}

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
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
		if database.IsUniqueViolation(err) || database.IsLockContention(err) {
			return consistencyDomain.ErrRepairAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create billing profile repair")
	}
	return nil
}

// Update overwrites every mutable field of a repair task.
func (m *MySQLBillingProfileRepairRepository) Update(
	ctx context.Context,
	repair *consistencyDomain.BillingProfileRepair,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE billing_profile_repairs
			  SET status = ?, source = ?, user_id = ?, stripe_customer_id = ?, stripe_livemode = ?,
			      stripe_subscription_id = ?, plan_tier = ?, subscription_price_id = ?, event_id = ?,
			      reference_id = ?, attempts = ?, last_error = ?, updated_at = ?,
			      processing_started_at = ?, resolved_at = ?, escalated_at = ?
			  WHERE id = ?`

	id, err := repair.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal billing profile repair id")
	}

	_, err = querier.ExecContext(
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
		id,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update billing profile repair")
	}
	return nil
}

// GetByRepairKey retrieves a repair task by its repair key.
func (m *MySQLBillingProfileRepairRepository) GetByRepairKey(
	ctx context.Context,
	repairKey string,
) (*consistencyDomain.BillingProfileRepair, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + repairColumns + `
			  FROM billing_profile_repairs
			  WHERE repair_key = ?`

	return scanMySQLRepair(querier.QueryRowContext(ctx, query, repairKey))
}

// GetByRepairKeyForUpdate retrieves a repair task and locks its row until the transaction ends.
func (m *MySQLBillingProfileRepairRepository) GetByRepairKeyForUpdate(
	ctx context.Context,
	repairKey string,
) (*consistencyDomain.BillingProfileRepair, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + repairColumns + `
			  FROM billing_profile_repairs
			  WHERE repair_key = ?
			  FOR UPDATE`

	return scanMySQLRepair(querier.QueryRowContext(ctx, query, repairKey))
}

// ListByStatus returns tasks in the given status ordered by updated_at ascending.
func (m *MySQLBillingProfileRepairRepository) ListByStatus(
	ctx context.Context,
	status consistencyDomain.RepairStatus,
	limit int,
) ([]*consistencyDomain.BillingProfileRepair, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + repairColumns + `
			  FROM billing_profile_repairs
			  WHERE status = ?
			  ORDER BY updated_at ASC, id ASC
			  LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list billing profile repairs")
	}
	defer func() {
		_ = rows.Close()
	}()

	repairs := make([]*consistencyDomain.BillingProfileRepair, 0)
	for rows.Next() {
		var id []byte
		repair, err := scanRepair(rows, &id)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan billing profile repair")
		}
		if err := repair.ID.UnmarshalBinary(id); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal billing profile repair id")
		}
		repairs = append(repairs, repair)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate billing profile repairs")
	}
	return repairs, nil
}

func scanMySQLRepair(row *sql.Row) (*consistencyDomain.BillingProfileRepair, error) {
	var id []byte
	repair, err := scanRepair(row, &id)
	if err != nil {
		if apperrors.Is(err, sql.ErrNoRows) {
			return nil, consistencyDomain.ErrRepairNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get billing profile repair")
	}

	var repairID uuid.UUID
	if err := repairID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal billing profile repair id")
	}
	repair.ID = repairID
	return repair, nil
}
