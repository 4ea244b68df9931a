// Package repository implements persistence for the Stripe webhook ledger.
// Repositories support both PostgreSQL and MySQL and pick up the caller's transaction
// from the context, so the claim read-modify-write runs as one unit.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/allisson/billingsync/internal/database"
	apperrors "github.com/allisson/billingsync/internal/errors"
	webhookDomain "github.com/allisson/billingsync/internal/webhook/domain"
)

const postgresWebhookEventColumns = `event_id, status, event_type, livemode, attempt, last_error, created_at, updated_at`

// PostgreSQLWebhookEventRepository implements ledger persistence for PostgreSQL databases.
type PostgreSQLWebhookEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLWebhookEventRepository creates a new PostgreSQL webhook ledger repository.
func NewPostgreSQLWebhookEventRepository(db *sql.DB) *PostgreSQLWebhookEventRepository {
	return &PostgreSQLWebhookEventRepository{db: db}
}

// Get retrieves a ledger record by event ID.
func (p *PostgreSQLWebhookEventRepository) Get(
	ctx context.Context,
	eventID string,
) (*webhookDomain.WebhookEvent, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + postgresWebhookEventColumns + `
			  FROM stripe_webhook_events
			  WHERE event_id = $1`

	return scanPostgreSQLWebhookEvent(querier.QueryRowContext(ctx, query, eventID))
}

// GetForUpdate retrieves a ledger record and locks its row until the transaction ends.
func (p *PostgreSQLWebhookEventRepository) GetForUpdate(
	ctx context.Context,
	eventID string,
) (*webhookDomain.WebhookEvent, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + postgresWebhookEventColumns + `
			  FROM stripe_webhook_events
			  WHERE event_id = $1
			  FOR UPDATE`

	return scanPostgreSQLWebhookEvent(querier.QueryRowContext(ctx, query, eventID))
}

// Create inserts a ledger record. Returns ErrWebhookEventAlreadyExists when another
// claimant inserted the same event ID first.
func (p *PostgreSQLWebhookEventRepository) Create(
	ctx context.Context,
	event *webhookDomain.WebhookEvent,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO stripe_webhook_events (` + postgresWebhookEventColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  ON CONFLICT (event_id) DO NOTHING`

	result, err := querier.ExecContext(
		ctx,
		query,
		event.EventID,
		event.Status,
		event.EventType,
		event.Livemode,
		event.Attempt,
		event.LastError,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return webhookDomain.ErrWebhookEventAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create webhook event")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read webhook event insert result")
	}
	if rows == 0 {
		return webhookDomain.ErrWebhookEventAlreadyExists
	}
	return nil
}

// Update overwrites the mutable fields of a ledger record.
func (p *PostgreSQLWebhookEventRepository) Update(
	ctx context.Context,
	event *webhookDomain.WebhookEvent,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE stripe_webhook_events
			  SET status = $1, event_type = $2, livemode = $3, attempt = $4, last_error = $5, updated_at = $6
			  WHERE event_id = $7`

	_, err := querier.ExecContext(
		ctx,
		query,
		event.Status,
		event.EventType,
		event.Livemode,
		event.Attempt,
		event.LastError,
		event.UpdatedAt,
		event.EventID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update webhook event")
	}
	return nil
}

// UpsertProcessed moves a record to processed, creating it when missing.
func (p *PostgreSQLWebhookEventRepository) UpsertProcessed(
	ctx context.Context,
	eventID string,
	now time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO stripe_webhook_events (` + postgresWebhookEventColumns + `)
			  VALUES ($1, $2, '', FALSE, 1, NULL, $3, $3)
			  ON CONFLICT (event_id) DO UPDATE
			  SET status = EXCLUDED.status, last_error = NULL, updated_at = EXCLUDED.updated_at`

	_, err := querier.ExecContext(ctx, query, eventID, webhookDomain.WebhookEventStatusProcessed, now)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark webhook event processed")
	}
	return nil
}

// UpsertFailed moves a record to failed with the handler error. Processed records are
// left untouched.
func (p *PostgreSQLWebhookEventRepository) UpsertFailed(
	ctx context.Context,
	eventID string,
	lastError string,
	now time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO stripe_webhook_events (` + postgresWebhookEventColumns + `)
			  VALUES ($1, $2, '', FALSE, 1, $3, $4, $4)
			  ON CONFLICT (event_id) DO UPDATE
			  SET status = EXCLUDED.status, last_error = EXCLUDED.last_error, updated_at = EXCLUDED.updated_at
			  WHERE stripe_webhook_events.status <> $5`

	_, err := querier.ExecContext(
		ctx,
		query,
		eventID,
		webhookDomain.WebhookEventStatusFailed,
		lastError,
		now,
		webhookDomain.WebhookEventStatusProcessed,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark webhook event failed")
	}
	return nil
}

// GetBacklogSummary aggregates records that are not processed.
func (p *PostgreSQLWebhookEventRepository) GetBacklogSummary(
	ctx context.Context,
	now time.Time,
) (*webhookDomain.BacklogSummary, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT
			    COUNT(*) FILTER (WHERE status = $1),
			    COUNT(*) FILTER (WHERE status = $2),
			    COUNT(*),
			    MIN(created_at)
			  FROM stripe_webhook_events
			  WHERE status <> $3`

	var summary webhookDomain.BacklogSummary
	var oldest sql.NullTime
	err := querier.QueryRowContext(
		ctx,
		query,
		webhookDomain.WebhookEventStatusProcessing,
		webhookDomain.WebhookEventStatusFailed,
		webhookDomain.WebhookEventStatusProcessed,
	).Scan(&summary.ProcessingCount, &summary.FailedCount, &summary.UnprocessedCount, &oldest)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get webhook backlog summary")
	}

	if oldest.Valid {
		age := now.Sub(oldest.Time)
		summary.OldestUnprocessedAge = &age
	}
	return &summary, nil
}

func scanPostgreSQLWebhookEvent(row *sql.Row) (*webhookDomain.WebhookEvent, error) {
	var event webhookDomain.WebhookEvent
	err := row.Scan(
		&event.EventID,
		&event.Status,
		&event.EventType,
		&event.Livemode,
		&event.Attempt,
		&event.LastError,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, webhookDomain.ErrWebhookEventNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get webhook event")
	}
	return &event, nil
}
