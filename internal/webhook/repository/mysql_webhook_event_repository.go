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

const mysqlWebhookEventColumns = `event_id, status, event_type, livemode, attempt, last_error, created_at, updated_at`

// MySQLWebhookEventRepository implements ledger persistence for MySQL databases.
type MySQLWebhookEventRepository struct {
	db *sql.DB
}

// NewMySQLWebhookEventRepository creates a new MySQL webhook ledger repository.
func NewMySQLWebhookEventRepository(db *sql.DB) *MySQLWebhookEventRepository {
	return &MySQLWebhookEventRepository{db: db}
}

// Get retrieves a ledger record by event ID.
func (m *MySQLWebhookEventRepository) Get(
	ctx context.Context,
	eventID string,
) (*webhookDomain.WebhookEvent, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + mysqlWebhookEventColumns + `
			  FROM stripe_webhook_events
			  WHERE event_id = ?`

	return scanMySQLWebhookEvent(querier.QueryRowContext(ctx, query, eventID))
}

// GetForUpdate retrieves a ledger record and locks its row until the transaction ends.
func (m *MySQLWebhookEventRepository) GetForUpdate(
	ctx context.Context,
	eventID string,
) (*webhookDomain.WebhookEvent, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + mysqlWebhookEventColumns + `
			  FROM stripe_webhook_events
			  WHERE event_id = ?
			  FOR UPDATE`

	return scanMySQLWebhookEvent(querier.QueryRowContext(ctx, query, eventID))
}

// Create inserts a ledger record. Returns ErrWebhookEventAlreadyExists when another
// claimant inserted the same event ID first. InnoDB reports two transactions racing
// on the same missing key as a deadlock, which is mapped to the same error.
func (m *MySQLWebhookEventRepository) Create(
	ctx context.Context,
	event *webhookDomain.WebhookEvent,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO stripe_webhook_events (` + mysqlWebhookEventColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE event_id = event_id`

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
		if database.IsUniqueViolation(err) || database.IsLockContention(err) {
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
func (m *MySQLWebhookEventRepository) Update(
	ctx context.Context,
	event *webhookDomain.WebhookEvent,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE stripe_webhook_events
			  SET status = ?, event_type = ?, livemode = ?, attempt = ?, last_error = ?, updated_at = ?
			  WHERE event_id = ?`

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
func (m *MySQLWebhookEventRepository) UpsertProcessed(
	ctx context.Context,
	eventID string,
	now time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO stripe_webhook_events (` + mysqlWebhookEventColumns + `)
			  VALUES (?, ?, '', FALSE, 1, NULL, ?, ?)
			  ON DUPLICATE KEY UPDATE status = VALUES(status), last_error = NULL, updated_at = VALUES(updated_at)`

	_, err := querier.ExecContext(ctx, query, eventID, webhookDomain.WebhookEventStatusProcessed, now, now)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark webhook event processed")
	}
	return nil
}

// UpsertFailed moves a record to failed with the handler error. Processed records are
// left untouched; status is assigned last because MySQL evaluates the assignments in order.
func (m *MySQLWebhookEventRepository) UpsertFailed(
	ctx context.Context,
	eventID string,
	lastError string,
	now time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO stripe_webhook_events (` + mysqlWebhookEventColumns + `)
			  VALUES (?, ?, '', FALSE, 1, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			    last_error = IF(status = ?, last_error, VALUES(last_error)),
			    updated_at = IF(status = ?, updated_at, VALUES(updated_at)),
			    status = IF(status = ?, status, VALUES(status))`

	processed := webhookDomain.WebhookEventStatusProcessed
	_, err := querier.ExecContext(
		ctx,
		query,
		eventID,
		webhookDomain.WebhookEventStatusFailed,
		lastError,
		now,
		now,
		processed,
		processed,
		processed,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark webhook event failed")
	}
	return nil
}

// GetBacklogSummary aggregates records that are not processed.
func (m *MySQLWebhookEventRepository) GetBacklogSummary(
	ctx context.Context,
	now time.Time,
) (*webhookDomain.BacklogSummary, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT
			    COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			    COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			    COUNT(*),
			    MIN(created_at)
			  FROM stripe_webhook_events
			  WHERE status <> ?`

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

func scanMySQLWebhookEvent(row *sql.Row) (*webhookDomain.WebhookEvent, error) {
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
