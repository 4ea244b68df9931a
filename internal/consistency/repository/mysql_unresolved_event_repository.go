package repository

import (
	"context"
	"database/sql"
	"time"

	consistencyDomain "github.com/allisson/billingsync/internal/consistency/domain"
	"github.com/allisson/billingsync/internal/database"
	apperrors "github.com/allisson/billingsync/internal/errors"
)

// MySQLUnresolvedEventRepository implements the unresolved event tally for MySQL databases.
type MySQLUnresolvedEventRepository struct {
	db *sql.DB
}

// NewMySQLUnresolvedEventRepository creates a new MySQL unresolved event repository.
func NewMySQLUnresolvedEventRepository(db *sql.DB) *MySQLUnresolvedEventRepository {
	return &MySQLUnresolvedEventRepository{db: db}
}

// Upsert records a sighting in a single statement, see the PostgreSQL implementation.
func (m *MySQLUnresolvedEventRepository) Upsert(
	ctx context.Context,
	event *consistencyDomain.UnresolvedPaymentEvent,
) error {
	querier := database.GetTx(ctx, m.db)

	metadata, err := marshalMetadata(event.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO payment_unresolved_events (` + unresolvedEventColumns + `)
			  VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			    status = VALUES(status),
			    event_type = VALUES(event_type),
			    reason = VALUES(reason),
			    occurrence_count = occurrence_count + 1,
			    last_seen_at = VALUES(last_seen_at),
			    stripe_object_id = COALESCE(VALUES(stripe_object_id), stripe_object_id),
			    user_id = COALESCE(VALUES(user_id), user_id),
			    metadata = COALESCE(VALUES(metadata), metadata)`

	_, err = querier.ExecContext(
		ctx,
		query,
		event.EventID,
		consistencyDomain.UnresolvedEventStatusOpen,
		event.EventType,
		event.Reason,
		event.LastSeenAt,
		event.LastSeenAt,
		event.StripeObjectID,
		event.UserID,
		metadata,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to record unresolved payment event")
	}
	return nil
}

// Get retrieves an unresolved event by event ID.
func (m *MySQLUnresolvedEventRepository) Get(
	ctx context.Context,
	eventID string,
) (*consistencyDomain.UnresolvedPaymentEvent, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + unresolvedEventColumns + `
			  FROM payment_unresolved_events
			  WHERE event_id = ?`

	event, err := scanUnresolvedEvent(querier.QueryRowContext(ctx, query, eventID))
	if err != nil {
		if apperrors.Is(err, sql.ErrNoRows) {
			return nil, consistencyDomain.ErrUnresolvedEventNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get unresolved payment event")
	}
	return event, nil
}

// ListOpen returns open events, oldest first.
func (m *MySQLUnresolvedEventRepository) ListOpen(
	ctx context.Context,
	limit int,
) ([]*consistencyDomain.UnresolvedPaymentEvent, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + unresolvedEventColumns + `
			  FROM payment_unresolved_events
			  WHERE status = ?
			  ORDER BY first_seen_at ASC, event_id ASC
			  LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, consistencyDomain.UnresolvedEventStatusOpen, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list unresolved payment events")
	}
	defer func() {
		_ = rows.Close()
	}()

	return collectUnresolvedEvents(rows)
}

// GetSummary counts open events and measures the age of the oldest one.
func (m *MySQLUnresolvedEventRepository) GetSummary(
	ctx context.Context,
	now time.Time,
) (*consistencyDomain.UnresolvedSummary, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT COUNT(*), MIN(first_seen_at)
			  FROM payment_unresolved_events
			  WHERE status = ?`

	return scanUnresolvedSummary(
		querier.QueryRowContext(ctx, query, consistencyDomain.UnresolvedEventStatusOpen),
		now,
	)
}
