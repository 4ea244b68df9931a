// Package repository implements persistence for the unresolved payment event tally and
// the billing profile repair queue on PostgreSQL and MySQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	consistencyDomain "github.com/allisson/billingsync/internal/consistency/domain"
	"github.com/allisson/billingsync/internal/database"
	apperrors "github.com/allisson/billingsync/internal/errors"
)

const unresolvedEventColumns = `event_id, status, event_type, reason, occurrence_count, first_seen_at,
	last_seen_at, stripe_object_id, user_id, metadata`

// PostgreSQLUnresolvedEventRepository implements the unresolved event tally for PostgreSQL databases.
type PostgreSQLUnresolvedEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLUnresolvedEventRepository creates a new PostgreSQL unresolved event repository.
func NewPostgreSQLUnresolvedEventRepository(db *sql.DB) *PostgreSQLUnresolvedEventRepository {
	return &PostgreSQLUnresolvedEventRepository{db: db}
}

// Upsert records a sighting in a single statement. The first sighting inserts an open
// record with one occurrence; later sightings increment the count, refresh last_seen_at
// and reopen the record while first_seen_at is preserved.
func (p *PostgreSQLUnresolvedEventRepository) Upsert(
	ctx context.Context,
	event *consistencyDomain.UnresolvedPaymentEvent,
) error {
	querier := database.GetTx(ctx, p.db)

	metadata, err := marshalMetadata(event.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO payment_unresolved_events (` + unresolvedEventColumns + `)
			  VALUES ($1, $2, $3, $4, 1, $5, $5, $6, $7, $8)
			  ON CONFLICT (event_id) DO UPDATE SET
			    status = EXCLUDED.status,
			    event_type = EXCLUDED.event_type,
			    reason = EXCLUDED.reason,
			    occurrence_count = payment_unresolved_events.occurrence_count + 1,
			    last_seen_at = EXCLUDED.last_seen_at,
			    stripe_object_id = COALESCE(EXCLUDED.stripe_object_id, payment_unresolved_events.stripe_object_id),
			    user_id = COALESCE(EXCLUDED.user_id, payment_unresolved_events.user_id),
			    metadata = COALESCE(EXCLUDED.metadata, payment_unresolved_events.metadata)`

	_, err = querier.ExecContext(
		ctx,
		query,
		event.EventID,
		consistencyDomain.UnresolvedEventStatusOpen,
		event.EventType,
		event.Reason,
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
func (p *PostgreSQLUnresolvedEventRepository) Get(
	ctx context.Context,
	eventID string,
) (*consistencyDomain.UnresolvedPaymentEvent, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + unresolvedEventColumns + `
			  FROM payment_unresolved_events
			  WHERE event_id = $1`

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
func (p *PostgreSQLUnresolvedEventRepository) ListOpen(
	ctx context.Context,
	limit int,
) ([]*consistencyDomain.UnresolvedPaymentEvent, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + unresolvedEventColumns + `
			  FROM payment_unresolved_events
			  WHERE status = $1
			  ORDER BY first_seen_at ASC, event_id ASC
			  LIMIT $2`

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
func (p *PostgreSQLUnresolvedEventRepository) GetSummary(
	ctx context.Context,
	now time.Time,
) (*consistencyDomain.UnresolvedSummary, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT COUNT(*), MIN(first_seen_at)
			  FROM payment_unresolved_events
			  WHERE status = $1`

	return scanUnresolvedSummary(
		querier.QueryRowContext(ctx, query, consistencyDomain.UnresolvedEventStatusOpen),
		now,
	)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// marshalMetadata encodes metadata as JSON text; empty metadata is stored as NULL.
func marshalMetadata(metadata map[string]string) (sql.NullString, error) {
	if len(metadata) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, apperrors.Wrap(err, "failed to marshal unresolved event metadata")
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func scanUnresolvedEvent(row rowScanner) (*consistencyDomain.UnresolvedPaymentEvent, error) {
	var event consistencyDomain.UnresolvedPaymentEvent
	var metadata []byte

	err := row.Scan(
		&event.EventID,
		&event.Status,
		&event.EventType,
		&event.Reason,
		&event.OccurrenceCount,
		&event.FirstSeenAt,
		&event.LastSeenAt,
		&event.StripeObjectID,
		&event.UserID,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal unresolved event metadata")
		}
	}
	return &event, nil
}

func collectUnresolvedEvents(rows *sql.Rows) ([]*consistencyDomain.UnresolvedPaymentEvent, error) {
	events := make([]*consistencyDomain.UnresolvedPaymentEvent, 0)
	for rows.Next() {
		event, err := scanUnresolvedEvent(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan unresolved payment event")
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate unresolved payment events")
	}
	return events, nil
}

func scanUnresolvedSummary(row *sql.Row, now time.Time) (*consistencyDomain.UnresolvedSummary, error) {
	var summary consistencyDomain.UnresolvedSummary
	var oldest sql.NullTime
	if err := row.Scan(&summary.OpenCount, &oldest); err != nil {
		return nil, apperrors.Wrap(err, "failed to get unresolved payment event summary")
	}
	if oldest.Valid {
		age := now.Sub(oldest.Time)
		summary.OldestOpenAge = &age
	}
	return &summary, nil
}
