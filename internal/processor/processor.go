// Package processor is the payment processor boundary: listing recent Stripe events
// for reconciliation and verifying inbound webhook deliveries.
package processor

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/allisson/billingsync/internal/errors"
)

// Watched event types.
const (
	EventTypeCheckoutSessionCompleted = "checkout.session.completed"
	EventTypeInvoicePaid              = "invoice.paid"
)

// WatchedEventTypes lists the event types replayed by reconciliation, in scan order.
var WatchedEventTypes = []string{
	EventTypeCheckoutSessionCompleted,
	EventTypeInvoicePaid,
}

// ErrInvalidSignature indicates a delivery failed signature verification.
var ErrInvalidSignature = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid webhook signature")

// Event is a processor event reduced to the fields the ledger and handlers need.
type Event struct {
	ID       string
	Type     string
	Livemode bool
	// Created is the event creation time in Unix seconds.
	Created int64
	// Data is the raw JSON of data.object.
	Data json.RawMessage
}

// CreatedAt returns Created as a UTC time.
func (e Event) CreatedAt() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

// Client is the payment processor collaborator.
type Client interface {
	// ListRecentEvents returns events of eventType created at or after createdAfterUnix.
	ListRecentEvents(ctx context.Context, eventType string, createdAfterUnix int64) ([]Event, error)
	// ConstructEvent verifies a delivery signature and decodes the event.
	ConstructEvent(payload []byte, signature string) (Event, error)
}
