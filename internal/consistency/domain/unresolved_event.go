// Package domain defines the consistency records that keep billing state repairable:
// the unresolved payment event tally, a monitoring signal, and the durable billing
// profile repair queue drained by the repair worker.
package domain

import (
	"time"

	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/billingsync/internal/validation"
)

// UnresolvedEventStatus is the state of an unresolved payment event.
type UnresolvedEventStatus string

const (
	UnresolvedEventStatusOpen     UnresolvedEventStatus = "open"
	UnresolvedEventStatusResolved UnresolvedEventStatus = "resolved"
)

// UnresolvedPaymentEvent tallies sightings of a payment event that could not be applied
// (e.g. no user could be matched to the Stripe customer).
type UnresolvedPaymentEvent struct {
	EventID         string
	Status          UnresolvedEventStatus
	EventType       string
	Reason          string
	OccurrenceCount int
	FirstSeenAt     time.Time
	LastSeenAt      time.Time
	StripeObjectID  *string
	UserID          *string
	Metadata        map[string]string
}

// RecordUnresolvedEventInput describes one sighting of an unresolved payment event.
type RecordUnresolvedEventInput struct {
	EventID        string
	EventType      string
	Reason         string
	StripeObjectID *string
	UserID         *string
	Metadata       map[string]string
}

// Validate checks that the sighting identifies its event.
func (i RecordUnresolvedEventInput) Validate() error {
	err := validation.ValidateStruct(&i,
		validation.Field(&i.EventID, validation.Required, customValidation.NoWhitespace, validation.Length(1, 255)),
		validation.Field(&i.EventType, validation.Required, validation.Length(1, 255)),
		validation.Field(&i.Reason, validation.Required, customValidation.NotBlank),
	)
	return customValidation.WrapValidationError(err)
}

// UnresolvedSummary aggregates open unresolved events.
type UnresolvedSummary struct {
	OpenCount int64
	// OldestOpenAge is nil when nothing is open or the summary could not be read.
	OldestOpenAge *time.Duration
}
