package domain

import (
	"github.com/allisson/billingsync/internal/errors"
)

// Webhook-specific error definitions.
var (
	// ErrWebhookEventNotFound indicates no ledger record exists for the event ID.
	ErrWebhookEventNotFound = errors.Wrap(errors.ErrNotFound, "webhook event not found")

	// ErrWebhookEventAlreadyExists indicates another claimant inserted the ledger record first.
	ErrWebhookEventAlreadyExists = errors.Wrap(errors.ErrConflict, "webhook event already exists")

	// ErrEventIDRequired indicates an empty event ID was passed to the ledger.
	ErrEventIDRequired = errors.Wrap(errors.ErrInvalidInput, "event id is required")
)
