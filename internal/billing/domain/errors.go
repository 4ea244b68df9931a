package domain

import (
	"github.com/allisson/billingsync/internal/errors"
)

// Billing-specific error definitions.
var (
	// ErrBillingProfileNotFound indicates no billing profile exists for the user or customer.
	ErrBillingProfileNotFound = errors.Wrap(errors.ErrNotFound, "billing profile not found")

	// ErrBillingProfileAlreadyExists indicates a concurrent writer created the profile first.
	ErrBillingProfileAlreadyExists = errors.Wrap(errors.ErrConflict, "billing profile already exists")

	// ErrInvalidPayload indicates a webhook data object could not be decoded.
	ErrInvalidPayload = errors.Wrap(errors.ErrInvalidInput, "invalid stripe object payload")

	// ErrCustomerIDRequired indicates a profile write without a Stripe customer.
	ErrCustomerIDRequired = errors.Wrap(errors.ErrInvalidInput, "stripe customer id is required")
)
