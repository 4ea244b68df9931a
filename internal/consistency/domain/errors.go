package domain

import (
	"github.com/allisson/billingsync/internal/errors"
)

// Consistency-specific error definitions.
var (
	// ErrRepairNotFound indicates no billing profile repair exists for the repair key.
	ErrRepairNotFound = errors.Wrap(errors.ErrNotFound, "billing profile repair not found")

	// ErrRepairAlreadyExists indicates another enqueue inserted the repair key first.
	ErrRepairAlreadyExists = errors.Wrap(errors.ErrConflict, "billing profile repair already exists")

	// ErrRepairNotEscalated indicates a manual resolution was requested for a task that
	// is still owned by the repair worker.
	ErrRepairNotEscalated = errors.Wrap(errors.ErrConflict, "billing profile repair is not escalated")

	// ErrUnresolvedEventNotFound indicates no unresolved record exists for the event ID.
	ErrUnresolvedEventNotFound = errors.Wrap(errors.ErrNotFound, "unresolved payment event not found")

	// ErrUnresolvedEventAlreadyExists indicates a concurrent first sighting of the event ID.
	ErrUnresolvedEventAlreadyExists = errors.Wrap(errors.ErrConflict, "unresolved payment event already exists")
)
