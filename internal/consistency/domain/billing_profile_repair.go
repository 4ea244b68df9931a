package domain

import (
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/billingsync/internal/validation"
)

// RepairStatus is the lifecycle state of a billing profile repair task.
type RepairStatus string

const (
	RepairStatusPending    RepairStatus = "pending"
	RepairStatusProcessing RepairStatus = "processing"
	RepairStatusResolved   RepairStatus = "resolved"
	RepairStatusEscalated  RepairStatus = "escalated"
)

// RepairSource names the webhook family that produced a repair.
type RepairSource string

const (
	RepairSourceCheckout RepairSource = "checkout"
	RepairSourceInvoice  RepairSource = "invoice"
)

// IsValid reports whether the status is known.
func (s RepairStatus) IsValid() bool {
	switch s {
	case RepairStatusPending, RepairStatusProcessing, RepairStatusResolved, RepairStatusEscalated:
		return true
	}
	return false
}

// BillingProfileRepair is a queued billing profile write that failed after its webhook
// was acknowledged. RepairKey is derived from the domain reference so re-enqueuing
// the same logical repair refreshes one record.
type BillingProfileRepair struct {
	ID                   uuid.UUID
	RepairKey            string
	Status               RepairStatus
	Source               RepairSource
	UserID               string
	StripeCustomerID     string
	StripeLivemode       bool
	StripeSubscriptionID *string
	PlanTier             *string
	SubscriptionPriceID  *string
	EventID              *string
	// ReferenceID is a human-auditable correlation string such as "sub_42:in_7".
	ReferenceID *string
	// Attempts counts failed apply cycles and never decreases.
	Attempts            int
	LastError           *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ProcessingStartedAt *time.Time
	ResolvedAt          *time.Time
	EscalatedAt         *time.Time
}

// IsTerminal reports whether the worker will never touch the task again.
func (r *BillingProfileRepair) IsTerminal() bool {
	return r.Status == RepairStatusResolved || r.Status == RepairStatusEscalated
}

// EnqueueBillingProfileRepairInput describes a billing profile write to repair.
type EnqueueBillingProfileRepairInput struct {
	RepairKey            string
	Source               RepairSource
	UserID               string
	StripeCustomerID     string
	StripeLivemode       bool
	StripeSubscriptionID *string
	PlanTier             *string
	SubscriptionPriceID  *string
	EventID              *string
	ReferenceID          *string
}

// Validate checks the repair key, source and identity fields.
func (i EnqueueBillingProfileRepairInput) Validate() error {
	err := validation.ValidateStruct(&i,
		validation.Field(&i.RepairKey, validation.Required, customValidation.NoWhitespace, validation.Length(1, 255)),
		validation.Field(&i.Source, validation.Required, validation.In(RepairSourceCheckout, RepairSourceInvoice)),
		validation.Field(&i.UserID, validation.Required, customValidation.NotBlank, validation.Length(1, 255)),
		validation.Field(&i.StripeCustomerID, validation.Required, customValidation.StripeID("cus_")),
		validation.Field(&i.StripeSubscriptionID, customValidation.StripeID("sub_")),
	)
	return customValidation.WrapValidationError(err)
}
