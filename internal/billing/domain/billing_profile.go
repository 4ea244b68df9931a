// Package domain defines billing profiles and the Stripe objects the payment webhooks carry.
package domain

import (
	"time"
)

// BillingProfile links an internal user to Stripe billing state.
type BillingProfile struct {
	UserID               string
	StripeCustomerID     string
	StripeLivemode       bool
	StripeSubscriptionID *string
	PlanTier             *string
	SubscriptionPriceID  *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ProfileUpdate is a partial billing profile write. Nil fields keep their stored value.
type ProfileUpdate struct {
	StripeCustomerID     string
	StripeLivemode       bool
	StripeSubscriptionID *string
	PlanTier             *string
	SubscriptionPriceID  *string
}

// Apply merges the update into profile.
func (u ProfileUpdate) Apply(profile *BillingProfile, now time.Time) {
	profile.StripeCustomerID = u.StripeCustomerID
	profile.StripeLivemode = u.StripeLivemode
	if u.StripeSubscriptionID != nil {
		profile.StripeSubscriptionID = u.StripeSubscriptionID
	}
	if u.PlanTier != nil {
		profile.PlanTier = u.PlanTier
	}
	if u.SubscriptionPriceID != nil {
		profile.SubscriptionPriceID = u.SubscriptionPriceID
	}
	profile.UpdatedAt = now
}
