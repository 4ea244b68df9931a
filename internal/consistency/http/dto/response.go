// Package dto provides data transfer objects for the consistency operator endpoints.
package dto

import (
	"time"

	consistencyDomain "github.com/allisson/billingsync/internal/consistency/domain"
)

// UnresolvedSummaryResponse reports open unresolved payment events.
type UnresolvedSummaryResponse struct {
	OpenCount       int64  `json:"open_count"`
	OldestOpenAgeMs *int64 `json:"oldest_open_age_ms,omitempty"`
}

// UnresolvedEventResponse represents an unresolved payment event.
type UnresolvedEventResponse struct {
	EventID         string            `json:"event_id"`
	Status          string            `json:"status"`
	EventType       string            `json:"event_type"`
	Reason          string            `json:"reason"`
	OccurrenceCount int               `json:"occurrence_count"`
	FirstSeenAt     time.Time         `json:"first_seen_at"`
	LastSeenAt      time.Time         `json:"last_seen_at"`
	StripeObjectID  *string           `json:"stripe_object_id,omitempty"`
	UserID          *string           `json:"user_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ListUnresolvedEventsResponse combines the open summary with the oldest open events.
type ListUnresolvedEventsResponse struct {
	Summary UnresolvedSummaryResponse `json:"summary"`
	Data    []UnresolvedEventResponse `json:"data"`
}

// RepairResponse represents a billing profile repair task.
type RepairResponse struct {
	ID                   string     `json:"id"`
	RepairKey            string     `json:"repair_key"`
	Status               string     `json:"status"`
	Source               string     `json:"source"`
	UserID               string     `json:"user_id"`
	StripeCustomerID     string     `json:"stripe_customer_id"`
	StripeLivemode       bool       `json:"stripe_livemode"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id,omitempty"`
	PlanTier             *string    `json:"plan_tier,omitempty"`
	SubscriptionPriceID  *string    `json:"subscription_price_id,omitempty"`
	EventID              *string    `json:"event_id,omitempty"`
	ReferenceID          *string    `json:"reference_id,omitempty"`
	Attempts             int        `json:"attempts"`
	LastError            *string    `json:"last_error,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	ProcessingStartedAt  *time.Time `json:"processing_started_at,omitempty"`
	ResolvedAt           *time.Time `json:"resolved_at,omitempty"`
	EscalatedAt          *time.Time `json:"escalated_at,omitempty"`
}

// ListRepairsResponse wraps a page of repair tasks.
type ListRepairsResponse struct {
	Data []RepairResponse `json:"data"`
}

// MapUnresolvedSummaryToResponse converts an unresolved summary to an API response.
func MapUnresolvedSummaryToResponse(summary consistencyDomain.UnresolvedSummary) UnresolvedSummaryResponse {
	response := UnresolvedSummaryResponse{OpenCount: summary.OpenCount}
	if summary.OldestOpenAge != nil {
		ageMs := summary.OldestOpenAge.Milliseconds()
		response.OldestOpenAgeMs = &ageMs
	}
	return response
}

// MapUnresolvedEventsToListResponse builds the unresolved events listing.
func MapUnresolvedEventsToListResponse(
	summary consistencyDomain.UnresolvedSummary,
	events []*consistencyDomain.UnresolvedPaymentEvent,
) ListUnresolvedEventsResponse {
	data := make([]UnresolvedEventResponse, 0, len(events))
	for _, event := range events {
		data = append(data, UnresolvedEventResponse{
			EventID:         event.EventID,
			Status:          string(event.Status),
			EventType:       event.EventType,
			Reason:          event.Reason,
			OccurrenceCount: event.OccurrenceCount,
			FirstSeenAt:     event.FirstSeenAt,
			LastSeenAt:      event.LastSeenAt,
			StripeObjectID:  event.StripeObjectID,
			UserID:          event.UserID,
			Metadata:        event.Metadata,
		})
	}
	return ListUnresolvedEventsResponse{
		Summary: MapUnresolvedSummaryToResponse(summary),
		Data:    data,
	}
}

// MapRepairToResponse converts a repair task to an API response.
func MapRepairToResponse(repair *consistencyDomain.BillingProfileRepair) RepairResponse {
	return RepairResponse{
		ID:                   repair.ID.String(),
		RepairKey:            repair.RepairKey,
		Status:               string(repair.Status),
		Source:               string(repair.Source),
		UserID:               repair.UserID,
		StripeCustomerID:     repair.StripeCustomerID,
		StripeLivemode:       repair.StripeLivemode,
		StripeSubscriptionID: repair.StripeSubscriptionID,
		PlanTier:             repair.PlanTier,
		SubscriptionPriceID:  repair.SubscriptionPriceID,
		EventID:              repair.EventID,
		ReferenceID:          repair.ReferenceID,
		Attempts:             repair.Attempts,
		LastError:            repair.LastError,
		CreatedAt:            repair.CreatedAt,
		UpdatedAt:            repair.UpdatedAt,
		ProcessingStartedAt:  repair.ProcessingStartedAt,
		ResolvedAt:           repair.ResolvedAt,
		EscalatedAt:          repair.EscalatedAt,
	}
}

// MapRepairsToListResponse converts repair tasks to a list response.
func MapRepairsToListResponse(repairs []*consistencyDomain.BillingProfileRepair) ListRepairsResponse {
	data := make([]RepairResponse, 0, len(repairs))
	for _, repair := range repairs {
		data = append(data, MapRepairToResponse(repair))
	}
	return ListRepairsResponse{Data: data}
}
