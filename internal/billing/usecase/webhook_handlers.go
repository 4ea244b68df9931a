package usecase

import (
	"context"
	"log/slog"

	billingDomain "github.com/allisson/billingsync/internal/billing/domain"
	consistencyDomain "github.com/allisson/billingsync/internal/consistency/domain"
	apperrors "github.com/allisson/billingsync/internal/errors"
	"github.com/allisson/billingsync/internal/processor"
)

// Reasons recorded on unresolved payment events.
const (
	ReasonMissingUserReference = "missing_user_reference"
	ReasonMissingCustomer      = "missing_customer"
	ReasonUnknownCustomer      = "unknown_customer"
)

// Checkout payment statuses that leave nothing to apply.
const checkoutPaymentStatusUnpaid = "unpaid"

// WebhookHandlers applies checkout and invoice events to billing profiles. A profile write
// that fails after the event was claimed is handed to the repair queue; the event still
// counts as handled once the repair task is durable.
type WebhookHandlers struct {
	profiles    ProfileUseCase
	consistency ConsistencyRecorder
	logger      *slog.Logger
}

// NewWebhookHandlers creates the default checkout and invoice handlers.
func NewWebhookHandlers(
	profiles ProfileUseCase,
	consistency ConsistencyRecorder,
	logger *slog.Logger,
) *WebhookHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandlers{profiles: profiles, consistency: consistency, logger: logger}
}

// HandleCheckoutSessionCompleted links the session's customer and subscription to the user.
func (h *WebhookHandlers) HandleCheckoutSessionCompleted(
	ctx context.Context,
	session *billingDomain.CheckoutSession,
	eventID string,
) error {
	if session.PaymentStatus == checkoutPaymentStatusUnpaid {
		h.logger.Info("skipping unpaid checkout session",
			slog.String("event_id", eventID),
			slog.String("checkout_session_id", session.ID),
		)
		return nil
	}

	userID := session.UserID()
	if userID == "" {
		return h.recordUnresolved(ctx, processor.EventTypeCheckoutSessionCompleted, eventID,
			ReasonMissingUserReference, session.ID, "", map[string]string{"customer": session.Customer.String()})
	}
	if session.Customer == "" {
		return h.recordUnresolved(ctx, processor.EventTypeCheckoutSessionCompleted, eventID,
			ReasonMissingCustomer, session.ID, userID, nil)
	}

	update := billingDomain.ProfileUpdate{
		StripeCustomerID:     session.Customer.String(),
		StripeLivemode:       session.Livemode,
		StripeSubscriptionID: optional(session.Subscription.String()),
		PlanTier:             optional(session.Metadata[billingDomain.MetadataPlanTier]),
	}

	return h.apply(ctx, userID, update, consistencyDomain.EnqueueBillingProfileRepairInput{
		RepairKey:   "checkout:" + session.ID,
		Source:      consistencyDomain.RepairSourceCheckout,
		EventID:     optional(eventID),
		ReferenceID: optional("checkout_session:" + session.ID),
	})
}

// HandleInvoicePaid refreshes the subscription, plan tier and price of the paying user.
func (h *WebhookHandlers) HandleInvoicePaid(
	ctx context.Context,
	invoice *billingDomain.Invoice,
	eventID string,
) error {
	customerID := invoice.Customer.String()
	if customerID == "" {
		return h.recordUnresolved(ctx, processor.EventTypeInvoicePaid, eventID,
			ReasonMissingCustomer, invoice.ID, "", nil)
	}

	subscriptionID := invoice.SubscriptionID()
	if subscriptionID == "" {
		h.logger.Info("skipping invoice without subscription",
			slog.String("event_id", eventID),
			slog.String("invoice_id", invoice.ID),
		)
		return nil
	}

	userID := invoice.MetadataValue(billingDomain.MetadataUserID)
	if userID == "" {
		var err error
		userID, err = h.profiles.FindUserIDByCustomerID(ctx, customerID)
		if err != nil {
			if apperrors.Is(err, billingDomain.ErrBillingProfileNotFound) {
				return h.recordUnresolved(ctx, processor.EventTypeInvoicePaid, eventID,
					ReasonUnknownCustomer, invoice.ID, "", map[string]string{
						"customer":     customerID,
						"subscription": subscriptionID,
					})
			}
			return apperrors.Wrap(err, "failed to resolve invoice customer")
		}
	}

	update := billingDomain.ProfileUpdate{
		StripeCustomerID:     customerID,
		StripeLivemode:       invoice.Livemode,
		StripeSubscriptionID: optional(subscriptionID),
		PlanTier:             optional(invoice.MetadataValue(billingDomain.MetadataPlanTier)),
		SubscriptionPriceID:  optional(invoice.PriceID()),
	}

	return h.apply(ctx, userID, update, consistencyDomain.EnqueueBillingProfileRepairInput{
		RepairKey:   subscriptionID + ":" + invoice.ID,
		Source:      consistencyDomain.RepairSourceInvoice,
		EventID:     optional(eventID),
		ReferenceID: optional("invoice:" + invoice.ID),
	})
}

// apply writes the profile, enqueueing a repair task when the write fails. Only a failed
// enqueue fails the event.
func (h *WebhookHandlers) apply(
	ctx context.Context,
	userID string,
	update billingDomain.ProfileUpdate,
	repair consistencyDomain.EnqueueBillingProfileRepairInput,
) error {
	err := h.profiles.UpsertProfile(ctx, userID, update)
	if err == nil {
		return nil
	}

	h.logger.Warn("billing profile write failed, enqueueing repair",
		slog.String("repair_key", repair.RepairKey),
		slog.String("user_id", userID),
		slog.Any("error", err),
	)

	repair.UserID = userID
	repair.StripeCustomerID = update.StripeCustomerID
	repair.StripeLivemode = update.StripeLivemode
	repair.StripeSubscriptionID = update.StripeSubscriptionID
	repair.PlanTier = update.PlanTier
	repair.SubscriptionPriceID = update.SubscriptionPriceID

	if enqueueErr := h.consistency.EnqueueBillingProfileRepair(ctx, repair); enqueueErr != nil {
		return apperrors.Wrap(apperrors.Join(err, enqueueErr), "failed to enqueue billing profile repair")
	}
	return nil
}

// recordUnresolved tallies an event that cannot be applied. The event is acknowledged so
// Stripe stops redelivering it; the tally is what operators watch.
func (h *WebhookHandlers) recordUnresolved(
	ctx context.Context,
	eventType string,
	eventID string,
	reason string,
	objectID string,
	userID string,
	metadata map[string]string,
) error {
	h.logger.Warn("payment event could not be applied",
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.String("reason", reason),
	)

	err := h.consistency.RecordUnresolvedEvent(ctx, consistencyDomain.RecordUnresolvedEventInput{
		EventID:        eventID,
		EventType:      eventType,
		Reason:         reason,
		StripeObjectID: optional(objectID),
		UserID:         optional(userID),
		Metadata:       metadata,
	})
	if err != nil {
		// The tally is diagnostic only.
		h.logger.Error("failed to record unresolved payment event",
			slog.String("event_id", eventID),
			slog.Any("error", err),
		)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
