package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	billingDomain "github.com/allisson/billingsync/internal/billing/domain"
	"github.com/allisson/billingsync/internal/billing/usecase/mocks"
	consistencyDomain "github.com/allisson/billingsync/internal/consistency/domain"
	consistencyMocks "github.com/allisson/billingsync/internal/consistency/usecase/mocks"
)

func paidInvoice() *billingDomain.Invoice {
	invoice := &billingDomain.Invoice{
		ID:           "in_7",
		Customer:     "cus_1",
		Subscription: "sub_42",
		Livemode:     true,
		Metadata:     map[string]string{billingDomain.MetadataPlanTier: "team"},
	}
	invoice.Lines.Data = []billingDomain.InvoiceLine{{Price: &struct {
		ID string `json:"id"`
	}{ID: "price_1"}}}
	return invoice
}

func TestWebhookHandlers_HandleCheckoutSessionCompleted(t *testing.T) {
	ctx := context.Background()
	session := &billingDomain.CheckoutSession{
		ID:                "cs_1",
		PaymentStatus:     "paid",
		Customer:          "cus_1",
		Subscription:      "sub_1",
		ClientReferenceID: "user_1",
		Livemode:          true,
		Metadata:          map[string]string{billingDomain.MetadataPlanTier: "pro"},
	}
	wantUpdate := billingDomain.ProfileUpdate{
		StripeCustomerID:     "cus_1",
		StripeLivemode:       true,
		StripeSubscriptionID: strPtr("sub_1"),
		PlanTier:             strPtr("pro"),
	}

	t.Run("WritesProfile", func(t *testing.T) {
		profiles := &mocks.MockProfileUseCase{}
		store := &consistencyMocks.MockConsistencyStore{}
		profiles.On("UpsertProfile", ctx, "user_1", wantUpdate).Return(nil).Once()

		err := NewWebhookHandlers(profiles, store, discardLogger()).HandleCheckoutSessionCompleted(ctx, session, "evt_1")
		require.NoError(t, err)
		profiles.AssertExpectations(t)
		store.AssertNotCalled(t, "EnqueueBillingProfileRepair", mock.Anything, mock.Anything)
	})

	t.Run("FailedWriteEnqueuesRepair", func(t *testing.T) {
		profiles := &mocks.MockProfileUseCase{}
		store := &consistencyMocks.MockConsistencyStore{}
		profiles.On("UpsertProfile", ctx, "user_1", wantUpdate).Return(errors.New("db down")).Once()
		store.On("EnqueueBillingProfileRepair", ctx, consistencyDomain.EnqueueBillingProfileRepairInput{
			RepairKey:            "checkout:cs_1",
			Source:               consistencyDomain.RepairSourceCheckout,
			UserID:               "user_1",
			StripeCustomerID:     "cus_1",
			StripeLivemode:       true,
			StripeSubscriptionID: strPtr("sub_1"),
			PlanTier:             strPtr("pro"),
			EventID:              strPtr("evt_1"),
			ReferenceID:          strPtr("checkout_session:cs_1"),
		}).Return(nil).Once()

		err := NewWebhookHandlers(profiles, store, discardLogger()).HandleCheckoutSessionCompleted(ctx, session, "evt_1")
		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("FailedEnqueueFailsEvent", func(t *testing.T) {
		profiles := &mocks.MockProfileUseCase{}
		store := &consistencyMocks.MockConsistencyStore{}
		profiles.On("UpsertProfile", ctx, "user_1", wantUpdate).Return(errors.New("db down")).Once()
		store.On("EnqueueBillingProfileRepair", ctx, mock.Anything).Return(errors.New("db still down")).Once()

		err := NewWebhookHandlers(profiles, store, discardLogger()).HandleCheckoutSessionCompleted(ctx, session, "evt_1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db down")
		assert.Contains(t, err.Error(), "db still down")
	})

	t.Run("MissingUserIsUnresolved", func(t *testing.T) {
		profiles := &mocks.MockProfileUseCase{}
		store := &consistencyMocks.MockConsistencyStore{}
		anonymous := *session
		anonymous.ClientReferenceID = ""
		store.On("RecordUnresolvedEvent", ctx, mock.MatchedBy(func(in consistencyDomain.RecordUnresolvedEventInput) bool {
			return in.EventID == "evt_1" && in.Reason == ReasonMissingUserReference &&
				*in.StripeObjectID == "cs_1" && in.UserID == nil && in.Metadata["customer"] == "cus_1"
		})).Return(nil).Once()

		err := NewWebhookHandlers(profiles, store, discardLogger()).HandleCheckoutSessionCompleted(ctx, &anonymous, "evt_1")
		require.NoError(t, err)
		store.AssertExpectations(t)
		profiles.AssertNotCalled(t, "UpsertProfile", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("TallyFailureStillAcknowledges", func(t *testing.T) {
		store := &consistencyMocks.MockConsistencyStore{}
		noCustomer := *session
		noCustomer.Customer = ""
		store.On("RecordUnresolvedEvent", ctx, mock.Anything).Return(errors.New("db down")).Once()

		err := NewWebhookHandlers(&mocks.MockProfileUseCase{}, store, discardLogger()).
			HandleCheckoutSessionCompleted(ctx, &noCustomer, "evt_1")
		assert.NoError(t, err)
	})

	t.Run("UnpaidSkipped", func(t *testing.T) {
		profiles := &mocks.MockProfileUseCase{}
		unpaid := *session
		unpaid.PaymentStatus = "unpaid"

		err := NewWebhookHandlers(profiles, &consistencyMocks.MockConsistencyStore{}, discardLogger()).
			HandleCheckoutSessionCompleted(ctx, &unpaid, "evt_1")
		require.NoError(t, err)
		profiles.AssertNotCalled(t, "UpsertProfile", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestWebhookHandlers_HandleInvoicePaid(t *testing.T) {
	ctx := context.Background()
	wantUpdate := billingDomain.ProfileUpdate{
		StripeCustomerID:     "cus_1",
		StripeLivemode:       true,
		StripeSubscriptionID: strPtr("sub_42"),
		PlanTier:             strPtr("team"),
		SubscriptionPriceID:  strPtr("price_1"),
	}

	t.Run("ResolvesUserByCustomer", func(t *testing.T) {
		profiles := &mocks.MockProfileUseCase{}
		profiles.On("FindUserIDByCustomerID", ctx, "cus_1").Return("user_1", nil).Once()
		profiles.On("UpsertProfile", ctx, "user_1", wantUpdate).Return(nil).Once()

		err := NewWebhookHandlers(profiles, &consistencyMocks.MockConsistencyStore{}, discardLogger()).
			HandleInvoicePaid(ctx, paidInvoice(), "evt_2")
		require.NoError(t, err)
		profiles.AssertExpectations(t)
	})

	t.Run("MetadataUserSkipsLookup", func(t *testing.T) {
		profiles := &mocks.MockProfileUseCase{}
		invoice := paidInvoice()
		invoice.Metadata[billingDomain.MetadataUserID] = "user_meta"
		profiles.On("UpsertProfile", ctx, "user_meta", wantUpdate).Return(nil).Once()

		err := NewWebhookHandlers(profiles, &consistencyMocks.MockConsistencyStore{}, discardLogger()).
			HandleInvoicePaid(ctx, invoice, "evt_2")
		require.NoError(t, err)
		profiles.AssertNotCalled(t, "FindUserIDByCustomerID", mock.Anything, mock.Anything)
	})

	t.Run("FailedWriteEnqueuesSubscriptionInvoiceKey", func(t *testing.T) {
		profiles := &mocks.MockProfileUseCase{}
		store := &consistencyMocks.MockConsistencyStore{}
		profiles.On("FindUserIDByCustomerID", ctx, "cus_1").Return("user_1", nil).Once()
		profiles.On("UpsertProfile", ctx, "user_1", wantUpdate).Return(errors.New("db down")).Once()
		store.On("EnqueueBillingProfileRepair", ctx, mock.MatchedBy(func(in consistencyDomain.EnqueueBillingProfileRepairInput) bool {
			return in.RepairKey == "sub_42:in_7" && in.Source == consistencyDomain.RepairSourceInvoice &&
				*in.ReferenceID == "invoice:in_7" && *in.SubscriptionPriceID == "price_1"
		})).Return(nil).Once()

		err := NewWebhookHandlers(profiles, store, discardLogger()).HandleInvoicePaid(ctx, paidInvoice(), "evt_2")
		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("UnknownCustomerIsUnresolved", func(t *testing.T) {
		profiles := &mocks.MockProfileUseCase{}
		store := &consistencyMocks.MockConsistencyStore{}
		profiles.On("FindUserIDByCustomerID", ctx, "cus_1").Return("", billingDomain.ErrBillingProfileNotFound).Once()
		store.On("RecordUnresolvedEvent", ctx, mock.MatchedBy(func(in consistencyDomain.RecordUnresolvedEventInput) bool {
			return in.Reason == ReasonUnknownCustomer && in.Metadata["subscription"] == "sub_42"
		})).Return(nil).Once()

		err := NewWebhookHandlers(profiles, store, discardLogger()).HandleInvoicePaid(ctx, paidInvoice(), "evt_2")
		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("LookupFailureFailsEvent", func(t *testing.T) {
		profiles := &mocks.MockProfileUseCase{}
		profiles.On("FindUserIDByCustomerID", ctx, "cus_1").Return("", errors.New("db down")).Once()

		err := NewWebhookHandlers(profiles, &consistencyMocks.MockConsistencyStore{}, discardLogger()).
			HandleInvoicePaid(ctx, paidInvoice(), "evt_2")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to resolve invoice customer")
	})

	t.Run("NoSubscriptionSkipped", func(t *testing.T) {
		profiles := &mocks.MockProfileUseCase{}
		invoice := paidInvoice()
		invoice.Subscription = ""

		err := NewWebhookHandlers(profiles, &consistencyMocks.MockConsistencyStore{}, discardLogger()).
			HandleInvoicePaid(ctx, invoice, "evt_2")
		require.NoError(t, err)
		profiles.AssertNotCalled(t, "UpsertProfile", mock.Anything, mock.Anything, mock.Anything)
	})
}
