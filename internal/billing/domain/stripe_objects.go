package domain

import (
	"encoding/json"
	"strings"
)

// ExpandableID is a Stripe reference that is either an ID string or an expanded object.
type ExpandableID string

// UnmarshalJSON accepts "cus_1", {"id":"cus_1",...} and null.
func (e *ExpandableID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*e = ""
		return nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var object struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &object); err != nil {
			return err
		}
		*e = ExpandableID(object.ID)
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*e = ExpandableID(id)
	return nil
}

// String returns the referenced ID.
func (e ExpandableID) String() string {
	return string(e)
}

// CheckoutSession is the data object of checkout.session.completed.
type CheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	PaymentStatus     string            `json:"payment_status"`
	Customer          ExpandableID      `json:"customer"`
	Subscription      ExpandableID      `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Livemode          bool              `json:"livemode"`
	Metadata          map[string]string `json:"metadata"`
}

// UserID returns the internal user the session was created for.
func (s *CheckoutSession) UserID() string {
	if s.ClientReferenceID != "" {
		return s.ClientReferenceID
	}
	return s.Metadata[MetadataUserID]
}

// Invoice is the data object of invoice.paid.
type Invoice struct {
	ID       string       `json:"id"`
	Customer ExpandableID `json:"customer"`
	// Subscription is set by API versions before the invoice parent object existed.
	Subscription ExpandableID      `json:"subscription"`
	Livemode     bool              `json:"livemode"`
	Metadata     map[string]string `json:"metadata"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription ExpandableID      `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []InvoiceLine `json:"data"`
	} `json:"lines"`
}

// InvoiceLine is an invoice line item reduced to its price reference.
type InvoiceLine struct {
	Price *struct {
		ID string `json:"id"`
	} `json:"price"`
	Pricing *struct {
		PriceDetails *struct {
			Price ExpandableID `json:"price"`
		} `json:"price_details"`
	} `json:"pricing"`
}

// SubscriptionID returns the subscription the invoice bills, if any.
func (i *Invoice) SubscriptionID() string {
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil && i.Parent.SubscriptionDetails.Subscription != "" {
		return i.Parent.SubscriptionDetails.Subscription.String()
	}
	return i.Subscription.String()
}

// PriceID returns the price of the first priced line item.
func (i *Invoice) PriceID() string {
	for _, line := range i.Lines.Data {
		if line.Pricing != nil && line.Pricing.PriceDetails != nil && line.Pricing.PriceDetails.Price != "" {
			return line.Pricing.PriceDetails.Price.String()
		}
		if line.Price != nil && line.Price.ID != "" {
			return line.Price.ID
		}
	}
	return ""
}

// MetadataValue looks key up in the subscription metadata, then the invoice metadata.
func (i *Invoice) MetadataValue(key string) string {
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		if v := i.Parent.SubscriptionDetails.Metadata[key]; v != "" {
			return v
		}
	}
	return i.Metadata[key]
}

// Metadata keys set on checkout sessions and subscriptions.
const (
	MetadataUserID   = "user_id"
	MetadataPlanTier = "plan_tier"
)
