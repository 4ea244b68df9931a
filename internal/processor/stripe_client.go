package processor

import (
	"context"
	"log/slog"

	"github.com/stripe/stripe-go/v82"
	stripeevent "github.com/stripe/stripe-go/v82/event"
	"github.com/stripe/stripe-go/v82/webhook"
	"golang.org/x/time/rate"

	apperrors "github.com/allisson/billingsync/internal/errors"
)

const stripeListPageSize = 100

// StripeConfig holds Stripe API settings.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// RateLimitPerSec paces list requests; zero disables pacing.
	RateLimitPerSec float64
	RateLimitBurst  int
	// Backend overrides the API backend; nil uses the default Stripe API backend.
	Backend stripe.Backend
}

// StripeClient implements Client on top of stripe-go.
type StripeClient struct {
	events        stripeevent.Client
	webhookSecret string
	limiter       *rate.Limiter
	logger        *slog.Logger
}

// NewStripeClient creates a Stripe-backed processor client.
func NewStripeClient(cfg StripeConfig, logger *slog.Logger) *StripeClient {
	backend := cfg.Backend
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimitPerSec > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), burst)
	}

	return &StripeClient{
		events:        stripeevent.Client{B: backend, Key: cfg.SecretKey},
		webhookSecret: cfg.WebhookSecret,
		limiter:       limiter,
		logger:        logger,
	}
}

// ListRecentEvents pages through Stripe events of one type, newest first.
func (s *StripeClient) ListRecentEvents(
	ctx context.Context,
	eventType string,
	createdAfterUnix int64,
) ([]Event, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := &stripe.EventListParams{
		Type: stripe.String(eventType),
		CreatedRange: &stripe.RangeQueryParams{
			GreaterThanOrEqual: createdAfterUnix,
		},
	}
	params.Context = ctx
	params.Limit = stripe.Int64(stripeListPageSize)

	var events []Event
	iter := s.events.List(params)
	for iter.Next() {
		events = append(events, fromStripeEvent(iter.Event()))

		// Each full page means another request is about to be issued.
		if len(events)%stripeListPageSize == 0 {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to list stripe events")
	}

	s.logger.Debug("listed stripe events",
		slog.String("event_type", eventType),
		slog.Int64("created_after", createdAfterUnix),
		slog.Int("count", len(events)),
	)
	return events, nil
}

// ConstructEvent verifies the Stripe-Signature header against the webhook secret.
// API version mismatches are tolerated since only data.object is decoded.
func (s *StripeClient) ConstructEvent(payload []byte, signature string) (Event, error) {
	if s.webhookSecret == "" || signature == "" {
		return Event{}, ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, apperrors.Wrap(ErrInvalidSignature, err.Error())
	}
	return fromStripeEvent(&event), nil
}

func fromStripeEvent(e *stripe.Event) Event {
	event := Event{
		ID:       e.ID,
		Type:     string(e.Type),
		Livemode: e.Livemode,
		Created:  e.Created,
	}
	if e.Data != nil {
		event.Data = e.Data.Raw
	}
	return event
}
