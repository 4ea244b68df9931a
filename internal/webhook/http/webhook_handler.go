// Package http provides the Stripe webhook receiver and the ledger backlog endpoint.
package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/billingsync/internal/errors"
	"github.com/allisson/billingsync/internal/httputil"
	"github.com/allisson/billingsync/internal/processor"
	"github.com/allisson/billingsync/internal/webhook/http/dto"
	webhookUseCase "github.com/allisson/billingsync/internal/webhook/usecase"
)

// MaxWebhookBodyBytes caps the size of a webhook delivery body.
const MaxWebhookBodyBytes = 65536

// stripeSignatureHeader carries the delivery signature.
const stripeSignatureHeader = "Stripe-Signature"

// EventVerifier verifies webhook signatures and decodes deliveries.
type EventVerifier interface {
	ConstructEvent(payload []byte, signature string) (processor.Event, error)
}

// EventDispatcher applies a verified event through the ledger claim protocol.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event processor.Event) (webhookUseCase.DispatchOutcome, error)
}

// WebhookHandler handles Stripe webhook deliveries and ledger backlog queries.
type WebhookHandler struct {
	verifier   EventVerifier
	dispatcher EventDispatcher
	ledger     webhookUseCase.WebhookLedger
	logger     *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(
	verifier EventVerifier,
	dispatcher EventDispatcher,
	ledger webhookUseCase.WebhookLedger,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		verifier:   verifier,
		dispatcher: dispatcher,
		ledger:     ledger,
		logger:     logger,
	}
}

// ReceiveHandler verifies and dispatches a Stripe webhook delivery.
// POST /v1/webhooks/stripe
//
// Responses:
//   - 200: processed, duplicate or ignored event
//   - 400: unreadable body or invalid signature
//   - 409: another claimant is processing the event; Stripe retries the delivery
//   - 500: handler failure; the event is marked failed and Stripe retries
func (h *WebhookHandler) ReceiveHandler(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxWebhookBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		httputil.HandleBadRequestGin(c, apperrors.Wrap(err, "failed to read webhook body"), h.logger)
		return
	}

	event, err := h.verifier.ConstructEvent(payload, c.GetHeader(stripeSignatureHeader))
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	outcome, err := h.dispatcher.Dispatch(c.Request.Context(), event)
	switch {
	case outcome == webhookUseCase.DispatchFailed:
		h.logger.Error("webhook delivery failed",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.Type),
			slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, httputil.ErrorResponse{
			Error:   "handler_failed",
			Message: "The event could not be applied and will be retried",
		})
		return
	case err != nil:
		httputil.HandleErrorGin(c, err, h.logger)
		return
	case outcome == webhookUseCase.DispatchInProgress:
		c.JSON(http.StatusConflict, httputil.ErrorResponse{
			Error:   "in_progress",
			Message: "The event is being processed by another delivery",
		})
		return
	}

	c.JSON(http.StatusOK, dto.WebhookReceivedResponse{
		Received: true,
		Status:   string(outcome),
	})
}

// BacklogHandler reports ledger records that have not reached processed.
// GET /v1/admin/webhooks/backlog
func (h *WebhookHandler) BacklogHandler(c *gin.Context) {
	summary, err := h.ledger.GetBacklogSummary(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapBacklogSummaryToResponse(summary))
}
