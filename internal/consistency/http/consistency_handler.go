// Package http provides the operator endpoints for unresolved payment events and the
// billing profile repair queue.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	consistencyDomain "github.com/allisson/billingsync/internal/consistency/domain"
	"github.com/allisson/billingsync/internal/consistency/http/dto"
	consistencyUseCase "github.com/allisson/billingsync/internal/consistency/usecase"
	"github.com/allisson/billingsync/internal/httputil"
)

// ConsistencyHandler handles operator requests against the consistency store.
type ConsistencyHandler struct {
	store  consistencyUseCase.ConsistencyStore
	logger *slog.Logger
}

// NewConsistencyHandler creates a new consistency handler.
func NewConsistencyHandler(store consistencyUseCase.ConsistencyStore, logger *slog.Logger) *ConsistencyHandler {
	return &ConsistencyHandler{
		store:  store,
		logger: logger,
	}
}

// ListUnresolvedHandler returns the open summary and the oldest open events.
// GET /v1/admin/payments/unresolved?limit=50
func (h *ConsistencyHandler) ListUnresolvedHandler(c *gin.Context) {
	limit, err := httputil.ParseLimit(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	ctx := c.Request.Context()
	events, err := h.store.ListUnresolvedEvents(ctx, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapUnresolvedEventsToListResponse(h.store.GetUnresolvedSummary(ctx), events))
}

// ListRepairsHandler lists repair tasks in one status, escalated by default.
// GET /v1/admin/billing/repairs?status=escalated&limit=50
func (h *ConsistencyHandler) ListRepairsHandler(c *gin.Context) {
	limit, err := httputil.ParseLimit(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	status := consistencyDomain.RepairStatus(c.DefaultQuery("status", string(consistencyDomain.RepairStatusEscalated)))

	repairs, err := h.store.ListBillingProfileRepairs(c.Request.Context(), status, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRepairsToListResponse(repairs))
}

// ResolveRepairHandler closes an escalated repair task after operator intervention.
// POST /v1/admin/billing/repairs/:repair_key/resolve
//
// Returns 404 for an unknown key and 409 when the task is not escalated.
func (h *ConsistencyHandler) ResolveRepairHandler(c *gin.Context) {
	repairKey := c.Param("repair_key")

	repair, err := h.store.ResolveBillingProfileRepairManually(c.Request.Context(), repairKey)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.logger.Info("billing profile repair resolved manually",
		slog.String("repair_key", repair.RepairKey),
		slog.String("user_id", repair.UserID))

	c.JSON(http.StatusOK, dto.MapRepairToResponse(repair))
}
