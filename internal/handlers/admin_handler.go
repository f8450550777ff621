package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vietcart/payment-backend/internal/database"
	"github.com/vietcart/payment-backend/internal/models"
	"github.com/vietcart/payment-backend/internal/services"
)

// AdminHandler exposes the operator review queue and manual sweep triggers
type AdminHandler struct {
	auditRepo *database.PaymentAuditRepository
	intentSvc *services.PaymentIntentService
	reconSvc  *services.ReconciliationService
	logger    *logrus.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(auditRepo *database.PaymentAuditRepository, intentSvc *services.PaymentIntentService, reconSvc *services.ReconciliationService, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		auditRepo: auditRepo,
		intentSvc: intentSvc,
		reconSvc:  reconSvc,
		logger:    logger,
	}
}

func limitParam(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}

// GetConflicts lists conflicting and duplicate matches awaiting review
// @Summary List match conflicts
// @Tags Admin
// @Produce json
// @Success 200 {array} models.PaymentAudit
// @Security BearerAuth
// @Router /api/v1/admin/payments/conflicts [get]
func (h *AdminHandler) GetConflicts(c *gin.Context) {
	conflicts, err := h.auditRepo.GetConflicts(c.Request.Context(), limitParam(c))
	if err != nil {
		h.logger.WithError(err).Error("Failed to load match conflicts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conflicts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": conflicts, "count": len(conflicts)})
}

// GetAmountMismatches lists rejected matches where the amount differed
// @Summary List amount mismatches
// @Tags Admin
// @Produce json
// @Success 200 {array} models.PaymentAudit
// @Security BearerAuth
// @Router /api/v1/admin/payments/mismatches [get]
func (h *AdminHandler) GetAmountMismatches(c *gin.Context) {
	mismatches, err := h.auditRepo.GetAmountMismatches(c.Request.Context(), limitParam(c))
	if err != nil {
		h.logger.WithError(err).Error("Failed to load amount mismatches")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load mismatches"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mismatches": mismatches, "count": len(mismatches)})
}

// GetIntentAudits returns the full audit trail for one intent
// @Summary Audit trail for an intent
// @Tags Admin
// @Produce json
// @Param intentID path string true "Intent ID"
// @Success 200 {array} models.PaymentAudit
// @Security BearerAuth
// @Router /api/v1/admin/payments/intents/{intentID}/audits [get]
func (h *AdminHandler) GetIntentAudits(c *gin.Context) {
	intentID, err := uuid.Parse(c.Param("intentID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid intent id"})
		return
	}

	audits, err := h.auditRepo.GetByIntentID(c.Request.Context(), intentID)
	if err != nil {
		h.logger.WithError(err).WithField("intent_id", intentID).Error("Failed to load intent audits")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load audit trail"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"audits": audits, "count": len(audits)})
}

// GetFeedHealth summarizes recent feed failures
// @Summary Recent feed errors
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /api/v1/admin/payments/feed-health [get]
func (h *AdminHandler) GetFeedHealth(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if err != nil || hours <= 0 || hours > 720 {
		hours = 24
	}

	rateLimits, err := h.auditRepo.GetRecentByEventType(c.Request.Context(), models.PaymentEventFeedRateLimited, hours, limitParam(c))
	if err != nil {
		h.logger.WithError(err).Error("Failed to load feed rate limit events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load feed health"})
		return
	}
	feedErrors, err := h.auditRepo.GetRecentByEventType(c.Request.Context(), models.PaymentEventFeedError, hours, limitParam(c))
	if err != nil {
		h.logger.WithError(err).Error("Failed to load feed error events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load feed health"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"window_hours": hours,
		"rate_limits":  len(rateLimits),
		"errors":       len(feedErrors),
		"recent":       append(rateLimits, feedErrors...),
	})
}

// RunExpirySweep runs the TTL expiry sweep on demand
// @Summary Trigger intent expiry sweep
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /api/v1/admin/payments/sweep/expire [post]
func (h *AdminHandler) RunExpirySweep(c *gin.Context) {
	expired, err := h.intentSvc.ExpireDueIntents(c.Request.Context(), limitParam(c), models.PaymentSourceAdmin)
	if err != nil {
		h.logger.WithError(err).Error("Manual expiry sweep failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Expiry sweep failed", "expired": expired})
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": expired})
}

// RunReconcileSweep runs the reconciliation sweep on demand
// @Summary Trigger reconciliation sweep
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /api/v1/admin/payments/sweep/reconcile [post]
func (h *AdminHandler) RunReconcileSweep(c *gin.Context) {
	if err := h.reconSvc.ReconcilePending(c.Request.Context(), limitParam(c), models.PaymentSourceAdmin); err != nil {
		h.logger.WithError(err).Error("Manual reconciliation sweep failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Reconciliation sweep failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reconciliation sweep completed"})
}
