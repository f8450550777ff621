package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/vietcart/payment-backend/internal/database"
	"github.com/vietcart/payment-backend/internal/models"
	"github.com/vietcart/payment-backend/internal/services"
)

// PaymentHandler handles customer-facing payment intent operations
type PaymentHandler struct {
	intentSvc *services.PaymentIntentService
	reconSvc  *services.ReconciliationService
	logger    *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(intentSvc *services.PaymentIntentService, reconSvc *services.ReconciliationService, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		intentSvc: intentSvc,
		reconSvc:  reconSvc,
		logger:    logger,
	}
}

// ownerParams extracts and validates the owner path parameters
func ownerParams(c *gin.Context) (models.OwnerType, int64, bool) {
	ownerType := models.OwnerType(c.Param("ownerType"))
	if !ownerType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid owner type"})
		return "", 0, false
	}
	ownerID, err := strconv.ParseInt(c.Param("ownerID"), 10, 64)
	if err != nil || ownerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid owner id"})
		return "", 0, false
	}
	return ownerType, ownerID, true
}

// CreateIntent creates a payment intent for an order or booking
// @Summary Create a payment intent
// @Description Reserve stock and issue a bank-transfer QR code with a unique reference for the order
// @Tags Payments
// @Produce json
// @Param ownerType path string true "Owner type (order or booking)"
// @Param ownerID path int true "Owner ID"
// @Success 201 {object} models.CreateIntentResponse "Intent created"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 404 {object} map[string]interface{} "Owner not found"
// @Failure 409 {object} map[string]interface{} "Active intent exists or out of stock"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /api/v1/payments/{ownerType}/{ownerID}/intent [post]
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	ownerType, ownerID, ok := ownerParams(c)
	if !ok {
		return
	}

	resp, err := h.intentSvc.CreateIntent(c.Request.Context(), ownerType, ownerID)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		case errors.Is(err, database.ErrDuplicateIntent):
			c.JSON(http.StatusConflict, gin.H{"error": "A payment is already in progress for this order"})
		case errors.Is(err, database.ErrInsufficientStock):
			c.JSON(http.StatusConflict, gin.H{"error": "Some items are no longer in stock"})
		case errors.Is(err, services.ErrOrderNotPayable):
			c.JSON(http.StatusBadRequest, gin.H{"error": "This order cannot accept a payment"})
		default:
			h.logger.WithError(err).WithFields(logrus.Fields{
				"owner_type": ownerType,
				"owner_id":   ownerID,
			}).Error("Failed to create payment intent")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create payment intent"})
		}
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// CheckPayment runs a reconciliation pass and reports the payment state
// @Summary Check payment status
// @Description Poll the bank feed for a matching transfer; answers paid, pending or expired
// @Tags Payments
// @Produce json
// @Param ownerType path string true "Owner type (order or booking)"
// @Param ownerID path int true "Owner ID"
// @Success 200 {object} models.CheckPaymentResponse "Current payment state"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 404 {object} map[string]interface{} "No intent for this owner"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /api/v1/payments/{ownerType}/{ownerID}/check [get]
func (h *PaymentHandler) CheckPayment(c *gin.Context) {
	ownerType, ownerID, ok := ownerParams(c)
	if !ok {
		return
	}

	resp, err := h.reconSvc.CheckPayment(c.Request.Context(), ownerType, ownerID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No payment found for this order"})
			return
		}
		h.logger.WithError(err).WithFields(logrus.Fields{
			"owner_type": ownerType,
			"owner_id":   ownerID,
		}).Error("Payment check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not verify the payment, please try again"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CancelIntent cancels a pending payment intent
// @Summary Cancel a payment intent
// @Description Cancel the pending intent and release reserved stock
// @Tags Payments
// @Produce json
// @Param ownerType path string true "Owner type (order or booking)"
// @Param ownerID path int true "Owner ID"
// @Success 200 {object} map[string]interface{} "Intent cancelled"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 404 {object} map[string]interface{} "No intent for this owner"
// @Failure 409 {object} map[string]interface{} "Payment already confirmed"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /api/v1/payments/{ownerType}/{ownerID}/intent [delete]
func (h *PaymentHandler) CancelIntent(c *gin.Context) {
	ownerType, ownerID, ok := ownerParams(c)
	if !ok {
		return
	}

	err := h.intentSvc.CancelIntent(c.Request.Context(), ownerType, ownerID)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "No payment found for this order"})
		case errors.Is(err, database.ErrNotCancellable):
			c.JSON(http.StatusConflict, gin.H{"error": "This payment has already been confirmed"})
		default:
			h.logger.WithError(err).WithFields(logrus.Fields{
				"owner_type": ownerType,
				"owner_id":   ownerID,
			}).Error("Failed to cancel payment intent")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel the payment"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Payment cancelled"})
}
