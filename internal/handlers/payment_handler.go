package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/snapbook/payment-reconciler/internal/interfaces"
	"github.com/snapbook/payment-reconciler/internal/models"
	"github.com/snapbook/payment-reconciler/internal/telemetry"
)

type PaymentHandler struct {
	gateway interfaces.PaymentGateway
}

func NewPaymentHandler(gateway interfaces.PaymentGateway) *PaymentHandler {
	return &PaymentHandler{gateway: gateway}
}

// CreatePayment opens a checkout for a booking on behalf of userId.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	userID, err := positiveIntParam("userId", c.Query("userId"))
	if err != nil {
		writeError(c, err)
		return
	}

	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.Logger.Error("Error decoding payment request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	payment, err := h.gateway.CreatePaymentLink(c.Request.Context(), userID, req)
	if err != nil {
		telemetry.Logger.Warn("Error creating payment link",
			zap.Int64("user_id", userID),
			zap.Int64("booking_id", req.BookingID),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}

	telemetry.Logger.Info("Payment link created",
		zap.Int64("payment_id", payment.PaymentID),
		zap.String("order_code", payment.OrderCode),
		zap.String("qr_format", string(payment.QRFormat)),
	)
	c.JSON(http.StatusCreated, payment)
}
