package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/snapbook/payment-reconciler/internal/deeplink"
	"github.com/snapbook/payment-reconciler/internal/interfaces"
	"github.com/snapbook/payment-reconciler/internal/models"
	"github.com/snapbook/payment-reconciler/internal/payos"
	"github.com/snapbook/payment-reconciler/internal/service"
	"github.com/snapbook/payment-reconciler/internal/telemetry"
)

type SessionHandler struct {
	manager *service.Manager
	repo    interfaces.SessionRepository
}

// NewSessionHandler wires the session endpoints. repo may be nil, in which
// case finished sessions are gone once the manager drops them.
func NewSessionHandler(manager *service.Manager, repo interfaces.SessionRepository) *SessionHandler {
	return &SessionHandler{manager: manager, repo: repo}
}

type mountRequest struct {
	Payment models.Payment `json:"payment"`
	Booking models.Booking `json:"booking"`
	Kind    string         `json:"kind"`
}

type deepLinkRequest struct {
	URL       string `json:"url" binding:"required"`
	PaymentID int64  `json:"paymentId"`
}

func (h *SessionHandler) Mount(c *gin.Context) {
	var req mountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Payment.QRFormat == "" {
		req.Payment.QRFormat = payos.ClassifyQR(req.Payment.QRCode)
	}

	s, created, err := h.manager.Start(c.Request.Context(), req.Payment, req.Booking, models.ParseKind(req.Kind))
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, s.Snapshot())
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	paymentID, err := positiveIntParam("paymentId", c.Param("paymentId"))
	if err != nil {
		writeError(c, err)
		return
	}

	if s, ok := h.manager.Get(paymentID); ok {
		c.JSON(http.StatusOK, s.Snapshot())
		return
	}
	if h.repo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment session not found"})
		return
	}

	info, err := h.repo.GetLatestByPaymentID(c.Request.Context(), paymentID)
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment session not found"})
		return
	}
	if err != nil {
		telemetry.Logger.Error("Failed to fetch payment session", zap.Int64("payment_id", paymentID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payment session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":      info.SessionID,
		"paymentId":      info.PaymentID,
		"bookingId":      info.BookingID,
		"kind":           info.Kind,
		"status":         info.Status,
		"previousStatus": info.PreviousStatus,
		"attemptCount":   info.Attempts,
		"trigger":        info.Trigger,
		"isComplete":     models.PaymentStatus(info.Status).IsTerminal(),
		"createdAt":      info.CreatedAt,
		"updatedAt":      info.UpdatedAt,
	})
}

func (h *SessionHandler) Unmount(c *gin.Context) {
	paymentID, err := positiveIntParam("paymentId", c.Param("paymentId"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !h.manager.Stop(paymentID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Foreground is called by the shell when the app returns to the foreground.
func (h *SessionHandler) Foreground(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	changed := s.Foreground(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"changed": changed, "session": s.Snapshot()})
}

func (h *SessionHandler) Check(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	state, err := s.CheckStatus(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *SessionHandler) Cancel(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	outcome, err := s.Cancel(c.Request.Context())
	if errors.Is(err, models.ErrInvalidState) {
		c.JSON(http.StatusConflict, gin.H{"error": "cannot cancel", "session": s.Snapshot()})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome, "session": s.Snapshot()})
}

func (h *SessionHandler) Retry(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	restarted := s.Retry()
	c.JSON(http.StatusOK, gin.H{"restarted": restarted, "session": s.Snapshot()})
}

func (h *SessionHandler) DeepLink(c *gin.Context) {
	var req deepLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.routeDeepLink(c, req.PaymentID, req.URL)
}

// ReturnURL serves the gateway's success and cancel redirects directly.
func (h *SessionHandler) ReturnURL(c *gin.Context) {
	h.routeDeepLink(c, 0, c.Request.URL.String())
}

func (h *SessionHandler) routeDeepLink(c *gin.Context, paymentID int64, rawURL string) {
	evt, changed, err := h.manager.HandleDeepLink(paymentID, rawURL)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{"type": evt.Type, "changed": changed}
	if paymentID <= 0 {
		paymentID, _ = deeplink.PaymentID(rawURL)
	}
	if s, ok := h.manager.Get(paymentID); ok {
		resp["session"] = s.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) session(c *gin.Context) (*service.Session, bool) {
	paymentID, err := positiveIntParam("paymentId", c.Param("paymentId"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	s, ok := h.manager.Get(paymentID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment session not found"})
		return nil, false
	}
	return s, true
}
