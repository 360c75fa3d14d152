package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/snapbook/payment-reconciler/internal/models"
	"github.com/snapbook/payment-reconciler/internal/telemetry"
)

// writeError maps the domain error kinds onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "violations": verr.Violations})
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNetwork):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retry": true})
	default:
		telemetry.Logger.Error("Unhandled request error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func positiveIntParam(name, raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, &models.ValidationError{Violations: map[string]string{name: "must_be_positive"}}
	}
	return n, nil
}
