package api

import (
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snapbook/payment-reconciler/internal/handlers"
	"github.com/snapbook/payment-reconciler/internal/interfaces"
	"github.com/snapbook/payment-reconciler/internal/service"
	"github.com/snapbook/payment-reconciler/internal/telemetry"
)

func NewRouter(gateway interfaces.PaymentGateway, manager *service.Manager, repo interfaces.SessionRepository, origins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(origins))
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment-reconciler"})
	})

	paymentHandler := handlers.NewPaymentHandler(gateway)
	r.POST("/payments", paymentHandler.CreatePayment)

	sessionHandler := handlers.NewSessionHandler(manager, repo)
	sessions := r.Group("/sessions")
	sessions.POST("", sessionHandler.Mount)
	sessions.GET("/:paymentId", sessionHandler.GetSession)
	sessions.DELETE("/:paymentId", sessionHandler.Unmount)
	sessions.POST("/:paymentId/foreground", sessionHandler.Foreground)
	sessions.POST("/:paymentId/check", sessionHandler.Check)
	sessions.POST("/:paymentId/cancel", sessionHandler.Cancel)
	sessions.POST("/:paymentId/retry", sessionHandler.Retry)

	// Gateway return URLs and shell-forwarded deep links
	r.POST("/deeplinks", sessionHandler.DeepLink)
	r.GET("/payment-success", sessionHandler.ReturnURL)
	r.GET("/payment-cancel", sessionHandler.ReturnURL)

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
