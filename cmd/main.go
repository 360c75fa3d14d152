package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/snapbook/payment-reconciler/internal/api"
	"github.com/snapbook/payment-reconciler/internal/cache"
	"github.com/snapbook/payment-reconciler/internal/config"
	"github.com/snapbook/payment-reconciler/internal/events"
	"github.com/snapbook/payment-reconciler/internal/payos"
	"github.com/snapbook/payment-reconciler/internal/repository"
	"github.com/snapbook/payment-reconciler/internal/service"
	"github.com/snapbook/payment-reconciler/internal/telemetry"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry("payment-reconciler", cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Payment Reconciler")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	repo := repository.NewSessionRepository(db)
	if err := repo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	defer redisClient.Close()

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Connect to Kafka
	kafkaWriter := events.NewOutcomeWriter(cfg.KafkaBrokers)
	defer kafkaWriter.Close()

	publisher := events.MultiPublisher{
		events.NewKafkaPublisher(kafkaWriter),
		events.NewNATSPublisher(nc),
	}
	balance := events.NewNATSBalanceRefresher(nc, 5*time.Second)

	gateway := payos.NewClient(cfg.PayOSBaseURL, cfg.GatewayTimeout)
	manager := service.NewManager(
		service.Deps{
			Gateway: gateway,
			Repo:    repo,
			Guard:   cache.NewRedisSuccessGuard(redisClient, cache.DefaultSuccessTTL),
		},
		publisher,
		balance,
		service.PollingConfigFrom(cfg.Polling, cfg.GatewayTimeout),
		cfg.SessionRetention,
	)

	consumeCtx, stopConsuming := context.WithCancel(context.Background())
	reader := service.NewPaymentCreatedReader(events.SplitBrokers(cfg.KafkaBrokers))
	defer reader.Close()
	go manager.ConsumePaymentEvents(consumeCtx, reader)

	r := api.NewRouter(gateway, manager, repo, cfg.CORSOrigins)

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Payment Reconciler starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	stopConsuming()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}
	manager.Shutdown(ctx)

	telemetry.Logger.Info("Server exited")
}
