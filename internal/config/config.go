package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Port           string
	DatabaseURL    string
	RedisURL       string
	KafkaBrokers   string
	NatsURL        string
	JaegerEndpoint string
	PayOSBaseURL   string
	CORSOrigins    []string

	GatewayTimeout   time.Duration
	SessionRetention time.Duration
	Polling          Polling
}

// Polling holds the reconciliation cadence. The not-found grace is a
// heuristic, not a gateway contract.
type Polling struct {
	FastInterval  time.Duration
	SlowInterval  time.Duration
	FastWindow    time.Duration
	MaxAttempts   int
	NotFoundGrace int
	Countdown     time.Duration
	CountdownTick time.Duration
}

func Load() *Config {
	return &Config{
		Port:             getEnv("PORT", "8082"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		KafkaBrokers:     os.Getenv("KAFKA_BROKERS"),
		NatsURL:          getEnv("NATS_URL", "nats://localhost:4222"),
		JaegerEndpoint:   getEnv("JAEGER_ENDPOINT", "jaeger:4318"),
		PayOSBaseURL:     getEnv("PAYOS_BASE_URL", "http://localhost:8080/api"),
		CORSOrigins:      getList("CORS_ALLOW_ORIGINS", "*"),
		GatewayTimeout:   getDuration("GATEWAY_TIMEOUT", 10*time.Second),
		SessionRetention: getDuration("SESSION_RETENTION", 5*time.Minute),
		Polling: Polling{
			FastInterval:  getDuration("POLL_FAST_INTERVAL", 2*time.Second),
			SlowInterval:  getDuration("POLL_SLOW_INTERVAL", 4*time.Second),
			FastWindow:    getDuration("POLL_FAST_WINDOW", 60*time.Second),
			MaxAttempts:   getInt("POLL_MAX_ATTEMPTS", 60),
			NotFoundGrace: getInt("POLL_NOT_FOUND_GRACE", 10),
			Countdown:     getDuration("PAYMENT_COUNTDOWN", 15*time.Minute),
			CountdownTick: time.Second,
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getList(key, fallback string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, fallback), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
