// Package config builds process configuration from environment variables so
// main stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// AuditDelivery selects how audit entries reach the store.
type AuditDelivery string

const (
	// AuditDeliveryAsync hands entries to a background worker; a write
	// failure is logged and counted but never fails the triggering request.
	AuditDeliveryAsync AuditDelivery = "async"

	// AuditDeliverySync writes entries inline. Use when audit durability
	// outranks request latency.
	AuditDeliverySync AuditDelivery = "sync"
)

// Server captures the full process configuration.
type Server struct {
	Addr     string
	LogLevel string

	PostgresDSN string
	RedisURL    string

	KafkaBrokers    []string
	AuditTopic      string
	AuditDelivery   AuditDelivery
	AuditBufferSize int

	JWTSigningKey string
	JWTIssuer     string
	TokenTTL      time.Duration

	SessionTTL        time.Duration
	SessionIdleWindow time.Duration
}

// FromEnv builds a Server config from environment variables, applying
// development defaults where unset.
func FromEnv() Server {
	return Server{
		Addr:     envOr("VERITRAIL_ADDR", ":8080"),
		LogLevel: envOr("VERITRAIL_LOG_LEVEL", "info"),

		PostgresDSN: os.Getenv("VERITRAIL_POSTGRES_DSN"),
		RedisURL:    os.Getenv("VERITRAIL_REDIS_URL"),

		KafkaBrokers:    splitList(os.Getenv("VERITRAIL_KAFKA_BROKERS")),
		AuditTopic:      envOr("VERITRAIL_AUDIT_TOPIC", "veritrail.audit.v1"),
		AuditDelivery:   auditDelivery(os.Getenv("VERITRAIL_AUDIT_DELIVERY")),
		AuditBufferSize: envInt("VERITRAIL_AUDIT_BUFFER", 1024),

		// Default is for development only; override in production.
		JWTSigningKey: envOr("VERITRAIL_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     envOr("VERITRAIL_JWT_ISSUER", "veritrail"),
		TokenTTL:      envDuration("VERITRAIL_TOKEN_TTL", time.Hour),

		SessionTTL:        envDuration("VERITRAIL_SESSION_TTL", 24*time.Hour),
		SessionIdleWindow: envDuration("VERITRAIL_SESSION_IDLE_WINDOW", 2*time.Hour),
	}
}

func auditDelivery(raw string) AuditDelivery {
	if AuditDelivery(raw) == AuditDeliverySync {
		return AuditDeliverySync
	}
	return AuditDeliveryAsync
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
