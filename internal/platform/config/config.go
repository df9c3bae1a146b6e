package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration for the boundary service.
type Server struct {
	Addr          string
	JWTSigningKey string

	// StrictAnonymization forces anonymize outcomes unsafe whenever any
	// category was detected, even if redaction succeeded. Defaults to true;
	// the redacted candidate is diagnostic-only in strict mode.
	StrictAnonymization bool

	// StrictIsolation re-runs the residual pattern check over serialized
	// isolated profiles before a couples merge.
	StrictIsolation bool

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// PostgresConfig holds the connection settings for the audit outbox and
// couple-link stores.
type PostgresConfig struct {
	URL string
}

// RedisConfig holds connection settings for the research-query cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the audit stream publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// ResearchCacheTTL enforces retention for cached external research results.
var ResearchCacheTTL = 24 * time.Hour

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("ATTUNE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	kafkaTopic := os.Getenv("AUDIT_KAFKA_TOPIC")
	if kafkaTopic == "" {
		kafkaTopic = "attune.audit.compliance"
	}

	var brokers []string
	if b := os.Getenv("AUDIT_KAFKA_BROKERS"); b != "" {
		brokers = splitAndTrim(b)
	}

	return Server{
		Addr:                addr,
		JWTSigningKey:       jwtSigningKey,
		StrictAnonymization: os.Getenv("BOUNDARY_STRICT_ANONYMIZATION") != "false",
		StrictIsolation:     os.Getenv("BOUNDARY_STRICT_ISOLATION") != "false",
		Postgres: PostgresConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: brokers,
			Topic:   kafkaTopic,
		},
	}
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
