package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration for the verification engine.
type Server struct {
	Addr          string
	JWTSigningKey string

	// Privacy budgets. ScoreEpsilon noises per-user activity scores,
	// StatsEpsilon noises aggregate releases (split across buckets).
	ScoreEpsilon float64
	StatsEpsilon float64

	// MarkovOrder is the behavior model's window length.
	MarkovOrder int

	Redis    RedisConfig
	Kafka    KafkaConfig
	AuditDSN string // postgres archive; empty disables it
}

// RedisConfig configures the shared nullifier set backend. An empty URL
// keeps the in-memory set (single-replica deployments).
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit event pipeline. No brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:          envOr("ZKATTEND_ADDR", ":8080"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		ScoreEpsilon:  envFloat("ZKATTEND_SCORE_EPSILON", 0.1),
		StatsEpsilon:  envFloat("ZKATTEND_STATS_EPSILON", 0.05),
		MarkovOrder:   envInt("ZKATTEND_MARKOV_ORDER", 2),
		AuditDSN:      os.Getenv("ZKATTEND_AUDIT_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("ZKATTEND_REDIS_URL"),
			PoolSize:     envInt("ZKATTEND_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("ZKATTEND_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic: envOr("ZKATTEND_KAFKA_TOPIC", "zkattend.audit"),
		},
	}
	if brokers := os.Getenv("ZKATTEND_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
