// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string

	// Storage backend: "sqlite" or "postgres".
	StoreDriver string
	SQLitePath  string
	DatabaseURL string

	RulesDir     string
	KeystoreFile string
	RoleHashKey  string

	// Jurisdiction selects a profile from ProfilesDir; empty runs without
	// jurisdiction pinning.
	Jurisdiction string
	ProfilesDir  string

	WALPath      string
	MaxBatchSize int
	MaxBatchAge  time.Duration

	// Inclusion proof cache; empty RedisAddr selects the in-process cache.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// External root anchoring. Empty values disable a publisher.
	AnchorFile string
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string

	// Admin endpoints (key rotation, ruleset reload).
	AdminJWTSecret string

	OTelEnabled  bool
	OTelEndpoint string

	RateLimitRPS   float64
	RateLimitBurst int
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:     envOr("PORT", "8080"),
		LogLevel: envOr("LOG_LEVEL", "INFO"),

		StoreDriver: envOr("STORE_DRIVER", "sqlite"),
		SQLitePath:  envOr("SQLITE_PATH", "data/sigillum.db"),
		DatabaseURL: envOr("DATABASE_URL", "postgres://sigillum@localhost:5432/sigillum?sslmode=disable"),

		RulesDir:     envOr("RULES_DIR", "rules"),
		KeystoreFile: envOr("KEYSTORE_FILE", "data/keystore.json"),
		RoleHashKey:  os.Getenv("ROLE_HASH_KEY"),

		Jurisdiction: os.Getenv("JURISDICTION"),
		ProfilesDir:  envOr("PROFILES_DIR", "profiles"),

		WALPath:      envOr("WAL_PATH", "data/audit.wal"),
		MaxBatchSize: envInt("MAX_BATCH_SIZE", 1024),
		MaxBatchAge:  envDuration("MAX_BATCH_AGE", 5*time.Minute),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),
		CacheTTL:      envDuration("CACHE_TTL", 10*time.Minute),

		AnchorFile: envOr("ANCHOR_FILE", "data/anchors.jsonl"),
		S3Bucket:   os.Getenv("ANCHOR_S3_BUCKET"),
		S3Region:   envOr("ANCHOR_S3_REGION", "us-east-1"),
		S3Endpoint: os.Getenv("ANCHOR_S3_ENDPOINT"),
		S3Prefix:   envOr("ANCHOR_S3_PREFIX", "anchors/"),

		AdminJWTSecret: os.Getenv("ADMIN_JWT_SECRET"),

		OTelEnabled:  envBool("OTEL_ENABLED", false),
		OTelEndpoint: envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 50),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 100),
	}
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

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
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

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
