package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sigillum/core/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	// Ensure clean env
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("MAX_BATCH_SIZE", "")
	t.Setenv("MAX_BATCH_AGE", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("RATE_LIMIT_RPS", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, 1024, cfg.MaxBatchSize)
	assert.Equal(t, 5*time.Minute, cfg.MaxBatchAge)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 50.0, cfg.RateLimitRPS)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://production:5432/sigillum")
	t.Setenv("MAX_BATCH_SIZE", "256")
	t.Setenv("MAX_BATCH_AGE", "30s")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("ANCHOR_S3_BUCKET", "compliance-anchors")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "postgres://production:5432/sigillum", cfg.DatabaseURL)
	assert.Equal(t, 256, cfg.MaxBatchSize)
	assert.Equal(t, 30*time.Second, cfg.MaxBatchAge)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "compliance-anchors", cfg.S3Bucket)
}

// TestLoad_MalformedNumbersFallBack keeps boot resilient to typos.
func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	t.Setenv("MAX_BATCH_SIZE", "lots")
	t.Setenv("MAX_BATCH_AGE", "soon")

	cfg := config.Load()
	assert.Equal(t, 1024, cfg.MaxBatchSize)
	assert.Equal(t, 5*time.Minute, cfg.MaxBatchAge)
}
