package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoEnvSet(t *testing.T) {
	for _, k := range []string{
		"HTTP_MAX_CONCURRENCY", "HTTP_MIN_INTERVAL", "HTTP_MAX_RETRIES",
		"CACHE_BASE_DIR", "LLM_PARSING_MODEL", "BREAKER_FAILURE_THRESHOLD",
	} {
		os.Unsetenv(k)
	}

	cfg := Load()
	require.NotNil(t, cfg)
	assert.Equal(t, 3, cfg.HTTPMaxConcurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.HTTPMinInterval)
	assert.Equal(t, ".cache/lexcore", cfg.CacheBaseDir)
	assert.Equal(t, "gpt-4o-mini", cfg.LLMParsingModel)
	assert.Equal(t, 5, cfg.BreakerFailureThreshold)
}

func TestLoadReadsOverridesFromEnv(t *testing.T) {
	os.Setenv("HTTP_MAX_CONCURRENCY", "10")
	os.Setenv("HTTP_TIMEOUT", "15")
	os.Setenv("CACHE_BASE_DIR", "/tmp/custom-cache")
	defer func() {
		os.Unsetenv("HTTP_MAX_CONCURRENCY")
		os.Unsetenv("HTTP_TIMEOUT")
		os.Unsetenv("CACHE_BASE_DIR")
	}()

	cfg := Load()
	assert.Equal(t, 10, cfg.HTTPMaxConcurrency)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "/tmp/custom-cache", cfg.CacheBaseDir)
}

func TestLoadIgnoresUnparsableIntFallsBackToDefault(t *testing.T) {
	os.Setenv("HTTP_MAX_RETRIES", "not-a-number")
	defer os.Unsetenv("HTTP_MAX_RETRIES")

	cfg := Load()
	assert.Equal(t, 4, cfg.HTTPMaxRetries, "unparsable env value should fall back to default")
}

func TestEnvDurationSecondsFractional(t *testing.T) {
	got := envDurationSeconds("LEXCORE_TEST_UNSET_DURATION", 0.3)
	assert.Equal(t, 300*time.Millisecond, got)
}
