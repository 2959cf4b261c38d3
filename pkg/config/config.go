// Package config loads the core's tunables from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable named in spec §6 "Configuration".
type Config struct {
	HTTPMaxConcurrency int
	HTTPMinInterval    time.Duration
	HTTPMaxRetries     int
	HTTPBackoffFactor  float64
	HTTPInitialBackoff time.Duration
	HTTPJitter         time.Duration
	HTTPTimeout        time.Duration

	PersistentCacheTTL time.Duration
	MaxCacheSize       int
	CacheBaseDir       string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int

	LLMParsingModel string
	LLMAPIKey       string
	LLMAPIBase      string
	LLMTimeout      time.Duration

	// Circuit breaker defaults, per upstream tag unless overridden.
	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerTimeout          time.Duration
}

// Load reads configuration from the environment, falling back to the
// defaults spec §6 specifies in parentheses.
func Load() *Config {
	return &Config{
		HTTPMaxConcurrency: envInt("HTTP_MAX_CONCURRENCY", 3),
		HTTPMinInterval:    envDurationSeconds("HTTP_MIN_INTERVAL", 0.5),
		HTTPMaxRetries:     envInt("HTTP_MAX_RETRIES", 4),
		HTTPBackoffFactor:  envFloat("HTTP_BACKOFF_FACTOR", 2.0),
		HTTPInitialBackoff: envDurationSeconds("HTTP_INITIAL_BACKOFF", 0.5),
		HTTPJitter:         envDurationSeconds("HTTP_JITTER", 0.3),
		HTTPTimeout:        envDurationSeconds("HTTP_TIMEOUT", 30),

		PersistentCacheTTL: envDurationSeconds("PERSISTENT_CACHE_TTL", 86400),
		MaxCacheSize:       envInt("MAX_CACHE_SIZE", 10000),
		CacheBaseDir:       envStr("CACHE_BASE_DIR", ".cache/lexcore"),
		RedisAddr:          envStr("REDIS_ADDR", ""),
		RedisPassword:      envStr("REDIS_PASSWORD", ""),
		RedisDB:            envInt("REDIS_DB", 0),

		LLMParsingModel: envStr("LLM_PARSING_MODEL", "gpt-4o-mini"),
		LLMAPIKey:       envStr("LLM_API_KEY", ""),
		LLMAPIBase:      envStr("LLM_API_BASE", "https://api.openai.com/v1"),
		LLMTimeout:      envDurationSeconds("LLM_API_TIMEOUT", 60),

		BreakerFailureThreshold: envInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerSuccessThreshold: envInt("BREAKER_SUCCESS_THRESHOLD", 2),
		BreakerTimeout:          envDurationSeconds("BREAKER_TIMEOUT", 60),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// envDurationSeconds reads an env var expressed in fractional seconds
// (matching spec §6's "0.5", "86400" style defaults).
func envDurationSeconds(key string, defSeconds float64) time.Duration {
	secs := envFloat(key, defSeconds)
	return time.Duration(secs * float64(time.Second))
}
