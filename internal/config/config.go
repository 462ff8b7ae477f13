// Package config loads the duplicator configuration from environment
// variables and the duplication rules from a YAML file.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Host listen port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - DUP_PROGRAM_NAME: Name carried by logs and stats (default: traffic-duplicator)
//   - DUP_ORIGIN: Upstream the host proxies inbound requests to
//   - DUP_RULES_FILE: YAML duplication rules
//
// Dispatch:
//   - DUP_SYNCHRONOUS: Send copies on the request path (default: false)
//   - DUP_MIN_THREADS / DUP_MAX_THREADS: Worker bounds (default: 1 / 10)
//   - DUP_MIN_QUEUED / DUP_MAX_QUEUED: Queued requests per worker (default: 10 / 100)
//   - DUP_QUEUE_LIMIT: Drop threshold, 0 for max threads × max queued
//   - DUP_STATS_INTERVAL: Stats period (default: 1s)
//   - DUP_TIMEOUT: Per-copy timeout (default: 1s)
//   - DUP_AMPLIFY: Send several copies above 100% (default: true)
//   - DUP_BREAKER_ENABLED: Per-destination circuit breaker (default: true)
//
// Rate Limiting:
//   - DUP_RATE_LIMIT: Copies per second per destination, 0 disables (default: 0)
//   - DUP_RATE_BURST: Token bucket burst (default: DUP_RATE_LIMIT)
//   - DUP_RATE_BACKEND: "local" or "redis" (default: local)
//
// Redis Configuration:
//   - REDIS_ADDRESS: Stats sink address, empty disables it
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"traffic-duplicator/internal/common/errors"
	"traffic-duplicator/internal/common/ratelimit"
	"traffic-duplicator/internal/redis"
)

// Config holds the duplicator settings.
//
// The configuration is loaded using Load() and should be validated using
// Validate() before use.
type Config struct {
	// Application settings
	Port        string
	LogLevel    string
	ProgramName string
	Origin      string // Upstream base URL, empty to answer locally
	RulesFile   string

	// Dispatch settings
	Synchronous    bool
	MinThreads     int
	MaxThreads     int
	MinQueued      int
	MaxQueued      int
	QueueLimit     int
	StatsInterval  time.Duration
	Timeout        time.Duration
	Amplify        bool
	BreakerEnabled bool

	// Rate limiting
	RateLimit   int
	RateBurst   int
	RateBackend string

	// Redis stats sink
	RedisAddress  string
	RedisPassword string
	RedisDB       int

	parseErrors []error
}

// Load creates a Config from environment variables. Values that cannot be
// parsed keep their default and are reported by Validate.
func Load() *Config {
	c := &Config{
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		ProgramName: getEnv("DUP_PROGRAM_NAME", "traffic-duplicator"),
		Origin:      getEnv("DUP_ORIGIN", ""),
		RulesFile:   getEnv("DUP_RULES_FILE", ""),

		RateBackend:   getEnv("DUP_RATE_BACKEND", string(ratelimit.BackendLocal)),
		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
	}

	c.Synchronous = c.getBoolEnv("DUP_SYNCHRONOUS", false)
	c.Amplify = c.getBoolEnv("DUP_AMPLIFY", true)
	c.BreakerEnabled = c.getBoolEnv("DUP_BREAKER_ENABLED", true)

	c.MinThreads = c.getIntEnv("DUP_MIN_THREADS", 1)
	c.MaxThreads = c.getIntEnv("DUP_MAX_THREADS", 10)
	c.MinQueued = c.getIntEnv("DUP_MIN_QUEUED", 10)
	c.MaxQueued = c.getIntEnv("DUP_MAX_QUEUED", 100)
	c.QueueLimit = c.getIntEnv("DUP_QUEUE_LIMIT", 0)
	c.RateLimit = c.getIntEnv("DUP_RATE_LIMIT", 0)
	c.RateBurst = c.getIntEnv("DUP_RATE_BURST", 0)
	c.RedisDB = c.getIntEnv("REDIS_DB", 0)

	c.StatsInterval = c.getDurationEnv("DUP_STATS_INTERVAL", time.Second)
	c.Timeout = c.getDurationEnv("DUP_TIMEOUT", time.Second)

	return c
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Errorf("%s must be a boolean, got %q", key, value))
		return defaultValue
	}
	return parsed
}

func (c *Config) getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Errorf("%s must be a number, got %q", key, value))
		return defaultValue
	}
	return parsed
}

func (c *Config) getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Errorf("%s must be a duration (e.g. '500ms', '1s'), got %q", key, value))
		return defaultValue
	}
	return parsed
}

// Validate checks every setting and returns the first problem as a config
// error.
func (c *Config) Validate() error {
	if len(c.parseErrors) > 0 {
		return errors.ConfigErrorf(c.parseErrors[0], "invalid environment")
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return errors.ConfigError("PORT must be a valid port number between 1 and 65535")
	}

	if c.MinThreads < 0 || c.MaxThreads < 1 || c.MinThreads > c.MaxThreads {
		return errors.ConfigError(fmt.Sprintf(
			"DUP_MIN_THREADS/DUP_MAX_THREADS must satisfy 0 <= min <= max, max >= 1 (got %d/%d)",
			c.MinThreads, c.MaxThreads))
	}
	if c.MinQueued < 0 || c.MinQueued > c.MaxQueued {
		return errors.ConfigError(fmt.Sprintf(
			"DUP_MIN_QUEUED/DUP_MAX_QUEUED must satisfy 0 <= min <= max (got %d/%d)",
			c.MinQueued, c.MaxQueued))
	}
	if c.QueueLimit < 0 {
		return errors.ConfigError("DUP_QUEUE_LIMIT must not be negative")
	}

	if c.StatsInterval <= 0 {
		return errors.ConfigError("DUP_STATS_INTERVAL must be positive")
	}
	if c.Timeout <= 0 {
		return errors.ConfigError("DUP_TIMEOUT must be positive")
	}

	if c.RateLimit < 0 || c.RateBurst < 0 {
		return errors.ConfigError("DUP_RATE_LIMIT and DUP_RATE_BURST must not be negative")
	}
	switch ratelimit.BackendType(c.RateBackend) {
	case ratelimit.BackendLocal:
	case ratelimit.BackendRedis:
		if c.RateLimit > 0 && c.RedisAddress == "" {
			return errors.ConfigError("DUP_RATE_BACKEND=redis requires REDIS_ADDRESS")
		}
	default:
		return errors.ConfigError("DUP_RATE_BACKEND must be 'local' or 'redis'")
	}

	if c.RedisAddress != "" && (c.RedisDB < 0 || c.RedisDB > 15) {
		return errors.ConfigError("REDIS_DB must be a number between 0 and 15")
	}

	return nil
}

// DropThreshold is the queue length beyond which pushes are dropped
func (c *Config) DropThreshold() int {
	if c.QueueLimit > 0 {
		return c.QueueLimit
	}
	return c.MaxThreads * c.MaxQueued
}

// ListenAddr is the address the host listens on
func (c *Config) ListenAddr() string {
	return ":" + c.Port
}

// RateLimitConfig converts the DUP_RATE_* settings
func (c *Config) RateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		Enabled:           c.RateLimit > 0,
		RequestsPerSecond: c.RateLimit,
		BurstSize:         c.RateBurst,
		Type:              ratelimit.BackendType(c.RateBackend),
	}
}

// RedisConfig returns the stats sink settings, or nil when Redis is off
func (c *Config) RedisConfig() *redis.Config {
	if c.RedisAddress == "" {
		return nil
	}
	return &redis.Config{
		Address:  c.RedisAddress,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		Program:  c.ProgramName,
	}
}
