package config

import (
	"fmt"
	"time"
)

// EngineConfig is the process-wide configuration shared by all connectors.
type EngineConfig struct {
	// Name identifies this engine instance in logs and metrics
	Name string `yaml:"name" json:"name"`

	// Timeouts define transport timeout durations
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// Reliability settings for retries, circuit breaking and rate limiting
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`

	// Observability settings for logging, metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`

	// Stats selects where per-connector stats metadata is persisted
	Stats StatsConfig `yaml:"stats" json:"stats"`
}

// TimeoutConfig contains all timeout-related settings.
type TimeoutConfig struct {
	// Request timeout for a single remote call, including body read
	Request time.Duration `yaml:"request" json:"request"`
	// Connection timeout for establishing connections
	Connection time.Duration `yaml:"connection" json:"connection"`
	// Idle timeout before closing inactive connections
	Idle time.Duration `yaml:"idle" json:"idle"`
	// KeepAlive interval for TCP keep-alive packets
	KeepAlive time.Duration `yaml:"keep_alive" json:"keep_alive"`
}

// ReliabilityConfig contains retry and protection settings for the transport.
type ReliabilityConfig struct {
	// RetryAttempts is the number of retries after the first attempt
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// RetryMultiplier increases delay exponentially
	RetryMultiplier float64 `yaml:"retry_multiplier" json:"retry_multiplier"`
	// MaxRetryDelay caps the maximum retry delay
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
	// CircuitBreaker enables the circuit breaker on HTTP transports
	CircuitBreaker bool `yaml:"circuit_breaker" json:"circuit_breaker"`
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold"`
	// BreakerTimeout is how long the circuit stays open
	BreakerTimeout time.Duration `yaml:"breaker_timeout" json:"breaker_timeout"`
	// RateLimitPerSec limits requests per second (0 = unlimited)
	RateLimitPerSec int `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	// RateLimitBurst is the token bucket size
	RateLimitBurst int `yaml:"rate_limit_burst" json:"rate_limit_burst"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	EnableMetrics bool   `yaml:"enable_metrics" json:"enable_metrics"`
	EnableTracing bool   `yaml:"enable_tracing" json:"enable_tracing"`
	LogLevel      string `yaml:"log_level" json:"log_level"`
	LogEncoding   string `yaml:"log_encoding" json:"log_encoding"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
}

// StatsConfig selects the stats metadata store. An empty DSN keeps metadata
// in memory.
type StatsConfig struct {
	DSN string `yaml:"dsn" json:"dsn"`
}

// NewEngineConfig creates an EngineConfig with defaults matching the remote
// services' published limits: three retries with exponential backoff.
func NewEngineConfig(name string) *EngineConfig {
	return &EngineConfig{
		Name: name,
		Timeouts: TimeoutConfig{
			Request:    30 * time.Second,
			Connection: 10 * time.Second,
			Idle:       90 * time.Second,
			KeepAlive:  30 * time.Second,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:    3,
			RetryDelay:       500 * time.Millisecond,
			RetryMultiplier:  2.0,
			MaxRetryDelay:    30 * time.Second,
			CircuitBreaker:   true,
			FailureThreshold: 5,
			BreakerTimeout:   30 * time.Second,
			RateLimitPerSec:  0,
			RateLimitBurst:   1,
		},
		Observability: ObservabilityConfig{
			EnableMetrics:     true,
			EnableTracing:     false,
			LogLevel:          "info",
			LogEncoding:       "json",
			TracingSampleRate: 1.0,
		},
	}
}

// Validate validates the configuration for correctness.
func (c *EngineConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Timeouts.Request <= 0 {
		return fmt.Errorf("timeouts.request must be positive")
	}
	if c.Reliability.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts cannot be negative")
	}
	if c.Reliability.RetryAttempts > 0 && c.Reliability.RetryMultiplier < 1 {
		return fmt.Errorf("retry_multiplier must be at least 1")
	}
	if c.Reliability.RateLimitPerSec < 0 {
		return fmt.Errorf("rate_limit_per_sec cannot be negative")
	}
	if c.Reliability.CircuitBreaker && c.Reliability.FailureThreshold <= 0 {
		return fmt.Errorf("failure_threshold must be positive when circuit_breaker is enabled")
	}
	if r := c.Observability.TracingSampleRate; r < 0 || r > 1 {
		return fmt.Errorf("tracing_sample_rate must be between 0 and 1")
	}
	return nil
}

// IsRateLimited returns true if rate limiting is enabled
func (r *ReliabilityConfig) IsRateLimited() bool {
	return r.RateLimitPerSec > 0
}
