// Package testutil provides testing utilities for remotescan connectors
package testutil

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/remotescan/pkg/config"
	"github.com/ajitpratap0/remotescan/pkg/connector/core"
	"github.com/ajitpratap0/remotescan/pkg/secrets"
	"github.com/ajitpratap0/remotescan/pkg/stats"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// FastEngineConfig returns an engine configuration with millisecond retry
// delays and no circuit breaker
func FastEngineConfig() *config.EngineConfig {
	cfg := config.NewEngineConfig("test")
	cfg.Timeouts.Request = 5 * time.Second
	cfg.Reliability.RetryAttempts = 2
	cfg.Reliability.RetryDelay = time.Millisecond
	cfg.Reliability.MaxRetryDelay = 5 * time.Millisecond
	cfg.Reliability.CircuitBreaker = false
	return cfg
}

// Deps bundles connector dependencies whose state a test can inspect
type Deps struct {
	core.Deps
	Store *stats.MemoryStore
	Vault secrets.StaticResolver
}

// TestDeps returns in-memory dependencies with a test logger
func TestDeps(t *testing.T, secretValues map[string]string) *Deps {
	t.Helper()
	log := TestLogger(t)
	store := stats.NewMemoryStore()
	resolver := secrets.StaticResolver(secretValues)
	return &Deps{
		Deps: core.Deps{
			Secrets: resolver,
			Stats:   stats.NewRecorder(store, log),
			Engine:  FastEngineConfig(),
			Logger:  log,
		},
		Store: store,
		Vault: resolver,
	}
}
