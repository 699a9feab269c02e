package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/remotescan/pkg/clients"
	"github.com/ajitpratap0/remotescan/pkg/config"
	"github.com/ajitpratap0/remotescan/pkg/connector/core"
	"github.com/ajitpratap0/remotescan/pkg/logger"
	"github.com/ajitpratap0/remotescan/pkg/observability"
	"github.com/ajitpratap0/remotescan/pkg/secrets"
	"github.com/ajitpratap0/remotescan/pkg/stats"
)

// bindGlobalFlags wires the persistent flags and REMOTESCAN_* environment
// variables into v
func bindGlobalFlags(root *cobra.Command, v *viper.Viper) {
	flags := root.PersistentFlags()
	flags.String("config", "", "Path to the engine configuration YAML file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("stats-dsn", "", "PostgreSQL DSN for the stats store and secret vault")
	flags.Bool("tracing", false, "Export trace spans to stderr")

	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("stats.dsn", flags.Lookup("stats-dsn"))
	_ = v.BindPFlag("tracing", flags.Lookup("tracing"))

	v.SetEnvPrefix("REMOTESCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// loadEngineConfig reads the engine file, then applies flag and environment
// overrides
func loadEngineConfig(v *viper.Viper) (*config.EngineConfig, error) {
	cfg := config.NewEngineConfig("remotescan")
	if path := v.GetString("config"); path != "" {
		if err := config.Load(path, cfg); err != nil {
			return nil, err
		}
	}
	if v.IsSet("log_level") {
		cfg.Observability.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("stats.dsn") {
		cfg.Stats.DSN = v.GetString("stats.dsn")
	}
	if v.IsSet("tracing") {
		cfg.Observability.EnableTracing = v.GetBool("tracing")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine configuration: %w", err)
	}
	return cfg, nil
}

// app holds the process-wide services of one CLI invocation
type app struct {
	engine   *config.EngineConfig
	log      *zap.Logger
	db       *sql.DB
	store    stats.Store
	deps     core.Deps
	shutdown observability.ShutdownFunc
}

func newApp(ctx context.Context, v *viper.Viper) (*app, error) {
	cfg, err := loadEngineConfig(v)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Encoding:    "console",
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return nil, err
	}
	logger.Set(log)

	shutdown, err := observability.InitTracing(observability.TracingConfigFromEngine(cfg, version))
	if err != nil {
		return nil, err
	}

	a := &app{engine: cfg, log: log, shutdown: shutdown}
	var store stats.Store = stats.NewMemoryStore()
	resolver := secrets.Chain{secrets.NewEnvResolver()}

	if cfg.Stats.DSN != "" {
		db, err := sql.Open(clients.DriverPgx, cfg.Stats.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open stats database: %w", err)
		}
		pg := stats.NewPostgresStore(db)
		if err := pg.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.db = db
		store = pg
		resolver = append(resolver, secrets.NewPostgresResolver(db))
	}

	a.store = store
	a.deps = core.Deps{
		Secrets: resolver,
		Stats:   stats.NewRecorder(store, log),
		Engine:  cfg,
		Logger:  log,
	}
	return a, nil
}

// Close flushes traces and logs and closes the stats database
func (a *app) Close() {
	if a.shutdown != nil {
		_ = a.shutdown(context.Background())
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.log.Sync()
}
