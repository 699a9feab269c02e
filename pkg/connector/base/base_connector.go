// Package base provides the BaseConnector every remote connector embeds and
// the ScanSession that buffers a scan's rows.
//
// BaseConnector carries what all connectors share: server options,
// credential resolution, the HTTP transport configuration, stats recording,
// error classification and health tracking. A connector supplies the
// planning and the page fetcher; RunPages drives the pagination engine and
// fills the session buffer.
//
//	type MyConnector struct {
//	    *base.BaseConnector
//	}
//
//	func (c *MyConnector) BeginScan(ctx context.Context, req *core.ScanRequest) error {
//	    ctx, session := c.StartScan(ctx, req.Options.Get("object"))
//	    if !session.Configured() {
//	        return nil
//	    }
//	    return c.RunPages(ctx, session, pagination.Config{...}, fetcher)
//	}
package base

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/remotescan/pkg/clients"
	"github.com/ajitpratap0/remotescan/pkg/config"
	"github.com/ajitpratap0/remotescan/pkg/connector/core"
	"github.com/ajitpratap0/remotescan/pkg/connector/pagination"
	"github.com/ajitpratap0/remotescan/pkg/logger"
	"github.com/ajitpratap0/remotescan/pkg/models"
	"github.com/ajitpratap0/remotescan/pkg/query"
	"github.com/ajitpratap0/remotescan/pkg/secrets"
	"github.com/ajitpratap0/remotescan/pkg/stats"
)

// BaseConnector provides common functionality for all connectors
type BaseConnector struct {
	name    string
	version string
	logger  *zap.Logger

	engine  *config.EngineConfig
	stats   stats.Sink
	secrets secrets.Resolver
	server  config.Options

	session       *ScanSession
	errorHandler  *ErrorHandler
	healthChecker *HealthChecker

	closed     bool
	closeMutex sync.Mutex
}

// NewBaseConnector creates a base connector. Missing dependencies get
// process defaults: in-memory stats, environment secrets and the default
// engine configuration.
func NewBaseConnector(name, version string, deps core.Deps) *BaseConnector {
	log := deps.Logger
	if log == nil {
		log = logger.Get()
	}
	log = log.With(zap.String("connector", name))

	engine := deps.Engine
	if engine == nil {
		engine = config.NewEngineConfig(name)
	}
	sink := deps.Stats
	if sink == nil {
		sink = stats.NewRecorder(nil, log)
	}
	resolver := deps.Secrets
	if resolver == nil {
		resolver = secrets.NewEnvResolver()
	}

	return &BaseConnector{
		name:          name,
		version:       version,
		logger:        log,
		engine:        engine,
		stats:         sink,
		secrets:       resolver,
		server:        config.Options{},
		errorHandler:  NewErrorHandler(name, log),
		healthChecker: NewHealthChecker(name, log),
	}
}

// Name returns the connector name
func (bc *BaseConnector) Name() string { return bc.name }

// Version returns the connector version
func (bc *BaseConnector) Version() string { return bc.version }

// GetLogger returns the connector logger
func (bc *BaseConnector) GetLogger() *zap.Logger { return bc.logger }

// Engine returns the engine configuration
func (bc *BaseConnector) Engine() *config.EngineConfig { return bc.engine }

// Stats returns the stats sink
func (bc *BaseConnector) Stats() stats.Sink { return bc.stats }

// ServerOptions returns the options passed to Open
func (bc *BaseConnector) ServerOptions() config.Options { return bc.server }

// Open records the server options and counts the instance creation
func (bc *BaseConnector) Open(_ context.Context, server config.Options) error {
	bc.server = server.Merge(nil)
	bc.stats.Increment(bc.name, stats.CreateTimes, 1)
	bc.logger.Debug("connector opened", zap.String("version", bc.version))
	return nil
}

// Credential resolves an inline or vault-referenced server option
func (bc *BaseConnector) Credential(ctx context.Context, plainKey, idKey string) (string, bool, error) {
	return secrets.Credential(ctx, bc.secrets, bc.server, plainKey, idKey)
}

// NewHTTPClient creates an HTTP transport from the engine configuration,
// authenticating with token as a bearer credential when it is set
func (bc *BaseConnector) NewHTTPClient(token string, headers map[string]string) *clients.HTTPClient {
	cfg := clients.HTTPConfigFromEngine(bc.engine)
	cfg.BearerToken = token
	for k, v := range headers {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(headers))
		}
		cfg.Headers[k] = v
	}
	return clients.NewHTTPClient(cfg, bc.logger)
}

// StartScan discards any previous session and opens a new one on object.
// The returned context carries the scan id for logging.
func (bc *BaseConnector) StartScan(ctx context.Context, object string) (context.Context, *ScanSession) {
	_ = bc.EndScan()
	session := NewScanSession(bc.name, bc.logger)
	session.Open(object)
	bc.session = session
	return logger.ContextWithScan(ctx, session.ID(), bc.name, object), session
}

// Session returns the current scan session, or nil
func (bc *BaseConnector) Session() *ScanSession { return bc.session }

// RunPages drives the pagination loop and buffers its rows. Errors the
// handler maps to an empty result leave the session closed with no rows.
func (bc *BaseConnector) RunPages(ctx context.Context, session *ScanSession, cfg pagination.Config, f pagination.Fetcher) error {
	if !session.BeginFetch() {
		return nil
	}
	if cfg.Connector == "" {
		cfg.Connector = bc.name
	}
	if cfg.Object == "" {
		cfg.Object = session.Object()
	}
	onCursor := cfg.OnCursor
	cfg.OnCursor = func(c query.Cursor) {
		session.SetCursor(c)
		if onCursor != nil {
			onCursor(c)
		}
	}

	res, err := pagination.New(cfg, bc.logger).Run(ctx, f)
	if err != nil {
		bc.healthChecker.Record(err)
		session.Close()
		return bc.HandleScanError(ctx, err)
	}
	bc.healthChecker.Record(nil)

	session.Fill(res)
	bc.stats.Increment(bc.name, stats.RowsIn, int64(len(res.Rows)))
	bc.stats.Increment(bc.name, stats.BytesIn, res.Bytes)
	return nil
}

// HandleScanError maps a scan error to an empty result or a failure
func (bc *BaseConnector) HandleScanError(ctx context.Context, err error) error {
	empty, out := bc.errorHandler.Handle(ctx, PhaseScan, err)
	if empty && bc.session != nil {
		bc.session.Close()
	}
	return out
}

// HandleModifyError records and returns a modify error
func (bc *BaseConnector) HandleModifyError(ctx context.Context, err error) error {
	_, out := bc.errorHandler.Handle(ctx, PhaseModify, err)
	bc.healthChecker.Record(err)
	return out
}

// IterScan returns the next buffered row
func (bc *BaseConnector) IterScan() (*models.Row, bool) {
	if bc.session == nil {
		return nil, false
	}
	return bc.session.Next()
}

// EndScan records the rows handed to the host and releases the buffer
func (bc *BaseConnector) EndScan() error {
	if bc.session == nil {
		return nil
	}
	_, rowsOut, _ := bc.session.Counters()
	bc.stats.Increment(bc.name, stats.RowsOut, rowsOut)
	bc.session.Close()
	bc.session = nil
	return nil
}

// SetHealthCheck sets the check run by Health
func (bc *BaseConnector) SetHealthCheck(fn func(ctx context.Context) error) {
	bc.healthChecker.SetCheckFunc(fn)
}

// Health runs the connector's health check
func (bc *BaseConnector) Health(ctx context.Context) error {
	return bc.healthChecker.Check(ctx)
}

// HealthStatus returns the last recorded health
func (bc *BaseConnector) HealthStatus() *HealthStatus {
	return bc.healthChecker.GetStatus()
}

// Metrics returns a snapshot of the connector's runtime state
func (bc *BaseConnector) Metrics() map[string]interface{} {
	m := map[string]interface{}{
		"name":    bc.name,
		"version": bc.version,
		"health":  bc.healthChecker.GetStatus().Status,
		"errors":  bc.errorHandler.GetErrorStats(),
	}
	if bc.session != nil {
		rowsIn, rowsOut, bytesIn := bc.session.Counters()
		m["session"] = map[string]interface{}{
			"id":       bc.session.ID(),
			"state":    bc.session.State().String(),
			"requests": bc.session.Requests(),
			"rows_in":  rowsIn,
			"rows_out": rowsOut,
			"bytes_in": bytesIn,
		}
	}
	return m
}

// Close ends any open scan. It is safe to call more than once.
func (bc *BaseConnector) Close() error {
	bc.closeMutex.Lock()
	defer bc.closeMutex.Unlock()
	if bc.closed {
		return nil
	}
	bc.closed = true
	return bc.EndScan()
}
