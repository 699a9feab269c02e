// Package stats keeps per-connector usage counters and connector metadata.
//
// Counters (create_times, bytes_in, rows_in, rows_out) are shared by every
// scan session in the process and are safe for concurrent use. Metadata is
// a JSON object a connector may persist between scans, such as a running
// request count.
package stats

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/remotescan/pkg/errors"
	jsonpool "github.com/ajitpratap0/remotescan/pkg/json"
	"github.com/ajitpratap0/remotescan/pkg/metrics"
)

// Metric names a usage counter
type Metric string

const (
	CreateTimes Metric = "create_times"
	BytesIn     Metric = "bytes_in"
	BytesOut    Metric = "bytes_out"
	RowsIn      Metric = "rows_in"
	RowsOut     Metric = "rows_out"
)

// Metrics lists every counter in display order
var Metrics = []Metric{CreateTimes, RowsIn, RowsOut, BytesIn, BytesOut}

// Valid reports whether m is a known metric
func (m Metric) Valid() bool {
	for _, known := range Metrics {
		if m == known {
			return true
		}
	}
	return false
}

// Record is the stored state of one connector
type Record struct {
	Connector string                 `json:"connector"`
	Counters  map[Metric]int64       `json:"counters"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Store persists counters and metadata
type Store interface {
	Increment(ctx context.Context, connector string, metric Metric, n int64) error
	GetMetadata(ctx context.Context, connector string) (map[string]interface{}, error)
	SetMetadata(ctx context.Context, connector string, meta map[string]interface{}) error
	// IncrementMetadata adds n to the integer metadata value at key in one
	// atomic step and returns the new value
	IncrementMetadata(ctx context.Context, connector, key string, n int64) (int64, error)
	List(ctx context.Context) ([]Record, error)
}

// Sink is what connectors report to. Increment never fails the caller.
type Sink interface {
	Increment(connector string, metric Metric, n int64)
	GetMetadata(ctx context.Context, connector string) (map[string]interface{}, error)
	SetMetadata(ctx context.Context, connector string, meta map[string]interface{}) error
	IncrementMetadata(ctx context.Context, connector, key string, n int64) (int64, error)
}

// Recorder is the Sink backed by a Store. It mirrors counters into
// Prometheus and logs store failures instead of returning them.
type Recorder struct {
	store   Store
	logger  *zap.Logger
	timeout time.Duration
}

// NewRecorder creates a recorder; a nil store keeps stats in memory
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:   store,
		logger:  logger.With(zap.String("component", "stats")),
		timeout: 5 * time.Second,
	}
}

// Store returns the underlying store
func (r *Recorder) Store() Store {
	return r.store
}

// Increment adds n to a counter
func (r *Recorder) Increment(connector string, metric Metric, n int64) {
	if n == 0 {
		return
	}
	metrics.ConnectorStats.WithLabelValues(connector, string(metric)).Add(float64(n))

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.store.Increment(ctx, connector, metric, n); err != nil {
		r.logger.Warn("failed to record stats",
			zap.String("connector", connector),
			zap.String("metric", string(metric)),
			zap.Int64("amount", n),
			zap.Error(err))
	}
}

// GetMetadata returns the connector's metadata, or nil when none is stored
func (r *Recorder) GetMetadata(ctx context.Context, connector string) (map[string]interface{}, error) {
	return r.store.GetMetadata(ctx, connector)
}

// SetMetadata replaces the connector's metadata
func (r *Recorder) SetMetadata(ctx context.Context, connector string, meta map[string]interface{}) error {
	return r.store.SetMetadata(ctx, connector, meta)
}

// IncrementMetadata adds n to a numeric metadata value
func (r *Recorder) IncrementMetadata(ctx context.Context, connector, key string, n int64) (int64, error) {
	return r.store.IncrementMetadata(ctx, connector, key, n)
}

func unknownMetric(m Metric) error {
	return errors.Newf(errors.ErrorTypeValidation, "unknown stats metric %q", string(m))
}

// MetaInt reads an integer from metadata, returning 0 when the key is
// missing or not numeric
func MetaInt(meta map[string]interface{}, key string) int64 {
	switch v := meta[key].(type) {
	case jsonpool.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0
			}
			return int64(f)
		}
		return n
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	}
	return 0
}
