package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ajitpratap0/remotescan/pkg/errors"
	jsonpool "github.com/ajitpratap0/remotescan/pkg/json"
)

// Schema creates the stats table used by PostgresStore
const Schema = `create schema if not exists remotescan;
create table if not exists remotescan.stats (
  fdw_name text primary key,
  create_times bigint not null default 0,
  rows_in bigint not null default 0,
  rows_out bigint not null default 0,
  bytes_in bigint not null default 0,
  bytes_out bigint not null default 0,
  metadata jsonb,
  created_at timestamptz not null default now(),
  updated_at timestamptz not null default now()
)`

// metricColumns whitelists the columns Increment may touch
var metricColumns = map[Metric]string{
	CreateTimes: "create_times",
	RowsIn:      "rows_in",
	RowsOut:     "rows_out",
	BytesIn:     "bytes_in",
	BytesOut:    "bytes_out",
}

// PostgresStore persists stats in a Postgres table so they survive restarts
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the stats table if it does not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "create stats table")
	}
	return nil
}

// Increment adds n to a counter, creating the row on first use
func (s *PostgresStore) Increment(ctx context.Context, connector string, metric Metric, n int64) error {
	col, ok := metricColumns[metric]
	if !ok {
		return unknownMetric(metric)
	}
	q := fmt.Sprintf(`insert into remotescan.stats as s (fdw_name, %[1]s)
values ($1, $2)
on conflict (fdw_name) do update set %[1]s = s.%[1]s + $2, updated_at = now()`, col)
	if _, err := s.db.ExecContext(ctx, q, connector, n); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "increment stats").
			WithDetail("connector", connector).
			WithDetail("metric", string(metric))
	}
	return nil
}

// GetMetadata returns the stored metadata, or nil when the connector has none
func (s *PostgresStore) GetMetadata(ctx context.Context, connector string) (map[string]interface{}, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`select metadata from remotescan.stats where fdw_name = $1`, connector).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "get stats metadata").
			WithDetail("connector", connector)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var meta map[string]interface{}
	if err := jsonpool.DecodeBytes(raw, &meta); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMapping, "decode stats metadata")
	}
	return meta, nil
}

// SetMetadata replaces the stored metadata
func (s *PostgresStore) SetMetadata(ctx context.Context, connector string, meta map[string]interface{}) error {
	var raw interface{}
	if meta != nil {
		b, err := jsonpool.Marshal(meta)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeMapping, "encode stats metadata")
		}
		raw = string(b)
	}
	_, err := s.db.ExecContext(ctx, `insert into remotescan.stats as s (fdw_name, metadata)
values ($1, $2)
on conflict (fdw_name) do update set metadata = $2, updated_at = now()`, connector, raw)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "set stats metadata").
			WithDetail("connector", connector)
	}
	return nil
}

const incrementMetadataSQL = `insert into remotescan.stats as s (fdw_name, metadata)
values ($1, jsonb_build_object($2::text, $3::bigint))
on conflict (fdw_name) do update set
  metadata = jsonb_set(coalesce(s.metadata, '{}'::jsonb), array[$2::text],
    to_jsonb(coalesce((s.metadata->>$2::text)::bigint, 0) + $3::bigint)),
  updated_at = now()
returning (metadata->>$2::text)::bigint`

// IncrementMetadata adds n to the integer at key in a single upsert
func (s *PostgresStore) IncrementMetadata(ctx context.Context, connector, key string, n int64) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, incrementMetadataSQL, connector, key, n).Scan(&v); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeQuery, "increment stats metadata").
			WithDetail("connector", connector).
			WithDetail("key", key)
	}
	return v, nil
}

// List returns every stored record ordered by connector
func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `select fdw_name, create_times, rows_in, rows_out, bytes_in, bytes_out,
  metadata, created_at, updated_at
from remotescan.stats
order by fdw_name`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "list stats")
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make([]Record, 0)
	for rows.Next() {
		var rec Record
		var createTimes, rowsIn, rowsOut, bytesIn, bytesOut int64
		var raw []byte
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&rec.Connector, &createTimes, &rowsIn, &rowsOut, &bytesIn, &bytesOut,
			&raw, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "scan stats row")
		}
		rec.Counters = map[Metric]int64{
			CreateTimes: createTimes,
			RowsIn:      rowsIn,
			RowsOut:     rowsOut,
			BytesIn:     bytesIn,
			BytesOut:    bytesOut,
		}
		if len(raw) > 0 {
			if err := jsonpool.DecodeBytes(raw, &rec.Metadata); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeMapping, "decode stats metadata").
					WithDetail("connector", rec.Connector)
			}
		}
		rec.CreatedAt = createdAt.UTC()
		rec.UpdatedAt = updatedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "iterate stats rows")
	}
	return out, nil
}
