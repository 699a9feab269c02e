package clients

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"go.uber.org/zap"

	"github.com/ajitpratap0/remotescan/pkg/errors"
)

// Driver names understood by database/sql
const (
	DriverMySQL = "mysql"
	DriverPgx   = "pgx"
)

// SQLConfig configures a SQL client
type SQLConfig struct {
	// DSN is a URL; its scheme picks the wire protocol. mysql:// and
	// clickhouse:// speak the MySQL protocol, postgres:// and postgresql://
	// the PostgreSQL protocol.
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
	Retry           *RetryPolicy
}

// ResultSet is a fully fetched query result. Values are as returned by the
// driver with []byte converted to string.
type ResultSet struct {
	Columns []string
	Rows    [][]interface{}
}

// Len returns the number of rows
func (rs *ResultSet) Len() int {
	return len(rs.Rows)
}

// SQLClient runs statements against a remote SQL server
type SQLClient struct {
	db     *sql.DB
	driver string
	retry  *RetryPolicy
	logger *zap.Logger
}

// ParseDSN maps a URL-style DSN onto a driver name and driver DSN
func ParseDSN(dsn string) (string, string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", errors.Wrap(err, errors.ErrorTypeConfig, "invalid connection string")
	}

	switch strings.ToLower(u.Scheme) {
	case "mysql", "clickhouse":
		cfg := mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = u.Host
		if u.Port() == "" {
			cfg.Addr = net.JoinHostPort(u.Hostname(), "9004")
		}
		if u.User != nil {
			cfg.User = u.User.Username()
			cfg.Passwd, _ = u.User.Password()
		}
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		if q := u.Query(); len(q) > 0 {
			cfg.Params = make(map[string]string, len(q))
			for k := range q {
				cfg.Params[k] = q.Get(k)
			}
		}
		return DriverMySQL, cfg.FormatDSN(), nil
	case "postgres", "postgresql":
		return DriverPgx, dsn, nil
	default:
		return "", "", errors.Newf(errors.ErrorTypeConfig, "unsupported connection scheme %q", u.Scheme)
	}
}

// OpenSQL opens and pings a SQL connection
func OpenSQL(ctx context.Context, cfg SQLConfig, logger *zap.Logger) (*SQLClient, error) {
	if cfg.DSN == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "connection string is required")
	}
	driverName, driverDSN, err := ParseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, driverDSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open database")
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(classifySQLError(err), errors.ErrorTypeConnection, "failed to ping database")
	}

	return NewSQLClientFromDB(db, driverName, cfg.Retry, logger), nil
}

// NewSQLClientFromDB wraps an existing handle
func NewSQLClientFromDB(db *sql.DB, driverName string, retry *RetryPolicy, logger *zap.Logger) *SQLClient {
	if retry == nil {
		retry = NoRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLClient{
		db:     db,
		driver: driverName,
		retry:  retry,
		logger: logger.With(zap.String("component", "sql_client"), zap.String("driver", driverName)),
	}
}

// Driver returns the database/sql driver name
func (c *SQLClient) Driver() string {
	return c.driver
}

// Query runs a query and fetches the whole result. Connection-level
// failures are retried; query errors are not.
func (c *SQLClient) Query(ctx context.Context, query string) (*ResultSet, error) {
	var rs *ResultSet
	err := c.retry.Execute(ctx, func(attempt int) error {
		if attempt > 0 {
			c.logger.Debug("retrying query", zap.Int("attempt", attempt))
		}
		var err error
		rs, err = c.query(ctx, query)
		return err
	}, errors.IsRetryable)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func (c *SQLClient) query(ctx context.Context, query string) (*ResultSet, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classifySQLError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classifySQLError(err)
	}

	rs := &ResultSet{Columns: cols}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan row")
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLError(err)
	}

	c.logger.Debug("query completed", zap.Int("rows", len(rs.Rows)))
	return rs, nil
}

// Exec runs a statement once and returns the affected row count, or -1 when
// the driver does not report it
func (c *SQLClient) Exec(ctx context.Context, stmt string) (int64, error) {
	res, err := c.db.ExecContext(ctx, stmt)
	if err != nil {
		return 0, classifySQLError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1, nil
	}
	return n, nil
}

// Close closes the underlying handle
func (c *SQLClient) Close() error {
	return c.db.Close()
}

func classifySQLError(err error) error {
	if errors.Is(err, context.Canceled) {
		return errors.Wrap(err, errors.ErrorTypeInternal, "query cancelled")
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return errors.Wrap(err, errors.ErrorTypeConnection, "bad connection")
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "query timed out")
	}
	if errors.As(err, &netErr) {
		return errors.Wrap(err, errors.ErrorTypeConnection, "network error")
	}
	return errors.Wrap(err, errors.ErrorTypeQuery, "query failed")
}
