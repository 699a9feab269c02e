// Package clickhouse exposes ClickHouse tables and parameterised queries as
// foreign tables.
//
// The connection string's scheme selects the wire protocol: clickhouse://
// and mysql:// use ClickHouse's MySQL interface, postgres:// its PostgreSQL
// interface. The "table" option is either a table name or a parenthesised
// sub-query whose ${column} placeholders are filled from equality quals.
// Quals, sorts and the limit ceiling are pushed into the remote query and
// the whole result is fetched in one round trip.
package clickhouse

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/remotescan/pkg/clients"
	"github.com/ajitpratap0/remotescan/pkg/config"
	"github.com/ajitpratap0/remotescan/pkg/connector/base"
	"github.com/ajitpratap0/remotescan/pkg/connector/core"
	"github.com/ajitpratap0/remotescan/pkg/connector/mapper"
	"github.com/ajitpratap0/remotescan/pkg/connector/pagination"
	"github.com/ajitpratap0/remotescan/pkg/connector/pushdown"
	"github.com/ajitpratap0/remotescan/pkg/errors"
	"github.com/ajitpratap0/remotescan/pkg/logger"
	"github.com/ajitpratap0/remotescan/pkg/models"
	"github.com/ajitpratap0/remotescan/pkg/query"
)

const (
	Name    = "ClickHouseFdw"
	Version = "0.1.3"
)

// Metadata describes the connector
var Metadata = core.ConnectorMetadata{
	Name:        Name,
	Version:     Version,
	Description: "ClickHouse tables and queries as foreign tables",
	Website:     "https://clickhouse.com/docs/en/interfaces/mysql",
	Capabilities: []core.Capability{
		core.CapabilityScan,
		core.CapabilityModify,
		core.CapabilityFilterPushdown,
		core.CapabilitySortPushdown,
		core.CapabilityLimitPushdown,
	},
	ServerOptions: []string{"conn_string", "conn_string_id"},
	TableOptions:  []string{"table", "rowid_column"},
}

// Dialer opens a SQL client for a connection string
type Dialer func(ctx context.Context, dsn string) (*clients.SQLClient, error)

// Connector is the ClickHouse wrapper
type Connector struct {
	*base.BaseConnector

	dsn    string
	dial   Dialer
	client *clients.SQLClient
	mapper *mapper.Mapper

	table    string
	rowidCol string
}

// NewConnector creates an unopened connector
func NewConnector(deps core.Deps) *Connector {
	bc := base.NewBaseConnector(Name, Version, deps)
	c := &Connector{
		BaseConnector: bc,
		mapper:        mapper.New(mapper.StopPageOnError, bc.GetLogger()),
	}
	c.dial = c.openSQL
	return c
}

// Factory creates connectors for the registry
func Factory(deps core.Deps) (core.Wrapper, error) {
	return NewConnector(deps), nil
}

func (c *Connector) openSQL(ctx context.Context, dsn string) (*clients.SQLClient, error) {
	rel := c.Engine().Reliability
	return clients.OpenSQL(ctx, clients.SQLConfig{
		DSN:          dsn,
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  c.Engine().Timeouts.Connection,
		Retry:        clients.NewRetryPolicy(rel.RetryAttempts, rel.RetryDelay, rel.MaxRetryDelay, rel.RetryMultiplier),
	}, c.GetLogger())
}

// SetDialer replaces the function used to connect
func (c *Connector) SetDialer(d Dialer) {
	c.dial = d
}

// Open resolves the connection string. The connection itself is made on
// first use.
func (c *Connector) Open(ctx context.Context, server config.Options) error {
	if err := c.BaseConnector.Open(ctx, server); err != nil {
		return err
	}
	dsn, ok, err := c.Credential(ctx, "conn_string", "conn_string_id")
	if err != nil {
		return err
	}
	if !ok {
		c.GetLogger().Warn("connection string is not configured")
	}
	c.dsn = dsn
	c.SetHealthCheck(func(ctx context.Context) error {
		client, err := c.connect(ctx)
		if err != nil {
			return err
		}
		_, err = client.Query(ctx, "select 1")
		return err
	})
	return nil
}

func (c *Connector) connect(ctx context.Context) (*clients.SQLClient, error) {
	if c.client != nil {
		return c.client, nil
	}
	if c.dsn == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "connection string is not configured")
	}
	client, err := c.dial(ctx, c.dsn)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

// BeginScan deparses and runs the remote query
func (c *Connector) BeginScan(ctx context.Context, req *core.ScanRequest) error {
	ctx, session := c.StartScan(ctx, req.Options.Get("table"))
	if !session.Configured() {
		return nil
	}

	plan, err := pushdown.DeparseSQL(session.Object(), req.Quals, req.Columns, req.Sorts, req.Limit)
	if err != nil {
		return c.HandleScanError(ctx, err)
	}
	client, err := c.connect(ctx)
	if err != nil {
		return c.HandleScanError(ctx, err)
	}

	log := logger.FromContext(ctx, c.GetLogger())
	log.Debug("remote query", zap.String("sql", plan.SQL))
	if len(plan.Unconsumed) > 0 {
		log.Debug("quals left to the host", zap.Int("count", len(plan.Unconsumed)))
	}

	schema := resultSchema(session.Object(), req.Columns)
	fetcher := pagination.FetcherFunc(func(ctx context.Context, _ query.Cursor, _ int) (*pagination.Page, error) {
		rs, err := client.Query(ctx, plan.SQL)
		if err != nil {
			return nil, err
		}
		rows, truncated, err := c.mapper.MapObjects(schema, resultObjects(rs), req.Columns)
		if err != nil {
			return nil, err
		}
		if truncated {
			log.Warn("result truncated at unsupported value",
				zap.Int("fetched", rs.Len()),
				zap.Int("returned", len(rows)))
		}
		for _, row := range rows {
			pushdown.EchoParams(row, plan.Params, req.Columns)
		}
		return &pagination.Page{Rows: rows}, nil
	})

	return c.RunPages(ctx, session, pagination.Config{
		Policy: pagination.SinglePage,
		Empty:  plan.Empty,
	}, fetcher)
}

// resultSchema reads every column from the result column of the same name
func resultSchema(table string, columns []models.Column) *mapper.Schema {
	fields := make([]mapper.FieldSpec, len(columns))
	for i, col := range columns {
		fields[i] = mapper.Field(col.Name, col.Type)
	}
	return &mapper.Schema{Object: table, Fields: fields}
}

func resultObjects(rs *clients.ResultSet) []map[string]interface{} {
	objs := make([]map[string]interface{}, len(rs.Rows))
	for i, values := range rs.Rows {
		obj := make(map[string]interface{}, len(rs.Columns))
		for j, name := range rs.Columns {
			obj[name] = values[j]
		}
		objs[i] = obj
	}
	return objs
}

// BeginModify records the target table and rowid column
func (c *Connector) BeginModify(ctx context.Context, table config.Options) error {
	name, err := table.Require("table")
	if err != nil {
		return err
	}
	rowid, err := table.Require("rowid_column")
	if err != nil {
		return err
	}
	c.table = name
	c.rowidCol = rowid
	if _, err := c.connect(ctx); err != nil {
		return c.HandleModifyError(ctx, err)
	}
	return nil
}

// Insert writes one row
func (c *Connector) Insert(ctx context.Context, row *models.Row) error {
	stmt, err := insertStatement(c.table, row)
	if err != nil {
		return c.HandleModifyError(ctx, err)
	}
	return c.exec(ctx, "insert", stmt)
}

// Update changes the row whose rowid column equals rowid
func (c *Connector) Update(ctx context.Context, rowid *models.Cell, row *models.Row) error {
	var sets []string
	row.Range(func(name string, cell *models.Cell) bool {
		if name != c.rowidCol {
			sets = append(sets, name+" = "+pushdown.Literal(cell))
		}
		return true
	})
	if len(sets) == 0 {
		return nil
	}
	stmt := "alter table " + c.table + " update " + strings.Join(sets, ", ") +
		" where " + c.rowidCol + " = " + pushdown.Literal(rowid)
	return c.exec(ctx, "update", stmt)
}

// Delete removes the row whose rowid column equals rowid
func (c *Connector) Delete(ctx context.Context, rowid *models.Cell) error {
	stmt := "alter table " + c.table + " delete where " + c.rowidCol + " = " + pushdown.Literal(rowid)
	return c.exec(ctx, "delete", stmt)
}

// EndModify is a no-op; statements run as they arrive
func (c *Connector) EndModify() error { return nil }

func (c *Connector) exec(ctx context.Context, op, stmt string) error {
	if c.table == "" {
		return c.HandleModifyError(ctx, errors.New(errors.ErrorTypeConfig, "modify has not begun"))
	}
	client, err := c.connect(ctx)
	if err != nil {
		return c.HandleModifyError(ctx, err)
	}
	if _, err := client.Exec(ctx, stmt); err != nil {
		return c.HandleModifyError(ctx, errors.Wrap(err, errors.ErrorTypeQuery, op+" failed").
			WithDetail("table", c.table))
	}
	logger.FromContext(ctx, c.GetLogger()).Debug(op+" executed", zap.String("table", c.table))
	return nil
}

// insertStatement renders "insert into t (cols) values (literals)". Absent
// cells are left to the column default.
func insertStatement(table string, row *models.Row) (string, error) {
	var (
		cols    []string
		values  []string
		typeErr error
	)
	row.Range(func(name string, cell *models.Cell) bool {
		if cell == nil {
			return true
		}
		if cell.Type == models.TypeJSON {
			typeErr = errors.Newf(errors.ErrorTypeUnsupported, "field type %s not supported", cell.Type).
				WithDetail("column", name)
			return false
		}
		cols = append(cols, name)
		values = append(values, pushdown.Literal(cell))
		return true
	})
	if typeErr != nil {
		return "", typeErr
	}
	if len(cols) == 0 {
		return "", errors.New(errors.ErrorTypeValidation, "row has no values")
	}
	return "insert into " + table + " (" + strings.Join(cols, ", ") + ") values (" +
		strings.Join(values, ", ") + ")", nil
}

// Close ends any scan and closes the connection pool
func (c *Connector) Close() error {
	err := c.BaseConnector.Close()
	if c.client != nil {
		if cerr := c.client.Close(); cerr != nil && err == nil {
			err = cerr
		}
		c.client = nil
	}
	return err
}

var (
	_ core.Wrapper  = (*Connector)(nil)
	_ core.Modifier = (*Connector)(nil)
)
