// Package airtable exposes Airtable tables as foreign tables.
//
// A table is addressed by the base_id and table_id table options. Record
// ids map onto the "id" column, the record creation time onto
// "created_time" and every other column is read from the record's fields
// object, converted to the column's declared type.
package airtable

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ajitpratap0/remotescan/pkg/clients"
	"github.com/ajitpratap0/remotescan/pkg/config"
	"github.com/ajitpratap0/remotescan/pkg/connector/base"
	"github.com/ajitpratap0/remotescan/pkg/connector/core"
	"github.com/ajitpratap0/remotescan/pkg/connector/mapper"
	"github.com/ajitpratap0/remotescan/pkg/connector/pagination"
	"github.com/ajitpratap0/remotescan/pkg/connector/pushdown"
	"github.com/ajitpratap0/remotescan/pkg/errors"
	"github.com/ajitpratap0/remotescan/pkg/models"
	"github.com/ajitpratap0/remotescan/pkg/query"
)

const (
	Name    = "AirtableFdw"
	Version = "0.1.2"

	DefaultAPIURL = "https://api.airtable.com/v0"

	// DefaultPageSize is the largest page Airtable serves
	DefaultPageSize = 100
)

// Metadata describes the connector
var Metadata = core.ConnectorMetadata{
	Name:        Name,
	Version:     Version,
	Description: "Airtable bases as foreign tables",
	Website:     "https://airtable.com/developers/web/api/introduction",
	Capabilities: []core.Capability{
		core.CapabilityScan,
		core.CapabilityLimitPushdown,
	},
	ServerOptions: []string{"api_url", "api_key", "api_key_id"},
	TableOptions:  []string{"base_id", "table_id", "view", "page_size"},
}

// Connector is the Airtable wrapper
type Connector struct {
	*base.BaseConnector

	baseURL string
	client  *clients.HTTPClient
	mapper  *mapper.Mapper
}

// NewConnector creates an unopened connector
func NewConnector(deps core.Deps) *Connector {
	bc := base.NewBaseConnector(Name, Version, deps)
	return &Connector{
		BaseConnector: bc,
		baseURL:       DefaultAPIURL,
		mapper:        mapper.New(mapper.AbsentOnError, bc.GetLogger()),
	}
}

// Factory creates connectors for the registry
func Factory(deps core.Deps) (core.Wrapper, error) {
	return NewConnector(deps), nil
}

// Open resolves the API key and creates the HTTP transport
func (c *Connector) Open(ctx context.Context, server config.Options) error {
	if err := c.BaseConnector.Open(ctx, server); err != nil {
		return err
	}
	c.baseURL = server.GetDefault("api_url", DefaultAPIURL)

	key, ok, err := c.Credential(ctx, "api_key", "api_key_id")
	if err != nil {
		return err
	}
	if !ok {
		c.GetLogger().Warn("api key is not configured")
		return nil
	}
	c.client = c.NewHTTPClient(key, nil)
	return nil
}

// recordSchema maps Airtable records onto the requested columns
func recordSchema(table string, columns []models.Column) *mapper.Schema {
	fields := make([]mapper.FieldSpec, 0, len(columns))
	for _, col := range columns {
		switch col.Name {
		case "id":
			fields = append(fields, mapper.Field("id", col.Type))
		case "created_time":
			fields = append(fields, mapper.Nested(col.Name, col.Type, "createdTime"))
		default:
			fields = append(fields, mapper.Nested(col.Name, col.Type, "fields", col.Name))
		}
	}
	return &mapper.Schema{Object: table, Fields: fields, ListKey: "records"}
}

// BeginScan fetches the table's records, following the offset token
func (c *Connector) BeginScan(ctx context.Context, req *core.ScanRequest) error {
	baseID, table := req.Options.Get("base_id"), req.Options.Get("table_id")
	object := ""
	if baseID != "" && table != "" {
		object = baseID + "/" + table
	}
	ctx, session := c.StartScan(ctx, object)
	if !session.Configured() {
		return nil
	}
	if c.client == nil {
		return c.HandleScanError(ctx, errors.New(errors.ErrorTypeConfig, "api key is not configured"))
	}

	pageSize, err := req.Options.Int("page_size", DefaultPageSize)
	if err != nil {
		return c.HandleScanError(ctx, err)
	}
	planner := &pushdown.RESTPlanner{
		BaseURL:       c.baseURL,
		PageSize:      int64(pageSize),
		PageSizeParam: "pageSize",
		CursorParam:   "offset",
	}
	plan, err := planner.Plan(pushdown.RESTObject{Path: object}, nil, req.Limit)
	if err != nil {
		return c.HandleScanError(ctx, err)
	}
	if view := req.Options.Get("view"); view != "" {
		plan.Params.Set("view", view)
	}
	if req.Limit != nil {
		plan.Params.Set("maxRecords", strconv.FormatInt(req.Limit.Ceiling(), 10))
	}

	schema := recordSchema(table, req.Columns)
	fetcher := pagination.FetcherFunc(func(ctx context.Context, cursor query.Cursor, _ int) (*pagination.Page, error) {
		resp, err := c.client.Get(ctx, plan.URL(cursor))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, resp.Err()
		}
		body, err := mapper.DecodeBody(resp.Body)
		if err != nil {
			return nil, err
		}
		rows, _, err := c.mapper.MapBody(schema, body, req.Columns)
		if err != nil {
			return nil, err
		}
		return &pagination.Page{
			Rows:         rows,
			ServerCursor: mapper.StringAt(body, "offset"),
			Bytes:        int64(len(resp.Body)),
		}, nil
	})

	return c.RunPages(ctx, session, pagination.Config{
		Policy:   pagination.CursorFromServer,
		MaxPages: plan.MaxPages,
		Empty:    plan.Empty,
	}, fetcher)
}

// Close ends any scan and releases idle connections
func (c *Connector) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	return c.BaseConnector.Close()
}

var _ core.Wrapper = (*Connector)(nil)
