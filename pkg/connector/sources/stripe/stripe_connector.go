// Package stripe exposes Stripe API objects as foreign tables.
//
// Each table names one object (charges, customers, checkout/sessions, ...)
// through the "object" table option. Scans page through the list endpoint
// 100 records at a time with starting_after set to the last record's id;
// a lone "id = 'x'" qual becomes a direct object fetch. Inserts, updates
// and deletes are sent as form-encoded requests.
package stripe

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
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
	"github.com/ajitpratap0/remotescan/pkg/stats"
)

const (
	// Name is the connector name used for registration and stats
	Name    = "StripeFdw"
	Version = "0.1.7"

	// DefaultAPIURL is used when the api_url server option is unset
	DefaultAPIURL = "https://api.stripe.com/v1/"

	// PageSize is the largest page the list endpoints return
	PageSize = 100

	requestCountKey = "request_cnt"
)

// Metadata describes the connector
var Metadata = core.ConnectorMetadata{
	Name:        Name,
	Version:     Version,
	Description: "Stripe API objects as foreign tables",
	Website:     "https://stripe.com/docs/api",
	Capabilities: []core.Capability{
		core.CapabilityScan,
		core.CapabilityModify,
		core.CapabilityPointLookup,
		core.CapabilityFilterPushdown,
		core.CapabilityLimitPushdown,
	},
	ServerOptions: []string{"api_url", "api_key", "api_key_id"},
	TableOptions:  []string{"object", "rowid_column"},
}

// Connector is the Stripe wrapper
type Connector struct {
	*base.BaseConnector

	baseURL string
	client  *clients.HTTPClient
	mapper  *mapper.Mapper

	object   string
	rowidCol string
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

// Open resolves the API key and creates the HTTP transport. Without a key
// the connector stays unconfigured and scans return no rows.
func (c *Connector) Open(ctx context.Context, server config.Options) error {
	if err := c.BaseConnector.Open(ctx, server); err != nil {
		return err
	}

	c.baseURL = server.GetDefault("api_url", DefaultAPIURL)
	if !strings.HasSuffix(c.baseURL, "/") {
		c.baseURL += "/"
	}

	key, ok, err := c.Credential(ctx, "api_key", "api_key_id")
	if err != nil {
		return err
	}
	if !ok {
		c.GetLogger().Warn("api key is not configured")
		return nil
	}
	c.client = c.NewHTTPClient(key, nil)
	c.SetHealthCheck(func(ctx context.Context) error {
		resp, err := c.client.Get(ctx, c.baseURL+"balance")
		if err != nil {
			return err
		}
		return resp.Err()
	})
	return nil
}

func (c *Connector) planner() *pushdown.RESTPlanner {
	return &pushdown.RESTPlanner{
		BaseURL:       c.baseURL,
		PageSize:      PageSize,
		PageSizeParam: "limit",
		CursorParam:   "starting_after",
	}
}

// BeginScan fetches every requested page of the table's object
func (c *Connector) BeginScan(ctx context.Context, req *core.ScanRequest) error {
	ctx, session := c.StartScan(ctx, req.Options.Get("object"))
	if !session.Configured() {
		return nil
	}
	if c.client == nil {
		return c.HandleScanError(ctx, errors.New(errors.ErrorTypeConfig, "api key is not configured"))
	}

	name := session.Object()
	obj, ok := catalog[name]
	if !ok {
		return c.HandleScanError(ctx, pushdown.NotImplemented(name))
	}

	plan, err := c.planner().Plan(obj.rest, req.Quals, req.Limit)
	if err != nil {
		return c.HandleScanError(ctx, err)
	}
	if len(plan.Unconsumed) > 0 {
		logger.FromContext(ctx, c.GetLogger()).Debug("quals left to the host",
			zap.Int("count", len(plan.Unconsumed)))
	}

	fetcher := pagination.FetcherFunc(func(ctx context.Context, cursor query.Cursor, _ int) (*pagination.Page, error) {
		return c.fetchPage(ctx, obj, plan, cursor, req.Columns)
	})

	cfg := pagination.Config{
		Object:             name,
		Policy:             pagination.CursorFromLastRow,
		MaxPages:           plan.MaxPages,
		Empty:              plan.Empty,
		StopWithoutHasMore: true,
	}
	if err := c.RunPages(ctx, session, cfg, fetcher); err != nil {
		return err
	}
	if n := session.Requests(); n > 0 {
		c.addRequestCount(ctx, n)
	}
	return nil
}

func (c *Connector) fetchPage(ctx context.Context, obj *object, plan *pushdown.RESTPlan, cursor query.Cursor, columns []models.Column) (*pagination.Page, error) {
	resp, err := c.client.Get(ctx, plan.URL(cursor))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return &pagination.Page{NotFound: true}, nil
	}
	if !resp.IsSuccess() {
		return nil, resp.Err()
	}

	body, err := mapper.DecodeBody(resp.Body)
	if err != nil {
		return nil, err
	}
	objs, err := obj.schema.Extract(body)
	if err != nil {
		return nil, err
	}
	rows, _, err := c.mapper.MapObjects(obj.schema, objs, columns)
	if err != nil {
		return nil, err
	}

	page := &pagination.Page{
		Rows:    rows,
		HasMore: mapper.BoolAt(body, "has_more"),
		Bytes:   int64(len(resp.Body)),
	}
	if len(objs) > 0 {
		page.LastRowCursor = mapper.StringAt(objs[len(objs)-1], "id")
	}
	return page, nil
}

// addRequestCount adds n to the request_cnt stats metadata
func (c *Connector) addRequestCount(ctx context.Context, n int64) {
	if _, err := c.Stats().IncrementMetadata(ctx, Name, requestCountKey, n); err != nil {
		c.GetLogger().Warn("failed to update stats metadata", zap.Error(err))
	}
}

// BeginModify records the target object and rowid column
func (c *Connector) BeginModify(_ context.Context, table config.Options) error {
	obj, err := table.Require("object")
	if err != nil {
		return err
	}
	rowid, err := table.Require("rowid_column")
	if err != nil {
		return err
	}
	c.object = obj
	c.rowidCol = rowid
	return nil
}

// Insert creates an object from row
func (c *Connector) Insert(ctx context.Context, row *models.Row) error {
	form, err := c.form(row, "")
	if err != nil {
		return c.HandleModifyError(ctx, err)
	}
	return c.send(ctx, "inserted", func() (*clients.Response, error) {
		return c.client.PostForm(ctx, c.baseURL+c.object, form, uuid.NewString())
	})
}

// Update changes the object identified by rowid
func (c *Connector) Update(ctx context.Context, rowid *models.Cell, row *models.Row) error {
	id, err := rowidString(rowid)
	if err != nil {
		return c.HandleModifyError(ctx, err)
	}
	form, err := c.form(row, c.rowidCol)
	if err != nil {
		return c.HandleModifyError(ctx, err)
	}
	return c.send(ctx, "updated", func() (*clients.Response, error) {
		return c.client.PostForm(ctx, c.objectURL(id), form, uuid.NewString())
	})
}

// Delete removes the object identified by rowid
func (c *Connector) Delete(ctx context.Context, rowid *models.Cell) error {
	id, err := rowidString(rowid)
	if err != nil {
		return c.HandleModifyError(ctx, err)
	}
	return c.send(ctx, "deleted", func() (*clients.Response, error) {
		return c.client.Delete(ctx, c.objectURL(id))
	})
}

// EndModify is a no-op; every change is sent immediately
func (c *Connector) EndModify() error { return nil }

func (c *Connector) objectURL(id string) string {
	return c.baseURL + c.object + "/" + url.PathEscape(id)
}

// form encodes row as a request body, leaving out the skip column
func (c *Connector) form(row *models.Row, skip string) (url.Values, error) {
	if c.object == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "modify has not begun")
	}
	if skip != "" {
		trimmed := models.NewRow(row.Len())
		row.Range(func(name string, cell *models.Cell) bool {
			if name != skip {
				trimmed.Push(name, cell)
			}
			return true
		})
		row = trimmed
	}
	payload, err := mapper.RowToPayload(row)
	if err != nil {
		return nil, err
	}
	return mapper.EncodeForm(payload)
}

// send performs one mutation request and logs the returned object id
func (c *Connector) send(ctx context.Context, verb string, call func() (*clients.Response, error)) error {
	if c.client == nil {
		return c.HandleModifyError(ctx, errors.New(errors.ErrorTypeConfig, "api key is not configured"))
	}
	resp, err := call()
	c.addRequestCount(ctx, 1)
	if err != nil {
		return c.HandleModifyError(ctx, err)
	}
	if !resp.IsSuccess() {
		return c.HandleModifyError(ctx, resp.Err())
	}
	c.Stats().Increment(Name, stats.BytesIn, int64(len(resp.Body)))

	body, err := mapper.DecodeBody(resp.Body)
	if err != nil {
		return c.HandleModifyError(ctx, err)
	}
	if id := mapper.StringAt(body, "id"); id != "" {
		logger.FromContext(ctx, c.GetLogger()).Info(verb+" "+c.object+" "+id,
			zap.String("object", c.object),
			zap.String("id", id))
	}
	return nil
}

func rowidString(rowid *models.Cell) (string, error) {
	if rowid == nil || rowid.Type != models.TypeString {
		return "", errors.New(errors.ErrorTypeValidation, "rowid must be a string")
	}
	return rowid.Str, nil
}

// Close ends any scan and releases idle connections
func (c *Connector) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	return c.BaseConnector.Close()
}

var (
	_ core.Wrapper  = (*Connector)(nil)
	_ core.Modifier = (*Connector)(nil)
)
