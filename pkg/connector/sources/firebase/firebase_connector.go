// Package firebase exposes Firebase Authentication users and Cloud
// Firestore collections as foreign tables.
//
// The "object" table option is either "auth/users" or
// "firestore/<collection>". Both are listed with the server's
// nextPageToken cursor.
package firebase

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ajitpratap0/remotescan/pkg/clients"
	"github.com/ajitpratap0/remotescan/pkg/config"
	"github.com/ajitpratap0/remotescan/pkg/connector/base"
	"github.com/ajitpratap0/remotescan/pkg/connector/core"
	"github.com/ajitpratap0/remotescan/pkg/connector/mapper"
	"github.com/ajitpratap0/remotescan/pkg/connector/pagination"
	"github.com/ajitpratap0/remotescan/pkg/connector/pushdown"
	"github.com/ajitpratap0/remotescan/pkg/errors"
	"github.com/ajitpratap0/remotescan/pkg/query"
)

const (
	Name    = "FirebaseFdw"
	Version = "0.1.0"
)

// Metadata describes the connector
var Metadata = core.ConnectorMetadata{
	Name:        Name,
	Version:     Version,
	Description: "Firebase Authentication users and Firestore collections",
	Website:     "https://firebase.google.com/docs/reference/rest",
	Capabilities: []core.Capability{
		core.CapabilityScan,
		core.CapabilityLimitPushdown,
	},
	ServerOptions: []string{"project_id", "access_token", "access_token_id"},
	TableOptions:  []string{"object", "base_url", "page_size"},
}

// Connector is the Firebase wrapper
type Connector struct {
	*base.BaseConnector

	projectID string
	client    *clients.HTTPClient
	mapper    *mapper.Mapper
}

// NewConnector creates an unopened connector
func NewConnector(deps core.Deps) *Connector {
	bc := base.NewBaseConnector(Name, Version, deps)
	return &Connector{
		BaseConnector: bc,
		mapper:        mapper.New(mapper.AbsentOnError, bc.GetLogger()),
	}
}

// Factory creates connectors for the registry
func Factory(deps core.Deps) (core.Wrapper, error) {
	return NewConnector(deps), nil
}

// Open reads the project id and resolves the access token
func (c *Connector) Open(ctx context.Context, server config.Options) error {
	if err := c.BaseConnector.Open(ctx, server); err != nil {
		return err
	}
	projectID, err := server.Require("project_id")
	if err != nil {
		return err
	}
	c.projectID = projectID

	token, ok, err := c.Credential(ctx, "access_token", "access_token_id")
	if err != nil {
		return err
	}
	if !ok {
		c.GetLogger().Warn("access token is not configured")
		return nil
	}
	c.client = c.NewHTTPClient(token, nil)
	return nil
}

// BeginScan lists the object, following nextPageToken
func (c *Connector) BeginScan(ctx context.Context, req *core.ScanRequest) error {
	ctx, session := c.StartScan(ctx, req.Options.Get("object"))
	if !session.Configured() {
		return nil
	}
	if c.client == nil {
		return c.HandleScanError(ctx, errors.New(errors.ErrorTypeConfig, "access token is not configured"))
	}

	ep, err := resolve(session.Object(), c.projectID)
	if err != nil {
		return c.HandleScanError(ctx, err)
	}
	pageSize, err := req.Options.Int("page_size", int(ep.pageSize))
	if err != nil {
		return c.HandleScanError(ctx, err)
	}

	planner := &pushdown.RESTPlanner{
		BaseURL:       req.Options.GetDefault("base_url", ep.baseURL),
		PageSize:      int64(pageSize),
		PageSizeParam: ep.pageSizeParam,
		CursorParam:   ep.cursorParam,
	}
	plan, err := planner.Plan(pushdown.RESTObject{Path: ep.path}, nil, req.Limit)
	if err != nil {
		return c.HandleScanError(ctx, err)
	}
	c.GetLogger().Debug("listing firebase object",
		zap.String("object", session.Object()),
		zap.String("endpoint", plan.Endpoint))

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
		rows, _, err := c.mapper.MapBody(ep.schema, body, req.Columns)
		if err != nil {
			return nil, err
		}
		return &pagination.Page{
			Rows:         rows,
			ServerCursor: mapper.StringAt(body, "nextPageToken"),
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
