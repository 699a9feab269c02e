// Package core defines the contract between the host query engine and a
// remote connector ("wrapper").
//
// A scan runs Open, then BeginScan, then IterScan until it reports no more
// rows, then EndScan. A modification runs BeginModify, any number of
// Insert, Update and Delete calls, then EndModify. Calls are blocking and
// a wrapper instance serves one host session at a time.
package core

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/remotescan/pkg/config"
	"github.com/ajitpratap0/remotescan/pkg/models"
	"github.com/ajitpratap0/remotescan/pkg/query"
	"github.com/ajitpratap0/remotescan/pkg/secrets"
	"github.com/ajitpratap0/remotescan/pkg/stats"
)

// Capability names an optional feature of a connector
type Capability string

const (
	CapabilityScan           Capability = "scan"
	CapabilityModify         Capability = "modify"
	CapabilityPointLookup    Capability = "point_lookup"
	CapabilityFilterPushdown Capability = "filter_pushdown"
	CapabilitySortPushdown   Capability = "sort_pushdown"
	CapabilityLimitPushdown  Capability = "limit_pushdown"
)

// ScanRequest is everything the host knows about a scan when it starts
type ScanRequest struct {
	Quals   []query.Qual
	Columns []models.Column
	Sorts   []query.Sort
	// Limit is nil when the query has no LIMIT
	Limit   *query.Limit
	Options config.Options
}

// Wrapper is implemented by every connector
type Wrapper interface {
	Name() string
	Version() string

	// Open receives the server-level options (credentials, endpoints)
	Open(ctx context.Context, server config.Options) error

	// BeginScan plans and fetches the whole result into the session buffer.
	// Missing table options leave the scan empty rather than failing.
	BeginScan(ctx context.Context, req *ScanRequest) error

	// IterScan returns the next buffered row; ok is false at end of data
	IterScan() (row *models.Row, ok bool)

	// EndScan releases the session buffer
	EndScan() error

	Close() error
}

// Modifier is implemented by connectors that can write single rows
type Modifier interface {
	// BeginModify receives the table options (object or table, rowid_column)
	BeginModify(ctx context.Context, table config.Options) error
	Insert(ctx context.Context, row *models.Row) error
	Update(ctx context.Context, rowid *models.Cell, row *models.Row) error
	Delete(ctx context.Context, rowid *models.Cell) error
	EndModify() error
}

// Deps are the process-wide services handed to every connector
type Deps struct {
	Secrets secrets.Resolver
	Stats   stats.Sink
	Engine  *config.EngineConfig
	Logger  *zap.Logger
}

// Factory creates a connector instance
type Factory func(deps Deps) (Wrapper, error)

// ConnectorMetadata provides metadata about a connector
type ConnectorMetadata struct {
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Description  string       `json:"description"`
	Website      string       `json:"website,omitempty"`
	Capabilities []Capability `json:"capabilities"`
	// ServerOptions and TableOptions list the recognised option keys
	ServerOptions []string `json:"server_options"`
	TableOptions  []string `json:"table_options"`
}

// Has reports whether the connector declares capability c
func (m ConnectorMetadata) Has(c Capability) bool {
	for _, have := range m.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}
