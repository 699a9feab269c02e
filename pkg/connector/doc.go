// Package connector is the framework remote-scan connectors are built on.
//
// # Architecture Overview
//
// The connector package is organized into several sub-packages:
//
//   - core: the Wrapper and Modifier interfaces the host drives, the scan
//     request and the dependencies every connector receives.
//
//   - base: BaseConnector, embedded by every connector. It owns the scan
//     session buffer, maps errors to "empty result" or "fail" and records
//     stats and health.
//
//   - pushdown: turns quals, sorts and limits into request URLs or SQL.
//
//   - pagination: fetches pages until the remote says there are no more,
//     a page comes back empty or the limit's page ceiling is reached.
//
//   - mapper: converts decoded payloads into rows using per-object schemas,
//     and rows back into JSON or form payloads.
//
//   - registry: connectors self-register during initialization and are
//     created by name or alias.
//
//   - sources: the connector implementations.
//
// # Scan lifecycle
//
// Open receives the server options. BeginScan plans the request, runs the
// page loop to completion and buffers every row; IterScan hands them out
// in remote order; EndScan releases the buffer. A scan missing its table
// options, or whose remote answers "not found", yields no rows instead of
// an error. Any other failure discards the rows fetched so far.
//
// # Writing a connector
//
//	type Connector struct {
//	    *base.BaseConnector
//	    client *clients.HTTPClient
//	}
//
//	func (c *Connector) BeginScan(ctx context.Context, req *core.ScanRequest) error {
//	    ctx, session := c.StartScan(ctx, req.Options.Get("object"))
//	    if !session.Configured() {
//	        return nil
//	    }
//	    return c.RunPages(ctx, session, pagination.Config{Policy: pagination.CursorFromServer}, fetcher)
//	}
//
// and register it from an init function:
//
//	func init() {
//	    _ = registry.Register(Metadata, Factory, "alias")
//	}
package connector
