// Package remotescan exposes remote APIs and SQL servers as foreign tables.
//
// A host query engine hands a connector ("wrapper") the quals, target
// columns, sort keys and limit of a scan. The connector pushes down what the
// remote understands, pages through the remote result, converts every
// payload object into a row of typed cells and buffers the rows until the
// host drains them. Connectors that support it also insert, update and
// delete single rows.
//
// # Layout
//
//   - pkg/models: cells, rows and columns
//   - pkg/query: quals, sorts, limits and pagination cursors
//   - pkg/clients: HTTP transport with retry, circuit breaking and rate
//     limiting; SQL transport over the MySQL and PostgreSQL wire protocols
//   - pkg/connector/pushdown: REST URL planning and SQL deparsing
//   - pkg/connector/pagination: the page loop and its termination rules
//   - pkg/connector/mapper: payload to row conversion and back
//   - pkg/connector/base: scan sessions, error handling and health
//   - pkg/connector/sources: the Stripe, Airtable, Firebase and ClickHouse
//     connectors
//   - pkg/stats and pkg/secrets: per-connector counters and credential
//     lookup
//
// # Quick Start
//
//	w, err := registry.Create("stripe", core.Deps{})
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	if err := w.Open(ctx, config.Options{"api_key": key}); err != nil {
//	    return err
//	}
//	err = w.BeginScan(ctx, &core.ScanRequest{
//	    Columns: []models.Column{{Name: "id", Type: models.TypeString}},
//	    Options: config.Options{"object": "customers"},
//	})
//	if err != nil {
//	    return err
//	}
//	for row, ok := w.IterScan(); ok; row, ok = w.IterScan() {
//	    fmt.Println(row)
//	}
//	return w.EndScan()
//
// The remotescan command in cmd/remotescan runs the same lifecycle from a
// YAML table definition.
package remotescan
