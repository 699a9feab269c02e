package airtable

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/remotescan/pkg/config"
	"github.com/ajitpratap0/remotescan/pkg/connector/core"
	"github.com/ajitpratap0/remotescan/pkg/models"
	"github.com/ajitpratap0/remotescan/pkg/query"
	"github.com/ajitpratap0/remotescan/pkg/stats"
	"github.com/ajitpratap0/remotescan/pkg/testutil"
)

var recordColumns = []models.Column{
	{Name: "id", Type: models.TypeString},
	{Name: "created_time", Type: models.TypeTimestamp},
	{Name: "name", Type: models.TypeString},
	{Name: "qty", Type: models.TypeI64},
	{Name: "done", Type: models.TypeBool},
}

func record(id, name string, qty int) map[string]interface{} {
	return map[string]interface{}{
		"id":          id,
		"createdTime": "2023-01-02T03:04:05.000Z",
		"fields":      map[string]interface{}{"name": name, "qty": qty},
	}
}

func openConnector(t *testing.T, srv *testutil.PageServer) (*Connector, *testutil.Deps) {
	t.Helper()
	deps := testutil.TestDeps(t, nil)
	c := NewConnector(deps.Deps)
	require.NoError(t, c.Open(context.Background(), config.Options{
		"api_url": srv.URL + "/v0",
		"api_key": "pat_test",
	}))
	t.Cleanup(func() { _ = c.Close() })
	return c, deps
}

func drain(c *Connector) []*models.Row {
	var rows []*models.Row
	for {
		row, ok := c.IterScan()
		if !ok {
			return rows
		}
		rows = append(rows, row)
	}
}

func TestScanFollowsOffset(t *testing.T) {
	srv := testutil.NewPageServer(t)
	srv.On(http.MethodGet, "/v0/appBase/tblItems",
		testutil.JSON(200, map[string]interface{}{
			"records": []interface{}{record("rec1", "apple", 3), record("rec2", "pear", 1)},
			"offset":  "itrNext",
		}),
		testutil.JSON(200, map[string]interface{}{
			"records": []interface{}{record("rec3", "plum", 7)},
		}),
	)
	c, deps := openConnector(t, srv)

	require.NoError(t, c.BeginScan(context.Background(), &core.ScanRequest{
		Columns: recordColumns,
		Options: config.Options{"base_id": "appBase", "table_id": "tblItems", "view": "Grid view"},
	}))
	rows := drain(c)
	require.Len(t, rows, 3)

	first := rows[0]
	id, _ := first.Get("id")
	created, _ := first.Get("created_time")
	qty, _ := first.Get("qty")
	done, present := first.Get("done")
	assert.Equal(t, "rec1", id.Str)
	assert.Equal(t, time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC), created.Time)
	assert.Equal(t, int64(3), qty.Int)
	assert.True(t, present)
	assert.Nil(t, done)

	reqs := srv.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "100", reqs[0].Query.Get("pageSize"))
	assert.Equal(t, "Grid view", reqs[0].Query.Get("view"))
	assert.False(t, reqs[0].Query.Has("offset"))
	assert.Equal(t, "itrNext", reqs[1].Query.Get("offset"))
	assert.Equal(t, "Bearer pat_test", reqs[0].Header.Get("Authorization"))

	require.NoError(t, c.EndScan())
	assert.Equal(t, int64(3), deps.Store.Get(Name, stats.RowsIn))
	assert.Equal(t, int64(3), deps.Store.Get(Name, stats.RowsOut))
}

func TestScanLimitSetsMaxRecords(t *testing.T) {
	srv := testutil.NewPageServer(t)
	for i, next := range []string{"itr1", "itr2", "itr3", "itr4"} {
		srv.On(http.MethodGet, "/v0/appBase/tblItems",
			testutil.JSON(200, map[string]interface{}{
				"records": []interface{}{record(next, "apple", i)},
				"offset":  next,
			}))
	}
	c, _ := openConnector(t, srv)

	require.NoError(t, c.BeginScan(context.Background(), &core.ScanRequest{
		Columns: recordColumns,
		Limit:   &query.Limit{Offset: 2, Count: 3},
		Options: config.Options{"base_id": "appBase", "table_id": "tblItems", "page_size": "2"},
	}))
	assert.Len(t, drain(c), 3)

	reqs := srv.Requests()
	// (2+3)/2+1 pages at most
	require.Len(t, reqs, 3)
	assert.Equal(t, "5", reqs[0].Query.Get("maxRecords"))
	assert.Equal(t, "2", reqs[0].Query.Get("pageSize"))
}

func TestScanWithoutTableIsEmpty(t *testing.T) {
	srv := testutil.NewPageServer(t)
	c, _ := openConnector(t, srv)

	require.NoError(t, c.BeginScan(context.Background(), &core.ScanRequest{
		Columns: recordColumns,
		Options: config.Options{"base_id": "appBase"},
	}))
	assert.Empty(t, drain(c))
	assert.Zero(t, srv.Count())
}

func TestScanErrorStatusFails(t *testing.T) {
	srv := testutil.NewPageServer(t)
	srv.On(http.MethodGet, "/v0/appBase/tblItems",
		testutil.Response{Status: http.StatusUnprocessableEntity, Body: `{"error":{"type":"INVALID_REQUEST"}}`})
	c, _ := openConnector(t, srv)

	err := c.BeginScan(context.Background(), &core.ScanRequest{
		Columns: recordColumns,
		Options: config.Options{"base_id": "appBase", "table_id": "tblItems"},
	})
	require.Error(t, err)
	assert.Empty(t, drain(c))
}
