package base

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/remotescan/pkg/config"
	"github.com/ajitpratap0/remotescan/pkg/connector/core"
	"github.com/ajitpratap0/remotescan/pkg/connector/pagination"
	"github.com/ajitpratap0/remotescan/pkg/errors"
	"github.com/ajitpratap0/remotescan/pkg/models"
	"github.com/ajitpratap0/remotescan/pkg/query"
	"github.com/ajitpratap0/remotescan/pkg/secrets"
	"github.com/ajitpratap0/remotescan/pkg/stats"
)

func idRow(id string) *models.Row {
	r := models.NewRow(1)
	r.Push("id", models.NewString(id))
	return r
}

func newTestConnector(t *testing.T) (*BaseConnector, *stats.MemoryStore) {
	t.Helper()
	store := stats.NewMemoryStore()
	bc := NewBaseConnector("TestFdw", "0.1.0", core.Deps{
		Stats:   stats.NewRecorder(store, zap.NewNop()),
		Secrets: secrets.StaticResolver{"k1": "secret-1"},
		Logger:  zap.NewNop(),
	})
	return bc, store
}

func TestScanSessionDrainsInOrder(t *testing.T) {
	s := NewScanSession("TestFdw", zap.NewNop())
	assert.Equal(t, StateNew, s.State())
	assert.NotEmpty(t, s.ID())

	require.True(t, s.Open("charges"))
	require.True(t, s.BeginFetch())
	assert.Equal(t, StateFetching, s.State())

	s.Fill(&pagination.Result{Rows: []*models.Row{idRow("a"), idRow("b"), idRow("c")}, Requests: 2, Bytes: 30})
	assert.Equal(t, StateBuffered, s.State())
	assert.Equal(t, int64(2), s.Requests())

	var got []string
	for {
		row, ok := s.Next()
		if !ok {
			break
		}
		assert.Equal(t, StateDraining, s.State())
		c, _ := row.Get("id")
		got = append(got, c.Str)
		assert.Equal(t, 3-len(got), s.Buffered())
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)

	rowsIn, rowsOut, bytesIn := s.Counters()
	assert.Equal(t, int64(3), rowsIn)
	assert.Equal(t, int64(3), rowsOut)
	assert.Equal(t, int64(30), bytesIn)

	s.Close()
	s.Close()
	assert.Equal(t, StateClosed, s.State())
	_, ok := s.Next()
	assert.False(t, ok)
}

func TestScanSessionUnconfigured(t *testing.T) {
	obs, logs := observer.New(zap.WarnLevel)
	s := NewScanSession("TestFdw", zap.New(obs))

	assert.False(t, s.Open(""))
	assert.Equal(t, StateClosed, s.State())
	assert.False(t, s.Configured())
	assert.False(t, s.BeginFetch())

	s.Fill(&pagination.Result{Rows: []*models.Row{idRow("x")}})
	_, ok := s.Next()
	assert.False(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("scan is not configured, returning no rows").Len())
}

func TestSessionStateString(t *testing.T) {
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "unknown", SessionState(42).String())
}

func TestOpenCountsCreateTimes(t *testing.T) {
	bc, store := newTestConnector(t)
	ctx := context.Background()

	require.NoError(t, bc.Open(ctx, config.Options{"api_key_id": "k1"}))
	require.NoError(t, bc.Open(ctx, config.Options{"api_key_id": "k1"}))
	assert.Equal(t, int64(2), store.Get("TestFdw", stats.CreateTimes))

	key, ok, err := bc.Credential(ctx, "api_key", "api_key_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "secret-1", key)
}

func TestRunPagesFillsSessionAndStats(t *testing.T) {
	bc, store := newTestConnector(t)
	ctx, session := bc.StartScan(context.Background(), "charges")

	pages := [][]*models.Row{{idRow("a"), idRow("b")}, {idRow("c")}}
	f := pagination.FetcherFunc(func(_ context.Context, _ query.Cursor, n int) (*pagination.Page, error) {
		more := n == 0
		rows := pages[n]
		return &pagination.Page{Rows: rows, HasMore: &more, LastRowCursor: "c" + string(rune('0'+n)), Bytes: 100}, nil
	})

	assert.True(t, session.Cursor().IsFirst())
	var seen []query.Cursor
	cfg := pagination.Config{
		Policy:   pagination.CursorFromLastRow,
		OnCursor: func(c query.Cursor) { seen = append(seen, c) },
	}
	err := bc.RunPages(ctx, session, cfg, f)
	require.NoError(t, err)
	assert.Equal(t, query.TokenCursor("c0"), session.Cursor())
	assert.Equal(t, []query.Cursor{query.TokenCursor("c0")}, seen)
	assert.Equal(t, int64(3), store.Get("TestFdw", stats.RowsIn))
	assert.Equal(t, int64(200), store.Get("TestFdw", stats.BytesIn))
	assert.Equal(t, int64(2), session.Requests())

	n := 0
	for {
		if _, ok := bc.IterScan(); !ok {
			break
		}
		n++
	}
	assert.Equal(t, 3, n)

	require.NoError(t, bc.EndScan())
	assert.Equal(t, int64(3), store.Get("TestFdw", stats.RowsOut))
	assert.Nil(t, bc.Session())
	assert.True(t, bc.HealthStatus().Status == StatusHealthy)
}

func TestRunPagesErrorDiscardsRows(t *testing.T) {
	bc, store := newTestConnector(t)
	ctx, session := bc.StartScan(context.Background(), "charges")

	f := pagination.FetcherFunc(func(_ context.Context, _ query.Cursor, n int) (*pagination.Page, error) {
		if n == 0 {
			more := true
			return &pagination.Page{Rows: []*models.Row{idRow("a")}, HasMore: &more, LastRowCursor: "a"}, nil
		}
		return nil, errors.New(errors.ErrorTypeTimeout, "request timed out")
	})

	err := bc.RunPages(ctx, session, pagination.Config{Policy: pagination.CursorFromLastRow}, f)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))
	assert.Equal(t, StateClosed, session.State())

	_, ok := bc.IterScan()
	assert.False(t, ok)
	assert.Equal(t, int64(0), store.Get("TestFdw", stats.RowsIn))
	assert.Equal(t, StatusDegraded, bc.HealthStatus().Status)
}

func TestErrorHandlerScanPhase(t *testing.T) {
	eh := NewErrorHandler("TestFdw", zap.NewNop())
	ctx := context.Background()

	empty, err := eh.Handle(ctx, PhaseScan, errors.New(errors.ErrorTypeConfig, "api_key is missing"))
	assert.True(t, empty)
	assert.NoError(t, err)

	empty, err = eh.Handle(ctx, PhaseModify, errors.New(errors.ErrorTypeConfig, "rowid_column is missing"))
	assert.False(t, empty)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	empty, err = eh.Handle(ctx, PhaseScan, errors.New(errors.ErrorTypePlanning, "unmatched query parameter: id"))
	assert.False(t, empty)
	assert.True(t, errors.IsType(err, errors.ErrorTypePlanning))

	_, err = eh.Handle(ctx, PhaseScan, context.DeadlineExceeded)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))

	s := eh.GetErrorStats()
	assert.Equal(t, int64(4), s["total_errors"])
	assert.Equal(t, int64(1), s["emptied_scans"])
	assert.Equal(t, int64(1), s["errors_by_type"].(map[string]int64)["unknown"])

	eh.ResetStats()
	assert.Equal(t, int64(0), eh.GetErrorStats()["total_errors"])
}

func TestErrorHandlerCategorizesRootCause(t *testing.T) {
	eh := NewErrorHandler("TestFdw", zap.NewNop())
	ctx := context.Background()

	cause := errors.New(errors.ErrorTypeNotFound, "remote returned status 404")
	empty, err := eh.Handle(ctx, PhaseScan, errors.Wrap(cause, errors.ErrorTypeTransport, "fetch page 2"))
	assert.False(t, empty)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))

	_, err = eh.Handle(ctx, PhaseScan, errors.Wrap(
		errors.New(errors.ErrorTypeTimeout, "request timed out"), errors.ErrorTypeTransport, "fetch page 1"))
	require.Error(t, err)

	byType := eh.GetErrorStats()["errors_by_type"].(map[string]int64)
	assert.Equal(t, int64(1), byType["not_found"])
	assert.Equal(t, int64(1), byType["timeout"])
	assert.Zero(t, byType["transport"])
}

func TestHealthChecker(t *testing.T) {
	hc := NewHealthChecker("TestFdw", zap.NewNop())
	ctx := context.Background()
	assert.True(t, hc.IsHealthy())
	require.NoError(t, hc.Check(ctx))

	boom := errors.New(errors.ErrorTypeConnection, "connection refused")
	hc.SetCheckFunc(func(context.Context) error { return boom })
	for i := 0; i < 2; i++ {
		require.Error(t, hc.Check(ctx))
	}
	assert.Equal(t, StatusDegraded, hc.GetStatus().Status)
	require.Error(t, hc.Check(ctx))
	status := hc.GetStatus()
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, 3, status.Details["consecutive_failures"])
	assert.Equal(t, int64(4), status.Details["check_count"])

	hc.Record(nil)
	assert.True(t, hc.IsHealthy())
}

func TestMetricsSnapshot(t *testing.T) {
	bc, _ := newTestConnector(t)
	_, _ = bc.StartScan(context.Background(), "customers")
	m := bc.Metrics()
	assert.Equal(t, "TestFdw", m["name"])
	session := m["session"].(map[string]interface{})
	assert.Equal(t, "opened", session["state"])
	require.NoError(t, bc.Close())
	require.NoError(t, bc.Close())
}
