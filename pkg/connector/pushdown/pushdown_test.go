package pushdown

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/remotescan/pkg/errors"
	"github.com/ajitpratap0/remotescan/pkg/models"
	"github.com/ajitpratap0/remotescan/pkg/query"
)

func stripeLikePlanner() *RESTPlanner {
	return &RESTPlanner{
		BaseURL:       "https://api.stripe.com/v1/",
		PageSize:      100,
		PageSizeParam: "limit",
		CursorParam:   "starting_after",
	}
}

var customers = RESTObject{Path: "customers", IDField: "id", Pushable: []string{"email"}}

func TestRESTPlanner_PointLookup(t *testing.T) {
	p := stripeLikePlanner()
	accounts := RESTObject{Path: "accounts", IDField: "id"}

	plan, err := p.Plan(accounts, []query.Qual{query.Eq("id", models.NewString("acct_123"))}, nil)
	require.NoError(t, err)

	assert.True(t, plan.PointLookup)
	assert.Equal(t, int64(1), plan.MaxPages)
	assert.Equal(t, "https://api.stripe.com/v1/accounts/acct_123", plan.URL(query.Cursor{}))
	assert.Equal(t, "https://api.stripe.com/v1/accounts/acct_123", plan.URL(query.TokenCursor("acct_9")))
	assert.Empty(t, plan.Unconsumed)

	plan, err = p.Plan(accounts, []query.Qual{query.Eq("id", models.NewI64(7))}, nil)
	require.NoError(t, err)
	assert.True(t, plan.PointLookup)
	assert.Equal(t, "https://api.stripe.com/v1/accounts/7", plan.URL(query.Cursor{}))
}

func TestRESTPlanner_PointLookupOnlyForSingleScalarEquality(t *testing.T) {
	p := stripeLikePlanner()
	tests := []struct {
		name  string
		quals []query.Qual
	}{
		{"two quals", []query.Qual{
			query.Eq("id", models.NewString("cus_1")),
			query.Eq("email", models.NewString("a@b.c")),
		}},
		{"or grouped", []query.Qual{{Field: "id", Operator: "=", Value: query.Scalar(models.NewString("cus_1")), UseOr: true}}},
		{"array", []query.Qual{{Field: "id", Operator: "=", Value: query.List(models.NewString("cus_1"))}}},
		{"not equality", []query.Qual{{Field: "id", Operator: ">", Value: query.Scalar(models.NewString("cus_1"))}}},
		{"json", []query.Qual{query.Eq("id", models.NewJSON([]byte(`{"a":1}`)))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := p.Plan(customers, tt.quals, nil)
			require.NoError(t, err)
			assert.False(t, plan.PointLookup)
			u, err := url.Parse(plan.URL(query.Cursor{}))
			require.NoError(t, err)
			assert.Equal(t, "/v1/customers", u.Path)
			assert.Equal(t, "100", u.Query().Get("limit"))
		})
	}
}

func TestRESTPlanner_PushableFilters(t *testing.T) {
	p := stripeLikePlanner()
	prices := RESTObject{Path: "prices", IDField: "id", Pushable: []string{"active", "currency", "product"}}

	quals := []query.Qual{
		query.Eq("active", models.NewBool(true)),
		query.Eq("currency", models.NewString("usd")),
		{Field: "product", Operator: "=", Value: query.Scalar(models.NewString("prod_1")), UseOr: true},
		query.Eq("unit_amount", models.NewI64(100)),
		{Field: "currency", Operator: "<>", Value: query.Scalar(models.NewString("eur"))},
	}

	plan, err := p.Plan(prices, quals, nil)
	require.NoError(t, err)

	assert.Equal(t, url.Values{"active": {"true"}, "currency": {"usd"}}, plan.Params)
	require.Len(t, plan.Unconsumed, 3)
	assert.Equal(t, "product", plan.Unconsumed[0].Field)
	assert.Equal(t, "unit_amount", plan.Unconsumed[1].Field)
	assert.Equal(t, "currency", plan.Unconsumed[2].Field)
	assert.Equal(t, int64(0), plan.MaxPages)

	assert.Equal(t,
		"https://api.stripe.com/v1/prices?active=true&currency=usd&limit=100",
		plan.URL(query.Cursor{}))
	assert.Equal(t,
		"https://api.stripe.com/v1/prices?active=true&currency=usd&limit=100&starting_after=price_9",
		plan.URL(query.TokenCursor("price_9")))
}

func TestRESTPlanner_Limit(t *testing.T) {
	p := stripeLikePlanner()

	t.Run("ceiling", func(t *testing.T) {
		plan, err := p.Plan(customers, nil, &query.Limit{Offset: 10, Count: 5})
		require.NoError(t, err)
		assert.Equal(t, int64(1), plan.MaxPages)
		assert.NotContains(t, plan.URL(query.Cursor{}), "offset")
	})

	t.Run("spans pages", func(t *testing.T) {
		plan, err := p.Plan(customers, nil, &query.Limit{Offset: 150, Count: 100})
		require.NoError(t, err)
		assert.Equal(t, int64(3), plan.MaxPages)
	})

	t.Run("zero count", func(t *testing.T) {
		plan, err := p.Plan(customers, nil, &query.Limit{Offset: 3, Count: 0})
		require.NoError(t, err)
		assert.True(t, plan.Empty)
	})
}

func TestRESTPlanner_Unpaginated(t *testing.T) {
	p := stripeLikePlanner()
	plan, err := p.Plan(RESTObject{Path: "balance"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.stripe.com/v1/balance", plan.URL(query.Cursor{}))
	assert.Equal(t, int64(1), plan.MaxPages)
}

func TestRESTPlanner_PathTemplate(t *testing.T) {
	p := &RESTPlanner{BaseURL: "https://firestore.example.com/v1/projects/demo", PageSize: 50, PageSizeParam: "pageSize", CursorParam: "pageToken"}
	obj := RESTObject{Path: "databases/(default)/documents/${collection}"}

	quals := []query.Qual{query.Eq("collection", models.NewString("users")), query.Eq("name", models.NewString("x"))}
	plan, err := p.Plan(obj, quals, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://firestore.example.com/v1/projects/demo/databases/(default)/documents/users", plan.Endpoint)
	require.Len(t, plan.Consumed, 1)
	assert.Equal(t, "collection", plan.Consumed[0].Field)
	require.Len(t, plan.Unconsumed, 1)
	assert.Equal(t, "name", plan.Unconsumed[0].Field)

	_, err = p.Plan(obj, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePlanning))
}

func TestNotImplemented(t *testing.T) {
	err := NotImplemented("widgets")
	assert.True(t, errors.IsType(err, errors.ErrorTypePlanning))
	assert.Contains(t, err.Error(), "'widgets' object is not implemented")
}

func TestDeparseSQL(t *testing.T) {
	cols := []models.Column{{Name: "id", Type: models.TypeI64}, {Name: "name", Type: models.TypeString}}

	tests := []struct {
		name    string
		table   string
		quals   []query.Qual
		columns []models.Column
		sorts   []query.Sort
		limit   *query.Limit
		want    string
		params  []string
	}{
		{
			name:    "plain select",
			table:   "people",
			columns: cols,
			want:    "select id, name from people",
		},
		{
			name:  "no columns",
			table: "people",
			want:  "select * from people",
		},
		{
			name:    "where order limit",
			table:   "people",
			columns: cols,
			quals: []query.Qual{
				{Field: "id", Operator: ">", Value: query.Scalar(models.NewI64(5))},
				query.Eq("name", models.NewString("o'hara")),
			},
			sorts: []query.Sort{{Field: "id", Reversed: true}, {Field: "name", NullsFirst: true}},
			limit: &query.Limit{Offset: 10, Count: 5},
			want:  "select id, name from people where id > 5 and name = 'o''hara' order by id desc nulls last, name asc nulls first limit 15",
		},
		{
			name:    "backslash cannot close the literal",
			table:   "people",
			columns: cols[1:],
			quals:   []query.Qual{query.Eq("name", models.NewString(`x\' or 1=1 --`))},
			want:    `select name from people where name = 'x\\'' or 1=1 --'`,
		},
		{
			name:    "like operator spelled by host",
			table:   "people",
			columns: cols[1:],
			quals:   []query.Qual{{Field: "name", Operator: "~~", Value: query.Scalar(models.NewString("a%"))}},
			want:    "select name from people where name like 'a%'",
		},
		{
			name:    "array or",
			table:   "people",
			columns: cols[:1],
			quals: []query.Qual{{Field: "id", Operator: "=", UseOr: true,
				Value: query.List(models.NewI64(1), models.NewI64(2))}},
			want: "select id from people where (id = 1 or id = 2)",
		},
		{
			name:  "template params consumed",
			table: "(select * from events where kind = ${kind})",
			columns: []models.Column{
				{Name: "id", Type: models.TypeI64},
				{Name: "kind", Type: models.TypeString},
			},
			quals: []query.Qual{
				query.Eq("kind", models.NewString("click")),
				{Field: "id", Operator: "<", Value: query.Scalar(models.NewI64(100))},
			},
			want:   "select id from (select * from events where kind = 'click') where id < 100",
			params: []string{"kind"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := DeparseSQL(tt.table, tt.quals, tt.columns, tt.sorts, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.SQL)

			var params []string
			for _, p := range plan.Params {
				params = append(params, p.Field)
			}
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestLiteral(t *testing.T) {
	ts := time.Date(2024, 3, 9, 10, 11, 12, 500000000, time.UTC)
	tests := []struct {
		cell *models.Cell
		want string
	}{
		{nil, "null"},
		{models.NewI32(7), "7"},
		{models.NewBool(false), "false"},
		{models.NewString(`c:\tmp`), `'c:\\tmp'`},
		{models.NewString(`it's`), `'it''s'`},
		{models.NewString(`\'`), `'\\'''`},
		{models.NewDate(ts), "'2024-03-09'"},
		{models.NewTimestamp(ts), "'2024-03-09 10:11:12.5'"},
		{models.NewJSON([]byte(`{"p":"a\\b"}`)), `'{"p":"a\\\\b"}'`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Literal(tt.cell))
	}
}

func TestDeparseSQL_Errors(t *testing.T) {
	t.Run("unmatched placeholder", func(t *testing.T) {
		_, err := DeparseSQL("(select * from t where a = ${a})", nil, nil, nil, nil)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypePlanning))
		assert.Contains(t, err.Error(), "unmatched query parameter: a")
	})

	t.Run("array param", func(t *testing.T) {
		quals := []query.Qual{{Field: "a", Operator: "=", Value: query.List(models.NewI64(1))}}
		_, err := DeparseSQL("(select * from t where a = ${a})", quals, nil, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid query parameter: a")
	})

	t.Run("empty array", func(t *testing.T) {
		quals := []query.Qual{{Field: "a", Operator: "=", Value: query.Value{Array: []*models.Cell{}}}}
		_, err := DeparseSQL("t", quals, nil, nil, nil)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypePlanning))
	})

	t.Run("unsupported operator stays local", func(t *testing.T) {
		quals := []query.Qual{{Field: "tags", Operator: "@>", Value: query.Scalar(models.NewString("{a}"))}}
		plan, err := DeparseSQL("t", quals, nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "select * from t", plan.SQL)
		assert.Len(t, plan.Unconsumed, 1)
	})
}

func TestEchoParams(t *testing.T) {
	cols := []models.Column{{Name: "id", Type: models.TypeI64}, {Name: "kind", Type: models.TypeString}}
	row := models.NewRow(2)
	row.Push("id", models.NewI64(1))
	row.Push("kind", nil)

	EchoParams(row, []query.Qual{query.Eq("kind", models.NewString("click"))}, cols)

	assert.Equal(t, []string{"id", "kind"}, row.Names())
	kind, ok := row.Get("kind")
	require.True(t, ok)
	assert.True(t, models.NewString("click").Equal(kind))
}

func TestPageCeiling(t *testing.T) {
	assert.Equal(t, int64(0), PageCeiling(nil, 100))
	assert.Equal(t, int64(1), PageCeiling(&query.Limit{Offset: 10, Count: 5}, 100))
	assert.Equal(t, int64(2), PageCeiling(&query.Limit{Count: 100}, 100))
}
