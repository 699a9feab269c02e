package mapper

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/remotescan/pkg/errors"
	jsonpool "github.com/ajitpratap0/remotescan/pkg/json"
	"github.com/ajitpratap0/remotescan/pkg/models"
)

var customerSchema = &Schema{
	Object:      "customers",
	ListKey:     "data",
	AllowSingle: true,
	Fields: []FieldSpec{
		Field("id", models.TypeString),
		Field("email", models.TypeString),
		Field("balance", models.TypeI64),
		Field("delinquent", models.TypeBool),
		Field("created", models.TypeTimestamp),
		Nested("city", models.TypeString, "address", "city"),
	},
}

func columns(names ...string) []models.Column {
	cols := make([]models.Column, len(names))
	for i, n := range names {
		cols[i] = models.Column{Name: n}
	}
	return cols
}

func decode(t *testing.T, s string) map[string]interface{} {
	t.Helper()
	body, err := DecodeBody([]byte(s))
	require.NoError(t, err)
	return body
}

func TestMapper_MapBodyList(t *testing.T) {
	body := decode(t, `{
		"object": "list",
		"has_more": false,
		"data": [
			{"id": "cus_1", "email": "a@x.io", "balance": 120, "delinquent": false, "created": 1700000000, "address": {"city": "Oslo"}},
			{"id": "cus_2", "email": null, "balance": "oops", "created": 1700000100}
		]
	}`)

	m := New(AbsentOnError, zaptest.NewLogger(t))
	rows, truncated, err := m.MapBody(customerSchema, body, columns("id", "email", "balance", "created", "city", "unknown"))
	require.NoError(t, err)
	assert.False(t, truncated)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, []string{"id", "email", "balance", "created", "city", "unknown"}, first.Names())
	cell, _ := first.Get("balance")
	assert.True(t, models.NewI64(120).Equal(cell))
	cell, _ = first.Get("created")
	assert.True(t, models.NewTimestamp(time.Unix(1700000000, 0)).Equal(cell))
	cell, _ = first.Get("city")
	assert.True(t, models.NewString("Oslo").Equal(cell))
	cell, _ = first.Get("unknown")
	assert.Nil(t, cell)

	second := rows[1]
	cell, _ = second.Get("email")
	assert.Nil(t, cell, "json null is absent")
	cell, _ = second.Get("balance")
	assert.Nil(t, cell, "bad cell is absent")
	cell, _ = second.Get("city")
	assert.Nil(t, cell)
}

func TestMapper_StopPageOnError(t *testing.T) {
	objs := []map[string]interface{}{
		{"id": "a", "balance": jsonpool.Number("1")},
		{"id": "b", "balance": jsonpool.Number("2")},
		{"id": "c", "balance": "bad"},
		{"id": "d", "balance": jsonpool.Number("4")},
	}

	m := New(StopPageOnError, zaptest.NewLogger(t))
	rows, truncated, err := m.MapObjects(customerSchema, objs, columns("id", "balance"))
	require.NoError(t, err)
	assert.True(t, truncated)
	require.Len(t, rows, 2)
	id, _ := rows[1].Get("id")
	assert.Equal(t, "b", id.Str)
}

func TestMapper_Attrs(t *testing.T) {
	body := decode(t, `{"id": "cus_1", "email": "a@x.io", "metadata": {"tier": "gold"}, "balance": 5}`)

	rows, _, err := New(AbsentOnError, nil).MapBody(customerSchema, body, columns("id", "attrs"))
	require.NoError(t, err)
	require.Len(t, rows, 1, "point lookup body maps as a single object")

	attrs, ok := rows[0].Get("attrs")
	require.True(t, ok)
	require.Equal(t, models.TypeJSON, attrs.Type)
	assert.JSONEq(t, `{"id": "cus_1", "email": "a@x.io", "metadata": {"tier": "gold"}, "balance": 5}`, string(attrs.JSON))
}

func TestSchema_Extract(t *testing.T) {
	t.Run("missing list without single", func(t *testing.T) {
		s := &Schema{ListKey: "users"}
		objs, err := s.Extract(map[string]interface{}{})
		require.NoError(t, err)
		assert.Empty(t, objs)
	})

	t.Run("list is not an array", func(t *testing.T) {
		s := &Schema{ListKey: "records"}
		_, err := s.Extract(map[string]interface{}{"records": "x"})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeMapping))
	})

	t.Run("no list key", func(t *testing.T) {
		s := &Schema{}
		objs, err := s.Extract(map[string]interface{}{"a": true})
		require.NoError(t, err)
		assert.Len(t, objs, 1)
	})
}

func TestSplitByKeys(t *testing.T) {
	body := decode(t, `{
		"object": "balance",
		"available": [{"amount": 500, "currency": "usd"}, {"amount": 1, "currency": "eur"}],
		"pending": [{"amount": 20, "currency": "usd"}]
	}`)
	schema := &Schema{
		Object:  "balance",
		Reshape: SplitByKeys("balance_type", "available", "pending"),
		Fields: []FieldSpec{
			Field("balance_type", models.TypeString),
			Field("amount", models.TypeI64),
			Field("currency", models.TypeString),
		},
	}

	rows, _, err := New(AbsentOnError, nil).MapBody(schema, body, columns("balance_type", "amount", "currency"))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, `{"balance_type":"available","amount":500,"currency":"usd"}`, rows[0].String())
	assert.Equal(t, `{"balance_type":"pending","amount":20,"currency":"usd"}`, rows[1].String())

	_, err = schema.Extract(map[string]interface{}{"available": []interface{}{}})
	require.Error(t, err)
}

func TestCoerce(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		name    string
		in      interface{}
		typ     models.Type
		want    *models.Cell
		wantErr bool
	}{
		{"bool", true, models.TypeBool, models.NewBool(true), false},
		{"bool from string", "true", models.TypeBool, nil, true},
		{"bool from int", int64(1), models.TypeBool, models.NewBool(true), false},
		{"bool from int out of range", int64(2), models.TypeBool, nil, true},
		{"i16", jsonpool.Number("300"), models.TypeI16, models.NewI16(300), false},
		{"i16 overflow", jsonpool.Number("70000"), models.TypeI16, nil, true},
		{"i32", jsonpool.Number("-5"), models.TypeI32, models.NewI32(-5), false},
		{"i64 big", jsonpool.Number("9007199254740993"), models.TypeI64, models.NewI64(9007199254740993), false},
		{"i64 fractional", jsonpool.Number("1.5"), models.TypeI64, nil, true},
		{"f64", jsonpool.Number("1.25"), models.TypeF64, models.NewF64(1.25), false},
		{"f32", jsonpool.Number("2"), models.TypeF32, models.NewF32(2), false},
		{"string", "x", models.TypeString, models.NewString("x"), false},
		{"string from number", jsonpool.Number("1"), models.TypeString, nil, true},
		{"timestamp epoch", jsonpool.Number("1709296200"), models.TypeTimestamp, models.NewTimestamp(ts), false},
		{"timestamp rfc3339", "2024-03-01T12:30:00Z", models.TypeTimestamp, models.NewTimestamp(ts), false},
		{"timestamp from driver", ts.In(time.FixedZone("x", 3600)), models.TypeTimestamp, models.NewTimestamp(ts), false},
		{"timestamp garbage", "yesterday", models.TypeTimestamp, nil, true},
		{"date", "2024-03-01", models.TypeDate, models.NewDate(ts), false},
		{"json", map[string]interface{}{"a": jsonpool.Number("1")}, models.TypeJSON, models.NewJSON([]byte(`{"a":1}`)), false},
		{"null", nil, models.TypeI64, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.in, tt.typ)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
		})
	}
}

func TestCoerce_EpochMillis(t *testing.T) {
	spec := FieldSpec{Type: models.TypeTimestamp, EpochMillis: true}
	want := models.NewTimestamp(time.UnixMilli(1700000000123))

	got, err := coerce("1700000000123", spec)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	got, err = coerce(jsonpool.Number("1700000000123"), spec)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestRowToPayload(t *testing.T) {
	row := models.NewRow(6)
	row.Push("email", models.NewString("a@x.io"))
	row.Push("name", nil)
	row.Push("balance", models.NewI64(10))
	row.Push("delinquent", models.NewBool(true))
	row.Push("metadata", models.NewJSON([]byte(`{"tier":"gold"}`)))
	row.Push("attrs", models.NewJSON([]byte(`{"description":"vip","balance":99}`)))

	payload, err := RowToPayload(row)
	require.NoError(t, err)

	assert.NotContains(t, payload, "name")
	assert.NotContains(t, payload, "attrs")
	assert.Equal(t, "a@x.io", payload["email"])
	assert.Equal(t, true, payload["delinquent"])
	assert.Equal(t, "vip", payload["description"])
	assert.Equal(t, jsonpool.Number("99"), payload["balance"], "attrs merged last wins")
	assert.Equal(t, map[string]interface{}{"tier": "gold"}, payload["metadata"])
}

func TestRowToPayload_UnsupportedType(t *testing.T) {
	row := models.NewRow(1)
	row.Push("created", models.NewTimestamp(time.Now()))

	_, err := RowToPayload(row)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnsupported))
	assert.Contains(t, err.Error(), "field type timestamp not supported")
}

func TestEncodeForm(t *testing.T) {
	form, err := EncodeForm(map[string]interface{}{
		"email":    "a@x.io",
		"balance":  int64(10),
		"rate":     1.5,
		"active":   false,
		"metadata": map[string]interface{}{"tier": "gold", "n": jsonpool.Number("2")},
		"items":    []interface{}{map[string]interface{}{"price": "price_1"}},
		"cleared":  nil,
	})
	require.NoError(t, err)

	assert.Equal(t, url.Values{
		"email":           {"a@x.io"},
		"balance":         {"10"},
		"rate":            {"1.5"},
		"active":          {"false"},
		"metadata[tier]":  {"gold"},
		"metadata[n]":     {"2"},
		"items[0][price]": {"price_1"},
		"cleared":         {""},
	}, form)

	_, err = EncodeForm(map[string]interface{}{"bad": struct{}{}})
	require.Error(t, err)
}

// A row encoded by the inverse mapper and decoded again by the forward
// mapper keeps every present cell.
func TestRoundTrip(t *testing.T) {
	schema := &Schema{
		Object: "products",
		Fields: []FieldSpec{
			Field("id", models.TypeString),
			Field("active", models.TypeBool),
			Field("price", models.TypeI64),
			Field("weight", models.TypeF64),
			Field("metadata", models.TypeJSON),
			Field("description", models.TypeString),
		},
	}
	cols := columns("id", "active", "price", "weight", "metadata", "description")

	rows := []*models.Row{
		func() *models.Row {
			r := models.NewRow(6)
			r.Push("id", models.NewString("prod_1"))
			r.Push("active", models.NewBool(true))
			r.Push("price", models.NewI64(1999))
			r.Push("weight", models.NewF64(0.75))
			r.Push("metadata", models.NewJSON([]byte(`{"color":"red"}`)))
			r.Push("description", nil)
			return r
		}(),
		func() *models.Row {
			r := models.NewRow(6)
			r.Push("id", models.NewString("prod_2"))
			r.Push("active", models.NewBool(false))
			r.Push("price", nil)
			r.Push("weight", nil)
			r.Push("metadata", nil)
			r.Push("description", models.NewString("it's \"quoted\""))
			return r
		}(),
	}

	m := New(AbsentOnError, zaptest.NewLogger(t))
	for _, in := range rows {
		payload, err := RowToPayload(in)
		require.NoError(t, err)
		data, err := jsonpool.Marshal(payload)
		require.NoError(t, err)

		body, err := DecodeBody(data)
		require.NoError(t, err)
		out, err := m.MapObject(schema, body, cols)
		require.NoError(t, err)

		in.Range(func(name string, cell *models.Cell) bool {
			if cell == nil {
				return true
			}
			got, _ := out.Get(name)
			assert.True(t, cell.Equal(got), "column %s: got %v want %v", name, got, cell)
			return true
		})
	}
}
