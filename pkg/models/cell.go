// Package models defines the canonical value model exchanged between remote
// connectors and the host query engine: typed cells, rows and column
// descriptors.
package models

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	jsonpool "github.com/ajitpratap0/remotescan/pkg/json"
)

// Type is the semantic type of a cell or column
type Type string

const (
	TypeBool      Type = "bool"
	TypeI16       Type = "i16"
	TypeI32       Type = "i32"
	TypeI64       Type = "i64"
	TypeF32       Type = "f32"
	TypeF64       Type = "f64"
	TypeString    Type = "string"
	TypeDate      Type = "date"
	TypeTimestamp Type = "timestamp"
	TypeJSON      Type = "json"
)

// DateLayout is the literal form of date cells
const DateLayout = "2006-01-02"

// TimestampLayout is the literal form of timestamp cells. Fractional
// seconds are kept to the microsecond so DateTime64 comparisons stay exact.
const TimestampLayout = "2006-01-02 15:04:05.999999"

// Valid reports whether t is a known type
func (t Type) Valid() bool {
	switch t {
	case TypeBool, TypeI16, TypeI32, TypeI64, TypeF32, TypeF64,
		TypeString, TypeDate, TypeTimestamp, TypeJSON:
		return true
	}
	return false
}

// ParseType parses a type name. Host SQL spellings such as "text",
// "bigint" or "timestamptz" are accepted as aliases.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bool", "boolean":
		return TypeBool, nil
	case "i16", "smallint", "int2":
		return TypeI16, nil
	case "i32", "int", "integer", "int4":
		return TypeI32, nil
	case "i64", "bigint", "int8":
		return TypeI64, nil
	case "f32", "real", "float4":
		return TypeF32, nil
	case "f64", "double precision", "double", "float8", "numeric":
		return TypeF64, nil
	case "string", "text", "varchar":
		return TypeString, nil
	case "date":
		return TypeDate, nil
	case "timestamp", "timestamptz":
		return TypeTimestamp, nil
	case "json", "jsonb":
		return TypeJSON, nil
	}
	return "", fmt.Errorf("unknown type %q", s)
}

// Cell is a single typed value. An absent value is represented by a nil
// *Cell, never by a zero Cell.
type Cell struct {
	Type  Type
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Time  time.Time
	JSON  []byte
}

// NewBool returns a bool cell
func NewBool(v bool) *Cell { return &Cell{Type: TypeBool, Bool: v} }

// NewI16 returns an i16 cell
func NewI16(v int16) *Cell { return &Cell{Type: TypeI16, Int: int64(v)} }

// NewI32 returns an i32 cell
func NewI32(v int32) *Cell { return &Cell{Type: TypeI32, Int: int64(v)} }

// NewI64 returns an i64 cell
func NewI64(v int64) *Cell { return &Cell{Type: TypeI64, Int: v} }

// NewF32 returns an f32 cell
func NewF32(v float32) *Cell { return &Cell{Type: TypeF32, Float: float64(v)} }

// NewF64 returns an f64 cell
func NewF64(v float64) *Cell { return &Cell{Type: TypeF64, Float: v} }

// NewString returns a string cell
func NewString(v string) *Cell { return &Cell{Type: TypeString, Str: v} }

// NewDate returns a date cell truncated to the UTC calendar day
func NewDate(v time.Time) *Cell {
	u := v.UTC()
	return &Cell{Type: TypeDate, Time: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// NewTimestamp returns a timestamp cell normalised to UTC
func NewTimestamp(v time.Time) *Cell { return &Cell{Type: TypeTimestamp, Time: v.UTC()} }

// NewJSON returns a json cell holding a copy of raw
func NewJSON(raw []byte) *Cell {
	b := make([]byte, len(raw))
	copy(b, raw)
	return &Cell{Type: TypeJSON, JSON: b}
}

// MarshalCell encodes v and wraps it in a json cell
func MarshalCell(v interface{}) (*Cell, error) {
	b, err := jsonpool.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Cell{Type: TypeJSON, JSON: b}, nil
}

// Clone returns a deep copy of c
func (c *Cell) Clone() *Cell {
	if c == nil {
		return nil
	}
	cp := *c
	if c.JSON != nil {
		cp.JSON = append([]byte(nil), c.JSON...)
	}
	return &cp
}

// Equal reports whether two cells (either may be absent) hold the same value
func (c *Cell) Equal(o *Cell) bool {
	if c == nil || o == nil {
		return c == nil && o == nil
	}
	if c.Type != o.Type {
		return false
	}
	switch c.Type {
	case TypeBool:
		return c.Bool == o.Bool
	case TypeI16, TypeI32, TypeI64:
		return c.Int == o.Int
	case TypeF32, TypeF64:
		return c.Float == o.Float || (math.IsNaN(c.Float) && math.IsNaN(o.Float))
	case TypeString:
		return c.Str == o.Str
	case TypeDate, TypeTimestamp:
		return c.Time.Equal(o.Time)
	case TypeJSON:
		a, errA := jsonpool.Compact(c.JSON)
		b, errB := jsonpool.Compact(o.JSON)
		if errA != nil || errB != nil {
			return bytes.Equal(c.JSON, o.JSON)
		}
		return bytes.Equal(a, b)
	}
	return false
}

// Value returns the cell as a native Go value suitable for encoding or
// passing to a database driver.
func (c *Cell) Value() interface{} {
	if c == nil {
		return nil
	}
	switch c.Type {
	case TypeBool:
		return c.Bool
	case TypeI16:
		return int16(c.Int)
	case TypeI32:
		return int32(c.Int)
	case TypeI64:
		return c.Int
	case TypeF32:
		return float32(c.Float)
	case TypeF64:
		return c.Float
	case TypeString:
		return c.Str
	case TypeDate, TypeTimestamp:
		return c.Time
	case TypeJSON:
		return jsonpool.RawMessage(c.JSON)
	}
	return nil
}

// Text renders the cell without SQL quoting. Dates and timestamps use
// DateLayout and RFC 3339.
func (c *Cell) Text() string {
	if c == nil {
		return ""
	}
	switch c.Type {
	case TypeBool:
		return strconv.FormatBool(c.Bool)
	case TypeI16, TypeI32, TypeI64:
		return strconv.FormatInt(c.Int, 10)
	case TypeF32:
		return strconv.FormatFloat(c.Float, 'g', -1, 32)
	case TypeF64:
		return strconv.FormatFloat(c.Float, 'g', -1, 64)
	case TypeString:
		return c.Str
	case TypeDate:
		return c.Time.Format(DateLayout)
	case TypeTimestamp:
		return c.Time.Format(time.RFC3339Nano)
	case TypeJSON:
		return string(c.JSON)
	}
	return ""
}

// String renders the cell as a SQL literal. Strings, dates, timestamps and
// json are single-quoted with embedded quotes doubled.
func (c *Cell) String() string {
	if c == nil {
		return "null"
	}
	switch c.Type {
	case TypeString:
		return quote(c.Str)
	case TypeDate:
		return quote(c.Time.Format(DateLayout))
	case TypeTimestamp:
		return quote(c.Time.Format(TimestampLayout))
	case TypeJSON:
		return quote(string(c.JSON))
	}
	return c.Text()
}

// MarshalJSON encodes the cell as its natural JSON value
func (c *Cell) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	switch c.Type {
	case TypeJSON:
		if len(c.JSON) == 0 {
			return []byte("null"), nil
		}
		return c.JSON, nil
	case TypeF32, TypeF64:
		if math.IsNaN(c.Float) || math.IsInf(c.Float, 0) {
			return jsonpool.Marshal(c.Text())
		}
		return []byte(c.Text()), nil
	case TypeBool, TypeI16, TypeI32, TypeI64:
		return []byte(c.Text()), nil
	}
	return jsonpool.Marshal(c.Text())
}

// ParseCell parses the textual form of a value of type t
func ParseCell(t Type, s string) (*Cell, error) {
	switch t {
	case TypeBool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return nil, err
		}
		return NewBool(v), nil
	case TypeI16:
		v, err := strconv.ParseInt(s, 10, 16)
		if err != nil {
			return nil, err
		}
		return NewI16(int16(v)), nil
	case TypeI32:
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, err
		}
		return NewI32(int32(v)), nil
	case TypeI64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return NewI64(v), nil
	case TypeF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, err
		}
		return NewF32(float32(v)), nil
	case TypeF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return NewF64(v), nil
	case TypeString:
		return NewString(s), nil
	case TypeDate:
		v, err := time.Parse(DateLayout, s)
		if err != nil {
			return nil, err
		}
		return NewDate(v), nil
	case TypeTimestamp:
		v, err := ParseTimestamp(s)
		if err != nil {
			return nil, err
		}
		return NewTimestamp(v), nil
	case TypeJSON:
		if !jsonpool.Valid([]byte(s)) {
			return nil, fmt.Errorf("invalid json value")
		}
		return NewJSON([]byte(s)), nil
	}
	return nil, fmt.Errorf("unknown type %q", t)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	TimestampLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC 3339 and the space-separated SQL layout
func ParseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// UnmarshalText lets configuration files use host type spellings
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
