// Package query models the predicate, ordering and limit information the
// host engine hands to a scan.
package query

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/remotescan/pkg/models"
)

// Value is the right-hand side of a qual: a single cell or an array of cells
type Value struct {
	Cell  *models.Cell
	Array []*models.Cell
}

// Scalar wraps a single cell
func Scalar(c *models.Cell) Value { return Value{Cell: c} }

// List wraps an array of cells
func List(cells ...*models.Cell) Value { return Value{Array: cells} }

// IsArray reports whether the value is an array
func (v Value) IsArray() bool { return v.Array != nil }

// Qual is a single filter condition. UseOr marks array quals whose elements
// are combined with OR, as in "x = any(array[...])".
type Qual struct {
	Field    string
	Operator string
	Value    Value
	UseOr    bool
}

// Eq builds a scalar equality qual
func Eq(field string, c *models.Cell) Qual {
	return Qual{Field: field, Operator: "=", Value: Scalar(c)}
}

// IsScalarEquality reports whether q is a plain "field = scalar" condition
func (q Qual) IsScalarEquality() bool {
	return q.Operator == "=" && !q.UseOr && !q.Value.IsArray() && q.Value.Cell != nil
}

// Deparse renders the qual as a SQL condition with standard literals
func (q Qual) Deparse() (string, error) {
	return q.DeparseWith((*models.Cell).String)
}

// DeparseWith renders the qual as a SQL condition, writing values with
// literal
func (q Qual) DeparseWith(literal func(*models.Cell) string) (string, error) {
	if q.Value.IsArray() {
		if len(q.Value.Array) == 0 {
			return "", fmt.Errorf("qual on %s has an empty array value", q.Field)
		}
		joiner := " and "
		if q.UseOr {
			joiner = " or "
		}
		conds := make([]string, 0, len(q.Value.Array))
		for _, c := range q.Value.Array {
			conds = append(conds, fmt.Sprintf("%s %s %s", q.Field, q.Operator, literal(c)))
		}
		return "(" + strings.Join(conds, joiner) + ")", nil
	}

	switch q.Operator {
	case "is", "is not":
		if q.Value.Cell == nil || (q.Value.Cell.Type == models.TypeString && q.Value.Cell.Str == "null") {
			return fmt.Sprintf("%s %s null", q.Field, q.Operator), nil
		}
		return fmt.Sprintf("%s %s %s", q.Field, q.Operator, literal(q.Value.Cell)), nil
	}
	if q.Value.Cell == nil {
		return "", fmt.Errorf("qual on %s has no value", q.Field)
	}
	return fmt.Sprintf("%s %s %s", q.Field, q.Operator, literal(q.Value.Cell)), nil
}

// Sort is one ORDER BY key
type Sort struct {
	Field      string
	Reversed   bool
	NullsFirst bool
}

// Deparse renders the sort key as a SQL ORDER BY item
func (s Sort) Deparse() string {
	var b strings.Builder
	b.WriteString(s.Field)
	if s.Reversed {
		b.WriteString(" desc")
	} else {
		b.WriteString(" asc")
	}
	if s.NullsFirst {
		b.WriteString(" nulls first")
	} else {
		b.WriteString(" nulls last")
	}
	return b.String()
}

// Limit is the host's LIMIT/OFFSET. The host applies the offset itself after
// reading, so remote requests only ever see Ceiling().
type Limit struct {
	Offset int64
	Count  int64
}

// Ceiling is the number of leading rows the host needs to see
func (l Limit) Ceiling() int64 { return l.Offset + l.Count }

// Cursor is the position of the next page. The zero value means the first page.
type Cursor struct {
	Token  string
	Offset int64
	set    bool
}

// TokenCursor returns a cursor carrying an opaque server token
func TokenCursor(token string) Cursor { return Cursor{Token: token, set: true} }

// OffsetCursor returns a cursor carrying a numeric offset
func OffsetCursor(offset int64) Cursor { return Cursor{Offset: offset, set: true} }

// IsFirst reports whether the cursor denotes the first page
func (c Cursor) IsFirst() bool { return !c.set }

// String renders the cursor for logs and query parameters
func (c Cursor) String() string {
	if !c.set {
		return ""
	}
	if c.Token != "" {
		return c.Token
	}
	return fmt.Sprintf("%d", c.Offset)
}
