package mapper

import (
	"fmt"
	"math"
	"strconv"
	"time"

	jsonpool "github.com/ajitpratap0/remotescan/pkg/json"
	"github.com/ajitpratap0/remotescan/pkg/models"
)

// Coerce converts a decoded JSON value into a cell of type t. A JSON null
// yields an absent cell without error.
func Coerce(v interface{}, t models.Type) (*models.Cell, error) {
	return coerce(v, FieldSpec{Type: t})
}

func coerce(v interface{}, spec FieldSpec) (*models.Cell, error) {
	if v == nil {
		return nil, nil
	}

	switch spec.Type {
	case models.TypeBool:
		if b, ok := v.(bool); ok {
			return models.NewBool(b), nil
		}
		// SQL servers without a boolean type report 0 and 1
		if n, ok := toInt(v); ok && (n == 0 || n == 1) {
			return models.NewBool(n == 1), nil
		}
	case models.TypeI16:
		if n, ok := toInt(v); ok && n >= math.MinInt16 && n <= math.MaxInt16 {
			return models.NewI16(int16(n)), nil
		}
	case models.TypeI32:
		if n, ok := toInt(v); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
			return models.NewI32(int32(n)), nil
		}
	case models.TypeI64:
		if n, ok := toInt(v); ok {
			return models.NewI64(n), nil
		}
	case models.TypeF32:
		if f, ok := toFloat(v); ok {
			return models.NewF32(float32(f)), nil
		}
	case models.TypeF64:
		if f, ok := toFloat(v); ok {
			return models.NewF64(f), nil
		}
	case models.TypeString:
		if s, ok := v.(string); ok {
			return models.NewString(s), nil
		}
	case models.TypeDate:
		if t, ok := toTime(v, spec.EpochMillis); ok {
			return models.NewDate(t), nil
		}
	case models.TypeTimestamp:
		if t, ok := toTime(v, spec.EpochMillis); ok {
			return models.NewTimestamp(t), nil
		}
	case models.TypeJSON:
		return models.MarshalCell(v)
	default:
		return nil, fmt.Errorf("unknown type %q", spec.Type)
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, spec.Type)
}

func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case jsonpool.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case jsonpool.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// toTime reads epoch seconds (or milliseconds) from numbers and RFC 3339 or
// SQL-style text from strings
func toTime(v interface{}, millis bool) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t.UTC(), true
	}
	if s, ok := v.(string); ok {
		if millis {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return time.Time{}, false
			}
			return time.UnixMilli(n).UTC(), true
		}
		if t, err := models.ParseTimestamp(s); err == nil {
			return t, true
		}
		t, err := time.Parse(models.DateLayout, s)
		return t, err == nil
	}

	if n, ok := toInt(v); ok {
		if millis {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	if f, ok := toFloat(v); ok && !millis {
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	}
	return time.Time{}, false
}
