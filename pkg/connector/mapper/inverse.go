package mapper

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/ajitpratap0/remotescan/pkg/errors"
	jsonpool "github.com/ajitpratap0/remotescan/pkg/json"
	"github.com/ajitpratap0/remotescan/pkg/models"
)

// RowToPayload converts a row into a JSON object payload. Absent cells are
// dropped and the AttrsColumn object is merged into the top level. Dates
// and timestamps have no payload encoding and fail the conversion.
func RowToPayload(row *models.Row) (map[string]interface{}, error) {
	payload := make(map[string]interface{}, row.Len())
	var convErr error

	row.Range(func(name string, cell *models.Cell) bool {
		if cell == nil {
			return true
		}
		switch cell.Type {
		case models.TypeBool:
			payload[name] = cell.Bool
		case models.TypeI16, models.TypeI32, models.TypeI64:
			payload[name] = cell.Int
		case models.TypeF32, models.TypeF64:
			payload[name] = cell.Float
		case models.TypeString:
			payload[name] = cell.Str
		case models.TypeJSON:
			var v interface{}
			if err := jsonpool.DecodeBytes(cell.JSON, &v); err != nil {
				convErr = errors.Wrap(err, errors.ErrorTypeMapping, "invalid json cell").
					WithDetail("column", name)
				return false
			}
			if name == AttrsColumn {
				if obj, ok := v.(map[string]interface{}); ok {
					for k, val := range obj {
						payload[k] = val
					}
				}
				return true
			}
			payload[name] = v
		default:
			convErr = errors.Newf(errors.ErrorTypeUnsupported, "field type %s not supported", cell.Type).
				WithDetail("column", name)
			return false
		}
		return true
	})

	if convErr != nil {
		return nil, convErr
	}
	return payload, nil
}

// EncodeForm flattens a payload into form values using bracket notation
// for nested objects and arrays: metadata[key]=v, items[0][price]=p.
func EncodeForm(payload map[string]interface{}) (url.Values, error) {
	form := url.Values{}
	for _, k := range sortedKeys(payload) {
		if err := encodeFormValue(form, k, payload[k]); err != nil {
			return nil, err
		}
	}
	return form, nil
}

func encodeFormValue(form url.Values, key string, v interface{}) error {
	switch val := v.(type) {
	case nil:
		form.Add(key, "")
	case string:
		form.Add(key, val)
	case bool:
		form.Add(key, strconv.FormatBool(val))
	case int64:
		form.Add(key, strconv.FormatInt(val, 10))
	case int:
		form.Add(key, strconv.Itoa(val))
	case float64:
		form.Add(key, strconv.FormatFloat(val, 'f', -1, 64))
	case jsonpool.Number:
		form.Add(key, val.String())
	case map[string]interface{}:
		for _, k := range sortedKeys(val) {
			if err := encodeFormValue(form, key+"["+k+"]", val[k]); err != nil {
				return err
			}
		}
	case []interface{}:
		for i, item := range val {
			if err := encodeFormValue(form, fmt.Sprintf("%s[%d]", key, i), item); err != nil {
				return err
			}
		}
	default:
		return errors.Newf(errors.ErrorTypeUnsupported, "cannot form-encode %T", v).
			WithDetail("field", key)
	}
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
