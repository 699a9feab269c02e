package mapper

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/remotescan/pkg/errors"
	jsonpool "github.com/ajitpratap0/remotescan/pkg/json"
	"github.com/ajitpratap0/remotescan/pkg/models"
)

// BadCellPolicy decides what a failed coercion does
type BadCellPolicy int

const (
	// AbsentOnError stores an absent cell and keeps mapping
	AbsentOnError BadCellPolicy = iota
	// StopPageOnError ends the page at the first row holding a bad cell
	StopPageOnError
)

// String returns the policy name
func (p BadCellPolicy) String() string {
	if p == StopPageOnError {
		return "stop_page"
	}
	return "absent"
}

// Mapper converts payload objects into rows
type Mapper struct {
	policy BadCellPolicy
	logger *zap.Logger
}

// New creates a mapper
func New(policy BadCellPolicy, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{policy: policy, logger: logger.With(zap.String("component", "mapper"))}
}

// Policy returns the bad-cell policy
func (m *Mapper) Policy() BadCellPolicy {
	return m.policy
}

// DecodeBody decodes a JSON object body, keeping numbers exact
func DecodeBody(data []byte) (map[string]interface{}, error) {
	var body map[string]interface{}
	if err := jsonpool.DecodeBytes(data, &body); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransport, "failed to decode response body")
	}
	return body, nil
}

// MapBody extracts and maps every object in body. With StopPageOnError the
// returned rows end before the first bad row and truncated is true.
func (m *Mapper) MapBody(schema *Schema, body map[string]interface{}, columns []models.Column) ([]*models.Row, bool, error) {
	objs, err := schema.Extract(body)
	if err != nil {
		return nil, false, err
	}
	return m.MapObjects(schema, objs, columns)
}

// MapObjects maps objects in order
func (m *Mapper) MapObjects(schema *Schema, objs []map[string]interface{}, columns []models.Column) ([]*models.Row, bool, error) {
	rows := make([]*models.Row, 0, len(objs))
	for _, obj := range objs {
		row, err := m.MapObject(schema, obj, columns)
		if err != nil {
			if errors.IsType(err, errors.ErrorTypeMapping) && m.policy == StopPageOnError {
				m.logger.Warn("stopping page at unconvertible row",
					zap.String("object", schema.Object),
					zap.Int("mapped_rows", len(rows)),
					zap.Error(err))
				return rows, true, nil
			}
			return nil, false, err
		}
		rows = append(rows, row)
	}
	return rows, false, nil
}

// MapObject builds one row in column order. Columns without a schema entry
// are absent, except AttrsColumn which receives the whole object.
func (m *Mapper) MapObject(schema *Schema, obj map[string]interface{}, columns []models.Column) (*models.Row, error) {
	row := models.NewRow(len(columns))
	for _, col := range columns {
		spec, ok := schema.Field(col.Name)
		if !ok {
			if col.Name == AttrsColumn {
				cell, err := models.MarshalCell(obj)
				if err != nil {
					return nil, errors.Wrap(err, errors.ErrorTypeMapping, "failed to encode attrs")
				}
				row.Push(col.Name, cell)
				continue
			}
			row.Push(col.Name, nil)
			continue
		}

		v, found := Lookup(obj, spec.Path)
		if !found {
			row.Push(col.Name, nil)
			continue
		}
		cell, err := coerce(v, spec)
		if err != nil {
			if m.policy == StopPageOnError {
				return nil, errors.Wrap(err, errors.ErrorTypeMapping, "bad cell").
					WithDetail("column", col.Name)
			}
			m.logger.Debug("cell left absent",
				zap.String("object", schema.Object),
				zap.String("column", col.Name),
				zap.Error(err))
		}
		row.Push(col.Name, cell)
	}
	return row, nil
}

// StringAt returns the string at path, or ""
func StringAt(obj map[string]interface{}, path ...string) string {
	v, ok := Lookup(obj, path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// BoolAt returns the bool at path, or nil when absent or not a bool
func BoolAt(obj map[string]interface{}, path ...string) *bool {
	v, ok := Lookup(obj, path)
	if !ok {
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}
