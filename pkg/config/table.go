package config

import (
	"fmt"

	"github.com/ajitpratap0/remotescan/pkg/models"
	"github.com/ajitpratap0/remotescan/pkg/query"
)

// TableDefinition describes one foreign table and, optionally, a scan over it.
type TableDefinition struct {
	Connector     string          `yaml:"connector" json:"connector"`
	ServerOptions Options         `yaml:"server_options" json:"server_options"`
	TableOptions  Options         `yaml:"table_options" json:"table_options"`
	Columns       []models.Column `yaml:"columns" json:"columns"`
	Quals         []QualDef       `yaml:"quals" json:"quals"`
	Sorts         []SortDef       `yaml:"sorts" json:"sorts"`
	Limit         *LimitDef       `yaml:"limit" json:"limit"`
}

// QualDef is the YAML form of a qual. Value or Values must be set; the
// value type is taken from the matching column.
type QualDef struct {
	Field    string   `yaml:"field" json:"field"`
	Operator string   `yaml:"operator" json:"operator"`
	Value    *string  `yaml:"value" json:"value"`
	Values   []string `yaml:"values" json:"values"`
	UseOr    bool     `yaml:"use_or" json:"use_or"`
}

// SortDef is the YAML form of a sort key
type SortDef struct {
	Field      string `yaml:"field" json:"field"`
	Desc       bool   `yaml:"desc" json:"desc"`
	NullsFirst bool   `yaml:"nulls_first" json:"nulls_first"`
}

// LimitDef is the YAML form of a limit
type LimitDef struct {
	Offset int64 `yaml:"offset" json:"offset"`
	Count  int64 `yaml:"count" json:"count"`
}

// Validate checks the definition is usable
func (d *TableDefinition) Validate() error {
	if d.Connector == "" {
		return fmt.Errorf("connector is required")
	}
	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		if c.Name == "" {
			return fmt.Errorf("column name is required")
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		if !c.Type.Valid() {
			return fmt.Errorf("column %q has unknown type %q", c.Name, c.Type)
		}
	}
	if d.Limit != nil && (d.Limit.Offset < 0 || d.Limit.Count < 0) {
		return fmt.Errorf("limit offset and count must be non-negative")
	}
	return nil
}

// ColumnType returns the declared type of a column, defaulting to string
func (d *TableDefinition) ColumnType(name string) models.Type {
	for _, c := range d.Columns {
		if c.Name == name {
			return c.Type
		}
	}
	return models.TypeString
}

// BuildQuals converts the YAML quals into query quals
func (d *TableDefinition) BuildQuals() ([]query.Qual, error) {
	quals := make([]query.Qual, 0, len(d.Quals))
	for _, qd := range d.Quals {
		op := qd.Operator
		if op == "" {
			op = "="
		}
		typ := d.ColumnType(qd.Field)
		q := query.Qual{Field: qd.Field, Operator: op, UseOr: qd.UseOr}
		switch {
		case qd.Values != nil:
			cells := make([]*models.Cell, 0, len(qd.Values))
			for _, s := range qd.Values {
				c, err := models.ParseCell(typ, s)
				if err != nil {
					return nil, fmt.Errorf("qual %s: %w", qd.Field, err)
				}
				cells = append(cells, c)
			}
			q.Value = query.List(cells...)
		case qd.Value != nil:
			c, err := models.ParseCell(typ, *qd.Value)
			if err != nil {
				return nil, fmt.Errorf("qual %s: %w", qd.Field, err)
			}
			q.Value = query.Scalar(c)
		case op == "is" || op == "is not":
		default:
			return nil, fmt.Errorf("qual %s has no value", qd.Field)
		}
		quals = append(quals, q)
	}
	return quals, nil
}

// BuildSorts converts the YAML sorts into query sorts
func (d *TableDefinition) BuildSorts() []query.Sort {
	sorts := make([]query.Sort, 0, len(d.Sorts))
	for _, s := range d.Sorts {
		sorts = append(sorts, query.Sort{Field: s.Field, Reversed: s.Desc, NullsFirst: s.NullsFirst})
	}
	return sorts
}

// BuildLimit converts the YAML limit, returning nil when no limit is set
func (d *TableDefinition) BuildLimit() *query.Limit {
	if d.Limit == nil {
		return nil
	}
	return &query.Limit{Offset: d.Limit.Offset, Count: d.Limit.Count}
}
