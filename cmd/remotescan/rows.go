package main

import (
	"fmt"

	"github.com/ajitpratap0/remotescan/pkg/config"
	"github.com/ajitpratap0/remotescan/pkg/connector/mapper"
	jsonpool "github.com/ajitpratap0/remotescan/pkg/json"
	"github.com/ajitpratap0/remotescan/pkg/models"
)

// rowFromJSON builds a row from a JSON object, converting each value to its
// column's declared type. Columns are emitted in definition order; null
// values become absent cells.
func rowFromJSON(def *config.TableDefinition, raw string) (*models.Row, error) {
	var obj map[string]interface{}
	if err := jsonpool.DecodeBytes([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("row is not a JSON object: %w", err)
	}

	known := make(map[string]bool, len(def.Columns))
	row := models.NewRow(len(obj))
	for _, col := range def.Columns {
		known[col.Name] = true
		v, ok := obj[col.Name]
		if !ok {
			continue
		}
		cell, err := mapper.Coerce(v, col.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		row.Push(col.Name, cell)
	}
	for k := range obj {
		if !known[k] {
			return nil, fmt.Errorf("unknown column %q", k)
		}
	}
	return row, nil
}
