// Package mapper converts decoded remote payloads into rows and rows back
// into remote payloads. Every object is described by a Schema: a list of
// (column, payload path, type) entries plus optional extraction rules.
package mapper

import (
	"github.com/ajitpratap0/remotescan/pkg/errors"
	"github.com/ajitpratap0/remotescan/pkg/models"
)

// AttrsColumn receives the whole remote object as JSON
const AttrsColumn = "attrs"

// FieldSpec maps one column onto a payload path
type FieldSpec struct {
	Column string
	Path   []string
	Type   models.Type
	// EpochMillis reads timestamps as milliseconds, accepting numeric strings
	EpochMillis bool
}

// Field maps a top-level payload field onto a column of the same name
func Field(name string, t models.Type) FieldSpec {
	return FieldSpec{Column: name, Path: []string{name}, Type: t}
}

// Nested maps the value at path onto column
func Nested(column string, t models.Type, path ...string) FieldSpec {
	return FieldSpec{Column: column, Path: path, Type: t}
}

// ReshapeFunc turns a response body into the objects to map
type ReshapeFunc func(body map[string]interface{}) ([]map[string]interface{}, error)

// Schema describes one remote object
type Schema struct {
	Object string
	Fields []FieldSpec
	// ListKey names the array of objects in a list response
	ListKey string
	// AllowSingle maps a body without ListKey as one object, as returned by
	// point lookups
	AllowSingle bool
	// Reshape replaces the list extraction entirely
	Reshape ReshapeFunc
}

// Field returns the spec for column
func (s *Schema) Field(column string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Column == column {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Extract returns the objects held by a response body
func (s *Schema) Extract(body map[string]interface{}) ([]map[string]interface{}, error) {
	if s.Reshape != nil {
		return s.Reshape(body)
	}
	if s.ListKey == "" {
		return []map[string]interface{}{body}, nil
	}

	raw, ok := body[s.ListKey]
	if !ok || raw == nil {
		if s.AllowSingle && len(body) > 0 {
			return []map[string]interface{}{body}, nil
		}
		return nil, nil
	}

	items, ok := raw.([]interface{})
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeMapping, "%q is not an array", s.ListKey).
			WithDetail("object", s.Object)
	}
	objs := make([]map[string]interface{}, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeMapping, "%s[%d] is not an object", s.ListKey, i).
				WithDetail("object", s.Object)
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// SplitByKeys reshapes an aggregate object into one object per key. Each
// output is the first element of the array under key, tagged with the key
// in tagField.
func SplitByKeys(tagField string, keys ...string) ReshapeFunc {
	return func(body map[string]interface{}) ([]map[string]interface{}, error) {
		out := make([]map[string]interface{}, 0, len(keys))
		for _, key := range keys {
			arr, ok := body[key].([]interface{})
			if !ok || len(arr) == 0 {
				return nil, errors.Newf(errors.ErrorTypeMapping, "%q is missing or empty", key)
			}
			first, ok := arr[0].(map[string]interface{})
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeMapping, "%q does not hold objects", key)
			}
			obj := make(map[string]interface{}, len(first)+1)
			for k, v := range first {
				obj[k] = v
			}
			obj[tagField] = key
			out = append(out, obj)
		}
		return out, nil
	}
}

// Lookup walks path through nested objects
func Lookup(obj map[string]interface{}, path []string) (interface{}, bool) {
	var cur interface{} = obj
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
