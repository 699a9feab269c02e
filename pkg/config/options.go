package config

import (
	"strconv"
	"strings"

	"github.com/ajitpratap0/remotescan/pkg/errors"
)

// Options are the string key/value options a connector receives from the
// host, at server level (credentials, endpoints) or table level (object,
// rowid_column).
type Options map[string]string

// Get returns the option value or "" when unset
func (o Options) Get(key string) string {
	return o[key]
}

// Has reports whether key is set to a non-empty value
func (o Options) Has(key string) bool {
	return strings.TrimSpace(o[key]) != ""
}

// GetDefault returns the option value or def when unset
func (o Options) GetDefault(key, def string) string {
	if o.Has(key) {
		return o[key]
	}
	return def
}

// Require returns the option value or a config error naming the missing key
func (o Options) Require(key string) (string, error) {
	if !o.Has(key) {
		return "", errors.New(errors.ErrorTypeConfig, "required option is missing").
			WithDetail("option", key)
	}
	return o[key], nil
}

// Int parses an integer option, returning def when unset
func (o Options) Int(key string, def int) (int, error) {
	if !o.Has(key) {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(o[key]))
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConfig, "option is not an integer").
			WithDetail("option", key)
	}
	return v, nil
}

// Merge returns a new Options with other's entries layered over o
func (o Options) Merge(other Options) Options {
	out := make(Options, len(o)+len(other))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
