// Package secrets resolves credential references. Connector options may
// carry a credential inline (api_key) or as an id (api_key_id) that is
// looked up through a Resolver.
package secrets

import (
	"context"
	"database/sql"
	"os"
	"regexp"
	"strings"

	"github.com/ajitpratap0/remotescan/pkg/config"
	"github.com/ajitpratap0/remotescan/pkg/errors"
)

// Resolver looks up a secret by id. A missing secret is reported as
// ok == false with a nil error.
type Resolver interface {
	Resolve(ctx context.Context, id string) (value string, ok bool, err error)
}

// EnvPrefix is prepended to the normalised id by EnvResolver
const EnvPrefix = "REMOTESCAN_SECRET_"

var nonIdent = regexp.MustCompile(`[^A-Z0-9_]`)

// EnvResolver reads secrets from environment variables named
// REMOTESCAN_SECRET_<ID>, where ID is upper-cased with other characters
// replaced by underscores.
type EnvResolver struct {
	Prefix string
	lookup func(string) (string, bool)
}

// NewEnvResolver creates a resolver over the process environment
func NewEnvResolver() *EnvResolver {
	return &EnvResolver{Prefix: EnvPrefix, lookup: os.LookupEnv}
}

// VarName returns the environment variable consulted for id
func (r *EnvResolver) VarName(id string) string {
	return r.Prefix + nonIdent.ReplaceAllString(strings.ToUpper(id), "_")
}

// Resolve implements Resolver
func (r *EnvResolver) Resolve(_ context.Context, id string) (string, bool, error) {
	v, ok := r.lookup(r.VarName(id))
	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

// StaticResolver serves secrets from a fixed map
type StaticResolver map[string]string

// Resolve implements Resolver
func (r StaticResolver) Resolve(_ context.Context, id string) (string, bool, error) {
	v, ok := r[id]
	return v, ok, nil
}

// PostgresResolver reads decrypted secrets from a Postgres vault view,
// matching either the secret's uuid or its name.
type PostgresResolver struct {
	db *sql.DB
}

// NewPostgresResolver wraps an open database handle
func NewPostgresResolver(db *sql.DB) *PostgresResolver {
	return &PostgresResolver{db: db}
}

// Resolve implements Resolver
func (r *PostgresResolver) Resolve(ctx context.Context, id string) (string, bool, error) {
	var value sql.NullString
	err := r.db.QueryRowContext(ctx, `select decrypted_secret
from vault.decrypted_secrets
where id::text = $1 or name = $1
limit 1`, id).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, errors.ErrorTypeQuery, "read vault secret").
			WithDetail("secret_id", id)
	}
	if !value.Valid {
		return "", false, nil
	}
	return value.String, true, nil
}

// Chain tries each resolver in order and returns the first hit
type Chain []Resolver

// Resolve implements Resolver. An error from any resolver stops the chain.
func (c Chain) Resolve(ctx context.Context, id string) (string, bool, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		v, ok, err := r.Resolve(ctx, id)
		if err != nil {
			return "", false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return "", false, nil
}

// Credential returns the inline option plainKey when set, otherwise the
// secret referenced by idKey. ok is false when neither yields a value.
func Credential(ctx context.Context, r Resolver, opts config.Options, plainKey, idKey string) (string, bool, error) {
	if opts.Has(plainKey) {
		return opts.Get(plainKey), true, nil
	}
	if !opts.Has(idKey) {
		return "", false, nil
	}
	if r == nil {
		return "", false, errors.New(errors.ErrorTypeConfig, "no secret resolver configured").
			WithDetail("option", idKey)
	}
	return r.Resolve(ctx, opts.Get(idKey))
}
