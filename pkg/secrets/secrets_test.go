package secrets

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/remotescan/pkg/config"
	"github.com/ajitpratap0/remotescan/pkg/errors"
)

func TestEnvResolver(t *testing.T) {
	env := map[string]string{"REMOTESCAN_SECRET_STRIPE_KEY": "sk_test_1"}
	r := &EnvResolver{Prefix: EnvPrefix, lookup: func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}}

	assert.Equal(t, "REMOTESCAN_SECRET_STRIPE_KEY", r.VarName("stripe-key"))

	v, ok, err := r.Resolve(context.Background(), "stripe-key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk_test_1", v)

	_, ok, err = r.Resolve(context.Background(), "other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnvResolverProcessEnv(t *testing.T) {
	t.Setenv("REMOTESCAN_SECRET_CH", "clickhouse://u:p@localhost/db")
	v, ok, err := NewEnvResolver().Resolve(context.Background(), "ch")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "clickhouse://u:p@localhost/db", v)
}

func TestChain(t *testing.T) {
	chain := Chain{nil, StaticResolver{"a": "1"}, StaticResolver{"a": "2", "b": "3"}}

	v, ok, err := chain.Resolve(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	v, _, _ = chain.Resolve(context.Background(), "b")
	assert.Equal(t, "3", v)

	_, ok, _ = chain.Resolve(context.Background(), "c")
	assert.False(t, ok)
}

func TestCredential(t *testing.T) {
	ctx := context.Background()
	r := StaticResolver{"key-1": "from-vault"}

	tests := []struct {
		name   string
		opts   config.Options
		want   string
		wantOK bool
	}{
		{"inline wins", config.Options{"api_key": "inline", "api_key_id": "key-1"}, "inline", true},
		{"by id", config.Options{"api_key_id": "key-1"}, "from-vault", true},
		{"unknown id", config.Options{"api_key_id": "key-2"}, "", false},
		{"neither", config.Options{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok, err := Credential(ctx, r, tt.opts, "api_key", "api_key_id")
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, v)
		})
	}

	_, _, err := Credential(ctx, nil, config.Options{"api_key_id": "x"}, "api_key", "api_key_id")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestPostgresResolver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	q := regexp.QuoteMeta("from vault.decrypted_secrets")
	mock.ExpectQuery(q).WithArgs("stripe").
		WillReturnRows(sqlmock.NewRows([]string{"decrypted_secret"}).AddRow("sk_live_9"))
	mock.ExpectQuery(q).WithArgs("missing").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).WithArgs("broken").WillReturnError(sql.ErrConnDone)

	r := NewPostgresResolver(db)
	ctx := context.Background()

	v, ok, err := r.Resolve(ctx, "stripe")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk_live_9", v)

	_, ok, err = r.Resolve(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = r.Resolve(ctx, "broken")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))

	require.NoError(t, mock.ExpectationsWereMet())
}
