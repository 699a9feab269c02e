package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantError bool
	}{
		{name: "defaults", config: Config{}},
		{name: "console development", config: Config{Level: "debug", Encoding: "console", Development: true}},
		{name: "bad level", config: Config{Level: "loud"}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	ctx := ContextWithScan(context.Background(), "scan-1", "stripe", "charges")
	FromContext(ctx, base).Info("page fetched")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "scan-1", fields["scan_id"])
	assert.Equal(t, "stripe", fields["connector"])
	assert.Equal(t, "charges", fields["object"])
}

func TestSetAndGet(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := Get()
	t.Cleanup(func() { Set(prev) })

	Set(zap.New(core))
	Info("hello", zap.Int("n", 1))
	Debug("dropped")

	assert.Equal(t, 1, logs.Len())
}
