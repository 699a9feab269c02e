package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBytesKeepsLargeIntegers(t *testing.T) {
	var v map[string]interface{}
	require.NoError(t, DecodeBytes([]byte(`{"amount": 9007199254740993}`), &v))

	n, ok := v["amount"].(Number)
	require.True(t, ok)
	i, err := n.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), i)
}

func TestCompact(t *testing.T) {
	out, err := Compact([]byte("{ \"a\" : [1, 2] }"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2]}`, string(out))

	_, err = Compact([]byte("{"))
	assert.Error(t, err)
}

func TestStreamingEncoder(t *testing.T) {
	tests := []struct {
		name    string
		isArray bool
		values  []interface{}
		want    string
	}{
		{name: "lines", values: []interface{}{1, "a"}, want: "1\n\"a\"\n"},
		{name: "array", isArray: true, values: []interface{}{1, 2}, want: "[1\n,2\n]\n"},
		{name: "empty array", isArray: true, want: "[]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			enc := NewStreamingEncoder(&buf, tt.isArray)
			for _, v := range tt.values {
				require.NoError(t, enc.Encode(v))
			}
			require.NoError(t, enc.Close())
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestBufferPool(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("x")
	PutBuffer(buf)
	assert.Equal(t, 0, GetBuffer().Len())
}
