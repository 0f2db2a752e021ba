package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkEncoder_AppendAndFlush(t *testing.T) {
	enc := NewBulkEncoder()

	require.NoError(t, enc.Append("100", map[string]any{"type": "question"}))
	require.NoError(t, enc.Append("100_7", map[string]any{"type": "answer"}))
	assert.Equal(t, 2, enc.Len())

	body := string(enc.Flush())
	lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")
	assert.Equal(t, []string{
		`{"index":{"_id":"100"}}`,
		`{"type":"question"}`,
		`{"index":{"_id":"100_7"}}`,
		`{"type":"answer"}`,
	}, lines)
	assert.True(t, strings.HasSuffix(body, "\n"))

	assert.Equal(t, 0, enc.Len())
	assert.Empty(t, enc.Flush())
}

func TestBulkEncoder_FlushedBytesSurviveReuse(t *testing.T) {
	enc := NewBulkEncoder()
	require.NoError(t, enc.Append("1", map[string]int{"a": 1}))
	first := enc.Flush()

	require.NoError(t, enc.Append("2", map[string]int{"b": 2}))
	assert.Equal(t, "{\"index\":{\"_id\":\"1\"}}\n{\"a\":1}\n", string(first))
}

func TestBulkEncoder_UnencodableDocument(t *testing.T) {
	enc := NewBulkEncoder()

	err := enc.Append("1", map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
	assert.Equal(t, 0, enc.Len())
	assert.Empty(t, enc.Flush())
}
