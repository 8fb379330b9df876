package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")

	log, err := NewLogger(
		WithLevel("debug"),
		WithEncoding("json"),
		WithOutputPaths([]string{path}),
		WithInitialFields(map[string]interface{}{"service": "catalog"}),
	)
	require.NoError(t, err)

	log.Named("store").Info("Filing created", String("accession", "ACC-1"), Int("seq", 3))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Filing created", entry["message"])
	assert.Equal(t, "store", entry["logger"])
	assert.Equal(t, "ACC-1", entry["accession"])
	assert.Equal(t, "catalog", entry["service"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewLogger_BadLevel(t *testing.T) {
	_, err := NewLogger(WithLevel("loud"), WithOutputPaths([]string{"stdout"}))
	assert.ErrorContains(t, err, "can't parse log level")
}

func TestContextLogger_RequestID(t *testing.T) {
	tl := NewTestLogger()
	cl := NewContextLogger(tl)

	ctx := WithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", RequestID(ctx))

	cl.FromContext(ctx).Info("tagged")
	cl.FromContext(context.Background()).Info("untagged")

	entries := tl.GetEntries()
	require.Len(t, entries, 2)
	require.Len(t, entries[0].Fields, 1)
	assert.Equal(t, "request_id", entries[0].Fields[0].Key)
	assert.Equal(t, "req-42", entries[0].Fields[0].String)
	assert.Empty(t, entries[1].Fields)
}

func TestTestLogger_WithAndNamed(t *testing.T) {
	tl := NewTestLogger()
	child := tl.Named("worker").With(String("task", "quickread:attach"))
	child.Warn("retrying")
	tl.Error("boom")

	entries := tl.GetEntries()
	require.Len(t, entries, 2, "children share the parent's buffer")
	assert.Equal(t, "worker", entries[0].Logger)
	assert.Equal(t, "task", entries[0].Fields[0].Key)
	assert.Equal(t, []string{"boom"}, tl.Messages("ERROR"))

	tl.Clear()
	assert.Empty(t, tl.GetEntries())
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	log.Info("dropped")
	assert.NoError(t, log.Sync())
}
