package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConsoleLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWriter(&buf, "info", false)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Named("align").Info("aligned", zap.Int("moved", 3))
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "align")
	assert.Contains(t, out, `"moved": 3`)
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWriter(&buf, "debug", true)
	require.NoError(t, err)

	log.Debug("shown")
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
}

func TestInvalidLevel(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, "loud", false)
	require.Error(t, err)
}
