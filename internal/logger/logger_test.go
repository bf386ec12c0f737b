package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithWriter_ReleaseModeSkipsDebug(t *testing.T) {
	var buf bytes.Buffer
	initWithWriter(&buf, "release")
	t.Cleanup(func() { Logger = nil })

	Debug("hidden")
	Info("model loaded", "model", "gpt2")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "model loaded", rec["msg"])
	assert.Equal(t, "gpt2", rec["model"])
	assert.Equal(t, "INFO", rec["level"])
}

func TestL_FallsBackToDefault(t *testing.T) {
	Logger = nil
	assert.NotNil(t, L())
}
