package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info", "text")

	Info("server started", "port", 3000)
	out := buf.String()
	assert.Contains(t, out, "server started")
	assert.Contains(t, out, "port=3000")
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "json")

	Debug("processing image", "media_id", "abc", "width", 800)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "processing image", entry["msg"])
	assert.Equal(t, "abc", entry["media_id"])
	assert.Equal(t, float64(800), entry["width"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "warn", "text")

	Debug("hidden")
	Info("also hidden")
	Warn("visible")
	Error("also visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestWithBindsAttributes(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info", "text")

	l := With("component", "sweeper")
	l.Info("run complete", "cleaned", 3)

	out := buf.String()
	assert.Contains(t, out, "component=sweeper")
	assert.Contains(t, out, "cleaned=3")
}
