package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLine(t *testing.T, cfg Config) map[string]interface{} {
	t.Helper()
	var buf bytes.Buffer
	log := New(cfg).Output(&buf)
	log.Info().Msg("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestNew_TagsServiceByDefault(t *testing.T) {
	line := logLine(t, Config{Level: "info"})
	assert.Equal(t, "fx-coordinator", line["service"])
	assert.Equal(t, "hello", line["message"])
}

func TestNew_ServiceOverride(t *testing.T) {
	line := logLine(t, Config{Level: "info", Service: "backfill"})
	assert.Equal(t, "backfill", line["service"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "shouting"}).Output(&buf)
	log.Debug().Msg("dropped")
	log.Info().Msg("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}
