package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

func TestNew_WritesStructuredLines(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	log := New(Config{Level: "info", Output: &buf, Component: "router"})

	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len(), "debug is below the configured level")

	log.Info().Str("token", "0x1001").Msg("Trade executed")
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "router", line["component"])
	assert.Equal(t, "0x1001", line["token"])
	assert.Equal(t, "Trade executed", line["message"])
	assert.Contains(t, line, "time")
	assert.Contains(t, line, "caller")
}
