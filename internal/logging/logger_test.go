package logging

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	l := Component("gateway")
	l.Info().Int("files", 3).Msg("batch started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "gateway", line["component"])
	assert.Equal(t, "batch started", line["message"])
	assert.EqualValues(t, 3, line["files"])
}

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "loud", Output: &buf})

	log.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
