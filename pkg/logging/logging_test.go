package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("warn", &buf)

	log.Info().Msg("hidden")
	log.Warn().Str("venue", "aggregator").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"venue":"aggregator"`)
	assert.Contains(t, out, `"time"`)
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("chatty", &buf)

	log.Debug().Msg("debug")
	log.Info().Msg("info")

	assert.NotContains(t, buf.String(), `"message":"debug"`)
	assert.Contains(t, buf.String(), `"message":"info"`)
}
