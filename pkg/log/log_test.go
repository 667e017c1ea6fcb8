package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	l := WithComponent("swarm")
	l.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"swarm"`)
}

func TestWithMissionIDAddsField(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	l := WithMissionID("m-42")
	l.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"mission_id":"m-42"`)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})

	Logger.Info().Msg("dropped")
	Logger.Warn().Msg("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}
