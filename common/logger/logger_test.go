package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Production: true, Level: "warn", Output: &buf})
	defer SetLevel(zerolog.InfoLevel)

	Infof("hidden %d", 1)
	Warnf("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, `"level":"warn"`)
}

func TestProductionHasInfoFloor(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Production: true, Level: "debug", Output: &buf})
	defer SetLevel(zerolog.InfoLevel)

	Debugf("debug line")
	assert.Equal(t, zerolog.InfoLevel, Level())
	assert.Empty(t, buf.String())
}

func TestContextLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Production: true, Output: &buf})
	defer SetLevel(zerolog.InfoLevel)

	WithContext(map[string]interface{}{"request_id": "abc"}).Infof("stage %s", "layer1")
	assert.Contains(t, buf.String(), `"request_id":"abc"`)
	assert.Contains(t, buf.String(), "stage layer1")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSetLevelGovernsContextLoggers(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Output: &buf})
	defer SetLevel(zerolog.InfoLevel)

	cl := WithContext(map[string]interface{}{"stage": "layer2"})
	SetLevel(zerolog.ErrorLevel)
	cl.Warnf("suppressed")
	Warnf("suppressed too")
	assert.Empty(t, buf.String())

	SetLevel(zerolog.DebugLevel)
	assert.Equal(t, zerolog.DebugLevel, Level())
	cl.Debugf("visible")
	assert.Contains(t, buf.String(), "visible")
}
