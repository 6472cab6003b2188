package debug

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerToggle(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	Init(false)
	Debug("hidden", "k", 1)
	assert.Empty(t, buf.String())
	assert.False(t, Enabled())

	Init(true)
	With("component", "cache").Debug("visible", "hit", true)
	assert.True(t, Enabled())
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "component=cache")
	assert.Contains(t, buf.String(), "hit=true")
	Init(false)
}
