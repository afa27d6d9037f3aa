package model

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestNewAppName_RejectsEmpty(t *testing.T) {
	_, err := NewAppName("")
	assert.ErrorContains(t, err, "must not be empty")
}

func TestAppName_NetworkName(t *testing.T) {
	app, err := NewAppName("demo")
	assert.NilError(t, err)
	assert.Equal(t, app.NetworkName(), "demo-net")
}

func TestAppName_Equal(t *testing.T) {
	a, _ := NewAppName("demo")
	b, _ := NewAppName("demo")
	c, _ := NewAppName("other")

	assert.Assert(t, a.Equal(b))
	assert.Assert(t, !a.Equal(c))
}
