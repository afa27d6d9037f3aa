package model

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestParseImageReference_Tagged(t *testing.T) {
	ref, err := ParseImageReference("registry.example.com/acme/api:1.2")
	assert.NilError(t, err)
	assert.Equal(t, ref.Registry(), "registry.example.com")
	assert.Equal(t, ref.Repository(), "acme/api")
	assert.Equal(t, ref.Tag(), "1.2")
	assert.Assert(t, !ref.RefersToImageID())
}

func TestParseImageReference_Digest(t *testing.T) {
	ref, err := ParseImageReference("acme/api@sha256:" + sha256Placeholder)
	assert.NilError(t, err)
	assert.Assert(t, ref.RefersToImageID())
	assert.Equal(t, ref.Tag(), "")
}

func TestParseImageReference_Invalid(t *testing.T) {
	_, err := ParseImageReference("")
	assert.ErrorContains(t, err, "parse image reference")
}

func TestServiceConfig_RefersToImageID(t *testing.T) {
	ref, err := ParseImageReference("acme/api@sha256:" + sha256Placeholder)
	assert.NilError(t, err)

	cfg := ServiceConfig{ServiceName: "web", Image: ref}
	assert.Assert(t, cfg.RefersToImageID())
}

const sha256Placeholder = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
