package model

import (
	"fmt"

	"github.com/distribution/reference"
)

// ImageReference is the desired-state descriptor of the image a service
// should run, decomposed the way the runtime's own registry client
// understands it (registry/user/repo/tag or a content digest).
type ImageReference struct {
	raw string
	ref reference.Named
}

// ParseImageReference parses a Docker-style image reference string such
// as "registry.example.com/acme/api:1.2" or
// "acme/api@sha256:deadbeef...".
func ParseImageReference(raw string) (ImageReference, error) {
	named, err := reference.ParseNormalizedNamed(raw)
	if err != nil {
		return ImageReference{}, fmt.Errorf("parse image reference %q: %w", raw, err)
	}
	return ImageReference{raw: raw, ref: named}, nil
}

// String returns the reference in the canonical form Docker expects for
// pull/create calls.
func (i ImageReference) String() string {
	if i.ref == nil {
		return i.raw
	}
	return i.ref.String()
}

// RefersToImageID reports whether the reference pins a content digest
// rather than a mutable tag. Digest-pinned references are never pulled:
// they must already be present (or content-addressable) on the runtime.
func (i ImageReference) RefersToImageID() bool {
	_, ok := i.ref.(reference.Digested)
	return ok
}

// Registry returns the registry host portion of the reference, if any.
func (i ImageReference) Registry() string {
	if i.ref == nil {
		return ""
	}
	return reference.Domain(i.ref)
}

// Repository returns the repository path portion of the reference
// (without registry or tag/digest).
func (i ImageReference) Repository() string {
	if i.ref == nil {
		return ""
	}
	return reference.Path(i.ref)
}

// Tag returns the tag portion of the reference, or "" if the reference
// is untagged or digest-pinned.
func (i ImageReference) Tag() string {
	tagged, ok := i.ref.(reference.Tagged)
	if !ok {
		return ""
	}
	return tagged.Tag()
}

// ServiceConfig is the desired-state descriptor for one service within
// an app: everything needed to create its container from scratch.
type ServiceConfig struct {
	ServiceName   string
	Image         ImageReference
	Env           []string
	ContainerType ContainerType
	// Volumes is reserved: carried through for forward compatibility
	// but never mounted by StartServices.
	Volumes []string
}

// RefersToImageID is true iff the configured image is pinned by digest
// rather than a tag.
func (c ServiceConfig) RefersToImageID() bool {
	return c.Image.RefersToImageID()
}

// ContainerConfig carries the runtime tunables supplied once per
// orchestration call (not per service).
type ContainerConfig struct {
	MemoryLimitBytes *int64
}
