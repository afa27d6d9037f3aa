package model

import "fmt"

// AppName identifies a logical group of services that share a network.
// It is opaque outside this package except for display and comparison.
type AppName struct {
	name string
}

// NewAppName validates and wraps a raw app name string.
func NewAppName(raw string) (AppName, error) {
	if raw == "" {
		return AppName{}, fmt.Errorf("app name must not be empty")
	}
	return AppName{name: raw}, nil
}

// String returns the raw app name.
func (a AppName) String() string {
	return a.name
}

// Equal reports whether two app names refer to the same app.
func (a AppName) Equal(other AppName) bool {
	return a.name == other.name
}

// NetworkName returns the deterministic per-app network name "<app>-net".
func (a AppName) NetworkName() string {
	return a.name + "-net"
}
