// Package orchestrator implements idempotent lifecycle management for
// apps (groups of labeled service containers sharing a dedicated
// network) against a container runtime.
package orchestrator

import (
	"context"

	"stackyn/server/internal/forwarder"
	"stackyn/server/internal/model"
)

// Infrastructure is the polymorphic capability set the orchestrator and
// the host-meta crawler depend on. A Docker-compatible runtime is the
// only variant implemented here, but no caller above this interface
// depends on runtime specifics.
type Infrastructure interface {
	// ListServices enumerates all managed containers, grouped by app
	// name. Containers missing required identity labels are skipped
	// (and should be logged by the implementation), not treated as a
	// fatal error for the whole call.
	ListServices(ctx context.Context) (map[model.AppName][]model.Service, error)

	// StartServices ensures the app's network exists, then creates,
	// starts, and connects one container per config, replacing any
	// existing container for the same (app, service name). Returns the
	// resulting services in unspecified order. Partially started
	// services from a failed call are not rolled back.
	StartServices(ctx context.Context, app model.AppName, configs []model.ServiceConfig, cc model.ContainerConfig) ([]model.Service, error)

	// StopServices stops and deletes every container labeled with app,
	// then deletes the app's network. Returns the pre-deletion
	// snapshot. Idempotent: an app with no containers returns an empty
	// slice and no error.
	StopServices(ctx context.Context, app model.AppName) ([]model.Service, error)

	// GetConfigsOfApp reconstructs the desired-state descriptors of an
	// app's running containers, excluding companion container types.
	GetConfigsOfApp(ctx context.Context, app model.AppName) ([]model.ServiceConfig, error)

	// HTTPForwarder returns a transport usable once to reach the given
	// service. Failure is per-call and per-service, never fatal to the
	// caller.
	HTTPForwarder(ctx context.Context, app model.AppName, service model.Service) (forwarder.Forwarder, error)
}
