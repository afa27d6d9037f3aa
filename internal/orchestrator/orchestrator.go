package orchestrator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"stackyn/server/internal/forwarder"
	"stackyn/server/internal/model"
)

// Orchestrator is the seam the rest of the control plane talks to: HTTP
// handlers mutate app state through it, and the host-meta crawler reads
// the current service inventory through it. It delegates the actual
// runtime interaction to an Infrastructure implementation, adding only
// the per-app-name serialization the runtime itself does not guarantee
// (see DESIGN.md — naive "list network then create" races under
// concurrent app starts).
type Orchestrator struct {
	infra  Infrastructure
	logger *zap.Logger

	appLocksMu sync.Mutex
	appLocks   map[string]*sync.Mutex
}

// New builds an Orchestrator around the given Infrastructure.
func New(infra Infrastructure, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		infra:    infra,
		logger:   logger,
		appLocks: make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) lockFor(app model.AppName) *sync.Mutex {
	o.appLocksMu.Lock()
	defer o.appLocksMu.Unlock()

	lock, ok := o.appLocks[app.String()]
	if !ok {
		lock = &sync.Mutex{}
		o.appLocks[app.String()] = lock
	}
	return lock
}

// GetServices returns the full, current service inventory across all
// apps.
func (o *Orchestrator) GetServices(ctx context.Context) (map[model.AppName][]model.Service, error) {
	return o.infra.ListServices(ctx)
}

// StartServices serializes concurrent callers for the same app name
// before delegating to the Infrastructure, so that two callers racing
// to create-or-get the same app's network in the same process can't
// both observe "missing" and both attempt to create it.
func (o *Orchestrator) StartServices(ctx context.Context, app model.AppName, configs []model.ServiceConfig, cc model.ContainerConfig) ([]model.Service, error) {
	lock := o.lockFor(app)
	lock.Lock()
	defer lock.Unlock()

	o.logger.Info("starting services",
		zap.String("app", app.String()),
		zap.Int("service_count", len(configs)),
	)

	services, err := o.infra.StartServices(ctx, app, configs, cc)
	if err != nil {
		o.logger.Error("failed to start services",
			zap.String("app", app.String()),
			zap.Error(err),
		)
		return nil, err
	}

	o.logger.Info("started services",
		zap.String("app", app.String()),
		zap.Int("service_count", len(services)),
	)
	return services, nil
}

// StopServices serializes with any concurrent StartServices for the same
// app before delegating. Idempotent: stopping an already-stopped (or
// never-started) app returns an empty slice.
func (o *Orchestrator) StopServices(ctx context.Context, app model.AppName) ([]model.Service, error) {
	lock := o.lockFor(app)
	lock.Lock()
	defer lock.Unlock()

	o.logger.Info("stopping services", zap.String("app", app.String()))

	services, err := o.infra.StopServices(ctx, app)
	if err != nil {
		o.logger.Error("failed to stop services",
			zap.String("app", app.String()),
			zap.Error(err),
		)
		return nil, err
	}

	o.logger.Info("stopped services",
		zap.String("app", app.String()),
		zap.Int("service_count", len(services)),
	)
	return services, nil
}

// GetConfigsOfApp returns the desired-state descriptors reconstructed
// from an app's currently running (non-companion) containers.
func (o *Orchestrator) GetConfigsOfApp(ctx context.Context, app model.AppName) ([]model.ServiceConfig, error) {
	return o.infra.GetConfigsOfApp(ctx, app)
}

// HTTPForwarder obtains a fresh forwarder for the given service.
func (o *Orchestrator) HTTPForwarder(ctx context.Context, app model.AppName, service model.Service) (forwarder.Forwarder, error) {
	return o.infra.HTTPForwarder(ctx, app, service)
}
