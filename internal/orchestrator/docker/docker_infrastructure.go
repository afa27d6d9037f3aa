// Package docker implements orchestrator.Infrastructure against a
// Docker-compatible container runtime.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stackyn/server/internal/forwarder"
	fwddocker "stackyn/server/internal/forwarder/docker"
	"stackyn/server/internal/model"
	"stackyn/server/internal/orchestrator"
)

const (
	replaceStopGrace = 10 * time.Second
	restartMaxRetry  = 5
)

// Infrastructure implements orchestrator.Infrastructure against a Docker
// daemon reachable via the standard SDK client.
type Infrastructure struct {
	client *dockerclient.Client
	logger *zap.Logger
}

// New wraps an already-dialed Docker SDK client (see
// internal/platform/dockerclient) as an Infrastructure.
func New(cli *dockerclient.Client, logger *zap.Logger) *Infrastructure {
	return &Infrastructure{client: cli, logger: logger}
}

// Close releases the underlying Docker SDK client.
func (in *Infrastructure) Close() error {
	return in.client.Close()
}

// ListServices enumerates every container carrying the app-name label,
// grouped by app name. Containers missing required labels are skipped
// with a warning rather than failing the whole call.
func (in *Infrastructure) ListServices(ctx context.Context) (map[model.AppName][]model.Service, error) {
	args := filters.NewArgs(filters.Arg("label", model.AppNameLabel))
	summaries, err := in.client.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, orchestrator.WrapError(orchestrator.UnexpectedRuntimeError, "list containers", err)
	}

	apps := make(map[model.AppName][]model.Service)
	for _, summary := range summaries {
		service, err := in.serviceFromContainer(ctx, summary)
		if err != nil {
			in.logger.Warn("container does not provide required data, skipping",
				zap.String("container_id", summary.ID),
				zap.Error(err),
			)
			continue
		}
		apps[service.AppName] = append(apps[service.AppName], service)
	}
	return apps, nil
}

// serviceFromContainer reconstructs a Service from a container's labels
// and inspected state: the app-name and service-name labels must be
// present; a missing container-type label defaults to Instance, and an
// unrecognized one is an error.
func (in *Infrastructure) serviceFromContainer(ctx context.Context, summary container.Summary) (model.Service, error) {
	serviceName, ok := summary.Labels[model.ServiceNameLabel]
	if !ok || serviceName == "" {
		return model.Service{}, orchestrator.NewError(orchestrator.MissingServiceNameLabel,
			fmt.Sprintf("container %s has no service-name label", summary.ID))
	}

	appNameRaw, ok := summary.Labels[model.AppNameLabel]
	if !ok || appNameRaw == "" {
		return model.Service{}, orchestrator.NewError(orchestrator.MissingAppNameLabel,
			fmt.Sprintf("container %s has no app-name label", summary.ID))
	}
	appName, err := model.NewAppName(appNameRaw)
	if err != nil {
		return model.Service{}, orchestrator.WrapError(orchestrator.MissingAppNameLabel, "invalid app name label", err)
	}

	containerType, err := model.ParseContainerType(summary.Labels[model.ContainerTypeLabel])
	if err != nil {
		return model.Service{}, orchestrator.WrapError(orchestrator.UnknownServiceType,
			fmt.Sprintf("container %s has unknown container-type label", summary.ID), err)
	}

	inspected, err := in.client.ContainerInspect(ctx, summary.ID)
	if err != nil {
		return model.Service{}, orchestrator.WrapError(orchestrator.UnexpectedRuntimeError, "inspect container", err)
	}

	return model.Service{
		AppName:       appName,
		ServiceName:   serviceName,
		ID:            model.ServiceID(summary.ID),
		ContainerType: containerType,
		Status:        statusFromState(inspected.State),
		StartedAt:     startedAtFromState(inspected.State),
	}, nil
}

func statusFromState(state *container.State) model.ServiceStatus {
	if state == nil {
		return model.StatusUnknown
	}
	if state.Paused {
		return model.StatusPaused
	}
	if state.Running {
		return model.StatusRunning
	}
	return model.StatusUnknown
}

func startedAtFromState(state *container.State) time.Time {
	if state == nil || state.StartedAt == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, state.StartedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// StartServices ensures the app's network exists, then creates, starts
// and connects one container per config in parallel.
func (in *Infrastructure) StartServices(ctx context.Context, app model.AppName, configs []model.ServiceConfig, cc model.ContainerConfig) ([]model.Service, error) {
	networkID, err := in.createOrGetNetwork(ctx, app)
	if err != nil {
		return nil, orchestrator.WrapError(orchestrator.UnexpectedRuntimeError, "ensure app network", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	services := make([]model.Service, len(configs))
	for i, cfg := range configs {
		i, cfg := i, cfg
		group.Go(func() error {
			service, err := in.startContainer(groupCtx, app, networkID, cfg, cc)
			if err != nil {
				return err
			}
			services[i] = service
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return services, nil
}

func (in *Infrastructure) createOrGetNetwork(ctx context.Context, app model.AppName) (string, error) {
	name := app.NetworkName()

	networks, err := in.client.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("list networks: %w", err)
	}
	for _, n := range networks {
		if n.Name == name {
			return n.ID, nil
		}
	}

	in.logger.Debug("creating network for app", zap.String("app", app.String()))
	created, err := in.client.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"})
	if err != nil {
		return "", fmt.Errorf("create network %s: %w", name, err)
	}
	in.logger.Debug("created network for app",
		zap.String("app", app.String()),
		zap.String("network_id", created.ID),
	)
	return created.ID, nil
}

func (in *Infrastructure) deleteNetwork(ctx context.Context, app model.AppName) error {
	name := app.NetworkName()
	networks, err := in.client.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return fmt.Errorf("list networks: %w", err)
	}
	for _, n := range networks {
		if n.Name == name {
			if err := in.client.NetworkRemove(ctx, n.ID); err != nil {
				return fmt.Errorf("remove network %s: %w", name, err)
			}
		}
	}
	return nil
}

func (in *Infrastructure) startContainer(ctx context.Context, app model.AppName, networkID string, cfg model.ServiceConfig, cc model.ContainerConfig) (model.Service, error) {
	if !cfg.RefersToImageID() {
		if err := in.pullImage(ctx, cfg.Image.String()); err != nil {
			return model.Service{}, err
		}
	}

	existing, err := in.getAppContainer(ctx, app, cfg.ServiceName)
	if err != nil {
		return model.Service{}, orchestrator.WrapError(orchestrator.UnexpectedRuntimeError, "look up existing container", err)
	}

	var imageToDelete string
	if existing != nil {
		inspected, err := in.client.ContainerInspect(ctx, existing.ID)
		if err != nil {
			return model.Service{}, orchestrator.WrapError(orchestrator.UnexpectedRuntimeError, "inspect existing container", err)
		}
		imageToDelete = inspected.Image

		in.logger.Info("removing existing container before replace",
			zap.String("app", app.String()),
			zap.String("service", cfg.ServiceName),
			zap.String("container_id", existing.ID),
		)
		grace := int(replaceStopGrace.Seconds())
		if err := in.client.ContainerStop(ctx, existing.ID, container.StopOptions{Timeout: &grace}); err != nil {
			return model.Service{}, orchestrator.WrapError(orchestrator.UnexpectedRuntimeError, "stop existing container", err)
		}
		if err := in.client.ContainerRemove(ctx, existing.ID, container.RemoveOptions{}); err != nil {
			return model.Service{}, orchestrator.WrapError(orchestrator.UnexpectedRuntimeError, "remove existing container", err)
		}
	}

	traefikRule := fmt.Sprintf(
		"ReplacePathRegex: ^/%s/%s(.*) /$1;PathPrefix:/%s/%s;",
		app.String(), cfg.ServiceName, app.String(), cfg.ServiceName,
	)
	labels := map[string]string{
		model.AppNameLabel:             app.String(),
		model.ServiceNameLabel:         cfg.ServiceName,
		model.ContainerTypeLabel:       cfg.ContainerType.String(),
		model.TraefikFrontendRuleLabel: traefikRule,
	}

	containerCfg := &container.Config{
		Image:  cfg.Image.String(),
		Env:    cfg.Env,
		Labels: labels,
	}
	hostCfg := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{
			Name:              container.RestartPolicyAlways,
			MaximumRetryCount: restartMaxRetry,
		},
	}
	if cc.MemoryLimitBytes != nil {
		hostCfg.Resources = container.Resources{Memory: *cc.MemoryLimitBytes}
	}

	in.logger.Info("creating container",
		zap.String("app", app.String()),
		zap.String("service", cfg.ServiceName),
		zap.String("image", cfg.Image.String()),
	)
	created, err := in.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return model.Service{}, translateCreateError(err)
	}

	if err := in.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return model.Service{}, orchestrator.WrapError(orchestrator.UnexpectedRuntimeError, "start container", err)
	}

	if err := in.client.NetworkConnect(ctx, networkID, created.ID, &network.EndpointSettings{
		Aliases: []string{cfg.ServiceName},
	}); err != nil {
		return model.Service{}, orchestrator.WrapError(orchestrator.UnexpectedRuntimeError, "connect container to network", err)
	}

	inspected, err := in.client.ContainerInspect(ctx, created.ID)
	if err != nil {
		return model.Service{}, orchestrator.WrapError(orchestrator.UnexpectedRuntimeError, "inspect new container", err)
	}

	service := model.Service{
		AppName:       app,
		ServiceName:   cfg.ServiceName,
		ID:            model.ServiceID(created.ID),
		ContainerType: cfg.ContainerType,
		Status:        statusFromState(inspected.State),
		StartedAt:     startedAtFromState(inspected.State),
	}

	if imageToDelete != "" {
		in.logger.Debug("cleaning up replaced image",
			zap.String("app", app.String()),
			zap.String("image", imageToDelete),
		)
		if _, err := in.client.ImageRemove(ctx, imageToDelete, image.RemoveOptions{}); err != nil {
			in.logger.Debug("could not clean up replaced image (likely still in use)", zap.Error(err))
		}
	}

	return service, nil
}

func (in *Infrastructure) pullImage(ctx context.Context, imageRef string) error {
	in.logger.Info("pulling image", zap.String("image", imageRef))

	stream, err := in.client.ImagePull(ctx, imageRef, image.PullOptions{})
	if err != nil {
		return translatePullError(err)
	}
	defer stream.Close()

	dec := json.NewDecoder(stream)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return orchestrator.WrapError(orchestrator.UnexpectedRuntimeError, "read pull output", err)
		}
		if msg.Error != nil {
			return translatePullError(msg.Error)
		}
		in.logger.Debug("pull progress", zap.String("status", msg.Status))
	}
	return nil
}

func (in *Infrastructure) getAppContainer(ctx context.Context, app model.AppName, serviceName string) (*container.Summary, error) {
	args := filters.NewArgs(
		filters.Arg("label", model.AppNameLabel+"="+app.String()),
		filters.Arg("label", model.ServiceNameLabel+"="+serviceName),
	)
	summaries, err := in.client.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, nil
	}
	return &summaries[0], nil
}

// StopServices deletes all containers labeled with app, then the app's
// network. Returns the pre-deletion snapshot; idempotent on a missing
// app.
func (in *Infrastructure) StopServices(ctx context.Context, app model.AppName) ([]model.Service, error) {
	args := filters.NewArgs(filters.Arg("label", model.AppNameLabel+"="+app.String()))
	summaries, err := in.client.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, orchestrator.WrapError(orchestrator.UnexpectedRuntimeError, "list app containers", err)
	}
	if len(summaries) == 0 {
		return []model.Service{}, nil
	}

	services := make([]model.Service, 0, len(summaries))
	for _, summary := range summaries {
		if service, err := in.serviceFromContainer(ctx, summary); err == nil {
			services = append(services, service)
		}
	}

	for _, summary := range summaries {
		if err := in.client.ContainerStop(ctx, summary.ID, container.StopOptions{}); err != nil {
			in.logger.Warn("failed to stop container during stop_services",
				zap.String("container_id", summary.ID), zap.Error(err))
			continue
		}
		if err := in.client.ContainerRemove(ctx, summary.ID, container.RemoveOptions{}); err != nil {
			in.logger.Warn("failed to remove container during stop_services",
				zap.String("container_id", summary.ID), zap.Error(err))
		}
	}

	if err := in.deleteNetwork(ctx, app); err != nil {
		in.logger.Warn("failed to delete app network", zap.String("app", app.String()), zap.Error(err))
	}

	return services, nil
}

// GetConfigsOfApp reconstructs desired-state descriptors from an app's
// currently running containers, excluding companion container types.
func (in *Infrastructure) GetConfigsOfApp(ctx context.Context, app model.AppName) ([]model.ServiceConfig, error) {
	args := filters.NewArgs(filters.Arg("label", model.AppNameLabel+"="+app.String()))
	summaries, err := in.client.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, orchestrator.WrapError(orchestrator.UnexpectedRuntimeError, "list app containers", err)
	}

	configs := make([]model.ServiceConfig, 0, len(summaries))
	for _, summary := range summaries {
		service, err := in.serviceFromContainer(ctx, summary)
		if err != nil {
			in.logger.Warn("container does not provide required information, skipping",
				zap.String("container_id", summary.ID), zap.Error(err))
			continue
		}
		if service.ContainerType == model.ApplicationCompanion || service.ContainerType == model.ServiceCompanion {
			continue
		}

		inspected, err := in.client.ContainerInspect(ctx, summary.ID)
		if err != nil {
			return nil, orchestrator.WrapError(orchestrator.UnexpectedRuntimeError, "inspect container", err)
		}

		ref, err := model.ParseImageReference(inspected.Config.Image)
		if err != nil {
			in.logger.Warn("container image reference could not be parsed, skipping",
				zap.String("container_id", summary.ID), zap.Error(err))
			continue
		}

		configs = append(configs, model.ServiceConfig{
			ServiceName:   service.ServiceName,
			Image:         ref,
			Env:           inspected.Config.Env,
			ContainerType: service.ContainerType,
		})
	}
	return configs, nil
}

// HTTPForwarder returns a one-shot forwarder addressed at the given
// service's container on its app network.
func (in *Infrastructure) HTTPForwarder(ctx context.Context, app model.AppName, service model.Service) (forwarder.Forwarder, error) {
	inspected, err := in.client.ContainerInspect(ctx, string(service.ID))
	if err != nil {
		return nil, fmt.Errorf("inspect container for forwarding: %w", err)
	}

	netName := app.NetworkName()
	endpoint, ok := inspected.NetworkSettings.Networks[netName]
	if !ok || endpoint.IPAddress == "" {
		return nil, fmt.Errorf("service %s is not connected to network %s", service.ServiceName, netName)
	}

	return fwddocker.New(endpoint.IPAddress), nil
}

func translateCreateError(err error) error {
	if dockerclient.IsErrNotFound(err) {
		return orchestrator.WrapError(orchestrator.ImageNotFound, "image not found", err)
	}
	return orchestrator.WrapError(orchestrator.UnexpectedRuntimeError, "create container", err)
}

func translatePullError(err error) error {
	if dockerclient.IsErrNotFound(err) {
		return orchestrator.WrapError(orchestrator.ImageNotFound, "image not found", err)
	}
	return orchestrator.WrapError(orchestrator.UnexpectedRuntimeError, "pull image", err)
}
