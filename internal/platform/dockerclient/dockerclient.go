// Package dockerclient builds the shared Docker SDK client used by both
// the orchestrator and the config-time connectivity check, so the dial
// options live in one place.
package dockerclient

import (
	"context"
	"fmt"
	"time"

	dockerclient "github.com/docker/docker/client"
)

// New dials host (empty uses the SDK's environment defaults) and pings
// the daemon once so startup fails fast rather than surfacing as the
// first request's error.
func New(host string) (*dockerclient.Client, error) {
	opts := []dockerclient.Opt{dockerclient.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, dockerclient.WithHost(host))
	} else {
		opts = append(opts, dockerclient.FromEnv)
	}

	cli, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("docker daemon unreachable at %s: %w", cli.DaemonHost(), err)
	}

	return cli, nil
}
