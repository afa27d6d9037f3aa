// Package docker implements forwarder.Forwarder by dialing a service's
// container directly on its app network.
package docker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"stackyn/server/internal/model"
	"stackyn/server/internal/webhostmeta"
)

// probeTimeout bounds a single host-meta probe so one unresponsive
// service can never stall a crawler cycle.
const probeTimeout = 3 * time.Second

// Forwarder reaches a single container's in-cluster address. A value is
// cheap to construct and good for exactly one request.
type Forwarder struct {
	ipAddress string
	client    *http.Client
}

// New returns a Forwarder addressed at the given container IP, reachable
// because the caller and callee share an app network.
func New(ipAddress string) *Forwarder {
	return &Forwarder{
		ipAddress: ipAddress,
		client:    &http.Client{Timeout: probeTimeout},
	}
}

// RequestWebHostMeta clones req onto this forwarder's address and issues
// it. Per forwarder.Forwarder, any readable response — including one
// that fails to parse as a host-meta document — is not an error.
func (f *Forwarder) RequestWebHostMeta(ctx context.Context, app model.AppName, serviceName string, req *http.Request) (webhostmeta.WebHostMeta, error) {
	outbound := req.Clone(ctx)
	outbound.URL.Scheme = "http"
	outbound.URL.Host = f.ipAddress

	resp, err := f.client.Do(outbound)
	if err != nil {
		return webhostmeta.Invalid(), fmt.Errorf("probe %s/%s: %w", app.String(), serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return webhostmeta.Empty(), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return webhostmeta.Invalid(), fmt.Errorf("read host-meta body for %s/%s: %w", app.String(), serviceName, err)
	}

	return webhostmeta.Parse(body), nil
}
