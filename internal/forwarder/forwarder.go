// Package forwarder defines the one-shot HTTP transport used to probe a
// single service's in-cluster endpoint.
package forwarder

import (
	"context"
	"net/http"

	"stackyn/server/internal/model"
	"stackyn/server/internal/webhostmeta"
)

// Forwarder tunnels exactly one HTTP request into a specific service's
// container and then closes the underlying connection. A Forwarder value
// is acquired fresh per probe via Infrastructure.HTTPForwarder and used
// once.
type Forwarder interface {
	// RequestWebHostMeta issues req against the given service and
	// decodes the response as a host-meta document. It returns
	// (meta, nil) for any response it could read — including an
	// unparseable body, which decodes to webhostmeta.Empty(). A
	// non-nil error means the request itself could not be completed
	// (connection refused, DNS failure, timeout, ...).
	RequestWebHostMeta(ctx context.Context, app model.AppName, serviceName string, req *http.Request) (webhostmeta.WebHostMeta, error)
}

// NewHostMetaRequest builds the fixed, wire-exact request the crawler
// issues against every service: GET /.well-known/host-meta.json with a
// constant header set and an empty body.
func NewHostMetaRequest(ctx context.Context, app model.AppName, serviceName, prevantVersion string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/.well-known/host-meta.json", http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Host = "127.0.0.1"
	req.Header.Set("Host", "127.0.0.1")
	req.Header.Set("Connection", "close")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "PREvant/"+prevantVersion)
	req.Header.Set("Forwarded", "host=www.prevant.example.com;proto=http")
	req.Header.Set("X-Forwarded-Prefix", "/"+app.String()+"/"+serviceName)
	return req, nil
}
