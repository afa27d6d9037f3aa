package forwarder

import (
	"context"
	"net/http"
	"testing"

	"gotest.tools/v3/assert"

	"stackyn/server/internal/model"
)

func TestNewHostMetaRequest_WireExact(t *testing.T) {
	app, err := model.NewAppName("demo")
	assert.NilError(t, err)

	req, err := NewHostMetaRequest(context.Background(), app, "web", "1.2.3")
	assert.NilError(t, err)

	assert.Equal(t, req.Method, http.MethodGet)
	assert.Equal(t, req.URL.Path, "/.well-known/host-meta.json")
	assert.Equal(t, req.Header.Get("Host"), "127.0.0.1")
	assert.Equal(t, req.Header.Get("Connection"), "close")
	assert.Equal(t, req.Header.Get("Accept"), "application/json")
	assert.Equal(t, req.Header.Get("User-Agent"), "PREvant/1.2.3")
	assert.Equal(t, req.Header.Get("X-Forwarded-Prefix"), "/demo/web")
	assert.Equal(t, req.Header.Get("Forwarded"), "host=www.prevant.example.com;proto=http")
}
