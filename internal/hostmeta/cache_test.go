package hostmeta

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"stackyn/server/internal/model"
	"stackyn/server/internal/webhostmeta"
)

func TestDecorate_AttachesBaseURLToEveryService(t *testing.T) {
	c := NewCache()
	app, _ := model.NewAppName("demo")
	services := map[model.AppName][]model.Service{
		app: {{AppName: app, ServiceName: "web", ID: "1"}},
	}

	out := c.Decorate(services, RequestInfo{BaseURL: "http://10.0.0.1"})
	assert.Equal(t, out[app][0].BaseURL, "http://10.0.0.1")
	assert.Assert(t, out[app][0].Meta == nil)
}

func TestDecorate_AttachesCachedMeta(t *testing.T) {
	c := NewCache()
	app, _ := model.NewAppName("demo")
	meta := webhostmeta.Parse([]byte(`{"links":[{"rel":"self","href":"/status"}]}`))

	c.publish(nil, map[cacheKey]cacheValue{
		{appName: app, serviceID: "1"}: {timestamp: time.Now(), meta: meta},
	})

	services := map[model.AppName][]model.Service{
		app: {{AppName: app, ServiceName: "web", ID: "1"}},
	}
	out := c.Decorate(services, RequestInfo{BaseURL: "http://10.0.0.1"})

	assert.Assert(t, out[app][0].Meta != nil)
	assert.Equal(t, out[app][0].Meta.Links()[0].Href, "http://10.0.0.1/status")
}

func TestDecorate_IdempotentWhenCacheUnchanged(t *testing.T) {
	c := NewCache()
	app, _ := model.NewAppName("demo")
	services := map[model.AppName][]model.Service{
		app: {{AppName: app, ServiceName: "web", ID: "1"}},
	}
	info := RequestInfo{BaseURL: "http://10.0.0.1"}

	first := c.Decorate(services, info)
	second := c.Decorate(services, info)

	assert.Equal(t, first[app][0].BaseURL, second[app][0].BaseURL)
}

func TestPublish_AtomicBatch(t *testing.T) {
	c := NewCache()
	app, _ := model.NewAppName("demo")
	now := time.Now()

	c.publish(nil, map[cacheKey]cacheValue{
		{appName: app, serviceID: "1"}: {timestamp: now, meta: webhostmeta.Parse([]byte(`{"subject":"x"}`))},
		{appName: app, serviceID: "2"}: {timestamp: now, meta: webhostmeta.Parse([]byte(`{"subject":"y"}`))},
	})

	snap := c.snapshot()
	assert.Equal(t, len(snap), 2)

	c.publish([]cacheKey{{appName: app, serviceID: "1"}}, nil)
	snap = c.snapshot()
	assert.Equal(t, len(snap), 1)
	_, stillThere := snap[cacheKey{appName: app, serviceID: "2"}]
	assert.Assert(t, stillThere)
}
