package hostmeta

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"stackyn/server/internal/forwarder"
	"stackyn/server/internal/model"
	"stackyn/server/internal/webhostmeta"
	pkgcontext "stackyn/server/pkg/context"
)

const (
	crawlInterval = 5 * time.Second

	// Thresholds from the transport-error classifier: a probe failure is
	// only treated as "permanently unavailable" once both the service
	// and this process have been up long enough that the failure is
	// unlikely to be transient start-up noise.
	minServiceUptimeForEmpty = 5 * time.Minute
	minProcessUptimeForEmpty = 1 * time.Minute

	// maxConcurrentProbes bounds how many in-flight host-meta requests
	// one crawl cycle may run at once.
	maxConcurrentProbes = 64

	// probeRequestTimeout bounds a single probe's context lifetime,
	// independent of whatever deadline the forwarder itself applies.
	probeRequestTimeout = 5 * time.Second
)

// Inventory is the subset of the orchestrator the crawler depends on:
// the current service listing, and a forwarder per service.
type Inventory interface {
	GetServices(ctx context.Context) (map[model.AppName][]model.Service, error)
	HTTPForwarder(ctx context.Context, app model.AppName, service model.Service) (forwarder.Forwarder, error)
}

// Crawler is the cache's sole writer: a long-lived task that
// periodically reconciles the cache against the live service
// inventory.
type Crawler struct {
	inventory      Inventory
	cache          *Cache
	logger         *zap.Logger
	prevantVersion string
	startupTime    time.Time
}

// NewCrawler builds a Crawler. startupTime is recorded now, at
// construction, for the transport-error classifier's process_uptime
// term.
func NewCrawler(inventory Inventory, cache *Cache, prevantVersion string, logger *zap.Logger) *Crawler {
	return &Crawler{
		inventory:      inventory,
		cache:          cache,
		logger:         logger,
		prevantVersion: prevantVersion,
		startupTime:    time.Now(),
	}
}

// Run blocks, executing one reconciliation cycle every 5 seconds, until
// ctx is cancelled. There is no other shutdown contract: outstanding
// probes are cancelled mid-flight and a cancelled cycle's results are
// discarded rather than published.
func (c *Crawler) Run(ctx context.Context) {
	ticker := time.NewTicker(crawlInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cycle(ctx)
		}
	}
}

type target struct {
	key     cacheKey
	service model.Service
}

func (c *Crawler) cycle(ctx context.Context) {
	inventory, err := c.inventory.GetServices(ctx)
	if err != nil {
		c.logger.Warn("crawler: failed to list services, skipping cycle", zap.Error(err))
		return
	}

	snapshot := c.cache.snapshot()
	evicts := c.evictions(inventory, snapshot)

	present := make(map[cacheKey]struct{}, len(snapshot))
	for k := range snapshot {
		present[k] = struct{}{}
	}
	for _, k := range evicts {
		delete(present, k)
	}

	targets := c.targets(inventory, present)
	if len(targets) == 0 {
		if len(evicts) > 0 {
			c.cache.publish(evicts, nil)
		}
		return
	}

	results := c.probe(ctx, targets)
	if pkgcontext.IsCancelled(ctx) {
		// Cancelled mid-cycle: discard partial results, never publish.
		return
	}

	inserts := make(map[cacheKey]cacheValue, len(results))
	now := time.Now()
	for _, r := range results {
		if r.meta.IsValid() {
			inserts[r.key] = cacheValue{timestamp: now, meta: r.meta}
		}
	}

	c.cache.publish(evicts, inserts)
}

// evictions reports cache entries whose service has disappeared, is
// paused, or has restarted since it was cached.
func (c *Crawler) evictions(inventory map[model.AppName][]model.Service, snapshot map[cacheKey]cacheValue) []cacheKey {
	var evicts []cacheKey
	for key, value := range snapshot {
		svcs, ok := inventory[key.appName]
		if !ok {
			evicts = append(evicts, key)
			continue
		}
		found := false
		for _, svc := range svcs {
			if svc.ID != key.serviceID {
				continue
			}
			found = true
			if svc.Status == model.StatusPaused || svc.StartedAt.After(value.timestamp) {
				evicts = append(evicts, key)
			}
			break
		}
		if !found {
			evicts = append(evicts, key)
		}
	}
	return evicts
}

// targets returns every (key, service) pair not currently present in
// the cache.
func (c *Crawler) targets(inventory map[model.AppName][]model.Service, present map[cacheKey]struct{}) []target {
	var targets []target
	for appName, svcs := range inventory {
		for _, svc := range svcs {
			key := cacheKey{appName: appName, serviceID: svc.ID}
			if _, cached := present[key]; cached {
				continue
			}
			targets = append(targets, target{key: key, service: svc})
		}
	}
	return targets
}

type probeResult struct {
	key  cacheKey
	meta webhostmeta.WebHostMeta
}

// probe runs a bounded fan-out over targets, each probe independent
// and unordered.
func (c *Crawler) probe(ctx context.Context, targets []target) []probeResult {
	sem := semaphore.NewWeighted(maxConcurrentProbes)
	group, groupCtx := errgroup.WithContext(ctx)

	results := make([]probeResult, len(targets))
	for i, t := range targets {
		i, t := i, t
		group.Go(func() error {
			if err := sem.Acquire(groupCtx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			results[i] = probeResult{key: t.key, meta: c.probeOne(groupCtx, t)}
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func (c *Crawler) probeOne(ctx context.Context, t target) webhostmeta.WebHostMeta {
	ctx, cancel := pkgcontext.WithRequestTimeout(ctx, probeRequestTimeout)
	defer cancel()

	fwd, err := c.inventory.HTTPForwarder(ctx, t.key.appName, t.service)
	if err != nil {
		c.logger.Debug("crawler: could not acquire forwarder",
			zap.String("app", t.key.appName.String()),
			zap.String("service", t.service.ServiceName),
			zap.Error(err),
		)
		return webhostmeta.Empty()
	}

	req, err := forwarder.NewHostMetaRequest(ctx, t.key.appName, t.service.ServiceName, c.prevantVersion)
	if err != nil {
		c.logger.Debug("crawler: could not build probe request", zap.Error(err))
		return webhostmeta.Empty()
	}

	meta, err := fwd.RequestWebHostMeta(ctx, t.key.appName, t.service.ServiceName, req)
	if err != nil {
		c.logger.Debug("crawler: host-meta probe failed",
			zap.String("app", t.key.appName.String()),
			zap.String("service", t.service.ServiceName),
			zap.Error(err),
		)
		return c.classifyTransportError(t.service)
	}
	return meta
}

// classifyTransportError turns a probe's transport failure into empty
// or invalid, depending on how long the service and this process have
// been running.
func (c *Crawler) classifyTransportError(svc model.Service) webhostmeta.WebHostMeta {
	now := time.Now()
	serviceUptime := now.Sub(svc.StartedAt)
	processUptime := now.Sub(c.startupTime)

	if serviceUptime >= minServiceUptimeForEmpty && processUptime >= minProcessUptimeForEmpty {
		return webhostmeta.Empty()
	}
	return webhostmeta.Invalid()
}
