package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"gotest.tools/v3/assert"

	"stackyn/server/internal/forwarder"
	"stackyn/server/internal/model"
)

type fakeInfra struct {
	mu sync.Mutex

	startCalls    int32
	concurrent    int32
	maxConcurrent int32
	startDelay    time.Duration

	startErr error
}

func (f *fakeInfra) ListServices(ctx context.Context) (map[model.AppName][]model.Service, error) {
	return nil, nil
}

func (f *fakeInfra) StartServices(ctx context.Context, app model.AppName, configs []model.ServiceConfig, cc model.ContainerConfig) ([]model.Service, error) {
	atomic.AddInt32(&f.startCalls, 1)

	cur := atomic.AddInt32(&f.concurrent, 1)
	defer atomic.AddInt32(&f.concurrent, -1)

	f.mu.Lock()
	if cur > f.maxConcurrent {
		f.maxConcurrent = cur
	}
	f.mu.Unlock()

	if f.startDelay > 0 {
		time.Sleep(f.startDelay)
	}
	if f.startErr != nil {
		return nil, f.startErr
	}

	services := make([]model.Service, len(configs))
	for i, c := range configs {
		services[i] = model.Service{AppName: app, ServiceName: c.ServiceName}
	}
	return services, nil
}

func (f *fakeInfra) StopServices(ctx context.Context, app model.AppName) ([]model.Service, error) {
	return []model.Service{}, nil
}

func (f *fakeInfra) GetConfigsOfApp(ctx context.Context, app model.AppName) ([]model.ServiceConfig, error) {
	return nil, nil
}

func (f *fakeInfra) HTTPForwarder(ctx context.Context, app model.AppName, service model.Service) (forwarder.Forwarder, error) {
	return nil, nil
}

func TestOrchestrator_StartServices_Delegates(t *testing.T) {
	infra := &fakeInfra{}
	o := New(infra, zap.NewNop())

	app, err := model.NewAppName("demo")
	assert.NilError(t, err)

	configs := []model.ServiceConfig{{ServiceName: "web"}, {ServiceName: "worker"}}
	services, err := o.StartServices(context.Background(), app, configs, model.ContainerConfig{})
	assert.NilError(t, err)
	assert.Equal(t, len(services), 2)
	assert.Equal(t, services[0].ServiceName, "web")
}

func TestOrchestrator_StartServices_SerializesPerApp(t *testing.T) {
	infra := &fakeInfra{startDelay: 20 * time.Millisecond}
	o := New(infra, zap.NewNop())

	app, err := model.NewAppName("demo")
	assert.NilError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = o.StartServices(context.Background(), app, nil, model.ContainerConfig{})
		}()
	}
	wg.Wait()

	assert.Equal(t, infra.startCalls, int32(5))
	assert.Equal(t, infra.maxConcurrent, int32(1))
}

func TestOrchestrator_StartServices_DifferentAppsRunConcurrently(t *testing.T) {
	infra := &fakeInfra{startDelay: 20 * time.Millisecond}
	o := New(infra, zap.NewNop())

	appA, _ := model.NewAppName("a")
	appB, _ := model.NewAppName("b")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = o.StartServices(context.Background(), appA, nil, model.ContainerConfig{}) }()
	go func() { defer wg.Done(); _, _ = o.StartServices(context.Background(), appB, nil, model.ContainerConfig{}) }()
	wg.Wait()

	assert.Assert(t, infra.maxConcurrent >= 2)
}

func TestOrchestrator_StopServices_Idempotent(t *testing.T) {
	infra := &fakeInfra{}
	o := New(infra, zap.NewNop())

	app, _ := model.NewAppName("demo")
	services, err := o.StopServices(context.Background(), app)
	assert.NilError(t, err)
	assert.Equal(t, len(services), 0)
}
