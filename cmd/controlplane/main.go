package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"stackyn/server/internal/config"
	"stackyn/server/internal/hostmeta"
	"stackyn/server/internal/httpapi"
	"stackyn/server/internal/orchestrator"
	orchdocker "stackyn/server/internal/orchestrator/docker"
	"stackyn/server/internal/platform/dockerclient"
	"stackyn/server/pkg/graceful"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("server_addr", cfg.Server.Addr),
		zap.String("server_port", cfg.Server.Port),
		zap.String("docker_host", cfg.Docker.Host),
	)

	cli, err := dockerclient.New(cfg.Docker.Host)
	if err != nil {
		logger.Fatal("failed to connect to docker", zap.Error(err))
	}

	infra := orchdocker.New(cli, logger)
	defer infra.Close()

	orch := orchestrator.New(infra, logger)
	cache := hostmeta.NewCache()
	crawler := hostmeta.NewCrawler(orch, cache, cfg.PrevantVersion, logger)

	crawlerCtx, stopCrawler := context.WithCancel(context.Background())
	go crawler.Run(crawlerCtx)

	router := httpapi.NewServer(orch, cache, logger)
	server := &http.Server{
		Addr:         cfg.Server.Addr + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting http server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	shutdown := graceful.NewShutdownHandler(logger, 30*time.Second)
	shutdown.Register(shutdownFunc(func(ctx context.Context) error {
		stopCrawler()
		return server.Shutdown(ctx)
	}))
	shutdown.WaitForShutdown()
}

// shutdownFunc adapts a plain function to graceful.Shutdownable.
type shutdownFunc func(ctx context.Context) error

func (f shutdownFunc) Shutdown(ctx context.Context) error {
	return f(ctx)
}

func initLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg.Level = zapLevel
	return cfg.Build()
}
