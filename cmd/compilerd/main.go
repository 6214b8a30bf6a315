// Command compilerd runs the natural-language-to-schema compiler as a
// long-lived daemon: an HTTP API for submitting and inspecting runs, a
// worker pool that drives each run through the nine-phase pipeline engine,
// and a background retention sweep. Grounded on the teacher's
// cmd/tarsy/main.go wiring shape — load config, open the store, build the
// engine, start the pool, start the server, wait for a shutdown signal.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codeready-toolchain/nl2schema/pkg/api"
	"github.com/codeready-toolchain/nl2schema/pkg/cleanup"
	"github.com/codeready-toolchain/nl2schema/pkg/config"
	"github.com/codeready-toolchain/nl2schema/pkg/engine"
	"github.com/codeready-toolchain/nl2schema/pkg/llm"
	"github.com/codeready-toolchain/nl2schema/pkg/persist"
	"github.com/codeready-toolchain/nl2schema/pkg/pipelinelog"
	"github.com/codeready-toolchain/nl2schema/pkg/version"
	"github.com/codeready-toolchain/nl2schema/pkg/workerpool"
	"github.com/codeready-toolchain/nl2schema/phases/common"
)

func main() {
	if err := run(); err != nil {
		slog.Error("compilerd exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting compilerd", "version", version.Full())

	configDir := getEnvOrDefault("COMPILER_CONFIG_DIR", "./config")
	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return err
	}

	dbConfig, err := persist.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	store, err := persist.NewPGStore(ctx, dbConfig)
	if err != nil {
		return err
	}
	defer store.Close()

	pipelineCfg, err := cfg.GetDefaultPipeline()
	if err != nil {
		return err
	}
	providerID := cfg.ResolveLLMProvider(pipelineCfg, nil, nil)
	provider, err := cfg.GetLLMProvider(providerID)
	if err != nil {
		return err
	}

	invoker, err := llm.NewGRPCInvoker(provider.Address, provider.Method)
	if err != nil {
		return err
	}
	defer invoker.Close()

	runDir := getEnvOrDefault("COMPILER_RUN_DIR", os.TempDir())
	maxFanOut := 4
	if v := cfg.Defaults.Engine.MaxFanOutConcurrency; v != nil {
		maxFanOut = *v
	}
	deps := common.Deps{
		Invoker:              invoker,
		RunDir:               runDir,
		MaxFanOutConcurrency: maxFanOut,
	}

	sink := pipelinelog.Multi{persist.NewSink(store), pipelinelog.NewSlogSink(slog.Default())}
	eng := engine.New(deps, sink)

	podID := getEnvOrDefault("HOSTNAME", "compilerd-local")
	pool := workerpool.New(podID, store, cfg.Queue, eng)
	if err := pool.Start(ctx); err != nil {
		return err
	}
	defer pool.Stop()

	cleanupSvc := cleanup.NewService(cfg.Retention, store)
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	server := api.NewServer(cfg, store, pool)
	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", listenAddr)
		serverErr <- server.Start(listenAddr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		slog.Error("server shutdown error", "error", err)
	}

	return nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
