// Command online-judge is the CLI entrypoint: it parses flags, wires
// logger → store → registry → worker pool → HTTP server, and drives
// graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	apipkg "github.com/Mapleshade20/online-judge/internal/api"
	"github.com/Mapleshade20/online-judge/internal/config"
	"github.com/Mapleshade20/online-judge/internal/httpserver"
	"github.com/Mapleshade20/online-judge/internal/registry"
	"github.com/Mapleshade20/online-judge/internal/store"
	"github.com/Mapleshade20/online-judge/internal/worker"
	"github.com/Mapleshade20/online-judge/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "c", "", "Path to config file (required)")
	flag.StringVar(&configPath, "config", "", "Path to config file (required)")
	var flushData bool
	flag.BoolVar(&flushData, "f", false, "Drop and recreate the persistent store before rehydration")
	flag.BoolVar(&flushData, "flush-data", false, "Drop and recreate the persistent store before rehydration")
	var threads int
	flag.IntVar(&threads, "t", 2, "Number of concurrent judging workers")
	flag.IntVar(&threads, "threads", 2, "Number of concurrent judging workers")
	var verbose bool
	flag.BoolVar(&verbose, "v", false, "Enable debug-level logging")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug-level logging")
	flag.Parse()

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "missing required -c/--config flag")
		os.Exit(1)
	}

	level := "info"
	if verbose {
		level = "debug"
	}
	if err := logger.Init(logger.Config{Level: level, Format: "console", Service: "online-judge"}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	doc, err := config.Load(configPath)
	if err != nil {
		logger.Error(ctx, "load config failed", zap.Error(err))
		os.Exit(1)
	}

	dataDir := filepath.Join(filepath.Dir(configPath), "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logger.Error(ctx, "create data dir failed", zap.Error(err))
		os.Exit(1)
	}

	st, err := store.Open(filepath.Join(dataDir, "online-judge.db"))
	if err != nil {
		logger.Error(ctx, "open store failed", zap.Error(err))
		os.Exit(1)
	}

	if flushData {
		if err := st.Flush(ctx); err != nil {
			logger.Error(ctx, "flush store failed", zap.Error(err))
			os.Exit(1)
		}
		logger.Info(ctx, "store flushed")
	}

	reg := registry.New(st)
	toRequeue, err := reg.Rehydrate(ctx)
	if err != nil {
		logger.Error(ctx, "rehydrate registry failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info(ctx, "registry rehydrated", zap.Int("requeued_jobs", len(toRequeue)))

	tmpDir := filepath.Join(dataDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		logger.Error(ctx, "create tmp dir failed", zap.Error(err))
		os.Exit(1)
	}
	casesDir := filepath.Join(filepath.Dir(configPath), "cases")

	pool := worker.New(threads, threads*4, reg, doc, casesDir, tmpDir, worker.DefaultSandboxFactory)
	if err := pool.Start(ctx); err != nil {
		logger.Error(ctx, "start worker pool failed", zap.Error(err))
		os.Exit(1)
	}

	for _, jobID := range toRequeue {
		pool.Submit(jobID)
	}

	api := apipkg.New(reg, pool, doc)
	server := httpserver.New(doc.Addr(), api)

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http server starting", zap.String("addr", doc.Addr()))
		errCh <- server.ListenAndServe()
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped unexpectedly", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := server.Shutdown(shutCtx); err != nil {
		shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("http shutdown: %w", err))
	}
	pool.Stop()
	if err := st.Close(); err != nil {
		shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("store close: %w", err))
	}
	if shutdownErr != nil {
		logger.Error(ctx, "shutdown completed with errors", zap.Error(shutdownErr))
		os.Exit(1)
	}
	logger.Info(ctx, "shutdown complete")
}
