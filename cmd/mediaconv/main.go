package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	appcfg "mediaconv/internal/config"
	"mediaconv/internal/convert"
	"mediaconv/internal/jobs"
	"mediaconv/internal/processor"
	"mediaconv/internal/server"
	"mediaconv/internal/storage"
)

func main() {
	// Load config first; the log level comes from it.
	cfg, err := appcfg.Load("")
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	// Job store backend
	var store jobs.Store
	switch cfg.Store.Backend {
	case "memory":
		store = jobs.NewMemoryStore()
	case "sqlite":
		store, err = jobs.NewSQLiteStore(cfg.Store.DatabasePath)
		if err != nil {
			logger.Error("sqlite open", "err", err)
			os.Exit(1)
		}
	case "redis":
		store, err = jobs.NewRedisStore(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB, cfg.Store.TTL)
		if err != nil {
			logger.Error("redis connect", "err", err)
			os.Exit(1)
		}
	}
	defer func() { _ = store.Close() }()

	// Storage area for uploads and artifacts
	files, err := storage.NewArea(cfg.Server.StorageDir)
	if err != nil {
		logger.Error("init storage", "err", err)
		os.Exit(1)
	}

	// Converters, registered once at startup
	registry := convert.NewRegistry()
	registry.Register(convert.MediaVideo, convert.NewVideoConverter())
	registry.Register(convert.MediaAudio, convert.NewAudioConverter())
	registry.Register(convert.MediaImage, convert.NewImageConverter())
	registry.Register(convert.MediaDocument, convert.NewDocumentConverter())

	// Dispatcher and queue share the retry policy
	policy := jobs.RetryPolicy{MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: cfg.Retry.BaseDelay}
	worker := processor.New(logger, store, registry, policy, files.Dir())
	queue := jobs.NewQueue(logger, cfg.Server.QueueCapacity, cfg.Server.WorkerCount, policy)

	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := queue.Start(rootCtx, worker); err != nil {
		logger.Error("start queue", "err", err)
		os.Exit(1)
	}

	// Expired job sweep
	if cfg.Cleanup.MaxAge > 0 {
		janitor := &jobs.Janitor{
			Log:      logger,
			Store:    store,
			Dir:      files.Dir(),
			MaxAge:   cfg.Cleanup.MaxAge,
			Interval: cfg.Cleanup.Interval,
		}
		go janitor.Run(rootCtx)
	}

	// HTTP server
	svc := &server.Service{
		Log:   logger,
		Cfg:   cfg,
		Jobs:  jobs.NewService(logger, store, queue),
		Files: files,
	}
	httpSrv := server.NewHTTPServer(svc)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "address", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "err", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	queue.Shutdown(cfg.Server.ShutdownGrace)
	logger.Info("server stopped")
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
