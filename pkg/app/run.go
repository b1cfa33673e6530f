// Package app provides the entry point for the dominus daemon: it wires
// configuration, storage, the conversation manager, the inference backend,
// retrieval, tools, the HTTP bridge, and the background scheduler, then
// blocks until a shutdown signal.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Kenbark42/dominus-ai/internal/backend"
	"github.com/Kenbark42/dominus-ai/internal/bridge"
	"github.com/Kenbark42/dominus-ai/internal/cache"
	"github.com/Kenbark42/dominus-ai/internal/config"
	"github.com/Kenbark42/dominus-ai/internal/conversation"
	"github.com/Kenbark42/dominus-ai/internal/cron"
	"github.com/Kenbark42/dominus-ai/internal/observe"
	"github.com/Kenbark42/dominus-ai/internal/rag"
	"github.com/Kenbark42/dominus-ai/internal/store/sqlite"
	"github.com/Kenbark42/dominus-ai/internal/tool"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is tried; with no file anywhere the
	// built-in defaults apply.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string
}

// Run loads configuration, starts all components, and blocks until a
// shutdown signal is received.
func Run(params RunParams) error {
	cfg, err := loadConfig(params.ConfigPath)
	if err != nil {
		return err
	}

	logger := observe.NewLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	logger.Info("dominus starting", "version", params.Version, "commit", params.Commit)

	ctx := context.Background()

	var traceShutdown func(context.Context) error
	if cfg.Tracing.Enabled {
		traceShutdown, err = observe.SetupTracing(ctx, cfg.Tracing.Endpoint, params.Version)
		if err != nil {
			return err
		}
		logger.Info("trace export enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	store, err := sqlite.Open(cfg.Storage.Path, sqlite.Options{
		WAL:         cfg.Storage.WAL,
		BusyTimeout: cfg.Storage.BusyTimeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var fastPath cache.Cache
	var ttlCache *cache.TTLCache
	if *cfg.Cache.Enabled {
		ttlCache = cache.NewTTLCache()
		fastPath = ttlCache
	}

	manager := conversation.NewManager(conversation.Config{
		MaxContextTokens: cfg.Context.MaxContextTokens,
		MaxMessages:      cfg.Context.MaxMessages,
		SessionTTL:       cfg.Context.SessionTTL,
		CacheSessionTTL:  cfg.Cache.SessionTTL,
		CacheStateTTL:    cfg.Cache.StateTTL,
	}, store, fastPath, logger)

	if n, err := manager.LoadActiveSessions(ctx); err != nil {
		// A cold start is preferable to refusing to start.
		logger.Warn("could not warm sessions from store", "error", err)
	} else {
		logger.Info("sessions warmed from store", "count", n)
	}

	var engine *rag.Engine
	if *cfg.RAG.Enabled {
		engine, err = rag.Open(rag.Config{
			Path:          cfg.RAG.Path,
			ChunkTokens:   cfg.RAG.ChunkTokens,
			OverlapTokens: cfg.RAG.OverlapTokens,
			TopK:          cfg.RAG.TopK,
			Logger:        logger,
		})
		if err != nil {
			return err
		}
		defer func() { _ = engine.Close() }()
	}

	backendClient := backend.New(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Model:   cfg.Backend.Model,
		Timeout: cfg.Backend.Timeout,
		NumCtx:  cfg.Backend.NumCtx,
	}, logger)

	var registry *tool.Registry
	var executor *tool.Executor
	if *cfg.Tools.Enabled {
		registry = tool.NewRegistry()
		if err := tool.RegisterBuiltins(registry, cfg.Tools.Workspace, cfg.Tools.Allow); err != nil {
			return err
		}
		executor = tool.NewExecutor(registry, cfg.Tools.Timeout, logger)
	}

	server := bridge.New(bridge.Config{
		Bind:            cfg.Server.Bind,
		BearerToken:     cfg.Server.AuthToken,
		SystemPrompt:    cfg.Context.SystemPrompt,
		ToolMaxRounds:   cfg.Tools.MaxRounds,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, manager, backendClient, engine, registry, executor, logger)

	scheduler := cron.NewScheduler(logger)
	if err := scheduler.RegisterJob(&cron.SessionCleanupJob{
		Manager:      manager,
		Logger:       logger,
		ScheduleExpr: cfg.Context.CleanupSchedule,
	}); err != nil {
		return err
	}
	if ttlCache != nil {
		if err := scheduler.RegisterJob(&cron.CacheSweepJob{Cache: ttlCache, Logger: logger}); err != nil {
			return err
		}
	}

	if err := server.Start(); err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		_ = server.Stop(ctx)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	logger.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("bridge shutdown error", "error", err)
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown error", "error", err)
	}
	if traceShutdown != nil {
		if err := traceShutdown(shutdownCtx); err != nil {
			logger.Warn("trace flush failed", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// loadConfig resolves and loads the configuration. With no explicit path
// and no file in the standard locations, built-in defaults apply.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return config.Default(), nil
		}
		path = resolved
	}
	return config.Load(path)
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/dominus/dominus.yaml →
// ~/.config/dominus/dominus.yaml → ./dominus.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "dominus", "dominus.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "dominus", "dominus.yaml"))
	}

	candidates = append(candidates, "dominus.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}
