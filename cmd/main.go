package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/offpress/pagecache/internal/cache"
	"github.com/offpress/pagecache/internal/config"
	"github.com/offpress/pagecache/internal/logging"
	"github.com/offpress/pagecache/internal/metrics"
	"github.com/offpress/pagecache/internal/server"
	"github.com/offpress/pagecache/internal/templates"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "PAGECACHE", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	metricsRecorder := metrics.NewRecorder(promRegistry)

	backend := buildBackend(logger.With(slog.String("component", "cache_factory")), cfg.Server.Cache)
	manager := cache.NewManager(backend, logger, metricsRecorder)

	ttl := cfg.Server.Cache.TTL
	templateCache := cache.NewTemplateCache(manager, logger, time.Duration(ttl.TemplateSeconds)*time.Second)
	responseCache := cache.NewResponseCache(manager, logger, time.Duration(ttl.ResponseSeconds)*time.Second, 0)

	var configCache *cache.ConfigCache
	if sourceFile := strings.TrimSpace(cfg.Server.Sources.ConfigFile); sourceFile != "" {
		configCache = cache.NewConfigCache(manager, logger, sourceFile,
			time.Duration(ttl.ConfigSeconds)*time.Second,
			func(context.Context) (map[string]any, error) { return config.ParseFile(sourceFile) })
	}

	svc := cache.NewService(logger, manager, configCache, templateCache, responseCache)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := svc.Close(shutdownCtx); err != nil {
			logger.Error("cache shutdown failed", slog.Any("error", err))
		}
	}()

	var pageSource *templates.Source
	if folder := strings.TrimSpace(cfg.Server.Sources.PagesFolder); folder != "" {
		source, err := templates.NewSource(folder)
		if err != nil {
			logger.Warn("pages source setup failed", slog.String("pages_folder", folder), slog.Any("error", err))
		} else {
			pageSource = source
		}
	}
	renderer := templates.NewRenderer(pageSource)

	if pageSource != nil {
		registerPageWarmer(templateCache, renderer, pageSource)
	}

	if cfg.Server.Sources.WatchConfigFile && configCache != nil {
		watcher, err := config.WatchSource(ctx, cfg.Server.Sources.ConfigFile, func() {
			configCache.Invalidate(ctx)
			dropped := templateCache.InvalidateByDependency(ctx, "site-config")
			dropped += responseCache.Clear(ctx)
			logger.Info("config source changed, dependent entries dropped", slog.Int("entries", dropped))
		}, func(err error) {
			if err != nil {
				logger.Error("config watcher error", slog.Any("error", err))
			}
		})
		if err != nil {
			logger.Error("config watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	handler := server.NewRouter(logger, svc, renderer, metricsRecorder)
	srv, err := server.New(cfg, logger, handler)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// buildBackend constructs the configured cache backend, falling back to the
// in-memory backend when the configured one cannot start so the service comes
// up even with the backing store unreachable.
func buildBackend(logger *slog.Logger, cfg config.CacheConfig) cache.Backend {
	backend, err := cache.NewBackend(cache.BackendOptions{
		Kind:          cfg.Backend,
		FileDirectory: cfg.File.Directory,
		Redis: cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: cache.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
		},
	})
	if err != nil {
		if logger != nil {
			logger.Error("cache backend initialization failed", slog.String("backend", cfg.Backend), slog.Any("error", err))
			logger.Info("falling back to memory cache")
		}
		return cache.NewMemory()
	}
	if logger != nil {
		logger.Info("cache backend ready", slog.String("backend", cfg.Backend))
	}
	return backend
}

// registerPageWarmer wires a warmer that pre-renders every page under the
// source root so a cold process can be primed with one admin call.
func registerPageWarmer(templateCache *cache.TemplateCache, renderer *templates.Renderer, source *templates.Source) {
	templateCache.RegisterWarmer("pages", func(ctx context.Context) error {
		pages, err := source.List()
		if err != nil {
			return err
		}
		var firstErr error
		for _, page := range pages {
			tctx := map[string]any{"page": page}
			_, err := templateCache.Page(ctx, "/pages/"+page, tctx,
				func(ctx context.Context, tctx map[string]any) (string, error) {
					return renderer.RenderPage(page, tctx)
				}, 0, "page:"+page)
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})
}
