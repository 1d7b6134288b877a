package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// BackendOptions selects and parameterizes the storage backend. It mirrors
// the deployment configuration without importing it, keeping the dependency
// arrow pointed at this package.
type BackendOptions struct {
	Kind          string
	FileDirectory string
	Redis         RedisConfig
}

// NewBackend builds the configured backend. Call sites never branch on the
// backend kind again after this point.
func NewBackend(opts BackendOptions) (Backend, error) {
	switch strings.TrimSpace(strings.ToLower(opts.Kind)) {
	case "memory", "":
		return NewMemory(), nil
	case "file":
		return NewFile(opts.FileDirectory)
	case "redis":
		return NewRedis(opts.Redis)
	default:
		return nil, fmt.Errorf("cache: unsupported backend %q", opts.Kind)
	}
}

// ServiceStats aggregates manager counters, health, and per-layer snapshots
// for the admin surface.
type ServiceStats struct {
	Manager    Stats          `json:"manager"`
	Health     Health         `json:"health"`
	Components map[string]any `json:"components"`
}

// Service bundles the manager and the three specialized cache layers into the
// unit the admin surface and the entrypoint operate on.
type Service struct {
	logger    *slog.Logger
	manager   *Manager
	config    *ConfigCache
	templates *TemplateCache
	responses *ResponseCache
}

// NewService wires the layers together. The config cache may be nil when no
// configuration source is cached in this deployment.
func NewService(logger *slog.Logger, manager *Manager, config *ConfigCache, templates *TemplateCache, responses *ResponseCache) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:    logger.With(slog.String("component", "cache_service")),
		manager:   manager,
		config:    config,
		templates: templates,
		responses: responses,
	}
}

// Manager exposes the shared cache manager.
func (s *Service) Manager() *Manager { return s.manager }

// Config exposes the config layer; nil when not configured.
func (s *Service) Config() *ConfigCache { return s.config }

// Templates exposes the template layer.
func (s *Service) Templates() *TemplateCache { return s.templates }

// Responses exposes the response layer.
func (s *Service) Responses() *ResponseCache { return s.responses }

// Stats collects the comprehensive statistics snapshot.
func (s *Service) Stats(ctx context.Context) ServiceStats {
	stats := ServiceStats{
		Manager:    s.manager.GetStats(ctx),
		Health:     s.manager.GetHealth(),
		Components: make(map[string]any),
	}
	if s.config != nil {
		stats.Components["config"] = s.config.Info()
	}
	if s.templates != nil {
		stats.Components["template"] = s.templates.Info()
	}
	if s.responses != nil {
		stats.Components["response"] = s.responses.LayerInfo()
	}
	return stats
}

// Clear drops cache state for the named scope: "all" clears the backend
// outright, the layer names clear only that layer's entries. Returns the
// number of entries removed where the layer tracks them (-1 for "all").
func (s *Service) Clear(ctx context.Context, scope string) (int, error) {
	switch strings.TrimSpace(strings.ToLower(scope)) {
	case "", "all":
		if err := s.manager.Clear(ctx); err != nil {
			return 0, err
		}
		s.logger.Info("all caches cleared")
		return -1, nil
	case "template":
		return s.templates.InvalidateAll(ctx), nil
	case "response":
		return s.responses.Clear(ctx), nil
	case "config":
		if s.config == nil {
			return 0, fmt.Errorf("cache: config layer not enabled")
		}
		s.config.Invalidate(ctx)
		return 1, nil
	default:
		return 0, fmt.Errorf("cache: unknown clear scope %q", scope)
	}
}

// Close releases the manager's backend.
func (s *Service) Close(ctx context.Context) error {
	return s.manager.Close(ctx)
}
