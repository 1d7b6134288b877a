package config

import (
	"fmt"
	"strings"
)

// Config is the deployment configuration for the cache service.
type Config struct {
	Server ServerConfig `koanf:"server"`
}

// ServerConfig collects the bootstrap knobs: listener, logging, cache
// backend selection, and the content sources the caches sit in front of.
type ServerConfig struct {
	Listen  ListenConfig  `koanf:"listen"`
	Logging LoggingConfig `koanf:"logging"`
	Cache   CacheConfig   `koanf:"cache"`
	Sources SourcesConfig `koanf:"sources"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and output format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CacheConfig selects the backend and the per-layer TTL defaults. A TTL of
// zero means entries in that layer never expire.
type CacheConfig struct {
	Backend string           `koanf:"backend"`
	TTL     TTLConfig        `koanf:"ttl"`
	File    FileCacheConfig  `koanf:"file"`
	Redis   RedisCacheConfig `koanf:"redis"`
}

// TTLConfig holds per-layer TTL defaults in seconds.
type TTLConfig struct {
	ConfigSeconds   int `koanf:"configSeconds"`
	TemplateSeconds int `koanf:"templateSeconds"`
	ResponseSeconds int `koanf:"responseSeconds"`
}

// FileCacheConfig parameterizes the filesystem backend.
type FileCacheConfig struct {
	Directory string `koanf:"directory"`
}

// RedisCacheConfig parameterizes the networked backend.
type RedisCacheConfig struct {
	Address  string             `koanf:"address"`
	Username string             `koanf:"username"`
	Password string             `koanf:"password"`
	DB       int                `koanf:"db"`
	TLS      RedisTLSFileConfig `koanf:"tls"`
}

// RedisTLSFileConfig enables TLS toward the key-value service.
type RedisTLSFileConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// SourcesConfig names the external content the caches serve: the structured
// configuration file gated by mtime and the folder of page templates.
type SourcesConfig struct {
	ConfigFile      string `koanf:"configFile"`
	WatchConfigFile bool   `koanf:"watchConfigFile"`
	PagesFolder     string `koanf:"pagesFolder"`
}

// DefaultConfig returns the baseline every deployment starts from before
// file and environment overrides apply.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8460,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			Cache: CacheConfig{
				Backend: "memory",
				TTL: TTLConfig{
					ConfigSeconds:   300,
					TemplateSeconds: 3600,
					ResponseSeconds: 3600,
				},
				File: FileCacheConfig{
					Directory: ".cache",
				},
			},
			Sources: SourcesConfig{
				PagesFolder: "./pages",
			},
		},
	}
}

// Validate rejects configurations the runtime cannot act on.
func (c Config) Validate() error {
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: server.listen.port invalid: %d", c.Server.Listen.Port)
	}
	ttl := c.Server.Cache.TTL
	if ttl.ConfigSeconds < 0 || ttl.TemplateSeconds < 0 || ttl.ResponseSeconds < 0 {
		return fmt.Errorf("config: server.cache.ttl values must not be negative")
	}
	backend := strings.TrimSpace(strings.ToLower(c.Server.Cache.Backend))
	switch backend {
	case "memory":
	case "file":
		if strings.TrimSpace(c.Server.Cache.File.Directory) == "" {
			return fmt.Errorf("config: server.cache.file.directory required for file backend")
		}
	case "redis":
		if strings.TrimSpace(c.Server.Cache.Redis.Address) == "" {
			return fmt.Errorf("config: server.cache.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: server.cache.backend unsupported: %s", c.Server.Cache.Backend)
	}
	if c.Server.Sources.WatchConfigFile && strings.TrimSpace(c.Server.Sources.ConfigFile) == "" {
		return fmt.Errorf("config: server.sources.watchConfigFile requires server.sources.configFile")
	}
	return nil
}
