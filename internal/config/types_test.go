package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Listen.Port = 0
	require.Error(t, cfg.Validate())

	cfg.Server.Listen.Port = 70000
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Cache.TTL.ResponseSeconds = -1
	require.Error(t, cfg.Validate())
}

func TestValidateBackendRequirements(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Cache.Backend = "file"
	cfg.Server.Cache.File.Directory = " "
	require.Error(t, cfg.Validate())

	cfg.Server.Cache.File.Directory = "/var/cache/pages"
	require.NoError(t, cfg.Validate())

	cfg.Server.Cache.Backend = "redis"
	require.Error(t, cfg.Validate())

	cfg.Server.Cache.Redis.Address = "127.0.0.1:6379"
	require.NoError(t, cfg.Validate())

	cfg.Server.Cache.Backend = "sqlite"
	require.Error(t, cfg.Validate())
}

func TestValidateWatchRequiresConfigFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Sources.WatchConfigFile = true
	require.Error(t, cfg.Validate())

	cfg.Server.Sources.ConfigFile = "/etc/site.yaml"
	require.NoError(t, cfg.Validate())
}
