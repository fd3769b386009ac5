package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, time.Hour, cfg.Advertise.DefaultValidity)
	assert.Equal(t, 30*time.Second, cfg.Negotiation.DefaultDeadline)
	assert.Equal(t, 0.66, cfg.Voting.EarlyQuorumFraction)
	assert.Equal(t, "agentswarm", cfg.Metrics.Namespace)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: redis
  redis:
    host: cache
    port: 6380
voting:
  default_window: 5m
log:
  level: debug
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "cache", cfg.Store.Redis.Host)
	assert.Equal(t, 6380, cfg.Store.Redis.Port)
	assert.Equal(t, 5*time.Minute, cfg.Voting.DefaultWindow)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Negotiation.DefaultDeadline)
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	t.Setenv("AGENTSWARM_LOG_LEVEL", "warn")
	t.Setenv("AGENTSWARM_FACILITATOR_MAX_TEAM_SIZE", "9")
	t.Setenv("AGENTSWARM_ADVERTISE_DEFAULT_VALIDITY", "2h")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 9, cfg.Facilitator.MaxTeamSize)
	assert.Equal(t, 2*time.Hour, cfg.Advertise.DefaultValidity)
}

func TestMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/swarm.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Backend)
}

func TestValidation(t *testing.T) {
	t.Setenv("AGENTSWARM_STORE_BACKEND", "etcd")
	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestQuorumFractionValidated(t *testing.T) {
	t.Setenv("AGENTSWARM_VOTING_EARLY_QUORUM_FRACTION", "0.4")
	_, err := NewLoader().Load()
	assert.Error(t, err)
}
