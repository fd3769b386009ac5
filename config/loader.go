package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader builds a Config from defaults, an optional YAML file, and
// environment variables, in that precedence order.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("swarm.yaml").
//	    WithEnvPrefix("AGENTSWARM").
//	    Load()
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a loader with no file and the AGENTSWARM env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "AGENTSWARM"}
}

// WithConfigPath sets the YAML file to load. A missing file is not an error;
// the defaults simply stand.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load resolves the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", l.configPath, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", l.configPath, err)
		}
	}

	l.applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides individual fields from environment variables named
// <PREFIX>_SECTION_FIELD.
func (l *Loader) applyEnv(cfg *Config) {
	l.envString("STORE_BACKEND", &cfg.Store.Backend)
	l.envString("STORE_REDIS_HOST", &cfg.Store.Redis.Host)
	l.envInt("STORE_REDIS_PORT", &cfg.Store.Redis.Port)
	l.envString("STORE_REDIS_PASSWORD", &cfg.Store.Redis.Password)
	l.envInt("STORE_REDIS_DB", &cfg.Store.Redis.DB)
	l.envString("STORE_REDIS_KEY_PREFIX", &cfg.Store.Redis.KeyPrefix)

	l.envDuration("ADVERTISE_DEFAULT_VALIDITY", &cfg.Advertise.DefaultValidity)
	l.envDuration("ADVERTISE_SWEEP_INTERVAL", &cfg.Advertise.SweepInterval)

	l.envDuration("NEGOTIATION_DEFAULT_DEADLINE", &cfg.Negotiation.DefaultDeadline)
	l.envDuration("NEGOTIATION_SWEEP_INTERVAL", &cfg.Negotiation.SweepInterval)

	l.envDuration("RECRUITMENT_PROPOSAL_VALIDITY", &cfg.Recruitment.ProposalValidity)
	l.envFloat("RECRUITMENT_COMPROMISE_THRESHOLD", &cfg.Recruitment.CompromiseThreshold)

	l.envDuration("VOTING_DEFAULT_WINDOW", &cfg.Voting.DefaultWindow)
	l.envFloat("VOTING_EARLY_QUORUM_FRACTION", &cfg.Voting.EarlyQuorumFraction)

	l.envDuration("BREAKDOWN_VOTING_WINDOW", &cfg.Breakdown.VotingWindow)

	l.envInt("FACILITATOR_MAX_TEAM_SIZE", &cfg.Facilitator.MaxTeamSize)
	l.envDuration("FACILITATOR_AGENT_CALL_TIMEOUT", &cfg.Facilitator.AgentCallTimeout)
	l.envFloat("FACILITATOR_AGENT_CALLS_PER_SECOND", &cfg.Facilitator.AgentCallsPerSecond)

	l.envString("LOG_LEVEL", &cfg.Log.Level)
	l.envString("LOG_FORMAT", &cfg.Log.Format)

	l.envBool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	l.envString("METRICS_NAMESPACE", &cfg.Metrics.Namespace)
}

func (l *Loader) lookup(key string) (string, bool) {
	return os.LookupEnv(l.envPrefix + "_" + key)
}

func (l *Loader) envString(key string, dst *string) {
	if v, ok := l.lookup(key); ok {
		*dst = v
	}
}

func (l *Loader) envInt(key string, dst *int) {
	if v, ok := l.lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (l *Loader) envFloat(key string, dst *float64) {
	if v, ok := l.lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func (l *Loader) envBool(key string, dst *bool) {
	if v, ok := l.lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func (l *Loader) envDuration(key string, dst *time.Duration) {
	if v, ok := l.lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if cfg.Voting.EarlyQuorumFraction <= 0.5 || cfg.Voting.EarlyQuorumFraction > 1 {
		return fmt.Errorf("early quorum fraction must be in (0.5, 1], got %v", cfg.Voting.EarlyQuorumFraction)
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", cfg.Log.Level)
	}
	return nil
}
