// Package config loads the swarm configuration from defaults, an optional
// YAML file, and environment variable overrides, in that precedence order.
package config

import (
	"time"
)

// Config is the complete swarm configuration.
type Config struct {
	// Store is the record store configuration.
	Store StoreConfig `yaml:"store"`

	// Advertise configures the advertisement store.
	Advertise AdvertiseConfig `yaml:"advertise"`

	// Negotiation configures capability inquiries.
	Negotiation NegotiationConfig `yaml:"negotiation"`

	// Recruitment configures the recruitment protocol.
	Recruitment RecruitmentConfig `yaml:"recruitment"`

	// Voting configures the consensus engine.
	Voting VotingConfig `yaml:"voting"`

	// Breakdown configures collaborative task breakdown.
	Breakdown BreakdownConfig `yaml:"breakdown"`

	// Facilitator configures orchestration.
	Facilitator FacilitatorConfig `yaml:"facilitator"`

	// Log configures logging output.
	Log LogConfig `yaml:"log"`

	// Metrics configures the Prometheus collector.
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig selects and configures the record store backend.
type StoreConfig struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend"`

	// Redis applies when Backend is "redis".
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// AdvertiseConfig configures the advertisement store.
type AdvertiseConfig struct {
	DefaultValidity time.Duration `yaml:"default_validity"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

// NegotiationConfig configures capability inquiries.
type NegotiationConfig struct {
	DefaultDeadline time.Duration `yaml:"default_deadline"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

// RecruitmentConfig configures the recruitment protocol and its default
// conflict-resolution strategy.
type RecruitmentConfig struct {
	ProposalValidity    time.Duration `yaml:"proposal_validity"`
	CompromiseThreshold float64       `yaml:"compromise_threshold"`
	CapabilityWeight    float64       `yaml:"capability_weight"`
	CompensationWeight  float64       `yaml:"compensation_weight"`
	DurationWeight      float64       `yaml:"duration_weight"`
}

// VotingConfig configures the consensus engine.
type VotingConfig struct {
	DefaultWindow       time.Duration `yaml:"default_window"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	EarlyQuorumFraction float64       `yaml:"early_quorum_fraction"`
}

// BreakdownConfig configures collaborative task breakdown.
type BreakdownConfig struct {
	VotingWindow time.Duration `yaml:"voting_window"`
}

// FacilitatorConfig configures orchestration.
type FacilitatorConfig struct {
	MaxTeamSize         int           `yaml:"max_team_size"`
	AgentCallTimeout    time.Duration `yaml:"agent_call_timeout"`
	AgentCallsPerSecond float64       `yaml:"agent_calls_per_second"`
	AgentCallBurst      int           `yaml:"agent_call_burst"`
	MinPerformanceTasks int           `yaml:"min_performance_tasks"`
	DefaultRole         string        `yaml:"default_role"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is "json" or "console".
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Host:      "localhost",
				Port:      6379,
				KeyPrefix: "agentswarm:",
			},
		},
		Advertise: AdvertiseConfig{
			DefaultValidity: time.Hour,
			SweepInterval:   60 * time.Second,
		},
		Negotiation: NegotiationConfig{
			DefaultDeadline: 30 * time.Second,
			SweepInterval:   60 * time.Second,
		},
		Recruitment: RecruitmentConfig{
			ProposalValidity:    10 * time.Minute,
			CompromiseThreshold: 0.3,
			CapabilityWeight:    0.5,
			CompensationWeight:  0.3,
			DurationWeight:      0.2,
		},
		Voting: VotingConfig{
			DefaultWindow:       10 * time.Minute,
			SweepInterval:       60 * time.Second,
			EarlyQuorumFraction: 0.66,
		},
		Breakdown: BreakdownConfig{
			VotingWindow: 10 * time.Minute,
		},
		Facilitator: FacilitatorConfig{
			MaxTeamSize:         5,
			AgentCallTimeout:    30 * time.Second,
			AgentCallsPerSecond: 10,
			AgentCallBurst:      5,
			MinPerformanceTasks: 1,
			DefaultRole:         "provider",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "agentswarm",
		},
	}
}
