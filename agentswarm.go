// Package agentswarm provides a top-level convenience entry point that wires
// the whole coordination stack with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/agentswarm"
//
//	swarm, err := agentswarm.New()
//	swarm, err := agentswarm.New(agentswarm.WithConfigPath("swarm.yaml"))
//	swarm, err := agentswarm.New(agentswarm.WithLogger(logger))
//
// The composition root constructs one instance of every store and service and
// passes dependencies explicitly; nothing in the stack is a process-wide
// singleton.
package agentswarm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentswarm/advertise"
	"github.com/BaSui01/agentswarm/breakdown"
	"github.com/BaSui01/agentswarm/capability"
	"github.com/BaSui01/agentswarm/config"
	"github.com/BaSui01/agentswarm/event"
	"github.com/BaSui01/agentswarm/facilitator"
	"github.com/BaSui01/agentswarm/internal/metrics"
	"github.com/BaSui01/agentswarm/negotiate"
	"github.com/BaSui01/agentswarm/store"
	"github.com/BaSui01/agentswarm/voting"
)

// Swarm bundles the wired coordination services.
type Swarm struct {
	Config      *config.Config
	Bus         *event.Bus
	KV          store.KV
	Registry    *capability.Registry
	Ads         *advertise.Store
	Negotiator  *negotiate.Negotiator
	Recruiter   *negotiate.Recruiter
	Votes       *voting.Engine
	Breakdowns  *breakdown.Service
	Facilitator *facilitator.Facilitator

	logger *zap.Logger
}

type options struct {
	configPath string
	config     *config.Config
	logger     *zap.Logger
}

// Option configures the swarm created by [New].
type Option func(*options)

// WithConfigPath loads configuration from a YAML file.
func WithConfigPath(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithConfig supplies a fully built configuration, skipping the loader.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithLogger supplies a logger. Without it one is built from the Log config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New wires a swarm from configuration.
func New(opts ...Option) (*Swarm, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.config
	if cfg == nil {
		loaded, err := config.NewLoader().WithConfigPath(o.configPath).Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	logger := o.logger
	if logger == nil {
		built, err := buildLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
		logger = built
	}

	kv, err := store.New(store.Config{
		Backend: store.Backend(cfg.Store.Backend),
		Redis: store.RedisConfig{
			Host:      cfg.Store.Redis.Host,
			Port:      cfg.Store.Redis.Port,
			Password:  cfg.Store.Redis.Password,
			DB:        cfg.Store.Redis.DB,
			KeyPrefix: cfg.Store.Redis.KeyPrefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build record store: %w", err)
	}

	bus := event.NewBus(logger)

	registry := capability.NewRegistry(capability.DefaultRegistryConfig(), bus, logger)
	ads := advertise.NewStore(&advertise.StoreConfig{
		DefaultValidity: cfg.Advertise.DefaultValidity,
		SweepInterval:   cfg.Advertise.SweepInterval,
	}, kv, bus, logger)
	negotiator := negotiate.NewNegotiator(&negotiate.NegotiatorConfig{
		DefaultDeadline: cfg.Negotiation.DefaultDeadline,
		SweepInterval:   cfg.Negotiation.SweepInterval,
	}, registry, bus, logger)
	resolver := &negotiate.CompromiseResolver{
		CompromiseThreshold: cfg.Recruitment.CompromiseThreshold,
		CapabilityWeight:    cfg.Recruitment.CapabilityWeight,
		CompensationWeight:  cfg.Recruitment.CompensationWeight,
		DurationWeight:      cfg.Recruitment.DurationWeight,
	}
	recruiter := negotiate.NewRecruiter(&negotiate.RecruiterConfig{
		ProposalValidity: cfg.Recruitment.ProposalValidity,
	}, resolver, kv, bus, logger)
	votes := voting.NewEngine(&voting.EngineConfig{
		DefaultWindow:       cfg.Voting.DefaultWindow,
		SweepInterval:       cfg.Voting.SweepInterval,
		EarlyQuorumFraction: cfg.Voting.EarlyQuorumFraction,
	}, bus, logger)
	breakdowns := breakdown.NewService(&breakdown.ServiceConfig{
		VotingWindow: cfg.Breakdown.VotingWindow,
	}, registry, votes, bus, logger)
	fac := facilitator.New(&facilitator.Config{
		MaxTeamSize:         cfg.Facilitator.MaxTeamSize,
		AgentCallTimeout:    cfg.Facilitator.AgentCallTimeout,
		AgentCallsPerSecond: cfg.Facilitator.AgentCallsPerSecond,
		AgentCallBurst:      cfg.Facilitator.AgentCallBurst,
		MinPerformanceTasks: cfg.Facilitator.MinPerformanceTasks,
		DefaultRole:         cfg.Facilitator.DefaultRole,
	}, registry, ads, negotiator, recruiter, breakdowns, kv, logger)

	if cfg.Metrics.Enabled {
		metrics.NewCollector(cfg.Metrics.Namespace, nil, logger).Observe(bus)
	}

	return &Swarm{
		Config:      cfg,
		Bus:         bus,
		KV:          kv,
		Registry:    registry,
		Ads:         ads,
		Negotiator:  negotiator,
		Recruiter:   recruiter,
		Votes:       votes,
		Breakdowns:  breakdowns,
		Facilitator: fac,
		logger:      logger,
	}, nil
}

// Start launches the background expiry sweeps.
func (s *Swarm) Start(ctx context.Context) error {
	if err := s.Ads.Start(ctx); err != nil {
		return err
	}
	if err := s.Negotiator.Start(ctx); err != nil {
		return err
	}
	if err := s.Votes.Start(ctx); err != nil {
		return err
	}
	s.logger.Info("swarm started")
	return nil
}

// Close stops the sweeps and releases the record store.
func (s *Swarm) Close() error {
	_ = s.Ads.Close()
	_ = s.Negotiator.Close()
	_ = s.Votes.Close()
	return s.KV.Close()
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zc.Level = level
	return zc.Build()
}
