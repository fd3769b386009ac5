package facilitator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentswarm/advertise"
	"github.com/BaSui01/agentswarm/breakdown"
	"github.com/BaSui01/agentswarm/capability"
	"github.com/BaSui01/agentswarm/negotiate"
	"github.com/BaSui01/agentswarm/store"
	"github.com/BaSui01/agentswarm/types"
)

// TaskStatus is a tracked task's lifecycle state.
type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskTeamFormed TaskStatus = "team_formed"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is a unit of work the facilitator coordinates a team for.
type Task struct {
	ID                   string     `json:"id"`
	Description          string     `json:"description"`
	RequiredCapabilities []string   `json:"required_capabilities"`
	Status               TaskStatus `json:"status"`
	ContractID           string     `json:"contract_id,omitempty"`
	BreakdownID          string     `json:"breakdown_id,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (t *Task) clone() *Task {
	cp := *t
	cp.RequiredCapabilities = append([]string(nil), t.RequiredCapabilities...)
	return &cp
}

// Config holds facilitator configuration.
type Config struct {
	// MaxTeamSize caps provider selection during team formation.
	MaxTeamSize int `json:"max_team_size" yaml:"max_team_size"`

	// AgentCallTimeout bounds each call into an agent.
	AgentCallTimeout time.Duration `json:"agent_call_timeout" yaml:"agent_call_timeout"`

	// AgentCallsPerSecond and AgentCallBurst configure the rate limiter on
	// outbound agent calls.
	AgentCallsPerSecond float64 `json:"agent_calls_per_second" yaml:"agent_calls_per_second"`
	AgentCallBurst      int     `json:"agent_call_burst" yaml:"agent_call_burst"`

	// MinPerformanceTasks is how many recorded delegations an agent needs
	// before its history biases provider selection.
	MinPerformanceTasks int `json:"min_performance_tasks" yaml:"min_performance_tasks"`

	// DefaultRole is the contract role assigned to providers recruited by
	// capability coverage.
	DefaultRole string `json:"default_role" yaml:"default_role"`
}

// DefaultConfig returns the standard facilitator settings.
func DefaultConfig() *Config {
	return &Config{
		MaxTeamSize:         5,
		AgentCallTimeout:    30 * time.Second,
		AgentCallsPerSecond: 10,
		AgentCallBurst:      5,
		MinPerformanceTasks: 1,
		DefaultRole:         "provider",
	}
}

// Facilitator wires the coordination services together. It depends downward
// on constructed instances, never sideways at call time.
type Facilitator struct {
	mu     sync.RWMutex
	tasks  map[string]*Task
	agents map[string]types.Agent

	registry   *capability.Registry
	ads        *advertise.Store
	negotiator *negotiate.Negotiator
	recruiter  *negotiate.Recruiter
	breakdowns *breakdown.Service

	perf    *performanceTracker
	limiter *rate.Limiter
	config  *Config
	logger  *zap.Logger
}

// New creates a facilitator over already constructed services.
func New(config *Config, registry *capability.Registry, ads *advertise.Store, negotiator *negotiate.Negotiator, recruiter *negotiate.Recruiter, breakdowns *breakdown.Service, kv store.KV, logger *zap.Logger) *Facilitator {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "facilitator"))
	return &Facilitator{
		tasks:      make(map[string]*Task),
		agents:     make(map[string]types.Agent),
		registry:   registry,
		ads:        ads,
		negotiator: negotiator,
		recruiter:  recruiter,
		breakdowns: breakdowns,
		perf:       newPerformanceTracker(kv, logger),
		limiter:    rate.NewLimiter(rate.Limit(config.AgentCallsPerSecond), config.AgentCallBurst),
		config:     config,
		logger:     logger,
	}
}

// RegisterAgent asks the agent for its capabilities, registers each of them,
// and broadcasts an advertisement on the agent's behalf.
func (f *Facilitator) RegisterAgent(ctx context.Context, agent types.Agent) error {
	if agent == nil || agent.ID() == "" {
		return types.Validationf("agent with an id is required")
	}

	summaries, err := agent.ReportCapabilities(ctx)
	if err != nil {
		return types.NewError(types.ErrValidation, "agent failed to report capabilities").WithCause(err).WithRetryable(true)
	}
	if len(summaries) == 0 {
		return types.Validationf("agent %s reported no capabilities", agent.ID())
	}

	advertised := make([]advertise.AdvertisedCapability, 0, len(summaries))
	for _, sum := range summaries {
		cap := capability.Capability{
			Name:        sum.Name,
			Description: sum.Description,
			Level:       capability.Level(sum.Level),
			Taxonomy:    sum.Taxonomy,
		}
		if cap.Level == "" {
			cap.Level = capability.LevelStandard
		}
		if err := f.registry.Register(ctx, cap, agent.ID()); err != nil {
			return err
		}
		advertised = append(advertised, advertise.AdvertisedCapability{
			Name:            sum.Name,
			ConfidenceScore: sum.ConfidenceScore,
			Experience:      sum.Experience,
			Specializations: sum.Specializations,
			Limitations:     sum.Limitations,
		})
	}

	if _, err := f.ads.Create(ctx, agent.ID(), agent.Name(), advertised,
		advertise.Availability{Status: advertise.AvailabilityAvailable}, 0); err != nil {
		return err
	}

	f.mu.Lock()
	f.agents[agent.ID()] = agent
	f.mu.Unlock()

	f.logger.Info("agent registered",
		zap.String("agent_id", agent.ID()),
		zap.Int("capabilities", len(summaries)),
	)
	return nil
}

// CreateTask starts tracking a task.
func (f *Facilitator) CreateTask(ctx context.Context, description string, requiredCapabilities []string) (*Task, error) {
	if description == "" {
		return nil, types.Validationf("task description is required")
	}
	if len(requiredCapabilities) == 0 {
		return nil, types.Validationf("task needs at least one required capability")
	}

	now := time.Now()
	t := &Task{
		ID:                   uuid.New().String(),
		Description:          description,
		RequiredCapabilities: append([]string(nil), requiredCapabilities...),
		Status:               TaskOpen,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	f.mu.Lock()
	f.tasks[t.ID] = t
	f.mu.Unlock()
	return t.clone(), nil
}

// GetTask returns a copy of a tracked task.
func (f *Facilitator) GetTask(ctx context.Context, taskID string) (*Task, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	t, ok := f.tasks[taskID]
	if !ok {
		return nil, types.NotFoundf("task %s not found", taskID)
	}
	return t.clone(), nil
}

// agent returns the live agent object for an id.
func (f *Facilitator) agent(agentID string) (types.Agent, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	a, ok := f.agents[agentID]
	if !ok {
		return nil, types.NotFoundf("agent %s is not registered with the facilitator", agentID)
	}
	return a, nil
}

// callAgent sends one request to one agent under the rate limit and call
// timeout.
func (f *Facilitator) callAgent(ctx context.Context, agentID string, req types.Request) (*types.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	a, err := f.agent(agentID)
	if err != nil {
		return nil, err
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, f.config.AgentCallTimeout)
	defer cancel()
	return a.HandleRequest(callCtx, req)
}

// RecordDelegationOutcome folds a delegated subtask's outcome into the
// agent's performance aggregate.
func (f *Facilitator) RecordDelegationOutcome(ctx context.Context, agentID string, success bool, completionTime time.Duration) (*DelegationRecord, error) {
	if agentID == "" {
		return nil, types.Validationf("agent id is required")
	}
	return f.perf.record(ctx, agentID, success, completionTime), nil
}

// GetDelegationRecord returns an agent's performance aggregate.
func (f *Facilitator) GetDelegationRecord(ctx context.Context, agentID string) (*DelegationRecord, error) {
	return f.perf.get(agentID)
}

func (f *Facilitator) setTaskStatus(taskID string, status TaskStatus, mutate func(*Task)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tasks[taskID]
	if !ok {
		return
	}
	t.Status = status
	if mutate != nil {
		mutate(t)
	}
	t.UpdatedAt = time.Now()
}
