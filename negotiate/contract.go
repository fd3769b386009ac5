package negotiate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentswarm/event"
	"github.com/BaSui01/agentswarm/types"
)

// contractBucket is the persistence bucket for team contracts.
const contractBucket = "contracts"

// kvPutter is the slice of the record store the contract book needs.
// Contracts are written through on every status change.
type kvPutter interface {
	Put(ctx context.Context, bucket, key string, value any) error
}

// ContractStatus is a team contract lifecycle state.
type ContractStatus string

const (
	ContractDraft      ContractStatus = "draft"
	ContractActive     ContractStatus = "active"
	ContractCompleted  ContractStatus = "completed"
	ContractTerminated ContractStatus = "terminated"
)

func (s ContractStatus) terminal() bool {
	return s == ContractCompleted || s == ContractTerminated
}

// Participant is one agent's agreed role and obligations on a team.
type Participant struct {
	AgentID              string   `json:"agent_id"`
	Role                 string   `json:"role"`
	Responsibilities     []string `json:"responsibilities,omitempty"`
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
	ExpectedDeliverables []string `json:"expected_deliverables,omitempty"`
}

// Terms are the time terms of a contract.
type Terms struct {
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Deadline  *time.Time `json:"deadline,omitempty"`
}

// StatusChange is one entry in a contract's append-only history.
type StatusChange struct {
	From   ContractStatus `json:"from"`
	To     ContractStatus `json:"to"`
	At     time.Time      `json:"at"`
	Reason string         `json:"reason,omitempty"`
}

// TeamContract is the durable record of an agreed team composition.
type TeamContract struct {
	ID               string         `json:"id"`
	TaskID           string         `json:"task_id"`
	TeamID           string         `json:"team_id"`
	Participants     []Participant  `json:"participants"`
	Terms            Terms          `json:"terms"`
	ExpectedOutcomes []string       `json:"expected_outcomes,omitempty"`
	Status           ContractStatus `json:"status"`
	StatusHistory    []StatusChange `json:"status_history"`
	CreatedAt        time.Time      `json:"created_at"`
}

func (c *TeamContract) clone() *TeamContract {
	cp := *c
	cp.Participants = append([]Participant(nil), c.Participants...)
	cp.ExpectedOutcomes = append([]string(nil), c.ExpectedOutcomes...)
	cp.StatusHistory = append([]StatusChange(nil), c.StatusHistory...)
	return &cp
}

// contractBook holds team contracts and drives their status machine.
type contractBook struct {
	mu        sync.RWMutex
	contracts map[string]*TeamContract

	kv     kvPutter
	bus    *event.Bus
	logger *zap.Logger
}

func newContractBook(kv kvPutter, bus *event.Bus, logger *zap.Logger) *contractBook {
	return &contractBook{
		contracts: make(map[string]*TeamContract),
		kv:        kv,
		bus:       bus,
		logger:    logger,
	}
}

// CreateTeamContract assembles a contract in draft once recruitment has
// succeeded. Every role among the participants must have at least one agent
// with an accepted recruitment on the task.
func (r *Recruiter) CreateTeamContract(ctx context.Context, taskID, teamID string, participants []Participant, terms Terms, expectedOutcomes []string) (*TeamContract, error) {
	if taskID == "" || teamID == "" {
		return nil, types.Validationf("contract needs a task id and a team id")
	}
	if len(participants) == 0 {
		return nil, types.Validationf("contract needs at least one participant")
	}
	for _, p := range participants {
		if p.AgentID == "" || p.Role == "" {
			return nil, types.Validationf("every participant needs an agent id and a role")
		}
	}

	accepted := r.acceptedRoles(taskID)
	for _, p := range participants {
		if len(accepted[p.Role]) == 0 {
			return nil, types.InvalidStatef("role %q has no accepted recruitment on task %s", p.Role, taskID)
		}
	}

	now := time.Now()
	c := &TeamContract{
		ID:               uuid.New().String(),
		TaskID:           taskID,
		TeamID:           teamID,
		Participants:     append([]Participant(nil), participants...),
		Terms:            terms,
		ExpectedOutcomes: append([]string(nil), expectedOutcomes...),
		Status:           ContractDraft,
		StatusHistory: []StatusChange{
			{From: "", To: ContractDraft, At: now, Reason: "contract created"},
		},
		CreatedAt: now,
	}

	r.contracts.mu.Lock()
	r.contracts.contracts[c.ID] = c
	r.contracts.mu.Unlock()

	r.contracts.persist(ctx, c)
	r.logger.Info("team contract created",
		zap.String("contract_id", c.ID),
		zap.String("task_id", taskID),
		zap.Int("participants", len(participants)),
	)
	r.contracts.publish(c, "", ContractDraft, now)
	return c.clone(), nil
}

// GetContract returns a copy of a contract.
func (r *Recruiter) GetContract(ctx context.Context, contractID string) (*TeamContract, error) {
	r.contracts.mu.RLock()
	defer r.contracts.mu.RUnlock()

	c, ok := r.contracts.contracts[contractID]
	if !ok {
		return nil, types.NotFoundf("contract %s not found", contractID)
	}
	return c.clone(), nil
}

// ActivateContract moves a draft contract to active.
func (r *Recruiter) ActivateContract(ctx context.Context, contractID string) (*TeamContract, error) {
	return r.contracts.transition(ctx, contractID, ContractActive, "", func(from ContractStatus) error {
		if from != ContractDraft {
			return types.InvalidStatef("only a draft contract can be activated, contract is %s", from)
		}
		return nil
	})
}

// CompleteContract moves an active contract to completed.
func (r *Recruiter) CompleteContract(ctx context.Context, contractID string) (*TeamContract, error) {
	return r.contracts.transition(ctx, contractID, ContractCompleted, "", func(from ContractStatus) error {
		if from != ContractActive {
			return types.InvalidStatef("only an active contract can be completed, contract is %s", from)
		}
		return nil
	})
}

// TerminateContract terminates a contract from any non-terminal state.
func (r *Recruiter) TerminateContract(ctx context.Context, contractID, reason string) (*TeamContract, error) {
	return r.contracts.transition(ctx, contractID, ContractTerminated, reason, func(from ContractStatus) error {
		if from.terminal() {
			return types.InvalidStatef("contract is already %s", from)
		}
		return nil
	})
}

func (b *contractBook) transition(ctx context.Context, contractID string, to ContractStatus, reason string, check func(from ContractStatus) error) (*TeamContract, error) {
	now := time.Now()

	b.mu.Lock()
	c, ok := b.contracts[contractID]
	if !ok {
		b.mu.Unlock()
		return nil, types.NotFoundf("contract %s not found", contractID)
	}
	from := c.Status
	if err := check(from); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	c.Status = to
	c.StatusHistory = append(c.StatusHistory, StatusChange{From: from, To: to, At: now, Reason: reason})
	out := c.clone()
	b.mu.Unlock()

	b.persist(ctx, out)
	b.logger.Info("contract status changed",
		zap.String("contract_id", contractID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	b.publish(out, from, to, now)
	return out, nil
}

func (b *contractBook) persist(ctx context.Context, c *TeamContract) {
	if b.kv == nil {
		return
	}
	if err := b.kv.Put(ctx, contractBucket, c.ID, c); err != nil {
		b.logger.Warn("failed to persist contract",
			zap.String("contract_id", c.ID),
			zap.Error(err),
		)
	}
}

func (b *contractBook) publish(c *TeamContract, from, to ContractStatus, now time.Time) {
	if b.bus == nil {
		return
	}
	b.bus.ContractStatusChanged.Publish(event.ContractEvent{
		ContractID: c.ID,
		TeamID:     c.TeamID,
		From:       string(from),
		To:         string(to),
		Timestamp:  now,
	})
}
