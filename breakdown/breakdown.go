package breakdown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentswarm/capability"
	"github.com/BaSui01/agentswarm/event"
	"github.com/BaSui01/agentswarm/types"
	"github.com/BaSui01/agentswarm/voting"
)

// Status is a breakdown lifecycle state.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusVoting   Status = "voting"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Voting choices for breakdown approval.
const (
	ChoiceApprove = "approve"
	ChoiceReject  = "reject"
)

// Subtask is one node of a task decomposition. Prerequisites reference other
// subtask ids within the same breakdown.
type Subtask struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
	ComplexityEstimate   int      `json:"complexity_estimate,omitempty"`
	Prerequisites        []string `json:"prerequisites,omitempty"`
	SuggestedAssignee    string   `json:"suggested_assignee,omitempty"`
}

// Breakdown is a proposed decomposition of a task into dependent subtasks.
type Breakdown struct {
	ID              string    `json:"id"`
	TaskID          string    `json:"task_id"`
	TaskDescription string    `json:"task_description"`
	Proposer        string    `json:"proposer"`
	Collaborators   []string  `json:"collaborators"`
	Subtasks        []Subtask `json:"subtasks"`
	VotingID        string    `json:"voting_id,omitempty"`
	Status          Status    `json:"status"`
	Metrics         *Metrics  `json:"metrics,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (b *Breakdown) clone() *Breakdown {
	cp := *b
	cp.Collaborators = append([]string(nil), b.Collaborators...)
	cp.Subtasks = make([]Subtask, len(b.Subtasks))
	for i, st := range b.Subtasks {
		st.RequiredCapabilities = append([]string(nil), st.RequiredCapabilities...)
		st.Prerequisites = append([]string(nil), st.Prerequisites...)
		cp.Subtasks[i] = st
	}
	if b.Metrics != nil {
		m := *b.Metrics
		cp.Metrics = &m
	}
	return &cp
}

// ServiceConfig holds configuration for the breakdown service.
type ServiceConfig struct {
	// VotingWindow is the default approval vote duration.
	VotingWindow time.Duration `json:"voting_window" yaml:"voting_window"`
}

// DefaultServiceConfig returns the standard breakdown settings.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{VotingWindow: 10 * time.Minute}
}

// Service manages task breakdowns and their approval votes.
type Service struct {
	mu         sync.RWMutex
	breakdowns map[string]*Breakdown

	registry *capability.Registry
	votes    *voting.Engine
	config   *ServiceConfig
	bus      *event.Bus
	logger   *zap.Logger
}

// NewService creates a breakdown service. registry may be nil, in which case
// capability match scoring reports zero matches.
func NewService(config *ServiceConfig, registry *capability.Registry, votes *voting.Engine, bus *event.Bus, logger *zap.Logger) *Service {
	if config == nil {
		config = DefaultServiceConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		breakdowns: make(map[string]*Breakdown),
		registry:   registry,
		votes:      votes,
		config:     config,
		bus:        bus,
		logger:     logger.With(zap.String("component", "breakdown_service")),
	}
}

// Initiate seeds a breakdown with a naive default decomposition: one planning
// subtask, one subtask per required capability depending on it, and an
// integration subtask when more than two capability subtasks exist.
// Collaborators are expected to revise the seed before voting.
func (s *Service) Initiate(ctx context.Context, taskID, taskDescription, proposer string, collaborators, requiredCapabilities []string) (*Breakdown, error) {
	if taskID == "" || proposer == "" {
		return nil, types.Validationf("breakdown needs a task id and a proposer")
	}

	now := time.Now()
	b := &Breakdown{
		ID:              uuid.New().String(),
		TaskID:          taskID,
		TaskDescription: taskDescription,
		Proposer:        proposer,
		Collaborators:   dedupe(collaborators),
		Subtasks:        seedSubtasks(taskDescription, requiredCapabilities),
		Status:          StatusDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	s.mu.Lock()
	s.breakdowns[b.ID] = b
	s.mu.Unlock()

	s.logger.Info("breakdown initiated",
		zap.String("breakdown_id", b.ID),
		zap.String("task_id", taskID),
		zap.Int("seed_subtasks", len(b.Subtasks)),
	)
	return b.clone(), nil
}

func seedSubtasks(taskDescription string, requiredCapabilities []string) []Subtask {
	planning := Subtask{
		ID:          "plan",
		Title:       "Step 1: Planning",
		Description: "Analyze the task, agree on scope, and assign owners: " + taskDescription,
	}
	subtasks := []Subtask{planning}

	capIDs := make([]string, 0, len(requiredCapabilities))
	for i, cap := range dedupe(requiredCapabilities) {
		id := fmt.Sprintf("cap-%d", i+1)
		capIDs = append(capIDs, id)
		subtasks = append(subtasks, Subtask{
			ID:                   id,
			Title:                fmt.Sprintf("Step %d: Apply %s", i+2, cap),
			Description:          fmt.Sprintf("Carry out the %s portion of the task and hand the output to integration", cap),
			RequiredCapabilities: []string{cap},
			Prerequisites:        []string{planning.ID},
		})
	}

	if len(capIDs) > 2 {
		subtasks = append(subtasks, Subtask{
			ID:            "integrate",
			Title:         fmt.Sprintf("Step %d: Integration", len(capIDs)+2),
			Description:   "Combine the capability outputs into the final deliverable and verify it against the task goal",
			Prerequisites: capIDs,
		})
	}
	return subtasks
}

// UpdateSubtasks replaces the subtask list. Revision is only legal while the
// breakdown is in draft or rejected; updating a rejected breakdown clears the
// prior ballots and reverts it to draft.
func (s *Service) UpdateSubtasks(ctx context.Context, breakdownID string, subtasks []Subtask) (*Breakdown, error) {
	if err := validateSubtasks(subtasks); err != nil {
		return nil, err
	}
	now := time.Now()

	s.mu.Lock()
	b, ok := s.breakdowns[breakdownID]
	if !ok {
		s.mu.Unlock()
		return nil, types.NotFoundf("breakdown %s not found", breakdownID)
	}
	if b.Status != StatusDraft && b.Status != StatusRejected {
		s.mu.Unlock()
		return nil, types.InvalidStatef("subtasks can only be revised in draft or rejected, breakdown is %s", b.Status)
	}
	if b.Status == StatusRejected {
		// Prior ballots are void once the decomposition changes.
		b.VotingID = ""
		b.Status = StatusDraft
	}
	b.Subtasks = append([]Subtask(nil), subtasks...)
	b.Metrics = nil
	b.UpdatedAt = now
	out := b.clone()
	s.mu.Unlock()

	return out, nil
}

func validateSubtasks(subtasks []Subtask) error {
	if len(subtasks) == 0 {
		return types.Validationf("breakdown needs at least one subtask")
	}
	ids := make(map[string]struct{}, len(subtasks))
	for _, st := range subtasks {
		if st.ID == "" {
			return types.Validationf("every subtask needs an id")
		}
		if _, dup := ids[st.ID]; dup {
			return types.Validationf("duplicate subtask id %q", st.ID)
		}
		ids[st.ID] = struct{}{}
	}
	edges := make(map[string][]string, len(subtasks))
	for _, st := range subtasks {
		for _, pre := range st.Prerequisites {
			if _, ok := ids[pre]; !ok {
				return types.Validationf("subtask %q requires unknown prerequisite %q", st.ID, pre)
			}
			edges[pre] = append(edges[pre], st.ID)
		}
	}
	visited := make(map[string]bool, len(subtasks))
	recStack := make(map[string]bool, len(subtasks))
	for _, st := range subtasks {
		if !visited[st.ID] {
			if hasCycleDFS(st.ID, edges, visited, recStack) {
				return types.Validationf("subtask prerequisites form a cycle through %q", st.ID)
			}
		}
	}
	return nil
}

func hasCycleDFS(id string, edges map[string][]string, visited, recStack map[string]bool) bool {
	visited[id] = true
	recStack[id] = true

	for _, next := range edges[id] {
		if !visited[next] {
			if hasCycleDFS(next, edges, visited, recStack) {
				return true
			}
		} else if recStack[next] {
			// Back edge, cycle detected.
			return true
		}
	}

	recStack[id] = false
	return false
}

// StartVoting opens the approval vote over approve/reject. Legal only from
// draft. The proposer and every collaborator are eligible. The linked voting
// decides the breakdown when it closes; breakdowns already decided by the
// time a late closure lands are left as they are.
func (s *Service) StartVoting(ctx context.Context, breakdownID string) (*Breakdown, error) {
	s.mu.Lock()
	b, ok := s.breakdowns[breakdownID]
	if !ok {
		s.mu.Unlock()
		return nil, types.NotFoundf("breakdown %s not found", breakdownID)
	}
	if b.Status != StatusDraft {
		s.mu.Unlock()
		return nil, types.InvalidStatef("voting can only start from draft, breakdown is %s", b.Status)
	}
	eligible := append([]string{b.Proposer}, b.Collaborators...)
	topic := fmt.Sprintf("approve breakdown %s for task %s", b.ID, b.TaskID)
	s.mu.Unlock()

	v, err := s.votes.Open(ctx, topic, []string{ChoiceApprove, ChoiceReject}, eligible, s.config.VotingWindow,
		func(r voting.Results) { s.decide(breakdownID, r) },
	)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	b, ok = s.breakdowns[breakdownID]
	if !ok {
		s.mu.Unlock()
		return nil, types.NotFoundf("breakdown %s not found", breakdownID)
	}
	b.VotingID = v.ID
	b.Status = StatusVoting
	b.UpdatedAt = time.Now()
	out := b.clone()
	s.mu.Unlock()

	s.logger.Info("breakdown voting started",
		zap.String("breakdown_id", breakdownID),
		zap.String("voting_id", v.ID),
		zap.Int("eligible", len(eligible)),
	)
	return out, nil
}

// Vote casts a collaborator's ballot on the breakdown's open voting.
func (s *Service) Vote(ctx context.Context, breakdownID, agentID, choice string) error {
	s.mu.RLock()
	b, ok := s.breakdowns[breakdownID]
	if !ok {
		s.mu.RUnlock()
		return types.NotFoundf("breakdown %s not found", breakdownID)
	}
	if b.Status != StatusVoting || b.VotingID == "" {
		s.mu.RUnlock()
		return types.InvalidStatef("breakdown %s is not in voting", breakdownID)
	}
	votingID := b.VotingID
	s.mu.RUnlock()

	_, err := s.votes.Cast(ctx, votingID, agentID, choice)
	return err
}

// decide applies a closed approval vote to the breakdown.
func (s *Service) decide(breakdownID string, r voting.Results) {
	now := time.Now()

	s.mu.Lock()
	b, ok := s.breakdowns[breakdownID]
	if !ok || b.Status != StatusVoting {
		s.mu.Unlock()
		return
	}
	approved := r.TopChoice == ChoiceApprove && r.TotalCast > 0
	if approved {
		b.Status = StatusApproved
		m := s.computeMetricsLocked(b)
		b.Metrics = &m
	} else {
		b.Status = StatusRejected
	}
	b.UpdatedAt = now
	out := b.clone()
	s.mu.Unlock()

	s.logger.Info("breakdown decided",
		zap.String("breakdown_id", breakdownID),
		zap.Bool("approved", approved),
		zap.String("top_choice", r.TopChoice),
	)
	if s.bus != nil {
		score := 0.0
		if out.Metrics != nil {
			score = out.Metrics.OverallScore
		}
		s.bus.BreakdownDecided.Publish(event.BreakdownEvent{
			BreakdownID:  breakdownID,
			TaskID:       out.TaskID,
			Approved:     approved,
			OverallScore: score,
			Timestamp:    now,
		})
	}
}

// Get returns a copy of a breakdown.
func (s *Service) Get(ctx context.Context, breakdownID string) (*Breakdown, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.breakdowns[breakdownID]
	if !ok {
		return nil, types.NotFoundf("breakdown %s not found", breakdownID)
	}
	return b.clone(), nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
