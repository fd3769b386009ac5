package negotiate

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentswarm/event"
	"github.com/BaSui01/agentswarm/types"
)

// Stage is a recruitment protocol state.
type Stage string

const (
	StageInquirySent  Stage = "INQUIRY_SENT"
	StageProposalSent Stage = "PROPOSAL_SENT"
	StageAccepted     Stage = "ACCEPTED"
	StageRejected     Stage = "REJECTED"
)

func (s Stage) terminal() bool {
	return s == StageAccepted || s == StageRejected
}

// Proposal is a recruitment offer for one role on a task.
type Proposal struct {
	ID                   string        `json:"id"`
	TaskID               string        `json:"task_id"`
	TargetAgent          string        `json:"target_agent"`
	Role                 string        `json:"role"`
	Responsibilities     []string      `json:"responsibilities,omitempty"`
	RequiredCapabilities []string      `json:"required_capabilities,omitempty"`
	ExpectedContribution string        `json:"expected_contribution,omitempty"`
	ExpectedDuration     time.Duration `json:"expected_duration,omitempty"`
	Compensation         float64       `json:"compensation,omitempty"`
	CompensationTerms    string        `json:"compensation_terms,omitempty"`
	ExpiresAt            time.Time     `json:"expires_at"`
}

// CounterProposal is a response asking for changed terms. Unset fields leave
// the original term untouched.
type CounterProposal struct {
	ID                    string         `json:"id"`
	ProposalID            string         `json:"proposal_id"`
	FromAgent             string         `json:"from_agent"`
	RequestedRole         string         `json:"requested_role,omitempty"`
	RequestedDuration     time.Duration  `json:"requested_duration,omitempty"`
	RequestedCompensation *float64       `json:"requested_compensation,omitempty"`
	DropCapabilities      []string       `json:"drop_capabilities,omitempty"`
	Reason                string         `json:"reason,omitempty"`
}

// Recruitment is the per (task, target agent) protocol record.
type Recruitment struct {
	TaskID          string           `json:"task_id"`
	TargetAgent     string           `json:"target_agent"`
	Stage           Stage            `json:"stage"`
	InquiryID       string           `json:"inquiry_id,omitempty"`
	Proposal        *Proposal        `json:"proposal,omitempty"`
	CounterProposal *CounterProposal `json:"counter_proposal,omitempty"`
	Outcome         string           `json:"outcome,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (r *Recruitment) clone() *Recruitment {
	cp := *r
	if r.Proposal != nil {
		p := *r.Proposal
		p.Responsibilities = append([]string(nil), r.Proposal.Responsibilities...)
		p.RequiredCapabilities = append([]string(nil), r.Proposal.RequiredCapabilities...)
		cp.Proposal = &p
	}
	if r.CounterProposal != nil {
		c := *r.CounterProposal
		cp.CounterProposal = &c
	}
	return &cp
}

// ConflictResolver decides what to do with a counter-proposal: either produce
// a merged proposal both sides can live with, or explain why the terms are
// irreconcilable.
type ConflictResolver interface {
	Resolve(original Proposal, counter CounterProposal) (merged *Proposal, reason string)
}

// CompromiseResolver is the default resolution strategy. It scores how far the
// counter-proposal diverges from the original and accepts the requested terms
// when the weighted divergence stays under the compromise threshold.
// Capability drops are weighted more heavily than compensation changes, so a
// counter that keeps the capability match intact is easier to accept.
type CompromiseResolver struct {
	// CompromiseThreshold is the maximum acceptable weighted divergence in
	// [0,1]. Zero means only cosmetic counters are accepted.
	CompromiseThreshold float64 `json:"compromise_threshold" yaml:"compromise_threshold"`

	// CapabilityWeight and CompensationWeight set the priority between
	// keeping the capability match and holding the compensation line.
	CapabilityWeight   float64 `json:"capability_weight" yaml:"capability_weight"`
	CompensationWeight float64 `json:"compensation_weight" yaml:"compensation_weight"`
	DurationWeight     float64 `json:"duration_weight" yaml:"duration_weight"`
}

// DefaultCompromiseResolver prioritizes capability match over compensation.
func DefaultCompromiseResolver() *CompromiseResolver {
	return &CompromiseResolver{
		CompromiseThreshold: 0.3,
		CapabilityWeight:    0.5,
		CompensationWeight:  0.3,
		DurationWeight:      0.2,
	}
}

var _ ConflictResolver = (*CompromiseResolver)(nil)

// Resolve implements ConflictResolver.
func (r *CompromiseResolver) Resolve(original Proposal, counter CounterProposal) (*Proposal, string) {
	capDiv := 0.0
	if len(original.RequiredCapabilities) > 0 && len(counter.DropCapabilities) > 0 {
		dropped := 0
		drop := make(map[string]struct{}, len(counter.DropCapabilities))
		for _, c := range counter.DropCapabilities {
			drop[c] = struct{}{}
		}
		for _, c := range original.RequiredCapabilities {
			if _, ok := drop[c]; ok {
				dropped++
			}
		}
		capDiv = float64(dropped) / float64(len(original.RequiredCapabilities))
	}

	compDiv := 0.0
	if counter.RequestedCompensation != nil {
		compDiv = relativeChange(original.Compensation, *counter.RequestedCompensation)
	}

	durDiv := 0.0
	if counter.RequestedDuration > 0 {
		durDiv = relativeChange(float64(original.ExpectedDuration), float64(counter.RequestedDuration))
	}

	divergence := r.CapabilityWeight*capDiv + r.CompensationWeight*compDiv + r.DurationWeight*durDiv
	if divergence > r.CompromiseThreshold {
		return nil, "requested terms exceed the acceptable compromise threshold"
	}

	merged := original
	merged.ID = uuid.New().String()
	merged.Responsibilities = append([]string(nil), original.Responsibilities...)
	merged.RequiredCapabilities = append([]string(nil), original.RequiredCapabilities...)
	if counter.RequestedRole != "" {
		merged.Role = counter.RequestedRole
	}
	if counter.RequestedDuration > 0 {
		merged.ExpectedDuration = counter.RequestedDuration
	}
	if counter.RequestedCompensation != nil {
		merged.Compensation = *counter.RequestedCompensation
	}
	if len(counter.DropCapabilities) > 0 {
		drop := make(map[string]struct{}, len(counter.DropCapabilities))
		for _, c := range counter.DropCapabilities {
			drop[c] = struct{}{}
		}
		kept := merged.RequiredCapabilities[:0]
		for _, c := range merged.RequiredCapabilities {
			if _, ok := drop[c]; !ok {
				kept = append(kept, c)
			}
		}
		merged.RequiredCapabilities = kept
	}
	return &merged, ""
}

func relativeChange(a, b float64) float64 {
	if a == 0 && b == 0 {
		return 0
	}
	return math.Abs(a-b) / math.Max(math.Abs(a), math.Abs(b))
}

// RecruiterConfig holds configuration for the recruitment engine.
type RecruiterConfig struct {
	// ProposalValidity is applied to proposals with no expiry of their own.
	ProposalValidity time.Duration `json:"proposal_validity" yaml:"proposal_validity"`
}

// DefaultRecruiterConfig returns the standard recruitment settings.
func DefaultRecruiterConfig() *RecruiterConfig {
	return &RecruiterConfig{ProposalValidity: 10 * time.Minute}
}

// Recruiter drives the recruitment state machine per (task, target agent) and
// assembles team contracts once recruitment succeeds.
type Recruiter struct {
	mu          sync.RWMutex
	records     map[string]*Recruitment
	byProposal  map[string]string
	contracts   *contractBook

	resolver ConflictResolver
	config   *RecruiterConfig
	bus      *event.Bus
	logger   *zap.Logger
}

// NewRecruiter creates a recruitment engine. A nil resolver falls back to the
// default compromise strategy.
func NewRecruiter(config *RecruiterConfig, resolver ConflictResolver, kv kvPutter, bus *event.Bus, logger *zap.Logger) *Recruiter {
	if config == nil {
		config = DefaultRecruiterConfig()
	}
	if resolver == nil {
		resolver = DefaultCompromiseResolver()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "recruiter"))
	return &Recruiter{
		records:    make(map[string]*Recruitment),
		byProposal: make(map[string]string),
		contracts:  newContractBook(kv, bus, logger),
		resolver:   resolver,
		config:     config,
		bus:        bus,
		logger:     logger,
	}
}

func recruitmentKey(taskID, agentID string) string {
	return taskID + "/" + agentID
}

// StartRecruitment opens a recruitment record in INQUIRY_SENT. Re-starting is
// only legal when no record exists or the previous one is terminal.
func (r *Recruiter) StartRecruitment(ctx context.Context, taskID, targetAgent, inquiryID string) (*Recruitment, error) {
	if taskID == "" || targetAgent == "" {
		return nil, types.Validationf("recruitment needs a task and a target agent")
	}
	key := recruitmentKey(taskID, targetAgent)
	now := time.Now()

	r.mu.Lock()
	if existing, ok := r.records[key]; ok && !existing.Stage.terminal() {
		r.mu.Unlock()
		return nil, types.InvalidStatef("recruitment for agent %s on task %s is already in stage %s", targetAgent, taskID, existing.Stage)
	}
	rec := &Recruitment{
		TaskID:      taskID,
		TargetAgent: targetAgent,
		Stage:       StageInquirySent,
		InquiryID:   inquiryID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.records[key] = rec
	r.mu.Unlock()

	r.publishStage(rec, now)
	return rec.clone(), nil
}

// SendProposal attaches a proposal and advances to PROPOSAL_SENT. Legal from
// INQUIRY_SENT and from PROPOSAL_SENT (re-negotiation replaces the offer).
func (r *Recruiter) SendProposal(ctx context.Context, p Proposal) (*Recruitment, error) {
	if p.TaskID == "" || p.TargetAgent == "" || p.Role == "" {
		return nil, types.Validationf("proposal needs a task, a target agent, and a role")
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now()
	if p.ExpiresAt.IsZero() {
		p.ExpiresAt = now.Add(r.config.ProposalValidity)
	}
	key := recruitmentKey(p.TaskID, p.TargetAgent)

	r.mu.Lock()
	rec, ok := r.records[key]
	if !ok {
		r.mu.Unlock()
		return nil, types.NotFoundf("no recruitment for agent %s on task %s", p.TargetAgent, p.TaskID)
	}
	if rec.Stage != StageInquirySent && rec.Stage != StageProposalSent {
		r.mu.Unlock()
		return nil, types.InvalidStatef("cannot send a proposal in stage %s", rec.Stage)
	}
	if rec.Proposal != nil {
		delete(r.byProposal, rec.Proposal.ID)
	}
	rec.Proposal = &p
	rec.Stage = StageProposalSent
	rec.UpdatedAt = now
	r.byProposal[p.ID] = key
	out := rec.clone()
	r.mu.Unlock()

	r.publishStage(out, now)
	return out, nil
}

// SubmitCounterProposal resolves a counter-proposal. Acceptable counters
// replace the offer with the merged proposal and stay in PROPOSAL_SENT;
// irreconcilable terms reject the recruitment with an explanation.
func (r *Recruiter) SubmitCounterProposal(ctx context.Context, counter CounterProposal) (*Recruitment, error) {
	if counter.ProposalID == "" {
		return nil, types.Validationf("counter-proposal needs the original proposal id")
	}
	if counter.ID == "" {
		counter.ID = uuid.New().String()
	}
	now := time.Now()

	r.mu.Lock()
	key, ok := r.byProposal[counter.ProposalID]
	if !ok {
		r.mu.Unlock()
		return nil, types.NotFoundf("proposal %s not found", counter.ProposalID)
	}
	rec := r.records[key]
	if rec.Stage != StageProposalSent {
		r.mu.Unlock()
		return nil, types.InvalidStatef("cannot counter a proposal in stage %s", rec.Stage)
	}
	if now.After(rec.Proposal.ExpiresAt) {
		r.mu.Unlock()
		return nil, types.Expiredf("proposal %s expired at %s", counter.ProposalID, rec.Proposal.ExpiresAt.Format(time.RFC3339))
	}

	merged, reason := r.resolver.Resolve(*rec.Proposal, counter)
	rec.CounterProposal = &counter
	rec.UpdatedAt = now
	if merged == nil {
		rec.Stage = StageRejected
		rec.Outcome = reason
		delete(r.byProposal, counter.ProposalID)
	} else {
		delete(r.byProposal, rec.Proposal.ID)
		rec.Proposal = merged
		r.byProposal[merged.ID] = key
	}
	out := rec.clone()
	r.mu.Unlock()

	if merged == nil {
		r.logger.Info("counter-proposal irreconcilable",
			zap.String("task_id", out.TaskID),
			zap.String("agent_id", out.TargetAgent),
			zap.String("reason", reason),
		)
	} else {
		r.logger.Info("counter-proposal merged",
			zap.String("task_id", out.TaskID),
			zap.String("agent_id", out.TargetAgent),
			zap.String("merged_proposal_id", merged.ID),
		)
	}
	r.publishStage(out, now)
	return out, nil
}

// Accept records the target agent's acceptance. Re-delivery on an already
// terminal record is a no-op.
func (r *Recruiter) Accept(ctx context.Context, taskID, targetAgent string) (*Recruitment, error) {
	return r.finish(ctx, taskID, targetAgent, StageAccepted, "")
}

// Reject records the target agent's rejection. Re-delivery on an already
// terminal record is a no-op.
func (r *Recruiter) Reject(ctx context.Context, taskID, targetAgent, reason string) (*Recruitment, error) {
	return r.finish(ctx, taskID, targetAgent, StageRejected, reason)
}

func (r *Recruiter) finish(ctx context.Context, taskID, targetAgent string, stage Stage, outcome string) (*Recruitment, error) {
	key := recruitmentKey(taskID, targetAgent)
	now := time.Now()

	r.mu.Lock()
	rec, ok := r.records[key]
	if !ok {
		r.mu.Unlock()
		return nil, types.NotFoundf("no recruitment for agent %s on task %s", targetAgent, taskID)
	}
	if rec.Stage.terminal() {
		out := rec.clone()
		r.mu.Unlock()
		return out, nil
	}
	if rec.Stage != StageProposalSent {
		r.mu.Unlock()
		return nil, types.InvalidStatef("cannot settle a recruitment in stage %s", rec.Stage)
	}
	if stage == StageAccepted && rec.Proposal != nil && now.After(rec.Proposal.ExpiresAt) {
		r.mu.Unlock()
		return nil, types.Expiredf("proposal %s expired at %s", rec.Proposal.ID, rec.Proposal.ExpiresAt.Format(time.RFC3339))
	}
	rec.Stage = stage
	rec.Outcome = outcome
	rec.UpdatedAt = now
	if rec.Proposal != nil {
		delete(r.byProposal, rec.Proposal.ID)
	}
	out := rec.clone()
	r.mu.Unlock()

	r.publishStage(out, now)
	return out, nil
}

// Get returns the recruitment record for (task, target agent).
func (r *Recruiter) Get(ctx context.Context, taskID, targetAgent string) (*Recruitment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[recruitmentKey(taskID, targetAgent)]
	if !ok {
		return nil, types.NotFoundf("no recruitment for agent %s on task %s", targetAgent, taskID)
	}
	return rec.clone(), nil
}

// ListByTask returns every recruitment record for a task.
func (r *Recruiter) ListByTask(ctx context.Context, taskID string) []*Recruitment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Recruitment
	for _, rec := range r.records {
		if rec.TaskID == taskID {
			out = append(out, rec.clone())
		}
	}
	return out
}

// acceptedRoles returns, per role, the agents with an accepted recruitment on
// the task.
func (r *Recruiter) acceptedRoles(taskID string) map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make(map[string][]string)
	for _, rec := range r.records {
		if rec.TaskID == taskID && rec.Stage == StageAccepted && rec.Proposal != nil {
			roles[rec.Proposal.Role] = append(roles[rec.Proposal.Role], rec.TargetAgent)
		}
	}
	return roles
}

func (r *Recruiter) publishStage(rec *Recruitment, now time.Time) {
	r.logger.Debug("recruitment advanced",
		zap.String("task_id", rec.TaskID),
		zap.String("agent_id", rec.TargetAgent),
		zap.String("stage", string(rec.Stage)),
	)
	if r.bus != nil {
		r.bus.RecruitmentAdvanced.Publish(event.RecruitmentEvent{
			TaskID:    rec.TaskID,
			AgentID:   rec.TargetAgent,
			Stage:     string(rec.Stage),
			Accepted:  rec.Stage == StageAccepted,
			Timestamp: now,
		})
	}
}
