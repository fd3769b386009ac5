package voting

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

// Status is a voting lifecycle state.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// CloseReason records why a voting closed.
type CloseReason string

const (
	CloseExpired           CloseReason = "expired"
	CloseFullParticipation CloseReason = "full_participation"
	CloseEarlyMajority     CloseReason = "early_majority"
)

// Ballot is one agent's current choice. Re-voting overwrites.
type Ballot struct {
	AgentID   string    `json:"agent_id"`
	Choice    string    `json:"choice"`
	Timestamp time.Time `json:"timestamp"`
}

// Results is the frozen tally of a closed voting. Every declared choice
// appears in Counts, zero-vote choices included.
type Results struct {
	Counts      map[string]int `json:"counts"`
	TopChoice   string         `json:"top_choice"`
	TotalCast   int            `json:"total_cast"`
	Eligible    int            `json:"eligible"`
	CloseReason CloseReason    `json:"close_reason"`
	ClosedAt    time.Time      `json:"closed_at"`
}

// Voting is a single multi-choice ballot instance.
type Voting struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Choices   []string          `json:"choices"`
	Eligible  []string          `json:"eligible"`
	Ballots   map[string]Ballot `json:"ballots"`
	Status    Status            `json:"status"`
	OpenedAt  time.Time         `json:"opened_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Results   *Results          `json:"results,omitempty"`
}

func (v *Voting) clone() *Voting {
	cp := *v
	cp.Choices = append([]string(nil), v.Choices...)
	cp.Eligible = append([]string(nil), v.Eligible...)
	cp.Ballots = make(map[string]Ballot, len(v.Ballots))
	for k, b := range v.Ballots {
		cp.Ballots[k] = b
	}
	if v.Results != nil {
		r := *v.Results
		r.Counts = make(map[string]int, len(v.Results.Counts))
		for k, c := range v.Results.Counts {
			r.Counts[k] = c
		}
		cp.Results = &r
	}
	return &cp
}

// OnClose is invoked once when a voting closes. Hook failures are logged and
// never roll back the closure.
type OnClose func(Results)

// EngineConfig holds configuration for the voting engine.
type EngineConfig struct {
	// DefaultWindow is applied when Open is given no duration.
	DefaultWindow time.Duration `json:"default_window" yaml:"default_window"`

	// SweepInterval is how often expired votings are closed in the
	// background.
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`

	// EarlyQuorumFraction of eligible voters must have cast ballots before
	// the early-majority rule can close a voting.
	EarlyQuorumFraction float64 `json:"early_quorum_fraction" yaml:"early_quorum_fraction"`
}

// DefaultEngineConfig returns the standard voting windows and quorum.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		DefaultWindow:       10 * time.Minute,
		SweepInterval:       60 * time.Second,
		EarlyQuorumFraction: 0.66,
	}
}

// Engine manages voting instances.
type Engine struct {
	mu      sync.Mutex
	votings map[string]*Voting
	hooks   map[string][]OnClose

	config *EngineConfig
	bus    *event.Bus
	logger *zap.Logger

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewEngine creates a voting engine.
func NewEngine(config *EngineConfig, bus *event.Bus, logger *zap.Logger) *Engine {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		votings: make(map[string]*Voting),
		hooks:   make(map[string][]OnClose),
		config:  config,
		bus:     bus,
		logger:  logger.With(zap.String("component", "voting_engine")),
		done:    make(chan struct{}),
	}
}

// Start launches the background expiry sweep.
func (e *Engine) Start(ctx context.Context) error {
	e.wg.Add(1)
	go e.sweepLoop()
	return nil
}

// Close stops the sweep loop. Open votings are left open.
func (e *Engine) Close() error {
	e.once.Do(func() { close(e.done) })
	e.wg.Wait()
	return nil
}

// Open creates a voting over the given choices with the given eligible
// voters. A non-positive window falls back to the configured default. Hooks
// fire once when the voting closes, whatever the reason.
func (e *Engine) Open(ctx context.Context, topic string, choices, eligible []string, window time.Duration, hooks ...OnClose) (*Voting, error) {
	if topic == "" {
		return nil, types.Validationf("voting topic is required")
	}
	unique := make(map[string]struct{}, len(choices))
	for _, c := range choices {
		if c == "" {
			return nil, types.Validationf("voting choice must not be empty")
		}
		unique[c] = struct{}{}
	}
	if len(unique) < 2 {
		return nil, types.Validationf("voting needs at least two distinct choices, got %d", len(unique))
	}
	if len(eligible) == 0 {
		return nil, types.Validationf("voting needs at least one eligible voter")
	}
	if window <= 0 {
		window = e.config.DefaultWindow
	}

	now := time.Now()
	v := &Voting{
		ID:        uuid.New().String(),
		Topic:     topic,
		Choices:   append([]string(nil), choices...),
		Eligible:  dedupe(eligible),
		Ballots:   make(map[string]Ballot),
		Status:    StatusOpen,
		OpenedAt:  now,
		ExpiresAt: now.Add(window),
	}

	e.mu.Lock()
	e.votings[v.ID] = v
	e.hooks[v.ID] = hooks
	e.mu.Unlock()

	e.logger.Info("voting opened",
		zap.String("voting_id", v.ID),
		zap.String("topic", topic),
		zap.Int("choices", len(v.Choices)),
		zap.Int("eligible", len(v.Eligible)),
	)

	if e.bus != nil {
		e.bus.VotingOpened.Publish(event.VotingEvent{
			VotingID:  v.ID,
			Topic:     topic,
			Timestamp: now,
		})
	}
	return v.clone(), nil
}

// Cast records a ballot with upsert semantics and then checks the auto-close
// conditions. Casting on an expired voting closes it and reports Expired.
func (e *Engine) Cast(ctx context.Context, votingID, agentID, choice string) (*Voting, error) {
	now := time.Now()

	e.mu.Lock()
	v, ok := e.votings[votingID]
	if !ok {
		e.mu.Unlock()
		return nil, types.NotFoundf("voting %s not found", votingID)
	}
	if v.Status == StatusClosed {
		e.mu.Unlock()
		return nil, types.InvalidStatef("voting %s is closed", votingID)
	}
	if now.After(v.ExpiresAt) {
		_, fire := e.closeLocked(v, CloseExpired, now)
		e.mu.Unlock()
		fire()
		return nil, types.Expiredf("voting %s expired at %s", votingID, v.ExpiresAt.Format(time.RFC3339))
	}
	if !contains(v.Eligible, agentID) {
		e.mu.Unlock()
		return nil, types.Validationf("agent %s is not eligible for voting %s", agentID, votingID)
	}
	if !contains(v.Choices, choice) {
		e.mu.Unlock()
		return nil, types.Validationf("choice %q is not declared for voting %s", choice, votingID)
	}

	v.Ballots[agentID] = Ballot{AgentID: agentID, Choice: choice, Timestamp: now}

	var fire func()
	if reason, shouldClose := e.autoCloseReasonLocked(v, now); shouldClose {
		_, fire = e.closeLocked(v, reason, now)
	}
	out := v.clone()
	e.mu.Unlock()

	if fire != nil {
		fire()
	}
	return out, nil
}

// Get returns a copy of a voting, open or closed.
func (e *Engine) Get(ctx context.Context, votingID string) (*Voting, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.votings[votingID]
	if !ok {
		return nil, types.NotFoundf("voting %s not found", votingID)
	}
	return v.clone(), nil
}

// autoCloseReasonLocked evaluates full participation and the early-majority
// rule against the ballots cast so far.
func (e *Engine) autoCloseReasonLocked(v *Voting, now time.Time) (CloseReason, bool) {
	cast := len(v.Ballots)
	eligible := len(v.Eligible)

	if cast >= eligible {
		return CloseFullParticipation, true
	}

	quorum := int(math.Ceil(e.config.EarlyQuorumFraction * float64(eligible)))
	if cast >= quorum {
		counts := tally(v)
		leading := 0
		for _, c := range v.Choices {
			if counts[c] > leading {
				leading = counts[c]
			}
		}
		if leading*2 > cast {
			return CloseEarlyMajority, true
		}
	}
	return "", false
}

// closeLocked freezes the tally and returns the deferred hook invocation,
// which must run outside the engine lock.
func (e *Engine) closeLocked(v *Voting, reason CloseReason, now time.Time) (*Results, func()) {
	counts := tally(v)

	// Ties resolve to whichever choice was declared first.
	top := ""
	best := -1
	for _, c := range v.Choices {
		if counts[c] > best {
			best = counts[c]
			top = c
		}
	}

	results := &Results{
		Counts:      counts,
		TopChoice:   top,
		TotalCast:   len(v.Ballots),
		Eligible:    len(v.Eligible),
		CloseReason: reason,
		ClosedAt:    now,
	}
	v.Status = StatusClosed
	v.Results = results

	hooks := e.hooks[v.ID]
	delete(e.hooks, v.ID)
	snapshot := *results
	snapshot.Counts = counts

	id, topic := v.ID, v.Topic
	fire := func() {
		e.logger.Info("voting closed",
			zap.String("voting_id", id),
			zap.String("top_choice", snapshot.TopChoice),
			zap.String("reason", string(reason)),
			zap.Int("cast", snapshot.TotalCast),
		)
		if e.bus != nil {
			e.bus.VotingClosed.Publish(event.VotingEvent{
				VotingID:  id,
				Topic:     topic,
				Closed:    true,
				TopChoice: snapshot.TopChoice,
				Reason:    string(reason),
				Timestamp: now,
			})
		}
		for _, hook := range hooks {
			func() {
				defer func() {
					if r := recover(); r != nil {
						e.logger.Error("voting close hook panicked",
							zap.String("voting_id", id),
							zap.Any("panic", r),
						)
					}
				}()
				hook(snapshot)
			}()
		}
	}
	return results, fire
}

func tally(v *Voting) map[string]int {
	counts := make(map[string]int, len(v.Choices))
	for _, c := range v.Choices {
		counts[c] = 0
	}
	for _, b := range v.Ballots {
		counts[b.Choice]++
	}
	return counts
}

// sweepLoop closes expired votings on a ticker until Close.
func (e *Engine) sweepLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Sweep(context.Background())
		case <-e.done:
			return
		}
	}
}

// Sweep closes every open voting past its expiry. Hook errors are contained
// per voting.
func (e *Engine) Sweep(ctx context.Context) {
	now := time.Now()

	e.mu.Lock()
	var fires []func()
	for _, v := range e.votings {
		if v.Status == StatusOpen && now.After(v.ExpiresAt) {
			_, fire := e.closeLocked(v, CloseExpired, now)
			fires = append(fires, fire)
		}
	}
	e.mu.Unlock()

	for _, fire := range fires {
		fire()
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
