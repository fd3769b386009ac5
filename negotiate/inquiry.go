package negotiate

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentswarm/capability"
	"github.com/BaSui01/agentswarm/event"
	"github.com/BaSui01/agentswarm/types"
)

// Commitment levels, strongest first. An unset level ranks with tentative.
const (
	CommitmentGuaranteed = "guaranteed"
	CommitmentFirm       = "firm"
	CommitmentTentative  = "tentative"
)

func commitmentRank(level string) int {
	switch level {
	case CommitmentGuaranteed:
		return 2
	case CommitmentFirm:
		return 1
	default:
		return 0
	}
}

// Inquiry is a pending capability inquiry awaiting responses.
type Inquiry struct {
	ID          string            `json:"id"`
	FromAgent   string            `json:"from_agent"`
	Capability  string            `json:"capability"`
	Context     string            `json:"context,omitempty"`
	TeamContext string            `json:"team_context,omitempty"`
	Priority    string            `json:"priority,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Responses   []InquiryResponse `json:"responses"`
}

func (i *Inquiry) clone() *Inquiry {
	cp := *i
	cp.Responses = append([]InquiryResponse(nil), i.Responses...)
	return &cp
}

// InquiryResponse is one agent's answer to an inquiry. A responder may answer
// more than once; the most recent answer is the one that qualifies for
// selection.
type InquiryResponse struct {
	InquiryID               string    `json:"inquiry_id"`
	FromAgent               string    `json:"from_agent"`
	Available               bool      `json:"available"`
	ConfidenceLevel         float64   `json:"confidence_level"`
	EstimatedCompletion     string    `json:"estimated_completion,omitempty"`
	Constraints             []string  `json:"constraints,omitempty"`
	AlternativeCapabilities []string  `json:"alternative_capabilities,omitempty"`
	CommitmentLevel         string    `json:"commitment_level,omitempty"`
	ReceivedAt              time.Time `json:"received_at"`
}

// InquiryResult is the outcome of an inquiry: responses partitioned by
// availability and the best available provider, if any.
type InquiryResult struct {
	InquiryID        string            `json:"inquiry_id"`
	Success          bool              `json:"success"`
	SelectedProvider string            `json:"selected_provider,omitempty"`
	Selected         *InquiryResponse  `json:"selected,omitempty"`
	Available        []InquiryResponse `json:"available"`
	Unavailable      []InquiryResponse `json:"unavailable"`
}

// NegotiatorConfig holds configuration for the inquiry negotiator.
type NegotiatorConfig struct {
	DefaultDeadline time.Duration `json:"default_deadline" yaml:"default_deadline"`
	SweepInterval   time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
}

// DefaultNegotiatorConfig returns the standard inquiry windows.
func DefaultNegotiatorConfig() *NegotiatorConfig {
	return &NegotiatorConfig{
		DefaultDeadline: 30 * time.Second,
		SweepInterval:   60 * time.Second,
	}
}

// Negotiator manages pending capability inquiries. Unlike advertisements,
// expired inquiries are ephemeral and hard-deleted by the sweep.
type Negotiator struct {
	mu        sync.RWMutex
	inquiries map[string]*Inquiry

	registry *capability.Registry
	config   *NegotiatorConfig
	bus      *event.Bus
	logger   *zap.Logger

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewNegotiator creates an inquiry negotiator. registry may be nil; when set
// it is consulted to flag inquiries about capabilities nobody has registered.
func NewNegotiator(config *NegotiatorConfig, registry *capability.Registry, bus *event.Bus, logger *zap.Logger) *Negotiator {
	if config == nil {
		config = DefaultNegotiatorConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Negotiator{
		inquiries: make(map[string]*Inquiry),
		registry:  registry,
		config:    config,
		bus:       bus,
		logger:    logger.With(zap.String("component", "negotiator")),
		done:      make(chan struct{}),
	}
}

// Start launches the background sweep that discards expired inquiries.
func (n *Negotiator) Start(ctx context.Context) error {
	n.wg.Add(1)
	go n.sweepLoop()
	return nil
}

// Close stops the sweep loop.
func (n *Negotiator) Close() error {
	n.once.Do(func() { close(n.done) })
	n.wg.Wait()
	return nil
}

// InquiryOptions are the optional fields of an inquiry.
type InquiryOptions struct {
	Context     string
	TeamContext string
	Priority    string
	Deadline    time.Duration
}

// CreateInquiry stores a pending inquiry with an absolute expiry. A
// non-positive deadline falls back to the configured default.
func (n *Negotiator) CreateInquiry(ctx context.Context, fromAgent, capabilityName string, opts InquiryOptions) (*Inquiry, error) {
	if fromAgent == "" {
		return nil, types.Validationf("inquiry needs a sender")
	}
	if capabilityName == "" {
		return nil, types.Validationf("inquiry needs a capability")
	}
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = n.config.DefaultDeadline
	}

	if n.registry != nil && !n.registry.HasCapability(capabilityName) {
		n.logger.Debug("inquiry about unregistered capability",
			zap.String("capability", capabilityName),
			zap.String("from_agent", fromAgent),
		)
	}

	now := time.Now()
	inq := &Inquiry{
		ID:          uuid.New().String(),
		FromAgent:   fromAgent,
		Capability:  capabilityName,
		Context:     opts.Context,
		TeamContext: opts.TeamContext,
		Priority:    opts.Priority,
		CreatedAt:   now,
		ExpiresAt:   now.Add(deadline),
	}

	n.mu.Lock()
	n.inquiries[inq.ID] = inq
	n.mu.Unlock()

	n.logger.Info("inquiry created",
		zap.String("inquiry_id", inq.ID),
		zap.String("capability", capabilityName),
		zap.String("from_agent", fromAgent),
	)

	if n.bus != nil {
		n.bus.InquiryCreated.Publish(event.InquiryEvent{
			InquiryID:  inq.ID,
			FromAgent:  fromAgent,
			Capability: capabilityName,
			Timestamp:  now,
		})
	}
	return inq.clone(), nil
}

// ProcessResponse appends a response to its inquiry. Responses to unknown
// inquiries are rejected with NotFound, responses past the deadline with
// Expired. No uniqueness constraint is applied at write time; selection
// dedupes per responder at read time.
func (n *Negotiator) ProcessResponse(ctx context.Context, resp InquiryResponse) error {
	if resp.InquiryID == "" || resp.FromAgent == "" {
		return types.Validationf("response needs an inquiry id and a responder")
	}
	now := time.Now()

	n.mu.Lock()
	defer n.mu.Unlock()

	inq, ok := n.inquiries[resp.InquiryID]
	if !ok {
		return types.NotFoundf("inquiry %s not found", resp.InquiryID)
	}
	if now.After(inq.ExpiresAt) {
		return types.Expiredf("inquiry %s expired at %s", inq.ID, inq.ExpiresAt.Format(time.RFC3339))
	}

	resp.ReceivedAt = now
	inq.Responses = append(inq.Responses, resp)
	return nil
}

// Get returns a copy of a pending inquiry.
func (n *Negotiator) Get(ctx context.Context, inquiryID string) (*Inquiry, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	inq, ok := n.inquiries[inquiryID]
	if !ok {
		return nil, types.NotFoundf("inquiry %s not found", inquiryID)
	}
	return inq.clone(), nil
}

// GetResult partitions responses into available and unavailable, keeping only
// each responder's most recent answer, and selects the best available
// provider by commitment level then confidence.
func (n *Negotiator) GetResult(ctx context.Context, inquiryID string) (*InquiryResult, error) {
	n.mu.RLock()
	inq, ok := n.inquiries[inquiryID]
	if !ok {
		n.mu.RUnlock()
		return nil, types.NotFoundf("inquiry %s not found", inquiryID)
	}
	responses := append([]InquiryResponse(nil), inq.Responses...)
	n.mu.RUnlock()

	// Last answer per responder wins; responses are stored in arrival order.
	latest := make(map[string]InquiryResponse, len(responses))
	order := make([]string, 0, len(responses))
	for _, r := range responses {
		if _, seen := latest[r.FromAgent]; !seen {
			order = append(order, r.FromAgent)
		}
		latest[r.FromAgent] = r
	}

	result := &InquiryResult{
		InquiryID:   inquiryID,
		Available:   make([]InquiryResponse, 0, len(order)),
		Unavailable: make([]InquiryResponse, 0),
	}
	for _, agent := range order {
		r := latest[agent]
		if r.Available {
			result.Available = append(result.Available, r)
		} else {
			result.Unavailable = append(result.Unavailable, r)
		}
	}

	if len(result.Available) > 0 {
		sort.SliceStable(result.Available, func(i, j int) bool {
			a, b := result.Available[i], result.Available[j]
			if ra, rb := commitmentRank(a.CommitmentLevel), commitmentRank(b.CommitmentLevel); ra != rb {
				return ra > rb
			}
			if a.ConfidenceLevel != b.ConfidenceLevel {
				return a.ConfidenceLevel > b.ConfidenceLevel
			}
			return a.FromAgent < b.FromAgent
		})
		best := result.Available[0]
		result.Success = true
		result.SelectedProvider = best.FromAgent
		result.Selected = &best
	}
	return result, nil
}

// sweepLoop discards expired inquiries on a ticker until Close.
func (n *Negotiator) sweepLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.Sweep(context.Background())
		case <-n.done:
			return
		}
	}
}

// Sweep hard-deletes inquiries past their deadline. Pending inquiries are
// ephemeral; nothing is kept for history.
func (n *Negotiator) Sweep(ctx context.Context) {
	now := time.Now()

	n.mu.Lock()
	var expired []*Inquiry
	for id, inq := range n.inquiries {
		if now.After(inq.ExpiresAt) {
			expired = append(expired, inq)
			delete(n.inquiries, id)
		}
	}
	n.mu.Unlock()

	for _, inq := range expired {
		n.logger.Debug("inquiry expired and discarded",
			zap.String("inquiry_id", inq.ID),
			zap.String("capability", inq.Capability),
		)
		if n.bus != nil {
			n.bus.InquiryExpired.Publish(event.InquiryEvent{
				InquiryID:  inq.ID,
				FromAgent:  inq.FromAgent,
				Capability: inq.Capability,
				Timestamp:  now,
			})
		}
	}
}
