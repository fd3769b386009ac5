package types

import (
	"context"
	"time"
)

// Agent is the external collaborator abstraction consumed by the coordination
// core. The core never looks inside an agent: it only asks it to report its
// capabilities and to handle typed requests. How an agent produces answers
// (an LLM, a rule engine, a human) is a collaborator concern.
type Agent interface {
	// ID returns the stable agent identifier.
	ID() string

	// Name returns the human-readable agent name.
	Name() string

	// ReportCapabilities returns the capabilities the agent can provide.
	ReportCapabilities(ctx context.Context) ([]CapabilitySummary, error)

	// HandleRequest asks the agent to handle a typed request. Calls into
	// HandleRequest are the suspension points of the core; everything else
	// runs to completion without blocking I/O.
	HandleRequest(ctx context.Context, req Request) (*Response, error)
}

// CapabilitySummary is what an agent self-reports about one capability.
type CapabilitySummary struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Level           string   `json:"level,omitempty"`
	Taxonomy        []string `json:"taxonomy,omitempty"`
	ConfidenceScore float64  `json:"confidence_score"`
	Experience      string   `json:"experience,omitempty"`
	Specializations []string `json:"specializations,omitempty"`
	Limitations     []string `json:"limitations,omitempty"`
}

// RequestKind discriminates the tagged request union sent to agents.
type RequestKind string

const (
	// RequestKindInquiry asks whether the agent can perform a capability.
	RequestKindInquiry RequestKind = "capability_inquiry"
	// RequestKindProposal asks the agent to consider a recruitment proposal.
	RequestKindProposal RequestKind = "recruitment_proposal"
	// RequestKindBallot asks the agent to vote on a multi-choice question.
	RequestKindBallot RequestKind = "ballot"
	// RequestKindSubtask asks the agent to execute a delegated subtask.
	RequestKindSubtask RequestKind = "subtask"
)

// Request is the tagged union of everything the core may ask an agent to do.
// Each concrete request carries its own required fields and validates them at
// construction time, so malformed combinations never reach dispatch.
type Request interface {
	Kind() RequestKind
	Validate() error
}

// InquiryRequest asks an agent whether it can perform a capability.
type InquiryRequest struct {
	InquiryID  string        `json:"inquiry_id"`
	Capability string        `json:"capability"`
	Context    string        `json:"context,omitempty"`
	Priority   string        `json:"priority,omitempty"`
	Deadline   time.Time     `json:"deadline"`
	Timeout    time.Duration `json:"-"`
}

// Kind implements Request.
func (r *InquiryRequest) Kind() RequestKind { return RequestKindInquiry }

// Validate implements Request.
func (r *InquiryRequest) Validate() error {
	if r.InquiryID == "" {
		return Validationf("inquiry request missing inquiry id")
	}
	if r.Capability == "" {
		return Validationf("inquiry request missing capability")
	}
	return nil
}

// ProposalRequest asks an agent to consider a recruitment proposal.
type ProposalRequest struct {
	ProposalID           string        `json:"proposal_id"`
	TaskID               string        `json:"task_id"`
	Role                 string        `json:"role"`
	Responsibilities     []string      `json:"responsibilities,omitempty"`
	RequiredCapabilities []string      `json:"required_capabilities,omitempty"`
	ExpectedDuration     time.Duration `json:"expected_duration,omitempty"`
	ExpiresAt            time.Time     `json:"expires_at"`
}

// Kind implements Request.
func (r *ProposalRequest) Kind() RequestKind { return RequestKindProposal }

// Validate implements Request.
func (r *ProposalRequest) Validate() error {
	if r.ProposalID == "" || r.TaskID == "" {
		return Validationf("proposal request missing proposal or task id")
	}
	if r.Role == "" {
		return Validationf("proposal request missing role")
	}
	return nil
}

// BallotRequest asks an agent to pick one choice on an open voting.
type BallotRequest struct {
	VotingID string   `json:"voting_id"`
	Topic    string   `json:"topic"`
	Choices  []string `json:"choices"`
	Deadline time.Time `json:"deadline"`
}

// Kind implements Request.
func (r *BallotRequest) Kind() RequestKind { return RequestKindBallot }

// Validate implements Request.
func (r *BallotRequest) Validate() error {
	if r.VotingID == "" {
		return Validationf("ballot request missing voting id")
	}
	if len(r.Choices) < 2 {
		return Validationf("ballot request needs at least two choices")
	}
	return nil
}

// SubtaskRequest asks an agent to execute a delegated subtask.
type SubtaskRequest struct {
	SubtaskID            string   `json:"subtask_id"`
	TaskID               string   `json:"task_id"`
	Description          string   `json:"description"`
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
}

// Kind implements Request.
func (r *SubtaskRequest) Kind() RequestKind { return RequestKindSubtask }

// Validate implements Request.
func (r *SubtaskRequest) Validate() error {
	if r.SubtaskID == "" || r.TaskID == "" {
		return Validationf("subtask request missing subtask or task id")
	}
	if r.Description == "" {
		return Validationf("subtask request missing description")
	}
	return nil
}

// Response is what an agent returns for any request kind. Fields that do not
// apply to a given kind are left at their zero value.
type Response struct {
	// Accepted reports whether the agent accepted the request (availability
	// for inquiries, agreement for proposals).
	Accepted bool `json:"accepted"`

	// Choice is the selected choice for ballot requests.
	Choice string `json:"choice,omitempty"`

	// Confidence is the agent's confidence in its answer, in [0,1].
	Confidence float64 `json:"confidence,omitempty"`

	// Commitment is the commitment level offered for inquiries
	// (tentative, firm, guaranteed).
	Commitment string `json:"commitment,omitempty"`

	// Content is free-text output, such as a counter-proposal reason or a
	// subtask result.
	Content string `json:"content,omitempty"`

	// Metadata carries kind-specific extras.
	Metadata map[string]any `json:"metadata,omitempty"`
}
