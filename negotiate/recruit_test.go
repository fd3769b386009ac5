package negotiate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentswarm/store"
	"github.com/BaSui01/agentswarm/types"
)

func newTestRecruiter(t *testing.T) *Recruiter {
	t.Helper()
	kv := store.NewMemoryKV()
	t.Cleanup(func() { _ = kv.Close() })
	return NewRecruiter(DefaultRecruiterConfig(), nil, kv, nil, zap.NewNop())
}

func sendTestProposal(t *testing.T, r *Recruiter, taskID, agent string) *Recruitment {
	t.Helper()
	ctx := context.Background()

	_, err := r.StartRecruitment(ctx, taskID, agent, "inq-1")
	require.NoError(t, err)
	rec, err := r.SendProposal(ctx, Proposal{
		TaskID:               taskID,
		TargetAgent:          agent,
		Role:                 "researcher",
		RequiredCapabilities: []string{"web_research", "summarization"},
		ExpectedDuration:     2 * time.Hour,
		Compensation:         100,
	})
	require.NoError(t, err)
	return rec
}

func TestRecruitmentHappyPath(t *testing.T) {
	r := newTestRecruiter(t)
	ctx := context.Background()

	rec, err := r.StartRecruitment(ctx, "task-1", "A1", "inq-1")
	require.NoError(t, err)
	assert.Equal(t, StageInquirySent, rec.Stage)

	rec, err = r.SendProposal(ctx, Proposal{TaskID: "task-1", TargetAgent: "A1", Role: "researcher"})
	require.NoError(t, err)
	assert.Equal(t, StageProposalSent, rec.Stage)
	assert.NotEmpty(t, rec.Proposal.ID)
	assert.False(t, rec.Proposal.ExpiresAt.IsZero())

	rec, err = r.Accept(ctx, "task-1", "A1")
	require.NoError(t, err)
	assert.Equal(t, StageAccepted, rec.Stage)
}

func TestRecruitmentStageGuards(t *testing.T) {
	r := newTestRecruiter(t)
	ctx := context.Background()

	// A proposal before any inquiry has nowhere to land.
	_, err := r.SendProposal(ctx, Proposal{TaskID: "task-1", TargetAgent: "A1", Role: "x"})
	assert.True(t, types.IsNotFound(err))

	_, err = r.StartRecruitment(ctx, "task-1", "A1", "inq-1")
	require.NoError(t, err)

	// Accepting straight from INQUIRY_SENT skips the proposal step.
	_, err = r.Accept(ctx, "task-1", "A1")
	assert.True(t, types.IsInvalidState(err))

	// Re-starting a live recruitment is rejected.
	_, err = r.StartRecruitment(ctx, "task-1", "A1", "inq-2")
	assert.True(t, types.IsInvalidState(err))
}

func TestTerminalTransitionsAreIdempotent(t *testing.T) {
	r := newTestRecruiter(t)
	ctx := context.Background()

	sendTestProposal(t, r, "task-1", "A1")
	rec, err := r.Accept(ctx, "task-1", "A1")
	require.NoError(t, err)
	require.Equal(t, StageAccepted, rec.Stage)

	// Re-delivered accept and rejection are no-ops, not errors.
	rec, err = r.Accept(ctx, "task-1", "A1")
	require.NoError(t, err)
	assert.Equal(t, StageAccepted, rec.Stage)

	rec, err = r.Reject(ctx, "task-1", "A1", "late rejection")
	require.NoError(t, err)
	assert.Equal(t, StageAccepted, rec.Stage)
	assert.Empty(t, rec.Outcome)
}

func TestCounterProposalMergesWithinThreshold(t *testing.T) {
	r := newTestRecruiter(t)
	ctx := context.Background()

	rec := sendTestProposal(t, r, "task-1", "A1")
	originalID := rec.Proposal.ID

	comp := 110.0
	rec, err := r.SubmitCounterProposal(ctx, CounterProposal{
		ProposalID:            originalID,
		FromAgent:             "A1",
		RequestedCompensation: &comp,
	})
	require.NoError(t, err)

	assert.Equal(t, StageProposalSent, rec.Stage, "a merged counter re-negotiates, it does not terminate")
	assert.NotEqual(t, originalID, rec.Proposal.ID)
	assert.InDelta(t, 110.0, rec.Proposal.Compensation, 1e-9)
	assert.Len(t, rec.Proposal.RequiredCapabilities, 2)

	// The merged proposal id is now the one that can be countered or
	// accepted.
	rec, err = r.Accept(ctx, "task-1", "A1")
	require.NoError(t, err)
	assert.Equal(t, StageAccepted, rec.Stage)
}

func TestCounterProposalIrreconcilable(t *testing.T) {
	r := newTestRecruiter(t)
	ctx := context.Background()

	rec := sendTestProposal(t, r, "task-1", "A1")

	// Dropping every required capability blows past the compromise
	// threshold regardless of the other terms.
	rec, err := r.SubmitCounterProposal(ctx, CounterProposal{
		ProposalID:       rec.Proposal.ID,
		FromAgent:        "A1",
		DropCapabilities: []string{"web_research", "summarization"},
	})
	require.NoError(t, err)
	assert.Equal(t, StageRejected, rec.Stage)
	assert.NotEmpty(t, rec.Outcome)
}

func TestCounterProposalOnUnknownProposal(t *testing.T) {
	r := newTestRecruiter(t)

	_, err := r.SubmitCounterProposal(context.Background(), CounterProposal{ProposalID: "missing"})
	assert.True(t, types.IsNotFound(err))
}

func TestCreateTeamContractRequiresAcceptedRoles(t *testing.T) {
	r := newTestRecruiter(t)
	ctx := context.Background()

	participants := []Participant{{AgentID: "A1", Role: "researcher"}}

	// No accepted recruitment yet for the researcher role.
	_, err := r.CreateTeamContract(ctx, "task-1", "team-1", participants, Terms{StartTime: time.Now()}, nil)
	assert.True(t, types.IsInvalidState(err))

	sendTestProposal(t, r, "task-1", "A1")
	_, err = r.Accept(ctx, "task-1", "A1")
	require.NoError(t, err)

	c, err := r.CreateTeamContract(ctx, "task-1", "team-1", participants, Terms{StartTime: time.Now()}, []string{"report"})
	require.NoError(t, err)
	assert.Equal(t, ContractDraft, c.Status)
	require.Len(t, c.StatusHistory, 1)
	assert.Equal(t, ContractDraft, c.StatusHistory[0].To)
}

func TestContractStatusMachine(t *testing.T) {
	r := newTestRecruiter(t)
	ctx := context.Background()

	sendTestProposal(t, r, "task-1", "A1")
	_, err := r.Accept(ctx, "task-1", "A1")
	require.NoError(t, err)

	c, err := r.CreateTeamContract(ctx, "task-1", "team-1",
		[]Participant{{AgentID: "A1", Role: "researcher"}}, Terms{StartTime: time.Now()}, nil)
	require.NoError(t, err)

	// Completing from draft skips activation.
	_, err = r.CompleteContract(ctx, c.ID)
	assert.True(t, types.IsInvalidState(err))

	c, err = r.ActivateContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, ContractActive, c.Status)

	c, err = r.CompleteContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, ContractCompleted, c.Status)
	assert.Len(t, c.StatusHistory, 3)

	// Terminal contracts cannot be terminated again.
	_, err = r.TerminateContract(ctx, c.ID, "too late")
	assert.True(t, types.IsInvalidState(err))
}

func TestTerminateFromAnyNonTerminalState(t *testing.T) {
	r := newTestRecruiter(t)
	ctx := context.Background()

	sendTestProposal(t, r, "task-1", "A1")
	_, err := r.Accept(ctx, "task-1", "A1")
	require.NoError(t, err)

	c, err := r.CreateTeamContract(ctx, "task-1", "team-1",
		[]Participant{{AgentID: "A1", Role: "researcher"}}, Terms{StartTime: time.Now()}, nil)
	require.NoError(t, err)

	c, err = r.TerminateContract(ctx, c.ID, "funding pulled")
	require.NoError(t, err)
	assert.Equal(t, ContractTerminated, c.Status)
	assert.Equal(t, "funding pulled", c.StatusHistory[len(c.StatusHistory)-1].Reason)
}
