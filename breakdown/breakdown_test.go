package breakdown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentswarm/capability"
	"github.com/BaSui01/agentswarm/types"
	"github.com/BaSui01/agentswarm/voting"
)

func newTestService(t *testing.T) (*Service, *capability.Registry) {
	t.Helper()
	registry := capability.NewRegistry(capability.DefaultRegistryConfig(), nil, zap.NewNop())
	votes := voting.NewEngine(voting.DefaultEngineConfig(), nil, zap.NewNop())
	return NewService(DefaultServiceConfig(), registry, votes, nil, zap.NewNop()), registry
}

func TestInitiateSeedsDecomposition(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	b, err := s.Initiate(ctx, "task-1", "research and summarize the market",
		"A1", []string{"A2", "A3"}, []string{"web_research", "data_analysis", "writing"})
	require.NoError(t, err)

	// One planning subtask, three capability subtasks, one integration
	// subtask since more than two capabilities are required.
	require.Len(t, b.Subtasks, 5)
	assert.Equal(t, StatusDraft, b.Status)

	byID := make(map[string]Subtask, len(b.Subtasks))
	for _, st := range b.Subtasks {
		byID[st.ID] = st
	}
	assert.Empty(t, byID["plan"].Prerequisites)
	assert.Equal(t, []string{"plan"}, byID["cap-1"].Prerequisites)
	assert.Len(t, byID["integrate"].Prerequisites, 3)
}

func TestInitiateWithTwoCapabilitiesSkipsIntegration(t *testing.T) {
	s, _ := newTestService(t)

	b, err := s.Initiate(context.Background(), "task-1", "small task", "A1", nil,
		[]string{"coding", "review"})
	require.NoError(t, err)
	assert.Len(t, b.Subtasks, 3)
	for _, st := range b.Subtasks {
		assert.NotEqual(t, "integrate", st.ID)
	}
}

func TestUpdateSubtasksValidation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	b, err := s.Initiate(ctx, "task-1", "t", "A1", nil, nil)
	require.NoError(t, err)

	_, err = s.UpdateSubtasks(ctx, b.ID, nil)
	assert.True(t, types.IsValidation(err))

	_, err = s.UpdateSubtasks(ctx, b.ID, []Subtask{
		{ID: "a", Description: "x"},
		{ID: "a", Description: "y"},
	})
	assert.True(t, types.IsValidation(err), "duplicate ids")

	_, err = s.UpdateSubtasks(ctx, b.ID, []Subtask{
		{ID: "a", Description: "x", Prerequisites: []string{"ghost"}},
	})
	assert.True(t, types.IsValidation(err), "unknown prerequisite")

	_, err = s.UpdateSubtasks(ctx, b.ID, []Subtask{
		{ID: "a", Prerequisites: []string{"b"}},
		{ID: "b", Prerequisites: []string{"a"}},
	})
	assert.True(t, types.IsValidation(err), "prerequisite cycle")
}

type ballot struct {
	agent  string
	choice string
}

func voteAll(t *testing.T, s *Service, breakdownID string, ballots []ballot) {
	t.Helper()
	for _, b := range ballots {
		require.NoError(t, s.Vote(context.Background(), breakdownID, b.agent, b.choice))
	}
}

func TestApprovalComputesMetrics(t *testing.T) {
	s, registry := newTestService(t)
	ctx := context.Background()

	require.NoError(t, registry.Register(ctx, capability.Capability{
		Name: "web_research", Description: "search and collect sources",
	}, "A2"))

	b, err := s.Initiate(ctx, "task-1", "research the market and summarize findings",
		"A1", []string{"A2"}, nil)
	require.NoError(t, err)

	_, err = s.UpdateSubtasks(ctx, b.ID, []Subtask{
		{ID: "s1", Title: "Step 1: Research", Description: "research the market using public sources and collect findings",
			RequiredCapabilities: []string{"web_research"}, SuggestedAssignee: "A2"},
		{ID: "s2", Title: "Step 2: Summarize", Description: "summarize the research findings into a short report",
			Prerequisites: []string{"s1"}},
		{ID: "s3", Title: "Step 3: Review", Description: "review the summary for accuracy and completeness",
			Prerequisites: []string{"s2"}},
	})
	require.NoError(t, err)

	_, err = s.StartVoting(ctx, b.ID)
	require.NoError(t, err)
	voteAll(t, s, b.ID, []ballot{{"A1", ChoiceApprove}, {"A2", ChoiceApprove}})

	got, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.NotNil(t, got.Metrics)

	m := got.Metrics
	assert.Greater(t, m.Completeness, 0.2)
	assert.LessOrEqual(t, m.Completeness, 1.0)
	assert.Equal(t, 1.0, m.Complexity, "three subtasks sit inside the ideal band")
	assert.Equal(t, 1.0, m.Clarity)
	assert.Equal(t, 0.9, m.Coherence, "step markers earn the ordering bonus")
	expected := 0.35*m.Completeness + 0.2*m.Complexity + 0.25*m.Clarity + 0.2*m.Coherence
	assert.InDelta(t, expected, m.OverallScore, 1e-9)

	// A single linear chain: one sink out of three subtasks.
	assert.InDelta(t, 1.0/3.0, m.ParallelizationScore, 1e-9)
	// The only assigned required capability is provided by its assignee.
	assert.InDelta(t, 1.0, m.CapabilityMatchScore, 1e-9)
}

func TestRejectionCycleClearsBallots(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	b, err := s.Initiate(ctx, "task-1", "t", "A1", []string{"A2", "A3"}, nil)
	require.NoError(t, err)

	_, err = s.StartVoting(ctx, b.ID)
	require.NoError(t, err)
	voteAll(t, s, b.ID, []ballot{
		{"A1", ChoiceReject}, {"A3", ChoiceApprove}, {"A2", ChoiceReject},
	})

	got, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, got.Status)
	assert.Nil(t, got.Metrics)

	// Revising a rejected breakdown clears the prior ballots and reverts to
	// draft, ready for a fresh vote.
	got, err = s.UpdateSubtasks(ctx, b.ID, []Subtask{{ID: "redo", Description: "second attempt"}})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, got.Status)
	assert.Empty(t, got.VotingID)

	_, err = s.StartVoting(ctx, b.ID)
	require.NoError(t, err)
}

func TestStartVotingOnlyFromDraft(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	b, err := s.Initiate(ctx, "task-1", "t", "A1", []string{"A2"}, nil)
	require.NoError(t, err)

	_, err = s.StartVoting(ctx, b.ID)
	require.NoError(t, err)

	_, err = s.StartVoting(ctx, b.ID)
	assert.True(t, types.IsInvalidState(err))

	// No revision while the vote is open.
	_, err = s.UpdateSubtasks(ctx, b.ID, []Subtask{{ID: "x", Description: "y"}})
	assert.True(t, types.IsInvalidState(err))
}

func TestVoteOutsideVoting(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	b, err := s.Initiate(ctx, "task-1", "t", "A1", nil, nil)
	require.NoError(t, err)

	err = s.Vote(ctx, b.ID, "A1", ChoiceApprove)
	assert.True(t, types.IsInvalidState(err))

	err = s.Vote(ctx, "missing", "A1", ChoiceApprove)
	assert.True(t, types.IsNotFound(err))
}

func TestVotingWindowConfigured(t *testing.T) {
	registry := capability.NewRegistry(capability.DefaultRegistryConfig(), nil, zap.NewNop())
	votes := voting.NewEngine(voting.DefaultEngineConfig(), nil, zap.NewNop())
	s := NewService(&ServiceConfig{VotingWindow: time.Minute}, registry, votes, nil, zap.NewNop())
	ctx := context.Background()

	b, err := s.Initiate(ctx, "task-1", "t", "A1", []string{"A2"}, nil)
	require.NoError(t, err)
	b, err = s.StartVoting(ctx, b.ID)
	require.NoError(t, err)

	v, err := votes.Get(ctx, b.VotingID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), v.ExpiresAt, 2*time.Second)
}
