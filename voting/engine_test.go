package voting

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentswarm/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(DefaultEngineConfig(), nil, zap.NewNop())
}

func TestOpenValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Open(ctx, "", []string{"a", "b"}, []string{"v1"}, 0)
	assert.True(t, types.IsValidation(err))

	_, err = e.Open(ctx, "topic", []string{"a", "a"}, []string{"v1"}, 0)
	assert.True(t, types.IsValidation(err), "duplicate choices must not count twice")

	_, err = e.Open(ctx, "topic", []string{"a", "b"}, nil, 0)
	assert.True(t, types.IsValidation(err))
}

func TestCastUpsertsBallot(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	v, err := e.Open(ctx, "t", []string{"a", "b"}, []string{"v1", "v2", "v3"}, time.Minute)
	require.NoError(t, err)

	_, err = e.Cast(ctx, v.ID, "v1", "a")
	require.NoError(t, err)
	got, err := e.Cast(ctx, v.ID, "v1", "b")
	require.NoError(t, err)

	require.Len(t, got.Ballots, 1)
	assert.Equal(t, "b", got.Ballots["v1"].Choice)
}

func TestCastRejectsIneligibleAndUndeclared(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	v, err := e.Open(ctx, "t", []string{"a", "b"}, []string{"v1", "v2", "v3"}, time.Minute)
	require.NoError(t, err)

	_, err = e.Cast(ctx, v.ID, "stranger", "a")
	assert.True(t, types.IsValidation(err))

	_, err = e.Cast(ctx, v.ID, "v1", "c")
	assert.True(t, types.IsValidation(err))

	_, err = e.Cast(ctx, "missing", "v1", "a")
	assert.True(t, types.IsNotFound(err))
}

func TestQuorumWithFourVoters(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Three choices keep the leading count below a strict majority until
	// everyone has voted, exercising the full-participation close.
	v, err := e.Open(ctx, "t", []string{"x", "y", "z"}, []string{"v1", "v2", "v3", "v4"}, time.Minute)
	require.NoError(t, err)

	got, err := e.Cast(ctx, v.ID, "v1", "x")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status, "one ballot must not close a four-voter voting")

	got, err = e.Cast(ctx, v.ID, "v2", "y")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status, "two ballots must not close a four-voter voting")

	got, err = e.Cast(ctx, v.ID, "v3", "z")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status, "a 1-1-1 split has no strict majority")

	got, err = e.Cast(ctx, v.ID, "v4", "x")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, got.Status, "full participation closes immediately")
	require.NotNil(t, got.Results)
	assert.Equal(t, CloseFullParticipation, got.Results.CloseReason)
	assert.Equal(t, "x", got.Results.TopChoice)
}

func TestEarlyMajorityWithFiveVoters(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	voters := []string{"v1", "v2", "v3", "v4", "v5"}
	v, err := e.Open(ctx, "t", []string{"Approve", "Reject"}, voters, time.Minute)
	require.NoError(t, err)

	_, err = e.Cast(ctx, v.ID, "v1", "Approve")
	require.NoError(t, err)
	_, err = e.Cast(ctx, v.ID, "v2", "Approve")
	require.NoError(t, err)
	got, err := e.Cast(ctx, v.ID, "v3", "Reject")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status, "three of five is below the 0.66 quorum")

	// ceil(0.66*5)=4 ballots with a 3-1 lead closes before the fifth vote.
	got, err = e.Cast(ctx, v.ID, "v4", "Approve")
	require.NoError(t, err)
	require.Equal(t, StatusClosed, got.Status)
	assert.Equal(t, CloseEarlyMajority, got.Results.CloseReason)
	assert.Equal(t, "Approve", got.Results.TopChoice)
	assert.Equal(t, 4, got.Results.TotalCast)

	_, err = e.Cast(ctx, v.ID, "v5", "Reject")
	assert.True(t, types.IsInvalidState(err), "the fifth vote arrives after closure")
}

func TestTallyIncludesZeroVoteChoicesAndDeclaredOrderTieBreak(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	v, err := e.Open(ctx, "t", []string{"b_choice", "a_choice", "unused"}, []string{"v1", "v2"}, time.Minute)
	require.NoError(t, err)

	_, err = e.Cast(ctx, v.ID, "v1", "a_choice")
	require.NoError(t, err)
	got, err := e.Cast(ctx, v.ID, "v2", "b_choice")
	require.NoError(t, err)

	require.Equal(t, StatusClosed, got.Status)
	assert.Equal(t, 0, got.Results.Counts["unused"])
	assert.Equal(t, "b_choice", got.Results.TopChoice, "ties resolve to the first declared choice")
}

func TestOnCloseHookFiresOnceAndPanicsAreContained(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	var calls atomic.Int32
	v, err := e.Open(ctx, "t", []string{"a", "b"}, []string{"v1"}, time.Minute,
		func(Results) { panic("boom") },
		func(r Results) {
			calls.Add(1)
			assert.Equal(t, "a", r.TopChoice)
		},
	)
	require.NoError(t, err)

	_, err = e.Cast(ctx, v.ID, "v1", "a")
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load(), "a panicking sibling hook must not block others")
}

func TestSweepClosesExpired(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	v, err := e.Open(ctx, "t", []string{"a", "b"}, []string{"v1", "v2"}, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	e.Sweep(ctx)

	got, err := e.Get(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, got.Status)
	assert.Equal(t, CloseExpired, got.Results.CloseReason)
}

func TestCastOnExpiredClosesAndReportsExpired(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	v, err := e.Open(ctx, "t", []string{"a", "b"}, []string{"v1", "v2"}, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	_, err = e.Cast(ctx, v.ID, "v1", "a")
	assert.True(t, types.IsExpired(err))

	got, err := e.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, got.Status)
}
