package advertise

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

func newTestStore(t *testing.T) *Store {
	t.Helper()
	kv := store.NewMemoryKV()
	t.Cleanup(func() { _ = kv.Close() })
	return NewStore(DefaultStoreConfig(), kv, nil, zap.NewNop())
}

func TestCreateAppliesDefaultValidity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	before := time.Now()
	ad, err := s.Create(ctx, "a1", "Researcher", []AdvertisedCapability{
		{Name: "web_research", ConfidenceLevel: "high", ConfidenceScore: 0.9},
	}, Availability{Status: AvailabilityAvailable}, 0)
	require.NoError(t, err)

	assert.NotEmpty(t, ad.ID)
	assert.WithinDuration(t, before.Add(time.Hour), ad.ValidUntil, 2*time.Second)
	assert.False(t, ad.Expired)
}

func TestCreateValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "", "X", []AdvertisedCapability{{Name: "c"}}, Availability{}, 0)
	assert.True(t, types.IsValidation(err))

	_, err = s.Create(ctx, "a1", "X", nil, Availability{}, 0)
	assert.True(t, types.IsValidation(err))
}

func TestFindProvidersUsesMostRecentValid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old, err := s.Create(ctx, "a1", "Researcher", []AdvertisedCapability{
		{Name: "web_research", ConfidenceScore: 0.5},
	}, Availability{Status: AvailabilityAvailable}, time.Hour)
	require.NoError(t, err)

	// A later advertisement supersedes the earlier one for lookups.
	time.Sleep(5 * time.Millisecond)
	newer, err := s.Create(ctx, "a1", "Researcher", []AdvertisedCapability{
		{Name: "web_research", ConfidenceScore: 0.9},
	}, Availability{Status: AvailabilityAvailable}, time.Hour)
	require.NoError(t, err)

	matches := s.FindProviders(ctx, "web_research", 0)
	require.Len(t, matches, 1)
	assert.Equal(t, newer.ID, matches[0].AdvertisementID)
	assert.NotEqual(t, old.ID, matches[0].AdvertisementID)
	assert.InDelta(t, 0.9, matches[0].Capability.ConfidenceScore, 1e-9)
}

func TestFindProvidersExcludesExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// The most recent advertisement for a1 is already past its validity, so
	// the agent must not be returned even though an older valid one exists
	// for a different capability under the same name set.
	_, err := s.Create(ctx, "a1", "Researcher", []AdvertisedCapability{
		{Name: "web_research", ConfidenceScore: 0.9},
	}, Availability{Status: AvailabilityAvailable}, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	matches := s.FindProviders(ctx, "web_research", 0)
	assert.Empty(t, matches)

	// The record itself is retained.
	stats := s.GetStats(ctx)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Expired)
}

func TestFindProvidersFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "a1", "A", []AdvertisedCapability{
		{Name: "coding", ConfidenceScore: 0.4},
	}, Availability{Status: AvailabilityAvailable}, time.Hour)
	require.NoError(t, err)
	_, err = s.Create(ctx, "a2", "B", []AdvertisedCapability{
		{Name: "coding", ConfidenceScore: 0.8},
	}, Availability{Status: AvailabilityUnavailable}, time.Hour)
	require.NoError(t, err)
	_, err = s.Create(ctx, "a3", "C", []AdvertisedCapability{
		{Name: "coding", ConfidenceScore: 0.9},
	}, Availability{Status: AvailabilityLimited}, time.Hour)
	require.NoError(t, err)

	matches := s.FindProviders(ctx, "coding", 0.5, AvailabilityAvailable, AvailabilityLimited)
	require.Len(t, matches, 1)
	assert.Equal(t, "a3", matches[0].AgentID)
}

func TestUpdateDiffsCapabilityIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ad, err := s.Create(ctx, "a1", "A", []AdvertisedCapability{
		{Name: "coding", ConfidenceScore: 0.7},
		{Name: "review", ConfidenceScore: 0.6},
	}, Availability{Status: AvailabilityAvailable}, time.Hour)
	require.NoError(t, err)

	caps := []AdvertisedCapability{
		{Name: "coding", ConfidenceScore: 0.8},
		{Name: "testing", ConfidenceScore: 0.5},
	}
	updated, err := s.UpdateAdvertisement(ctx, ad.ID, Update{Capabilities: &caps})
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(ad.UpdatedAt) || updated.UpdatedAt.Equal(ad.UpdatedAt))

	assert.Len(t, s.FindProviders(ctx, "testing", 0), 1)
	assert.Empty(t, s.FindProviders(ctx, "review", 0))
}

func TestUpdateErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpdateAdvertisement(ctx, "missing", Update{})
	assert.True(t, types.IsNotFound(err))

	ad, err := s.Create(ctx, "a1", "A", []AdvertisedCapability{
		{Name: "coding"},
	}, Availability{Status: AvailabilityAvailable}, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	_, err = s.UpdateAdvertisement(ctx, ad.ID, Update{})
	assert.True(t, types.IsExpired(err))
}

func TestSweepMarksButNeverDeletes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ad, err := s.Create(ctx, "a1", "A", []AdvertisedCapability{
		{Name: "coding"},
	}, Availability{Status: AvailabilityAvailable}, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	s.Sweep(ctx)

	got, err := s.Get(ctx, ad.ID)
	require.NoError(t, err)
	assert.True(t, got.Expired)

	// A second sweep is a no-op.
	s.Sweep(ctx)
	assert.Equal(t, 1, s.GetStats(ctx).Total)
}

func TestListByAgentOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Create(ctx, "a1", "A", []AdvertisedCapability{{Name: "x"}}, Availability{}, time.Hour)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := s.Create(ctx, "a1", "A", []AdvertisedCapability{{Name: "y"}}, Availability{}, time.Hour)
	require.NoError(t, err)

	ads := s.ListByAgent(ctx, "a1")
	require.Len(t, ads, 2)
	assert.Equal(t, second.ID, ads[0].ID)
	assert.Equal(t, first.ID, ads[1].ID)
}
