package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentswarm/event"
)

// waitForCounter polls until the async event dispatch lands or times out.
func waitForCounter(t *testing.T, c prometheus.Counter, want float64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(c) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, want, testutil.ToFloat64(c))
}

func TestCollectorCountsBusEvents(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector("test", registry, zap.NewNop())
	bus := event.NewBus(zap.NewNop())
	c.Observe(bus)

	bus.ProviderAdded.Publish(event.CapabilityEvent{Capability: "coding", AgentID: "A1"})
	bus.ProviderAdded.Publish(event.CapabilityEvent{Capability: "review", AgentID: "A1"})
	bus.VotingClosed.Publish(event.VotingEvent{VotingID: "v1", Reason: "early_majority"})

	waitForCounter(t, c.providerChanges.WithLabelValues("added"), 2)
	waitForCounter(t, c.votingsClosed.WithLabelValues("early_majority"), 1)
}

func TestCollectorSeparatesBreakdownDecisions(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector("test", registry, zap.NewNop())
	bus := event.NewBus(zap.NewNop())
	c.Observe(bus)

	bus.BreakdownDecided.Publish(event.BreakdownEvent{BreakdownID: "b1", Approved: true, OverallScore: 0.8})
	bus.BreakdownDecided.Publish(event.BreakdownEvent{BreakdownID: "b2", Approved: false})

	waitForCounter(t, c.breakdownDecisions.WithLabelValues("approved"), 1)
	waitForCounter(t, c.breakdownDecisions.WithLabelValues("rejected"), 1)

	count := testutil.CollectAndCount(c.breakdownScore)
	require.Equal(t, 1, count)
}
