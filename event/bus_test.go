package event

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestStream_PublishDeliversToAllSubscribers(t *testing.T) {
	s := NewStream[CapabilityEvent]("test", zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(2)

	var mu sync.Mutex
	got := make([]string, 0, 2)

	for i := 0; i < 2; i++ {
		s.Subscribe(func(ev CapabilityEvent) {
			mu.Lock()
			got = append(got, ev.Capability)
			mu.Unlock()
			wg.Done()
		})
	}

	s.Publish(CapabilityEvent{Capability: "web_research", Timestamp: time.Now()})
	wg.Wait()

	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	for _, c := range got {
		if c != "web_research" {
			t.Errorf("unexpected payload %q", c)
		}
	}
}

func TestStream_Unsubscribe(t *testing.T) {
	s := NewStream[VotingEvent]("test", zap.NewNop())

	delivered := make(chan struct{}, 1)
	id := s.Subscribe(func(VotingEvent) { delivered <- struct{}{} })
	s.Unsubscribe(id)

	s.Publish(VotingEvent{VotingID: "v1"})

	select {
	case <-delivered:
		t.Error("unsubscribed handler was invoked")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStream_PanickingHandlerDoesNotAffectOthers(t *testing.T) {
	s := NewStream[BreakdownEvent]("test", zap.NewNop())

	s.Subscribe(func(BreakdownEvent) { panic("boom") })

	done := make(chan struct{}, 1)
	s.Subscribe(func(BreakdownEvent) { done <- struct{}{} })

	s.Publish(BreakdownEvent{BreakdownID: "b1"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("healthy handler never ran")
	}
}

func TestNewBus_AllStreamsInitialized(t *testing.T) {
	bus := NewBus(zap.NewNop())

	if bus.CapabilityRegistered == nil || bus.VotingClosed == nil ||
		bus.AdvertisementExpired == nil || bus.RecruitmentAdvanced == nil ||
		bus.BreakdownDecided == nil || bus.ContractStatusChanged == nil {
		t.Fatal("bus has uninitialized streams")
	}
}
