package event

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stream is a single-topic publish/subscribe channel with a typed payload.
// Handlers run on their own goroutines; a panicking handler is recovered and
// logged so one bad subscriber never takes down a publisher.
type Stream[T any] struct {
	mu     sync.RWMutex
	subs   map[string]func(T)
	seq    int
	logger *zap.Logger
	name   string
}

// NewStream creates a stream for payload type T.
func NewStream[T any](name string, logger *zap.Logger) *Stream[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream[T]{
		subs:   make(map[string]func(T)),
		logger: logger.With(zap.String("stream", name)),
		name:   name,
	}
}

// Subscribe registers a handler and returns a subscription id.
func (s *Stream[T]) Subscribe(fn func(T)) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	id := fmt.Sprintf("%s-sub-%d", s.name, s.seq)
	s.subs[id] = fn
	return id
}

// Unsubscribe removes a subscription.
func (s *Stream[T]) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// Publish delivers the payload to every subscriber asynchronously.
func (s *Stream[T]) Publish(v T) {
	s.mu.RLock()
	handlers := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		handlers = append(handlers, fn)
	}
	s.mu.RUnlock()

	for _, fn := range handlers {
		go func(fn func(T)) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("event handler panicked", zap.Any("panic", r))
				}
			}()
			fn(v)
		}(fn)
	}
}

// CapabilityEvent is published when a capability is registered or updated in
// the registry, or when a provider is attached to or detached from it.
type CapabilityEvent struct {
	Capability string
	AgentID    string
	New        bool
	Timestamp  time.Time
}

// AdvertisementEvent is published on advertisement broadcast, update, and
// expiry.
type AdvertisementEvent struct {
	AdvertisementID string
	AgentID         string
	Capabilities    []string
	ValidUntil      time.Time
	Timestamp       time.Time
}

// InquiryEvent is published when a capability inquiry is created, answered,
// or swept after expiry.
type InquiryEvent struct {
	InquiryID  string
	FromAgent  string
	Capability string
	Timestamp  time.Time
}

// RecruitmentEvent is published on each recruitment stage transition.
type RecruitmentEvent struct {
	TaskID    string
	AgentID   string
	Stage     string
	Accepted  bool
	Timestamp time.Time
}

// ContractEvent is published on every team-contract status change.
type ContractEvent struct {
	ContractID string
	TeamID     string
	From       string
	To         string
	Timestamp  time.Time
}

// VotingEvent is published when a voting opens or closes.
type VotingEvent struct {
	VotingID  string
	Topic     string
	Closed    bool
	TopChoice string
	Reason    string
	Timestamp time.Time
}

// BreakdownEvent is published when a task breakdown is approved or rejected.
type BreakdownEvent struct {
	BreakdownID  string
	TaskID       string
	Approved     bool
	OverallScore float64
	Timestamp    time.Time
}

// Bus aggregates one typed stream per lifecycle topic. A single Bus instance
// is wired at the composition root and handed to every service.
type Bus struct {
	CapabilityRegistered  *Stream[CapabilityEvent]
	ProviderAdded         *Stream[CapabilityEvent]
	ProviderRemoved       *Stream[CapabilityEvent]
	AdvertisementCreated  *Stream[AdvertisementEvent]
	AdvertisementUpdated  *Stream[AdvertisementEvent]
	AdvertisementExpired  *Stream[AdvertisementEvent]
	InquiryCreated        *Stream[InquiryEvent]
	InquiryExpired        *Stream[InquiryEvent]
	RecruitmentAdvanced   *Stream[RecruitmentEvent]
	ContractStatusChanged *Stream[ContractEvent]
	VotingOpened          *Stream[VotingEvent]
	VotingClosed          *Stream[VotingEvent]
	BreakdownDecided      *Stream[BreakdownEvent]
}

// NewBus creates a bus with all streams initialized.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		CapabilityRegistered:  NewStream[CapabilityEvent]("capability_registered", logger),
		ProviderAdded:         NewStream[CapabilityEvent]("provider_added", logger),
		ProviderRemoved:       NewStream[CapabilityEvent]("provider_removed", logger),
		AdvertisementCreated:  NewStream[AdvertisementEvent]("advertisement_created", logger),
		AdvertisementUpdated:  NewStream[AdvertisementEvent]("advertisement_updated", logger),
		AdvertisementExpired:  NewStream[AdvertisementEvent]("advertisement_expired", logger),
		InquiryCreated:        NewStream[InquiryEvent]("inquiry_created", logger),
		InquiryExpired:        NewStream[InquiryEvent]("inquiry_expired", logger),
		RecruitmentAdvanced:   NewStream[RecruitmentEvent]("recruitment_advanced", logger),
		ContractStatusChanged: NewStream[ContractEvent]("contract_status_changed", logger),
		VotingOpened:          NewStream[VotingEvent]("voting_opened", logger),
		VotingClosed:          NewStream[VotingEvent]("voting_closed", logger),
		BreakdownDecided:      NewStream[BreakdownEvent]("breakdown_decided", logger),
	}
}
