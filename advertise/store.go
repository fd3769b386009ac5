package advertise

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentswarm/event"
	"github.com/BaSui01/agentswarm/store"
	"github.com/BaSui01/agentswarm/types"
)

// kvBucket is the persistence bucket for advertisement records.
const kvBucket = "advertisements"

// StoreConfig holds configuration for the advertisement store.
type StoreConfig struct {
	// DefaultValidity is applied when a broadcast gives no duration.
	DefaultValidity time.Duration `json:"default_validity" yaml:"default_validity"`

	// SweepInterval is how often the expiry sweep runs.
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
}

// DefaultStoreConfig returns a StoreConfig with the standard windows.
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		DefaultValidity: time.Hour,
		SweepInterval:   60 * time.Second,
	}
}

// Store holds advertisements and a capability→provider index. The sweep
// marks and announces expiry but never deletes; expired advertisements are
// retained as history.
type Store struct {
	mu sync.RWMutex

	// ads stores advertisements by id.
	ads map[string]*Advertisement

	// index maps capability name to the set of agent ids advertising it.
	index map[string]map[string]struct{}

	// byAgent maps agent id to its advertisement ids.
	byAgent map[string][]string

	kv     store.KV
	bus    *event.Bus
	config *StoreConfig
	logger *zap.Logger

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewStore creates an advertisement store. kv may be nil to skip
// write-through persistence.
func NewStore(config *StoreConfig, kv store.KV, bus *event.Bus, logger *zap.Logger) *Store {
	if config == nil {
		config = DefaultStoreConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		ads:     make(map[string]*Advertisement),
		index:   make(map[string]map[string]struct{}),
		byAgent: make(map[string][]string),
		kv:      kv,
		bus:     bus,
		config:  config,
		logger:  logger.With(zap.String("component", "advertisement_store")),
		done:    make(chan struct{}),
	}
}

// Start launches the periodic expiry sweep.
func (s *Store) Start(ctx context.Context) error {
	s.wg.Add(1)
	go s.sweepLoop()
	s.logger.Info("advertisement store started",
		zap.Duration("sweep_interval", s.config.SweepInterval),
	)
	return nil
}

// Close stops the sweep loop.
func (s *Store) Close() error {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}

// Create broadcasts a new advertisement. A non-positive validity falls back
// to the configured default.
func (s *Store) Create(ctx context.Context, agentID, agentName string, capabilities []AdvertisedCapability, availability Availability, validity time.Duration) (*Advertisement, error) {
	if agentID == "" {
		return nil, types.Validationf("agent id is required")
	}
	if len(capabilities) == 0 {
		return nil, types.Validationf("advertisement needs at least one capability")
	}
	for _, c := range capabilities {
		if c.Name == "" {
			return nil, types.Validationf("advertised capability has no name")
		}
	}
	if validity <= 0 {
		validity = s.config.DefaultValidity
	}

	now := time.Now()
	ad := &Advertisement{
		ID:           uuid.New().String(),
		AgentID:      agentID,
		AgentName:    agentName,
		Capabilities: append([]AdvertisedCapability(nil), capabilities...),
		Availability: availability,
		CreatedAt:    now,
		UpdatedAt:    now,
		ValidUntil:   now.Add(validity),
	}

	s.mu.Lock()
	s.ads[ad.ID] = ad
	s.byAgent[agentID] = append(s.byAgent[agentID], ad.ID)

	newCaps := make([]string, 0, len(capabilities))
	for _, c := range capabilities {
		if s.index[c.Name] == nil {
			s.index[c.Name] = make(map[string]struct{})
		}
		if _, known := s.index[c.Name][agentID]; !known {
			newCaps = append(newCaps, c.Name)
		}
		s.index[c.Name][agentID] = struct{}{}
	}
	s.mu.Unlock()

	s.persist(ctx, ad)

	s.logger.Info("advertisement created",
		zap.String("ad_id", ad.ID),
		zap.String("agent_id", agentID),
		zap.Int("capabilities", len(capabilities)),
	)

	if s.bus != nil {
		s.bus.AdvertisementCreated.Publish(event.AdvertisementEvent{
			AdvertisementID: ad.ID,
			AgentID:         agentID,
			Capabilities:    ad.capabilityNames(),
			ValidUntil:      ad.ValidUntil,
			Timestamp:       now,
		})
		for _, name := range newCaps {
			s.bus.ProviderAdded.Publish(event.CapabilityEvent{
				Capability: name,
				AgentID:    agentID,
				New:        true,
				Timestamp:  now,
			})
		}
	}

	return ad.clone(), nil
}

// Update describes a partial advertisement update; nil fields are untouched.
type Update struct {
	Capabilities *[]AdvertisedCapability
	Availability *Availability
	ExtendBy     *time.Duration
}

// UpdateAdvertisement applies a partial update to a still-valid
// advertisement and re-stamps its timestamp. Updating a missing
// advertisement returns NotFound; updating one past its validity returns
// Expired.
func (s *Store) UpdateAdvertisement(ctx context.Context, id string, upd Update) (*Advertisement, error) {
	now := time.Now()

	s.mu.Lock()
	ad, ok := s.ads[id]
	if !ok {
		s.mu.Unlock()
		return nil, types.NotFoundf("advertisement %s not found", id)
	}
	if !ad.ValidAt(now) {
		s.mu.Unlock()
		return nil, types.Expiredf("advertisement %s expired at %s", id, ad.ValidUntil.Format(time.RFC3339))
	}

	var added, removed []string
	if upd.Capabilities != nil {
		oldNames := toSet(ad.capabilityNames())
		ad.Capabilities = append([]AdvertisedCapability(nil), (*upd.Capabilities)...)
		newNames := toSet(ad.capabilityNames())

		// Diff the provider index.
		for name := range oldNames {
			if _, keep := newNames[name]; !keep {
				if agents, ok := s.index[name]; ok {
					delete(agents, ad.AgentID)
					if len(agents) == 0 {
						delete(s.index, name)
					}
				}
				removed = append(removed, name)
			}
		}
		for name := range newNames {
			if _, had := oldNames[name]; !had {
				if s.index[name] == nil {
					s.index[name] = make(map[string]struct{})
				}
				s.index[name][ad.AgentID] = struct{}{}
				added = append(added, name)
			}
		}
	}
	if upd.Availability != nil {
		ad.Availability = *upd.Availability
	}
	if upd.ExtendBy != nil {
		ad.ValidUntil = ad.ValidUntil.Add(*upd.ExtendBy)
	}
	ad.UpdatedAt = now
	updated := ad.clone()
	s.mu.Unlock()

	s.persist(ctx, updated)

	if s.bus != nil {
		s.bus.AdvertisementUpdated.Publish(event.AdvertisementEvent{
			AdvertisementID: id,
			AgentID:         updated.AgentID,
			Capabilities:    updated.capabilityNames(),
			ValidUntil:      updated.ValidUntil,
			Timestamp:       now,
		})
		for _, name := range added {
			s.bus.ProviderAdded.Publish(event.CapabilityEvent{
				Capability: name, AgentID: updated.AgentID, New: true, Timestamp: now,
			})
		}
		for _, name := range removed {
			s.bus.ProviderRemoved.Publish(event.CapabilityEvent{
				Capability: name, AgentID: updated.AgentID, Timestamp: now,
			})
		}
	}

	return updated, nil
}

// Get returns a copy of an advertisement, expired or not.
func (s *Store) Get(ctx context.Context, id string) (*Advertisement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ad, ok := s.ads[id]
	if !ok {
		return nil, types.NotFoundf("advertisement %s not found", id)
	}
	return ad.clone(), nil
}

// ListByAgent returns an agent's advertisements, most recently updated
// first.
func (s *Store) ListByAgent(ctx context.Context, agentID string) []*Advertisement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Advertisement, 0, len(s.byAgent[agentID]))
	for _, id := range s.byAgent[agentID] {
		out = append(out, s.ads[id].clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// ProviderMatch is one provider found for a capability lookup.
type ProviderMatch struct {
	AgentID         string               `json:"agent_id"`
	AgentName       string               `json:"agent_name,omitempty"`
	AdvertisementID string               `json:"advertisement_id"`
	Capability      AdvertisedCapability `json:"capability"`
	Availability    Availability         `json:"availability"`
}

// FindProviders returns, per agent, the matching capability entry from that
// agent's most recent still-valid advertisement, filtered by minimum
// confidence score and availability statuses. Agents with no currently valid
// advertisement are silently excluded.
func (s *Store) FindProviders(ctx context.Context, capabilityName string, minConfidence float64, statuses ...AvailabilityStatus) []ProviderMatch {
	now := time.Now()
	allowed := make(map[AvailabilityStatus]struct{}, len(statuses))
	for _, st := range statuses {
		allowed[st] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]ProviderMatch, 0)
	for agentID := range s.index[capabilityName] {
		ad := s.latestValidLocked(agentID, now)
		if ad == nil {
			continue
		}
		entry, ok := ad.findCapability(capabilityName)
		if !ok {
			continue
		}
		if entry.ConfidenceScore < minConfidence {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[ad.Availability.Status]; !ok {
				continue
			}
		}
		matches = append(matches, ProviderMatch{
			AgentID:         agentID,
			AgentName:       ad.AgentName,
			AdvertisementID: ad.ID,
			Capability:      entry,
			Availability:    ad.Availability,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Capability.ConfidenceScore != matches[j].Capability.ConfidenceScore {
			return matches[i].Capability.ConfidenceScore > matches[j].Capability.ConfidenceScore
		}
		return matches[i].AgentID < matches[j].AgentID
	})
	return matches
}

// latestValidLocked returns the agent's most recently updated still-valid
// advertisement, or nil.
func (s *Store) latestValidLocked(agentID string, now time.Time) *Advertisement {
	var latest *Advertisement
	for _, id := range s.byAgent[agentID] {
		ad := s.ads[id]
		if !ad.ValidAt(now) {
			continue
		}
		if latest == nil || ad.UpdatedAt.After(latest.UpdatedAt) {
			latest = ad
		}
	}
	return latest
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Expired int `json:"expired"`
	Agents  int `json:"agents"`
}

// GetStats returns store statistics.
func (s *Store) GetStats(ctx context.Context) Stats {
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Total: len(s.ads), Agents: len(s.byAgent)}
	for _, ad := range s.ads {
		if ad.ValidAt(now) {
			st.Valid++
		} else {
			st.Expired++
		}
	}
	return st
}

// sweepLoop marks and announces expiry on a ticker until Close.
func (s *Store) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.done:
			return
		}
	}
}

// Sweep marks advertisements past their validity as expired and announces
// them. Records are never deleted. Errors are logged, never raised.
func (s *Store) Sweep(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var expired []*Advertisement
	for _, ad := range s.ads {
		if !ad.Expired && !ad.ValidAt(now) {
			ad.Expired = true
			expired = append(expired, ad.clone())
		}
	}
	s.mu.Unlock()

	for _, ad := range expired {
		s.persist(ctx, ad)
		s.logger.Debug("advertisement expired",
			zap.String("ad_id", ad.ID),
			zap.String("agent_id", ad.AgentID),
		)
		if s.bus != nil {
			s.bus.AdvertisementExpired.Publish(event.AdvertisementEvent{
				AdvertisementID: ad.ID,
				AgentID:         ad.AgentID,
				Capabilities:    ad.capabilityNames(),
				ValidUntil:      ad.ValidUntil,
				Timestamp:       now,
			})
		}
	}
}

// persist writes through to the KV store; persistence failures are logged
// and do not fail the in-memory operation.
func (s *Store) persist(ctx context.Context, ad *Advertisement) {
	if s.kv == nil {
		return
	}
	if err := s.kv.Put(ctx, kvBucket, ad.ID, ad); err != nil {
		s.logger.Warn("failed to persist advertisement",
			zap.String("ad_id", ad.ID),
			zap.Error(err),
		)
	}
}

func toSet(in []string) map[string]struct{} {
	set := make(map[string]struct{}, len(in))
	for _, s := range in {
		set[s] = struct{}{}
	}
	return set
}
