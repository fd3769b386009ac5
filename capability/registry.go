package capability

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentswarm/event"
	"github.com/BaSui01/agentswarm/types"
)

// RegistryConfig holds configuration for the capability registry.
type RegistryConfig struct {
	// SimilarityThreshold is the minimum score kept in the similarity map.
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`

	// NameWeight, ProviderWeight, and DescriptionWeight are the similarity
	// component weights. TaxonomyBonusWeight scales the taxonomy overlap
	// bonus added on top.
	NameWeight          float64 `json:"name_weight" yaml:"name_weight"`
	ProviderWeight      float64 `json:"provider_weight" yaml:"provider_weight"`
	DescriptionWeight   float64 `json:"description_weight" yaml:"description_weight"`
	TaxonomyBonusWeight float64 `json:"taxonomy_bonus_weight" yaml:"taxonomy_bonus_weight"`

	// MaxSuggestions caps the suggested additions returned by combination
	// scoring.
	MaxSuggestions int `json:"max_suggestions" yaml:"max_suggestions"`
}

// DefaultRegistryConfig returns a RegistryConfig with the standard weights.
func DefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		SimilarityThreshold: 0.2,
		NameWeight:          0.4,
		ProviderWeight:      0.3,
		DescriptionWeight:   0.3,
		TaxonomyBonusWeight: 0.1,
		MaxSuggestions:      3,
	}
}

// Registry stores capability descriptions, the provider mapping, and the
// derived similarity map. Capabilities are never deleted, only superseded by
// later registrations.
type Registry struct {
	mu sync.RWMutex

	// capabilities stores merged capability records by name.
	capabilities map[string]*Capability

	// providers maps capability name to the set of providing agent ids.
	providers map[string]map[string]struct{}

	// similarity is the derived map, rebuilt wholesale after registration.
	similarity map[string][]SimilarityEntry

	config *RegistryConfig
	bus    *event.Bus
	logger *zap.Logger
}

// NewRegistry creates a capability registry.
func NewRegistry(config *RegistryConfig, bus *event.Bus, logger *zap.Logger) *Registry {
	if config == nil {
		config = DefaultRegistryConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		capabilities: make(map[string]*Capability),
		providers:    make(map[string]map[string]struct{}),
		similarity:   make(map[string][]SimilarityEntry),
		config:       config,
		bus:          bus,
		logger:       logger.With(zap.String("component", "capability_registry")),
	}
}

// Register merges cap into the registry and records providerID as a provider.
// Taxonomies are merged by union, compatibility edges by (target, type) with
// max strength, and scalar fields are last-write. Reciprocal edges are
// installed on the edge targets: complementary and enhances symmetrically,
// prerequisite as an inverse edge only when none exists yet.
func (r *Registry) Register(ctx context.Context, cap Capability, providerID string) error {
	if cap.Name == "" {
		return types.Validationf("capability name is required")
	}
	if providerID == "" {
		return types.Validationf("provider id is required")
	}
	for _, e := range cap.Compatibilities {
		if e.Target == "" {
			return types.Validationf("compatibility edge on %s has no target", cap.Name)
		}
		if e.Strength < 0 || e.Strength > 1 {
			return types.Validationf("compatibility strength %v out of [0,1]", e.Strength)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	existing, known := r.capabilities[cap.Name]
	if !known {
		merged := cap.clone()
		merged.Compatibilities = nil
		merged.RegisteredAt = now
		merged.UpdatedAt = now
		r.capabilities[cap.Name] = merged
		existing = merged
	} else {
		// Last-write scalar fields, union taxonomies.
		if cap.Description != "" {
			existing.Description = cap.Description
		}
		if cap.Level != "" {
			existing.Level = cap.Level
		}
		existing.Taxonomy = unionStrings(existing.Taxonomy, cap.Taxonomy)
		for k, v := range cap.ContextScores {
			if existing.ContextScores == nil {
				existing.ContextScores = make(map[string]float64)
			}
			existing.ContextScores[k] = v
		}
		existing.UpdatedAt = now
	}

	for _, edge := range cap.Compatibilities {
		mergeEdge(existing, edge)
		r.installReciprocal(cap.Name, edge, now)
	}

	if r.providers[cap.Name] == nil {
		r.providers[cap.Name] = make(map[string]struct{})
	}
	_, hadProvider := r.providers[cap.Name][providerID]
	r.providers[cap.Name][providerID] = struct{}{}

	r.rebuildSimilarityLocked()

	r.logger.Info("capability registered",
		zap.String("capability", cap.Name),
		zap.String("provider", providerID),
		zap.Bool("new", !known),
	)

	if r.bus != nil {
		r.bus.CapabilityRegistered.Publish(event.CapabilityEvent{
			Capability: cap.Name,
			AgentID:    providerID,
			New:        !known,
			Timestamp:  now,
		})
		if !hadProvider {
			r.bus.ProviderAdded.Publish(event.CapabilityEvent{
				Capability: cap.Name,
				AgentID:    providerID,
				Timestamp:  now,
			})
		}
	}

	return nil
}

// installReciprocal installs the reciprocal edge for source->edge.Target on
// the target capability, creating a stub target record when the target is not
// registered yet.
func (r *Registry) installReciprocal(source string, edge CompatibilityEdge, now time.Time) {
	target, ok := r.capabilities[edge.Target]
	if !ok {
		target = &Capability{Name: edge.Target, RegisteredAt: now, UpdatedAt: now}
		r.capabilities[edge.Target] = target
	}

	switch edge.Type {
	case EdgeComplementary, EdgeEnhances:
		// Symmetric: same type pointing back, max strength on conflict.
		mergeEdge(target, CompatibilityEdge{
			Target:      source,
			Type:        edge.Type,
			Strength:    edge.Strength,
			Description: edge.Description,
		})
	case EdgePrerequisite:
		// Install the inverse only if absent; max-merge keeps the strength
		// from decreasing on repeated registration.
		mergeEdge(target, CompatibilityEdge{
			Target:   source,
			Type:     EdgePrerequisite,
			Strength: edge.Strength,
		})
	case EdgeConflicts:
		// One-sided; the declaring capability owns the conflict.
	}
}

// mergeEdge appends or max-merges an edge keyed by (target, type).
func mergeEdge(c *Capability, edge CompatibilityEdge) {
	for i, e := range c.Compatibilities {
		if e.Target == edge.Target && e.Type == edge.Type {
			if edge.Strength > e.Strength {
				c.Compatibilities[i].Strength = edge.Strength
			}
			if edge.Description != "" {
				c.Compatibilities[i].Description = edge.Description
			}
			return
		}
	}
	c.Compatibilities = append(c.Compatibilities, edge)
}

// HasCapability reports whether name is registered.
func (r *Registry) HasCapability(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.capabilities[name]
	return ok
}

// Get returns a copy of the named capability.
func (r *Registry) Get(name string) (*Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.capabilities[name]
	if !ok {
		return nil, types.NotFoundf("capability %s not registered", name)
	}
	return c.clone(), nil
}

// List returns copies of all registered capabilities, sorted by name.
func (r *Registry) List() []*Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Capability, 0, len(r.capabilities))
	for _, c := range r.capabilities {
		out = append(out, c.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Providers returns the sorted provider ids for a capability. Unknown
// capabilities yield an empty slice, not an error.
func (r *Registry) Providers(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providersLocked(name)
}

func (r *Registry) providersLocked(name string) []string {
	set := r.providers[name]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Similar returns the ranked similarity entries for a capability.
func (r *Registry) Similar(name string) []SimilarityEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.similarity[name]
	out := make([]SimilarityEntry, len(entries))
	copy(out, entries)
	return out
}

// unionStrings merges b into a preserving a's order and de-duplicating.
func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
