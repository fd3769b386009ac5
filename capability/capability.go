package capability

import (
	"time"
)

// Level is the discrete skill level of a capability.
type Level string

const (
	LevelBasic    Level = "basic"
	LevelStandard Level = "standard"
	LevelAdvanced Level = "advanced"
	LevelExpert   Level = "expert"
)

// EdgeType is the type of a compatibility relationship between capabilities.
type EdgeType string

const (
	// EdgeComplementary means the two capabilities work well together.
	EdgeComplementary EdgeType = "complementary"
	// EdgePrerequisite means the edge target must be present before the
	// source is useful. Dependency direction is preserved, never mirrored.
	EdgePrerequisite EdgeType = "prerequisite"
	// EdgeEnhances means the source improves the target's results.
	EdgeEnhances EdgeType = "enhances"
	// EdgeConflicts means the two capabilities should not be combined.
	EdgeConflicts EdgeType = "conflicts"
)

// CompatibilityEdge is a typed, scored relationship to another capability.
type CompatibilityEdge struct {
	// Target is the name of the related capability.
	Target string `json:"target"`

	// Type is the relationship type.
	Type EdgeType `json:"type"`

	// Strength is the relationship strength in [0,1].
	Strength float64 `json:"strength"`

	// Description is free text about the relationship.
	Description string `json:"description,omitempty"`
}

// Capability describes one named skill agents can provide.
type Capability struct {
	// Name is the unique capability name.
	Name string `json:"name"`

	// Description is the free-text capability description.
	Description string `json:"description,omitempty"`

	// Level is the discrete skill level.
	Level Level `json:"level,omitempty"`

	// Taxonomy is the set of taxonomy tags. Merged by union on
	// re-registration.
	Taxonomy []string `json:"taxonomy,omitempty"`

	// Compatibilities are the typed edges to other capabilities. Merged by
	// (target, type) with max strength on re-registration.
	Compatibilities []CompatibilityEdge `json:"compatibilities,omitempty"`

	// ContextScores are optional per-context relevance scores.
	ContextScores map[string]float64 `json:"context_scores,omitempty"`

	// RegisteredAt is when the capability was first registered.
	RegisteredAt time.Time `json:"registered_at"`

	// UpdatedAt is when the capability was last merged into.
	UpdatedAt time.Time `json:"updated_at"`
}

// SimilarityEntry is one ranked entry of the derived similarity map.
type SimilarityEntry struct {
	// Name is the similar capability's name.
	Name string `json:"name"`

	// Score is the similarity score in (0.2, 1].
	Score float64 `json:"score"`
}

// clone returns a deep copy so callers never alias registry state.
func (c *Capability) clone() *Capability {
	cp := *c
	if c.Taxonomy != nil {
		cp.Taxonomy = append([]string(nil), c.Taxonomy...)
	}
	if c.Compatibilities != nil {
		cp.Compatibilities = append([]CompatibilityEdge(nil), c.Compatibilities...)
	}
	if c.ContextScores != nil {
		cp.ContextScores = make(map[string]float64, len(c.ContextScores))
		for k, v := range c.ContextScores {
			cp.ContextScores[k] = v
		}
	}
	return &cp
}
