package capability

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/agentswarm/types"
)

// ProviderSearchRequest asks for a provider team covering a capability set.
type ProviderSearchRequest struct {
	// Capabilities is the full set to cover.
	Capabilities []string `json:"capabilities"`

	// Required is the subset that must be covered for a partial result to
	// count as success.
	Required []string `json:"required,omitempty"`

	// Preferred capabilities earn their providers a bonus.
	Preferred []string `json:"preferred,omitempty"`

	// ExcludedProviders are agent ids never selected.
	ExcludedProviders []string `json:"excluded_providers,omitempty"`

	// Taxonomies bias selection toward providers whose capabilities carry
	// these tags.
	Taxonomies []string `json:"taxonomies,omitempty"`

	// MaxProviders caps the team size. Zero means no cap.
	MaxProviders int `json:"max_providers,omitempty"`

	// AllowPartial accepts a team that covers every Required capability even
	// if some others stay uncovered.
	AllowPartial bool `json:"allow_partial"`
}

// ProviderAssignment is one selected provider and the capabilities it covers.
type ProviderAssignment struct {
	AgentID      string   `json:"agent_id"`
	Capabilities []string `json:"capabilities"`
	Score        float64  `json:"score"`
}

// ProviderSearchResult is the outcome of greedy provider selection.
type ProviderSearchResult struct {
	// Success means full coverage, or required-only coverage when the
	// request allows partial results.
	Success bool `json:"success"`

	// Providers are the selected assignments in selection order.
	Providers []ProviderAssignment `json:"providers"`

	// CoverageScore is covered / total requested capabilities.
	CoverageScore float64 `json:"coverage_score"`

	// Missing lists the capabilities no selected provider covers.
	Missing []string `json:"missing,omitempty"`
}

// FindProvidersForCapabilities selects providers greedily: each candidate is
// scored by 0.5·coverage + 0.3·requiredCoverage + 0.1·taxonomyRelevance +
// 0.1·preferredBonus, and providers are added in score order as long as they
// contribute at least one uncovered capability. This is a heuristic, not an
// optimal set-cover solver; for the small teams it builds the approximation
// is adequate.
func (r *Registry) FindProvidersForCapabilities(ctx context.Context, req *ProviderSearchRequest) (*ProviderSearchResult, error) {
	if req == nil || len(req.Capabilities) == 0 {
		return nil, types.Validationf("capability list is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	requested := dedupe(req.Capabilities)
	required := dedupe(req.Required)
	preferred := toSet(req.Preferred)
	excluded := toSet(req.ExcludedProviders)

	// Candidate providers and what each covers.
	covers := make(map[string][]string)
	for _, capName := range requested {
		for id := range r.providers[capName] {
			if _, skip := excluded[id]; skip {
				continue
			}
			covers[id] = append(covers[id], capName)
		}
	}

	type candidate struct {
		id    string
		caps  []string
		score float64
	}
	candidates := make([]candidate, 0, len(covers))
	for id, caps := range covers {
		candidates = append(candidates, candidate{
			id:    id,
			caps:  caps,
			score: r.providerScoreLocked(caps, requested, required, preferred, req.Taxonomies),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})

	covered := make(map[string]struct{}, len(requested))
	result := &ProviderSearchResult{}
	for _, cand := range candidates {
		if req.MaxProviders > 0 && len(result.Providers) >= req.MaxProviders {
			break
		}

		contributes := make([]string, 0, len(cand.caps))
		for _, capName := range cand.caps {
			if _, done := covered[capName]; !done {
				contributes = append(contributes, capName)
			}
		}
		if len(contributes) == 0 {
			continue
		}

		sort.Strings(contributes)
		for _, capName := range contributes {
			covered[capName] = struct{}{}
		}
		result.Providers = append(result.Providers, ProviderAssignment{
			AgentID:      cand.id,
			Capabilities: contributes,
			Score:        cand.score,
		})

		if len(covered) == len(requested) {
			break
		}
	}

	for _, capName := range requested {
		if _, ok := covered[capName]; !ok {
			result.Missing = append(result.Missing, capName)
		}
	}
	result.CoverageScore = float64(len(covered)) / float64(len(requested))

	requiredCovered := true
	for _, capName := range required {
		if _, ok := covered[capName]; !ok {
			requiredCovered = false
			break
		}
	}
	result.Success = len(result.Missing) == 0 || (req.AllowPartial && requiredCovered)

	r.logger.Debug("provider search completed",
		zap.Int("providers", len(result.Providers)),
		zap.Float64("coverage", result.CoverageScore),
		zap.Bool("success", result.Success),
	)

	return result, nil
}

// providerScoreLocked scores a candidate provider for the greedy pass.
func (r *Registry) providerScoreLocked(caps, requested, required []string, preferred map[string]struct{}, taxonomies []string) float64 {
	capSet := toSet(caps)

	coverage := float64(len(caps)) / float64(len(requested))

	requiredCoverage := 0.0
	if len(required) > 0 {
		hit := 0
		for _, c := range required {
			if _, ok := capSet[c]; ok {
				hit++
			}
		}
		requiredCoverage = float64(hit) / float64(len(required))
	}

	taxonomyRelevance := 0.0
	if len(taxonomies) > 0 {
		providerTags := make([]string, 0)
		for _, c := range caps {
			if record, ok := r.capabilities[c]; ok {
				providerTags = append(providerTags, record.Taxonomy...)
			}
		}
		taxonomyRelevance = tokenOverlap(providerTags, taxonomies)
	}

	preferredBonus := 0.0
	if len(preferred) > 0 {
		hit := 0
		for c := range preferred {
			if _, ok := capSet[c]; ok {
				hit++
			}
		}
		preferredBonus = float64(hit) / float64(len(preferred))
	}

	return 0.5*coverage + 0.3*requiredCoverage + 0.1*taxonomyRelevance + 0.1*preferredBonus
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; !ok && s != "" {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func toSet(in []string) map[string]struct{} {
	set := make(map[string]struct{}, len(in))
	for _, s := range in {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}
