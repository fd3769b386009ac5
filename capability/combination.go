package capability

import (
	"context"
	"sort"

	"github.com/BaSui01/agentswarm/types"
)

// CombinationScore is the composition quality of a capability set.
type CombinationScore struct {
	// Score = 0.6·avgComplementarity + 0.3·taxonomicCoverage − penalty.
	Score float64 `json:"score"`

	// AvgComplementarity is the mean strength of complementary edges
	// between members of the set.
	AvgComplementarity float64 `json:"avg_complementarity"`

	// TaxonomicCoverage is the share of the registry's taxonomy tags the set
	// touches.
	TaxonomicCoverage float64 `json:"taxonomic_coverage"`

	// MissingPrerequisites lists prerequisite targets of members that are
	// not in the set.
	MissingPrerequisites []string `json:"missing_prerequisites,omitempty"`

	// Suggestions are up to MaxSuggestions capabilities outside the set,
	// ranked by aggregate complementary strength toward it.
	Suggestions []SimilarityEntry `json:"suggestions,omitempty"`
}

// ScoreCapabilityCombination rates how well a set of capabilities composes.
// The penalty term is 0.1·min(1, missingPrerequisites/size).
func (r *Registry) ScoreCapabilityCombination(ctx context.Context, names []string) (*CombinationScore, error) {
	names = dedupe(names)
	if len(names) == 0 {
		return nil, types.Validationf("capability set is empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	member := toSet(names)

	// Average strength of complementary edges between members.
	var compSum float64
	var compCount int
	// Missing prerequisites of members.
	missingSet := make(map[string]struct{})

	for _, name := range names {
		record, ok := r.capabilities[name]
		if !ok {
			continue
		}
		for _, edge := range record.Compatibilities {
			switch edge.Type {
			case EdgeComplementary:
				if _, in := member[edge.Target]; in {
					compSum += edge.Strength
					compCount++
				}
			case EdgePrerequisite:
				if _, in := member[edge.Target]; !in {
					missingSet[edge.Target] = struct{}{}
				}
			}
		}
	}

	avgComp := 0.0
	if compCount > 0 {
		avgComp = compSum / float64(compCount)
	}

	// Taxonomic coverage relative to all tags known to the registry.
	allTags := make(map[string]struct{})
	setTags := make(map[string]struct{})
	for name, record := range r.capabilities {
		for _, tag := range record.Taxonomy {
			allTags[tag] = struct{}{}
			if _, in := member[name]; in {
				setTags[tag] = struct{}{}
			}
		}
	}
	coverage := 0.0
	if len(allTags) > 0 {
		coverage = float64(len(setTags)) / float64(len(allTags))
	}

	missing := make([]string, 0, len(missingSet))
	for name := range missingSet {
		missing = append(missing, name)
	}
	sort.Strings(missing)

	penaltyRatio := float64(len(missing)) / float64(len(names))
	if penaltyRatio > 1 {
		penaltyRatio = 1
	}

	score := 0.6*avgComp + 0.3*coverage - 0.1*penaltyRatio
	if score < 0 {
		score = 0
	}

	return &CombinationScore{
		Score:                score,
		AvgComplementarity:   avgComp,
		TaxonomicCoverage:    coverage,
		MissingPrerequisites: missing,
		Suggestions:          r.suggestAdditionsLocked(member),
	}, nil
}

// suggestAdditionsLocked ranks capabilities outside the set by the sum of
// complementary edge strengths connecting them to members. Edges are counted
// once per (candidate, member) pair even though registration installs them
// symmetrically.
func (r *Registry) suggestAdditionsLocked(member map[string]struct{}) []SimilarityEntry {
	pairStrength := make(map[[2]string]float64)

	for name, record := range r.capabilities {
		_, inSet := member[name]
		for _, edge := range record.Compatibilities {
			if edge.Type != EdgeComplementary {
				continue
			}
			_, targetInSet := member[edge.Target]

			var candidate, memberName string
			switch {
			case inSet && !targetInSet:
				candidate, memberName = edge.Target, name
			case !inSet && targetInSet:
				candidate, memberName = name, edge.Target
			default:
				continue
			}

			pair := [2]string{candidate, memberName}
			if edge.Strength > pairStrength[pair] {
				pairStrength[pair] = edge.Strength
			}
		}
	}

	aggregate := make(map[string]float64)
	for pair, strength := range pairStrength {
		aggregate[pair[0]] += strength
	}

	suggestions := make([]SimilarityEntry, 0, len(aggregate))
	for name, strength := range aggregate {
		suggestions = append(suggestions, SimilarityEntry{Name: name, Score: strength})
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].Name < suggestions[j].Name
	})

	if len(suggestions) > r.config.MaxSuggestions {
		suggestions = suggestions[:r.config.MaxSuggestions]
	}
	return suggestions
}
