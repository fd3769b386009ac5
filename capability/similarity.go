package capability

import (
	"sort"
	"strings"
)

// rebuildSimilarityLocked recomputes the whole similarity map. Callers must
// hold the write lock. Scores combine name, provider-set, and description
// overlap plus a taxonomy bonus; only entries above the threshold are kept.
func (r *Registry) rebuildSimilarityLocked() {
	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	sort.Strings(names)

	similarity := make(map[string][]SimilarityEntry, len(names))
	for _, a := range names {
		entries := make([]SimilarityEntry, 0)
		for _, b := range names {
			if a == b {
				continue
			}
			score := r.similarityScoreLocked(r.capabilities[a], r.capabilities[b])
			if score > r.config.SimilarityThreshold {
				entries = append(entries, SimilarityEntry{Name: b, Score: score})
			}
		}
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Score > entries[j].Score
		})
		if len(entries) > 0 {
			similarity[a] = entries
		}
	}
	r.similarity = similarity
}

// similarityScoreLocked scores two capabilities in [0,1]:
// nameWeight·nameSimilarity + providerWeight·providerOverlap +
// descriptionWeight·descriptionOverlap, plus taxonomyBonusWeight·taxonomyOverlap,
// clamped to 1.
func (r *Registry) similarityScoreLocked(a, b *Capability) float64 {
	score := r.config.NameWeight*tokenOverlap(nameTokens(a.Name), nameTokens(b.Name)) +
		r.config.ProviderWeight*r.providerOverlapLocked(a.Name, b.Name) +
		r.config.DescriptionWeight*tokenOverlap(descriptionTokens(a.Description), descriptionTokens(b.Description))

	score += r.config.TaxonomyBonusWeight * tokenOverlap(a.Taxonomy, b.Taxonomy)

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// providerOverlapLocked is |intersection| / min(|A|,|B|), 0 when either
// provider set is empty.
func (r *Registry) providerOverlapLocked(a, b string) float64 {
	setA := r.providers[a]
	setB := r.providers[b]
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	common := 0
	for id := range setA {
		if _, ok := setB[id]; ok {
			common++
		}
	}
	minSize := len(setA)
	if len(setB) < minSize {
		minSize = len(setB)
	}
	return float64(common) / float64(minSize)
}

// tokenOverlap is |intersection| / min(|A|,|B|) over de-duplicated tokens,
// 0 when either side is empty.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[strings.ToLower(t)] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[strings.ToLower(t)] = struct{}{}
	}

	common := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			common++
		}
	}
	minSize := len(setA)
	if len(setB) < minSize {
		minSize = len(setB)
	}
	if minSize == 0 {
		return 0
	}
	return float64(common) / float64(minSize)
}

// nameTokens splits a capability name on separators: "web_research" yields
// ["web", "research"].
func nameTokens(name string) []string {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
}

// stopWords filtered out of description tokens.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"to": true, "of": true, "in": true, "for": true, "on": true,
	"with": true, "as": true, "at": true, "by": true, "from": true,
	"this": true, "that": true, "it": true, "its": true,
}

// descriptionTokens tokenizes free text, dropping short and stop words.
func descriptionTokens(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_')
	})

	filtered := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) > 2 && !stopWords[w] {
			filtered = append(filtered, w)
		}
	}
	return filtered
}
