package breakdown

import (
	"regexp"
	"strings"
)

// Metrics are the derived quality scores of an approved breakdown, all in
// [0,1].
type Metrics struct {
	Completeness         float64 `json:"completeness"`
	Complexity           float64 `json:"complexity"`
	Clarity              float64 `json:"clarity"`
	Coherence            float64 `json:"coherence"`
	OverallScore         float64 `json:"overall_score"`
	ParallelizationScore float64 `json:"parallelization_score"`
	CapabilityMatchScore float64 `json:"capability_match_score"`
}

// orderingMarker matches explicit sequencing in subtask titles, such as
// "Step 1" or "Phase 2".
var orderingMarker = regexp.MustCompile(`(?i)\b(step|phase|stage)\s*\d+`)

func (s *Service) computeMetricsLocked(b *Breakdown) Metrics {
	m := Metrics{
		Completeness: completenessScore(b),
		Complexity:   complexityScore(len(b.Subtasks)),
		Clarity:      clarityScore(b.Subtasks),
		Coherence:    coherenceScore(b.Subtasks),
	}
	m.OverallScore = 0.35*m.Completeness + 0.2*m.Complexity + 0.25*m.Clarity + 0.2*m.Coherence
	m.ParallelizationScore = parallelizationScore(b.Subtasks)
	m.CapabilityMatchScore = s.capabilityMatchScoreLocked(b.Subtasks)
	return m
}

// completenessScore rewards subtask descriptions that cover the task
// description's vocabulary: 0.2 baseline plus 0.8 times the covered word
// fraction, capped at 1.
func completenessScore(b *Breakdown) float64 {
	taskWords := words(b.TaskDescription)
	if len(taskWords) == 0 {
		return 0.2
	}
	covered := make(map[string]struct{})
	for _, st := range b.Subtasks {
		for w := range words(st.Description) {
			if _, ok := taskWords[w]; ok {
				covered[w] = struct{}{}
			}
		}
	}
	overlap := float64(len(covered)) / float64(len(taskWords))
	if overlap > 1 {
		overlap = 1
	}
	return 0.2 + 0.8*overlap
}

// complexityScore peaks at 1.0 for 3 to 7 subtasks and falls off by 0.15 per
// subtask outside that band, floored at 0.2.
func complexityScore(count int) float64 {
	var distance int
	switch {
	case count < 3:
		distance = 3 - count
	case count > 7:
		distance = count - 7
	default:
		return 1.0
	}
	score := 1.0 - 0.15*float64(distance)
	if score < 0.2 {
		return 0.2
	}
	return score
}

// clarityScore peaks at 1.0 when the average subtask description length sits
// between 20 and 200 characters. Too terse scales down linearly; too verbose
// decays with length, floored at 0.2.
func clarityScore(subtasks []Subtask) float64 {
	if len(subtasks) == 0 {
		return 0
	}
	total := 0
	for _, st := range subtasks {
		total += len(st.Description)
	}
	avg := float64(total) / float64(len(subtasks))
	switch {
	case avg >= 20 && avg <= 200:
		return 1.0
	case avg < 20:
		return avg / 20
	default:
		score := 200 / avg
		if score < 0.2 {
			return 0.2
		}
		return score
	}
}

// coherenceScore is a 0.7 baseline with a 0.2 bonus when subtask titles carry
// explicit ordering markers.
func coherenceScore(subtasks []Subtask) float64 {
	for _, st := range subtasks {
		if orderingMarker.MatchString(st.Title) {
			return 0.9
		}
	}
	return 0.7
}

// parallelizationScore is the count of distinct maximal dependency chains
// over the subtask count. Each chain ends at a sink subtask that nothing else
// depends on, so the sink count approximates how many workstreams can run to
// completion independently.
func parallelizationScore(subtasks []Subtask) float64 {
	if len(subtasks) == 0 {
		return 0
	}
	isPrereq := make(map[string]struct{})
	for _, st := range subtasks {
		for _, pre := range st.Prerequisites {
			isPrereq[pre] = struct{}{}
		}
	}
	sinks := 0
	for _, st := range subtasks {
		if _, ok := isPrereq[st.ID]; !ok {
			sinks++
		}
	}
	return float64(sinks) / float64(len(subtasks))
}

// capabilityMatchScoreLocked is the fraction of required capabilities, across
// subtasks with a suggested assignee, whose assignee is a registered provider
// of that capability.
func (s *Service) capabilityMatchScoreLocked(subtasks []Subtask) float64 {
	total, matched := 0, 0
	for _, st := range subtasks {
		if st.SuggestedAssignee == "" {
			continue
		}
		for _, cap := range st.RequiredCapabilities {
			total++
			if s.registry == nil {
				continue
			}
			for _, provider := range s.registry.Providers(cap) {
				if provider == st.SuggestedAssignee {
					matched++
					break
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}

func words(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(w) > 2 {
			out[w] = struct{}{}
		}
	}
	return out
}
