// Package similarity implements the "did you mean" suggestion helper
// consumed by the transition validators (§6.1): a pure function combining
// token-Jaccard and character-level (Levenshtein) similarity, thresholded
// at 0.7 per §4.5.B.
package similarity

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Suggestion is one candidate match with its combined score in [0, 1].
type Suggestion struct {
	Candidate string
	Score     float64
}

// DefaultThreshold is the combined-score cutoff named throughout §4.5.B.
const DefaultThreshold = 0.7

// Suggest scores every candidate against name and returns those scoring at
// least threshold, best first, capped at max (0 means unlimited). Matches
// the consumed-interface contract of §6.1:
// suggest(name, candidates, threshold, max) -> [{candidate, score}].
func Suggest(name string, candidates []string, threshold float64, max int) []Suggestion {
	var out []Suggestion
	for _, c := range candidates {
		score := combinedScore(name, c)
		if score >= threshold {
			out = append(out, Suggestion{Candidate: c, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// combinedScore averages token-Jaccard similarity (splitting on
// non-alphanumeric boundaries, case-insensitive) with character-level
// similarity derived from normalized Levenshtein edit distance.
func combinedScore(a, b string) float64 {
	return (tokenJaccard(a, b) + charSimilarity(a, b)) / 2
}

func tokenJaccard(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	union := map[string]struct{}{}
	for t := range ta {
		union[t] = struct{}{}
	}
	for t := range tb {
		union[t] = struct{}{}
	}
	if len(union) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(union))
}

func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f != "" {
			out[f] = struct{}{}
		}
	}
	return out
}

func charSimilarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}
