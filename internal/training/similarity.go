package training

import (
	"strings"

	"artificer/internal/types"
)

// =============================================================================
// EXAMPLE SIMILARITY
// =============================================================================

// Similarity scores how alike two examples are in [0,1]: output token
// overlap weighs most, then output length, context size, and type
// match.
func Similarity(a, b types.TrainingExample) float64 {
	typeMatch := 0.0
	if a.ArtifactType.Normalize() == b.ArtifactType.Normalize() {
		typeMatch = 1.0
	}
	return 0.4*TextSimilarity(a.Output, b.Output) +
		0.2*lengthRatio(a.Output, b.Output) +
		0.2*lengthRatio(a.Input, b.Input) +
		0.2*typeMatch
}

// TextSimilarity is the Jaccard index over lowercase tokens.
func TextSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}
	common := 0
	for tok := range setA {
		if setB[tok] {
			common++
		}
	}
	return float64(common) / float64(len(setA)+len(setB)-common)
}

func lengthRatio(a, b string) float64 {
	la, lb := len(a), len(b)
	if la == 0 && lb == 0 {
		return 1.0
	}
	if la > lb {
		la, lb = lb, la
	}
	if lb == 0 {
		return 0.0
	}
	return float64(la) / float64(lb)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,;:!?()[]{}\"'`")
		if len(tok) > 1 {
			set[tok] = true
		}
	}
	return set
}
