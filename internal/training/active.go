package training

import (
	"math"

	"artificer/internal/types"
)

// =============================================================================
// ACTIVE LEARNING SELECTION
// =============================================================================

// Weights for the informativeness score. They sum to 1.
type SelectorWeights struct {
	Uncertainty float64
	Diversity   float64
	Quality     float64
}

func DefaultSelectorWeights() SelectorWeights {
	return SelectorWeights{Uncertainty: 0.4, Diversity: 0.3, Quality: 0.3}
}

func (w SelectorWeights) normalized() SelectorWeights {
	sum := w.Uncertainty + w.Diversity + w.Quality
	if sum <= 0 {
		return DefaultSelectorWeights()
	}
	return SelectorWeights{w.Uncertainty / sum, w.Diversity / sum, w.Quality / sum}
}

// SelectInformative greedily picks the n most informative examples.
// Diversity is recomputed against the running selection after every
// pick, so near-duplicates of an already chosen example rank low.
func SelectInformative(candidates []types.TrainingExample, n int, weights SelectorWeights) []types.TrainingExample {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}
	if n >= len(candidates) {
		out := make([]types.TrainingExample, len(candidates))
		copy(out, candidates)
		return out
	}
	w := weights.normalized()

	remaining := make([]types.TrainingExample, len(candidates))
	copy(remaining, candidates)
	selected := make([]types.TrainingExample, 0, n)

	for len(selected) < n && len(remaining) > 0 {
		bestIdx := 0
		bestScore := -1.0
		for i, ex := range remaining {
			score := w.Uncertainty*uncertainty(ex) +
				w.Diversity*diversity(ex, selected) +
				w.Quality*quality(ex)
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

// uncertainty grows as validation confidence drops. Corrections and
// failure replays carry extra signal, so they get a fixed bump.
func uncertainty(ex types.TrainingExample) float64 {
	u := 1.0 - clamp01(ex.QualityScore/100.0)
	if ex.Category == CategoryCorrection || ex.Category == CategoryHardNegative {
		u += 0.2
	}
	return clamp01(u)
}

// diversity is the distance to the nearest already-selected example.
func diversity(ex types.TrainingExample, selected []types.TrainingExample) float64 {
	if len(selected) == 0 {
		return 1.0
	}
	maxSim := 0.0
	for _, s := range selected {
		if sim := Similarity(ex, s); sim > maxSim {
			maxSim = sim
		}
	}
	return 1.0 - maxSim
}

// quality maps the example's score through the reward curve into [0,1].
func quality(ex types.TrainingExample) float64 {
	reward := math.Tanh((ex.QualityScore - 50) / 50)
	return (reward + 1) / 2
}
