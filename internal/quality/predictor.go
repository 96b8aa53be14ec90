// Package quality implements the pre-generation quality forecast. The
// prediction is a pure heuristic over the request shape; it feeds the
// quality_forecast progress event and never gates generation.
package quality

import (
	"strings"

	"artificer/internal/contextual"
	"artificer/internal/types"
)

const baseline = 0.55

// Predictor scores (artifact type, notes, context summary) tuples.
type Predictor struct{}

func NewPredictor() *Predictor { return &Predictor{} }

// Predict returns the forecast for one request. Factors name every
// adjustment applied so the UI can explain the label.
func (p *Predictor) Predict(artifactType types.ArtifactType, notes string, built *contextual.BuiltContext) *types.QualityPrediction {
	score := baseline
	var factors []string

	// Notes length buckets. Too little signal hurts more than verbosity.
	length := len(strings.TrimSpace(notes))
	switch {
	case length == 0:
		score -= 0.20
		factors = append(factors, "no notes provided")
	case length < 100:
		score -= 0.10
		factors = append(factors, "very short notes")
	case length < 400:
		factors = append(factors, "moderate notes length")
	case length < 4000:
		score += 0.10
		factors = append(factors, "detailed notes")
	default:
		score += 0.05
		factors = append(factors, "extensive notes")
	}

	if hasBulletStructure(notes) {
		score += 0.05
		factors = append(factors, "structured notes")
	}

	if built != nil {
		switch {
		case built.RAGChunks >= 5:
			score += 0.10
			factors = append(factors, "rich retrieval context")
		case built.RAGChunks > 0:
			score += 0.05
			factors = append(factors, "some retrieval context")
		}
		if built.HasKnowledgeGraph {
			score += 0.05
			factors = append(factors, "knowledge graph available")
		}
		if built.HasPatterns {
			score += 0.05
			factors = append(factors, "pattern data available")
		}
	}

	// Complex artifact types start from a harder place.
	switch w := artifactType.ComplexityWeight(); {
	case w >= 0.7:
		score -= 0.10
		factors = append(factors, "complex artifact type")
	case w <= 0.35:
		score += 0.05
		factors = append(factors, "well-understood artifact type")
	}

	score = clamp01(score)
	return &types.QualityPrediction{
		Label:   Label(score),
		Score:   score,
		Factors: factors,
	}
}

// Label buckets a [0,1] score: low < 0.5 <= medium < 0.75 <= high.
func Label(score float64) string {
	switch {
	case score < 0.5:
		return "low"
	case score < 0.75:
		return "medium"
	default:
		return "high"
	}
}

func hasBulletStructure(notes string) bool {
	var bullets int
	for _, line := range strings.Split(notes, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") ||
			strings.HasPrefix(trimmed, "• ") {
			bullets++
		}
	}
	return bullets >= 2
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
