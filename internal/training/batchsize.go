package training

import (
	"math"

	"artificer/internal/logging"
)

// =============================================================================
// ADAPTIVE BATCH SIZING
// =============================================================================

const (
	defaultMinBatch      = 20
	defaultMaxBatch      = 100
	defaultTargetQuality = 0.6
)

// BatchSizer recommends a batch size from pool depth, then scales it by
// quality, rarity, and the recent performance trend.
type BatchSizer struct {
	Min           int
	Max           int
	TargetQuality float64 // on the 0..1 scale
}

func NewBatchSizer(min, max int, targetQuality float64) *BatchSizer {
	if min <= 0 {
		min = defaultMinBatch
	}
	if max <= 0 {
		max = defaultMaxBatch
	}
	if targetQuality <= 0 {
		targetQuality = defaultTargetQuality
	}
	return &BatchSizer{Min: min, Max: max, TargetQuality: targetQuality}
}

// base is a step function of pool size.
func (s *BatchSizer) base(poolSize int) int {
	switch {
	case poolSize < 30:
		return s.Min
	case poolSize < 50:
		return 30
	case poolSize < 100:
		return 50
	case poolSize < 200:
		return 75
	default:
		return s.Max
	}
}

// qualityMultiplier shrinks batches when examples are already strong
// and grows them when quality lags the target.
func (s *BatchSizer) qualityMultiplier(avgQuality float64) float64 {
	switch {
	case avgQuality >= 0.8:
		return 0.7
	case avgQuality >= s.TargetQuality:
		return 1.0
	default:
		return 1.3
	}
}

// rarityMultiplier keeps batches small for types with little history so
// a single batch cannot dominate the adapter.
func rarityMultiplier(totalSeen int) float64 {
	switch {
	case totalSeen < 50:
		return 0.5
	case totalSeen < 100:
		return 0.7
	default:
		return 1.0
	}
}

// trendMultiplier leans into improvement and eases off on regressions.
// The delta is the recent change in average validation score.
func trendMultiplier(trendDelta float64) float64 {
	switch {
	case trendDelta >= 5:
		return 1.2
	case trendDelta >= 1:
		return 1.1
	case trendDelta > -1:
		return 1.0
	case trendDelta > -5:
		return 0.9
	default:
		return 0.8
	}
}

// Recommend computes the batch size for one emission, or 0 when the
// pool cannot fill even a minimum batch. avgQuality is on the 0..1
// scale.
func (s *BatchSizer) Recommend(poolSize int, avgQuality float64, totalSeen int, trendDelta float64) int {
	if poolSize < s.Min {
		return 0
	}
	size := float64(s.base(poolSize)) *
		s.qualityMultiplier(avgQuality) *
		rarityMultiplier(totalSeen) *
		trendMultiplier(trendDelta)

	result := int(math.Round(size))
	if result < s.Min {
		result = s.Min
	}
	if result > s.Max {
		result = s.Max
	}
	if result > poolSize {
		result = poolSize
	}
	logging.TrainingDebug("batch size %d (pool=%d quality=%.2f seen=%d trend=%.1f)",
		result, poolSize, avgQuality, totalSeen, trendDelta)
	return result
}
