package training

import (
	"math"

	"artificer/internal/types"
)

// =============================================================================
// REWARD SIGNAL
// =============================================================================

// RewardOptions tune decay, difficulty scaling, and type balancing.
type RewardOptions struct {
	DecayRate        float64 // per-day multiplier, default 0.95
	DecayFloor       float64 // decay never drops below this, default 0.1
	DifficultyWeight float64 // hard-example emphasis, default 1.5
	BalanceThreshold int     // feedback count where damping starts, default 100
	BalanceFloor     float64 // damping never drops below this, default 0.5
}

func DefaultRewardOptions() RewardOptions {
	return RewardOptions{
		DecayRate:        0.95,
		DecayFloor:       0.1,
		DifficultyWeight: 1.5,
		BalanceThreshold: 100,
		BalanceFloor:     0.5,
	}
}

func (o *RewardOptions) fill() {
	d := DefaultRewardOptions()
	if o.DecayRate <= 0 {
		o.DecayRate = d.DecayRate
	}
	if o.DecayFloor <= 0 {
		o.DecayFloor = d.DecayFloor
	}
	if o.DifficultyWeight <= 0 {
		o.DifficultyWeight = d.DifficultyWeight
	}
	if o.BalanceThreshold <= 0 {
		o.BalanceThreshold = d.BalanceThreshold
	}
	if o.BalanceFloor <= 0 {
		o.BalanceFloor = d.BalanceFloor
	}
}

// Reward converts one feedback event into a training signal in [-1,1].
//
// The base maps the validation score through tanh, centered at 50. The
// feedback-type bonus shifts it: corrections earn up to +0.2 scaled by
// how close the AI output already was to the corrected one. Age decays
// the signal, difficulty amplifies it, and types drowning in feedback
// are damped so no single type dominates the adapter.
func Reward(score float64, ft types.FeedbackType, correctionSimilarity float64,
	ageDays float64, difficulty float64, typeSeen int, opts RewardOptions) float64 {

	opts.fill()

	base := math.Tanh((score - 50) / 50)

	var bonus float64
	switch ft {
	case types.FeedbackSuccess:
		bonus = 0.3
	case types.FeedbackPositive:
		bonus = 0.5
	case types.FeedbackCorrection:
		bonus = 0.2 * clamp01(correctionSimilarity)
	case types.FeedbackNegative:
		bonus = -1.0
	case types.FeedbackValidationFailure:
		bonus = -0.5
	}

	reward := clampSigned(base + bonus)

	decay := math.Pow(opts.DecayRate, math.Max(0, ageDays))
	if decay < opts.DecayFloor {
		decay = opts.DecayFloor
	}
	reward *= decay

	reward *= 1 + clamp01(difficulty)*(opts.DifficultyWeight-1)

	if typeSeen > opts.BalanceThreshold {
		excess := float64(typeSeen - opts.BalanceThreshold)
		damping := math.Exp(-excess / 50)
		if damping < opts.BalanceFloor {
			damping = opts.BalanceFloor
		}
		reward *= damping
	}

	return clampSigned(reward)
}

func clampSigned(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
