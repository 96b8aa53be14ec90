package training

import (
	"math"
	"testing"

	"artificer/internal/types"
)

func TestRewardSignal(t *testing.T) {
	opts := DefaultRewardOptions()

	tests := []struct {
		name       string
		score      float64
		ft         types.FeedbackType
		sim        float64
		ageDays    float64
		difficulty float64
		typeSeen   int
		want       float64
	}{
		{
			name: "neutral score with explicit positive",
			score: 50, ft: types.FeedbackPositive,
			want: 0.5,
		},
		{
			name: "perfect score clamps at one",
			score: 100, ft: types.FeedbackPositive,
			want: 1.0,
		},
		{
			name: "zero score negative clamps at minus one",
			score: 0, ft: types.FeedbackNegative,
			want: -1.0,
		},
		{
			name: "validation failure pulls down",
			score: 30, ft: types.FeedbackValidationFailure,
			want: -0.8799,
		},
		{
			name: "correction bonus scales with similarity",
			score: 85, ft: types.FeedbackCorrection, sim: 0.5,
			want: 0.7044,
		},
		{
			name: "correction with no similarity earns no bonus",
			score: 85, ft: types.FeedbackCorrection, sim: 0,
			want: 0.6044,
		},
		{
			name: "two weeks of decay",
			score: 50, ft: types.FeedbackPositive, ageDays: 14,
			want: 0.2438,
		},
		{
			name: "decay floors out",
			score: 50, ft: types.FeedbackPositive, ageDays: 1000,
			want: 0.05,
		},
		{
			name: "difficulty amplifies",
			score: 60, ft: types.FeedbackSuccess, difficulty: 0.5,
			want: 0.6217,
		},
		{
			name: "balance damping floors at half",
			score: 60, ft: types.FeedbackSuccess, typeSeen: 150,
			want: 0.2487,
		},
		{
			name: "no damping at the threshold itself",
			score: 60, ft: types.FeedbackSuccess, typeSeen: 100,
			want: 0.4974,
		},
		{
			name: "mild damping above the threshold",
			score: 60, ft: types.FeedbackSuccess, typeSeen: 110,
			want: 0.4072,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reward(tt.score, tt.ft, tt.sim, tt.ageDays, tt.difficulty, tt.typeSeen, opts)
			if math.Abs(got-tt.want) > 1e-3 {
				t.Errorf("Reward = %v, want %v", got, tt.want)
			}
			if got < -1 || got > 1 {
				t.Errorf("Reward = %v outside [-1,1]", got)
			}
		})
	}
}

func TestRewardOptionDefaults(t *testing.T) {
	var opts RewardOptions
	opts.fill()
	if opts != DefaultRewardOptions() {
		t.Errorf("filled zero options = %+v, want defaults", opts)
	}
}
