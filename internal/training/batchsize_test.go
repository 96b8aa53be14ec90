package training

import "testing"

func TestBatchSizerRecommend(t *testing.T) {
	s := NewBatchSizer(20, 100, 0.6)

	tests := []struct {
		name     string
		poolSize int
		quality  float64
		seen     int
		trend    float64
		want     int
	}{
		{"below minimum pool", 10, 0.7, 500, 0, 0},
		{"one short of minimum", 19, 0.7, 500, 0, 0},
		{"small pool neutral multipliers", 25, 0.7, 500, 0, 20},
		{"strong quality shrinks", 40, 0.85, 500, 0, 21},
		{"weak quality grows capped by pool", 60, 0.5, 500, 0, 60},
		{"mid pool", 150, 0.7, 500, 0, 75},
		{"strong improvement hits ceiling", 300, 0.7, 500, 6, 100},
		{"rare type halves", 300, 0.7, 40, 0, 50},
		{"rare and declining", 300, 0.7, 80, -6, 56},
		{"strong quality mild decline", 300, 0.9, 500, -2, 63},
		{"weak quality improving clamps", 300, 0.5, 500, 2, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Recommend(tt.poolSize, tt.quality, tt.seen, tt.trend)
			if got != tt.want {
				t.Errorf("Recommend(%d, %.2f, %d, %.1f) = %d, want %d",
					tt.poolSize, tt.quality, tt.seen, tt.trend, got, tt.want)
			}
		})
	}
}

func TestBatchSizerDefaults(t *testing.T) {
	s := NewBatchSizer(0, 0, 0)
	if s.Min != defaultMinBatch || s.Max != defaultMaxBatch || s.TargetQuality != defaultTargetQuality {
		t.Errorf("defaults = %+v", s)
	}
}

func TestTrendMultiplierBuckets(t *testing.T) {
	tests := []struct {
		delta float64
		want  float64
	}{
		{8, 1.2}, {5, 1.2}, {3, 1.1}, {1, 1.1}, {0, 1.0}, {-0.5, 1.0}, {-3, 0.9}, {-5, 0.8}, {-10, 0.8},
	}
	for _, tt := range tests {
		if got := trendMultiplier(tt.delta); got != tt.want {
			t.Errorf("trendMultiplier(%v) = %v, want %v", tt.delta, got, tt.want)
		}
	}
}
