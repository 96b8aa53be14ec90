package training

import (
	"math"
	"testing"
	"time"

	"artificer/internal/types"
)

func testTracker(t *testing.T, opts TrackerOptions) *Tracker {
	t.Helper()
	tr, err := NewTracker(t.TempDir(), opts)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return tr
}

func metrics(model string, at types.ArtifactType, score, success, latency float64) types.PerformanceMetrics {
	return types.PerformanceMetrics{
		ModelID:            model,
		ArtifactType:       at,
		AvgValidationScore: score,
		SuccessRate:        success,
		AvgLatencyMS:       latency,
		NSamples:           20,
	}
}

func TestTrackerBestModelDominance(t *testing.T) {
	tr := testTracker(t, TrackerOptions{})
	at := types.ArtifactMermaidERD

	steps := []struct {
		m    types.PerformanceMetrics
		best string
	}{
		{metrics("m1", at, 80, 0.8, 900), "m1"},
		{metrics("m2", at, 85, 0.7, 900), "m2"},  // higher score wins
		{metrics("m3", at, 85, 0.9, 900), "m3"},  // score tie, success breaks it
		{metrics("m4", at, 85, 0.9, 400), "m4"},  // full tie, lower latency breaks it
		{metrics("m5", at, 84, 0.99, 100), "m4"}, // lower score never wins
	}
	for i, step := range steps {
		if err := tr.Record(step.m); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
		best, ok := tr.BestModel(at)
		if !ok || best.ModelID != step.best {
			t.Fatalf("step %d: best = %q, want %q", i, best.ModelID, step.best)
		}
	}

	if _, ok := tr.BestModel(types.ArtifactMermaidFlowchart); ok {
		t.Error("untracked type reported a best model")
	}
}

func TestTrackerRecordValidation(t *testing.T) {
	tr := testTracker(t, TrackerOptions{})
	if err := tr.Record(types.PerformanceMetrics{ArtifactType: types.ArtifactMermaidERD}); err == nil {
		t.Error("record without model accepted")
	}
	if err := tr.Record(types.PerformanceMetrics{ModelID: "m1"}); err == nil {
		t.Error("record without type accepted")
	}

	m := metrics("m1", types.ArtifactMermaidERD, 80, 0.8, 500)
	if err := tr.Record(m); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if got := tr.History(types.ArtifactMermaidERD, 1); got[0].Timestamp.IsZero() {
		t.Error("timestamp not filled")
	}
}

func TestTrackerHistoryAndTrend(t *testing.T) {
	tr := testTracker(t, TrackerOptions{})
	at := types.ArtifactMermaidERD

	if got := tr.Trend(at); got != 0 {
		t.Errorf("trend with no history = %v, want 0", got)
	}

	scores := []float64{60, 60, 60, 70, 70, 70}
	for i, s := range scores {
		m := metrics("m1", at, s, 0.8, 500)
		m.Timestamp = time.Now().Add(time.Duration(i) * time.Minute)
		if err := tr.Record(m); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	tr.Record(metrics("m1", types.ArtifactMermaidFlowchart, 95, 1, 100))

	history := tr.History(at, 4)
	if len(history) != 4 {
		t.Fatalf("history len = %d, want 4", len(history))
	}
	if history[0].AvgValidationScore != 70 || history[3].AvgValidationScore != 60 {
		t.Errorf("history not newest-first: %v then %v",
			history[0].AvgValidationScore, history[3].AvgValidationScore)
	}

	if got := tr.Trend(at); math.Abs(got-10) > 1e-9 {
		t.Errorf("trend = %v, want +10", got)
	}
}

func TestTrackerShouldEarlyStop(t *testing.T) {
	at := types.ArtifactMermaidERD

	record := func(tr *Tracker, scores ...float64) {
		t.Helper()
		for _, s := range scores {
			if err := tr.Record(metrics("m1", at, s, 0.8, 500)); err != nil {
				t.Fatalf("Record: %v", err)
			}
		}
	}

	improving := testTracker(t, TrackerOptions{})
	record(improving, 60, 65, 70, 75)
	if improving.ShouldEarlyStop(at, 3, 1) {
		t.Error("early stop while improving")
	}

	plateau := testTracker(t, TrackerOptions{})
	record(plateau, 70, 70.4, 70.1, 70.3)
	if !plateau.ShouldEarlyStop(at, 3, 1) {
		t.Error("no early stop on a plateau")
	}

	short := testTracker(t, TrackerOptions{})
	record(short, 70, 70, 70)
	if short.ShouldEarlyStop(at, 3, 1) {
		t.Error("early stop without enough history")
	}
}

func splitFixture(n int, at types.ArtifactType) []types.TrainingExample {
	out := make([]types.TrainingExample, n)
	for i := range out {
		ex := poolExample(i, 85)
		ex.ArtifactType = at
		out[i] = ex
	}
	return out
}

func TestSplitTrainVal(t *testing.T) {
	tr := testTracker(t, TrackerOptions{ValRatio: 0.2, MinValidationSamples: 10, Seed: 42})

	t.Run("standard ratio", func(t *testing.T) {
		train, val := tr.SplitTrainVal(splitFixture(100, types.ArtifactMermaidERD))
		if len(val) != 20 || len(train) != 80 {
			t.Errorf("split = %d/%d, want 80/20", len(train), len(val))
		}
	})

	t.Run("minimum validation samples win", func(t *testing.T) {
		train, val := tr.SplitTrainVal(splitFixture(30, types.ArtifactMermaidERD))
		if len(val) != 10 || len(train) != 20 {
			t.Errorf("split = %d/%d, want 20/10", len(train), len(val))
		}
	})

	t.Run("tiny inputs cap at half", func(t *testing.T) {
		train, val := tr.SplitTrainVal(splitFixture(12, types.ArtifactMermaidERD))
		if len(val) != 6 || len(train) != 6 {
			t.Errorf("split = %d/%d, want 6/6", len(train), len(val))
		}
	})

	t.Run("stratified across types", func(t *testing.T) {
		examples := append(splitFixture(50, types.ArtifactMermaidERD),
			splitFixture(50, types.ArtifactMermaidFlowchart)...)
		_, val := tr.SplitTrainVal(examples)
		counts := map[types.ArtifactType]int{}
		for _, ex := range val {
			counts[ex.ArtifactType]++
		}
		if counts[types.ArtifactMermaidERD] != 10 || counts[types.ArtifactMermaidFlowchart] != 10 {
			t.Errorf("validation type counts = %v, want 10 each", counts)
		}
	})

	t.Run("deterministic under the seed", func(t *testing.T) {
		examples := splitFixture(40, types.ArtifactMermaidERD)
		train1, val1 := tr.SplitTrainVal(examples)
		train2, val2 := tr.SplitTrainVal(examples)
		for i := range val1 {
			if val1[i].Input != val2[i].Input {
				t.Fatal("validation split differs between runs")
			}
		}
		for i := range train1 {
			if train1[i].Input != train2[i].Input {
				t.Fatal("train split differs between runs")
			}
		}
	})

	t.Run("empty input", func(t *testing.T) {
		train, val := tr.SplitTrainVal(nil)
		if train != nil || val != nil {
			t.Error("empty input produced a split")
		}
	})
}

func TestTrackerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewTracker(dir, TrackerOptions{})
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	at := types.ArtifactMermaidERD
	tr.Record(metrics("m1", at, 80, 0.8, 500))
	tr.Record(metrics("m2", at, 90, 0.9, 400))

	reopened, err := NewTracker(dir, TrackerOptions{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.History(at, 10); len(got) != 2 {
		t.Errorf("history after reopen = %d records, want 2", len(got))
	}
	best, ok := reopened.BestModel(at)
	if !ok || best.ModelID != "m2" {
		t.Errorf("best after reopen = %+v, want m2", best)
	}
}
