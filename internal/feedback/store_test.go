package feedback

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"artificer/internal/types"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	return s, filepath.Join(dir, eventsFile)
}

func scorePtr(v float64) *float64 { return &v }

func TestRecordFillsDefaults(t *testing.T) {
	s, _ := newTestStore(t)

	ev := &types.FeedbackEvent{
		ArtifactID:   "alpha::mermaid_erd",
		ArtifactType: types.ArtifactMermaidERD,
		FeedbackType: types.FeedbackPositive,
	}
	if err := s.Record(ev); err != nil {
		t.Fatal(err)
	}

	if ev.ID == "" {
		t.Error("id not assigned")
	}
	if ev.Timestamp.IsZero() {
		t.Error("timestamp not assigned")
	}
	if ev.Score == nil || *ev.Score != 85 {
		t.Errorf("normalized score = %v, want 85", ev.Score)
	}
}

func TestRecordKeepsExplicitZeroScore(t *testing.T) {
	s, _ := newTestStore(t)

	ev := &types.FeedbackEvent{
		ArtifactID:   "alpha::mermaid_erd",
		ArtifactType: types.ArtifactMermaidERD,
		FeedbackType: types.FeedbackPositive,
		Score:        scorePtr(0),
	}
	if err := s.Record(ev); err != nil {
		t.Fatal(err)
	}
	if ev.Score == nil || *ev.Score != 0 {
		t.Errorf("explicit zero score overwritten: %v", ev.Score)
	}

	hist, err := s.History(types.ArtifactMermaidERD, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].ScoreValue() != 0 {
		t.Errorf("persisted score = %v, want 0", hist[0].Score)
	}
}

func TestNormalizedScores(t *testing.T) {
	tests := []struct {
		ft   types.FeedbackType
		want float64
	}{
		{types.FeedbackPositive, 85},
		{types.FeedbackCorrection, 85},
		{types.FeedbackNegative, 60},
		{types.FeedbackSuccess, 70},
		{types.FeedbackValidationFailure, 70},
	}
	for _, tt := range tests {
		if got := NormalizedScore(tt.ft); got != tt.want {
			t.Errorf("NormalizedScore(%s) = %.0f, want %.0f", tt.ft, got, tt.want)
		}
	}
}

func TestRecordRejectsBadEvents(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.Record(&types.FeedbackEvent{FeedbackType: types.FeedbackPositive}); err == nil {
		t.Error("missing artifact type accepted")
	}
	if err := s.Record(&types.FeedbackEvent{ArtifactType: types.ArtifactMermaidERD, FeedbackType: "meh"}); err == nil {
		t.Error("unknown feedback type accepted")
	}
}

func TestHistoryFilterAndOrder(t *testing.T) {
	s, _ := newTestStore(t)

	for i, ft := range []types.FeedbackType{types.FeedbackPositive, types.FeedbackNegative, types.FeedbackSuccess} {
		ev := &types.FeedbackEvent{
			ArtifactID:   "alpha::mermaid_erd",
			ArtifactType: types.ArtifactMermaidERD,
			FeedbackType: ft,
			Score:        scorePtr(float64(70 + i)),
			Timestamp:    time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC),
		}
		if err := s.Record(ev); err != nil {
			t.Fatal(err)
		}
	}
	s.Record(&types.FeedbackEvent{
		ArtifactID:   "alpha::api_docs",
		ArtifactType: types.ArtifactAPIDocs,
		FeedbackType: types.FeedbackPositive,
	})

	erd, err := s.History(types.ArtifactMermaidERD, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(erd) != 3 {
		t.Fatalf("got %d erd events, want 3", len(erd))
	}
	if erd[0].FeedbackType != types.FeedbackSuccess {
		t.Errorf("history not newest-first: first is %s", erd[0].FeedbackType)
	}

	limited, _ := s.History(types.ArtifactMermaidERD, 2)
	if len(limited) != 2 {
		t.Errorf("limit ignored: got %d", len(limited))
	}

	all, _ := s.History("", 10)
	if len(all) != 4 {
		t.Errorf("unfiltered history = %d events, want 4", len(all))
	}
}

func TestTornFinalLineTolerated(t *testing.T) {
	s, path := newTestStore(t)

	s.Record(&types.FeedbackEvent{ArtifactID: "a::mermaid_erd", ArtifactType: types.ArtifactMermaidERD, FeedbackType: types.FeedbackPositive})
	s.Record(&types.FeedbackEvent{ArtifactID: "a::mermaid_erd", ArtifactType: types.ArtifactMermaidERD, FeedbackType: types.FeedbackNegative})

	// Simulate a crash mid-append.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"id":"torn","artifact_type":"mer`)
	f.Close()

	events, err := s.History("", 10)
	if err != nil {
		t.Fatalf("torn line broke reads: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2 intact ones", len(events))
	}

	// The log still accepts appends afterwards.
	if err := s.Record(&types.FeedbackEvent{ArtifactID: "a::mermaid_erd", ArtifactType: types.ArtifactMermaidERD, FeedbackType: types.FeedbackSuccess}); err != nil {
		t.Fatal(err)
	}
}

func TestCorruptMiddleLineSkipped(t *testing.T) {
	s, path := newTestStore(t)

	s.Record(&types.FeedbackEvent{ArtifactID: "a::mermaid_erd", ArtifactType: types.ArtifactMermaidERD, FeedbackType: types.FeedbackPositive})
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	f.WriteString("not json at all\n")
	f.Close()
	s.Record(&types.FeedbackEvent{ArtifactID: "a::mermaid_erd", ArtifactType: types.ArtifactMermaidERD, FeedbackType: types.FeedbackNegative})

	events, err := s.History("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
}

func TestByArtifact(t *testing.T) {
	s, _ := newTestStore(t)

	s.Record(&types.FeedbackEvent{ArtifactID: "a::mermaid_erd", ArtifactType: types.ArtifactMermaidERD, FeedbackType: types.FeedbackPositive})
	s.Record(&types.FeedbackEvent{ArtifactID: "b::mermaid_erd", ArtifactType: types.ArtifactMermaidERD, FeedbackType: types.FeedbackNegative})
	s.Record(&types.FeedbackEvent{ArtifactID: "a::mermaid_erd", ArtifactType: types.ArtifactMermaidERD, FeedbackType: types.FeedbackSuccess})

	got, err := s.ByArtifact("a::mermaid_erd")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].FeedbackType != types.FeedbackPositive || got[1].FeedbackType != types.FeedbackSuccess {
		t.Errorf("order wrong: %s then %s", got[0].FeedbackType, got[1].FeedbackType)
	}
}

func TestStats(t *testing.T) {
	s, _ := newTestStore(t)

	s.Record(&types.FeedbackEvent{ArtifactID: "a::mermaid_erd", ArtifactType: types.ArtifactMermaidERD, FeedbackType: types.FeedbackPositive, Score: scorePtr(90)})
	s.Record(&types.FeedbackEvent{ArtifactID: "a::mermaid_erd", ArtifactType: types.ArtifactMermaidERD, FeedbackType: types.FeedbackNegative, Score: scorePtr(50)})

	stats, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 {
		t.Errorf("total = %d", stats.Total)
	}
	if stats.ByType["positive"] != 1 || stats.ByType["negative"] != 1 {
		t.Errorf("by_type = %v", stats.ByType)
	}
	if stats.AvgScore != 70 {
		t.Errorf("avg = %.1f, want 70", stats.AvgScore)
	}
}
