package training

import (
	"testing"

	"artificer/internal/types"
)

func TestHyperparamSuggestByPoolSize(t *testing.T) {
	s, err := NewHyperparamStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewHyperparamStore: %v", err)
	}

	small := s.Suggest(types.ArtifactMermaidERD, 50, 0.8)
	if small.LoraR != 8 || small.LoraAlpha != 16 || small.LearningRate != 1e-4 || small.NumEpochs != 5 {
		t.Errorf("small-pool params = %+v, want conservative settings", small)
	}

	mid := s.Suggest(types.ArtifactMermaidERD, 200, 0.8)
	if mid != DefaultHyperparameters() {
		t.Errorf("mid-pool params = %+v, want defaults", mid)
	}

	large := s.Suggest(types.ArtifactMermaidERD, 800, 0.8)
	if large.LoraR != 32 || large.LoraAlpha != 64 || large.NumEpochs != 2 {
		t.Errorf("large-pool params = %+v, want capacity settings", large)
	}

	noisy := s.Suggest(types.ArtifactMermaidERD, 200, 0.4)
	if noisy.LoraDropout != 0.1 {
		t.Errorf("low-quality dropout = %v, want 0.1", noisy.LoraDropout)
	}
}

func TestHyperparamRecordKeepsBest(t *testing.T) {
	dir := t.TempDir()
	s, err := NewHyperparamStore(dir)
	if err != nil {
		t.Fatalf("NewHyperparamStore: %v", err)
	}
	at := types.ArtifactMermaidERD

	first := DefaultHyperparameters()
	first.LoraR = 8
	if err := s.RecordResult(at, first, 72); err != nil {
		t.Fatalf("RecordResult: %v", err)
	}

	// A worse score must not displace the best.
	worse := DefaultHyperparameters()
	worse.LoraR = 64
	if err := s.RecordResult(at, worse, 60); err != nil {
		t.Fatalf("RecordResult: %v", err)
	}
	if got, ok := s.LoadBest(at); !ok || got.LoraR != 8 {
		t.Fatalf("best after worse record = %+v, want r=8 kept", got)
	}

	better := DefaultHyperparameters()
	better.LoraR = 32
	if err := s.RecordResult(at, better, 88); err != nil {
		t.Fatalf("RecordResult: %v", err)
	}
	if got, _ := s.LoadBest(at); got.LoraR != 32 {
		t.Fatalf("best after better record = %+v, want r=32", got)
	}

	// Suggest prefers the remembered best over pool tuning.
	if got := s.Suggest(at, 50, 0.8); got.LoraR != 32 {
		t.Errorf("Suggest = %+v, want remembered best", got)
	}

	// A fresh store lazily reloads from disk.
	reopened, err := NewHyperparamStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got, ok := reopened.LoadBest(at); !ok || got.LoraR != 32 {
		t.Fatalf("best after reopen = %+v, want r=32", got)
	}

	// Types are independent.
	if _, ok := reopened.LoadBest(types.ArtifactMermaidFlowchart); ok {
		t.Error("unrecorded type reported a best")
	}
}
