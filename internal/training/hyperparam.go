package training

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"artificer/internal/logging"
	"artificer/internal/types"
)

// =============================================================================
// HYPERPARAMETER SUGGESTION
// =============================================================================

// DefaultHyperparameters is the standard LoRA recipe batches start from.
func DefaultHyperparameters() types.Hyperparameters {
	return types.Hyperparameters{
		LearningRate: 2e-4,
		BatchSize:    4,
		NumEpochs:    3,
		WarmupRatio:  0.05,
		LoraR:        16,
		LoraAlpha:    32,
		LoraDropout:  0.05,
	}
}

type bestParams struct {
	Params    types.Hyperparameters `json:"params"`
	Score     float64               `json:"score"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// HyperparamStore remembers the best-scoring parameters per artifact
// type, one JSON file each, and suggests parameters for new batches.
type HyperparamStore struct {
	dir string

	mu   sync.Mutex
	best map[types.ArtifactType]*bestParams
}

func NewHyperparamStore(dir string) (*HyperparamStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create hyperparams dir: %w", err)
	}
	return &HyperparamStore{dir: dir, best: make(map[types.ArtifactType]*bestParams)}, nil
}

func (s *HyperparamStore) pathFor(at types.ArtifactType) string {
	return filepath.Join(s.dir, fmt.Sprintf("best_params_%s.json", at.Normalize()))
}

// Suggest returns parameters for the next batch: the remembered best
// when one exists, otherwise a pool-size-tuned variant of the defaults.
// Small pools get conservative settings to resist overfitting.
func (s *HyperparamStore) Suggest(at types.ArtifactType, poolSize int, avgQuality float64) types.Hyperparameters {
	if best, ok := s.LoadBest(at); ok {
		return best
	}

	p := DefaultHyperparameters()
	switch {
	case poolSize < 100:
		p.LoraR = 8
		p.LoraAlpha = 16
		p.LearningRate = 1e-4
		p.NumEpochs = 5
	case poolSize < 500:
		// defaults
	default:
		p.LoraR = 32
		p.LoraAlpha = 64
		p.NumEpochs = 2
	}
	if avgQuality < 0.5 {
		p.LoraDropout = 0.1
	}
	return p
}

// RecordResult stores the parameters when their evaluation score beats
// the remembered best for the type.
func (s *HyperparamStore) RecordResult(at types.ArtifactType, params types.Hyperparameters, score float64) error {
	at = at.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.loadLocked(at)
	if current != nil && current.Score >= score {
		return nil
	}

	entry := &bestParams{Params: params, Score: score, UpdatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode best params: %w", err)
	}
	if err := atomicWrite(s.pathFor(at), data); err != nil {
		return err
	}
	s.best[at] = entry
	logging.Training("new best hyperparameters for %s (score=%.1f lr=%.0e r=%d)",
		at, score, params.LearningRate, params.LoraR)
	return nil
}

// LoadBest returns the remembered best parameters for the type.
func (s *HyperparamStore) LoadBest(at types.ArtifactType) (types.Hyperparameters, bool) {
	at = at.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry := s.loadLocked(at); entry != nil {
		return entry.Params, true
	}
	return types.Hyperparameters{}, false
}

func (s *HyperparamStore) loadLocked(at types.ArtifactType) *bestParams {
	if entry, ok := s.best[at]; ok {
		return entry
	}
	data, err := os.ReadFile(s.pathFor(at))
	if err != nil {
		return nil
	}
	var entry bestParams
	if err := json.Unmarshal(data, &entry); err != nil {
		logging.TrainingWarn("unreadable best params for %s: %v", at, err)
		return nil
	}
	s.best[at] = &entry
	return &entry
}
