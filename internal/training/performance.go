package training

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"artificer/internal/logging"
	"artificer/internal/types"
)

const (
	historyFile    = "performance_history.json"
	bestModelsFile = "best_models.json"
	maxHistory     = 500
	trendWindow    = 3

	defaultValRatio = 0.2
	defaultMinVal   = 10
	defaultSeed     = 42
)

// TrackerOptions tune splitting and history retention.
type TrackerOptions struct {
	ValRatio             float64
	MinValidationSamples int
	Seed                 int64
}

func (o *TrackerOptions) fill() {
	if o.ValRatio <= 0 || o.ValRatio >= 1 {
		o.ValRatio = defaultValRatio
	}
	if o.MinValidationSamples <= 0 {
		o.MinValidationSamples = defaultMinVal
	}
	if o.Seed == 0 {
		o.Seed = defaultSeed
	}
}

// Tracker records per-model evaluation passes and keeps a best-model
// pointer per artifact type under the dominance order.
type Tracker struct {
	dir  string
	opts TrackerOptions

	mu      sync.Mutex
	history []types.PerformanceMetrics
	best    map[types.ArtifactType]types.PerformanceMetrics
}

func NewTracker(dir string, opts TrackerOptions) (*Tracker, error) {
	opts.fill()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create performance dir: %w", err)
	}
	t := &Tracker{dir: dir, opts: opts, best: make(map[types.ArtifactType]types.PerformanceMetrics)}
	t.load()
	return t, nil
}

// Record appends one evaluation pass and promotes the model to best for
// its type when it dominates the incumbent.
func (t *Tracker) Record(m types.PerformanceMetrics) error {
	if m.ModelID == "" || m.ArtifactType == "" {
		return fmt.Errorf("performance record requires model and artifact type")
	}
	m.ArtifactType = m.ArtifactType.Normalize()
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.history = append(t.history, m)
	if len(t.history) > maxHistory {
		t.history = t.history[len(t.history)-maxHistory:]
	}

	incumbent, ok := t.best[m.ArtifactType]
	if !ok || m.Dominates(incumbent) {
		t.best[m.ArtifactType] = m
		logging.Performance("best model for %s is now %s (score=%.1f success=%.2f)",
			m.ArtifactType, m.ModelID, m.AvgValidationScore, m.SuccessRate)
	}

	return t.persistLocked()
}

// BestModel returns the dominant model's metrics for the type.
func (t *Tracker) BestModel(at types.ArtifactType) (types.PerformanceMetrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.best[at.Normalize()]
	return m, ok
}

// History returns the most recent records for a type, newest first.
// An empty type returns records for all types.
func (t *Tracker) History(at types.ArtifactType, limit int) []types.PerformanceMetrics {
	if limit <= 0 {
		limit = 20
	}
	want := at.Normalize()

	t.mu.Lock()
	defer t.mu.Unlock()

	var out []types.PerformanceMetrics
	for i := len(t.history) - 1; i >= 0 && len(out) < limit; i-- {
		if at != "" && t.history[i].ArtifactType != want {
			continue
		}
		out = append(out, t.history[i])
	}
	return out
}

// Trend is the change in average validation score between the latest
// window of records and the window before it. Positive means improving.
func (t *Tracker) Trend(at types.ArtifactType) float64 {
	records := t.History(at, 2*trendWindow)
	if len(records) < 2 {
		return 0
	}
	// records are newest first.
	recent := records[:min(trendWindow, len(records))]
	older := records[len(recent):]
	if len(older) == 0 {
		return 0
	}
	return avgScore(recent) - avgScore(older)
}

// ShouldEarlyStop reports whether none of the last patience
// evaluations improved the best score by at least minImprovement.
func (t *Tracker) ShouldEarlyStop(at types.ArtifactType, patience int, minImprovement float64) bool {
	if patience <= 0 {
		patience = trendWindow
	}
	want := at.Normalize()

	t.mu.Lock()
	defer t.mu.Unlock()

	var scores []float64
	for _, m := range t.history {
		if m.ArtifactType == want {
			scores = append(scores, m.AvgValidationScore)
		}
	}
	if len(scores) <= patience {
		return false
	}

	best := scores[0]
	for _, s := range scores[1 : len(scores)-patience] {
		if s > best {
			best = s
		}
	}
	for _, s := range scores[len(scores)-patience:] {
		if s >= best+minImprovement {
			return false
		}
		if s > best {
			best = s
		}
	}
	return true
}

func avgScore(records []types.PerformanceMetrics) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		sum += r.AvgValidationScore
	}
	return sum / float64(len(records))
}

// =============================================================================
// STRATIFIED SPLITTING
// =============================================================================

// SplitTrainVal partitions examples into train and validation sets,
// stratified by artifact type and deterministic under the configured
// seed. The validation set gets at least MinValidationSamples when the
// data permits.
func (t *Tracker) SplitTrainVal(examples []types.TrainingExample) (train, val []types.TrainingExample) {
	if len(examples) == 0 {
		return nil, nil
	}

	groups := map[types.ArtifactType][]types.TrainingExample{}
	var order []types.ArtifactType
	for _, ex := range examples {
		at := ex.ArtifactType.Normalize()
		if _, ok := groups[at]; !ok {
			order = append(order, at)
		}
		groups[at] = append(groups[at], ex)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	rng := rand.New(rand.NewSource(t.opts.Seed))
	targetVal := int(math.Round(t.opts.ValRatio * float64(len(examples))))
	if targetVal < t.opts.MinValidationSamples {
		targetVal = t.opts.MinValidationSamples
	}
	if targetVal > len(examples)/2 {
		targetVal = len(examples) / 2
	}

	for _, at := range order {
		group := groups[at]
		rng.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })

		share := int(math.Round(float64(targetVal) * float64(len(group)) / float64(len(examples))))
		if share > len(group) {
			share = len(group)
		}
		val = append(val, group[:share]...)
		train = append(train, group[share:]...)
	}

	// Rounding can leave the validation set short; top up from train.
	for len(val) < targetVal && len(train) > len(examples)/2 {
		val = append(val, train[len(train)-1])
		train = train[:len(train)-1]
	}
	return train, val
}

// =============================================================================
// PERSISTENCE
// =============================================================================

type performanceState struct {
	History []types.PerformanceMetrics `json:"history"`
}

func (t *Tracker) persistLocked() error {
	data, err := json.MarshalIndent(performanceState{History: t.history}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode performance history: %w", err)
	}
	path := filepath.Join(t.dir, historyFile)
	if err := atomicWrite(path, data); err != nil {
		return err
	}

	bestData, err := json.MarshalIndent(t.best, "", "  ")
	if err != nil {
		return fmt.Errorf("encode best models: %w", err)
	}
	return atomicWrite(filepath.Join(t.dir, bestModelsFile), bestData)
}

func (t *Tracker) load() {
	if data, err := os.ReadFile(filepath.Join(t.dir, historyFile)); err == nil {
		var state performanceState
		if err := json.Unmarshal(data, &state); err == nil {
			t.history = state.History
		} else {
			logging.Performance("unreadable performance history, starting fresh: %v", err)
		}
	}
	if data, err := os.ReadFile(filepath.Join(t.dir, bestModelsFile)); err == nil {
		var best map[types.ArtifactType]types.PerformanceMetrics
		if err := json.Unmarshal(data, &best); err == nil {
			t.best = best
		}
	}
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
