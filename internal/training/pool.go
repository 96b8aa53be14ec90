// Package training accumulates high-quality examples per artifact type
// and assembles fine-tuning batches from them: curriculum staging,
// informativeness selection, hard negatives, augmentation, and reward
// and performance bookkeeping.
package training

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"artificer/internal/logging"
	"artificer/internal/types"
)

const (
	defaultQualityFloor     = 70
	defaultAdmissionScore   = 85
	defaultSuccessFloor     = 80
	defaultMaxPerType       = 5000
	defaultIncrementalLimit = 50
	defaultMajorLimit       = 2000
)

// Example categories beyond the default per-type one.
const (
	CategoryCorrection   = "correction"
	CategoryHardNegative = "hard_negative"
)

type PoolOptions struct {
	QualityFloor         float64 // nothing below this ever pools, default 70
	AdmissionScore       float64 // floor for positive/correction feedback, default 85
	SuccessFloor         float64 // floor for success feedback, default 80
	MaxPerType           int     // per-type cap, default 5000
	IncrementalThreshold int     // pool size that arms incremental batches, default 50
	MajorThreshold       int     // pool size that arms major runs, default 2000
}

func (o *PoolOptions) fill() {
	if o.QualityFloor <= 0 {
		o.QualityFloor = defaultQualityFloor
	}
	if o.AdmissionScore <= 0 {
		o.AdmissionScore = defaultAdmissionScore
	}
	if o.SuccessFloor <= 0 {
		o.SuccessFloor = defaultSuccessFloor
	}
	if o.MaxPerType <= 0 {
		o.MaxPerType = defaultMaxPerType
	}
	if o.IncrementalThreshold <= 0 {
		o.IncrementalThreshold = defaultIncrementalLimit
	}
	if o.MajorThreshold <= 0 {
		o.MajorThreshold = defaultMajorLimit
	}
}

// Pool holds per-type example buffers, deduplicated by content hash and
// persisted as one JSON file per artifact type.
type Pool struct {
	dir  string
	opts PoolOptions

	mu       sync.Mutex
	examples map[types.ArtifactType][]types.TrainingExample
	hashes   map[types.ArtifactType]map[string]bool
	added    map[types.ArtifactType]int // monotonic, survives eviction
}

func NewPool(dir string, opts PoolOptions) (*Pool, error) {
	opts.fill()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create pool dir: %w", err)
	}
	p := &Pool{
		dir:      dir,
		opts:     opts,
		examples: make(map[types.ArtifactType][]types.TrainingExample),
		hashes:   make(map[types.ArtifactType]map[string]bool),
		added:    make(map[types.ArtifactType]int),
	}
	if err := p.loadAll(); err != nil {
		return nil, err
	}
	return p, nil
}

// =============================================================================
// ADMISSION
// =============================================================================

// Add admits one example if it clears the quality floor and is neither
// generic nor a duplicate. The reason string explains rejections.
func (p *Pool) Add(ex types.TrainingExample) (bool, string, error) {
	ex.ArtifactType = ex.ArtifactType.Normalize()
	if ex.ArtifactType == "" {
		return false, "missing artifact type", nil
	}
	if ex.Output == "" {
		return false, "empty output", nil
	}
	if ex.QualityScore < p.opts.QualityFloor {
		return false, fmt.Sprintf("quality %.0f below floor %.0f", ex.QualityScore, p.opts.QualityFloor), nil
	}
	if reason := genericReason(ex.Output); reason != "" {
		return false, reason, nil
	}

	if ex.Hash == "" {
		ex.Hash = ExampleHash(ex)
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	if ex.Difficulty == 0 {
		ex.Difficulty = EstimateDifficulty(ex)
	}
	if ex.Category == "" {
		ex.Category = ex.ArtifactType.String()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	seen, ok := p.hashes[ex.ArtifactType]
	if !ok {
		seen = make(map[string]bool)
		p.hashes[ex.ArtifactType] = seen
	}
	if seen[ex.Hash] {
		return false, "duplicate example", nil
	}

	seen[ex.Hash] = true
	p.examples[ex.ArtifactType] = append(p.examples[ex.ArtifactType], ex)
	p.added[ex.ArtifactType]++
	p.evictLocked(ex.ArtifactType)

	if err := p.persistLocked(ex.ArtifactType); err != nil {
		return false, "", err
	}
	logging.Training("pooled %s example (quality=%.0f difficulty=%.2f source=%s), pool now %d",
		ex.ArtifactType, ex.QualityScore, ex.Difficulty, ex.Source, len(p.examples[ex.ArtifactType]))
	return true, "", nil
}

// AddFromFeedback converts an endorsement into a pool example. Only
// positive, correction, and success feedback qualify, each with its own
// score floor. Corrections contribute the corrected output.
func (p *Pool) AddFromFeedback(ev *types.FeedbackEvent) (bool, string, error) {
	if ev == nil {
		return false, "nil event", nil
	}

	output := ev.AIOutput
	score := ev.ScoreValue()
	switch ev.FeedbackType {
	case types.FeedbackPositive:
		if score < p.opts.AdmissionScore {
			return false, fmt.Sprintf("score %.0f below admission floor %.0f", score, p.opts.AdmissionScore), nil
		}
	case types.FeedbackCorrection:
		if score < p.opts.AdmissionScore {
			return false, fmt.Sprintf("score %.0f below admission floor %.0f", score, p.opts.AdmissionScore), nil
		}
		if ev.CorrectedOutput == "" {
			return false, "correction without corrected output", nil
		}
		output = ev.CorrectedOutput
	case types.FeedbackSuccess:
		if score < p.opts.SuccessFloor {
			return false, fmt.Sprintf("score %.0f below success floor %.0f", score, p.opts.SuccessFloor), nil
		}
	default:
		return false, fmt.Sprintf("%s feedback does not pool", ev.FeedbackType), nil
	}

	ex := types.TrainingExample{
		ArtifactType: ev.ArtifactType,
		Instruction:  InstructionFor(ev.ArtifactType),
		Input:        ev.Context,
		Output:       output,
		QualityScore: score,
		Source:       types.SourceFeedback,
	}
	if ev.FeedbackType == types.FeedbackCorrection {
		ex.Category = CategoryCorrection
	}
	return p.Add(ex)
}

// Clear drops every pooled example for the type, typically after a
// major run has consumed them. The monotonic added counter survives so
// rarity weighting keeps its history.
func (p *Pool) Clear(at types.ArtifactType) (int, error) {
	at = at.Normalize()

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := len(p.examples[at])
	if removed == 0 {
		return 0, nil
	}
	p.examples[at] = nil
	p.hashes[at] = make(map[string]bool)
	if err := p.persistLocked(at); err != nil {
		return removed, err
	}
	logging.Training("cleared %d pooled %s examples", removed, at)
	return removed, nil
}

// ClearSynthetic drops only augmenter-produced examples for the type.
// Real feedback entries stay untouched.
func (p *Pool) ClearSynthetic(at types.ArtifactType) (int, error) {
	at = at.Normalize()

	p.mu.Lock()
	defer p.mu.Unlock()

	buf := p.examples[at]
	kept := buf[:0]
	removed := 0
	for _, ex := range buf {
		if ex.Source == types.SourceSynthetic {
			delete(p.hashes[at], ex.Hash)
			removed++
			continue
		}
		kept = append(kept, ex)
	}
	if removed == 0 {
		return 0, nil
	}
	p.examples[at] = kept
	if err := p.persistLocked(at); err != nil {
		return removed, err
	}
	logging.Training("cleared %d synthetic %s examples, %d real remain", removed, at, len(kept))
	return removed, nil
}

// evictLocked drops the lowest-quality examples once the cap is hit,
// oldest first among ties.
func (p *Pool) evictLocked(at types.ArtifactType) {
	buf := p.examples[at]
	for len(buf) > p.opts.MaxPerType {
		worst := 0
		for i, ex := range buf {
			if ex.QualityScore < buf[worst].QualityScore ||
				(ex.QualityScore == buf[worst].QualityScore && ex.CreatedAt.Before(buf[worst].CreatedAt)) {
				worst = i
			}
		}
		delete(p.hashes[at], buf[worst].Hash)
		buf = append(buf[:worst], buf[worst+1:]...)
		logging.TrainingDebug("evicted lowest-quality %s example at cap %d", at, p.opts.MaxPerType)
	}
	p.examples[at] = buf
}

// =============================================================================
// READS
// =============================================================================

// Examples returns a copy of the type's buffer.
func (p *Pool) Examples(at types.ArtifactType) []types.TrainingExample {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf := p.examples[at.Normalize()]
	out := make([]types.TrainingExample, len(buf))
	copy(out, buf)
	return out
}

func (p *Pool) Size(at types.ArtifactType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.examples[at.Normalize()])
}

// TotalAdded counts every admission for the type, including examples
// evicted since. Feeds the rarity multiplier.
func (p *Pool) TotalAdded(at types.ArtifactType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.added[at.Normalize()]
}

// Sizes reports current pool sizes per type.
func (p *Pool) Sizes() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.examples))
	for at, buf := range p.examples {
		out[at.String()] = len(buf)
	}
	return out
}

// Ready reports whether the pool can arm a batch, and at what priority.
func (p *Pool) Ready(at types.ArtifactType) (types.BatchPriority, bool) {
	size := p.Size(at)
	switch {
	case size >= p.opts.MajorThreshold:
		return types.PriorityMajor, true
	case size >= p.opts.IncrementalThreshold:
		return types.PriorityIncremental, true
	default:
		return "", false
	}
}

// Readiness reports how close the type is to its next incremental
// batch: the examples it has versus the threshold it needs.
func (p *Pool) Readiness(at types.ArtifactType) (ready bool, needed, have int) {
	have = p.Size(at)
	needed = p.opts.IncrementalThreshold
	return have >= needed, needed, have
}

// =============================================================================
// PERSISTENCE
// =============================================================================

type poolFile struct {
	ArtifactType types.ArtifactType      `json:"artifact_type"`
	TotalAdded   int                     `json:"total_added"`
	Examples     []types.TrainingExample `json:"examples"`
}

func (p *Pool) persistLocked(at types.ArtifactType) error {
	file := poolFile{ArtifactType: at, TotalAdded: p.added[at], Examples: p.examples[at]}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pool %s: %w", at, err)
	}
	return atomicWrite(filepath.Join(p.dir, at.String()+".json"), data)
}

func (p *Pool) loadAll() error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return fmt.Errorf("scan pool dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(p.dir, e.Name()))
		if err != nil {
			continue
		}
		var file poolFile
		if err := json.Unmarshal(data, &file); err != nil {
			logging.TrainingWarn("skipping unreadable pool file %s: %v", e.Name(), err)
			continue
		}
		at := file.ArtifactType.Normalize()
		p.examples[at] = file.Examples
		p.added[at] = file.TotalAdded
		seen := make(map[string]bool, len(file.Examples))
		for _, ex := range file.Examples {
			seen[ex.Hash] = true
		}
		p.hashes[at] = seen
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// ExampleHash fingerprints the example's training-relevant content.
func ExampleHash(ex types.TrainingExample) string {
	sum := blake3.Sum256([]byte(ex.Instruction + "\x00" + ex.Input + "\x00" + ex.Output))
	return hex.EncodeToString(sum[:])
}

// InstructionFor is the canonical instruction line for a type's examples.
func InstructionFor(at types.ArtifactType) string {
	return fmt.Sprintf("Generate a %s artifact from the provided meeting notes.", at.Normalize())
}

var genericMarkers = []string{"lorem ipsum", "insert content here", "placeholder", "your text here", "tbd", "to be determined"}

// genericReason explains why an output is too generic to train on, or
// returns "" when it is usable.
func genericReason(output string) string {
	trimmed := strings.TrimSpace(output)
	if len(trimmed) < 30 {
		return "output too short to be a useful example"
	}
	lower := strings.ToLower(trimmed)
	for _, marker := range genericMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Sprintf("output contains placeholder text %q", marker)
		}
	}
	return ""
}
