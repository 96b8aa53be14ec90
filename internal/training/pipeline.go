package training

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"artificer/internal/config"
	"artificer/internal/logging"
	"artificer/internal/types"
)

const (
	pendingBatchesFile = "pending_batches.json"
	maxPendingBatches  = 20

	// Hard negatives below this difficulty add nothing a regular
	// low-quality example would not.
	negativeDifficultyFloor = 0.3
)

// Pipeline owns the training subsystem: the example pool, the batch
// shaping components, and the stores that survive restarts. It emits
// TrainingBatch records; the trainer consuming them is external.
type Pipeline struct {
	pool       *Pool
	curriculum *Curriculum
	sizer      *BatchSizer
	weights    SelectorWeights
	augmenter  *Augmenter
	negatives  *HardNegatives
	hyper      *HyperparamStore
	tracker    *Tracker
	reward     RewardOptions

	// Generations scoring below this become failure cases.
	failureThreshold float64

	pendingPath string

	mu       sync.Mutex
	pending  []types.TrainingBatch
	lastEmit map[types.ArtifactType]int
}

// NewPipeline wires the subsystem under the storage layout.
func NewPipeline(storage config.StorageConfig, tc config.TrainingConfig) (*Pipeline, error) {
	pool, err := NewPool(storage.PoolDir(), PoolOptions{
		QualityFloor:         tc.QualityFloor,
		AdmissionScore:       tc.AdmissionScore,
		SuccessFloor:         tc.SuccessFloor,
		MaxPerType:           tc.MaxPoolSize,
		IncrementalThreshold: tc.IncrementalThreshold,
		MajorThreshold:       tc.MajorThreshold,
	})
	if err != nil {
		return nil, err
	}
	negatives, err := NewHardNegatives(storage.HardNegativesDir())
	if err != nil {
		return nil, err
	}
	hyper, err := NewHyperparamStore(storage.HyperparamsDir())
	if err != nil {
		return nil, err
	}
	tracker, err := NewTracker(storage.PerformanceDir(), TrackerOptions{
		ValRatio:             tc.Performance.ValRatio,
		MinValidationSamples: tc.Performance.MinValidationSamples,
		Seed:                 tc.Performance.Seed,
	})
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		pool:       pool,
		curriculum: NewCurriculum(tc.Curriculum.MinEvaluations, tc.Curriculum.ProgressionScore),
		sizer:      NewBatchSizer(tc.MinBatch, tc.MaxBatch, tc.TargetQuality),
		weights: SelectorWeights{
			Uncertainty: tc.ActiveLearner.UncertaintyWeight,
			Diversity:   tc.ActiveLearner.DiversityWeight,
			Quality:     tc.ActiveLearner.QualityWeight,
		},
		augmenter: NewAugmenter(tc.Augmenter.Factor, tc.Augmenter.QualityDiscount),
		negatives: negatives,
		hyper:     hyper,
		tracker:   tracker,
		reward: RewardOptions{
			DecayRate:        tc.Reward.DecayRate,
			DecayFloor:       tc.Reward.DecayFloor,
			DifficultyWeight: tc.Reward.DifficultyWeight,
			BalanceThreshold: tc.Reward.BalanceThreshold,
			BalanceFloor:     tc.Reward.BalanceFloor,
		},
		failureThreshold: tc.FailureThreshold,
		pendingPath:      filepath.Join(storage.DataDir, pendingBatchesFile),
		lastEmit:         make(map[types.ArtifactType]int),
	}
	if p.failureThreshold <= 0 {
		p.failureThreshold = 75
	}
	p.loadPending()
	return p, nil
}

// Component accessors for the service layer.
func (p *Pipeline) Pool() *Pool                   { return p.pool }
func (p *Pipeline) Negatives() *HardNegatives     { return p.negatives }
func (p *Pipeline) Tracker() *Tracker             { return p.tracker }
func (p *Pipeline) Hyperparams() *HyperparamStore { return p.hyper }
func (p *Pipeline) Curriculum() *Curriculum       { return p.curriculum }

// =============================================================================
// GENERATION INTAKE
// =============================================================================

// AdmitGenerated offers an accepted generation to the pool. Only scores at
// or above the feedback admission floor qualify; the pool applies its own
// quality and dedup gates on top.
func (p *Pipeline) AdmitGenerated(at types.ArtifactType, notes, output string, score float64) (bool, string, error) {
	if score < p.pool.opts.AdmissionScore {
		return false, fmt.Sprintf("score %.0f below admission floor %.0f", score, p.pool.opts.AdmissionScore), nil
	}
	return p.pool.Add(types.TrainingExample{
		ArtifactType: at,
		Instruction:  InstructionFor(at),
		Input:        notes,
		Output:       output,
		QualityScore: score,
		Source:       types.SourceFeedback,
	})
}

// CaptureFailure keeps a below-threshold generation for hard-negative
// mining. Scores at or above the failure threshold are not failures.
func (p *Pipeline) CaptureFailure(at types.ArtifactType, input, output string, score float64, failureType string) {
	if score >= p.failureThreshold {
		return
	}
	err := p.negatives.Record(&types.FailureCase{
		ArtifactType:    at.Normalize(),
		Input:           input,
		Output:          output,
		ValidationScore: score,
		FailureType:     failureType,
		Timestamp:       time.Now().UTC(),
	})
	if err != nil {
		logging.TrainingWarn("failure case for %s not recorded: %v", at, err)
	}
}

// =============================================================================
// BATCH EMISSION
// =============================================================================

// MaybeEmit assembles a batch when the type's pool has crossed a
// threshold and has grown a full increment since the last emission.
// Returns nil without error when there is nothing to emit.
func (p *Pipeline) MaybeEmit(at types.ArtifactType) (*types.TrainingBatch, error) {
	at = at.Normalize()
	priority, ok := p.pool.Ready(at)
	if !ok {
		return nil, nil
	}

	size := p.pool.Size(at)
	p.mu.Lock()
	grown := size - p.lastEmit[at]
	p.mu.Unlock()
	if grown < p.pool.opts.IncrementalThreshold {
		return nil, nil
	}

	return p.emit(at, priority)
}

// TriggerMajor forces a major batch. The reason explains a refusal.
func (p *Pipeline) TriggerMajor(at types.ArtifactType) (*types.TrainingBatch, string, error) {
	at = at.Normalize()
	size := p.pool.Size(at)
	if size < p.pool.opts.MajorThreshold {
		return nil, fmt.Sprintf("pool has %d of %d examples required for a major run", size, p.pool.opts.MajorThreshold), nil
	}
	batch, err := p.emit(at, types.PriorityMajor)
	return batch, "", err
}

// emit runs the full shaping sequence: size, select, add negatives,
// augment, attach hyperparameters, persist as pending.
func (p *Pipeline) emit(at types.ArtifactType, priority types.BatchPriority) (*types.TrainingBatch, error) {
	examples := p.pool.Examples(at)
	if len(examples) == 0 {
		return nil, fmt.Errorf("no pooled examples for %s", at)
	}

	avgQuality := averageQuality(examples)
	size := p.sizer.Recommend(len(examples), avgQuality/100, p.pool.TotalAdded(at), p.tracker.Trend(at))
	if size == 0 {
		return nil, fmt.Errorf("pool for %s cannot fill a minimum batch", at)
	}

	negatives, err := p.negatives.Hardest(at, negativeDifficultyFloor, size/4)
	if err != nil {
		logging.TrainingWarn("skipping hard negatives for %s: %v", at, err)
		negatives = nil
	}

	core := size - len(negatives)
	candidates := p.curriculum.Compose(at, examples, core*2)
	selected := SelectInformative(candidates, core, p.weights)

	variants := p.augmenter.Augment(selected)
	batchExamples := make([]types.TrainingExample, 0, len(selected)+len(variants)+len(negatives))
	batchExamples = append(batchExamples, selected...)
	batchExamples = append(batchExamples, variants...)
	for _, fc := range negatives {
		batchExamples = append(batchExamples, exampleFromFailure(fc))
	}

	stage := p.curriculum.StageFor(at)
	batch := &types.TrainingBatch{
		BatchID:         ulid.Make().String(),
		ArtifactType:    at,
		Examples:        batchExamples,
		Priority:        priority,
		Hyperparameters: p.hyper.Suggest(at, len(examples), avgQuality/100),
		Metadata: types.BatchMetadata{
			CurriculumStage:  StageName(stage),
			AugmentationUsed: len(variants) > 0,
			HardNegatives:    len(negatives),
			SelectedFrom:     len(examples),
			AvgQuality:       averageQuality(batchExamples),
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := p.appendPending(batch, p.pool.Size(at)); err != nil {
		return nil, err
	}
	logging.Training("emitted %s %s batch %s: %d examples (%d selected, %d augmented, %d hard negatives), stage %s",
		priority, at, batch.BatchID, len(batchExamples), len(selected), len(variants), len(negatives), batch.Metadata.CurriculumStage)
	return batch, nil
}

// exampleFromFailure carries a failing output into a batch so the
// trainer sees what rejection looks like.
func exampleFromFailure(fc *types.FailureCase) types.TrainingExample {
	return types.TrainingExample{
		ArtifactType: fc.ArtifactType,
		Instruction:  InstructionFor(fc.ArtifactType),
		Input:        fc.Input,
		Output:       fc.Output,
		QualityScore: fc.ValidationScore,
		Source:       types.SourceFeedback,
		Category:     CategoryHardNegative,
		Difficulty:   Difficulty(fc),
		CreatedAt:    fc.Timestamp,
	}
}

func averageQuality(examples []types.TrainingExample) float64 {
	if len(examples) == 0 {
		return 0
	}
	var sum float64
	for _, ex := range examples {
		sum += ex.QualityScore
	}
	return sum / float64(len(examples))
}

// =============================================================================
// EVALUATION & REWARD
// =============================================================================

// RecordEvaluation feeds one post-training evaluation into the tracker
// and the curriculum.
func (p *Pipeline) RecordEvaluation(m types.PerformanceMetrics) error {
	if err := p.tracker.Record(m); err != nil {
		return err
	}
	p.curriculum.RecordEvaluation(m.ArtifactType, m.AvgValidationScore)
	return nil
}

// RewardFor computes the training signal for one feedback event.
func (p *Pipeline) RewardFor(ev *types.FeedbackEvent) float64 {
	if ev == nil {
		return 0
	}
	sim := 0.0
	if ev.FeedbackType == types.FeedbackCorrection {
		sim = TextSimilarity(ev.AIOutput, ev.CorrectedOutput)
	}
	difficulty := EstimateDifficulty(types.TrainingExample{
		ArtifactType: ev.ArtifactType,
		Input:        ev.Context,
		Output:       ev.AIOutput,
		QualityScore: ev.ScoreValue(),
	})
	ageDays := math.Max(0, time.Since(ev.Timestamp).Hours()/24)
	return Reward(ev.ScoreValue(), ev.FeedbackType, sim, ageDays, difficulty,
		p.pool.TotalAdded(ev.ArtifactType), p.reward)
}

// =============================================================================
// PENDING BATCHES
// =============================================================================

type pendingState struct {
	LastEmit map[types.ArtifactType]int `json:"last_emit,omitempty"`
	Batches  []types.TrainingBatch      `json:"batches"`
}

// PendingBatches returns batches emitted but not yet claimed by a
// trainer, oldest first.
func (p *Pipeline) PendingBatches() []types.TrainingBatch {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.TrainingBatch, len(p.pending))
	copy(out, p.pending)
	return out
}

func (p *Pipeline) appendPending(batch *types.TrainingBatch, poolSize int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = append(p.pending, *batch)
	if len(p.pending) > maxPendingBatches {
		p.pending = p.pending[len(p.pending)-maxPendingBatches:]
	}
	p.lastEmit[batch.ArtifactType] = poolSize

	data, err := json.MarshalIndent(pendingState{LastEmit: p.lastEmit, Batches: p.pending}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pending batches: %w", err)
	}
	return atomicWrite(p.pendingPath, data)
}

func (p *Pipeline) loadPending() {
	data, err := os.ReadFile(p.pendingPath)
	if err != nil {
		return
	}
	var state pendingState
	if err := json.Unmarshal(data, &state); err != nil {
		logging.TrainingWarn("unreadable pending batches, starting fresh: %v", err)
		return
	}
	p.pending = state.Batches
	if state.LastEmit != nil {
		p.lastEmit = state.LastEmit
	}
}
