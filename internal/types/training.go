package types

import "time"

// =============================================================================
// FEEDBACK
// =============================================================================

// FeedbackType classifies a recorded judgment on an artifact.
type FeedbackType string

const (
	FeedbackPositive          FeedbackType = "positive"
	FeedbackNegative          FeedbackType = "negative"
	FeedbackCorrection        FeedbackType = "correction"
	FeedbackValidationFailure FeedbackType = "validation_failure"
	FeedbackSuccess           FeedbackType = "success"
)

func (t FeedbackType) String() string { return string(t) }

// FeedbackEvent is one append-only feedback record. Score is the
// validation score when the caller supplied one; nil means unset, so
// an explicit zero survives normalization. Recording fills nil with
// the normalized default for the feedback type.
type FeedbackEvent struct {
	ID              string       `json:"id"`
	ArtifactID      string       `json:"artifact_id"`
	ArtifactType    ArtifactType `json:"artifact_type"`
	FeedbackType    FeedbackType `json:"feedback_type"`
	Score           *float64     `json:"score,omitempty"`
	AIOutput        string       `json:"ai_output,omitempty"`
	CorrectedOutput string       `json:"corrected_output,omitempty"`
	Context         string       `json:"context,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
}

// ScoreValue returns the score, or 0 when none was supplied.
func (e *FeedbackEvent) ScoreValue() float64 {
	if e.Score != nil {
		return *e.Score
	}
	return 0
}

// =============================================================================
// TRAINING EXAMPLES & BATCHES
// =============================================================================

// TrainingSource says where a pool example came from.
type TrainingSource string

const (
	SourceFeedback  TrainingSource = "feedback"
	SourceSynthetic TrainingSource = "synthetic"
)

// TrainingExample is one instruction-tuning record in a type-scoped pool.
type TrainingExample struct {
	ArtifactType ArtifactType   `json:"artifact_type"`
	Instruction  string         `json:"instruction"`
	Input        string         `json:"input"`
	Output       string         `json:"output"`
	QualityScore float64        `json:"quality_score"`
	Source       TrainingSource `json:"source"`
	Category     string         `json:"category,omitempty"`
	Difficulty   float64        `json:"difficulty,omitempty"`
	Hash         string         `json:"hash,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// BatchPriority distinguishes incremental pool flushes from major runs.
type BatchPriority string

const (
	PriorityIncremental BatchPriority = "incremental"
	PriorityMajor       BatchPriority = "major"
)

// Hyperparameters is the fine-tuning configuration attached to a batch.
// Defaults follow the usual LoRA recipe (r=16, alpha=32).
type Hyperparameters struct {
	LearningRate float64 `json:"learning_rate"`
	BatchSize    int     `json:"batch_size"`
	NumEpochs    int     `json:"num_epochs"`
	WarmupRatio  float64 `json:"warmup_ratio"`
	LoraR        int     `json:"lora_r"`
	LoraAlpha    int     `json:"lora_alpha"`
	LoraDropout  float64 `json:"lora_dropout"`
}

// BatchMetadata records how a training batch was assembled.
type BatchMetadata struct {
	CurriculumStage  string  `json:"curriculum_stage,omitempty"`
	AugmentationUsed bool    `json:"augmentation_used,omitempty"`
	HardNegatives    int     `json:"hard_negatives,omitempty"`
	SelectedFrom     int     `json:"selected_from,omitempty"`
	AvgQuality       float64 `json:"avg_quality,omitempty"`
}

// TrainingBatch is emitted when a pool threshold is crossed. The consumer
// (the trainer) is external; the batch is persisted as a pending job.
type TrainingBatch struct {
	BatchID         string            `json:"batch_id"`
	ArtifactType    ArtifactType      `json:"artifact_type"`
	Examples        []TrainingExample `json:"examples"`
	Priority        BatchPriority     `json:"priority"`
	Hyperparameters Hyperparameters   `json:"hyperparameters"`
	Metadata        BatchMetadata     `json:"metadata"`
	CreatedAt       time.Time         `json:"created_at"`
}

// =============================================================================
// PERFORMANCE & FAILURES
// =============================================================================

// PerformanceMetrics summarizes one evaluation pass of a model on a type.
type PerformanceMetrics struct {
	ModelID            string       `json:"model_id"`
	ArtifactType       ArtifactType `json:"artifact_type"`
	AvgValidationScore float64      `json:"avg_validation_score"`
	SuccessRate        float64      `json:"success_rate"`
	AvgReward          float64      `json:"avg_reward"`
	AvgLatencyMS       float64      `json:"avg_latency_ms"`
	NSamples           int          `json:"n_samples"`
	Timestamp          time.Time    `json:"timestamp"`
}

// Dominates reports whether m beats other under the (score, success rate,
// inverse latency) lexicographic order used for best-per-type pointers.
func (m PerformanceMetrics) Dominates(other PerformanceMetrics) bool {
	if m.AvgValidationScore != other.AvgValidationScore {
		return m.AvgValidationScore > other.AvgValidationScore
	}
	if m.SuccessRate != other.SuccessRate {
		return m.SuccessRate > other.SuccessRate
	}
	return m.AvgLatencyMS < other.AvgLatencyMS
}

// FailureCase captures a low-scoring generation for hard-negative mining.
type FailureCase struct {
	ArtifactType      ArtifactType       `json:"artifact_type"`
	Input             string             `json:"input"`
	Output            string             `json:"output"`
	ValidationScore   float64            `json:"validation_score"`
	FailureType       string             `json:"failure_type"`
	ComplexityFactors map[string]float64 `json:"complexity_factors,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
}
