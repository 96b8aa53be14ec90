package service

import (
	"artificer/internal/feedback"
	"artificer/internal/logging"
	"artificer/internal/types"
)

// =============================================================================
// FEEDBACK
// =============================================================================

// FeedbackReceipt reports what one feedback event set in motion.
type FeedbackReceipt struct {
	Recorded          bool    `json:"recorded"`
	Pooled            bool    `json:"pooled"`
	PoolReason        string  `json:"pool_reason,omitempty"`
	ExamplesCollected int     `json:"examples_collected"`
	Reward            float64 `json:"reward"`
	TrainingTriggered bool    `json:"training_triggered"`
	BatchID           string  `json:"batch_id,omitempty"`
}

// SubmitFeedback records the event, offers it to the finetuning pool,
// captures complaint output as a hard negative, and emits an
// incremental batch when the pool crosses its threshold. Pool and batch
// trouble never unrecords the event; it surfaces on the receipt.
func (s *Service) SubmitFeedback(ev *types.FeedbackEvent) (*FeedbackReceipt, error) {
	if err := s.feedback.Record(ev); err != nil {
		return nil, err
	}
	receipt := &FeedbackReceipt{Recorded: true, Reward: s.training.RewardFor(ev)}

	pooled, reason, err := s.training.Pool().AddFromFeedback(ev)
	if err != nil {
		logging.ServiceDebug("pool admission for %s failed: %v", ev.ArtifactID, err)
		reason = "pool error: " + err.Error()
	}
	receipt.Pooled = pooled
	receipt.PoolReason = reason
	receipt.ExamplesCollected = s.training.Pool().Size(ev.ArtifactType)

	s.captureNegative(ev)

	if pooled {
		batch, err := s.training.MaybeEmit(ev.ArtifactType)
		if err != nil {
			logging.ServiceDebug("batch emission for %s failed: %v", ev.ArtifactType, err)
		} else if batch != nil {
			receipt.TrainingTriggered = true
			receipt.BatchID = batch.BatchID
		}
	}
	return receipt, nil
}

// captureNegative turns complaint feedback that carries the model's
// output into a hard-negative record.
func (s *Service) captureNegative(ev *types.FeedbackEvent) {
	if ev.AIOutput == "" {
		return
	}
	switch ev.FeedbackType {
	case types.FeedbackNegative, types.FeedbackValidationFailure:
		s.training.CaptureFailure(ev.ArtifactType, ev.Context, ev.AIOutput, ev.ScoreValue(), ev.FeedbackType.String())
	}
}

// GetFeedbackHistory returns recent feedback, newest first, optionally
// filtered by artifact type.
func (s *Service) GetFeedbackHistory(artifactType types.ArtifactType, limit int) ([]*types.FeedbackEvent, error) {
	return s.feedback.History(artifactType, limit)
}

// GetFeedbackStats summarizes the whole feedback log.
func (s *Service) GetFeedbackStats() (*feedback.Stats, error) {
	return s.feedback.Stats()
}

// TrainingReadiness reports how close a type's pool is to its next
// batch and at what priority one would emit.
type TrainingReadiness struct {
	ArtifactType string              `json:"artifact_type"`
	Ready        bool                `json:"ready"`
	Priority     types.BatchPriority `json:"priority,omitempty"`
	Have         int                 `json:"have"`
	Needed       int                 `json:"needed"`
}

// CheckTrainingReady reports pool readiness for one artifact type.
func (s *Service) CheckTrainingReady(artifactType types.ArtifactType) *TrainingReadiness {
	ready, needed, have := s.training.Pool().Readiness(artifactType)
	r := &TrainingReadiness{
		ArtifactType: artifactType.Normalize().String(),
		Ready:        ready,
		Have:         have,
		Needed:       needed,
	}
	if priority, ok := s.training.Pool().Ready(artifactType); ok {
		r.Priority = priority
	}
	return r
}

// =============================================================================
// FINETUNING POOL
// =============================================================================

// PoolStats is the pool surface: per-type sizes plus readiness detail
// when the call names a type.
type PoolStats struct {
	Sizes          map[string]int     `json:"sizes"`
	Total          int                `json:"total"`
	PendingBatches int                `json:"pending_batches"`
	TotalAdded     int                `json:"total_added,omitempty"`
	Detail         *TrainingReadiness `json:"detail,omitempty"`
}

// GetPoolStats reports pool sizes and, for a named type, its readiness.
func (s *Service) GetPoolStats(artifactType types.ArtifactType) *PoolStats {
	pool := s.training.Pool()
	stats := &PoolStats{
		Sizes:          pool.Sizes(),
		PendingBatches: len(s.training.PendingBatches()),
	}
	for _, n := range stats.Sizes {
		stats.Total += n
	}
	if artifactType != "" {
		stats.TotalAdded = pool.TotalAdded(artifactType)
		stats.Detail = s.CheckTrainingReady(artifactType)
	}
	return stats
}

// TriggerOutcome reports a TriggerMajor decision.
type TriggerOutcome struct {
	Triggered bool                 `json:"triggered"`
	Reason    string               `json:"reason,omitempty"`
	Batch     *types.TrainingBatch `json:"batch,omitempty"`
}

// TriggerMajor forces a major fine-tuning batch for the type. A pool
// below the major threshold is a refusal outcome, not an error.
func (s *Service) TriggerMajor(artifactType types.ArtifactType) (*TriggerOutcome, error) {
	batch, reason, err := s.training.TriggerMajor(artifactType)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return &TriggerOutcome{Reason: reason}, nil
	}
	return &TriggerOutcome{Triggered: true, Batch: batch}, nil
}

// ClearPool drops every pooled example for the type and reports how
// many were removed.
func (s *Service) ClearPool(artifactType types.ArtifactType) (int, error) {
	return s.training.Pool().Clear(artifactType)
}

// ClearSyntheticPool drops only augmenter-produced examples for the
// type, leaving real feedback examples in place.
func (s *Service) ClearSyntheticPool(artifactType types.ArtifactType) (int, error) {
	return s.training.Pool().ClearSynthetic(artifactType)
}

// =============================================================================
// MODEL PERFORMANCE
// =============================================================================

const (
	earlyStopPatience       = 3
	earlyStopMinImprovement = 1.0
)

// RecordEvaluation feeds one post-training evaluation into performance
// history, best-model tracking, and the curriculum.
func (s *Service) RecordEvaluation(m types.PerformanceMetrics) error {
	return s.training.RecordEvaluation(m)
}

// BestModel returns the best evaluated model for the type, if any.
func (s *Service) BestModel(artifactType types.ArtifactType) (types.PerformanceMetrics, bool) {
	return s.training.Tracker().BestModel(artifactType)
}

// PerformanceHistory returns recent evaluations, newest first.
func (s *Service) PerformanceHistory(artifactType types.ArtifactType, limit int) []types.PerformanceMetrics {
	return s.training.Tracker().History(artifactType, limit)
}

// ShouldEarlyStop reports whether the type's evaluations have plateaued:
// no improvement above 1.0 points across the last 3 runs.
func (s *Service) ShouldEarlyStop(artifactType types.ArtifactType) bool {
	return s.training.Tracker().ShouldEarlyStop(artifactType, earlyStopPatience, earlyStopMinImprovement)
}
