package events

import (
	"time"

	"artificer/internal/types"
)

// Constructors for the event shapes the generation pipeline emits.

func Started(jobID string, quality *types.QualityPrediction) *types.Event {
	return &types.Event{
		JobID:     jobID,
		Kind:      types.EventStarted,
		Quality:   quality,
		Timestamp: time.Now().UTC(),
	}
}

func Progress(jobID string, progress float64, message string) *types.Event {
	return &types.Event{
		JobID:     jobID,
		Kind:      types.EventProgress,
		Progress:  progress,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// QualityForecast is the progress event carrying the pre-generation
// quality prediction.
func QualityForecast(jobID string, quality *types.QualityPrediction) *types.Event {
	return &types.Event{
		JobID:     jobID,
		Kind:      types.EventProgress,
		Progress:  0.1,
		Message:   "quality_forecast",
		Quality:   quality,
		Timestamp: time.Now().UTC(),
	}
}

func Chunk(jobID, chunk string) *types.Event {
	return &types.Event{
		JobID:     jobID,
		Kind:      types.EventChunk,
		Chunk:     chunk,
		Timestamp: time.Now().UTC(),
	}
}

func Complete(jobID string, artifact *types.Artifact, quality *types.QualityPrediction) *types.Event {
	ev := &types.Event{
		JobID:     jobID,
		Kind:      types.EventComplete,
		Progress:  1,
		Artifact:  artifact,
		Quality:   quality,
		Timestamp: time.Now().UTC(),
	}
	if artifact != nil {
		ev.ArtifactID = artifact.ArtifactID
		if artifact.Validation != nil {
			ev.ValidationScore = artifact.Validation.Score
			ev.IsValid = artifact.Validation.IsValid
		}
	}
	return ev
}

func Failure(jobID string, jobErr *types.JobError) *types.Event {
	ev := &types.Event{
		JobID:     jobID,
		Kind:      types.EventError,
		Timestamp: time.Now().UTC(),
	}
	if jobErr != nil {
		ev.Error = jobErr.Error()
	}
	return ev
}
