// Package types provides shared type definitions used across artificer packages.
// This package exists to break import cycles between generation, validation,
// versions, and training. Types in this package should be foundational data
// structures with no complex dependencies.
package types

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// ARTIFACT TYPES
// =============================================================================

// ArtifactType names a generated deliverable family. The set is open: unknown
// types flow through the generic cleaning/validation rules.
type ArtifactType string

const (
	ArtifactMermaidERD          ArtifactType = "mermaid_erd"
	ArtifactMermaidArchitecture ArtifactType = "mermaid_architecture"
	ArtifactMermaidSequence     ArtifactType = "mermaid_sequence"
	ArtifactMermaidFlowchart    ArtifactType = "mermaid_flowchart"
	ArtifactAPIDocs             ArtifactType = "api_docs"
	ArtifactJiraTickets         ArtifactType = "jira_tickets"
	ArtifactCodePrototype       ArtifactType = "code_prototype"
	ArtifactHTMLPrototype       ArtifactType = "html_prototype"
	ArtifactDevVisualPrototype  ArtifactType = "dev_visual_prototype"
)

func (t ArtifactType) String() string { return string(t) }

// IsMermaid reports whether the type renders as a mermaid diagram dialect.
func (t ArtifactType) IsMermaid() bool {
	return strings.HasPrefix(string(t), "mermaid_")
}

// IsHTML reports whether the artifact content is itself an HTML document.
func (t ArtifactType) IsHTML() bool {
	switch t {
	case ArtifactHTMLPrototype, ArtifactDevVisualPrototype:
		return true
	}
	return strings.HasPrefix(string(t), "html_")
}

func (t ArtifactType) IsCode() bool { return t == ArtifactCodePrototype }

// Normalize lowercases and unifies separator characters so that
// "Mermaid-ERD" and "mermaid_erd" compare equal in lookups.
func (t ArtifactType) Normalize() ArtifactType {
	s := strings.ToLower(strings.TrimSpace(string(t)))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return ArtifactType(s)
}

// complexityWeights drives curriculum difficulty and quality forecasting.
// Higher means the type is harder to generate well.
var complexityWeights = map[ArtifactType]float64{
	ArtifactMermaidERD:          0.3,
	ArtifactMermaidFlowchart:    0.4,
	ArtifactMermaidArchitecture: 0.5,
	ArtifactMermaidSequence:     0.5,
	ArtifactAPIDocs:             0.6,
	ArtifactJiraTickets:         0.4,
	ArtifactHTMLPrototype:       0.7,
	ArtifactDevVisualPrototype:  0.7,
	ArtifactCodePrototype:       0.8,
}

// ComplexityWeight returns the per-type difficulty weight in [0,1].
// Unknown types get a middle-of-the-road 0.5.
func (t ArtifactType) ComplexityWeight() float64 {
	if w, ok := complexityWeights[t.Normalize()]; ok {
		return w
	}
	return 0.5
}

// =============================================================================
// ARTIFACT IDENTITY
// =============================================================================

// IDSeparator joins folder and type into a stable artifact id.
const IDSeparator = "::"

// OrphanFolder is the sentinel grouping for artifacts that were generated
// without a folder binding. Legacy ids (bare artifact_type) land here.
const OrphanFolder = "Orphaned Artifacts"

// MakeArtifactID returns the stable logical name for an artifact:
// "folder::type" when a folder is bound, else the bare type.
func MakeArtifactID(folderID string, artifactType ArtifactType) string {
	if folderID == "" {
		return string(artifactType)
	}
	return folderID + IDSeparator + string(artifactType)
}

// SplitArtifactID is the inverse of MakeArtifactID. For legacy ids the
// folder comes back empty.
func SplitArtifactID(artifactID string) (folderID string, artifactType ArtifactType) {
	if i := strings.LastIndex(artifactID, IDSeparator); i >= 0 {
		return artifactID[:i], ArtifactType(artifactID[i+len(IDSeparator):])
	}
	return "", ArtifactType(artifactID)
}

// SanitizeID maps an artifact id onto a filesystem-safe name. Colons and
// other path-hostile runes become underscores.
func SanitizeID(artifactID string) string {
	var b strings.Builder
	b.Grow(len(artifactID))
	for _, r := range artifactID {
		switch r {
		case ':', '/', '\\', '*', '?', '"', '<', '>', '|', ' ':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// =============================================================================
// JOB LIFECYCLE
// =============================================================================

// JobStatus tracks a generation job through its lifecycle.
type JobStatus string

const (
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

func (s JobStatus) String() string { return string(s) }

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// GenerateOptions are the caller-tunable knobs on a generation request.
// Zero values mean "use the configured default"; UseValidation is a
// tri-state so that an explicit false survives defaulting.
type GenerateOptions struct {
	MaxRetries      int     `json:"max_retries,omitempty"`
	UseValidation   *bool   `json:"use_validation,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	ModelPreference string  `json:"model_preference,omitempty"`
	RenderHTML      *bool   `json:"render_html,omitempty"`
}

// Validation returns the effective use_validation flag (default true).
func (o GenerateOptions) Validation() bool {
	return o.UseValidation == nil || *o.UseValidation
}

// GenerateRequest is the inbound shape accepted by the orchestrator. At
// least one of Notes, FolderID, or ContextID must be present.
type GenerateRequest struct {
	ArtifactType ArtifactType    `json:"artifact_type"`
	Notes        string          `json:"notes,omitempty"`
	FolderID     string          `json:"folder_id,omitempty"`
	ContextID    string          `json:"context_id,omitempty"`
	Options      GenerateOptions `json:"options,omitempty"`
}

// Attempt records one ladder rung's outcome for a job.
type Attempt struct {
	Number          int       `json:"number"`
	Model           string    `json:"model"`
	Repair          bool      `json:"repair,omitempty"`
	ValidationScore float64   `json:"validation_score"`
	Errors          []string  `json:"errors,omitempty"`
	ErrorKind       string    `json:"error_kind,omitempty"`
	DurationMS      int64     `json:"duration_ms"`
	Timestamp       time.Time `json:"timestamp"`
}

// Job is the orchestrator's in-memory record of one generation request.
// Mutated only by the goroutine executing it plus the submit/cancel paths.
type Job struct {
	ID           string             `json:"job_id"`
	ArtifactType ArtifactType       `json:"artifact_type"`
	FolderID     string             `json:"folder_id,omitempty"`
	Notes        string             `json:"notes,omitempty"`
	ContextID    string             `json:"context_id,omitempty"`
	Options      GenerateOptions    `json:"options"`
	Status       JobStatus          `json:"status"`
	Progress     float64            `json:"progress"`
	Message      string             `json:"message,omitempty"`
	Quality      *QualityPrediction `json:"quality_prediction,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
	Attempts     []Attempt          `json:"attempts,omitempty"`
	ArtifactID   string             `json:"artifact_id,omitempty"`
	Error        *JobError          `json:"error,omitempty"`
}

// Clone returns a deep-enough copy for external readers. Attempts are
// copied so callers cannot race the worker appending to them.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Attempts != nil {
		cp.Attempts = make([]Attempt, len(j.Attempts))
		copy(cp.Attempts, j.Attempts)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// =============================================================================
// ARTIFACTS & VERSIONS
// =============================================================================

// ValidationResult is the validator's verdict on one piece of content.
type ValidationResult struct {
	IsValid     bool     `json:"is_valid"`
	Score       float64  `json:"score"`
	Errors      []string `json:"errors,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// QualityPrediction is the pre-generation heuristic forecast.
type QualityPrediction struct {
	Label   string   `json:"label"`
	Score   float64  `json:"score"`
	Factors []string `json:"factors,omitempty"`
}

// Artifact is the externally visible view of a current version.
type Artifact struct {
	ArtifactID    string            `json:"artifact_id"`
	ArtifactType  ArtifactType      `json:"artifact_type"`
	Content       string            `json:"content"`
	HTMLContent   string            `json:"html_content,omitempty"`
	FolderID      string            `json:"folder_id,omitempty"`
	VersionNumber int               `json:"version_number"`
	GeneratedAt   time.Time         `json:"generated_at"`
	ModelUsed     string            `json:"model_used,omitempty"`
	Validation    *ValidationResult `json:"validation,omitempty"`
}

// VersionMetadata rides with every stored version. SourceNotes keeps the
// generating notes so RegenerateArtifact can resubmit without the caller
// re-supplying them.
type VersionMetadata struct {
	ModelUsed       string             `json:"model_used,omitempty"`
	ValidationScore float64            `json:"validation_score,omitempty"`
	IsValid         bool               `json:"is_valid,omitempty"`
	Quality         *QualityPrediction `json:"quality_prediction,omitempty"`
	Attempts        []Attempt          `json:"attempts,omitempty"`
	HTMLContent     string             `json:"html_content,omitempty"`
	SourceNotes     string             `json:"source_notes,omitempty"`
	UpdateType      string             `json:"update_type,omitempty"`
	RestoredFrom    int                `json:"restored_from,omitempty"`
	ContentHash     string             `json:"content_hash,omitempty"`
}

// Version is an immutable snapshot of an artifact's content. Exactly one
// version per artifact id carries IsCurrent=true.
type Version struct {
	ArtifactID    string          `json:"artifact_id"`
	ArtifactType  ArtifactType    `json:"artifact_type"`
	VersionNumber int             `json:"version_number"`
	Content       string          `json:"content"`
	Metadata      VersionMetadata `json:"metadata"`
	CreatedAt     time.Time       `json:"created_at"`
	IsCurrent     bool            `json:"is_current"`
	FolderID      string          `json:"folder_id,omitempty"`
}

// ToArtifact projects a version into the external artifact shape.
func (v *Version) ToArtifact() *Artifact {
	return &Artifact{
		ArtifactID:    v.ArtifactID,
		ArtifactType:  v.ArtifactType,
		Content:       v.Content,
		HTMLContent:   v.Metadata.HTMLContent,
		FolderID:      v.FolderID,
		VersionNumber: v.VersionNumber,
		GeneratedAt:   v.CreatedAt,
		ModelUsed:     v.Metadata.ModelUsed,
		Validation: &ValidationResult{
			IsValid: v.Metadata.IsValid,
			Score:   v.Metadata.ValidationScore,
		},
	}
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind enumerates the job-scoped event stream vocabulary.
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventProgress EventKind = "progress"
	EventChunk    EventKind = "chunk"
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
)

func (k EventKind) String() string { return string(k) }

// Terminal reports whether the kind ends a job's stream.
func (k EventKind) Terminal() bool {
	return k == EventComplete || k == EventError
}

// Event is one entry in a job's stream. Only the fields relevant to the
// kind are populated.
type Event struct {
	JobID           string             `json:"job_id"`
	Kind            EventKind          `json:"kind"`
	Progress        float64            `json:"progress,omitempty"`
	Message         string             `json:"message,omitempty"`
	Chunk           string             `json:"chunk,omitempty"`
	ArtifactID      string             `json:"artifact_id,omitempty"`
	ValidationScore float64            `json:"validation_score,omitempty"`
	IsValid         bool               `json:"is_valid,omitempty"`
	Artifact        *Artifact          `json:"artifact,omitempty"`
	Quality         *QualityPrediction `json:"quality_prediction,omitempty"`
	Error           string             `json:"error,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
}

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// ErrorKind classifies job failures for callers and logs.
type ErrorKind string

const (
	ErrKindInvalidRequest     ErrorKind = "invalid_request"
	ErrKindContextBuildFailed ErrorKind = "context_build_failed"
	ErrKindModelUnavailable   ErrorKind = "model_unavailable"
	ErrKindModelTimeout       ErrorKind = "model_timeout"
	ErrKindModelError         ErrorKind = "model_error"
	ErrKindValidationBelow    ErrorKind = "validation_below_threshold"
	ErrKindPersistence        ErrorKind = "persistence_error"
	ErrKindCancelled          ErrorKind = "cancelled"
	ErrKindInternal           ErrorKind = "internal"
)

func (k ErrorKind) String() string { return string(k) }

// JobError is the terminal error surface of a failed job.
type JobError struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
}

func (e *JobError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Suggestion)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
