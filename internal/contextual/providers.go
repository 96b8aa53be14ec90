// Package contextual holds the collaborator contracts around generation:
// notes lookup, context assembly, HTML rendering, and quality judging.
// The heavyweight implementations (repository scanners, knowledge graphs,
// RAG retrievers) live outside this repo; everything here treats their
// output as opaque assembled text.
package contextual

import (
	"context"
	"time"

	"artificer/internal/types"
)

// Note is one meeting note as the notes collaborator returns it.
type Note struct {
	ID        string    `json:"id"`
	FolderID  string    `json:"folder_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// FolderSuggestion ranks candidate folders for a piece of content.
type FolderSuggestion struct {
	SuggestedFolder string   `json:"suggested_folder"`
	Confidence      float64  `json:"confidence"`
	Alternatives    []string `json:"alternatives,omitempty"`
}

// NotesProvider resolves folder-scoped notes.
type NotesProvider interface {
	GetNotesByFolder(ctx context.Context, folderID string) ([]Note, error)
	SuggestFolder(ctx context.Context, content string) (*FolderSuggestion, error)
}

// BuildOptions tunes context assembly.
type BuildOptions struct {
	ContextID    string
	ArtifactType types.ArtifactType
	FolderID     string
	MaxChars     int
}

// BuiltContext is the provider's assembled output plus the signals the
// quality predictor reads.
type BuiltContext struct {
	Assembled         string   `json:"assembled_context"`
	Sources           []string `json:"sources,omitempty"`
	FromCache         bool     `json:"from_cache"`
	RAGChunks         int      `json:"rag_chunks,omitempty"`
	HasKnowledgeGraph bool     `json:"has_knowledge_graph,omitempty"`
	HasPatterns       bool     `json:"has_patterns,omitempty"`
}

// ContextProvider assembles retrieval context for a set of notes.
type ContextProvider interface {
	BuildContext(ctx context.Context, notes string, opts BuildOptions) (*BuiltContext, error)
}

// HTMLGenerator renders an HTML companion for mermaid artifacts. Failures
// are warnings upstream, never job failures.
type HTMLGenerator interface {
	FromMermaid(ctx context.Context, content string, artifactType types.ArtifactType, notes string) (string, error)
}

// QualityJudge is the optional second-opinion scorer.
type QualityJudge interface {
	Evaluate(ctx context.Context, content string, artifactType types.ArtifactType, notes string) (score float64, reasoning string, err error)
}
