package contextual

import (
	"context"
	"fmt"
	"strings"

	"artificer/internal/logging"
)

// AssemblerProvider is the in-repo ContextProvider: a deterministic
// section assembler over the supplied notes. External providers replace it
// in deployments that carry retrievers or knowledge graphs.
type AssemblerProvider struct {
	// MaxChars caps assembled output when the caller does not. Zero means
	// the package default.
	MaxChars int
}

const defaultMaxContextChars = 24_000

func NewAssembler() *AssemblerProvider {
	return &AssemblerProvider{}
}

func (a *AssemblerProvider) BuildContext(ctx context.Context, notes string, opts BuildOptions) (*BuiltContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := opts.MaxChars
	if limit <= 0 {
		limit = a.MaxChars
	}
	if limit <= 0 {
		limit = defaultMaxContextChars
	}

	var b strings.Builder
	var sources []string

	b.WriteString("## Meeting Notes\n\n")
	b.WriteString(strings.TrimSpace(notes))
	b.WriteString("\n")
	sources = append(sources, "notes")

	if opts.FolderID != "" {
		fmt.Fprintf(&b, "\n## Folder\n\n%s\n", opts.FolderID)
		sources = append(sources, "folder")
	}
	if opts.ArtifactType != "" {
		fmt.Fprintf(&b, "\n## Target Artifact\n\n%s\n", opts.ArtifactType)
	}

	assembled := b.String()
	if len(assembled) > limit {
		assembled = assembled[:limit]
		logging.ContextDebug("assembled context truncated to %d chars", limit)
	}

	logging.ContextDebug("assembled %d chars from %d sources", len(assembled), len(sources))
	return &BuiltContext{
		Assembled: assembled,
		Sources:   sources,
	}, nil
}
