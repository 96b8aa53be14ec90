package contextual

import (
	"context"
	"fmt"
	"html"
	"strings"

	"artificer/internal/types"
)

// TemplateHTMLGenerator is the default HTMLGenerator: it wraps mermaid
// source in a standalone viewer page. AI-assisted renderers replace it via
// the interface.
type TemplateHTMLGenerator struct{}

func NewTemplateHTMLGenerator() *TemplateHTMLGenerator {
	return &TemplateHTMLGenerator{}
}

func (g *TemplateHTMLGenerator) FromMermaid(ctx context.Context, content string, artifactType types.ArtifactType, notes string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("empty mermaid content")
	}

	title := strings.ReplaceAll(string(artifactType), "_", " ")
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>%s</title>
  <script src="https://cdn.jsdelivr.net/npm/mermaid@10/dist/mermaid.min.js"></script>
  <style>
    body { font-family: sans-serif; margin: 2rem; background: #fafafa; }
    .diagram { background: #fff; border: 1px solid #ddd; border-radius: 6px; padding: 1rem; }
  </style>
</head>
<body>
  <h1>%s</h1>
  <div class="diagram">
    <pre class="mermaid">
%s
    </pre>
  </div>
  <script>mermaid.initialize({ startOnLoad: true });</script>
</body>
</html>`, html.EscapeString(title), html.EscapeString(title), html.EscapeString(content)), nil
}

// NopJudge is the QualityJudge used when no external judge is wired: it
// abstains by echoing a neutral score.
type NopJudge struct{}

func (NopJudge) Evaluate(ctx context.Context, content string, artifactType types.ArtifactType, notes string) (float64, string, error) {
	return 0, "no judge configured", nil
}
