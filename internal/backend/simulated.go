package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"artificer/internal/types"
)

// SimulatedBackend is a deterministic local backend. It keys off the
// artifact-type marker the prompt builder embeds and produces a plausible
// artifact from words found in the prompt, so the binary works end to end
// with no model server running. It is registered as the default local
// model; tests prefer ScriptedBackend.
type SimulatedBackend struct {
	name    string
	latency time.Duration
}

// NewSimulated returns a simulated backend. latency is applied per call
// (and per token when streaming) to exercise timeout paths.
func NewSimulated(name string, latency time.Duration) *SimulatedBackend {
	return &SimulatedBackend{name: name, latency: latency}
}

func (s *SimulatedBackend) Name() string { return "simulated" }

func (s *SimulatedBackend) Healthy(ctx context.Context) error { return nil }

func (s *SimulatedBackend) Generate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if err := s.sleep(ctx, s.latency); err != nil {
		return nil, err
	}
	content := s.render(req)
	return &Result{
		Content: content,
		Model:   req.Model,
		Tokens:  len(strings.Fields(content)),
		Latency: time.Since(start),
	}, nil
}

func (s *SimulatedBackend) GenerateStream(ctx context.Context, req Request, onToken func(string) error) (*Result, error) {
	start := time.Now()
	content := s.render(req)
	words := strings.SplitAfter(content, " ")
	for _, w := range words {
		if err := s.sleep(ctx, s.latency/16); err != nil {
			return nil, err
		}
		if err := onToken(w); err != nil {
			return nil, err
		}
	}
	return &Result{
		Content: content,
		Model:   req.Model,
		Tokens:  len(words),
		Latency: time.Since(start),
	}, nil
}

func (s *SimulatedBackend) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (s *SimulatedBackend) render(req Request) string {
	artifactType := sniffArtifactType(req.System + "\n" + req.Prompt)
	entities := extractEntities(req.Prompt, 6)
	if len(entities) == 0 {
		entities = []string{"System", "User"}
	}

	switch {
	case artifactType == types.ArtifactMermaidERD:
		return renderERD(entities)
	case artifactType == types.ArtifactMermaidSequence:
		return renderSequence(entities)
	case artifactType.IsMermaid():
		return renderFlowchart(entities)
	case artifactType.IsHTML():
		return renderHTMLPage(entities)
	case artifactType.IsCode():
		return renderCode(entities)
	case artifactType == types.ArtifactAPIDocs:
		return renderAPIDocs(entities)
	case artifactType == types.ArtifactJiraTickets:
		return renderTickets(entities)
	default:
		return fmt.Sprintf("Summary of %s covering %s.",
			artifactType, strings.Join(entities, ", "))
	}
}

// sniffArtifactType finds the type marker the prompt builder embeds
// ("TASK: generate a <type> artifact"). Falls back to keyword scanning so
// hand-written prompts still route sensibly.
func sniffArtifactType(text string) types.ArtifactType {
	lower := strings.ToLower(text)
	known := []types.ArtifactType{
		types.ArtifactMermaidERD,
		types.ArtifactMermaidArchitecture,
		types.ArtifactMermaidSequence,
		types.ArtifactMermaidFlowchart,
		types.ArtifactAPIDocs,
		types.ArtifactJiraTickets,
		types.ArtifactCodePrototype,
		types.ArtifactHTMLPrototype,
		types.ArtifactDevVisualPrototype,
	}
	for _, t := range known {
		if strings.Contains(lower, string(t)) {
			return t
		}
	}
	switch {
	case strings.Contains(lower, "entity relationship"):
		return types.ArtifactMermaidERD
	case strings.Contains(lower, "sequence diagram"):
		return types.ArtifactMermaidSequence
	case strings.Contains(lower, "html"):
		return types.ArtifactHTMLPrototype
	}
	return types.ArtifactType("summary")
}

var entityStopwords = map[string]bool{
	"The": true, "This": true, "That": true, "These": true, "Those": true,
	"TASK": true, "MEETING": true, "NOTES": true, "CONTEXT": true,
	"CRITICAL": true, "FIX": true, "REQUIRED": true, "A": true, "An": true,
	"And": true, "For": true, "With": true, "From": true, "Into": true,
	"When": true, "Where": true, "What": true, "How": true, "Should": true,
}

// extractEntities pulls capitalized words out of free text, in order of
// first appearance, deduplicated and trimmed of punctuation.
func extractEntities(text string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, raw := range strings.Fields(text) {
		w := strings.Trim(raw, ".,:;!?()[]{}\"'`")
		if len(w) < 3 || len(w) > 30 {
			continue
		}
		first := w[0]
		if first < 'A' || first > 'Z' {
			continue
		}
		if w == strings.ToUpper(w) && len(w) > 4 {
			continue // shouting headers, not entities
		}
		if entityStopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func entityName(e string) string {
	return strings.ToUpper(strings.TrimSuffix(e, "s"))
}

func renderERD(entities []string) string {
	var b strings.Builder
	b.WriteString("erDiagram\n")
	for i := 0; i+1 < len(entities); i++ {
		fmt.Fprintf(&b, "    %s ||--o{ %s : \"has\"\n", entityName(entities[i]), entityName(entities[i+1]))
	}
	if len(entities) == 1 {
		fmt.Fprintf(&b, "    %s ||--o{ RECORD : \"has\"\n", entityName(entities[0]))
	}
	for _, e := range entities {
		fmt.Fprintf(&b, "    %s {\n        int id PK\n        string name\n        datetime created_at\n    }\n", entityName(e))
	}
	return b.String()
}

func renderSequence(entities []string) string {
	var b strings.Builder
	b.WriteString("sequenceDiagram\n")
	for _, e := range entities {
		fmt.Fprintf(&b, "    participant %s\n", entityName(e))
	}
	for i := 0; i+1 < len(entities); i++ {
		fmt.Fprintf(&b, "    %s->>%s: request\n    %s-->>%s: response\n",
			entityName(entities[i]), entityName(entities[i+1]),
			entityName(entities[i+1]), entityName(entities[i]))
	}
	return b.String()
}

func renderFlowchart(entities []string) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	for i, e := range entities {
		fmt.Fprintf(&b, "    N%d[%s]\n", i, e)
	}
	for i := 0; i+1 < len(entities); i++ {
		fmt.Fprintf(&b, "    N%d --> N%d\n", i, i+1)
	}
	return b.String()
}

func renderHTMLPage(entities []string) string {
	var items strings.Builder
	for _, e := range entities {
		fmt.Fprintf(&items, "      <li>%s</li>\n", e)
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <title>Prototype</title>
  <style>
    body { font-family: sans-serif; margin: 2rem; }
    li { padding: 0.25rem 0; }
  </style>
</head>
<body>
  <main>
    <h1>Prototype</h1>
    <ul>
%s    </ul>
  </main>
</body>
</html>`, items.String())
}

func renderCode(entities []string) string {
	name := "Item"
	if len(entities) > 0 {
		name = entityName(entities[0])
		name = strings.ToUpper(name[:1]) + strings.ToLower(name[1:])
	}
	return fmt.Sprintf("```go\npackage main\n\nimport \"fmt\"\n\n// %s holds one record.\ntype %s struct {\n\tID   int\n\tName string\n}\n\nfunc main() {\n\titem := %s{ID: 1, Name: %q}\n\tif item.Name == \"\" {\n\t\tfmt.Println(\"error: empty name\")\n\t\treturn\n\t}\n\tfmt.Println(item.Name)\n}\n```",
		name, name, name, name)
}

func renderAPIDocs(entities []string) string {
	resource := "items"
	if len(entities) > 0 {
		resource = strings.ToLower(entities[0])
	}
	return fmt.Sprintf(`# API Reference

## GET /api/%[1]s

Returns all %[1]s.

Response 200:
`+"```json\n{\"items\": []}\n```"+`

## POST /api/%[1]s

Creates one. Request:
`+"```json\n{\"name\": \"example\"}\n```"+`

Response 201 on success, 400 on a malformed body.
`, resource)
}

func renderTickets(entities []string) string {
	topic := "the feature"
	if len(entities) > 0 {
		topic = entities[0]
	}
	return fmt.Sprintf(`Epic: Deliver %[1]s

Story: As a user, I can work with %[1]s
  Acceptance Criteria:
  - %[1]s is reachable from the main screen
  - errors are surfaced inline

Task: Implement the %[1]s data layer
Task: Wire %[1]s into the UI
`, topic)
}
