// Package cleaning coerces raw model output into canonical artifact form.
// All rules are expressed as package-level pattern tables; the entry point
// is a pure function and idempotent: Clean(Clean(x,t),t) == Clean(x,t).
package cleaning

import (
	"regexp"
	"strings"

	"artificer/internal/logging"
	"artificer/internal/types"
)

// =============================================================================
// PATTERN TABLES
// =============================================================================

// fencedBlockRe matches one markdown code fence, language tag tolerated.
var fencedBlockRe = regexp.MustCompile("(?s)```[a-zA-Z0-9+#._-]*[ \t]*\r?\n(.*?)```")

// mermaidDialectRe locates the first known mermaid dialect keyword. Short
// keywords that also occur in prose (pie, gantt, journey, mindmap,
// timeline) only count at the start of a line.
var mermaidDialectRe = regexp.MustCompile(`(?m)` +
	`erDiagram|flowchart\s|graph\s+(?:TD|TB|LR|RL|BT)|sequenceDiagram|classDiagram` +
	`|stateDiagram(?:-v2)?|gitGraph` +
	`|C4Context|C4Container|C4Component|C4Deployment` +
	`|^[ \t]*(?:gantt|pie|journey|mindmap|timeline)\b`)

// proseMarkers start lines of explanatory chatter models append after
// diagrams. Matching is case-insensitive on the trimmed line prefix.
var proseMarkers = []string{
	"explanation:",
	"note:",
	"here's what",
	"here is what",
	"hope this",
	"let me know",
	"this diagram",
}

// numberedSentenceRe matches "1. Prose..." list lines; they count as
// trailing prose only after the third line of the diagram.
var numberedSentenceRe = regexp.MustCompile(`^\d+\.\s`)

// markdownHeadingRe matches trailing markdown headings.
var markdownHeadingRe = regexp.MustCompile(`^#{1,6}\s`)

// classSyntaxRe finds classDiagram-style "class X {" blocks that models
// sometimes emit inside an erDiagram.
var classSyntaxRe = regexp.MustCompile(`(?m)^(\s*)class\s+([A-Za-z_][A-Za-z0-9_]*)\s*\{`)

var htmlOpenRe = regexp.MustCompile(`(?i)<!DOCTYPE\s+html|<html[\s>]`)

var firstTagRe = regexp.MustCompile(`<[a-zA-Z]`)

// =============================================================================
// ENTRY POINT
// =============================================================================

// Clean normalizes raw model output for the given artifact type.
func Clean(raw string, artifactType types.ArtifactType) string {
	var cleaned string
	switch {
	case artifactType.IsMermaid():
		cleaned = cleanMermaid(raw, artifactType)
	case artifactType.IsHTML():
		cleaned = cleanHTML(raw)
	case artifactType.IsCode():
		cleaned = cleanCode(raw)
	default:
		cleaned = strings.TrimSpace(raw)
	}

	if removed := len(strings.TrimSpace(raw)) - len(cleaned); removed > 10 {
		logging.Cleaner("removed %d chars cleaning %s output (%d -> %d)",
			removed, artifactType, len(raw), len(cleaned))
	}
	return cleaned
}

// =============================================================================
// MERMAID
// =============================================================================

func cleanMermaid(raw string, artifactType types.ArtifactType) string {
	content := strings.TrimSpace(raw)

	if block, ok := firstFencedBlock(content); ok {
		content = strings.TrimSpace(block)
	}

	// Drop any chatter before the first dialect keyword.
	if loc := mermaidDialectRe.FindStringIndex(content); loc != nil && loc[0] > 0 {
		content = content[loc[0]:]
	}

	content = truncateTrailingProse(content)

	if artifactType == types.ArtifactMermaidERD || strings.HasPrefix(content, "erDiagram") {
		content = rewriteClassSyntax(content)
	}

	content = balanceDelimiters(content)
	return strings.TrimSpace(content)
}

// truncateTrailingProse cuts the diagram at the first explanatory-prose
// line: a known marker prefix, a numbered sentence after line 3, or a
// markdown heading.
func truncateTrailingProse(content string) string {
	lines := strings.Split(content, "\n")
	cut := len(lines)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)

		prose := false
		for _, marker := range proseMarkers {
			if strings.HasPrefix(lower, marker) {
				prose = true
				break
			}
		}
		if !prose && i >= 3 && numberedSentenceRe.MatchString(trimmed) {
			prose = true
		}
		if !prose && i > 0 && markdownHeadingRe.MatchString(trimmed) {
			prose = true
		}
		if prose {
			cut = i
			break
		}
	}
	return strings.TrimRight(strings.Join(lines[:cut], "\n"), "\n")
}

// rewriteClassSyntax converts "class X {" blocks into plain ERD entities.
func rewriteClassSyntax(content string) string {
	return classSyntaxRe.ReplaceAllString(content, "${1}${2} {")
}

// balanceDelimiters appends missing closing braces and brackets. Excess
// closers are left alone; balancing is opportunistic, not a parser.
func balanceDelimiters(content string) string {
	opens := strings.Count(content, "{") - strings.Count(content, "}")
	for i := 0; i < opens; i++ {
		content += "\n}"
	}
	brackets := strings.Count(content, "[") - strings.Count(content, "]")
	for i := 0; i < brackets; i++ {
		content += "]"
	}
	return content
}

// =============================================================================
// HTML
// =============================================================================

func cleanHTML(raw string) string {
	content := strings.TrimSpace(raw)

	if block, ok := firstFencedBlock(content); ok && strings.Contains(block, "<") {
		content = strings.TrimSpace(block)
	}

	if loc := htmlOpenRe.FindStringIndex(content); loc != nil {
		end := strings.LastIndex(strings.ToLower(content), "</html>")
		if end >= 0 {
			content = content[loc[0] : end+len("</html>")]
		} else {
			content = content[loc[0]:]
		}
		return strings.TrimSpace(content)
	}

	// No document shell: clip to the first-tag..last-tag region.
	first := firstTagRe.FindStringIndex(content)
	last := strings.LastIndex(content, ">")
	if first != nil && last > first[0] {
		content = content[first[0] : last+1]
	}
	return strings.TrimSpace(content)
}

// =============================================================================
// CODE
// =============================================================================

func cleanCode(raw string) string {
	matches := fencedBlockRe.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(raw)
	}
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		if block := strings.TrimSpace(m[1]); block != "" {
			blocks = append(blocks, block)
		}
	}
	if len(blocks) == 0 {
		return strings.TrimSpace(raw)
	}
	return strings.Join(blocks, "\n\n")
}

func firstFencedBlock(content string) (string, bool) {
	m := fencedBlockRe.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return m[1], true
}
