package validation

import (
	"strings"
)

// =============================================================================
// DETAILED MERMAID INSPECTION
// =============================================================================

// MermaidIssue points at one problematic line in a diagram.
type MermaidIssue struct {
	Line    int    `json:"line"`
	Text    string `json:"text"`
	Problem string `json:"problem"`
}

// MermaidReport is the line-level diagnostic surface used by the
// validate-mermaid operation. It is independent of artifact scoring.
type MermaidReport struct {
	Dialect  string         `json:"dialect"`
	Lines    int            `json:"lines"`
	Entities int            `json:"entities,omitempty"`
	Nodes    int            `json:"nodes,omitempty"`
	Edges    int            `json:"edges,omitempty"`
	Messages int            `json:"messages,omitempty"`
	Issues   []MermaidIssue `json:"issues"`
	Valid    bool           `json:"valid"`
}

var dialectPrefixes = []string{
	"erDiagram", "flowchart", "graph ", "sequenceDiagram", "classDiagram",
	"stateDiagram-v2", "stateDiagram", "gantt", "pie", "journey",
	"gitGraph", "mindmap", "timeline",
	"C4Context", "C4Container", "C4Component", "C4Deployment",
}

// ValidateMermaid inspects a diagram line by line and reports structural
// issues with their line numbers.
func ValidateMermaid(content string) *MermaidReport {
	report := &MermaidReport{Issues: []MermaidIssue{}}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		report.Issues = append(report.Issues, MermaidIssue{Line: 1, Problem: "diagram is empty"})
		return report
	}

	for _, prefix := range dialectPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			report.Dialect = strings.TrimSpace(prefix)
			break
		}
	}
	if report.Dialect == "" {
		report.Issues = append(report.Issues, MermaidIssue{
			Line: 1, Text: firstDiagramLine(trimmed), Problem: "unknown or missing dialect keyword",
		})
	}

	lines := strings.Split(content, "\n")
	report.Lines = len(lines)

	braces := 0
	for i, line := range lines {
		n := i + 1
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}

		if strings.Contains(t, "```") {
			report.Issues = append(report.Issues, MermaidIssue{Line: n, Text: t, Problem: "markdown fence inside diagram"})
		}
		if strings.Count(t, "\"")%2 != 0 {
			report.Issues = append(report.Issues, MermaidIssue{Line: n, Text: t, Problem: "unbalanced quotes"})
		}
		braces += strings.Count(t, "{") - strings.Count(t, "}")

		switch report.Dialect {
		case "erDiagram":
			if erdClassRe.MatchString(t) {
				report.Issues = append(report.Issues, MermaidIssue{Line: n, Text: t, Problem: "classDiagram syntax in erDiagram"})
			}
			if strings.Contains(t, "--") && !erdCardinalityRe.MatchString(t) {
				report.Issues = append(report.Issues, MermaidIssue{Line: n, Text: t, Problem: "relationship without cardinality markers"})
			}
		case "sequenceDiagram":
			if strings.Contains(t, "->") && !seqArrowRe.MatchString(t) {
				report.Issues = append(report.Issues, MermaidIssue{Line: n, Text: t, Problem: "malformed message arrow"})
			}
		}
	}
	if braces != 0 {
		report.Issues = append(report.Issues, MermaidIssue{
			Line: len(lines), Problem: "unbalanced braces across diagram",
		})
	}

	switch report.Dialect {
	case "erDiagram":
		report.Entities = len(erdEntityRe.FindAllString(content, -1))
		report.Edges = len(erdRelationshipRe.FindAllString(content, -1))
		if report.Entities == 0 && report.Edges == 0 {
			report.Issues = append(report.Issues, MermaidIssue{Line: 1, Problem: "no entities defined"})
		}
	case "flowchart", "graph":
		report.Nodes = len(uniqueFlowNodes(content))
		report.Edges = len(flowEdgeRe.FindAllString(content, -1))
		if report.Edges == 0 {
			report.Issues = append(report.Issues, MermaidIssue{Line: 1, Problem: "no edges defined"})
		}
	case "sequenceDiagram":
		report.Messages = len(seqArrowRe.FindAllString(content, -1))
		if report.Messages == 0 {
			report.Issues = append(report.Issues, MermaidIssue{Line: 1, Problem: "no messages defined"})
		}
	}

	report.Valid = len(report.Issues) == 0
	return report
}

func firstDiagramLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
