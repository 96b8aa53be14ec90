package validation

import (
	"fmt"
	"regexp"
	"strings"

	"artificer/internal/types"
)

// =============================================================================
// BUILT-IN RULE TABLE
// =============================================================================

var (
	erdEntityRe       = regexp.MustCompile(`(?m)^\s*[A-Za-z_][\w-]*\s*\{`)
	erdRelationshipRe = regexp.MustCompile(`(?m)^\s*[A-Za-z_][\w-]*\s*[|}o]?[|o]?--[|o]?[|o{]?\s*[A-Za-z_][\w-]*`)
	erdCardinalityRe  = regexp.MustCompile(`[|}o]o?--|--o?[|{o]`)
	erdClassRe        = regexp.MustCompile(`(?m)^\s*class\s+\w+`)
	erdEmptyEntityRe  = regexp.MustCompile(`(?m)^\s*([A-Za-z_][\w-]*)\s*\{\s*\}`)

	flowDirectionRe = regexp.MustCompile(`^(?:flowchart|graph)\s+(?:TD|TB|BT|LR|RL)\b`)

	flowEdgeRe    = regexp.MustCompile(`--[->]|-\.->|==>`)
	flowNodeRe    = regexp.MustCompile(`(?m)(^|\s)([A-Za-z_][\w]*)\s*[\[({]`)
	subgraphRe    = regexp.MustCompile(`(?m)^\s*subgraph\b`)
	subgraphEndRe = regexp.MustCompile(`(?m)^\s*end\s*$`)

	seqArrowRe       = regexp.MustCompile(`-->>|->>|-->|->|-x|--x`)
	seqParticipantRe = regexp.MustCompile(`(?m)^\s*(participant|actor)\s+\S`)

	httpMethodRe = regexp.MustCompile(`\b(GET|POST|PUT|DELETE|PATCH)\b`)
	apiPathRe    = regexp.MustCompile(`(?m)(^|\s)/[a-zA-Z][\w/{}:.-]*`)
	statusCodeRe = regexp.MustCompile(`\b([245]\d\d)\b`)
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}\s`)

	jiraIssueRe      = regexp.MustCompile(`(?im)^\s*#*\s*(epic|story|task|sub-task|bug)\b`)
	jiraAcceptanceRe = regexp.MustCompile(`(?i)acceptance criteria`)
	jiraEstimateRe   = regexp.MustCompile(`(?i)(story points?|estimate|\b\d+\s*(sp|pts|points)\b)`)

	codeErrorRe = regexp.MustCompile(`\berr\b|\berror\b|\btry\b|\bexcept\b|\bcatch\b|\braise\b|\bpanic\b`)
	codeTestRe  = regexp.MustCompile(`(?i)func Test\w+|def test_|\bdescribe\(|\bit\(|\btest\(|assert`)
)

var (
	erdTypes  = []types.ArtifactType{types.ArtifactMermaidERD}
	flowTypes = []types.ArtifactType{types.ArtifactMermaidArchitecture, types.ArtifactMermaidFlowchart}
	seqTypes  = []types.ArtifactType{types.ArtifactMermaidSequence}
	apiTypes  = []types.ArtifactType{types.ArtifactAPIDocs}
	jiraTypes = []types.ArtifactType{types.ArtifactJiraTickets}
	htmlTypes = []types.ArtifactType{types.ArtifactHTMLPrototype, types.ArtifactDevVisualPrototype}
	codeTypes = []types.ArtifactType{types.ArtifactCodePrototype}
)

var builtinRules = []Rule{
	// ---- generic ----
	{
		ID: "too_short", Severity: SeverityWarning, Penalty: 10,
		Message: "content is very short",
		Check: func(d *document) (bool, string) {
			return len(d.trimmed) < 20, fmt.Sprintf("%d chars", len(d.trimmed))
		},
	},
	{
		ID: "fence_leakage", Severity: SeverityWarning, Penalty: 5,
		Message: "markdown fence markers present in final content",
		Check: func(d *document) (bool, string) {
			return d.artifactType != types.ArtifactAPIDocs &&
				d.artifactType != types.ArtifactJiraTickets &&
				strings.Contains(d.content, "```"), ""
		},
	},

	// ---- entity-relationship diagrams ----
	{
		ID: "erd_missing_dialect", Types: erdTypes, Severity: SeverityError, Penalty: 30,
		Message: "diagram does not start with erDiagram",
		Check: func(d *document) (bool, string) {
			return !strings.HasPrefix(d.trimmed, "erDiagram"), ""
		},
	},
	{
		ID: "erd_no_entities", Types: erdTypes, Severity: SeverityError, Penalty: 25,
		Message: "no entities or relationships defined",
		Check: func(d *document) (bool, string) {
			return !erdEntityRe.MatchString(d.content) && !erdRelationshipRe.MatchString(d.content), ""
		},
	},
	{
		ID: "erd_no_relationships", Types: erdTypes, Severity: SeverityWarning, Penalty: 10,
		Message: "entities defined but no relationships between them",
		Check: func(d *document) (bool, string) {
			return erdEntityRe.MatchString(d.content) && !strings.Contains(d.content, "--"), ""
		},
	},
	{
		ID: "erd_class_syntax", Types: erdTypes, Severity: SeverityWarning, Penalty: 10,
		Message: "classDiagram syntax inside an erDiagram",
		Check: func(d *document) (bool, string) {
			m := erdClassRe.FindString(d.content)
			return m != "", strings.TrimSpace(m)
		},
	},
	{
		ID: "erd_empty_entity", Types: erdTypes, Severity: SeveritySuggestion,
		Message: "entity has no attributes",
		Check: func(d *document) (bool, string) {
			m := erdEmptyEntityRe.FindStringSubmatch(d.content)
			if m == nil {
				return false, ""
			}
			return true, m[1]
		},
	},

	// ---- architecture and flowchart diagrams ----
	{
		ID: "flow_missing_dialect", Types: flowTypes, Severity: SeverityError, Penalty: 30,
		Message: "diagram does not start with flowchart or graph",
		Check: func(d *document) (bool, string) {
			return !strings.HasPrefix(d.trimmed, "flowchart") && !strings.HasPrefix(d.trimmed, "graph "), ""
		},
	},
	{
		ID: "flow_missing_direction", Types: flowTypes, Severity: SeverityWarning, Penalty: 10,
		Message: "no direction (TD, TB, BT, LR, RL) after the flowchart keyword",
		Check: func(d *document) (bool, string) {
			if !strings.HasPrefix(d.trimmed, "flowchart") && !strings.HasPrefix(d.trimmed, "graph ") {
				return false, ""
			}
			return !flowDirectionRe.MatchString(d.trimmed), ""
		},
	},
	{
		ID: "flow_no_edges", Types: flowTypes, Severity: SeverityError, Penalty: 25,
		Message: "no edges between nodes",
		Check: func(d *document) (bool, string) {
			return !flowEdgeRe.MatchString(d.content), ""
		},
	},
	{
		ID: "flow_single_node", Types: flowTypes, Severity: SeverityWarning, Penalty: 10,
		Message: "fewer than two nodes",
		Check: func(d *document) (bool, string) {
			nodes := uniqueFlowNodes(d.content)
			return len(nodes) < 2, fmt.Sprintf("%d found", len(nodes))
		},
	},
	{
		ID: "flow_subgraph_balance", Types: flowTypes, Severity: SeverityError, Penalty: 20,
		Message: "subgraph blocks not closed with end",
		Check: func(d *document) (bool, string) {
			open := len(subgraphRe.FindAllString(d.content, -1))
			closed := len(subgraphEndRe.FindAllString(d.content, -1))
			return open != closed, fmt.Sprintf("%d subgraph, %d end", open, closed)
		},
	},

	// ---- sequence diagrams ----
	{
		ID: "seq_missing_dialect", Types: seqTypes, Severity: SeverityError, Penalty: 30,
		Message: "diagram does not start with sequenceDiagram",
		Check: func(d *document) (bool, string) {
			return !strings.HasPrefix(d.trimmed, "sequenceDiagram"), ""
		},
	},
	{
		ID: "seq_no_messages", Types: seqTypes, Severity: SeverityError, Penalty: 25,
		Message: "no messages between participants",
		Check: func(d *document) (bool, string) {
			return !seqArrowRe.MatchString(d.content), ""
		},
	},
	{
		ID: "seq_no_participants", Types: seqTypes, Severity: SeverityWarning, Penalty: 10,
		Message: "no participant or actor declarations",
		Check: func(d *document) (bool, string) {
			return !seqParticipantRe.MatchString(d.content), ""
		},
	},
	{
		ID: "seq_activation_balance", Types: seqTypes, Severity: SeverityWarning, Penalty: 5,
		Message: "activate and deactivate counts differ",
		Check: func(d *document) (bool, string) {
			act := strings.Count(d.lower, "activate ") - strings.Count(d.lower, "deactivate ")
			return act != 0, ""
		},
	},

	// ---- api docs ----
	{
		ID: "api_no_method", Types: apiTypes, Severity: SeverityError, Penalty: 25,
		Message: "no HTTP methods documented",
		Check: func(d *document) (bool, string) {
			return !httpMethodRe.MatchString(d.content), ""
		},
	},
	{
		ID: "api_no_paths", Types: apiTypes, Severity: SeverityWarning, Penalty: 10,
		Message: "no endpoint paths documented",
		Check: func(d *document) (bool, string) {
			return !apiPathRe.MatchString(d.content), ""
		},
	},
	{
		ID: "api_no_status_codes", Types: apiTypes, Severity: SeveritySuggestion,
		Message: "consider documenting response status codes",
		Check: func(d *document) (bool, string) {
			return !statusCodeRe.MatchString(d.content), ""
		},
	},
	{
		ID: "api_no_structure", Types: apiTypes, Severity: SeveritySuggestion,
		Message: "consider markdown headings per endpoint",
		Check: func(d *document) (bool, string) {
			return !headingRe.MatchString(d.content), ""
		},
	},

	// ---- jira tickets ----
	{
		ID: "jira_no_issues", Types: jiraTypes, Severity: SeverityError, Penalty: 25,
		Message: "no epic, story, or task entries",
		Check: func(d *document) (bool, string) {
			return !jiraIssueRe.MatchString(d.content), ""
		},
	},
	{
		ID: "jira_no_acceptance", Types: jiraTypes, Severity: SeverityWarning, Penalty: 10,
		Message: "stories lack acceptance criteria",
		Check: func(d *document) (bool, string) {
			return !jiraAcceptanceRe.MatchString(d.content), ""
		},
	},
	{
		ID: "jira_no_estimates", Types: jiraTypes, Severity: SeveritySuggestion,
		Message: "consider adding story point estimates",
		Check: func(d *document) (bool, string) {
			return !jiraEstimateRe.MatchString(d.content), ""
		},
	},

	// ---- html prototypes ----
	{
		ID: "html_no_markup", Types: htmlTypes, Severity: SeverityError, Penalty: 30,
		Message: "no HTML markup present",
		Check: func(d *document) (bool, string) {
			return !strings.Contains(d.content, "<"), ""
		},
	},
	{
		ID: "html_tag_balance", Types: htmlTypes, Severity: SeverityError, Penalty: 20,
		Message: "unbalanced HTML tags",
		Check: func(d *document) (bool, string) {
			if len(d.htmlIssues) == 0 {
				return false, ""
			}
			return true, strings.Join(d.htmlIssues, "; ")
		},
	},
	{
		ID: "html_no_doctype", Types: htmlTypes, Severity: SeverityWarning, Penalty: 5,
		Message: "missing DOCTYPE declaration",
		Check: func(d *document) (bool, string) {
			return !strings.Contains(d.lower, "<!doctype"), ""
		},
	},
	{
		ID: "html_no_title", Types: htmlTypes, Severity: SeveritySuggestion,
		Message: "page has no title element",
		Check: func(d *document) (bool, string) {
			return !strings.Contains(d.lower, "<title"), ""
		},
	},
	{
		ID: "html_no_style", Types: []types.ArtifactType{types.ArtifactDevVisualPrototype},
		Severity: SeveritySuggestion,
		Message:  "visual prototype has no styling",
		Check: func(d *document) (bool, string) {
			return !strings.Contains(d.lower, "<style") && !strings.Contains(d.lower, "style="), ""
		},
	},

	// ---- code prototypes ----
	{
		ID: "code_parse_errors", Types: codeTypes, Severity: SeverityError, Penalty: 25,
		Message: "code contains syntax errors",
		Check: func(d *document) (bool, string) {
			if d.code == nil {
				return false, ""
			}
			return d.code.HasParseErrors, d.code.Language
		},
	},
	{
		ID: "code_go_compile", Types: codeTypes, Severity: SeverityWarning, Penalty: 10,
		Message: "Go snippet does not compile",
		Check: func(d *document) (bool, string) {
			return d.goCompileErr != "", d.goCompileErr
		},
	},
	{
		ID: "code_no_functions", Types: codeTypes, Severity: SeverityWarning, Penalty: 10,
		Message: "no function definitions found",
		Check: func(d *document) (bool, string) {
			return d.code != nil && d.code.Functions == 0, ""
		},
	},
	{
		ID: "code_no_comments", Types: codeTypes, Severity: SeveritySuggestion,
		Message: "consider commenting the prototype",
		Check: func(d *document) (bool, string) {
			return d.code != nil && d.code.Comments == 0, ""
		},
	},
	{
		ID: "code_no_error_handling", Types: codeTypes, Severity: SeverityWarning, Penalty: 10,
		Message: "no error handling present",
		Check: func(d *document) (bool, string) {
			return !codeErrorRe.MatchString(d.content), ""
		},
	},
	{
		ID: "code_no_tests", Types: codeTypes, Severity: SeveritySuggestion,
		Message: "consider including tests for the prototype",
		Check: func(d *document) (bool, string) {
			return !codeTestRe.MatchString(d.content), ""
		},
	},
}

// uniqueFlowNodes extracts distinct node identifiers from flowchart
// bodies, counting only identifiers that open a shape bracket.
func uniqueFlowNodes(content string) []string {
	seen := make(map[string]bool)
	var nodes []string
	for _, m := range flowNodeRe.FindAllStringSubmatch(content, -1) {
		id := m[2]
		switch id {
		case "flowchart", "graph", "subgraph", "end", "style", "classDef":
			continue
		}
		if !seen[id] {
			seen[id] = true
			nodes = append(nodes, id)
		}
	}
	return nodes
}
