package validation

import (
	"context"
	"strings"
	"testing"

	"artificer/internal/types"
)

const goodERD = `erDiagram
    USER {
        string name
        string email
    }
    ORDER {
        int total
    }
    USER ||--o{ ORDER : "places"`

const goodFlowchart = `flowchart TD
    A[Start] --> B[Process]
    B --> C[End]`

const goodSequence = `sequenceDiagram
    participant Client
    participant Server
    Client->>Server: request
    Server-->>Client: response`

const goodHTML = `<!DOCTYPE html>
<html>
<head><title>Dashboard</title></head>
<body><h1>Orders</h1><p>All quiet.</p></body>
</html>`

func TestValidateAcceptsWellFormedArtifacts(t *testing.T) {
	tests := []struct {
		name         string
		artifactType types.ArtifactType
		content      string
	}{
		{"erd", types.ArtifactMermaidERD, goodERD},
		{"flowchart", types.ArtifactMermaidFlowchart, goodFlowchart},
		{"architecture", types.ArtifactMermaidArchitecture, goodFlowchart},
		{"sequence", types.ArtifactMermaidSequence, goodSequence},
		{"html", types.ArtifactHTMLPrototype, goodHTML},
		{"api docs", types.ArtifactAPIDocs, "# Orders API\n\n## GET /orders\nReturns 200 with the order list.\n\n## POST /orders\nReturns 201 on success."},
		{"jira", types.ArtifactJiraTickets, "## Epic: Checkout\n\n### Story: Pay by card\nAcceptance Criteria:\n- card is charged once\nEstimate: 3 points"},
	}

	v := New(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(context.Background(), tt.content, tt.artifactType, "")
			if !res.IsValid {
				t.Fatalf("expected valid, got errors=%v warnings=%v score=%.0f", res.Errors, res.Warnings, res.Score)
			}
			if res.Score < 80 {
				t.Errorf("well-formed artifact scored %.0f", res.Score)
			}
		})
	}
}

func TestValidateRejectsBrokenArtifacts(t *testing.T) {
	tests := []struct {
		name         string
		artifactType types.ArtifactType
		content      string
		wantFinding  string
	}{
		{"erd chatter", types.ArtifactMermaidERD, "just some text", "erDiagram"},
		{"erd class syntax only", types.ArtifactMermaidERD, "erDiagram\nclass USER {\n    string name\n}", "entities"},
		{"flowchart no edges", types.ArtifactMermaidFlowchart, "flowchart TD\n    A[Only node]", "edges"},
		{"sequence no messages", types.ArtifactMermaidSequence, "sequenceDiagram\n    participant A", "messages"},
		{"html unbalanced", types.ArtifactHTMLPrototype, "<div><span>order count</div>", "unbalanced"},
		{"api no methods", types.ArtifactAPIDocs, "This service manages orders and users for the storefront.", "HTTP"},
		{"jira freeform", types.ArtifactJiraTickets, "We should build checkout and also improve the search page soon.", "epic"},
	}

	v := New(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(context.Background(), tt.content, tt.artifactType, "")
			if res.IsValid {
				t.Fatalf("expected invalid, got score=%.0f", res.Score)
			}
			if len(res.Errors) == 0 {
				t.Fatalf("expected at least one error finding")
			}
			joined := strings.ToLower(strings.Join(res.Errors, " | "))
			if !strings.Contains(joined, strings.ToLower(tt.wantFinding)) {
				t.Errorf("errors %v do not mention %q", res.Errors, tt.wantFinding)
			}
		})
	}
}

func TestERDClassSyntaxIsWarningOnly(t *testing.T) {
	// A structurally sound ERD with a stray class block loses points
	// but still passes; the cleaner rewrites the block downstream.
	content := goodERD + "\n    class EXTRA {\n        string note\n    }"

	v := New(Options{})
	res := v.Validate(context.Background(), content, types.ArtifactMermaidERD, "")

	if !res.IsValid {
		t.Fatalf("expected valid, got errors=%v score=%.0f", res.Errors, res.Score)
	}
	if len(res.Errors) != 0 {
		t.Errorf("class syntax reported as error: %v", res.Errors)
	}
	joined := strings.ToLower(strings.Join(res.Warnings, " | "))
	if !strings.Contains(joined, "classdiagram") {
		t.Errorf("warnings %v do not mention the class syntax", res.Warnings)
	}
	if res.Score != 90 {
		t.Errorf("score = %.0f, want 90 after a single warning", res.Score)
	}
}

func TestFlowchartDirectionWarning(t *testing.T) {
	v := New(Options{})

	bare := v.Validate(context.Background(), "flowchart\n    A[Start] --> B[End]", types.ArtifactMermaidFlowchart, "")
	if !bare.IsValid {
		t.Fatalf("direction-less flowchart should still pass, got errors=%v score=%.0f", bare.Errors, bare.Score)
	}
	joined := strings.ToLower(strings.Join(bare.Warnings, " | "))
	if !strings.Contains(joined, "direction") {
		t.Errorf("warnings %v do not mention the missing direction", bare.Warnings)
	}

	directed := v.Validate(context.Background(), goodFlowchart, types.ArtifactMermaidFlowchart, "")
	for _, w := range directed.Warnings {
		if strings.Contains(strings.ToLower(w), "direction") {
			t.Errorf("direction warning fired for %q", goodFlowchart)
		}
	}
	if directed.Score <= bare.Score {
		t.Errorf("directed=%.0f should outscore direction-less=%.0f", directed.Score, bare.Score)
	}
}

func TestValidateEmptyContent(t *testing.T) {
	v := New(Options{})
	res := v.Validate(context.Background(), "   \n  ", types.ArtifactMermaidERD, "")

	if res.IsValid {
		t.Fatal("empty content must be invalid")
	}
	if res.Score != 0 {
		t.Errorf("empty content scored %.0f, want 0", res.Score)
	}
}

func TestValidatePassingFloor(t *testing.T) {
	// Only warnings fire here: no relationships plus no doctype style
	// issues do not apply, so validity hinges on the floor.
	content := "erDiagram\n    USER {\n        string name\n    }"
	strict := New(Options{PassingScore: 95})
	lax := New(Options{PassingScore: 60})

	if res := lax.Validate(context.Background(), content, types.ArtifactMermaidERD, ""); !res.IsValid {
		t.Fatalf("lax floor should accept warnings-only result, got errors=%v score=%.0f", res.Errors, res.Score)
	}
	if res := strict.Validate(context.Background(), content, types.ArtifactMermaidERD, ""); res.IsValid {
		t.Fatalf("strict floor should reject score=%.0f", res.Score)
	}
}

func TestContextCoverage(t *testing.T) {
	notes := "Track Users and Orders and Products across Warehouses"
	covered := goodERD + "\n    PRODUCT {\n        string sku\n    }\n    WAREHOUSE {\n        string city\n    }"

	v := New(Options{})
	with := v.Validate(context.Background(), covered, types.ArtifactMermaidERD, notes)
	without := v.Validate(context.Background(), "erDiagram\n    CAT {\n        string name\n    }\n    DOG {\n        string name\n    }\n    CAT ||--o{ DOG : \"chases\"", types.ArtifactMermaidERD, notes)

	if with.Score <= without.Score {
		t.Errorf("coverage bonus missing: covered=%.0f uncovered=%.0f", with.Score, without.Score)
	}
	if len(without.Warnings) == 0 {
		t.Errorf("expected a coverage warning for unrelated content")
	}
}

func TestValidateBatchPreservesOrder(t *testing.T) {
	v := New(Options{})
	items := []BatchItem{
		{Content: goodERD, ArtifactType: types.ArtifactMermaidERD},
		{Content: "nonsense", ArtifactType: types.ArtifactMermaidERD},
		{Content: goodFlowchart, ArtifactType: types.ArtifactMermaidFlowchart},
	}

	results, err := v.ValidateBatch(context.Background(), items)
	if err != nil {
		t.Fatalf("ValidateBatch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !results[0].IsValid || results[1].IsValid || !results[2].IsValid {
		t.Errorf("order not preserved: valid flags %t %t %t",
			results[0].IsValid, results[1].IsValid, results[2].IsValid)
	}
}

func TestValidateBatchLimit(t *testing.T) {
	v := New(Options{BatchLimit: 50})
	items := make([]BatchItem, 51)
	for i := range items {
		items[i] = BatchItem{Content: goodERD, ArtifactType: types.ArtifactMermaidERD}
	}

	if _, err := v.ValidateBatch(context.Background(), items); err == nil {
		t.Fatal("expected oversized batch to be rejected")
	}
}

func TestStatsCount(t *testing.T) {
	v := New(Options{})
	v.Validate(context.Background(), goodERD, types.ArtifactMermaidERD, "")
	v.Validate(context.Background(), "broken", types.ArtifactMermaidERD, "")

	total, invalid := v.Stats()
	if total != 2 || invalid != 1 {
		t.Errorf("stats total=%d invalid=%d, want 2 and 1", total, invalid)
	}
}
