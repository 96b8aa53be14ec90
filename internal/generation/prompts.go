package generation

import (
	"fmt"
	"strings"

	"artificer/internal/types"
)

// =============================================================================
// PROMPT TEMPLATES
// =============================================================================
//
// Prompts are plain data. The "TASK: generate a <type> artifact" line is
// the routing marker the simulated backend keys off, so it stays stable.

const defaultSystemPrompt = `You are a senior software architect turning meeting notes into engineering artifacts.
Respond with the requested artifact only. No commentary, no markdown fences unless the artifact itself is code.`

var systemPrompts = map[types.ArtifactType]string{
	types.ArtifactMermaidERD: `You are a data modeler. You produce valid mermaid erDiagram definitions.
Every entity gets typed attributes; relationships carry cardinality and a label.
Respond with the diagram source only.`,

	types.ArtifactMermaidArchitecture: `You are a software architect. You produce valid mermaid flowchart definitions
describing system architecture: services, stores, and the edges between them.
Respond with the diagram source only.`,

	types.ArtifactMermaidSequence: `You are a software architect. You produce valid mermaid sequenceDiagram
definitions: participants first, then the message flow in order.
Respond with the diagram source only.`,

	types.ArtifactMermaidFlowchart: `You are a process analyst. You produce valid mermaid flowchart definitions
with clear node labels and directional edges.
Respond with the diagram source only.`,

	types.ArtifactAPIDocs: `You are an API technical writer. You produce markdown API references:
one section per endpoint with method, path, request and response examples.`,

	types.ArtifactJiraTickets: `You are an agile analyst. You produce epics, stories with acceptance
criteria, and tasks, in plain structured text ready for a tracker import.`,

	types.ArtifactCodePrototype: `You are a senior engineer. You produce small, runnable code prototypes
with error handling, inside fenced code blocks tagged with the language.`,

	types.ArtifactHTMLPrototype: `You are a frontend engineer. You produce complete standalone HTML pages:
doctype, head with inline styles, and a body implementing the requested UI.`,
}

// SystemPromptFor returns the per-type system prompt, falling back to
// the generic one for unknown types.
func SystemPromptFor(artifactType types.ArtifactType) string {
	if p, ok := systemPrompts[artifactType.Normalize()]; ok {
		return p
	}
	return defaultSystemPrompt
}

// GenerationPrompt assembles the first-attempt prompt for a rung.
func GenerationPrompt(artifactType types.ArtifactType, notes, assembledContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TASK: generate a %s artifact from the meeting notes below.\n", artifactType.Normalize())
	if notes != "" {
		b.WriteString("\nMEETING NOTES:\n")
		b.WriteString(notes)
		b.WriteString("\n")
	}
	if assembledContext != "" {
		b.WriteString("\nCONTEXT:\n")
		b.WriteString(assembledContext)
		b.WriteString("\n")
	}
	b.WriteString("\nRespond with the artifact only.")
	return b.String()
}

// RepairPrompt assembles a repair-rung prompt. The failing candidate and
// the validator's findings are quoted verbatim so the model sees exactly
// what to fix.
func RepairPrompt(artifactType types.ArtifactType, notes, assembledContext, candidate string, errors []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TASK: generate a %s artifact from the meeting notes below.\n", artifactType.Normalize())
	b.WriteString("\nA previous attempt failed validation.\n")
	b.WriteString("\nPREVIOUS ATTEMPT:\n")
	b.WriteString(candidate)
	b.WriteString("\n\nCRITICAL FIX REQUIRED:\n")
	if len(errors) == 0 {
		b.WriteString("- output scored below the acceptance threshold\n")
	}
	for _, e := range errors {
		fmt.Fprintf(&b, "- %s\n", e)
	}
	if notes != "" {
		b.WriteString("\nMEETING NOTES:\n")
		b.WriteString(notes)
		b.WriteString("\n")
	}
	if assembledContext != "" {
		b.WriteString("\nCONTEXT:\n")
		b.WriteString(assembledContext)
		b.WriteString("\n")
	}
	b.WriteString("\nRespond with the corrected artifact only.")
	return b.String()
}
