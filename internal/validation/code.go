package validation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"artificer/internal/logging"
)

// =============================================================================
// CODE ANALYSIS
// =============================================================================

// CodeMetrics summarizes the syntactic shape of a code prototype.
type CodeMetrics struct {
	Language       string `json:"language"`
	Functions      int    `json:"functions"`
	Classes        int    `json:"classes"`
	Comments       int    `json:"comments"`
	HasParseErrors bool   `json:"has_parse_errors"`
}

// nodeKinds maps a language to the tree-sitter node types counted as
// functions, classes, and comments.
type nodeKinds struct {
	functions map[string]bool
	classes   map[string]bool
	comments  map[string]bool
}

var kindsByLanguage = map[string]nodeKinds{
	"go": {
		functions: map[string]bool{"function_declaration": true, "method_declaration": true},
		classes:   map[string]bool{"type_declaration": true},
		comments:  map[string]bool{"comment": true},
	},
	"python": {
		functions: map[string]bool{"function_definition": true},
		classes:   map[string]bool{"class_definition": true},
		comments:  map[string]bool{"comment": true},
	},
	"javascript": {
		functions: map[string]bool{"function_declaration": true, "method_definition": true, "arrow_function": true, "function_expression": true},
		classes:   map[string]bool{"class_declaration": true},
		comments:  map[string]bool{"comment": true},
	},
}

var (
	goMarkerRe = regexp.MustCompile(`(?m)^\s*(package\s+\w+|func\s+\w+|func\s+\()`)
	pyMarkerRe = regexp.MustCompile(`(?m)^\s*(def\s+\w+|class\s+\w+.*:|import\s+\w+|from\s+\w+\s+import)`)
	jsMarkerRe = regexp.MustCompile(`(?m)(=>|function\s+\w*\s*\(|const\s+\w+\s*=|document\.|console\.)`)
)

// detectLanguage guesses the snippet language from line-level markers.
func detectLanguage(content string) string {
	goHits := len(goMarkerRe.FindAllString(content, -1))
	pyHits := len(pyMarkerRe.FindAllString(content, -1))
	jsHits := len(jsMarkerRe.FindAllString(content, -1))

	switch {
	case goHits >= pyHits && goHits >= jsHits && goHits > 0:
		return "go"
	case pyHits >= jsHits && pyHits > 0:
		return "python"
	case jsHits > 0:
		return "javascript"
	default:
		return ""
	}
}

func grammarFor(lang string) *sitter.Language {
	switch lang {
	case "go":
		return golang.GetLanguage()
	case "python":
		return python.GetLanguage()
	case "javascript":
		return javascript.GetLanguage()
	default:
		return nil
	}
}

// analyzeCode parses the snippet with tree-sitter and counts structural
// nodes. Unknown languages produce empty metrics rather than an error.
func analyzeCode(ctx context.Context, content string) *CodeMetrics {
	metrics := &CodeMetrics{Language: detectLanguage(content)}
	grammar := grammarFor(metrics.Language)
	if grammar == nil {
		return metrics
	}

	parser := sitter.NewParser()
	parser.SetLanguage(grammar)
	tree, err := parser.ParseCtx(ctx, nil, []byte(content))
	if err != nil {
		logging.ValidationWarn("tree-sitter parse failed for %s snippet: %v", metrics.Language, err)
		metrics.HasParseErrors = true
		return metrics
	}
	defer tree.Close()

	kinds := kindsByLanguage[metrics.Language]
	root := tree.RootNode()
	metrics.HasParseErrors = root.HasError()
	countNodes(root, kinds, metrics)
	return metrics
}

func countNodes(n *sitter.Node, kinds nodeKinds, metrics *CodeMetrics) {
	kind := n.Type()
	switch {
	case kinds.functions[kind]:
		metrics.Functions++
	case kinds.classes[kind]:
		metrics.Classes++
	case kinds.comments[kind]:
		metrics.Comments++
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		countNodes(n.Child(i), kinds, metrics)
	}
}

// =============================================================================
// GO COMPILE GATE
// =============================================================================

// compileGo type-checks a Go snippet with yaegi without executing it.
// Snippets without a package clause are wrapped as package main first.
func compileGo(src string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compile panic: %v", r)
		}
	}()

	if !strings.Contains(src, "package ") {
		src = "package main\n\n" + src
	}
	i := interp.New(interp.Options{})
	if uerr := i.Use(stdlib.Symbols); uerr != nil {
		return uerr
	}
	_, err = i.Compile(src)
	return err
}
