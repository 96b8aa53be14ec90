package validation

import (
	"context"
	"testing"
)

const goSnippet = `package main

// add sums two ints.
func add(a, b int) int {
	return a + b
}

func main() {
	_ = add(1, 2)
}`

const pySnippet = `import math

# circle area
def area(r):
    return math.pi * r * r

class Shape:
    pass`

const jsSnippet = `// fetch orders
function loadOrders() {
  return fetch('/orders');
}

const render = (items) => items.length;`

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"go", goSnippet, "go"},
		{"python", pySnippet, "python"},
		{"javascript", jsSnippet, "javascript"},
		{"prose", "this is not source code at all", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectLanguage(tt.content); got != tt.want {
				t.Errorf("detectLanguage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnalyzeCodeCounts(t *testing.T) {
	m := analyzeCode(context.Background(), goSnippet)

	if m.Language != "go" {
		t.Fatalf("language = %q", m.Language)
	}
	if m.HasParseErrors {
		t.Fatal("clean snippet reported parse errors")
	}
	if m.Functions != 2 {
		t.Errorf("functions = %d, want 2", m.Functions)
	}
	if m.Comments == 0 {
		t.Errorf("comments = %d, want at least 1", m.Comments)
	}
}

func TestAnalyzeCodeBrokenSyntax(t *testing.T) {
	m := analyzeCode(context.Background(), "package main\n\nfunc broken( {")

	if !m.HasParseErrors {
		t.Fatal("expected parse errors for broken snippet")
	}
}

func TestCompileGo(t *testing.T) {
	if err := compileGo(goSnippet); err != nil {
		t.Fatalf("valid snippet rejected: %v", err)
	}
	if err := compileGo("func broken( {"); err == nil {
		t.Fatal("broken snippet accepted")
	}
}

func TestCompileGoWrapsBareSnippets(t *testing.T) {
	if err := compileGo("func double(n int) int { return n * 2 }"); err != nil {
		t.Fatalf("bare snippet rejected: %v", err)
	}
}

func TestValidateCodePrototype(t *testing.T) {
	v := New(Options{})

	good := v.Validate(context.Background(), goSnippet, "code_prototype", "")
	if !good.IsValid {
		t.Fatalf("clean snippet invalid: errors=%v score=%.0f", good.Errors, good.Score)
	}

	bad := v.Validate(context.Background(), "package main\n\nfunc broken( {", "code_prototype", "")
	if bad.IsValid {
		t.Fatalf("broken snippet accepted with score=%.0f", bad.Score)
	}
	if len(bad.Errors) == 0 {
		t.Fatal("expected syntax error finding")
	}
}
