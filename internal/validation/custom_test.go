package validation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"artificer/internal/types"
)

const oneRuleYAML = `rules:
  - id: no_placeholder
    applies_to: [html_prototype]
    severity: warning
    penalty: 10
    pattern: "lorem ipsum"
    message: "placeholder text present"
`

const twoRuleYAML = oneRuleYAML + `  - id: require_viewport
    applies_to: [html_prototype]
    severity: suggestion
    pattern: "viewport"
    match: absent
    message: "consider a viewport meta tag"
`

func writeRules(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCustomRules(t *testing.T) {
	v := New(Options{})
	path := writeRules(t, t.TempDir(), oneRuleYAML)

	if err := v.LoadCustomRules(path); err != nil {
		t.Fatalf("LoadCustomRules: %v", err)
	}
	if v.CustomRuleCount() != 1 {
		t.Fatalf("rule count = %d, want 1", v.CustomRuleCount())
	}

	page := "<!DOCTYPE html>\n<html><head><title>x</title></head><body><p>Lorem ipsum dolor sit amet for now.</p></body></html>"
	res := v.Validate(context.Background(), page, types.ArtifactHTMLPrototype, "")

	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "placeholder") {
			found = true
		}
	}
	if !found {
		t.Errorf("custom rule did not fire, warnings: %v", res.Warnings)
	}
}

func TestLoadCustomRulesSchemaGate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing message", "rules:\n  - id: x\n    severity: warning\n    pattern: foo\n"},
		{"bad severity", "rules:\n  - id: x\n    severity: fatal\n    pattern: foo\n    message: m\n"},
		{"unknown key", "rules:\n  - id: x\n    severity: error\n    pattern: foo\n    message: m\n    weight: 3\n"},
		{"not a rule file", "other: thing\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(Options{})
			path := writeRules(t, t.TempDir(), tt.yaml)
			if err := v.LoadCustomRules(path); err == nil {
				t.Fatal("expected schema rejection")
			}
		})
	}
}

func TestLoadCustomRulesBadRegex(t *testing.T) {
	v := New(Options{})
	path := writeRules(t, t.TempDir(), "rules:\n  - id: x\n    severity: error\n    pattern: \"([\"\n    match: regex\n    message: m\n")

	err := v.LoadCustomRules(path)
	if err == nil || !strings.Contains(err.Error(), "pattern") {
		t.Fatalf("expected pattern error, got %v", err)
	}
}

func TestRuleWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeRules(t, dir, oneRuleYAML)

	v := New(Options{})
	w, err := NewRuleWatcher(v, path)
	if err != nil {
		t.Fatalf("NewRuleWatcher: %v", err)
	}
	defer w.Close()

	if v.CustomRuleCount() != 1 {
		t.Fatalf("initial rule count = %d, want 1", v.CustomRuleCount())
	}

	if err := os.WriteFile(path, []byte(twoRuleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, func() bool { return v.CustomRuleCount() == 2 })

	reloads, failures := w.Stats()
	if reloads < 1 {
		t.Errorf("reloads = %d, want at least 1", reloads)
	}
	if failures != 0 {
		t.Errorf("failures = %d, want 0", failures)
	}
}

func TestRuleWatcherKeepsRulesOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := writeRules(t, dir, oneRuleYAML)

	v := New(Options{})
	w, err := NewRuleWatcher(v, path)
	if err != nil {
		t.Fatalf("NewRuleWatcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("rules:\n  - id: broken\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, func() bool {
		_, failures := w.Stats()
		return failures >= 1
	})

	if v.CustomRuleCount() != 1 {
		t.Errorf("rule count = %d after bad reload, want previous set kept", v.CustomRuleCount())
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
