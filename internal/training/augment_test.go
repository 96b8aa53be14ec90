package training

import (
	"math"
	"strings"
	"testing"

	"artificer/internal/types"
)

func augmentFixture(n int) []types.TrainingExample {
	out := make([]types.TrainingExample, n)
	for i := range out {
		ex := poolExample(i, 90)
		ex.Hash = ExampleHash(ex)
		out[i] = ex
	}
	return out
}

func TestAugmentProducesDiscountedVariants(t *testing.T) {
	a := NewAugmenter(2, 0.95)
	source := augmentFixture(3)

	variants := a.Augment(source)
	if len(variants) == 0 || len(variants) > len(source) {
		t.Fatalf("variant count = %d, want 1..%d", len(variants), len(source))
	}

	originals := map[string]bool{}
	for _, ex := range source {
		originals[ex.Hash] = true
	}
	for _, v := range variants {
		if v.Source != types.SourceSynthetic {
			t.Errorf("variant source = %q, want synthetic", v.Source)
		}
		if math.Abs(v.QualityScore-90*0.95) > 1e-9 {
			t.Errorf("variant quality = %v, want discounted %v", v.QualityScore, 90*0.95)
		}
		if v.Hash == "" || originals[v.Hash] {
			t.Errorf("variant hash %q collides with a source example", v.Hash)
		}
		matched := false
		for _, ex := range source {
			base := strings.TrimRight(ex.Output, "\n")
			if v.Output == ex.Output {
				matched = true
				break
			}
			if rest, ok := strings.CutPrefix(v.Output, base); ok && strings.HasPrefix(strings.TrimSpace(rest), "%%") {
				matched = true
				break
			}
		}
		if !matched {
			t.Errorf("variant output is not a source output plus comments:\n%s", v.Output)
		}
	}
}

func TestAugmentOutputVariation(t *testing.T) {
	a := NewAugmenter(4, 0.95)
	source := augmentFixture(1)

	var jittered []types.TrainingExample
	for _, v := range a.Augment(source) {
		if v.Output != source[0].Output {
			jittered = append(jittered, v)
		}
	}
	if len(jittered) == 0 {
		t.Fatal("no output-varied variants for a mermaid example")
	}
	base := strings.TrimRight(source[0].Output, "\n")
	for _, v := range jittered {
		rest, ok := strings.CutPrefix(v.Output, base)
		if !ok {
			t.Fatalf("output variation rewrote the diagram:\n%s", v.Output)
		}
		if !strings.HasPrefix(strings.TrimSpace(rest), "%%") {
			t.Errorf("added output content %q is not a comment", rest)
		}
	}

	// Order-sensitive formats never get their output touched.
	code := source[0]
	code.ArtifactType = types.ArtifactCodePrototype
	code.Output = "def main():\n    pass"
	code.Hash = ExampleHash(code)
	for _, v := range a.Augment([]types.TrainingExample{code}) {
		if v.Output != code.Output {
			t.Errorf("code output varied: %q", v.Output)
		}
	}
}

func TestAugmentFactorScaling(t *testing.T) {
	source := augmentFixture(2)

	if got := NewAugmenter(1, 0.95).Augment(source); len(got) != 0 {
		t.Errorf("factor 1 produced %d variants, want 0", len(got))
	}
	if got := NewAugmenter(3, 0.95).Augment(source); len(got) > 2*len(source) || len(got) < len(source) {
		t.Errorf("factor 3 produced %d variants, want about %d", len(got), 2*len(source))
	}
	if got := NewAugmenter(2, 0.95).Augment(nil); got != nil {
		t.Errorf("empty source produced %d variants", len(got))
	}
}

func TestAugmenterDefaults(t *testing.T) {
	a := NewAugmenter(0, 0)
	if a.Factor != defaultAugmentFactor || a.QualityDiscount != defaultQualityDiscount {
		t.Errorf("defaults = %+v", a)
	}
	if a := NewAugmenter(2, 1.5); a.QualityDiscount != defaultQualityDiscount {
		t.Errorf("discount above 1 kept: %v", a.QualityDiscount)
	}
}

func TestReorderLinesPreservesContent(t *testing.T) {
	in := "attendees and goals\nrequirements discussion\ndecisions made"
	want := "requirements discussion\ndecisions made\nattendees and goals"
	if got := reorderLines(in); got != want {
		t.Errorf("reorderLines = %q, want %q", got, want)
	}

	// Too few lines to rotate.
	if got := reorderLines("line one\nline two"); got != "line one\nline two" {
		t.Errorf("short input changed: %q", got)
	}
}
