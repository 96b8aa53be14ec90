package training

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"artificer/internal/types"
)

func testPool(t *testing.T, opts PoolOptions) *Pool {
	t.Helper()
	p, err := NewPool(t.TempDir(), opts)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return p
}

func scorePtr(v float64) *float64 { return &v }

func poolExample(i int, quality float64) types.TrainingExample {
	return types.TrainingExample{
		ArtifactType: types.ArtifactMermaidERD,
		Instruction:  InstructionFor(types.ArtifactMermaidERD),
		Input:        fmt.Sprintf("meeting notes about orders and invoices, revision %d", i),
		Output:       fmt.Sprintf("erDiagram\n  USER ||--o{ ORDER : places\n  ORDER { int id }\n  %% variant %d", i),
		QualityScore: quality,
		Source:       types.SourceFeedback,
	}
}

func TestPoolAddGates(t *testing.T) {
	p := testPool(t, PoolOptions{})

	tests := []struct {
		name   string
		ex     types.TrainingExample
		admit  bool
		reason string
	}{
		{
			name:  "clears the floor",
			ex:    poolExample(1, 85),
			admit: true,
		},
		{
			name:   "below quality floor",
			ex:     poolExample(2, 69),
			reason: "below floor",
		},
		{
			name: "missing artifact type",
			ex: types.TrainingExample{
				Output:       strings.Repeat("x", 50),
				QualityScore: 90,
			},
			reason: "missing artifact type",
		},
		{
			name: "output too short",
			ex: types.TrainingExample{
				ArtifactType: types.ArtifactMermaidERD,
				Output:       "erDiagram",
				QualityScore: 90,
			},
			reason: "too short",
		},
		{
			name: "placeholder content",
			ex: types.TrainingExample{
				ArtifactType: types.ArtifactMermaidERD,
				Output:       "erDiagram\n  USER { int id }\n  %% lorem ipsum filler text",
				QualityScore: 90,
			},
			reason: "placeholder",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admitted, reason, err := p.Add(tt.ex)
			if err != nil {
				t.Fatalf("Add: %v", err)
			}
			if admitted != tt.admit {
				t.Fatalf("admitted = %v, want %v (reason %q)", admitted, tt.admit, reason)
			}
			if tt.reason != "" && !strings.Contains(reason, tt.reason) {
				t.Errorf("reason = %q, want substring %q", reason, tt.reason)
			}
		})
	}
}

func TestPoolRejectsDuplicates(t *testing.T) {
	p := testPool(t, PoolOptions{})

	ex := poolExample(1, 90)
	if admitted, _, _ := p.Add(ex); !admitted {
		t.Fatal("first add rejected")
	}
	admitted, reason, err := p.Add(ex)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if admitted {
		t.Fatal("duplicate admitted")
	}
	if !strings.Contains(reason, "duplicate") {
		t.Errorf("reason = %q, want duplicate", reason)
	}
	if got := p.Size(types.ArtifactMermaidERD); got != 1 {
		t.Errorf("size = %d, want 1", got)
	}
}

func TestPoolAddFillsDerivedFields(t *testing.T) {
	p := testPool(t, PoolOptions{})

	admitted, _, err := p.Add(poolExample(1, 88))
	if err != nil || !admitted {
		t.Fatalf("Add: admitted=%v err=%v", admitted, err)
	}

	got := p.Examples(types.ArtifactMermaidERD)[0]
	if got.Hash == "" {
		t.Error("hash not filled")
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not filled")
	}
	if got.Difficulty <= 0 || got.Difficulty > 1 {
		t.Errorf("difficulty = %v, want in (0,1]", got.Difficulty)
	}
	if got.Category != types.ArtifactMermaidERD.String() {
		t.Errorf("category = %q, want type default", got.Category)
	}
}

func TestPoolAddFromFeedback(t *testing.T) {
	tests := []struct {
		name    string
		event   types.FeedbackEvent
		admit   bool
		reason  string
		output  string
		category string
	}{
		{
			name: "positive above admission floor",
			event: types.FeedbackEvent{
				ArtifactType: types.ArtifactMermaidERD,
				FeedbackType: types.FeedbackPositive,
				Score:        scorePtr(90),
				AIOutput:     poolExample(1, 90).Output,
			},
			admit: true,
		},
		{
			name: "positive below admission floor",
			event: types.FeedbackEvent{
				ArtifactType: types.ArtifactMermaidERD,
				FeedbackType: types.FeedbackPositive,
				Score:        scorePtr(80),
				AIOutput:     poolExample(2, 80).Output,
			},
			reason: "below admission floor",
		},
		{
			name: "correction swaps in corrected output",
			event: types.FeedbackEvent{
				ArtifactType:    types.ArtifactMermaidERD,
				FeedbackType:    types.FeedbackCorrection,
				Score:           scorePtr(88),
				AIOutput:        poolExample(3, 88).Output,
				CorrectedOutput: poolExample(4, 88).Output,
			},
			admit:   true,
			output:  poolExample(4, 88).Output,
			category: CategoryCorrection,
		},
		{
			name: "correction without corrected output",
			event: types.FeedbackEvent{
				ArtifactType: types.ArtifactMermaidERD,
				FeedbackType: types.FeedbackCorrection,
				Score:        scorePtr(88),
				AIOutput:     poolExample(5, 88).Output,
			},
			reason: "without corrected output",
		},
		{
			name: "success above its floor",
			event: types.FeedbackEvent{
				ArtifactType: types.ArtifactMermaidERD,
				FeedbackType: types.FeedbackSuccess,
				Score:        scorePtr(82),
				AIOutput:     poolExample(6, 82).Output,
			},
			admit: true,
		},
		{
			name: "success below its floor",
			event: types.FeedbackEvent{
				ArtifactType: types.ArtifactMermaidERD,
				FeedbackType: types.FeedbackSuccess,
				Score:        scorePtr(78),
				AIOutput:     poolExample(7, 78).Output,
			},
			reason: "below success floor",
		},
		{
			name: "negative never pools",
			event: types.FeedbackEvent{
				ArtifactType: types.ArtifactMermaidERD,
				FeedbackType: types.FeedbackNegative,
				Score:        scorePtr(95),
				AIOutput:     poolExample(8, 95).Output,
			},
			reason: "does not pool",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPool(t, PoolOptions{})
			admitted, reason, err := p.AddFromFeedback(&tt.event)
			if err != nil {
				t.Fatalf("AddFromFeedback: %v", err)
			}
			if admitted != tt.admit {
				t.Fatalf("admitted = %v, want %v (reason %q)", admitted, tt.admit, reason)
			}
			if tt.reason != "" && !strings.Contains(reason, tt.reason) {
				t.Errorf("reason = %q, want substring %q", reason, tt.reason)
			}
			if tt.output != "" {
				got := p.Examples(tt.event.ArtifactType)[0]
				if got.Output != tt.output {
					t.Errorf("pooled output = %q, want corrected output", got.Output)
				}
				if got.Category != tt.category {
					t.Errorf("category = %q, want %q", got.Category, tt.category)
				}
			}
		})
	}
}

func TestPoolEvictsLowestQualityAtCap(t *testing.T) {
	p := testPool(t, PoolOptions{MaxPerType: 3})

	qualities := []float64{90, 72, 85, 95}
	for i, q := range qualities {
		if admitted, reason, err := p.Add(poolExample(i, q)); !admitted || err != nil {
			t.Fatalf("Add %d: admitted=%v reason=%q err=%v", i, admitted, reason, err)
		}
	}

	if got := p.Size(types.ArtifactMermaidERD); got != 3 {
		t.Fatalf("size = %d, want 3", got)
	}
	for _, ex := range p.Examples(types.ArtifactMermaidERD) {
		if ex.QualityScore == 72 {
			t.Error("lowest-quality example survived eviction")
		}
	}
	if got := p.TotalAdded(types.ArtifactMermaidERD); got != 4 {
		t.Errorf("TotalAdded = %d, want 4 (monotonic through eviction)", got)
	}
}

func TestPoolEvictionPrefersOldestOnTies(t *testing.T) {
	p := testPool(t, PoolOptions{MaxPerType: 2})

	old := poolExample(1, 80)
	old.CreatedAt = time.Now().Add(-time.Hour)
	for i, ex := range []types.TrainingExample{old, poolExample(2, 80), poolExample(3, 90)} {
		if admitted, _, err := p.Add(ex); !admitted || err != nil {
			t.Fatalf("Add %d failed", i)
		}
	}

	for _, ex := range p.Examples(types.ArtifactMermaidERD) {
		if ex.Input == old.Input {
			t.Error("oldest tied example survived eviction")
		}
	}
}

func TestPoolClearSyntheticKeepsRealExamples(t *testing.T) {
	p := testPool(t, PoolOptions{})

	for i := 0; i < 4; i++ {
		ex := poolExample(i, 88)
		if i%2 == 1 {
			ex.Source = types.SourceSynthetic
		}
		if admitted, _, err := p.Add(ex); !admitted || err != nil {
			t.Fatalf("Add %d failed", i)
		}
	}

	removed, err := p.ClearSynthetic(types.ArtifactMermaidERD)
	if err != nil {
		t.Fatalf("ClearSynthetic: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	for _, ex := range p.Examples(types.ArtifactMermaidERD) {
		if ex.Source == types.SourceSynthetic {
			t.Error("synthetic example survived")
		}
	}
	if got := p.Size(types.ArtifactMermaidERD); got != 2 {
		t.Errorf("size = %d, want 2 real examples", got)
	}

	// A cleared synthetic example can pool again.
	again := poolExample(1, 88)
	again.Source = types.SourceSynthetic
	if admitted, reason, _ := p.Add(again); !admitted {
		t.Errorf("re-add after synthetic clear rejected: %s", reason)
	}
}

func TestPoolPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	p, err := NewPool(dir, PoolOptions{})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	for i := 0; i < 3; i++ {
		if admitted, _, err := p.Add(poolExample(i, 88)); !admitted || err != nil {
			t.Fatalf("Add %d failed", i)
		}
	}

	reopened, err := NewPool(dir, PoolOptions{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Size(types.ArtifactMermaidERD); got != 3 {
		t.Errorf("size after reopen = %d, want 3", got)
	}
	if got := reopened.TotalAdded(types.ArtifactMermaidERD); got != 3 {
		t.Errorf("TotalAdded after reopen = %d, want 3", got)
	}

	// The reloaded hash index still catches duplicates.
	if admitted, reason, _ := reopened.Add(poolExample(1, 88)); admitted {
		t.Errorf("duplicate admitted after reopen (reason %q)", reason)
	}
}

func TestPoolReadiness(t *testing.T) {
	p := testPool(t, PoolOptions{IncrementalThreshold: 3, MajorThreshold: 5})

	ready, needed, have := p.Readiness(types.ArtifactMermaidERD)
	if ready || needed != 3 || have != 0 {
		t.Fatalf("empty pool readiness = (%v, %d, %d), want (false, 3, 0)", ready, needed, have)
	}
	if _, ok := p.Ready(types.ArtifactMermaidERD); ok {
		t.Fatal("empty pool reported ready")
	}

	for i := 0; i < 3; i++ {
		p.Add(poolExample(i, 88))
	}
	ready, _, have = p.Readiness(types.ArtifactMermaidERD)
	if !ready || have != 3 {
		t.Fatalf("readiness = (%v, %d), want ready with 3", ready, have)
	}
	if priority, ok := p.Ready(types.ArtifactMermaidERD); !ok || priority != types.PriorityIncremental {
		t.Fatalf("Ready = (%v, %v), want incremental", priority, ok)
	}

	for i := 3; i < 5; i++ {
		p.Add(poolExample(i, 88))
	}
	if priority, _ := p.Ready(types.ArtifactMermaidERD); priority != types.PriorityMajor {
		t.Fatalf("Ready = %v, want major at threshold", priority)
	}
}

func TestGenericReason(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{strings.Repeat("a real diagram line\n", 5), ""},
		{"short", "too short"},
		{strings.Repeat("x", 40) + " insert content here", "placeholder"},
		{strings.Repeat("x", 40) + " Lorem Ipsum dolor", "placeholder"},
	}
	for _, tt := range tests {
		if got := genericReason(tt.output); tt.want == "" && got != "" {
			t.Errorf("genericReason(%.20q) = %q, want empty", tt.output, got)
		} else if tt.want != "" && !strings.Contains(got, tt.want) {
			t.Errorf("genericReason(%.20q) = %q, want substring %q", tt.output, got, tt.want)
		}
	}
}
