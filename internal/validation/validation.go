// Package validation scores generated artifacts against per-type rule
// tables. A result is valid only when no error-severity rule fired and
// the score clears the passing floor.
package validation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"artificer/internal/logging"
	"artificer/internal/types"
)

const (
	defaultPassingScore = 60
	defaultBatchLimit   = 50
	defaultBatchWorkers = 4
)

// =============================================================================
// RULE MODEL
// =============================================================================

type Severity string

const (
	SeverityError      Severity = "error"
	SeverityWarning    Severity = "warning"
	SeveritySuggestion Severity = "suggestion"
)

// defaultPenalty applies when a rule does not set its own.
func (s Severity) defaultPenalty() int {
	switch s {
	case SeverityError:
		return 20
	case SeverityWarning:
		return 10
	default:
		return 0
	}
}

// Rule is one check in the validation table. Check returns whether the
// rule fired plus an optional detail appended to the finding.
type Rule struct {
	ID       string
	Types    []types.ArtifactType // empty applies to every type
	Severity Severity
	Penalty  int
	Message  string
	Check    func(d *document) (bool, string)
}

func (r *Rule) appliesTo(at types.ArtifactType) bool {
	if len(r.Types) == 0 {
		return true
	}
	for _, t := range r.Types {
		if t == at {
			return true
		}
	}
	return false
}

func (r *Rule) penalty() int {
	if r.Penalty > 0 {
		return r.Penalty
	}
	return r.Severity.defaultPenalty()
}

// document carries one artifact through the rule table. Expensive
// analyses (tree-sitter, tag balance) run once at construction.
type document struct {
	content      string
	lower        string
	trimmed      string
	lines        []string
	artifactType types.ArtifactType
	notes        string

	code         *CodeMetrics
	goCompileErr string
	htmlIssues   []string
}

func newDocument(ctx context.Context, content string, at types.ArtifactType, notes string) *document {
	d := &document{
		content:      content,
		lower:        strings.ToLower(content),
		trimmed:      strings.TrimSpace(content),
		lines:        strings.Split(content, "\n"),
		artifactType: at,
		notes:        notes,
	}
	if at.IsCode() && d.trimmed != "" {
		d.code = analyzeCode(ctx, content)
		if d.code.Language == "go" {
			if err := compileGo(content); err != nil {
				d.goCompileErr = err.Error()
			}
		}
	}
	if at.IsHTML() && d.trimmed != "" {
		d.htmlIssues = tagBalanceIssues(content)
	}
	return d
}

// =============================================================================
// VALIDATOR
// =============================================================================

type Options struct {
	PassingScore int // minimum score for is_valid, default 60
	BatchLimit   int // max items per ValidateBatch call, default 50
	BatchWorkers int // concurrent workers in ValidateBatch, default 4
}

type Validator struct {
	passing      int
	batchLimit   int
	batchWorkers int

	mu     sync.RWMutex
	custom []Rule

	validations int64
	invalid     int64
}

func New(opts Options) *Validator {
	if opts.PassingScore <= 0 {
		opts.PassingScore = defaultPassingScore
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = defaultBatchLimit
	}
	if opts.BatchWorkers <= 0 {
		opts.BatchWorkers = defaultBatchWorkers
	}
	return &Validator{
		passing:      opts.PassingScore,
		batchLimit:   opts.BatchLimit,
		batchWorkers: opts.BatchWorkers,
	}
}

// Validate scores content for the given artifact type. Notes, when
// provided, enable the context coverage adjustment.
func (v *Validator) Validate(ctx context.Context, content string, artifactType types.ArtifactType, notes string) *types.ValidationResult {
	atomic.AddInt64(&v.validations, 1)
	at := artifactType.Normalize()

	res := &types.ValidationResult{
		Errors:      []string{},
		Warnings:    []string{},
		Suggestions: []string{},
	}

	if strings.TrimSpace(content) == "" {
		res.Errors = append(res.Errors, "content is empty")
		res.Score = 0
		atomic.AddInt64(&v.invalid, 1)
		logging.Validation("scored empty %s artifact: invalid", at)
		return res
	}

	d := newDocument(ctx, content, at, notes)
	score := 100

	for i := range builtinRules {
		r := &builtinRules[i]
		if !r.appliesTo(at) {
			continue
		}
		fired, detail := r.Check(d)
		if !fired {
			continue
		}
		score -= v.record(res, r, detail)
	}
	for _, r := range v.customRules() {
		if !r.appliesTo(at) {
			continue
		}
		fired, detail := r.Check(d)
		if !fired {
			continue
		}
		score -= v.record(res, &r, detail)
	}

	score += v.contextAdjustment(d, res)

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	res.Score = float64(score)
	res.IsValid = len(res.Errors) == 0 && score >= v.passing
	if !res.IsValid {
		atomic.AddInt64(&v.invalid, 1)
	}

	logging.Validation("scored %s artifact: score=%d valid=%t errors=%d warnings=%d",
		at, score, res.IsValid, len(res.Errors), len(res.Warnings))
	return res
}

func (v *Validator) record(res *types.ValidationResult, r *Rule, detail string) int {
	finding := r.Message
	if detail != "" {
		finding = fmt.Sprintf("%s (%s)", r.Message, detail)
	}
	switch r.Severity {
	case SeverityError:
		res.Errors = append(res.Errors, finding)
		logging.ValidationDebug("rule %s fired (error): %s", r.ID, finding)
		return r.penalty()
	case SeverityWarning:
		res.Warnings = append(res.Warnings, finding)
		logging.ValidationDebug("rule %s fired (warning): %s", r.ID, finding)
		return r.penalty()
	default:
		res.Suggestions = append(res.Suggestions, finding)
		return 0
	}
}

// contextAdjustment compares noted terms against the content. Good
// coverage earns a small bonus, poor coverage a warning.
func (v *Validator) contextAdjustment(d *document, res *types.ValidationResult) int {
	terms := notedTerms(d.notes)
	if len(terms) < 2 {
		return 0
	}
	hits := 0
	for _, term := range terms {
		needle := strings.ToLower(term)
		// Notes often pluralize what diagrams name in the singular.
		if strings.Contains(d.lower, needle) ||
			(len(needle) > 3 && strings.Contains(d.lower, strings.TrimSuffix(needle, "s"))) {
			hits++
		}
	}
	ratio := float64(hits) / float64(len(terms))
	switch {
	case ratio >= 0.7:
		return 5
	case ratio < 0.3:
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("content references %d of %d terms from the notes", hits, len(terms)))
		return -5
	default:
		return 0
	}
}

// notedTerms pulls capitalized words out of the notes, deduplicated in
// order of first appearance, capped at 12.
func notedTerms(notes string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, word := range strings.Fields(notes) {
		word = strings.Trim(word, ".,;:!?()[]{}\"'")
		if len(word) < 3 || len(terms) >= 12 {
			continue
		}
		if word[0] < 'A' || word[0] > 'Z' {
			continue
		}
		key := strings.ToLower(word)
		if stopwords[key] || seen[key] {
			continue
		}
		seen[key] = true
		terms = append(terms, word)
	}
	return terms
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "this": true,
	"that": true, "from": true, "then": true, "when": true, "what": true,
	"should": true, "must": true, "will": true, "can": true, "into": true,
	"each": true, "all": true, "also": true, "use": true, "using": true,
}

// =============================================================================
// BATCH
// =============================================================================

// BatchItem is one entry in a ValidateBatch call.
type BatchItem struct {
	Content      string             `json:"content"`
	ArtifactType types.ArtifactType `json:"artifact_type"`
	Notes        string             `json:"notes,omitempty"`
}

// ValidateBatch validates items concurrently, preserving input order in
// the result slice. Batches above the configured limit are rejected.
func (v *Validator) ValidateBatch(ctx context.Context, items []BatchItem) ([]*types.ValidationResult, error) {
	if len(items) > v.batchLimit {
		return nil, fmt.Errorf("batch of %d items exceeds limit of %d", len(items), v.batchLimit)
	}
	results := make([]*types.ValidationResult, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.batchWorkers)
	for i := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			it := items[i]
			results[i] = v.Validate(gctx, it.Content, it.ArtifactType, it.Notes)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Stats reports total validations and how many came back invalid.
func (v *Validator) Stats() (total, invalid int64) {
	return atomic.LoadInt64(&v.validations), atomic.LoadInt64(&v.invalid)
}

func (v *Validator) customRules() []Rule {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.custom
}

func (v *Validator) setCustomRules(rules []Rule) {
	v.mu.Lock()
	v.custom = rules
	v.mu.Unlock()
}
