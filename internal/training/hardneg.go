package training

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"artificer/internal/logging"
	"artificer/internal/types"
)

const failureCasesFile = "failure_cases.jsonl"

// HardNegatives records low-scoring generations so batches can carry
// examples of what not to produce. Append-only JSONL, like the
// feedback log.
type HardNegatives struct {
	path string
	mu   sync.Mutex
}

func NewHardNegatives(dir string) (*HardNegatives, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create hard negatives dir: %w", err)
	}
	return &HardNegatives{path: filepath.Join(dir, failureCasesFile)}, nil
}

// Record appends one failure case, filling its timestamp and
// complexity factors when absent.
func (h *HardNegatives) Record(fc *types.FailureCase) error {
	if fc == nil {
		return errors.New("failure case is nil")
	}
	if fc.ArtifactType == "" {
		return errors.New("failure case requires an artifact type")
	}
	fc.ArtifactType = fc.ArtifactType.Normalize()
	if fc.Timestamp.IsZero() {
		fc.Timestamp = time.Now().UTC()
	}
	if fc.FailureType == "" {
		fc.FailureType = "validation"
	}
	if fc.ComplexityFactors == nil {
		fc.ComplexityFactors = complexityFactors(fc.Input, fc.Output)
	}

	line, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("encode failure case: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open failure log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append failure case: %w", err)
	}
	logging.Training("recorded %s failure case (score=%.0f type=%s)",
		fc.ArtifactType, fc.ValidationScore, fc.FailureType)
	return nil
}

// Difficulty ranks a failure case by how badly it scored and how
// structurally demanding it was.
func Difficulty(fc *types.FailureCase) float64 {
	scorePart := 1.0 - clamp01(fc.ValidationScore/100.0)
	var factorPart float64
	if len(fc.ComplexityFactors) > 0 {
		var sum float64
		for _, v := range fc.ComplexityFactors {
			sum += clamp01(v)
		}
		factorPart = sum / float64(len(fc.ComplexityFactors))
	}
	return clamp01(0.6*scorePart + 0.4*factorPart)
}

// Hardest returns the most difficult failures at or above minDifficulty,
// hardest first. An empty type matches all types.
func (h *HardNegatives) Hardest(at types.ArtifactType, minDifficulty float64, limit int) ([]*types.FailureCase, error) {
	if limit <= 0 {
		limit = 25
	}
	all, err := h.readAll()
	if err != nil {
		return nil, err
	}
	want := at.Normalize()

	type ranked struct {
		fc         *types.FailureCase
		difficulty float64
	}
	var pool []ranked
	for _, fc := range all {
		if at != "" && fc.ArtifactType != want {
			continue
		}
		if d := Difficulty(fc); d >= minDifficulty {
			pool = append(pool, ranked{fc, d})
		}
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].difficulty > pool[j].difficulty })
	if len(pool) > limit {
		pool = pool[:limit]
	}
	out := make([]*types.FailureCase, len(pool))
	for i, r := range pool {
		out[i] = r.fc
	}
	return out, nil
}

// Count reports total recorded failure cases.
func (h *HardNegatives) Count() int {
	all, err := h.readAll()
	if err != nil {
		return 0
	}
	return len(all)
}

func (h *HardNegatives) readAll() ([]*types.FailureCase, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.Open(h.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open failure log: %w", err)
	}
	defer f.Close()

	var cases []*types.FailureCase
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		atEOF := errors.Is(err, io.EOF)
		if err != nil && !atEOF {
			return nil, fmt.Errorf("read failure log: %w", err)
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var fc types.FailureCase
			if jerr := json.Unmarshal(line, &fc); jerr == nil {
				cases = append(cases, &fc)
			}
		}
		if atEOF {
			return cases, nil
		}
	}
}

// complexityFactors quantifies what made the case hard, each factor
// normalized into [0,1].
func complexityFactors(input, output string) map[string]float64 {
	lines := strings.Count(output, "\n") + 1
	structural := strings.Count(output, "{") + strings.Count(output, "-->") +
		strings.Count(output, "->>") + strings.Count(output, "||--")
	return map[string]float64{
		"input_length":       clamp01(float64(len(input)) / 4000.0),
		"output_length":      clamp01(float64(len(output)) / 4000.0),
		"structural_density": clamp01(float64(structural) / float64(lines) / 2.0),
	}
}
