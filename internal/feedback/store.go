// Package feedback persists artifact feedback as an append-only JSONL
// log. One event per line keeps writes atomic enough that a torn final
// line never poisons the history.
package feedback

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"artificer/internal/logging"
	"artificer/internal/types"
)

const (
	eventsFile          = "events.jsonl"
	defaultHistoryLimit = 50
)

// NormalizedScore is the default score for feedback recorded without
// one: endorsements count as strong signal, complaints as weak.
func NormalizedScore(ft types.FeedbackType) float64 {
	switch ft {
	case types.FeedbackPositive, types.FeedbackCorrection:
		return 85
	case types.FeedbackNegative:
		return 60
	default:
		return 70
	}
}

func knownFeedbackType(ft types.FeedbackType) bool {
	switch ft {
	case types.FeedbackPositive, types.FeedbackNegative, types.FeedbackCorrection,
		types.FeedbackValidationFailure, types.FeedbackSuccess:
		return true
	}
	return false
}

// Store appends and reads feedback events. Safe for concurrent use.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create feedback dir: %w", err)
	}
	return &Store{path: filepath.Join(dir, eventsFile)}, nil
}

// Record validates, normalizes, and appends one feedback event. The
// event's ID, timestamp, and unset score are filled in here.
func (s *Store) Record(ev *types.FeedbackEvent) error {
	if ev == nil {
		return errors.New("feedback event is nil")
	}
	if ev.ArtifactType == "" {
		return errors.New("feedback requires an artifact type")
	}
	if !knownFeedbackType(ev.FeedbackType) {
		return fmt.Errorf("unknown feedback type %q", ev.FeedbackType)
	}

	ev.ArtifactType = ev.ArtifactType.Normalize()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Score == nil {
		def := NormalizedScore(ev.FeedbackType)
		ev.Score = &def
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open feedback log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append feedback: %w", err)
	}

	logging.Feedback("recorded %s feedback for %s (type=%s score=%.0f)",
		ev.FeedbackType, ev.ArtifactID, ev.ArtifactType, ev.ScoreValue())
	return nil
}

// History returns recent events, newest first, optionally filtered by
// artifact type. limit <= 0 uses the default of 50.
func (s *Store) History(artifactType types.ArtifactType, limit int) ([]*types.FeedbackEvent, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	all, err := s.readAll()
	if err != nil {
		return nil, err
	}

	want := artifactType.Normalize()
	var out []*types.FeedbackEvent
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if artifactType != "" && all[i].ArtifactType != want {
			continue
		}
		out = append(out, all[i])
	}
	return out, nil
}

// ByArtifact returns every event recorded for one artifact, oldest first.
func (s *Store) ByArtifact(artifactID string) ([]*types.FeedbackEvent, error) {
	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	var out []*types.FeedbackEvent
	for _, ev := range all {
		if ev.ArtifactID == artifactID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Stats summarizes the whole log.
type Stats struct {
	Total    int            `json:"total"`
	ByType   map[string]int `json:"by_type"`
	AvgScore float64        `json:"avg_score"`
	Latest   time.Time      `json:"latest,omitempty"`
}

func (s *Store) Stats() (*Stats, error) {
	all, err := s.readAll()
	if err != nil {
		return nil, err
	}

	stats := &Stats{ByType: make(map[string]int)}
	var sum float64
	for _, ev := range all {
		stats.Total++
		stats.ByType[ev.FeedbackType.String()]++
		sum += ev.ScoreValue()
		if ev.Timestamp.After(stats.Latest) {
			stats.Latest = ev.Timestamp
		}
	}
	if stats.Total > 0 {
		stats.AvgScore = sum / float64(stats.Total)
	}
	return stats, nil
}

// readAll parses the log, skipping lines that do not decode. A bad
// final line is expected after a crash mid-append and is dropped
// silently; bad lines elsewhere are logged.
func (s *Store) readAll() ([]*types.FeedbackEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open feedback log: %w", err)
	}
	defer f.Close()

	var events []*types.FeedbackEvent
	reader := bufio.NewReader(f)
	lineNo := 0
	for {
		line, err := reader.ReadBytes('\n')
		atEOF := errors.Is(err, io.EOF)
		if err != nil && !atEOF {
			return nil, fmt.Errorf("read feedback log: %w", err)
		}
		lineNo++

		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var ev types.FeedbackEvent
			if jerr := json.Unmarshal(line, &ev); jerr != nil {
				if !atEOF {
					logging.FeedbackDebug("skipping corrupt feedback line %d: %v", lineNo, jerr)
				}
			} else {
				events = append(events, &ev)
			}
		}
		if atEOF {
			return events, nil
		}
	}
}
