package contextual

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// StaticNotes is an in-memory NotesProvider seeded by the caller. The CLI
// uses it for ad-hoc runs; tests use it for folder-scoping scenarios.
type StaticNotes struct {
	mu      sync.RWMutex
	folders map[string][]Note
}

func NewStaticNotes() *StaticNotes {
	return &StaticNotes{folders: make(map[string][]Note)}
}

// Add appends a note to its folder.
func (s *StaticNotes) Add(n Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folders[n.FolderID] = append(s.folders[n.FolderID], n)
}

func (s *StaticNotes) GetNotesByFolder(ctx context.Context, folderID string) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	notes := s.folders[folderID]
	out := make([]Note, len(notes))
	copy(out, notes)
	return out, nil
}

// SuggestFolder scores folders by token overlap with the content and
// returns the best match with the runner-ups as alternatives.
func (s *StaticNotes) SuggestFolder(ctx context.Context, content string) (*FolderSuggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contentTokens := tokenSet(content)
	type scored struct {
		folder string
		score  float64
	}
	var ranked []scored
	for folder, notes := range s.folders {
		var text strings.Builder
		for _, n := range notes {
			text.WriteString(n.Content)
			text.WriteString(" ")
		}
		overlap := overlapRatio(contentTokens, tokenSet(text.String()))
		if overlap > 0 {
			ranked = append(ranked, scored{folder, overlap})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].folder < ranked[j].folder
	})

	if len(ranked) == 0 {
		return &FolderSuggestion{SuggestedFolder: "", Confidence: 0}, nil
	}
	out := &FolderSuggestion{
		SuggestedFolder: ranked[0].folder,
		Confidence:      ranked[0].score,
	}
	for _, r := range ranked[1:] {
		out.Alternatives = append(out.Alternatives, r.folder)
		if len(out.Alternatives) >= 3 {
			break
		}
	}
	return out, nil
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,:;!?()[]{}\"'`")
		if len(w) >= 3 {
			set[w] = true
		}
	}
	return set
}

func overlapRatio(a, b map[string]bool) float64 {
	if len(a) == 0 {
		return 0
	}
	var hits int
	for w := range a {
		if b[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}
