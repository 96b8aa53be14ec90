package versions

import (
	"strings"
)

// Diff summarizes how two versions of an artifact differ, line-wise.
type Diff struct {
	ArtifactID   string  `json:"artifact_id"`
	FromVersion  int     `json:"from_version"`
	ToVersion    int     `json:"to_version"`
	AddedLines   int     `json:"added_lines"`
	RemovedLines int     `json:"removed_lines"`
	CommonLines  int     `json:"common_lines"`
	Similarity   float64 `json:"similarity"`
	Identical    bool    `json:"identical"`
}

// Compare diffs two versions as line sets. Similarity is the Jaccard
// index over distinct non-blank lines.
func (s *Store) Compare(artifactID string, from, to int) (*Diff, error) {
	a, err := s.Get(artifactID, from)
	if err != nil {
		return nil, err
	}
	b, err := s.Get(artifactID, to)
	if err != nil {
		return nil, err
	}

	setA := lineSet(a.Content)
	setB := lineSet(b.Content)

	common := 0
	for line := range setA {
		if setB[line] {
			common++
		}
	}
	union := len(setA) + len(setB) - common

	similarity := 1.0
	if union > 0 {
		similarity = float64(common) / float64(union)
	}

	return &Diff{
		ArtifactID:   artifactID,
		FromVersion:  from,
		ToVersion:    to,
		AddedLines:   len(setB) - common,
		RemovedLines: len(setA) - common,
		CommonLines:  common,
		Similarity:   similarity,
		Identical:    a.Metadata.ContentHash != "" && a.Metadata.ContentHash == b.Metadata.ContentHash,
	}, nil
}

func lineSet(content string) map[string]bool {
	set := make(map[string]bool)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			set[line] = true
		}
	}
	return set
}
