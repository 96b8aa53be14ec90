package versions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"artificer/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func makeArtifact(id, content string) *types.Artifact {
	return &types.Artifact{
		ArtifactID:   id,
		ArtifactType: types.ArtifactMermaidERD,
		Content:      content,
		FolderID:     "folder-1",
	}
}

func TestSaveAssignsDenseNumbers(t *testing.T) {
	s := newTestStore(t)
	id := "folder-1::mermaid_erd"

	for i := 1; i <= 3; i++ {
		v, err := s.Save(makeArtifact(id, "erDiagram\n    USER {\n    }"), types.VersionMetadata{ModelUsed: "m", UpdateType: "generation"})
		if err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		if v.VersionNumber != i {
			t.Fatalf("version number = %d, want %d", v.VersionNumber, i)
		}
		if !v.IsCurrent {
			t.Fatalf("new version %d not current", i)
		}
		if v.Metadata.ContentHash == "" {
			t.Fatal("content hash not set")
		}
	}

	list, err := s.List(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d versions, want 3", len(list))
	}
	if list[0].VersionNumber != 3 {
		t.Errorf("List not newest-first: first is v%d", list[0].VersionNumber)
	}

	currents := 0
	for _, v := range list {
		if v.IsCurrent {
			currents++
		}
	}
	if currents != 1 {
		t.Errorf("%d versions marked current, want exactly 1", currents)
	}
}

func TestCurrentAndGet(t *testing.T) {
	s := newTestStore(t)
	id := "folder-1::mermaid_erd"
	s.Save(makeArtifact(id, "v1 content"), types.VersionMetadata{})
	s.Save(makeArtifact(id, "v2 content"), types.VersionMetadata{})

	cur, err := s.Current(id)
	if err != nil {
		t.Fatal(err)
	}
	if cur.VersionNumber != 2 || cur.Content != "v2 content" {
		t.Errorf("current = v%d %q", cur.VersionNumber, cur.Content)
	}

	v1, err := s.Get(id, 1)
	if err != nil {
		t.Fatal(err)
	}
	if v1.Content != "v1 content" {
		t.Errorf("v1 content = %q", v1.Content)
	}

	if _, err := s.Get(id, 99); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("missing version error = %v", err)
	}
	if _, err := s.Current("nobody::nothing"); !errors.Is(err, ErrUnknownArtifact) {
		t.Errorf("unknown artifact error = %v", err)
	}
}

func TestRestoreAppendsNewVersion(t *testing.T) {
	s := newTestStore(t)
	id := "folder-1::mermaid_erd"
	s.Save(makeArtifact(id, "original"), types.VersionMetadata{ModelUsed: "m1"})
	s.Save(makeArtifact(id, "edited"), types.VersionMetadata{ModelUsed: "m2"})

	restored, err := s.Restore(id, 1)
	if err != nil {
		t.Fatal(err)
	}
	if restored.VersionNumber != 3 {
		t.Errorf("restore created v%d, want v3", restored.VersionNumber)
	}
	if restored.Content != "original" {
		t.Errorf("restored content = %q", restored.Content)
	}
	if restored.Metadata.RestoredFrom != 1 {
		t.Errorf("restored_from = %d, want 1", restored.Metadata.RestoredFrom)
	}
	if restored.Metadata.UpdateType != "restore" {
		t.Errorf("update_type = %q", restored.Metadata.UpdateType)
	}

	// v2 still exists; nothing was rewound.
	if _, err := s.Get(id, 2); err != nil {
		t.Errorf("v2 missing after restore: %v", err)
	}
	cur, _ := s.Current(id)
	if cur.VersionNumber != 3 {
		t.Errorf("current = v%d, want v3", cur.VersionNumber)
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	s := newTestStore(t)
	id := "big::mermaid_erd"

	for i := 0; i < maxVersionsPerArtifact+5; i++ {
		if _, err := s.Save(makeArtifact(id, "content"), types.VersionMetadata{}); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.List(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != maxVersionsPerArtifact {
		t.Fatalf("chain length = %d, want %d", len(list), maxVersionsPerArtifact)
	}
	if list[0].VersionNumber != maxVersionsPerArtifact+5 {
		t.Errorf("newest = v%d, want v%d", list[0].VersionNumber, maxVersionsPerArtifact+5)
	}
	if list[len(list)-1].VersionNumber != 6 {
		t.Errorf("oldest = v%d, want v6 after pruning", list[len(list)-1].VersionNumber)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	id := "folder-1::mermaid_erd"
	s1.Save(makeArtifact(id, "persisted"), types.VersionMetadata{ModelUsed: "m"})

	s2, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	cur, err := s2.Current(id)
	if err != nil {
		t.Fatalf("reopened store lost data: %v", err)
	}
	if cur.Content != "persisted" {
		t.Errorf("content = %q", cur.Content)
	}
}

func TestFailedWriteLeavesChainUntouched(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "versions")
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	id := "folder-1::mermaid_erd"
	if _, err := s.Save(makeArtifact(id, "v1 content"), types.VersionMetadata{}); err != nil {
		t.Fatal(err)
	}

	// Replace the store dir with a regular file so every write fails.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, []byte("not a dir"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Save(makeArtifact(id, "v2 content"), types.VersionMetadata{}); err == nil {
		t.Fatal("save succeeded with an unwritable store dir")
	}
	if _, err := s.Restore(id, 1); err == nil {
		t.Fatal("restore succeeded with an unwritable store dir")
	}

	// The failed writes must not leak into the cached chain.
	cur, err := s.Current(id)
	if err != nil {
		t.Fatal(err)
	}
	if cur.VersionNumber != 1 || cur.Content != "v1 content" || !cur.IsCurrent {
		t.Errorf("failed save changed the chain: current = v%d %q current=%t",
			cur.VersionNumber, cur.Content, cur.IsCurrent)
	}
	list, err := s.List(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("chain length = %d after failed writes, want 1", len(list))
	}

	// Once the dir is back, numbering continues densely from v1.
	if err := os.Remove(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	v, err := s.Save(makeArtifact(id, "v2 content"), types.VersionMetadata{})
	if err != nil {
		t.Fatal(err)
	}
	if v.VersionNumber != 2 {
		t.Errorf("next save after recovery = v%d, want v2", v.VersionNumber)
	}
}

func TestConcurrentSavesAcrossArtifacts(t *testing.T) {
	s := newTestStore(t)
	ids := []string{"alpha::mermaid_erd", "beta::mermaid_erd", "gamma::mermaid_erd"}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := s.Save(makeArtifact(id, fmt.Sprintf("rev %d", i)), types.VersionMetadata{}); err != nil {
					t.Errorf("save %s: %v", id, err)
				}
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		list, err := s.List(id)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 10 || list[0].VersionNumber != 10 {
			t.Errorf("%s: %d versions, newest v%d, want 10 and v10", id, len(list), list[0].VersionNumber)
		}
	}
}

func TestCorruptFileQuarantined(t *testing.T) {
	dir := t.TempDir()
	id := "folder-1::mermaid_erd"
	path := filepath.Join(dir, types.SanitizeID(id)+".json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	// The artifact starts a fresh chain instead of failing forever.
	v, err := s.Save(makeArtifact(id, "fresh"), types.VersionMetadata{})
	if err != nil {
		t.Fatal(err)
	}
	if v.VersionNumber != 1 {
		t.Errorf("fresh chain started at v%d", v.VersionNumber)
	}

	entries, _ := os.ReadDir(dir)
	quarantined := false
	for _, e := range entries {
		if strings.Contains(e.Name(), ".corrupt.") {
			quarantined = true
		}
	}
	if !quarantined {
		t.Error("corrupt file was not quarantined")
	}
}

func TestDeleteAll(t *testing.T) {
	s := newTestStore(t)
	id := "folder-1::mermaid_erd"
	s.Save(makeArtifact(id, "x"), types.VersionMetadata{})

	if err := s.DeleteAll(id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Current(id); !errors.Is(err, ErrUnknownArtifact) {
		t.Errorf("expected unknown artifact after delete, got %v", err)
	}
	// Idempotent.
	if err := s.DeleteAll(id); err != nil {
		t.Errorf("second delete errored: %v", err)
	}
}

func TestListByTypeMatchesScopedAndBareIDs(t *testing.T) {
	s := newTestStore(t)
	s.Save(&types.Artifact{ArtifactID: "alpha::mermaid_erd", ArtifactType: types.ArtifactMermaidERD, Content: "a"}, types.VersionMetadata{})
	s.Save(&types.Artifact{ArtifactID: "mermaid_erd", ArtifactType: types.ArtifactMermaidERD, Content: "b"}, types.VersionMetadata{})
	s.Save(&types.Artifact{ArtifactID: "alpha::api_docs", ArtifactType: types.ArtifactAPIDocs, Content: "c"}, types.VersionMetadata{})

	erds, err := s.ListByType(types.ArtifactMermaidERD)
	if err != nil {
		t.Fatal(err)
	}
	if len(erds) != 2 {
		t.Fatalf("got %d erd artifacts, want 2", len(erds))
	}
	for _, v := range erds {
		if !strings.Contains(v.ArtifactID, "mermaid_erd") {
			t.Errorf("unexpected artifact %s", v.ArtifactID)
		}
	}
}

func TestSanitizedPathStaysInDir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	id := "../escape/../../attempt::mermaid_erd"
	if _, err := s.Save(makeArtifact(id, "x"), types.VersionMetadata{}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file inside the store dir, got %d", len(entries))
	}
}

func TestCompare(t *testing.T) {
	s := newTestStore(t)
	id := "folder-1::mermaid_erd"
	s.Save(makeArtifact(id, "line a\nline b\nline c"), types.VersionMetadata{})
	s.Save(makeArtifact(id, "line a\nline b\nline d\nline e"), types.VersionMetadata{})

	got, err := s.Compare(id, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	// Jaccard: 2 common over 5 distinct lines.
	want := &Diff{
		ArtifactID:   id,
		FromVersion:  1,
		ToVersion:    2,
		AddedLines:   2,
		RemovedLines: 1,
		CommonLines:  2,
		Similarity:   0.4,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Compare mismatch (-want +got):\n%s", diff)
	}

	s.Save(makeArtifact(id, "line a\nline b\nline d\nline e"), types.VersionMetadata{})
	same, err := s.Compare(id, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !same.Identical || same.Similarity != 1.0 {
		t.Errorf("identical contents: identical=%t similarity=%f", same.Identical, same.Similarity)
	}
}
