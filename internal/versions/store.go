// Package versions persists artifact version chains as one JSON file
// per artifact under the versions directory. Chains are append-only:
// edits, regenerations, and restores all create new versions.
package versions

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"artificer/internal/logging"
	"artificer/internal/types"
)

// maxVersionsPerArtifact bounds each chain; the oldest versions are
// pruned past it. Version numbers are never reused.
const maxVersionsPerArtifact = 50

var (
	ErrUnknownArtifact = errors.New("no versions for artifact")
	ErrVersionNotFound = errors.New("version not found")
)

// Store is safe for concurrent use. Each artifact chain serializes on
// its own lock, so work on different artifacts proceeds independently.
// Chains are cached in memory after first load and written through on
// every mutation; the cache is only updated after the write lands.
type Store struct {
	dir string

	mu     sync.Mutex // guards the maps; chain work holds the artifact lock
	chains map[string][]*types.Version
	locks  map[string]*sync.Mutex
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create versions dir: %w", err)
	}
	return &Store{
		dir:    dir,
		chains: make(map[string][]*types.Version),
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// lockFor returns the artifact's mutex, creating it on first use.
func (s *Store) lockFor(artifactID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[artifactID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[artifactID] = l
	}
	return l
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Save appends a new version for the artifact, assigns the next version
// number, and makes it current. The content hash is computed here.
func (s *Store) Save(artifact *types.Artifact, meta types.VersionMetadata) (*types.Version, error) {
	if artifact == nil || artifact.ArtifactID == "" {
		return nil, errors.New("artifact id is required")
	}

	l := s.lockFor(artifact.ArtifactID)
	l.Lock()
	defer l.Unlock()

	chain, err := s.loadChain(artifact.ArtifactID)
	if err != nil {
		return nil, err
	}

	next := 1
	if len(chain) > 0 {
		next = chain[len(chain)-1].VersionNumber + 1
	}

	sum := blake3.Sum256([]byte(artifact.Content))
	meta.ContentHash = hex.EncodeToString(sum[:])

	version := &types.Version{
		ArtifactID:    artifact.ArtifactID,
		ArtifactType:  artifact.ArtifactType,
		VersionNumber: next,
		Content:       artifact.Content,
		Metadata:      meta,
		CreatedAt:     time.Now().UTC(),
		IsCurrent:     true,
		FolderID:      artifact.FolderID,
	}

	// Build the replacement chain from copies: the cached chain stays
	// intact until the write lands, so a failed persist leaves no
	// phantom version behind.
	updated := make([]*types.Version, 0, len(chain)+1)
	for _, v := range chain {
		prev := *v
		prev.IsCurrent = false
		updated = append(updated, &prev)
	}
	updated = append(updated, version)

	if len(updated) > maxVersionsPerArtifact {
		pruned := len(updated) - maxVersionsPerArtifact
		updated = updated[pruned:]
		logging.Versions("pruned %d old versions of %s, chain now starts at v%d",
			pruned, artifact.ArtifactID, updated[0].VersionNumber)
	}

	if err := s.persist(artifact.ArtifactID, updated); err != nil {
		return nil, err
	}
	s.setChain(artifact.ArtifactID, updated)

	logging.Versions("saved %s v%d (model=%s score=%.0f type=%s)",
		artifact.ArtifactID, next, meta.ModelUsed, meta.ValidationScore, meta.UpdateType)
	return copyVersion(version), nil
}

// Restore creates a new version whose content is copied from an older
// one. The chain stays append-only; nothing is rewound.
func (s *Store) Restore(artifactID string, number int) (*types.Version, error) {
	l := s.lockFor(artifactID)
	l.Lock()
	defer l.Unlock()

	chain, err := s.loadChain(artifactID)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownArtifact, artifactID)
	}

	source := findVersion(chain, number)
	if source == nil {
		return nil, fmt.Errorf("%w: %s v%d", ErrVersionNotFound, artifactID, number)
	}

	meta := source.Metadata
	meta.RestoredFrom = number
	meta.UpdateType = "restore"

	version := &types.Version{
		ArtifactID:    source.ArtifactID,
		ArtifactType:  source.ArtifactType,
		VersionNumber: chain[len(chain)-1].VersionNumber + 1,
		Content:       source.Content,
		Metadata:      meta,
		CreatedAt:     time.Now().UTC(),
		IsCurrent:     true,
		FolderID:      source.FolderID,
	}

	updated := make([]*types.Version, 0, len(chain)+1)
	for _, v := range chain {
		prev := *v
		prev.IsCurrent = false
		updated = append(updated, &prev)
	}
	updated = append(updated, version)
	if len(updated) > maxVersionsPerArtifact {
		updated = updated[len(updated)-maxVersionsPerArtifact:]
	}

	if err := s.persist(artifactID, updated); err != nil {
		return nil, err
	}
	s.setChain(artifactID, updated)

	logging.Versions("restored %s v%d as new v%d", artifactID, number, version.VersionNumber)
	return copyVersion(version), nil
}

// DeleteAll removes every version of the artifact. Deleting an unknown
// artifact is not an error.
func (s *Store) DeleteAll(artifactID string) error {
	l := s.lockFor(artifactID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	delete(s.chains, artifactID)
	s.mu.Unlock()
	err := os.Remove(s.pathFor(artifactID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete versions of %s: %w", artifactID, err)
	}
	if err == nil {
		logging.Versions("deleted all versions of %s", artifactID)
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

// Current returns the current version of the artifact.
func (s *Store) Current(artifactID string) (*types.Version, error) {
	l := s.lockFor(artifactID)
	l.Lock()
	defer l.Unlock()

	chain, err := s.loadChain(artifactID)
	if err != nil {
		return nil, err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].IsCurrent {
			return copyVersion(chain[i]), nil
		}
	}
	if len(chain) > 0 {
		return copyVersion(chain[len(chain)-1]), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownArtifact, artifactID)
}

// Get returns one specific version.
func (s *Store) Get(artifactID string, number int) (*types.Version, error) {
	l := s.lockFor(artifactID)
	l.Lock()
	defer l.Unlock()

	chain, err := s.loadChain(artifactID)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownArtifact, artifactID)
	}
	if v := findVersion(chain, number); v != nil {
		return copyVersion(v), nil
	}
	return nil, fmt.Errorf("%w: %s v%d", ErrVersionNotFound, artifactID, number)
}

// List returns all versions of the artifact, newest first.
func (s *Store) List(artifactID string) ([]*types.Version, error) {
	l := s.lockFor(artifactID)
	l.Lock()
	defer l.Unlock()

	chain, err := s.loadChain(artifactID)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownArtifact, artifactID)
	}
	out := make([]*types.Version, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, copyVersion(chain[i]))
	}
	return out, nil
}

// CurrentAll returns the current version of every known artifact,
// newest first.
func (s *Store) CurrentAll() ([]*types.Version, error) {
	ids, err := s.artifactIDs()
	if err != nil {
		return nil, err
	}
	var out []*types.Version
	for _, id := range ids {
		v, err := s.Current(id)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// All returns every stored version of every artifact: ids in sorted
// order, each chain newest first.
func (s *Store) All() ([]*types.Version, error) {
	ids, err := s.artifactIDs()
	if err != nil {
		return nil, err
	}
	var out []*types.Version
	for _, id := range ids {
		chain, err := s.List(id)
		if err != nil {
			continue
		}
		out = append(out, chain...)
	}
	return out, nil
}

// ListByType returns current versions whose type part matches, newest
// first. Both plain type ids and folder-scoped ids match.
func (s *Store) ListByType(artifactType types.ArtifactType) ([]*types.Version, error) {
	want := artifactType.Normalize()
	all, err := s.CurrentAll()
	if err != nil {
		return nil, err
	}
	var out []*types.Version
	for _, v := range all {
		_, typePart := types.SplitArtifactID(v.ArtifactID)
		if typePart.Normalize() == want || v.ArtifactType.Normalize() == want {
			out = append(out, v)
		}
	}
	return out, nil
}

// Count reports known artifacts and total stored versions.
func (s *Store) Count() (artifacts, versions int) {
	ids, err := s.artifactIDs()
	if err != nil {
		return 0, 0
	}
	for _, id := range ids {
		l := s.lockFor(id)
		l.Lock()
		chain, err := s.loadChain(id)
		l.Unlock()
		if err != nil {
			continue
		}
		if len(chain) > 0 {
			artifacts++
			versions += len(chain)
		}
	}
	return artifacts, versions
}

// =============================================================================
// PERSISTENCE
// =============================================================================

type versionFile struct {
	ArtifactID string           `json:"artifact_id"`
	Versions   []*types.Version `json:"versions"`
}

func (s *Store) pathFor(artifactID string) string {
	return filepath.Join(s.dir, types.SanitizeID(artifactID)+".json")
}

// loadChain returns the cached chain, reading it from disk on first
// access. Callers hold the artifact's lock. A file that cannot be
// parsed is quarantined so one bad write never wedges the artifact.
func (s *Store) loadChain(artifactID string) ([]*types.Version, error) {
	s.mu.Lock()
	chain, ok := s.chains[artifactID]
	s.mu.Unlock()
	if ok {
		return chain, nil
	}

	path := s.pathFor(artifactID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.setChain(artifactID, nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read versions of %s: %w", artifactID, err)
	}

	var file versionFile
	if err := json.Unmarshal(data, &file); err != nil {
		quarantine := fmt.Sprintf("%s.corrupt.%d", path, time.Now().Unix())
		if renameErr := os.Rename(path, quarantine); renameErr != nil {
			logging.VersionsError("quarantine of corrupt %s failed: %v", path, renameErr)
		} else {
			logging.VersionsError("corrupt version file for %s moved to %s: %v", artifactID, quarantine, err)
		}
		s.setChain(artifactID, nil)
		return nil, nil
	}

	s.setChain(artifactID, file.Versions)
	return file.Versions, nil
}

func (s *Store) setChain(artifactID string, chain []*types.Version) {
	s.mu.Lock()
	s.chains[artifactID] = chain
	s.mu.Unlock()
}

func (s *Store) persist(artifactID string, chain []*types.Version) error {
	data, err := json.MarshalIndent(versionFile{ArtifactID: artifactID, Versions: chain}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode versions of %s: %w", artifactID, err)
	}
	path := s.pathFor(artifactID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write versions of %s: %w", artifactID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace versions of %s: %w", artifactID, err)
	}
	return nil
}

// artifactIDs lists artifact ids from cache and disk. Sanitized file
// names resolve back through the stored artifact_id field.
func (s *Store) artifactIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan versions dir: %w", err)
	}

	seen := make(map[string]bool)
	var ids []string

	s.mu.Lock()
	for id := range s.chains {
		if len(s.chains[id]) > 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		var file versionFile
		if err := json.Unmarshal(data, &file); err != nil {
			continue
		}
		if file.ArtifactID != "" && !seen[file.ArtifactID] {
			seen[file.ArtifactID] = true
			ids = append(ids, file.ArtifactID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func findVersion(chain []*types.Version, number int) *types.Version {
	for _, v := range chain {
		if v.VersionNumber == number {
			return v
		}
	}
	return nil
}

func copyVersion(v *types.Version) *types.Version {
	cp := *v
	return &cp
}
