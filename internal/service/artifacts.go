package service

import (
	"context"
	"fmt"
	"strings"

	"artificer/internal/logging"
	"artificer/internal/types"
	"artificer/internal/versions"
)

// =============================================================================
// ARTIFACTS
// =============================================================================

// EditOptions carries the optional knobs on a manual edit.
type EditOptions struct {
	// Notes replaces the stored source notes for this and later
	// versions. Empty keeps the prior version's notes.
	Notes string
}

// UpdateArtifact stores caller-supplied content as a new manual_edit
// version. Folder and type carry over from the prior current version;
// the content is re-validated against the source notes so the version
// metadata stays meaningful. Stale rendered HTML is dropped.
func (s *Service) UpdateArtifact(ctx context.Context, artifactID, content string, opts *EditOptions) (*types.Artifact, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &types.JobError{Kind: types.ErrKindInvalidRequest, Message: "content is required"}
	}
	prior, err := s.store.Current(artifactID)
	if err != nil {
		return nil, err
	}

	notes := prior.Metadata.SourceNotes
	if opts != nil && opts.Notes != "" {
		notes = opts.Notes
	}
	res := s.validator.Validate(ctx, content, prior.ArtifactType, notes)

	version, err := s.store.Save(&types.Artifact{
		ArtifactID:   artifactID,
		ArtifactType: prior.ArtifactType,
		Content:      content,
		FolderID:     prior.FolderID,
	}, types.VersionMetadata{
		ValidationScore: res.Score,
		IsValid:         res.IsValid,
		SourceNotes:     notes,
		UpdateType:      "manual_edit",
	})
	if err != nil {
		return nil, err
	}
	logging.Service("manual edit of %s -> v%d (score=%.0f)", artifactID, version.VersionNumber, res.Score)
	return version.ToArtifact(), nil
}

// GetArtifact returns the current version of an artifact.
func (s *Service) GetArtifact(artifactID string) (*types.Artifact, error) {
	v, err := s.store.Current(artifactID)
	if err != nil {
		return nil, err
	}
	return v.ToArtifact(), nil
}

// DeleteArtifact removes an artifact's entire version chain.
func (s *Service) DeleteArtifact(artifactID string) error {
	return s.store.DeleteAll(artifactID)
}

// ListArtifacts returns stored artifacts. The default view is one entry
// per (folder, type) group: the current version, with folderless
// artifacts grouped under the types.OrphanFolder sentinel. allVersions
// switches to every stored version. folderID filters either view; pass
// the sentinel to select folderless artifacts.
func (s *Service) ListArtifacts(allVersions bool, folderID string) ([]*types.Artifact, error) {
	var (
		vers []*types.Version
		err  error
	)
	if allVersions {
		vers, err = s.store.All()
	} else {
		vers, err = s.store.CurrentAll()
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	out := []*types.Artifact{}
	for _, v := range vers {
		folder := v.FolderID
		if folder == "" {
			folder, _ = types.SplitArtifactID(v.ArtifactID)
		}
		if folder == "" {
			folder = types.OrphanFolder
		}
		if folderID != "" && folder != folderID {
			continue
		}
		if !allVersions {
			key := folder + "\x00" + v.ArtifactType.Normalize().String()
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, v.ToArtifact())
	}
	return out, nil
}

// RegenerateArtifact resubmits generation for an existing artifact with
// the supplied notes, falling back to the notes stored with the current
// version. Folder and type carry over, so the new version lands on the
// same artifact id.
func (s *Service) RegenerateArtifact(ctx context.Context, artifactID, notes string) (*GenerateResponse, error) {
	prior, err := s.store.Current(artifactID)
	if err != nil {
		return nil, err
	}
	if notes == "" {
		notes = prior.Metadata.SourceNotes
	}

	folderID, artifactType := types.SplitArtifactID(artifactID)
	if prior.FolderID != "" {
		folderID = prior.FolderID
	}
	if prior.ArtifactType != "" {
		artifactType = prior.ArtifactType
	}
	if notes == "" && folderID == "" {
		return nil, &types.JobError{
			Kind:       types.ErrKindInvalidRequest,
			Message:    fmt.Sprintf("no stored notes for %s", artifactID),
			Suggestion: "supply notes in the request body",
		}
	}

	return s.Generate(ctx, types.GenerateRequest{
		ArtifactType: artifactType,
		Notes:        notes,
		FolderID:     folderID,
	})
}

// =============================================================================
// VERSIONS
// =============================================================================

// GetVersions returns an artifact's full chain in ascending version
// order.
func (s *Service) GetVersions(artifactID string) ([]*types.Version, error) {
	list, err := s.store.List(artifactID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

// GetCurrentVersion returns the current version record with metadata.
func (s *Service) GetCurrentVersion(artifactID string) (*types.Version, error) {
	return s.store.Current(artifactID)
}

// GetVersion returns one numbered version.
func (s *Service) GetVersion(artifactID string, number int) (*types.Version, error) {
	return s.store.Get(artifactID, number)
}

// CompareVersions diffs two numbered versions of one artifact.
func (s *Service) CompareVersions(artifactID string, from, to int) (*versions.Diff, error) {
	return s.store.Compare(artifactID, from, to)
}

// RestoreVersion makes an old version's content current by appending a
// new version that copies it.
func (s *Service) RestoreVersion(artifactID string, number int) (*types.Version, error) {
	return s.store.Restore(artifactID, number)
}

// ListVersionsByType returns the current versions of every artifact of
// one type, across folders.
func (s *Service) ListVersionsByType(artifactType types.ArtifactType) ([]*types.Version, error) {
	return s.store.ListByType(artifactType)
}
