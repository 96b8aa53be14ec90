package service

import (
	"context"

	"artificer/internal/types"
	"artificer/internal/validation"
)

// =============================================================================
// VALIDATION
// =============================================================================

// Validate scores content without generating or storing anything.
func (s *Service) Validate(ctx context.Context, content string, artifactType types.ArtifactType, notes string) *types.ValidationResult {
	return s.validator.Validate(ctx, content, artifactType, notes)
}

// ValidateBatch scores items concurrently, results in input order.
func (s *Service) ValidateBatch(ctx context.Context, items []validation.BatchItem) ([]*types.ValidationResult, error) {
	return s.validator.ValidateBatch(ctx, items)
}

// ValidateMermaid runs the detailed line-by-line mermaid check.
func (s *Service) ValidateMermaid(content string) *validation.MermaidReport {
	return validation.ValidateMermaid(content)
}
