package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"artificer/internal/types"
	"artificer/internal/validation"
)

var (
	valType      string
	valNotes     string
	valNotesFile string
)

// validateCmd scores content without generating anything
var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate artifact content without generating",
	Long: `Runs the per-type validation rules against a file (- for stdin) and
prints the score, errors, and warnings. With --notes the content is also
checked against the meeting notes it claims to cover.

Exits non-zero when the content is below the passing threshold.

Example:
  artificer validate diagram.mmd --type mermaid_erd --notes-file meeting.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&valType, "type", "t", "", "Artifact type (required)")
	validateCmd.Flags().StringVar(&valNotes, "notes", "", "Source notes inline")
	validateCmd.Flags().StringVar(&valNotesFile, "notes-file", "", "Read source notes from a file")
	_ = validateCmd.MarkFlagRequired("type")
}

func runValidate(cmd *cobra.Command, args []string) error {
	content, err := readInput("", args[0])
	if err != nil {
		return err
	}
	notes, err := readInput(valNotes, valNotesFile)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Validation needs no job machinery; build just the validator.
	v := validation.New(validation.Options{
		PassingScore: int(cfg.Validation.PassingThreshold),
		BatchLimit:   cfg.Validation.MaxBatch,
		BatchWorkers: cfg.Validation.BatchWorkers,
	})
	if cfg.Validation.RulesPath != "" {
		if err := v.LoadCustomRules(cfg.Validation.RulesPath); err != nil {
			logger.Warn("custom rules not loaded", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	at := types.ArtifactType(valType)
	res := v.Validate(ctx, content, at, notes)

	if res.IsValid {
		fmt.Printf("✓ valid (score %.0f)\n", res.Score)
	} else {
		fmt.Printf("✗ invalid (score %.0f)\n", res.Score)
	}
	for _, e := range res.Errors {
		fmt.Printf("  error:   %s\n", e)
	}
	for _, w := range res.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	for _, s := range res.Suggestions {
		fmt.Printf("  hint:    %s\n", s)
	}

	if !res.IsValid && at.Normalize().IsMermaid() {
		report := validation.ValidateMermaid(content)
		for _, issue := range report.Issues {
			fmt.Printf("  line %d: %s\n", issue.Line, issue.Problem)
		}
	}

	if !res.IsValid {
		return fmt.Errorf("validation failed with score %.0f (threshold %.0f)", res.Score, cfg.Validation.PassingThreshold)
	}
	return nil
}
