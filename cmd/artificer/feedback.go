package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"artificer/internal/types"
)

var (
	fbArtifact      string
	fbType          string
	fbKind          string
	fbScore         float64
	fbOutputFile    string
	fbCorrectedFile string
	fbContextFile   string
)

// feedbackCmd groups feedback verbs
var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record and inspect artifact feedback",
	Long: `Feedback drives the learning loop: positive and correction events pool
as training examples, complaints with the model's output become hard
negatives, and every event nudges the reward signal.`,
}

var feedbackSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Record one feedback event",
	Long: `Records feedback for an artifact. Kinds: positive, negative,
correction, success, validation_failure. Corrections should carry the
fixed output via --corrected-file so the pool learns the right answer.

Example:
  artificer feedback submit --artifact sprint-12::mermaid_erd \
    --kind correction --score 90 --output-file got.mmd --corrected-file fixed.mmd`,
	RunE: runFeedbackSubmit,
}

var feedbackStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the feedback log",
	RunE:  runFeedbackStats,
}

func init() {
	feedbackSubmitCmd.Flags().StringVar(&fbArtifact, "artifact", "", "Artifact id the feedback is about (required)")
	feedbackSubmitCmd.Flags().StringVar(&fbType, "type", "", "Artifact type (default: derived from the artifact id)")
	feedbackSubmitCmd.Flags().StringVar(&fbKind, "kind", "", "Feedback kind (required)")
	feedbackSubmitCmd.Flags().Float64Var(&fbScore, "score", 0, "Score 0-100 (default: by kind)")
	feedbackSubmitCmd.Flags().StringVar(&fbOutputFile, "output-file", "", "File holding the output the feedback refers to")
	feedbackSubmitCmd.Flags().StringVar(&fbCorrectedFile, "corrected-file", "", "File holding the corrected output")
	feedbackSubmitCmd.Flags().StringVar(&fbContextFile, "context-file", "", "File holding the generating notes/context")
	_ = feedbackSubmitCmd.MarkFlagRequired("artifact")
	_ = feedbackSubmitCmd.MarkFlagRequired("kind")

	feedbackCmd.AddCommand(feedbackSubmitCmd)
	feedbackCmd.AddCommand(feedbackStatsCmd)
}

func runFeedbackSubmit(cmd *cobra.Command, args []string) error {
	aiOutput, err := readInput("", fbOutputFile)
	if err != nil {
		return err
	}
	corrected, err := readInput("", fbCorrectedFile)
	if err != nil {
		return err
	}
	notes, err := readInput("", fbContextFile)
	if err != nil {
		return err
	}

	at := types.ArtifactType(fbType)
	if at == "" {
		_, at = types.SplitArtifactID(fbArtifact)
	}

	svc, _, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	ev := &types.FeedbackEvent{
		ArtifactID:      fbArtifact,
		ArtifactType:    at,
		FeedbackType:    types.FeedbackType(fbKind),
		AIOutput:        aiOutput,
		CorrectedOutput: corrected,
		Context:         notes,
	}
	// An unset flag means "default by kind", which is not the same as
	// an explicit --score 0.
	if cmd.Flags().Changed("score") {
		ev.Score = &fbScore
	}

	receipt, err := svc.SubmitFeedback(ev)
	if err != nil {
		return err
	}

	fmt.Println("✓ feedback recorded")
	if receipt.Pooled {
		fmt.Printf("  pooled as training example (%d collected for %s)\n", receipt.ExamplesCollected, at)
	} else if receipt.PoolReason != "" {
		fmt.Printf("  not pooled: %s\n", receipt.PoolReason)
	}
	fmt.Printf("  reward %+.2f\n", receipt.Reward)
	if receipt.TrainingTriggered {
		fmt.Printf("  ✓ training batch %s emitted\n", receipt.BatchID)
	}
	return nil
}

func runFeedbackStats(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := svc.GetFeedbackStats()
	if err != nil {
		return err
	}

	fmt.Println("Feedback")
	fmt.Println("========")
	fmt.Printf("Total:     %d\n", stats.Total)
	fmt.Printf("Avg score: %.1f\n", stats.AvgScore)

	kinds := make([]string, 0, len(stats.ByType))
	for kind := range stats.ByType {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Printf("  %-20s %d\n", kind, stats.ByType[kind])
	}
	return nil
}
