package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"artificer/internal/types"
)

// poolCmd groups fine-tuning pool verbs
var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Inspect and drive the fine-tuning pool",
	Long: `Accepted generations and high-scoring feedback accumulate as training
examples per artifact type. When a type's pool crosses its threshold an
incremental batch is emitted automatically; "pool trigger" forces a
major run, "pool clear" starts a type over.`,
}

var poolStatsCmd = &cobra.Command{
	Use:   "stats [artifact-type]",
	Short: "Show pool sizes and readiness",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPoolStats,
}

var poolTriggerCmd = &cobra.Command{
	Use:   "trigger [artifact-type]",
	Short: "Force a major fine-tuning batch for a type",
	Args:  cobra.ExactArgs(1),
	RunE:  runPoolTrigger,
}

var poolClearSynthetic bool

var poolClearCmd = &cobra.Command{
	Use:   "clear [artifact-type]",
	Short: "Drop every pooled example for a type",
	Args:  cobra.ExactArgs(1),
	RunE:  runPoolClear,
}

func init() {
	poolClearCmd.Flags().BoolVar(&poolClearSynthetic, "synthetic", false, "Only drop augmenter-produced examples")

	poolCmd.AddCommand(poolStatsCmd)
	poolCmd.AddCommand(poolTriggerCmd)
	poolCmd.AddCommand(poolClearCmd)
}

func runPoolStats(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	var at types.ArtifactType
	if len(args) == 1 {
		at = types.ArtifactType(args[0])
	}
	stats := svc.GetPoolStats(at)

	fmt.Println("Fine-tuning Pool")
	fmt.Println("================")
	if len(stats.Sizes) == 0 {
		fmt.Println("empty")
	}
	names := make([]string, 0, len(stats.Sizes))
	for name := range stats.Sizes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-24s %d example(s)\n", name, stats.Sizes[name])
	}
	fmt.Printf("Total:           %d\n", stats.Total)
	fmt.Printf("Pending batches: %d\n", stats.PendingBatches)

	if stats.Detail != nil {
		fmt.Println()
		if stats.Detail.Ready {
			fmt.Printf("✓ %s ready (%s): %d of %d examples\n",
				stats.Detail.ArtifactType, stats.Detail.Priority,
				stats.Detail.Have, stats.Detail.Needed)
		} else {
			fmt.Printf("✗ %s not ready: %d of %d examples\n",
				stats.Detail.ArtifactType, stats.Detail.Have, stats.Detail.Needed)
		}
		fmt.Printf("  admitted since start: %d\n", stats.TotalAdded)
	}
	return nil
}

func runPoolTrigger(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	outcome, err := svc.TriggerMajor(types.ArtifactType(args[0]))
	if err != nil {
		return err
	}
	if !outcome.Triggered {
		fmt.Printf("✗ not triggered: %s\n", outcome.Reason)
		return nil
	}

	b := outcome.Batch
	fmt.Printf("✓ batch %s (%s)\n", b.BatchID, b.Priority)
	fmt.Printf("  examples:      %d (%d hard negatives)\n", len(b.Examples), b.Metadata.HardNegatives)
	fmt.Printf("  learning rate: %g  epochs: %d  lora r: %d\n",
		b.Hyperparameters.LearningRate, b.Hyperparameters.NumEpochs, b.Hyperparameters.LoraR)
	if b.Metadata.CurriculumStage != "" {
		fmt.Printf("  curriculum:    %s\n", b.Metadata.CurriculumStage)
	}
	return nil
}

func runPoolClear(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	clear := svc.ClearPool
	what := "pooled"
	if poolClearSynthetic {
		clear = svc.ClearSyntheticPool
		what = "synthetic"
	}
	removed, err := clear(types.ArtifactType(args[0]))
	if err != nil {
		return err
	}
	fmt.Printf("✓ cleared %d %s example(s) for %s\n", removed, what, args[0])
	return nil
}
