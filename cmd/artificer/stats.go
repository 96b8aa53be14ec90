package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// statsCmd prints the aggregate runtime picture
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show system-wide statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	svc, cfg, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := svc.Stats()
	if err != nil {
		return err
	}

	fmt.Println("artificer Status")
	fmt.Println("================")
	fmt.Printf("Data dir: %s\n", cfg.Storage.DataDir)
	fmt.Println()

	fmt.Printf("Artifacts:   %d (%d stored versions)\n", stats.Artifacts, stats.Versions)
	fmt.Printf("Jobs:        %d submitted / %d completed / %d failed / %d cancelled (%d active)\n",
		stats.Jobs.Submitted, stats.Jobs.Completed, stats.Jobs.Failed,
		stats.Jobs.Cancelled, stats.Jobs.Active)
	fmt.Printf("Events:      %d published (%d dropped, %d evicted)\n",
		stats.Events.Published, stats.Events.Dropped, stats.Events.Evicted)
	fmt.Printf("Validations: %d run (%d invalid)\n", stats.Validations, stats.InvalidResults)
	if stats.Feedback != nil {
		fmt.Printf("Feedback:    %d event(s), avg score %.1f\n", stats.Feedback.Total, stats.Feedback.AvgScore)
	}

	poolTotal := 0
	for _, n := range stats.PoolSizes {
		poolTotal += n
	}
	fmt.Printf("Pool:        %d example(s) across %d type(s), %d pending batch(es)\n",
		poolTotal, len(stats.PoolSizes), stats.PendingBatches)
	fmt.Printf("Negatives:   %d hard negative(s)\n", stats.HardNegatives)

	fmt.Println()
	fmt.Println("Models")
	for _, m := range stats.Models {
		streaming := " "
		if m.Streaming {
			streaming = "~"
		}
		fmt.Printf("  %s %-24s backend=%-12s calls=%-5d failures=%-3d avg=%dms\n",
			streaming, m.ID, m.Backend, m.Calls, m.Failures, m.AvgLatencyMS)
	}
	return nil
}
