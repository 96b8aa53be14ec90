package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"artificer/internal/types"
)

var (
	verFolder string
	verAll    bool
	verNumber int
)

// versionsCmd groups version-history verbs
var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Inspect and manage artifact version history",
	Long: `Every accepted generation, manual edit, and restore appends a version
to its artifact's chain. These verbs list chains, print stored content,
diff two versions, and restore an old version as the new current.`,
}

var versionsListCmd = &cobra.Command{
	Use:   "list [artifact-id]",
	Short: "List stored artifacts, or one artifact's full chain",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runVersionsList,
}

var versionsShowCmd = &cobra.Command{
	Use:   "show [artifact-id]",
	Short: "Print a stored version's content (default: current)",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersionsShow,
}

var versionsRestoreCmd = &cobra.Command{
	Use:   "restore [artifact-id] [version]",
	Short: "Restore an old version as the new current",
	Long: `Copies the named version's content forward as a brand new version at
the top of the chain. History is never rewritten.`,
	Args: cobra.ExactArgs(2),
	RunE: runVersionsRestore,
}

var versionsDiffCmd = &cobra.Command{
	Use:   "diff [artifact-id] [from] [to]",
	Short: "Compare two stored versions",
	Args:  cobra.ExactArgs(3),
	RunE:  runVersionsDiff,
}

func init() {
	versionsListCmd.Flags().StringVar(&verFolder, "folder", "", "Filter by folder (\""+types.OrphanFolder+"\" for folderless)")
	versionsListCmd.Flags().BoolVar(&verAll, "all", false, "Every stored version, not one per artifact")
	versionsShowCmd.Flags().IntVar(&verNumber, "version", 0, "Version number (0 = current)")

	versionsCmd.AddCommand(versionsListCmd)
	versionsCmd.AddCommand(versionsShowCmd)
	versionsCmd.AddCommand(versionsRestoreCmd)
	versionsCmd.AddCommand(versionsDiffCmd)
}

func runVersionsList(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	if len(args) == 1 {
		chain, err := svc.GetVersions(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d version(s)\n", args[0], len(chain))
		for _, v := range chain {
			marker := " "
			if v.IsCurrent {
				marker = "*"
			}
			fmt.Printf("%s v%-3d %-12s score %-4.0f %s\n",
				marker, v.VersionNumber, v.Metadata.UpdateType,
				v.Metadata.ValidationScore, v.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	}

	arts, err := svc.ListArtifacts(verAll, verFolder)
	if err != nil {
		return err
	}
	if len(arts) == 0 {
		fmt.Println("no stored artifacts")
		return nil
	}
	for _, a := range arts {
		score := "-"
		if a.Validation != nil {
			score = fmt.Sprintf("%.0f", a.Validation.Score)
		}
		fmt.Printf("%-44s v%-3d score %-4s %s\n",
			a.ArtifactID, a.VersionNumber, score, a.GeneratedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runVersionsShow(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	var v *types.Version
	if verNumber > 0 {
		v, err = svc.GetVersion(args[0], verNumber)
	} else {
		v, err = svc.GetCurrentVersion(args[0])
	}
	if err != nil {
		return err
	}

	fmt.Printf("# %s v%d (%s, score %.0f)\n", v.ArtifactID, v.VersionNumber,
		v.Metadata.UpdateType, v.Metadata.ValidationScore)
	fmt.Println(v.Content)
	return nil
}

func runVersionsRestore(cmd *cobra.Command, args []string) error {
	number, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("version must be a number, got %q", args[1])
	}

	svc, _, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	v, err := svc.RestoreVersion(args[0], number)
	if err != nil {
		return err
	}
	fmt.Printf("✓ restored %s v%d as new v%d\n", args[0], number, v.VersionNumber)
	return nil
}

func runVersionsDiff(cmd *cobra.Command, args []string) error {
	from, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("from version must be a number, got %q", args[1])
	}
	to, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("to version must be a number, got %q", args[2])
	}

	svc, _, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	diff, err := svc.CompareVersions(args[0], from, to)
	if err != nil {
		return err
	}

	if diff.Identical {
		fmt.Printf("v%d and v%d are identical\n", from, to)
		return nil
	}
	fmt.Printf("%s v%d -> v%d\n", args[0], from, to)
	fmt.Printf("  +%d lines  -%d lines  %d unchanged\n", diff.AddedLines, diff.RemovedLines, diff.CommonLines)
	fmt.Printf("  similarity %.0f%%\n", diff.Similarity*100)
	return nil
}
