package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"artificer/internal/service"
	"artificer/internal/types"
)

var (
	genNotes     string
	genNotesFile string
	genFolder    string
	genContextID string
	genModel     string
	genOut       string
	genFollow    bool
)

// generateCmd submits one generation job
var generateCmd = &cobra.Command{
	Use:   "generate [artifact-type]",
	Short: "Generate an artifact from meeting notes",
	Long: `Submits a generation job and waits the configured sync window for it
to finish.

Artifact types: mermaid_erd, mermaid_architecture, mermaid_sequence,
mermaid_flowchart, api_docs, jira_tickets, code_prototype,
html_prototype, dev_visual_prototype.

Notes come from --notes, --notes-file, or stdin (--notes-file -). Jobs
that outrun the sync window keep running in the daemon's job table;
--follow streams their events until they finish.

Example:
  artificer generate mermaid_erd --notes-file meeting.txt --folder sprint-12`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

// regenerateCmd resubmits an existing artifact
var regenerateCmd = &cobra.Command{
	Use:   "regenerate [artifact-id]",
	Short: "Regenerate an existing artifact as a new version",
	Long: `Resubmits generation for a stored artifact. New notes can be supplied
with --notes/--notes-file; without them the notes stored alongside the
current version are reused. The result lands on the same artifact id as
the next version.

Example:
  artificer regenerate sprint-12::mermaid_erd --notes "Orders now ship in Batches."`,
	Args: cobra.ExactArgs(1),
	RunE: runRegenerate,
}

func init() {
	generateCmd.Flags().StringVar(&genNotes, "notes", "", "Meeting notes inline")
	generateCmd.Flags().StringVar(&genNotesFile, "notes-file", "", "Read meeting notes from a file (- for stdin)")
	generateCmd.Flags().StringVar(&genFolder, "folder", "", "Folder the artifact belongs to")
	generateCmd.Flags().StringVar(&genContextID, "context-id", "", "Assemble notes from a stored context instead")
	generateCmd.Flags().StringVar(&genModel, "model", "", "Preferred model for the first ladder rung")
	generateCmd.Flags().StringVarP(&genOut, "out", "o", "", "Write artifact content to a file instead of stdout")
	generateCmd.Flags().BoolVar(&genFollow, "follow", false, "Stream job events until terminal")

	regenerateCmd.Flags().StringVar(&genNotes, "notes", "", "Replacement notes inline")
	regenerateCmd.Flags().StringVar(&genNotesFile, "notes-file", "", "Read replacement notes from a file (- for stdin)")
	regenerateCmd.Flags().StringVarP(&genOut, "out", "o", "", "Write artifact content to a file instead of stdout")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	notes, err := readInput(genNotes, genNotesFile)
	if err != nil {
		return err
	}

	svc, _, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	watchSignals(cancel)

	req := types.GenerateRequest{
		ArtifactType: types.ArtifactType(args[0]),
		Notes:        notes,
		FolderID:     genFolder,
		ContextID:    genContextID,
		Options:      types.GenerateOptions{ModelPreference: genModel},
	}

	if genFollow {
		return followJob(ctx, svc, req)
	}

	logger.Info("submitting job",
		zap.String("artifact_type", args[0]),
		zap.String("folder", genFolder))
	resp, err := svc.Generate(ctx, req)
	if err != nil {
		return err
	}
	return printOutcome(resp)
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	notes, err := readInput(genNotes, genNotesFile)
	if err != nil {
		return err
	}

	svc, _, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	watchSignals(cancel)

	resp, err := svc.RegenerateArtifact(ctx, args[0], notes)
	if err != nil {
		return err
	}
	return printOutcome(resp)
}

// followJob streams events to the terminal until the job goes terminal,
// then prints the outcome.
func followJob(ctx context.Context, svc *service.Service, req types.GenerateRequest) error {
	jobID, stream, release, err := svc.GenerateStream(req)
	if err != nil {
		return err
	}
	defer release()
	fmt.Printf("job %s\n", jobID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream:
			if !ok {
				return printJobOutcome(svc, jobID)
			}
			printEvent(ev)
		}
	}
}

func printEvent(ev *types.Event) {
	switch ev.Kind {
	case types.EventChunk:
		// token stream stays quiet; progress carries the narrative
	case types.EventStarted:
		if ev.Quality != nil {
			fmt.Printf("  started (forecast: %s)\n", ev.Quality.Label)
		} else {
			fmt.Println("  started")
		}
	case types.EventProgress:
		fmt.Printf("  %3.0f%% %s\n", ev.Progress*100, ev.Message)
	case types.EventComplete:
		fmt.Printf("  done %s (score %.0f)\n", ev.ArtifactID, ev.ValidationScore)
	case types.EventError:
		fmt.Printf("  error: %s\n", ev.Error)
	}
}

func printJobOutcome(svc *service.Service, jobID string) error {
	job, err := svc.GetJob(jobID)
	if err != nil {
		return err
	}
	switch job.Status {
	case types.StatusCompleted:
		art, err := svc.GetArtifact(job.ArtifactID)
		if err != nil {
			return err
		}
		printArtifactHeader(art)
		return writeContent(art.Content)
	case types.StatusCancelled:
		return fmt.Errorf("job %s cancelled", jobID)
	default:
		if job.Error != nil {
			return job.Error
		}
		return fmt.Errorf("job %s %s", jobID, job.Status)
	}
}

func printOutcome(resp *service.GenerateResponse) error {
	switch resp.Status {
	case types.StatusCompleted:
		printArtifactHeader(resp.Artifact)
		return writeContent(resp.Artifact.Content)
	case types.StatusFailed, types.StatusCancelled:
		if resp.Error != nil {
			return resp.Error
		}
		return fmt.Errorf("job %s %s", resp.JobID, resp.Status)
	default:
		fmt.Printf("job %s still running; follow it with --follow or check \"artificer stats\"\n", resp.JobID)
		return nil
	}
}

func printArtifactHeader(art *types.Artifact) {
	fmt.Printf("✓ %s v%d", art.ArtifactID, art.VersionNumber)
	if art.Validation != nil {
		fmt.Printf(" (score %.0f)", art.Validation.Score)
	}
	if art.ModelUsed != "" {
		fmt.Printf(" via %s", art.ModelUsed)
	}
	fmt.Println()
}

func writeContent(content string) error {
	if genOut == "" {
		fmt.Println(content)
		return nil
	}
	if err := os.WriteFile(genOut, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", genOut, err)
	}
	logger.Info("artifact written", zap.String("path", genOut))
	return nil
}

// readInput resolves inline/file/stdin text inputs.
func readInput(inline, file string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if file == "" {
		return "", nil
	}
	if file == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	return string(data), nil
}
