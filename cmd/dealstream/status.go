// Package main provides the status command for the DealStream CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealdesk/dealstream/internal/api"
	"github.com/dealdesk/dealstream/internal/errors"
	"github.com/dealdesk/dealstream/internal/jobstream"
	"github.com/dealdesk/dealstream/internal/ui"
)

var statusOutputJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusOutputJSON, "json", false, "Output results as JSON")
}

// statusCmd prints point-in-time job snapshots.
var statusCmd = &cobra.Command{
	Use:   "status <job-id>...",
	Short: "Show the current status of jobs",
	Long: `Show the current status of one or more jobs without opening a stream.

EXAMPLES:
  dealstream status 3f2b9c1e-8d7a-4c55-9e1f-0a6b2d4c8e11
  dealstream status job-1 job-2
  dealstream status job-1 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStatus,
}

// jobSnapshot pairs a job ID with its status for output.
type jobSnapshot struct {
	JobID string `json:"job_id"`
	*jobstream.JobStatus
	Error string `json:"fetch_error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	devMode, _ := cmd.Flags().GetBool("dev")
	tokens, err := requireTokens()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	fetch := api.StatusFunc(cfg.BackendURL(devMode))
	snapshots := make([]jobSnapshot, 0, len(args))
	failures := 0
	for _, id := range uniqueJobIDs(args) {
		st, err := fetch(ctx, id, tokens)
		snap := jobSnapshot{JobID: id, JobStatus: st}
		if err != nil {
			failures++
			snap.Error = describeFetchError(err)
		}
		snapshots = append(snapshots, snap)
	}

	if jsonOutput(cmd, statusOutputJSON) {
		var v any = snapshots
		if len(snapshots) == 1 {
			v = snapshots[0]
		}
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to encode status")
		}
		fmt.Println(string(data))
	} else if len(snapshots) == 1 {
		printSnapshot(snapshots[0])
	} else {
		printSnapshotTable(snapshots)
	}

	if failures > 0 {
		return errSilent
	}
	return nil
}

// describeFetchError shortens common API failures.
func describeFetchError(err error) string {
	switch {
	case api.IsNotFound(err):
		return "job not found"
	case api.IsUnauthorized(err):
		return "not authorized; check your token"
	default:
		return err.Error()
	}
}

// printSnapshot prints one job in detail.
func printSnapshot(s jobSnapshot) {
	if s.JobStatus == nil {
		ui.PrintError("%s: %s", s.JobID, s.Error)
		return
	}
	st := s.JobStatus

	fmt.Printf("%s %s %s\n", ui.StyledStatusIcon(st.Status), ui.CodeStyle.Render(s.JobID), st.Status)
	fmt.Printf("  %s %3.0f%%\n", ui.RenderBar(st.ProgressPercent, ui.BarWidth(ui.TerminalWidth())), st.ProgressPercent)
	if st.CurrentStage != "" {
		ui.PrintKeyValue("  Stage", st.CurrentStage)
	}
	if st.Message != "" {
		ui.PrintKeyValue("  Message", st.Message)
	}
	if st.ErrorMessage != "" {
		ui.PrintKeyValue("  Error", ui.ErrorStyle.Render(st.ErrorMessage))
		if st.ErrorStage != "" {
			ui.PrintKeyValue("  Failed at", st.ErrorStage)
		}
		if st.IsRetryable != nil && *st.IsRetryable {
			ui.PrintKeyValue("  Retryable", "yes")
		}
	}
	if st.RunID != "" {
		ui.PrintKeyValue("  Run", st.RunID)
	}
	if st.ExtractionID != "" {
		ui.PrintKeyValue("  Extraction", st.ExtractionID)
	}
}

// printSnapshotTable prints one row per job.
func printSnapshotTable(snapshots []jobSnapshot) {
	table := ui.NewTable("JOB", "STATUS", "PROGRESS", "STAGE")
	table.SetMaxWidth(0, 36)
	table.SetMaxWidth(3, 30)
	for _, s := range snapshots {
		if s.JobStatus == nil {
			table.AddRow(s.JobID, "error", "", s.Error)
			continue
		}
		table.AddRow(s.JobID, s.Status, fmt.Sprintf("%.0f%%", s.ProgressPercent), s.CurrentStage)
	}
	table.Render()
}
