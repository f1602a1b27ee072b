// Package ui provides result rendering components.
package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/dealdesk/dealstream/internal/jobstream"
)

// FormatError renders an error event. Retryable errors are shown as warnings
// because the stream is still trying.
func FormatError(jobID string, ev jobstream.ErrorEvent) string {
	label := ev.ErrorType
	if ev.Stage != "" {
		label += " @ " + ev.Stage
	}
	if ev.IsRetryable {
		return fmt.Sprintf("%s %s", CodeStyle.Render(jobID),
			WarningStyle.Render(fmt.Sprintf("⚠ %s (%s), retrying", ev.Message, label)))
	}
	return fmt.Sprintf("%s %s", CodeStyle.Render(jobID),
		ErrorStyle.Render(fmt.Sprintf("✗ %s (%s)", ev.Message, label)))
}

// PrintJobResult prints a boxed summary for a finished job.
//
// Parameters:
//   - jobID: The job identifier
//   - succeeded: Whether the job completed
//   - reason: How the watch ended (completed, failed, disconnected...)
//   - detail: A completion message or error message, may be empty
func PrintJobResult(jobID string, succeeded bool, reason, detail string) {
	fmt.Println(FormatJobResult(jobID, succeeded, reason, detail))
}

// FormatJobResult renders the summary box printed by PrintJobResult.
func FormatJobResult(jobID string, succeeded bool, reason, detail string) string {
	var boxStyle lipgloss.Style
	var icon string

	if succeeded {
		boxStyle = ResultBoxPassedStyle
		icon = SuccessStyle.Render("✓")
	} else {
		boxStyle = ResultBoxFailedStyle
		icon = ErrorStyle.Render("✗")
	}

	content := fmt.Sprintf("%s %s  %s", icon, jobID, DimStyle.Render(reason))
	if detail != "" {
		content += "\n" + detail
	}
	return boxStyle.Render(content)
}
