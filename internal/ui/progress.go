// Package ui provides progress bar rendering for plain output.
package ui

import (
	"fmt"
	"math"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/dealdesk/dealstream/internal/jobstream"
)

const (
	// defaultWidth is used when stdout is not a terminal.
	defaultWidth = 80

	// minBarWidth keeps the bar readable on narrow terminals.
	minBarWidth = 10
)

// TerminalWidth returns the width of stdout, or 80 when it is not a terminal.
func TerminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// BarWidth picks a progress bar width for a terminal of the given width.
func BarWidth(termWidth int) int {
	w := termWidth / 3
	if w < minBarWidth {
		return minBarWidth
	}
	if w > 40 {
		return 40
	}
	return w
}

// RenderBar draws a percentage as a fixed-width bar.
//
// Parameters:
//   - percent: Progress from 0 to 100; values outside are clamped
//   - width: The width of the bar in characters
//
// Returns:
//   - string: The styled bar
func RenderBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	percent = math.Max(0, math.Min(100, percent))
	filled := int(math.Round(percent / 100 * float64(width)))
	return ProgressBarFilledStyle.Render(strings.Repeat("█", filled)) +
		ProgressBarEmptyStyle.Render(strings.Repeat("░", width-filled))
}

// FormatProgress renders one progress event as a single line.
//
// Example: "3f2b9c1e ▶ running [████░░░░░░]  42% ocr: Reading page 3"
func FormatProgress(jobID string, ev jobstream.ProgressEvent, barWidth int) string {
	line := fmt.Sprintf("%s %s %s %s %s",
		CodeStyle.Render(jobID),
		StyledStatusIcon(ev.Status),
		ev.Status,
		RenderBar(ev.ProgressPercent, barWidth),
		TitleStyle.Render(fmt.Sprintf("%3.0f%%", ev.ProgressPercent)),
	)

	detail := ev.Message
	if ev.CurrentStage != "" {
		if detail != "" {
			detail = ev.CurrentStage + ": " + detail
		} else {
			detail = ev.CurrentStage
		}
	}
	if detail != "" {
		line += " " + DimStyle.Render(detail)
	}
	return line
}
