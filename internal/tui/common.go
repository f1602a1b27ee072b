// Package tui provides the Bubble Tea screen for `dealstream watch`.
//
// The screen launches only when a human runs watch in an interactive
// terminal. It is never activated for CI or piped output: --json, --quiet
// and isatty each gate it independently.
package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// --- TTY gate ---

// ShouldRunTUI returns true if the TUI should be launched.
// Returns false when stdout is not a terminal, or --json/--quiet flags are set.
//
// Parameters:
//   - jsonOutput: whether --json was passed
//   - quiet: whether --quiet was passed
//
// Returns:
//   - bool: true if the TUI should run
func ShouldRunTUI(jsonOutput, quiet bool) bool {
	if jsonOutput || quiet {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// --- Brand colors (mirrors internal/ui/styles.go) ---

var (
	indigo  = lipgloss.Color("#6366F1")
	teal    = lipgloss.Color("#14B8A6")
	red     = lipgloss.Color("#EF4444")
	amber   = lipgloss.Color("#F59E0B")
	green   = lipgloss.Color("#22C55E")
	gray    = lipgloss.Color("#6B7280")
	dimGray = lipgloss.Color("#9CA3AF")
	white   = lipgloss.Color("#E5E7EB")
)

// --- Shared TUI styles ---

var (
	// titleStyle renders the header.
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(indigo)

	// jobStyle renders job IDs.
	jobStyle = lipgloss.NewStyle().
			Foreground(white).
			Bold(true)

	// normalStyle renders regular text.
	normalStyle = lipgloss.NewStyle().
			Foreground(white)

	// dimStyle renders low-priority text.
	dimStyle = lipgloss.NewStyle().
			Foreground(dimGray)

	// successStyle renders completed indicators.
	successStyle = lipgloss.NewStyle().
			Foreground(green)

	// errorStyle renders failed indicators.
	errorStyle = lipgloss.NewStyle().
			Foreground(red).
			Bold(true)

	// warningStyle renders retrying and cancelled indicators.
	warningStyle = lipgloss.NewStyle().
			Foreground(amber)

	// helpStyle renders the bottom key hint bar.
	helpStyle = lipgloss.NewStyle().
			Foreground(gray)

	// separatorStyle renders horizontal rules.
	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#374151"))
)

// separator returns a horizontal line of the given width.
func separator(width int) string {
	if width < 0 {
		width = 0
	}
	return separatorStyle.Render(strings.Repeat("─", width))
}

// helpKeyRender renders one key hint.
func helpKeyRender(key, desc string) string {
	return lipgloss.NewStyle().Foreground(indigo).Bold(true).Render(key) +
		" " + helpStyle.Render(desc)
}

// --- Shared spinner factory ---

// newSpinner creates a consistently styled braille spinner.
func newSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(teal)
	return s
}
