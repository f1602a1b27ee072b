// Package ui provides the banner and help text for the DealStream CLI.
package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// tagline is the product tagline.
const tagline = "Live progress for DealDesk jobs"

// PrintBanner prints the product name with version info.
//
// Parameters:
//   - version: The CLI version string to display
func PrintBanner(version string) {
	if quietMode {
		return
	}

	name := lipgloss.NewStyle().
		Foreground(Indigo).
		Bold(true).
		Render("dealstream")

	taglineStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Italic(true)

	fmt.Printf("%s %s\n", name, DimStyle.Render(version))
	fmt.Println(taglineStyle.Render(tagline))
	fmt.Println()
}

// GetHelpText returns the help text used by `dealstream --help`.
func GetHelpText() string {
	title := lipgloss.NewStyle().Foreground(Indigo).Bold(true)
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	return fmt.Sprintf(`%s

%s
  %s   Save an API token
  %s      Follow one or more jobs until they finish
  %s           Print a job's current status

%s
  %s          Print the resolved configuration
  %s           Re-publish job events to NATS`,
		dim.Render(tagline+". Follow indexing and extraction jobs from your terminal."),
		title.Render("Quick Start:"),
		title.Render("dealstream auth login --token <token>"),
		title.Render("dealstream watch <job-id>..."),
		title.Render("dealstream status <job-id>"),
		title.Render("More:"),
		title.Render("dealstream config show"),
		title.Render("dealstream watch --nats-url"),
	)
}
