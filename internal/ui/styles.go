// Package ui provides terminal UI components using Charm libraries.
//
// This package contains the styling and plain-output rendering used by the
// DealStream CLI when it is not running the full-screen watch view.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Brand colors for DealStream.
var (
	// Primary brand color - DealDesk indigo
	Indigo = lipgloss.Color("#6366F1")

	// Secondary colors
	Teal    = lipgloss.Color("#14B8A6")
	Red     = lipgloss.Color("#EF4444")
	Amber   = lipgloss.Color("#F59E0B")
	Green   = lipgloss.Color("#22C55E")
	Gray    = lipgloss.Color("#6B7280")
	DimGray = lipgloss.Color("#9CA3AF")
)

// Text styles.
var (
	// TitleStyle for main headings
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Indigo)

	// SuccessStyle for success messages
	SuccessStyle = lipgloss.NewStyle().
			Foreground(Green).
			Bold(true)

	// ErrorStyle for error messages
	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red).
			Bold(true)

	// WarningStyle for warning messages
	WarningStyle = lipgloss.NewStyle().
			Foreground(Amber)

	// InfoStyle for informational messages
	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5E7EB"))

	// RunningStyle for jobs still in flight
	RunningStyle = lipgloss.NewStyle().
			Foreground(Teal)

	// DimStyle for less important text
	DimStyle = lipgloss.NewStyle().
			Foreground(DimGray)

	// LinkStyle for URLs
	LinkStyle = lipgloss.NewStyle().
			Foreground(Indigo).
			Underline(true)

	// CodeStyle for job IDs and commands
	CodeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F3F4F6")).
			Background(lipgloss.Color("#374151")).
			Padding(0, 1)
)

// Box styles.
var (
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Indigo).
			Padding(0, 1)

	BoxTitleStyle = lipgloss.NewStyle().
			Foreground(Indigo).
			Bold(true)

	ResultBoxPassedStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(Green).
				Padding(0, 1)

	ResultBoxFailedStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(Red).
				Padding(0, 1)
)

// Table styles.
var (
	TableHeaderStyle = lipgloss.NewStyle().
				Foreground(DimGray).
				Bold(true)

	TableCellStyle = lipgloss.NewStyle()
)

// Progress bar styles.
var (
	// ProgressBarFilledStyle for the filled portion
	ProgressBarFilledStyle = lipgloss.NewStyle().
				Foreground(Indigo)

	// ProgressBarEmptyStyle for the empty portion
	ProgressBarEmptyStyle = lipgloss.NewStyle().
				Foreground(Gray)
)
