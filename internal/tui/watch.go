// Package tui provides the watch model for live job progress.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dealdesk/dealstream/internal/jobstream"
	"github.com/dealdesk/dealstream/internal/ui"
	"github.com/dealdesk/dealstream/pkg/dealstream"
)

// Update is one event for one job. Exactly one of Progress, Error or Outcome
// is set.
type Update struct {
	JobID    string
	Progress *jobstream.ProgressEvent
	Error    *jobstream.ErrorEvent
	Outcome  *dealstream.Outcome
}

// UpdateMsg carries an Update from the watch goroutines.
// NextCmd must be issued by the Update handler to continue the streaming chain.
type UpdateMsg struct {
	Update  Update
	NextCmd tea.Cmd
}

// WatchDoneMsg signals that the update channel closed.
type WatchDoneMsg struct{}

// waitForUpdateCmd reads the next update from ch. Each UpdateMsg carries the
// command for the following read, so the TUI drains the channel one event at
// a time until the producer closes it.
func waitForUpdateCmd(ch <-chan Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return WatchDoneMsg{}
		}
		return UpdateMsg{Update: u, NextCmd: waitForUpdateCmd(ch)}
	}
}

// jobRow is the display state of one job.
type jobRow struct {
	id       string
	progress jobstream.ProgressEvent
	retrying *jobstream.ErrorEvent
	outcome  *dealstream.Outcome
}

// watchModel renders one row per watched job.
type watchModel struct {
	// rows are kept in command-line order.
	rows  []jobRow
	index map[string]int

	// updates is fed by the watch command and closed when every job finished.
	updates <-chan Update

	// cancel stops all streams. Called once on ctrl+c.
	cancel func()

	spinner   spinner.Model
	bar       progress.Model
	width     int
	startTime time.Time

	cancelled bool
	done      bool
}

// newWatchModel creates the watch screen for jobIDs.
func newWatchModel(jobIDs []string, updates <-chan Update, cancel func()) watchModel {
	m := watchModel{
		index:     make(map[string]int, len(jobIDs)),
		updates:   updates,
		cancel:    cancel,
		spinner:   newSpinner(),
		bar:       progress.New(progress.WithSolidFill(string(indigo)), progress.WithoutPercentage()),
		width:     80,
		startTime: time.Now(),
	}
	m.bar.Width = ui.BarWidth(m.width)
	for _, id := range jobIDs {
		if _, dup := m.index[id]; dup {
			continue
		}
		m.index[id] = len(m.rows)
		m.rows = append(m.rows, jobRow{id: id})
	}
	return m
}

// --- Bubble Tea interface ---

// Init starts the spinner and the update chain.
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForUpdateCmd(m.updates))
}

// Update handles messages for the watch screen.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = ui.BarWidth(msg.Width)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case UpdateMsg:
		m.apply(msg.Update)
		return m, msg.NextCmd

	case WatchDoneMsg:
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

// apply folds one update into its row. Updates for unknown jobs are ignored.
func (m *watchModel) apply(u Update) {
	i, ok := m.index[u.JobID]
	if !ok {
		return
	}
	row := &m.rows[i]
	switch {
	case u.Outcome != nil:
		row.outcome = u.Outcome
		row.retrying = nil
	case u.Error != nil:
		if u.Error.IsRetryable {
			row.retrying = u.Error
		}
	case u.Progress != nil:
		row.progress = *u.Progress
		row.retrying = nil
	}
}

// handleKey processes key events.
func (m watchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if !m.done && !m.cancelled {
			m.cancelled = true
			if m.cancel != nil {
				m.cancel()
			}
			// The producer closes the channel once every watch returns
			return m, nil
		}
		return m, tea.Quit

	case "q":
		if m.done {
			return m, tea.Quit
		}
	}
	return m, nil
}

// Failed reports whether any job finished without completing.
func (m watchModel) Failed() bool {
	for _, r := range m.rows {
		if r.outcome != nil && !r.outcome.Succeeded() {
			return true
		}
	}
	return false
}

// finished counts rows with an outcome.
func (m watchModel) finished() int {
	n := 0
	for _, r := range m.rows {
		if r.outcome != nil {
			n++
		}
	}
	return n
}

// --- View rendering ---

// View renders the watch screen.
func (m watchModel) View() string {
	var b strings.Builder
	w := m.width
	if w == 0 {
		w = 80
	}

	elapsed := time.Since(m.startTime).Truncate(time.Second)
	header := titleStyle.Render(" dealstream watch") + "  " +
		dimStyle.Render(fmt.Sprintf("%d/%d done", m.finished(), len(m.rows))) + "  " +
		dimStyle.Render(elapsed.String())
	b.WriteString(header + "\n")
	b.WriteString(separator(min(w, 72)) + "\n")

	for _, r := range m.rows {
		b.WriteString(m.renderRow(r))
	}

	b.WriteString(separator(min(w, 72)) + "\n")
	b.WriteString("  " + m.renderHelp() + "\n")
	return b.String()
}

// renderRow renders one job: status line plus an optional detail line.
func (m watchModel) renderRow(r jobRow) string {
	line := fmt.Sprintf(" %s %s %s %s",
		m.rowIcon(r),
		jobStyle.Render(r.id),
		m.bar.ViewAs(r.progress.ProgressPercent/100),
		normalStyle.Render(fmt.Sprintf("%3.0f%%", r.progress.ProgressPercent)),
	)
	if stage := r.progress.CurrentStage; stage != "" {
		line += " " + dimStyle.Render(stage)
	}
	line += "\n"

	detail := ""
	switch {
	case r.outcome != nil:
		detail = outcomeDetail(r.outcome)
	case r.retrying != nil:
		detail = warningStyle.Render("reconnecting: " + r.retrying.Message)
	case r.progress.Message != "":
		detail = dimStyle.Render(r.progress.Message)
	}
	if detail != "" {
		line += "     " + detail + "\n"
	}
	return line
}

// rowIcon returns the icon for a row's current state.
func (m watchModel) rowIcon(r jobRow) string {
	switch {
	case r.outcome == nil && r.retrying != nil:
		return warningStyle.Render("⚠")
	case r.outcome == nil:
		return m.spinner.View()
	case r.outcome.Succeeded():
		return successStyle.Render("✓")
	case r.outcome.Reason == dealstream.ReasonCancelled:
		return warningStyle.Render("⊘")
	default:
		return errorStyle.Render("✗")
	}
}

// outcomeDetail describes how a job finished.
func outcomeDetail(o *dealstream.Outcome) string {
	switch {
	case o.Succeeded():
		msg := "completed"
		if o.Completion != nil && o.Completion.Message != "" {
			msg = o.Completion.Message
		}
		return successStyle.Render(msg)
	case o.Reason == dealstream.ReasonCancelled:
		return warningStyle.Render("cancelled")
	case o.Error != nil:
		return errorStyle.Render(o.Reason + ": " + o.Error.Message)
	default:
		return errorStyle.Render(o.Reason)
	}
}

// renderHelp renders the bottom key hint bar.
func (m watchModel) renderHelp() string {
	switch {
	case m.done:
		return helpKeyRender("q", "quit")
	case m.cancelled:
		return dimStyle.Render("stopping streams...")
	default:
		return helpKeyRender("ctrl+c", "stop watching")
	}
}

// --- Tea program runner ---

// RunWatch shows the watch screen until updates is closed.
//
// Parameters:
//   - jobIDs: the jobs in display order
//   - updates: events from the watch goroutines; the caller closes it when all finished
//   - cancel: stops every stream; invoked on ctrl+c
//
// Returns:
//   - bool: true if any job failed
//   - error: any error from the Bubble Tea runtime
func RunWatch(jobIDs []string, updates <-chan Update, cancel func()) (bool, error) {
	p := tea.NewProgram(newWatchModel(jobIDs, updates, cancel))
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	m, ok := final.(watchModel)
	return ok && m.Failed(), nil
}
