// Package main provides the watch command for the DealStream CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dealdesk/dealstream/internal/errors"
	"github.com/dealdesk/dealstream/internal/jobstream"
	"github.com/dealdesk/dealstream/internal/relay"
	"github.com/dealdesk/dealstream/internal/tui"
	"github.com/dealdesk/dealstream/internal/ui"
	"github.com/dealdesk/dealstream/pkg/dealstream"
)

var (
	watchNoReconnect  bool
	watchInitialState bool
	watchTransport    string
	watchNATSURL      string
	watchJSON         bool
)

func init() {
	watchCmd.Flags().BoolVar(&watchNoReconnect, "no-reconnect", false, "Do not reconnect after the stream drops")
	watchCmd.Flags().BoolVar(&watchInitialState, "initial-state", true, "Fetch the job's current status before streaming")
	watchCmd.Flags().StringVar(&watchTransport, "transport", "", "Push channel: sse or ws (default from config)")
	watchCmd.Flags().StringVar(&watchNATSURL, "nats-url", "", "Re-publish every event to this NATS server")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Print one JSON object per event")
}

// watchCmd follows jobs until they finish.
var watchCmd = &cobra.Command{
	Use:   "watch <job-id>...",
	Short: "Follow jobs until they finish",
	Long: `Follow one or more jobs over the backend's push channel until each one
completes, fails, or the connection is lost for good.

In an interactive terminal a live progress screen is shown. Otherwise one line
is printed per event, or one JSON object per event with --json.

EXIT STATUS:
  0  every job completed
  1  at least one job failed, was cancelled, or lost its connection

EXAMPLES:
  dealstream watch 3f2b9c1e-8d7a-4c55-9e1f-0a6b2d4c8e11
  dealstream watch job-1 job-2 --transport ws
  dealstream watch job-1 --json | jq .progress_percent
  dealstream watch job-1 --nats-url nats://localhost:4222`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

// watchSettings is the resolved configuration for one watch run.
type watchSettings struct {
	transport     string
	autoReconnect bool
	initialState  bool
	natsURL       string
	subjectPrefix string
	baseURL       string
	policy        jobstream.ReconnectPolicy
}

// resolveWatchSettings merges the config file with explicitly set flags.
func resolveWatchSettings(cmd *cobra.Command) (*watchSettings, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	devMode, _ := cmd.Flags().GetBool("dev")

	s := &watchSettings{
		transport:     cfg.Stream.Transport,
		autoReconnect: cfg.Stream.AutoReconnect && !watchNoReconnect,
		initialState:  cfg.Stream.InitialState,
		natsURL:       cfg.Relay.NATSURL,
		subjectPrefix: cfg.Relay.SubjectPrefix,
		baseURL:       cfg.BackendURL(devMode),
		policy:        cfg.Stream.ReconnectPolicy(),
	}
	if cmd.Flags().Changed("transport") {
		s.transport = watchTransport
	}
	if cmd.Flags().Changed("initial-state") {
		s.initialState = watchInitialState
	}
	if cmd.Flags().Changed("nats-url") {
		s.natsURL = watchNATSURL
	}
	return s, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	settings, err := resolveWatchSettings(cmd)
	if err != nil {
		return err
	}
	tokens, err := requireTokens()
	if err != nil {
		return err
	}

	client, err := dealstream.NewClient(
		dealstream.WithTokenProvider(tokens),
		dealstream.WithBaseURL(settings.baseURL),
		dealstream.WithTransport(settings.transport),
		dealstream.WithReconnectPolicy(settings.policy),
		dealstream.WithAutoReconnect(settings.autoReconnect),
		dealstream.WithInitialState(settings.initialState),
		dealstream.WithLogger(log.Default()),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	var rl *relay.Relay
	if settings.natsURL != "" {
		nc, err := relay.Connect(settings.natsURL)
		if err != nil {
			return err
		}
		defer nc.Close()
		rl = relay.New(nc, settings.subjectPrefix)
		log.Debug("Relaying job events", "nats_url", settings.natsURL)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobIDs := uniqueJobIDs(args)
	asJSON := jsonOutput(cmd, watchJSON)
	quiet, _ := cmd.Flags().GetBool("quiet")

	updates := make(chan tui.Update, 64)
	results := make(chan []*dealstream.Outcome, 1)
	go func() {
		results <- watchAll(ctx, client, rl, jobIDs, updates)
	}()

	if tui.ShouldRunTUI(asJSON, quiet) {
		_, err := tui.RunWatch(jobIDs, updates, client.Close)

		// The screen may quit before every watch returned
		client.Close()
		for range updates {
		}
		if err != nil {
			return errors.Wrap(err, "watch screen failed")
		}
	} else {
		go func() {
			<-ctx.Done()
			client.Close()
		}()
		p := &linePrinter{w: os.Stdout, json: asJSON, quiet: quiet, barWidth: ui.BarWidth(ui.TerminalWidth())}
		for u := range updates {
			p.print(u)
		}
	}

	return summarize(<-results)
}

// uniqueJobIDs drops repeated IDs, keeping the first occurrence.
func uniqueJobIDs(args []string) []string {
	seen := make(map[string]bool, len(args))
	ids := make([]string, 0, len(args))
	for _, id := range args {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// watchAll watches every job concurrently, forwarding events to updates, and
// closes updates once all watches returned. Results are in jobIDs order.
func watchAll(ctx context.Context, client *dealstream.Client, rl *relay.Relay, jobIDs []string, updates chan<- tui.Update) []*dealstream.Outcome {
	results := make([]*dealstream.Outcome, len(jobIDs))
	var wg sync.WaitGroup

	for i, id := range jobIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()

			cb := jobstream.Callbacks{
				OnProgress: func(ev jobstream.ProgressEvent) {
					updates <- tui.Update{JobID: id, Progress: &ev}
				},
				OnError: func(ev jobstream.ErrorEvent) {
					updates <- tui.Update{JobID: id, Error: &ev}
				},
			}
			if rl != nil {
				cb = rl.Wrap(id, cb)
			}

			out, err := client.WatchJob(ctx, id, cb)
			if out == nil {
				out = &dealstream.Outcome{JobID: id, Reason: dealstream.ReasonFailed}
			}
			if err != nil && out.Error == nil && out.Reason != dealstream.ReasonCancelled {
				out.Error = &jobstream.ErrorEvent{Message: err.Error(), ErrorType: jobstream.ErrorTypeUnknown}
			}
			results[i] = out
			updates <- tui.Update{JobID: id, Outcome: out}
		}()
	}

	wg.Wait()
	close(updates)
	return results
}

// summarize turns the outcomes into the command's exit status.
func summarize(outcomes []*dealstream.Outcome) error {
	failed := 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return errors.Newf("%d of %d jobs did not complete", failed, len(outcomes))
}

// linePrinter writes one line per update for non-interactive output.
type linePrinter struct {
	w        io.Writer
	json     bool
	quiet    bool
	barWidth int
	now      func() time.Time
}

func (p *linePrinter) print(u tui.Update) {
	if p.json {
		p.printJSON(u)
		return
	}

	switch {
	case u.Outcome != nil:
		detail := ""
		if c := u.Outcome.Completion; c != nil {
			detail = c.Message
		} else if e := u.Outcome.Error; e != nil {
			detail = e.Message
		}
		fmt.Fprintln(p.w, ui.FormatJobResult(u.JobID, u.Outcome.Succeeded(), u.Outcome.Reason, detail))
	case u.Error != nil:
		fmt.Fprintln(p.w, ui.FormatError(u.JobID, *u.Error))
	case u.Progress != nil:
		if p.quiet {
			return
		}
		fmt.Fprintln(p.w, ui.FormatProgress(u.JobID, *u.Progress, p.barWidth))
	}
}

func (p *linePrinter) printJSON(u tui.Update) {
	now := time.Now
	if p.now != nil {
		now = p.now
	}

	var (
		event string
		v     any
	)
	switch {
	case u.Outcome != nil:
		event, v = "outcome", u.Outcome
	case u.Error != nil:
		event, v = jobstream.EventError, u.Error
	case u.Progress != nil:
		event, v = jobstream.EventProgress, u.Progress
	default:
		return
	}

	data, err := relay.Envelope(u.JobID, event, now(), v)
	if err != nil {
		log.Warn("Failed to encode event", "job_id", u.JobID, "err", err)
		return
	}
	fmt.Fprintln(p.w, string(data))
}
