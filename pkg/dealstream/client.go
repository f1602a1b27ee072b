// Package dealstream provides a public API for following DealDesk jobs.
//
// It wraps the CLI's job stream manager so other tools can wait for a job
// without reimplementing reconnects, deduplication and initial-state
// reconciliation.
//
// Example usage:
//
//	client, err := dealstream.NewClient(dealstream.WithToken("your-token"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	out, err := client.WatchJob(ctx, jobID, dealstream.Callbacks{
//	    OnProgress: func(ev dealstream.ProgressEvent) {
//	        fmt.Printf("%3.0f%% %s\n", ev.ProgressPercent, ev.Message)
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Job %s: %s\n", out.JobID, out.Reason)
package dealstream

import (
	"context"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dealdesk/dealstream/internal/api"
	"github.com/dealdesk/dealstream/internal/auth"
	"github.com/dealdesk/dealstream/internal/config"
	"github.com/dealdesk/dealstream/internal/errors"
	"github.com/dealdesk/dealstream/internal/jobstream"
	"github.com/dealdesk/dealstream/internal/sse"
)

// Event and status types shared with the stream manager.
type (
	Callbacks       = jobstream.Callbacks
	ProgressEvent   = jobstream.ProgressEvent
	CompletionEvent = jobstream.CompletionEvent
	ErrorEvent      = jobstream.ErrorEvent
	EndEvent        = jobstream.EndEvent
	JobStatus       = jobstream.JobStatus
	ReconnectPolicy = jobstream.ReconnectPolicy
	TokenProvider   = jobstream.TokenProvider
	Dialer          = jobstream.Dialer
)

// Transport names accepted by WithTransport.
const (
	TransportSSE       = config.TransportSSE
	TransportWebSocket = config.TransportWebSocket
)

// Outcome reasons. An end event from the backend passes its own reason through.
const (
	ReasonCompleted    = "completed"
	ReasonFailed       = "failed"
	ReasonDisconnected = "disconnected"
	ReasonCancelled    = "cancelled"
	ReasonEnded        = "ended"
)

var (
	// ErrClientClosed is returned by WatchJob when Close interrupts it.
	ErrClientClosed = errors.New("client closed")

	// ErrAlreadyWatching is returned when the job is already being watched
	// through this client.
	ErrAlreadyWatching = errors.New("job is already being watched")
)

// Outcome is how a watched job finished.
type Outcome struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason"`

	// LastProgress is the most recent progress event, if any arrived.
	LastProgress *ProgressEvent `json:"last_progress,omitempty"`

	// Completion is set when the job completed.
	Completion *CompletionEvent `json:"completion,omitempty"`

	// Error is the error that ended the watch, or the last retryable one.
	Error *ErrorEvent `json:"error,omitempty"`
}

// Succeeded reports whether the job completed.
func (o *Outcome) Succeeded() bool {
	return o != nil && (o.Reason == ReasonCompleted || o.Completion != nil)
}

// Client is the main entry point for the public API.
type Client struct {
	baseURL       string
	tokens        jobstream.TokenProvider
	transport     string
	policy        jobstream.ReconnectPolicy
	autoReconnect bool
	initialState  bool
	logger        *log.Logger
	dialer        jobstream.Dialer

	manager *jobstream.Manager

	mu        sync.Mutex
	watching  map[string]bool
	closed    chan struct{}
	closeOnce sync.Once
}

// Option configures a Client.
type Option func(*Client) error

// WithToken sets a static bearer token.
func WithToken(token string) Option {
	return func(c *Client) error {
		if strings.TrimSpace(token) == "" {
			return errors.New("token must not be empty")
		}
		c.tokens = jobstream.StaticToken(token)
		return nil
	}
}

// WithTokenProvider sets a provider that is asked for a token on every
// connect attempt and status request.
func WithTokenProvider(p TokenProvider) Option {
	return func(c *Client) error {
		c.tokens = p
		return nil
	}
}

// WithBaseURL sets a custom backend URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) error {
		c.baseURL = strings.TrimRight(baseURL, "/")
		return nil
	}
}

// WithTransport selects the push channel: TransportSSE or TransportWebSocket.
func WithTransport(name string) Option {
	return func(c *Client) error {
		switch name {
		case TransportSSE, TransportWebSocket:
			c.transport = name
			return nil
		default:
			return errors.Newf("unknown transport %q", name)
		}
	}
}

// WithDialer replaces the built-in transports.
func WithDialer(d Dialer) Option {
	return func(c *Client) error {
		c.dialer = d
		return nil
	}
}

// WithReconnectPolicy overrides reconnect timing and caps.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(c *Client) error {
		c.policy = p
		return nil
	}
}

// WithAutoReconnect turns automatic reconnects on or off. On by default.
func WithAutoReconnect(enabled bool) Option {
	return func(c *Client) error {
		c.autoReconnect = enabled
		return nil
	}
}

// WithInitialState controls whether the status endpoint is consulted before
// streaming. On by default.
func WithInitialState(enabled bool) Option {
	return func(c *Client) error {
		c.initialState = enabled
		return nil
	}
}

// WithLogger sets the logger passed down to the stream manager.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) error {
		if l != nil {
			c.logger = l
		}
		return nil
	}
}

// NewClient creates a new client.
//
// Parameters:
//   - opts: Configuration options
//
// Returns:
//   - *Client: A new client instance
//   - error: Any error that occurred during initialization
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		transport:     TransportSSE,
		policy:        jobstream.DefaultReconnectPolicy(),
		autoReconnect: true,
		initialState:  true,
		logger:        log.Default().WithPrefix("dealstream"),
		watching:      make(map[string]bool),
		closed:        make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	// No token given: fall back to stored credentials
	if c.tokens == nil {
		mgr := auth.NewManager()
		if !mgr.IsAuthenticated() {
			return nil, errors.WithHint(
				errors.WithStack(errors.ErrNotAuthenticated),
				"pass WithToken or run 'dealstream auth login --token <token>'",
			)
		}
		c.tokens = mgr.TokenProvider()
	}

	if c.baseURL == "" {
		c.baseURL = config.GetBackendURL(false)
	}

	if c.dialer == nil {
		switch c.transport {
		case TransportWebSocket:
			c.dialer = api.NewJobWSDialer(c.baseURL, api.WithWSLogger(c.logger.WithPrefix("ws")))
		default:
			c.dialer = sse.NewDialer(c.baseURL, sse.WithLogger(c.logger.WithPrefix("sse")))
		}
	}

	c.manager = jobstream.NewManager(c.dialer,
		jobstream.WithReconnectPolicy(c.policy),
		jobstream.WithLogger(c.logger.WithPrefix("jobstream")),
	)
	return c, nil
}

// BaseURL returns the backend URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Active returns the number of jobs with an open stream.
func (c *Client) Active() int {
	return c.manager.ActiveCount()
}

// JobStatus fetches a point-in-time snapshot of a job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	return api.StatusFunc(c.baseURL)(ctx, jobID, c.tokens)
}

// WatchJob follows jobID until it completes, fails terminally, ends, or ctx is
// done, and reports how it finished. cb receives every event up to and
// including the one that finished the watch; later events are not delivered.
//
// A retryable error does not end the watch unless auto-reconnect is off, in
// which case the connection is gone and the outcome is ReasonDisconnected.
func (c *Client) WatchJob(ctx context.Context, jobID string, cb Callbacks) (*Outcome, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.WithStack(errors.ErrInvalidJobID)
	}

	select {
	case <-c.closed:
		return nil, ErrClientClosed
	default:
	}

	c.mu.Lock()
	if c.watching[jobID] {
		c.mu.Unlock()
		return nil, errors.Wrapf(ErrAlreadyWatching, "job %s", jobID)
	}
	c.watching[jobID] = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.watching, jobID)
		c.mu.Unlock()
	}()

	w := newWatcher(jobID, cb, c.autoReconnect)

	opts := jobstream.SubscribeOptions{DisableAutoReconnect: !c.autoReconnect}
	if c.initialState {
		opts.FetchInitialState = true
		opts.GetJobStatus = api.StatusFunc(c.baseURL)
	}

	unsubscribe, err := c.manager.Subscribe(ctx, jobID, c.tokens, w.callbacks(), opts)
	if err != nil {
		return w.snapshot(ReasonFailed), err
	}
	defer unsubscribe()

	select {
	case <-w.done:
		return w.snapshot(""), nil
	case <-ctx.Done():
		return w.stop(ReasonCancelled), ctx.Err()
	case <-c.closed:
		return w.stop(ReasonCancelled), ErrClientClosed
	}
}

// Close stops every stream and interrupts pending WatchJob calls.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if n := c.manager.CloseAll(); n > 0 {
			c.logger.Debug("closed job streams", "count", n)
		}
	})
}

// watcher turns a subscription's callbacks into a single Outcome.
type watcher struct {
	cb            Callbacks
	autoReconnect bool
	done          chan struct{}

	mu       sync.Mutex
	finished bool
	out      Outcome
}

func newWatcher(jobID string, cb Callbacks, autoReconnect bool) *watcher {
	return &watcher{
		cb:            cb,
		autoReconnect: autoReconnect,
		done:          make(chan struct{}),
		out:           Outcome{JobID: jobID},
	}
}

// record applies fn to the outcome unless the watch already finished.
func (w *watcher) record(fn func(*Outcome)) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return false
	}
	fn(&w.out)
	return true
}

func (w *watcher) finish(reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return
	}
	w.finished = true
	w.out.Reason = reason
	close(w.done)
}

// stop finishes the watch from the outside and returns the outcome.
func (w *watcher) stop(reason string) *Outcome {
	w.finish(reason)
	return w.snapshot("")
}

func (w *watcher) snapshot(fallback string) *Outcome {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.out
	if out.Reason == "" {
		out.Reason = fallback
	}
	return &out
}

func (w *watcher) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(ev ProgressEvent) {
			if !w.record(func(o *Outcome) { o.LastProgress = &ev }) {
				return
			}
			if w.cb.OnProgress != nil {
				w.cb.OnProgress(ev)
			}
		},
		OnComplete: func(ev CompletionEvent) {
			if !w.record(func(o *Outcome) { o.Completion = &ev }) {
				return
			}
			if w.cb.OnComplete != nil {
				w.cb.OnComplete(ev)
			}
			w.finish(ReasonCompleted)
		},
		OnError: func(ev ErrorEvent) {
			if !w.record(func(o *Outcome) { o.Error = &ev }) {
				return
			}
			if w.cb.OnError != nil {
				w.cb.OnError(ev)
			}
			switch {
			case ev.ErrorType == jobstream.ErrorTypeConnection && (!ev.IsRetryable || !w.autoReconnect):
				w.finish(ReasonDisconnected)
			case !ev.IsRetryable:
				w.finish(ReasonFailed)
			}
		},
		OnEnd: func(ev EndEvent) {
			if !w.record(func(*Outcome) {}) {
				return
			}
			if w.cb.OnEnd != nil {
				w.cb.OnEnd(ev)
			}
			reason := ev.Reason
			if reason == "" {
				reason = ReasonEnded
			}
			w.finish(reason)
		},
	}
}
