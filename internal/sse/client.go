// Package sse opens job progress streams over Server-Sent Events.
//
// A Dialer implements jobstream.Dialer. Each opened stream runs one reader
// goroutine that parses the text/event-stream body and hands frames to the
// listener in arrival order.
package sse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/dealdesk/dealstream/internal/errors"
	"github.com/dealdesk/dealstream/internal/jobstream"
)

// streamPath is the per-job SSE endpoint, relative to the backend URL.
const streamPath = "/api/v1/jobs/%s/stream"

// Dialer opens SSE job streams against a backend.
type Dialer struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// Option configures a Dialer.
type Option func(*Dialer)

// WithHTTPClient sets the HTTP client. It must not set a Timeout, since
// streams stay open for the life of the job.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dialer) {
		d.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Dialer) {
		d.logger = l
	}
}

// NewDialer creates a Dialer for the backend at baseURL.
//
// Parameters:
//   - baseURL: Backend base URL, e.g. https://api.dealdesk.io
//   - opts: Optional configuration
//
// Returns:
//   - *Dialer: A dialer ready to pass to jobstream.NewManager
func NewDialer(baseURL string, opts ...Option) *Dialer {
	d := &Dialer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 0},
		logger:     log.Default().WithPrefix("sse"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// StreamURL returns the endpoint for target. The token travels as a query
// parameter because EventSource-style clients cannot set headers.
func (d *Dialer) StreamURL(target jobstream.Target) string {
	u := d.baseURL + fmt.Sprintf(streamPath, url.PathEscape(target.JobID))
	if target.Token != "" {
		u += "?token=" + url.QueryEscape(target.Token)
	}
	return u
}

// Open starts a stream for target. It returns immediately; connection
// failures are reported through l.OnTransportError.
func (d *Dialer) Open(ctx context.Context, target jobstream.Target, l jobstream.Listener) (jobstream.Channel, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.StreamURL(target), nil)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to create SSE request")
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	s := &stream{cancel: cancel, done: make(chan struct{})}
	go d.run(ctx, s, req, target.JobID, l)
	return s, nil
}

func (d *Dialer) run(ctx context.Context, s *stream, req *http.Request, jobID string, l jobstream.Listener) {
	defer close(s.done)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		s.fail(l, errors.Wrap(err, "SSE connection failed"))
		return
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		s.fail(l, errors.Newf("SSE connection failed with status: %d", resp.StatusCode))
		return
	}
	d.logger.Debug("SSE stream connected", "job_id", jobID)

	events, errs := readSSEStream(ctx, resp)

	var streamErr error
	for {
		select {
		case <-ctx.Done():
			s.fail(l, ctx.Err())
			return

		case err, ok := <-errs:
			// Hold the error until buffered events are delivered.
			errs = nil
			if ok && err != nil {
				streamErr = err
			}

		case event, ok := <-events:
			if !ok {
				if streamErr == nil {
					streamErr = errors.New("SSE stream closed unexpectedly")
				}
				s.fail(l, streamErr)
				return
			}
			if s.isClosed() {
				return
			}
			l.OnFrame(jobstream.Frame{Event: event.Event, Data: event.Data})
		}
	}
}

// stream is an open SSE connection.
type stream struct {
	cancel context.CancelFunc
	once   sync.Once
	closed atomic.Bool
	done   chan struct{}
}

// Close stops the stream. It never blocks and is safe to call from a listener.
func (s *stream) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
	})
	return nil
}

func (s *stream) isClosed() bool {
	return s.closed.Load()
}

// fail reports err unless the stream was closed by its owner.
func (s *stream) fail(l jobstream.Listener, err error) {
	if s.isClosed() {
		return
	}
	s.closed.Store(true)
	s.cancel()
	l.OnTransportError(err)
}

// Event represents a parsed SSE event.
type Event struct {
	// Event is the event type. Unnamed events are reported as "message".
	Event string

	// Data is the event data, multi-line values joined with "\n".
	Data []byte
}

// readSSEStream reads events from an SSE stream and sends them to channels.
// It handles the text/event-stream format: event and data fields. A clean
// EOF closes both channels without an error.
//
// Parameters:
//   - ctx: Context for cancellation
//   - resp: The HTTP response with the SSE stream body
//
// Returns:
//   - <-chan Event: Channel that receives parsed SSE events
//   - <-chan error: Channel that receives any read error
func readSSEStream(ctx context.Context, resp *http.Response) (<-chan Event, <-chan error) {
	events := make(chan Event, 10)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		var event Event
		var dataBuilder strings.Builder
		var hasData bool

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					errs <- errors.Wrap(err, "SSE read failed")
				}
				return
			}

			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")

			if line == "" {
				// Empty line = end of event, dispatch if we have anything
				if event.Event != "" || hasData {
					if event.Event == "" {
						event.Event = "message"
					}
					if hasData {
						event.Data = []byte(dataBuilder.String())
					}
					select {
					case events <- event:
					case <-ctx.Done():
						return
					}
					event = Event{}
					dataBuilder.Reset()
					hasData = false
				}
				continue
			}

			switch {
			case strings.HasPrefix(line, ":"):
				// Comment, commonly used as a keepalive
			case strings.HasPrefix(line, "event:"):
				event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
				if hasData {
					dataBuilder.WriteString("\n")
				}
				dataBuilder.WriteString(data)
				hasData = true
			}
			// id: and retry: are not used; reconnects are driven by jobstream
		}
	}()

	return events, errs
}
