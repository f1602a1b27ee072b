// Package relay republishes normalized job stream events to NATS so other
// services can follow a job without opening their own stream.
//
// Subjects have the form {prefix}.{job}.{event}, for example
// dealstream.jobs.3f2b9c1e.progress. Payloads are the normalized event JSON
// stamped with job_id, event and ts.
package relay

import (
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
	"github.com/tidwall/sjson"

	"github.com/dealdesk/dealstream/internal/errors"
	"github.com/dealdesk/dealstream/internal/jobstream"
	"github.com/dealdesk/dealstream/internal/util"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "dealstream.jobs"

// Publisher sends a message on a subject.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Client is a NATS connection that satisfies Publisher.
type Client struct{ nc *nats.Conn }

// Connect dials NATS with unlimited reconnects.
func Connect(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("dealstream"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to NATS at %s", url)
	}
	return &Client{nc: nc}, nil
}

// Publish sends data on subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

// Close drains pending messages and closes the connection.
func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

// Relay wraps stream callbacks so every event is also published.
type Relay struct {
	pub    Publisher
	prefix string
	logger *log.Logger
	now    func() time.Time
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the logger used for publish failures.
func WithLogger(l *log.Logger) Option {
	return func(r *Relay) {
		r.logger = l
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

// New creates a Relay publishing through pub under prefix.
func New(pub Publisher, prefix string, opts ...Option) *Relay {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	r := &Relay{
		pub:    pub,
		prefix: prefix,
		logger: log.Default().WithPrefix("relay"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subject returns the subject for a job's event.
func (r *Relay) Subject(jobID, event string) string {
	return r.prefix + "." + util.SubjectToken(jobID) + "." + event
}

// Wrap returns callbacks that publish each event and then call cb. Publish
// failures are logged and never reach the subscriber.
func (r *Relay) Wrap(jobID string, cb jobstream.Callbacks) jobstream.Callbacks {
	return jobstream.Callbacks{
		OnProgress: func(ev jobstream.ProgressEvent) {
			r.publish(jobID, jobstream.EventProgress, ev)
			if cb.OnProgress != nil {
				cb.OnProgress(ev)
			}
		},
		OnComplete: func(ev jobstream.CompletionEvent) {
			r.publish(jobID, jobstream.EventComplete, ev)
			if cb.OnComplete != nil {
				cb.OnComplete(ev)
			}
		},
		OnError: func(ev jobstream.ErrorEvent) {
			r.publish(jobID, jobstream.EventError, ev)
			if cb.OnError != nil {
				cb.OnError(ev)
			}
		},
		OnEnd: func(ev jobstream.EndEvent) {
			r.publish(jobID, jobstream.EventEnd, ev)
			if cb.OnEnd != nil {
				cb.OnEnd(ev)
			}
		},
	}
}

func (r *Relay) publish(jobID, event string, v any) {
	data, err := Envelope(jobID, event, r.now(), v)
	if err != nil {
		r.logger.Warn("failed to encode relay message", "job_id", jobID, "event", event, "err", err)
		return
	}
	subject := r.Subject(jobID, event)
	if err := r.pub.Publish(subject, data); err != nil {
		r.logger.Warn("relay publish failed", "subject", subject, "err", err)
	}
}

// Envelope marshals v and stamps it with job_id, event and ts. The CLI's
// --json output uses the same shape.
func Envelope(jobID, event string, ts time.Time, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if data, err = sjson.SetBytes(data, "job_id", jobID); err != nil {
		return nil, err
	}
	if data, err = sjson.SetBytes(data, "event", event); err != nil {
		return nil, err
	}
	return sjson.SetBytes(data, "ts", ts.UTC().Format(time.RFC3339Nano))
}
