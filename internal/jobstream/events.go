// Package jobstream tracks long-running backend jobs over a one-way push channel.
//
// A Manager owns a registry of job handles keyed by job ID. Subscribing to a
// job opens at most one channel for it, normalizes the backend's event
// payloads into four callbacks (progress, complete, error, end), and
// re-establishes the channel with exponential backoff after transport
// failures. A job that reported a non-retryable error, completed, or sent
// its end event is never reconnected.
package jobstream

import (
	"context"
	"encoding/json"
)

// Event names sent by the backend on a job stream.
const (
	EventProgress        = "progress"
	EventComplete        = "complete"
	EventError           = "error"
	EventEnd             = "end"
	EventHeartbeat       = "heartbeat"
	EventConnectionReady = "connection_ready"
)

// Error types produced by the client itself. Backend errors carry their own.
const (
	ErrorTypeConnection = "connection_error"
	ErrorTypeAuth       = "auth_error"
	ErrorTypeUnknown    = "unknown"
)

// ProgressEvent is a normalized progress update.
type ProgressEvent struct {
	Status          string         `json:"status"`
	ProgressPercent float64        `json:"progress_percent"`
	Message         string         `json:"message"`
	CurrentStage    string         `json:"current_stage"`
	Details         map[string]any `json:"details,omitempty"`
}

// CompletionEvent reports that the job produced its result.
type CompletionEvent struct {
	Message      string          `json:"message"`
	RunID        string          `json:"run_id,omitempty"`
	ExtractionID string          `json:"extraction_id,omitempty"`
	Artifact     json.RawMessage `json:"artifact,omitempty"`
}

// ErrorEvent reports a domain or connection failure. IsRetryable tells the
// caller whether offering a retry makes sense.
type ErrorEvent struct {
	Message     string `json:"message"`
	Stage       string `json:"stage,omitempty"`
	ErrorType   string `json:"error_type"`
	IsRetryable bool   `json:"is_retryable"`
}

// EndEvent is the authoritative end-of-stream signal.
type EndEvent struct {
	Reason string `json:"reason"`
}

// Callbacks receives normalized events for one job. Every field is optional.
// Callbacks run on the stream's dispatch goroutine, in the order the transport
// delivered the events, and may call the subscription's Unsubscribe.
type Callbacks struct {
	OnProgress func(ProgressEvent)
	OnComplete func(CompletionEvent)
	OnError    func(ErrorEvent)
	OnEnd      func(EndEvent)
}

func (c Callbacks) progress(ev ProgressEvent) {
	if c.OnProgress != nil {
		c.OnProgress(ev)
	}
}

func (c Callbacks) complete(ev CompletionEvent) {
	if c.OnComplete != nil {
		c.OnComplete(ev)
	}
}

func (c Callbacks) fail(ev ErrorEvent) {
	if c.OnError != nil {
		c.OnError(ev)
	}
}

func (c Callbacks) end(ev EndEvent) {
	if c.OnEnd != nil {
		c.OnEnd(ev)
	}
}

// TokenProvider returns a bearer credential for the push and status endpoints.
type TokenProvider func(ctx context.Context) (string, error)

// StaticToken returns a TokenProvider that always yields token.
func StaticToken(token string) TokenProvider {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// JobStatus is a point-in-time snapshot of a job as reported by the status endpoint.
type JobStatus struct {
	Status          string         `json:"status"`
	CurrentStage    string         `json:"current_stage"`
	ProgressPercent float64        `json:"progress_percent"`
	Message         string         `json:"message"`
	Details         map[string]any `json:"details,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	ErrorStage      string         `json:"error_stage,omitempty"`
	ErrorType       string         `json:"error_type,omitempty"`
	IsRetryable     *bool          `json:"is_retryable,omitempty"`
	RunID           string         `json:"run_id,omitempty"`
	ExtractionID    string         `json:"extraction_id,omitempty"`
}

// StatusFunc fetches the current status of a job.
type StatusFunc func(ctx context.Context, jobID string, tokens TokenProvider) (*JobStatus, error)

// SubscribeOptions tunes a single subscription. The zero value reconnects
// automatically and does not fetch initial state.
type SubscribeOptions struct {
	// DisableAutoReconnect stops the stream from reopening the channel after a
	// transport failure.
	DisableAutoReconnect bool

	// FetchInitialState reconciles with the status endpoint before opening
	// the channel. GetJobStatus is required when set.
	FetchInitialState bool

	// GetJobStatus supplies the snapshot used by FetchInitialState.
	GetJobStatus StatusFunc
}

// Unsubscribe closes a subscription. Calling it more than once is a no-op.
type Unsubscribe func()
