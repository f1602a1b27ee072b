package jobstream

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dealdesk/dealstream/internal/errors"
	"github.com/dealdesk/dealstream/internal/status"
)

const tracerName = "github.com/dealdesk/dealstream/internal/jobstream"

// Manager owns the job registry. It guarantees at most one open channel per
// job ID. The zero value is not usable; construct with NewManager.
type Manager struct {
	dialer Dialer
	policy ReconnectPolicy
	clock  Clock
	logger *log.Logger
	tracer trace.Tracer

	mu      sync.Mutex
	handles map[string]*handle
}

// Option configures a Manager.
type Option func(*Manager)

// WithReconnectPolicy overrides the reconnect policy. Zero fields keep their defaults.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(m *Manager) {
		m.policy = p.withDefaults()
	}
}

// WithClock sets the clock used for reconnect scheduling. AfterFunc must
// never run f synchronously.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTracerProvider sets the provider used for connect and status spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) {
		if tp != nil {
			m.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewManager creates a Manager that opens channels with dialer.
func NewManager(dialer Dialer, opts ...Option) *Manager {
	m := &Manager{
		dialer:  dialer,
		policy:  DefaultReconnectPolicy(),
		clock:   realClock{},
		logger:  log.Default().WithPrefix("jobstream"),
		tracer:  otel.Tracer(tracerName),
		handles: make(map[string]*handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe starts tracking jobID and returns a function that stops it.
//
// If the job already has an open handle its callbacks are replaced and no new
// channel is opened; the returned function closes that shared handle. Only
// setup failures are returned as errors. Everything that happens after the
// channel is requested is reported through cb.
func (m *Manager) Subscribe(ctx context.Context, jobID string, tokens TokenProvider, cb Callbacks, opts SubscribeOptions) (Unsubscribe, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.WithStack(errors.ErrInvalidJobID)
	}
	if tokens == nil {
		return nil, errors.WithStack(errors.ErrMissingTokenProvider)
	}
	if opts.FetchInitialState && opts.GetJobStatus == nil {
		return nil, errors.WithStack(errors.ErrMissingStatusFunc)
	}

	m.mu.Lock()
	if h, ok := m.handles[jobID]; ok {
		h.callbacks = cb
		m.mu.Unlock()
		m.logger.Debug("reusing job stream", "job_id", jobID, "subscription_id", h.subscriptionID)
		return m.unsubscriber(h), nil
	}
	h := &handle{
		jobID:          jobID,
		subscriptionID: uuid.NewString(),
		tokens:         tokens,
		callbacks:      cb,
		autoReconnect:  !opts.DisableAutoReconnect,
		state:          StateConnecting,
	}
	m.handles[jobID] = h
	m.mu.Unlock()

	if opts.FetchInitialState && m.reconcile(ctx, h, opts.GetJobStatus) {
		return func() {}, nil
	}

	if err := m.attemptConnect(ctx, h, true); err != nil {
		return nil, err
	}
	return m.unsubscriber(h), nil
}

func (m *Manager) unsubscriber(h *handle) Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() {
			m.closeHandle(h, "unsubscribed")
		})
	}
}

// reconcile applies the job's current status before a channel is opened.
// It reports true when the job is already terminal (or the subscription was
// dropped while fetching) and no channel should be opened.
func (m *Manager) reconcile(ctx context.Context, h *handle, fetch StatusFunc) bool {
	ctx, span := m.tracer.Start(ctx, "jobstream.initial_state",
		trace.WithAttributes(attribute.String("job.id", h.jobID)))
	defer span.End()

	st, err := fetch(ctx, h.jobID, h.tokens)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status fetch failed")
		m.logger.Warn("initial status fetch failed, opening stream", "job_id", h.jobID, "err", err)
	}

	m.mu.Lock()
	if m.handles[h.jobID] != h {
		m.mu.Unlock()
		return true
	}
	if err != nil || st == nil {
		m.mu.Unlock()
		return false
	}
	span.SetAttributes(attribute.String("job.status", st.Status))

	cb := h.callbacks
	terminal := status.IsCompleted(st.Status) || status.IsFailed(st.Status)
	if terminal {
		delete(m.handles, h.jobID)
		h.detach()
		if status.IsCompleted(st.Status) {
			h.state = StateTerminalComplete
		} else {
			h.state = StateTerminalFailed
		}
	}
	m.mu.Unlock()

	switch {
	case status.IsCompleted(st.Status):
		msg := st.Message
		if msg == "" {
			msg = "Job completed"
		}
		cb.complete(CompletionEvent{Message: msg, RunID: st.RunID, ExtractionID: st.ExtractionID})
		cb.end(EndEvent{Reason: "completed"})
	case status.IsFailed(st.Status):
		cb.fail(errorFromStatus(st))
		cb.end(EndEvent{Reason: "failed"})
	default:
		cb.progress(ProgressEvent{
			Status:          st.Status,
			ProgressPercent: clampPercent(st.ProgressPercent),
			Message:         st.Message,
			CurrentStage:    st.CurrentStage,
			Details:         st.Details,
		})
	}
	return terminal
}

func errorFromStatus(st *JobStatus) ErrorEvent {
	ev := ErrorEvent{
		Message:   st.ErrorMessage,
		Stage:     st.ErrorStage,
		ErrorType: st.ErrorType,
	}
	if ev.Message == "" {
		ev.Message = st.Message
	}
	if ev.Message == "" {
		ev.Message = fmt.Sprintf("Job %s", strings.ToLower(st.Status))
	}
	if ev.Stage == "" {
		ev.Stage = st.CurrentStage
	}
	if ev.ErrorType == "" {
		ev.ErrorType = strings.ToLower(st.Status)
	}
	if st.IsRetryable != nil {
		ev.IsRetryable = *st.IsRetryable
	}
	return ev
}

// attemptConnect opens a channel for h. It is the single entry point for
// both the first connect and every scheduled reconnect.
func (m *Manager) attemptConnect(ctx context.Context, h *handle, initial bool) error {
	m.mu.Lock()
	if m.handles[h.jobID] != h {
		m.mu.Unlock()
		return nil
	}
	attempt := h.attempts
	gen := h.generation
	m.mu.Unlock()

	ctx, span := m.tracer.Start(ctx, "jobstream.connect", trace.WithAttributes(
		attribute.String("job.id", h.jobID),
		attribute.Int("job.reconnect_attempt", attempt),
	))
	defer span.End()

	token, err := h.tokens(ctx)
	if err != nil {
		err = errors.Wrap(err, "failed to obtain stream credentials")
		span.RecordError(err)
		span.SetStatus(codes.Error, "token")
		return m.connectFailed(h, gen, initial, ErrorTypeAuth, err)
	}

	m.mu.Lock()
	if m.handles[h.jobID] != h || h.generation != gen {
		m.mu.Unlock()
		return nil
	}
	h.generation++
	gen = h.generation
	h.state = StateConnecting
	m.mu.Unlock()

	l := &listener{m: m, h: h, gen: gen}
	ch, err := m.dialer.Open(context.WithoutCancel(ctx), Target{JobID: h.jobID, Token: token}, l)
	if err != nil {
		err = errors.Wrap(err, "failed to open job stream")
		span.RecordError(err)
		span.SetStatus(codes.Error, "open")
		return m.connectFailed(h, gen, initial, ErrorTypeConnection, err)
	}

	m.mu.Lock()
	if m.handles[h.jobID] != h || h.generation != gen {
		// Closed, ended or failed before Open returned.
		m.mu.Unlock()
		_ = ch.Close()
		return nil
	}
	h.channel = ch
	m.mu.Unlock()

	m.logger.Debug("job stream opened", "job_id", h.jobID, "attempt", attempt, "subscription_id", h.subscriptionID)
	return nil
}

// connectFailed handles a failure before a channel exists. On the first
// connect it is a setup error returned to the caller; afterwards it counts
// as a transport failure.
func (m *Manager) connectFailed(h *handle, gen uint64, initial bool, errType string, err error) error {
	if !initial {
		m.handleTransportError(h, gen, err)
		return nil
	}

	m.mu.Lock()
	if m.handles[h.jobID] != h {
		m.mu.Unlock()
		return err
	}
	delete(m.handles, h.jobID)
	ch := h.detach()
	h.state = StateTerminalFailed
	cb := h.callbacks
	m.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	m.logger.Warn("job stream setup failed", "job_id", h.jobID, "err", err)
	cb.fail(ErrorEvent{Message: err.Error(), ErrorType: errType, IsRetryable: false})
	return err
}

// dispatch routes one frame to the subscriber.
func (m *Manager) dispatch(h *handle, gen uint64, f Frame) {
	m.mu.Lock()
	if m.handles[h.jobID] != h || h.generation != gen {
		m.mu.Unlock()
		return
	}
	if h.state == StateConnecting {
		h.state = StateOpen
	}
	cb := h.callbacks
	m.mu.Unlock()

	switch f.Event {
	case EventProgress:
		ev, err := parseProgress(f.Data)
		if err != nil {
			m.dropMalformed(h, f, err)
			return
		}
		m.mu.Lock()
		h.lastProgressAt = m.clock.Now()
		h.attempts = 0
		m.mu.Unlock()
		cb.progress(ev)

	case EventComplete:
		ev, err := parseComplete(f.Data)
		if err != nil {
			m.dropMalformed(h, f, err)
			return
		}
		m.mu.Lock()
		if !h.state.IsTerminal() {
			h.state = StateTerminalComplete
		}
		m.mu.Unlock()
		cb.complete(ev)

	case EventError:
		ev, err := parseError(f.Data)
		if err != nil {
			m.dropMalformed(h, f, err)
			return
		}
		m.mu.Lock()
		h.domainError = true
		if !ev.IsRetryable && !h.state.IsTerminal() {
			h.state = StateTerminalFailed
		}
		m.mu.Unlock()
		cb.fail(ev)

	case EventEnd:
		m.mu.Lock()
		h.ended = true
		m.mu.Unlock()
		ev, err := parseEnd(f.Data)
		if err != nil {
			m.dropMalformed(h, f, err)
		} else {
			cb.end(ev)
		}
		m.closeHandle(h, "end")

	case EventHeartbeat, EventConnectionReady:
		m.logger.Debug("keepalive", "job_id", h.jobID, "event", f.Event)

	default:
		m.logger.Debug("ignoring unknown event", "job_id", h.jobID, "event", f.Event)
	}
}

func (m *Manager) dropMalformed(h *handle, f Frame, err error) {
	m.logger.Warn("dropping malformed event", "job_id", h.jobID, "event", f.Event, "err", err)
}

// handleTransportError reacts to connectivity loss on generation gen.
func (m *Manager) handleTransportError(h *handle, gen uint64, cause error) {
	m.mu.Lock()
	if m.handles[h.jobID] != h || h.generation != gen {
		m.mu.Unlock()
		return
	}

	if h.ended || h.domainError || h.state.IsTerminal() {
		delete(m.handles, h.jobID)
		ch := h.detach()
		if !h.state.IsTerminal() {
			h.state = StateClosed
		}
		m.mu.Unlock()
		if ch != nil {
			_ = ch.Close()
		}
		m.logger.Debug("transport closed after final event", "job_id", h.jobID, "err", cause)
		return
	}

	ch := h.detach()
	h.state = StateConnecting
	cb := h.callbacks

	var (
		exhausted bool
		schedule  bool
		limit     int
		delay     time.Duration
		seq       uint64
	)
	switch {
	case !h.autoReconnect:
		delete(m.handles, h.jobID)
		h.state = StateClosed
	default:
		limit = m.policy.AttemptCap(m.clock.Now(), h.lastProgressAt)
		if h.attempts >= limit {
			exhausted = true
			delete(m.handles, h.jobID)
			h.state = StateTerminalFailed
		} else {
			h.attempts++
			delay = m.policy.Delay(h.attempts)
			h.reconnectSeq++
			seq = h.reconnectSeq
			schedule = true
		}
	}
	attempt := h.attempts
	m.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}

	m.logger.Warn("job stream connection lost", "job_id", h.jobID, "attempt", attempt, "err", cause)
	cb.fail(ErrorEvent{
		Message:     "Connection to job stream lost",
		ErrorType:   ErrorTypeConnection,
		IsRetryable: true,
	})

	if exhausted {
		m.logger.Error("giving up on job stream", "job_id", h.jobID, "attempts", limit)
		cb.fail(ErrorEvent{
			Message:     fmt.Sprintf("Connection lost after %d reconnect attempts", limit),
			ErrorType:   ErrorTypeConnection,
			IsRetryable: false,
		})
		return
	}
	if !schedule {
		return
	}

	// The callback may have unsubscribed; only arm the timer if nothing changed.
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handles[h.jobID] != h || h.reconnectSeq != seq || h.channel != nil || h.timer != nil {
		return
	}
	m.logger.Info("reconnecting job stream", "job_id", h.jobID, "attempt", attempt, "delay", delay)
	h.timer = m.clock.AfterFunc(delay, func() {
		m.reconnect(h, seq)
	})
}

func (m *Manager) reconnect(h *handle, seq uint64) {
	m.mu.Lock()
	if m.handles[h.jobID] != h || h.reconnectSeq != seq || h.channel != nil {
		m.mu.Unlock()
		return
	}
	h.timer = nil
	m.mu.Unlock()

	_ = m.attemptConnect(context.Background(), h, false)
}

// closeHandle removes h from the registry and closes its channel. It reports
// false if h was no longer registered.
func (m *Manager) closeHandle(h *handle, reason string) bool {
	m.mu.Lock()
	if m.handles[h.jobID] != h {
		m.mu.Unlock()
		return false
	}
	delete(m.handles, h.jobID)
	ch := h.detach()
	if !h.state.IsTerminal() {
		h.state = StateClosed
	}
	m.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	m.logger.Debug("job stream closed", "job_id", h.jobID, "reason", reason)
	return true
}

// ActiveCount returns the number of registered jobs.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Close tears down the stream for jobID, if any.
func (m *Manager) Close(jobID string) bool {
	m.mu.Lock()
	h, ok := m.handles[jobID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return m.closeHandle(h, "closed")
}

// CloseAll tears down every stream and returns how many were open.
func (m *Manager) CloseAll() int {
	m.mu.Lock()
	hs := make([]*handle, 0, len(m.handles))
	for _, h := range m.handles {
		hs = append(hs, h)
	}
	m.mu.Unlock()

	n := 0
	for _, h := range hs {
		if m.closeHandle(h, "shutdown") {
			n++
		}
	}
	return n
}

// State returns the state of jobID's handle.
func (m *Manager) State(jobID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[jobID]
	if !ok {
		return StateClosed, false
	}
	return h.state, true
}

// JobIDs returns the registered job IDs in sorted order.
func (m *Manager) JobIDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}
