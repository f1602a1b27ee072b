package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/dealdesk/dealstream/internal/config"
	"github.com/dealdesk/dealstream/internal/errors"
	"github.com/dealdesk/dealstream/internal/jobstream"
)

// JobWSDialer opens job progress streams over WebSocket. It implements
// jobstream.Dialer and is interchangeable with the SSE dialer.
//
// Each message from the server is a JSON object {"event": ..., "data": {...}}.
// Server pings ({"type":"ping","id":...}) are answered with pongs, and the
// client pings on its own every pingInterval to keep proxies from idling the
// connection out.
type JobWSDialer struct {
	// baseURL is the ws(s) form of the backend URL.
	baseURL string

	// dialer performs the handshake.
	dialer *websocket.Dialer

	// pingInterval is the interval between client ping messages.
	pingInterval time.Duration

	logger *log.Logger
}

// WSOption configures a JobWSDialer.
type WSOption func(*JobWSDialer)

// WithPingInterval sets how often the client pings. Zero disables client pings.
func WithPingInterval(d time.Duration) WSOption {
	return func(w *JobWSDialer) {
		w.pingInterval = d
	}
}

// WithWSLogger sets the logger.
func WithWSLogger(l *log.Logger) WSOption {
	return func(w *JobWSDialer) {
		w.logger = l
	}
}

// NewJobWSDialer creates a WebSocket dialer for the backend at baseURL.
//
// Parameters:
//   - baseURL: The http(s) backend URL; it is converted to ws(s)
//   - opts: Optional configuration
//
// Returns:
//   - *JobWSDialer: A dialer ready to pass to jobstream.NewManager
func NewJobWSDialer(baseURL string, opts ...WSOption) *JobWSDialer {
	d := &JobWSDialer{
		baseURL:      strings.TrimRight(config.WebSocketURL(baseURL), "/"),
		dialer:       &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		pingInterval: 25 * time.Second,
		logger:       log.Default().WithPrefix("ws"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// StreamURL returns the WebSocket endpoint for target.
func (d *JobWSDialer) StreamURL(target jobstream.Target) string {
	u := fmt.Sprintf("%s/api/v1/jobs/%s/ws", d.baseURL, url.PathEscape(target.JobID))
	if target.Token != "" {
		u += "?token=" + url.QueryEscape(target.Token)
	}
	return u
}

// Open starts the handshake in the background and returns immediately.
func (d *JobWSDialer) Open(ctx context.Context, target jobstream.Target, l jobstream.Listener) (jobstream.Channel, error) {
	wsURL := d.StreamURL(target)
	if _, err := url.Parse(wsURL); err != nil {
		return nil, errors.Wrap(err, "invalid WebSocket URL")
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &jobConn{cancel: cancel, done: make(chan struct{})}
	go d.run(ctx, c, wsURL, target.JobID, l)
	return c, nil
}

// wsMessage is one message on the job WebSocket.
type wsMessage struct {
	// Type is set for keepalive messages ("ping", "pong").
	Type string `json:"type,omitempty"`

	// ID is used for ping/pong correlation.
	ID string `json:"id,omitempty"`

	// Event is the job event name.
	Event string `json:"event,omitempty"`

	// Data is the event payload.
	Data json.RawMessage `json:"data,omitempty"`
}

func (d *JobWSDialer) run(ctx context.Context, c *jobConn, wsURL, jobID string, l jobstream.Listener) {
	defer close(c.done)

	conn, _, err := d.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		c.fail(l, errors.Wrap(err, "WebSocket connection failed"))
		return
	}
	if !c.attach(conn) {
		_ = conn.Close()
		return
	}
	d.logger.Debug("job websocket connected", "job_id", jobID)

	if d.pingInterval > 0 {
		go c.pingLoop(ctx, d.pingInterval, l)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.fail(l, errors.Wrap(err, "read error"))
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			d.logger.Debug("ignoring non-JSON websocket message", "job_id", jobID, "err", err)
			continue
		}

		switch {
		case msg.Type == "ping":
			c.write(map[string]interface{}{"type": "pong", "id": msg.ID})
			continue
		case msg.Type == "pong", msg.Event == "":
			continue
		}

		if c.isClosed() {
			return
		}
		l.OnFrame(jobstream.Frame{Event: msg.Event, Data: []byte(msg.Data)})
	}
}

// jobConn is an open job WebSocket.
type jobConn struct {
	cancel context.CancelFunc
	once   sync.Once
	closed atomic.Bool
	done   chan struct{}

	// mu serializes writes and guards conn.
	mu   sync.Mutex
	conn *websocket.Conn
}

// attach stores the connection unless the channel was closed during the handshake.
func (c *jobConn) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return false
	}
	c.conn = conn
	return true
}

func (c *jobConn) isClosed() bool {
	return c.closed.Load()
}

func (c *jobConn) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.isClosed() {
		return errors.New("not connected")
	}
	return c.conn.WriteJSON(v)
}

// pingLoop sends periodic ping messages to keep the connection alive.
func (c *jobConn) pingLoop(ctx context.Context, interval time.Duration, l jobstream.Listener) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ping := map[string]interface{}{
				"type":      "ping",
				"id":        fmt.Sprintf("cli-%d", time.Now().UnixNano()),
				"timestamp": float64(time.Now().UnixNano()) / 1e9,
			}
			if err := c.write(ping); err != nil {
				c.fail(l, errors.Wrap(err, "ping failed"))
				return
			}
		}
	}
}

// Close sends a close frame and tears the connection down. Safe to call more
// than once and from inside a listener.
func (c *jobConn) Close() error {
	var closeErr error
	c.once.Do(func() {
		c.closed.Store(true)
		c.cancel()

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		if conn != nil {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing"),
				time.Now().Add(time.Second),
			)
			closeErr = conn.Close()
		}
	})
	return closeErr
}

// fail reports err once, unless the owner already closed the channel.
func (c *jobConn) fail(l jobstream.Listener, err error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.cancel()
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
	l.OnTransportError(err)
}
