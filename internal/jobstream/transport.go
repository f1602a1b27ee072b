package jobstream

import "context"

// Frame is one named event received from a push channel.
type Frame struct {
	// Event is the event name (progress, complete, error, end, ...).
	Event string

	// Data is the raw event payload, normally a JSON object.
	Data []byte
}

// Target identifies the stream a Dialer should open.
type Target struct {
	JobID string

	// Token is passed at connection time; the push protocol cannot carry headers.
	Token string
}

// Listener receives everything a channel produces. A Dialer calls it from a
// single goroutine per channel, in arrival order.
type Listener interface {
	OnFrame(Frame)

	// OnTransportError reports connectivity loss. After it returns the channel
	// delivers nothing further.
	OnTransportError(error)
}

// Channel is an open push channel. Close is idempotent and safe to call from
// inside a Listener callback.
type Channel interface {
	Close() error
}

// Dialer opens push channels. Open must not block on the network: connection
// failures are reported through Listener.OnTransportError.
type Dialer interface {
	Open(ctx context.Context, target Target, l Listener) (Channel, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, target Target, l Listener) (Channel, error)

// Open calls f.
func (f DialerFunc) Open(ctx context.Context, target Target, l Listener) (Channel, error) {
	return f(ctx, target, l)
}
