package sse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk/dealstream/internal/jobstream"
)

type chanListener struct {
	frames chan jobstream.Frame
	errs   chan error
}

func newChanListener() *chanListener {
	return &chanListener{
		frames: make(chan jobstream.Frame, 16),
		errs:   make(chan error, 4),
	}
}

func (l *chanListener) OnFrame(f jobstream.Frame)    { l.frames <- f }
func (l *chanListener) OnTransportError(err error) { l.errs <- err }

func (l *chanListener) nextFrame(t *testing.T) jobstream.Frame {
	t.Helper()
	select {
	case f := <-l.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return jobstream.Frame{}
	}
}

func (l *chanListener) nextErr(t *testing.T) error {
	t.Helper()
	select {
	case err := <-l.errs:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport error")
		return nil
	}
}

func newTestDialer(url string) *Dialer {
	return NewDialer(url, WithLogger(log.New(io.Discard)))
}

func TestStreamURL(t *testing.T) {
	d := NewDialer("https://api.example.com/")
	tests := []struct {
		target jobstream.Target
		want   string
	}{
		{jobstream.Target{JobID: "abc"}, "https://api.example.com/api/v1/jobs/abc/stream"},
		{jobstream.Target{JobID: "abc", Token: "t k&n"}, "https://api.example.com/api/v1/jobs/abc/stream?token=t+k%26n"},
		{jobstream.Target{JobID: "a/b", Token: "x"}, "https://api.example.com/api/v1/jobs/a%2Fb/stream?token=x"},
	}
	for _, tt := range tests {
		if got := d.StreamURL(tt.target); got != tt.want {
			t.Errorf("StreamURL(%+v) = %q, want %q", tt.target, got, tt.want)
		}
	}
}

func TestDialer_DeliversFramesInOrder(t *testing.T) {
	var gotToken, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("token")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: connection_ready\ndata: {}\n\n")
		fmt.Fprint(w, "event: progress\ndata: {\"progress_percent\":10}\n\n")
		fmt.Fprint(w, "event: progress\r\ndata: {\"progress_percent\":\r\ndata: 55}\r\n\r\n")
		fmt.Fprint(w, "id: 7\nevent: end\ndata: {\"reason\":\"completed\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	l := newChanListener()
	ch, err := newTestDialer(srv.URL).Open(context.Background(), jobstream.Target{JobID: "job-1", Token: "secret"}, l)
	require.NoError(t, err)

	assert.Equal(t, jobstream.Frame{Event: "connection_ready", Data: []byte("{}")}, l.nextFrame(t))
	assert.Equal(t, `{"progress_percent":10}`, string(l.nextFrame(t).Data))
	f := l.nextFrame(t)
	assert.Equal(t, "progress", f.Event)
	assert.Equal(t, "{\"progress_percent\":\n55}", string(f.Data))
	assert.Equal(t, "end", l.nextFrame(t).Event)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	<-ch.(*stream).done

	assert.Equal(t, "secret", gotToken)
	assert.Equal(t, "text/event-stream", gotAccept)
	assert.Empty(t, l.errs, "closing the stream is not a transport error")
}

func TestDialer_EOFIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "event: progress\ndata: {}\n\n")
	}))
	defer srv.Close()

	l := newChanListener()
	_, err := newTestDialer(srv.URL).Open(context.Background(), jobstream.Target{JobID: "job-1"}, l)
	require.NoError(t, err)

	assert.Equal(t, "progress", l.nextFrame(t).Event)
	err = l.nextErr(t)
	assert.Contains(t, err.Error(), "closed unexpectedly")
}

func TestDialer_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	l := newChanListener()
	_, err := newTestDialer(srv.URL).Open(context.Background(), jobstream.Target{JobID: "job-1"}, l)
	require.NoError(t, err, "Open does not wait for the response")

	err = l.nextErr(t)
	assert.Contains(t, err.Error(), "401")
}

func TestDialer_CloseFromListener(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "event: end\ndata: {}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	var (
		mu sync.Mutex
		ch jobstream.Channel
	)
	closed := make(chan struct{})
	l := &funcListener{
		onFrame: func(jobstream.Frame) {
			mu.Lock()
			defer mu.Unlock()
			_ = ch.Close()
			close(closed)
		},
		onErr: func(err error) { t.Errorf("unexpected transport error: %v", err) },
	}

	mu.Lock()
	c, err := newTestDialer(srv.URL).Open(context.Background(), jobstream.Target{JobID: "job-1"}, l)
	ch = c
	mu.Unlock()
	require.NoError(t, err)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never ran")
	}
	<-c.(*stream).done
}

type funcListener struct {
	onFrame func(jobstream.Frame)
	onErr   func(error)
}

func (l *funcListener) OnFrame(f jobstream.Frame)    { l.onFrame(f) }
func (l *funcListener) OnTransportError(err error) { l.onErr(err) }

func TestReadSSEStream_UnnamedEvent(t *testing.T) {
	resp := &http.Response{Body: io.NopCloser(strings.NewReader("data: hello\n\nevent: x\n\n"))}
	events, _ := readSSEStream(context.Background(), resp)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, Event{Event: "message", Data: []byte("hello")}, got[0])
	assert.Equal(t, Event{Event: "x"}, got[1])
}
