package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk/dealstream/internal/jobstream"
)

type wsListener struct {
	frames chan jobstream.Frame
	errs   chan error
}

func newWSListener() *wsListener {
	return &wsListener{frames: make(chan jobstream.Frame, 16), errs: make(chan error, 4)}
}

func (l *wsListener) OnFrame(f jobstream.Frame)    { l.frames <- f }
func (l *wsListener) OnTransportError(err error) { l.errs <- err }

func newWSDialer(url string) *JobWSDialer {
	return NewJobWSDialer(url, WithPingInterval(0), WithWSLogger(log.New(io.Discard)))
}

func TestJobWSDialer_StreamURL(t *testing.T) {
	d := NewJobWSDialer("https://api.dealdesk.io/")
	got := d.StreamURL(jobstream.Target{JobID: "j1", Token: "a b"})
	assert.Equal(t, "wss://api.dealdesk.io/api/v1/jobs/j1/ws?token=a+b", got)
}

func TestJobWSDialer_FramesAndPong(t *testing.T) {
	pong := make(chan map[string]string, 1)
	var gotToken string
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteJSON(map[string]string{"type": "ping", "id": "p1"})
		var reply map[string]string
		if err := conn.ReadJSON(&reply); err == nil {
			pong <- reply
		}
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteJSON(map[string]interface{}{"event": "progress", "data": map[string]int{"progress_percent": 30}})
		conn.WriteJSON(map[string]interface{}{"event": "end", "data": map[string]string{"reason": "completed"}})
		conn.ReadMessage()
	}))
	defer srv.Close()

	l := newWSListener()
	ch, err := newWSDialer(srv.URL).Open(context.Background(), jobstream.Target{JobID: "job-1", Token: "tok"}, l)
	require.NoError(t, err)

	select {
	case reply := <-pong:
		assert.Equal(t, map[string]string{"type": "pong", "id": "p1"}, reply)
	case <-time.After(2 * time.Second):
		t.Fatal("no pong")
	}

	f := waitFrame(t, l)
	assert.Equal(t, "progress", f.Event)
	var data map[string]int
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, 30, data["progress_percent"])
	assert.Equal(t, "end", waitFrame(t, l).Event)

	require.NoError(t, ch.Close())
	assert.NoError(t, ch.Close())
	<-ch.(*jobConn).done

	assert.Equal(t, "tok", gotToken)
	assert.Empty(t, l.errs)
}

func TestJobWSDialer_ServerCloseIsTransportError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	l := newWSListener()
	_, err := newWSDialer(srv.URL).Open(context.Background(), jobstream.Target{JobID: "job-1"}, l)
	require.NoError(t, err)

	select {
	case err := <-l.errs:
		assert.Contains(t, err.Error(), "read error")
	case <-time.After(2 * time.Second):
		t.Fatal("expected transport error")
	}
}

func TestJobWSDialer_HandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	l := newWSListener()
	_, err := newWSDialer(srv.URL).Open(context.Background(), jobstream.Target{JobID: "job-1"}, l)
	require.NoError(t, err)

	select {
	case err := <-l.errs:
		assert.Contains(t, err.Error(), "WebSocket connection failed")
	case <-time.After(2 * time.Second):
		t.Fatal("expected transport error")
	}
}

func waitFrame(t *testing.T, l *wsListener) jobstream.Frame {
	t.Helper()
	select {
	case f := <-l.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return jobstream.Frame{}
	}
}
