package relay

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/dealdesk/dealstream/internal/errors"
	"github.com/dealdesk/dealstream/internal/jobstream"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, message{subject, data})
	return nil
}

func newTestRelay(pub Publisher) *Relay {
	ts := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	return New(pub, "", WithLogger(log.New(io.Discard)), WithClock(func() time.Time { return ts }))
}

func TestRelay_PublishesThenDelegates(t *testing.T) {
	pub := &fakePublisher{}
	r := newTestRelay(pub)

	var order []string
	cb := r.Wrap("deal.42", jobstream.Callbacks{
		OnProgress: func(ev jobstream.ProgressEvent) {
			order = append(order, "progress")
			assert.Len(t, pub.msgs, 1, "published before the subscriber runs")
		},
		OnEnd: func(jobstream.EndEvent) { order = append(order, "end") },
	})

	cb.OnProgress(jobstream.ProgressEvent{Status: "running", ProgressPercent: 40, CurrentStage: "ocr"})
	cb.OnComplete(jobstream.CompletionEvent{Message: "done", RunID: "r-1"})
	cb.OnError(jobstream.ErrorEvent{Message: "late", ErrorType: "x"})
	cb.OnEnd(jobstream.EndEvent{Reason: "completed"})

	assert.Equal(t, []string{"progress", "end"}, order)
	require.Len(t, pub.msgs, 4)

	subjects := make([]string, 0, len(pub.msgs))
	for _, m := range pub.msgs {
		subjects = append(subjects, m.subject)
	}
	assert.Equal(t, []string{
		"dealstream.jobs.deal_42.progress",
		"dealstream.jobs.deal_42.complete",
		"dealstream.jobs.deal_42.error",
		"dealstream.jobs.deal_42.end",
	}, subjects)

	first := gjson.ParseBytes(pub.msgs[0].data)
	assert.Equal(t, "deal.42", first.Get("job_id").String())
	assert.Equal(t, "progress", first.Get("event").String())
	assert.Equal(t, "2026-05-04T10:30:00Z", first.Get("ts").String())
	assert.Equal(t, 40.0, first.Get("progress_percent").Float())
	assert.Equal(t, "ocr", first.Get("current_stage").String())

	assert.Equal(t, "r-1", gjson.GetBytes(pub.msgs[1].data, "run_id").String())
}

func TestRelay_PublishErrorDoesNotReachSubscriber(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	r := newTestRelay(pub)

	called := false
	cb := r.Wrap("job-1", jobstream.Callbacks{OnEnd: func(jobstream.EndEvent) { called = true }})
	cb.OnEnd(jobstream.EndEvent{Reason: "failed"})

	assert.True(t, called)
}

func TestRelay_CustomPrefix(t *testing.T) {
	r := New(&fakePublisher{}, "acme.pipeline")
	assert.Equal(t, "acme.pipeline.job-1.end", r.Subject("job-1", "end"))
}

func TestEnvelope_KeepsEventFields(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := Envelope("job-1", "error", ts, jobstream.ErrorEvent{Message: "boom", ErrorType: "ocr", IsRetryable: true})
	require.NoError(t, err)

	r := gjson.ParseBytes(data)
	assert.Equal(t, "job-1", r.Get("job_id").String())
	assert.Equal(t, "error", r.Get("event").String())
	assert.Equal(t, "boom", r.Get("message").String())
	assert.True(t, r.Get("is_retryable").Bool())
	assert.Equal(t, "2026-01-02T03:04:05Z", r.Get("ts").String())
}
