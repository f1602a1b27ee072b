package jobstream

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/tidwall/gjson"

	"github.com/dealdesk/dealstream/internal/errors"
	"github.com/dealdesk/dealstream/internal/util"
)

// maxLoggedPayload bounds how much of a malformed payload ends up in logs.
const maxLoggedPayload = 200

// parsePayload validates an event body. An empty body is treated as an
// empty object, since SSE permits events without a data field.
func parsePayload(data []byte) (gjson.Result, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return gjson.Parse("{}"), nil
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, errors.Newf("malformed event payload: %q", truncate(data))
	}
	r := gjson.ParseBytes(data)
	if !r.IsObject() {
		return gjson.Result{}, errors.Newf("event payload is not an object: %q", truncate(data))
	}
	return r, nil
}

// firstOf returns the first of keys present in r.
func firstOf(r gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

func parseProgress(data []byte) (ProgressEvent, error) {
	r, err := parsePayload(data)
	if err != nil {
		return ProgressEvent{}, err
	}
	return ProgressEvent{
		Status:          r.Get("status").String(),
		ProgressPercent: clampPercent(firstOf(r, "progress_percent", "progress").Float()),
		Message:         r.Get("message").String(),
		CurrentStage:    firstOf(r, "current_stage", "stage").String(),
		Details:         objectOf(r.Get("details")),
	}, nil
}

func parseComplete(data []byte) (CompletionEvent, error) {
	r, err := parsePayload(data)
	if err != nil {
		return CompletionEvent{}, err
	}
	ev := CompletionEvent{
		Message:      r.Get("message").String(),
		RunID:        r.Get("run_id").String(),
		ExtractionID: r.Get("extraction_id").String(),
	}
	if a := r.Get("artifact"); a.Exists() && a.Type != gjson.Null {
		ev.Artifact = json.RawMessage(a.Raw)
	}
	return ev, nil
}

// parseError normalizes the backend's error shapes: retryable/is_retryable
// and error_type/type. A missing retry flag means the error is final.
func parseError(data []byte) (ErrorEvent, error) {
	r, err := parsePayload(data)
	if err != nil {
		return ErrorEvent{}, err
	}
	ev := ErrorEvent{
		Message:     firstOf(r, "message", "error").String(),
		Stage:       r.Get("stage").String(),
		ErrorType:   firstOf(r, "error_type", "type").String(),
		IsRetryable: firstOf(r, "retryable", "is_retryable").Bool(),
	}
	if ev.ErrorType == "" {
		ev.ErrorType = ErrorTypeUnknown
	}
	if ev.Message == "" {
		ev.Message = "job reported an error"
	}
	return ev, nil
}

func parseEnd(data []byte) (EndEvent, error) {
	r, err := parsePayload(data)
	if err != nil {
		return EndEvent{}, err
	}
	return EndEvent{Reason: r.Get("reason").String()}, nil
}

func objectOf(v gjson.Result) map[string]any {
	if !v.IsObject() {
		return nil
	}
	m, _ := v.Value().(map[string]any)
	return m
}

func clampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

func truncate(data []byte) string {
	return util.Truncate(string(data), maxLoggedPayload)
}
