package ui

import (
	"strings"
	"testing"

	"github.com/dealdesk/dealstream/internal/jobstream"
)

func TestRenderBar(t *testing.T) {
	tests := []struct {
		name    string
		percent float64
		width   int
		filled  int
	}{
		{"empty", 0, 10, 0},
		{"half", 50, 10, 5},
		{"full", 100, 10, 10},
		{"rounds", 44, 10, 4},
		{"clamps high", 250, 10, 10},
		{"clamps negative", -5, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := RenderBar(tt.percent, tt.width)
			if got := strings.Count(bar, "█"); got != tt.filled {
				t.Errorf("filled = %d, want %d", got, tt.filled)
			}
			if got := strings.Count(bar, "░"); got != tt.width-tt.filled {
				t.Errorf("empty = %d, want %d", got, tt.width-tt.filled)
			}
		})
	}

	if RenderBar(50, 0) != "" {
		t.Error("zero width should render nothing")
	}
}

func TestBarWidth(t *testing.T) {
	tests := []struct {
		termWidth int
		want      int
	}{
		{0, 10},
		{20, 10},
		{90, 30},
		{200, 40},
	}
	for _, tt := range tests {
		if got := BarWidth(tt.termWidth); got != tt.want {
			t.Errorf("BarWidth(%d) = %d, want %d", tt.termWidth, got, tt.want)
		}
	}
}

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		name string
		ev   jobstream.ProgressEvent
		want []string
	}{
		{
			name: "stage and message",
			ev:   jobstream.ProgressEvent{Status: "running", ProgressPercent: 42, CurrentStage: "ocr", Message: "Reading page 3"},
			want: []string{"job-1", "running", " 42%", "ocr: Reading page 3"},
		},
		{
			name: "stage only",
			ev:   jobstream.ProgressEvent{Status: "indexing", ProgressPercent: 5, CurrentStage: "embed"},
			want: []string{"indexing", "  5%", "embed"},
		},
		{
			name: "message only",
			ev:   jobstream.ProgressEvent{Status: "queued", Message: "Waiting for worker"},
			want: []string{"queued", "  0%", "Waiting for worker"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatProgress("job-1", tt.ev, 10)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("FormatProgress() = %q, missing %q", got, w)
				}
			}
		})
	}
}

func TestFormatError(t *testing.T) {
	retry := FormatError("job-1", jobstream.ErrorEvent{Message: "Connection lost", ErrorType: "connection_error", IsRetryable: true})
	if !strings.Contains(retry, "retrying") {
		t.Errorf("retryable error should mention retrying: %q", retry)
	}

	fatal := FormatError("job-1", jobstream.ErrorEvent{Message: "OCR failed", ErrorType: "ocr", Stage: "extract"})
	if strings.Contains(fatal, "retrying") || !strings.Contains(fatal, "ocr @ extract") {
		t.Errorf("unexpected fatal error line: %q", fatal)
	}
}

func TestTable(t *testing.T) {
	tbl := NewTable("JOB", "STATUS")
	tbl.AddRow("job-1", "running")
	tbl.AddRow("a-very-long-job-identifier", "completed")
	tbl.SetMaxWidth(0, 10)

	lines := strings.Split(strings.TrimRight(tbl.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), tbl.String())
	}
	if !strings.Contains(lines[3], "a-very-...") {
		t.Errorf("long value not truncated: %q", lines[3])
	}
	if !strings.HasPrefix(lines[2], "job-1      ") {
		t.Errorf("short value not padded: %q", lines[2])
	}
}

func TestFormatJobResult(t *testing.T) {
	ok := FormatJobResult("job-1", true, "completed", "Extraction ready")
	if !strings.Contains(ok, "✓") || !strings.Contains(ok, "Extraction ready") {
		t.Errorf("unexpected success box: %q", ok)
	}
	failed := FormatJobResult("job-2", false, "disconnected", "")
	if !strings.Contains(failed, "✗") || !strings.Contains(failed, "disconnected") {
		t.Errorf("unexpected failure box: %q", failed)
	}
}
