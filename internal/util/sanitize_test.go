package util

import "testing"

func TestSubjectToken(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "uuid unchanged", input: "3f2b9c1e-8d7a-4c55-9e1f-0a6b2d4c8e11", want: "3f2b9c1e-8d7a-4c55-9e1f-0a6b2d4c8e11"},
		{name: "dots replaced", input: "deal.42", want: "deal_42"},
		{name: "spaces and parens", input: "deal.42 (draft)", want: "deal_42_draft"},
		{name: "wildcards", input: "a*b>c", want: "a_b_c"},
		{name: "case preserved", input: "JobABC", want: "JobABC"},
		{name: "collapse underscores", input: "a__b", want: "a_b"},
		{name: "trim", input: "..job..", want: "job"},
		{name: "empty string", input: "", want: "_"},
		{name: "only symbols", input: "***", want: "_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SubjectToken(tt.input)
			if got != tt.want {
				t.Errorf("SubjectToken(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		n     int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is longer", 7, "this is..."},
		{"anything", 0, "anything"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.input, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
		}
	}
}
