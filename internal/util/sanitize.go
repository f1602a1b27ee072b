// Package util provides shared utility functions for the CLI.
package util

import (
	"regexp"
	"strings"
)

var (
	// subjectDisallowed matches anything not in [A-Za-z0-9-_].
	subjectDisallowed = regexp.MustCompile(`[^A-Za-z0-9\-_]+`)
	// multiUnderscore collapses consecutive underscores.
	multiUnderscore = regexp.MustCompile(`_{2,}`)
)

// SubjectToken converts a string into a single NATS subject token.
//   - Replaces dots, whitespace, wildcards and other symbols with underscores
//   - Collapses consecutive underscores
//   - Trims leading/trailing underscores
//   - Returns "_" for input with nothing usable
//
// Example: "deal.42 (draft)" → "deal_42_draft"
func SubjectToken(s string) string {
	s = subjectDisallowed.ReplaceAllString(s, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "_"
	}
	return s
}

// Truncate shortens s to at most n bytes, marking the cut with "...".
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
