// Package status provides shared job status constants and helpers.
//
// This package centralizes status classification for backend jobs (document
// indexing, CIM extraction, workflow runs) so the stream client, the CLI and
// the TUI agree on which states are terminal and which are still in flight.
package status

import "strings"

// JobStatus represents the lifecycle status of a backend job.
type JobStatus string

const (
	// StatusPending indicates the job was accepted but not yet scheduled.
	StatusPending JobStatus = "pending"

	// StatusQueued indicates the job is waiting for a worker.
	StatusQueued JobStatus = "queued"

	// StatusRunning indicates a worker is executing the job.
	StatusRunning JobStatus = "running"

	// StatusProcessing is the backend's alias for running on extraction jobs.
	StatusProcessing JobStatus = "processing"

	// StatusIndexing indicates documents are being chunked and embedded.
	StatusIndexing JobStatus = "indexing"

	// StatusExtracting indicates CIM fields are being extracted.
	StatusExtracting JobStatus = "extracting"

	// StatusCompleted indicates the job finished successfully.
	StatusCompleted JobStatus = "completed"

	// StatusFailed indicates the job ended with an error.
	StatusFailed JobStatus = "failed"

	// StatusCancelled indicates the job was cancelled by a user.
	StatusCancelled JobStatus = "cancelled"
)

// completedStatuses contains all statuses that indicate successful completion.
var completedStatuses = map[string]bool{
	string(StatusCompleted): true,
	"complete":              true, // Legacy status value
	"success":               true, // Legacy status value
	"succeeded":             true,
}

// failedStatuses contains all statuses that indicate the job ended without a result.
var failedStatuses = map[string]bool{
	string(StatusFailed):    true,
	string(StatusCancelled): true,
	"canceled":              true,
	"error":                 true,
	"failure":               true, // Legacy status value
}

// activeStatuses contains all statuses that indicate the job is in progress.
var activeStatuses = map[string]bool{
	string(StatusPending):    true,
	string(StatusQueued):     true,
	string(StatusRunning):    true,
	string(StatusProcessing): true,
	string(StatusIndexing):   true,
	string(StatusExtracting): true,
}

// IsCompleted checks if a status string indicates successful completion.
//
// Parameters:
//   - status: The status string to check (case-insensitive)
//
// Returns:
//   - bool: True if the job completed successfully
func IsCompleted(status string) bool {
	return completedStatuses[normalize(status)]
}

// IsFailed checks if a status string indicates a failed or cancelled job.
//
// Parameters:
//   - status: The status string to check (case-insensitive)
//
// Returns:
//   - bool: True if the job ended without a result
func IsFailed(status string) bool {
	return failedStatuses[normalize(status)]
}

// IsTerminal checks if a status string indicates the job has ended.
//
// Parameters:
//   - status: The status string to check (case-insensitive)
//
// Returns:
//   - bool: True if the status is completed or failed
func IsTerminal(status string) bool {
	s := normalize(status)
	return completedStatuses[s] || failedStatuses[s]
}

// IsActive checks if a status string indicates the job is in progress.
//
// Parameters:
//   - status: The status string to check (case-insensitive)
//
// Returns:
//   - bool: True if the status is active
func IsActive(status string) bool {
	return activeStatuses[normalize(status)]
}

// StatusIcon returns the appropriate icon for a status.
//
// Parameters:
//   - status: The status string
//
// Returns:
//   - string: The icon character for the status
func StatusIcon(status string) string {
	s := normalize(status)
	switch {
	case s == string(StatusPending) || s == string(StatusQueued):
		return "⏳"
	case activeStatuses[s]:
		return "▶"
	case completedStatuses[s]:
		return "✓"
	case s == string(StatusCancelled) || s == "canceled":
		return "⊘"
	case failedStatuses[s]:
		return "✗"
	default:
		return "●"
	}
}

// StatusCategory returns the category of a status for styling purposes.
//
// Categories:
//   - "dim": pending, queued, unknown
//   - "info": running, processing, indexing, extracting
//   - "success": completed
//   - "error": failed
//   - "warning": cancelled
//
// Parameters:
//   - status: The status string
//
// Returns:
//   - string: The category name for styling
func StatusCategory(status string) string {
	s := normalize(status)
	switch {
	case s == string(StatusPending) || s == string(StatusQueued):
		return "dim"
	case activeStatuses[s]:
		return "info"
	case completedStatuses[s]:
		return "success"
	case s == string(StatusCancelled) || s == "canceled":
		return "warning"
	case failedStatuses[s]:
		return "error"
	default:
		return "dim"
	}
}

func normalize(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
