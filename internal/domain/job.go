package domain

import "strings"

// JobKind enumerates supported remote transformation categories.
type JobKind string

const (
	JobKindTryOn     JobKind = "try-on"
	JobKindHairstyle JobKind = "hairstyle"
	JobKindFigurine  JobKind = "figurine"
)

// JobHandle is the opaque task identifier returned by the remote service.
type JobHandle string

func (h JobHandle) String() string {
	return string(h)
}

// JobState enumerates the remote job lifecycle states observed while polling.
type JobState string

const (
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
)

// Terminal reports whether polling should stop at this state.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// ParseJobState maps the many words remote backends use for job states onto
// the three states the client understands. Unknown or empty words mean the
// job is still in flight.
func ParseJobState(raw string) JobState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "complete", "succeeded", "success", "successful", "done", "finished":
		return JobStateCompleted
	case "failed", "failure", "error", "errored", "cancelled", "canceled":
		return JobStateFailed
	default:
		return JobStateProcessing
	}
}

// StatusSnapshot is one observation of a remote job.
type StatusSnapshot struct {
	State       JobState
	Message     string
	ResultRef   string
	ErrorDetail string
}

// NewStatusSnapshot builds a snapshot and drops fields that are not allowed
// for the given state: ResultRef only survives on completed jobs and
// ErrorDetail only on failed ones.
func NewStatusSnapshot(state JobState, message, resultRef, errorDetail string) StatusSnapshot {
	snap := StatusSnapshot{
		State:   state,
		Message: strings.TrimSpace(message),
	}
	switch state {
	case JobStateCompleted:
		snap.ResultRef = strings.TrimSpace(resultRef)
	case JobStateFailed:
		snap.ErrorDetail = strings.TrimSpace(errorDetail)
	default:
		snap.State = JobStateProcessing
	}
	return snap
}

// Media is one input blob destined for a multipart field.
type Media struct {
	Field    string
	Filename string
	MIME     string
	Data     []byte
}

// Payload is the job-specific submission body. The controller never looks
// inside it; the transport encodes it.
type Payload struct {
	Media  []Media
	Fields map[string]string
}

// Empty reports whether the payload carries no media bytes at all.
func (p Payload) Empty() bool {
	for _, m := range p.Media {
		if len(m.Data) > 0 {
			return false
		}
	}
	return true
}
