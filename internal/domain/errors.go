package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrUnknownKind     = errors.New("unknown job kind")
	ErrUnknownStyle    = errors.New("unknown figurine style")
	ErrNoArtifact      = errors.New("no artifact found")
	ErrCorruptArtifact = errors.New("artifact is not a decodable image")
)

// HTTPError is returned by the transport for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// IsRouteMissing reports whether err means the endpoint does not exist or does
// not accept the method, i.e. an alternate route is worth a try.
func IsRouteMissing(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.StatusCode == http.StatusNotFound || httpErr.StatusCode == http.StatusMethodNotAllowed
}

// SubmissionError means the job could not be started.
type SubmissionError struct {
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string {
	return "submit job: " + e.Reason
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// StatusError means a status check failed after the fallback route, if any,
// was exhausted.
type StatusError struct {
	Handle  JobHandle
	Attempt int
	Err     error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status check %d for %s: %v", e.Attempt, e.Handle, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// TimeoutError means polling gave up before the job reached a terminal state.
// It never describes a job the remote side reported as failed.
type TimeoutError struct {
	Handle   JobHandle
	Attempts int
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %d status checks (%s)", e.Attempts, e.Elapsed)
}

// JobFailedError carries the failure text reported by the remote job.
type JobFailedError struct {
	Handle JobHandle
	Detail string
}

func (e *JobFailedError) Error() string {
	if e.Detail == "" {
		return "job failed"
	}
	return e.Detail
}

// ResolutionError means the job completed but no image could be obtained.
type ResolutionError struct {
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	return e.Reason
}

func (e *ResolutionError) Unwrap() error { return e.Err }
