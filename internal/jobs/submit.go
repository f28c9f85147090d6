package jobs

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"imagejob/internal/domain"
	"imagejob/internal/infra"
)

// Transport is the remote capability set the controller is built on. Routes
// are path templates with a {task_id} placeholder; which route is primary and
// which is the fallback is decided by the job's Spec.
type Transport interface {
	Submit(ctx context.Context, route string, payload domain.Payload) (domain.JobHandle, error)
	Status(ctx context.Context, route string, handle domain.JobHandle) (domain.StatusSnapshot, error)
	Result(ctx context.Context, route string, handle domain.JobHandle) (domain.Blob, error)
	Download(ctx context.Context, url string) (domain.Blob, error)
}

// Submitter starts a job and normalizes every failure into a SubmissionError.
type Submitter struct {
	transport Transport
	route     string
	logger    *infra.Logger
}

// NewSubmitter binds a transport to a submit route.
func NewSubmitter(transport Transport, route string, logger *infra.Logger) *Submitter {
	return &Submitter{transport: transport, route: route, logger: orDiscard(logger)}
}

// Submit sends the payload once. It never retries.
func (s *Submitter) Submit(ctx context.Context, payload domain.Payload) (domain.JobHandle, error) {
	if payload.Empty() {
		return "", &domain.SubmissionError{Reason: "payload has no media", Err: domain.ErrInvalidPayload}
	}
	handle, err := s.transport.Submit(ctx, s.route, payload)
	if err != nil {
		s.logger.Debug().Err(err).Str("route", s.route).Msg("jobs: submit failed")
		return "", &domain.SubmissionError{Reason: submissionReason(err), Err: err}
	}
	handle = domain.JobHandle(strings.TrimSpace(string(handle)))
	if handle == "" {
		return "", &domain.SubmissionError{Reason: "response did not contain a task id"}
	}
	return handle, nil
}

func submissionReason(err error) string {
	var httpErr *domain.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	default:
		return err.Error()
	}
}

func orDiscard(logger *infra.Logger) *infra.Logger {
	if logger != nil {
		return logger
	}
	l := infra.Logger(zerolog.New(io.Discard))
	return &l
}
