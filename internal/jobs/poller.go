package jobs

import (
	"context"
	"iter"
	"time"

	"imagejob/internal/domain"
	"imagejob/internal/infra"
)

const (
	DefaultPollInterval    = 3 * time.Second
	DefaultPollMaxAttempts = 60
)

// Observation is one status check made by the Poller.
type Observation struct {
	Attempt  int
	Elapsed  time.Duration
	Snapshot domain.StatusSnapshot
}

// Poller checks the status of a single task at a fixed cadence.
type Poller struct {
	fetch       StatusFetcher
	interval    time.Duration
	maxAttempts int
	logger      *infra.Logger
	wait        func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a poller. Non-positive interval or maxAttempts fall back
// to DefaultPollInterval and DefaultPollMaxAttempts.
func NewPoller(fetch StatusFetcher, interval time.Duration, maxAttempts int, logger *infra.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollMaxAttempts
	}
	return &Poller{
		fetch:       fetch,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      orDiscard(logger),
		wait:        sleep,
	}
}

// Poll returns the observations for handle. Every check is preceded by one
// interval of waiting. The sequence ends after the first terminal snapshot,
// or with a non-nil error: *domain.StatusError when a check fails,
// *domain.TimeoutError when the attempts run out, or the context error when
// ctx is cancelled.
func (p *Poller) Poll(ctx context.Context, handle domain.JobHandle) iter.Seq2[Observation, error] {
	return func(yield func(Observation, error) bool) {
		for attempt := 1; attempt <= p.maxAttempts; attempt++ {
			if err := p.wait(ctx, p.interval); err != nil {
				yield(Observation{Attempt: attempt - 1}, err)
				return
			}
			snap, err := p.fetch(ctx, handle)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					yield(Observation{Attempt: attempt}, ctxErr)
					return
				}
				p.logger.Debug().Err(err).Str("task_id", handle.String()).Int("attempt", attempt).Msg("jobs: status check failed")
				yield(Observation{Attempt: attempt}, &domain.StatusError{Handle: handle, Attempt: attempt, Err: err})
				return
			}
			obs := Observation{
				Attempt:  attempt,
				Elapsed:  time.Duration(attempt) * p.interval,
				Snapshot: snap,
			}
			p.logger.Debug().
				Str("task_id", handle.String()).
				Int("attempt", attempt).
				Str("state", string(snap.State)).
				Msg("jobs: status observed")
			if !yield(obs, nil) || snap.State.Terminal() {
				return
			}
		}
		elapsed := time.Duration(p.maxAttempts) * p.interval
		yield(Observation{Attempt: p.maxAttempts, Elapsed: elapsed}, &domain.TimeoutError{
			Handle:   handle,
			Attempts: p.maxAttempts,
			Elapsed:  elapsed,
		})
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
