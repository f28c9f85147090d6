package jobs

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"imagejob/internal/domain"
	"imagejob/internal/infra"
)

// Routes are the path templates of one job kind. Status and result routes
// contain a {task_id} placeholder. Empty fallbacks disable the fallback.
type Routes struct {
	Submit         string
	Status         string
	StatusFallback string
	Result         string
	ResultFallback string
}

// Spec parameterizes the controller for one job kind.
type Spec struct {
	Kind         domain.JobKind
	Routes       Routes
	ResultFields []string
}

// Options tunes polling and logging.
type Options struct {
	PollInterval    time.Duration
	PollMaxAttempts int
	Logger          *infra.Logger
}

// Controller drives one job from submission to its artifact and reports
// every step as an Event. It keeps no state between runs, so one Controller
// may serve any number of concurrent runs.
type Controller struct {
	spec      Spec
	submitter *Submitter
	poller    *Poller
	resolver  *Resolver
	logger    *infra.Logger
}

// NewController builds a controller for spec on top of transport.
func NewController(transport Transport, spec Spec, opts Options) *Controller {
	logger := orDiscard(opts.Logger)

	status := StatusFetcher(func(ctx context.Context, handle domain.JobHandle) (domain.StatusSnapshot, error) {
		return transport.Status(ctx, spec.Routes.Status, handle)
	})
	if spec.Routes.StatusFallback != "" {
		status = WithFallback(status, func(ctx context.Context, handle domain.JobHandle) (domain.StatusSnapshot, error) {
			return transport.Status(ctx, spec.Routes.StatusFallback, handle)
		})
	}

	result := ResultFetcher(func(ctx context.Context, handle domain.JobHandle) (domain.Blob, error) {
		return transport.Result(ctx, spec.Routes.Result, handle)
	})
	if spec.Routes.ResultFallback != "" {
		result = WithFallback(result, func(ctx context.Context, handle domain.JobHandle) (domain.Blob, error) {
			return transport.Result(ctx, spec.Routes.ResultFallback, handle)
		})
	}

	return &Controller{
		spec:      spec,
		submitter: NewSubmitter(transport, spec.Routes.Submit, logger),
		poller:    NewPoller(status, opts.PollInterval, opts.PollMaxAttempts, logger),
		resolver:  NewResolver(result, transport.Download, spec.ResultFields, logger),
		logger:    logger,
	}
}

// Kind reports the job kind this controller runs.
func (c *Controller) Kind() domain.JobKind {
	return c.spec.Kind
}

// Run returns the lazy event sequence of one job. Nothing is sent until the
// sequence is ranged over. The sequence ends with exactly one Success or
// Error event, unless the consumer stops early or ctx is cancelled, in which
// case it ends silently at the next suspension point.
func (c *Controller) Run(ctx context.Context, payload domain.Payload) iter.Seq[domain.Event] {
	return func(yield func(domain.Event) bool) {
		emit := func(ev domain.Event) bool {
			if ctx.Err() != nil {
				return false
			}
			return yield(ev)
		}

		if !emit(domain.Loading("starting")) {
			return
		}

		handle, err := c.submitter.Submit(ctx, payload)
		if err != nil {
			c.logger.Warn().Err(err).Str("kind", string(c.spec.Kind)).Msg("jobs: submission failed")
			emit(domain.Failure("", err))
			return
		}
		log := c.logger.With().Str("kind", string(c.spec.Kind)).Str("task_id", handle.String()).Logger()
		log.Info().Msg("jobs: submitted")

		started := domain.Loading("processing, id=" + handle.String())
		started.Handle = handle
		if !emit(started) {
			return
		}

		var terminal domain.StatusSnapshot
		for obs, err := range c.poller.Poll(ctx, handle) {
			if err != nil {
				log.Warn().Err(err).Int("attempt", obs.Attempt).Msg("jobs: polling stopped")
				emit(domain.Failure(handle, err))
				return
			}
			if obs.Snapshot.State.Terminal() {
				terminal = obs.Snapshot
				break
			}
			if !emit(progress(handle, obs)) {
				return
			}
		}

		switch terminal.State {
		case domain.JobStateFailed:
			detail := firstNonEmpty(terminal.ErrorDetail, terminal.Message)
			log.Warn().Str("detail", detail).Msg("jobs: remote job failed")
			emit(domain.Failure(handle, &domain.JobFailedError{Handle: handle, Detail: detail}))
		case domain.JobStateCompleted:
			downloading := domain.Loading("downloading result")
			downloading.Handle = handle
			if !emit(downloading) {
				return
			}
			artifact, err := c.resolver.Resolve(ctx, terminal, handle)
			if err != nil {
				log.Warn().Err(err).Msg("jobs: result resolution failed")
				emit(domain.Failure(handle, err))
				return
			}
			log.Info().Int("bytes", len(artifact.Data)).Str("format", artifact.Format).Msg("jobs: completed")
			emit(domain.Success(artifact))
		}
	}
}

func progress(handle domain.JobHandle, obs Observation) domain.Event {
	msg := fmt.Sprintf("processing, elapsed=%s", obs.Elapsed)
	if obs.Snapshot.Message != "" {
		msg += ": " + obs.Snapshot.Message
	}
	ev := domain.Loading(msg)
	ev.Handle = handle
	ev.Elapsed = obs.Elapsed
	return ev
}

// Await drains events and returns the artifact of a successful run. Loading
// events are passed to onProgress when it is not nil. A sequence that ends
// without a terminal event yields the context error, if any.
func Await(ctx context.Context, events iter.Seq[domain.Event], onProgress func(domain.Event)) (domain.Artifact, error) {
	for ev := range events {
		switch ev.Kind {
		case domain.EventSuccess:
			return *ev.Artifact, nil
		case domain.EventError:
			if ev.Err != nil {
				return domain.Artifact{}, ev.Err
			}
			return domain.Artifact{}, fmt.Errorf("%s", ev.Message)
		default:
			if onProgress != nil {
				onProgress(ev)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return domain.Artifact{}, err
	}
	return domain.Artifact{}, fmt.Errorf("event stream ended without a result")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
