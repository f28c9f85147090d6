package jobs

import (
	"context"

	"imagejob/internal/domain"
)

// StatusFetcher reads the current status of a remote task.
type StatusFetcher func(ctx context.Context, handle domain.JobHandle) (domain.StatusSnapshot, error)

// ResultFetcher reads the result body of a remote task by its identifier.
type ResultFetcher func(ctx context.Context, handle domain.JobHandle) (domain.Blob, error)

// BytesFetcher downloads an absolute URL.
type BytesFetcher func(ctx context.Context, url string) (domain.Blob, error)

// WithFallback decorates primary so that a route-missing failure (404/405)
// is retried once through fallback. Any other failure, and any failure of the
// fallback itself, is returned as is. A nil fallback leaves primary untouched.
func WithFallback[T any](primary, fallback func(context.Context, domain.JobHandle) (T, error)) func(context.Context, domain.JobHandle) (T, error) {
	if fallback == nil {
		return primary
	}
	return func(ctx context.Context, handle domain.JobHandle) (T, error) {
		out, err := primary(ctx, handle)
		if err == nil || !domain.IsRouteMissing(err) {
			return out, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			var zero T
			return zero, ctxErr
		}
		return fallback(ctx, handle)
	}
}
