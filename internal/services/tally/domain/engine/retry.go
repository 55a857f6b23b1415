package engine

import (
	"context"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
)

// DefaultRetryAttempts bounds Retry when attempts is not positive.
const DefaultRetryAttempts = 3

// Retry runs fn until it succeeds, fails with anything other than a
// concurrency conflict, or runs out of attempts. Each attempt re-reads the
// stream, so fn must not carry an expected version across attempts.
func Retry(ctx context.Context, attempts int, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(ctx)
		if apperrors.CodeOf(err) != apperrors.CodeConcurrencyConflict {
			return err
		}
	}
	return err
}
