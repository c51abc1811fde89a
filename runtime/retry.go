package runtime

import (
	"context"
	"time"

	"github.com/juju/errors"

	"github.com/lightartw/textanalyze/types"
)

type retryNotify func(attempt int, err error, wait time.Duration)

// retry invokes fn up to budget+1 times. It returns after the first success,
// after a FatalError, or when ctx is done while waiting between attempts.
// A RetryError's own backoff replaces the given one for the following wait.
func retry[T any](ctx context.Context, budget int, backoff time.Duration,
	fn func(attempt int) (T, error), notify retryNotify) (T, int, error) {
	var (
		ret T
		err error
	)
	attempts := 0
	for attempts <= budget {
		attempts++
		ret, err = fn(attempts)
		if err == nil {
			return ret, attempts, nil
		}
		if types.IsFatal(err) || attempts > budget {
			break
		}

		wait := backoff
		if d, ok := types.RetryBackoff(err); ok {
			wait = d
		}
		if notify != nil {
			notify(attempts, err, wait)
		}
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ret, attempts, errors.Annotatef(err, "retry aborted (%v)", ctx.Err())
		case <-timer.C:
		}
	}
	return ret, attempts, err
}
