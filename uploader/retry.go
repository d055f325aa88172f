package uploader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitrise-io/go-tus/protocol"
	"github.com/hashicorp/go-retryablehttp"
)

// retryWaitBase is the first wait interval of the exponential backoff.
// A variable so tests can shrink it.
var retryWaitBase = time.Second

// retriesExhaustedError is returned by withRetry when an operation kept
// failing with retryable errors for the configured number of attempts.
type retriesExhaustedError struct {
	operation string
	attempts  int
	err       error
}

func (e *retriesExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %s", e.operation, e.attempts, e.err)
}

func (e *retriesExhaustedError) Unwrap() error {
	return e.err
}

// isRetryable reports whether the error is worth retrying. Only transport
// errors are: a malformed response will not become well-formed by asking
// again.
func isRetryable(err error) bool {
	var transportErr *protocol.TransportError
	return errors.As(err, &transportErr)
}

// withRetry runs fn until it succeeds, fails with a non-retryable error, the
// context is cancelled, or the configured attempts are used up. Waits
// between attempts grow exponentially, capped at MaxRetryWait.
func (u *Uploader) withRetry(ctx context.Context, operation string, fn func() error) error {
	attempts := u.config.Retry.RetryAttempts

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			u.logger.Infof("Trying %s again, attempt number %d...", operation, attempt+1)
		}

		err = fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isRetryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		wait := retryablehttp.DefaultBackoff(retryWaitBase, u.config.Retry.MaxRetryWait, attempt, nil)
		u.logger.Warnf("%s failed, retrying in %.0f second(s): %s", operation, wait.Seconds(), err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return &retriesExhaustedError{operation: operation, attempts: attempts, err: err}
}
