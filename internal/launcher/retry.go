package launcher

import (
	"context"
	"errors"
	"time"
)

// DefaultBackoff is the pause between the first failure and the single
// retry.
const DefaultBackoff = 500 * time.Millisecond

// retryState is the explicit life of the retry policy: one failure is
// absorbed, the second is final.
type retryState int

const (
	stateAttempting retryState = iota
	stateExhausted
)

// RetryRunner wraps another runner with a single bounded retry: a
// producer that exits nonzero gets exactly one more attempt after a
// fixed backoff. Start failures and deadline expiry are never retried.
type RetryRunner struct {
	Inner   Runner
	Backoff time.Duration
	Logf    func(format string, args ...interface{})
}

func (r RetryRunner) Run(ctx context.Context, cmd Command) (RunResult, error) {
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	attempts := 0
	for state := stateAttempting; ; state = stateExhausted {
		attempts++
		result, err := r.Inner.Run(ctx, cmd)
		result.Attempts = attempts
		if err == nil {
			return result, nil
		}
		if state == stateExhausted {
			return result, err
		}

		var procErr *ProcessError
		if !errors.As(err, &procErr) {
			return result, err
		}
		if r.Logf != nil {
			r.Logf("retrying %s after exit code %d", cmd.Path, procErr.ExitCode)
		}

		select {
		case <-ctx.Done():
			return result, err
		case <-time.After(backoff):
		}
	}
}
