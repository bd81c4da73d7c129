package system

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default polling cadence for kernel-side teardown (pool export, mount
// namespace) to settle.
const (
	SettleInterval = 500 * time.Millisecond
	SettleAttempts = 10
)

// WaitFor polls check until it reports true, retrying at a constant
// interval up to attempts times. A check error aborts polling immediately;
// exhausting the attempts returns a timeout error naming the condition.
func WaitFor(what string, interval time.Duration, attempts uint64, check func() (bool, error)) error {
	op := func() error {
		ok, err := check()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return fmt.Errorf("still waiting for %s", what)
		}
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), attempts)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("timed out waiting for %s: %w", what, err)
	}
	return nil
}

// WaitSettle polls with the default cadence.
func WaitSettle(what string, check func() (bool, error)) error {
	return WaitFor(what, SettleInterval, SettleAttempts, check)
}
