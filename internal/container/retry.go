// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"time"
)

// DefaultRetry is the policy used for image pulls and container runs.
var DefaultRetry = Retry{Attempts: 3, Backoff: 500 * time.Millisecond, MaxBackoff: 5 * time.Second}

// Retry repeats engine operations that fail transiently. The wait before
// attempt n (n >= 1) is Backoff doubled n-1 times, capped at MaxBackoff when
// that is set.
type Retry struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Do calls op until it succeeds, returns an error IsTransientError rejects,
// or the attempts run out; the last error is returned. Canceling ctx ends
// the wait between attempts.
func (r Retry) Do(ctx context.Context, op func(attempt int) error) error {
	var err error
	for attempt := range max(r.Attempts, 1) {
		if attempt > 0 {
			timer := time.NewTimer(r.wait(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry aborted after %d attempts: %w (last error: %v)", attempt, ctx.Err(), err)
			case <-timer.C:
			}
		}
		if err = op(attempt); err == nil || !IsTransientError(err) {
			return err
		}
	}
	return err
}

func (r Retry) wait(attempt int) time.Duration {
	d := r.Backoff << (attempt - 1)
	if r.MaxBackoff > 0 && (d > r.MaxBackoff || d <= 0) {
		return r.MaxBackoff
	}
	return d
}
