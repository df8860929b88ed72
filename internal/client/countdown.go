package client

import (
	"context"
	"time"
)

// Countdown returns the time left on an attempt, derived from the server-issued start and
// limit. It is advisory; the server decides lateness by its own receipt time.
func Countdown(createdAt time.Time, timeLimitMinutes int, now time.Time) time.Duration {
	remaining := createdAt.Add(time.Duration(timeLimitMinutes) * time.Minute).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// WatchDeadline calls submit once when deadline is reached, unless ctx ends first.
// The submit callback gets a fresh context so cancelling the watcher after it fired
// does not abort the submission in flight.
func WatchDeadline(ctx context.Context, deadline time.Time, now func() time.Time, submit func(context.Context) error) error {
	if now == nil {
		now = time.Now
	}
	timer := time.NewTimer(deadline.Sub(now()))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return submit(context.WithoutCancel(ctx))
	}
}
