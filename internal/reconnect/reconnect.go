package reconnect

import (
	"context"
	"time"
)

// Schedule defines the backoff durations for successive reconnect attempts.
var Schedule = []time.Duration{
	time.Second, time.Second, time.Second,
	5 * time.Second, 5 * time.Second, 5 * time.Second,
	15 * time.Second, 15 * time.Second, 15 * time.Second,
}

// Delay returns the backoff duration for the given attempt.
// Attempts beyond the length of the schedule default to 30 seconds.
func Delay(attempt int) time.Duration {
	if attempt < len(Schedule) {
		return Schedule[attempt]
	}
	return 30 * time.Second
}

// Run runs fn and, when it returns an error and retry is true, calls it again
// after the scheduled delay until ctx is done. fn reports whether it got far
// enough to reset the schedule.
func Run(ctx context.Context, retry bool, fn func(context.Context) (connected bool, err error)) error {
	attempt := 0
	for {
		connected, err := fn(ctx)
		if err == nil || !retry {
			return err
		}
		if connected {
			attempt = 0
		}
		delay := Delay(attempt)
		attempt++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
