package reconnect

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelay(t *testing.T) {
	if Delay(0) != time.Second {
		t.Fatalf("first delay = %s", Delay(0))
	}
	if Delay(len(Schedule)) != 30*time.Second {
		t.Fatalf("delay past schedule = %s", Delay(len(Schedule)))
	}
}

func TestRunWithoutRetryReturnsError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Run(context.Background(), false, func(context.Context) (bool, error) {
		calls++
		return false, boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("err = %v calls = %d", err, calls)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Run(ctx, true, func(context.Context) (bool, error) {
		calls++
		cancel()
		return true, errors.New("dropped")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("err = %v calls = %d", err, calls)
	}
}
