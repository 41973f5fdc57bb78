package retry

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
)

func noSleep(ctx context.Context, d time.Duration) {}

func TestDoSucceedsImmediately(t *testing.T) {
	e := New(slog.Default(), 3)
	e.Sleep = noSleep
	calls := 0
	err := e.Do(context.Background(), NotFoundAbsent, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}

func TestDoNotFoundAbsentReturnsErrAbsent(t *testing.T) {
	e := New(slog.Default(), 3)
	e.Sleep = noSleep
	err := e.Do(context.Background(), NotFoundAbsent, func(ctx context.Context) error {
		return &riotapi.ApiError{StatusCode: 404}
	})
	if !errors.Is(err, ErrAbsent) {
		t.Fatalf("got %v, want ErrAbsent", err)
	}
}

func TestDoNotFoundInProgressRetriesUncounted(t *testing.T) {
	e := New(slog.Default(), 1) // budget of 1 non-404 retry; should not be consumed
	e.Sleep = noSleep
	calls := 0
	err := e.Do(context.Background(), NotFoundInProgress, func(ctx context.Context) error {
		calls++
		if calls < 5 {
			return &riotapi.ApiError{StatusCode: 404}
		}
		return nil
	})
	if err != nil || calls != 5 {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}

func TestDoApplicationRateLimitFatal(t *testing.T) {
	e := New(slog.Default(), 5)
	e.Sleep = noSleep
	sentinel := &riotapi.ApiError{StatusCode: 429, RateLimitTyp: "application"}
	err := e.Do(context.Background(), NotFoundAbsent, func(ctx context.Context) error {
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("got %v, want the fatal sentinel unchanged", err)
	}
}

func TestDoOtherNonOKBoundedRetries(t *testing.T) {
	e := New(slog.Default(), 2) // triesPermitted = 3
	e.Sleep = noSleep
	calls := 0
	err := e.Do(context.Background(), NotFoundAbsent, func(ctx context.Context) error {
		calls++
		return &riotapi.ApiError{StatusCode: 500}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Fatalf("calls=%d, want 3 (1 + 2 retries)", calls)
	}
}
