// Package retry implements the Retry Envelope: a reusable policy wrapping any
// API call, interpreting the vendor's error taxonomy and sleeping per headers.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
)

// NotFoundMeaning tells the envelope how to interpret a 404 for this call.
type NotFoundMeaning int

const (
	// NotFoundInProgress means 404 signals "not finished yet" (match result polling).
	NotFoundInProgress NotFoundMeaning = iota
	// NotFoundAbsent means 404 signals "no such data" (active match, matchlist).
	NotFoundAbsent
)

// Sleeper abstracts time.Sleep for tests; defaults to the real clock.
type Sleeper func(ctx context.Context, d time.Duration)

func realSleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Envelope wraps upstream calls with the retry policy from SPEC_FULL.md §4.4.
type Envelope struct {
	Sleep         Sleeper
	Logger        *slog.Logger
	NonNotFoundRetries int // "retries_permitted = 1 + retries" for non-404 failures
}

// New builds an Envelope with real sleeps and the given retry budget.
func New(logger *slog.Logger, retries int) *Envelope {
	if logger == nil {
		logger = slog.Default()
	}
	return &Envelope{Sleep: realSleep, Logger: logger, NonNotFoundRetries: retries}
}

// ErrAbsent is returned by Do when a 404 under NotFoundAbsent semantics
// exhausts the call without data; callers treat this as "no data, not a failure."
var ErrAbsent = errors.New("retry: no data (404 treated as absent)")

// Do executes op, applying the retry policy until it succeeds, the retry
// budget for non-404 failures is exhausted, or a fatal error occurs.
func (e *Envelope) Do(ctx context.Context, notFound NotFoundMeaning, op func(ctx context.Context) error) error {
	triesPermitted := 1 + e.NonNotFoundRetries
	attempt := 0

	for {
		err := op(ctx)
		if err == nil {
			return nil
		}

		var apiErr *riotapi.ApiError
		if !errors.As(err, &apiErr) {
			// Not an upstream API error (network error, decode error, ctx
			// cancellation, etc.) - treat as transient, bounded by the same budget.
			attempt++
			if attempt >= triesPermitted {
				return err
			}
			e.Logger.Debug("retry: transient non-api error, sleeping", "sleep_s", 2, "attempt", attempt, "err", err)
			e.Sleep(ctx, 2*time.Second)
			continue
		}

		switch {
		case apiErr.StatusCode == 404 && notFound == NotFoundInProgress:
			e.Logger.Debug("retry: 404 treated as in-progress, sleeping", "sleep_s", 300)
			e.Sleep(ctx, 300*time.Second)
			continue

		case apiErr.StatusCode == 404 && notFound == NotFoundAbsent:
			return ErrAbsent

		case apiErr.StatusCode == 429 && apiErr.RateLimitTyp == "":
			e.Logger.Debug("retry: 429 with no rate-limit-type, sleeping", "sleep_s", 5)
			e.Sleep(ctx, 5*time.Second)
			continue

		case apiErr.StatusCode == 429 && apiErr.RateLimitTyp == "service":
			wait := apiErr.RetryAfterS
			if wait <= 0 {
				wait = 5
			}
			e.Logger.Debug("retry: 429 service limit, sleeping", "sleep_s", wait)
			e.Sleep(ctx, time.Duration(wait)*time.Second)
			continue

		case apiErr.IsApplicationOrMethodRateLimit():
			// Fatal: our ledger accounting is wrong. Re-raise, do not retry.
			return err

		default:
			attempt++
			if attempt >= triesPermitted {
				return err
			}
			e.Logger.Debug("retry: other non-2xx, sleeping", "sleep_s", 2, "attempt", attempt, "status", apiErr.StatusCode)
			e.Sleep(ctx, 2*time.Second)
			continue
		}
	}
}
