// Package ledger implements the Quota Ledger: a cross-process shared record
// of outgoing requests, gating new requests against every applicable quota
// simultaneously before admitting them.
package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Mew-www/lol-data-collection-system/internal/config"
)

// advisoryLockKey is a fixed key for the cross-process lock guarding the
// RequestHistory table, analogous to the original's table-wide LOCK TABLES.
const advisoryLockKey = 0x4c4f4c5f444353 // "LOL_DCS" packed, arbitrary but stable

// Quota is one applicable quota: max_requests within window_seconds, scoped
// to a region and, for method quotas, a specific method key.
type Quota struct {
	MaxRequests int
	WindowSecs  int
	Region      string
	Method      string // empty for app-wide quotas
}

// Ledger enforces every (app and method) quota shared across all processes
// using the same API key.
type Ledger struct {
	pool       *pgxpool.Pool
	logfile    string
	logMu      sync.Mutex
	sleepFn    func(ctx context.Context, d time.Duration)
	nowFn      func() time.Time
	quotasFn   func(region, method string) []Quota
}

// New builds a Ledger. quotasFn supplies the applicable quotas for a given
// (region, method) pair - typically the app-wide quotas (method == "") plus
// whatever method-level quota config.MethodRateLimits resolves.
func New(pool *pgxpool.Pool, logfile string, quotasFn func(region, method string) []Quota) *Ledger {
	return &Ledger{
		pool:     pool,
		logfile:  logfile,
		sleepFn:  defaultSleep,
		nowFn:    time.Now,
		quotasFn: quotasFn,
	}
}

func defaultSleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Permit blocks until every applicable quota has headroom, then atomically
// records a new request entry. Returns only after the row is durably written.
func (l *Ledger) Permit(ctx context.Context, apiKey, region, method, uri string) error {
	quotas := l.quotasFn(region, method)
	if len(quotas) == 0 {
		// No quotas configured for this (region, method): nothing gates it,
		// but we still record the request for the audit trail.
		return l.recordOnly(ctx, apiKey, region, method, uri)
	}

	for {
		ok, waitFor, err := l.checkAndMaybeInsert(ctx, apiKey, region, method, uri, quotas)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		l.sleepFn(ctx, waitFor)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// checkAndMaybeInsert performs one lock-check-insert-unlock cycle. It returns
// ok=true once the entry has been inserted; otherwise it returns the duration
// to wait before trying again.
func (l *Ledger) checkAndMaybeInsert(ctx context.Context, apiKey, region, method, uri string, quotas []Quota) (bool, time.Duration, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return false, 0, fmt.Errorf("ledger: acquiring advisory lock: %w", err)
	}

	wMax := 0
	for _, q := range quotas {
		if q.WindowSecs > wMax {
			wMax = q.WindowSecs
		}
	}

	now := l.nowFn()
	since := now.Add(-time.Duration(wMax) * time.Second)

	rows, err := tx.Query(ctx,
		`SELECT at_time, region_name, method_name FROM request_history
		 WHERE api_key = $1 AND at_time >= $2 ORDER BY at_time ASC`,
		apiKey, since)
	if err != nil {
		return false, 0, fmt.Errorf("ledger: reading request history: %w", err)
	}
	type entry struct {
		at     time.Time
		region string
		method string
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.at, &e.region, &e.method); err != nil {
			rows.Close()
			return false, 0, fmt.Errorf("ledger: scanning request history: %w", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, 0, err
	}

	for _, q := range quotas {
		windowStart := now.Add(-time.Duration(q.WindowSecs) * time.Second)
		var matching []time.Time
		for _, e := range entries {
			if e.at.Before(windowStart) {
				continue
			}
			if q.Region != "" && e.region != q.Region {
				continue
			}
			if q.Method != "" && e.method != q.Method {
				continue
			}
			matching = append(matching, e.at)
		}
		l.appendLog(q.Region, q.Method, q.WindowSecs, len(matching), q.MaxRequests)
		if len(matching) >= q.MaxRequests {
			sort.Slice(matching, func(i, j int) bool { return matching[i].Before(matching[j]) })
			oldest := matching[0]
			wait := time.Duration(q.WindowSecs)*time.Second - now.Sub(oldest)
			if wait < 0 {
				wait = 0
			}
			return false, wait, nil
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO request_history (at_time, api_key, region_name, method_name, request_uri)
		 VALUES ($1, $2, $3, $4, $5)`,
		now, apiKey, region, method, uri); err != nil {
		return false, 0, fmt.Errorf("ledger: inserting request history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, 0, fmt.Errorf("ledger: committing: %w", err)
	}
	return true, 0, nil
}

func (l *Ledger) recordOnly(ctx context.Context, apiKey, region, method, uri string) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO request_history (at_time, api_key, region_name, method_name, request_uri)
		 VALUES ($1, $2, $3, $4, $5)`,
		l.nowFn(), apiKey, region, method, uri)
	if err != nil {
		return fmt.Errorf("ledger: recording unthrottled request: %w", err)
	}
	return nil
}

// appendLog writes one observability CSV row: timestamp,region,method,window_seconds,current_count,max.
func (l *Ledger) appendLog(region, method string, windowSecs, current, max int) {
	if l.logfile == "" {
		return
	}
	l.logMu.Lock()
	defer l.logMu.Unlock()

	f, err := os.OpenFile(l.logfile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Warn("ledger: failed to open ratelimit logfile", "path", l.logfile, "err", err)
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	_ = w.Write([]string{
		l.nowFn().Format(time.RFC3339),
		region,
		method,
		fmt.Sprintf("%d", windowSecs),
		fmt.Sprintf("%d", current),
		fmt.Sprintf("%d", max),
	})
}

// QuotasFromConfig builds a quotasFn combining app-wide quotas with a
// method-level lookup from config.MethodRateLimits.
func QuotasFromConfig(appQuotas []config.Quota, methodLimits *config.MethodRateLimits) func(region, method string) []Quota {
	return func(region, method string) []Quota {
		var out []Quota
		for _, q := range appQuotas {
			out = append(out, Quota{MaxRequests: q.MaxRequests, WindowSecs: q.WindowSecs, Region: region})
		}
		if methodLimits != nil {
			if mq, ok := methodLimits.GetRateLimit(method, region); ok {
				for _, q := range mq {
					out = append(out, Quota{MaxRequests: q.MaxRequests, WindowSecs: q.WindowSecs, Region: region, Method: method})
				}
			}
		}
		return out
	}
}
