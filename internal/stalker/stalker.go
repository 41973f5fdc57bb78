// Package stalker implements the Stalker Loop: a worker pool polling a fixed
// set of target summoners' active-game status on a fixed cadence, handing
// the first newly-discovered ranked-solo match off to the Match Pipeline and
// reporting back how the target list should evolve.
//
// Grounded on the teacher's internal/collector/spider.go: its
// producer/consumer worker-pool shape and bloom-filter dedup are repurposed
// here from "crawl outward from one player across many matches" to "watch N
// fixed targets across many rounds," per SPEC_FULL.md §4.9.
package stalker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/Mew-www/lol-data-collection-system/internal/retry"
	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
)

const (
	// rankedSoloQueueID is the only queue the Stalker Loop hands to the pipeline.
	rankedSoloQueueID = 420

	// RoundInterval and RoundsPerCycle implement the "5x6min rounds" cadence:
	// five polling rounds spaced six minutes apart form one full sweep of
	// every target before the caller falls back to manual target entry.
	RoundsPerCycle = 5
)

var RoundInterval = 6 * time.Minute

// ActivePoller is the subset of *riotapi.Client the loop needs.
type ActivePoller interface {
	GetActiveMatch(ctx context.Context, region, platformHost, puuid string) (*riotapi.ActiveMatch, error)
}

// PipelineOutcome is what driving the Match Pipeline for one discovered
// match reported back.
type PipelineOutcome struct {
	// NewTargets replaces the caller's target list on a clean finish: the
	// ten participant summoners of the match just ingested.
	NewTargets []Target
	// Taken means a concurrent process already owned this match; not an
	// error, the caller drops only the target that triggered the discovery.
	Taken bool
	// Fatal means the pipeline hit an application/method 429: the caller's
	// ledger accounting is wrong and the process should terminate, per
	// SPEC_FULL.md §4.9 step 5.
	Fatal bool
	Err   error
}

// PipelineHandoff drives the Match Pipeline for one newly discovered match
// and reports back what happened. active carries the participant summoner
// ids and game-start time the pipeline's TIERS/WAIT stages need.
type PipelineHandoff func(ctx context.Context, region, matchID string, active *riotapi.ActiveMatch) PipelineOutcome

// Target is one summoner the loop watches.
type Target struct {
	Region       string
	PlatformHost string
	PUUID        string
}

// Loop owns the worker pool and the dedup filter.
type Loop struct {
	client   ActivePoller
	envelope *retry.Envelope
	handoff  PipelineHandoff
	logger   *slog.Logger
	workers  int

	mu          sync.Mutex
	seenMatches *bloom.BloomFilter
}

// New builds a Loop with workers concurrent pollers.
func New(client ActivePoller, envelope *retry.Envelope, handoff PipelineHandoff, logger *slog.Logger, workers int) *Loop {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		client:      client,
		envelope:    envelope,
		handoff:     handoff,
		logger:      logger,
		workers:     workers,
		seenMatches: bloom.NewWithEstimates(200000, 0.001),
	}
}

// hit is one round's discovery, passed from a poller goroutine back to pollOnce.
type hit struct {
	region  string
	matchID string
	active  *riotapi.ActiveMatch
}

// CycleResult is what RunCycle produced after up to RoundsPerCycle rounds.
type CycleResult struct {
	Found   bool
	Outcome PipelineOutcome
	// DroppedTarget is the offending target to remove from the caller's
	// target list, set when Outcome.Taken or Outcome.Err != nil.
	DroppedTarget Target
}

// RunCycle polls targets for up to RoundsPerCycle rounds, RoundInterval
// apart, stopping at the first ranked-solo match discovered ("first hit
// wins", SPEC_FULL.md §4.9 step 1) and driving it through the Match Pipeline.
// Found is false on exhaustion: the caller should fall back to manual target
// entry.
func (l *Loop) RunCycle(ctx context.Context, targets []Target) (CycleResult, error) {
	for round := 0; round < RoundsPerCycle; round++ {
		h, err := l.pollOnce(ctx, targets)
		if err != nil {
			return CycleResult{}, err
		}
		if h != nil {
			outcome := l.handoff(ctx, h.region, h.matchID, h.active)
			dropped := Target{Region: h.region, PUUID: summonerPUUIDOf(h.active, h.region, targets)}
			return CycleResult{Found: true, Outcome: outcome, DroppedTarget: dropped}, nil
		}
		if round < RoundsPerCycle-1 {
			select {
			case <-ctx.Done():
				return CycleResult{}, ctx.Err()
			case <-time.After(RoundInterval):
			}
		}
	}
	return CycleResult{Found: false}, nil
}

// summonerPUUIDOf recovers which watched target triggered the discovery, so
// the caller can drop exactly that one on MatchTaken/error.
func summonerPUUIDOf(active *riotapi.ActiveMatch, region string, targets []Target) string {
	if active == nil {
		return ""
	}
	byPUUID := map[string]bool{}
	for _, p := range active.Participants {
		byPUUID[p.PUUID] = true
	}
	for _, t := range targets {
		if t.Region == region && byPUUID[t.PUUID] {
			return t.PUUID
		}
	}
	return ""
}

// pollOnce fans out one active-match check per target across l.workers
// concurrent goroutines, within one round. It returns the first ranked-solo
// match discovered, if any; remaining in-flight checks are cancelled once a
// hit is found.
func (l *Loop) pollOnce(ctx context.Context, targets []Target) (*hit, error) {
	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan Target)
	found := make(chan hit, 1)
	var wg sync.WaitGroup

	for i := 0; i < l.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				h, ok := l.pollOne(roundCtx, t)
				if !ok {
					continue
				}
				select {
				case found <- h:
					cancel()
				default:
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, t := range targets {
			select {
			case jobs <- t:
			case <-roundCtx.Done():
				return
			}
		}
	}()

	wg.Wait()

	select {
	case h := <-found:
		return &h, nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (l *Loop) pollOne(ctx context.Context, t Target) (hit, bool) {
	var active *riotapi.ActiveMatch
	err := l.envelope.Do(ctx, retry.NotFoundAbsent, func(ctx context.Context) error {
		m, err := l.client.GetActiveMatch(ctx, t.Region, t.PlatformHost, t.PUUID)
		if err != nil {
			return err
		}
		active = m
		return nil
	})
	if errors.Is(err, retry.ErrAbsent) {
		return hit{}, false // not in a game this round
	}
	if err != nil {
		l.logger.Warn("stalker: active-match poll failed", "region", t.Region, "puuid", t.PUUID, "err", err)
		return hit{}, false
	}
	if active.GameQueueConfigID != rankedSoloQueueID {
		return hit{}, false
	}

	matchID := t.Region + "_" + itoa64(active.GameID)
	if l.alreadySeen(matchID) {
		return hit{}, false
	}

	l.logger.Info("stalker: discovered ranked match", "region", t.Region, "match_id", matchID)
	return hit{region: t.Region, matchID: matchID, active: active}, true
}

func (l *Loop) alreadySeen(matchID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seenMatches.TestString(matchID) {
		return true
	}
	l.seenMatches.AddString(matchID)
	return false
}

func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// TargetsFromActiveMatch builds the ten-participant target list adopted
// after a successful ingest, per SPEC_FULL.md §4.9 step 3.
func TargetsFromActiveMatch(region, platformHost string, active *riotapi.ActiveMatch) []Target {
	out := make([]Target, 0, len(active.Participants))
	for _, p := range active.Participants {
		out = append(out, Target{Region: region, PlatformHost: platformHost, PUUID: p.PUUID})
	}
	return out
}
