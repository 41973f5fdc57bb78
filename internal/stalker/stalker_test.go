package stalker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Mew-www/lol-data-collection-system/internal/retry"
	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
)

type fakePoller struct {
	mu      sync.Mutex
	byPUUID map[string]*riotapi.ActiveMatch
}

func (f *fakePoller) GetActiveMatch(ctx context.Context, region, platformHost, puuid string) (*riotapi.ActiveMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byPUUID[puuid]
	if !ok {
		return nil, &riotapi.ApiError{StatusCode: 404}
	}
	return m, nil
}

func countingHandoff(counter *int64) PipelineHandoff {
	return func(ctx context.Context, region, matchID string, active *riotapi.ActiveMatch) PipelineOutcome {
		atomic.AddInt64(counter, 1)
		return PipelineOutcome{}
	}
}

// TestPollOnceHandsOffRankedMatchOnce exercises the bloom-filter dedup: a
// second poll round over the same target returns no hit for the
// already-seen match, so RunCycle hands it off only once.
func TestPollOnceHandsOffRankedMatchOnce(t *testing.T) {
	poller := &fakePoller{byPUUID: map[string]*riotapi.ActiveMatch{
		"puuid-1": {GameID: 555, GameQueueConfigID: rankedSoloQueueID},
	}}

	var discoveries int64
	loop := New(poller, retry.New(nil, 0), countingHandoff(&discoveries), nil, 2)
	targets := []Target{{Region: "na1", PlatformHost: "na1", PUUID: "puuid-1"}}

	h1, err := loop.pollOnce(context.Background(), targets)
	if err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if h1 == nil {
		t.Fatal("expected a hit on first round")
	}
	h2, err := loop.pollOnce(context.Background(), targets)
	if err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if h2 != nil {
		t.Error("second round must be deduped by the bloom filter")
	}
}

// TestPollOnceIgnoresNonRankedQueue exercises the queue-420 filter.
func TestPollOnceIgnoresNonRankedQueue(t *testing.T) {
	poller := &fakePoller{byPUUID: map[string]*riotapi.ActiveMatch{
		"puuid-1": {GameID: 1, GameQueueConfigID: 430}, // normal draft, not ranked solo
	}}

	loop := New(poller, retry.New(nil, 0), countingHandoff(new(int64)), nil, 1)
	targets := []Target{{Region: "na1", PlatformHost: "na1", PUUID: "puuid-1"}}

	h, err := loop.pollOnce(context.Background(), targets)
	if err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if h != nil {
		t.Error("expected no hit for a non-ranked queue")
	}
}

// TestPollOnceSkipsPlayersNotInGame exercises the 404-as-absent branch: a
// target with no active game must not error the round or produce a hit.
func TestPollOnceSkipsPlayersNotInGame(t *testing.T) {
	poller := &fakePoller{byPUUID: map[string]*riotapi.ActiveMatch{}}

	loop := New(poller, retry.New(nil, 0), countingHandoff(new(int64)), nil, 1)
	targets := []Target{{Region: "na1", PlatformHost: "na1", PUUID: "puuid-absent"}}

	h, err := loop.pollOnce(context.Background(), targets)
	if err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if h != nil {
		t.Error("expected no hit for an absent target")
	}
}

// TestRunCycleReturnsNotFoundOnExhaustion exercises the 30-min exhaustion
// fallback: RoundsPerCycle rounds against targets that never hit must
// return Found=false without blocking forever.
func TestRunCycleReturnsNotFoundOnExhaustion(t *testing.T) {
	poller := &fakePoller{byPUUID: map[string]*riotapi.ActiveMatch{}}
	loop := New(poller, retry.New(nil, 0), countingHandoff(new(int64)), nil, 1)

	// Shrink the cadence so the test doesn't take 30 minutes.
	savedInterval := RoundInterval
	RoundInterval = 0
	defer func() { RoundInterval = savedInterval }()

	targets := []Target{{Region: "na1", PlatformHost: "na1", PUUID: "puuid-absent"}}
	res, err := loop.RunCycle(context.Background(), targets)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Found {
		t.Error("expected Found=false on exhaustion")
	}
}

// TestRunCycleAdoptsNewTargetsOnHit exercises the hand-off contract: a
// discovered match invokes the handoff exactly once with the match's
// metadata, and RunCycle surfaces whatever outcome the handoff reports.
func TestRunCycleAdoptsNewTargetsOnHit(t *testing.T) {
	active := &riotapi.ActiveMatch{
		GameID:            777,
		GameQueueConfigID: rankedSoloQueueID,
		Participants: []riotapi.ActiveParticipant{
			{PUUID: "puuid-1"}, {PUUID: "puuid-2"},
		},
	}
	poller := &fakePoller{byPUUID: map[string]*riotapi.ActiveMatch{"puuid-1": active}}

	var handoffCalls int64
	handoff := func(ctx context.Context, region, matchID string, a *riotapi.ActiveMatch) PipelineOutcome {
		atomic.AddInt64(&handoffCalls, 1)
		return PipelineOutcome{NewTargets: TargetsFromActiveMatch(region, "na1.api.riotgames.com", a)}
	}
	loop := New(poller, retry.New(nil, 0), handoff, nil, 1)

	res, err := loop.RunCycle(context.Background(), []Target{{Region: "na1", PlatformHost: "na1", PUUID: "puuid-1"}})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !res.Found {
		t.Fatal("expected Found=true")
	}
	if got := atomic.LoadInt64(&handoffCalls); got != 1 {
		t.Errorf("handoff calls = %d, want 1", got)
	}
	if len(res.Outcome.NewTargets) != 2 {
		t.Errorf("new targets = %d, want 2", len(res.Outcome.NewTargets))
	}
}
