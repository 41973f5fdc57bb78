package pipeline

import (
	"context"
	"log/slog"
	"testing"

	"github.com/Mew-www/lol-data-collection-system/internal/retry"
	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
	"github.com/Mew-www/lol-data-collection-system/internal/store"
)

type fakeStore struct {
	regions       map[string]*store.Region
	matches       map[string]*store.HistoricalMatch
	summoners     map[string]*store.Summoner
	tierHistories []store.SummonerTierHistory
	taken         bool
	nextID        int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		regions:   map[string]*store.Region{},
		matches:   map[string]*store.HistoricalMatch{},
		summoners: map[string]*store.Summoner{},
	}
}

func (f *fakeStore) GetOrCreateRegion(ctx context.Context, name string) (*store.Region, error) {
	if r, ok := f.regions[name]; ok {
		return r, nil
	}
	f.nextID++
	r := &store.Region{ID: f.nextID, Name: name}
	f.regions[name] = r
	return r, nil
}

func (f *fakeStore) CreateMatchIfAbsent(ctx context.Context, regionID int64, matchID string) (*store.HistoricalMatch, error) {
	if f.taken {
		return nil, &riotapi.MatchTakenError{MatchID: matchID}
	}
	if _, ok := f.matches[matchID]; ok {
		return nil, &riotapi.MatchTakenError{MatchID: matchID}
	}
	f.nextID++
	m := &store.HistoricalMatch{ID: f.nextID, RegionID: regionID, MatchID: matchID}
	f.matches[matchID] = m
	return m, nil
}

func (f *fakeStore) UpsertSummoner(ctx context.Context, regionID int64, accountID, summonerID, puuid, latestName string) (*store.Summoner, error) {
	if sm, ok := f.summoners[accountID]; ok {
		sm.LatestName = latestName
		return sm, nil
	}
	f.nextID++
	sm := &store.Summoner{ID: f.nextID, RegionID: regionID, AccountID: accountID, SummonerID: summonerID, PUUID: puuid, LatestName: latestName}
	f.summoners[accountID] = sm
	return sm, nil
}

func (f *fakeStore) AppendTierHistory(ctx context.Context, summonerID int64, tier string, tiersJSON []byte) error {
	f.tierHistories = append(f.tierHistories, store.SummonerTierHistory{SummonerID: summonerID, Tier: tier, TiersJSON: tiersJSON})
	return nil
}

func (f *fakeStore) AttachTiers(ctx context.Context, matchPK int64, regionalTierAvg string, metaJSON []byte) error {
	return nil
}
func (f *fakeStore) AttachResult(ctx context.Context, matchPK, gameVersionID int64, gameDuration int64, resultJSON []byte) error {
	return nil
}
func (f *fakeStore) AttachTimeline(ctx context.Context, matchPK int64, timelineJSON []byte) error {
	return nil
}
func (f *fakeStore) AttachHistories(ctx context.Context, matchPK int64, historiesJSON []byte) error {
	return nil
}
func (f *fakeStore) GetOrCreateGameVersion(ctx context.Context, semver string) (*store.GameVersion, error) {
	return &store.GameVersion{ID: 1, Semver: semver}, nil
}

type fakeRiotAPI struct {
	result    *riotapi.MatchResult
	summoners map[string]*riotapi.Summoner
}

func (f *fakeRiotAPI) GetSummoner(ctx context.Context, region, platformHost, puuid string) (*riotapi.Summoner, error) {
	if sm, ok := f.summoners[puuid]; ok {
		return sm, nil
	}
	return &riotapi.Summoner{ID: "summ-" + puuid, AccountID: "acct-" + puuid, PUUID: puuid, Name: puuid}, nil
}

func (f *fakeRiotAPI) GetLeagueEntries(ctx context.Context, region, platformHost, summonerID string) ([]riotapi.LeagueEntry, error) {
	return nil, nil
}
func (f *fakeRiotAPI) GetMatchResult(ctx context.Context, region, matchID string) (*riotapi.MatchResult, error) {
	return f.result, nil
}
func (f *fakeRiotAPI) GetMatchTimeline(ctx context.Context, region, matchID string) (*riotapi.TimelineResponse, error) {
	return &riotapi.TimelineResponse{}, nil
}

func testLogger() *slog.Logger {
	return slog.Default()
}

// TestPipelineExitsOnMatchTaken exercises the TAKEN exit branch: a
// concurrent claim on the same match must not error, just stop cleanly.
func TestPipelineExitsOnMatchTaken(t *testing.T) {
	fs := newFakeStore()
	fs.taken = true

	rc := &RunContext{
		Ctx:     context.Background(),
		Region:  "na1",
		MatchID: "NA1_123",
		Store:   fs,
		Logger:  testLogger(),
	}

	final, err := Run(rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final != StateTaken {
		t.Errorf("final state = %q, want TAKEN", final)
	}
}

// TestPipelineSkipsTimelineAndHistoriesOnRemake exercises the remake
// short-circuit: RESULT must route straight to DONE without a TIMELINE or
// HISTORIES stage running.
func TestPipelineSkipsTimelineAndHistoriesOnRemake(t *testing.T) {
	fs := newFakeStore()
	api := &fakeRiotAPI{result: &riotapi.MatchResult{Info: riotapi.MatchInfo{GameDuration: 120, GameVersion: "14.1.1"}}}

	// Pre-seed the claim so we start straight from RESULT via a custom machine.
	reg, _ := fs.GetOrCreateRegion(context.Background(), "na1")
	m, _ := fs.CreateMatchIfAbsent(context.Background(), reg.ID, "NA1_456")

	rc := &RunContext{
		Ctx:     context.Background(),
		Region:  "na1",
		MatchID: "NA1_456",
		Client:  api,
		Retry:   retry.New(testLogger(), 0),
		Store:   fs,
		Logger:  testLogger(),
	}
	rc.matchPK = m.ID

	mach := NewStateMachine[State](StateDone, StateTaken)
	mach.On(StateResult, result)
	mach.On(StateTimeline, timeline)
	mach.On(StateHistories, histories)

	final, err := mach.Run(StateResult, rc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final != StateDone {
		t.Errorf("final state = %q, want DONE", final)
	}
	if rc.timeline != nil {
		t.Error("expected timeline to be left unfetched for a remake")
	}
}

// TestTiersUpsertsSummonersAndAppendsTierHistory exercises Testable Scenario
// 1: one SummonerTierHistory row per participant must exist after TIERS runs,
// and each participant's Summoner record must be upserted, not just queried
// for league entries.
func TestTiersUpsertsSummonersAndAppendsTierHistory(t *testing.T) {
	fs := newFakeStore()
	reg, _ := fs.GetOrCreateRegion(context.Background(), "na1")
	m, _ := fs.CreateMatchIfAbsent(context.Background(), reg.ID, "NA1_789")

	api := &fakeRiotAPI{}
	rc := &RunContext{
		Ctx:          context.Background(),
		Region:       "na1",
		PlatformHost: "na1.api.riotgames.com",
		PUUIDs:       []string{"puuid-1", "puuid-2"},
		Client:       api,
		Retry:        retry.New(testLogger(), 0),
		Store:        fs,
		Logger:       testLogger(),
	}
	rc.regionID = reg.ID
	rc.matchPK = m.ID

	if _, err := tiers(rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fs.summoners) != 2 {
		t.Errorf("summoners upserted = %d, want 2", len(fs.summoners))
	}
	if len(fs.tierHistories) != 2 {
		t.Errorf("tier history rows = %d, want one per participant", len(fs.tierHistories))
	}
}
