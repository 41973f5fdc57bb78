package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mew-www/lol-data-collection-system/internal/history"
	"github.com/Mew-www/lol-data-collection-system/internal/items"
	"github.com/Mew-www/lol-data-collection-system/internal/lanes"
	"github.com/Mew-www/lol-data-collection-system/internal/retry"
	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
	"github.com/Mew-www/lol-data-collection-system/internal/store"
	"github.com/Mew-www/lol-data-collection-system/internal/tierutil"

	"golang.org/x/sync/errgroup"
)

// State is one node of the match pipeline's state machine.
type State string

const (
	StateClaim    State = "CLAIM"
	StateTiers    State = "TIERS"
	StateWait     State = "WAIT"
	StateResult   State = "RESULT"
	StateTimeline State = "TIMELINE"
	StateHistories State = "HISTORIES"
	StateDone     State = "DONE"
	StateTaken    State = "TAKEN" // match already claimed by another process
)

// RiotAPI is the subset of *riotapi.Client the pipeline calls directly,
// narrowed to an interface so tests can substitute a fake.
type RiotAPI interface {
	GetSummoner(ctx context.Context, region, platformHost, puuid string) (*riotapi.Summoner, error)
	GetLeagueEntries(ctx context.Context, region, platformHost, summonerID string) ([]riotapi.LeagueEntry, error)
	GetMatchResult(ctx context.Context, region, matchID string) (*riotapi.MatchResult, error)
	GetMatchTimeline(ctx context.Context, region, matchID string) (*riotapi.TimelineResponse, error)
}

// Store is the persistence surface the pipeline needs.
type Store interface {
	GetOrCreateRegion(ctx context.Context, name string) (*store.Region, error)
	CreateMatchIfAbsent(ctx context.Context, regionID int64, matchID string) (*store.HistoricalMatch, error)
	UpsertSummoner(ctx context.Context, regionID int64, accountID, summonerID, puuid, latestName string) (*store.Summoner, error)
	AppendTierHistory(ctx context.Context, summonerID int64, tier string, tiersJSON []byte) error
	AttachTiers(ctx context.Context, matchPK int64, regionalTierAvg string, metaJSON []byte) error
	AttachResult(ctx context.Context, matchPK, gameVersionID int64, gameDuration int64, resultJSON []byte) error
	AttachTimeline(ctx context.Context, matchPK int64, timelineJSON []byte) error
	AttachHistories(ctx context.Context, matchPK int64, historiesJSON []byte) error
	GetOrCreateGameVersion(ctx context.Context, semver string) (*store.GameVersion, error)
}

// RunContext carries the state each transition needs: one per match run.
type RunContext struct {
	Ctx context.Context

	Region  string
	MatchID string

	// PUUIDs and PlatformHost come from the active-match poll that discovered
	// this match: the ten participants' puuids, used by TIERS to re-resolve
	// the current summoner record (and from it, current rank) while the
	// match is still in progress.
	PUUIDs       []string
	PlatformHost string

	// GameStartTimeMs is the active-match poll's gameStartTime (epoch ms),
	// used by WAIT to compute the upfront sleep budget.
	GameStartTimeMs int64

	Client  RiotAPI
	Retry   *retry.Envelope
	Store   Store
	Items   *items.Cache
	History *history.Extractor
	Logger  *slog.Logger

	// Now and Sleep default to the real clock; tests override them to avoid
	// sleeping for real.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration)

	OnEnter func(State)

	// accumulated across states
	regionID int64
	matchPK  int64
	result   *riotapi.MatchResult
	timeline *riotapi.TimelineResponse
}

// New builds the CLAIM->...->DONE machine described in SPEC_FULL.md §4.8.
func New() *StateMachine[State] {
	m := NewStateMachine[State](StateDone, StateTaken)
	m.On(StateClaim, claim)
	m.On(StateTiers, tiers)
	m.On(StateWait, wait)
	m.On(StateResult, result)
	m.On(StateTimeline, timeline)
	m.On(StateHistories, histories)
	return m
}

// Run drives one match through the pipeline. A StateTaken exit is not an
// error: another process already owns this match.
func Run(rc *RunContext) (State, error) {
	if rc.Now == nil {
		rc.Now = time.Now
	}
	if rc.Sleep == nil {
		rc.Sleep = realSleep
	}
	return New().Run(StateClaim, rc, rc.OnEnter)
}

func realSleep(ctx context.Context, d time.Duration) {
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

func claim(rc *RunContext) (State, error) {
	reg, err := rc.Store.GetOrCreateRegion(rc.Ctx, rc.Region)
	if err != nil {
		return StateClaim, err
	}
	m, err := rc.Store.CreateMatchIfAbsent(rc.Ctx, reg.ID, rc.MatchID)
	if err != nil {
		var taken *riotapi.MatchTakenError
		if errors.As(err, &taken) {
			rc.Logger.Info("pipeline: match already claimed", "match_id", rc.MatchID)
			return StateTaken, nil
		}
		return StateClaim, err
	}
	rc.regionID = reg.ID
	rc.matchPK = m.ID
	return StateTiers, nil
}

// tiers fans out summoner and league-entry lookups for the match's ten
// participants concurrently, per SPEC_FULL.md §5's TIERS fan-out note and
// §3's append-only SummonerTierHistory snapshot: each participant's current
// Summoner record is re-resolved and upserted, and a tier-history row is
// appended, before the match-level average/meta tier is attached.
func tiers(rc *RunContext) (State, error) {
	// The ten puuids come from the active-match poll performed by the caller
	// that discovered this matchID; TIERS re-resolves their current summoner
	// record and tiers so the snapshot reflects rank at observation time:
	// TIERS runs right after CLAIM, before WAIT, while the match is in
	// progress.
	puuids := rc.PUUIDs
	platformHost := rc.PlatformHost
	if len(puuids) == 0 {
		return StateTiers, fmt.Errorf("pipeline: no puuids on run context for match %s", rc.MatchID)
	}

	tierStrs := make([]string, len(puuids))
	divisions := make([]string, len(puuids))

	g, ctx := errgroup.WithContext(rc.Ctx)
	for i, puuid := range puuids {
		i, puuid := i, puuid
		g.Go(func() error {
			var sm *riotapi.Summoner
			err := rc.Retry.Do(ctx, retry.NotFoundAbsent, func(ctx context.Context) error {
				var innerErr error
				sm, innerErr = rc.Client.GetSummoner(ctx, rc.Region, platformHost, puuid)
				return innerErr
			})
			if errors.Is(err, retry.ErrAbsent) {
				tierStrs[i], divisions[i] = "UNRANKED", ""
				return nil
			}
			if err != nil {
				return err
			}

			stored, err := rc.Store.UpsertSummoner(ctx, rc.regionID, sm.AccountID, sm.ID, sm.PUUID, sm.Name)
			if err != nil {
				return err
			}

			var entries []riotapi.LeagueEntry
			err = rc.Retry.Do(ctx, retry.NotFoundAbsent, func(ctx context.Context) error {
				var innerErr error
				entries, innerErr = rc.Client.GetLeagueEntries(ctx, rc.Region, platformHost, sm.ID)
				return innerErr
			})
			if errors.Is(err, retry.ErrAbsent) {
				tierStrs[i], divisions[i] = "UNRANKED", ""
			} else if err != nil {
				return err
			} else if solo, ok := riotapi.SoloQueueEntry(entries); ok {
				tierStrs[i], divisions[i] = solo.Tier, solo.Rank
			} else {
				tierStrs[i], divisions[i] = "UNRANKED", ""
			}

			tiersJSON, err := json.Marshal(entries)
			if err != nil {
				return err
			}
			soloTier := tierStrs[i]
			if divisions[i] != "" {
				soloTier = fmt.Sprintf("%s %s", tierStrs[i], divisions[i])
			}
			return rc.Store.AppendTierHistory(ctx, stored.ID, soloTier, tiersJSON)
		})
	}
	if err := g.Wait(); err != nil {
		return StateTiers, err
	}

	avg := tierutil.Average(tierStrs, divisions)
	meta, err := json.Marshal(struct {
		Tiers     []string `json:"tiers"`
		Divisions []string `json:"divisions"`
	}{tierStrs, divisions})
	if err != nil {
		return StateTiers, err
	}
	if err := rc.Store.AttachTiers(rc.Ctx, rc.matchPK, avg, meta); err != nil {
		return StateTiers, err
	}
	return StateWait, nil
}

// wait sleeps until the heuristic earliest-possible-finish time before the
// first get_match_result attempt; the 5-min-per-404 poll cadence after that
// lives in the Retry Envelope (NotFoundInProgress), not here. Per SPEC_FULL.md
// §9's open question, this upfront budget is a heuristic, not a known lower
// bound, and an implementer may replace it with backoff under the same
// Retry Envelope semantics.
func wait(rc *RunContext) (State, error) {
	if rc.GameStartTimeMs > 0 {
		earliest := time.UnixMilli(rc.GameStartTimeMs).Add(20 * time.Minute)
		if d := earliest.Sub(rc.Now()); d > 0 {
			rc.Sleep(rc.Ctx, d)
		}
	}
	if err := rc.Ctx.Err(); err != nil {
		return StateWait, err
	}
	return StateResult, nil
}

func result(rc *RunContext) (State, error) {
	var res *riotapi.MatchResult
	err := rc.Retry.Do(rc.Ctx, retry.NotFoundInProgress, func(ctx context.Context) error {
		var innerErr error
		res, innerErr = rc.Client.GetMatchResult(ctx, rc.Region, rc.MatchID)
		return innerErr
	})
	if err != nil {
		return StateResult, err
	}
	rc.result = res

	gv, err := rc.Store.GetOrCreateGameVersion(rc.Ctx, res.Info.GameVersion)
	if err != nil {
		return StateResult, err
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return StateResult, err
	}
	if err := rc.Store.AttachResult(rc.Ctx, rc.matchPK, gv.ID, res.Info.GameDuration, raw); err != nil {
		return StateResult, err
	}

	if res.Info.GameDuration < 300 {
		rc.Logger.Info("pipeline: remake, skipping timeline/histories", "match_id", rc.MatchID)
		return StateDone, nil
	}
	return StateTimeline, nil
}

func timeline(rc *RunContext) (State, error) {
	var tl *riotapi.TimelineResponse
	err := rc.Retry.Do(rc.Ctx, retry.NotFoundAbsent, func(ctx context.Context) error {
		var innerErr error
		tl, innerErr = rc.Client.GetMatchTimeline(ctx, rc.Region, rc.MatchID)
		return innerErr
	})
	if errors.Is(err, retry.ErrAbsent) {
		rc.Logger.Warn("pipeline: timeline absent, continuing without it", "match_id", rc.MatchID)
		return StateHistories, nil
	}
	if err != nil {
		return StateTimeline, err
	}
	rc.timeline = tl

	raw, err := json.Marshal(tl)
	if err != nil {
		return StateTimeline, err
	}
	if err := rc.Store.AttachTimeline(rc.Ctx, rc.matchPK, raw); err != nil {
		return StateTimeline, err
	}
	return StateHistories, nil
}

// histories fans out one rolling-history extraction per participant
// concurrently: each walks that player's own matchlist backward from this
// match's start time, independent of the other nine participants.
func histories(rc *RunContext) (State, error) {
	if rc.result == nil {
		return StateDone, nil
	}

	if _, err := rc.Items.Get(rc.Ctx, rc.result.Info.GameVersion); err != nil {
		var missing *riotapi.MissingStaticDataError
		if errors.As(err, &missing) {
			rc.Logger.Warn("pipeline: items catalogue missing, skipping histories", "semver", rc.result.Info.GameVersion)
			return StateDone, nil
		}
		return StateHistories, err
	}

	participants := rc.result.Info.Participants
	laneByParticipant := lanesForMatch(rc)
	matchTimeMs := rc.result.Info.GameStartTimestamp

	histsByParticipant := make([]*history.ParticipantHistoryStats, len(participants))
	g, ctx := errgroup.WithContext(rc.Ctx)
	for i, p := range participants {
		i, p := i, p
		g.Go(func() error {
			stats, innerErr := rc.History.Extract(ctx, history.ExtractInput{
				Region:      rc.Region,
				PUUID:       p.PUUID,
				ChampionID:  p.ChampionID,
				ReaLane:     laneByParticipant[p.ParticipantID],
				MatchTimeMs: matchTimeMs,
			})
			if innerErr != nil {
				return innerErr
			}
			histsByParticipant[i] = stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return StateHistories, err
	}

	raw, err := json.Marshal(histsByParticipant)
	if err != nil {
		return StateHistories, err
	}
	if err := rc.Store.AttachHistories(rc.Ctx, rc.matchPK, raw); err != nil {
		return StateHistories, err
	}
	return StateDone, nil
}

func lanesForMatch(rc *RunContext) map[int]string {
	if rc.timeline == nil || rc.result == nil {
		return map[int]string{}
	}
	out := map[int]string{}
	for _, teamIDs := range [][5]int{team(rc.result, 100), team(rc.result, 200)} {
		for p, l := range lanes.Infer(rc.result, rc.timeline, teamIDs) {
			out[p] = l
		}
	}
	return out
}

func team(result *riotapi.MatchResult, teamID int) [5]int {
	var ids [5]int
	i := 0
	for _, p := range result.Info.Participants {
		if p.TeamID == teamID && i < 5 {
			ids[i] = p.ParticipantID
			i++
		}
	}
	return ids
}
