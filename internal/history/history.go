// Package history implements the History Extractor: a weekly walk backward
// over one player's matchlist, building an aggressiveness/judgment and
// postgame-stat profile as of one match's start time.
//
// Grounded on _examples/original_source/dj_lol_dcs/lolapi/app_lib/utils.py's
// get_stats_history/get_stats_availability/calc_participant_aggressiveness_and_judgment,
// adapted to Go: the 49 named postgame fields tracked here become a
// stat-name -> value map built from an extraction-rule table, rather than
// 49 literal struct fields, since Go has no dict comprehension and a literal
// struct of that size would just be duplicated boilerplate around the same
// table. Per-minute delta stats are not computed.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Mew-www/lol-data-collection-system/internal/fights"
	"github.com/Mew-www/lol-data-collection-system/internal/items"
	"github.com/Mew-www/lol-data-collection-system/internal/lanes"
	"github.com/Mew-www/lol-data-collection-system/internal/retry"
	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
	"github.com/Mew-www/lol-data-collection-system/internal/store"
)

const weekMs = int64(7 * 24 * 60 * 60 * 1000)

// Store is the persistence surface the extractor needs to reuse
// already-ingested matches instead of re-fetching them.
type Store interface {
	GetOrCreateRegion(ctx context.Context, name string) (*store.Region, error)
	GetMatch(ctx context.Context, regionID int64, matchID string) (*store.HistoricalMatch, error)
	CreateMatchIfAbsent(ctx context.Context, regionID int64, matchID string) (*store.HistoricalMatch, error)
	AttachResult(ctx context.Context, matchPK, gameVersionID int64, gameDuration int64, resultJSON []byte) error
	AttachTimeline(ctx context.Context, matchPK int64, timelineJSON []byte) error
	GetOrCreateGameVersion(ctx context.Context, semver string) (*store.GameVersion, error)
}

// Extractor computes one player's rolling history profile.
type Extractor struct {
	Client             *riotapi.Client
	Retry              *retry.Envelope
	Store              Store
	Items              *items.Cache
	Logger             *slog.Logger
	MaxWeeksLookback   int
	MaxGamesLookback   int
}

// ExtractInput identifies the player/lane/moment the profile is built for.
type ExtractInput struct {
	Region      string
	PUUID       string
	ChampionID  int
	ReaLane     string
	MatchTimeMs int64
}

// ParticipantHistoryStats is the profile attached to one participant of the
// match currently being ingested.
type ParticipantHistoryStats struct {
	LanePriority          string  `json:"lane_priority"` // primary, secondary, or autofill
	SoloRatio             float64 `json:"solo_ratio"`
	SoloAggro             float64 `json:"solo_aggro"`
	SkirmishRatio         float64 `json:"skirmish_ratio"`
	SkirmishAggro         float64 `json:"skirmish_aggro"`
	TeamRatio             float64 `json:"team_ratio"`
	TeamAggro             float64 `json:"team_aggro"`
	NumGames              int     `json:"num_games"`
	NumGamesInCurrentLane int     `json:"num_games_in_current_lane"`
	PreviousGameWon       int     `json:"previous_game_won"` // -1 loss, +1 win, 0 no info
	ConsecutiveWins       int     `json:"consecutive_wins"`
	ConsecutiveLosses     int     `json:"consecutive_losses"`

	// TotalStats are per-game-average values over every non-remake game in
	// the lookback window that the player played on ChampionID; LaneStats are
	// the same average restricted to those games played in ReaLane. Keys are the extractionRules names below.
	TotalStats map[string]float64 `json:"total_stats"`
	LaneStats  map[string]float64 `json:"lane_stats"`
}

// extractionRules mirrors participant_postgame_extraction_rules: one
// stat-name -> value function per postgame field we track.
var extractionRules = map[string]func(riotapi.MatchParticipant) float64{
	"gold_earned":                        func(p riotapi.MatchParticipant) float64 { return float64(p.GoldEarned) },
	"gold_spent":                         func(p riotapi.MatchParticipant) float64 { return float64(p.GoldSpent) },
	"damage_to_champions_total":          func(p riotapi.MatchParticipant) float64 { return float64(p.TotalDamageDealtToChampions) },
	"damage_to_champions_truetype":       func(p riotapi.MatchParticipant) float64 { return float64(p.TrueDamageDealtToChampions) },
	"damage_to_champions_physical":       func(p riotapi.MatchParticipant) float64 { return float64(p.PhysicalDamageDealtToChampions) },
	"damage_to_champions_magical":        func(p riotapi.MatchParticipant) float64 { return float64(p.MagicDamageDealtToChampions) },
	"kills":                              func(p riotapi.MatchParticipant) float64 { return float64(p.Kills) },
	"assists":                            func(p riotapi.MatchParticipant) float64 { return float64(p.Assists) },
	"deaths":                             func(p riotapi.MatchParticipant) float64 { return float64(p.Deaths) },
	"double_kills":                       func(p riotapi.MatchParticipant) float64 { return float64(p.DoubleKills) },
	"triple_kills":                       func(p riotapi.MatchParticipant) float64 { return float64(p.TripleKills) },
	"quadra_kills":                       func(p riotapi.MatchParticipant) float64 { return float64(p.QuadraKills) },
	"penta_kills":                        func(p riotapi.MatchParticipant) float64 { return float64(p.PentaKills) },
	"hexa_kills":                         func(p riotapi.MatchParticipant) float64 { return float64(p.UnrealKills) },
	"max_kill_num_multikill":             func(p riotapi.MatchParticipant) float64 { return float64(p.LargestMultiKill) },
	"killing_sprees":                     func(p riotapi.MatchParticipant) float64 { return float64(p.KillingSprees) },
	"max_kill_num_killingspree":          func(p riotapi.MatchParticipant) float64 { return float64(p.LargestKillingSpree) },
	"damage_taken_total":                 func(p riotapi.MatchParticipant) float64 { return float64(p.TotalDamageTaken) },
	"damage_taken_truetype":              func(p riotapi.MatchParticipant) float64 { return float64(p.TrueDamageTaken) },
	"damage_taken_physical":              func(p riotapi.MatchParticipant) float64 { return float64(p.PhysicalDamageTaken) },
	"damage_taken_magical":               func(p riotapi.MatchParticipant) float64 { return float64(p.MagicDamageTaken) },
	"damage_taken_mitigated":             func(p riotapi.MatchParticipant) float64 { return float64(p.DamageSelfMitigated) },
	"longest_time_living":                func(p riotapi.MatchParticipant) float64 { return float64(p.LongestTimeSpentLiving) },
	"damage_healed":                      func(p riotapi.MatchParticipant) float64 { return float64(p.TotalHeal) },
	"targets_healed":                     func(p riotapi.MatchParticipant) float64 { return float64(p.TotalUnitsHealed) },
	"wards_placed":                       func(p riotapi.MatchParticipant) float64 { return float64(p.WardsPlaced) },
	"wards_killed":                       func(p riotapi.MatchParticipant) float64 { return float64(p.WardsKilled) },
	"normal_wards_bought":                func(p riotapi.MatchParticipant) float64 { return float64(p.SightWardsBoughtInGame) },
	"control_wards_bought":                func(p riotapi.MatchParticipant) float64 { return float64(p.VisionWardsBoughtInGame) },
	"player_score_vision":                func(p riotapi.MatchParticipant) float64 { return float64(p.VisionScore) },
	"damage_to_turrets_total":            func(p riotapi.MatchParticipant) float64 { return float64(p.DamageDealtToTurrets) },
	"damage_to_pit_monsters_total":       func(p riotapi.MatchParticipant) float64 { return float64(p.DamageDealtToObjectives - p.DamageDealtToTurrets) },
	"damage_to_creeps_and_wards_total":   func(p riotapi.MatchParticipant) float64 { return float64(p.TotalDamageDealt - p.TotalDamageDealtToChampions - p.DamageDealtToObjectives) },
	"turrets_killed":                     func(p riotapi.MatchParticipant) float64 { return float64(p.TurretKills) },
	"inhibitors_killed":                  func(p riotapi.MatchParticipant) float64 { return float64(p.InhibitorKills) },
	"damage_largest_criticalstrike":      func(p riotapi.MatchParticipant) float64 { return float64(p.LargestCriticalStrike) },
	"minions_killed_total":               func(p riotapi.MatchParticipant) float64 { return float64(p.TotalMinionsKilled) },
	"minions_killed_jungle":              func(p riotapi.MatchParticipant) float64 { return float64(p.NeutralMinionsKilled) },
	"minions_killed_jungle_allyside":     func(p riotapi.MatchParticipant) float64 { return float64(p.NeutralMinionsKilledTeamJungle) },
	"minions_killed_jungle_enemyside":    func(p riotapi.MatchParticipant) float64 { return float64(p.NeutralMinionsKilledEnemyJungle) },
	"cc_score_applied_pre_mitigation":    func(p riotapi.MatchParticipant) float64 { return float64(p.TotalTimeCCDealt) },
	"cc_score_applied_post_mitigation":   func(p riotapi.MatchParticipant) float64 { return float64(p.TimeCCingOthers) },
	"scored_first_blood_kill":            boolStat(func(p riotapi.MatchParticipant) bool { return p.FirstBloodKill }),
	"scored_first_blood_assist":          boolStat(func(p riotapi.MatchParticipant) bool { return p.FirstBloodAssist }),
	"scored_first_tower_kill":            boolStat(func(p riotapi.MatchParticipant) bool { return p.FirstTowerKill }),
	"scored_first_tower_assist":          boolStat(func(p riotapi.MatchParticipant) bool { return p.FirstTowerAssist }),
	"scored_first_inhibitor_kill":        boolStat(func(p riotapi.MatchParticipant) bool { return p.FirstInhibitorKill }),
	"scored_first_inhibitor_assist":      boolStat(func(p riotapi.MatchParticipant) bool { return p.FirstInhibitorAssist }),
	"champion_level":                     func(p riotapi.MatchParticipant) float64 { return float64(p.ChampLevel) },
}

func boolStat(f func(riotapi.MatchParticipant) bool) func(riotapi.MatchParticipant) float64 {
	return func(p riotapi.MatchParticipant) float64 {
		if f(p) {
			return 1
		}
		return 0
	}
}

// Extract walks up to MaxWeeksLookback weeks of in.PUUID's matchlist,
// building the rolling profile described above. Remakes are excluded from
// every count per SPEC_FULL.md §3.
func (e *Extractor) Extract(ctx context.Context, in ExtractInput) (*ParticipantHistoryStats, error) {
	lanesSeen := map[string]int{"TOP": 0, "JUNGLE": 0, "MID": 0, "BOTTOM": 0, "SUPPORT": 0}

	var numGames, numGamesInLane int
	var previousGameWon int
	var winning *bool
	var consecWins, consecLosses int

	totalSums := map[string]float64{}
	totalCounts := map[string]int{}
	laneSums := map[string]float64{}
	laneCounts := map[string]int{}
	var gamesWithFighting [][]fights.Record

	region, err := e.Store.GetOrCreateRegion(ctx, in.Region)
	if err != nil {
		return nil, err
	}

	for week := 0; week < e.MaxWeeksLookback; week++ {
		endTimeS := (in.MatchTimeMs - 1000 - int64(week)*weekMs) / 1000
		startTimeS := endTimeS - weekMs/1000

		var matchIDs []string
		err := e.Retry.Do(ctx, retry.NotFoundAbsent, func(ctx context.Context) error {
			var innerErr error
			matchIDs, innerErr = e.Client.GetMatchlist(ctx, in.Region, in.PUUID, startTimeS, endTimeS)
			return innerErr
		})
		if errors.Is(err, retry.ErrAbsent) {
			continue // no matches that week; the window is explicit, keep scanning
		}
		if err != nil {
			return nil, fmt.Errorf("history: fetching week %d matchlist: %w", week, err)
		}

		for _, matchID := range matchIDs {
			if numGames >= e.MaxGamesLookback {
				break
			}
			numGames++

			result, timeline, err := e.getOrIngestMatch(ctx, region.ID, in.Region, matchID)
			if err != nil {
				return nil, err
			}
			if result.Info.GameDuration < 300 {
				numGames--
				continue
			}

			laneByParticipant := laneForMatch(result, timeline)
			var p riotapi.MatchParticipant
			found := false
			for _, cand := range result.Info.Participants {
				if cand.PUUID == in.PUUID && cand.ChampionID == in.ChampionID {
					p = cand
					found = true
					break
				}
			}
			if !found {
				continue
			}
			laneThen := laneByParticipant[p.ParticipantID]
			if laneThen == in.ReaLane {
				numGamesInLane++
			}
			lanesSeen[laneThen]++

			if timeline != nil {
				var cat *items.Catalogue
				if e.Items != nil {
					cat, _ = e.Items.Get(ctx, result.Info.GameVersion)
				}
				gamesWithFighting = append(gamesWithFighting, fights.Cluster(result, timeline, cat, p.ParticipantID))
			}

			for name, fn := range extractionRules {
				v := fn(p)
				totalSums[name] += v
				totalCounts[name]++
				if laneThen == in.ReaLane {
					laneSums[name] += v
					laneCounts[name]++
				}
			}

			won := p.Win
			if previousGameWon == 0 {
				if won {
					previousGameWon = 1
				} else {
					previousGameWon = -1
				}
			}
			if winning == nil {
				w := won
				winning = &w
			} else if *winning {
				if won {
					consecWins++
				} else {
					*winning = false
					consecWins = 0
				}
			} else {
				if !won {
					consecLosses++
				} else {
					*winning = true
					consecLosses = 0
				}
			}
		}
	}

	primaryLane, secondaryLane := topTwoLanes(lanesSeen)
	lanePriority := "autofill"
	if in.ReaLane == primaryLane {
		lanePriority = "primary"
	} else if in.ReaLane == secondaryLane {
		lanePriority = "secondary"
	}

	aggro := calcAggressivenessAndJudgment(gamesWithFighting)

	stats := &ParticipantHistoryStats{
		LanePriority:          lanePriority,
		SoloRatio:             aggro["solo"].ratio,
		SoloAggro:             aggro["solo"].aggro,
		SkirmishRatio:         aggro["skirmish"].ratio,
		SkirmishAggro:         aggro["skirmish"].aggro,
		TeamRatio:             aggro["team"].ratio,
		TeamAggro:             aggro["team"].aggro,
		NumGames:              numGames,
		NumGamesInCurrentLane: numGamesInLane,
		PreviousGameWon:       previousGameWon,
		ConsecutiveWins:       consecWins,
		ConsecutiveLosses:     consecLosses,
		TotalStats:            average(totalSums, totalCounts),
		LaneStats:             average(laneSums, laneCounts),
	}
	return stats, nil
}

func average(sums map[string]float64, counts map[string]int) map[string]float64 {
	out := make(map[string]float64, len(sums))
	for name := range extractionRules {
		if c := counts[name]; c > 0 {
			out[name] = sums[name] / float64(c)
		} else {
			out[name] = 0
		}
	}
	return out
}

func topTwoLanes(seen map[string]int) (primary, secondary string) {
	type kv struct {
		k string
		v int
	}
	var sorted []kv
	for k, v := range seen {
		sorted = append(sorted, kv{k, v})
	}
	// stable-ish selection: two passes over a small fixed-size map, order
	// doesn't need to be deterministic across ties since this only feeds a
	// primary/secondary/autofill label, not a ranked output.
	best, second := -1, -1
	for _, e := range sorted {
		if e.v > best {
			second = best
			secondary = primary
			best = e.v
			primary = e.k
		} else if e.v > second {
			second = e.v
			secondary = e.k
		}
	}
	return primary, secondary
}

type fightAgg struct {
	ratio float64
	aggro float64
}

// calcAggressivenessAndJudgment classifies each clustered fight by ally-set
// size (solo=1, skirmish=2-3, team=4+) and by whether the focal player's
// side won, tied, or lost it, per SPEC_FULL.md §4.7.
func calcAggressivenessAndJudgment(pastGames [][]fights.Record) map[string]fightAgg {
	out := map[string]fightAgg{"solo": {}, "skirmish": {}, "team": {}}
	if len(pastGames) == 0 {
		return out
	}

	type bucket struct{ wins, neutrals, losses int }
	buckets := map[string]*bucket{"solo": {}, "skirmish": {}, "team": {}}

	for _, game := range pastGames {
		for _, rec := range game {
			outcome := countIn(rec.Victims, rec.Enemies) - countIn(rec.Victims, rec.Allies)
			kind := fightKind(len(rec.Allies))
			b := buckets[kind]
			switch {
			case outcome > 0:
				b.wins++
			case outcome == 0:
				b.neutrals++
			default:
				b.losses++
			}
		}
	}

	for kind, b := range buckets {
		out[kind] = fightAgg{
			ratio: float64(b.wins-b.losses) / float64(len(pastGames)),
			aggro: float64(b.wins+b.neutrals+b.losses) / float64(len(pastGames)),
		}
	}
	return out
}

func fightKind(allyCount int) string {
	switch {
	case allyCount == 1:
		return "solo"
	case allyCount < 4:
		return "skirmish"
	default:
		return "team"
	}
}

func countIn(victims, side map[int]bool) int {
	n := 0
	for v := range victims {
		if side[v] {
			n++
		}
	}
	return n
}

// getOrIngestMatch implements the get-or-create-with-reread pattern: read an
// already-ingested match first, falling back to a live fetch (and a claim
// attempt, tolerating MatchTakenError from a racing pipeline run) on miss.
func (e *Extractor) getOrIngestMatch(ctx context.Context, regionID int64, regionName, matchID string) (*riotapi.MatchResult, *riotapi.TimelineResponse, error) {
	existing, err := e.Store.GetMatch(ctx, regionID, matchID)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil && existing.MatchResultJSON != nil {
		result, err := decodeResult(existing.MatchResultJSON)
		if err != nil {
			return nil, nil, err
		}
		var timeline *riotapi.TimelineResponse
		if existing.MatchTimelineJSON != nil {
			timeline, err = decodeTimeline(existing.MatchTimelineJSON)
			if err != nil {
				return nil, nil, err
			}
		}
		return result, timeline, nil
	}

	var result *riotapi.MatchResult
	err = e.Retry.Do(ctx, retry.NotFoundInProgress, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = e.Client.GetMatchResult(ctx, regionName, matchID)
		return innerErr
	})
	if err != nil {
		return nil, nil, fmt.Errorf("history: fetching match %s: %w", matchID, err)
	}

	var timeline *riotapi.TimelineResponse
	if result.Info.GameDuration >= 300 {
		err = e.Retry.Do(ctx, retry.NotFoundAbsent, func(ctx context.Context) error {
			var innerErr error
			timeline, innerErr = e.Client.GetMatchTimeline(ctx, regionName, matchID)
			return innerErr
		})
		if errors.Is(err, retry.ErrAbsent) {
			timeline = nil
		} else if err != nil {
			return nil, nil, fmt.Errorf("history: fetching timeline %s: %w", matchID, err)
		}
	}

	m, err := e.Store.CreateMatchIfAbsent(ctx, regionID, matchID)
	if err != nil {
		var taken *riotapi.MatchTakenError
		if !errors.As(err, &taken) {
			return nil, nil, err
		}
		// Lost the race to a concurrent pipeline run: the row already exists,
		// re-read and trust whatever it has (it will be at least as complete).
		existing, rereadErr := e.Store.GetMatch(ctx, regionID, matchID)
		if rereadErr != nil {
			return nil, nil, rereadErr
		}
		if existing != nil && existing.MatchResultJSON != nil {
			result, _ = decodeResult(existing.MatchResultJSON)
		}
		return result, timeline, nil
	}

	gv, err := e.Store.GetOrCreateGameVersion(ctx, result.Info.GameVersion)
	if err != nil {
		return nil, nil, err
	}
	resultRaw, err := json.Marshal(result)
	if err != nil {
		return nil, nil, err
	}
	if err := e.Store.AttachResult(ctx, m.ID, gv.ID, result.Info.GameDuration, resultRaw); err != nil {
		return nil, nil, err
	}
	if timeline != nil {
		timelineRaw, err := json.Marshal(timeline)
		if err != nil {
			return nil, nil, err
		}
		if err := e.Store.AttachTimeline(ctx, m.ID, timelineRaw); err != nil {
			return nil, nil, err
		}
	}

	return result, timeline, nil
}

func laneForMatch(result *riotapi.MatchResult, timeline *riotapi.TimelineResponse) map[int]string {
	if timeline == nil {
		return map[int]string{}
	}
	out := map[int]string{}
	for _, teamID := range []int{100, 200} {
		var ids [5]int
		i := 0
		for _, p := range result.Info.Participants {
			if p.TeamID == teamID && i < 5 {
				ids[i] = p.ParticipantID
				i++
			}
		}
		for p, l := range lanes.Infer(result, timeline, ids) {
			out[p] = l
		}
	}
	return out
}

func decodeResult(raw []byte) (*riotapi.MatchResult, error) {
	var r riotapi.MatchResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("history: decoding stored match result: %w", err)
	}
	return &r, nil
}

func decodeTimeline(raw []byte) (*riotapi.TimelineResponse, error) {
	var t riotapi.TimelineResponse
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("history: decoding stored timeline: %w", err)
	}
	return &t, nil
}
