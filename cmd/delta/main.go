// Command delta walks already-ingested ladder matches and computes
// kills/deaths/assists deltas across each participant's last few games on
// the same champion+lane, supplementing the distilled spec with a feature
// present in the original implementation and dropped by the distillation.
//
// Grounded on
// _examples/original_source/dj_lol_dcs/find_recurrent_delta_across_n_games.py:
// same tier/semver/start-index/total-matches/total-parsed flag surface and
// delta2/delta3/delta4 rolling-average shape, reusing the Endpoint
// Catalog/API Client/Quota Ledger directly rather than going through the
// Match Pipeline.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/Mew-www/lol-data-collection-system/internal/catalog"
	"github.com/Mew-www/lol-data-collection-system/internal/config"
	"github.com/Mew-www/lol-data-collection-system/internal/ledger"
	"github.com/Mew-www/lol-data-collection-system/internal/retry"
	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
	"github.com/Mew-www/lol-data-collection-system/internal/store"
)

const weekMs = int64(7 * 24 * 60 * 60 * 1000)

type gameStats struct {
	Kills, Deaths, Assists int
}

// avgStats is a rolling average over N games; averaging integer k/d/a over
// an odd window is fractional, so unlike gameStats this is float64.
type avgStats struct {
	Kills, Deaths, Assists float64
}

type targetAndDeltas struct {
	Match  gameStats `json:"match"`
	Delta2 *avgStats `json:"delta2,omitempty"`
	Delta3 *avgStats `json:"delta3,omitempty"`
	Delta4 *avgStats `json:"delta4,omitempty"`
}

type participantResult struct {
	Identifier string                       `json:"identifier"`
	ByLaneRole map[string][]targetAndDeltas `json:"by_lane_role"`
}

func main() {
	var tiers []string
	var semver string
	var startIndex, totalMatches, totalParsed int
	var ratelimitLogfile string

	cmd := &cobra.Command{
		Use:   "delta",
		Short: "Compute k/d/a deltas across a window of each participant's recent games",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), tiers, semver, startIndex, totalMatches, totalParsed, ratelimitLogfile)
		},
	}
	cmd.Flags().StringArrayVar(&tiers, "tier", []string{"MASTER", "CHALLENGER"}, "target ladder tier (repeatable)")
	cmd.Flags().StringVar(&semver, "semver", "", "target game version major.minor (required)")
	cmd.Flags().IntVar(&startIndex, "start-index", 0, "offset into the matched rows")
	cmd.Flags().IntVar(&totalMatches, "total-matches", 2, "number of matching rows to process")
	cmd.Flags().IntVar(&totalParsed, "total-parsed", 0, "cap on same-champion games parsed per participant (0 = unbounded)")
	cmd.Flags().StringVar(&ratelimitLogfile, "ratelimit-logfile", "", "override RATELIMIT_LOGFILE for the quota observability log")
	cmd.MarkFlagRequired("semver")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "delta: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, tiers []string, semver string, startIndex, totalMatches, totalParsed int, logfileFlag string) error {
	env, err := config.Load()
	if err != nil {
		return err
	}
	logger := config.NewLogger(env)

	logfile := env.RatelimitLogfile
	if logfileFlag != "" {
		logfile = logfileFlag
	}

	st, err := store.New(ctx, env.DatabaseURL)
	if err != nil {
		return fmt.Errorf("delta: connecting to store: %w", err)
	}
	defer st.Close()

	ledgerPool := st.Pool()
	if env.LedgerDatabaseURL != env.DatabaseURL {
		ledgerPool, err = pgxpool.New(ctx, env.LedgerDatabaseURL)
		if err != nil {
			return fmt.Errorf("delta: connecting to ledger database: %w", err)
		}
		defer ledgerPool.Close()
	}

	methodLimits, err := config.LoadMethodRateLimits(env.MethodLimitsFile)
	if err != nil {
		return fmt.Errorf("delta: loading method rate limits: %w", err)
	}
	appQuotas, err := config.AppRateLimits()
	if err != nil {
		return fmt.Errorf("delta: loading app rate limits: %w", err)
	}

	led := ledger.New(ledgerPool, logfile, ledger.QuotasFromConfig(appQuotas, methodLimits))
	client := riotapi.New(env.RiotAPIKey, catalog.New(), led, appQuotas)
	envelope := retry.New(logger, 2)

	rows, err := st.FindMatchesByTierAndVersion(ctx, tiers, semver, startIndex, totalMatches)
	if err != nil {
		return fmt.Errorf("delta: listing matches: %w", err)
	}

	var results []participantResult
	for i, row := range rows {
		var m riotapi.MatchResult
		if err := json.Unmarshal(row.Match.MatchResultJSON, &m); err != nil {
			logger.Warn("delta: decoding match result failed", "match_id", row.Match.MatchID, "err", err)
			continue
		}

		for _, p := range m.Info.Participants {
			identifier := fmt.Sprintf("match %d, participant %s on champion %d (%s)",
				m.Info.GameID, p.PUUID, p.ChampionID, p.TeamPosition)
			logger.Info("delta: fetching matchlist for participant", "identifier", identifier)

			historical, ok := collectSameChampionGames(ctx, client, envelope, logger, row.RegionName, p, m.Info.GameStartTimestamp, totalParsed)
			if !ok || len(historical) == 0 {
				continue
			}

			byLaneRole := map[string][]targetAndDeltas{}
			for lane, games := range historical {
				byLaneRole[lane] = deltasForLane(games)
			}
			results = append(results, participantResult{Identifier: identifier, ByLaneRole: byLaneRole})
		}

		logger.Info("delta: processed match", "done", i+1, "total", len(rows))
	}

	out, err := os.Create("deltas.json")
	if err != nil {
		return fmt.Errorf("delta: creating output file: %w", err)
	}
	defer out.Close()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// collectSameChampionGames walks up to three weeks of the participant's
// matchlist before referenceTimeMs, fetching each same-champion match's
// result and grouping its k/d/a by lane, stopping early at totalParsed if set.
func collectSameChampionGames(ctx context.Context, client *riotapi.Client, envelope *retry.Envelope, logger interface {
	Warn(string, ...any)
}, region string, p riotapi.MatchParticipant, referenceTimeMs int64, totalParsed int) (map[string][]gameStats, bool) {
	byLane := map[string][]gameStats{}
	parsed := 0
	referenceS := (referenceTimeMs - 1000) / 1000

	for week := 1; week <= 3; week++ {
		endS := referenceS - int64(week-1)*weekMs/1000
		beginS := referenceS - int64(week)*weekMs/1000

		var ids []string
		err := envelope.Do(ctx, retry.NotFoundAbsent, func(ctx context.Context) error {
			var innerErr error
			ids, innerErr = client.GetMatchlist(ctx, region, p.PUUID, beginS, endS)
			return innerErr
		})
		if errors.Is(err, retry.ErrAbsent) {
			break
		}
		if err != nil {
			var apiErr *riotapi.ApiError
			if errors.As(err, &apiErr) && apiErr.IsApplicationOrMethodRateLimit() {
				logger.Warn("delta: fatal rate limit during matchlist walk", "err", err)
				return nil, false
			}
			logger.Warn("delta: matchlist fetch failed", "puuid", p.PUUID, "err", err)
			break
		}

		for _, matchID := range ids {
			var result *riotapi.MatchResult
			err := envelope.Do(ctx, retry.NotFoundAbsent, func(ctx context.Context) error {
				var innerErr error
				result, innerErr = client.GetMatchResult(ctx, region, matchID)
				return innerErr
			})
			if err != nil {
				logger.Warn("delta: match result fetch failed", "match_id", matchID, "err", err)
				continue
			}

			for _, other := range result.Info.Participants {
				if other.PUUID != p.PUUID || other.ChampionID != p.ChampionID {
					continue
				}
				byLane[other.TeamPosition] = append(byLane[other.TeamPosition], gameStats{
					Kills: other.Kills, Deaths: other.Deaths, Assists: other.Assists,
				})
				parsed++
			}
			if totalParsed > 0 && parsed >= totalParsed {
				return byLane, true
			}
		}
		if totalParsed > 0 && parsed >= totalParsed {
			break
		}
	}
	return byLane, true
}

// deltasForLane builds the rolling 2/3/4-game averages the original script
// attaches to each game once enough preceding games exist.
func deltasForLane(games []gameStats) []targetAndDeltas {
	out := make([]targetAndDeltas, len(games))
	for idx, g := range games {
		td := targetAndDeltas{Match: g}
		if idx-2 >= 0 {
			td.Delta2 = average(games, idx, 2)
		}
		if idx-3 >= 0 {
			td.Delta3 = average(games, idx, 3)
		}
		if idx-4 >= 0 {
			td.Delta4 = average(games, idx, 4)
		}
		out[idx] = td
	}
	return out
}

func average(games []gameStats, idx, n int) *avgStats {
	var sum gameStats
	for i := 0; i < n; i++ {
		g := games[idx-1-i]
		sum.Kills += g.Kills
		sum.Deaths += g.Deaths
		sum.Assists += g.Assists
	}
	return &avgStats{
		Kills:   float64(sum.Kills) / float64(n),
		Deaths:  float64(sum.Deaths) / float64(n),
		Assists: float64(sum.Assists) / float64(n),
	}
}
