// Command stalker runs the Stalker Loop: it watches a small set of target
// summoners for an active ranked-solo game and drives each discovery through
// the Match Pipeline, per SPEC_FULL.md §4.9.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Mew-www/lol-data-collection-system/internal/catalog"
	"github.com/Mew-www/lol-data-collection-system/internal/config"
	"github.com/Mew-www/lol-data-collection-system/internal/history"
	"github.com/Mew-www/lol-data-collection-system/internal/items"
	"github.com/Mew-www/lol-data-collection-system/internal/ledger"
	"github.com/Mew-www/lol-data-collection-system/internal/pipeline"
	"github.com/Mew-www/lol-data-collection-system/internal/retry"
	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
	"github.com/Mew-www/lol-data-collection-system/internal/stalker"
	"github.com/Mew-www/lol-data-collection-system/internal/store"
)

func main() {
	region := flag.String("region", "", "platform region to stalk, e.g. NA, EUW, KR (required)")
	ratelimitLogfile := flag.String("ratelimit-logfile", "", "override RATELIMIT_LOGFILE for the quota observability log")
	flag.Parse()

	if *region == "" {
		fmt.Fprintln(os.Stderr, "usage: stalker --region=NA")
		os.Exit(2)
	}

	env, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stalker: %v\n", err)
		os.Exit(1)
	}
	logger := config.NewLogger(env)

	logfile := env.RatelimitLogfile
	if *ratelimitLogfile != "" {
		logfile = *ratelimitLogfile
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.New(ctx, env.DatabaseURL)
	if err != nil {
		logger.Error("stalker: connecting to store failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	ledgerPool := st.Pool()
	if env.LedgerDatabaseURL != env.DatabaseURL {
		ledgerPool, err = pgxpool.New(ctx, env.LedgerDatabaseURL)
		if err != nil {
			logger.Error("stalker: connecting to ledger database failed", "err", err)
			os.Exit(1)
		}
		defer ledgerPool.Close()
	}

	methodLimits, err := config.LoadMethodRateLimits(env.MethodLimitsFile)
	if err != nil {
		logger.Error("stalker: loading method rate limits failed", "err", err)
		os.Exit(1)
	}
	appQuotas, err := config.AppRateLimits()
	if err != nil {
		logger.Error("stalker: loading app rate limits failed", "err", err)
		os.Exit(1)
	}

	led := ledger.New(ledgerPool, logfile, ledger.QuotasFromConfig(appQuotas, methodLimits))
	cat := catalog.New()
	client := riotapi.New(env.RiotAPIKey, cat, led, appQuotas)
	envelope := retry.New(logger, 3)
	itemsCache := items.NewCache(st)
	extractor := &history.Extractor{
		Client:           client,
		Retry:            envelope,
		Store:            st,
		Items:            itemsCache,
		Logger:           logger,
		MaxWeeksLookback: 8,
		MaxGamesLookback: 100,
	}

	platformHost, err := cat.HostForRegion(*region)
	if err != nil {
		logger.Error("stalker: unknown region", "region", *region, "err", err)
		os.Exit(1)
	}

	handoff := func(ctx context.Context, region, matchID string, active *riotapi.ActiveMatch) stalker.PipelineOutcome {
		puuids := make([]string, 0, len(active.Participants))
		for _, p := range active.Participants {
			puuids = append(puuids, p.PUUID)
		}
		rc := &pipeline.RunContext{
			Ctx:             ctx,
			Region:          region,
			MatchID:         matchID,
			PUUIDs:          puuids,
			PlatformHost:    platformHost,
			GameStartTimeMs: active.GameStartTime,
			Client:          client,
			Retry:           envelope,
			Store:           st,
			Items:           itemsCache,
			History:         extractor,
			Logger:          logger,
		}
		final, err := pipeline.Run(rc)
		if final == pipeline.StateTaken {
			return stalker.PipelineOutcome{Taken: true}
		}
		if err != nil {
			var apiErr *riotapi.ApiError
			if errors.As(err, &apiErr) && apiErr.IsApplicationOrMethodRateLimit() {
				return stalker.PipelineOutcome{Fatal: true, Err: err}
			}
			return stalker.PipelineOutcome{Err: err}
		}
		return stalker.PipelineOutcome{NewTargets: stalker.TargetsFromActiveMatch(region, platformHost, active)}
	}

	loop := stalker.New(client, envelope, handoff, logger, 4)

	targets := bootstrapTargets(ctx, client, cat, *region, logger)
	if len(targets) == 0 {
		logger.Error("stalker: no targets to watch, exiting")
		os.Exit(1)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("stalker: shutting down")
			return
		default:
		}

		res, err := loop.RunCycle(ctx, targets)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("stalker: cycle failed", "err", err)
			os.Exit(1)
		}

		if !res.Found {
			logger.Info("stalker: exhausted cycle with no discovery, falling back to manual entry")
			targets = bootstrapTargets(ctx, client, cat, *region, logger)
			continue
		}

		if res.Outcome.Fatal {
			logger.Error("stalker: fatal application/method rate limit from pipeline, terminating", "err", res.Outcome.Err)
			os.Exit(1)
		}
		if res.Outcome.Taken || res.Outcome.Err != nil {
			targets = dropTarget(targets, res.DroppedTarget)
			if res.Outcome.Err != nil {
				logger.Warn("stalker: pipeline reported a non-fatal error, dropping target", "err", res.Outcome.Err)
			}
			if len(targets) == 0 {
				targets = bootstrapTargets(ctx, client, cat, *region, logger)
			}
			continue
		}
		if len(res.Outcome.NewTargets) > 0 {
			targets = res.Outcome.NewTargets
		}
	}
}

func dropTarget(targets []stalker.Target, drop stalker.Target) []stalker.Target {
	out := targets[:0]
	for _, t := range targets {
		if t.PUUID == drop.PUUID {
			continue
		}
		out = append(out, t)
	}
	return out
}

// bootstrapTargets prompts the operator for a starting Riot ID, per
// SPEC_FULL.md §4.9 step 6's manual-entry fallback, and resolves it to a
// single-target watch list.
func bootstrapTargets(ctx context.Context, client *riotapi.Client, cat *catalog.Catalog, region string, logger *slog.Logger) []stalker.Target {
	fmt.Fprint(os.Stderr, "Enter a Riot ID to watch (GameName#TagLine): ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return nil
	}
	line := strings.TrimSpace(scanner.Text())
	parts := strings.SplitN(line, "#", 2)
	if len(parts) != 2 {
		logger.Error("stalker: expected GameName#TagLine", "input", line)
		return nil
	}

	account, err := client.GetAccountByRiotID(ctx, region, parts[0], parts[1])
	if err != nil {
		logger.Error("stalker: resolving account failed", "err", err)
		return nil
	}
	platformHost, err := cat.HostForRegion(region)
	if err != nil {
		logger.Error("stalker: unknown region", "region", region, "err", err)
		return nil
	}
	return []stalker.Target{{Region: region, PlatformHost: platformHost, PUUID: account.PUUID}}
}
