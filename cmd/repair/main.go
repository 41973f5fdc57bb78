// Command repair runs the Repair Job once: a sweep over one region's
// incomplete HistoricalMatch rows, filling in whatever of result, timeline,
// game version or histories it can, per SPEC_FULL.md §2.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/Mew-www/lol-data-collection-system/internal/catalog"
	"github.com/Mew-www/lol-data-collection-system/internal/config"
	"github.com/Mew-www/lol-data-collection-system/internal/history"
	"github.com/Mew-www/lol-data-collection-system/internal/items"
	"github.com/Mew-www/lol-data-collection-system/internal/ledger"
	"github.com/Mew-www/lol-data-collection-system/internal/repair"
	"github.com/Mew-www/lol-data-collection-system/internal/retry"
	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
	"github.com/Mew-www/lol-data-collection-system/internal/store"
)

func main() {
	var region, semver, logfile string

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Sweep one region's incomplete matches, filling in whatever can be recovered",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), region, semver, logfile)
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "platform region to sweep, e.g. NA, EUW, KR (required)")
	cmd.Flags().StringVar(&semver, "semver", "", "restrict the sweep to this major.minor game version prefix")
	cmd.Flags().StringVar(&logfile, "logfile", "", "override RATELIMIT_LOGFILE for the quota observability log")
	cmd.MarkFlagRequired("region")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "repair: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, region, semver, logfileFlag string) error {
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
		return fmt.Errorf("repair: connecting to store: %w", err)
	}
	defer st.Close()

	ledgerPool := st.Pool()
	if env.LedgerDatabaseURL != env.DatabaseURL {
		ledgerPool, err = pgxpool.New(ctx, env.LedgerDatabaseURL)
		if err != nil {
			return fmt.Errorf("repair: connecting to ledger database: %w", err)
		}
		defer ledgerPool.Close()
	}

	methodLimits, err := config.LoadMethodRateLimits(env.MethodLimitsFile)
	if err != nil {
		return fmt.Errorf("repair: loading method rate limits: %w", err)
	}
	appQuotas, err := config.AppRateLimits()
	if err != nil {
		return fmt.Errorf("repair: loading app rate limits: %w", err)
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

	job := &repair.Job{
		Client:  client,
		Retry:   envelope,
		Store:   st,
		Items:   itemsCache,
		History: extractor,
		Logger:  logger,
		Semver:  semver,
	}

	fixed, err := job.Run(ctx, region)
	if err != nil {
		return err
	}
	logger.Info("repair: sweep complete", "region", region, "matches_fixed", fixed)
	return nil
}
