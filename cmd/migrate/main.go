// Command migrate is a thin wrapper around golang-migrate/migrate/v4,
// applying or rolling back internal/store/migrations against DATABASE_URL.
//
// Grounded on _examples/correlator-io-correlator/cmd/migrator's up/down/
// version subcommand shape, simplified to match SPEC_FULL.md §6's flat
// `up`/`down`/`version` surface and adapted from lib/pq to pgx's
// database/sql driver since the rest of this repo is pgx-only.
package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Mew-www/lol-data-collection-system/internal/config"
	"github.com/Mew-www/lol-data-collection-system/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate <up|down|version>")
		os.Exit(2)
	}
	command := os.Args[1]

	env, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	db, err := sql.Open("pgx", env.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: creating postgres driver: %v\n", err)
		os.Exit(1)
	}

	src, err := iofs.New(store.MigrationFiles, "migrations")
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: reading embedded migrations: %v\n", err)
		os.Exit(1)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: creating migrator: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "version":
		var ver uint
		var dirty bool
		ver, dirty, err = m.Version()
		if err == nil {
			fmt.Printf("version %d (dirty=%v)\n", ver, dirty)
		}
	default:
		fmt.Fprintf(os.Stderr, "migrate: unknown command %q (expected up|down|version)\n", command)
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) && !errors.Is(err, migrate.ErrNilVersion) {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}
