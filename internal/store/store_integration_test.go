//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// TestUpsertSummonerIsIdempotent exercises invariant 5: re-upserting the same
// identity key updates LatestName without duplicating the row.
func TestUpsertSummonerIsIdempotent(t *testing.T) {
	ctx := context.Background()

	pgC, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("store_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
	)
	require.NoError(t, err)
	defer func() { _ = pgC.Terminate(ctx) }()

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrate.New("file://migrations", "pgx5"+dsn[len("postgres"):])
	require.NoError(t, err)
	require.NoError(t, m.Up())

	s, err := New(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	reg, err := s.GetOrCreateRegion(ctx, "NA")
	require.NoError(t, err)

	first, err := s.UpsertSummoner(ctx, reg.ID, "acct-1", "summ-1", "puuid-1", "OldName")
	require.NoError(t, err)

	second, err := s.UpsertSummoner(ctx, reg.ID, "acct-1", "summ-1", "puuid-1", "NewName")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID, "re-upserting the same identity key must not create a second row")
	require.Equal(t, "NewName", second.LatestName)
}

// TestCreateMatchIfAbsentSecondCallIsTaken exercises the CLAIM step's
// conflict branch.
func TestCreateMatchIfAbsentSecondCallIsTaken(t *testing.T) {
	ctx := context.Background()

	pgC, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("store_test2"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
	)
	require.NoError(t, err)
	defer func() { _ = pgC.Terminate(ctx) }()

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrate.New("file://migrations", "pgx5"+dsn[len("postgres"):])
	require.NoError(t, err)
	require.NoError(t, m.Up())

	s, err := New(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	reg, err := s.GetOrCreateRegion(ctx, "NA")
	require.NoError(t, err)

	_, err = s.CreateMatchIfAbsent(ctx, reg.ID, "NA1_1")
	require.NoError(t, err)

	_, err = s.CreateMatchIfAbsent(ctx, reg.ID, "NA1_1")
	require.Error(t, err)
}
