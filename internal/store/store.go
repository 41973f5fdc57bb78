package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
)

// Store wraps the connection pool and implements the repository interfaces
// called for by SPEC_FULL.md §9: Get / Upsert / CreateIfAbsent, pushing the
// conflict-then-reread pattern into the methods themselves.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn and returns a ready Store.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connecting: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Pool exposes the underlying pool, e.g. for the Ledger to share a connection pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// GetOrCreateRegion returns the Region row for name, creating it on first sight.
func (s *Store) GetOrCreateRegion(ctx context.Context, name string) (*Region, error) {
	var r Region
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM regions WHERE name = $1`, name).Scan(&r.ID, &r.Name)
	if err == nil {
		return &r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: reading region: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO regions (name) VALUES ($1) ON CONFLICT (name) DO NOTHING RETURNING id, name`, name).
		Scan(&r.ID, &r.Name)
	if err == nil {
		return &r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: inserting region: %w", err)
	}

	// Lost the race: someone else inserted it between our read and our insert.
	err = s.pool.QueryRow(ctx, `SELECT id, name FROM regions WHERE name = $1`, name).Scan(&r.ID, &r.Name)
	if err != nil {
		return nil, fmt.Errorf("store: re-reading region after race: %w", err)
	}
	return &r, nil
}

// GetOrCreateGameVersion returns the GameVersion row for semver, appending it when unseen.
func (s *Store) GetOrCreateGameVersion(ctx context.Context, semver string) (*GameVersion, error) {
	var v GameVersion
	err := s.pool.QueryRow(ctx, `SELECT id, semver FROM game_versions WHERE semver = $1`, semver).Scan(&v.ID, &v.Semver)
	if err == nil {
		return &v, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: reading game version: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO game_versions (semver) VALUES ($1) ON CONFLICT (semver) DO NOTHING RETURNING id, semver`, semver).
		Scan(&v.ID, &v.Semver)
	if err == nil {
		return &v, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: inserting game version: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT id, semver FROM game_versions WHERE semver = $1`, semver).Scan(&v.ID, &v.Semver)
	if err != nil {
		return nil, fmt.Errorf("store: re-reading game version after race: %w", err)
	}
	return &v, nil
}

// UpsertSummoner inserts or updates a summoner; latestName may change, the
// (region, accountId) and (region, summonerId) identity keys are stable.
func (s *Store) UpsertSummoner(ctx context.Context, regionID int64, accountID, summonerID, puuid, latestName string) (*Summoner, error) {
	var sm Summoner
	err := s.pool.QueryRow(ctx, `
		INSERT INTO summoners (region_id, account_id, summoner_id, puuid, latest_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (region_id, account_id) DO UPDATE SET latest_name = EXCLUDED.latest_name
		RETURNING id, region_id, account_id, summoner_id, puuid, latest_name`,
		regionID, accountID, summonerID, puuid, latestName).
		Scan(&sm.ID, &sm.RegionID, &sm.AccountID, &sm.SummonerID, &sm.PUUID, &sm.LatestName)
	if err != nil {
		return nil, fmt.Errorf("store: upserting summoner: %w", err)
	}
	return &sm, nil
}

// GetSummonerByAccountID reads an existing summoner, if any.
func (s *Store) GetSummonerByAccountID(ctx context.Context, regionID int64, accountID string) (*Summoner, error) {
	var sm Summoner
	err := s.pool.QueryRow(ctx,
		`SELECT id, region_id, account_id, summoner_id, puuid, latest_name
		 FROM summoners WHERE region_id = $1 AND account_id = $2`, regionID, accountID).
		Scan(&sm.ID, &sm.RegionID, &sm.AccountID, &sm.SummonerID, &sm.PUUID, &sm.LatestName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: reading summoner: %w", err)
	}
	return &sm, nil
}

// AppendTierHistory records an append-only tier snapshot.
func (s *Store) AppendTierHistory(ctx context.Context, summonerID int64, tier string, tiersJSON []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO summoner_tier_history (summoner_id, at_time, tier, tiers_json) VALUES ($1, now(), $2, $3)`,
		summonerID, tier, tiersJSON)
	if err != nil {
		return fmt.Errorf("store: appending tier history: %w", err)
	}
	return nil
}

// CreateMatchIfAbsent performs the CLAIM step's pre-check read plus
// conditional insert. A concurrent unique-constraint violation after the
// pre-check promotes to MatchTakenError; the caller exits cleanly.
func (s *Store) CreateMatchIfAbsent(ctx context.Context, regionID int64, matchID string) (*HistoricalMatch, error) {
	existing, err := s.GetMatch(ctx, regionID, matchID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &riotapi.MatchTakenError{MatchID: matchID}
	}

	var m HistoricalMatch
	err = s.pool.QueryRow(ctx,
		`INSERT INTO historical_matches (region_id, match_id) VALUES ($1, $2) RETURNING id, region_id, match_id`,
		regionID, matchID).
		Scan(&m.ID, &m.RegionID, &m.MatchID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &riotapi.MatchTakenError{MatchID: matchID}
		}
		return nil, fmt.Errorf("store: inserting match: %w", err)
	}
	return &m, nil
}

// GetMatch reads an existing match row, or nil if absent.
func (s *Store) GetMatch(ctx context.Context, regionID int64, matchID string) (*HistoricalMatch, error) {
	var m HistoricalMatch
	err := s.pool.QueryRow(ctx, `
		SELECT id, region_id, match_id, game_version_id, regional_tier_avg, regional_tier_meta_json,
		       game_duration, match_result_json, match_timeline_json, match_participants_histories_json
		FROM historical_matches WHERE region_id = $1 AND match_id = $2`, regionID, matchID).
		Scan(&m.ID, &m.RegionID, &m.MatchID, &m.GameVersionID, &m.RegionalTierAvg, &m.RegionalTierMetaJSON,
			&m.GameDuration, &m.MatchResultJSON, &m.MatchTimelineJSON, &m.MatchParticipantsHistoriesJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: reading match: %w", err)
	}
	return &m, nil
}

// AttachTiers fills in the TIERS stage's fields. Fields only transition
// null -> non-null; COALESCE guards against ever erasing a populated value.
func (s *Store) AttachTiers(ctx context.Context, matchPK int64, regionalTierAvg string, metaJSON []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE historical_matches
		SET regional_tier_avg = COALESCE(regional_tier_avg, $2),
		    regional_tier_meta_json = COALESCE(regional_tier_meta_json, $3)
		WHERE id = $1`, matchPK, regionalTierAvg, metaJSON)
	if err != nil {
		return fmt.Errorf("store: attaching tiers: %w", err)
	}
	return nil
}

// AttachResult fills in the RESULT stage's fields.
func (s *Store) AttachResult(ctx context.Context, matchPK, gameVersionID int64, gameDuration int64, resultJSON []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE historical_matches
		SET game_version_id = COALESCE(game_version_id, $2),
		    game_duration = COALESCE(game_duration, $3),
		    match_result_json = COALESCE(match_result_json, $4)
		WHERE id = $1`, matchPK, gameVersionID, gameDuration, resultJSON)
	if err != nil {
		return fmt.Errorf("store: attaching result: %w", err)
	}
	return nil
}

// AttachGameVersion fills in a match's game_version_id alone, for the Repair
// Job's version-only recovery branch (a result may already be present with
// its version left unresolved from an older schema or a partial ingest).
func (s *Store) AttachGameVersion(ctx context.Context, matchPK, gameVersionID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE historical_matches SET game_version_id = COALESCE(game_version_id, $2) WHERE id = $1`,
		matchPK, gameVersionID)
	if err != nil {
		return fmt.Errorf("store: attaching game version: %w", err)
	}
	return nil
}

// AttachTimeline fills in the TIMELINE stage's field (best-effort; may stay null).
func (s *Store) AttachTimeline(ctx context.Context, matchPK int64, timelineJSON []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE historical_matches SET match_timeline_json = COALESCE(match_timeline_json, $2) WHERE id = $1`,
		matchPK, timelineJSON)
	if err != nil {
		return fmt.Errorf("store: attaching timeline: %w", err)
	}
	return nil
}

// AttachHistories fills in the HISTORIES stage's field.
func (s *Store) AttachHistories(ctx context.Context, matchPK int64, historiesJSON []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE historical_matches SET match_participants_histories_json = COALESCE(match_participants_histories_json, $2) WHERE id = $1`,
		matchPK, historiesJSON)
	if err != nil {
		return fmt.Errorf("store: attaching histories: %w", err)
	}
	return nil
}

// GetItemsJSON implements items.Store.
func (s *Store) GetItemsJSON(ctx context.Context, semver string) ([]byte, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT items_json FROM items_catalogue WHERE semver = $1`, semver).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &riotapi.MissingStaticDataError{Semver: semver}
		}
		return nil, fmt.Errorf("store: reading items catalogue: %w", err)
	}
	return raw, nil
}

// SaveItemsJSON implements items.Store.
func (s *Store) SaveItemsJSON(ctx context.Context, semver string, raw []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO items_catalogue (semver, items_json) VALUES ($1, $2) ON CONFLICT (semver) DO NOTHING`,
		semver, raw)
	if err != nil {
		return fmt.Errorf("store: saving items catalogue: %w", err)
	}
	return nil
}

// FindIncompleteMatches lists matches missing result, timeline, version or
// histories, for the Repair Job's offline sweep.
func (s *Store) FindIncompleteMatches(ctx context.Context, regionID int64, limit int) ([]HistoricalMatch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, region_id, match_id, game_version_id, regional_tier_avg, regional_tier_meta_json,
		       game_duration, match_result_json, match_timeline_json, match_participants_histories_json
		FROM historical_matches
		WHERE region_id = $1
		  AND (match_result_json IS NULL OR match_timeline_json IS NULL
		       OR game_version_id IS NULL OR match_participants_histories_json IS NULL)
		LIMIT $2`, regionID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: listing incomplete matches: %w", err)
	}
	defer rows.Close()

	var out []HistoricalMatch
	for rows.Next() {
		var m HistoricalMatch
		if err := rows.Scan(&m.ID, &m.RegionID, &m.MatchID, &m.GameVersionID, &m.RegionalTierAvg, &m.RegionalTierMetaJSON,
			&m.GameDuration, &m.MatchResultJSON, &m.MatchTimelineJSON, &m.MatchParticipantsHistoriesJSON); err != nil {
			return nil, fmt.Errorf("store: scanning incomplete match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TieredMatch is one row of FindMatchesByTierAndVersion's result, carrying
// the region name alongside the match since the delta-analysis runner walks
// the ladder across every region at once.
type TieredMatch struct {
	Match      HistoricalMatch
	RegionName string
}

// FindMatchesByTierAndVersion lists matches across every region whose
// regional_tier_avg contains any of tiers and whose game version's semver
// equals semver or starts with semver followed by a dot (so "14.1" selects
// every 14.1.x build), offset/limit paginated, for the delta-analysis
// runner's ladder walk.
func (s *Store) FindMatchesByTierAndVersion(ctx context.Context, tiers []string, semver string, offset, limit int) ([]TieredMatch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.region_id, m.match_id, m.game_version_id, m.regional_tier_avg, m.regional_tier_meta_json,
		       m.game_duration, m.match_result_json, m.match_timeline_json, m.match_participants_histories_json,
		       r.name
		FROM historical_matches m
		JOIN game_versions gv ON gv.id = m.game_version_id
		JOIN regions r ON r.id = m.region_id
		WHERE (gv.semver = $1 OR gv.semver LIKE $1 || '.%')
		  AND m.regional_tier_avg IS NOT NULL
		  AND m.match_result_json IS NOT NULL
		  AND EXISTS (SELECT 1 FROM unnest($2::text[]) t WHERE m.regional_tier_avg LIKE '%' || t || '%')
		ORDER BY m.id
		OFFSET $3 LIMIT $4`, semver, tiers, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("store: listing matches by tier/version: %w", err)
	}
	defer rows.Close()

	var out []TieredMatch
	for rows.Next() {
		var m HistoricalMatch
		var regionName string
		if err := rows.Scan(&m.ID, &m.RegionID, &m.MatchID, &m.GameVersionID, &m.RegionalTierAvg, &m.RegionalTierMetaJSON,
			&m.GameDuration, &m.MatchResultJSON, &m.MatchTimelineJSON, &m.MatchParticipantsHistoriesJSON, &regionName); err != nil {
			return nil, fmt.Errorf("store: scanning match by tier/version: %w", err)
		}
		out = append(out, TieredMatch{Match: m, RegionName: regionName})
	}
	return out, rows.Err()
}
