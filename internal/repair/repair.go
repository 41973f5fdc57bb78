// Package repair implements the Repair Job: an offline sweep that completes
// HistoricalMatch rows missing result, timeline, game version or histories,
// per SPEC_FULL.md §2 and grounded on
// _examples/original_source/dj_lol_dcs/periodical_data_repair.py.
package repair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Mew-www/lol-data-collection-system/internal/history"
	"github.com/Mew-www/lol-data-collection-system/internal/items"
	"github.com/Mew-www/lol-data-collection-system/internal/lanes"
	"github.com/Mew-www/lol-data-collection-system/internal/retry"
	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
	"github.com/Mew-www/lol-data-collection-system/internal/store"
)

// RiotAPI is the subset of *riotapi.Client the job calls.
type RiotAPI interface {
	GetMatchResult(ctx context.Context, region, matchID string) (*riotapi.MatchResult, error)
	GetMatchTimeline(ctx context.Context, region, matchID string) (*riotapi.TimelineResponse, error)
}

// Store is the persistence surface the job needs.
type Store interface {
	GetOrCreateRegion(ctx context.Context, name string) (*store.Region, error)
	FindIncompleteMatches(ctx context.Context, regionID int64, limit int) ([]store.HistoricalMatch, error)
	AttachResult(ctx context.Context, matchPK, gameVersionID int64, gameDuration int64, resultJSON []byte) error
	AttachTimeline(ctx context.Context, matchPK int64, timelineJSON []byte) error
	AttachHistories(ctx context.Context, matchPK int64, historiesJSON []byte) error
	AttachGameVersion(ctx context.Context, matchPK, gameVersionID int64) error
	GetOrCreateGameVersion(ctx context.Context, semver string) (*store.GameVersion, error)
}

// Job drives one repair sweep over a region's incomplete rows.
type Job struct {
	Client  RiotAPI
	Retry   *retry.Envelope
	Store   Store
	Items   *items.Cache
	History *history.Extractor
	Logger  *slog.Logger

	// Semver restricts the sweep to matches on a specific major.minor
	// prefix; empty means every incomplete match in the region.
	Semver string
	// Limit bounds how many rows one Run call sweeps.
	Limit int
}

// Run sweeps up to j.Limit incomplete rows in region, filling whatever
// fields it can and leaving the rest for a future run. A per-row failure is
// logged and does not abort the sweep; SPEC_FULL.md's partial-persistence
// invariant means there's always a later chance.
func (j *Job) Run(ctx context.Context, region string) (int, error) {
	reg, err := j.Store.GetOrCreateRegion(ctx, region)
	if err != nil {
		return 0, fmt.Errorf("repair: resolving region: %w", err)
	}

	limit := j.Limit
	if limit <= 0 {
		limit = 500
	}

	rows, err := j.Store.FindIncompleteMatches(ctx, reg.ID, limit)
	if err != nil {
		return 0, fmt.Errorf("repair: listing incomplete matches: %w", err)
	}

	fixed := 0
	for _, row := range rows {
		if j.Semver != "" {
			// Version-filtered sweeps compare against the stored result's
			// game version; rows without a result are only reachable once
			// their result has been backfilled, so handle them on a later pass.
			if row.MatchResultJSON == nil {
				continue
			}
			r, err := decodeResult(row.MatchResultJSON)
			if err != nil || (r.Info.GameVersion != j.Semver && !strings.HasPrefix(r.Info.GameVersion, j.Semver+".")) {
				continue
			}
		}
		if j.repairOne(ctx, region, row) {
			fixed++
		}
	}
	return fixed, nil
}

func (j *Job) repairOne(ctx context.Context, region string, row store.HistoricalMatch) bool {
	logger := j.Logger.With("match_id", row.MatchID, "region", region)
	changed := false

	var result *riotapi.MatchResult
	if row.MatchResultJSON != nil {
		if r, err := decodeResult(row.MatchResultJSON); err == nil {
			result = r
		}
	}

	if row.MatchResultJSON == nil {
		r, ok := j.fetchResult(ctx, logger, region, row)
		if ok {
			result = r
			changed = true
		}
	}

	if result == nil {
		// Nothing downstream (timeline semver-gating is independent, but
		// histories and version both need the result) can proceed further.
		if row.MatchTimelineJSON == nil {
			j.fetchTimeline(ctx, logger, region, row)
		}
		return changed
	}

	if row.MatchTimelineJSON == nil && result.Info.GameDuration >= 300 {
		if j.fetchTimeline(ctx, logger, region, row) {
			changed = true
		}
	}

	if row.GameVersionID == nil {
		gv, err := j.Store.GetOrCreateGameVersion(ctx, result.Info.GameVersion)
		if err != nil {
			logger.Warn("repair: recovering game version failed", "err", err)
		} else if err := j.Store.AttachGameVersion(ctx, row.ID, gv.ID); err != nil {
			logger.Warn("repair: attaching recovered game version failed", "err", err)
		} else {
			changed = true
			logger.Info("repair: recovered game version")
		}
	}

	if row.MatchParticipantsHistoriesJSON == nil {
		if j.fetchHistories(ctx, logger, region, row, result) {
			changed = true
		}
	}

	return changed
}

func (j *Job) fetchResult(ctx context.Context, logger *slog.Logger, region string, row store.HistoricalMatch) (*riotapi.MatchResult, bool) {
	var result *riotapi.MatchResult
	err := j.Retry.Do(ctx, retry.NotFoundAbsent, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = j.Client.GetMatchResult(ctx, region, row.MatchID)
		return innerErr
	})
	if errors.Is(err, retry.ErrAbsent) || err != nil {
		logger.Warn("repair: recovering result failed", "err", err)
		return nil, false
	}

	gv, err := j.Store.GetOrCreateGameVersion(ctx, result.Info.GameVersion)
	if err != nil {
		logger.Warn("repair: resolving game version for recovered result failed", "err", err)
		return nil, false
	}
	raw, err := json.Marshal(result)
	if err != nil {
		logger.Warn("repair: encoding recovered result failed", "err", err)
		return nil, false
	}
	if err := j.Store.AttachResult(ctx, row.ID, gv.ID, result.Info.GameDuration, raw); err != nil {
		logger.Warn("repair: attaching recovered result failed", "err", err)
		return nil, false
	}
	logger.Info("repair: recovered result")
	return result, true
}

func (j *Job) fetchTimeline(ctx context.Context, logger *slog.Logger, region string, row store.HistoricalMatch) bool {
	var tl *riotapi.TimelineResponse
	err := j.Retry.Do(ctx, retry.NotFoundAbsent, func(ctx context.Context) error {
		var innerErr error
		tl, innerErr = j.Client.GetMatchTimeline(ctx, region, row.MatchID)
		return innerErr
	})
	if errors.Is(err, retry.ErrAbsent) {
		logger.Info("repair: no timeline available, skipping")
		return false
	}
	if err != nil {
		logger.Warn("repair: recovering timeline failed", "err", err)
		return false
	}
	raw, err := json.Marshal(tl)
	if err != nil {
		logger.Warn("repair: encoding recovered timeline failed", "err", err)
		return false
	}
	if err := j.Store.AttachTimeline(ctx, row.ID, raw); err != nil {
		logger.Warn("repair: attaching recovered timeline failed", "err", err)
		return false
	}
	logger.Info("repair: recovered timeline")
	return true
}

func (j *Job) fetchHistories(ctx context.Context, logger *slog.Logger, region string, row store.HistoricalMatch, result *riotapi.MatchResult) bool {
	var timeline *riotapi.TimelineResponse
	if row.MatchTimelineJSON != nil {
		timeline, _ = decodeTimeline(row.MatchTimelineJSON)
	}
	if timeline == nil {
		// Lanes (and therefore histories) require a timeline; nothing to do
		// until a future sweep recovers one.
		return false
	}
	if _, err := j.Items.Get(ctx, result.Info.GameVersion); err != nil {
		var missing *riotapi.MissingStaticDataError
		if errors.As(err, &missing) {
			logger.Info("repair: items catalogue missing, skipping histories for this version")
			return false
		}
		logger.Warn("repair: loading items catalogue failed", "err", err)
		return false
	}

	laneByParticipant := map[int]string{}
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
			laneByParticipant[p] = l
		}
	}

	histsByParticipant := make([]*history.ParticipantHistoryStats, len(result.Info.Participants))
	for i, p := range result.Info.Participants {
		stats, err := j.History.Extract(ctx, history.ExtractInput{
			Region:      region,
			PUUID:       p.PUUID,
			ChampionID:  p.ChampionID,
			ReaLane:     laneByParticipant[p.ParticipantID],
			MatchTimeMs: result.Info.GameStartTimestamp,
		})
		if err != nil {
			logger.Warn("repair: extracting history failed", "participant_id", p.ParticipantID, "err", err)
			return false
		}
		histsByParticipant[i] = stats
	}

	raw, err := json.Marshal(histsByParticipant)
	if err != nil {
		logger.Warn("repair: encoding recovered histories failed", "err", err)
		return false
	}
	if err := j.Store.AttachHistories(ctx, row.ID, raw); err != nil {
		logger.Warn("repair: attaching recovered histories failed", "err", err)
		return false
	}
	logger.Info("repair: recovered histories")
	return true
}

func decodeResult(raw []byte) (*riotapi.MatchResult, error) {
	var r riotapi.MatchResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func decodeTimeline(raw []byte) (*riotapi.TimelineResponse, error) {
	var t riotapi.TimelineResponse
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
