// Package store is the Persistence Adapter: idempotent upserts for Region,
// GameVersion, Summoner and HistoricalMatch, plus append-only
// SummonerTierHistory and RequestHistoryEntry rows.
package store

import "time"

// Region is created on first sight and never mutated.
type Region struct {
	ID   int64
	Name string
}

// GameVersion is appended when unseen, compared by major.minor prefix.
type GameVersion struct {
	ID     int64
	Semver string
}

// Summoner is upserted: LatestName may change, identity keys are stable.
type Summoner struct {
	ID         int64
	RegionID   int64
	AccountID  string
	SummonerID string
	PUUID      string
	LatestName string
}

// SummonerTierHistory is an append-only snapshot at observation time.
type SummonerTierHistory struct {
	ID         int64
	SummonerID int64
	AtTime     time.Time
	Tier       string
	TiersJSON  []byte
}

// HistoricalMatch rows start partial and fill monotonically; gameDuration <
// 300s classifies a remake.
type HistoricalMatch struct {
	ID                           int64
	RegionID                     int64
	MatchID                      string
	GameVersionID                *int64
	RegionalTierAvg              *string
	RegionalTierMetaJSON         []byte
	GameDuration                 *int64
	MatchResultJSON              []byte
	MatchTimelineJSON            []byte
	MatchParticipantsHistoriesJSON []byte
}

// IsRemake reports whether this match's duration classifies it as a remake.
func (m HistoricalMatch) IsRemake() bool {
	return m.GameDuration != nil && *m.GameDuration < 300
}

// RequestHistoryEntry is the Quota Ledger's append-only audit log row.
type RequestHistoryEntry struct {
	ID         int64
	AtTime     time.Time
	APIKey     string
	RegionName string
	MethodName string
	RequestURI string
}
