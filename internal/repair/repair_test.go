package repair

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/Mew-www/lol-data-collection-system/internal/retry"
	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
	"github.com/Mew-www/lol-data-collection-system/internal/store"
)

type fakeRepairStore struct {
	region    *store.Region
	rows      []store.HistoricalMatch
	attached  map[int64]store.HistoricalMatch
	versionID int64
}

func newFakeRepairStore(rows []store.HistoricalMatch) *fakeRepairStore {
	return &fakeRepairStore{
		region:   &store.Region{ID: 1, Name: "na1"},
		rows:     rows,
		attached: map[int64]store.HistoricalMatch{},
	}
}

func (f *fakeRepairStore) GetOrCreateRegion(ctx context.Context, name string) (*store.Region, error) {
	return f.region, nil
}
func (f *fakeRepairStore) FindIncompleteMatches(ctx context.Context, regionID int64, limit int) ([]store.HistoricalMatch, error) {
	return f.rows, nil
}
func (f *fakeRepairStore) AttachResult(ctx context.Context, matchPK, gameVersionID int64, gameDuration int64, resultJSON []byte) error {
	row := f.attached[matchPK]
	row.MatchResultJSON = resultJSON
	row.GameDuration = &gameDuration
	row.GameVersionID = &gameVersionID
	f.attached[matchPK] = row
	return nil
}
func (f *fakeRepairStore) AttachTimeline(ctx context.Context, matchPK int64, timelineJSON []byte) error {
	row := f.attached[matchPK]
	row.MatchTimelineJSON = timelineJSON
	f.attached[matchPK] = row
	return nil
}
func (f *fakeRepairStore) AttachHistories(ctx context.Context, matchPK int64, historiesJSON []byte) error {
	row := f.attached[matchPK]
	row.MatchParticipantsHistoriesJSON = historiesJSON
	f.attached[matchPK] = row
	return nil
}
func (f *fakeRepairStore) GetOrCreateGameVersion(ctx context.Context, semver string) (*store.GameVersion, error) {
	f.versionID++
	return &store.GameVersion{ID: f.versionID, Semver: semver}, nil
}
func (f *fakeRepairStore) AttachGameVersion(ctx context.Context, matchPK, gameVersionID int64) error {
	row := f.attached[matchPK]
	row.GameVersionID = &gameVersionID
	f.attached[matchPK] = row
	return nil
}

type fakeRepairAPI struct {
	result     *riotapi.MatchResult
	timelineOK bool
}

func (f *fakeRepairAPI) GetMatchResult(ctx context.Context, region, matchID string) (*riotapi.MatchResult, error) {
	return f.result, nil
}
func (f *fakeRepairAPI) GetMatchTimeline(ctx context.Context, region, matchID string) (*riotapi.TimelineResponse, error) {
	if !f.timelineOK {
		return nil, &riotapi.ApiError{StatusCode: 404}
	}
	return &riotapi.TimelineResponse{}, nil
}

// TestRunRecoversMissingResult exercises the result-only repair path: a row
// with no result JSON gets one fetched, decoded, and attached, and a remake
// (duration < 300s) is left without a timeline/history attempt.
func TestRunRecoversMissingResult(t *testing.T) {
	row := store.HistoricalMatch{ID: 42, RegionID: 1, MatchID: "NA1_1"}
	fs := newFakeRepairStore([]store.HistoricalMatch{row})
	api := &fakeRepairAPI{result: &riotapi.MatchResult{Info: riotapi.MatchInfo{GameDuration: 120, GameVersion: "14.1.1"}}}

	job := &Job{
		Client: api,
		Retry:  retry.New(nil, 1),
		Store:  fs,
		Logger: slog.Default(),
	}

	fixed, err := job.Run(context.Background(), "na1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fixed != 1 {
		t.Errorf("fixed = %d, want 1", fixed)
	}
	attached := fs.attached[42]
	if attached.MatchResultJSON == nil {
		t.Fatal("expected result JSON to be attached")
	}
	var got riotapi.MatchResult
	if err := json.Unmarshal(attached.MatchResultJSON, &got); err != nil {
		t.Fatalf("decoding attached result: %v", err)
	}
	if got.Info.GameDuration != 120 {
		t.Errorf("game duration = %d, want 120", got.Info.GameDuration)
	}
}

// TestRunSkipsTimelineWhenResultAlreadyRemake exercises the remake
// short-circuit on an already-persisted result: no timeline fetch is even
// attempted (the fake serves a timeline, so a GetMatchTimeline call for a
// row whose duration disqualifies it would show up as an attachment).
func TestRunSkipsTimelineWhenResultAlreadyRemake(t *testing.T) {
	resultRaw, _ := json.Marshal(riotapi.MatchResult{Info: riotapi.MatchInfo{GameDuration: 90, GameVersion: "14.1.1"}})
	duration := int64(90)
	row := store.HistoricalMatch{
		ID: 7, RegionID: 1, MatchID: "NA1_2",
		MatchResultJSON: resultRaw, GameDuration: &duration,
	}
	fs := newFakeRepairStore([]store.HistoricalMatch{row})
	api := &fakeRepairAPI{timelineOK: true}

	job := &Job{Client: api, Retry: retry.New(nil, 1), Store: fs, Logger: slog.Default()}

	if _, err := job.Run(context.Background(), "na1"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fs.attached[7].MatchTimelineJSON != nil {
		t.Error("expected no timeline attachment attempt for a remake with result already present")
	}
}
