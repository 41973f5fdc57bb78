package fights

import (
	"testing"

	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
)

func sampleResult() *riotapi.MatchResult {
	return &riotapi.MatchResult{Info: riotapi.MatchInfo{Participants: []riotapi.MatchParticipant{
		{ParticipantID: 1, ChampionID: 100},
		{ParticipantID: 2, ChampionID: 200},
		{ParticipantID: 3, ChampionID: 300},
		{ParticipantID: 4, ChampionID: 400},
		{ParticipantID: 5, ChampionID: 500},
		{ParticipantID: 6, ChampionID: 600},
		{ParticipantID: 7, ChampionID: 700},
		{ParticipantID: 8, ChampionID: 800},
		{ParticipantID: 9, ChampionID: 900},
		{ParticipantID: 10, ChampionID: 1000},
	}}}
}

func TestClusterEmitsKillRecord(t *testing.T) {
	result := sampleResult()
	timeline := &riotapi.TimelineResponse{Info: riotapi.TimelineInfo{Frames: []riotapi.TimelineFrame{
		{Events: []riotapi.TimelineEvent{
			{Timestamp: 60000, Type: "CHAMPION_KILL", KillerID: 1, VictimID: 6},
		}},
	}}}

	records := Cluster(result, timeline, nil, 1)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Kind != Kill {
		t.Error("expected Kill kind")
	}
	if !records[0].Victims[600] {
		t.Error("expected champion 600 in victims")
	}
}

func TestClusterEmitsDeathRecord(t *testing.T) {
	result := sampleResult()
	timeline := &riotapi.TimelineResponse{Info: riotapi.TimelineInfo{Frames: []riotapi.TimelineFrame{
		{Events: []riotapi.TimelineEvent{
			{Timestamp: 60000, Type: "CHAMPION_KILL", KillerID: 6, VictimID: 1},
		}},
	}}}

	records := Cluster(result, timeline, nil, 1)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Kind != Death {
		t.Error("expected Death kind")
	}
	if !records[0].Victims[100] {
		t.Error("expected focal's own champion 100 in victims")
	}
}

// TestClusterDedupSubsetMerge exercises scenario 5: two CHAMPION_KILL events
// 5s apart with overlapping victim sets collapse into one surviving record.
func TestClusterDedupSubsetMerge(t *testing.T) {
	result := sampleResult()
	timeline := &riotapi.TimelineResponse{Info: riotapi.TimelineInfo{Frames: []riotapi.TimelineFrame{
		{Events: []riotapi.TimelineEvent{
			{Timestamp: 60000, Type: "CHAMPION_KILL", KillerID: 1, AssistingIDs: []int{2}, VictimID: 6},
			{Timestamp: 65000, Type: "CHAMPION_KILL", KillerID: 1, VictimID: 7},
		}},
	}}}

	records := Cluster(result, timeline, nil, 1)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 after dedup merge: %+v", len(records), records)
	}
	if !records[0].Victims[600] || !records[0].Victims[700] {
		t.Errorf("expected merged victims {600,700}, got %+v", records[0].Victims)
	}
}

func TestClusterNoSurvivingSubsets(t *testing.T) {
	result := sampleResult()
	timeline := &riotapi.TimelineResponse{Info: riotapi.TimelineInfo{Frames: []riotapi.TimelineFrame{
		{Events: []riotapi.TimelineEvent{
			{Timestamp: 60000, Type: "CHAMPION_KILL", KillerID: 1, AssistingIDs: []int{2}, VictimID: 6},
			{Timestamp: 65000, Type: "CHAMPION_KILL", KillerID: 1, VictimID: 7},
		}},
	}}}
	records := Cluster(result, timeline, nil, 1)
	for i := 0; i < len(records); i++ {
		for j := 0; j < len(records); j++ {
			if i == j {
				continue
			}
			if isSubset(records[i].Victims, records[j].Victims) {
				t.Errorf("record %d's victims are a subset of record %d's after dedup", i, j)
			}
		}
	}
}

func TestItemCostPhantomOverrides(t *testing.T) {
	if c := itemCost(nil, 1018); c != 2200 {
		t.Errorf("item 1018 cost = %d, want 2200", c)
	}
	if c := itemCost(nil, 0); c != 0 {
		t.Errorf("item 0 cost = %d, want 0", c)
	}
}
