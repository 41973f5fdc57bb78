package lanes

import (
	"testing"

	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
)

func buildTeam(ids [5]int) []riotapi.MatchParticipant {
	return []riotapi.MatchParticipant{
		{ParticipantID: ids[0], Spell1ID: 4, Spell2ID: 11, NeutralMinionsKilled: 75, TotalMinionsKilled: 40},
		{ParticipantID: ids[1], Spell1ID: 4, Spell2ID: 12, NeutralMinionsKilled: 5, TotalMinionsKilled: 10},
		{ParticipantID: ids[2], Spell1ID: 4, Spell2ID: 7, NeutralMinionsKilled: 3, TotalMinionsKilled: 160},
		{ParticipantID: ids[3], Spell1ID: 4, Spell2ID: 7, NeutralMinionsKilled: 2, TotalMinionsKilled: 150},
		{ParticipantID: ids[4], Spell1ID: 4, Spell2ID: 6, NeutralMinionsKilled: 1, TotalMinionsKilled: 140},
	}
}

func TestInferJungleBySmite(t *testing.T) {
	ids := [5]int{1, 2, 3, 4, 5}
	result := &riotapi.MatchResult{Info: riotapi.MatchInfo{Participants: buildTeam(ids)}}
	timeline := &riotapi.TimelineResponse{Info: riotapi.TimelineInfo{Frames: []riotapi.TimelineFrame{}}}

	assignment := Infer(result, timeline, ids)
	if assignment[1] != Jungle {
		t.Errorf("expected participant 1 (smite holder) to be JUNGLE, got %s", assignment[1])
	}
}

func TestInferSupportByMinCS(t *testing.T) {
	ids := [5]int{1, 2, 3, 4, 5}
	result := &riotapi.MatchResult{Info: riotapi.MatchInfo{Participants: buildTeam(ids)}}
	timeline := &riotapi.TimelineResponse{}

	assignment := Infer(result, timeline, ids)
	if assignment[2] != Support {
		t.Errorf("expected participant 2 (min CS) to be SUPPORT, got %s", assignment[2])
	}
}

func TestInferAssignsAllFiveDistinctLanes(t *testing.T) {
	ids := [5]int{1, 2, 3, 4, 5}
	result := &riotapi.MatchResult{Info: riotapi.MatchInfo{Participants: buildTeam(ids)}}
	timeline := &riotapi.TimelineResponse{}

	assignment := Infer(result, timeline, ids)
	if len(assignment) != 5 {
		t.Fatalf("got %d assignments, want 5", len(assignment))
	}
	seen := make(map[string]bool)
	for _, lane := range assignment {
		if seen[lane] {
			t.Errorf("lane %s assigned twice", lane)
		}
		seen[lane] = true
	}
	for _, want := range []string{Top, Jungle, Mid, Bottom, Support} {
		if !seen[want] {
			t.Errorf("missing lane %s in assignment", want)
		}
	}
}

func TestIsTopSideAndBottomSideDisjoint(t *testing.T) {
	g := DefaultGeometry
	top := riotapi.Position{X: 2000, Y: 10000}
	bottom := riotapi.Position{X: 10000, Y: 2000}
	if !g.isTopSide(top) {
		t.Error("expected classic top position to be top-side")
	}
	if g.isBottomSide(top) {
		t.Error("top position should not also be bottom-side")
	}
	if !g.isBottomSide(bottom) {
		t.Error("expected classic bottom position to be bottom-side")
	}
	if g.isTopSide(bottom) {
		t.Error("bottom position should not also be top-side")
	}
}
