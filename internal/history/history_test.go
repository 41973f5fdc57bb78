package history

import (
	"testing"

	"github.com/Mew-www/lol-data-collection-system/internal/fights"
)

func TestCalcAggressivenessAndJudgmentSoloWin(t *testing.T) {
	games := [][]fights.Record{
		{
			{
				Kind:    fights.Kill,
				Allies:  map[int]bool{1: true},
				Enemies: map[int]bool{2: true},
				Victims: map[int]bool{2: true},
			},
		},
	}
	out := calcAggressivenessAndJudgment(games)
	if out["solo"].ratio != 1 {
		t.Errorf("solo ratio = %v, want 1 (single solo win over one game)", out["solo"].ratio)
	}
	if out["solo"].aggro != 1 {
		t.Errorf("solo aggro = %v, want 1", out["solo"].aggro)
	}
	if out["team"].ratio != 0 || out["skirmish"].ratio != 0 {
		t.Error("expected no skirmish/team fights counted")
	}
}

func TestCalcAggressivenessAndJudgmentEmpty(t *testing.T) {
	out := calcAggressivenessAndJudgment(nil)
	if out["solo"].ratio != 0 || out["team"].aggro != 0 {
		t.Error("expected zeroed aggregates with no games")
	}
}

func TestFightKindThresholds(t *testing.T) {
	cases := map[int]string{1: "solo", 2: "skirmish", 3: "skirmish", 4: "team", 5: "team"}
	for allies, want := range cases {
		if got := fightKind(allies); got != want {
			t.Errorf("fightKind(%d) = %q, want %q", allies, got, want)
		}
	}
}

func TestTopTwoLanes(t *testing.T) {
	seen := map[string]int{"TOP": 5, "JUNGLE": 1, "MID": 3, "BOTTOM": 0, "SUPPORT": 0}
	primary, secondary := topTwoLanes(seen)
	if primary != "TOP" {
		t.Errorf("primary = %q, want TOP", primary)
	}
	if secondary != "MID" {
		t.Errorf("secondary = %q, want MID", secondary)
	}
}

func TestAverageSkipsZeroCount(t *testing.T) {
	sums := map[string]float64{"kills": 10}
	counts := map[string]int{"kills": 2}
	out := average(sums, counts)
	if out["kills"] != 5 {
		t.Errorf("kills average = %v, want 5", out["kills"])
	}
	if out["gold_earned"] != 0 {
		t.Errorf("untouched stat should default to 0, got %v", out["gold_earned"])
	}
}
