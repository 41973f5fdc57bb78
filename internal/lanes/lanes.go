// Package lanes infers each participant's lane from smite possession, minion
// counts, and minute-1-through-6 position vectors.
package lanes

import (
	"sort"
	"strconv"

	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
)

const (
	Top     = "TOP"
	Jungle  = "JUNGLE"
	Mid     = "MID"
	Bottom  = "BOTTOM"
	Support = "SUPPORT"

	smiteSpellID = 11
)

// MapGeometry names the map-specific boundary constants the lane inferrer
// uses, so a future map's geometry can be swapped in without touching the
// elimination algorithm itself.
type MapGeometry struct {
	// isTopSide/isBottomSide classify a frame position.
}

// DefaultGeometry is Summoner's Rift, the only map this system observes.
var DefaultGeometry = MapGeometry{}

func (MapGeometry) isTopSide(p riotapi.Position) bool {
	return p.Y >= 4880 && p.X <= 9880 && p.Y >= p.X+3000
}

func (MapGeometry) isBottomSide(p riotapi.Position) bool {
	return p.Y <= 9880 && p.X >= 4880 && p.Y <= p.X-5000
}

// Infer assigns each of a team's five participantIds a lane, returning a
// participantId -> lane map covering exactly this team.
func Infer(result *riotapi.MatchResult, timeline *riotapi.TimelineResponse, participantIDs [5]int) map[int]string {
	remaining := make(map[int]bool, 5)
	for _, id := range participantIDs {
		remaining[id] = true
	}

	byID := make(map[int]riotapi.MatchParticipant, 5)
	for _, p := range result.Info.Participants {
		if remaining[p.ParticipantID] {
			byID[p.ParticipantID] = p
		}
	}

	assignment := make(map[int]string, 5)

	jungler := pickJungler(byID, remaining)
	assignment[jungler] = Jungle
	delete(remaining, jungler)

	support := pickSupport(byID, remaining)
	assignment[support] = Support
	delete(remaining, support)

	top := pickBySideCount(timeline, remaining, DefaultGeometry.isTopSide)
	assignment[top] = Top
	delete(remaining, top)

	bottom := pickBySideCount(timeline, remaining, DefaultGeometry.isBottomSide)
	assignment[bottom] = Bottom
	delete(remaining, bottom)

	for id := range remaining {
		assignment[id] = Mid
	}

	return assignment
}

func hasSmite(p riotapi.MatchParticipant) bool {
	return p.Spell1ID == smiteSpellID || p.Spell2ID == smiteSpellID
}

// sortedIDs returns remaining's keys in ascending order, so callers that
// break ties by "first seen" get the same winner on every run instead of one
// that depends on Go's randomized map iteration order.
func sortedIDs(remaining map[int]bool) []int {
	ids := make([]int, 0, len(remaining))
	for id := range remaining {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func pickJungler(byID map[int]riotapi.MatchParticipant, remaining map[int]bool) int {
	ids := sortedIDs(remaining)
	candidates := make([]int, 0, len(ids))
	for _, id := range ids {
		if hasSmite(byID[id]) {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		candidates = ids
	}
	best, bestCS := -1, -1
	for _, id := range candidates {
		cs := byID[id].NeutralMinionsKilled
		if cs > bestCS {
			best, bestCS = id, cs
		}
	}
	return best
}

func pickSupport(byID map[int]riotapi.MatchParticipant, remaining map[int]bool) int {
	best, bestCS := -1, -1<<62
	for _, id := range sortedIDs(remaining) {
		cs := byID[id].TotalMinionsKilled
		if cs < bestCS {
			best, bestCS = id, cs
		}
	}
	return best
}

// pickBySideCount counts, per remaining participant, how many of frames 1-6
// (minute snapshots) land in the given side-predicate's region, and returns
// the participant with the highest count.
func pickBySideCount(timeline *riotapi.TimelineResponse, remaining map[int]bool, sidePredicate func(riotapi.Position) bool) int {
	ids := sortedIDs(remaining)
	counts := make(map[int]int, len(ids))
	for _, id := range ids {
		counts[id] = 0
	}

	frames := minuteFrames(timeline, 1, 6)
	for _, frame := range frames {
		for _, id := range ids {
			pos := positionFor(frame, id)
			if sidePredicate(pos) {
				counts[id]++
			}
		}
	}

	best, bestCount := -1, -1
	for _, id := range ids {
		c := counts[id]
		if c > bestCount {
			best, bestCount = id, c
		}
	}
	return best
}

// minuteFrames returns the timeline frames whose timestamp falls within
// minutes [fromMinute, toMinute] inclusive, assuming ~1-minute frame spacing.
func minuteFrames(timeline *riotapi.TimelineResponse, fromMinute, toMinute int) []riotapi.TimelineFrame {
	var out []riotapi.TimelineFrame
	for _, f := range timeline.Info.Frames {
		minute := int(f.Timestamp / 60000)
		if minute >= fromMinute && minute <= toMinute {
			out = append(out, f)
		}
	}
	return out
}

func positionFor(frame riotapi.TimelineFrame, participantID int) riotapi.Position {
	for key, pf := range frame.Participants {
		if pf.ParticipantID == participantID || key == strconv.Itoa(participantID) {
			return pf.Position
		}
	}
	return riotapi.DefaultPosition
}
