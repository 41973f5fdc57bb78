// Package fights clusters a timeline's CHAMPION_KILL events around one focal
// participant into deduplicated fight records with allies/enemies/victims sets.
package fights

import (
	"sort"

	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
)

// ItemCosts resolves an item's gold cost for effective-gold-spent tracking.
// Item 0 is free; item 1018 is a legacy override worth 2200 gold regardless
// of what the (possibly absent) static data says - see the phantom-items note
// in SPEC_FULL.md §9.
type ItemCosts interface {
	Cost(itemID int) (int, bool)
}

var phantomItemOverrides = map[int]int{
	0:    0,
	1018: 2200,
}

func itemCost(costs ItemCosts, itemID int) int {
	if c, ok := phantomItemOverrides[itemID]; ok {
		return c
	}
	if costs != nil {
		if c, ok := costs.Cost(itemID); ok {
			return c
		}
	}
	return 0
}

// Kind distinguishes a kill record (focal was killer/assister) from a death
// record (focal was the victim).
type Kind int

const (
	Kill Kind = iota
	Death
)

// Record is one clustered fight event.
type Record struct {
	Timestamp          int64
	Kind               Kind
	Allies             map[int]bool // championIDs
	Enemies            map[int]bool
	Victims            map[int]bool
	EffectiveGoldSpent int // focal participant's economy state at this moment
}

type killEvent struct {
	timestamp int64
	killer    int
	assisters []int
	victim    int
}

// Cluster walks the timeline chronologically for the focal participant,
// emitting fight records per SPEC_FULL.md §4.6.
func Cluster(result *riotapi.MatchResult, timeline *riotapi.TimelineResponse, costs ItemCosts, focalParticipantID int) []Record {
	champByParticipant := buildChampionMap(result)

	var killEvents []killEvent

	effectiveGoldSpent := map[int]int{}

	for _, frame := range timeline.Info.Frames {
		for _, ev := range frame.Events {
			switch ev.Type {
			case "ITEM_PURCHASED":
				effectiveGoldSpent[ev.ParticipantID] += itemCost(costs, ev.ItemID)
			case "ITEM_DESTROYED", "ITEM_SOLD":
				effectiveGoldSpent[ev.ParticipantID] -= itemCost(costs, ev.ItemID)
			case "ITEM_UNDO":
				effectiveGoldSpent[ev.ParticipantID] -= itemCost(costs, ev.AfterID)
				effectiveGoldSpent[ev.ParticipantID] += itemCost(costs, ev.BeforeID)
			case "CHAMPION_KILL":
				killEvents = append(killEvents, killEvent{
					timestamp: ev.Timestamp,
					killer:    ev.KillerID,
					assisters: ev.AssistingIDs,
					victim:    ev.VictimID,
				})
			}
		}
	}

	// Allies/Enemies/Victims stay keyed by participantId through fight-building
	// and augmentation: two different participants who picked the same
	// champion (legal in solo queue, since the two teams don't share a
	// champion-select pool) must stay distinguishable until the 30s dedup
	// pass, which is the only stage SPEC_FULL.md §4.6 ties to the
	// participantId->championId remap.
	var records []Record
	for _, ke := range killEvents {
		participants := append([]int{ke.killer}, ke.assisters...)
		isKiller := containsInt(participants, focalParticipantID)
		isVictim := ke.victim == focalParticipantID
		if !isKiller && !isVictim {
			continue
		}

		rec := Record{
			Timestamp:          ke.timestamp,
			EffectiveGoldSpent: effectiveGoldSpent[focalParticipantID],
		}
		if isKiller {
			rec.Kind = Kill
			rec.Allies = idSet(participants)
			rec.Enemies = idSet([]int{ke.victim})
			rec.Victims = idSet([]int{ke.victim})
		} else {
			rec.Kind = Death
			rec.Allies = idSet([]int{ke.victim})
			rec.Enemies = idSet(participants)
			rec.Victims = idSet([]int{ke.victim})
		}
		records = append(records, rec)
	}

	for i := range records {
		augment(&records[i], killEvents)
	}

	for i := range records {
		records[i].Allies = remapToChampions(records[i].Allies, champByParticipant)
		records[i].Enemies = remapToChampions(records[i].Enemies, champByParticipant)
		records[i].Victims = remapToChampions(records[i].Victims, champByParticipant)
	}

	records = dedup(records)

	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp < records[j].Timestamp })
	return records
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// buildChampionMap maps participantId -> championId, with killer/victim id 0
// (the tower) mapping to championId 0.
func buildChampionMap(result *riotapi.MatchResult) map[int]int {
	m := map[int]int{0: 0}
	for _, p := range result.Info.Participants {
		m[p.ParticipantID] = p.ChampionID
	}
	return m
}

func idSet(participantIDs []int) map[int]bool {
	set := make(map[int]bool, len(participantIDs))
	for _, id := range participantIDs {
		set[id] = true
	}
	return set
}

func remapToChampions(participantSet map[int]bool, champByParticipant map[int]int) map[int]bool {
	set := make(map[int]bool, len(participantSet))
	for id := range participantSet {
		set[champByParticipant[id]] = true
	}
	return set
}

// augment scans all CHAMPION_KILL events within +-15s of rec's timestamp,
// expanding the record's knowledge of the fight per SPEC_FULL.md §4.6. For a
// kill record the "query" side is allies and the "grow" side is enemies; for
// a death record the roles are fully reversed. Sets here are still keyed by
// participantId, not championId - the remap happens after augmentation, not
// before it.
func augment(rec *Record, killEvents []killEvent) {
	query := rec.Allies
	grow := rec.Enemies
	if rec.Kind == Death {
		query = rec.Enemies
		grow = rec.Allies
	}

	for _, ke := range killEvents {
		if abs64(ke.timestamp-rec.Timestamp) > 15000 {
			continue
		}
		otherKillers := append([]int{ke.killer}, ke.assisters...)
		otherKillerSet := idSet(otherKillers)

		queryHitsKillers := false
		for id := range otherKillerSet {
			if query[id] {
				queryHitsKillers = true
				break
			}
		}

		if queryHitsKillers {
			grow[ke.victim] = true
			rec.Victims[ke.victim] = true
		} else if query[ke.victim] {
			for id := range otherKillerSet {
				grow[id] = true
			}
			rec.Victims[ke.victim] = true
		}
	}
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// dedup implements the 30s forward-window merge/subset/subtract pass.
func dedup(records []Record) []Record {
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp < records[j].Timestamp })

	cleared := make([]bool, len(records))
	for i := range records {
		if cleared[i] || len(records[i].Victims) == 0 {
			continue
		}
		for j := i + 1; j < len(records); j++ {
			if cleared[j] || records[j].Timestamp-records[i].Timestamp > 30000 {
				continue
			}
			if len(records[j].Victims) == 0 {
				continue
			}

			if isSubset(records[j].Victims, records[i].Victims) {
				mergeInto(&records[i], records[j])
				records[j].Victims = map[int]bool{}
				cleared[j] = true
				continue
			}
			if isSubset(records[i].Victims, records[j].Victims) {
				mergeInto(&records[j], records[i])
				records[i].Victims = map[int]bool{}
				cleared[i] = true
				break
			}

			subtract(records[j].Victims, records[i].Victims)
		}
	}

	var out []Record
	for i, r := range records {
		if cleared[i] {
			continue
		}
		if len(r.Victims) == 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

func isSubset(a, b map[int]bool) bool {
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func mergeInto(dst *Record, src Record) {
	for k := range src.Allies {
		dst.Allies[k] = true
	}
	for k := range src.Enemies {
		dst.Enemies[k] = true
	}
}

func subtract(a, b map[int]bool) {
	for k := range b {
		delete(a, k)
	}
}
