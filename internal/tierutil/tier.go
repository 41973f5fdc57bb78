// Package tierutil converts between the vendor's textual rank tiers and a
// numeric scale suitable for averaging, grounded on the original service's
// 27-level Tiers enum.
package tierutil

import "strings"

// Unranked is not part of the numeric scale and is excluded from averages.
const Unranked = "UNRANKED"

// levels lists every tier+division combination in ascending strength order,
// textual form "<TIER> <DIVISION>" (division omitted for apex tiers).
var levels = []string{
	"BRONZE V", "BRONZE IV", "BRONZE III", "BRONZE II", "BRONZE I",
	"SILVER V", "SILVER IV", "SILVER III", "SILVER II", "SILVER I",
	"GOLD V", "GOLD IV", "GOLD III", "GOLD II", "GOLD I",
	"PLATINUM V", "PLATINUM IV", "PLATINUM III", "PLATINUM II", "PLATINUM I",
	"DIAMOND V", "DIAMOND IV", "DIAMOND III", "DIAMOND II", "DIAMOND I",
	"MASTER I",
	"CHALLENGER I",
}

var numericByLevel = func() map[string]int {
	m := make(map[string]int, len(levels))
	for i, l := range levels {
		m[l] = i + 1
	}
	return m
}()

// TierOrder ranks bare tier names (ignoring division) for cross-division comparisons.
var TierOrder = map[string]int{
	"IRON": 0, "BRONZE": 1, "SILVER": 2, "GOLD": 3, "PLATINUM": 4,
	"EMERALD": 5, "DIAMOND": 6, "MASTER": 7, "GRANDMASTER": 8, "CHALLENGER": 9,
}

// DivisionOrder ranks divisions within a tier, IV lowest through I highest.
var DivisionOrder = map[string]int{
	"IV": 0, "III": 1, "II": 2, "I": 3,
}

// ToNumeric converts "<TIER> <DIVISION>" (or a bare apex tier) to its position
// on the 27-level scale. Returns 0, false for "UNRANKED" or anything unknown.
func ToNumeric(tier, division string) (int, bool) {
	tier = strings.ToUpper(strings.TrimSpace(tier))
	division = strings.ToUpper(strings.TrimSpace(division))
	if tier == Unranked || tier == "" {
		return 0, false
	}
	key := tier
	if division != "" {
		key = tier + " " + division
	}
	n, ok := numericByLevel[key]
	return n, ok
}

// FromNumeric converts a rounded numeric level back to its textual label.
func FromNumeric(n int) (string, bool) {
	if n < 1 || n > len(levels) {
		return "", false
	}
	return levels[n-1], true
}

// Average rounds the mean of several textual tiers back to a textual tier,
// excluding any "UNRANKED" entries. Returns "UNRANKED" if every entry was
// unranked (nothing to average).
func Average(tiers []string, divisions []string) string {
	sum, count := 0, 0
	for i := range tiers {
		div := ""
		if i < len(divisions) {
			div = divisions[i]
		}
		if n, ok := ToNumeric(tiers[i], div); ok {
			sum += n
			count++
		}
	}
	if count == 0 {
		return Unranked
	}
	avg := int(roundHalfUp(float64(sum) / float64(count)))
	label, ok := FromNumeric(avg)
	if !ok {
		return Unranked
	}
	return label
}

func roundHalfUp(f float64) float64 {
	if f < 0 {
		return -roundHalfUp(-f)
	}
	whole := float64(int(f))
	if f-whole >= 0.5 {
		return whole + 1
	}
	return whole
}

// IsEmerald4OrHigher reports whether a (tier, division) pair meets or exceeds
// Emerald IV — the minimum rank this system bothers collecting data for.
func IsEmerald4OrHigher(tier, division string) bool {
	tier = strings.ToUpper(strings.TrimSpace(tier))
	division = strings.ToUpper(strings.TrimSpace(division))

	order, ok := TierOrder[tier]
	if !ok {
		return false
	}

	// Master, Grandmaster and Challenger have no meaningful division.
	if tier == "MASTER" || tier == "GRANDMASTER" || tier == "CHALLENGER" {
		return true
	}

	if order < TierOrder["EMERALD"] {
		return false
	}
	if order > TierOrder["EMERALD"] {
		return true
	}
	// Exactly Emerald: any division counts, but it must be a recognised one.
	if division == "" {
		return false
	}
	_, ok = DivisionOrder[division]
	return ok
}
