// Package catalog maps vendor region names, platform codes and hosts onto
// one another, and enumerates the URL templates used by the API client.
package catalog

import "fmt"

// UnknownError is returned by every lookup when the input isn't in the table.
// Lookups never silently fall back to a default.
type UnknownError struct {
	Kind  string
	Value string
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("catalog: unknown %s %q", e.Kind, e.Value)
}

type hostEntry struct {
	host      string
	region    string
	platforms []string
}

// Catalog is the static, immutable region/platform/host table.
type Catalog struct {
	entries []hostEntry
}

// New builds the default catalog, grounded on the original service's
// regional_riotapi_hosts table: br1/eun1/euw1/jp1/kr/la1/la2/na1/oc1/tr1/ru/pbe1.
func New() *Catalog {
	return &Catalog{entries: []hostEntry{
		{host: "br1.api.riotgames.com", region: "BR", platforms: []string{"BR1"}},
		{host: "eun1.api.riotgames.com", region: "EUNE", platforms: []string{"EUN1"}},
		{host: "euw1.api.riotgames.com", region: "EUW", platforms: []string{"EUW1"}},
		{host: "jp1.api.riotgames.com", region: "JP", platforms: []string{"JP1"}},
		{host: "kr.api.riotgames.com", region: "KR", platforms: []string{"KR"}},
		{host: "la1.api.riotgames.com", region: "LAN", platforms: []string{"LA1"}},
		{host: "la2.api.riotgames.com", region: "LAS", platforms: []string{"LA2"}},
		// NA1 carries both platform spellings seen in the wild.
		{host: "na1.api.riotgames.com", region: "NA", platforms: []string{"NA1", "NA"}},
		{host: "oc1.api.riotgames.com", region: "OCE", platforms: []string{"OC1"}},
		{host: "tr1.api.riotgames.com", region: "TR", platforms: []string{"TR1"}},
		{host: "ru.api.riotgames.com", region: "RU", platforms: []string{"RU"}},
		{host: "pbe1.api.riotgames.com", region: "PBE", platforms: []string{"PBE1"}},
	}}
}

// HostForRegion resolves a region name to its API host.
func (c *Catalog) HostForRegion(region string) (string, error) {
	for _, e := range c.entries {
		if e.region == region {
			return e.host, nil
		}
	}
	return "", &UnknownError{Kind: "region", Value: region}
}

// HostForPlatform resolves a platform code to its API host.
func (c *Catalog) HostForPlatform(platform string) (string, error) {
	for _, e := range c.entries {
		for _, p := range e.platforms {
			if p == platform {
				return e.host, nil
			}
		}
	}
	return "", &UnknownError{Kind: "platform", Value: platform}
}

// RegionForPlatform resolves a platform code to its region name.
func (c *Catalog) RegionForPlatform(platform string) (string, error) {
	for _, e := range c.entries {
		for _, p := range e.platforms {
			if p == platform {
				return e.region, nil
			}
		}
	}
	return "", &UnknownError{Kind: "platform", Value: platform}
}

// PlatformForRegion resolves a region name to its canonical (first) platform code.
func (c *Catalog) PlatformForRegion(region string) (string, error) {
	for _, e := range c.entries {
		if e.region == region {
			return e.platforms[0], nil
		}
	}
	return "", &UnknownError{Kind: "region", Value: region}
}

// Endpoint URL templates, parameterised by host/entity id/api key.
// Method keys match the vendor's own rate-limit bucket labels so they can be
// used directly as the Ledger's method key.
const (
	MethodSummonerByName    = "/lol/summoner/v4/summoners/by-name/{summonerName}"
	MethodAccountByRiotID   = "/riot/account/v1/accounts/by-riot-id/{gameName}/{tagLine}"
	MethodLeagueBySummoner  = "leagues-v4 endpoints"
	MethodSpectatorActive   = "/lol/spectator/v5/active-games/by-summoner/{encryptedPUUID}"
	MethodMatchlistByPUUID  = "/lol/match/v5/matches/by-puuid/{puuid}/ids"
	MethodMatchByMatchID    = "/lol/match/v5/[matches,timelines]"
	MethodTimelineByMatchID = "/lol/match/v5/[matches,timelines]"
)

// SummonerByNameURL builds the summoner-by-name URL for the given host.
func SummonerByNameURL(host, summonerName, apiKey string) string {
	return fmt.Sprintf("https://%s/lol/summoner/v4/summoners/by-name/%s?api_key=%s", host, summonerName, apiKey)
}

// LeagueEntriesURL builds the league-entries-by-summoner URL.
func LeagueEntriesURL(host, summonerID, apiKey string) string {
	return fmt.Sprintf("https://%s/lol/league/v4/entries/by-summoner/%s?api_key=%s", host, summonerID, apiKey)
}

// ActiveMatchURL builds the active (spectator) match URL.
func ActiveMatchURL(host, puuid, apiKey string) string {
	return fmt.Sprintf("https://%s/lol/spectator/v5/active-games/by-summoner/%s?api_key=%s", host, puuid, apiKey)
}

// MatchlistURL builds the matchlist-by-puuid URL, bounded to queue 420 and a time window.
func MatchlistURL(regionalHost, puuid string, startTimeS, endTimeS int64, apiKey string) string {
	return fmt.Sprintf("https://%s/lol/match/v5/matches/by-puuid/%s/ids?queue=420&startTime=%d&endTime=%d&count=100&api_key=%s",
		regionalHost, puuid, startTimeS, endTimeS, apiKey)
}

// MatchResultURL builds the match-result URL.
func MatchResultURL(regionalHost, matchID, apiKey string) string {
	return fmt.Sprintf("https://%s/lol/match/v5/matches/%s?api_key=%s", regionalHost, matchID, apiKey)
}

// MatchTimelineURL builds the match-timeline URL.
func MatchTimelineURL(regionalHost, matchID, apiKey string) string {
	return fmt.Sprintf("https://%s/lol/match/v5/matches/%s/timeline?api_key=%s", regionalHost, matchID, apiKey)
}

// RegionalHostForRegion maps a platform region (e.g. NA, EUW) to the routing
// value used by the v5 match endpoints (americas/europe/asia), since those
// endpoints are routed continentally rather than per-platform.
func RegionalHostForRegion(region string) (string, error) {
	switch region {
	case "NA", "LAN", "LAS", "BR", "OCE":
		return "americas.api.riotgames.com", nil
	case "EUW", "EUNE", "TR", "RU":
		return "europe.api.riotgames.com", nil
	case "KR", "JP":
		return "asia.api.riotgames.com", nil
	default:
		return "", &UnknownError{Kind: "region", Value: region}
	}
}
