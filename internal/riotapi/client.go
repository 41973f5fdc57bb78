// Package riotapi wraps the upstream match-data vendor HTTP API: one method
// per endpoint class, each consulting the Quota Ledger before the request and
// validating the server's advertised rate limits after it.
package riotapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mew-www/lol-data-collection-system/internal/catalog"
	"github.com/Mew-www/lol-data-collection-system/internal/config"
)

// Permitter is the Quota Ledger's gate operation, consulted before every
// outgoing request.
type Permitter interface {
	Permit(ctx context.Context, apiKey, region, method, uri string) error
}

// Client is the API client described in SPEC_FULL.md §4.3.
type Client struct {
	apiKey     string
	catalog    *catalog.Catalog
	ledger     Permitter
	appQuotas  []config.Quota
	httpClient *http.Client

	// local smoothing limiter, layered in front of the ledger so an obviously
	// over-quota caller doesn't hammer the ledger's cross-process lock.
	smoother *rate.Limiter
}

// New builds a Client. appQuotas is the configured app-wide rate limit list,
// compared against the vendor's X-App-Rate-Limit header on every response.
func New(apiKey string, cat *catalog.Catalog, ledger Permitter, appQuotas []config.Quota) *Client {
	// Smooth to the tightest configured quota's implied steady-state rate.
	var rps float64 = 20
	if len(appQuotas) > 0 {
		tightest := appQuotas[0]
		for _, q := range appQuotas {
			if float64(q.MaxRequests)/float64(q.WindowSecs) < float64(tightest.MaxRequests)/float64(tightest.WindowSecs) {
				tightest = q
			}
		}
		rps = float64(tightest.MaxRequests) / float64(tightest.WindowSecs)
	}
	return &Client{
		apiKey:     apiKey,
		catalog:    cat,
		ledger:     ledger,
		appQuotas:  appQuotas,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		smoother:   rate.NewLimiter(rate.Limit(rps), int(rps*2)+1),
	}
}

// get performs one gated GET: smoother wait, ledger permit, HTTP GET, status
// check, app-rate-limit header validation.
func (c *Client) get(ctx context.Context, url, region, method string) (*http.Response, []byte, error) {
	if err := c.smoother.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("riotapi: smoothing wait: %w", err)
	}
	if err := c.ledger.Permit(ctx, c.apiKey, region, method, url); err != nil {
		return nil, nil, fmt.Errorf("riotapi: ledger permit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &ApiError{StatusCode: resp.StatusCode, Body: string(body)}
		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.RateLimitTyp = resp.Header.Get("X-Rate-Limit-Type")
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					apiErr.RetryAfterS = secs
				}
			}
		}
		return resp, body, apiErr
	}

	if err := c.validateAppRateLimits(resp.Header.Get("X-App-Rate-Limit")); err != nil {
		return resp, body, err
	}

	return resp, body, nil
}

// validateAppRateLimits compares the server's advertised app quotas against
// our configuration: sorted by window length, compared element-wise.
func (c *Client) validateAppRateLimits(header string) error {
	if header == "" || len(c.appQuotas) == 0 {
		return nil
	}
	pairs := strings.Split(header, ",")
	received := make([]config.Quota, 0, len(pairs))
	for _, p := range pairs {
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			continue
		}
		n, err1 := strconv.Atoi(parts[0])
		w, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			continue
		}
		received = append(received, config.Quota{MaxRequests: n, WindowSecs: w})
	}

	if len(received) != len(c.appQuotas) {
		return NewRatelimitMismatchError(fmt.Sprintf(
			"number of app rate limits: configured %d, received %d", len(c.appQuotas), len(received)))
	}

	sort.Slice(received, func(i, j int) bool { return received[i].WindowSecs < received[j].WindowSecs })
	configured := make([]config.Quota, len(c.appQuotas))
	copy(configured, c.appQuotas)
	sort.Slice(configured, func(i, j int) bool { return configured[i].WindowSecs < configured[j].WindowSecs })

	for i := range configured {
		if configured[i].WindowSecs != received[i].WindowSecs {
			return NewRatelimitMismatchError(fmt.Sprintf(
				"app rate limit window mismatch at index %d: configured %d, received %d",
				i, configured[i].WindowSecs, received[i].WindowSecs))
		}
		if configured[i].MaxRequests != received[i].MaxRequests {
			return NewRatelimitMismatchError(fmt.Sprintf(
				"app rate limit max mismatch at index %d: configured %d, received %d",
				i, configured[i].MaxRequests, received[i].MaxRequests))
		}
	}
	return nil
}

// GetAccountByRiotID resolves a Riot ID (gameName#tagLine) to a PUUID.
func (c *Client) GetAccountByRiotID(ctx context.Context, region, gameName, tagLine string) (*Account, error) {
	regionalHost, err := catalog.RegionalHostForRegion(region)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("https://%s/riot/account/v1/accounts/by-riot-id/%s/%s?api_key=%s",
		regionalHost, gameName, tagLine, c.apiKey)
	_, body, err := c.get(ctx, url, region, catalog.MethodAccountByRiotID)
	if err != nil {
		return nil, err
	}
	var acc Account
	if err := json.Unmarshal(body, &acc); err != nil {
		return nil, fmt.Errorf("riotapi: decoding account: %w", err)
	}
	return &acc, nil
}

// GetSummoner fetches the summoner-v4 record by PUUID.
func (c *Client) GetSummoner(ctx context.Context, region, platformHost, puuid string) (*Summoner, error) {
	url := fmt.Sprintf("https://%s/lol/summoner/v4/summoners/by-puuid/%s?api_key=%s", platformHost, puuid, c.apiKey)
	_, body, err := c.get(ctx, url, region, catalog.MethodSummonerByName)
	if err != nil {
		return nil, err
	}
	var s Summoner
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("riotapi: decoding summoner: %w", err)
	}
	return &s, nil
}

// GetLeagueEntries fetches league-v4 entries for a summoner.
func (c *Client) GetLeagueEntries(ctx context.Context, region, platformHost, summonerID string) ([]LeagueEntry, error) {
	url := catalog.LeagueEntriesURL(platformHost, summonerID, c.apiKey)
	_, body, err := c.get(ctx, url, region, catalog.MethodLeagueBySummoner)
	if err != nil {
		return nil, err
	}
	var entries []LeagueEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("riotapi: decoding league entries: %w", err)
	}
	return entries, nil
}

// GetActiveMatch polls the spectator endpoint. A 404 means "no active game"
// and is the caller's responsibility to treat as absence (via the Retry Envelope).
func (c *Client) GetActiveMatch(ctx context.Context, region, platformHost, puuid string) (*ActiveMatch, error) {
	url := catalog.ActiveMatchURL(platformHost, puuid, c.apiKey)
	_, body, err := c.get(ctx, url, region, catalog.MethodSpectatorActive)
	if err != nil {
		return nil, err
	}
	var m ActiveMatch
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("riotapi: decoding active match: %w", err)
	}
	return &m, nil
}

// GetMatchlist fetches match ids for puuid within [startTimeS, endTimeS), queue 420 only.
func (c *Client) GetMatchlist(ctx context.Context, region, puuid string, startTimeS, endTimeS int64) ([]string, error) {
	regionalHost, err := catalog.RegionalHostForRegion(region)
	if err != nil {
		return nil, err
	}
	url := catalog.MatchlistURL(regionalHost, puuid, startTimeS, endTimeS, c.apiKey)
	_, body, err := c.get(ctx, url, region, catalog.MethodMatchlistByPUUID)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, fmt.Errorf("riotapi: decoding matchlist: %w", err)
	}
	return ids, nil
}

// GetMatchResult fetches the completed match result. A 404 here is treated by
// the Retry Envelope as "still in progress."
func (c *Client) GetMatchResult(ctx context.Context, region, matchID string) (*MatchResult, error) {
	regionalHost, err := catalog.RegionalHostForRegion(region)
	if err != nil {
		return nil, err
	}
	url := catalog.MatchResultURL(regionalHost, matchID, c.apiKey)
	_, body, err := c.get(ctx, url, region, catalog.MethodMatchByMatchID)
	if err != nil {
		return nil, err
	}
	var m MatchResult
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("riotapi: decoding match result: %w", err)
	}
	return &m, nil
}

// GetMatchTimeline fetches the completed match's timeline (best-effort).
func (c *Client) GetMatchTimeline(ctx context.Context, region, matchID string) (*TimelineResponse, error) {
	regionalHost, err := catalog.RegionalHostForRegion(region)
	if err != nil {
		return nil, err
	}
	url := catalog.MatchTimelineURL(regionalHost, matchID, c.apiKey)
	_, body, err := c.get(ctx, url, region, catalog.MethodTimelineByMatchID)
	if err != nil {
		return nil, err
	}
	var tl TimelineResponse
	if err := json.Unmarshal(body, &tl); err != nil {
		return nil, fmt.Errorf("riotapi: decoding timeline: %w", err)
	}
	return &tl, nil
}
