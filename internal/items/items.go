// Package items provides the per-semver items catalogue used by the Fight
// Clusterer and History Extractor, fetched from the vendor's static data
// endpoints and memoised in the persistence layer.
package items

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/Mew-www/lol-data-collection-system/internal/riotapi"
)

// itemGameData is the subset of the vendor's static item data we need.
type itemGameData struct {
	Gold struct {
		Total int `json:"total"`
	} `json:"gold"`
}

// Catalogue resolves an item's gold cost for one game version.
type Catalogue struct {
	Semver string
	byID   map[int]itemGameData
}

// Cost implements fights.ItemCosts.
func (c *Catalogue) Cost(itemID int) (int, bool) {
	if c == nil {
		return 0, false
	}
	d, ok := c.byID[itemID]
	if !ok {
		return 0, false
	}
	return d.Gold.Total, true
}

// Store persists and retrieves a semver's raw items JSON blob.
type Store interface {
	GetItemsJSON(ctx context.Context, semver string) ([]byte, error) // riotapi.MissingStaticDataError if absent
	SaveItemsJSON(ctx context.Context, semver string, raw []byte) error
}

// Cache lazily loads and memoises per-semver item catalogues: first in the
// persistent Store, falling back to a live fetch from the vendor's static
// data endpoint on a cache/store miss.
type Cache struct {
	store      Store
	httpClient *http.Client

	mu    sync.Mutex
	memo  map[string]*Catalogue
}

func NewCache(store Store) *Cache {
	return &Cache{store: store, httpClient: &http.Client{}, memo: map[string]*Catalogue{}}
}

// Get returns the items catalogue for semver, memoised per-process. A
// riotapi.MissingStaticDataError means histories must be skipped for that
// match, per SPEC_FULL.md §4.8.
func (c *Cache) Get(ctx context.Context, semver string) (*Catalogue, error) {
	c.mu.Lock()
	if cat, ok := c.memo[semver]; ok {
		c.mu.Unlock()
		return cat, nil
	}
	c.mu.Unlock()

	raw, err := c.store.GetItemsJSON(ctx, semver)
	if err != nil {
		var missing *riotapi.MissingStaticDataError
		if !isMissingStaticData(err, &missing) {
			return nil, err
		}
		raw, err = c.fetchAndPersist(ctx, semver)
		if err != nil {
			return nil, err
		}
	}

	cat, err := parseCatalogue(semver, raw)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.memo[semver] = cat
	c.mu.Unlock()
	return cat, nil
}

func isMissingStaticData(err error, target **riotapi.MissingStaticDataError) bool {
	m, ok := err.(*riotapi.MissingStaticDataError)
	if ok {
		*target = m
	}
	return ok
}

func (c *Cache) fetchAndPersist(ctx context.Context, semver string) ([]byte, error) {
	// Data-dragon style static endpoint, parameterised by the major.minor
	// prefix of semver plus a trailing ".1", matching the vendor's patch
	// publishing convention observed in the original implementation.
	majorMinor := semver
	if parts := strings.SplitN(semver, ".", 3); len(parts) >= 2 {
		majorMinor = parts[0] + "." + parts[1]
	}
	url := fmt.Sprintf("https://ddragon.leagueoflegends.com/cdn/%s.1/data/en_US/item.json", majorMinor)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &riotapi.MissingStaticDataError{Semver: semver}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &riotapi.MissingStaticDataError{Semver: semver}
	}

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &riotapi.MissingStaticDataError{Semver: semver}
	}

	if err := c.store.SaveItemsJSON(ctx, semver, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func parseCatalogue(semver string, raw []byte) (*Catalogue, error) {
	var doc struct {
		Data map[string]itemGameData `json:"data"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("items: parsing catalogue for %s: %w", semver, err)
	}
	byID := make(map[int]itemGameData, len(doc.Data))
	for key, d := range doc.Data {
		var id int
		if _, err := fmt.Sscanf(key, "%d", &id); err != nil {
			continue
		}
		byID[id] = d
	}
	return &Catalogue{Semver: semver, byID: byID}, nil
}
