package rates

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultTTL is how long a fetched rate is trusted. Expiry is evaluated at
// read time; there is no background eviction.
const DefaultTTL = 24 * time.Hour

// Fetcher is the remote lookup seam, satisfied by *Client.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (map[string]decimal.Decimal, error)
}

// Store persists cache entries across restarts. Satisfied by
// repository.SettingsRepo; may be nil for a purely in-memory cache.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type entry struct {
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Cache is the time-boxed conversion-rate cache. Keyed by (base, target) pair;
// unbounded beyond the set of pairs actually requested, which the supported
// currency list keeps small.
type Cache struct {
	Client Fetcher
	Log    zerolog.Logger

	TTL   time.Duration
	Now   func() time.Time
	store Store

	mu      sync.Mutex
	entries map[string]entry
}

func NewCache(client Fetcher, store Store, log zerolog.Logger) *Cache {
	return &Cache{
		Client:  client,
		Log:     log,
		TTL:     DefaultTTL,
		Now:     time.Now,
		store:   store,
		entries: make(map[string]entry),
	}
}

// GetRate returns the multiplier converting one unit of base into target, and
// whether a rate is available at all. Lookup order: fresh cached entry, primary
// source, fallback source, then - only when every source failed - a stale
// cached entry. When nothing is available the caller gets ok=false and must
// treat the conversion as unavailable, not as 1.0.
func (c *Cache) GetRate(ctx context.Context, base, target string) (decimal.Decimal, bool) {
	base = strings.ToLower(strings.TrimSpace(base))
	target = strings.ToLower(strings.TrimSpace(target))
	key := cacheKey(base, target)

	cached, found := c.lookup(ctx, key)
	if found && c.Now().Sub(cached.FetchedAt) < c.TTL {
		return cached.Rate, true
	}

	table, err := c.Client.Fetch(ctx, target)
	if err == nil {
		if rate, ok := table[base]; ok {
			c.save(ctx, key, entry{Rate: rate, FetchedAt: c.Now()})
			return rate, true
		}
		c.Log.Warn().Str("base", base).Str("target", target).Msg("rate table has no entry for base currency")
	} else {
		c.Log.Warn().Err(err).Str("base", base).Str("target", target).Msg("rate fetch failed")
	}

	// Stale beats nothing, but only after every source has failed.
	if found {
		c.Log.Warn().Str("base", base).Str("target", target).
			Time("fetched_at", cached.FetchedAt).Msg("serving stale exchange rate")
		return cached.Rate, true
	}
	return decimal.Decimal{}, false
}

func (c *Cache) lookup(ctx context.Context, key string) (entry, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return e, true
	}
	if c.store == nil {
		return entry{}, false
	}
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return entry{}, false
	}
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return entry{}, false
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return e, true
}

func (c *Cache) save(ctx context.Context, key string, e entry) {
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	if c.store == nil {
		return
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, string(raw)); err != nil {
		c.Log.Warn().Err(err).Str("key", key).Msg("persist rate entry failed")
	}
}

func cacheKey(base, target string) string {
	return "rate." + base + "." + target
}
