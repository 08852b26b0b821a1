package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tabletopforge/component-extractor/internal/cache"
	"github.com/tabletopforge/component-extractor/internal/observability"
)

// schemaVersion participates in cache keys so stale entries from older result
// layouts can never be returned after an upgrade.
const schemaVersion = "v2"

// ResultCache stores terminal extraction results, including soft-degrade
// "tools unavailable" results, so a broken environment is not re-probed
// within the TTL window.
type ResultCache struct {
	client cache.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewResultCache creates a result cache on top of a cache driver.
func NewResultCache(client cache.Client, ttl time.Duration, logger *observability.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResultCache{client: client, ttl: ttl, logger: logger}
}

// Key derives the cache key from the source reference, the normalized
// options, and the schema version.
func (c *ResultCache) Key(sourceRef string, opts EffectiveOptions) string {
	optJSON, _ := json.Marshal(opts)
	h := sha256.New()
	h.Write([]byte(sourceRef))
	h.Write([]byte{'|'})
	h.Write(optJSON)
	h.Write([]byte{'|'})
	h.Write([]byte(schemaVersion))
	return "result:" + hex.EncodeToString(h.Sum(nil)[:16])
}

type cachedResult struct {
	Result    *Result   `json:"result"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Get retrieves a cached terminal result if present and unexpired.
func (c *ResultCache) Get(ctx context.Context, key string) (*Result, bool) {
	if c.client == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, key)
	if err != nil {
		if err != cache.ErrCacheMiss {
			c.logger.Debug().Err(err).Str("key", key).Msg("Cache get error")
		}
		return nil, false
	}

	var cached cachedResult
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached result")
		return nil, false
	}

	// The driver enforces TTL too; this guards drivers with coarser clocks.
	if time.Now().After(cached.ExpiresAt) {
		return nil, false
	}

	return cached.Result, true
}

// Set stores a terminal result.
func (c *ResultCache) Set(ctx context.Context, key string, res *Result) error {
	if c.client == nil {
		return nil
	}

	cached := cachedResult{
		Result:    res,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(c.ttl),
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache result")
		return err
	}
	return nil
}
