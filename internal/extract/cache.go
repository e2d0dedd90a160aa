package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/arke-institute/kgextractor/internal/observability"
)

// ResolutionCacheConfig configures the optional, non-authoritative
// check-create resolution cache (spec §4.5.1). Connection option building
// is adapted from the teacher's FalkorDBStore, repurposed from a Cypher
// graph backend to a plain key/value cache.
type ResolutionCacheConfig struct {
	Addr           string
	Password       string
	Database       int
	PoolSize       int
	ConnectTimeout time.Duration
	TTL            time.Duration
}

// DefaultResolutionCacheConfig returns sensible defaults.
func DefaultResolutionCacheConfig() ResolutionCacheConfig {
	return ResolutionCacheConfig{
		Addr:           "localhost:6379",
		Database:       0,
		PoolSize:       10,
		ConnectTimeout: 5 * time.Second,
		TTL:            5 * time.Second,
	}
}

// ResolutionCache is a short-TTL, best-effort cache of already-resolved
// (collection, label, type) -> entityId mappings. It exists purely to skip
// a round-trip for labels this process recently resolved; it is never
// consulted inside the race-critical Lookup-N/resolve steps of
// CheckCreateEngine.CheckCreate and never substitutes for a live lookup
// there — see the design note in SPEC_FULL.md §9. Connection failures
// degrade silently to "always miss": a cache that is down must never turn
// into a job failure.
type ResolutionCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewResolutionCache constructs a cache. The connection is not verified
// here; the first Get/Put simply no-ops on failure.
func NewResolutionCache(cfg ResolutionCacheConfig) *ResolutionCache {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.Database,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.ConnectTimeout,
	})
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &ResolutionCache{
		client: client,
		ttl:    ttl,
		logger: observability.Logger("extract.resolutioncache"),
	}
}

func (c *ResolutionCache) key(collection, label, entityType string) string {
	return fmt.Sprintf("kgextractor:resolved:%s:%s:%s", collection, entityType, label)
}

// GetResolved returns a previously resolved entity id for (collection,
// label, type), if still cached.
func (c *ResolutionCache) GetResolved(collection, label, entityType string) (string, bool) {
	if c == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	val, err := c.client.Get(ctx, c.key(collection, label, entityType)).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// PutResolved records a resolution for ttl, best-effort.
func (c *ResolutionCache) PutResolved(collection, label, entityType, entityID string) {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	if err := c.client.Set(ctx, c.key(collection, label, entityType), entityID, c.ttl).Err(); err != nil {
		observability.LogError(c.logger, err, "resolution cache write failed, continuing without cache", nil)
	}
}

// Close releases the underlying Redis connection pool.
func (c *ResolutionCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
