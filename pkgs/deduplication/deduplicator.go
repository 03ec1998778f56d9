package deduplication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ASingh442/sikh-historical-chain/pkgs/metrics"
	shcredis "github.com/ASingh442/sikh-historical-chain/pkgs/redis"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Deduplicator remembers which content hashes have already been pinned and
// under which CID, so identical bytes are never stored twice. A local LRU
// answers repeat lookups; Redis, when configured, shares the memo between
// processes.
type Deduplicator struct {
	redis      redis.UniversalClient
	keys       *shcredis.KeyBuilder
	localCache *lru.Cache[string, string]
	ttl        time.Duration
}

// NewDeduplicator creates a deduplicator. redisClient may be nil, in which
// case only the local layer is used. A zero ttl keeps Redis entries forever.
func NewDeduplicator(redisClient redis.UniversalClient, keys *shcredis.KeyBuilder, localCacheSize int, ttl time.Duration) (*Deduplicator, error) {
	if localCacheSize <= 0 {
		localCacheSize = 1024
	}
	cache, err := lru.New[string, string](localCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	if keys == nil {
		keys = shcredis.NewKeyBuilder("", "")
	}

	return &Deduplicator{
		redis:      redisClient,
		keys:       keys,
		localCache: cache,
		ttl:        ttl,
	}, nil
}

// Lookup returns the CID previously recorded for contentHash.
func (d *Deduplicator) Lookup(ctx context.Context, contentHash string) (string, bool, error) {
	// Fast path: local LRU cache
	if cid, ok := d.localCache.Get(contentHash); ok {
		metrics.DedupHits.WithLabelValues("local").Inc()
		log.Debugf("Dedup hit (local cache): %s", contentHash)
		return cid, true, nil
	}

	if d.redis == nil {
		return "", false, nil
	}

	cid, err := d.redis.Get(ctx, d.keys.PinnedContent(contentHash)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis GET failed: %w", err)
	}

	d.localCache.Add(contentHash, cid)
	metrics.DedupHits.WithLabelValues("redis").Inc()
	log.Debugf("Dedup hit (redis): %s", contentHash)
	return cid, true, nil
}

// Remember records that contentHash is pinned as cid. When another process
// recorded the hash first, its CID wins and is returned.
func (d *Deduplicator) Remember(ctx context.Context, contentHash, cid string) (string, error) {
	if d.redis == nil {
		d.localCache.Add(contentHash, cid)
		return cid, nil
	}

	key := d.keys.PinnedContent(contentHash)
	ok, err := d.redis.SetNX(ctx, key, cid, d.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis SetNX failed: %w", err)
	}

	if !ok {
		existing, err := d.redis.Get(ctx, key).Result()
		if err != nil {
			return "", fmt.Errorf("redis GET failed: %w", err)
		}
		cid = existing
	}

	d.localCache.Add(contentHash, cid)
	return cid, nil
}

// GetStats reports the size of both layers.
func (d *Deduplicator) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{
		"local_cache_size": d.localCache.Len(),
		"ttl_seconds":      d.ttl.Seconds(),
	}
	if d.redis == nil {
		return stats, nil
	}

	// Use SCAN to count keys without blocking
	var cursor uint64
	var totalKeys int64
	for {
		keys, nextCursor, err := d.redis.Scan(ctx, cursor, d.keys.PinnedContentPattern(), 100).Result()
		if err != nil {
			return nil, err
		}
		totalKeys += int64(len(keys))
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	stats["total_dedup_keys"] = totalKeys
	return stats, nil
}

// ClearLocal clears the local LRU cache (useful for testing)
func (d *Deduplicator) ClearLocal() {
	d.localCache.Purge()
	log.Info("Local deduplication cache cleared")
}
