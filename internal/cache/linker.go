package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/trunov/assethub/internal/metadata"
	"github.com/trunov/assethub/internal/metrics"
)

// Linker caches record ids found by the wrapped linker. Misses are not
// cached so a record created later is picked up on the next ingestion.
// Redis errors fall through to the wrapped linker. A failed patch evicts
// the cached id so a deleted record is looked up again next time.
type Linker struct {
	next  metadata.Linker
	cache *Cache
	ttl   time.Duration

	mu sync.Mutex
	// record id -> key for lookups awaiting their patch
	pending map[string]string
}

func NewLinker(next metadata.Linker, cache *Cache, ttl time.Duration) *Linker {
	return &Linker{next: next, cache: cache, ttl: ttl, pending: make(map[string]string)}
}

func (l *Linker) FindByKey(ctx context.Context, key string) (string, bool, error) {
	id, err := l.cache.Get(ctx, key)
	switch {
	case err == nil && id != "":
		metrics.LinkerCache.WithLabelValues("hit").Inc()
		l.remember(id, key)
		return id, true, nil
	case err == nil, errors.Is(err, redis.Nil):
		metrics.LinkerCache.WithLabelValues("miss").Inc()
	default:
		metrics.LinkerCache.WithLabelValues("error").Inc()
		log.Warn().Str("component", "cache").Err(err).Str("key", key).Msg("record id cache read failed")
	}

	id, found, err := l.next.FindByKey(ctx, key)
	if err != nil || !found {
		return id, found, err
	}

	if err := l.cache.Store(ctx, key, l.ttl, id); err != nil {
		log.Warn().Str("component", "cache").Err(err).Str("key", key).Msg("record id cache write failed")
	}
	l.remember(id, key)
	return id, true, nil
}

func (l *Linker) PatchReference(ctx context.Context, recordID, url string) error {
	l.mu.Lock()
	key, ok := l.pending[recordID]
	delete(l.pending, recordID)
	l.mu.Unlock()

	err := l.next.PatchReference(ctx, recordID, url)
	if err != nil && ok {
		if rmErr := l.cache.Remove(ctx, key); rmErr != nil {
			log.Warn().Str("component", "cache").Err(rmErr).Str("key", key).Msg("record id cache evict failed")
		}
	}
	return err
}

func (l *Linker) remember(id, key string) {
	l.mu.Lock()
	l.pending[id] = key
	l.mu.Unlock()
}
