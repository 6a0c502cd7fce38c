package sentiment

import (
	"sync"
	"time"

	"SentiGate/internal/domain/models"
	"SentiGate/internal/domain/repository"
)

// Cache is the per-instrument latest-sentiment store. Upsert is a
// compare-and-swap on ObservedAt so late-arriving but older observations can
// never regress an entry, whatever order the bus delivers them in. Reads
// return a copy of the whole record; a reader can never observe a
// half-written entry.
type Cache struct {
	mu        sync.RWMutex
	entries   map[string]models.CachedSentiment
	threshold time.Duration
	clock     func() time.Time
}

// CacheOption configures Cache.
type CacheOption func(*Cache)

// WithClock overrides the wall clock used for CachedAt stamps. Meant for
// tests.
func WithClock(clock func() time.Time) CacheOption {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewCache creates a cache with the given staleness threshold.
func NewCache(threshold time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		entries:   make(map[string]models.CachedSentiment),
		threshold: threshold,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upsert replaces the stored entry only when the event was observed strictly
// after the current one. Returns true when the entry changed.
func (c *Cache) Upsert(event models.SentimentEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.entries[event.InstrumentID]
	if ok && !event.ObservedAt.After(cur.ObservedAt) {
		return false
	}

	c.entries[event.InstrumentID] = models.CachedSentiment{
		InstrumentID: event.InstrumentID,
		Score:        event.Score,
		ObservedAt:   event.ObservedAt,
		Headline:     event.Headline,
		SourceID:     event.SourceID,
		CachedAt:     c.clock(),
	}
	return true
}

// Read returns a snapshot of the entry plus present and stale flags, with
// staleness evaluated against the threshold at the supplied instant. Callers
// must treat absent-or-stale as "no usable sentiment"; zero is a valid
// neutral score and never a stand-in for missing data.
func (c *Cache) Read(instrumentID string, now time.Time) (models.CachedSentiment, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[instrumentID]
	if !ok {
		return models.CachedSentiment{}, false, false
	}
	stale := entry.Staleness(now) > c.threshold
	return entry, true, stale
}

// Snapshot returns a copy of every live entry, for the ops surface.
func (c *Cache) Snapshot() []models.CachedSentiment {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.CachedSentiment, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}

var _ repository.SentimentStore = (*Cache)(nil)
