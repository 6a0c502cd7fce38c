package sentiment

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentiGate/internal/domain/models"
)

func sentimentEvent(id string, score float64, observedAt time.Time) models.SentimentEvent {
	return models.SentimentEvent{
		InstrumentID: id,
		Score:        score,
		SourceID:     "newswire",
		Headline:     "headline",
		ObservedAt:   observedAt,
		ReceivedAt:   observedAt,
	}
}

func TestCacheNewerObservationWins(t *testing.T) {
	c := NewCache(4 * time.Hour)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.True(t, c.Upsert(sentimentEvent("BTC-USD", 0.2, base)))
	assert.True(t, c.Upsert(sentimentEvent("BTC-USD", 0.8, base.Add(time.Hour))))

	entry, ok, stale := c.Read("BTC-USD", base.Add(time.Hour))
	require.True(t, ok)
	assert.False(t, stale)
	assert.Equal(t, 0.8, entry.Score)
}

func TestCacheOlderObservationRejected(t *testing.T) {
	c := NewCache(4 * time.Hour)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.True(t, c.Upsert(sentimentEvent("BTC-USD", 0.8, base)))

	// Late arrival observed earlier must not regress the entry.
	assert.False(t, c.Upsert(sentimentEvent("BTC-USD", -0.5, base.Add(-time.Hour))))
	// Equal ObservedAt is not strictly newer either.
	assert.False(t, c.Upsert(sentimentEvent("BTC-USD", -0.5, base)))

	entry, ok, _ := c.Read("BTC-USD", base)
	require.True(t, ok)
	assert.Equal(t, 0.8, entry.Score)
	assert.Equal(t, base, entry.ObservedAt)
}

func TestCacheOrderIndependence(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	events := []models.SentimentEvent{
		sentimentEvent("BTC-USD", 0.1, base),
		sentimentEvent("BTC-USD", 0.5, base.Add(time.Hour)),
		sentimentEvent("BTC-USD", 0.9, base.Add(2*time.Hour)),
	}

	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}, {2, 0, 1}}
	for _, order := range orders {
		c := NewCache(4 * time.Hour)
		for _, i := range order {
			c.Upsert(events[i])
		}
		entry, ok, _ := c.Read("BTC-USD", base.Add(2*time.Hour))
		require.True(t, ok)
		assert.Equal(t, 0.9, entry.Score, "delivery order %v", order)
	}
}

func TestCacheStaleness(t *testing.T) {
	c := NewCache(4 * time.Hour)
	observed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.True(t, c.Upsert(sentimentEvent("BTC-USD", 0.8, observed)))

	_, ok, stale := c.Read("BTC-USD", observed.Add(3*time.Hour))
	require.True(t, ok)
	assert.False(t, stale, "3h old against a 4h threshold is fresh")

	_, ok, stale = c.Read("BTC-USD", observed.Add(5*time.Hour))
	require.True(t, ok)
	assert.True(t, stale, "5h old against a 4h threshold is stale")

	_, ok, stale = c.Read("BTC-USD", observed.Add(4*time.Hour))
	require.True(t, ok)
	assert.False(t, stale, "threshold is exceeded, not met")
}

func TestCacheMissingInstrument(t *testing.T) {
	c := NewCache(4 * time.Hour)

	entry, ok, stale := c.Read("BTC-USD", time.Now())
	assert.False(t, ok)
	assert.False(t, stale)
	assert.Zero(t, entry)
}

func TestCacheZeroScoreIsValid(t *testing.T) {
	c := NewCache(4 * time.Hour)
	observed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.True(t, c.Upsert(sentimentEvent("BTC-USD", 0, observed)))

	entry, ok, stale := c.Read("BTC-USD", observed)
	require.True(t, ok)
	assert.False(t, stale)
	assert.Zero(t, entry.Score, "a neutral zero is a real observation, not absence")
}

func TestCacheSnapshot(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache(4*time.Hour, WithClock(func() time.Time { return clock }))
	base := clock.Add(-time.Hour)

	c.Upsert(sentimentEvent("BTC-USD", 0.3, base))
	c.Upsert(sentimentEvent("ETH-USD", -0.2, base))

	snap := c.Snapshot()
	require.Len(t, snap, 2)
	for _, e := range snap {
		assert.Equal(t, clock, e.CachedAt)
	}
}

func TestCacheConcurrentUpserts(t *testing.T) {
	c := NewCache(4 * time.Hour)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Upsert(sentimentEvent("BTC-USD", float64(i)/50, base.Add(time.Duration(i)*time.Minute)))
		}(i)
	}
	wg.Wait()

	entry, ok, _ := c.Read("BTC-USD", base.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, base.Add(49*time.Minute), entry.ObservedAt, "highest ObservedAt wins regardless of interleaving")
}
