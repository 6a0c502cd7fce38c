package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentiGate/internal/domain/models"
	"SentiGate/internal/sentiment"
	pkgcache "SentiGate/pkg/cache"
	"SentiGate/pkg/logger"
)

// fakeMetrics counts calls per metric so tests can assert accounting.
type fakeMetrics struct {
	mu         sync.Mutex
	decisions  map[string]int
	dropped    map[string]int
	rejects    map[string]int
	staleReads int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		decisions: make(map[string]int),
		dropped:   make(map[string]int),
		rejects:   make(map[string]int),
	}
}

func (m *fakeMetrics) RecordDecision(instrument string, action models.Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[string(action)]++
}

func (m *fakeMetrics) RecordEventDropped(kind, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[kind+"/"+reason]++
}

func (m *fakeMetrics) RecordValidationReject(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejects[kind]++
}

func (m *fakeMetrics) RecordStaleRead(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleReads++
}

func (m *fakeMetrics) RecordLatency(string, float64)  {}
func (m *fakeMetrics) RecordCacheAge(string, float64) {}

type fakeSink struct {
	mu      sync.Mutex
	candles []models.MarketCandle
	err     error
}

func (s *fakeSink) OnCandle(_ context.Context, c models.MarketCandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.candles = append(s.candles, c)
	return nil
}

func scoreOf(v float64) *float64 { return &v }

func testDedup() *CacheDedup {
	return NewCacheDedup(pkgcache.NewMemoryCache(pkgcache.WithMaxSize(64)), "dedup:", time.Hour)
}

type fakeScorer struct {
	score float64
	err   error
	calls int
}

func (s *fakeScorer) Score(_ context.Context, _ string) (float64, error) {
	s.calls++
	return s.score, s.err
}

func envelopeBytes(t *testing.T, kind, instrument, observedAt string, payload interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	b, err := json.Marshal(models.Envelope{
		Kind:         kind,
		InstrumentID: instrument,
		ObservedAt:   observedAt,
		Payload:      raw,
	})
	require.NoError(t, err)
	return b
}

func newTestHandler(t *testing.T) (*EnvelopeHandler, *sentiment.Cache, *sentiment.Aggregator, *fakeSink, *fakeMetrics) {
	t.Helper()
	cache := sentiment.NewCache(4 * time.Hour)
	agg := sentiment.NewAggregator(sentiment.AggregatorConfig{WindowLength: 24 * time.Hour})
	sink := &fakeSink{}
	metrics := newFakeMetrics()
	h := NewEnvelopeHandler("events", cache, agg, testDedup(), sink, &fakeScorer{score: 0.4}, metrics, logger.Nop())
	return h, cache, agg, sink, metrics
}

func TestHandleSentimentEnvelope(t *testing.T) {
	h, cache, agg, _, _ := newTestHandler(t)
	observed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	b := envelopeBytes(t, models.KindSentiment, "BTC-USD", observed.Format(time.RFC3339),
		models.SentimentPayload{Score: scoreOf(0.8), Headline: "strong quarter", SourceID: "newswire"})
	require.NoError(t, h.Handle(context.Background(), b))

	entry, ok, _ := cache.Read("BTC-USD", observed)
	require.True(t, ok)
	assert.Equal(t, 0.8, entry.Score)
	assert.Equal(t, observed, entry.ObservedAt)

	point, ok := agg.Latest("BTC-USD")
	require.True(t, ok)
	assert.Equal(t, 1, point.SampleCount)
}

func TestHandleSentimentRedeliveryIdempotent(t *testing.T) {
	h, _, agg, _, metrics := newTestHandler(t)
	observed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	b := envelopeBytes(t, models.KindSentiment, "BTC-USD", observed.Format(time.RFC3339),
		models.SentimentPayload{Score: scoreOf(0.8), SourceID: "newswire"})

	require.NoError(t, h.Handle(context.Background(), b))
	require.NoError(t, h.Handle(context.Background(), b))
	require.NoError(t, h.Handle(context.Background(), b))

	point, ok := agg.Latest("BTC-USD")
	require.True(t, ok)
	assert.Equal(t, 1, point.SampleCount, "redelivery must not change state")
	assert.Equal(t, 2, metrics.dropped["sentiment/duplicate"])
}

func TestHandleRejectsOutOfRangeScore(t *testing.T) {
	h, cache, _, _, metrics := newTestHandler(t)

	b := envelopeBytes(t, models.KindSentiment, "BTC-USD", "2026-03-01T10:00:00Z",
		models.SentimentPayload{Score: scoreOf(1.5), SourceID: "newswire"})
	require.NoError(t, h.Handle(context.Background(), b), "validation failures drop, they do not retry")

	_, ok, _ := cache.Read("BTC-USD", time.Now())
	assert.False(t, ok)
	assert.Equal(t, 1, metrics.rejects[models.KindSentiment])
}

func TestHandleRejectsMalformedEnvelope(t *testing.T) {
	h, _, _, _, metrics := newTestHandler(t)

	require.NoError(t, h.Handle(context.Background(), []byte("{not json")))
	require.NoError(t, h.Handle(context.Background(), []byte(`{"kind":"weather","instrument_id":"x","observed_at":"2026-03-01T10:00:00Z","payload":{}}`)))
	require.NoError(t, h.Handle(context.Background(), []byte(`{"kind":"sentiment","instrument_id":"BTC-USD","observed_at":"not-a-time","payload":{"score":0.5,"source_id":"s"}}`)))

	assert.Equal(t, 3, metrics.rejects["envelope"]+metrics.rejects["weather"]+metrics.rejects["sentiment"])
}

func TestHandleCandleRoutedToSink(t *testing.T) {
	h, _, _, sink, _ := newTestHandler(t)
	observed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	b := envelopeBytes(t, models.KindCandle, "BTC-USD", observed.Format(time.RFC3339),
		models.CandlePayload{Timeframe: "1h", Open: 66_800, High: 67_200, Low: 66_500, Close: 67_000, Volume: 1_000})
	require.NoError(t, h.Handle(context.Background(), b))

	require.Len(t, sink.candles, 1)
	assert.Equal(t, observed, sink.candles[0].OpenTime)
	assert.Equal(t, 67_000.0, sink.candles[0].Close)
}

func TestHandleCandleOutOfOrderDropped(t *testing.T) {
	h, _, _, sink, metrics := newTestHandler(t)
	observed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	newer := envelopeBytes(t, models.KindCandle, "BTC-USD", observed.Format(time.RFC3339),
		models.CandlePayload{Timeframe: "1h", Open: 1, High: 2, Low: 1, Close: 2, Volume: 10})
	older := envelopeBytes(t, models.KindCandle, "BTC-USD", observed.Add(-time.Hour).Format(time.RFC3339),
		models.CandlePayload{Timeframe: "1h", Open: 1, High: 2, Low: 1, Close: 2, Volume: 10})

	require.NoError(t, h.Handle(context.Background(), newer))
	require.NoError(t, h.Handle(context.Background(), older))
	require.NoError(t, h.Handle(context.Background(), newer), "replayed bar is dropped, not reprocessed")

	assert.Len(t, sink.candles, 1)
	assert.Equal(t, 2, metrics.dropped["candle/out_of_order"])
}

func TestHandleCandleRejectsBadTimeframe(t *testing.T) {
	h, _, _, sink, metrics := newTestHandler(t)

	b := envelopeBytes(t, models.KindCandle, "BTC-USD", "2026-03-01T10:00:00Z",
		models.CandlePayload{Timeframe: "7h", Open: 1, High: 2, Low: 1, Close: 2, Volume: 10})
	require.NoError(t, h.Handle(context.Background(), b))

	assert.Empty(t, sink.candles)
	assert.Equal(t, 1, metrics.rejects[models.KindCandle])
}

func TestHandleScoresHeadlineWhenScoreMissing(t *testing.T) {
	cache := sentiment.NewCache(4 * time.Hour)
	agg := sentiment.NewAggregator(sentiment.AggregatorConfig{WindowLength: 24 * time.Hour})
	scorer := &fakeScorer{score: -0.35}
	h := NewEnvelopeHandler("events", cache, agg, testDedup(), &fakeSink{}, scorer, newFakeMetrics(), logger.Nop())
	observed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	b := envelopeBytes(t, models.KindSentiment, "BTC-USD", observed.Format(time.RFC3339),
		models.SentimentPayload{Headline: "regulator opens probe", SourceID: "newswire"})
	require.NoError(t, h.Handle(context.Background(), b))

	assert.Equal(t, 1, scorer.calls)
	entry, ok, _ := cache.Read("BTC-USD", observed)
	require.True(t, ok)
	assert.Equal(t, -0.35, entry.Score)
}

func TestHandleScorerFailurePropagates(t *testing.T) {
	cache := sentiment.NewCache(4 * time.Hour)
	agg := sentiment.NewAggregator(sentiment.AggregatorConfig{WindowLength: 24 * time.Hour})
	scorer := &fakeScorer{err: errors.New("scorer down")}
	h := NewEnvelopeHandler("events", cache, agg, testDedup(), &fakeSink{}, scorer, newFakeMetrics(), logger.Nop())

	b := envelopeBytes(t, models.KindSentiment, "BTC-USD", "2026-03-01T10:00:00Z",
		models.SentimentPayload{Headline: "regulator opens probe", SourceID: "newswire"})
	require.Error(t, h.Handle(context.Background(), b), "transient scorer failures surface for redelivery")

	_, ok, _ := cache.Read("BTC-USD", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestHandleRejectsScorelessWithoutHeadline(t *testing.T) {
	h, cache, _, _, metrics := newTestHandler(t)

	b := envelopeBytes(t, models.KindSentiment, "BTC-USD", "2026-03-01T10:00:00Z",
		models.SentimentPayload{SourceID: "newswire"})
	require.NoError(t, h.Handle(context.Background(), b))

	_, ok, _ := cache.Read("BTC-USD", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	assert.False(t, ok)
	assert.Equal(t, 1, metrics.rejects[models.KindSentiment])
}
