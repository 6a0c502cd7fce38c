package merge

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentiGate/internal/domain/models"
)

type mapSeries struct {
	sigs []models.AggregatedSignal
}

func (m mapSeries) AsOf(_ string, t time.Time) (models.AggregatedSignal, bool) {
	var best models.AggregatedSignal
	found := false
	for _, s := range m.sigs {
		if s.WindowEnd.After(t) {
			continue
		}
		if !found || s.WindowEnd.After(best.WindowEnd) {
			best = s
			found = true
		}
	}
	return best, found
}

func candleAt(t time.Time) models.MarketCandle {
	return models.MarketCandle{
		InstrumentID: "BTC-USD",
		Timeframe:    "1h",
		OpenTime:     t,
		Open:         100, High: 110, Low: 95, Close: 105, Volume: 1000,
	}
}

func signalAt(t time.Time, score float64) models.AggregatedSignal {
	return models.AggregatedSignal{
		InstrumentID:  "BTC-USD",
		WindowEnd:     t,
		MeanScore:     score,
		SmoothedScore: score,
		SampleCount:   3,
	}
}

func TestMergeBackwardOnly(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	series := mapSeries{sigs: []models.AggregatedSignal{
		signalAt(base.Add(-2*time.Hour), 0.2),
		signalAt(base.Add(-30*time.Minute), 0.5),
		signalAt(base.Add(10*time.Minute), 0.9), // future relative to the candle
	}}

	e := NewEngine(0)
	p := e.Merge(candleAt(base), series)

	require.True(t, p.HasSentiment)
	assert.Equal(t, 0.5, p.SentimentScore, "must pick the latest signal at or before open, never a future one")
	assert.Equal(t, 30*time.Minute, p.SentimentAge)
	assert.Equal(t, 3, p.SampleCount)
}

func TestMergeExactBoundaryIncluded(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	series := mapSeries{sigs: []models.AggregatedSignal{signalAt(base, 0.7)}}

	p := NewEngine(0).Merge(candleAt(base), series)

	require.True(t, p.HasSentiment)
	assert.Equal(t, 0.7, p.SentimentScore)
	assert.Equal(t, time.Duration(0), p.SentimentAge)
}

func TestMergeNoSignal(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	series := mapSeries{sigs: []models.AggregatedSignal{signalAt(base.Add(time.Hour), 0.9)}}

	p := NewEngine(0).Merge(candleAt(base), series)

	assert.False(t, p.HasSentiment)
	assert.Zero(t, p.SentimentScore)
	assert.Equal(t, base, p.CandleOpenTime)
}

func TestMergeToleranceCutoff(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	series := mapSeries{sigs: []models.AggregatedSignal{signalAt(base.Add(-5*time.Hour), 0.8)}}

	tooOld := NewEngine(4 * time.Hour).Merge(candleAt(base), series)
	assert.False(t, tooOld.HasSentiment)

	within := NewEngine(6 * time.Hour).Merge(candleAt(base), series)
	require.True(t, within.HasSentiment)
	assert.Equal(t, 5*time.Hour, within.SentimentAge)

	unbounded := NewEngine(0).Merge(candleAt(base), series)
	require.True(t, unbounded.HasSentiment, "zero tolerance means no cutoff")
	assert.Equal(t, 5*time.Hour, unbounded.SentimentAge)
}

func TestMergeSeriesDeterministicUnderShuffle(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var candles []models.MarketCandle
	for i := 0; i < 24; i++ {
		candles = append(candles, candleAt(base.Add(time.Duration(i)*time.Hour)))
	}
	var signals []models.AggregatedSignal
	for i := 0; i < 40; i++ {
		ts := base.Add(time.Duration(i*37) * time.Minute)
		signals = append(signals, signalAt(ts, float64(i)/40))
	}

	e := NewEngine(0)
	want := e.MergeSeries(candles, signals)
	require.Len(t, want, len(candles))

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		cs := make([]models.MarketCandle, len(candles))
		copy(cs, candles)
		rng.Shuffle(len(cs), func(i, j int) { cs[i], cs[j] = cs[j], cs[i] })

		sigs := make([]models.AggregatedSignal, len(signals))
		copy(sigs, signals)
		rng.Shuffle(len(sigs), func(i, j int) { sigs[i], sigs[j] = sigs[j], sigs[i] })

		got := e.MergeSeries(cs, sigs)
		assert.Equal(t, want, got, "merge output must not depend on input order")
	}
}

func TestMergeSeriesNoLookAhead(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var candles []models.MarketCandle
	for i := 0; i < 12; i++ {
		candles = append(candles, candleAt(base.Add(time.Duration(i)*time.Hour)))
	}
	var signals []models.AggregatedSignal
	for i := 0; i < 30; i++ {
		signals = append(signals, signalAt(base.Add(time.Duration(i*25)*time.Minute), float64(i)))
	}

	out := NewEngine(0).MergeSeries(candles, signals)
	for _, p := range out {
		if !p.HasSentiment {
			continue
		}
		assert.False(t, p.SignalEnd.After(p.CandleOpenTime),
			"point at %s uses signal from %s", p.CandleOpenTime, p.SignalEnd)
		assert.GreaterOrEqual(t, p.SentimentAge, time.Duration(0))
	}
}
