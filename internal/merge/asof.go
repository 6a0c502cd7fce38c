package merge

import (
	"sort"
	"time"

	"SentiGate/internal/domain/models"
)

// SignalSeries is the backward-only view the engine reads signals through.
// AsOf must return the most recent point whose WindowEnd is at or before t.
type SignalSeries interface {
	AsOf(instrumentID string, t time.Time) (models.AggregatedSignal, bool)
}

// Engine joins candles to the signal series with backward-only as-of
// matching. It is the single place time-ordering is enforced across the two
// independently clocked streams: a merged point can only ever carry a signal
// observed at or before the candle open. The engine holds no state and never
// consults the wall clock, so merging the same inputs twice is fully
// deterministic.
type Engine struct {
	tolerance time.Duration // zero means no hard cutoff; age is still reported
}

// NewEngine creates a merge engine. A positive tolerance marks signals older
// than the tolerance at candle-open as unavailable.
func NewEngine(tolerance time.Duration) *Engine {
	return &Engine{tolerance: tolerance}
}

// Merge produces the merged point for one candle. When no signal exists at
// or before the candle open (or the newest one is beyond tolerance), the
// point carries an explicit no-sentiment marker, never a numeric
// placeholder.
func (e *Engine) Merge(candle models.MarketCandle, signals SignalSeries) models.MergedPoint {
	point := models.MergedPoint{
		InstrumentID:   candle.InstrumentID,
		CandleOpenTime: candle.OpenTime,
		Candle:         candle,
	}

	sig, ok := signals.AsOf(candle.InstrumentID, candle.OpenTime)
	if !ok {
		return point
	}

	age := candle.OpenTime.Sub(sig.WindowEnd)
	if e.tolerance > 0 && age > e.tolerance {
		return point
	}

	point.HasSentiment = true
	point.SentimentScore = sig.SmoothedScore
	point.SentimentAge = age
	point.SignalEnd = sig.WindowEnd
	point.SampleCount = sig.SampleCount
	return point
}

// MergeSeries joins two ordered series in one pass. Candles are sorted by
// open time and signals by window end before the walk, so the result is a
// pure function of the two sets.
func (e *Engine) MergeSeries(candles []models.MarketCandle, signals []models.AggregatedSignal) []models.MergedPoint {
	cs := make([]models.MarketCandle, len(candles))
	copy(cs, candles)
	sort.Slice(cs, func(i, j int) bool { return cs[i].OpenTime.Before(cs[j].OpenTime) })

	sigs := make([]models.AggregatedSignal, len(signals))
	copy(sigs, signals)
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].WindowEnd.Before(sigs[j].WindowEnd) })

	out := make([]models.MergedPoint, 0, len(cs))
	j := -1
	for _, c := range cs {
		for j+1 < len(sigs) && !sigs[j+1].WindowEnd.After(c.OpenTime) {
			j++
		}
		out = append(out, e.Merge(c, sliceSeries{sigs: sigs, hi: j}))
	}
	return out
}

// sliceSeries adapts a pre-walked sorted slice to SignalSeries.
type sliceSeries struct {
	sigs []models.AggregatedSignal
	hi   int // index of last signal at or before the current candle open
}

func (s sliceSeries) AsOf(_ string, t time.Time) (models.AggregatedSignal, bool) {
	for i := s.hi; i >= 0; i-- {
		if !s.sigs[i].WindowEnd.After(t) {
			return s.sigs[i], true
		}
	}
	return models.AggregatedSignal{}, false
}
