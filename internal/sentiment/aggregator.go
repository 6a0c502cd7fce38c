package sentiment

import (
	"sort"
	"sync"
	"time"

	"SentiGate/internal/domain/models"
)

// Smoothing methods for the aggregated signal.
const (
	SmoothExponential = "exponential"
	SmoothSMA         = "sma"
)

// AggregatorConfig holds window and smoothing parameters.
type AggregatorConfig struct {
	WindowLength    time.Duration
	SmoothingMethod string
	SmoothingAlpha  float64
	SmoothingK      int
}

// Aggregator maintains a rolling per-instrument window of sentiment events
// and derives a smoothed signal series from it. Each aggregate point is
// computed as of its own ObservedAt using only events at or before it, so
// replaying the same event set in any order produces the same series.
type Aggregator struct {
	cfg AggregatorConfig

	mu      sync.Mutex
	windows map[string]*window
}

// window is the per-instrument working set. Mutation is serialized by the
// window's own lock; the aggregator map lock is only held to find it.
type window struct {
	mu     sync.Mutex
	events []models.SentimentEvent  // sorted by ObservedAt
	series []models.AggregatedSignal // one point per event, same order
}

// NewAggregator creates an aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.WindowLength <= 0 {
		cfg.WindowLength = 24 * time.Hour
	}
	if cfg.SmoothingMethod == "" {
		cfg.SmoothingMethod = SmoothExponential
	}
	if cfg.SmoothingAlpha <= 0 || cfg.SmoothingAlpha > 1 {
		cfg.SmoothingAlpha = 0.3
	}
	if cfg.SmoothingK <= 0 {
		cfg.SmoothingK = 5
	}
	return &Aggregator{
		cfg:     cfg,
		windows: make(map[string]*window),
	}
}

// Add folds one event into the instrument's window and returns the aggregate
// point for the event's own ObservedAt. Returns false when the event was
// already present (same ObservedAt and source), so redelivery cannot inflate
// sample counts.
func (a *Aggregator) Add(event models.SentimentEvent) (models.AggregatedSignal, bool) {
	w := a.getWindow(event.InstrumentID)

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, e := range w.events {
		if e.ObservedAt.Equal(event.ObservedAt) && e.SourceID == event.SourceID {
			return models.AggregatedSignal{}, false
		}
	}

	w.events = append(w.events, event)
	sort.Slice(w.events, func(i, j int) bool {
		return w.events[i].ObservedAt.Before(w.events[j].ObservedAt)
	})

	// Events that can no longer fall inside any window ending at or after the
	// newest observation are dropped.
	newest := w.events[len(w.events)-1].ObservedAt
	cutoff := newest.Add(-a.cfg.WindowLength)
	kept := w.events[:0]
	for _, e := range w.events {
		if e.ObservedAt.After(cutoff) || e.ObservedAt.Equal(cutoff) {
			kept = append(kept, e)
		}
	}
	w.events = kept

	w.series = a.recompute(event.InstrumentID, w.events)

	for _, p := range w.series {
		if p.WindowEnd.Equal(event.ObservedAt) {
			return p, true
		}
	}
	// The event itself aged out of the retained set.
	return models.AggregatedSignal{}, false
}

// recompute derives the full aggregate series from a sorted event set. Point
// i is the mean over events observed in (t_i - window, t_i], then smoothed
// over the series so far. Depending only on the sorted set keeps the result
// independent of arrival order.
func (a *Aggregator) recompute(instrumentID string, events []models.SentimentEvent) []models.AggregatedSignal {
	series := make([]models.AggregatedSignal, 0, len(events))
	for i, e := range events {
		winStart := e.ObservedAt.Add(-a.cfg.WindowLength)
		sum := 0.0
		count := 0
		for j := 0; j <= i; j++ {
			if events[j].ObservedAt.After(winStart) {
				sum += events[j].Score
				count++
			}
		}
		mean := 0.0
		if count > 0 {
			mean = sum / float64(count)
		}
		series = append(series, models.AggregatedSignal{
			InstrumentID: instrumentID,
			WindowEnd:    e.ObservedAt,
			MeanScore:    mean,
			SampleCount:  count,
		})
	}
	a.smooth(series)
	return series
}

func (a *Aggregator) smooth(series []models.AggregatedSignal) {
	switch a.cfg.SmoothingMethod {
	case SmoothSMA:
		for i := range series {
			start := i - a.cfg.SmoothingK + 1
			if start < 0 {
				start = 0
			}
			sum := 0.0
			for j := start; j <= i; j++ {
				sum += series[j].MeanScore
			}
			series[i].SmoothedScore = sum / float64(i-start+1)
		}
	default: // exponential
		for i := range series {
			if i == 0 {
				series[i].SmoothedScore = series[i].MeanScore
				continue
			}
			series[i].SmoothedScore = a.cfg.SmoothingAlpha*series[i].MeanScore +
				(1-a.cfg.SmoothingAlpha)*series[i-1].SmoothedScore
		}
	}
}

// Latest returns the newest aggregate point for an instrument.
func (a *Aggregator) Latest(instrumentID string) (models.AggregatedSignal, bool) {
	w := a.getWindow(instrumentID)

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.series) == 0 {
		return models.AggregatedSignal{}, false
	}
	return w.series[len(w.series)-1], true
}

// AsOf returns the most recent aggregate point whose WindowEnd is at or
// before t. This is the only read the merge engine performs: backward in
// time, never forward.
func (a *Aggregator) AsOf(instrumentID string, t time.Time) (models.AggregatedSignal, bool) {
	w := a.getWindow(instrumentID)

	w.mu.Lock()
	defer w.mu.Unlock()

	// series is sorted by WindowEnd ascending
	idx := sort.Search(len(w.series), func(i int) bool {
		return w.series[i].WindowEnd.After(t)
	})
	if idx == 0 {
		return models.AggregatedSignal{}, false
	}
	return w.series[idx-1], true
}

func (a *Aggregator) getWindow(instrumentID string) *window {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.windows[instrumentID]
	if !ok {
		w = &window{}
		a.windows[instrumentID] = w
	}
	return w
}
