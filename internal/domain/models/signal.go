package models

import "time"

// CachedSentiment is the single live per-instrument cache entry. Overwritten
// in place only when a strictly newer ObservedAt arrives.
type CachedSentiment struct {
	InstrumentID string    `json:"instrument_id"`
	Score        float64   `json:"score"`
	ObservedAt   time.Time `json:"observed_at"`
	Headline     string    `json:"headline"`
	SourceID     string    `json:"source_id"`
	CachedAt     time.Time `json:"cached_at"`
}

// Staleness is the entry age at the given instant.
func (c CachedSentiment) Staleness(now time.Time) time.Duration {
	return now.Sub(c.ObservedAt)
}

// AggregatedSignal is one point of the rolling per-instrument signal series,
// computed as of WindowEnd using only events observed at or before it.
type AggregatedSignal struct {
	InstrumentID  string    `json:"instrument_id"`
	WindowEnd     time.Time `json:"window_end"`
	MeanScore     float64   `json:"mean_score"`
	SmoothedScore float64   `json:"smoothed_score"`
	SampleCount   int       `json:"sample_count"`
}

// MergedPoint joins one candle with the signal value that was genuinely
// available at the candle's open. The gate reads sentiment only through this
// structure: HasSentiment=false means no usable signal, never a zero stand-in.
type MergedPoint struct {
	InstrumentID   string        `json:"instrument_id"`
	CandleOpenTime time.Time     `json:"candle_open_time"`
	Candle         MarketCandle  `json:"candle"`
	HasSentiment   bool          `json:"has_sentiment"`
	SentimentScore float64       `json:"sentiment_score_as_of"`
	SentimentAge   time.Duration `json:"sentiment_age_at_candle_time"`
	SignalEnd      time.Time     `json:"signal_window_end"`
	SampleCount    int           `json:"sample_count"`
}
