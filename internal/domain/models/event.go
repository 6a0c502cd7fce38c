package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope kinds accepted on the inbound bus topics.
const (
	KindSentiment = "sentiment"
	KindCandle    = "candle"
)

// Envelope is the canonical message shape every producer publishes.
// Payload stays raw until the coordinator knows which kind to decode.
type Envelope struct {
	Kind         string          `json:"kind" validate:"required,oneof=sentiment candle"`
	InstrumentID string          `json:"instrument_id" validate:"required"`
	ObservedAt   string          `json:"observed_at" validate:"required"`
	Payload      json.RawMessage `json:"payload" validate:"required"`
}

// SentimentPayload is the kind-specific body of a sentiment envelope. Score
// is optional on the wire: a payload carrying only a headline is scored by
// the external scorer at ingestion.
type SentimentPayload struct {
	Score    *float64 `json:"score,omitempty" validate:"omitempty,gte=-1,lte=1"`
	Headline string   `json:"headline"`
	SourceID string   `json:"source_id" validate:"required"`
}

// CandlePayload is the kind-specific body of a candle envelope.
type CandlePayload struct {
	Timeframe string  `json:"timeframe" validate:"required"`
	Open      float64 `json:"open" validate:"gt=0"`
	High      float64 `json:"high" validate:"gt=0"`
	Low       float64 `json:"low" validate:"gt=0"`
	Close     float64 `json:"close" validate:"gt=0"`
	Volume    float64 `json:"volume" validate:"gte=0"`
}

// SentimentEvent is a normalized, immutable sentiment observation.
// ObservedAt is when the underlying news item was published; ReceivedAt is
// when this process first saw it. Staleness and ordering are always evaluated
// on ObservedAt, never on arrival order.
type SentimentEvent struct {
	InstrumentID string    `json:"instrument_id"`
	Score        float64   `json:"score"`
	SourceID     string    `json:"source_id"`
	Headline     string    `json:"headline"`
	ObservedAt   time.Time `json:"observed_at"`
	ReceivedAt   time.Time `json:"received_at"`
}

// Key identifies an event for redelivery dedup.
func (e SentimentEvent) Key() string {
	return fmt.Sprintf("%s|%d|%s", e.InstrumentID, e.ObservedAt.UnixNano(), e.SourceID)
}

// MarketCandle is a normalized OHLCV bar, ordered by OpenTime per instrument.
type MarketCandle struct {
	InstrumentID string    `json:"instrument_id"`
	Timeframe    string    `json:"timeframe"`
	OpenTime     time.Time `json:"open_time"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
}
