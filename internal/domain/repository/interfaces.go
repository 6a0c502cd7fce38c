package repository

import (
	"context"
	"time"

	"SentiGate/internal/domain/models"
)

// Publisher sends canonical envelopes and emitted decisions to the bus.
// Delivery is at-least-once; consumers must tolerate redelivery.
type Publisher interface {
	PublishEnvelope(ctx context.Context, topic string, env models.Envelope) error
	PublishDecision(ctx context.Context, d models.Decision) error
	Close() error
}

// SentimentStore is the per-instrument latest-sentiment cache. Upsert is a
// compare-and-swap on ObservedAt: strictly newer wins, anything else is a
// no-op. Read returns a whole-record snapshot plus present and stale flags
// evaluated at the supplied instant.
type SentimentStore interface {
	Upsert(event models.SentimentEvent) bool
	Read(instrumentID string, now time.Time) (snap models.CachedSentiment, ok bool, stale bool)
}

// Journal records emitted decisions and merged points for later analysis.
// Journal failures must never block or fail the decision path.
type Journal interface {
	RecordDecision(ctx context.Context, d models.Decision) error
	RecordMergedPoint(ctx context.Context, p models.MergedPoint) error
	Close() error
}

// DedupSet is a rolling recently-seen set used to absorb bus redelivery.
// Seen records the key and returns true when it was already present.
type DedupSet interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// Metrics is the process-wide observability sink.
type Metrics interface {
	RecordDecision(instrument string, action models.Action)
	RecordEventDropped(kind, reason string)
	RecordValidationReject(kind string)
	RecordStaleRead(instrument string)
	RecordLatency(op string, seconds float64)
	RecordCacheAge(instrument string, seconds float64)
}
