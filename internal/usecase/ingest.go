package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"SentiGate/internal/domain/models"
	domrepo "SentiGate/internal/domain/repository"
	domsvc "SentiGate/internal/domain/service"
	pkgkafka "SentiGate/pkg/kafka"
	"SentiGate/pkg/logger"
	"SentiGate/pkg/util"
)

// CandleSink receives validated, in-order candles from the coordinator.
type CandleSink interface {
	OnCandle(ctx context.Context, candle models.MarketCandle) error
}

// EnvelopeHandler is the bus-facing ingestion coordinator. It decodes the
// canonical envelope, validates the kind-specific payload, suppresses
// redeliveries, and routes sentiment into the cache and aggregator and
// candles into the decision pipeline. Malformed events are dropped with a
// typed validation error, logged and counted; they never poison the stream
// or reach downstream state.
type EnvelopeHandler struct {
	topic    string
	validate *validator.Validate
	store    domrepo.SentimentStore
	agg      Aggregator
	dedup    domrepo.DedupSet
	sink     CandleSink
	scorer   domsvc.Scorer
	metrics  domrepo.Metrics
	log      *logger.Logger
	clock    func() time.Time

	inflight sync.WaitGroup

	mu         sync.Mutex
	lastCandle map[string]time.Time
}

// Aggregator is the slice of the signal aggregator the coordinator feeds.
type Aggregator interface {
	Add(event models.SentimentEvent) (models.AggregatedSignal, bool)
}

func NewEnvelopeHandler(
	topic string,
	store domrepo.SentimentStore,
	agg Aggregator,
	dedup domrepo.DedupSet,
	sink CandleSink,
	scorer domsvc.Scorer,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *EnvelopeHandler {
	return &EnvelopeHandler{
		topic:      topic,
		validate:   validator.New(),
		store:      store,
		agg:        agg,
		dedup:      dedup,
		sink:       sink,
		scorer:     scorer,
		metrics:    metrics,
		log:        log,
		clock:      time.Now,
		lastCandle: make(map[string]time.Time),
	}
}

func (h *EnvelopeHandler) Topic() string { return h.topic }

// Handle processes one bus message. A nil return commits the offset, so
// validation failures and duplicates return nil after accounting: replaying
// garbage buys nothing. Only downstream errors worth retrying propagate.
func (h *EnvelopeHandler) Handle(ctx context.Context, b []byte) error {
	h.inflight.Add(1)
	defer h.inflight.Done()

	start := h.clock()
	defer func() {
		h.metrics.RecordLatency("ingest", h.clock().Sub(start).Seconds())
	}()

	var env models.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		h.drop(models.NewValidationError("envelope", "", err.Error()))
		return nil
	}
	if err := h.validate.Struct(env); err != nil {
		h.drop(h.asValidationError("envelope", err))
		return nil
	}

	observedAt, ok := util.ParseTime(env.ObservedAt)
	if !ok {
		h.drop(models.NewValidationError(env.Kind, "observed_at", "unparseable timestamp"))
		return nil
	}

	switch env.Kind {
	case models.KindSentiment:
		return h.handleSentiment(ctx, env, observedAt)
	case models.KindCandle:
		return h.handleCandle(ctx, env, observedAt)
	default:
		// Unreachable past envelope validation, kept for defense against
		// validator config drift.
		h.drop(models.NewValidationError(env.Kind, "kind", models.ErrUnknownKind.Error()))
		return nil
	}
}

func (h *EnvelopeHandler) handleSentiment(ctx context.Context, env models.Envelope, observedAt time.Time) error {
	var p models.SentimentPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.drop(models.NewValidationError(models.KindSentiment, "payload", err.Error()))
		return nil
	}
	if err := h.validate.Struct(p); err != nil {
		h.drop(h.asValidationError(models.KindSentiment, err))
		return nil
	}

	score, err := h.resolveScore(ctx, p)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			h.drop(verr)
			return nil
		}
		return fmt.Errorf("score headline: %w", err)
	}

	event := models.SentimentEvent{
		InstrumentID: env.InstrumentID,
		Score:        score,
		SourceID:     p.SourceID,
		Headline:     p.Headline,
		ObservedAt:   observedAt,
		ReceivedAt:   h.clock(),
	}

	dup, err := h.dedup.Seen(ctx, event.Key())
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if dup {
		h.metrics.RecordEventDropped(models.KindSentiment, "duplicate")
		return nil
	}

	if h.store.Upsert(event) {
		h.metrics.RecordCacheAge(event.InstrumentID, h.clock().Sub(event.ObservedAt).Seconds())
	}
	h.agg.Add(event)
	return nil
}

func (h *EnvelopeHandler) handleCandle(ctx context.Context, env models.Envelope, observedAt time.Time) error {
	var p models.CandlePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.drop(models.NewValidationError(models.KindCandle, "payload", err.Error()))
		return nil
	}
	if err := h.validate.Struct(p); err != nil {
		h.drop(h.asValidationError(models.KindCandle, err))
		return nil
	}
	tf := domrepo.Timeframe(p.Timeframe)
	if !tf.IsValid() {
		h.drop(models.NewValidationError(models.KindCandle, "timeframe", "unknown timeframe"))
		return nil
	}

	candle := models.MarketCandle{
		InstrumentID: env.InstrumentID,
		Timeframe:    string(tf),
		OpenTime:     util.AlignToBar(observedAt, tf.Duration()),
		Open:         p.Open,
		High:         p.High,
		Low:          p.Low,
		Close:        p.Close,
		Volume:       p.Volume,
	}

	// Candles must advance per instrument. A bar at or before the last
	// processed open is a redelivery or a feed hiccup, not new information.
	h.mu.Lock()
	last, seen := h.lastCandle[candle.InstrumentID]
	if seen && !candle.OpenTime.After(last) {
		h.mu.Unlock()
		h.metrics.RecordEventDropped(models.KindCandle, "out_of_order")
		return nil
	}
	h.lastCandle[candle.InstrumentID] = candle.OpenTime
	h.mu.Unlock()

	if err := h.sink.OnCandle(ctx, candle); err != nil {
		return fmt.Errorf("candle pipeline: %w", err)
	}
	return nil
}

// resolveScore returns the payload's own score, or has the external scorer
// rate the headline when the producer sent none. Scorer failures are worth a
// retry; a payload with neither score nor headline is not.
func (h *EnvelopeHandler) resolveScore(ctx context.Context, p models.SentimentPayload) (float64, error) {
	if p.Score != nil {
		return *p.Score, nil
	}
	if h.scorer == nil || p.Headline == "" {
		return 0, models.NewValidationError(models.KindSentiment, "score", "score or headline required")
	}
	return h.scorer.Score(ctx, p.Headline)
}

// Drain blocks until every in-flight message has finished. The consumer has
// already stopped intake by the time this is called.
func (h *EnvelopeHandler) Drain() {
	h.inflight.Wait()
}

func (h *EnvelopeHandler) drop(verr *models.ValidationError) {
	h.metrics.RecordValidationReject(verr.Kind)
	h.log.Warn("event dropped", logger.String("kind", verr.Kind), logger.Error(verr))
}

// asValidationError folds the validator's first field error into the typed
// drop error.
func (h *EnvelopeHandler) asValidationError(kind string, err error) *models.ValidationError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return models.NewValidationError(kind, verrs[0].Field(), verrs[0].Tag())
	}
	return models.NewValidationError(kind, "", err.Error())
}

var _ pkgkafka.MessageHandler = (*EnvelopeHandler)(nil)
