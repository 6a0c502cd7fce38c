package feed

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"SentiGate/internal/domain/models"
	domrepo "SentiGate/internal/domain/repository"
	"SentiGate/internal/service/ratelimit"
	pkgkafka "SentiGate/pkg/kafka"
	applogger "SentiGate/pkg/logger"
)

// CollectorConfig bounds the publish retry and the per-instrument throttle.
type CollectorConfig struct {
	EventsTopic     string
	MaxRPS          float64
	PublishAttempts int
	BackoffMin      time.Duration
	BackoffMax      time.Duration
}

// Collector reads closed candles from the stream, wraps each in a canonical
// envelope, and publishes it to the events topic. It reconnects on stream
// errors and survives broker outages by dropping with accounting rather
// than queueing without bound.
type Collector struct {
	cfg     CollectorConfig
	stream  CandleStream
	pub     domrepo.Publisher
	limiter *ratelimit.Limiter
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewCollector(cfg CollectorConfig, stream CandleStream, pub domrepo.Publisher, metrics domrepo.Metrics, log *applogger.Logger) *Collector {
	if cfg.PublishAttempts <= 0 {
		cfg.PublishAttempts = 4
	}
	return &Collector{
		cfg:     cfg,
		stream:  stream,
		pub:     pub,
		limiter: ratelimit.New(),
		metrics: metrics,
		log:     log,
	}
}

// IsConnected reports the stream status, for health checks.
func (c *Collector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects, subscribes and launches the consume loop.
func (c *Collector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	candles, errs := c.stream.Read(ctx)
	go c.consume(ctx, candles, errs)
	return nil
}

func (c *Collector) consume(ctx context.Context, candles <-chan models.MarketCandle, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			if err != nil {
				c.log.Warn("feed stream error, reconnecting", applogger.Error(err))
				if rerr := c.stream.Reconnect(ctx); rerr != nil {
					c.log.Error("feed reconnect failed", applogger.Error(rerr))
				}
				candles, errs = c.stream.Read(ctx)
			}
		case candle, ok := <-candles:
			if !ok {
				continue
			}
			if c.cfg.MaxRPS > 0 && !c.limiter.Allow(candle.InstrumentID, c.cfg.MaxRPS, c.cfg.MaxRPS) {
				c.metrics.RecordEventDropped(models.KindCandle, "throttled")
				continue
			}
			c.publish(ctx, candle)
		}
	}
}

// publish wraps the candle in an envelope and sends it with bounded retry.
// After the last attempt the bar is dropped and counted; a wedged broker
// must not back up into the websocket read loop.
func (c *Collector) publish(ctx context.Context, candle models.MarketCandle) {
	payload, err := json.Marshal(models.CandlePayload{
		Timeframe: candle.Timeframe,
		Open:      candle.Open,
		High:      candle.High,
		Low:       candle.Low,
		Close:     candle.Close,
		Volume:    candle.Volume,
	})
	if err != nil {
		c.metrics.RecordEventDropped(models.KindCandle, "marshal")
		return
	}
	env := models.Envelope{
		Kind:         models.KindCandle,
		InstrumentID: candle.InstrumentID,
		ObservedAt:   strconv.FormatInt(candle.OpenTime.UnixMilli(), 10),
		Payload:      payload,
	}

	for attempt := 1; attempt <= c.cfg.PublishAttempts; attempt++ {
		if err = c.pub.PublishEnvelope(ctx, c.cfg.EventsTopic, env); err == nil {
			return
		}
		if attempt < c.cfg.PublishAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pkgkafka.BackoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
			}
		}
	}
	c.metrics.RecordEventDropped(models.KindCandle, "publish_exhausted")
	c.log.Error("candle publish exhausted, dropped",
		applogger.String("instrument", candle.InstrumentID),
		applogger.Time("open_time", candle.OpenTime),
		applogger.Error(err))
}

// Shutdown closes the stream; the consume loop exits with the context.
func (c *Collector) Shutdown(ctx context.Context) error {
	return c.stream.Close()
}
