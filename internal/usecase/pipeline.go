package usecase

import (
	"context"
	"sync"
	"time"

	"SentiGate/internal/decision"
	"SentiGate/internal/domain/models"
	domrepo "SentiGate/internal/domain/repository"
	"SentiGate/internal/domain/service"
	"SentiGate/internal/merge"
	pkgkafka "SentiGate/pkg/kafka"
	"SentiGate/pkg/logger"
)

// PipelineConfig bounds the decision publish retry.
type PipelineConfig struct {
	PublishAttempts int
	BackoffMin      time.Duration
	BackoffMax      time.Duration
}

// DecisionPipeline drives one full evaluation per candle: merge the signal
// series onto the bar, collect external technical conditions, run the gate,
// commit the accepted action to the risk book, and emit the decision. The
// candle stream is the pipeline's clock; nothing here waits on wall time.
type DecisionPipeline struct {
	cfg     PipelineConfig
	store   domrepo.SentimentStore
	signals merge.SignalSeries
	engine  *merge.Engine
	tech    service.TechnicalProvider
	gate    *decision.Gate
	risk    RiskBook
	pub     domrepo.Publisher
	journal domrepo.Journal
	metrics domrepo.Metrics
	log     *logger.Logger

	mu     sync.Mutex
	manual map[string]bool
}

// RiskBook is the mutating slice of the risk manager the pipeline commits
// accepted actions through. The gate reads risk state on its own.
type RiskBook interface {
	decision.RiskApprover
	TrackOpen(instrumentID string, entryPrice, amount float64, openedAt time.Time) error
	Close(instrumentID string, exitPrice float64)
}

func NewDecisionPipeline(
	cfg PipelineConfig,
	store domrepo.SentimentStore,
	signals merge.SignalSeries,
	engine *merge.Engine,
	tech service.TechnicalProvider,
	gate *decision.Gate,
	riskBook RiskBook,
	pub domrepo.Publisher,
	journal domrepo.Journal,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *DecisionPipeline {
	if cfg.PublishAttempts <= 0 {
		cfg.PublishAttempts = 4
	}
	return &DecisionPipeline{
		cfg:     cfg,
		store:   store,
		signals: signals,
		engine:  engine,
		tech:    tech,
		gate:    gate,
		risk:    riskBook,
		pub:     pub,
		journal: journal,
		metrics: metrics,
		log:     log,
		manual:  make(map[string]bool),
	}
}

// RequestExit flags an instrument for manual exit at its next candle. The
// flag is consumed by exactly one evaluation.
func (p *DecisionPipeline) RequestExit(instrumentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.manual[instrumentID] = true
}

// OnCandle implements CandleSink.
func (p *DecisionPipeline) OnCandle(ctx context.Context, candle models.MarketCandle) error {
	point := p.engine.Merge(candle, p.signals)
	p.recordMergedPoint(ctx, point)

	if _, ok, stale := p.store.Read(candle.InstrumentID, candle.OpenTime); ok && stale {
		p.metrics.RecordStaleRead(candle.InstrumentID)
	}

	tech, err := p.tech.Conditions(ctx, candle)
	if err != nil {
		// No indicators means no passing conditions; the gate holds. The
		// candle is already consumed, so retrying the message would only
		// trip the out-of-order guard.
		p.log.Error("technical provider failed, holding",
			logger.String("instrument", candle.InstrumentID),
			logger.Error(err))
		tech = models.TechnicalConditions{}
	}

	d := p.gate.Evaluate(point, tech, p.risk, p.takeManualExit(candle.InstrumentID))
	p.metrics.RecordDecision(d.InstrumentID, d.Action)

	switch d.Action {
	case models.ActionEnter:
		if err := p.risk.TrackOpen(d.InstrumentID, candle.Close, d.PositionSize, candle.OpenTime); err != nil {
			p.log.Error("entry not committed", logger.String("instrument", d.InstrumentID), logger.Error(err))
			return nil
		}
	case models.ActionExit:
		p.risk.Close(d.InstrumentID, candle.Close)
	}

	if d.Action != models.ActionHold {
		p.publishDecision(ctx, d)
	}
	p.recordDecision(ctx, d)
	return nil
}

// publishDecision retries with bounded backoff and accounts the loss when
// every attempt fails. The pipeline keeps going either way; a decision the
// bus never saw is a counted drop, not a stall.
func (p *DecisionPipeline) publishDecision(ctx context.Context, d models.Decision) {
	var err error
	for attempt := 1; attempt <= p.cfg.PublishAttempts; attempt++ {
		if err = p.pub.PublishDecision(ctx, d); err == nil {
			return
		}
		if attempt < p.cfg.PublishAttempts {
			select {
			case <-ctx.Done():
				err = ctx.Err()
				attempt = p.cfg.PublishAttempts
			case <-time.After(pkgkafka.BackoffWithJitter(p.cfg.BackoffMin, p.cfg.BackoffMax, attempt)):
			}
		}
	}
	p.metrics.RecordEventDropped("decision", "publish_exhausted")
	p.log.Error("decision publish exhausted, dropped",
		logger.String("instrument", d.InstrumentID),
		logger.String("action", string(d.Action)),
		logger.String("decision_id", d.ID),
		logger.Error(err))
}

func (p *DecisionPipeline) recordDecision(ctx context.Context, d models.Decision) {
	if p.journal == nil {
		return
	}
	if err := p.journal.RecordDecision(ctx, d); err != nil {
		p.log.Warn("decision journal write failed", logger.String("decision_id", d.ID), logger.Error(err))
	}
}

func (p *DecisionPipeline) recordMergedPoint(ctx context.Context, point models.MergedPoint) {
	if p.journal == nil {
		return
	}
	if err := p.journal.RecordMergedPoint(ctx, point); err != nil {
		p.log.Warn("merged point journal write failed",
			logger.String("instrument", point.InstrumentID),
			logger.Error(err))
	}
}

func (p *DecisionPipeline) takeManualExit(instrumentID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.manual[instrumentID] {
		delete(p.manual, instrumentID)
		return true
	}
	return false
}

var _ CandleSink = (*DecisionPipeline)(nil)
