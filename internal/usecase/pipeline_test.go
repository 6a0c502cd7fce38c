package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentiGate/internal/decision"
	"SentiGate/internal/domain/models"
	"SentiGate/internal/merge"
	"SentiGate/internal/risk"
	"SentiGate/internal/sentiment"
	"SentiGate/pkg/logger"
)

type fakePublisher struct {
	mu        sync.Mutex
	decisions []models.Decision
	failures  int
}

func (p *fakePublisher) PublishEnvelope(context.Context, string, models.Envelope) error { return nil }

func (p *fakePublisher) PublishDecision(_ context.Context, d models.Decision) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.decisions = append(p.decisions, d)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeJournal struct {
	mu        sync.Mutex
	decisions []models.Decision
	points    []models.MergedPoint
	err       error
}

func (j *fakeJournal) RecordDecision(_ context.Context, d models.Decision) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.decisions = append(j.decisions, d)
	return nil
}

func (j *fakeJournal) RecordMergedPoint(_ context.Context, p models.MergedPoint) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.points = append(j.points, p)
	return nil
}

func (j *fakeJournal) Close() error { return nil }

type fakeTech struct {
	cond models.TechnicalConditions
	err  error
}

func (f fakeTech) Conditions(context.Context, models.MarketCandle) (models.TechnicalConditions, error) {
	return f.cond, f.err
}

type pipelineFixture struct {
	pipeline *DecisionPipeline
	cache    *sentiment.Cache
	agg      *sentiment.Aggregator
	risk     *risk.Manager
	pub      *fakePublisher
	journal  *fakeJournal
	metrics  *fakeMetrics
}

func newPipelineFixture(t *testing.T, tech fakeTech) *pipelineFixture {
	t.Helper()
	cache := sentiment.NewCache(4 * time.Hour)
	agg := sentiment.NewAggregator(sentiment.AggregatorConfig{WindowLength: 24 * time.Hour})
	rm := risk.NewManager(risk.Config{
		PortfolioValue:        10_000,
		RiskFraction:          0.02,
		DailyLossFraction:     0.05,
		StopPct:               0.03,
		TakeProfitPct:         0.06,
		MaxPositions:          5,
		MaxExposurePerInstr:   100_000,
		MaxPerCorrelatedGroup: 2,
	}, logger.Nop())
	gate := decision.NewGate(decision.Config{
		BullishThreshold:   0.6,
		BearishThreshold:   -0.6,
		StalenessThreshold: 4 * time.Hour,
	})
	pub := &fakePublisher{}
	journal := &fakeJournal{}
	metrics := newFakeMetrics()

	p := NewDecisionPipeline(
		PipelineConfig{PublishAttempts: 3, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond},
		cache, agg, merge.NewEngine(0), tech, gate, rm, pub, journal, metrics, logger.Nop(),
	)
	return &pipelineFixture{pipeline: p, cache: cache, agg: agg, risk: rm, pub: pub, journal: journal, metrics: metrics}
}

func (f *pipelineFixture) feedSentiment(score float64, observedAt time.Time) {
	e := models.SentimentEvent{
		InstrumentID: "BTC-USD",
		Score:        score,
		SourceID:     "newswire",
		ObservedAt:   observedAt,
		ReceivedAt:   observedAt,
	}
	f.cache.Upsert(e)
	f.agg.Add(e)
}

func candle(openTime time.Time, close float64) models.MarketCandle {
	return models.MarketCandle{
		InstrumentID: "BTC-USD",
		Timeframe:    "1h",
		OpenTime:     openTime,
		Open:         close, High: close * 1.01, Low: close * 0.99, Close: close,
		Volume: 1_000,
	}
}

func passingTech() fakeTech {
	return fakeTech{cond: models.TechnicalConditions{
		Uptrend:            true,
		Momentum:           true,
		OscillatorHealthy:  true,
		VolumeConfirmation: true,
		NotOverextended:    true,
		TrendStrength:      0.7,
	}}
}

func TestPipelineEnterOnBullishSignal(t *testing.T) {
	f := newPipelineFixture(t, passingTech())
	open := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.feedSentiment(0.85, open.Add(-30*time.Minute))

	require.NoError(t, f.pipeline.OnCandle(context.Background(), candle(open, 67_000)))

	state := f.risk.State("BTC-USD")
	require.NotNil(t, state.OpenPosition, "accepted ENTER must be committed to the book")
	assert.Equal(t, 67_000.0, state.OpenPosition.EntryPrice)

	require.Len(t, f.pub.decisions, 1)
	assert.Equal(t, models.ActionEnter, f.pub.decisions[0].Action)
	assert.Greater(t, f.pub.decisions[0].PositionSize, 0.0)

	require.Len(t, f.journal.decisions, 1)
	require.Len(t, f.journal.points, 1)
	assert.True(t, f.journal.points[0].HasSentiment)
}

func TestPipelineHoldWithoutSentiment(t *testing.T) {
	f := newPipelineFixture(t, passingTech())
	open := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, f.pipeline.OnCandle(context.Background(), candle(open, 67_000)))

	assert.Nil(t, f.risk.State("BTC-USD").OpenPosition)
	assert.Empty(t, f.pub.decisions, "HOLD is not emitted to the bus")
	require.Len(t, f.journal.decisions, 1, "every decision is journaled, HOLD included")
	assert.Equal(t, models.ActionHold, f.journal.decisions[0].Action)
	assert.False(t, f.journal.points[0].HasSentiment)
}

func TestPipelineExitOnBearishSignal(t *testing.T) {
	f := newPipelineFixture(t, passingTech())
	open := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, f.risk.TrackOpen("BTC-USD", 67_000, 0.1, open.Add(-time.Hour)))
	f.feedSentiment(-0.8, open.Add(-30*time.Minute))

	require.NoError(t, f.pipeline.OnCandle(context.Background(), candle(open, 66_500)))

	assert.Nil(t, f.risk.State("BTC-USD").OpenPosition)
	require.Len(t, f.pub.decisions, 1)
	assert.Equal(t, models.ActionExit, f.pub.decisions[0].Action)
	assert.InDelta(t, -50, f.risk.State("BTC-USD").DailyRealizedPnL, 1e-9)
}

func TestPipelineManualExit(t *testing.T) {
	f := newPipelineFixture(t, passingTech())
	open := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	f.feedSentiment(0.85, open.Add(-30*time.Minute))
	require.NoError(t, f.pipeline.OnCandle(context.Background(), candle(open, 67_000)))

	f.pipeline.RequestExit("BTC-USD")
	require.NoError(t, f.pipeline.OnCandle(context.Background(), candle(open.Add(time.Hour), 67_100)))

	assert.Nil(t, f.risk.State("BTC-USD").OpenPosition)
	require.Len(t, f.pub.decisions, 2)
	assert.Equal(t, models.ActionExit, f.pub.decisions[1].Action)

	// Consumed: the next candle evaluates normally again.
	require.NoError(t, f.pipeline.OnCandle(context.Background(), candle(open.Add(2*time.Hour), 67_200)))
	require.NotNil(t, f.risk.State("BTC-USD").OpenPosition, "flag must not linger past one evaluation")
}

func TestPipelinePublishRetryThenSuccess(t *testing.T) {
	f := newPipelineFixture(t, passingTech())
	f.pub.failures = 2
	open := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.feedSentiment(0.85, open.Add(-30*time.Minute))

	require.NoError(t, f.pipeline.OnCandle(context.Background(), candle(open, 67_000)))

	require.Len(t, f.pub.decisions, 1, "third attempt lands within the 3 allowed attempts")
	assert.Zero(t, f.metrics.dropped["decision/publish_exhausted"])
}

func TestPipelinePublishExhaustedIsCountedDrop(t *testing.T) {
	f := newPipelineFixture(t, passingTech())
	f.pub.failures = 10
	open := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.feedSentiment(0.85, open.Add(-30*time.Minute))

	require.NoError(t, f.pipeline.OnCandle(context.Background(), candle(open, 67_000)), "a lost decision never stalls the pipeline")

	assert.Empty(t, f.pub.decisions)
	assert.Equal(t, 1, f.metrics.dropped["decision/publish_exhausted"])
	require.NotNil(t, f.risk.State("BTC-USD").OpenPosition, "the book reflects the decision even when the bus lost it")
}

func TestPipelineTechnicalFailureHolds(t *testing.T) {
	f := newPipelineFixture(t, fakeTech{err: errors.New("indicator backend down")})
	open := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.feedSentiment(0.85, open.Add(-30*time.Minute))

	require.NoError(t, f.pipeline.OnCandle(context.Background(), candle(open, 67_000)))

	assert.Nil(t, f.risk.State("BTC-USD").OpenPosition)
	assert.Empty(t, f.pub.decisions)
}

func TestPipelineJournalFailureDoesNotBlock(t *testing.T) {
	f := newPipelineFixture(t, passingTech())
	f.journal.err = errors.New("clickhouse down")
	open := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.feedSentiment(0.85, open.Add(-30*time.Minute))

	require.NoError(t, f.pipeline.OnCandle(context.Background(), candle(open, 67_000)))
	require.Len(t, f.pub.decisions, 1)
}

func TestPipelineStaleSentimentHolds(t *testing.T) {
	f := newPipelineFixture(t, passingTech())
	open := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.feedSentiment(0.85, open.Add(-5*time.Hour))

	require.NoError(t, f.pipeline.OnCandle(context.Background(), candle(open, 67_000)))

	assert.Nil(t, f.risk.State("BTC-USD").OpenPosition)
	assert.Equal(t, 1, f.metrics.staleReads)
	require.Len(t, f.journal.decisions, 1)
	sent, ok := f.journal.decisions[0].Reason(decision.CondSentiment)
	require.True(t, ok)
	assert.False(t, sent.Passed)
}
