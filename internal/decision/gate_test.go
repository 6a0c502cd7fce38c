package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentiGate/internal/domain/models"
	"SentiGate/internal/risk"
	"SentiGate/pkg/logger"
)

func testGate() *Gate {
	return NewGate(Config{
		BullishThreshold:   0.6,
		BearishThreshold:   -0.6,
		StalenessThreshold: 4 * time.Hour,
	})
}

func testRisk(t *testing.T) *risk.Manager {
	t.Helper()
	return risk.NewManager(risk.Config{
		PortfolioValue:        10_000,
		RiskFraction:          0.02,
		DailyLossFraction:     0.05,
		StopPct:               0.03,
		TakeProfitPct:         0.06,
		MaxPositions:          5,
		MaxExposurePerInstr:   100_000,
		MaxPerCorrelatedGroup: 2,
	}, logger.Nop())
}

func mergedPoint(score float64, age time.Duration, has bool) models.MergedPoint {
	open := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.MergedPoint{
		InstrumentID:   "BTC-USD",
		CandleOpenTime: open,
		Candle: models.MarketCandle{
			InstrumentID: "BTC-USD",
			Timeframe:    "1h",
			OpenTime:     open,
			Open:         66_800, High: 67_200, Low: 66_500, Close: 67_000,
			Volume: 1_250,
		},
		HasSentiment:   has,
		SentimentScore: score,
		SentimentAge:   age,
		SampleCount:    4,
	}
}

func allPass() models.TechnicalConditions {
	return models.TechnicalConditions{
		Uptrend:            true,
		Momentum:           true,
		OscillatorHealthy:  true,
		VolumeConfirmation: true,
		NotOverextended:    true,
		TrendStrength:      0.8,
	}
}

func TestEnterWhenAllConditionsPass(t *testing.T) {
	g := testGate()
	rm := testRisk(t)

	d := g.Evaluate(mergedPoint(0.85, 30*time.Minute, true), allPass(), rm, false)

	assert.Equal(t, models.ActionEnter, d.Action)
	assert.Greater(t, d.PositionSize, 0.0)
	require.Len(t, d.Reasons, 8)
	for _, r := range d.Reasons {
		assert.True(t, r.Passed, "condition %s", r.Name)
	}
	sent, ok := d.Reason(CondSentiment)
	require.True(t, ok)
	assert.Equal(t, 0.85, sent.ObservedValue)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, d.Timestamp, mergedPoint(0, 0, false).CandleOpenTime)
}

func TestHoldOnStaleSentimentReportsAllConditions(t *testing.T) {
	g := testGate()
	rm := testRisk(t)

	d := g.Evaluate(mergedPoint(0.85, 5*time.Hour, true), allPass(), rm, false)

	assert.Equal(t, models.ActionHold, d.Action)
	assert.Zero(t, d.PositionSize)

	sent, ok := d.Reason(CondSentiment)
	require.True(t, ok)
	assert.False(t, sent.Passed)

	// The remaining conditions are still evaluated and reported.
	require.Len(t, d.Reasons, 8)
	for _, r := range d.Reasons[1:] {
		assert.True(t, r.Passed, "condition %s", r.Name)
	}
}

func TestFreshSentimentWithinThresholdEnters(t *testing.T) {
	d := testGate().Evaluate(mergedPoint(0.85, 3*time.Hour, true), allPass(), testRisk(t), false)
	assert.Equal(t, models.ActionEnter, d.Action)
}

func TestHoldWhenNoSentiment(t *testing.T) {
	d := testGate().Evaluate(mergedPoint(0, 0, false), allPass(), testRisk(t), false)

	assert.Equal(t, models.ActionHold, d.Action)
	sent, _ := d.Reason(CondSentiment)
	assert.False(t, sent.Passed)
}

func TestHoldOnFailedTechnicalCondition(t *testing.T) {
	tech := allPass()
	tech.VolumeConfirmation = false

	d := testGate().Evaluate(mergedPoint(0.85, time.Hour, true), tech, testRisk(t), false)

	assert.Equal(t, models.ActionHold, d.Action)
	vol, _ := d.Reason(CondVolume)
	assert.False(t, vol.Passed)
}

func TestHoldWhenDailyLossBreached(t *testing.T) {
	rm := testRisk(t)
	require.NoError(t, rm.TrackOpen("ETH-USD", 3_000, 0.5, time.Now().UTC()))
	rm.Close("ETH-USD", 1_800) // -600 realized, past the 500 limit

	d := testGate().Evaluate(mergedPoint(0.85, time.Hour, true), allPass(), rm, false)

	assert.Equal(t, models.ActionHold, d.Action)
	daily, _ := d.Reason(CondDailyLoss)
	assert.False(t, daily.Passed)
	approval, _ := d.Reason(CondRiskApproval)
	assert.False(t, approval.Passed)
}

func TestExitOnBearishSentiment(t *testing.T) {
	rm := testRisk(t)
	require.NoError(t, rm.TrackOpen("BTC-USD", 67_000, 0.1, time.Now().UTC()))

	d := testGate().Evaluate(mergedPoint(-0.7, time.Hour, true), models.TechnicalConditions{}, rm, false)

	assert.Equal(t, models.ActionExit, d.Action)
	bear, _ := d.Reason(CondSentimentBearish)
	assert.True(t, bear.Passed)
}

func TestExitOnStopLoss(t *testing.T) {
	rm := testRisk(t)
	require.NoError(t, rm.TrackOpen("BTC-USD", 70_000, 0.1, time.Now().UTC()))

	// 67k close against a 70k entry is past the 3% stop.
	d := testGate().Evaluate(mergedPoint(0.1, time.Hour, true), models.TechnicalConditions{}, rm, false)

	assert.Equal(t, models.ActionExit, d.Action)
	stop, _ := d.Reason(CondStop)
	assert.True(t, stop.Passed)
}

func TestExitOnManualOverride(t *testing.T) {
	rm := testRisk(t)
	require.NoError(t, rm.TrackOpen("BTC-USD", 67_000, 0.1, time.Now().UTC()))

	d := testGate().Evaluate(mergedPoint(0.5, time.Hour, true), models.TechnicalConditions{}, rm, true)

	assert.Equal(t, models.ActionExit, d.Action)
	manual, _ := d.Reason(CondManualOverride)
	assert.True(t, manual.Passed)
}

func TestHoldWhileOpenWithoutTriggers(t *testing.T) {
	rm := testRisk(t)
	require.NoError(t, rm.TrackOpen("BTC-USD", 67_000, 0.1, time.Now().UTC()))

	d := testGate().Evaluate(mergedPoint(0.5, time.Hour, true), models.TechnicalConditions{}, rm, false)

	assert.Equal(t, models.ActionHold, d.Action)
	require.Len(t, d.Reasons, 4)
	for _, r := range d.Reasons {
		assert.False(t, r.Passed, "trigger %s", r.Name)
	}
}

func TestEvaluateIsSideEffectFree(t *testing.T) {
	rm := testRisk(t)
	g := testGate()

	d := g.Evaluate(mergedPoint(0.85, time.Hour, true), allPass(), rm, false)
	require.Equal(t, models.ActionEnter, d.Action)

	assert.Zero(t, rm.OpenCount(), "evaluation must not open a position")

	again := g.Evaluate(mergedPoint(0.85, time.Hour, true), allPass(), rm, false)
	assert.Equal(t, models.ActionEnter, again.Action, "same inputs give the same verdict")
}
