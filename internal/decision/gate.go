package decision

import (
	"time"

	"github.com/google/uuid"

	"SentiGate/internal/domain/models"
)

// Condition names reported in decision reasons, in evaluation order.
const (
	CondSentiment       = "sentiment"
	CondUptrend         = "uptrend"
	CondMomentum        = "momentum"
	CondOscillator      = "oscillator"
	CondVolume          = "volume_confirmation"
	CondNotOverextended = "price_not_overextended"
	CondDailyLoss       = "daily_loss_limit"
	CondRiskApproval    = "risk_approval"

	CondSentimentBearish = "sentiment_bearish"
	CondReversal         = "technical_reversal"
	CondStop             = "stop_or_take_profit"
	CondManualOverride   = "manual_override"
)

// RiskApprover is the slice of the risk manager the gate consults. All of
// these are read-only; the gate never mutates risk state.
type RiskApprover interface {
	CheckEntry(instrumentID string, entryPrice float64) (float64, error)
	EnforceStop(entryPrice, currentPrice float64) models.StopVerdict
	State(instrumentID string) models.RiskState
	DailyBreached() bool
}

// Config holds the gate thresholds. Staleness here must match the cache's
// policy so a signal the cache would refuse to serve never drives an entry.
type Config struct {
	BullishThreshold   float64
	BearishThreshold   float64
	StalenessThreshold time.Duration
}

// Gate turns one merged point plus externally computed technical conditions
// into an ENTER, HOLD or EXIT decision. It is a pure evaluator: the only
// state it reads is the risk manager's, and it writes nothing. Every
// evaluation reports the complete condition list, failures included, so a
// HOLD is as explainable as an ENTER.
type Gate struct {
	cfg Config
}

func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// Evaluate produces the decision for one candle boundary. The open/flat
// branch is chosen from the risk manager's book: flat instruments are
// evaluated for entry, open ones for exit. manualExit forces the exit path
// trigger for operator intervention and is ignored while flat.
func (g *Gate) Evaluate(point models.MergedPoint, tech models.TechnicalConditions, risk RiskApprover, manualExit bool) models.Decision {
	state := risk.State(point.InstrumentID)

	d := models.Decision{
		ID:           uuid.NewString(),
		InstrumentID: point.InstrumentID,
		Timestamp:    point.CandleOpenTime,
	}
	if state.OpenPosition != nil {
		g.evaluateExit(&d, point, tech, risk, state, manualExit)
	} else {
		g.evaluateEntry(&d, point, tech, risk, state)
	}
	return d
}

// evaluateEntry requires every condition to pass. Conditions are all
// evaluated even after a failure so the reasons list is always complete.
func (g *Gate) evaluateEntry(d *models.Decision, point models.MergedPoint, tech models.TechnicalConditions, risk RiskApprover, state models.RiskState) {
	sentimentOK := g.usable(point) && point.SentimentScore > g.cfg.BullishThreshold
	dailyOK := !risk.DailyBreached()

	size, err := risk.CheckEntry(point.InstrumentID, point.Candle.Close)
	riskOK := err == nil

	d.Reasons = []models.ConditionResult{
		{Name: CondSentiment, Passed: sentimentOK, ObservedValue: point.SentimentScore},
		{Name: CondUptrend, Passed: tech.Uptrend, ObservedValue: tech.TrendStrength},
		{Name: CondMomentum, Passed: tech.Momentum, ObservedValue: bool01(tech.Momentum)},
		{Name: CondOscillator, Passed: tech.OscillatorHealthy, ObservedValue: bool01(tech.OscillatorHealthy)},
		{Name: CondVolume, Passed: tech.VolumeConfirmation, ObservedValue: point.Candle.Volume},
		{Name: CondNotOverextended, Passed: tech.NotOverextended, ObservedValue: bool01(tech.NotOverextended)},
		{Name: CondDailyLoss, Passed: dailyOK, ObservedValue: state.DailyRealizedPnL},
		{Name: CondRiskApproval, Passed: riskOK, ObservedValue: size},
	}

	d.Action = models.ActionHold
	for _, r := range d.Reasons {
		if !r.Passed {
			return
		}
	}
	d.Action = models.ActionEnter
	d.PositionSize = size
}

// evaluateExit exits on any triggered condition. Passed=true on an exit
// reason means the trigger fired.
func (g *Gate) evaluateExit(d *models.Decision, point models.MergedPoint, tech models.TechnicalConditions, risk RiskApprover, state models.RiskState, manualExit bool) {
	bearish := g.usable(point) && point.SentimentScore < g.cfg.BearishThreshold

	verdict := risk.EnforceStop(state.OpenPosition.EntryPrice, point.Candle.Close)
	stopped := verdict != models.StopHold

	d.Reasons = []models.ConditionResult{
		{Name: CondSentimentBearish, Passed: bearish, ObservedValue: point.SentimentScore},
		{Name: CondReversal, Passed: tech.ReversalSignal, ObservedValue: bool01(tech.ReversalSignal)},
		{Name: CondStop, Passed: stopped, ObservedValue: point.Candle.Close},
		{Name: CondManualOverride, Passed: manualExit, ObservedValue: bool01(manualExit)},
	}

	d.Action = models.ActionHold
	for _, r := range d.Reasons {
		if r.Passed {
			d.Action = models.ActionExit
			return
		}
	}
}

// usable is the entry-side sentiment policy: present and within the
// staleness threshold at the candle's open. A zero threshold disables the
// age check.
func (g *Gate) usable(point models.MergedPoint) bool {
	if !point.HasSentiment {
		return false
	}
	if g.cfg.StalenessThreshold > 0 && point.SentimentAge > g.cfg.StalenessThreshold {
		return false
	}
	return true
}

func bool01(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
