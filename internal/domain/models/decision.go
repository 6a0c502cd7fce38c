package models

import "time"

// Action is the gate's verdict for one instrument at one candle boundary.
type Action string

const (
	ActionEnter Action = "ENTER"
	ActionHold  Action = "HOLD"
	ActionExit  Action = "EXIT"
)

// ConditionResult records one evaluated gate condition. Every evaluation
// reports the full list, pass or fail, so a decision is always explainable.
type ConditionResult struct {
	Name          string  `json:"condition_name"`
	Passed        bool    `json:"passed"`
	ObservedValue float64 `json:"observed_value"`
}

// TechnicalConditions are the externally computed indicator checks the gate
// consumes. The core never derives these from price data itself.
type TechnicalConditions struct {
	Uptrend            bool    `json:"uptrend"`
	Momentum           bool    `json:"momentum"`
	OscillatorHealthy  bool    `json:"oscillator_healthy"`
	VolumeConfirmation bool    `json:"volume_confirmation"`
	NotOverextended    bool    `json:"not_overextended"`
	ReversalSignal     bool    `json:"reversal_signal"`
	TrendStrength      float64 `json:"trend_strength"`
}

// Decision is the gate's only output; emitted, never persisted by the core.
type Decision struct {
	ID           string            `json:"id"`
	InstrumentID string            `json:"instrument_id"`
	Action       Action            `json:"action"`
	Reasons      []ConditionResult `json:"reasons"`
	PositionSize float64           `json:"position_size,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Reason returns the named condition result, if present.
func (d Decision) Reason(name string) (ConditionResult, bool) {
	for _, r := range d.Reasons {
		if r.Name == name {
			return r, true
		}
	}
	return ConditionResult{}, false
}
