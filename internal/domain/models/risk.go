package models

import "time"

// Position is one open long position on an instrument.
type Position struct {
	InstrumentID string    `json:"instrument_id"`
	Amount       float64   `json:"amount"`
	EntryPrice   float64   `json:"entry_price"`
	OpenedAt     time.Time `json:"opened_at"`
}

// Notional is the position value at entry.
func (p Position) Notional() float64 {
	return p.Amount * p.EntryPrice
}

// RiskState is the per-instrument view the risk manager exposes. OpenPosition
// is nil when the instrument is flat.
type RiskState struct {
	InstrumentID     string    `json:"instrument_id"`
	OpenPosition     *Position `json:"open_position,omitempty"`
	DailyRealizedPnL float64   `json:"daily_realized_pnl"`
}

// StopVerdict is the outcome of a stop/take-profit check on an open position.
type StopVerdict string

const (
	StopHold       StopVerdict = "hold"
	StopForcedExit StopVerdict = "forced_exit"
	StopTakeProfit StopVerdict = "take_profit"
)
