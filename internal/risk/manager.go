package risk

import (
	"math"
	"sync"
	"time"

	"SentiGate/internal/domain/models"
	"SentiGate/pkg/logger"
)

// Config carries the risk limits. All values come from configuration, none
// are hardcoded in the checks.
type Config struct {
	PortfolioValue        float64
	RiskFraction          float64
	DailyLossFraction     float64
	StopPct               float64
	TakeProfitPct         float64
	MaxPositions          int
	MaxExposurePerInstr   float64
	MaxPerCorrelatedGroup int
	CorrelationGroups     map[string][]string
}

// Manager owns all position and daily-loss state. It is the only writer of
// that state: the gate and the pipeline read it through CheckEntry and State
// and mutate it only through TrackOpen and Close. A single mutex guards both
// the per-instrument positions and the portfolio-wide daily counters, since
// every mutation touches the daily counters anyway.
type Manager struct {
	cfg Config
	log *logger.Logger

	mu            sync.Mutex
	positions     map[string]*models.Position
	dailyRealized float64
	dailyBreached bool
	day           time.Time

	groupOf map[string]string // instrument -> correlation group name
}

func NewManager(cfg Config, log *logger.Logger) *Manager {
	groupOf := make(map[string]string)
	for group, members := range cfg.CorrelationGroups {
		for _, id := range members {
			groupOf[id] = group
		}
	}
	return &Manager{
		cfg:       cfg,
		log:       log,
		positions: make(map[string]*models.Position),
		groupOf:   groupOf,
	}
}

// SizePosition computes the amount that puts riskFraction of the portfolio
// at risk over the entry-to-stop distance. The stop must sit below entry;
// anything else is a caller bug and sizes to zero. An amount whose notional
// exceeds the per-instrument exposure cap is rejected rather than clipped,
// so an oversized trade never slips through at a quietly reduced size.
func (m *Manager) SizePosition(portfolioValue, entryPrice, stopPrice, riskFraction float64) (float64, error) {
	if stopPrice >= entryPrice {
		return 0, models.ErrInvalidStop
	}
	amount := riskFraction * portfolioValue / (entryPrice - stopPrice)
	if amount*entryPrice > m.cfg.MaxExposurePerInstr {
		return 0, models.ErrMaxExposure
	}
	return amount, nil
}

// CheckDailyLoss reports whether cumulative daily realized loss has crossed
// the configured fraction of portfolio value. Profits never breach.
func (m *Manager) CheckDailyLoss(realizedPnL, portfolioValue float64) bool {
	return realizedPnL < 0 && math.Abs(realizedPnL) > m.cfg.DailyLossFraction*portfolioValue
}

// EnforceStop checks an open position against the stop and take-profit
// percentages. Stop wins when both somehow apply.
func (m *Manager) EnforceStop(entryPrice, currentPrice float64) models.StopVerdict {
	if entryPrice <= 0 {
		return models.StopHold
	}
	change := (currentPrice - entryPrice) / entryPrice
	if change <= -m.cfg.StopPct {
		return models.StopForcedExit
	}
	if m.cfg.TakeProfitPct > 0 && change >= m.cfg.TakeProfitPct {
		return models.StopTakeProfit
	}
	return models.StopHold
}

// CheckEntry is the side-effect-free entry approval the gate calls: it
// verifies the instrument is flat, the daily loss limit is intact, global
// and correlated position caps have room, and a valid size exists for the
// configured stop distance. It mutates nothing; the pipeline commits the
// position with TrackOpen only after the gate accepts.
func (m *Manager) CheckEntry(instrumentID string, entryPrice float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked(time.Now().UTC())

	if err := m.admitLocked(instrumentID); err != nil {
		return 0, err
	}

	stop := entryPrice * (1 - m.cfg.StopPct)
	return m.SizePosition(m.cfg.PortfolioValue, entryPrice, stop, m.cfg.RiskFraction)
}

// admitLocked verifies the book has room for a new position on the
// instrument: flat, daily limit intact, global and correlated caps not full.
// Caller holds m.mu.
func (m *Manager) admitLocked(instrumentID string) error {
	if _, open := m.positions[instrumentID]; open {
		return models.ErrAlreadyOpen
	}
	if m.dailyBreached {
		return models.ErrRiskBreached
	}
	if len(m.positions) >= m.cfg.MaxPositions {
		return models.ErrMaxPositions
	}
	if group, ok := m.groupOf[instrumentID]; ok {
		open := 0
		for id := range m.positions {
			if m.groupOf[id] == group {
				open++
			}
		}
		if open >= m.cfg.MaxPerCorrelatedGroup {
			return models.ErrCorrelatedCap
		}
	}
	return nil
}

// TrackOpen records an accepted entry. The caps are re-validated under the
// lock: candles for different instruments are handled concurrently, so two
// approvals taken against the same free slot must not both commit. A commit
// the book can no longer admit is rejected, not forced.
func (m *Manager) TrackOpen(instrumentID string, entryPrice, amount float64, openedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked(time.Now().UTC())

	if err := m.admitLocked(instrumentID); err != nil {
		return err
	}
	m.positions[instrumentID] = &models.Position{
		InstrumentID: instrumentID,
		Amount:       amount,
		EntryPrice:   entryPrice,
		OpenedAt:     openedAt,
	}
	m.log.Info("position opened",
		logger.String("instrument", instrumentID),
		logger.Float64("entry_price", entryPrice),
		logger.Float64("amount", amount))
	return nil
}

// Close realizes the PnL of an open position and clears it. Closing a flat
// instrument is a logged no-op, never fatal, since an EXIT can race a stop
// that already flattened the book.
func (m *Manager) Close(instrumentID string, exitPrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked(time.Now().UTC())

	pos, open := m.positions[instrumentID]
	if !open {
		m.log.Warn("close on flat instrument ignored",
			logger.String("instrument", instrumentID))
		return
	}
	delete(m.positions, instrumentID)

	pnl := (exitPrice - pos.EntryPrice) * pos.Amount
	m.dailyRealized += pnl
	if !m.dailyBreached && m.CheckDailyLoss(m.dailyRealized, m.cfg.PortfolioValue) {
		m.dailyBreached = true
		m.log.Warn("daily loss limit breached, entries refused until reset",
			logger.Float64("daily_realized_pnl", m.dailyRealized))
	}
	m.log.Info("position closed",
		logger.String("instrument", instrumentID),
		logger.Float64("exit_price", exitPrice),
		logger.Float64("pnl", pnl),
		logger.Float64("daily_realized_pnl", m.dailyRealized))
}

// State returns the per-instrument view. OpenPosition is a copy; callers
// cannot mutate the manager's book through it.
func (m *Manager) State(instrumentID string) models.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked(time.Now().UTC())

	state := models.RiskState{
		InstrumentID:     instrumentID,
		DailyRealizedPnL: m.dailyRealized,
	}
	if pos, open := m.positions[instrumentID]; open {
		cp := *pos
		state.OpenPosition = &cp
	}
	return state
}

// OpenCount reports the number of open positions across all instruments.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// DailyBreached reports whether the daily loss limit is currently tripped.
func (m *Manager) DailyBreached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked(time.Now().UTC())
	return m.dailyBreached
}

// rollDayLocked resets the daily counters when the UTC day changes.
// Caller holds m.mu. Open positions survive the reset.
func (m *Manager) rollDayLocked(now time.Time) {
	day := now.Truncate(24 * time.Hour)
	if day.Equal(m.day) {
		return
	}
	if !m.day.IsZero() {
		m.log.Info("daily risk counters reset",
			logger.Float64("previous_realized_pnl", m.dailyRealized))
	}
	m.day = day
	m.dailyRealized = 0
	m.dailyBreached = false
}
