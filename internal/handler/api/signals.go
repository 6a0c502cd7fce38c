package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"SentiGate/internal/domain/models"
	"SentiGate/internal/risk"
	"SentiGate/internal/sentiment"
	"SentiGate/internal/usecase"
	xhttp "SentiGate/pkg/http"
	xlogger "SentiGate/pkg/logger"
)

// SignalsHandler is the read-mostly ops surface: latest signal and cached
// sentiment per instrument, risk state, health, and the manual exit
// override. It reads snapshots only; all mutation goes through the pipeline.
type SignalsHandler struct {
	logger   *xlogger.Logger
	cache    *sentiment.Cache
	agg      *sentiment.Aggregator
	risk     *risk.Manager
	pipeline *usecase.DecisionPipeline
	feedUp   func() bool
}

func NewSignalsHandler(
	logger *xlogger.Logger,
	cache *sentiment.Cache,
	agg *sentiment.Aggregator,
	riskMgr *risk.Manager,
	pipeline *usecase.DecisionPipeline,
	feedUp func() bool,
) *SignalsHandler {
	return &SignalsHandler{
		logger:   logger,
		cache:    cache,
		agg:      agg,
		risk:     riskMgr,
		pipeline: pipeline,
		feedUp:   feedUp,
	}
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/signals/:instrument", h.Signal)
	g.POST("/exit/:instrument", h.ManualExit)
}

type signalResponse struct {
	InstrumentID string                   `json:"instrument_id"`
	Signal       *models.AggregatedSignal `json:"signal,omitempty"`
	Sentiment    *models.CachedSentiment  `json:"sentiment,omitempty"`
	Stale        bool                     `json:"stale"`
	Risk         models.RiskState         `json:"risk"`
}

func (h *SignalsHandler) Signal(c echo.Context) error {
	instrument := c.Param("instrument")
	if instrument == "" {
		return xhttp.RequiredError("instrument")
	}

	resp := signalResponse{
		InstrumentID: instrument,
		Risk:         h.risk.State(instrument),
	}
	if sig, ok := h.agg.Latest(instrument); ok {
		resp.Signal = &sig
	}
	if snap, ok, stale := h.cache.Read(instrument, time.Now().UTC()); ok {
		resp.Sentiment = &snap
		resp.Stale = stale
	}
	if resp.Signal == nil && resp.Sentiment == nil {
		return xhttp.NotFoundErrorf("no data for instrument %s", instrument)
	}
	return xhttp.SuccessResponse(c, resp)
}

// ManualExit flags the instrument for exit at its next candle. The flag is
// consumed by one evaluation; repeating the call before a candle arrives is
// harmless.
func (h *SignalsHandler) ManualExit(c echo.Context) error {
	instrument := c.Param("instrument")
	if instrument == "" {
		return xhttp.RequiredError("instrument")
	}
	if h.risk.State(instrument).OpenPosition == nil {
		return xhttp.NotFoundError("no open position")
	}

	h.pipeline.RequestExit(instrument)
	h.logger.Info("manual exit requested", xlogger.String("instrument", instrument))
	return xhttp.SuccessResponse(c, map[string]string{"instrument_id": instrument, "status": "exit_requested"})
}

type healthResponse struct {
	Status string `json:"status"`
	Feed   bool   `json:"feed_connected"`
}

func (h *SignalsHandler) Health(c echo.Context) error {
	feed := true
	if h.feedUp != nil {
		feed = h.feedUp()
	}
	return xhttp.SuccessResponse(c, healthResponse{Status: "ok", Feed: feed})
}

var _ xhttp.Handler = (*SignalsHandler)(nil)
