package indicators

import (
	"context"
	"fmt"
	"time"

	"SentiGate/internal/domain/models"
	domsvc "SentiGate/internal/domain/service"
	xhttp "SentiGate/pkg/http"
)

// HTTPProvider fetches technical conditions from the external indicator
// service. All indicator math (RSI, EMA, MACD, Bollinger) lives behind this
// endpoint; the pipeline never derives conditions from price data itself.
type HTTPProvider struct {
	baseURL string
	client  *xhttp.Client
}

func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

type conditionsReq struct {
	InstrumentID string    `json:"instrument_id"`
	Timeframe    string    `json:"timeframe"`
	OpenTime     time.Time `json:"open_time"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
}

func (p *HTTPProvider) Conditions(ctx context.Context, candle models.MarketCandle) (models.TechnicalConditions, error) {
	var cond models.TechnicalConditions
	if p.baseURL == "" {
		return cond, fmt.Errorf("indicator http client not initialized")
	}
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    p.baseURL + "/conditions",
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: conditionsReq{
			InstrumentID: candle.InstrumentID,
			Timeframe:    candle.Timeframe,
			OpenTime:     candle.OpenTime,
			Close:        candle.Close,
			Volume:       candle.Volume,
		},
	}, &cond)
	if err != nil {
		return cond, fmt.Errorf("post conditions: %w", err)
	}
	return cond, nil
}

var _ domsvc.TechnicalProvider = (*HTTPProvider)(nil)
