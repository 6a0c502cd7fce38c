package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentiGate/internal/domain/models"
	"SentiGate/internal/risk"
	"SentiGate/internal/sentiment"
	xhttp "SentiGate/pkg/http"
	"SentiGate/pkg/logger"
)

type apiFixture struct {
	cache *sentiment.Cache
	agg   *sentiment.Aggregator
	risk  *risk.Manager
	srv   *xhttp.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		cache: sentiment.NewCache(4 * time.Hour),
		agg:   sentiment.NewAggregator(sentiment.AggregatorConfig{WindowLength: 24 * time.Hour}),
		risk: risk.NewManager(risk.Config{
			PortfolioValue:      10_000,
			RiskFraction:        0.02,
			DailyLossFraction:   0.05,
			StopPct:             0.03,
			MaxPositions:        5,
			MaxExposurePerInstr: 10_000,
		}, logger.Nop()),
	}
	h := NewSignalsHandler(logger.Nop(), f.cache, f.agg, f.risk, nil, nil)
	f.srv = xhttp.NewServer(h, xhttp.WithLogger(logger.Nop()), xhttp.WithCORS(false))
	return f
}

func (f *apiFixture) request(method, path string) (*httptest.ResponseRecorder, xhttp.APIResponse) {
	rec := httptest.NewRecorder()
	f.srv.Echo().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body xhttp.APIResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestSignalUnknownInstrumentNotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec, body := f.request(http.MethodGet, "/api/signals/XRP-USD")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, body.Status)

	errs, ok := body.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, errs, 1)
	first, ok := errs[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ERR_NOT_FOUND", first["code"])
}

func TestSignalReturnsCachedSentiment(t *testing.T) {
	f := newAPIFixture(t)
	require.True(t, f.cache.Upsert(models.SentimentEvent{
		InstrumentID: "BTC-USD",
		Score:        0.7,
		SourceID:     "newswire",
		ObservedAt:   time.Now().UTC(),
		ReceivedAt:   time.Now().UTC(),
	}))

	rec, body := f.request(http.MethodGet, "/api/signals/BTC-USD")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, body.Status)
	require.NotNil(t, body.Data)
}

func TestManualExitWithoutOpenPosition(t *testing.T) {
	f := newAPIFixture(t)

	rec, body := f.request(http.MethodPost, "/api/exit/BTC-USD")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, body.Status)
}

func TestUnknownRouteKeepsEnvelope(t *testing.T) {
	f := newAPIFixture(t)

	rec, body := f.request(http.MethodGet, "/nope")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, body.Status)
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	rec, body := f.request(http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, body.Status)
}
