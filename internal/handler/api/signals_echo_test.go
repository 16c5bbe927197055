package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"SolSignal/internal/domain/models"
	internalrepo "SolSignal/internal/repository"
	"SolSignal/internal/services/analytics"
	"SolSignal/internal/usecase"
	pkgcache "SolSignal/pkg/cache"
	applogger "SolSignal/pkg/logger"
)

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

type nopMetrics struct{}

func (nopMetrics) RecordSignalSent(backend, symbol string) {}
func (nopMetrics) RecordError(kind string) {}
func (nopMetrics) RecordLastPrice(symbol string, p float64) {}
func (nopMetrics) RecordLatency(op string, seconds float64) {}

// countingCache wraps a real memory cache and counts successful reads.
type countingCache struct {
	pkgcache.Service
	mu   sync.Mutex
	hits int
}

func newCountingCache() *countingCache {
	return &countingCache{Service: pkgcache.NewMemoryCache()}
}

func (c *countingCache) Get(ctx context.Context, key string, dest interface{}) error {
	err := c.Service.Get(ctx, key, dest)
	if err == nil {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
	}
	return err
}

func (c *countingCache) hitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

type apiEnvelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestHandler(t *testing.T) (*SignalsEchoHandler, *echo.Echo) {
	t.Helper()
	src := internalrepo.NewSyntheticCandleSource(nil)
	lgr := testLogger(t)
	manager := usecase.NewModelManager(internalrepo.NewModelFileStore(t.TempDir()), lgr)
	engine := usecase.NewSignalEngine(src, manager, nopMetrics{})
	trainer := usecase.NewTrainer(src, manager, pkgcache.NewMemoryCache(), nopMetrics{}, lgr)
	rec := usecase.NewSignalRecorder(nil, nil, nopMetrics{}, "none")
	tokens := []models.Token{{Symbol: "SOL"}, {Symbol: "RAY"}, {Symbol: "BONK"}}
	market := usecase.NewMarketUseCase(
		src,
		analytics.NewRiskService(),
		analytics.NewPatternService(),
		nil,
		nopMetrics{},
		lgr,
		tokens,
	)
	candles := usecase.NewCandlesUseCase(src)

	h := NewSignalsEchoHandler(lgr, engine, manager, trainer, rec, market, candles)
	e := echo.New()
	h.RegisterRoutes(e)
	return h, e
}

func doJSON(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env apiEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope from %q: %v", rec.Body.String(), err)
	}
	return rec, env
}

func TestSignalEndpoint(t *testing.T) {
	_, e := newTestHandler(t)

	rec, env := doJSON(t, e, http.MethodGet, "/api/signals/sol", "")
	if rec.Code != http.StatusOK || env.Status != http.StatusOK {
		t.Fatalf("outer=%d inner=%d body=%s", rec.Code, env.Status, rec.Body.String())
	}

	var sig struct {
		Symbol      string
		Action      models.Action
		Confidence  float64
		Predictions struct {
			Reason string
		}
	}
	if err := json.Unmarshal(env.Data, &sig); err != nil {
		t.Fatalf("decode signal: %v", err)
	}
	if sig.Symbol != "SOL" {
		t.Fatalf("symbol = %q, want uppercased SOL", sig.Symbol)
	}
	switch sig.Action {
	case models.ActionBuy, models.ActionSell, models.ActionHold:
	default:
		t.Fatalf("action = %q", sig.Action)
	}
	if sig.Predictions.Reason != models.NoPredictionReason {
		t.Fatalf("untrained reason = %q", sig.Predictions.Reason)
	}
}

func TestSignalEndpointValidatesQuery(t *testing.T) {
	_, e := newTestHandler(t)

	rec, env := doJSON(t, e, http.MethodGet, "/api/signals/SOL?n=10", "")
	if rec.Code != http.StatusBadRequest || env.Status != http.StatusBadRequest {
		t.Fatalf("outer=%d inner=%d, want 400 for n below minimum", rec.Code, env.Status)
	}

	rec, env = doJSON(t, e, http.MethodGet, "/api/signals/SOL?tf=3h", "")
	if rec.Code != http.StatusBadRequest || env.Status != http.StatusBadRequest {
		t.Fatalf("outer=%d inner=%d, want 400 for unknown timeframe", rec.Code, env.Status)
	}
}

func TestPredictEndpoint(t *testing.T) {
	_, e := newTestHandler(t)

	rec, env := doJSON(t, e, http.MethodPost, "/api/predict", `{"symbol":"sol"}`)
	if rec.Code != http.StatusOK || env.Status != http.StatusOK {
		t.Fatalf("outer=%d inner=%d body=%s", rec.Code, env.Status, rec.Body.String())
	}
	var pred struct {
		Symbol       string
		CurrentPrice float64
		Reason       string
	}
	if err := json.Unmarshal(env.Data, &pred); err != nil {
		t.Fatalf("decode prediction: %v", err)
	}
	if pred.Symbol != "SOL" || pred.CurrentPrice <= 0 {
		t.Fatalf("prediction = %+v", pred)
	}
	if pred.Reason != models.NoPredictionReason {
		t.Fatalf("reason = %q", pred.Reason)
	}
}

func TestModelStatusNotFound(t *testing.T) {
	_, e := newTestHandler(t)

	rec, env := doJSON(t, e, http.MethodGet, "/api/models/SOL", "")
	if rec.Code != http.StatusNotFound || env.Status != http.StatusNotFound {
		t.Fatalf("outer=%d inner=%d, want 404 for untrained symbol", rec.Code, env.Status)
	}
}

func TestHistoryDisabledWithoutBackend(t *testing.T) {
	_, e := newTestHandler(t)

	rec, env := doJSON(t, e, http.MethodGet, "/api/signals/SOL/history", "")
	if rec.Code != http.StatusNotImplemented || env.Status != http.StatusNotImplemented {
		t.Fatalf("outer=%d inner=%d, want 501 without a history backend", rec.Code, env.Status)
	}
}

func TestTokensList(t *testing.T) {
	_, e := newTestHandler(t)

	_, env := doJSON(t, e, http.MethodGet, "/api/tokens", "")
	if env.Status != http.StatusOK {
		t.Fatalf("inner status = %d", env.Status)
	}
	var list struct {
		Rows  []models.Token `json:"rows"`
		Total int64          `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 3 || len(list.Rows) != 3 {
		t.Fatalf("list = %+v", list)
	}
}

func TestUnknownTokenPriceIs404(t *testing.T) {
	_, e := newTestHandler(t)

	rec, env := doJSON(t, e, http.MethodGet, "/api/tokens/DOGE/price", "")
	if rec.Code != http.StatusNotFound || env.Status != http.StatusNotFound {
		t.Fatalf("outer=%d inner=%d, want 404 for unregistered token", rec.Code, env.Status)
	}
}

func TestCandlesEndpoint(t *testing.T) {
	_, e := newTestHandler(t)

	rec, env := doJSON(t, e, http.MethodGet, "/api/candles?symbol=sol&limit=100", "")
	if rec.Code != http.StatusOK || env.Status != http.StatusOK {
		t.Fatalf("outer=%d inner=%d body=%s", rec.Code, env.Status, rec.Body.String())
	}
	var res struct {
		Symbol string
		Count  int
	}
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode candles: %v", err)
	}
	if res.Symbol != "SOL" || res.Count != 100 {
		t.Fatalf("candles = %+v", res)
	}

	rec, env = doJSON(t, e, http.MethodGet, "/api/candles", "")
	if rec.Code != http.StatusBadRequest || env.Status != http.StatusBadRequest {
		t.Fatalf("outer=%d inner=%d, want 400 without symbol", rec.Code, env.Status)
	}
}

func TestTrainAccepted(t *testing.T) {
	_, e := newTestHandler(t)

	rec, env := doJSON(t, e, http.MethodPost, "/api/models/train", `{"symbol":"sol","n":100}`)
	if rec.Code != http.StatusAccepted || env.Status != http.StatusAccepted {
		t.Fatalf("outer=%d inner=%d body=%s", rec.Code, env.Status, rec.Body.String())
	}
	var data struct {
		Status string `json:"status"`
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Status != "queued" || data.Symbol != "SOL" {
		t.Fatalf("data = %+v", data)
	}
}

func TestHealthzReflectsProbe(t *testing.T) {
	h, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy status = %d", rec.Code)
	}

	h.SetHealth(func(ctx context.Context) map[string]string {
		return map[string]string{"clickhouse": "dial timeout"}
	})
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d, want 503", rec.Code)
	}
}

func TestResponsesAreCached(t *testing.T) {
	h, e := newTestHandler(t)
	h.SetCache(nil) // explicit: no cache, both calls hit the usecase
	_, first := doJSON(t, e, http.MethodGet, "/api/market/overview", "")
	if first.Status != http.StatusOK {
		t.Fatalf("overview status = %d", first.Status)
	}

	// with a cache attached the second read returns the stored bytes
	h2, e2 := newTestHandler(t)
	cache := newCountingCache()
	h2.SetCache(cache)
	doJSON(t, e2, http.MethodGet, "/api/market/overview", "")
	doJSON(t, e2, http.MethodGet, "/api/market/overview", "")
	if cache.hitCount() == 0 {
		t.Fatal("second overview read did not hit the cache")
	}
}
