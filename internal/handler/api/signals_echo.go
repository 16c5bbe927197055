package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	models "SolSignal/internal/domain/models"
	domrepo "SolSignal/internal/domain/repository"
	"SolSignal/internal/service/metrics"
	"SolSignal/internal/service/ratelimit"
	"SolSignal/internal/usecase"
	pkgcache "SolSignal/pkg/cache"
	xhttp "SolSignal/pkg/http"
	xlogger "SolSignal/pkg/logger"
	"SolSignal/pkg/queue"
)

// CacheTTL bundles per-endpoint response cache lifetimes.
type CacheTTL struct {
	Signal   time.Duration
	Overview time.Duration
	Analysis time.Duration
	Insights time.Duration
}

// SignalsEchoHandler exposes the signal API over Echo.
type SignalsEchoHandler struct {
	logger  *xlogger.Logger
	engine  *usecase.SignalEngine
	manager *usecase.ModelManager
	trainer *usecase.Trainer
	rec     *usecase.SignalRecorder
	market  *usecase.MarketUseCase
	candles *usecase.CandlesUseCase

	queue  queue.QueueService
	cache  pkgcache.Service
	rl     *ratelimit.Limiter
	ttl    CacheTTL
	hub    *Hub
	health func(ctx context.Context) map[string]string
}

func NewSignalsEchoHandler(
	logger *xlogger.Logger,
	engine *usecase.SignalEngine,
	manager *usecase.ModelManager,
	trainer *usecase.Trainer,
	rec *usecase.SignalRecorder,
	market *usecase.MarketUseCase,
	candles *usecase.CandlesUseCase,
) *SignalsEchoHandler {
	metrics.Register()
	return &SignalsEchoHandler{
		logger:  logger,
		engine:  engine,
		manager: manager,
		trainer: trainer,
		rec:     rec,
		market:  market,
		candles: candles,
		rl:      ratelimit.New(),
		ttl: CacheTTL{
			Signal:   30 * time.Second,
			Overview: 30 * time.Second,
			Analysis: time.Minute,
			Insights: time.Minute,
		},
	}
}

// SetCache injects the response cache.
func (h *SignalsEchoHandler) SetCache(c pkgcache.Service) { h.cache = c }

// SetCacheTTL overrides response cache lifetimes.
func (h *SignalsEchoHandler) SetCacheTTL(ttl CacheTTL) { h.ttl = ttl }

// SetQueue injects the async training queue.
func (h *SignalsEchoHandler) SetQueue(q queue.QueueService) { h.queue = q }

// SetHub injects the websocket broadcast hub.
func (h *SignalsEchoHandler) SetHub(hub *Hub) { h.hub = hub }

// SetHealth injects the infrastructure health probe.
func (h *SignalsEchoHandler) SetHealth(fn func(ctx context.Context) map[string]string) { h.health = fn }

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/signals/:symbol", h.Signal)
	g.GET("/signals/:symbol/history", h.History)
	g.POST("/predict", h.Predict)
	g.GET("/insights", h.Insights)
	g.POST("/models/train", h.Train)
	g.GET("/models/:symbol", h.ModelStatus)
	g.GET("/tokens", h.Tokens)
	g.GET("/tokens/:symbol/price", h.TokenPrice)
	g.GET("/tokens/:symbol/analysis", h.TokenAnalysis)
	g.GET("/market/overview", h.Overview)
	g.GET("/market/trending", h.Trending)
	g.GET("/candles", h.Candles)

	if h.hub != nil {
		e.GET("/ws", h.hub.Serve)
	}
	e.GET("/healthz", h.Healthz)
}

// allow applies per-endpoint token-bucket rate limiting keyed by client IP.
func (h *SignalsEchoHandler) allow(c echo.Context, endpoint string, capacity, refill float64) bool {
	if h.rl == nil {
		return true
	}
	if h.rl.Allow(c.RealIP()+":"+endpoint, capacity, refill) {
		return true
	}
	h.logger.Warn(endpoint+" rate_limited", xlogger.String("remote", c.RealIP()))
	return false
}

func (h *SignalsEchoHandler) cached(ctx context.Context, endpoint, key string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	var raw string
	if err := h.cache.Get(ctx, key, &raw); err != nil {
		if !errors.Is(err, pkgcache.ErrCacheMiss) {
			h.logger.Warn(endpoint+" cache_get_error", xlogger.Error(err))
		}
		return nil, false
	}
	h.logger.Debug(endpoint+" cache_hit", xlogger.String("key", key))
	return []byte(raw), true
}

func (h *SignalsEchoHandler) putCache(ctx context.Context, endpoint, key string, v interface{}, ttl time.Duration) {
	if h.cache == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn(endpoint+" cache_marshal_error", xlogger.Error(err))
		return
	}
	if err := h.cache.Set(ctx, key, string(b), ttl); err != nil {
		h.logger.Warn(endpoint+" cache_set_error", xlogger.Error(err))
	}
}

func (h *SignalsEchoHandler) Signal(c echo.Context) error {
	start := time.Now()
	endpoint := "signal"
	defer func() { metrics.SignalLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.SignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Symbol = strings.ToUpper(req.Symbol)
	if !h.allow(c, endpoint, 5, 2) {
		return rateLimited(c)
	}

	key := "signal:" + req.Symbol + ":" + req.TF + ":" + strconv.Itoa(req.N)
	if b, ok := h.cached(c.Request().Context(), endpoint, key); ok {
		return xhttp.SuccessResponse(c, json.RawMessage(b))
	}

	res, err := h.engine.GenerateSignal(c.Request().Context(), usecase.GenerateSignalParams{
		Symbol:    req.Symbol,
		N:         req.N,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
	})
	if err != nil {
		metrics.SignalErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("signal usecase error", xlogger.Error(err))
		return respondError(c, err)
	}
	metrics.Recommendations.WithLabelValues(res.Symbol, string(res.Action)).Inc()
	recordAbsentMembers(res.Predictions)

	h.putCache(c.Request().Context(), endpoint, key, res, h.ttl.Signal)
	return xhttp.SuccessResponse(c, res)
}

// recordAbsentMembers counts ensemble members missing from a served prediction.
func recordAbsentMembers(p models.Prediction) {
	if p.Regressor == nil {
		metrics.AbsentMembers.WithLabelValues("regressor").Inc()
	}
	if p.Trend.Proba == nil {
		metrics.AbsentMembers.WithLabelValues("classifier").Inc()
	}
	if p.Forecaster == nil {
		metrics.AbsentMembers.WithLabelValues("forecaster").Inc()
	}
}

func (h *SignalsEchoHandler) History(c echo.Context) error {
	endpoint := "history"
	req := &models.SignalHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)

	to := xhttp.ParseTimeDefault(req.To, time.Now().UTC())
	from := xhttp.ParseTimeDefault(req.From, to.Add(-7*24*time.Hour))

	res, err := h.rec.History(c.Request().Context(), symbol, from, to, req.Limit)
	if err != nil {
		metrics.SignalErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("history usecase error", xlogger.Error(err))
		return respondError(c, err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *SignalsEchoHandler) Predict(c echo.Context) error {
	start := time.Now()
	endpoint := "predict"
	defer func() { metrics.SignalLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Symbol = strings.ToUpper(req.Symbol)
	if !h.allow(c, endpoint, 5, 2) {
		return rateLimited(c)
	}

	res, err := h.engine.Predict(c.Request().Context(), usecase.GenerateSignalParams{
		Symbol:    req.Symbol,
		N:         req.N,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
	})
	if err != nil {
		metrics.SignalErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("predict usecase error", xlogger.Error(err))
		return respondError(c, err)
	}
	recordAbsentMembers(res)
	return xhttp.SuccessResponse(c, res)
}

func (h *SignalsEchoHandler) Insights(c echo.Context) error {
	start := time.Now()
	endpoint := "insights"
	defer func() { metrics.SignalLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.allow(c, endpoint, 3, 1) {
		return rateLimited(c)
	}
	if b, ok := h.cached(c.Request().Context(), endpoint, "insights"); ok {
		return xhttp.SuccessResponse(c, json.RawMessage(b))
	}

	res, err := h.market.Insights(c.Request().Context())
	if err != nil {
		metrics.SignalErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("insights usecase error", xlogger.Error(err))
		return respondError(c, err)
	}
	h.putCache(c.Request().Context(), endpoint, "insights", res, h.ttl.Insights)
	return xhttp.SuccessResponse(c, res)
}

func (h *SignalsEchoHandler) Train(c echo.Context) error {
	endpoint := "train"
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	payload := usecase.TrainModelsPayload{
		Symbol:    strings.ToUpper(req.Symbol),
		N:         req.N,
		Timeframe: req.TF,
	}

	if h.queue != nil {
		if err := h.queue.PublishMessage(c.Request().Context(), usecase.TrainModelsMessage, payload); err != nil {
			metrics.SignalErrors.WithLabelValues(endpoint).Inc()
			h.logger.Error("train enqueue error", xlogger.Error(err))
			return respondError(c, err)
		}
	} else {
		// no queue configured, train in-process
		go func() {
			_, err := h.trainer.Train(context.Background(), usecase.TrainParams{
				Symbol:    payload.Symbol,
				N:         payload.N,
				Timeframe: domrepo.NormalizeTimeframe(payload.Timeframe),
			})
			if err != nil {
				h.logger.Error("background train error",
					xlogger.String("symbol", payload.Symbol), xlogger.Error(err))
			}
		}()
	}

	return xhttp.DataResponse(c, http.StatusAccepted, map[string]string{
		"status": "queued",
		"symbol": payload.Symbol,
	})
}

func (h *SignalsEchoHandler) ModelStatus(c echo.Context) error {
	req := &models.ModelStatusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	info, err := h.manager.Info(c.Request().Context(), strings.ToUpper(req.Symbol))
	if err != nil {
		return respondError(c, err)
	}
	return xhttp.SuccessResponse(c, info)
}

func (h *SignalsEchoHandler) Tokens(c echo.Context) error {
	tokens := h.market.Tokens()
	return xhttp.ListResponse(c, tokens, int64(len(tokens)))
}

func (h *SignalsEchoHandler) TokenPrice(c echo.Context) error {
	start := time.Now()
	endpoint := "price"
	defer func() { metrics.SignalLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.TokenPriceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.market.TokenPrice(c.Request().Context(), strings.ToUpper(req.Symbol))
	if err != nil {
		metrics.SignalErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("price usecase error", xlogger.Error(err))
		if strings.Contains(err.Error(), "unknown token") {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
		}
		return respondError(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SignalsEchoHandler) TokenAnalysis(c echo.Context) error {
	start := time.Now()
	endpoint := "analysis"
	defer func() { metrics.SignalLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.TokenAnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)
	if !h.allow(c, endpoint, 3, 1) {
		return rateLimited(c)
	}

	key := "analysis:" + symbol + ":" + req.TF
	if b, ok := h.cached(c.Request().Context(), endpoint, key); ok {
		return xhttp.SuccessResponse(c, json.RawMessage(b))
	}

	res, err := h.market.TokenAnalysis(c.Request().Context(), usecase.TokenAnalysisParams{
		Symbol:    symbol,
		N:         req.N,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
	})
	if err != nil {
		metrics.SignalErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("analysis usecase error", xlogger.Error(err))
		return respondError(c, err)
	}
	h.putCache(c.Request().Context(), endpoint, key, res, h.ttl.Analysis)
	return xhttp.SuccessResponse(c, res)
}

func (h *SignalsEchoHandler) Overview(c echo.Context) error {
	start := time.Now()
	endpoint := "overview"
	defer func() { metrics.SignalLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if b, ok := h.cached(c.Request().Context(), endpoint, "overview"); ok {
		return xhttp.SuccessResponse(c, json.RawMessage(b))
	}

	res, err := h.market.Overview(c.Request().Context())
	if err != nil {
		metrics.SignalErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("overview usecase error", xlogger.Error(err))
		return respondError(c, err)
	}
	h.putCache(c.Request().Context(), endpoint, "overview", res, h.ttl.Overview)
	return xhttp.SuccessResponse(c, res)
}

func (h *SignalsEchoHandler) Trending(c echo.Context) error {
	req := &models.TrendingRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.market.Trending(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("trending usecase error", xlogger.Error(err))
		return respondError(c, err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *SignalsEchoHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var from, to time.Time
	if req.From != "" {
		t, ok := xhttp.ParseTime(req.From)
		if !ok {
			return xhttp.BadRequestResponse(c, "invalid from")
		}
		from = t
	}
	if req.To != "" {
		t, ok := xhttp.ParseTime(req.To)
		if !ok {
			return xhttp.BadRequestResponse(c, "invalid to")
		}
		to = t
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return xhttp.BadRequestResponse(c, "from is after to")
	}

	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol:    strings.ToUpper(req.Symbol),
		From:      from,
		To:        to,
		Timeframe: domrepo.Timeframe(req.TF),
		Limit:     req.Limit,
	})
	if err != nil {
		h.logger.Error("candles usecase error", xlogger.Error(err))
		return respondError(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SignalsEchoHandler) Healthz(c echo.Context) error {
	checks := map[string]string{}
	if h.health != nil {
		checks = h.health(c.Request().Context())
	}
	status := http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			status = http.StatusServiceUnavailable
			break
		}
	}
	return c.JSON(status, map[string]interface{}{
		"status":    http.StatusText(status),
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
