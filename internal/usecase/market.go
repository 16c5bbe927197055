package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"SolSignal/internal/domain/models"
	domrepo "SolSignal/internal/domain/repository"
	domsvc "SolSignal/internal/domain/service"
	"SolSignal/internal/services/analytics"
	"SolSignal/internal/services/indicators"
	applogger "SolSignal/pkg/logger"
)

const (
	overviewWindow  = 24 * time.Hour
	patternBars     = 168 // 7 days of hourly bars
	defaultTrending = 5
)

// MarketUseCase serves market-wide views over the token registry: tickers,
// trending movers, generated insights and per-token analysis.
type MarketUseCase struct {
	source  domrepo.CandleSource
	risk    domsvc.RiskAnalyzer
	pattern domsvc.PatternAnalyzer
	feed    domsvc.PriceFeed // optional, candle fallback when nil
	metrics domrepo.Metrics
	l       *applogger.Logger
	tokens  []models.Token
	timeout time.Duration
}

func NewMarketUseCase(
	source domrepo.CandleSource,
	risk domsvc.RiskAnalyzer,
	pattern domsvc.PatternAnalyzer,
	feed domsvc.PriceFeed,
	metrics domrepo.Metrics,
	lgr *applogger.Logger,
	tokens []models.Token,
) *MarketUseCase {
	return &MarketUseCase{
		source:  source,
		risk:    risk,
		pattern: pattern,
		feed:    feed,
		metrics: metrics,
		l:       lgr,
		tokens:  tokens,
		timeout: 10 * time.Second,
	}
}

// Tokens returns the tracked token registry.
func (uc *MarketUseCase) Tokens() []models.Token {
	out := make([]models.Token, len(uc.tokens))
	copy(out, uc.tokens)
	return out
}

func (uc *MarketUseCase) tokenBySymbol(symbol string) (models.Token, bool) {
	for _, t := range uc.tokens {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return models.Token{}, false
}

// Overview computes a 24h ticker for every tracked token from stored candles.
// Tokens whose candles cannot be read are skipped.
func (uc *MarketUseCase) Overview(ctx context.Context) (*models.MarketOverview, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	now := time.Now().UTC()
	res := &models.MarketOverview{Timestamp: now}

	type item struct {
		ticker models.MarketTicker
		err    error
	}
	ch := make(chan item, len(uc.tokens))
	var wg sync.WaitGroup

	for _, tok := range uc.tokens {
		wg.Add(1)
		go func(tok models.Token) {
			defer wg.Done()
			t, err := uc.ticker(ctx, tok.Symbol, now)
			ch <- item{t, err}
		}(tok)
	}
	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			uc.metrics.RecordError("overview")
			uc.l.Warn("ticker failed", applogger.Error(it.err))
			continue
		}
		res.Tickers = append(res.Tickers, it.ticker)
	}
	sort.Slice(res.Tickers, func(i, j int) bool {
		return res.Tickers[i].Symbol < res.Tickers[j].Symbol
	})
	return res, nil
}

func (uc *MarketUseCase) ticker(ctx context.Context, symbol string, now time.Time) (models.MarketTicker, error) {
	candles, err := uc.source.GetCandles(ctx, symbol, now.Add(-overviewWindow), now, domrepo.TF1h)
	if err != nil {
		return models.MarketTicker{}, fmt.Errorf("ticker %s: %w", symbol, err)
	}
	if len(candles) == 0 {
		return models.MarketTicker{}, fmt.Errorf("ticker %s: no candles", symbol)
	}

	first, last := candles[0], candles[len(candles)-1]
	t := models.MarketTicker{
		Symbol:  symbol,
		Price:   last.Close,
		High24h: last.High,
		Low24h:  last.Low,
	}
	if first.Close > 0 {
		t.Change24h = (last.Close - first.Close) / first.Close
	}
	for _, c := range candles {
		t.Volume24h += c.Volume
		if c.High > t.High24h {
			t.High24h = c.High
		}
		if c.Low < t.Low24h {
			t.Low24h = c.Low
		}
	}
	uc.metrics.RecordLastPrice(symbol, last.Close)
	return t, nil
}

// Trending returns the top movers by 24h change, gainers first.
func (uc *MarketUseCase) Trending(ctx context.Context, limit int) ([]models.MarketTicker, error) {
	if limit <= 0 {
		limit = defaultTrending
	}
	overview, err := uc.Overview(ctx)
	if err != nil {
		return nil, err
	}
	tickers := make([]models.MarketTicker, len(overview.Tickers))
	copy(tickers, overview.Tickers)
	sort.Slice(tickers, func(i, j int) bool {
		return tickers[i].Change24h > tickers[j].Change24h
	})
	if limit < len(tickers) {
		tickers = tickers[:limit]
	}
	return tickers, nil
}

// Insights generates commentary from the overview and the reference token's
// price patterns. Pattern errors degrade to overview-only insights.
func (uc *MarketUseCase) Insights(ctx context.Context) (*models.MarketInsights, error) {
	overview, err := uc.Overview(ctx)
	if err != nil {
		return nil, err
	}

	var patterns *models.PricePatterns
	if len(uc.tokens) > 0 {
		ref := uc.tokens[0].Symbol
		candles, cerr := uc.source.GetLatestNCandles(ctx, ref, patternBars, domrepo.TF1h)
		if cerr == nil {
			patterns, cerr = uc.pattern.Patterns(ctx, ref, candles)
		}
		if cerr != nil {
			uc.l.Warn("pattern read failed for insights",
				applogger.String("symbol", ref),
				applogger.Error(cerr))
			patterns = nil
		}
	}

	insights := analytics.BuildInsights(*overview, patterns)
	return &insights, nil
}

// TokenPrice quotes a registry token, preferring the live feed and falling
// back to the latest stored candle close.
func (uc *MarketUseCase) TokenPrice(ctx context.Context, symbol string) (models.TokenPrice, error) {
	tok, ok := uc.tokenBySymbol(symbol)
	if !ok {
		return models.TokenPrice{}, fmt.Errorf("unknown token %q", symbol)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	if uc.feed != nil {
		price, err := uc.feed.SpotPrice(ctx, tok)
		if err == nil {
			uc.metrics.RecordLastPrice(symbol, price.Price)
			return price, nil
		}
		uc.metrics.RecordError("price_feed")
		uc.l.Warn("price feed failed, using candle fallback",
			applogger.String("symbol", symbol),
			applogger.Error(err))
	}

	candles, err := uc.source.GetLatestNCandles(ctx, symbol, 1, domrepo.TF1h)
	if err != nil {
		return models.TokenPrice{}, fmt.Errorf("price fallback %s: %w", symbol, err)
	}
	if len(candles) == 0 {
		return models.TokenPrice{}, fmt.Errorf("price fallback %s: no candles", symbol)
	}
	last := candles[len(candles)-1]
	uc.metrics.RecordLastPrice(symbol, last.Close)
	return models.TokenPrice{
		Symbol:    symbol,
		Price:     last.Close,
		Timestamp: last.Bucket,
	}, nil
}

type TokenAnalysisParams struct {
	Symbol    string
	N         int
	Timeframe domrepo.Timeframe
}

// TokenAnalysis combines the latest indicator snapshot with risk metrics and
// price patterns computed concurrently. Analyzer failures leave the matching
// section nil.
func (uc *MarketUseCase) TokenAnalysis(ctx context.Context, p TokenAnalysisParams) (*models.TokenAnalysis, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.N <= 0 {
		p.N = 300
	}
	if p.Timeframe == "" {
		p.Timeframe = domrepo.DefaultTimeframe()
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	start := time.Now()
	candles, err := uc.source.GetLatestNCandles(ctx, p.Symbol, p.N, p.Timeframe)
	if err != nil {
		uc.metrics.RecordError("candles")
		return nil, fmt.Errorf("load candles %s: %w", p.Symbol, err)
	}

	frame, err := indicators.Compute(p.Symbol, candles)
	if err != nil {
		return nil, err
	}
	last := frame.Len() - 1

	res := &models.TokenAnalysis{
		Symbol:     p.Symbol,
		Timestamp:  frame.Candles[last].Bucket,
		Price:      frame.Candles[last].Close,
		Indicators: frame.Snapshot(last),
		Bars:       frame.Len(),
	}

	type item struct {
		name string
		val  interface{}
		err  error
	}
	ch := make(chan item, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.risk.Risk(ctx, p.Symbol, candles, string(p.Timeframe))
		ch <- item{"risk", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.pattern.Patterns(ctx, p.Symbol, candles)
		ch <- item{"patterns", v, err}
	}()
	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			uc.l.Warn("analyzer failed",
				applogger.String("symbol", p.Symbol),
				applogger.String("analyzer", it.name),
				applogger.Error(it.err))
			continue
		}
		switch it.name {
		case "risk":
			res.Risk = it.val.(*models.RiskMetrics)
		case "patterns":
			res.Patterns = it.val.(*models.PricePatterns)
		}
	}

	uc.metrics.RecordLatency("token_analysis", time.Since(start).Seconds())
	return res, nil
}
