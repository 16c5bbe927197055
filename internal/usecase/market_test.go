package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"SolSignal/internal/domain/models"
	domrepo "SolSignal/internal/domain/repository"
	domsvc "SolSignal/internal/domain/service"
	internalrepo "SolSignal/internal/repository"
	"SolSignal/internal/services/analytics"
)

type feedStub struct {
	price models.TokenPrice
	err   error
}

func (f feedStub) SpotPrice(ctx context.Context, token models.Token) (models.TokenPrice, error) {
	if f.err != nil {
		return models.TokenPrice{}, f.err
	}
	return f.price, nil
}

type failingRisk struct{}

func (failingRisk) Risk(ctx context.Context, symbol string, candles []models.Candle, tf string) (*models.RiskMetrics, error) {
	return nil, errors.New("risk backend down")
}

func marketTokens() []models.Token {
	return []models.Token{{Symbol: "SOL"}, {Symbol: "RAY"}, {Symbol: "BONK"}}
}

func newMarket(t *testing.T, feed domsvc.PriceFeed) *MarketUseCase {
	t.Helper()
	return NewMarketUseCase(
		internalrepo.NewSyntheticCandleSource(nil),
		analytics.NewRiskService(),
		analytics.NewPatternService(),
		feed,
		nopMetrics{},
		testLogger(t),
		marketTokens(),
	)
}

func TestOverviewCoversRegistry(t *testing.T) {
	uc := newMarket(t, nil)

	overview, err := uc.Overview(context.Background())
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if len(overview.Tickers) != 3 {
		t.Fatalf("tickers = %d, want one per token", len(overview.Tickers))
	}
	for i, tk := range overview.Tickers {
		if i > 0 && overview.Tickers[i-1].Symbol > tk.Symbol {
			t.Fatalf("tickers not sorted by symbol: %v before %v", overview.Tickers[i-1].Symbol, tk.Symbol)
		}
		if tk.Price <= 0 || tk.Volume24h <= 0 {
			t.Fatalf("ticker %s has empty fields: %+v", tk.Symbol, tk)
		}
		if tk.High24h < tk.Low24h || tk.Price > tk.High24h || tk.Price < tk.Low24h {
			t.Fatalf("ticker %s range is inconsistent: %+v", tk.Symbol, tk)
		}
	}
}

func TestTrendingOrdersByChange(t *testing.T) {
	uc := newMarket(t, nil)

	top, err := uc.Trending(context.Background(), 2)
	if err != nil {
		t.Fatalf("trending: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("len = %d, want limit 2", len(top))
	}
	if top[0].Change24h < top[1].Change24h {
		t.Fatalf("movers out of order: %v then %v", top[0].Change24h, top[1].Change24h)
	}

	all, err := uc.Trending(context.Background(), 0)
	if err != nil {
		t.Fatalf("trending default: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("default limit returned %d of 3 tokens", len(all))
	}
}

func TestTokenPriceFeedPreference(t *testing.T) {
	want := models.TokenPrice{
		Symbol:    "SOL",
		Price:     123.45,
		Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	uc := newMarket(t, feedStub{price: want})

	got, err := uc.TokenPrice(context.Background(), "SOL")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if got != want {
		t.Fatalf("price = %+v, want the feed quote %+v", got, want)
	}
}

func TestTokenPriceCandleFallback(t *testing.T) {
	uc := newMarket(t, feedStub{err: errors.New("feed down")})

	got, err := uc.TokenPrice(context.Background(), "SOL")
	if err != nil {
		t.Fatalf("price with broken feed: %v", err)
	}
	if got.Symbol != "SOL" || got.Price <= 0 || got.Timestamp.IsZero() {
		t.Fatalf("fallback quote = %+v", got)
	}

	if _, err := uc.TokenPrice(context.Background(), "DOGE"); err == nil || !strings.Contains(err.Error(), "unknown token") {
		t.Fatalf("want unknown token error, got %v", err)
	}
}

func TestInsightsAlwaysHaveCommentary(t *testing.T) {
	uc := newMarket(t, nil)

	insights, err := uc.Insights(context.Background())
	if err != nil {
		t.Fatalf("insights: %v", err)
	}
	if insights.Sentiment != "bullish" && insights.Sentiment != "bearish" {
		t.Fatalf("sentiment = %q", insights.Sentiment)
	}
	if len(insights.Insights) == 0 {
		t.Fatal("no insight lines generated")
	}
	if insights.Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}
}

func TestTokenAnalysisSections(t *testing.T) {
	uc := newMarket(t, nil)

	res, err := uc.TokenAnalysis(context.Background(), TokenAnalysisParams{Symbol: "SOL", N: 300})
	if err != nil {
		t.Fatalf("analysis: %v", err)
	}
	if res.Bars != 300 {
		t.Fatalf("bars = %d, want 300", res.Bars)
	}
	if res.Indicators.RSI < 0 || res.Indicators.RSI > 100 {
		t.Fatalf("rsi = %v, want [0,100]", res.Indicators.RSI)
	}
	if res.Indicators.Support <= 0 || res.Indicators.Resistance < res.Indicators.Support {
		t.Fatalf("support/resistance inconsistent: %+v", res.Indicators)
	}
	if res.Risk == nil || res.Patterns == nil {
		t.Fatalf("missing sections: risk=%v patterns=%v", res.Risk, res.Patterns)
	}
}

func TestTokenAnalysisDegradesOnAnalyzerFailure(t *testing.T) {
	uc := NewMarketUseCase(
		internalrepo.NewSyntheticCandleSource(nil),
		failingRisk{},
		analytics.NewPatternService(),
		nil,
		nopMetrics{},
		testLogger(t),
		marketTokens(),
	)

	res, err := uc.TokenAnalysis(context.Background(), TokenAnalysisParams{Symbol: "SOL"})
	if err != nil {
		t.Fatalf("analysis: %v", err)
	}
	if res.Risk != nil {
		t.Fatalf("failed analyzer still produced risk: %+v", res.Risk)
	}
	if res.Patterns == nil {
		t.Fatal("pattern section lost to unrelated failure")
	}
}

func TestGetCandlesDefaults(t *testing.T) {
	uc := NewCandlesUseCase(internalrepo.NewSyntheticCandleSource(nil))

	res, err := uc.GetCandles(context.Background(), GetCandlesParams{Symbol: "SOL"})
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if res.Timeframe != string(domrepo.TF1h) {
		t.Fatalf("timeframe = %q, want default 1h", res.Timeframe)
	}
	if res.Count == 0 || res.Count != len(res.Candles) {
		t.Fatalf("count = %d, candles = %d", res.Count, len(res.Candles))
	}
	if res.Count > 600 {
		t.Fatalf("default limit exceeded: %d", res.Count)
	}
	for i := 1; i < len(res.Candles); i++ {
		if !res.Candles[i].Bucket.After(res.Candles[i-1].Bucket) {
			t.Fatalf("candles out of order at %d", i)
		}
	}
}

func TestGetCandlesLimitKeepsNewest(t *testing.T) {
	uc := NewCandlesUseCase(internalrepo.NewSyntheticCandleSource(nil))
	to := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	from := to.Add(-48 * time.Hour)

	res, err := uc.GetCandles(context.Background(), GetCandlesParams{
		Symbol: "SOL", From: from, To: to, Timeframe: domrepo.TF1h, Limit: 10,
	})
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if res.Count != 10 {
		t.Fatalf("count = %d, want clamp to 10", res.Count)
	}
	first := res.Candles[0].Bucket
	if !first.After(from.Add(24 * time.Hour)) {
		t.Fatalf("clamp kept oldest bars, first bucket %v", first)
	}
}

func TestGetCandlesRejectsBadInput(t *testing.T) {
	uc := NewCandlesUseCase(internalrepo.NewSyntheticCandleSource(nil))
	ctx := context.Background()

	if _, err := uc.GetCandles(ctx, GetCandlesParams{}); err == nil {
		t.Fatal("want error for missing symbol")
	}
	if _, err := uc.GetCandles(ctx, GetCandlesParams{Symbol: "SOL", Timeframe: "3h"}); err == nil {
		t.Fatal("want error for unknown timeframe")
	}
	now := time.Now().UTC()
	if _, err := uc.GetCandles(ctx, GetCandlesParams{Symbol: "SOL", From: now, To: now.Add(-time.Hour)}); err == nil {
		t.Fatal("want error for inverted range")
	}
}
