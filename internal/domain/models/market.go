package models

import "time"

// Token is one registry entry for a tracked token.
type Token struct {
	Symbol   string
	Name     string
	Mint     string
	Decimals int
}

// TokenPrice is a spot quote from the price feed.
type TokenPrice struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}

// RiskMetrics are per-symbol return statistics over the analysis window.
type RiskMetrics struct {
	Symbol      string
	Timestamp   time.Time
	Volatility  float64 // annualized
	Sharpe      float64
	MaxDrawdown float64 // peak-to-trough drop of cumulative returns, >= 0
	VaR95       float64 // 5th percentile of per-bar returns
	CVaR95      float64 // mean return at or below VaR95
	Bars        int
}

// PricePatterns places the latest close between rolling support and
// resistance and reads the short/long moving-average trend.
type PricePatterns struct {
	Symbol     string
	Timestamp  time.Time
	Support    float64
	Resistance float64
	Position   float64 // 0 at support, 1 at resistance
	Trend      string  // "upward", "downward"
	Strength   float64 // SMA spread over the long average, in percent
}

// TokenAnalysis is the combined analysis view for one token.
type TokenAnalysis struct {
	Symbol     string
	Timestamp  time.Time
	Price      float64
	Indicators IndicatorSnapshot
	Risk       *RiskMetrics
	Patterns   *PricePatterns
	Bars       int
}

// MarketTicker is one token's 24h summary computed from stored candles.
type MarketTicker struct {
	Symbol    string
	Price     float64
	Change24h float64 // fraction over the trailing 24h
	Volume24h float64
	High24h   float64
	Low24h    float64
}

// MarketOverview aggregates tickers for every tracked token.
type MarketOverview struct {
	Timestamp time.Time
	Tickers   []MarketTicker
}

// MarketInsights is generated commentary over the tracked tokens.
type MarketInsights struct {
	Timestamp time.Time
	Sentiment string // "bullish", "bearish"
	Insights  []string
}
