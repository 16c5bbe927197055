package analytics

import (
	"fmt"
	"strings"
	"time"

	"SolSignal/internal/domain/models"
)

// BuildInsights turns the market overview and the reference token's patterns
// into commentary strings plus an overall sentiment.
func BuildInsights(overview models.MarketOverview, patterns *models.PricePatterns) models.MarketInsights {
	out := models.MarketInsights{Timestamp: time.Now().UTC(), Sentiment: "bearish"}

	var avgChange, avgVolume float64
	for _, t := range overview.Tickers {
		avgChange += t.Change24h
		avgVolume += t.Volume24h
	}
	if n := len(overview.Tickers); n > 0 {
		avgChange /= float64(n)
		avgVolume /= float64(n)
	}
	if avgChange > 0 {
		out.Sentiment = "bullish"
	}

	switch {
	case avgChange > 0.02:
		out.Insights = append(out.Insights, "Market showing strong bullish momentum with average gains over 2%")
	case avgChange < -0.02:
		out.Insights = append(out.Insights, "Market experiencing bearish pressure with average losses over 2%")
	default:
		out.Insights = append(out.Insights, "Market trading sideways with mixed signals")
	}

	var active []string
	for _, t := range overview.Tickers {
		if t.Volume24h > avgVolume*2 {
			active = append(active, t.Symbol)
		}
	}
	if len(active) > 0 {
		out.Insights = append(out.Insights, "High trading activity detected in: "+strings.Join(active, ", "))
	}

	if patterns != nil {
		if patterns.Position > 0.8 {
			out.Insights = append(out.Insights, "Price approaching resistance level - consider taking profits")
		} else if patterns.Position < 0.2 {
			out.Insights = append(out.Insights, "Price near support level - potential buying opportunity")
		}
		if patterns.Trend == "upward" && patterns.Strength > 5 {
			out.Insights = append(out.Insights, fmt.Sprintf("Strong upward trend detected (%.1f%% above long-term average)", patterns.Strength))
		}
	}
	return out
}
