package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"SolSignal/internal/domain/models"
	domsvc "SolSignal/internal/domain/service"
)

// minRiskBars is the smallest window the risk statistics are meaningful on.
const minRiskBars = 20

// RiskService computes return statistics in process from candle history.
type RiskService struct{}

func NewRiskService() *RiskService { return &RiskService{} }

// Risk annualizes volatility and Sharpe by the bar frequency of tf and
// derives drawdown and tail statistics from per-bar simple returns.
func (s *RiskService) Risk(ctx context.Context, symbol string, candles []models.Candle, tf string) (*models.RiskMetrics, error) {
	if len(candles) < minRiskBars {
		return nil, fmt.Errorf("risk %s: %d bars, need %d: %w", symbol, len(candles), minRiskBars, models.ErrInsufficientData)
	}
	returns := SimpleReturns(candles)
	perYear := BarsPerYearForTF(tf)

	mean := stat.Mean(returns, nil)
	sd := stat.StdDev(returns, nil)

	m := &models.RiskMetrics{
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		Bars:      len(candles),
	}
	m.Volatility = sd * math.Sqrt(perYear)
	if sd > 0 {
		m.Sharpe = mean / sd * math.Sqrt(perYear)
	}
	m.MaxDrawdown = maxDrawdown(returns)
	m.VaR95, m.CVaR95 = tailRisk(returns)
	return m, nil
}

// SimpleReturns computes r_t = C_t/C_{t-1} - 1. Bars with a non-positive
// previous close contribute zero.
func SimpleReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, candles[i].Close/prev-1)
	}
	return out
}

// maxDrawdown is the largest peak-to-trough drop of the cumulative return
// path, reported as a positive magnitude.
func maxDrawdown(returns []float64) float64 {
	cum, peak, worst := 0.0, 0.0, 0.0
	for _, r := range returns {
		cum += r
		if cum > peak {
			peak = cum
		}
		if d := peak - cum; d > worst {
			worst = d
		}
	}
	return worst
}

// tailRisk returns the 5th percentile of returns and the mean of everything
// at or below it.
func tailRisk(returns []float64) (var95, cvar95 float64) {
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)
	var95 = stat.Quantile(0.05, stat.LinInterp, sorted, nil)

	sum, n := 0.0, 0
	for _, r := range sorted {
		if r <= var95 {
			sum += r
			n++
		}
	}
	if n > 0 {
		cvar95 = sum / float64(n)
	}
	return var95, cvar95
}

// BarsPerYearForTF returns the approximate number of bars per year for a
// timeframe.
func BarsPerYearForTF(tf string) float64 {
	switch tf {
	case "1m":
		return 365 * 24 * 60
	case "5m":
		return 365 * 24 * 12
	case "1h":
		return 365 * 24
	case "1d":
		return 365
	default:
		return 365 * 24
	}
}

var _ domsvc.RiskAnalyzer = (*RiskService)(nil)
