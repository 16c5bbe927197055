package ensemble

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"SolSignal/internal/domain/models"
)

const (
	dailyOrder  = 4
	weeklyOrder = 3
	yearlyOrder = 10

	secsPerDay  = 86400.0
	secsPerWeek = 604800.0
	secsPerYear = 31557600.0
)

// Forecaster is a univariate model over (timestamp, close): a piecewise
// linear trend across a changepoint grid plus Fourier seasonality, solved as
// one ridge regression. Yearly terms are off in the default profile.
type Forecaster struct {
	Beta         []float64 `json:"beta"`
	Changepoints []float64 `json:"changepoints"` // scaled times in (0, 0.8]
	TimeStart    int64     `json:"time_start"`
	TimeEnd      int64     `json:"time_end"`
	StepSec      int64     `json:"step_sec"` // median bar interval
	Daily        bool      `json:"daily"`
	Weekly       bool      `json:"weekly"`
	Yearly       bool      `json:"yearly"`
	CPScale      float64   `json:"changepoint_scale"`
}

func fitForecaster(candles []models.Candle, numCP int, cpScale float64, daily, weekly, yearly bool) (*Forecaster, error) {
	n := len(candles)
	if n < 2 {
		return nil, fmt.Errorf("fit forecaster: %d bars", n)
	}
	f := &Forecaster{
		TimeStart: candles[0].Bucket.Unix(),
		TimeEnd:   candles[n-1].Bucket.Unix(),
		Daily:     daily,
		Weekly:    weekly,
		Yearly:    yearly,
		CPScale:   cpScale,
	}
	if f.TimeEnd <= f.TimeStart {
		return nil, fmt.Errorf("fit forecaster: degenerate time span")
	}
	// Changepoints sit uniformly over the first 80% of the training window.
	f.Changepoints = make([]float64, numCP)
	for j := 0; j < numCP; j++ {
		f.Changepoints[j] = 0.8 * float64(j+1) / float64(numCP+1)
	}
	f.StepSec = medianStep(candles)

	p := len(f.designRow(f.TimeStart))
	x := mat.NewDense(n, p, nil)
	yv := mat.NewVecDense(n, nil)
	for i, c := range candles {
		x.SetRow(i, f.designRow(c.Bucket.Unix()))
		yv.SetVec(i, c.Close)
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	lam := f.penalties(p)
	for i := 0; i < p; i++ {
		xtx.Set(i, i, xtx.At(i, i)+lam[i])
	}
	var xty mat.VecDense
	xty.MulVec(x.T(), yv)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return nil, fmt.Errorf("fit forecaster: solve: %w", err)
	}
	f.Beta = make([]float64, p)
	copy(f.Beta, beta.RawVector().Data)
	return f, nil
}

// designRow expands a timestamp into the regression basis: intercept, scaled
// time, hinge terms per changepoint, then seasonal sin/cos pairs.
func (f *Forecaster) designRow(ts int64) []float64 {
	span := float64(f.TimeEnd - f.TimeStart)
	t := float64(ts-f.TimeStart) / span
	row := make([]float64, 0, 2+len(f.Changepoints)+2*(dailyOrder+weeklyOrder+yearlyOrder))
	row = append(row, 1, t)
	for _, c := range f.Changepoints {
		if t > c {
			row = append(row, t-c)
		} else {
			row = append(row, 0)
		}
	}
	if f.Daily {
		row = appendFourier(row, ts, secsPerDay, dailyOrder)
	}
	if f.Weekly {
		row = appendFourier(row, ts, secsPerWeek, weeklyOrder)
	}
	if f.Yearly {
		row = appendFourier(row, ts, secsPerYear, yearlyOrder)
	}
	return row
}

func appendFourier(row []float64, ts int64, period float64, order int) []float64 {
	for k := 1; k <= order; k++ {
		a := 2 * math.Pi * float64(k) * float64(ts) / period
		row = append(row, math.Sin(a), math.Cos(a))
	}
	return row
}

// penalties shrink changepoint slopes by 1/CPScale, mirroring a narrow prior
// around a straight trend, and seasonal terms lightly. Trend terms are
// near-free; the tiny ridge keeps the normal equations solvable.
func (f *Forecaster) penalties(p int) []float64 {
	lam := make([]float64, p)
	lam[0] = 1e-8
	lam[1] = 1e-8
	i := 2
	for range f.Changepoints {
		lam[i] = 1 / f.CPScale
		i++
	}
	for ; i < p; i++ {
		lam[i] = 0.1
	}
	return lam
}

// forecast predicts one step beyond the last observed timestamp.
func (f *Forecaster) forecast() float64 {
	row := f.designRow(f.TimeEnd + f.StepSec)
	v := 0.0
	for i, b := range f.Beta {
		v += b * row[i]
	}
	return v
}

func medianStep(candles []models.Candle) int64 {
	diffs := make([]int64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		diffs = append(diffs, candles[i].Bucket.Unix()-candles[i-1].Bucket.Unix())
	}
	sort.Slice(diffs, func(a, b int) bool { return diffs[a] < diffs[b] })
	return diffs[len(diffs)/2]
}
