package ensemble

import (
	"fmt"
	"time"

	"SolSignal/internal/domain/models"
	"SolSignal/internal/services/features"
	"SolSignal/internal/services/indicators"
)

// Member names reported in model status and logs.
const (
	MemberRegressor  = "regressor"
	MemberClassifier = "classifier"
	MemberForecaster = "forecaster"
)

// MinTrainBars is twice the largest indicator window. Training on less is
// insufficient data.
const MinTrainBars = 2 * indicators.MinBars

// TrainConfig carries the ensemble hyperparameters.
type TrainConfig struct {
	Trees            int
	TreeDepth        int
	Rounds           int
	LearnRate        float64
	BoostDepth       int
	TestFraction     float64
	TrendHorizon     int
	TrendThreshold   float64
	Changepoints     int
	ChangepointScale float64
	Daily            bool
	Weekly           bool
	Yearly           bool
	Seed             int64
}

// DefaultTrainConfig returns the profile the models were tuned with.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Trees:            100,
		TreeDepth:        10,
		Rounds:           100,
		LearnRate:        0.1,
		BoostDepth:       5,
		TestFraction:     0.2,
		TrendHorizon:     5,
		TrendThreshold:   0.02,
		Changepoints:     25,
		ChangepointScale: 0.05,
		Daily:            true,
		Weekly:           true,
		Yearly:           false,
		Seed:             42,
	}
}

// ModelSet bundles the three ensemble members with the scaler they were
// trained against. The bundle persists and reloads as one unit so model
// weights can never meet a scaler from a different run. A zero ModelSet is
// the untrained state: every member absent.
type ModelSet struct {
	Symbol     string             `json:"symbol"`
	TrainedAt  time.Time          `json:"trained_at"`
	Bars       int                `json:"bars"`
	Scaler     *Scaler            `json:"scaler,omitempty"`
	Regressor  *ForestRegressor   `json:"regressor,omitempty"`
	Classifier *BoostedClassifier `json:"classifier,omitempty"`
	Forecaster *Forecaster        `json:"forecaster,omitempty"`
}

// Members lists the trained member names in reporting order.
func (s *ModelSet) Members() []string {
	if s == nil {
		return nil
	}
	var out []string
	if s.Regressor != nil {
		out = append(out, MemberRegressor)
	}
	if s.Classifier != nil {
		out = append(out, MemberClassifier)
	}
	if s.Forecaster != nil {
		out = append(out, MemberForecaster)
	}
	return out
}

// Trained reports whether any member is present.
func (s *ModelSet) Trained() bool { return s != nil && len(s.Members()) > 0 }

// Info projects the bundle metadata for status reporting.
func (s *ModelSet) Info() models.ModelSetInfo {
	return models.ModelSetInfo{
		Symbol:    s.Symbol,
		TrainedAt: s.TrainedAt,
		Bars:      s.Bars,
		Members:   s.Members(),
	}
}

// TrainReport describes what a training run consumed.
type TrainReport struct {
	Bars       int
	WarmupRows int // leading rows still carrying zero fill
	TrainRows  int // regressor training partition size
	TestRows   int
}

// Train fits all three members on a computed frame. Splits are chronological
// with no shuffling; the scaler is fit on the training partition only and
// shared by both tree models.
func Train(symbol string, f *models.MarketFrame, cfg TrainConfig) (*ModelSet, TrainReport, error) {
	n := f.Len()
	rep := TrainReport{Bars: n, WarmupRows: indicators.WarmupRows}
	if n < MinTrainBars {
		return nil, rep, fmt.Errorf("train %s: %d bars, need %d: %w", symbol, n, MinTrainBars, models.ErrInsufficientData)
	}

	rows := features.Matrix(f)
	closes := make([]float64, n)
	for i, c := range f.Candles {
		closes[i] = c.Close
	}

	// Next-close regression target: the last row has no label.
	xr := rows[:n-1]
	yr := closes[1:]
	trainN := len(xr) - int(float64(len(xr))*cfg.TestFraction)
	rep.TrainRows = trainN
	rep.TestRows = len(xr) - trainN

	scaler, err := FitScaler(xr[:trainN])
	if err != nil {
		return nil, rep, fmt.Errorf("train %s: %w", symbol, err)
	}
	xs := scaler.TransformAll(xr)
	forest := fitForest(xs[:trainN], yr[:trainN], cfg.Trees, cfg.TreeDepth, cfg.Seed)

	// Trend labels look TrendHorizon bars ahead; the tail has no label.
	h := cfg.TrendHorizon
	xc := rows[:n-h]
	yc := make([]float64, n-h)
	for i := range yc {
		if closes[i+h]/closes[i]-1 > cfg.TrendThreshold {
			yc[i] = 1
		}
	}
	trainC := len(xc) - int(float64(len(xc))*cfg.TestFraction)
	xcs := scaler.TransformAll(xc)
	boost := fitBoost(xcs[:trainC], yc[:trainC], cfg.Rounds, cfg.LearnRate, cfg.BoostDepth)

	fc, err := fitForecaster(f.Candles, cfg.Changepoints, cfg.ChangepointScale, cfg.Daily, cfg.Weekly, cfg.Yearly)
	if err != nil {
		return nil, rep, fmt.Errorf("train %s: %w", symbol, err)
	}

	return &ModelSet{
		Symbol:     symbol,
		TrainedAt:  time.Now().UTC(),
		Bars:       n,
		Scaler:     scaler,
		Regressor:  forest,
		Classifier: boost,
		Forecaster: fc,
	}, rep, nil
}

// Predict runs every trained member on the latest frame row. Members run
// concurrently; absent members are skipped, and the ensemble mean covers the
// present price members only. The result layout does not depend on
// completion order.
func Predict(set *ModelSet, f *models.MarketFrame) models.Prediction {
	last := f.Candles[f.Len()-1]
	pred := models.Prediction{
		Symbol:       f.Symbol,
		Timestamp:    last.Bucket,
		CurrentPrice: last.Close,
		Trend:        models.TrendPrediction{Label: models.TrendNeutral, Confidence: 0.5},
	}
	if !set.Trained() {
		pred.Reason = models.NoPredictionReason
		return pred
	}

	latest := features.Latest(f)

	type item struct {
		name  string
		price float64
		trend models.TrendPrediction
	}
	ch := make(chan item, 3)
	launched := 0

	if set.Regressor != nil && set.Scaler != nil {
		launched++
		go func() {
			v := set.Regressor.predict(set.Scaler.Transform(latest))
			ch <- item{name: MemberRegressor, price: v}
		}()
	}
	if set.Classifier != nil && set.Scaler != nil {
		launched++
		go func() {
			p := set.Classifier.probaUp(set.Scaler.Transform(latest))
			t := models.TrendPrediction{
				Label:      models.TrendBearish,
				Confidence: 1 - p,
				Proba:      []float64{1 - p, p},
			}
			if p >= 0.5 {
				t.Label = models.TrendBullish
				t.Confidence = p
			}
			ch <- item{name: MemberClassifier, trend: t}
		}()
	}
	if set.Forecaster != nil {
		launched++
		go func() {
			ch <- item{name: MemberForecaster, price: set.Forecaster.forecast()}
		}()
	}

	for i := 0; i < launched; i++ {
		it := <-ch
		switch it.name {
		case MemberRegressor:
			v := it.price
			pred.Regressor = &v
		case MemberClassifier:
			pred.Trend = it.trend
		case MemberForecaster:
			v := it.price
			pred.Forecaster = &v
		}
	}

	var sum float64
	var cnt int
	if pred.Regressor != nil {
		sum += *pred.Regressor
		cnt++
	}
	if pred.Forecaster != nil {
		sum += *pred.Forecaster
		cnt++
	}
	if cnt > 0 {
		mean := sum / float64(cnt)
		pred.Ensemble = &mean
	}
	return pred
}
