package ensemble

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"SolSignal/internal/domain/models"
	"SolSignal/internal/services/indicators"
)

func testCandles(n int) []models.Candle {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		move := 1.5*math.Sin(float64(i)/4.0) + 0.2 + 0.04*float64(i%5)
		open := price
		close := price + move
		if close <= 1 {
			close = 1
		}
		out[i] = models.Candle{
			Bucket: base.Add(time.Duration(i) * time.Hour),
			Symbol: "SOL",
			Open:   open,
			High:   math.Max(open, close) + 0.4,
			Low:    math.Min(open, close) - 0.4,
			Close:  close,
			Volume: 900 + 80*math.Sin(float64(i)/6.0),
		}
		price = close
	}
	return out
}

func testFrame(t *testing.T, n int) *models.MarketFrame {
	t.Helper()
	f, err := indicators.Compute("SOL", testCandles(n))
	if err != nil {
		t.Fatalf("compute frame: %v", err)
	}
	return f
}

func quickConfig() TrainConfig {
	cfg := DefaultTrainConfig()
	cfg.Trees = 12
	cfg.Rounds = 12
	return cfg
}

func TestScalerMoments(t *testing.T) {
	rows := [][]float64{
		{1, 10, 5},
		{2, 10, 7},
		{3, 10, 9},
	}
	s, err := FitScaler(rows)
	if err != nil {
		t.Fatalf("fit scaler: %v", err)
	}
	if s.Mean[0] != 2 || s.Mean[1] != 10 || s.Mean[2] != 7 {
		t.Fatalf("unexpected means %v", s.Mean)
	}
	if s.Std[1] != 1 {
		t.Fatalf("constant column std = %v, want 1", s.Std[1])
	}
	got := s.Transform([]float64{2, 10, 7})
	for j, v := range got {
		if v != 0 {
			t.Fatalf("transform of mean row, col %d = %v", j, v)
		}
	}
}

func TestTreeFitsStepFunction(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}, {10}, {11}, {12}}
	y := []float64{5, 5, 5, 20, 20, 20}
	idx := []int{0, 1, 2, 3, 4, 5}
	tr := fitTree(x, y, idx, 3, 2)
	for i := range x {
		if got := tr.predict(x[i]); got != y[i] {
			t.Fatalf("predict(%v) = %v, want %v", x[i], got, y[i])
		}
	}
}

func TestForestIsSeedDeterministic(t *testing.T) {
	x := make([][]float64, 80)
	y := make([]float64, 80)
	for i := range x {
		x[i] = []float64{float64(i), float64(i % 7)}
		y[i] = 3*float64(i) + float64(i%7)
	}
	a := fitForest(x, y, 10, 6, 42)
	b := fitForest(x, y, 10, 6, 42)
	probe := []float64{40.5, 3}
	if a.predict(probe) != b.predict(probe) {
		t.Fatalf("same seed produced different forests")
	}
	c := fitForest(x, y, 10, 6, 7)
	if a.predict(probe) == c.predict(probe) {
		t.Fatalf("different seeds produced identical forests")
	}
}

func TestBoostSeparatesClasses(t *testing.T) {
	x := make([][]float64, 60)
	y := make([]float64, 60)
	for i := range x {
		x[i] = []float64{float64(i)}
		if i >= 30 {
			y[i] = 1
		}
	}
	c := fitBoost(x, y, 20, 0.1, 3)
	if p := c.probaUp([]float64{5}); p >= 0.5 {
		t.Fatalf("low side proba = %v, want < 0.5", p)
	}
	if p := c.probaUp([]float64{55}); p <= 0.5 {
		t.Fatalf("high side proba = %v, want > 0.5", p)
	}
	for _, v := range []float64{0, 29, 31, 59} {
		p := c.probaUp([]float64{v})
		if p <= 0 || p >= 1 {
			t.Fatalf("proba out of (0,1): %v", p)
		}
	}
}

func TestForecasterExtendsLinearTrend(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, 120)
	for i := range candles {
		candles[i] = models.Candle{
			Bucket: base.Add(time.Duration(i) * time.Hour),
			Close:  100 + float64(i),
		}
	}
	f, err := fitForecaster(candles, 25, 0.05, true, true, false)
	if err != nil {
		t.Fatalf("fit forecaster: %v", err)
	}
	if f.StepSec != 3600 {
		t.Fatalf("step = %d, want 3600", f.StepSec)
	}
	got := f.forecast()
	want := 100.0 + 120.0
	if math.Abs(got-want)/want > 0.05 {
		t.Fatalf("forecast = %v, want about %v", got, want)
	}
}

func TestTrainRequiresEnoughBars(t *testing.T) {
	f := testFrame(t, MinTrainBars-10)
	_, _, err := Train("SOL", f, quickConfig())
	if !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected insufficient data, got %v", err)
	}
}

func TestTrainProducesFullBundle(t *testing.T) {
	f := testFrame(t, 160)
	set, rep, err := Train("SOL", f, quickConfig())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if set.Scaler == nil || set.Regressor == nil || set.Classifier == nil || set.Forecaster == nil {
		t.Fatalf("bundle incomplete: %+v", set.Members())
	}
	if got := set.Members(); len(got) != 3 {
		t.Fatalf("members = %v", got)
	}
	if rep.Bars != 160 || rep.WarmupRows != indicators.WarmupRows {
		t.Fatalf("unexpected report %+v", rep)
	}
	if rep.TrainRows+rep.TestRows != 159 {
		t.Fatalf("split does not cover rows: %+v", rep)
	}
}

func TestPredictUntrainedReturnsNoPrediction(t *testing.T) {
	f := testFrame(t, 80)
	pred := Predict(&ModelSet{}, f)
	if pred.Reason != models.NoPredictionReason {
		t.Fatalf("reason = %q", pred.Reason)
	}
	if pred.Regressor != nil || pred.Forecaster != nil || pred.Ensemble != nil {
		t.Fatalf("untrained members leaked predictions")
	}
	if pred.Trend.Label != models.TrendNeutral || pred.Trend.Confidence != 0.5 {
		t.Fatalf("trend = %+v, want neutral at 0.5", pred.Trend)
	}
}

func TestPredictExcludesAbsentMembers(t *testing.T) {
	f := testFrame(t, 160)
	full, _, err := Train("SOL", f, quickConfig())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	partial := &ModelSet{Symbol: "SOL", Forecaster: full.Forecaster}
	pred := Predict(partial, f)
	if pred.Regressor != nil {
		t.Fatalf("regressor should be absent")
	}
	if pred.Forecaster == nil || pred.Ensemble == nil {
		t.Fatalf("forecaster output missing")
	}
	if *pred.Ensemble != *pred.Forecaster {
		t.Fatalf("ensemble %v should equal sole member %v", *pred.Ensemble, *pred.Forecaster)
	}
	if pred.Trend.Label != models.TrendNeutral {
		t.Fatalf("trend = %+v, want neutral", pred.Trend)
	}
}

func TestPredictIsDeterministic(t *testing.T) {
	f := testFrame(t, 160)
	cfg := quickConfig()
	a, _, err := Train("SOL", f, cfg)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	b, _, err := Train("SOL", f, cfg)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	pa := Predict(a, f)
	pb := Predict(b, f)
	if *pa.Regressor != *pb.Regressor || *pa.Forecaster != *pb.Forecaster || *pa.Ensemble != *pb.Ensemble {
		t.Fatalf("identical training runs disagree: %+v vs %+v", pa, pb)
	}
	if pa.Trend.Label != pb.Trend.Label || pa.Trend.Confidence != pb.Trend.Confidence {
		t.Fatalf("trend disagree: %+v vs %+v", pa.Trend, pb.Trend)
	}
}

func TestBundleRoundTripPredictsIdentically(t *testing.T) {
	f := testFrame(t, 160)
	set, _, err := Train("SOL", f, quickConfig())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	raw, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var loaded ModelSet
	if err := json.Unmarshal(raw, &loaded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	before := Predict(set, f)
	after := Predict(&loaded, f)
	if *before.Regressor != *after.Regressor {
		t.Fatalf("regressor drifted: %v vs %v", *before.Regressor, *after.Regressor)
	}
	if *before.Forecaster != *after.Forecaster {
		t.Fatalf("forecaster drifted: %v vs %v", *before.Forecaster, *after.Forecaster)
	}
	if *before.Ensemble != *after.Ensemble {
		t.Fatalf("ensemble drifted: %v vs %v", *before.Ensemble, *after.Ensemble)
	}
	if before.Trend.Confidence != after.Trend.Confidence || before.Trend.Label != after.Trend.Label {
		t.Fatalf("trend drifted: %+v vs %+v", before.Trend, after.Trend)
	}
}

func TestTrainedTrendIsDirectional(t *testing.T) {
	f := testFrame(t, 160)
	set, _, err := Train("SOL", f, quickConfig())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	pred := Predict(set, f)
	if pred.Trend.Label != models.TrendBullish && pred.Trend.Label != models.TrendBearish {
		t.Fatalf("trained trend label = %q", pred.Trend.Label)
	}
	if pred.Trend.Confidence < 0.5 || pred.Trend.Confidence > 1 {
		t.Fatalf("trend confidence = %v", pred.Trend.Confidence)
	}
	if len(pred.Trend.Proba) != 2 {
		t.Fatalf("proba = %v", pred.Trend.Proba)
	}
	if s := pred.Trend.Proba[0] + pred.Trend.Proba[1]; math.Abs(s-1) > 1e-12 {
		t.Fatalf("proba sums to %v", s)
	}
}
