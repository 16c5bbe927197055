package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"SolSignal/internal/domain/models"
	domrepo "SolSignal/internal/domain/repository"
	"SolSignal/internal/services/ensemble"
	"SolSignal/internal/services/indicators"
)

func TestSyntheticBarsAreDeterministic(t *testing.T) {
	src := NewSyntheticCandleSource(nil)
	from := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(99 * time.Hour)

	a, err := src.GetCandles(context.Background(), "SOL", from, to, domrepo.TF1h)
	if err != nil {
		t.Fatalf("get candles: %v", err)
	}
	b, err := src.GetCandles(context.Background(), "SOL", from, to, domrepo.TF1h)
	if err != nil {
		t.Fatalf("get candles again: %v", err)
	}
	if len(a) != 100 || len(b) != 100 {
		t.Fatalf("lens = %d, %d, want 100", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("bar %d differs between identical reads: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestSyntheticOverlappingWindowsAgree(t *testing.T) {
	src := NewSyntheticCandleSource(nil)
	t0 := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	a, err := src.GetCandles(context.Background(), "RAY", t0, t0.Add(99*time.Hour), domrepo.TF1h)
	if err != nil {
		t.Fatalf("window a: %v", err)
	}
	b, err := src.GetCandles(context.Background(), "RAY", t0.Add(50*time.Hour), t0.Add(120*time.Hour), domrepo.TF1h)
	if err != nil {
		t.Fatalf("window b: %v", err)
	}
	byBucket := make(map[int64]models.Candle, len(a))
	for _, c := range a {
		byBucket[c.Bucket.Unix()] = c
	}
	shared := 0
	for _, c := range b {
		if prev, ok := byBucket[c.Bucket.Unix()]; ok {
			shared++
			if prev != c {
				t.Fatalf("bucket %v differs across windows: %+v vs %+v", c.Bucket, prev, c)
			}
		}
	}
	if shared == 0 {
		t.Fatal("windows share no buckets, fixture is wrong")
	}
}

func TestSyntheticSeriesIsValidAndContiguous(t *testing.T) {
	src := NewSyntheticCandleSource(nil)
	candles, err := src.GetLatestNCandles(context.Background(), "BONK", 200, domrepo.TF1h)
	if err != nil {
		t.Fatalf("latest candles: %v", err)
	}
	if len(candles) != 200 {
		t.Fatalf("len = %d, want 200", len(candles))
	}
	if err := indicators.ValidateSeries(candles); err != nil {
		t.Fatalf("generated series fails validation: %v", err)
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].Open != candles[i-1].Close {
			t.Fatalf("bar %d open %v != previous close %v", i, candles[i].Open, candles[i-1].Close)
		}
	}
}

func TestSyntheticBasePriceOverride(t *testing.T) {
	src := NewSyntheticCandleSource(map[string]float64{"USDC": 1})
	candles, err := src.GetLatestNCandles(context.Background(), "USDC", 50, domrepo.TF1h)
	if err != nil {
		t.Fatalf("latest candles: %v", err)
	}
	for _, c := range candles {
		if c.Close < 0.9 || c.Close > 1.1 {
			t.Fatalf("close %v strayed from base 1.0", c.Close)
		}
	}
}

func TestSyntheticRejectsHugeRange(t *testing.T) {
	src := NewSyntheticCandleSource(nil)
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := src.GetCandles(context.Background(), "SOL", from, from.AddDate(2, 0, 0), domrepo.TF1m); err == nil {
		t.Fatal("want error for a multi-year 1m range")
	}
}

func leafTree(value float64) ensemble.Tree {
	return ensemble.Tree{
		Feature:   []int{-1},
		Threshold: []float64{0},
		Left:      []int{-1},
		Right:     []int{-1},
		Value:     []float64{value},
	}
}

func storedSet(symbol string) *ensemble.ModelSet {
	return &ensemble.ModelSet{
		Symbol:    symbol,
		TrainedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Bars:      200,
		Scaler: &ensemble.Scaler{
			Mean: []float64{0, 0, 0},
			Std:  []float64{1, 1, 1},
		},
		Regressor:  &ensemble.ForestRegressor{Trees: []ensemble.Tree{leafTree(42)}, MaxDepth: 1, Seed: 1},
		Classifier: &ensemble.BoostedClassifier{Trees: []ensemble.Tree{leafTree(0.1)}, Base: 0.1, LearnRate: 0.1, MaxDepth: 1},
		Forecaster: &ensemble.Forecaster{Beta: []float64{1, 0}, StepSec: 3600, CPScale: 0.05},
	}
}

func TestModelStoreRoundTrip(t *testing.T) {
	store := NewModelFileStore(t.TempDir())
	want := storedSet("SOL")
	if err := store.Save(context.Background(), want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(context.Background(), "SOL")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Symbol != want.Symbol || got.Bars != want.Bars || !got.TrainedAt.Equal(want.TrainedAt) {
		t.Fatalf("header mismatch: %+v", got)
	}
	if len(got.Members()) != 3 {
		t.Fatalf("members = %v, want 3 entries", got.Members())
	}
}

func TestModelStoreMissingSymbol(t *testing.T) {
	store := NewModelFileStore(t.TempDir())
	if _, err := store.Load(context.Background(), "NOPE"); !errors.Is(err, models.ErrModelNotFound) {
		t.Fatalf("want ErrModelNotFound, got %v", err)
	}
}

func TestModelStoreRejectsPathSymbols(t *testing.T) {
	store := NewModelFileStore(t.TempDir())
	if _, err := store.Load(context.Background(), "../evil"); !errors.Is(err, models.ErrModelNotFound) {
		t.Fatalf("want ErrModelNotFound for path-like symbol, got %v", err)
	}
}

func TestModelStoreCorruptBundle(t *testing.T) {
	dir := t.TempDir()
	store := NewModelFileStore(dir)

	if err := os.WriteFile(filepath.Join(dir, "SOL.json"), []byte("{"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := store.Load(context.Background(), "SOL"); !errors.Is(err, models.ErrCorruptModelBundle) {
		t.Fatalf("want ErrCorruptModelBundle for truncated JSON, got %v", err)
	}

	incomplete := storedSet("RAY")
	incomplete.Classifier = nil
	if err := store.Save(context.Background(), incomplete); err != nil {
		t.Fatalf("save incomplete: %v", err)
	}
	if _, err := store.Load(context.Background(), "RAY"); !errors.Is(err, models.ErrCorruptModelBundle) {
		t.Fatalf("want ErrCorruptModelBundle for missing member, got %v", err)
	}
}

func TestModelStoreList(t *testing.T) {
	store := NewModelFileStore(t.TempDir())
	for _, sym := range []string{"SOL", "BONK"} {
		if err := store.Save(context.Background(), storedSet(sym)); err != nil {
			t.Fatalf("save %s: %v", sym, err)
		}
	}
	symbols, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "BONK" || symbols[1] != "SOL" {
		t.Fatalf("symbols = %v, want [BONK SOL]", symbols)
	}
}
