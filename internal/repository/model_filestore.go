package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"SolSignal/internal/domain/models"
	"SolSignal/internal/services/ensemble"
	applogger "SolSignal/pkg/logger"
)

// ModelFileStore persists trained model sets as one JSON bundle per symbol.
// Writes go through a temp file and rename, so a reader never observes a
// half-written bundle.
type ModelFileStore struct {
	dir string
	l   *applogger.Logger
}

func NewModelFileStore(dir string) *ModelFileStore { return &ModelFileStore{dir: dir} }

// SetLogger injects a structured logger.
func (s *ModelFileStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *ModelFileStore) path(symbol string) string {
	return filepath.Join(s.dir, symbol+".json")
}

func validBundleSymbol(symbol string) bool {
	if symbol == "" || len(symbol) > 32 {
		return false
	}
	for _, r := range symbol {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

func (s *ModelFileStore) Save(ctx context.Context, set *ensemble.ModelSet) error {
	if set == nil {
		return fmt.Errorf("save model set: nil set")
	}
	if !validBundleSymbol(set.Symbol) {
		return fmt.Errorf("save model set: bad symbol %q", set.Symbol)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("model dir: %w", err)
	}
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode model set: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, set.Symbol+".*.tmp")
	if err != nil {
		return fmt.Errorf("temp bundle: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close bundle: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(set.Symbol)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish bundle: %w", err)
	}
	if s.l != nil {
		s.l.Info("model bundle saved",
			applogger.String("symbol", set.Symbol),
			applogger.Int("bytes", len(raw)),
		)
	}
	return nil
}

// Load reads and validates one bundle. Missing file maps to ErrModelNotFound,
// unreadable or incomplete content to ErrCorruptModelBundle.
func (s *ModelFileStore) Load(ctx context.Context, symbol string) (*ensemble.ModelSet, error) {
	if !validBundleSymbol(symbol) {
		return nil, fmt.Errorf("load model set: bad symbol %q: %w", symbol, models.ErrModelNotFound)
	}
	raw, err := os.ReadFile(s.path(symbol))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("model set %s: %w", symbol, models.ErrModelNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read bundle %s: %w", symbol, err)
	}
	var set ensemble.ModelSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode bundle %s: %v: %w", symbol, err, models.ErrCorruptModelBundle)
	}
	if err := validateBundle(&set, symbol); err != nil {
		return nil, err
	}
	return &set, nil
}

// validateBundle requires every member a successful training run writes.
func validateBundle(set *ensemble.ModelSet, symbol string) error {
	switch {
	case set.Symbol != symbol:
		return fmt.Errorf("bundle %s: symbol mismatch %q: %w", symbol, set.Symbol, models.ErrCorruptModelBundle)
	case set.Scaler == nil || len(set.Scaler.Mean) == 0:
		return fmt.Errorf("bundle %s: missing scaler: %w", symbol, models.ErrCorruptModelBundle)
	case set.Regressor == nil || len(set.Regressor.Trees) == 0:
		return fmt.Errorf("bundle %s: missing regressor: %w", symbol, models.ErrCorruptModelBundle)
	case set.Classifier == nil || len(set.Classifier.Trees) == 0:
		return fmt.Errorf("bundle %s: missing classifier: %w", symbol, models.ErrCorruptModelBundle)
	case set.Forecaster == nil || len(set.Forecaster.Beta) == 0:
		return fmt.Errorf("bundle %s: missing forecaster: %w", symbol, models.ErrCorruptModelBundle)
	}
	return nil
}

// List returns symbols with a stored bundle, sorted.
func (s *ModelFileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	var symbols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		symbols = append(symbols, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(symbols)
	return symbols, nil
}
