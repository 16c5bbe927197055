package usecase

import (
	"context"
	"errors"
	"sync"

	"SolSignal/internal/domain/models"
	"SolSignal/internal/services/ensemble"
	applogger "SolSignal/pkg/logger"
)

// ModelStore persists trained model sets between restarts.
type ModelStore interface {
	Save(ctx context.Context, set *ensemble.ModelSet) error
	Load(ctx context.Context, symbol string) (*ensemble.ModelSet, error)
	List(ctx context.Context) ([]string, error)
}

// ModelManager holds the live model set per symbol. A reader keeps the set
// that was current when its request started; Install swaps the map entry so
// in-flight predictions are never torn.
type ModelManager struct {
	store ModelStore
	l     *applogger.Logger

	mu   sync.RWMutex
	sets map[string]*ensemble.ModelSet
}

func NewModelManager(store ModelStore, l *applogger.Logger) *ModelManager {
	return &ModelManager{store: store, l: l, sets: make(map[string]*ensemble.ModelSet)}
}

// LoadAll restores persisted bundles at startup. A corrupt bundle is logged
// and skipped, leaving that symbol untrained.
func (m *ModelManager) LoadAll(ctx context.Context) error {
	symbols, err := m.store.List(ctx)
	if err != nil {
		return err
	}
	for _, sym := range symbols {
		set, err := m.store.Load(ctx, sym)
		if err != nil {
			if errors.Is(err, models.ErrCorruptModelBundle) {
				if m.l != nil {
					m.l.Warn("skipping corrupt model bundle",
						applogger.String("symbol", sym),
						applogger.Error(err),
					)
				}
				continue
			}
			return err
		}
		m.mu.Lock()
		m.sets[sym] = set
		m.mu.Unlock()
		if m.l != nil {
			m.l.Info("model bundle restored",
				applogger.String("symbol", sym),
				applogger.Int("bars", set.Bars),
				applogger.Strings("members", set.Members()),
			)
		}
	}
	return nil
}

// Get returns the current set for symbol, or nil when untrained.
func (m *ModelManager) Get(symbol string) *ensemble.ModelSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sets[symbol]
}

// Install persists the set and swaps it in for subsequent requests.
func (m *ModelManager) Install(ctx context.Context, set *ensemble.ModelSet) error {
	if err := m.store.Save(ctx, set); err != nil {
		return err
	}
	m.mu.Lock()
	m.sets[set.Symbol] = set
	m.mu.Unlock()
	return nil
}

// Info reports training metadata for symbol. It falls back to disk so models
// trained by another process are visible without a restart.
func (m *ModelManager) Info(ctx context.Context, symbol string) (models.ModelSetInfo, error) {
	if set := m.Get(symbol); set != nil {
		return set.Info(), nil
	}
	set, err := m.store.Load(ctx, symbol)
	if err != nil {
		return models.ModelSetInfo{}, err
	}
	m.mu.Lock()
	m.sets[symbol] = set
	m.mu.Unlock()
	return set.Info(), nil
}
