package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Store is the persistence contract the catalog service reads from.
type Store interface {
	Lookup
	ComboSource
}

// Service fronts the catalog store with a read-through combo cache.
type Service struct {
	store  Store
	cache  *ComboCache
	logger zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store  Store
	Cache  *ComboCache
	Logger zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog store is required")
	}
	return &Service{store: cfg.Store, cache: cfg.Cache, logger: cfg.Logger}, nil
}

// FindMany resolves distinct, non-empty product ids against the store.
func (s *Service) FindMany(ctx context.Context, ids []string, availableOnly bool) ([]Product, error) {
	ids = Distinct(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	products, err := s.store.FindMany(ctx, ids, availableOnly)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	return products, nil
}

// ActiveCombos returns the active combo definitions, served from cache when possible.
// Cache failures degrade to a store read.
func (s *Service) ActiveCombos(ctx context.Context) ([]ComboDefinition, error) {
	cached, ok, err := s.cache.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("combo cache read failed")
	}
	if ok {
		return cached, nil
	}
	defs, err := s.store.ActiveCombos(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active combos: %w", err)
	}
	if err := s.cache.Save(ctx, defs); err != nil {
		s.logger.Warn().Err(err).Msg("combo cache write failed")
	}
	return defs, nil
}

// InvalidateCombos drops the cached combo snapshot.
func (s *Service) InvalidateCombos(ctx context.Context) error {
	return s.cache.Invalidate(ctx)
}

// Distinct trims ids and removes blanks and duplicates, keeping first-seen order.
func Distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
