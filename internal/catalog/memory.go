package catalog

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store used by tests and local tooling.
type Memory struct {
	mu       sync.RWMutex
	products map[string]Product
	combos   []ComboDefinition
	// Err, when set, is returned by every read.
	Err error
}

// NewMemory seeds a Memory store.
func NewMemory(products []Product, combos []ComboDefinition) *Memory {
	m := &Memory{products: IndexProducts(products)}
	m.combos = append(m.combos, combos...)
	return m
}

// FindMany implements Lookup.
func (m *Memory) FindMany(_ context.Context, ids []string, availableOnly bool) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]Product, 0, len(ids))
	for _, id := range Distinct(ids) {
		p, ok := m.products[id]
		if !ok || (availableOnly && !p.Available) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// ActiveCombos implements ComboSource.
func (m *Memory) ActiveCombos(context.Context) ([]ComboDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]ComboDefinition, 0, len(m.combos))
	for _, d := range m.combos {
		if d.Active {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}
