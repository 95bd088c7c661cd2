package order

import (
	"context"
	"sync"
)

// Memory is an in-process Store keyed by order code.
type Memory struct {
	mu     sync.Mutex
	orders map[string]Order
	// Err, when set, is returned by every call.
	Err error
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{orders: make(map[string]Order)}
}

// Insert stores o unless its code is taken.
func (m *Memory) Insert(_ context.Context, o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, exists := m.orders[o.OrderCode]; exists {
		return ErrDuplicateCode
	}
	m.orders[o.OrderCode] = o
	return nil
}

// FindByCode returns the order holding code.
func (m *Memory) FindByCode(_ context.Context, code string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return Order{}, m.Err
	}
	o, ok := m.orders[code]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

// Len reports the number of stored orders.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}
