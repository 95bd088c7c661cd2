package pricing

import (
	"encoding/json"
	"fmt"

	"github.com/noah-isme/backend-merch/internal/catalog"
	"github.com/noah-isme/backend-merch/internal/combo"
)

// OptimalPricing is the payload produced by the client-side optimizer.
type OptimalPricing struct {
	Summary   OptimalSummary  `json:"summary"`
	Combos    json.RawMessage `json:"combos,omitempty"`
	Breakdown json.RawMessage `json:"breakdown,omitempty"`
}

// OptimalSummary carries the optimizer totals.
type OptimalSummary struct {
	OriginalTotal Money `json:"originalTotal"`
	FinalTotal    Money `json:"finalTotal"`
	TotalSavings  Money `json:"totalSavings"`
}

// Trust accepts the optimizer total after reconciling it against catalog
// prices. Line prices always come from products; only the savings
// bookkeeping is taken from the payload. A payload whose originalTotal does
// not match the catalog is rejected as stale.
func Trust(items []combo.Item, products map[string]catalog.Product, payload OptimalPricing) (Result, error) {
	lines := make([]Line, 0, len(items))
	var original Money
	for _, it := range items {
		if it.IsCombo {
			return Result{}, fmt.Errorf("%w: combo items are not accepted with optimal pricing", ErrComboNotAllowed)
		}
		if it.Quantity <= 0 {
			return Result{}, fmt.Errorf("%w: quantity must be positive", ErrInvalid)
		}
		p, ok := products[it.ProductID]
		if !ok {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownProduct, it.ProductID)
		}
		lines = append(lines, Line{ProductID: p.ID, ProductName: p.Name, UnitPrice: p.Price, Quantity: it.Quantity})
		original += p.Price * Money(it.Quantity)
	}
	if len(lines) == 0 {
		return Result{}, fmt.Errorf("%w: cart is empty", ErrInvalid)
	}

	s := payload.Summary
	if s.OriginalTotal != original {
		return Result{}, fmt.Errorf("%w: originalTotal %d does not match catalog total %d", ErrTotalsMismatch, s.OriginalTotal, original)
	}
	if s.TotalSavings < 0 || s.FinalTotal < 0 || s.OriginalTotal-s.FinalTotal != s.TotalSavings {
		return Result{}, fmt.Errorf("%w: originalTotal - finalTotal must equal totalSavings", ErrTotalsMismatch)
	}

	res := Result{Mode: ModeTrust, Lines: lines, TotalAmount: s.FinalTotal}
	if s.TotalSavings > 0 {
		res.ComboInfo = &ComboInfo{Mode: ComboAggregate, Aggregate: &AggregateSavings{
			Savings:       s.TotalSavings,
			OriginalTotal: s.OriginalTotal,
			FinalTotal:    s.FinalTotal,
			Combos:        payload.Combos,
			Breakdown:     payload.Breakdown,
		}}
	}
	return res, nil
}
