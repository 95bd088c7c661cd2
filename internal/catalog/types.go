package catalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested catalog record does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Product is a sellable item owned by the catalog.
type Product struct {
	ID        string `json:"id" bson:"_id"`
	Name      string `json:"name" bson:"name"`
	Price     int64  `json:"price" bson:"price"`
	Available bool   `json:"available" bson:"available"`
}

// Component is one constituent of a combo and the units it requires.
type Component struct {
	ProductID string `json:"productId" bson:"productId"`
	Quantity  int    `json:"quantity" bson:"quantity"`
}

// ComboDefinition bundles products sold together at a fixed price.
// Components keep their declared order; the matcher and expander rely on it.
type ComboDefinition struct {
	ID         string      `json:"id" bson:"_id"`
	Name       string      `json:"name" bson:"name"`
	Components []Component `json:"components" bson:"components"`
	ComboPrice int64       `json:"comboPrice" bson:"comboPrice"`
	Active     bool        `json:"active" bson:"active"`
	Position   int         `json:"position" bson:"position"`
}

// Requires reports whether productID is a constituent of the combo.
func (d ComboDefinition) Requires(productID string) bool {
	for _, c := range d.Components {
		if c.ProductID == productID {
			return true
		}
	}
	return false
}

// Valid reports whether the definition can ever be satisfied.
func (d ComboDefinition) Valid() bool {
	if d.ID == "" || len(d.Components) == 0 || d.ComboPrice < 0 {
		return false
	}
	for _, c := range d.Components {
		if c.ProductID == "" || c.Quantity <= 0 {
			return false
		}
	}
	return true
}

// ListPrice sums the catalog price of one combo instance. ok is false when a
// constituent has no known price.
func (d ComboDefinition) ListPrice(prices map[string]int64) (total int64, ok bool) {
	for _, c := range d.Components {
		price, found := prices[c.ProductID]
		if !found {
			return 0, false
		}
		total += price * int64(c.Quantity)
	}
	return total, true
}

// Lookup resolves product identifiers to catalog records.
type Lookup interface {
	FindMany(ctx context.Context, ids []string, availableOnly bool) ([]Product, error)
}

// ComboSource lists the active combo definitions in definition order.
type ComboSource interface {
	ActiveCombos(ctx context.Context) ([]ComboDefinition, error)
}

// IndexProducts keys products by id.
func IndexProducts(products []Product) map[string]Product {
	out := make(map[string]Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out
}

// Prices extracts the price table used by the combo matcher.
func Prices(products []Product) map[string]int64 {
	out := make(map[string]int64, len(products))
	for _, p := range products {
		out[p.ID] = p.Price
	}
	return out
}

// IndexCombos keys combo definitions by id.
func IndexCombos(defs []ComboDefinition) map[string]ComboDefinition {
	out := make(map[string]ComboDefinition, len(defs))
	for _, d := range defs {
		out[d.ID] = d
	}
	return out
}

// ComponentIDs returns the distinct product ids referenced by defs.
func ComponentIDs(defs []ComboDefinition) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, d := range defs {
		for _, c := range d.Components {
			if _, ok := seen[c.ProductID]; ok {
				continue
			}
			seen[c.ProductID] = struct{}{}
			ids = append(ids, c.ProductID)
		}
	}
	return ids
}
