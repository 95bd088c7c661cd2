package combo

import (
	"errors"
	"fmt"

	"github.com/noah-isme/backend-merch/internal/catalog"
)

// ErrUnknownCombo is returned when a combo item references no known definition.
var ErrUnknownCombo = errors.New("combo: unknown combo")

// Expanded is a concrete product request tagged with its combo provenance.
type Expanded struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	FromCombo bool   `json:"fromCombo"`
	ComboID   string `json:"comboId,omitempty"`
	ComboName string `json:"comboName,omitempty"`
	// Instances is the number of combo instances a combo row belongs to.
	Instances int `json:"instances,omitempty"`
}

// ExpandComboItems flattens combo instances into their components, scaled by
// the instance count, in input order. Each combo item yields one row per
// component, in definition order.
func ExpandComboItems(items []Item, combos map[string]catalog.ComboDefinition) ([]Expanded, error) {
	out := make([]Expanded, 0, len(items))
	for _, it := range items {
		if !it.IsCombo {
			out = append(out, Expanded{ProductID: it.ProductID, Quantity: it.Quantity})
			continue
		}
		def, ok := combos[it.ComboID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCombo, it.ComboID)
		}
		name := def.Name
		if name == "" {
			name = it.ComboName
		}
		for _, c := range def.Components {
			out = append(out, Expanded{
				ProductID: c.ProductID,
				Quantity:  c.Quantity * it.Quantity,
				FromCombo: true,
				ComboID:   def.ID,
				ComboName: name,
				Instances: it.Quantity,
			})
		}
	}
	return out, nil
}

// Quantities totals expanded units per product.
func Quantities(items []Expanded) map[string]int {
	out := make(map[string]int)
	for _, it := range items {
		out[it.ProductID] += it.Quantity
	}
	return out
}
