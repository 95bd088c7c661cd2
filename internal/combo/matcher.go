// Package combo detects bundle discounts in a cart and expands bundles back
// into their constituent products.
package combo

import (
	"fmt"

	"github.com/noah-isme/backend-merch/internal/catalog"
)

// Item is a cart entry: either a plain product request or a combo instance.
type Item struct {
	ProductID string `json:"productId,omitempty"`
	Quantity  int    `json:"quantity"`
	IsCombo   bool   `json:"isCombo,omitempty"`
	ComboID   string `json:"comboId,omitempty"`
	ComboName string `json:"comboName,omitempty"`
	// Price is the per-instance combo price for combo items.
	Price int64 `json:"price,omitempty"`
}

// Result describes the outcome of combo detection. Success is false when the
// cart breaks the matcher's input contract (empty, or a non-positive
// quantity); FinalItems is then the input unchanged.
type Result struct {
	Success    bool
	HasCombo   bool
	Combo      *catalog.ComboDefinition
	Count      int
	FinalItems []Item
	Savings    int64
	Message    string
}

// DetectAndApplyBestCombo picks the single combo kind with the largest total
// savings and decomposes items into combo instances plus leftover units.
// Only combos strictly cheaper than their list price qualify; ties keep the
// first definition. Client-asserted combo items and unknown products pass
// through untouched. When allowPartial is set and nothing applies, Message
// names the closest unsatisfied combo.
func DetectAndApplyBestCombo(items []Item, defs []catalog.ComboDefinition, prices map[string]int64, allowPartial bool) Result {
	if !wellFormed(items) {
		return Result{FinalItems: cloneItems(items), Message: "cart must hold items with positive quantities"}
	}
	pool := plainQuantities(items)

	var (
		best        *catalog.ComboDefinition
		bestCount   int
		bestSavings int64
	)
	for i := range defs {
		def := &defs[i]
		if !def.Active || !def.Valid() {
			continue
		}
		list, ok := def.ListPrice(prices)
		if !ok {
			continue
		}
		unitSavings := list - def.ComboPrice
		if unitSavings <= 0 {
			continue
		}
		count := satisfiable(def, pool)
		if count == 0 {
			continue
		}
		if savings := unitSavings * int64(count); savings > bestSavings {
			best, bestCount, bestSavings = def, count, savings
		}
	}

	if best == nil {
		res := Result{Success: true, FinalItems: cloneItems(items)}
		if allowPartial {
			res.Message = nearestHint(defs, pool, prices)
		}
		return res
	}

	combo := *best
	return Result{
		Success:    true,
		HasCombo:   true,
		Combo:      &combo,
		Count:      bestCount,
		FinalItems: decompose(items, combo, bestCount),
		Savings:    bestSavings,
		Message:    fmt.Sprintf("Applied combo %s x%d, saving %d", combo.Name, bestCount, bestSavings),
	}
}

func wellFormed(items []Item) bool {
	if len(items) == 0 {
		return false
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return false
		}
	}
	return true
}

func plainQuantities(items []Item) map[string]int {
	pool := make(map[string]int)
	for _, it := range items {
		if it.IsCombo || it.ProductID == "" || it.Quantity <= 0 {
			continue
		}
		pool[it.ProductID] += it.Quantity
	}
	return pool
}

func satisfiable(def *catalog.ComboDefinition, pool map[string]int) int {
	count := -1
	for _, c := range def.Components {
		n := pool[c.ProductID] / c.Quantity
		if count < 0 || n < count {
			count = n
		}
	}
	if count < 0 {
		return 0
	}
	return count
}

// decompose emits the combo pseudo-item first, then every input item in order
// with consumed units removed from the earliest matching entries.
func decompose(items []Item, def catalog.ComboDefinition, count int) []Item {
	consume := make(map[string]int, len(def.Components))
	for _, c := range def.Components {
		consume[c.ProductID] += c.Quantity * count
	}

	out := make([]Item, 0, len(items)+1)
	out = append(out, Item{
		Quantity:  count,
		IsCombo:   true,
		ComboID:   def.ID,
		ComboName: def.Name,
		Price:     def.ComboPrice,
	})
	for _, it := range items {
		if it.IsCombo || it.Quantity <= 0 {
			out = append(out, it)
			continue
		}
		if need := consume[it.ProductID]; need > 0 {
			take := min(need, it.Quantity)
			consume[it.ProductID] = need - take
			it.Quantity -= take
			if it.Quantity == 0 {
				continue
			}
		}
		out = append(out, it)
	}
	return out
}

func nearestHint(defs []catalog.ComboDefinition, pool map[string]int, prices map[string]int64) string {
	var (
		nearest *catalog.ComboDefinition
		missing int
	)
	for i := range defs {
		def := &defs[i]
		if !def.Active || !def.Valid() {
			continue
		}
		if list, ok := def.ListPrice(prices); !ok || list <= def.ComboPrice {
			continue
		}
		have, need := 0, 0
		for _, c := range def.Components {
			have += min(pool[c.ProductID], c.Quantity)
			need += c.Quantity
		}
		if have == 0 {
			continue
		}
		if gap := need - have; nearest == nil || gap < missing {
			nearest, missing = def, gap
		}
	}
	if nearest == nil {
		return ""
	}
	return fmt.Sprintf("Add %d more item(s) to unlock combo %s", missing, nearest.Name)
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
