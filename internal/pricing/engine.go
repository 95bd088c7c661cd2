package pricing

import (
	"errors"
	"fmt"

	"github.com/noah-isme/backend-merch/internal/catalog"
	"github.com/noah-isme/backend-merch/internal/combo"
)

// Money represents a monetary value in whole currency units.
type Money = int64

// Mode selects how the order total is established.
type Mode string

const (
	// ModeDerived computes the total server-side from combo-adjusted lines.
	ModeDerived Mode = "derived"
	// ModeTrust accepts a validated client-side optimizer total.
	ModeTrust Mode = "trust"
)

var (
	// ErrInvalid marks pricing input that must be rejected as a validation failure.
	ErrInvalid = errors.New("pricing: invalid input")
	// ErrUnknownProduct is returned when a line references a product the catalog did not resolve.
	ErrUnknownProduct = fmt.Errorf("%w: unknown or unavailable product", ErrInvalid)
	// ErrComboNotAllowed is returned for combo items that cannot be honoured.
	ErrComboNotAllowed = fmt.Errorf("%w: combo not allowed", ErrInvalid)
	// ErrTotalsMismatch is returned when trusted totals fail reconciliation.
	ErrTotalsMismatch = fmt.Errorf("%w: pricing totals do not reconcile", ErrInvalid)
)

// Line is a concrete, priced order line.
type Line struct {
	ProductID   string `json:"productId" bson:"productId"`
	ProductName string `json:"productName" bson:"productName"`
	UnitPrice   Money  `json:"unitPrice" bson:"unitPrice"`
	Quantity    int    `json:"quantity" bson:"quantity"`
	FromCombo   bool   `json:"fromCombo" bson:"fromCombo"`
	ComboID     string `json:"comboId,omitempty" bson:"comboId,omitempty"`
	ComboName   string `json:"comboName,omitempty" bson:"comboName,omitempty"`
}

// Result is the priced outcome of a cart.
type Result struct {
	Mode        Mode       `json:"mode"`
	Lines       []Line     `json:"lines"`
	TotalAmount Money      `json:"totalAmount"`
	ComboInfo   *ComboInfo `json:"comboInfo,omitempty"`
}

// Total sums unitPrice*quantity over lines.
func Total(lines []Line) Money {
	var total Money
	for _, l := range lines {
		total += l.UnitPrice * Money(l.Quantity)
	}
	return total
}

// Derive prices the expander output against the catalog. Plain rows are
// priced at list price. The rows of one combo item are valued at the combo
// price, spread across them so Σ unitPrice*quantity equals the total
// exactly; line labels come from the rows. match may be nil when the
// matcher did not run or applied nothing.
func Derive(rows []combo.Expanded, products map[string]catalog.Product, combos map[string]catalog.ComboDefinition, match *combo.Result) (Result, error) {
	var (
		lines    []Line
		original Money
		applied  []AppliedCombo
	)
	for i := 0; i < len(rows); {
		row := rows[i]
		if row.Quantity <= 0 {
			return Result{}, fmt.Errorf("%w: quantity must be positive", ErrInvalid)
		}
		if !row.FromCombo {
			p, ok := products[row.ProductID]
			if !ok {
				return Result{}, fmt.Errorf("%w: %s", ErrUnknownProduct, row.ProductID)
			}
			lines = append(lines, Line{ProductID: p.ID, ProductName: p.Name, UnitPrice: p.Price, Quantity: row.Quantity})
			original += p.Price * Money(row.Quantity)
			i++
			continue
		}
		def, ok := combos[row.ComboID]
		if !ok || !def.Active || !def.Valid() {
			return Result{}, fmt.Errorf("%w: %s", ErrComboNotAllowed, row.ComboID)
		}
		end := i + len(def.Components)
		if end > len(rows) {
			return Result{}, fmt.Errorf("%w: %s expansion is incomplete", ErrComboNotAllowed, def.ID)
		}
		comboLines, list, count, err := allocateCombo(def, rows[i:end], products)
		if err != nil {
			return Result{}, err
		}
		if list <= def.ComboPrice {
			return Result{}, fmt.Errorf("%w: %s is not cheaper than its items", ErrComboNotAllowed, def.ID)
		}
		lines = append(lines, comboLines...)
		original += list * Money(count)
		applied = appendApplied(applied, AppliedCombo{
			ComboID:   def.ID,
			ComboName: comboLines[0].ComboName,
			Count:     count,
			Savings:   (list - def.ComboPrice) * Money(count),
		})
		i = end
	}
	if len(lines) == 0 {
		return Result{}, fmt.Errorf("%w: cart is empty", ErrInvalid)
	}

	total := Total(lines)
	res := Result{Mode: ModeDerived, Lines: lines, TotalAmount: total}
	switch {
	case len(applied) == 1:
		message := ""
		if match != nil && match.HasCombo && match.Combo != nil && match.Combo.ID == applied[0].ComboID {
			message = match.Message
		}
		if message == "" {
			message = fmt.Sprintf("Applied combo %s x%d, saving %d", applied[0].ComboName, applied[0].Count, applied[0].Savings)
		}
		res.ComboInfo = NewSingle(SingleCombo{
			ComboID:   applied[0].ComboID,
			ComboName: applied[0].ComboName,
			Savings:   applied[0].Savings,
			Message:   message,
		})
	case len(applied) > 1:
		info, err := NewAggregate(original, total, applied, nil)
		if err != nil {
			return Result{}, err
		}
		res.ComboInfo = info
	}
	return res, nil
}

// allocateCombo prices the expanded rows of one combo item. count*ComboPrice
// is spread over the constituent units in proportion to their list price
// using integer floors; the remainder of each instance lands on one unit of
// the last row, split into its own line. The rows must follow the definition.
func allocateCombo(def catalog.ComboDefinition, group []combo.Expanded, products map[string]catalog.Product) ([]Line, Money, int, error) {
	count := group[0].Instances
	if count <= 0 {
		return nil, 0, 0, fmt.Errorf("%w: %s has no instances", ErrComboNotAllowed, def.ID)
	}
	var list Money
	for j, c := range def.Components {
		r := group[j]
		if !r.FromCombo || r.ComboID != def.ID || r.Instances != count ||
			r.ProductID != c.ProductID || r.Quantity != c.Quantity*count {
			return nil, 0, 0, fmt.Errorf("%w: %s expansion does not match its definition", ErrComboNotAllowed, def.ID)
		}
		p, ok := products[r.ProductID]
		if !ok {
			return nil, 0, 0, fmt.Errorf("%w: %s", ErrUnknownProduct, r.ProductID)
		}
		list += p.Price * Money(c.Quantity)
	}

	unit := make([]Money, len(group))
	var allocated Money
	for j, c := range def.Components {
		if list > 0 {
			unit[j] = def.ComboPrice * products[c.ProductID].Price / list
		}
		allocated += unit[j] * Money(c.Quantity)
	}
	remainder := def.ComboPrice - allocated

	lines := make([]Line, 0, len(group)+1)
	last := len(group) - 1
	for j, r := range group {
		p := products[r.ProductID]
		base := Line{
			ProductID:   p.ID,
			ProductName: p.Name,
			FromCombo:   true,
			ComboID:     r.ComboID,
			ComboName:   r.ComboName,
		}
		if j != last || remainder == 0 {
			base.UnitPrice, base.Quantity = unit[j], r.Quantity
			lines = append(lines, base)
			continue
		}
		bumped := base
		bumped.UnitPrice, bumped.Quantity = unit[j]+remainder, count
		if rest := r.Quantity - count; rest > 0 {
			base.UnitPrice, base.Quantity = unit[j], rest
			lines = append(lines, base)
		}
		lines = append(lines, bumped)
	}
	return lines, list, count, nil
}

func appendApplied(applied []AppliedCombo, next AppliedCombo) []AppliedCombo {
	for i := range applied {
		if applied[i].ComboID == next.ComboID {
			applied[i].Count += next.Count
			applied[i].Savings += next.Savings
			return applied
		}
	}
	return append(applied, next)
}
