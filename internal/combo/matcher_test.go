package combo_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-merch/internal/catalog"
	"github.com/noah-isme/backend-merch/internal/combo"
)

var prices = map[string]int64{
	"shirt":   150000,
	"cap":     100000,
	"lanyard": 20000,
	"sticker": 5000,
}

func defs() []catalog.ComboDefinition {
	return []catalog.ComboDefinition{
		{ID: "caps", Name: "Double Cap", Components: []catalog.Component{{ProductID: "cap", Quantity: 2}}, ComboPrice: 180000, Active: true},
		{ID: "duo", Name: "Shirt + Cap", Components: []catalog.Component{{ProductID: "shirt", Quantity: 1}, {ProductID: "cap", Quantity: 1}}, ComboPrice: 230000, Active: true},
		{ID: "pricey", Name: "No Deal", Components: []catalog.Component{{ProductID: "lanyard", Quantity: 1}, {ProductID: "sticker", Quantity: 1}}, ComboPrice: 25000, Active: true},
	}
}

func TestNoComboProductsLeavesCartUntouched(t *testing.T) {
	items := []combo.Item{{ProductID: "sticker", Quantity: 3}, {ProductID: "ghost", Quantity: 1}}
	res := combo.DetectAndApplyBestCombo(items, defs(), prices, false)
	require.True(t, res.Success)
	require.False(t, res.HasCombo)
	require.Equal(t, items, res.FinalItems)
	require.Zero(t, res.Savings)
	require.Empty(t, res.Message)
}

func TestMalformedCartIsNotMatched(t *testing.T) {
	for name, items := range map[string][]combo.Item{
		"empty":         nil,
		"zero quantity": {{ProductID: "cap", Quantity: 2}, {ProductID: "cap", Quantity: 0}},
		"negative":      {{ProductID: "cap", Quantity: -2}},
	} {
		t.Run(name, func(t *testing.T) {
			res := combo.DetectAndApplyBestCombo(items, defs(), prices, false)
			require.False(t, res.Success)
			require.False(t, res.HasCombo)
			require.Equal(t, items, res.FinalItems)
			require.NotEmpty(t, res.Message)
		})
	}
}

func TestExactSingleMatch(t *testing.T) {
	items := []combo.Item{{ProductID: "cap", Quantity: 2}}
	res := combo.DetectAndApplyBestCombo(items, defs(), prices, false)
	require.True(t, res.Success)
	require.True(t, res.HasCombo)
	require.Equal(t, "caps", res.Combo.ID)
	require.Equal(t, 1, res.Count)
	require.Equal(t, int64(20000), res.Savings)
	require.Equal(t, []combo.Item{{Quantity: 1, IsCombo: true, ComboID: "caps", ComboName: "Double Cap", Price: 180000}}, res.FinalItems)
}

func TestPicksGreatestTotalSavings(t *testing.T) {
	// caps: 2 instances save 40000; duo: 1 instance saves 20000.
	items := []combo.Item{{ProductID: "shirt", Quantity: 1}, {ProductID: "cap", Quantity: 4}}
	res := combo.DetectAndApplyBestCombo(items, defs(), prices, false)
	require.True(t, res.HasCombo)
	require.Equal(t, "caps", res.Combo.ID)
	require.Equal(t, 2, res.Count)
	require.Equal(t, int64(40000), res.Savings)
	require.Equal(t, []combo.Item{
		{Quantity: 2, IsCombo: true, ComboID: "caps", ComboName: "Double Cap", Price: 180000},
		{ProductID: "shirt", Quantity: 1},
	}, res.FinalItems)
}

func TestTieKeepsFirstDefinition(t *testing.T) {
	ds := []catalog.ComboDefinition{
		{ID: "first", Name: "First", Components: []catalog.Component{{ProductID: "cap", Quantity: 1}}, ComboPrice: 90000, Active: true},
		{ID: "second", Name: "Second", Components: []catalog.Component{{ProductID: "cap", Quantity: 1}}, ComboPrice: 90000, Active: true},
	}
	res := combo.DetectAndApplyBestCombo([]combo.Item{{ProductID: "cap", Quantity: 1}}, ds, prices, false)
	require.Equal(t, "first", res.Combo.ID)
}

func TestNeverAppliesComboThatIsNotCheaper(t *testing.T) {
	items := []combo.Item{{ProductID: "lanyard", Quantity: 1}, {ProductID: "sticker", Quantity: 1}}
	res := combo.DetectAndApplyBestCombo(items, defs(), prices, false)
	require.False(t, res.HasCombo)
	require.Equal(t, items, res.FinalItems)
}

func TestSkipsInactiveAndUnpricedCombos(t *testing.T) {
	ds := defs()
	ds[0].Active = false
	ds = append(ds, catalog.ComboDefinition{ID: "mystery", Components: []catalog.Component{{ProductID: "ghost", Quantity: 1}}, ComboPrice: 1, Active: true})
	res := combo.DetectAndApplyBestCombo([]combo.Item{{ProductID: "cap", Quantity: 2}, {ProductID: "ghost", Quantity: 1}}, ds, prices, false)
	require.False(t, res.HasCombo)
}

func TestLeftoversConsumeEarliestEntriesAndKeepOrder(t *testing.T) {
	items := []combo.Item{
		{ProductID: "cap", Quantity: 1},
		{ProductID: "sticker", Quantity: 2},
		{IsCombo: true, ComboID: "duo", Quantity: 1},
		{ProductID: "cap", Quantity: 2},
	}
	res := combo.DetectAndApplyBestCombo(items, defs(), prices, false)
	require.True(t, res.HasCombo)
	require.Equal(t, "caps", res.Combo.ID)
	require.Equal(t, 1, res.Count)
	require.Equal(t, []combo.Item{
		{Quantity: 1, IsCombo: true, ComboID: "caps", ComboName: "Double Cap", Price: 180000},
		{ProductID: "sticker", Quantity: 2},
		{IsCombo: true, ComboID: "duo", Quantity: 1},
		{ProductID: "cap", Quantity: 1},
	}, res.FinalItems)
}

func TestDoesNotMutateInput(t *testing.T) {
	items := []combo.Item{{ProductID: "cap", Quantity: 3}}
	_ = combo.DetectAndApplyBestCombo(items, defs(), prices, false)
	require.Equal(t, 3, items[0].Quantity)
}

func TestAllowPartialOnlyHints(t *testing.T) {
	items := []combo.Item{{ProductID: "cap", Quantity: 1}}
	res := combo.DetectAndApplyBestCombo(items, defs(), prices, true)
	require.False(t, res.HasCombo)
	require.Equal(t, items, res.FinalItems)
	require.Contains(t, res.Message, "Add 1 more item(s)")
}

func TestRoundTripPreservesQuantities(t *testing.T) {
	carts := [][]combo.Item{
		{{ProductID: "cap", Quantity: 5}, {ProductID: "shirt", Quantity: 2}},
		{{ProductID: "shirt", Quantity: 3}, {ProductID: "cap", Quantity: 1}, {ProductID: "ghost", Quantity: 2}},
		{{ProductID: "sticker", Quantity: 1}},
		{{ProductID: "cap", Quantity: 1}, {ProductID: "cap", Quantity: 1}, {ProductID: "cap", Quantity: 1}},
	}
	index := catalog.IndexCombos(defs())
	for _, cart := range carts {
		want := map[string]int{}
		for _, it := range cart {
			want[it.ProductID] += it.Quantity
		}
		res := combo.DetectAndApplyBestCombo(cart, defs(), prices, false)
		expanded, err := combo.ExpandComboItems(res.FinalItems, index)
		require.NoError(t, err)
		require.Equal(t, want, combo.Quantities(expanded))
	}
}
