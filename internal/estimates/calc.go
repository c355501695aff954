package estimates

import "github.com/shopspring/decimal"

// moneyScale is the number of fractional digits in the smallest currency unit.
const moneyScale = 2

var hundred = decimal.NewFromInt(100)

// LineTotal derives a line item's total price from quantity and unit price,
// rounded to the smallest currency unit.
func LineTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice).Round(moneyScale)
}

// clampPct forces a percentage into [0, 100]. The calculator never rejects
// out-of-range input; it treats it as the nearest boundary.
func clampPct(pct decimal.Decimal) decimal.Decimal {
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

// ComputeTotals derives the full roll-up block from the line items, the
// user-entered labor cost and the three cascading percentage charges.
//
// The stages are applied in fixed order: overhead on the subtotal, profit on
// subtotal plus overhead, VAT on subtotal plus overhead plus profit. Each
// monetary value is rounded to the smallest currency unit at the point it is
// produced, so later stages compute from already-rounded figures. Re-running
// on the same inputs always yields identical output.
//
// Out-of-range percentages and a negative labor cost are clamped to their
// nearest valid value, so no stage can produce a negative amount.
func ComputeTotals(items []LineItem, laborCost, overheadPct, profitMargin, vatRate decimal.Decimal) Totals {
	materials := decimal.Zero
	for _, item := range items {
		materials = materials.Add(LineTotal(item.Quantity, item.UnitPrice))
	}
	materials = materials.Round(moneyScale)

	if laborCost.IsNegative() {
		laborCost = decimal.Zero
	}
	overheadPct = clampPct(overheadPct)
	profitMargin = clampPct(profitMargin)
	vatRate = clampPct(vatRate)

	subtotal := materials.Add(laborCost).Round(moneyScale)
	overhead := subtotal.Mul(overheadPct).Div(hundred).Round(moneyScale)
	profit := subtotal.Add(overhead).Mul(profitMargin).Div(hundred).Round(moneyScale)
	vat := subtotal.Add(overhead).Add(profit).Mul(vatRate).Div(hundred).Round(moneyScale)
	total := subtotal.Add(overhead).Add(profit).Add(vat)

	return Totals{
		MaterialsCost: materials,
		Subtotal:      subtotal,
		Overhead:      overhead,
		Profit:        profit,
		VAT:           vat,
		Total:         total,
	}
}
