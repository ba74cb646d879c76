package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/Simplici0/margins/internal/margin"
)

// DefaultDigits is the price precision used when none is configured.
const DefaultDigits int32 = 4

// Input represents the plan-level cost basis the margin lines are priced on.
type Input struct {
	TotalCost decimal.Decimal
	Quantity  decimal.Decimal
	Digits    int32
}

// LineBreakdown is one margin line with its derived amount.
type LineBreakdown struct {
	LineID        string          `json:"line_id"`
	TypeID        string          `json:"type_id"`
	Cost          decimal.Decimal `json:"cost"`
	MarginPercent decimal.Decimal `json:"margin_percent"`
	Margin        decimal.Decimal `json:"margin"`
	System        bool            `json:"system"`
}

// Totals contains roll-up values derived from a plan's margin lines.
type Totals struct {
	TotalCost     decimal.Decimal     `json:"total_cost"`
	CostPrice     decimal.Decimal     `json:"cost_price"`
	TotalMargin   decimal.Decimal     `json:"total_margin"`
	UnitMargin    decimal.NullDecimal `json:"unit_margin"`
	PercentMargin decimal.NullDecimal `json:"margin_percent"`
	TotalPrice    decimal.Decimal     `json:"total_price"`
	UnitPrice     decimal.Decimal     `json:"unit_price"`
}

// Result groups the per-line breakdown and the plan totals.
type Result struct {
	Lines  []LineBreakdown `json:"lines"`
	Totals Totals          `json:"totals"`
}

// Calculate derives every plan-level figure from the cost basis and lines.
func Calculate(in Input, lines []margin.Line) Result {
	breakdown := make([]LineBreakdown, 0, len(lines))
	for _, l := range lines {
		breakdown = append(breakdown, LineBreakdown{
			LineID:        l.ID,
			TypeID:        l.TypeID,
			Cost:          l.Cost,
			MarginPercent: l.MarginPercent,
			Margin:        l.Margin(in.Digits),
			System:        l.System,
		})
	}

	totalMargin := TotalMargin(lines, in.Digits)
	costPrice := CostPrice(in.TotalCost, in.Quantity, in.Digits)
	unitMargin := UnitMargin(totalMargin, in.Quantity, in.Digits)

	return Result{
		Lines: breakdown,
		Totals: Totals{
			TotalCost:     in.TotalCost,
			CostPrice:     costPrice.Decimal,
			TotalMargin:   totalMargin,
			UnitMargin:    unitMargin,
			PercentMargin: PercentMargin(totalMargin, in.TotalCost),
			TotalPrice:    TotalPrice(in.TotalCost, totalMargin),
			UnitPrice:     UnitPrice(costPrice, unitMargin),
		},
	}
}

// TotalMargin sums the margin of every line at the given price digits.
func TotalMargin(lines []margin.Line, digits int32) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Margin(digits))
	}
	return total.RoundBank(digits)
}

// PercentMargin returns totalMargin / cost at four decimals, or an invalid
// value when the cost basis is zero.
func PercentMargin(totalMargin, cost decimal.Decimal) decimal.NullDecimal {
	if cost.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(totalMargin.Div(cost).RoundBank(margin.PercentDigits))
}

// UnitMargin returns totalMargin / quantity, or an invalid value when the
// quantity is zero.
func UnitMargin(totalMargin, quantity decimal.Decimal, digits int32) decimal.NullDecimal {
	if quantity.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(totalMargin.Div(quantity).RoundBank(digits))
}

// CostPrice returns the per-unit cost, or an invalid value when the quantity
// is zero.
func CostPrice(totalCost, quantity decimal.Decimal, digits int32) decimal.NullDecimal {
	if quantity.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(totalCost.Div(quantity).RoundBank(digits))
}

func TotalPrice(cost, totalMargin decimal.Decimal) decimal.Decimal {
	return cost.Add(totalMargin)
}

// UnitPrice adds the per-unit margin to the per-unit cost. Absent operands
// count as zero, so a plan without cost basis is priced at zero.
func UnitPrice(costPerUnit, marginPerUnit decimal.NullDecimal) decimal.Decimal {
	price := decimal.Zero
	if costPerUnit.Valid {
		price = price.Add(costPerUnit.Decimal)
	}
	if marginPerUnit.Valid {
		price = price.Add(marginPerUnit.Decimal)
	}
	return price
}
