package margin

import (
	"time"

	"github.com/shopspring/decimal"
)

// PercentDigits is the fixed precision of every margin percent.
const PercentDigits int32 = 4

// Line is the markup entry for one category on one plan.
type Line struct {
	ID            string          `json:"id"`
	PlanID        string          `json:"plan_id"`
	TypeID        string          `json:"type_id"`
	Cost          decimal.Decimal `json:"cost"`
	MarginPercent decimal.Decimal `json:"margin_percent"`
	System        bool            `json:"system"`
	Sequence      int             `json:"sequence"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Margin returns the markup amount of the line at the given price digits.
func (l Line) Margin(digits int32) decimal.Decimal {
	return ComputeMargin(l.Cost, l.MarginPercent, digits)
}

// ComputeMargin returns cost * percent rounded half-even to digits. A zero
// operand always yields exactly zero.
func ComputeMargin(cost, percent decimal.Decimal, digits int32) decimal.Decimal {
	if cost.IsZero() || percent.IsZero() {
		return decimal.Zero
	}
	return cost.Mul(percent).RoundBank(digits)
}

// NormalizePercent rounds a percent to PercentDigits.
func NormalizePercent(p decimal.Decimal) decimal.Decimal {
	return p.RoundBank(PercentDigits)
}
