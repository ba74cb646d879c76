package costplan

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Simplici0/margins/internal/margin"
)

// SolveListPrice returns the uniform margin percent that turns costPrice
// into listPrice. ok is false when there is no cost to mark up.
func SolveListPrice(costPrice decimal.NullDecimal, listPrice decimal.Decimal) (percent decimal.Decimal, ok bool) {
	if !costPrice.Valid || costPrice.Decimal.IsZero() {
		return decimal.Zero, false
	}
	c := costPrice.Decimal
	return margin.NormalizePercent(listPrice.Sub(c).Div(c)), true
}

// ApplyListPrice writes the solved percent on every line with a non-zero
// cost, saving each line on its own so each one is validated. It neither
// creates nor deletes lines.
func (l *Ledger) ApplyListPrice(ctx context.Context, p *Plan, listPrice decimal.Decimal) (decimal.Decimal, bool, error) {
	percent, ok := SolveListPrice(p.CostPrice(l.digits), listPrice)
	if !ok {
		l.log.Debug("list price back-solve skipped, no cost basis", zap.String("plan_id", p.ID))
		return decimal.Zero, false, nil
	}

	lines, err := l.repos.Lines.ListByPlan(ctx, p.ID)
	if err != nil {
		return decimal.Zero, false, err
	}

	for _, line := range lines {
		if line.Cost.IsZero() {
			continue
		}
		line.MarginPercent = percent
		if err := l.SaveLine(ctx, line, false); err != nil {
			return decimal.Zero, false, fmt.Errorf("apply list price to line %s: %w", line.ID, err)
		}
	}

	return percent, true, nil
}
