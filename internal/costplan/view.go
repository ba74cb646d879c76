package costplan

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/margins/internal/margin"
	"github.com/Simplici0/margins/internal/pricing"
)

// State tells whether a plan carries system lines.
type State string

const (
	StateUncomputed State = "uncomputed"
	StateComputed   State = "computed"
)

// LineView is a margin line with its derived figures.
type LineView struct {
	margin.Line
	TypeName string          `json:"type_name"`
	Minimum  decimal.Decimal `json:"minimum"`
	Margin   decimal.Decimal `json:"margin"`
}

// PlanView is a plan with its lines and every derived figure.
type PlanView struct {
	Plan             Plan                `json:"plan"`
	Lines            []LineView          `json:"lines"`
	Totals           pricing.Totals      `json:"totals"`
	State            State               `json:"state"`
	ProductListPrice decimal.NullDecimal `json:"product_list_price"`
}

// View loads a plan and derives its totals.
func (l *Ledger) View(ctx context.Context, planID string) (*PlanView, error) {
	p, err := l.repos.Plans.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	return l.viewOf(ctx, p)
}

func (l *Ledger) viewOf(ctx context.Context, p *Plan) (*PlanView, error) {
	lines, err := l.repos.Lines.ListByPlan(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	plain := make([]margin.Line, 0, len(lines))
	views := make([]LineView, 0, len(lines))
	state := StateUncomputed
	for _, line := range lines {
		t, err := l.loadType(ctx, line.TypeID)
		if err != nil {
			return nil, err
		}
		if line.System {
			state = StateComputed
		}
		plain = append(plain, *line)
		views = append(views, LineView{
			Line:     *line,
			TypeName: t.Name,
			Minimum:  t.MinimumPercent,
			Margin:   line.Margin(l.digits),
		})
	}

	result := pricing.Calculate(pricing.Input{
		TotalCost: p.TotalCost,
		Quantity:  p.Quantity,
		Digits:    l.digits,
	}, plain)

	view := &PlanView{
		Plan:   *p,
		Lines:  views,
		Totals: result.Totals,
		State:  state,
	}

	if p.ProductID != "" && l.repos.Products != nil {
		product, err := l.repos.Products.Get(ctx, p.ProductID)
		if err != nil {
			return nil, err
		}
		view.ProductListPrice = decimal.NewNullDecimal(product.ListPrice)
	}

	return view, nil
}
