package costplan

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Simplici0/margins/internal/margin"
)

type triggerAction func(l *Ledger, ctx context.Context, p *Plan, f PlanField) error

// planTriggers declares which plan field changes re-run the synchronizer.
var planTriggers = map[PlanField]triggerAction{
	FieldProductCost:   (*Ledger).syncCostField,
	FieldOperationCost: (*Ledger).syncCostField,
	FieldQuantity:      (*Ledger).rollup,
}

// Reset deletes the system lines of registered categories. User lines are
// kept, even when they share a system category.
func (l *Ledger) Reset(ctx context.Context, p *Plan) error {
	lines, err := l.repos.Lines.ListByPlan(ctx, p.ID)
	if err != nil {
		return err
	}

	resetCtx := margin.WithReset(ctx)
	removed := 0
	for _, line := range lines {
		if !line.System || !l.registry.IsSystemType(line.TypeID) {
			continue
		}
		if err := l.DeleteLine(resetCtx, line); err != nil {
			return fmt.Errorf("reset margin line %s: %w", line.ID, err)
		}
		removed++
	}

	l.log.Debug("margin lines reset", zap.String("plan_id", p.ID), zap.Int("removed", removed))
	return nil
}

// Compute creates one system line per registered category, priced from the
// mapped cost-source field and seeded with the category minimum.
func (l *Ledger) Compute(ctx context.Context, p *Plan) ([]*margin.Line, error) {
	existing, err := l.repos.Lines.ListByPlan(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	seq := nextSequence(existing)

	entries := l.registry.Entries()
	created := make([]*margin.Line, 0, len(entries))
	now := l.now()
	for _, e := range entries {
		t, err := l.loadType(ctx, e.TypeID)
		if err != nil {
			return nil, err
		}

		line := &margin.Line{
			ID:            uuid.NewString(),
			PlanID:        p.ID,
			TypeID:        e.TypeID,
			Cost:          p.CostOf(e.CostSource),
			MarginPercent: margin.NormalizePercent(t.MinimumPercent),
			System:        true,
			Sequence:      seq,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		seq++

		if err := l.validator.Check(*line, *t); err != nil {
			return nil, err
		}
		created = append(created, line)
	}

	if err := l.repos.Lines.CreateBatch(ctx, created); err != nil {
		return nil, err
	}

	l.log.Debug("margin lines computed", zap.String("plan_id", p.ID), zap.Int("created", len(created)))
	return created, nil
}

// Recompute runs the reset → compute cycle after the plan's cost sources
// were replaced by a full BOM explosion. Percents of system lines go back
// to the category minimum.
func (l *Ledger) Recompute(ctx context.Context, p *Plan) error {
	p.Rollup()
	p.UpdatedAt = l.now()
	if err := l.repos.Plans.Update(ctx, p); err != nil {
		return err
	}

	if err := l.Reset(ctx, p); err != nil {
		return err
	}
	_, err := l.Compute(ctx, p)
	return err
}

// UpdateMarginType moves the system lines of typeID to newCost, keeping
// their chosen percent, and rolls up the plan total.
func (l *Ledger) UpdateMarginType(ctx context.Context, p *Plan, typeID string, newCost decimal.Decimal) error {
	lines, err := l.repos.Lines.ListByPlan(ctx, p.ID)
	if err != nil {
		return err
	}

	for _, line := range lines {
		if !line.System || line.TypeID != typeID {
			continue
		}
		line.Cost = newCost
		if err := l.SaveLine(ctx, line, false); err != nil {
			return fmt.Errorf("update margin line %s: %w", line.ID, err)
		}
		l.log.Debug("margin line cost synced",
			zap.String("line_id", line.ID),
			zap.String("cost", line.Cost.String()),
			zap.String("margin", line.Margin(l.digits).String()),
		)
	}

	return l.rollup(ctx, p, "")
}

// OnChange re-runs the actions bound to the changed plan fields.
func (l *Ledger) OnChange(ctx context.Context, p *Plan, fields ...PlanField) error {
	for _, f := range fields {
		action, ok := planTriggers[f]
		if !ok {
			continue
		}
		if err := action(l, ctx, p, f); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) syncCostField(ctx context.Context, p *Plan, f PlanField) error {
	source := margin.CostField(f)
	bound := l.registry.BySource(source)
	if len(bound) == 0 {
		return l.rollup(ctx, p, f)
	}
	for _, e := range bound {
		if err := l.UpdateMarginType(ctx, p, e.TypeID, p.CostOf(source)); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) rollup(ctx context.Context, p *Plan, _ PlanField) error {
	p.Rollup()
	p.UpdatedAt = l.now()
	return l.repos.Plans.Update(ctx, p)
}
