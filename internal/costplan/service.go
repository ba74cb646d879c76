package costplan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Simplici0/margins/internal/db"
	"github.com/Simplici0/margins/internal/margin"
	"github.com/Simplici0/margins/internal/pricing"
)

// Options configures price precision and minimum-margin enforcement.
type Options struct {
	Digits int32
	Policy margin.Policy
}

// Service exposes every margin-ledger operation, each in its own
// transaction. Warning keys attached to the context with
// margin.WithAcknowledged are honoured for that call only.
type Service struct {
	uow      db.UnitOfWork
	repos    RepoFactory
	registry *margin.Registry
	opts     Options
	log      *zap.Logger
}

func NewService(uow db.UnitOfWork, repos RepoFactory, registry *margin.Registry, opts Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Policy == "" {
		opts.Policy = margin.PolicyWarn
	}
	return &Service{uow: uow, repos: repos, registry: registry, opts: opts, log: log}
}

// Registry returns the resolved system categories.
func (s *Service) Registry() *margin.Registry {
	return s.registry
}

func (s *Service) within(ctx context.Context, fn func(ctx context.Context, l *Ledger, r Repos) error) error {
	return s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		repos := s.repos(tx)
		warnings := margin.NewWarnings(margin.AcknowledgedFrom(ctx)...)
		validator := margin.NewValidator(s.opts.Policy, warnings)
		return fn(ctx, NewLedger(repos, s.registry, validator, s.opts.Digits, s.log), repos)
	})
}

// LoadRegistry resolves every catalog key to its stored margin type.
func LoadRegistry(ctx context.Context, types TypeRepo, cat *margin.Catalog) (*margin.Registry, error) {
	entries := make([]margin.SystemType, 0, len(cat.MarginTypes))
	for _, e := range cat.MarginTypes {
		t, err := types.GetByKey(ctx, e.Key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("margin type %q is not seeded", e.Key)
			}
			return nil, fmt.Errorf("resolve margin type %q: %w", e.Key, err)
		}
		entries = append(entries, margin.SystemType{Key: e.Key, TypeID: t.ID, CostSource: e.CostSource})
	}
	return margin.NewRegistry(entries), nil
}

// TypeInput holds the fields of a new margin type.
type TypeInput struct {
	Key            string          `json:"key"`
	Name           string          `json:"name"`
	MinimumPercent decimal.Decimal `json:"minimum_percent"`
}

// TypeUpdate holds the editable fields of a margin type.
type TypeUpdate struct {
	Name           *string          `json:"name"`
	MinimumPercent *decimal.Decimal `json:"minimum_percent"`
}

func (s *Service) ListTypes(ctx context.Context) ([]*margin.Type, error) {
	var out []*margin.Type
	err := s.within(ctx, func(ctx context.Context, _ *Ledger, r Repos) error {
		var err error
		out, err = r.Types.List(ctx)
		return err
	})
	return out, err
}

func (s *Service) CreateType(ctx context.Context, in TypeInput) (*margin.Type, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if in.MinimumPercent.IsNegative() {
		return nil, fmt.Errorf("%w: minimum_percent must be >= 0", ErrInvalid)
	}

	now := time.Now().UTC()
	t := &margin.Type{
		ID:             uuid.NewString(),
		Key:            strings.TrimSpace(in.Key),
		Name:           name,
		MinimumPercent: margin.NormalizePercent(in.MinimumPercent),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.within(ctx, func(ctx context.Context, _ *Ledger, r Repos) error {
		return r.Types.Create(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("margin type created", zap.String("type_id", t.ID), zap.String("name", t.Name))
	return t, nil
}

func (s *Service) UpdateType(ctx context.Context, id string, in TypeUpdate) (*margin.Type, error) {
	var out *margin.Type
	err := s.within(ctx, func(ctx context.Context, _ *Ledger, r Repos) error {
		t, err := r.Types.Get(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return fmt.Errorf("%w: name is required", ErrInvalid)
			}
			t.Name = name
		}
		if in.MinimumPercent != nil {
			if in.MinimumPercent.IsNegative() {
				return fmt.Errorf("%w: minimum_percent must be >= 0", ErrInvalid)
			}
			t.MinimumPercent = margin.NormalizePercent(*in.MinimumPercent)
		}
		t.UpdatedAt = time.Now().UTC()
		if err := r.Types.Update(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// DeleteType removes a margin type. Types still used by lines fail with
// ErrInUse.
func (s *Service) DeleteType(ctx context.Context, id string) error {
	if s.registry.IsSystemType(id) {
		return ErrSystemType
	}
	return s.within(ctx, func(ctx context.Context, _ *Ledger, r Repos) error {
		return r.Types.Delete(ctx, id)
	})
}

// PlanInput holds the fields of a new plan.
type PlanInput struct {
	Name      string           `json:"name"`
	ProductID string           `json:"product_id"`
	UomID     string           `json:"uom_id"`
	Quantity  *decimal.Decimal `json:"quantity"`
}

func (s *Service) CreatePlan(ctx context.Context, in PlanInput) (*PlanView, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if strings.TrimSpace(in.UomID) == "" {
		return nil, fmt.Errorf("%w: uom_id is required", ErrInvalid)
	}
	quantity := decimal.NewFromInt(1)
	if in.Quantity != nil {
		if in.Quantity.IsNegative() {
			return nil, fmt.Errorf("%w: quantity must be >= 0", ErrInvalid)
		}
		quantity = *in.Quantity
	}

	now := time.Now().UTC()
	p := &Plan{
		ID:        uuid.NewString(),
		Name:      name,
		ProductID: strings.TrimSpace(in.ProductID),
		UomID:     strings.TrimSpace(in.UomID),
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var view *PlanView
	err := s.within(ctx, func(ctx context.Context, l *Ledger, r Repos) error {
		if err := r.Plans.Create(ctx, p); err != nil {
			return err
		}
		var err error
		view, err = l.viewOf(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("plan created", zap.String("plan_id", p.ID))
	return view, nil
}

func (s *Service) GetPlan(ctx context.Context, id string) (*PlanView, error) {
	var view *PlanView
	err := s.within(ctx, func(ctx context.Context, l *Ledger, _ Repos) error {
		var err error
		view, err = l.View(ctx, id)
		return err
	})
	return view, err
}

// CostSources are the figures produced by a full BOM explosion.
type CostSources struct {
	ProductCost   decimal.Decimal  `json:"product_cost"`
	OperationCost decimal.Decimal  `json:"operation_cost"`
	Quantity      *decimal.Decimal `json:"quantity"`
	UomID         string           `json:"uom_id"`
}

// Recompute stores new cost sources and runs reset → compute.
func (s *Service) Recompute(ctx context.Context, planID string, in CostSources) (*PlanView, error) {
	if in.ProductCost.IsNegative() || in.OperationCost.IsNegative() {
		return nil, fmt.Errorf("%w: costs must be >= 0", ErrInvalid)
	}
	if in.Quantity != nil && in.Quantity.IsNegative() {
		return nil, fmt.Errorf("%w: quantity must be >= 0", ErrInvalid)
	}

	var view *PlanView
	err := s.within(ctx, func(ctx context.Context, l *Ledger, r Repos) error {
		p, err := r.Plans.Get(ctx, planID)
		if err != nil {
			return err
		}
		p.ProductCost = in.ProductCost
		p.OperationCost = in.OperationCost
		if in.Quantity != nil {
			p.Quantity = *in.Quantity
		}
		if uom := strings.TrimSpace(in.UomID); uom != "" {
			p.UomID = uom
		}
		if err := l.Recompute(ctx, p); err != nil {
			return err
		}
		view, err = l.viewOf(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("plan margins recomputed",
		zap.String("plan_id", planID),
		zap.String("total_cost", view.Plan.TotalCost.String()),
	)
	return view, nil
}

// CostUpdate carries a live edit of the plan cost sources. Nil fields are
// left untouched.
type CostUpdate struct {
	ProductCost   *decimal.Decimal `json:"product_cost"`
	OperationCost *decimal.Decimal `json:"operation_cost"`
	Quantity      *decimal.Decimal `json:"quantity"`
}

// UpdateCosts applies a live cost edit and runs the triggers of the changed
// fields. System lines keep their percent.
func (s *Service) UpdateCosts(ctx context.Context, planID string, in CostUpdate) (*PlanView, error) {
	for _, v := range []*decimal.Decimal{in.ProductCost, in.OperationCost, in.Quantity} {
		if v != nil && v.IsNegative() {
			return nil, fmt.Errorf("%w: values must be >= 0", ErrInvalid)
		}
	}

	var view *PlanView
	err := s.within(ctx, func(ctx context.Context, l *Ledger, r Repos) error {
		p, err := r.Plans.Get(ctx, planID)
		if err != nil {
			return err
		}

		var changed []PlanField
		if in.ProductCost != nil && !in.ProductCost.Equal(p.ProductCost) {
			p.ProductCost = *in.ProductCost
			changed = append(changed, FieldProductCost)
		}
		if in.OperationCost != nil && !in.OperationCost.Equal(p.OperationCost) {
			p.OperationCost = *in.OperationCost
			changed = append(changed, FieldOperationCost)
		}
		if in.Quantity != nil && !in.Quantity.Equal(p.Quantity) {
			p.Quantity = *in.Quantity
			changed = append(changed, FieldQuantity)
		}

		if err := l.OnChange(ctx, p, changed...); err != nil {
			return err
		}
		view, err = l.viewOf(ctx, p)
		return err
	})
	return view, err
}

// LineInput holds the fields of a user-managed line. ID is optional; a
// client retrying a create after a minimum-margin warning sends back the
// line_id of the warning so its acknowledgment key still matches.
type LineInput struct {
	ID            string           `json:"id"`
	TypeID        string           `json:"type_id"`
	Cost          decimal.Decimal  `json:"cost"`
	MarginPercent *decimal.Decimal `json:"margin_percent"`
}

// CreateLine adds a user-managed line. An omitted percent defaults to zero,
// not to the type minimum.
func (s *Service) CreateLine(ctx context.Context, planID string, in LineInput) (*margin.Line, error) {
	if strings.TrimSpace(in.TypeID) == "" {
		return nil, fmt.Errorf("%w: type_id is required", ErrInvalid)
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: id must be a uuid", ErrInvalid)
	}

	line := &margin.Line{
		ID:            id,
		PlanID:        planID,
		TypeID:        strings.TrimSpace(in.TypeID),
		Cost:          in.Cost,
		MarginPercent: decimal.Zero,
	}
	if in.MarginPercent != nil {
		line.MarginPercent = *in.MarginPercent
	}

	err := s.within(ctx, func(ctx context.Context, l *Ledger, r Repos) error {
		if _, err := r.Plans.Get(ctx, planID); err != nil {
			return err
		}
		existing, err := r.Lines.ListByPlan(ctx, planID)
		if err != nil {
			return err
		}
		line.Sequence = nextSequence(existing)
		return l.SaveLine(ctx, line, true)
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// LineUpdate carries edits to a line. Cost may only change on user lines.
type LineUpdate struct {
	Cost          *decimal.Decimal `json:"cost"`
	MarginPercent *decimal.Decimal `json:"margin_percent"`
}

func (s *Service) UpdateLine(ctx context.Context, id string, in LineUpdate) (*margin.Line, error) {
	var out *margin.Line
	err := s.within(ctx, func(ctx context.Context, l *Ledger, r Repos) error {
		line, err := r.Lines.Get(ctx, id)
		if err != nil {
			return err
		}
		if in.Cost != nil && !in.Cost.Equal(line.Cost) {
			if line.System {
				return margin.ErrSystemLineCost
			}
			line.Cost = *in.Cost
		}
		if in.MarginPercent != nil {
			line.MarginPercent = *in.MarginPercent
		}
		if err := l.SaveLine(ctx, line, false); err != nil {
			return err
		}
		out = line
		return nil
	})
	return out, err
}

func (s *Service) DeleteLine(ctx context.Context, id string) error {
	return s.within(ctx, func(ctx context.Context, l *Ledger, r Repos) error {
		line, err := r.Lines.Get(ctx, id)
		if err != nil {
			return err
		}
		return l.DeleteLine(ctx, line)
	})
}

// ListPricePreview is what the first step of the back-solve shows before
// the user confirms.
type ListPricePreview struct {
	ListPrice     decimal.Decimal `json:"list_price"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	MarginPercent decimal.Decimal `json:"margin_percent"`
	Applicable    bool            `json:"applicable"`
	Totals        pricing.Totals  `json:"totals"`
}

// PreviewListPrice solves the uniform percent for listPrice and derives the
// resulting totals without writing anything.
func (s *Service) PreviewListPrice(ctx context.Context, planID string, listPrice decimal.Decimal) (*ListPricePreview, error) {
	var out *ListPricePreview
	err := s.within(ctx, func(ctx context.Context, _ *Ledger, r Repos) error {
		p, err := r.Plans.Get(ctx, planID)
		if err != nil {
			return err
		}
		lines, err := r.Lines.ListByPlan(ctx, planID)
		if err != nil {
			return err
		}

		costPrice := p.CostPrice(s.opts.Digits)
		percent, ok := SolveListPrice(costPrice, listPrice)

		simulated := make([]margin.Line, 0, len(lines))
		for _, line := range lines {
			sim := *line
			if ok && !sim.Cost.IsZero() {
				sim.MarginPercent = percent
			}
			simulated = append(simulated, sim)
		}

		result := pricing.Calculate(pricing.Input{TotalCost: p.TotalCost, Quantity: p.Quantity, Digits: s.opts.Digits}, simulated)
		out = &ListPricePreview{
			ListPrice:     listPrice,
			CostPrice:     costPrice.Decimal,
			MarginPercent: percent,
			Applicable:    ok,
			Totals:        result.Totals,
		}
		return nil
	})
	return out, err
}

// CalcMarginsFromListPrice is the confirmed back-solve: it rewrites the
// percent of every line with a cost so the plan reaches listPrice.
func (s *Service) CalcMarginsFromListPrice(ctx context.Context, planID string, listPrice decimal.Decimal) (*PlanView, error) {
	var view *PlanView
	err := s.within(ctx, func(ctx context.Context, l *Ledger, r Repos) error {
		p, err := r.Plans.Get(ctx, planID)
		if err != nil {
			return err
		}
		percent, applied, err := l.ApplyListPrice(ctx, p, listPrice)
		if err != nil {
			return err
		}
		if applied {
			s.log.Info("margins solved from list price",
				zap.String("plan_id", planID),
				zap.String("list_price", listPrice.String()),
				zap.String("margin_percent", percent.String()),
			)
		}
		view, err = l.viewOf(ctx, p)
		return err
	})
	return view, err
}

// UpdateProductListPrice converts the plan unit price to the product's
// default unit and hands it to the product record. It returns the price
// the product stored.
func (s *Service) UpdateProductListPrice(ctx context.Context, planID string) (decimal.Decimal, error) {
	var stored decimal.Decimal
	err := s.within(ctx, func(ctx context.Context, l *Ledger, r Repos) error {
		view, err := l.View(ctx, planID)
		if err != nil {
			return err
		}
		if view.Plan.ProductID == "" {
			return fmt.Errorf("%w: plan has no product", ErrInvalid)
		}
		product, err := r.Products.Get(ctx, view.Plan.ProductID)
		if err != nil {
			return err
		}

		price, err := r.Uoms.ComputePrice(ctx, view.Plan.UomID, view.Totals.UnitPrice, product.DefaultUomID)
		if err != nil {
			return fmt.Errorf("convert list price: %w", err)
		}

		stored, err = r.Products.ApplyListPrice(ctx, product.ID, price)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	s.log.Info("product list price updated", zap.String("plan_id", planID), zap.String("list_price", stored.String()))
	return stored, nil
}
