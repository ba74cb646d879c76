package costplan_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Simplici0/margins/internal/costplan"
	"github.com/Simplici0/margins/internal/db"
	"github.com/Simplici0/margins/internal/margin"
	"github.com/Simplici0/margins/internal/migrations"
	"github.com/Simplici0/margins/internal/store"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type fixture struct {
	svc  *costplan.Service
	db   *sql.DB
	raw  string
	ops  string
	repo costplan.Repos
}

func newFixture(t *testing.T, policy margin.Policy) *fixture {
	t.Helper()
	ctx := context.Background()

	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, migrations.Up(database))

	repos := store.NewRepos(database)
	now := time.Now().UTC()
	for _, ty := range []*margin.Type{
		{ID: "type-raw", Key: margin.KeyRawMaterials, Name: "Raw materials", MinimumPercent: decimal.Zero, CreatedAt: now, UpdatedAt: now},
		{ID: "type-ops", Key: margin.KeyOperations, Name: "Operations", MinimumPercent: decimal.Zero, CreatedAt: now, UpdatedAt: now},
	} {
		require.NoError(t, repos.Types.Create(ctx, ty))
	}

	uoms := repos.Uoms.(*store.UomRepo)
	require.NoError(t, uoms.Create(ctx, &store.Uom{ID: "u", Name: "Unit", Symbol: "u", Category: "unit", Factor: dec("1")}))
	require.NoError(t, uoms.Create(ctx, &store.Uom{ID: "dozen", Name: "Dozen", Symbol: "dz", Category: "unit", Factor: dec("12")}))
	require.NoError(t, uoms.Create(ctx, &store.Uom{ID: "kg", Name: "Kilogram", Symbol: "kg", Category: "weight", Factor: dec("1")}))

	cat, err := margin.DefaultCatalog()
	require.NoError(t, err)
	registry, err := costplan.LoadRegistry(ctx, repos.Types, cat)
	require.NoError(t, err)

	svc := costplan.NewService(db.NewUnitOfWork(database), store.NewRepos, registry,
		costplan.Options{Digits: 4, Policy: policy}, zap.NewNop())

	return &fixture{svc: svc, db: database, raw: "type-raw", ops: "type-ops", repo: repos}
}

// computedPlan creates a plan and runs the full recompute with the given
// product cost.
func (f *fixture) computedPlan(t *testing.T, productCost string) *costplan.PlanView {
	t.Helper()
	ctx := context.Background()

	view, err := f.svc.CreatePlan(ctx, costplan.PlanInput{Name: "Widget", UomID: "u"})
	require.NoError(t, err)

	view, err = f.svc.Recompute(ctx, view.Plan.ID, costplan.CostSources{ProductCost: dec(productCost)})
	require.NoError(t, err)
	return view
}

func lineOfType(t *testing.T, view *costplan.PlanView, typeID string) costplan.LineView {
	t.Helper()
	for _, l := range view.Lines {
		if l.TypeID == typeID {
			return l
		}
	}
	t.Fatalf("no line of type %s in plan %s", typeID, view.Plan.ID)
	return costplan.LineView{}
}

func TestLoadRegistry_MissingType(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, migrations.Up(database))

	cat, err := margin.DefaultCatalog()
	require.NoError(t, err)

	_, err = costplan.LoadRegistry(context.Background(), store.NewRepos(database).Types, cat)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not seeded")
}

func TestCreatePlan_Uncomputed(t *testing.T) {
	f := newFixture(t, margin.PolicyWarn)

	view, err := f.svc.CreatePlan(context.Background(), costplan.PlanInput{Name: "Widget", UomID: "u"})
	require.NoError(t, err)
	assert.Equal(t, costplan.StateUncomputed, view.State)
	assert.Empty(t, view.Lines)
	assert.True(t, dec("1").Equal(view.Plan.Quantity))

	_, err = f.svc.CreatePlan(context.Background(), costplan.PlanInput{UomID: "u"})
	assert.ErrorIs(t, err, costplan.ErrInvalid)
}

func TestRecompute_CreatesOneSystemLinePerCategory(t *testing.T) {
	f := newFixture(t, margin.PolicyWarn)

	view := f.computedPlan(t, "17.5")
	assert.Equal(t, costplan.StateComputed, view.State)
	require.Len(t, view.Lines, 2)

	raw := lineOfType(t, view, f.raw)
	assert.True(t, raw.System)
	assert.True(t, dec("17.5").Equal(raw.Cost))
	assert.True(t, raw.MarginPercent.IsZero())

	ops := lineOfType(t, view, f.ops)
	assert.True(t, ops.System)
	assert.True(t, ops.Cost.IsZero())

	assert.True(t, dec("17.5").Equal(view.Plan.TotalCost))
}

func TestEndToEnd_MarginAndListPrice(t *testing.T) {
	f := newFixture(t, margin.PolicyWarn)
	ctx := context.Background()

	view := f.computedPlan(t, "17.5")
	raw := lineOfType(t, view, f.raw)

	_, err := f.svc.UpdateLine(ctx, raw.ID, costplan.LineUpdate{MarginPercent: decPtr("0.2")})
	require.NoError(t, err)

	view, err = f.svc.GetPlan(ctx, view.Plan.ID)
	require.NoError(t, err)

	raw = lineOfType(t, view, f.raw)
	assert.True(t, dec("3.5").Equal(raw.Margin), "margin %s", raw.Margin)
	assert.True(t, dec("3.5").Equal(view.Totals.TotalMargin))
	assert.True(t, dec("21").Equal(view.Totals.UnitPrice), "unit price %s", view.Totals.UnitPrice)
	require.True(t, view.Totals.PercentMargin.Valid)
	assert.True(t, dec("0.2").Equal(view.Totals.PercentMargin.Decimal))
}

func TestCalcMarginsFromListPrice(t *testing.T) {
	f := newFixture(t, margin.PolicyWarn)
	ctx := context.Background()

	view := f.computedPlan(t, "17.5")

	preview, err := f.svc.PreviewListPrice(ctx, view.Plan.ID, dec("21"))
	require.NoError(t, err)
	assert.True(t, preview.Applicable)
	assert.True(t, dec("0.2").Equal(preview.MarginPercent))
	assert.True(t, dec("21").Equal(preview.Totals.UnitPrice))

	unchanged, err := f.svc.GetPlan(ctx, view.Plan.ID)
	require.NoError(t, err)
	assert.True(t, lineOfType(t, unchanged, f.raw).MarginPercent.IsZero(), "preview must not write")

	view, err = f.svc.CalcMarginsFromListPrice(ctx, view.Plan.ID, dec("21"))
	require.NoError(t, err)

	assert.True(t, dec("0.2").Equal(lineOfType(t, view, f.raw).MarginPercent))
	assert.True(t, lineOfType(t, view, f.ops).MarginPercent.IsZero(), "zero-cost lines are left alone")
	assert.True(t, dec("21").Equal(view.Totals.UnitPrice))
	assert.Len(t, view.Lines, 2)
}

func TestCalcMarginsFromListPrice_NoCostBasis(t *testing.T) {
	f := newFixture(t, margin.PolicyWarn)
	ctx := context.Background()

	view := f.computedPlan(t, "0")

	preview, err := f.svc.PreviewListPrice(ctx, view.Plan.ID, dec("21"))
	require.NoError(t, err)
	assert.False(t, preview.Applicable)

	view, err = f.svc.CalcMarginsFromListPrice(ctx, view.Plan.ID, dec("21"))
	require.NoError(t, err)
	for _, l := range view.Lines {
		assert.True(t, l.MarginPercent.IsZero())
	}
	assert.False(t, view.Totals.PercentMargin.Valid)
	assert.True(t, view.Totals.UnitPrice.IsZero())
}

func TestRecompute_ResetsChosenPercent(t *testing.T) {
	f := newFixture(t, margin.PolicyWarn)
	ctx := context.Background()

	view := f.computedPlan(t, "17.5")
	raw := lineOfType(t, view, f.raw)
	_, err := f.svc.UpdateLine(ctx, raw.ID, costplan.LineUpdate{MarginPercent: decPtr("0.2")})
	require.NoError(t, err)

	user, err := f.svc.CreateType(ctx, costplan.TypeInput{Name: "Packaging"})
	require.NoError(t, err)
	_, err = f.svc.CreateLine(ctx, view.Plan.ID, costplan.LineInput{TypeID: user.ID, Cost: dec("2"), MarginPercent: decPtr("0.5")})
	require.NoError(t, err)

	view, err = f.svc.Recompute(ctx, view.Plan.ID, costplan.CostSources{ProductCost: dec("20"), OperationCost: dec("4")})
	require.NoError(t, err)

	require.Len(t, view.Lines, 3)
	newRaw := lineOfType(t, view, f.raw)
	assert.NotEqual(t, raw.ID, newRaw.ID)
	assert.True(t, newRaw.MarginPercent.IsZero())
	assert.True(t, dec("20").Equal(newRaw.Cost))
	assert.True(t, dec("4").Equal(lineOfType(t, view, f.ops).Cost))
	assert.True(t, dec("0.5").Equal(lineOfType(t, view, user.ID).MarginPercent), "user lines survive a reset")
	assert.True(t, dec("24").Equal(view.Plan.TotalCost))
}

func TestRecompute_KeepsUserLineOfSystemCategory(t *testing.T) {
	f := newFixture(t, margin.PolicyWarn)
	ctx := context.Background()

	view := f.computedPlan(t, "17.5")
	user, err := f.svc.CreateLine(ctx, view.Plan.ID, costplan.LineInput{TypeID: f.raw, Cost: dec("3"), MarginPercent: decPtr("0.5")})
	require.NoError(t, err)
	require.False(t, user.System)

	view, err = f.svc.Recompute(ctx, view.Plan.ID, costplan.CostSources{ProductCost: dec("20")})
	require.NoError(t, err)

	require.Len(t, view.Lines, 3)
	var kept bool
	for _, l := range view.Lines {
		if l.ID == user.ID {
			kept = true
			assert.True(t, dec("3").Equal(l.Cost))
			assert.True(t, dec("0.5").Equal(l.MarginPercent))
		}
	}
	assert.True(t, kept, "user line %s was removed by the reset", user.ID)
}

func TestUpdateCosts_KeepsPercentAndIsIdempotent(t *testing.T) {
	f := newFixture(t, margin.PolicyWarn)
	ctx := context.Background()

	view := f.computedPlan(t, "17.5")
	raw := lineOfType(t, view, f.raw)
	_, err := f.svc.UpdateLine(ctx, raw.ID, costplan.LineUpdate{MarginPercent: decPtr("0.2")})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		view, err = f.svc.UpdateCosts(ctx, view.Plan.ID, costplan.CostUpdate{ProductCost: decPtr("20")})
		require.NoError(t, err)

		got := lineOfType(t, view, f.raw)
		assert.Equal(t, raw.ID, got.ID)
		assert.True(t, dec("20").Equal(got.Cost))
		assert.True(t, dec("0.2").Equal(got.MarginPercent))
		assert.True(t, dec("4").Equal(got.Margin))
		assert.True(t, dec("20").Equal(view.Plan.TotalCost))
		assert.Len(t, view.Lines, 2)
	}

	view, err = f.svc.UpdateCosts(ctx, view.Plan.ID, costplan.CostUpdate{Quantity: decPtr("4")})
	require.NoError(t, err)
	assert.True(t, dec("5").Equal(view.Totals.CostPrice))
	assert.True(t, dec("6").Equal(view.Totals.UnitPrice))
}

func TestTotalMarginIsSumOfLineMargins(t *testing.T) {
	f := newFixture(t, margin.PolicyWarn)
	ctx := context.Background()

	view, err := f.svc.CreatePlan(ctx, costplan.PlanInput{Name: "Widget", UomID: "u"})
	require.NoError(t, err)
	view, err = f.svc.Recompute(ctx, view.Plan.ID, costplan.CostSources{ProductCost: dec("10.01"), OperationCost: dec("3.33")})
	require.NoError(t, err)

	for _, l := range view.Lines {
		_, err := f.svc.UpdateLine(ctx, l.ID, costplan.LineUpdate{MarginPercent: decPtr("0.1234")})
		require.NoError(t, err)
	}
	view, err = f.svc.GetPlan(ctx, view.Plan.ID)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, l := range view.Lines {
		sum = sum.Add(l.Margin)
	}
	assert.True(t, sum.Equal(view.Totals.TotalMargin), "sum %s total %s", sum, view.Totals.TotalMargin)
}

func TestSystemLineGuards(t *testing.T) {
	f := newFixture(t, margin.PolicyWarn)
	ctx := context.Background()

	view := f.computedPlan(t, "17.5")
	raw := lineOfType(t, view, f.raw)

	err := f.svc.DeleteLine(ctx, raw.ID)
	var rejected *margin.SystemLineDeletionRejected
	require.True(t, errors.As(err, &rejected), "got %v", err)
	assert.Equal(t, raw.ID, rejected.LineID)

	_, err = f.svc.UpdateLine(ctx, raw.ID, costplan.LineUpdate{Cost: decPtr("1")})
	assert.ErrorIs(t, err, margin.ErrSystemLineCost)

	assert.ErrorIs(t, f.svc.DeleteType(ctx, f.raw), costplan.ErrSystemType)

	user, err := f.svc.CreateType(ctx, costplan.TypeInput{Name: "Packaging"})
	require.NoError(t, err)
	line, err := f.svc.CreateLine(ctx, view.Plan.ID, costplan.LineInput{TypeID: user.ID, Cost: dec("2")})
	require.NoError(t, err)
	assert.False(t, line.System)
	require.NoError(t, f.svc.DeleteLine(ctx, line.ID))

	_, err = f.svc.GetPlan(ctx, "missing")
	assert.ErrorIs(t, err, costplan.ErrNotFound)
}

func TestMinimumMargin_WarnOncePerLine(t *testing.T) {
	f := newFixture(t, margin.PolicyWarn)
	ctx := context.Background()

	view := f.computedPlan(t, "17.5")
	packaging, err := f.svc.CreateType(ctx, costplan.TypeInput{Name: "Packaging", MinimumPercent: dec("0.1")})
	require.NoError(t, err)

	in := costplan.LineInput{ID: uuid.NewString(), TypeID: packaging.ID, Cost: dec("2"), MarginPercent: decPtr("0.05")}
	_, err = f.svc.CreateLine(ctx, view.Plan.ID, in)

	var violation *margin.MinimumMarginViolation
	require.True(t, errors.As(err, &violation), "got %v", err)
	assert.True(t, violation.Dismissible)
	assert.Equal(t, margin.WarningKey(in.ID), violation.Key)
	assert.Equal(t, `Invalid margin for "Packaging". Margin "5%" must be greater than minimum "10%".`, violation.Error())

	line, err := f.svc.CreateLine(margin.WithAcknowledged(ctx, violation.Key), view.Plan.ID, in)
	require.NoError(t, err)
	assert.Equal(t, in.ID, line.ID)

	_, err = f.svc.UpdateLine(ctx, line.ID, costplan.LineUpdate{MarginPercent: decPtr("0.04")})
	require.True(t, errors.As(err, &violation), "acknowledgments do not outlive the call")
}

func TestMinimumMargin_AcknowledgedLineIsNotRewarned(t *testing.T) {
	f := newFixture(t, margin.PolicyWarn)
	ctx := context.Background()

	view := f.computedPlan(t, "17.5")
	_, err := f.svc.UpdateType(ctx, f.raw, costplan.TypeUpdate{MinimumPercent: decPtr("0.1")})
	require.NoError(t, err)

	raw := lineOfType(t, view, f.raw)
	_, err = f.svc.UpdateLine(margin.WithAcknowledged(ctx, margin.WarningKey(raw.ID)), raw.ID,
		costplan.LineUpdate{MarginPercent: decPtr("0.05")})
	require.NoError(t, err)

	_, err = f.svc.UpdateLine(ctx, raw.ID, costplan.LineUpdate{})
	require.NoError(t, err, "unmodified save must not warn again")

	view, err = f.svc.UpdateCosts(ctx, view.Plan.ID, costplan.CostUpdate{ProductCost: decPtr("20")})
	require.NoError(t, err, "cost sync keeps the acknowledged percent")

	got := lineOfType(t, view, f.raw)
	assert.True(t, dec("20").Equal(got.Cost))
	assert.True(t, dec("0.05").Equal(got.MarginPercent))
	assert.True(t, dec("1").Equal(got.Margin))

	_, err = f.svc.UpdateLine(ctx, raw.ID, costplan.LineUpdate{MarginPercent: decPtr("0.06")})
	var violation *margin.MinimumMarginViolation
	require.True(t, errors.As(err, &violation), "a new percent is checked again, got %v", err)
}

func TestMinimumMargin_BlockPolicyRollsBack(t *testing.T) {
	f := newFixture(t, margin.PolicyBlock)
	ctx := context.Background()

	view := f.computedPlan(t, "17.5")
	raw := lineOfType(t, view, f.raw)
	_, err := f.svc.UpdateLine(ctx, raw.ID, costplan.LineUpdate{MarginPercent: decPtr("0.2")})
	require.NoError(t, err)

	packaging, err := f.svc.CreateType(ctx, costplan.TypeInput{Name: "Packaging", MinimumPercent: dec("0.1")})
	require.NoError(t, err)
	_, err = f.svc.CreateLine(ctx, view.Plan.ID, costplan.LineInput{TypeID: packaging.ID, Cost: dec("2"), MarginPercent: decPtr("0.5")})
	require.NoError(t, err)

	_, err = f.svc.CalcMarginsFromListPrice(margin.WithAcknowledged(ctx, "anything"), view.Plan.ID, dec("18"))
	var violation *margin.MinimumMarginViolation
	require.True(t, errors.As(err, &violation), "got %v", err)
	assert.False(t, violation.Dismissible)

	view, err = f.svc.GetPlan(ctx, view.Plan.ID)
	require.NoError(t, err)
	assert.True(t, dec("0.2").Equal(lineOfType(t, view, f.raw).MarginPercent), "failed back-solve must roll back")
	assert.True(t, dec("0.5").Equal(lineOfType(t, view, packaging.ID).MarginPercent))
}

func TestUpdateProductListPrice_ConvertsUnit(t *testing.T) {
	f := newFixture(t, margin.PolicyWarn)
	ctx := context.Background()

	products := f.repo.Products.(*store.ProductRepo)
	require.NoError(t, products.Create(ctx, &costplan.Product{ID: "prod", Name: "Widget", DefaultUomID: "u", PriceDigits: 2}))

	view, err := f.svc.CreatePlan(ctx, costplan.PlanInput{Name: "Widget box", ProductID: "prod", UomID: "dozen"})
	require.NoError(t, err)
	view, err = f.svc.Recompute(ctx, view.Plan.ID, costplan.CostSources{ProductCost: dec("24")})
	require.NoError(t, err)

	_, err = f.svc.UpdateLine(ctx, lineOfType(t, view, f.raw).ID, costplan.LineUpdate{MarginPercent: decPtr("0.5")})
	require.NoError(t, err)

	stored, err := f.svc.UpdateProductListPrice(ctx, view.Plan.ID)
	require.NoError(t, err)
	assert.True(t, dec("3").Equal(stored), "stored %s", stored)

	view, err = f.svc.GetPlan(ctx, view.Plan.ID)
	require.NoError(t, err)
	require.True(t, view.ProductListPrice.Valid)
	assert.True(t, dec("3").Equal(view.ProductListPrice.Decimal))
}

func TestUpdateProductListPrice_Errors(t *testing.T) {
	f := newFixture(t, margin.PolicyWarn)
	ctx := context.Background()

	noProduct := f.computedPlan(t, "10")
	_, err := f.svc.UpdateProductListPrice(ctx, noProduct.Plan.ID)
	assert.ErrorIs(t, err, costplan.ErrInvalid)

	products := f.repo.Products.(*store.ProductRepo)
	require.NoError(t, products.Create(ctx, &costplan.Product{ID: "bulk", Name: "Bulk", DefaultUomID: "kg", PriceDigits: 2}))
	view, err := f.svc.CreatePlan(ctx, costplan.PlanInput{Name: "Bulk", ProductID: "bulk", UomID: "u"})
	require.NoError(t, err)

	_, err = f.svc.UpdateProductListPrice(ctx, view.Plan.ID)
	assert.ErrorIs(t, err, costplan.ErrUomCategory)
}
