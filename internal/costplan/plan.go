package costplan

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/margins/internal/margin"
	"github.com/Simplici0/margins/internal/pricing"
)

// Plan is the cost estimate a margin ledger is attached to. The cost-source
// fields are totals for Quantity units, as produced by the BOM explosion.
type Plan struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	ProductID     string          `json:"product_id,omitempty"`
	UomID         string          `json:"uom_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	ProductCost   decimal.Decimal `json:"product_cost"`
	OperationCost decimal.Decimal `json:"operation_cost"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PlanField names a plan field whose change may re-run the synchronizer.
type PlanField string

const (
	FieldProductCost   PlanField = PlanField(margin.CostProduct)
	FieldOperationCost PlanField = PlanField(margin.CostOperation)
	FieldQuantity      PlanField = "quantity"
)

// CostOf returns the value of a cost-source field.
func (p *Plan) CostOf(f margin.CostField) decimal.Decimal {
	switch f {
	case margin.CostProduct:
		return p.ProductCost
	case margin.CostOperation:
		return p.OperationCost
	}
	return decimal.Zero
}

// Rollup recomputes TotalCost from the cost-source fields.
func (p *Plan) Rollup() {
	p.TotalCost = p.ProductCost.Add(p.OperationCost)
}

// CostPrice is the per-unit cost; invalid when the quantity is zero.
func (p *Plan) CostPrice(digits int32) decimal.NullDecimal {
	return pricing.CostPrice(p.TotalCost, p.Quantity, digits)
}

// Product is the slice of the product record the ledger reads and prices.
type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	DefaultUomID string          `json:"default_uom_id"`
	ListPrice    decimal.Decimal `json:"list_price"`
	PriceDigits  int32           `json:"price_digits"`
}
