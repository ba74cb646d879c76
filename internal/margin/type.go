package margin

import (
	"time"

	"github.com/shopspring/decimal"
)

// Well-known symbolic keys for the categories whose cost is derived from a plan.
const (
	KeyRawMaterials = "raw_materials"
	KeyOperations   = "operations"
)

// CostField names a plan cost-source field a system category tracks.
type CostField string

const (
	CostProduct   CostField = "product_cost"
	CostOperation CostField = "operation_cost"
)

// Valid reports whether f names a known plan cost-source field.
func (f CostField) Valid() bool {
	switch f {
	case CostProduct, CostOperation:
		return true
	}
	return false
}

// Type is a margin category with its minimum markup policy.
type Type struct {
	ID             string          `json:"id"`
	Key            string          `json:"key,omitempty"`
	Name           string          `json:"name"`
	MinimumPercent decimal.Decimal `json:"minimum_percent"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
