package margin

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrSystemLineCost is returned when a caller tries to set the cost of a
// system line directly; only the plan synchronizer may do that.
var ErrSystemLineCost = errors.New("cost of a system margin line is derived from the plan")

// MinimumMarginViolation reports a line whose percent is below its category
// minimum. Dismissible violations go away once Key is acknowledged.
type MinimumMarginViolation struct {
	LineID      string
	TypeName    string
	Percent     decimal.Decimal
	Minimum     decimal.Decimal
	Key         string
	Dismissible bool
}

func (e *MinimumMarginViolation) Error() string {
	hundred := decimal.NewFromInt(100)
	return fmt.Sprintf("Invalid margin for %q. Margin \"%s%%\" must be greater than minimum \"%s%%\".",
		e.TypeName, e.Percent.Mul(hundred).String(), e.Minimum.Mul(hundred).String())
}

// SystemLineDeletionRejected is returned when a system line is deleted
// outside a reset.
type SystemLineDeletionRejected struct {
	LineID string
}

func (e *SystemLineDeletionRejected) Error() string {
	return fmt.Sprintf("margin line %s is managed by the plan and can only be removed by a recompute", e.LineID)
}
