package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/margins/internal/costplan"
	"github.com/Simplici0/margins/internal/db"
)

// Uom is a unit of measure. Factor is the number of reference units of the
// category contained in one of this unit.
type Uom struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Symbol   string          `json:"symbol"`
	Category string          `json:"category"`
	Factor   decimal.Decimal `json:"factor"`
}

// UomRepo implements costplan.UomConverter.
type UomRepo struct {
	db db.DBTX
}

func (r *UomRepo) Get(ctx context.Context, id string) (*Uom, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, symbol, category, factor
		FROM uoms
		WHERE id = ?
	`, id)

	var u Uom
	if err := row.Scan(&u.ID, &u.Name, &u.Symbol, &u.Category, &u.Factor); err != nil {
		return nil, notFound(err, "uom", id)
	}
	return &u, nil
}

func (r *UomRepo) Create(ctx context.Context, u *Uom) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO uoms (id, name, symbol, category, factor)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.Name, u.Symbol, u.Category, u.Factor)
	if err != nil {
		return fmt.Errorf("insert uom: %w", err)
	}
	return nil
}

// ComputePrice converts a price per fromID into a price per toID. A price per
// dozen becomes a price per unit by dividing by twelve.
func (r *UomRepo) ComputePrice(ctx context.Context, fromID string, price decimal.Decimal, toID string) (decimal.Decimal, error) {
	if fromID == toID {
		return price, nil
	}

	from, err := r.Get(ctx, fromID)
	if err != nil {
		return decimal.Zero, err
	}
	to, err := r.Get(ctx, toID)
	if err != nil {
		return decimal.Zero, err
	}
	if from.Category != to.Category {
		return decimal.Zero, fmt.Errorf("%s -> %s: %w", from.Name, to.Name, costplan.ErrUomCategory)
	}
	if from.Factor.IsZero() {
		return decimal.Zero, fmt.Errorf("uom %s has a zero factor", from.Name)
	}

	return price.Div(from.Factor).Mul(to.Factor), nil
}
