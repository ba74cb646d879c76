package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/margins/internal/costplan"
	"github.com/Simplici0/margins/internal/db"
)

// ProductRepo implements costplan.ProductRepo.
type ProductRepo struct {
	db db.DBTX
}

func (r *ProductRepo) Get(ctx context.Context, id string) (*costplan.Product, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, default_uom_id, list_price, price_digits
		FROM products
		WHERE id = ?
	`, id)

	var p costplan.Product
	if err := row.Scan(&p.ID, &p.Name, &p.DefaultUomID, &p.ListPrice, &p.PriceDigits); err != nil {
		return nil, notFound(err, "product", id)
	}
	return &p, nil
}

// Create inserts a product. It is used by the seeder and by tests.
func (r *ProductRepo) Create(ctx context.Context, p *costplan.Product) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, default_uom_id, list_price, price_digits, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.DefaultUomID, p.ListPrice, p.PriceDigits, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// ApplyListPrice rounds price to the product's digits and stores it.
func (r *ProductRepo) ApplyListPrice(ctx context.Context, id string, price decimal.Decimal) (decimal.Decimal, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}

	rounded := price.RoundBank(p.PriceDigits)
	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET list_price = ?, updated_at = ?
		WHERE id = ?
	`, rounded, formatTime(time.Now()), id)
	if err != nil {
		return decimal.Zero, fmt.Errorf("update product list price: %w", err)
	}
	if err := expectOne(res, "product", id); err != nil {
		return decimal.Zero, err
	}
	return rounded, nil
}
