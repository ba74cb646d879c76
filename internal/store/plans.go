package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Simplici0/margins/internal/costplan"
	"github.com/Simplici0/margins/internal/db"
)

// PlanRepo implements costplan.PlanRepo.
type PlanRepo struct {
	db db.DBTX
}

const planColumns = `id, name, product_id, uom_id, quantity, product_cost, operation_cost, total_cost, created_at, updated_at`

func (r *PlanRepo) Create(ctx context.Context, p *costplan.Plan) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		p.Name,
		nullableString(p.ProductID),
		p.UomID,
		p.Quantity,
		p.ProductCost,
		p.OperationCost,
		p.TotalCost,
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert plan: %w", constraintError(err))
	}
	return nil
}

func (r *PlanRepo) Get(ctx context.Context, id string) (*costplan.Plan, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id)

	var (
		p                    costplan.Plan
		productID            sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&productID,
		&p.UomID,
		&p.Quantity,
		&p.ProductCost,
		&p.OperationCost,
		&p.TotalCost,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, notFound(err, "plan", id)
	}
	p.ProductID = productID.String

	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PlanRepo) Update(ctx context.Context, p *costplan.Plan) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE plans
		SET
			name = ?,
			product_id = ?,
			uom_id = ?,
			quantity = ?,
			product_cost = ?,
			operation_cost = ?,
			total_cost = ?,
			updated_at = ?
		WHERE id = ?
	`,
		p.Name,
		nullableString(p.ProductID),
		p.UomID,
		p.Quantity,
		p.ProductCost,
		p.OperationCost,
		p.TotalCost,
		formatTime(p.UpdatedAt),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("update plan: %w", constraintError(err))
	}
	return expectOne(res, "plan", p.ID)
}
