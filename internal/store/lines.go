package store

import (
	"context"
	"fmt"

	"github.com/Simplici0/margins/internal/db"
	"github.com/Simplici0/margins/internal/margin"
)

// LineRepo implements costplan.LineRepo.
type LineRepo struct {
	db db.DBTX
}

const lineColumns = `id, plan_id, type_id, cost, margin_percent, system, sequence, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *LineRepo) Create(ctx context.Context, l *margin.Line) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO margin_lines (`+lineColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.ID,
		l.PlanID,
		l.TypeID,
		l.Cost,
		l.MarginPercent,
		l.System,
		l.Sequence,
		formatTime(l.CreatedAt),
		formatTime(l.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert margin line: %w", constraintError(err))
	}
	return nil
}

// CreateBatch inserts lines in order; callers run it inside a transaction so
// the batch is all-or-nothing.
func (r *LineRepo) CreateBatch(ctx context.Context, lines []*margin.Line) error {
	for _, l := range lines {
		if err := r.Create(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (r *LineRepo) Get(ctx context.Context, id string) (*margin.Line, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+lineColumns+` FROM margin_lines WHERE id = ?`, id)
	l, err := scanLine(row)
	if err != nil {
		return nil, notFound(err, "margin line", id)
	}
	return l, nil
}

func (r *LineRepo) ListByPlan(ctx context.Context, planID string) ([]*margin.Line, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+lineColumns+`
		FROM margin_lines
		WHERE plan_id = ?
		ORDER BY sequence, created_at, id
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("query margin lines: %w", err)
	}
	defer rows.Close()

	lines := make([]*margin.Line, 0)
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan margin line: %w", err)
		}
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate margin lines: %w", err)
	}

	return lines, nil
}

func (r *LineRepo) Update(ctx context.Context, l *margin.Line) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE margin_lines
		SET
			type_id = ?,
			cost = ?,
			margin_percent = ?,
			system = ?,
			sequence = ?,
			updated_at = ?
		WHERE id = ?
	`,
		l.TypeID,
		l.Cost,
		l.MarginPercent,
		l.System,
		l.Sequence,
		formatTime(l.UpdatedAt),
		l.ID,
	)
	if err != nil {
		return fmt.Errorf("update margin line: %w", constraintError(err))
	}
	return expectOne(res, "margin line", l.ID)
}

func (r *LineRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM margin_lines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete margin line: %w", err)
	}
	return expectOne(res, "margin line", id)
}

func scanLine(row rowScanner) (*margin.Line, error) {
	var (
		l                    margin.Line
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&l.ID,
		&l.PlanID,
		&l.TypeID,
		&l.Cost,
		&l.MarginPercent,
		&l.System,
		&l.Sequence,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if l.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}
