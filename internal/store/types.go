package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Simplici0/margins/internal/db"
	"github.com/Simplici0/margins/internal/margin"
)

// TypeRepo implements costplan.TypeRepo.
type TypeRepo struct {
	db db.DBTX
}

const typeColumns = `id, symbolic_key, name, minimum_percent, created_at, updated_at`

func (r *TypeRepo) Create(ctx context.Context, t *margin.Type) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO margin_types (`+typeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		nullableString(t.Key),
		t.Name,
		t.MinimumPercent,
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert margin type: %w", constraintError(err))
	}
	return nil
}

func (r *TypeRepo) Get(ctx context.Context, id string) (*margin.Type, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+typeColumns+` FROM margin_types WHERE id = ?`, id)
	t, err := scanType(row)
	if err != nil {
		return nil, notFound(err, "margin type", id)
	}
	return t, nil
}

func (r *TypeRepo) GetByKey(ctx context.Context, key string) (*margin.Type, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+typeColumns+` FROM margin_types WHERE symbolic_key = ?`, key)
	t, err := scanType(row)
	if err != nil {
		return nil, notFound(err, "margin type", key)
	}
	return t, nil
}

func (r *TypeRepo) List(ctx context.Context) ([]*margin.Type, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+typeColumns+` FROM margin_types ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("query margin types: %w", err)
	}
	defer rows.Close()

	types := make([]*margin.Type, 0)
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan margin type: %w", err)
		}
		types = append(types, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate margin types: %w", err)
	}

	return types, nil
}

func (r *TypeRepo) Update(ctx context.Context, t *margin.Type) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE margin_types
		SET
			name = ?,
			minimum_percent = ?,
			updated_at = ?
		WHERE id = ?
	`, t.Name, t.MinimumPercent, formatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update margin type: %w", constraintError(err))
	}
	return expectOne(res, "margin type", t.ID)
}

func (r *TypeRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM margin_types WHERE id = ?`, id)
	if err != nil {
		return deleteError(err, "margin type", id)
	}
	return expectOne(res, "margin type", id)
}

func scanType(row rowScanner) (*margin.Type, error) {
	var (
		t                    margin.Type
		key                  sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&t.ID, &key, &t.Name, &t.MinimumPercent, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Key = key.String

	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
