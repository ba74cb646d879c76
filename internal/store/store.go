// Package store implements the margin-ledger repositories on SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Simplici0/margins/internal/costplan"
	"github.com/Simplici0/margins/internal/db"
)

const timeLayout = time.RFC3339Nano

// NewRepos builds every repository on top of one connection or transaction.
func NewRepos(tx db.DBTX) costplan.Repos {
	return costplan.Repos{
		Plans:    &PlanRepo{db: tx},
		Lines:    &LineRepo{db: tx},
		Types:    &TypeRepo{db: tx},
		Products: &ProductRepo{db: tx},
		Uoms:     &UomRepo{db: tx},
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// notFound maps sql.ErrNoRows to costplan.ErrNotFound.
func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, costplan.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

func expectOne(res sql.Result, what, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", what, id, costplan.ErrNotFound)
	}
	return nil
}

// constraintError marks foreign key and uniqueness failures as invalid input.
func constraintError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "FOREIGN KEY constraint failed") || strings.Contains(msg, "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", costplan.ErrInvalid, err)
	}
	return err
}

// deleteError reports a foreign key failure on delete as costplan.ErrInUse.
func deleteError(err error, what, id string) error {
	if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
		return fmt.Errorf("%s %s: %w", what, id, costplan.ErrInUse)
	}
	return fmt.Errorf("delete %s: %w", what, err)
}
