package seed

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/Simplici0/margins/internal/db"
	"github.com/Simplici0/margins/internal/margin"
	"github.com/Simplici0/margins/internal/migrations"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "seed-test.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := migrations.Up(database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database
}

func TestRunIsIdempotent(t *testing.T) {

	database := openTestDB(t)
	cat, err := margin.DefaultCatalog()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}

	want := len(defaultUoms) + len(cat.MarginTypes)
	for i := 0; i < 5; i++ {
		stats, err := Run(database, Config{Catalog: cat})
		if err != nil {
			t.Fatalf("run seed (iteration=%d): %v", i, err)
		}
		if i == 0 {
			if stats.Inserts != want {
				t.Fatalf("expected %d inserts in first run, got %d", want, stats.Inserts)
			}
			continue
		}
		if stats.Inserts != 0 {
			t.Fatalf("expected 0 inserts in iteration %d, got %d", i, stats.Inserts)
		}
	}

	assertCount(t, database, `SELECT COUNT(*) FROM margin_types WHERE symbolic_key = ?`, margin.KeyRawMaterials, 1)
	assertCount(t, database, `SELECT COUNT(*) FROM margin_types WHERE symbolic_key = ?`, margin.KeyOperations, 1)
	assertCount(t, database, `SELECT COUNT(*) FROM uoms WHERE category = ?`, "unit", 2)
}

func TestRunKeepsEditedMinimum(t *testing.T) {

	database := openTestDB(t)
	cat, err := margin.DefaultCatalog()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}

	if _, err := Run(database, Config{Catalog: cat}); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if _, err := database.Exec(`UPDATE margin_types SET minimum_percent = '0.15' WHERE symbolic_key = ?`, margin.KeyOperations); err != nil {
		t.Fatalf("edit minimum: %v", err)
	}
	if _, err := Run(database, Config{Catalog: cat}); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	var minimum string
	if err := database.QueryRow(`SELECT minimum_percent FROM margin_types WHERE symbolic_key = ?`, margin.KeyOperations).Scan(&minimum); err != nil {
		t.Fatalf("query minimum: %v", err)
	}
	if minimum != "0.15" {
		t.Fatalf("minimum=%q, want %q", minimum, "0.15")
	}
}

func TestRunRequiresCatalog(t *testing.T) {

	if _, err := Run(openTestDB(t), Config{}); err == nil {
		t.Fatalf("expected error without catalog")
	}
}

func assertCount(t *testing.T, db *sql.DB, query string, arg any, want int) {
	t.Helper()

	var got int
	if err := db.QueryRow(query, arg).Scan(&got); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if got != want {
		t.Fatalf("count mismatch for %q: got %d want %d", query, got, want)
	}
}
