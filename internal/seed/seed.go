package seed

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Simplici0/margins/internal/margin"
)

type uom struct {
	id       string
	name     string
	symbol   string
	category string
	factor   string
}

// defaultUoms are the units every install starts with. Factors are relative
// to the first unit of each category.
var defaultUoms = []uom{
	{id: "unit", name: "Unit", symbol: "u", category: "unit", factor: "1"},
	{id: "dozen", name: "Dozen", symbol: "dz", category: "unit", factor: "12"},
	{id: "meter", name: "Meter", symbol: "m", category: "length", factor: "1"},
	{id: "centimeter", name: "Centimeter", symbol: "cm", category: "length", factor: "0.01"},
	{id: "kilogram", name: "Kilogram", symbol: "kg", category: "weight", factor: "1"},
	{id: "gram", name: "Gram", symbol: "g", category: "weight", factor: "0.001"},
}

// Config contains the values required by startup seed.
type Config struct {
	Catalog *margin.Catalog
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
}

// Run executes the startup seed in an idempotent way. Existing margin types
// are matched by symbolic key and left untouched, so edits made after the
// first run survive restarts.
func Run(db *sql.DB, cfg Config) (Stats, error) {
	if cfg.Catalog == nil {
		return Stats{}, fmt.Errorf("seed: margin type catalog is required")
	}

	tx, err := db.Begin()
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}

	for _, u := range defaultUoms {
		if err := ensureUom(tx, u, &stats); err != nil {
			_ = tx.Rollback()
			return Stats{}, err
		}
	}
	for _, e := range cfg.Catalog.MarginTypes {
		if err := ensureMarginType(tx, e, &stats); err != nil {
			_ = tx.Rollback()
			return Stats{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func ensureUom(tx *sql.Tx, u uom, stats *Stats) error {
	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM uoms WHERE id = ? LIMIT 1)`, u.id).Scan(&exists); err != nil {
		return fmt.Errorf("check uom %s existence: %w", u.id, err)
	}
	if exists {
		return nil
	}

	if _, err := tx.Exec(`
		INSERT INTO uoms (id, name, symbol, category, factor)
		VALUES (?, ?, ?, ?, ?)
	`, u.id, u.name, u.symbol, u.category, u.factor); err != nil {
		return fmt.Errorf("insert uom %s: %w", u.id, err)
	}
	stats.Inserts++
	return nil
}

func ensureMarginType(tx *sql.Tx, e margin.CatalogEntry, stats *Stats) error {
	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM margin_types WHERE symbolic_key = ? LIMIT 1)`, e.Key).Scan(&exists); err != nil {
		return fmt.Errorf("check margin type %s existence: %w", e.Key, err)
	}
	if exists {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.Exec(`
		INSERT INTO margin_types (id, symbolic_key, name, minimum_percent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), e.Key, e.Name, margin.NormalizePercent(e.Minimum()), now, now); err != nil {
		return fmt.Errorf("insert margin type %s: %w", e.Key, err)
	}
	stats.Inserts++
	return nil
}
