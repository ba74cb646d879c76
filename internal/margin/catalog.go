package margin

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// CatalogVersion is the only catalog format version this package reads.
const CatalogVersion = "1"

// Catalog declares the system margin categories and the plan field each one
// draws its cost from.
type Catalog struct {
	Version     string         `yaml:"version"`
	MarginTypes []CatalogEntry `yaml:"margin_types"`
}

// CatalogEntry binds a symbolic key to a category name and cost source.
type CatalogEntry struct {
	Key            string    `yaml:"key"`
	Name           string    `yaml:"name"`
	CostSource     CostField `yaml:"cost_source"`
	MinimumPercent string    `yaml:"minimum_percent"`

	minimum decimal.Decimal
}

// Minimum returns the parsed minimum percent of the entry.
func (e CatalogEntry) Minimum() decimal.Decimal {
	return e.minimum
}

// DefaultCatalog returns the built-in catalog with the raw materials and
// operations categories.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog loads and parses a YAML catalog file from the given path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read margin type catalog %s: %w", path, err)
	}

	return ParseCatalog(data)
}

// ParseCatalog parses YAML data into a Catalog and validates it.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog

	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse margin type catalog: %w", err)
	}

	applyDefaults(&c)

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func applyDefaults(c *Catalog) {
	if c.Version == "" {
		c.Version = CatalogVersion
	}

	for i := range c.MarginTypes {
		e := &c.MarginTypes[i]
		if e.Name == "" {
			e.Name = e.Key
		}
		if e.MinimumPercent == "" {
			e.MinimumPercent = "0"
		}
	}
}

func (c *Catalog) validate() error {
	if c.Version != CatalogVersion {
		return fmt.Errorf("margin type catalog: unsupported version %q", c.Version)
	}

	seen := make(map[string]bool, len(c.MarginTypes))
	for i := range c.MarginTypes {
		e := &c.MarginTypes[i]
		if e.Key == "" {
			return fmt.Errorf("margin type catalog entry %d: key is required", i)
		}
		if seen[e.Key] {
			return fmt.Errorf("margin type catalog: duplicate key %q", e.Key)
		}
		seen[e.Key] = true

		if !e.CostSource.Valid() {
			return fmt.Errorf("margin type %q: unknown cost_source %q", e.Key, e.CostSource)
		}

		minimum, err := decimal.NewFromString(e.MinimumPercent)
		if err != nil {
			return fmt.Errorf("margin type %q: minimum_percent: %w", e.Key, err)
		}
		if minimum.IsNegative() {
			return fmt.Errorf("margin type %q: minimum_percent must be >= 0", e.Key)
		}
		e.minimum = minimum
	}
	return nil
}
