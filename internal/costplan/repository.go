package costplan

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/margins/internal/db"
	"github.com/Simplici0/margins/internal/margin"
)

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid marks input rejected before it reaches storage.
	ErrInvalid = errors.New("invalid input")
	// ErrSystemType is returned when deleting a type bound to a cost source.
	ErrSystemType = errors.New("margin type is bound to a plan cost source")
	// ErrInUse is returned when deleting a record other records still point to.
	ErrInUse = errors.New("record is still referenced")
	// ErrUomCategory is returned when a price is converted between units of
	// different categories.
	ErrUomCategory = errors.New("units of measure are not in the same category")
)

type PlanRepo interface {
	Create(ctx context.Context, p *Plan) error
	Get(ctx context.Context, id string) (*Plan, error)
	Update(ctx context.Context, p *Plan) error
}

type LineRepo interface {
	Create(ctx context.Context, l *margin.Line) error
	CreateBatch(ctx context.Context, lines []*margin.Line) error
	Get(ctx context.Context, id string) (*margin.Line, error)
	ListByPlan(ctx context.Context, planID string) ([]*margin.Line, error)
	Update(ctx context.Context, l *margin.Line) error
	Delete(ctx context.Context, id string) error
}

type TypeRepo interface {
	Create(ctx context.Context, t *margin.Type) error
	Get(ctx context.Context, id string) (*margin.Type, error)
	GetByKey(ctx context.Context, key string) (*margin.Type, error)
	List(ctx context.Context) ([]*margin.Type, error)
	Update(ctx context.Context, t *margin.Type) error
	Delete(ctx context.Context, id string) error
}

// ProductRepo is the price-propagation collaborator. ApplyListPrice rounds
// the price to the product's own digits, persists it and returns the stored
// value.
type ProductRepo interface {
	Get(ctx context.Context, id string) (*Product, error)
	ApplyListPrice(ctx context.Context, id string, price decimal.Decimal) (decimal.Decimal, error)
}

// UomConverter converts a price expressed per fromUom into a price per toUom.
type UomConverter interface {
	ComputePrice(ctx context.Context, fromUomID string, price decimal.Decimal, toUomID string) (decimal.Decimal, error)
}

// Repos bundles the repositories of one transaction.
type Repos struct {
	Plans    PlanRepo
	Lines    LineRepo
	Types    TypeRepo
	Products ProductRepo
	Uoms     UomConverter
}

// RepoFactory builds transaction-scoped repositories.
type RepoFactory func(tx db.DBTX) Repos
