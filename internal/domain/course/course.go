package course

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested course does not exist.
var ErrNotFound = errors.New("course not found")

// Course is a purchasable catalog entry.
type Course struct {
	ID    string
	Slug  string
	Title string
	Price decimal.Decimal
	// CommissionRate overrides the referring agent's default rate for sales of
	// this course. Nil when the course has no override.
	CommissionRate *decimal.Decimal
}

// Repository defines read operations for the course catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Course, error)
}
