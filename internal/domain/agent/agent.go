package agent

import (
	"context"

	"github.com/shopspring/decimal"
)

// Agent is a referring sales agent who may author coupons and earns commission
// on sales made with them.
type Agent struct {
	ID   string
	Code string
	Name string
	// CommissionRate is a fraction (0.10 for 10%). Nil means no rate configured.
	CommissionRate *decimal.Decimal
}

// Repository loads agents. Rates must be read fresh for every quote.
type Repository interface {
	// GetByIDs returns the agents that exist among ids, keyed by id.
	GetByIDs(ctx context.Context, ids []string) (map[string]Agent, error)
}
