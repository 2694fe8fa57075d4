package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/academy-pricing/internal/domain/agent"
)

const (
	getAgentsByIDsSQL = `SELECT id, code, name, commission_rate FROM agents WHERE id = ANY($1)`

	upsertAgentSQL = `INSERT INTO agents (id, code, name, commission_rate)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, name = EXCLUDED.name,
			commission_rate = EXCLUDED.commission_rate`
)

var _ agent.Repository = (*AgentRepository)(nil)

// AgentRepository implements agent.Repository backed by PostgreSQL.
type AgentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository returns an AgentRepository that uses the given pool.
func NewAgentRepository(pool *pgxpool.Pool) *AgentRepository {
	return &AgentRepository{pool: pool}
}

// GetByIDs returns the agents found among ids, keyed by id. Rates are read on
// every call.
func (r *AgentRepository) GetByIDs(ctx context.Context, ids []string) (map[string]agent.Agent, error) {
	rows, err := r.pool.Query(ctx, getAgentsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting agents: %w", err)
	}
	agents, err := pgx.CollectRows(rows, scanAgent)
	if err != nil {
		return nil, fmt.Errorf("getting agents: %w", err)
	}

	out := make(map[string]agent.Agent, len(agents))
	for _, a := range agents {
		out[a.ID] = a
	}
	return out, nil
}

// Upsert inserts or replaces an agent. Used by seeding.
func (r *AgentRepository) Upsert(ctx context.Context, a agent.Agent) error {
	_, err := r.pool.Exec(ctx, upsertAgentSQL, a.ID, a.Code, a.Name, a.CommissionRate)
	if err != nil {
		return fmt.Errorf("upserting agent %q: %w", a.ID, err)
	}
	return nil
}

func scanAgent(row pgx.CollectableRow) (agent.Agent, error) {
	var a agent.Agent
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.CommissionRate)
	return a, err
}
