package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AgentReader provides read-only access to agents.
type AgentReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (Agent, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Agent, error)
	ListAssignable(ctx context.Context) ([]Agent, error)
	List(ctx context.Context) ([]Agent, error)
}

// AgentWriter manages agent records.
type AgentWriter interface {
	Create(ctx context.Context, params CreateAgentParams) (Agent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (Agent, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (Agent, error)
}

// LoadCounter maintains the lead counters with in-place increments.
type LoadCounter interface {
	IncrementLoad(ctx context.Context, id uuid.UUID, n int) error
	DecrementPending(ctx context.Context, id uuid.UUID) error
}

// CollectionCounter maintains cumulative_collection with in-place increments.
type CollectionCounter interface {
	AddCollection(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
}

// AgentsRepository is the full agent store.
type AgentsRepository interface {
	AgentReader
	AgentWriter
	LoadCounter
	CollectionCounter
}

var _ AgentsRepository = (*Repository)(nil)
