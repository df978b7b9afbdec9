package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("agent not found")
	// ErrNoPendingLeads is returned when a pending-lead decrement would go below zero.
	ErrNoPendingLeads = errors.New("agent has no pending leads")
	ErrDuplicate      = errors.New("agent already exists")
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusOnLeave = "on_leave"
	StatusBlocked = "blocked"
)

// IsKnownStatus reports whether status is a valid agent status.
func IsKnownStatus(status string) bool {
	switch status {
	case StatusOnline, StatusOffline, StatusOnLeave, StatusBlocked:
		return true
	}
	return false
}

type Agent struct {
	ID                   uuid.UUID
	Name                 string
	Email                string
	IsActive             bool
	Status               string
	LeadsAssigned        int
	LeadsPending         int
	CumulativeCollection decimal.Decimal
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsAssignable reports whether the agent may receive new leads: active and
// either online or offline.
func (a Agent) IsAssignable() bool {
	return a.IsActive && (a.Status == StatusOnline || a.Status == StatusOffline)
}

type CreateAgentParams struct {
	ID     uuid.UUID
	Name   string
	Email  string
	Status string
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const agentColumns = `id, name, email, is_active, status, leads_assigned, leads_pending, cumulative_collection, created_at, updated_at`

func scanAgent(row pgx.Row) (Agent, error) {
	var a Agent
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.IsActive, &a.Status, &a.LeadsAssigned, &a.LeadsPending,
		&a.CumulativeCollection, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *Repository) Create(ctx context.Context, params CreateAgentParams) (Agent, error) {
	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	status := params.Status
	if status == "" {
		status = StatusOffline
	}
	agent, err := scanAgent(r.pool.QueryRow(ctx, `
		INSERT INTO agents (id, name, email, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+agentColumns, id, params.Name, params.Email, status))
	if isUniqueViolation(err) {
		return Agent{}, ErrDuplicate
	}
	return agent, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Agent, error) {
	agent, err := scanAgent(r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	return agent, err
}

// GetByIDs returns the agents found; missing ids are omitted from the map.
func (r *Repository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Agent, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[uuid.UUID]Agent, len(ids))
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		result[agent.ID] = agent
	}
	return result, rows.Err()
}

// ListAssignable returns active online/offline agents in a stable order.
func (r *Repository) ListAssignable(ctx context.Context) ([]Agent, error) {
	return r.list(ctx, `SELECT `+agentColumns+` FROM agents
		WHERE is_active = true AND status IN ('online', 'offline')
		ORDER BY created_at ASC, id ASC`)
}

func (r *Repository) List(ctx context.Context) ([]Agent, error) {
	return r.list(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY created_at ASC, id ASC`)
}

func (r *Repository) list(ctx context.Context, query string) ([]Agent, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Agent, 0)
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, agent)
	}
	return items, rows.Err()
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (Agent, error) {
	agent, err := scanAgent(r.pool.QueryRow(ctx, `
		UPDATE agents SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+agentColumns, id, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	return agent, err
}

func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) (Agent, error) {
	agent, err := scanAgent(r.pool.QueryRow(ctx, `
		UPDATE agents SET is_active = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+agentColumns, id, active))
	if errors.Is(err, pgx.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	return agent, err
}

// IncrementLoad adds n to both leads_assigned and leads_pending in place.
func (r *Repository) IncrementLoad(ctx context.Context, id uuid.UUID, n int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE agents
		SET leads_assigned = leads_assigned + $2, leads_pending = leads_pending + $2, updated_at = now()
		WHERE id = $1
	`, id, n)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DecrementPending lowers leads_pending by one, never below zero.
func (r *Repository) DecrementPending(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE agents SET leads_pending = leads_pending - 1, updated_at = now()
		WHERE id = $1 AND leads_pending > 0
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoPendingLeads
	}
	return nil
}

// AddCollection adds delta (negative for reversals) to cumulative_collection in place.
func (r *Repository) AddCollection(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE agents SET cumulative_collection = cumulative_collection + $2, updated_at = now()
		WHERE id = $1
	`, id, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
