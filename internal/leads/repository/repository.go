package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leaddesk_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("lead not found")
	// ErrConflict is returned when a conditional update found the lead changed
	// since it was read.
	ErrConflict = errors.New("lead changed concurrently")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ClaimSummary caches the sum of all fee buckets on a lead.
type ClaimSummary struct {
	Total decimal.Decimal
}

type Lead struct {
	ID              uuid.UUID
	FirstName       string
	LastName        string
	Phone           string
	Phones          []string
	PhoneKeys       []string
	Status          string
	AssignedAgentID *uuid.UUID
	AssignedBy      *uuid.UUID
	AssignedAt      *time.Time
	FeeEntries      []domain.FeeEntry
	ClaimSummary    ClaimSummary
	LedgerVersion   int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Numbers returns the primary number followed by the additional numbers.
func (l Lead) Numbers() []string {
	return append([]string{l.Phone}, l.Phones...)
}

// IsAssignedTo reports whether the lead is currently assigned to agentID.
func (l Lead) IsAssignedTo(agentID uuid.UUID) bool {
	return l.AssignedAgentID != nil && *l.AssignedAgentID == agentID
}

// Ownership says which lead made a phone number belong to which agent.
type Ownership struct {
	AgentID uuid.UUID
	LeadID  uuid.UUID
}

type CreateLeadParams struct {
	FirstName       string
	LastName        string
	Phone           string
	Phones          []string
	PhoneKeys       []string
	AssignedAgentID *uuid.UUID
	AssignedBy      *uuid.UUID
	AssignedAt      *time.Time
}

// AssignParams describes a conditional assignment write. The write succeeds
// only if the lead's assignee still equals ExpectedAgentID and no other lead
// sharing one of its numbers is owned by an agent other than AgentID.
type AssignParams struct {
	LeadID          uuid.UUID
	AgentID         uuid.UUID
	AssignedBy      *uuid.UUID
	AssignedAt      time.Time
	ExpectedAgentID *uuid.UUID
}

type ListParams struct {
	AssignedAgentID *uuid.UUID
	Status          *string
	PhoneKey        string
	Offset          int
	Limit           int
}

const leadColumns = `l.id, l.first_name, l.last_name, l.phone, l.phones, l.phone_keys, l.status,
	l.assigned_agent_id, l.assigned_by, l.assigned_at, l.claim_total, l.ledger_version, l.created_at, l.updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var lead Lead
	err := row.Scan(&lead.ID, &lead.FirstName, &lead.LastName, &lead.Phone, &lead.Phones, &lead.PhoneKeys, &lead.Status,
		&lead.AssignedAgentID, &lead.AssignedBy, &lead.AssignedAt, &lead.ClaimSummary.Total, &lead.LedgerVersion,
		&lead.CreatedAt, &lead.UpdatedAt)
	return lead, err
}

func (r *Repository) Create(ctx context.Context, params CreateLeadParams) (Lead, error) {
	phones := params.Phones
	if phones == nil {
		phones = []string{}
	}

	lead, err := scanLead(r.pool.QueryRow(ctx, `
		INSERT INTO leads AS l (first_name, last_name, phone, phones, phone_keys, assigned_agent_id, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+leadColumns,
		params.FirstName, params.LastName, params.Phone, phones, params.PhoneKeys,
		params.AssignedAgentID, params.AssignedBy, params.AssignedAt,
	))
	if err != nil {
		return Lead{}, err
	}
	lead.FeeEntries = []domain.FeeEntry{}
	return lead, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads l WHERE l.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, err
	}

	entries, err := r.listFeeEntries(ctx, []uuid.UUID{id})
	if err != nil {
		return Lead{}, err
	}
	lead.FeeEntries = entries[id]
	if lead.FeeEntries == nil {
		lead.FeeEntries = []domain.FeeEntry{}
	}
	return lead, nil
}

// GetByIDs returns the leads found; missing ids are omitted from the map.
func (r *Repository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Lead, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+leadColumns+` FROM leads l WHERE l.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[uuid.UUID]Lead, len(ids))
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		result[lead.ID] = lead
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	entries, err := r.listFeeEntries(ctx, ids)
	if err != nil {
		return nil, err
	}
	for id, lead := range result {
		lead.FeeEntries = entries[id]
		if lead.FeeEntries == nil {
			lead.FeeEntries = []domain.FeeEntry{}
		}
		result[id] = lead
	}
	return result, nil
}

// FindAssignedByPhone returns the earliest-assigned lead holding key among
// leads that have an assignee.
func (r *Repository) FindAssignedByPhone(ctx context.Context, key string) (Ownership, bool, error) {
	var owner Ownership
	err := r.pool.QueryRow(ctx, `
		SELECT l.assigned_agent_id, l.id
		FROM leads l
		WHERE l.assigned_agent_id IS NOT NULL AND $1 = ANY(l.phone_keys)
		ORDER BY l.assigned_at ASC NULLS LAST, l.created_at ASC
		LIMIT 1
	`, key).Scan(&owner.AgentID, &owner.LeadID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Ownership{}, false, nil
	}
	if err != nil {
		return Ownership{}, false, err
	}
	return owner, true, nil
}

// AssignIfUnchanged performs the conditional assignment described by AssignParams.
func (r *Repository) AssignIfUnchanged(ctx context.Context, params AssignParams) (Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads l
		SET assigned_agent_id = $2, assigned_by = $3, assigned_at = $4, updated_at = now()
		WHERE l.id = $1
			AND l.assigned_agent_id IS NOT DISTINCT FROM $5
			AND NOT EXISTS (
				SELECT 1 FROM leads o
				WHERE o.id <> l.id
					AND o.assigned_agent_id IS NOT NULL
					AND o.assigned_agent_id <> $2
					AND o.phone_keys && l.phone_keys
			)
		RETURNING `+leadColumns,
		params.LeadID, params.AgentID, params.AssignedBy, params.AssignedAt, params.ExpectedAgentID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, r.missingOrConflict(ctx, params.LeadID)
	}
	return lead, err
}

// SetStatus moves a lead from one status to another.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, from, to string) (Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads l SET status = $3, updated_at = now()
		WHERE l.id = $1 AND l.status = $2
		RETURNING `+leadColumns, id, from, to))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, r.missingOrConflict(ctx, id)
	}
	return lead, err
}

func (r *Repository) List(ctx context.Context, params ListParams) ([]Lead, int, error) {
	whereClause, args, argIdx := buildLeadListWhere(params)

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM leads l WHERE %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := params.Limit
	if limit < 1 {
		limit = 20
	}
	args = append(args, limit, params.Offset)

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM leads l WHERE %s
		ORDER BY l.created_at DESC
		LIMIT $%d OFFSET $%d
	`, leadColumns, whereClause, argIdx, argIdx+1), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, lead)
	}
	return items, total, rows.Err()
}

func buildLeadListWhere(params ListParams) (string, []interface{}, int) {
	clauses := []string{"1 = 1"}
	args := []interface{}{}
	argIdx := 1

	if params.AssignedAgentID != nil {
		clauses = append(clauses, fmt.Sprintf("l.assigned_agent_id = $%d", argIdx))
		args = append(args, *params.AssignedAgentID)
		argIdx++
	}
	if params.Status != nil {
		clauses = append(clauses, fmt.Sprintf("l.status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.PhoneKey != "" {
		clauses = append(clauses, fmt.Sprintf("$%d = ANY(l.phone_keys)", argIdx))
		args = append(args, params.PhoneKey)
		argIdx++
	}

	return strings.Join(clauses, " AND "), args, argIdx
}

func (r *Repository) missingOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}
