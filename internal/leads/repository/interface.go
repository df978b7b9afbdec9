package repository

import (
	"context"

	"leaddesk_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadReader provides read-only access to lead data.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (Lead, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Lead, error)
	List(ctx context.Context, params ListParams) ([]Lead, int, error)
}

// LeadWriter provides write operations for lead management.
type LeadWriter interface {
	Create(ctx context.Context, params CreateLeadParams) (Lead, error)
	SetStatus(ctx context.Context, id uuid.UUID, from, to string) (Lead, error)
}

// OwnershipFinder answers which assigned lead holds a normalized number.
type OwnershipFinder interface {
	FindAssignedByPhone(ctx context.Context, key string) (Ownership, bool, error)
}

// Assigner performs conditional assignment writes.
type Assigner interface {
	AssignIfUnchanged(ctx context.Context, params AssignParams) (Lead, error)
}

// LedgerStore persists fee entries under the lead's ledger version.
type LedgerStore interface {
	AppendFeeEntry(ctx context.Context, leadID uuid.UUID, expectedVersion int64, entry NewFeeEntry) (Lead, error)
	SaveLedger(ctx context.Context, leadID uuid.UUID, expectedVersion int64, entries []domain.FeeEntry) (Lead, error)
}

// =====================================
// Composite Interface
// =====================================

// LeadsRepository defines the complete interface for leads data operations.
type LeadsRepository interface {
	LeadReader
	LeadWriter
	OwnershipFinder
	Assigner
	LedgerStore
}

var _ LeadsRepository = (*Repository)(nil)
