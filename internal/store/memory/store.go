// Package memory is a process-local implementation of every repository in
// the service. All repositories of one Store share a single mutex so that a
// conditional update observes the same snapshot it writes to, mirroring the
// row-level guarantees of the postgres repositories.
package memory

import (
	"sync"
	"time"

	agentsrepo "leaddesk_backend/internal/agents/repository"
	"leaddesk_backend/internal/leads/domain"
	leadsrepo "leaddesk_backend/internal/leads/repository"
	"leaddesk_backend/internal/notification/inapp"
	"leaddesk_backend/internal/notification/outbox"
	paydomain "leaddesk_backend/internal/payments/domain"
	paymentsrepo "leaddesk_backend/internal/payments/repository"

	"github.com/google/uuid"
)

type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	leads     map[uuid.UUID]*leadsrepo.Lead
	leadOrder []uuid.UUID

	agents     map[uuid.UUID]*agentsrepo.Agent
	agentOrder []uuid.UUID

	payments     map[uuid.UUID]*paydomain.Payment
	paymentOrder []uuid.UUID

	outbox      map[uuid.UUID]*outboxRow
	outboxOrder []uuid.UUID

	inbox []inapp.Notification
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		now:      func() time.Time { return time.Now().UTC() },
		leads:    make(map[uuid.UUID]*leadsrepo.Lead),
		agents:   make(map[uuid.UUID]*agentsrepo.Agent),
		payments: make(map[uuid.UUID]*paydomain.Payment),
		outbox:   make(map[uuid.UUID]*outboxRow),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Leads() *LeadRepository       { return &LeadRepository{s: s} }
func (s *Store) Agents() *AgentRepository     { return &AgentRepository{s: s} }
func (s *Store) Payments() *PaymentRepository { return &PaymentRepository{s: s} }
func (s *Store) Outbox() *OutboxRepository    { return &OutboxRepository{s: s} }
func (s *Store) Inbox() *InboxRepository      { return &InboxRepository{s: s} }

var (
	_ leadsrepo.LeadsRepository       = (*LeadRepository)(nil)
	_ agentsrepo.AgentsRepository     = (*AgentRepository)(nil)
	_ paymentsrepo.PaymentsRepository = (*PaymentRepository)(nil)
	_ outbox.Store                    = (*OutboxRepository)(nil)
	_ inapp.Store                     = (*InboxRepository)(nil)
)

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneEntries(in []domain.FeeEntry) []domain.FeeEntry {
	out := make([]domain.FeeEntry, len(in))
	for i, e := range in {
		e.CreatedBy = cloneID(e.CreatedBy)
		out[i] = e
	}
	return out
}

func page(total, offset, limit int) (int, int) {
	if limit < 1 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return offset, end
}
