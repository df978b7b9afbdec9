package memory

import (
	"context"

	agentsrepo "leaddesk_backend/internal/agents/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AgentRepository struct {
	s *Store
}

func (r *AgentRepository) Create(_ context.Context, params agentsrepo.CreateAgentParams) (agentsrepo.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	if _, exists := r.s.agents[id]; exists {
		return agentsrepo.Agent{}, agentsrepo.ErrDuplicate
	}
	for _, other := range r.s.agents {
		if params.Email != "" && other.Email == params.Email {
			return agentsrepo.Agent{}, agentsrepo.ErrDuplicate
		}
	}
	status := params.Status
	if status == "" {
		status = agentsrepo.StatusOffline
	}
	now := r.s.now()
	agent := &agentsrepo.Agent{
		ID:                   id,
		Name:                 params.Name,
		Email:                params.Email,
		IsActive:             true,
		Status:               status,
		CumulativeCollection: decimal.Zero,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	r.s.agentOrder = append(r.s.agentOrder, id)
	r.s.agents[id] = agent
	return *agent, nil
}

func (r *AgentRepository) GetByID(_ context.Context, id uuid.UUID) (agentsrepo.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	agent, ok := r.s.agents[id]
	if !ok {
		return agentsrepo.Agent{}, agentsrepo.ErrNotFound
	}
	return *agent, nil
}

func (r *AgentRepository) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]agentsrepo.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	result := make(map[uuid.UUID]agentsrepo.Agent, len(ids))
	for _, id := range ids {
		if agent, ok := r.s.agents[id]; ok {
			result[id] = *agent
		}
	}
	return result, nil
}

func (r *AgentRepository) ListAssignable(_ context.Context) ([]agentsrepo.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	items := make([]agentsrepo.Agent, 0, len(r.s.agentOrder))
	for _, id := range r.s.agentOrder {
		if agent := r.s.agents[id]; agent.IsAssignable() {
			items = append(items, *agent)
		}
	}
	return items, nil
}

func (r *AgentRepository) List(_ context.Context) ([]agentsrepo.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	items := make([]agentsrepo.Agent, 0, len(r.s.agentOrder))
	for _, id := range r.s.agentOrder {
		items = append(items, *r.s.agents[id])
	}
	return items, nil
}

func (r *AgentRepository) UpdateStatus(_ context.Context, id uuid.UUID, status string) (agentsrepo.Agent, error) {
	return r.update(id, func(a *agentsrepo.Agent) error {
		a.Status = status
		return nil
	})
}

func (r *AgentRepository) SetActive(_ context.Context, id uuid.UUID, active bool) (agentsrepo.Agent, error) {
	return r.update(id, func(a *agentsrepo.Agent) error {
		a.IsActive = active
		return nil
	})
}

func (r *AgentRepository) IncrementLoad(_ context.Context, id uuid.UUID, n int) error {
	_, err := r.update(id, func(a *agentsrepo.Agent) error {
		a.LeadsAssigned += n
		a.LeadsPending += n
		return nil
	})
	return err
}

func (r *AgentRepository) DecrementPending(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	agent, ok := r.s.agents[id]
	if !ok || agent.LeadsPending <= 0 {
		return agentsrepo.ErrNoPendingLeads
	}
	agent.LeadsPending--
	agent.UpdatedAt = r.s.now()
	return nil
}

func (r *AgentRepository) AddCollection(_ context.Context, id uuid.UUID, delta decimal.Decimal) error {
	_, err := r.update(id, func(a *agentsrepo.Agent) error {
		a.CumulativeCollection = a.CumulativeCollection.Add(delta)
		return nil
	})
	return err
}

func (r *AgentRepository) update(id uuid.UUID, fn func(*agentsrepo.Agent) error) (agentsrepo.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	agent, ok := r.s.agents[id]
	if !ok {
		return agentsrepo.Agent{}, agentsrepo.ErrNotFound
	}
	if err := fn(agent); err != nil {
		return agentsrepo.Agent{}, err
	}
	agent.UpdatedAt = r.s.now()
	return *agent, nil
}
