package memory

import (
	"context"
	"sort"

	"leaddesk_backend/internal/leads/domain"
	leadsrepo "leaddesk_backend/internal/leads/repository"

	"github.com/google/uuid"
)

type LeadRepository struct {
	s *Store
}

func cloneLead(l *leadsrepo.Lead) leadsrepo.Lead {
	out := *l
	out.Phones = cloneStrings(l.Phones)
	out.PhoneKeys = cloneStrings(l.PhoneKeys)
	out.AssignedAgentID = cloneID(l.AssignedAgentID)
	out.AssignedBy = cloneID(l.AssignedBy)
	out.AssignedAt = cloneTime(l.AssignedAt)
	out.FeeEntries = cloneEntries(l.FeeEntries)
	return out
}

func (r *LeadRepository) Create(_ context.Context, params leadsrepo.CreateLeadParams) (leadsrepo.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	lead := &leadsrepo.Lead{
		ID:              uuid.New(),
		FirstName:       params.FirstName,
		LastName:        params.LastName,
		Phone:           params.Phone,
		Phones:          cloneStrings(params.Phones),
		PhoneKeys:       cloneStrings(params.PhoneKeys),
		Status:          domain.LeadStatusOpen,
		AssignedAgentID: cloneID(params.AssignedAgentID),
		AssignedBy:      cloneID(params.AssignedBy),
		AssignedAt:      cloneTime(params.AssignedAt),
		FeeEntries:      []domain.FeeEntry{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.s.leads[lead.ID] = lead
	r.s.leadOrder = append(r.s.leadOrder, lead.ID)
	return cloneLead(lead), nil
}

func (r *LeadRepository) GetByID(_ context.Context, id uuid.UUID) (leadsrepo.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	lead, ok := r.s.leads[id]
	if !ok {
		return leadsrepo.Lead{}, leadsrepo.ErrNotFound
	}
	return cloneLead(lead), nil
}

func (r *LeadRepository) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]leadsrepo.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	result := make(map[uuid.UUID]leadsrepo.Lead, len(ids))
	for _, id := range ids {
		if lead, ok := r.s.leads[id]; ok {
			result[id] = cloneLead(lead)
		}
	}
	return result, nil
}

func (r *LeadRepository) List(_ context.Context, params leadsrepo.ListParams) ([]leadsrepo.Lead, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	matched := make([]leadsrepo.Lead, 0)
	for i := len(r.s.leadOrder) - 1; i >= 0; i-- {
		lead := r.s.leads[r.s.leadOrder[i]]
		if params.AssignedAgentID != nil && !sameID(lead.AssignedAgentID, params.AssignedAgentID) {
			continue
		}
		if params.Status != nil && lead.Status != *params.Status {
			continue
		}
		if params.PhoneKey != "" && !containsKey(lead.PhoneKeys, params.PhoneKey) {
			continue
		}
		matched = append(matched, cloneLead(lead))
	}

	start, end := page(len(matched), params.Offset, params.Limit)
	return matched[start:end], len(matched), nil
}

func (r *LeadRepository) FindAssignedByPhone(_ context.Context, key string) (leadsrepo.Ownership, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	candidates := make([]*leadsrepo.Lead, 0)
	for _, id := range r.s.leadOrder {
		lead := r.s.leads[id]
		if lead.AssignedAgentID != nil && containsKey(lead.PhoneKeys, key) {
			candidates = append(candidates, lead)
		}
	}
	if len(candidates) == 0 {
		return leadsrepo.Ownership{}, false, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].AssignedAt, candidates[j].AssignedAt
		switch {
		case a == nil && b == nil:
			return false
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	first := candidates[0]
	return leadsrepo.Ownership{AgentID: *first.AssignedAgentID, LeadID: first.ID}, true, nil
}

func (r *LeadRepository) AssignIfUnchanged(_ context.Context, params leadsrepo.AssignParams) (leadsrepo.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	lead, ok := r.s.leads[params.LeadID]
	if !ok {
		return leadsrepo.Lead{}, leadsrepo.ErrNotFound
	}
	if !sameID(lead.AssignedAgentID, params.ExpectedAgentID) {
		return leadsrepo.Lead{}, leadsrepo.ErrConflict
	}
	for _, other := range r.s.leads {
		if other.ID == lead.ID || other.AssignedAgentID == nil || *other.AssignedAgentID == params.AgentID {
			continue
		}
		if overlaps(other.PhoneKeys, lead.PhoneKeys) {
			return leadsrepo.Lead{}, leadsrepo.ErrConflict
		}
	}

	agentID := params.AgentID
	assignedAt := params.AssignedAt
	lead.AssignedAgentID = &agentID
	lead.AssignedBy = cloneID(params.AssignedBy)
	lead.AssignedAt = &assignedAt
	lead.UpdatedAt = r.s.now()
	return cloneLead(lead), nil
}

func (r *LeadRepository) SetStatus(_ context.Context, id uuid.UUID, from, to string) (leadsrepo.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	lead, ok := r.s.leads[id]
	if !ok {
		return leadsrepo.Lead{}, leadsrepo.ErrNotFound
	}
	if lead.Status != from {
		return leadsrepo.Lead{}, leadsrepo.ErrConflict
	}
	lead.Status = to
	lead.UpdatedAt = r.s.now()
	return cloneLead(lead), nil
}

func (r *LeadRepository) AppendFeeEntry(_ context.Context, leadID uuid.UUID, expectedVersion int64, entry leadsrepo.NewFeeEntry) (leadsrepo.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	lead, ok := r.s.leads[leadID]
	if !ok {
		return leadsrepo.Lead{}, leadsrepo.ErrNotFound
	}
	if lead.LedgerVersion != expectedVersion {
		return leadsrepo.Lead{}, leadsrepo.ErrConflict
	}

	now := r.s.now()
	lead.FeeEntries = append(lead.FeeEntries, domain.FeeEntry{
		ID:          uuid.New(),
		Buckets:     entry.Buckets,
		Description: entry.Description,
		CreatedBy:   cloneID(entry.CreatedBy),
		CreatedAt:   now,
	})
	lead.ClaimSummary.Total = domain.LedgerTotal(lead.FeeEntries)
	lead.LedgerVersion++
	lead.UpdatedAt = now
	return cloneLead(lead), nil
}

func (r *LeadRepository) SaveLedger(_ context.Context, leadID uuid.UUID, expectedVersion int64, entries []domain.FeeEntry) (leadsrepo.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	lead, ok := r.s.leads[leadID]
	if !ok {
		return leadsrepo.Lead{}, leadsrepo.ErrNotFound
	}
	if lead.LedgerVersion != expectedVersion {
		return leadsrepo.Lead{}, leadsrepo.ErrConflict
	}

	byID := make(map[uuid.UUID]domain.FeeBuckets, len(entries))
	for _, e := range entries {
		byID[e.ID] = e.Buckets
	}
	for i := range lead.FeeEntries {
		if buckets, ok := byID[lead.FeeEntries[i].ID]; ok {
			lead.FeeEntries[i].Buckets = buckets
		}
	}
	lead.ClaimSummary.Total = domain.LedgerTotal(lead.FeeEntries)
	lead.LedgerVersion++
	lead.UpdatedAt = r.s.now()
	return cloneLead(lead), nil
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func overlaps(a, b []string) bool {
	for _, k := range a {
		if containsKey(b, k) {
			return true
		}
	}
	return false
}
