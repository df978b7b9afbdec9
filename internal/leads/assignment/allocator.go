package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	agentsrepo "leaddesk_backend/internal/agents/repository"
	"leaddesk_backend/internal/events"
	"leaddesk_backend/internal/leads/repository"
	"leaddesk_backend/platform/apperr"
	"leaddesk_backend/platform/logger"
	"leaddesk_backend/platform/phone"

	"github.com/google/uuid"
)

const opAssign = "leads.assignment.assign"

// LeadStore is what the allocator needs from the lead repository.
type LeadStore interface {
	repository.LeadReader
	repository.OwnershipFinder
	repository.Assigner
}

// AgentStore is what the allocator needs from the agent repository.
type AgentStore interface {
	agentsrepo.AgentReader
	agentsrepo.LoadCounter
}

type AssignRequest struct {
	LeadIDs     []uuid.UUID
	AgentIDs    []uuid.UUID
	RequestedBy *uuid.UUID
}

// Assignment is one accepted lead.
type Assignment struct {
	LeadID  uuid.UUID `json:"leadId"`
	AgentID uuid.UUID `json:"agentId"`
	// Changed is false when the lead already belonged to AgentID and only
	// its administrative fields were refreshed.
	Changed bool `json:"changed"`
}

// Conflict is a lead excluded from the batch.
type Conflict struct {
	LeadID        uuid.UUID  `json:"leadId"`
	Phone         string     `json:"phone,omitempty"`
	OwnerAgentID  *uuid.UUID `json:"ownerAgentId,omitempty"`
	TargetAgentID uuid.UUID  `json:"targetAgentId"`
	Message       string     `json:"message"`
}

type AssignResult struct {
	Validated      int          `json:"validated"`
	NewAssignments []Assignment `json:"newAssignments"`
	Reassignments  []Assignment `json:"reassignments"`
	Conflicts      []Conflict   `json:"conflicts"`
}

type Allocator struct {
	leads    LeadStore
	agents   AgentStore
	resolver *Resolver
	eventBus events.Bus
	log      *logger.Logger
	now      func() time.Time
}

func NewAllocator(leads LeadStore, agents AgentStore, eventBus events.Bus, log *logger.Logger) *Allocator {
	return &Allocator{
		leads:    leads,
		agents:   agents,
		resolver: NewResolver(leads),
		eventBus: eventBus,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type plannedAssignment struct {
	lead       repository.Lead
	agentID    uuid.UUID
	reassigned bool
}

// Assign distributes the leads round-robin over the agents in input order.
// A lead whose number already belongs to an agent other than the one whose
// turn it is gets excluded as a conflict and does not consume the turn.
func (a *Allocator) Assign(ctx context.Context, req AssignRequest) (AssignResult, error) {
	leadIDs := dedupe(req.LeadIDs)
	agentIDs := dedupe(req.AgentIDs)
	if len(leadIDs) == 0 || len(agentIDs) == 0 {
		return AssignResult{}, apperr.Validation("no leads or agents").WithOp(opAssign)
	}

	leads, err := a.leads.GetByIDs(ctx, leadIDs)
	if err != nil {
		return AssignResult{}, apperr.Persistence("load leads", err).WithOp(opAssign)
	}
	agents, err := a.agents.GetByIDs(ctx, agentIDs)
	if err != nil {
		return AssignResult{}, apperr.Persistence("load agents", err).WithOp(opAssign)
	}
	if err := validateBatch(leadIDs, agentIDs, leads, agents); err != nil {
		return AssignResult{}, err
	}

	result := AssignResult{
		Validated:      len(leadIDs),
		NewAssignments: []Assignment{},
		Reassignments:  []Assignment{},
		Conflicts:      []Conflict{},
	}

	names := make(map[uuid.UUID]string, len(agents))
	for id, agent := range agents {
		names[id] = agent.Name
	}

	// Ownership decided earlier in this batch, before anything is written.
	batchOwners := make(map[string]uuid.UUID)
	plans := make([]plannedAssignment, 0, len(leadIDs))
	turn := 0
	for _, leadID := range leadIDs {
		lead := leads[leadID]
		target := agentIDs[turn%len(agentIDs)]
		keys := phone.NormalizeAll(lead.Numbers()...)

		ownerID, key, owned, err := a.ownership(ctx, batchOwners, keys, target)
		if err != nil {
			return AssignResult{}, apperr.Persistence("resolve phone ownership", err).WithOp(opAssign)
		}

		if owned && ownerID != target {
			result.Conflicts = append(result.Conflicts, a.conflict(ctx, lead.ID, key, ownerID, target, names))
			continue
		}

		for _, k := range keys {
			batchOwners[k] = target
		}
		plans = append(plans, plannedAssignment{lead: lead, agentID: target, reassigned: owned})
		turn++
	}

	assignedAt := a.now()
	received := make(map[uuid.UUID][]uuid.UUID)
	changedCount := make(map[uuid.UUID]int)
	reassignedCount := make(map[uuid.UUID]int)
	var writeErr error
	for _, plan := range plans {
		_, err := a.leads.AssignIfUnchanged(ctx, repository.AssignParams{
			LeadID:          plan.lead.ID,
			AgentID:         plan.agentID,
			AssignedBy:      req.RequestedBy,
			AssignedAt:      assignedAt,
			ExpectedAgentID: plan.lead.AssignedAgentID,
		})
		if errors.Is(err, repository.ErrConflict) {
			result.Conflicts = append(result.Conflicts, Conflict{
				LeadID:        plan.lead.ID,
				TargetAgentID: plan.agentID,
				Message:       fmt.Sprintf("lead %s changed or its number was assigned to another agent concurrently", plan.lead.ID),
			})
			if a.log != nil {
				a.log.OwnershipConflict(plan.lead.ID.String(), plan.lead.Phone, "", plan.agentID.String())
			}
			continue
		}
		if err != nil {
			writeErr = err
			break
		}

		assignment := Assignment{
			LeadID:  plan.lead.ID,
			AgentID: plan.agentID,
			Changed: !plan.lead.IsAssignedTo(plan.agentID),
		}
		if plan.reassigned {
			result.Reassignments = append(result.Reassignments, assignment)
			reassignedCount[plan.agentID]++
		} else {
			result.NewAssignments = append(result.NewAssignments, assignment)
		}
		received[plan.agentID] = append(received[plan.agentID], plan.lead.ID)
		if assignment.Changed {
			changedCount[plan.agentID]++
		}
	}

	// Counters follow the writes that did land, even when a later write failed.
	for _, agentID := range agentIDs {
		n := changedCount[agentID]
		if n == 0 {
			continue
		}
		if err := a.agents.IncrementLoad(ctx, agentID, n); err != nil && writeErr == nil {
			writeErr = err
		}
	}
	if writeErr != nil {
		return result, apperr.Persistence("write assignments", writeErr).WithOp(opAssign)
	}

	a.publish(ctx, agentIDs, received, reassignedCount, req.RequestedBy, assignedAt)
	return result, nil
}

func (a *Allocator) conflict(ctx context.Context, leadID uuid.UUID, key string, ownerID, target uuid.UUID, names map[uuid.UUID]string) Conflict {
	name, ok := names[ownerID]
	if !ok {
		if owner, err := a.agents.GetByID(ctx, ownerID); err == nil {
			name = owner.Name
			names[ownerID] = name
		}
	}
	if a.log != nil {
		a.log.OwnershipConflict(leadID.String(), key, ownerID.String(), target.String())
	}

	owner := ownerID
	return Conflict{
		LeadID:        leadID,
		Phone:         key,
		OwnerAgentID:  &owner,
		TargetAgentID: target,
		Message:       fmt.Sprintf("number %s already owned by agent %s (%s)", key, name, ownerID),
	}
}

func (a *Allocator) publish(ctx context.Context, agentIDs []uuid.UUID, received map[uuid.UUID][]uuid.UUID, reassigned map[uuid.UUID]int, by *uuid.UUID, at time.Time) {
	if a.eventBus == nil {
		return
	}
	for _, agentID := range agentIDs {
		leadIDs := received[agentID]
		if len(leadIDs) == 0 {
			continue
		}
		a.eventBus.Publish(ctx, events.LeadsAssigned{
			BaseEvent:  events.NewBaseEvent(),
			AgentID:    agentID,
			LeadIDs:    leadIDs,
			AssignedBy: by,
			Reassigned: reassigned[agentID],
			AssignedAt: at,
		})
	}
}

func validateBatch(leadIDs, agentIDs []uuid.UUID, leads map[uuid.UUID]repository.Lead, agents map[uuid.UUID]agentsrepo.Agent) error {
	var missingLeads, missingAgents, ineligible []uuid.UUID
	for _, id := range leadIDs {
		if _, ok := leads[id]; !ok {
			missingLeads = append(missingLeads, id)
		}
	}
	for _, id := range agentIDs {
		agent, ok := agents[id]
		switch {
		case !ok:
			missingAgents = append(missingAgents, id)
		case !agent.IsAssignable():
			ineligible = append(ineligible, id)
		}
	}
	if len(missingLeads) == 0 && len(missingAgents) == 0 && len(ineligible) == 0 {
		return nil
	}

	return apperr.Validation(fmt.Sprintf("batch rejected: missing leads %v, missing agents %v, inactive agents %v",
		missingLeads, missingAgents, ineligible)).
		WithOp(opAssign).
		WithDetails(map[string][]uuid.UUID{
			"missingLeadIds":     missingLeads,
			"missingAgentIds":    missingAgents,
			"ineligibleAgentIds": ineligible,
		})
}

// ownership checks every key of a lead, taking owners decided earlier in the
// batch before the store. It returns the first owner that is not target, or
// else target itself when any key is already held by it.
func (a *Allocator) ownership(ctx context.Context, batchOwners map[string]uuid.UUID, keys []string, target uuid.UUID) (uuid.UUID, string, bool, error) {
	var ownerID uuid.UUID
	var ownedKey string
	owned := false
	for _, k := range keys {
		agentID, ok := batchOwners[k]
		if !ok {
			owner, found, err := a.resolver.ResolveKey(ctx, k)
			if err != nil {
				return uuid.Nil, "", false, err
			}
			if !found {
				continue
			}
			agentID = owner.AgentID
		}
		if agentID != target {
			return agentID, k, true, nil
		}
		if !owned {
			ownerID, ownedKey, owned = agentID, k, true
		}
	}
	return ownerID, ownedKey, owned, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
