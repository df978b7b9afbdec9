// Package management handles the lead lifecycle outside batch assignment:
// single-lead creation through the round-robin cursor, fee entries,
// closing, reads and ownership lookups.
package management

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	agentsrepo "leaddesk_backend/internal/agents/repository"
	"leaddesk_backend/internal/events"
	"leaddesk_backend/internal/leads/assignment"
	"leaddesk_backend/internal/leads/domain"
	"leaddesk_backend/internal/leads/repository"
	"leaddesk_backend/internal/leads/transport"
	"leaddesk_backend/platform/apperr"
	"leaddesk_backend/platform/logger"
	"leaddesk_backend/platform/phone"
	"leaddesk_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	opCreate      = "leads.management.create"
	opAddFeeEntry = "leads.management.add_fee_entry"
	opClose       = "leads.management.close"

	ledgerRetries = 3
)

// Repository defines the data access interface needed by the management service.
// This is a consumer-driven interface - only what management needs.
type Repository interface {
	repository.LeadReader
	repository.LeadWriter
	repository.OwnershipFinder
	repository.LedgerStore
}

type AgentStore interface {
	agentsrepo.LoadCounter
}

// Cursor hands out the next agent in rotation.
type Cursor interface {
	Next(ctx context.Context) (uuid.UUID, bool, error)
}

// Service handles lead management operations.
type Service struct {
	repo     Repository
	agents   AgentStore
	cursor   Cursor
	resolver *assignment.Resolver
	eventBus events.Bus
	log      *logger.Logger
	now      func() time.Time
}

// New creates a new lead management service.
func New(repo Repository, agents AgentStore, cursor Cursor, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		agents:   agents,
		cursor:   cursor,
		resolver: assignment.NewResolver(repo),
		eventBus: eventBus,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new lead and hands it to the next agent in rotation.
// Phone ownership is not consulted on this path. When no agent is
// assignable the lead is stored unassigned.
func (s *Service) Create(ctx context.Context, req transport.CreateLeadRequest, actorID *uuid.UUID) (transport.LeadResponse, error) {
	primary := strings.TrimSpace(req.Phone)
	if phone.Normalize(primary) == "" {
		return transport.LeadResponse{}, apperr.Validation("phone is required").WithOp(opCreate)
	}

	extras := make([]string, 0, len(req.Phones))
	for _, p := range req.Phones {
		if p = strings.TrimSpace(p); p != "" {
			extras = append(extras, p)
		}
	}

	params := repository.CreateLeadParams{
		FirstName: sanitize.Text(req.FirstName),
		LastName:  sanitize.Text(req.LastName),
		Phone:     primary,
		Phones:    extras,
		PhoneKeys: phone.NormalizeAll(append([]string{primary}, extras...)...),
	}

	agentID, ok, err := s.cursor.Next(ctx)
	if err != nil {
		return transport.LeadResponse{}, apperr.Persistence("advance round-robin cursor", err).WithOp(opCreate)
	}
	assignedAt := s.now()
	if ok {
		params.AssignedAgentID = &agentID
		params.AssignedBy = actorID
		params.AssignedAt = &assignedAt
	}

	lead, err := s.repo.Create(ctx, params)
	if err != nil {
		return transport.LeadResponse{}, apperr.Persistence("create lead", err).WithOp(opCreate)
	}

	if !ok {
		if s.log != nil {
			s.log.Warn("lead created without an assignable agent", "leadId", lead.ID)
		}
		return ToLeadResponse(lead), nil
	}

	if err := s.agents.IncrementLoad(ctx, agentID, 1); err != nil {
		return ToLeadResponse(lead), apperr.Persistence("update agent counters", err).WithOp(opCreate)
	}

	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.LeadsAssigned{
			BaseEvent:  events.NewBaseEvent(),
			AgentID:    agentID,
			LeadIDs:    []uuid.UUID{lead.ID},
			AssignedBy: actorID,
			SingleLead: true,
			AssignedAt: assignedAt,
		})
	}

	return ToLeadResponse(lead), nil
}

// GetByID retrieves a lead with its ledger.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (transport.LeadResponse, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.LeadResponse{}, mapLeadErr(err, "leads.management.get")
	}
	return ToLeadResponse(lead), nil
}

// List retrieves a paginated list of leads.
func (s *Service) List(ctx context.Context, req transport.ListLeadsRequest) (transport.LeadListResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	params := repository.ListParams{
		PhoneKey: phone.Normalize(req.Phone),
		Offset:   (req.Page - 1) * req.PageSize,
		Limit:    req.PageSize,
	}
	if req.AssignedAgentID != "" {
		agentID, err := uuid.Parse(req.AssignedAgentID)
		if err != nil {
			return transport.LeadListResponse{}, apperr.Validation("invalid assignedAgentId")
		}
		params.AssignedAgentID = &agentID
	}
	if req.Status != nil {
		status := string(*req.Status)
		params.Status = &status
	}

	leads, total, err := s.repo.List(ctx, params)
	if err != nil {
		return transport.LeadListResponse{}, apperr.Persistence("list leads", err)
	}

	items := make([]transport.LeadResponse, len(leads))
	for i, lead := range leads {
		items[i] = ToLeadResponse(lead)
	}

	totalPages := (total + req.PageSize - 1) / req.PageSize

	return transport.LeadListResponse{
		Items:      items,
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: totalPages,
	}, nil
}

// AddFeeEntry appends a charge to the end of the lead's ledger.
func (s *Service) AddFeeEntry(ctx context.Context, leadID uuid.UUID, req transport.AddFeeEntryRequest, actorID *uuid.UUID) (transport.LeadResponse, error) {
	buckets := domain.FeeBuckets{
		Government:   req.Government.Round(2),
		Professional: req.Professional.Round(2),
		Stamp:        req.Stamp.Round(2),
		Other:        req.Other.Round(2),
	}
	if err := buckets.Validate(); err != nil {
		return transport.LeadResponse{}, apperr.Validation(err.Error()).WithOp(opAddFeeEntry)
	}
	if !buckets.Total().IsPositive() {
		return transport.LeadResponse{}, apperr.Validation("fee entry must charge a positive amount").WithOp(opAddFeeEntry)
	}
	entry := repository.NewFeeEntry{
		Buckets:     buckets,
		Description: sanitize.Text(req.Description),
		CreatedBy:   actorID,
	}

	for attempt := 0; attempt < ledgerRetries; attempt++ {
		lead, err := s.repo.GetByID(ctx, leadID)
		if err != nil {
			return transport.LeadResponse{}, mapLeadErr(err, opAddFeeEntry)
		}
		if domain.IsTerminalStatus(lead.Status) {
			return transport.LeadResponse{}, apperr.Precondition(fmt.Sprintf("lead %s is %s", lead.ID, lead.Status)).
				WithOp(opAddFeeEntry).
				WithCode(apperr.CodeInvalidTransition)
		}

		updated, err := s.repo.AppendFeeEntry(ctx, leadID, lead.LedgerVersion, entry)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return transport.LeadResponse{}, mapLeadErr(err, opAddFeeEntry)
		}
		return ToLeadResponse(updated), nil
	}

	return transport.LeadResponse{}, apperr.Conflict("lead ledger changed concurrently, retry").WithOp(opAddFeeEntry)
}

// Close marks an open lead closed and releases it from the owner's pending
// count. Agents may only close their own leads.
func (s *Service) Close(ctx context.Context, leadID uuid.UUID, actorID uuid.UUID, isAdmin bool) (transport.LeadResponse, error) {
	lead, err := s.repo.GetByID(ctx, leadID)
	if err != nil {
		return transport.LeadResponse{}, mapLeadErr(err, opClose)
	}
	if !isAdmin && !lead.IsAssignedTo(actorID) {
		return transport.LeadResponse{}, apperr.Forbidden("lead is not assigned to you").
			WithOp(opClose).
			WithCode(apperr.CodeNotYourLead)
	}
	if reason := domain.ValidateStatusTransition(lead.Status, domain.LeadStatusClosed); reason != "" {
		return transport.LeadResponse{}, apperr.Precondition(reason).
			WithOp(opClose).
			WithCode(apperr.CodeInvalidTransition)
	}

	closed, err := s.repo.SetStatus(ctx, leadID, domain.LeadStatusOpen, domain.LeadStatusClosed)
	if errors.Is(err, repository.ErrConflict) {
		return transport.LeadResponse{}, apperr.Precondition(fmt.Sprintf("lead %s is already closed", leadID)).
			WithOp(opClose).
			WithCode(apperr.CodeInvalidTransition)
	}
	if err != nil {
		return transport.LeadResponse{}, mapLeadErr(err, opClose)
	}

	if closed.AssignedAgentID != nil {
		err := s.agents.DecrementPending(ctx, *closed.AssignedAgentID)
		switch {
		case errors.Is(err, agentsrepo.ErrNoPendingLeads):
			if s.log != nil {
				s.log.Warn("pending counter already at zero", "agentId", *closed.AssignedAgentID, "leadId", leadID)
			}
		case err != nil:
			return ToLeadResponse(closed), apperr.Persistence("update agent counters", err).WithOp(opClose)
		}
	}

	return ToLeadResponse(closed), nil
}

// LookupOwner reports which agent, if any, owns a phone number.
func (s *Service) LookupOwner(ctx context.Context, number string) (transport.OwnerLookupResponse, error) {
	key := phone.Normalize(number)
	if key == "" {
		return transport.OwnerLookupResponse{}, apperr.Validation("phone is required")
	}

	owner, found, err := s.resolver.Resolve(ctx, number)
	if err != nil {
		return transport.OwnerLookupResponse{}, apperr.Persistence("resolve phone ownership", err)
	}

	resp := transport.OwnerLookupResponse{Phone: key, Owned: found}
	if found {
		resp.AgentID = &owner.AgentID
		resp.LeadID = &owner.LeadID
	}
	return resp, nil
}

func mapLeadErr(err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("lead not found").WithOp(op)
	}
	return apperr.Persistence("lead store", err).WithOp(op)
}
