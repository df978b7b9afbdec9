// Package service holds the agent directory: registration, status changes
// and the counters other modules maintain.
package service

import (
	"context"
	"errors"
	"fmt"

	"leaddesk_backend/internal/agents/repository"
	"leaddesk_backend/internal/agents/transport"
	"leaddesk_backend/platform/apperr"
	"leaddesk_backend/platform/logger"
	"leaddesk_backend/platform/sanitize"

	"github.com/google/uuid"
)

// RotationResetter restarts the single-lead rotation.
type RotationResetter interface {
	Reset(ctx context.Context) error
}

type Service struct {
	repo     repository.AgentsRepository
	rotation RotationResetter
	log      *logger.Logger
}

func New(repo repository.AgentsRepository, rotation RotationResetter, log *logger.Logger) *Service {
	return &Service{repo: repo, rotation: rotation, log: log}
}

func (s *Service) Create(ctx context.Context, req transport.CreateAgentRequest) (transport.AgentResponse, error) {
	if req.ID == uuid.Nil {
		return transport.AgentResponse{}, apperr.Validation("id is required")
	}
	if req.Status != "" && !repository.IsKnownStatus(req.Status) {
		return transport.AgentResponse{}, apperr.Validation(fmt.Sprintf("unknown agent status %q", req.Status))
	}

	agent, err := s.repo.Create(ctx, repository.CreateAgentParams{
		ID:     req.ID,
		Name:   sanitize.Text(req.Name),
		Email:  req.Email,
		Status: req.Status,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return transport.AgentResponse{}, apperr.Conflict("an agent with this id or email already exists")
	}
	if err != nil {
		return transport.AgentResponse{}, apperr.Persistence("create agent", err)
	}
	return toResponse(agent), nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (transport.AgentResponse, error) {
	agent, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.AgentResponse{}, mapErr(err)
	}
	return toResponse(agent), nil
}

func (s *Service) List(ctx context.Context) (transport.AgentListResponse, error) {
	agents, err := s.repo.List(ctx)
	if err != nil {
		return transport.AgentListResponse{}, apperr.Persistence("list agents", err)
	}

	items := make([]transport.AgentResponse, len(agents))
	for i, agent := range agents {
		items[i] = toResponse(agent)
	}
	return transport.AgentListResponse{Items: items, Total: len(items)}, nil
}

// UpdateStatus changes an agent's availability. Agents may change their own
// status but only an admin can block or unblock.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string, actorID uuid.UUID, isAdmin bool) (transport.AgentResponse, error) {
	if !repository.IsKnownStatus(status) {
		return transport.AgentResponse{}, apperr.Validation(fmt.Sprintf("unknown agent status %q", status))
	}
	if !isAdmin {
		if actorID != id {
			return transport.AgentResponse{}, apperr.Forbidden("agents may only change their own status")
		}
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return transport.AgentResponse{}, mapErr(err)
		}
		if current.Status == repository.StatusBlocked || status == repository.StatusBlocked {
			return transport.AgentResponse{}, apperr.Forbidden("only an admin can block or unblock an agent")
		}
	}

	agent, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return transport.AgentResponse{}, mapErr(err)
	}
	if s.log != nil {
		s.log.Info("agent status changed", "agentId", id, "status", status, "assignable", agent.IsAssignable())
	}
	return toResponse(agent), nil
}

func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (transport.AgentResponse, error) {
	agent, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return transport.AgentResponse{}, mapErr(err)
	}
	return toResponse(agent), nil
}

// ResetRotation starts the single-lead rotation over at the first
// assignable agent.
func (s *Service) ResetRotation(ctx context.Context) error {
	if s.rotation == nil {
		return nil
	}
	if err := s.rotation.Reset(ctx); err != nil {
		return apperr.Persistence("reset rotation", err)
	}
	return nil
}

func toResponse(a repository.Agent) transport.AgentResponse {
	return transport.AgentResponse{
		ID:                   a.ID,
		Name:                 a.Name,
		Email:                a.Email,
		IsActive:             a.IsActive,
		Status:               a.Status,
		Assignable:           a.IsAssignable(),
		LeadsAssigned:        a.LeadsAssigned,
		LeadsPending:         a.LeadsPending,
		CumulativeCollection: a.CumulativeCollection,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
}

func mapErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("agent not found")
	}
	return apperr.Persistence("agent store", err)
}
