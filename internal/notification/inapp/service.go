package inapp

import (
	"context"

	"leaddesk_backend/internal/notification/sse"
	"leaddesk_backend/platform/apperr"
	"leaddesk_backend/platform/logger"

	"github.com/google/uuid"
)

type Service struct {
	repo Store
	sse  *sse.Service
	log  *logger.Logger
}

func NewService(repo Store, log *logger.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
	}
}

// SetSSE injects the SSE service for live pushes.
func (s *Service) SetSSE(sseSvc *sse.Service) {
	s.sse = sseSvc
}

type SendParams struct {
	AgentID uuid.UUID
	Kind    string
	Title   string
	Content string
}

// Send persists the notification and pushes it via SSE if the agent is online.
func (s *Service) Send(ctx context.Context, p SendParams) error {
	if s == nil || s.repo == nil {
		return apperr.Internal("in-app notification service not configured")
	}

	notif, err := s.repo.Create(ctx, CreateParams{
		AgentID: p.AgentID,
		Kind:    p.Kind,
		Title:   p.Title,
		Content: p.Content,
	})
	if err != nil {
		if s.log != nil {
			s.log.Error("failed to persist in-app notification", "error", err, "agentId", p.AgentID)
		}
		return err
	}

	if s.sse != nil {
		s.sse.Publish(p.AgentID, sse.Event{
			Type:    sse.EventNotification,
			Message: notif.Title,
			Data:    notif,
		})
	}

	return nil
}

func (s *Service) List(ctx context.Context, agentID uuid.UUID, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	offset := (page - 1) * pageSize
	return s.repo.List(ctx, agentID, pageSize, offset)
}

func (s *Service) CountUnread(ctx context.Context, agentID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, agentID)
}

func (s *Service) MarkRead(ctx context.Context, agentID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, agentID, id)
}
