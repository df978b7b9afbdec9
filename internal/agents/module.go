// Package agents provides the agent directory bounded context module.
package agents

import (
	"leaddesk_backend/internal/agents/handler"
	"leaddesk_backend/internal/agents/repository"
	"leaddesk_backend/internal/agents/service"
	apphttp "leaddesk_backend/internal/http"
	"leaddesk_backend/platform/httpkit"
	"leaddesk_backend/platform/logger"
	"leaddesk_backend/platform/validator"
)

// Module is the agents bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

func NewModule(repo repository.AgentsRepository, rotation service.RotationResetter, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(repo, rotation, log)
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "agents"
}

// Service returns the agent directory service for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts agent routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	agentsGroup := ctx.Protected.Group("/agents")
	m.handler.RegisterRoutes(agentsGroup)
	m.handler.RegisterAdminRoutes(agentsGroup.Group("", httpkit.RequireRole(httpkit.RoleAdmin)))
}

var _ apphttp.Module = (*Module)(nil)
