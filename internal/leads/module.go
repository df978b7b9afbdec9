// Package leads provides the lead management bounded context module.
// This file defines the module that encapsulates all leads setup and route registration.
package leads

import (
	agentsrepo "leaddesk_backend/internal/agents/repository"
	"leaddesk_backend/internal/events"
	apphttp "leaddesk_backend/internal/http"
	"leaddesk_backend/internal/leads/assignment"
	"leaddesk_backend/internal/leads/handler"
	"leaddesk_backend/internal/leads/management"
	"leaddesk_backend/internal/leads/repository"
	"leaddesk_backend/platform/httpkit"
	"leaddesk_backend/platform/logger"
	"leaddesk_backend/platform/validator"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler    *handler.Handler
	management *management.Service
	allocator  *assignment.Allocator
}

// NewModule wires the lead services on top of the given stores. The cursor
// decides which counter backs single-lead rotation.
func NewModule(repo repository.LeadsRepository, agents agentsrepo.AgentsRepository, cursor *assignment.Cursor, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	mgmtSvc := management.New(repo, agents, cursor, eventBus, log)
	allocator := assignment.NewAllocator(repo, agents, eventBus, log)

	return &Module{
		handler:    handler.New(mgmtSvc, allocator, val),
		management: mgmtSvc,
		allocator:  allocator,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// ManagementService returns the lead management service for external use.
func (m *Module) ManagementService() *management.Service {
	return m.management
}

// Allocator returns the batch assignment allocator.
func (m *Module) Allocator() *assignment.Allocator {
	return m.allocator
}

// RegisterRoutes mounts leads routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// All leads routes require authentication
	leadsGroup := ctx.Protected.Group("/leads")
	m.handler.RegisterRoutes(leadsGroup)
	m.handler.RegisterAdminRoutes(leadsGroup.Group("", httpkit.RequireRole(httpkit.RoleAdmin), ctx.WriteLimit()))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
