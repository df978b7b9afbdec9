// Package payments provides the pending-payment and claim bounded context module.
package payments

import (
	agentsrepo "leaddesk_backend/internal/agents/repository"
	"leaddesk_backend/internal/events"
	apphttp "leaddesk_backend/internal/http"
	leadsrepo "leaddesk_backend/internal/leads/repository"
	"leaddesk_backend/internal/payments/claims"
	"leaddesk_backend/internal/payments/handler"
	"leaddesk_backend/internal/payments/repository"
	"leaddesk_backend/platform/config"
	"leaddesk_backend/platform/httpkit"
	"leaddesk_backend/platform/logger"
	"leaddesk_backend/platform/validator"
)

// Module is the payments bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	claims  *claims.Service
}

func NewModule(repo repository.PaymentsRepository, leads leadsrepo.LeadsRepository, agents agentsrepo.AgentsRepository, eventBus events.Bus, cfg config.ClaimConfig, val *validator.Validator, log *logger.Logger) *Module {
	svc := claims.New(repo, leads, agents, eventBus, cfg.GetClaimMinimum(), log)
	return &Module{
		handler: handler.New(svc, val),
		claims:  svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "payments"
}

// ClaimsService returns the claim allocator for external use.
func (m *Module) ClaimsService() *claims.Service {
	return m.claims
}

// RegisterRoutes mounts payment routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	paymentsGroup := ctx.Protected.Group("/payments")
	m.handler.RegisterRoutes(paymentsGroup, ctx.WriteLimit())
	m.handler.RegisterAdminRoutes(paymentsGroup.Group("", httpkit.RequireRole(httpkit.RoleAdmin), ctx.WriteLimit()))
}

var _ apphttp.Module = (*Module)(nil)
