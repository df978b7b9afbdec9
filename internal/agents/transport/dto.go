package transport

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateAgentRequest struct {
	// ID must match the subject of the agent's access tokens.
	ID     uuid.UUID `json:"id" validate:"required"`
	Name   string    `json:"name" validate:"required,min=1,max=100"`
	Email  string    `json:"email" validate:"required,email"`
	Status string    `json:"status,omitempty" validate:"omitempty,oneof=online offline on_leave blocked"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=online offline on_leave blocked"`
}

type SetActiveRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

type AgentResponse struct {
	ID                   uuid.UUID       `json:"id"`
	Name                 string          `json:"name"`
	Email                string          `json:"email"`
	IsActive             bool            `json:"isActive"`
	Status               string          `json:"status"`
	Assignable           bool            `json:"assignable"`
	LeadsAssigned        int             `json:"leadsAssigned"`
	LeadsPending         int             `json:"leadsPending"`
	CumulativeCollection decimal.Decimal `json:"cumulativeCollection"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

type AgentListResponse struct {
	Items []AgentResponse `json:"items"`
	Total int             `json:"total"`
}
