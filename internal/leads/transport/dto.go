package transport

import (
	"time"

	"leaddesk_backend/internal/leads/assignment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LeadStatus string

const (
	LeadStatusOpen   LeadStatus = "open"
	LeadStatusClosed LeadStatus = "closed"
)

// Request DTOs
type CreateLeadRequest struct {
	FirstName string   `json:"firstName" validate:"required,min=1,max=100"`
	LastName  string   `json:"lastName" validate:"max=100"`
	Phone     string   `json:"phone" validate:"required,phone"`
	Phones    []string `json:"phones,omitempty" validate:"max=10,dive,phone"`
}

type AssignLeadsRequest struct {
	LeadIDs  []uuid.UUID `json:"leadIds" validate:"required,min=1,max=500"`
	AgentIDs []uuid.UUID `json:"agentIds" validate:"required,min=1,max=100"`
}

type AddFeeEntryRequest struct {
	Government   decimal.Decimal `json:"government"`
	Professional decimal.Decimal `json:"professional"`
	Stamp        decimal.Decimal `json:"stamp"`
	Other        decimal.Decimal `json:"other"`
	Description  string          `json:"description,omitempty" validate:"max=500"`
}

type ListLeadsRequest struct {
	AssignedAgentID string      `form:"assignedAgentId" validate:"omitempty,uuid"`
	Status          *LeadStatus `form:"status" validate:"omitempty,oneof=open closed"`
	Phone           string      `form:"phone" validate:"max=30"`
	Page            int         `form:"page" validate:"min=0"`
	PageSize        int         `form:"pageSize" validate:"min=0,max=100"`
}

// Response DTOs
type FeeEntryResponse struct {
	ID           uuid.UUID       `json:"id"`
	Government   decimal.Decimal `json:"government"`
	Professional decimal.Decimal `json:"professional"`
	Stamp        decimal.Decimal `json:"stamp"`
	Other        decimal.Decimal `json:"other"`
	Total        decimal.Decimal `json:"total"`
	Description  string          `json:"description,omitempty"`
	CreatedBy    *uuid.UUID      `json:"createdBy,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type LeadResponse struct {
	ID              uuid.UUID          `json:"id"`
	FirstName       string             `json:"firstName"`
	LastName        string             `json:"lastName"`
	Phone           string             `json:"phone"`
	Phones          []string           `json:"phones"`
	Status          LeadStatus         `json:"status"`
	AssignedAgentID *uuid.UUID         `json:"assignedAgentId,omitempty"`
	AssignedBy      *uuid.UUID         `json:"assignedBy,omitempty"`
	AssignedAt      *time.Time         `json:"assignedAt,omitempty"`
	FeeEntries      []FeeEntryResponse `json:"feeEntries"`
	ClaimTotal      decimal.Decimal    `json:"claimTotal"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

type LeadListResponse struct {
	Items      []LeadResponse `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

type OwnerLookupResponse struct {
	Phone   string     `json:"phone"`
	Owned   bool       `json:"owned"`
	AgentID *uuid.UUID `json:"agentId,omitempty"`
	LeadID  *uuid.UUID `json:"leadId,omitempty"`
}

type AssignLeadsResponse = assignment.AssignResult
