package transport

import (
	"time"

	"leaddesk_backend/internal/payments/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request DTOs
type RecordPaymentRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Method     domain.Method   `json:"method" validate:"required,oneof=cash bank"`
	Reference  string          `json:"reference,omitempty" validate:"max=200"`
	ReceiptURL string          `json:"receiptUrl,omitempty" validate:"omitempty,url,max=500"`
	LeadID     *uuid.UUID      `json:"leadId,omitempty"`
}

type ClaimPaymentRequest struct {
	LeadID uuid.UUID `json:"leadId" validate:"required"`
}

type ReviewClaimRequest struct {
	Action domain.ReviewAction `json:"action" validate:"required,oneof=verify reject"`
	Notes  string              `json:"notes,omitempty" validate:"max=1000"`
}

type ListPaymentsRequest struct {
	Status    string `form:"status" validate:"omitempty,oneof=pending claimed verified rejected"`
	LeadID    string `form:"leadId" validate:"omitempty,uuid"`
	ClaimedBy string `form:"claimedBy" validate:"omitempty,uuid"`
	Page      int    `form:"page" validate:"min=0"`
	PageSize  int    `form:"pageSize" validate:"min=0,max=100"`
}

// Response DTOs
type PaymentResponse struct {
	ID            uuid.UUID       `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        domain.Method   `json:"method"`
	Reference     string          `json:"reference,omitempty"`
	ReceiptURL    string          `json:"receiptUrl,omitempty"`
	LeadID        *uuid.UUID      `json:"leadId,omitempty"`
	Status        domain.Status   `json:"status"`
	ClaimedBy     *uuid.UUID      `json:"claimedBy,omitempty"`
	ClaimedAmount decimal.Decimal `json:"claimedAmount"`
	ClaimedAt     *time.Time      `json:"claimedAt,omitempty"`
	ReviewedBy    *uuid.UUID      `json:"reviewedBy,omitempty"`
	ReviewedAt    *time.Time      `json:"reviewedAt,omitempty"`
	ReviewNotes   string          `json:"reviewNotes,omitempty"`
	ParentID      *uuid.UUID      `json:"parentId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type PaymentListResponse struct {
	Items      []PaymentResponse `json:"items"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalPages int               `json:"totalPages"`
}

type ClaimResponse struct {
	Payment        PaymentResponse  `json:"payment"`
	ClaimedAmount  decimal.Decimal  `json:"claimedAmount"`
	Remainder      *PaymentResponse `json:"remainder,omitempty"`
	LeadClaimTotal decimal.Decimal  `json:"leadClaimTotal"`
}

func ToPaymentResponse(p domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		Amount:        p.Amount,
		Method:        p.Method,
		Reference:     p.Reference,
		ReceiptURL:    p.ReceiptURL,
		LeadID:        p.LeadID,
		Status:        p.Status,
		ClaimedBy:     p.ClaimedBy,
		ClaimedAmount: p.ClaimedAmount,
		ClaimedAt:     p.ClaimedAt,
		ReviewedBy:    p.ReviewedBy,
		ReviewedAt:    p.ReviewedAt,
		ReviewNotes:   p.ReviewNotes,
		ParentID:      p.ParentID,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
