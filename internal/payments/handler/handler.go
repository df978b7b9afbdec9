package handler

import (
	"net/http"

	"leaddesk_backend/internal/payments/claims"
	"leaddesk_backend/internal/payments/domain"
	"leaddesk_backend/internal/payments/transport"
	"leaddesk_backend/platform/httpkit"
	"leaddesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type Handler struct {
	svc *claims.Service
	val *validator.Validator
}

func New(svc *claims.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts agent routes. Extra handlers run before Claim only.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, claimMiddleware ...gin.HandlerFunc) {
	rg.GET("", h.List)
	rg.GET("/:id", h.GetByID)
	rg.POST("/:id/claim", append(claimMiddleware, h.Claim)...)
}

func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Record)
	rg.POST("/:id/review", h.Review)
}

func (h *Handler) Record(c *gin.Context) {
	var req transport.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	actorID := identity.UserID()

	payment, err := h.svc.Record(c.Request.Context(), claims.RecordRequest{
		Amount:     req.Amount,
		Method:     req.Method,
		Reference:  req.Reference,
		ReceiptURL: req.ReceiptURL,
		LeadID:     req.LeadID,
		CreatedBy:  &actorID,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.ToPaymentResponse(payment))
}

func (h *Handler) Claim(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.ClaimPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.Claim(c.Request.Context(), claims.ClaimRequest{
		PaymentID: id,
		LeadID:    req.LeadID,
		AgentID:   identity.UserID(),
	})
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.ClaimResponse{
		Payment:        transport.ToPaymentResponse(result.Payment),
		ClaimedAmount:  result.ClaimedAmount,
		LeadClaimTotal: result.Lead.ClaimSummary.Total,
	}
	if result.Remainder != nil {
		remainder := transport.ToPaymentResponse(*result.Remainder)
		resp.Remainder = &remainder
	}
	httpkit.OK(c, resp)
}

func (h *Handler) Review(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.ReviewClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	payment, err := h.svc.Review(c.Request.Context(), claims.ReviewRequest{
		PaymentID:  id,
		Action:     req.Action,
		Notes:      req.Notes,
		ReviewerID: identity.UserID(),
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToPaymentResponse(payment))
}

func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	payment, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToPaymentResponse(payment))
}

func (h *Handler) List(c *gin.Context) {
	var req transport.ListPaymentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	listReq := claims.ListRequest{
		LeadID:    parseOptionalUUID(req.LeadID),
		ClaimedBy: parseOptionalUUID(req.ClaimedBy),
		Page:      req.Page,
		PageSize:  req.PageSize,
	}
	if req.Status != "" {
		status := domain.Status(req.Status)
		listReq.Status = &status
	}

	items, total, err := h.svc.List(c.Request.Context(), listReq)
	if httpkit.HandleError(c, err) {
		return
	}

	page, pageSize := listReq.Page, listReq.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	resp := transport.PaymentListResponse{
		Items:      make([]transport.PaymentResponse, len(items)),
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
	for i, p := range items {
		resp.Items[i] = transport.ToPaymentResponse(p)
	}
	httpkit.OK(c, resp)
}

// parseOptionalUUID expects a value already checked by the uuid validate tag.
func parseOptionalUUID(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
