package handler

import (
	"net/http"

	"leaddesk_backend/internal/leads/assignment"
	"leaddesk_backend/internal/leads/management"
	"leaddesk_backend/internal/leads/transport"
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
	mgmt      *management.Service
	allocator *assignment.Allocator
	val       *validator.Validator
}

func New(mgmt *management.Service, allocator *assignment.Allocator, val *validator.Validator) *Handler {
	return &Handler{mgmt: mgmt, allocator: allocator, val: val}
}

// RegisterRoutes mounts routes open to every authenticated user.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/owner", h.LookupOwner)
	rg.GET("/:id", h.GetByID)
	rg.POST("/:id/fees", h.AddFeeEntry)
	rg.POST("/:id/close", h.Close)
}

// RegisterAdminRoutes mounts the batch assignment route; rg must already
// require the admin role.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/assign", h.Assign)
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateLeadRequest
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

	lead, err := h.mgmt.Create(c.Request.Context(), req, &actorID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, lead)
}

func (h *Handler) Assign(c *gin.Context) {
	var req transport.AssignLeadsRequest
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

	result, err := h.allocator.Assign(c.Request.Context(), assignment.AssignRequest{
		LeadIDs:     req.LeadIDs,
		AgentIDs:    req.AgentIDs,
		RequestedBy: &actorID,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	lead, err := h.mgmt.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, lead)
}

// List scopes agents to their own leads; admins may filter freely.
func (h *Handler) List(c *gin.Context) {
	var req transport.ListLeadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
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
	if !httpkit.IsAdmin(identity) {
		req.AssignedAgentID = identity.UserID().String()
	}

	result, err := h.mgmt.List(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

func (h *Handler) AddFeeEntry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.AddFeeEntryRequest
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

	lead, err := h.mgmt.AddFeeEntry(c.Request.Context(), id, req, &actorID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, lead)
}

func (h *Handler) Close(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	lead, err := h.mgmt.Close(c.Request.Context(), id, identity.UserID(), httpkit.IsAdmin(identity))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, lead)
}

func (h *Handler) LookupOwner(c *gin.Context) {
	number := c.Query("phone")
	if number == "" {
		httpkit.Error(c, http.StatusBadRequest, "phone is required", nil)
		return
	}

	result, err := h.mgmt.LookupOwner(c.Request.Context(), number)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}
