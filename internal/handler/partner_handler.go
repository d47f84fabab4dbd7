package handler

import (
	"net/http"
	"strings"

	"dealdesk/internal/lifecycle"
	"dealdesk/internal/middleware"
	"dealdesk/internal/service"
	"dealdesk/pkg/pagination"
	"dealdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

type PartnerHandler struct {
	partnerService service.PartnerService
}

func NewPartnerHandler(partnerService service.PartnerService) *PartnerHandler {
	return &PartnerHandler{partnerService: partnerService}
}

func (h *PartnerHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	writers := auth.RequireAuth(lifecycle.RoleAdmin, lifecycle.RoleStaff)
	partners := router.Group("/api/partners")
	{
		partners.GET("", auth.RequireAuth(), h.ListPartners)
		partners.GET("/:id", auth.RequireAuth(), h.GetPartner)
		partners.POST("", writers, h.CreatePartner)
		partners.PUT("/:id", writers, h.UpdatePartner)
		partners.DELETE("/:id", auth.RequireAuth(lifecycle.RoleAdmin), h.DeletePartner)
	}
}

// ListPartners returns paginated clients and factories with optional type/search filter
// @Summary      List partners
// @Tags         partners
// @Security     BearerAuth
// @Produce      json
// @Param        page    query     int     false  "Page number (default: 1)"
// @Param        limit   query     int     false  "Items per page (default: 20)"
// @Param        type    query     string  false  "Filter by type: CLIENT, FACTORY"
// @Param        search  query     string  false  "Search by code, name, company, email"
// @Success      200     {object}  response.Response
// @Router       /api/partners [get]
func (h *PartnerHandler) ListPartners(c *gin.Context) {
	p := pagination.Parse(c)

	partnerType := strings.ToUpper(c.Query("type"))
	search := strings.TrimSpace(c.Query("search"))

	partners, total, err := h.partnerService.GetPartners(c.Request.Context(), partnerType, search, p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, partners, p.Page, p.Limit, total))
}

// GetPartner returns one partner
// @Summary      Get partner
// @Tags         partners
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Partner ID"
// @Success      200  {object}  response.Response{data=service.PartnerResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/partners/{id} [get]
func (h *PartnerHandler) GetPartner(c *gin.Context) {
	partner, err := h.partnerService.GetPartner(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, partner))
}

// CreatePartner registers a client or factory
// @Summary      Create partner
// @Tags         partners
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  service.CreatePartnerRequest  true  "Partner payload"
// @Success      201  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/partners [post]
func (h *PartnerHandler) CreatePartner(c *gin.Context) {
	var req service.CreatePartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	partner, err := h.partnerService.CreatePartner(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, partner))
}

// UpdatePartner updates an existing partner
// @Summary      Update partner
// @Tags         partners
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                        true  "Partner ID"
// @Param        payload  body  service.UpdatePartnerRequest   true  "Update payload"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Router       /api/partners/{id} [put]
func (h *PartnerHandler) UpdatePartner(c *gin.Context) {
	id := c.Param("id")

	var req service.UpdatePartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	partner, err := h.partnerService.UpdatePartner(c.Request.Context(), id, req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, partner))
}

// DeletePartner soft deletes a partner
// @Summary      Delete partner
// @Tags         partners
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Partner ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Router       /api/partners/{id} [delete]
func (h *PartnerHandler) DeletePartner(c *gin.Context) {
	id := c.Param("id")

	if err := h.partnerService.DeletePartner(c.Request.Context(), id, actorFrom(c)); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Partner deleted successfully"}))
}
