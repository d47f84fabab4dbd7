package handler

import (
	"net/http"
	"time"

	"dealdesk/internal/lifecycle"
	"dealdesk/internal/middleware"
	"dealdesk/internal/model"
	"dealdesk/internal/service"
	"dealdesk/pkg/pagination"
	"dealdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

type TaxHandler struct {
	taxService service.TaxService
}

func NewTaxHandler(taxService service.TaxService) *TaxHandler {
	return &TaxHandler{taxService: taxService}
}

func (h *TaxHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	editors := auth.RequireAuth(lifecycle.RoleAdmin, lifecycle.RoleAccounting)
	tax := router.Group("/api/tax-rules")
	{
		tax.GET("", auth.RequireAuth(), h.GetTaxRules)
		tax.GET("/active", auth.RequireAuth(), h.GetActiveTaxRate)
		tax.POST("", editors, h.CreateTaxRule)
		tax.PUT("/:id", editors, h.UpdateTaxRule)
		tax.DELETE("/:id", editors, h.DeleteTaxRule)
	}
}

// GetTaxRules returns tax rules ordered by effective_from DESC
// @Summary      List tax rules
// @Tags         tax
// @Security     BearerAuth
// @Produce      json
// @Param        page      query     int     false  "Page number (default: 1)"
// @Param        limit     query     int     false  "Items per page (default: 20)"
// @Param        tax_type  query     string  false  "Filter by tax type, e.g. CONSUMPTION"
// @Success      200       {object}  response.Response{data=[]service.TaxRuleResponse}
// @Router       /api/tax-rules [get]
func (h *TaxHandler) GetTaxRules(c *gin.Context) {
	p := pagination.Parse(c)

	rules, total, err := h.taxService.GetTaxRules(c.Request.Context(), c.Query("tax_type"), p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, rules, p.Page, p.Limit, total))
}

// GetActiveTaxRate returns the rate in force on a date
// @Summary      Active tax rate
// @Tags         tax
// @Security     BearerAuth
// @Produce      json
// @Param        tax_type  query     string  false  "Tax type (default: CONSUMPTION)"
// @Param        date      query     string  false  "YYYY-MM-DD (default: today)"
// @Success      200       {object}  response.Response{data=service.ActiveTaxRateResponse}
// @Failure      400       {object}  response.Response
// @Router       /api/tax-rules/active [get]
func (h *TaxHandler) GetActiveTaxRate(c *gin.Context) {
	at := time.Now().UTC()
	if d := c.Query("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, CodeValidation, "date: must be YYYY-MM-DD"))
			return
		}
		at = parsed
	}

	rate, err := h.taxService.GetActiveTaxRate(c.Request.Context(), c.DefaultQuery("tax_type", model.TaxTypeConsumption), at)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, rate))
}

// CreateTaxRule creates a new tax rule entry
// @Summary      Create tax rule
// @Tags         tax
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.TaxRuleRequest  true  "Tax rule"
// @Success      201      {object}  response.Response{data=service.TaxRuleResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/tax-rules [post]
func (h *TaxHandler) CreateTaxRule(c *gin.Context) {
	var req service.TaxRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	rule, err := h.taxService.CreateTaxRule(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, rule))
}

// UpdateTaxRule replaces a tax rule's rate and validity window
// @Summary      Update tax rule
// @Tags         tax
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                  true  "Tax rule ID"
// @Param        payload  body      service.TaxRuleRequest  true  "Tax rule"
// @Success      200      {object}  response.Response{data=service.TaxRuleResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/tax-rules/{id} [put]
func (h *TaxHandler) UpdateTaxRule(c *gin.Context) {
	var req service.TaxRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	rule, err := h.taxService.UpdateTaxRule(c.Request.Context(), c.Param("id"), req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, rule))
}

// DeleteTaxRule removes a tax rule
// @Summary      Delete tax rule
// @Tags         tax
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Tax rule ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/tax-rules/{id} [delete]
func (h *TaxHandler) DeleteTaxRule(c *gin.Context) {
	if err := h.taxService.DeleteTaxRule(c.Request.Context(), c.Param("id"), actorFrom(c)); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Tax rule deleted successfully"}))
}
