package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"dealdesk/internal/lifecycle"
	"dealdesk/internal/middleware"
	"dealdesk/internal/pricing"
	"dealdesk/internal/repository"
	"dealdesk/internal/service"
	"dealdesk/pkg/pagination"
	"dealdesk/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActionPayload is the optional body of POST /api/deals/{id}/actions/{action}.
// Each action reads only the fields its side effect needs.
type ActionPayload struct {
	Note           string           `json:"note"`
	QuoteID        string           `json:"quote_id"`
	FactoryID      string           `json:"factory_id"`
	AmountUsd      *decimal.Decimal `json:"amount_usd,omitempty" swaggertype:"string" example:"780"`
	AmountJpy      *int64           `json:"amount_jpy,omitempty"`
	Carrier        string           `json:"carrier"`
	TrackingNumber string           `json:"tracking_number"`
}

func (p ActionPayload) toRequest(action lifecycle.Action, actor service.Actor) (service.ActionRequest, error) {
	req := service.ActionRequest{
		Action:         action,
		Actor:          actor,
		Note:           strings.TrimSpace(p.Note),
		AmountUsd:      p.AmountUsd,
		AmountJpy:      p.AmountJpy,
		Carrier:        strings.TrimSpace(p.Carrier),
		TrackingNumber: strings.TrimSpace(p.TrackingNumber),
	}
	if p.QuoteID != "" {
		id, err := uuid.Parse(p.QuoteID)
		if err != nil {
			return req, &pricing.ValidationError{Field: "quote_id", Message: "must be a valid UUID"}
		}
		req.QuoteID = &id
	}
	if p.FactoryID != "" {
		id, err := uuid.Parse(p.FactoryID)
		if err != nil {
			return req, &pricing.ValidationError{Field: "factory_id", Message: "must be a valid UUID"}
		}
		req.FactoryID = &id
	}
	return req, nil
}

type DealHandler struct {
	dealService    service.DealService
	invoiceService service.InvoiceService
}

func NewDealHandler(dealService service.DealService, invoiceService service.InvoiceService) *DealHandler {
	return &DealHandler{dealService: dealService, invoiceService: invoiceService}
}

func (h *DealHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	router.GET("/api/statuses", h.ListStatuses)

	deals := router.Group("/api/deals")
	deals.Use(auth.RequireAuth())
	{
		deals.GET("", h.ListDeals)
		deals.POST("", h.CreateDeal)
		deals.GET("/:id", h.GetDeal)
		deals.GET("/:id/history", h.GetHistory)
		deals.GET("/:id/actions", h.GetAvailableActions)
		deals.POST("/:id/actions/:action", h.ApplyAction)
		deals.GET("/:id/factories", h.ListAssignments)
		deals.POST("/:id/factories", h.AssignFactory)
		deals.GET("/:id/settlement", h.GetSettlement)
	}

	invoices := router.Group("/api/invoices")
	invoices.Use(auth.RequireAuth(lifecycle.RoleAdmin, lifecycle.RoleAccounting))
	{
		invoices.GET("", h.ListInvoices)
	}
}

// ListStatuses returns the presentation table of the 25 deal statuses
// @Summary      List deal statuses
// @Tags         deals
// @Produce      json
// @Success      200  {object}  response.Response{data=[]lifecycle.StatusInfo}
// @Router       /api/statuses [get]
func (h *DealHandler) ListStatuses(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, lifecycle.AllStatuses()))
}

// ListDeals returns paginated deals
// @Summary      List deals
// @Tags         deals
// @Security     BearerAuth
// @Produce      json
// @Param        page       query     int     false  "Page number (default: 1)"
// @Param        limit      query     int     false  "Items per page (default: 20, max: 50)"
// @Param        status     query     string  false  "Filter by status code, e.g. M05"
// @Param        client_id  query     string  false  "Filter by client partner ID"
// @Param        search     query     string  false  "Search by code, title or category"
// @Success      200        {object}  response.Response{data=[]service.DealResponse}
// @Failure      400        {object}  response.Response
// @Router       /api/deals [get]
func (h *DealHandler) ListDeals(c *gin.Context) {
	p := pagination.ParseWith(c, pagination.Deals)

	filter := repository.DealFilter{Search: strings.TrimSpace(c.Query("search"))}
	if s := c.Query("status"); s != "" {
		status := lifecycle.Status(strings.ToUpper(s))
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, CodeValidation, "status: unknown deal status "+s))
			return
		}
		filter.Status = status
	}
	if raw := c.Query("client_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, CodeValidation, "client_id: must be a valid UUID"))
			return
		}
		filter.ClientID = &id
	}

	deals, total, err := h.dealService.ListDeals(c.Request.Context(), filter, p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, deals, p.Page, p.Limit, total))
}

// CreateDeal opens a new deal at M01
// @Summary      Create deal
// @Tags         deals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateDealRequest  true  "Deal payload"
// @Success      201      {object}  response.Response{data=service.DealResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/deals [post]
func (h *DealHandler) CreateDeal(c *gin.Context) {
	var req service.CreateDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	deal, err := h.dealService.CreateDeal(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, deal))
}

// GetDeal returns one deal with its status metadata
// @Summary      Get deal
// @Tags         deals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Deal ID"
// @Success      200  {object}  response.Response{data=service.DealResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/deals/{id} [get]
func (h *DealHandler) GetDeal(c *gin.Context) {
	deal, err := h.dealService.GetDeal(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, deal))
}

// GetHistory returns the append-only status history, oldest first
// @Summary      Deal status history
// @Tags         deals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Deal ID"
// @Success      200  {object}  response.Response{data=[]service.StatusHistoryResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/deals/{id}/history [get]
func (h *DealHandler) GetHistory(c *gin.Context) {
	history, err := h.dealService.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, history))
}

// GetAvailableActions lists the actions bound to the deal's current status for the caller's role
// @Summary      Available deal actions
// @Tags         deals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Deal ID"
// @Success      200  {object}  response.Response{data=[]service.AvailableAction}
// @Failure      404  {object}  response.Response
// @Router       /api/deals/{id}/actions [get]
func (h *DealHandler) GetAvailableActions(c *gin.Context) {
	actions, err := h.dealService.AvailableActions(c.Request.Context(), c.Param("id"), actorFrom(c).Role)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, actions))
}

// ApplyAction fires one lifecycle action against the deal
// @Summary      Apply deal action
// @Description  Runs the transition bound to (current status, action) atomically. 409 when the action is not valid from the current status or the deal changed concurrently, 422 when a precondition does not hold, 403 when the role may not fire it.
// @Tags         deals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true   "Deal ID"
// @Param        action   path      string                 true   "Action name, e.g. sendQuoteRequest"
// @Param        payload  body      handler.ActionPayload  false  "Action data"
// @Success      200      {object}  response.Response{data=service.ActionResult}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/deals/{id}/actions/{action} [post]
func (h *DealHandler) ApplyAction(c *gin.Context) {
	var payload ActionPayload
	// the body is optional
	if err := c.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
		badPayload(c, err)
		return
	}

	req, err := payload.toRequest(lifecycle.Action(c.Param("action")), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.dealService.ApplyAction(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ListAssignments returns the factories attached to the deal
// @Summary      List deal factories
// @Tags         deals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Deal ID"
// @Success      200  {object}  response.Response{data=[]service.AssignmentResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/deals/{id}/factories [get]
func (h *DealHandler) ListAssignments(c *gin.Context) {
	list, err := h.dealService.ListAssignments(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, list))
}

// AssignFactory attaches a candidate factory to the deal
// @Summary      Assign factory
// @Tags         deals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Deal ID"
// @Param        payload  body      service.AssignFactoryRequest  true  "Factory"
// @Success      201      {object}  response.Response{data=service.AssignmentResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/deals/{id}/factories [post]
func (h *DealHandler) AssignFactory(c *gin.Context) {
	var req service.AssignFactoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	a, err := h.dealService.AssignFactory(c.Request.Context(), c.Param("id"), req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, a))
}

// GetSettlement returns the invoice, payments and shipping record of a deal
// @Summary      Deal settlement
// @Tags         deals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Deal ID"
// @Success      200  {object}  response.Response{data=service.SettlementResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/deals/{id}/settlement [get]
func (h *DealHandler) GetSettlement(c *gin.Context) {
	s, err := h.invoiceService.Settlement(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, s))
}

// ListInvoices returns issued invoices, newest first
// @Summary      List invoices
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default: 1)"
// @Param        limit  query     int  false  "Items per page (default: 20)"
// @Success      200    {object}  response.Response{data=[]service.InvoiceResponse}
// @Router       /api/invoices [get]
func (h *DealHandler) ListInvoices(c *gin.Context) {
	p := pagination.Parse(c)

	invoices, total, err := h.invoiceService.ListInvoices(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, invoices, p.Page, p.Limit, total))
}
