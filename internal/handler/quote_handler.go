package handler

import (
	"net/http"

	"dealdesk/internal/middleware"
	"dealdesk/internal/service"
	"dealdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

type QuoteHandler struct {
	quoteService service.QuoteService
}

func NewQuoteHandler(quoteService service.QuoteService) *QuoteHandler {
	return &QuoteHandler{quoteService: quoteService}
}

func (h *QuoteHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	quotes := router.Group("/api/quotes")
	quotes.Use(auth.RequireAuth())
	{
		quotes.POST("/calculate", h.Calculate)
		quotes.POST("/compare", h.Compare)
		quotes.POST("/quantities", h.CalculateQuantities)
	}

	dealQuotes := router.Group("/api/deals/:id/quotes")
	dealQuotes.Use(auth.RequireAuth())
	{
		dealQuotes.GET("", h.ListDealQuotes)
		dealQuotes.POST("", h.CreateDealQuote)
		dealQuotes.PUT("/:quoteId", h.UpdateDealQuote)
	}
}

// Calculate prices one quote without storing it
// @Summary      Calculate quote
// @Description  Runs the cost engine. cost_ratio and tax_rate default to the configured ratio and the consumption tax in force today.
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.QuoteCalcRequest  true  "Quote input"
// @Success      200      {object}  response.Response{data=pricing.QuoteResult}
// @Failure      400      {object}  response.Response
// @Router       /api/quotes/calculate [post]
func (h *QuoteHandler) Calculate(c *gin.Context) {
	var req service.QuoteCalcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	result, err := h.quoteService.Calculate(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Compare prices the same quote under every payment method
// @Summary      Compare payment methods
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.QuoteCalcRequest  true  "Quote input, payment_method is ignored"
// @Success      200      {object}  response.Response{data=pricing.PaymentComparison}
// @Failure      400      {object}  response.Response
// @Router       /api/quotes/compare [post]
func (h *QuoteHandler) Compare(c *gin.Context) {
	var req service.QuoteCalcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	result, err := h.quoteService.Compare(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// CalculateQuantities prices the same quote at several order quantities
// @Summary      Quantity break table
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.QuantitiesRequest  true  "Quote input plus quantities"
// @Success      200      {object}  response.Response{data=[]pricing.QuoteResult}
// @Failure      400      {object}  response.Response
// @Router       /api/quotes/quantities [post]
func (h *QuoteHandler) CalculateQuantities(c *gin.Context) {
	var req service.QuantitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	results, err := h.quoteService.CalculateQuantities(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, results))
}

// ListDealQuotes returns every quote recorded for a deal
// @Summary      List deal quotes
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Deal ID"
// @Success      200  {object}  response.Response{data=[]service.DealQuoteResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/deals/{id}/quotes [get]
func (h *QuoteHandler) ListDealQuotes(c *gin.Context) {
	quotes, err := h.quoteService.ListDealQuotes(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, quotes))
}

// CreateDealQuote prices and stores a factory's offer as a drafting quote
// @Summary      Create deal quote
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true  "Deal ID"
// @Param        payload  body      service.DealQuoteRequest  true  "Factory offer"
// @Success      201      {object}  response.Response{data=service.DealQuoteResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/deals/{id}/quotes [post]
func (h *QuoteHandler) CreateDealQuote(c *gin.Context) {
	var req service.DealQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	quote, err := h.quoteService.CreateDealQuote(c.Request.Context(), c.Param("id"), req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, quote))
}

// UpdateDealQuote re-prices a drafting or revising quote
// @Summary      Update deal quote
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true  "Deal ID"
// @Param        quoteId  path      string                    true  "Quote ID"
// @Param        payload  body      service.QuoteCalcRequest  true  "New figures, omitted fields are kept"
// @Success      200      {object}  response.Response{data=service.DealQuoteResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/deals/{id}/quotes/{quoteId} [put]
func (h *QuoteHandler) UpdateDealQuote(c *gin.Context) {
	var req service.QuoteCalcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	quote, err := h.quoteService.UpdateDealQuote(c.Request.Context(), c.Param("id"), c.Param("quoteId"), req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, quote))
}
