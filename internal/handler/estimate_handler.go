package handler

import (
	"net/http"

	"dealdesk/internal/middleware"
	"dealdesk/internal/service"
	"dealdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

type EstimateHandler struct {
	estimateService service.EstimateService
}

func NewEstimateHandler(estimateService service.EstimateService) *EstimateHandler {
	return &EstimateHandler{estimateService: estimateService}
}

func (h *EstimateHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	router.POST("/api/estimates", auth.RequireAuth(), h.Estimate)
	router.POST("/api/deals/:id/estimates/adopt", auth.RequireAuth(), h.Adopt)
}

// Estimate ranks factories by the price their history predicts for a specification
// @Summary      Estimate factory prices
// @Description  An empty list means no factory has matching price history.
// @Tags         estimates
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.EstimateRequest  true  "Specification"
// @Success      200      {object}  response.Response{data=service.EstimateResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/estimates [post]
func (h *EstimateHandler) Estimate(c *gin.Context) {
	var req service.EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	res, err := h.estimateService.Estimate(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// Adopt turns one factory's estimate into the deal's first quote and jumps it to M06
// @Summary      Adopt estimate
// @Tags         estimates
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Deal ID"
// @Param        payload  body      service.AdoptEstimateRequest  true  "Factory and pricing terms"
// @Success      200      {object}  response.Response{data=service.ActionResult}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/deals/{id}/estimates/adopt [post]
func (h *EstimateHandler) Adopt(c *gin.Context) {
	var req service.AdoptEstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	res, err := h.estimateService.Adopt(c.Request.Context(), c.Param("id"), req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
