package handler

import (
	"bytes"
	"net/http"
	"strings"

	"dealdesk/internal/importer"
	"dealdesk/internal/lifecycle"
	"dealdesk/internal/middleware"
	"dealdesk/internal/repository"
	"dealdesk/internal/service"
	"dealdesk/pkg/pagination"
	"dealdesk/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	maxImportFileSize = 10 << 20
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type PriceRecordHandler struct {
	priceService service.PriceRecordService
}

func NewPriceRecordHandler(priceService service.PriceRecordService) *PriceRecordHandler {
	return &PriceRecordHandler{priceService: priceService}
}

func (h *PriceRecordHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	writers := auth.RequireAuth(lifecycle.RoleAdmin, lifecycle.RoleStaff)
	records := router.Group("/api/price-records")
	{
		records.GET("", auth.RequireAuth(), h.ListPriceRecords)
		records.GET("/template", auth.RequireAuth(), h.DownloadTemplate)
		records.POST("", writers, h.CreatePriceRecord)
		records.POST("/import", writers, h.ImportPriceRecords)
	}
}

// ListPriceRecords returns stored factory prices, newest first
// @Summary      List price records
// @Tags         price-records
// @Security     BearerAuth
// @Produce      json
// @Param        page        query     int     false  "Page number (default: 1)"
// @Param        limit       query     int     false  "Items per page (default: 50, max: 500)"
// @Param        category    query     string  false  "Category, case-insensitive"
// @Param        material    query     string  false  "Material, case-insensitive"
// @Param        factory_id  query     string  false  "Factory partner ID"
// @Success      200         {object}  response.Response{data=[]service.PriceRecordResponse}
// @Failure      400         {object}  response.Response
// @Router       /api/price-records [get]
func (h *PriceRecordHandler) ListPriceRecords(c *gin.Context) {
	p := pagination.ParseWith(c, pagination.PriceRecords)

	filter := repository.PriceRecordFilter{
		Category: strings.TrimSpace(c.Query("category")),
		Material: strings.TrimSpace(c.Query("material")),
	}
	if raw := c.Query("factory_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, CodeValidation, "factory_id: must be a valid UUID"))
			return
		}
		filter.FactoryID = &id
	}

	records, total, err := h.priceService.List(c.Request.Context(), filter, p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, records, p.Page, p.Limit, total))
}

// CreatePriceRecord stores one manually entered factory price
// @Summary      Create price record
// @Tags         price-records
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreatePriceRecordRequest  true  "Price record"
// @Success      201      {object}  response.Response{data=service.PriceRecordResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/price-records [post]
func (h *PriceRecordHandler) CreatePriceRecord(c *gin.Context) {
	var req service.CreatePriceRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	rec, err := h.priceService.Create(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, rec))
}

// ImportPriceRecords loads an xlsx sheet of factory prices, all rows or none
// @Summary      Import price records
// @Description  Columns: factory_code, category, material, size, printing, quantity, unit_price_usd, shipping_usd, recorded_at. A rejected import returns every bad row in data.
// @Tags         price-records
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "xlsx workbook"
// @Success      201   {object}  response.Response{data=service.ImportResult}
// @Failure      400   {object}  response.Response{data=[]importer.RowError}
// @Failure      413   {object}  response.Response
// @Router       /api/price-records/import [post]
func (h *PriceRecordHandler) ImportPriceRecords(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, CodeValidation, "file is required"))
		return
	}
	defer file.Close()

	if header.Size > maxImportFileSize {
		c.JSON(http.StatusRequestEntityTooLarge, response.ErrorWithCode(http.StatusRequestEntityTooLarge, CodeValidation, "file exceeds maximum size of 10MB"))
		return
	}

	res, err := h.priceService.ImportXLSX(c.Request.Context(), file, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// DownloadTemplate returns an empty import workbook with the header row filled in
// @Summary      Price import template
// @Tags         price-records
// @Security     BearerAuth
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success      200
// @Router       /api/price-records/template [get]
func (h *PriceRecordHandler) DownloadTemplate(c *gin.Context) {
	var buf bytes.Buffer
	if err := importer.WriteTemplate(&buf); err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="price-records.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
