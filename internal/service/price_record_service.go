package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"dealdesk/internal/cache"
	"dealdesk/internal/importer"
	"dealdesk/internal/metrics"
	"dealdesk/internal/model"
	"dealdesk/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Price record sources
const (
	PriceSourceManual = "MANUAL"
	PriceSourceImport = "IMPORT"
)

// --- DTOs ---

type CreatePriceRecordRequest struct {
	FactoryID    string          `json:"factory_id" binding:"required"`
	Category     string          `json:"category" binding:"required"`
	Material     string          `json:"material" binding:"required"`
	Size         string          `json:"size"`
	Printing     string          `json:"printing"`
	Quantity     int64           `json:"quantity" binding:"required"`
	UnitPriceUsd decimal.Decimal `json:"unit_price_usd" swaggertype:"string" example:"2.35"`
	ShippingUsd  decimal.Decimal `json:"shipping_usd" swaggertype:"string" example:"150"`
	RecordedAt   string          `json:"recorded_at"` // YYYY-MM-DD, defaults to today
}

type PriceRecordResponse struct {
	ID           uuid.UUID       `json:"id"`
	FactoryID    uuid.UUID       `json:"factory_id"`
	FactoryCode  string          `json:"factory_code,omitempty"`
	FactoryName  string          `json:"factory_name,omitempty"`
	Category     string          `json:"category"`
	Material     string          `json:"material"`
	Size         string          `json:"size"`
	Printing     string          `json:"printing"`
	Quantity     int64           `json:"quantity"`
	UnitPriceUsd decimal.Decimal `json:"unit_price_usd"`
	ShippingUsd  decimal.Decimal `json:"shipping_usd"`
	RecordedAt   string          `json:"recorded_at"`
	Source       string          `json:"source"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ImportResult struct {
	Imported int `json:"imported"`
}

// --- Interface ---

type PriceRecordService interface {
	Create(ctx context.Context, req CreatePriceRecordRequest, actor Actor) (PriceRecordResponse, error)
	List(ctx context.Context, filter repository.PriceRecordFilter, page, limit int) ([]PriceRecordResponse, int64, error)
	ImportXLSX(ctx context.Context, r io.Reader, actor Actor) (ImportResult, error)
}

type priceRecordService struct {
	repo      repository.PriceRecordRepository
	partners  repository.PartnerRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	cache     *cache.Cache
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

func NewPriceRecordService(repo repository.PriceRecordRepository, partners repository.PartnerRepository, auditRepo repository.AuditRepository,
	txManager repository.TransactionManager, c *cache.Cache, m *metrics.Metrics, log *zap.Logger) PriceRecordService {
	if c == nil {
		c = cache.New(nil, 0)
	}
	return &priceRecordService{
		repo:      repo,
		partners:  partners,
		auditRepo: auditRepo,
		txManager: txManager,
		cache:     c,
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

func (s *priceRecordService) Create(ctx context.Context, req CreatePriceRecordRequest, actor Actor) (PriceRecordResponse, error) {
	factoryID, err := parseID("factory_id", req.FactoryID)
	if err != nil {
		return PriceRecordResponse{}, err
	}
	if strings.TrimSpace(req.Category) == "" {
		return PriceRecordResponse{}, invalid("category", "is required")
	}
	if strings.TrimSpace(req.Material) == "" {
		return PriceRecordResponse{}, invalid("material", "is required")
	}
	if req.Quantity <= 0 {
		return PriceRecordResponse{}, invalid("quantity", "must be a positive integer")
	}
	if !req.UnitPriceUsd.IsPositive() {
		return PriceRecordResponse{}, invalid("unit_price_usd", "must be greater than 0")
	}
	if req.ShippingUsd.IsNegative() {
		return PriceRecordResponse{}, invalid("shipping_usd", "must be >= 0")
	}
	recordedAt := s.now().UTC().Truncate(24 * time.Hour)
	if req.RecordedAt != "" {
		recordedAt, err = time.Parse("2006-01-02", req.RecordedAt)
		if err != nil {
			return PriceRecordResponse{}, invalid("recorded_at", "must be YYYY-MM-DD")
		}
	}

	record := &model.PriceRecord{
		FactoryID:    factoryID,
		Category:     strings.TrimSpace(req.Category),
		Material:     strings.TrimSpace(req.Material),
		Size:         strings.TrimSpace(req.Size),
		Printing:     strings.TrimSpace(req.Printing),
		Quantity:     req.Quantity,
		UnitPriceUsd: req.UnitPriceUsd,
		ShippingUsd:  req.ShippingUsd,
		RecordedAt:   recordedAt,
		Source:       PriceSourceManual,
		CreatedBy:    actor.idPtr(),
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		factory, err := s.partners.FindByID(txCtx, factoryID)
		if err != nil {
			return notFound(err, "factory")
		}
		if factory.Type != model.PartnerTypeFactory {
			return invalid("factory_id", "partner %s is not a factory", factory.Code)
		}
		if err := s.repo.Create(txCtx, record); err != nil {
			return fmt.Errorf("failed to create price record: %w", err)
		}
		record.Factory = factory
		return writeAudit(txCtx, s.auditRepo, actor.idPtr(), model.ActionCreatePriceRecord, record.ID.String(), factory.Code, req)
	})
	if err != nil {
		return PriceRecordResponse{}, err
	}

	s.cache.Bump(ctx, EstimateCacheNamespace)
	return toPriceRecordResponse(*record), nil
}

func (s *priceRecordService) List(ctx context.Context, filter repository.PriceRecordFilter, page, limit int) ([]PriceRecordResponse, int64, error) {
	records, total, err := s.repo.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch price records: %w", err)
	}
	res := make([]PriceRecordResponse, 0, len(records))
	for _, r := range records {
		res = append(res, toPriceRecordResponse(r))
	}
	return res, total, nil
}

// ImportXLSX stores every row of the workbook or none of them. Unknown factory
// codes are reported per row like any other parse failure.
func (s *priceRecordService) ImportXLSX(ctx context.Context, r io.Reader, actor Actor) (ImportResult, error) {
	rows, err := importer.ParseXLSX(r)
	if err != nil {
		s.metrics.RecordImport("rejected")
		var ie *importer.ImportError
		if errors.As(err, &ie) {
			return ImportResult{}, err
		}
		return ImportResult{}, invalid("file", "%v", err)
	}

	var records []model.PriceRecord
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		factories := map[string]*model.Partner{}
		var rowErrs []importer.RowError
		records = make([]model.PriceRecord, 0, len(rows))
		for _, row := range rows {
			code := strings.ToUpper(row.FactoryCode)
			factory, seen := factories[code]
			if !seen {
				factory, err = s.partners.FindByCode(txCtx, code)
				if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("failed to resolve factory %s: %w", code, err)
				}
				if factory != nil && factory.Type != model.PartnerTypeFactory {
					factory = nil
				}
				factories[code] = factory
			}
			if factory == nil {
				rowErrs = append(rowErrs, importer.RowError{Line: row.Line, Column: "factory_code", Message: fmt.Sprintf("unknown factory %q", row.FactoryCode)})
				continue
			}
			records = append(records, model.PriceRecord{
				FactoryID:    factory.ID,
				Category:     row.Category,
				Material:     row.Material,
				Size:         row.Size,
				Printing:     row.Printing,
				Quantity:     row.Quantity,
				UnitPriceUsd: row.UnitPriceUsd,
				ShippingUsd:  row.ShippingUsd,
				RecordedAt:   row.RecordedAt,
				Source:       PriceSourceImport,
				CreatedBy:    actor.idPtr(),
			})
		}
		if len(rowErrs) > 0 {
			return &importer.ImportError{Errors: rowErrs}
		}

		if err := s.repo.CreateBatch(txCtx, records); err != nil {
			return fmt.Errorf("failed to store price records: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor.idPtr(), model.ActionImportPrices, "", "", map[string]int{"rows": len(records)})
	})
	if err != nil {
		s.metrics.RecordImport("rejected")
		return ImportResult{}, err
	}

	s.cache.Bump(ctx, EstimateCacheNamespace)
	s.metrics.RecordImport("ok")
	s.log.Info("price records imported", zap.Int("rows", len(records)), zap.String("actor", actor.UserID.String()))
	return ImportResult{Imported: len(records)}, nil
}

func toPriceRecordResponse(r model.PriceRecord) PriceRecordResponse {
	res := PriceRecordResponse{
		ID:           r.ID,
		FactoryID:    r.FactoryID,
		Category:     r.Category,
		Material:     r.Material,
		Size:         r.Size,
		Printing:     r.Printing,
		Quantity:     r.Quantity,
		UnitPriceUsd: r.UnitPriceUsd,
		ShippingUsd:  r.ShippingUsd,
		RecordedAt:   r.RecordedAt.Format("2006-01-02"),
		Source:       r.Source,
		CreatedAt:    r.CreatedAt,
	}
	if r.Factory != nil {
		res.FactoryCode = r.Factory.Code
		res.FactoryName = r.Factory.Name
	}
	return res
}
