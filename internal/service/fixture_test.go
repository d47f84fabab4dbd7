package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"dealdesk/internal/cache"
	"dealdesk/internal/database"
	"dealdesk/internal/estimator"
	"dealdesk/internal/lifecycle"
	"dealdesk/internal/metrics"
	"dealdesk/internal/model"
	"dealdesk/internal/pricing"
	"dealdesk/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory sqlite database. One connection keeps
// every transaction on the same database and serializes concurrent writers.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

type recordedEvent struct {
	Type string
	Data any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(eventType string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Type: eventType, Data: data})
}

func (p *recordingPublisher) Events() []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedEvent(nil), p.events...)
}

type fixture struct {
	t   *testing.T
	ctx context.Context
	db  *gorm.DB

	txManager   repository.TransactionManager
	dealRepo    repository.DealRepository
	historyRepo repository.StatusHistoryRepository
	quoteRepo   repository.DealQuoteRepository
	assignRepo  repository.FactoryAssignmentRepository
	paymentRepo repository.PaymentRepository
	shipRepo    repository.ShippingRepository
	invoiceRepo repository.InvoiceRepository
	partnerRepo repository.PartnerRepository
	auditRepo   repository.AuditRepository
	priceRepo   repository.PriceRecordRepository

	taxes     TaxService
	deals     DealService
	quotes    QuoteService
	estimates EstimateService
	prices    PriceRecordService
	metrics   *metrics.Metrics
	events    *recordingPublisher

	client   *model.Partner
	factory  *model.Partner
	factory2 *model.Partner

	admin      Actor
	staff      Actor
	accounting Actor
}

type fixtureOption func(*DealDeps)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{
		t:           t,
		ctx:         context.Background(),
		db:          db,
		txManager:   repository.NewTransactionManager(db),
		dealRepo:    repository.NewDealRepository(db),
		historyRepo: repository.NewStatusHistoryRepository(db),
		quoteRepo:   repository.NewDealQuoteRepository(db),
		assignRepo:  repository.NewFactoryAssignmentRepository(db),
		paymentRepo: repository.NewPaymentRepository(db),
		shipRepo:    repository.NewShippingRepository(db),
		invoiceRepo: repository.NewInvoiceRepository(db),
		partnerRepo: repository.NewPartnerRepository(db),
		auditRepo:   repository.NewAuditRepository(db),
		priceRepo:   repository.NewPriceRecordRepository(db),
		metrics:     metrics.New(),
		events:      &recordingPublisher{},
		admin:       Actor{UserID: uuid.New(), Role: lifecycle.RoleAdmin},
		staff:       Actor{UserID: uuid.New(), Role: lifecycle.RoleStaff},
		accounting:  Actor{UserID: uuid.New(), Role: lifecycle.RoleAccounting},
	}

	calc := pricing.NewCalculator(pricing.DefaultFeeSchedule())
	costRatio := decimal.RequireFromString("0.55")
	f.taxes = NewTaxService(repository.NewTaxRuleRepository(db), f.auditRepo, f.txManager, decimal.NewFromInt(10))

	deps := DealDeps{
		TxManager:     f.txManager,
		Deals:         f.dealRepo,
		StatusHistory: f.historyRepo,
		Quotes:        f.quoteRepo,
		Assignments:   f.assignRepo,
		Payments:      f.paymentRepo,
		Shipping:      f.shipRepo,
		Invoices:      f.invoiceRepo,
		Partners:      f.partnerRepo,
		Audit:         f.auditRepo,
		Taxes:         f.taxes,
		Calculator:    calc,
		AdvanceRatio:  decimal.RequireFromString("0.3"),
		Metrics:       f.metrics,
		Events:        f.events,
		Logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.deals = NewDealService(deps)

	f.quotes = NewQuoteService(QuoteDeps{
		TxManager:        f.txManager,
		Deals:            f.dealRepo,
		Quotes:           f.quoteRepo,
		Assignments:      f.assignRepo,
		Partners:         f.partnerRepo,
		Audit:            f.auditRepo,
		Taxes:            f.taxes,
		Calculator:       calc,
		DefaultCostRatio: costRatio,
		Metrics:          f.metrics,
	})
	f.estimates = NewEstimateService(EstimateDeps{
		Records:          f.priceRepo,
		Deals:            f.dealRepo,
		DealService:      f.deals,
		Cache:            cache.New(nil, time.Minute),
		Options:          estimator.DefaultOptions(),
		DefaultCostRatio: costRatio,
		Metrics:          f.metrics,
	})
	f.prices = NewPriceRecordService(f.priceRepo, f.partnerRepo, f.auditRepo, f.txManager, cache.New(nil, time.Minute), f.metrics, zap.NewNop())

	f.client = f.partner("ACME", "Acme Foods", model.PartnerTypeClient)
	f.factory = f.partner("SZ01", "Shenzhen Box Co", model.PartnerTypeFactory)
	f.factory2 = f.partner("DG02", "Dongguan Pack", model.PartnerTypeFactory)
	return f
}

func (f *fixture) partner(code, name, typ string) *model.Partner {
	f.t.Helper()
	p := &model.Partner{Code: code, Name: name, Type: typ, IsActive: true}
	require.NoError(f.t, f.partnerRepo.Create(f.ctx, p))
	return p
}

func (f *fixture) createDeal() DealResponse {
	f.t.Helper()
	deal, err := f.deals.CreateDeal(f.ctx, CreateDealRequest{
		Title:    "Mailer boxes",
		ClientID: f.client.ID.String(),
		Category: "mailer box",
		Material: "kraft",
		Size:     "30x20x10",
		Printing: "1c",
		Quantity: 1000,
	}, f.staff)
	require.NoError(f.t, err)
	return deal
}

func (f *fixture) act(dealID uuid.UUID, action lifecycle.Action, actor Actor) (ActionResult, error) {
	return f.deals.ApplyAction(f.ctx, dealID.String(), ActionRequest{Action: action, Actor: actor})
}

func (f *fixture) mustAct(dealID uuid.UUID, req ActionRequest) ActionResult {
	f.t.Helper()
	res, err := f.deals.ApplyAction(f.ctx, dealID.String(), req)
	require.NoError(f.t, err, "action %s", req.Action)
	return res
}

func (f *fixture) addQuote(dealID uuid.UUID, factory *model.Partner, unitPrice string) DealQuoteResponse {
	f.t.Helper()
	q, err := f.quotes.CreateDealQuote(f.ctx, dealID.String(), DealQuoteRequest{
		FactoryID: factory.ID.String(),
		QuoteCalcRequest: QuoteCalcRequest{
			FactoryUnitPriceUsd: decimal.RequireFromString(unitPrice),
			ShippingCostUsd:     decimal.NewFromInt(180),
			PlateFeeUsd:         decimal.NewFromInt(100),
			ExchangeRate:        decimal.NewFromInt(150),
			PaymentMethod:       string(pricing.MethodWise),
		},
	}, f.staff)
	require.NoError(f.t, err)
	return q
}

func (f *fixture) status(dealID uuid.UUID) lifecycle.Status {
	f.t.Helper()
	d, err := f.dealRepo.FindByID(f.ctx, dealID)
	require.NoError(f.t, err)
	return d.Status
}

// toApproved walks a new deal through quoting until its quote is approved (M11).
func (f *fixture) toApproved() (DealResponse, DealQuoteResponse) {
	f.t.Helper()
	deal := f.createDeal()
	_, err := f.deals.AssignFactory(f.ctx, deal.ID.String(), AssignFactoryRequest{FactoryID: f.factory.ID.String()}, f.staff)
	require.NoError(f.t, err)
	f.mustAct(deal.ID, ActionRequest{Action: lifecycle.ActionSendQuoteRequest, Actor: f.staff})
	quote := f.addQuote(deal.ID, f.factory, "2.5")
	for _, a := range []lifecycle.Action{
		lifecycle.ActionReceiveFactoryQuote,
		lifecycle.ActionReviewCost,
		lifecycle.ActionFinalizeQuote,
		lifecycle.ActionPresentQuoteToClient,
		lifecycle.ActionAcknowledgeQuote,
		lifecycle.ActionAcceptQuote,
		lifecycle.ActionApproveQuote,
	} {
		f.mustAct(deal.ID, ActionRequest{Action: a, Actor: f.staff})
	}
	require.Equal(f.t, lifecycle.M11, f.status(deal.ID))
	return deal, quote
}
