package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "dealdesk/api/swagger" // swagger docs
	"dealdesk/internal/cache"
	"dealdesk/internal/config"
	"dealdesk/internal/database"
	"dealdesk/internal/estimator"
	"dealdesk/internal/handler"
	"dealdesk/internal/lifecycle"
	"dealdesk/internal/logger"
	"dealdesk/internal/metrics"
	"dealdesk/internal/middleware"
	"dealdesk/internal/pricing"
	"dealdesk/internal/repository"
	"dealdesk/internal/service"
	"dealdesk/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const devJWTSecret = "dealdesk-dev-secret"

// @title           Deal Desk API
// @version         1.0
// @description     Deal lifecycle, landed-cost quoting and factory price estimation for a packaging brokerage.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dealdesk: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if err := lifecycle.Validate(); err != nil {
		return fmt.Errorf("transition table is inconsistent: %w", err)
	}

	fees, err := pricing.ParseFeeSchedule(cfg.Pricing.WiseRatePercent, cfg.Pricing.WiseFixedFeeJpy,
		cfg.Pricing.AlibabaCCRatePercent, cfg.Pricing.BankTransferFeeUsd)
	if err != nil {
		return fmt.Errorf("invalid payment fee settings: %w", err)
	}
	costRatio, err := decimal.NewFromString(cfg.Pricing.DefaultCostRatio)
	if err != nil {
		return fmt.Errorf("invalid pricing.default_cost_ratio: %w", err)
	}
	defaultTax, err := decimal.NewFromString(cfg.Pricing.DefaultTaxRate)
	if err != nil {
		return fmt.Errorf("invalid pricing.default_tax_rate: %w", err)
	}
	advanceRatio, err := decimal.NewFromString(cfg.Pricing.FactoryAdvanceRatio)
	if err != nil {
		return fmt.Errorf("invalid pricing.factory_advance_ratio: %w", err)
	}

	db, err := database.NewConnection(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Info("Connected to PostgreSQL successfully")

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	estimateCache := cache.New(redisClient, cfg.Estimator.CacheTTL, cache.WithLogger(log))

	secret := []byte(cfg.JWT.Secret)
	if len(secret) == 0 {
		log.Warn("jwt.secret not set, using the development secret")
		secret = []byte(devJWTSecret)
	}
	auth := middleware.NewAuth(secret)

	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(log)

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	partnerRepo := repository.NewPartnerRepository(db)
	dealRepo := repository.NewDealRepository(db)
	quoteRepo := repository.NewDealQuoteRepository(db)
	assignRepo := repository.NewFactoryAssignmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	shippingRepo := repository.NewShippingRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	priceRepo := repository.NewPriceRecordRepository(db)

	calc := pricing.NewCalculator(fees)
	taxService := service.NewTaxService(repository.NewTaxRuleRepository(db), auditRepo, txManager, defaultTax)
	userService := service.NewUserService(userRepo, txManager, secret, log)
	auditService := service.NewAuditService(auditRepo)
	partnerService := service.NewPartnerService(partnerRepo, auditRepo, txManager)
	dealService := service.NewDealService(service.DealDeps{
		TxManager:     txManager,
		Deals:         dealRepo,
		StatusHistory: repository.NewStatusHistoryRepository(db),
		Quotes:        quoteRepo,
		Assignments:   assignRepo,
		Payments:      paymentRepo,
		Shipping:      shippingRepo,
		Invoices:      invoiceRepo,
		Partners:      partnerRepo,
		Audit:         auditRepo,
		Taxes:         taxService,
		Calculator:    calc,
		AdvanceRatio:  advanceRatio,
		Metrics:       m,
		Events:        wsHub,
		Logger:        log,
	})
	quoteService := service.NewQuoteService(service.QuoteDeps{
		TxManager:        txManager,
		Deals:            dealRepo,
		Quotes:           quoteRepo,
		Assignments:      assignRepo,
		Partners:         partnerRepo,
		Audit:            auditRepo,
		Taxes:            taxService,
		Calculator:       calc,
		DefaultCostRatio: costRatio,
		Metrics:          m,
		Logger:           log,
	})
	estimateService := service.NewEstimateService(service.EstimateDeps{
		Records:          priceRepo,
		Deals:            dealRepo,
		DealService:      dealService,
		Cache:            estimateCache,
		Options:          estimator.Options{RecencyHalfLifeDays: cfg.Estimator.RecencyHalfLifeDays},
		DefaultCostRatio: costRatio,
		Metrics:          m,
		Logger:           log,
	})
	priceService := service.NewPriceRecordService(priceRepo, partnerRepo, auditRepo, txManager, estimateCache, m, log)
	invoiceService := service.NewInvoiceService(dealRepo, invoiceRepo, paymentRepo, shippingRepo)

	// Set up Gin Router
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(logger.GinMiddleware(log), logger.Recovery(log))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORS.AllowOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DB_UNAVAILABLE"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, secret)
	})

	api := router.Group("")
	handler.NewUserHandler(userService).RegisterRoutes(api, auth)
	handler.NewPartnerHandler(partnerService).RegisterRoutes(api, auth)
	handler.NewDealHandler(dealService, invoiceService).RegisterRoutes(api, auth)
	handler.NewQuoteHandler(quoteService).RegisterRoutes(api, auth)
	handler.NewEstimateHandler(estimateService).RegisterRoutes(api, auth)
	handler.NewPriceRecordHandler(priceService).RegisterRoutes(api, auth)
	handler.NewTaxHandler(taxService).RegisterRoutes(api, auth)
	handler.NewAuditHandler(auditService).RegisterRoutes(api, auth)

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("Server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
