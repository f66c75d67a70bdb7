package main

import (
	"fmt"
	"net/http"
	"os"

	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/fx"
	"folio/internal/handlers"
	"folio/internal/logger"
	"folio/internal/middleware"
	"folio/internal/pricing"
	"folio/internal/rebalance"
	"folio/internal/services"
	"folio/internal/validator"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "folio/internal/docs" // Import swagger docs
)

// @title           Folio API
// @version         1.0
// @description     Folio tracks investment accounts across currencies and proposes trades that bring a portfolio back to its target allocation.
// @termsOfService  http://swagger.io/terms/

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description Shared key for the price pipeline endpoints.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if appConfig.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	validator.Register()

	// Create database manager
	dbConfig := database.NewConfig(appConfig)
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	// Run migrations
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	// Outbound quote and rate requests share one client
	httpClient := &http.Client{Timeout: appConfig.ExternalTimeout}

	// Initialize services
	db := dbManager.DB()
	userService := services.NewUserService(db)
	accountService := services.NewAccountService(db)
	assetClassService := services.NewAssetClassService(db)
	securityService := services.NewSecurityService(db, pricing.NewYahooSource(httpClient))
	holdingService := services.NewHoldingService(db)
	targetService := services.NewTargetService(db)
	preferenceService := services.NewPreferenceService(db)
	auditService := services.NewAuditService(db)

	priceSource, err := pricing.New(pricing.Options{
		Provider:        appConfig.PriceSource,
		SheetLocation:   appConfig.PriceSheetPath,
		AlpacaAPIKey:    appConfig.AlpacaAPIKey,
		AlpacaAPISecret: appConfig.AlpacaAPISecret,
		CacheTTL:        appConfig.PriceCacheTTL,
		HTTPClient:      httpClient,
	}, securityService)
	if err != nil {
		return fmt.Errorf("failed to configure price source: %w", err)
	}
	log.Infof("Using price source %s", priceSource.Name())

	rateService := services.NewExchangeRateService(db, fx.NewYahooRates(httpClient), appConfig.RateFreshness, appConfig.ExternalTimeout)
	portfolioService := services.NewPortfolioService(db, rateService)
	planner := rebalance.NewPlanner(priceSource, appConfig.ExternalTimeout)
	rebalanceService := services.NewRebalanceService(db, planner, rateService, securityService)
	exportService := services.NewExportService(db)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService, auditService)
	accountHandler := handlers.NewAccountHandler(accountService, auditService)
	assetClassHandler := handlers.NewAssetClassHandler(assetClassService, auditService)
	securityHandler := handlers.NewSecurityHandler(securityService, auditService)
	holdingHandler := handlers.NewHoldingHandler(holdingService, auditService)
	targetHandler := handlers.NewTargetHandler(targetService, auditService)
	preferenceHandler := handlers.NewPreferenceHandler(preferenceService, auditService)
	rateHandler := handlers.NewExchangeRateHandler(rateService, userService, auditService)
	portfolioHandler := handlers.NewPortfolioHandler(portfolioService, auditService)
	rebalanceHandler := handlers.NewRebalanceHandler(rebalanceService, auditService)
	exportHandler := handlers.NewExportHandler(exportService, auditService)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group
	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Price pipeline routes
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(appConfig.PipelineAPIKey))
	pipeline.GET("/securities", securityHandler.ListRefreshable)
	pipeline.POST("/securities/prices", securityHandler.RecordPrices)
	pipeline.POST("/snapshots", portfolioHandler.ComputeSnapshots)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	// User profile
	protected.GET("/profile", authHandler.GetProfile)
	protected.PUT("/settings", authHandler.UpdateSettings)

	// Account routes
	accounts := protected.Group("/accounts")
	accounts.POST("", accountHandler.CreateAccount)
	accounts.GET("", accountHandler.GetUserAccounts)
	accounts.GET("/:id", accountHandler.GetAccountByID)
	accounts.PUT("/:id", accountHandler.UpdateAccount)
	accounts.DELETE("/:id", accountHandler.DeleteAccount)

	// Asset class routes
	assetClasses := protected.Group("/asset-classes")
	assetClasses.POST("", assetClassHandler.CreateAssetClass)
	assetClasses.GET("", assetClassHandler.ListAssetClasses)
	assetClasses.GET("/:id", assetClassHandler.GetAssetClass)
	assetClasses.PUT("/:id", assetClassHandler.UpdateAssetClass)
	assetClasses.DELETE("/:id", assetClassHandler.DeleteAssetClass)

	// Security routes
	securities := protected.Group("/securities")
	securities.POST("", securityHandler.CreateSecurity)
	securities.GET("", securityHandler.ListSecurities)
	securities.GET("/lookup/:ticker", securityHandler.LookupTicker)
	securities.GET("/:id", securityHandler.GetSecurity)
	securities.PUT("/:id", securityHandler.UpdateSecurity)
	securities.DELETE("/:id", securityHandler.DeleteSecurity)
	securities.GET("/:id/prices", securityHandler.GetPriceHistory)
	securities.GET("/:id/preference", preferenceHandler.GetSecurityPreference)
	securities.PUT("/:id/preference", preferenceHandler.SetSecurityPreference)

	// Holding routes
	holdings := protected.Group("/holdings")
	holdings.POST("", holdingHandler.CreateHolding)
	holdings.GET("", holdingHandler.ListHoldings)
	holdings.GET("/:id", holdingHandler.GetHolding)
	holdings.PUT("/:id", holdingHandler.UpdateHolding)
	holdings.DELETE("/:id", holdingHandler.DeleteHolding)

	// Target allocation routes
	protected.GET("/targets", targetHandler.ListTargets)
	protected.PUT("/targets", targetHandler.ReplaceTargets)
	protected.GET("/asset-class-preferences", preferenceHandler.ListAssetClassPreferences)
	protected.PUT("/asset-class-preferences", preferenceHandler.ReplaceAssetClassPreferences)

	// Exchange rate routes
	rates := protected.Group("/exchange-rates")
	rates.GET("", rateHandler.ListRates)
	rates.POST("", rateHandler.AddRate)
	rates.POST("/refresh", rateHandler.RefreshRates)

	// Portfolio routes
	portfolio := protected.Group("/portfolio")
	portfolio.GET("/summary", portfolioHandler.GetSummary)
	portfolio.GET("/snapshots", portfolioHandler.GetSnapshots)

	// Rebalance routes
	rebalanceRoutes := protected.Group("/rebalance")
	rebalanceRoutes.POST("/plan", rebalanceHandler.GeneratePlan)
	rebalanceRoutes.GET("/transactions", rebalanceHandler.ListTransactions)
	rebalanceRoutes.POST("/transactions/:id/execute", rebalanceHandler.ExecuteTransaction)

	// Export / import
	protected.GET("/export", exportHandler.Export)
	protected.POST("/import", exportHandler.Import)

	log.Infof("Starting Folio backend server on port %s", appConfig.Port)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
