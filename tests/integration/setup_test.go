package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"folio/internal/handlers"
	"folio/internal/logger"
	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/rebalance"
	"folio/internal/services"
	"folio/internal/validator"
)

const testPipelineKey = "integration-pipeline-key"

// testApp holds the full application stack for integration tests.
type testApp struct {
	DB     *gorm.DB
	Router *gin.Engine
}

// dbCounter ensures each test gets a unique in-memory database.
var dbCounter atomic.Int64

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// staticRates answers every pair with a fixed table so tests never hit the network.
type staticRates struct {
	rates map[string]decimal.Decimal
}

func (s staticRates) Source() string { return "static" }

func (s staticRates) FetchRate(_ context.Context, from, to string) (decimal.Decimal, error) {
	if r, ok := s.rates[from+to]; ok {
		return r, nil
	}
	return decimal.Zero, fmt.Errorf("no rate for %s/%s", from, to)
}

// setupIsolatedDB creates an isolated in-memory SQLite database for a single test.
func setupIsolatedDB(t *testing.T) *gorm.DB {
	t.Helper()

	n := dbCounter.Add(1)
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get underlying DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	allModels := []interface{}{
		&models.User{},
		&models.Account{},
		&models.AssetClass{},
		&models.Security{},
		&models.SecurityPrice{},
		&models.Holding{},
		&models.Target{},
		&models.SecurityPreference{},
		&models.AssetClassPreference{},
		&models.ExchangeRate{},
		&models.RebalanceTransaction{},
		&models.PortfolioSnapshot{},
		&models.AuditLog{},
	}
	if err := db.AutoMigrate(allModels...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// setupApp creates a full application stack backed by an isolated in-memory SQLite.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := setupIsolatedDB(t)

	// Services
	fetcher := staticRates{rates: map[string]decimal.Decimal{"USDCAD": decimal.RequireFromString("1.25")}}
	userService := services.NewUserService(db)
	accountService := services.NewAccountService(db)
	assetClassService := services.NewAssetClassService(db)
	securityService := services.NewSecurityService(db, nil)
	holdingService := services.NewHoldingService(db)
	targetService := services.NewTargetService(db)
	preferenceService := services.NewPreferenceService(db)
	rateService := services.NewExchangeRateService(db, fetcher, time.Hour, time.Second)
	portfolioService := services.NewPortfolioService(db, rateService)
	rebalanceService := services.NewRebalanceService(db, rebalance.NewPlanner(nil, time.Second), rateService, securityService)
	exportService := services.NewExportService(db)
	auditService := services.NewAuditService(db)

	// Handlers
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

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())

	v1 := router.Group("/api/v1")

	// Public auth routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(testPipelineKey))
	pipeline.GET("/securities", securityHandler.ListRefreshable)
	pipeline.POST("/securities/prices", securityHandler.RecordPrices)
	pipeline.POST("/snapshots", portfolioHandler.ComputeSnapshots)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	protected.GET("/profile", authHandler.GetProfile)
	protected.PUT("/settings", authHandler.UpdateSettings)

	accounts := protected.Group("/accounts")
	accounts.POST("", accountHandler.CreateAccount)
	accounts.GET("", accountHandler.GetUserAccounts)
	accounts.GET("/:id", accountHandler.GetAccountByID)
	accounts.PUT("/:id", accountHandler.UpdateAccount)
	accounts.DELETE("/:id", accountHandler.DeleteAccount)

	assetClasses := protected.Group("/asset-classes")
	assetClasses.POST("", assetClassHandler.CreateAssetClass)
	assetClasses.GET("", assetClassHandler.ListAssetClasses)

	securities := protected.Group("/securities")
	securities.POST("", securityHandler.CreateSecurity)
	securities.GET("", securityHandler.ListSecurities)
	securities.GET("/lookup/:ticker", securityHandler.LookupTicker)
	securities.GET("/:id", securityHandler.GetSecurity)
	securities.GET("/:id/prices", securityHandler.GetPriceHistory)
	securities.GET("/:id/preference", preferenceHandler.GetSecurityPreference)
	securities.PUT("/:id/preference", preferenceHandler.SetSecurityPreference)

	holdings := protected.Group("/holdings")
	holdings.POST("", holdingHandler.CreateHolding)
	holdings.GET("", holdingHandler.ListHoldings)
	holdings.GET("/:id", holdingHandler.GetHolding)

	protected.GET("/targets", targetHandler.ListTargets)
	protected.PUT("/targets", targetHandler.ReplaceTargets)
	protected.GET("/asset-class-preferences", preferenceHandler.ListAssetClassPreferences)
	protected.PUT("/asset-class-preferences", preferenceHandler.ReplaceAssetClassPreferences)

	rates := protected.Group("/exchange-rates")
	rates.GET("", rateHandler.ListRates)
	rates.POST("", rateHandler.AddRate)
	rates.POST("/refresh", rateHandler.RefreshRates)

	protected.GET("/portfolio/summary", portfolioHandler.GetSummary)
	protected.GET("/portfolio/snapshots", portfolioHandler.GetSnapshots)

	protected.POST("/rebalance/plan", rebalanceHandler.GeneratePlan)
	protected.GET("/rebalance/transactions", rebalanceHandler.ListTransactions)
	protected.POST("/rebalance/transactions/:id/execute", rebalanceHandler.ExecuteTransaction)

	protected.GET("/export", exportHandler.Export)
	protected.POST("/import", exportHandler.Import)

	return &testApp{DB: db, Router: router}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// pipelineRequest makes a request authenticated with the pipeline API key.
func (app *testApp) pipelineRequest(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testPipelineKey)
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

// mustStatus fails the test unless rec has the expected status.
func mustStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

// decimalField reads a decimal that the API serialises as a JSON string.
func decimalField(t *testing.T, obj map[string]interface{}, key string) decimal.Decimal {
	t.Helper()
	raw, ok := obj[key].(string)
	if !ok {
		t.Fatalf("expected %s to be a decimal string, got %T (%v)", key, obj[key], obj[key])
	}
	return decimal.RequireFromString(raw)
}

// registerUser registers a new user and returns the access token, refresh token, and user ID.
func (app *testApp) registerUser(t *testing.T, email, password string) (accessToken, refreshToken, userID string) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q,"first_name":"Test","last_name":"User"}`, email, password)
	rec := app.request("POST", "/api/v1/auth/register", body, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	user := result["user"].(map[string]interface{})
	return result["access_token"].(string), result["refresh_token"].(string), user["id"].(string)
}

// loginUser logs in and returns the access and refresh tokens.
func (app *testApp) loginUser(t *testing.T, email, password string) (accessToken, refreshToken string) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	rec := app.request("POST", "/api/v1/auth/login", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	return result["access_token"].(string), result["refresh_token"].(string)
}

// create posts body to path and returns the id of the object under key.
func (app *testApp) create(t *testing.T, token, path, key, body string) string {
	t.Helper()
	rec := app.request("POST", path, body, token)
	mustStatus(t, rec, http.StatusCreated)
	return parseJSON(t, rec)[key].(map[string]interface{})["id"].(string)
}

// portfolioFixture is a user with one CAD account holding 1000 CAD of equity,
// an empty bond class and a 50/50 target.
type portfolioFixture struct {
	token     string
	accountID string
	equityID  string
	bondID    string
	vfvID     string
	zagID     string
}

func (app *testApp) seedPortfolio(t *testing.T, email string) portfolioFixture {
	t.Helper()
	var f portfolioFixture
	f.token, _, _ = app.registerUser(t, email, "password123")

	f.equityID = app.create(t, f.token, "/api/v1/asset-classes", "asset_class", `{"name":"Equity"}`)
	f.bondID = app.create(t, f.token, "/api/v1/asset-classes", "asset_class", `{"name":"Bonds"}`)
	f.vfvID = app.create(t, f.token, "/api/v1/securities", "security",
		fmt.Sprintf(`{"ticker":"VFV","exchange":"TSX","asset_class_id":%q,"currency":"CAD","is_public":true,"last_price":"100"}`, f.equityID))
	f.zagID = app.create(t, f.token, "/api/v1/securities", "security",
		fmt.Sprintf(`{"ticker":"ZAG","exchange":"TSX","asset_class_id":%q,"currency":"CAD","is_public":true,"last_price":"10"}`, f.bondID))
	f.accountID = app.create(t, f.token, "/api/v1/accounts", "account",
		`{"name":"RRSP","account_type":"RRSP","currency":"CAD","is_registered":true,"cash_balance":"0"}`)
	app.create(t, f.token, "/api/v1/holdings", "holding",
		fmt.Sprintf(`{"account_id":%q,"security_id":%q,"quantity":"10","price":"100"}`, f.accountID, f.vfvID))

	rec := app.request("PUT", "/api/v1/targets", fmt.Sprintf(`{"targets":[
		{"asset_class_id":%q,"target_percentage":"50"},
		{"asset_class_id":%q,"target_percentage":"50"}
	]}`, f.equityID, f.bondID), f.token)
	mustStatus(t, rec, http.StatusOK)
	return f
}
