package integration

import (
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

	"tally/internal/fx"
	"tally/internal/handlers"
	"tally/internal/logger"
	"tally/internal/middleware"
	"tally/internal/models"
	"tally/internal/services"
	"tally/internal/validator"
)

const schedulerTestKey = "integration-scheduler-key"

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

// setupIsolatedDB creates an isolated in-memory SQLite database for a single test.
func setupIsolatedDB(t *testing.T) *gorm.DB {
	t.Helper()

	n := dbCounter.Add(1)
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	allModels := []interface{}{
		&models.User{},
		&models.Account{},
		&models.Transaction{},
		&models.StockLot{},
		&models.Subscription{},
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
	converter := fx.NewConverter(nil, time.Hour)
	userService := services.NewUserService(db)
	accountService := services.NewAccountService(db)
	auditService := services.NewAuditService(db)
	reconciler := services.NewReconciler(db, converter)
	transactionService := services.NewTransactionService(db, accountService, reconciler)
	lotService := services.NewLotService(db, accountService, reconciler)
	subscriptionService := services.NewSubscriptionService(db, accountService, reconciler)
	metricsService := services.NewMetricsService(db, converter)

	// Handlers
	authHandler := handlers.NewAuthHandler(userService)
	accountHandler := handlers.NewAccountHandler(accountService, lotService, auditService)
	transactionHandler := handlers.NewTransactionHandler(transactionService, reconciler, auditService)
	lotHandler := handlers.NewLotHandler(lotService, auditService)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService, auditService)
	metricsHandler := handlers.NewMetricsHandler(metricsService)

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

	// Scheduler cron endpoint
	scheduler := v1.Group("/scheduler")
	scheduler.Use(middleware.SchedulerAuthMiddleware(schedulerTestKey))
	scheduler.POST("/run", subscriptionHandler.RunScheduler)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	protected.GET("/profile", authHandler.GetProfile)

	accounts := protected.Group("/accounts")
	accounts.POST("/ledger", accountHandler.CreateLedgerAccount)
	accounts.POST("/asset", accountHandler.CreateAssetAccount)
	accounts.GET("", accountHandler.GetAccounts)
	accounts.GET("/:id", accountHandler.GetAccount)
	accounts.PATCH("/:id", accountHandler.UpdateAccount)
	accounts.PUT("/:id/market-value", accountHandler.UpdateMarketValue)
	accounts.GET("/:id/cost-basis", accountHandler.GetCostBasis)
	accounts.GET("/:id/lots", lotHandler.GetAssetLots)
	accounts.DELETE("/:id", accountHandler.DeactivateAccount)

	transactions := protected.Group("/transactions")
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.GET("", transactionHandler.GetTransactions)
	transactions.GET("/:id", transactionHandler.GetTransaction)
	transactions.PATCH("/:id", transactionHandler.UpdateTransaction)
	transactions.DELETE("/:id", transactionHandler.DeleteTransaction)

	protected.POST("/reconcile", transactionHandler.Reconcile)

	lots := protected.Group("/lots")
	lots.POST("", lotHandler.CreateLot)
	lots.PATCH("/:id", lotHandler.UpdateLot)
	lots.DELETE("/:id", lotHandler.DeleteLot)

	subscriptions := protected.Group("/subscriptions")
	subscriptions.POST("", subscriptionHandler.CreateSubscription)
	subscriptions.GET("", subscriptionHandler.GetSubscriptions)
	subscriptions.GET("/:id", subscriptionHandler.GetSubscription)
	subscriptions.GET("/:id/next-due", subscriptionHandler.GetNextDueDate)
	subscriptions.PATCH("/:id", subscriptionHandler.UpdateSubscription)
	subscriptions.DELETE("/:id", subscriptionHandler.DeleteSubscription)

	protected.GET("/metrics", metricsHandler.GetMetrics)

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

// schedulerRequest makes a request authenticated with the scheduler API key.
func (app *testApp) schedulerRequest(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-API-Key", schedulerTestKey)
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

// assertAmount compares a decimal field serialized as a JSON string.
func assertAmount(t *testing.T, obj map[string]interface{}, field, want string) {
	t.Helper()
	raw, ok := obj[field].(string)
	if !ok {
		t.Fatalf("expected %s to be a string, got %T (%v)", field, obj[field], obj[field])
	}
	got, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("failed to parse %s=%q: %v", field, raw, err)
	}
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("expected %s=%s, got %s", field, want, raw)
	}
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

// createLedgerAccount creates a cash ledger account and returns its ID.
func (app *testApp) createLedgerAccount(t *testing.T, token, name, shortID, balance string) string {
	t.Helper()
	body := fmt.Sprintf(`{"name":%q,"short_id":%q,"currency":"USD","initial_balance":%q}`, name, shortID, balance)
	rec := app.request("POST", "/api/v1/accounts/ledger", body, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create ledger account failed: %d %s", rec.Code, rec.Body.String())
	}
	account := parseJSON(t, rec)["account"].(map[string]interface{})
	return account["id"].(string)
}

// createAssetAccount creates a tradable asset account and returns its ID.
func (app *testApp) createAssetAccount(t *testing.T, token, name, holdings, price string) string {
	t.Helper()
	body := fmt.Sprintf(`{"name":%q,"type":"stock","currency":"USD","initial_holdings":%q,"market_value":%q}`, name, holdings, price)
	rec := app.request("POST", "/api/v1/accounts/asset", body, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create asset account failed: %d %s", rec.Code, rec.Body.String())
	}
	account := parseJSON(t, rec)["account"].(map[string]interface{})
	return account["id"].(string)
}

// getAccount fetches a single account by ID.
func (app *testApp) getAccount(t *testing.T, token, accountID string) map[string]interface{} {
	t.Helper()
	rec := app.request("GET", "/api/v1/accounts/"+accountID, "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("get account failed: %d %s", rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["account"].(map[string]interface{})
}
