package main

import (
	"fmt"
	"net/http"
	"os"

	"tally/internal/config"
	"tally/internal/database"
	"tally/internal/fx"
	"tally/internal/handlers"
	"tally/internal/logger"
	"tally/internal/middleware"
	"tally/internal/services"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "tally/internal/docs" // Import swagger docs
)

// @title           Tally API
// @version         1.0
// @description     Tally is a personal finance ledger that derives account balances by replaying the transaction log, materializes recurring bills, and reports cost-basis and financial health metrics.
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
// @description Scheduler API key for the cron endpoint.

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

	// Initialize database configuration
	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	// Create database manager
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	// Run migrations
	if err := dbManager.Migrate(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	// Initialize services
	db := dbManager.DB()
	converter := fx.NewConverter(nil, appConfig.RateCacheTTL)
	userService := services.NewUserService(db)
	accountService := services.NewAccountService(db)
	auditService := services.NewAuditService(db)
	reconciler := services.NewReconciler(db, converter)
	transactionService := services.NewTransactionService(db, accountService, reconciler)
	lotService := services.NewLotService(db, accountService, reconciler)
	subscriptionService := services.NewSubscriptionService(db, accountService, reconciler)
	metricsService := services.NewMetricsService(db, converter)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService)
	accountHandler := handlers.NewAccountHandler(accountService, lotService, auditService)
	transactionHandler := handlers.NewTransactionHandler(transactionService, reconciler, auditService)
	lotHandler := handlers.NewLotHandler(lotService, auditService)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService, auditService)
	metricsHandler := handlers.NewMetricsHandler(metricsService)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
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

	// Scheduler cron endpoint, authenticated by API key rather than a user token
	scheduler := v1.Group("/scheduler")
	scheduler.Use(middleware.SchedulerAuthMiddleware(appConfig.SchedulerAPIKey))
	scheduler.POST("/run", subscriptionHandler.RunScheduler)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	// User profile
	protected.GET("/profile", authHandler.GetProfile)

	// Account routes
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

	// Transaction routes
	transactions := protected.Group("/transactions")
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.GET("", transactionHandler.GetTransactions)
	transactions.GET("/:id", transactionHandler.GetTransaction)
	transactions.PATCH("/:id", transactionHandler.UpdateTransaction)
	transactions.DELETE("/:id", transactionHandler.DeleteTransaction)

	// Full replay on demand
	protected.POST("/reconcile", transactionHandler.Reconcile)

	// Stock lot routes
	lots := protected.Group("/lots")
	lots.POST("", lotHandler.CreateLot)
	lots.PATCH("/:id", lotHandler.UpdateLot)
	lots.DELETE("/:id", lotHandler.DeleteLot)

	// Subscription routes
	subscriptions := protected.Group("/subscriptions")
	subscriptions.POST("", subscriptionHandler.CreateSubscription)
	subscriptions.GET("", subscriptionHandler.GetSubscriptions)
	subscriptions.GET("/:id", subscriptionHandler.GetSubscription)
	subscriptions.GET("/:id/next-due", subscriptionHandler.GetNextDueDate)
	subscriptions.PATCH("/:id", subscriptionHandler.UpdateSubscription)
	subscriptions.DELETE("/:id", subscriptionHandler.DeleteSubscription)

	// Metrics
	protected.GET("/metrics", metricsHandler.GetMetrics)

	log.Infof("Starting Tally backend server on port %s", appConfig.Port)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
