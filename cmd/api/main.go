package main

import (
	"fmt"
	"net/http"
	"os"

	"lotkeeper/internal/config"
	"lotkeeper/internal/database"
	"lotkeeper/internal/handlers"
	"lotkeeper/internal/locking"
	"lotkeeper/internal/logger"
	"lotkeeper/internal/middleware"
	"lotkeeper/internal/services"
	"lotkeeper/internal/validator"

	"github.com/gin-gonic/gin"
)

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

	// Register custom request validators
	validator.Register()

	// Initialize services
	db := dbManager.DB()
	locks := locking.NewKeyedLock(appConfig.LockTimeout)
	auditService := services.NewAuditService(db)
	accountService := services.NewAccountService(db)
	securityService := services.NewSecurityService(db)
	lotService := services.NewLotService(db, locks, auditService)
	disposalService := services.NewDisposalService(db, locks, auditService)
	valuationService := services.NewValuationService(db)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler()
	accountHandler := handlers.NewAccountHandler(accountService)
	securityHandler := handlers.NewSecurityHandler(securityService)
	lotHandler := handlers.NewLotHandler(lotService)
	disposalHandler := handlers.NewDisposalHandler(disposalService)
	valuationHandler := handlers.NewValuationHandler(valuationService)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group
	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/token", authHandler.IssueToken)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	// Account routes
	accounts := protected.Group("/accounts")
	accounts.POST("", accountHandler.CreateAccount)
	accounts.GET("", accountHandler.GetAccounts)
	accounts.GET("/:id", accountHandler.GetAccountByID)
	accounts.GET("/:id/securities/:securityId/lots", lotHandler.GetHoldingLots)
	accounts.POST("/:id/securities/:securityId/lots/batch", lotHandler.SaveBatch)
	accounts.GET("/:id/securities/:securityId/disposals", disposalHandler.GetHoldingDisposals)
	accounts.GET("/:id/securities/:securityId/valuation", valuationHandler.GetHoldingValuation)
	accounts.GET("/:id/realized", valuationHandler.GetRealizedGainLoss)

	// Security routes
	securities := protected.Group("/securities")
	securities.POST("", securityHandler.CreateSecurity)
	securities.GET("", securityHandler.GetSecurities)
	securities.GET("/:id", securityHandler.GetSecurityByID)
	securities.POST("/:id/prices", securityHandler.RecordPrice)
	securities.GET("/:id/prices/latest", securityHandler.GetLatestPrice)

	// Lot routes
	lots := protected.Group("/lots")
	lots.POST("", lotHandler.CreateLot)
	lots.PUT("/:id", lotHandler.EditLot)
	lots.DELETE("/:id", lotHandler.DeleteLot)
	lots.POST("/remainder", lotHandler.ResolveRemainder)

	// Disposal routes
	disposals := protected.Group("/disposals")
	disposals.POST("", disposalHandler.RecordDisposal)
	disposals.GET("/:id", disposalHandler.GetDisposal)
	disposals.PUT("/:id/assignments", disposalHandler.ReassignDisposal)
	disposals.GET("/:id/candidates", disposalHandler.GetReassignmentCandidates)
	disposals.DELETE("/:id", disposalHandler.DeleteDisposal)

	log.Infof("Starting Lotkeeper backend server on port %s", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
