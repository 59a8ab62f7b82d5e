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
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"lotkeeper/internal/handlers"
	"lotkeeper/internal/locking"
	"lotkeeper/internal/logger"
	"lotkeeper/internal/middleware"
	"lotkeeper/internal/models"
	"lotkeeper/internal/services"
	"lotkeeper/internal/validator"
)

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
		&models.Account{},
		&models.Security{},
		&models.SecurityPrice{},
		&models.Lot{},
		&models.DisposalGroup{},
		&models.DisposalAssignment{},
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
	locks := locking.NewKeyedLock(time.Second)
	auditService := services.NewAuditService(db)
	accountService := services.NewAccountService(db)
	securityService := services.NewSecurityService(db)
	lotService := services.NewLotService(db, locks, auditService)
	disposalService := services.NewDisposalService(db, locks, auditService)
	valuationService := services.NewValuationService(db)

	// Handlers
	authHandler := handlers.NewAuthHandler()
	accountHandler := handlers.NewAccountHandler(accountService)
	securityHandler := handlers.NewSecurityHandler(securityService)
	lotHandler := handlers.NewLotHandler(lotService)
	disposalHandler := handlers.NewDisposalHandler(disposalService)
	valuationHandler := handlers.NewValuationHandler(valuationService)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())

	v1 := router.Group("/api/v1")

	// Public auth routes
	auth := v1.Group("/auth")
	auth.POST("/token", authHandler.IssueToken)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	accounts := protected.Group("/accounts")
	accounts.POST("", accountHandler.CreateAccount)
	accounts.GET("", accountHandler.GetAccounts)
	accounts.GET("/:id", accountHandler.GetAccountByID)
	accounts.GET("/:id/securities/:securityId/lots", lotHandler.GetHoldingLots)
	accounts.POST("/:id/securities/:securityId/lots/batch", lotHandler.SaveBatch)
	accounts.GET("/:id/securities/:securityId/disposals", disposalHandler.GetHoldingDisposals)
	accounts.GET("/:id/securities/:securityId/valuation", valuationHandler.GetHoldingValuation)
	accounts.GET("/:id/realized", valuationHandler.GetRealizedGainLoss)

	securities := protected.Group("/securities")
	securities.POST("", securityHandler.CreateSecurity)
	securities.GET("", securityHandler.GetSecurities)
	securities.GET("/:id", securityHandler.GetSecurityByID)
	securities.POST("/:id/prices", securityHandler.RecordPrice)
	securities.GET("/:id/prices/latest", securityHandler.GetLatestPrice)

	lots := protected.Group("/lots")
	lots.POST("", lotHandler.CreateLot)
	lots.PUT("/:id", lotHandler.EditLot)
	lots.DELETE("/:id", lotHandler.DeleteLot)
	lots.POST("/remainder", lotHandler.ResolveRemainder)

	disposals := protected.Group("/disposals")
	disposals.POST("", disposalHandler.RecordDisposal)
	disposals.GET("/:id", disposalHandler.GetDisposal)
	disposals.PUT("/:id/assignments", disposalHandler.ReassignDisposal)
	disposals.GET("/:id/candidates", disposalHandler.GetReassignmentCandidates)
	disposals.DELETE("/:id", disposalHandler.DeleteDisposal)

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

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

// issueToken exchanges the configured access key for a bearer token.
func (app *testApp) issueToken(t *testing.T) string {
	t.Helper()
	rec := app.request("POST", "/api/v1/auth/token", `{"access_key":"dev-access-key"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("token issue failed: %d %s", rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["token"].(string)
}

// createAccount creates a brokerage account and returns its ID.
func (app *testApp) createAccount(t *testing.T, token string) string {
	t.Helper()
	rec := app.request("POST", "/api/v1/accounts",
		`{"name":"Brokerage","broker":"Interactive Brokers","currency":"USD"}`, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account failed: %d %s", rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["id"].(string)
}

// createSecurity creates a security and returns its ID.
func (app *testApp) createSecurity(t *testing.T, token, symbol string) string {
	t.Helper()
	body := fmt.Sprintf(`{"symbol":%q,"name":"Test Corp","asset_type":"stock","currency":"USD","exchange":"NASDAQ"}`, symbol)
	rec := app.request("POST", "/api/v1/securities", body, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create security failed: %d %s", rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["id"].(string)
}

// createLot creates a manual lot and returns its ID.
func (app *testApp) createLot(t *testing.T, token, accountID, securityID string, quantity float64, basisCents int64) string {
	t.Helper()
	body := fmt.Sprintf(`{"account_id":%q,"security_id":%q,"source":"manual","acquisition_date":"2024-01-15T00:00:00Z","cost_basis_per_unit":%d,"quantity":%g}`,
		accountID, securityID, basisCents, quantity)
	rec := app.request("POST", "/api/v1/lots", body, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create lot failed: %d %s", rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["id"].(string)
}
