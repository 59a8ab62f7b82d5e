package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "lotkeeper/internal/errors"
	"lotkeeper/internal/models"
	"lotkeeper/internal/pagination"
	"lotkeeper/internal/services"
)

// --- mock security service ---

type mockSecurityService struct {
	createSecurityFn  func(symbol, name string, assetType models.AssetType, currency, exchange string) (*models.Security, error)
	getSecuritiesFn   func(page pagination.PageRequest, search string) (*pagination.PageResponse[models.Security], error)
	getSecurityByIDFn func(securityID string) (*models.Security, error)
	recordPriceFn     func(securityID string, price int64, recordedAt *time.Time) (*models.SecurityPrice, error)
	latestPriceFn     func(securityID string) (*models.SecurityPrice, error)
}

var _ services.SecurityServicer = (*mockSecurityService)(nil)

func (m *mockSecurityService) CreateSecurity(symbol, name string, assetType models.AssetType, currency, exchange string) (*models.Security, error) {
	if m.createSecurityFn != nil {
		return m.createSecurityFn(symbol, name, assetType, currency, exchange)
	}
	return &models.Security{}, nil
}

func (m *mockSecurityService) GetSecurities(page pagination.PageRequest, search string) (*pagination.PageResponse[models.Security], error) {
	if m.getSecuritiesFn != nil {
		return m.getSecuritiesFn(page, search)
	}
	resp := pagination.NewPageResponse([]models.Security{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockSecurityService) GetSecurityByID(securityID string) (*models.Security, error) {
	if m.getSecurityByIDFn != nil {
		return m.getSecurityByIDFn(securityID)
	}
	return &models.Security{}, nil
}

func (m *mockSecurityService) RecordPrice(securityID string, price int64, recordedAt *time.Time) (*models.SecurityPrice, error) {
	if m.recordPriceFn != nil {
		return m.recordPriceFn(securityID, price, recordedAt)
	}
	return &models.SecurityPrice{}, nil
}

func (m *mockSecurityService) LatestPrice(securityID string) (*models.SecurityPrice, error) {
	if m.latestPriceFn != nil {
		return m.latestPriceFn(securityID)
	}
	return &models.SecurityPrice{}, nil
}

// --- router setup ---

func setupSecurityRouter(handler *SecurityHandler) *gin.Engine {
	r := gin.New()
	r.POST("/securities", handler.CreateSecurity)
	r.GET("/securities", handler.GetSecurities)
	r.GET("/securities/:id", handler.GetSecurityByID)
	r.POST("/securities/:id/prices", handler.RecordPrice)
	r.GET("/securities/:id/prices/latest", handler.GetLatestPrice)
	return r
}

// --- tests ---

func TestSecurityHandler_CreateSecurity(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		svc := &mockSecurityService{
			createSecurityFn: func(symbol, name string, assetType models.AssetType, currency, exchange string) (*models.Security, error) {
				return &models.Security{
					Base:      models.Base{ID: testSecurityID},
					Symbol:    symbol,
					Name:      name,
					AssetType: assetType,
					Currency:  currency,
					Exchange:  exchange,
				}, nil
			},
		}
		r := setupSecurityRouter(NewSecurityHandler(svc))

		rec := doRequest(r, "POST", "/securities",
			`{"symbol":"AAPL","name":"Apple Inc.","asset_type":"stock","currency":"USD","exchange":"NASDAQ"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		if result["symbol"] != "AAPL" {
			t.Errorf("expected symbol=AAPL, got %v", result["symbol"])
		}
	})

	t.Run("returns 400 on invalid asset type", func(t *testing.T) {
		r := setupSecurityRouter(NewSecurityHandler(&mockSecurityService{}))

		rec := doRequest(r, "POST", "/securities",
			`{"symbol":"AAPL","name":"Apple Inc.","asset_type":"invalid"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns 409 on duplicate symbol", func(t *testing.T) {
		svc := &mockSecurityService{
			createSecurityFn: func(_, _ string, _ models.AssetType, _, _ string) (*models.Security, error) {
				return nil, apperrors.ErrDuplicateSymbol
			},
		}
		r := setupSecurityRouter(NewSecurityHandler(svc))

		rec := doRequest(r, "POST", "/securities",
			`{"symbol":"AAPL","name":"Apple Inc.","asset_type":"stock"}`)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
		}
		assertErrorCode(t, parseJSON(t, rec), "DUPLICATE_SYMBOL")
	})
}

func TestSecurityHandler_RecordPrice(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		svc := &mockSecurityService{
			recordPriceFn: func(securityID string, price int64, _ *time.Time) (*models.SecurityPrice, error) {
				return &models.SecurityPrice{SecurityID: securityID, Price: price, RecordedAt: time.Now()}, nil
			},
		}
		r := setupSecurityRouter(NewSecurityHandler(svc))

		rec := doRequest(r, "POST", "/securities/"+testSecurityID+"/prices", `{"price":20000}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if parseJSON(t, rec)["price"].(float64) != 20000 {
			t.Error("expected recorded price in response")
		}
	})

	t.Run("returns 404 on unknown security", func(t *testing.T) {
		svc := &mockSecurityService{
			recordPriceFn: func(_ string, _ int64, _ *time.Time) (*models.SecurityPrice, error) {
				return nil, apperrors.ErrSecurityNotFound
			},
		}
		r := setupSecurityRouter(NewSecurityHandler(svc))

		rec := doRequest(r, "POST", "/securities/"+testSecurityID+"/prices", `{"price":20000}`)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
		}
		assertErrorCode(t, parseJSON(t, rec), "SECURITY_NOT_FOUND")
	})
}

func TestSecurityHandler_GetLatestPrice(t *testing.T) {
	t.Run("returns 404 when no price recorded", func(t *testing.T) {
		svc := &mockSecurityService{
			latestPriceFn: func(_ string) (*models.SecurityPrice, error) {
				return nil, apperrors.ErrNotFound
			},
		}
		r := setupSecurityRouter(NewSecurityHandler(svc))

		rec := doRequest(r, "GET", "/securities/"+testSecurityID+"/prices/latest", "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}
