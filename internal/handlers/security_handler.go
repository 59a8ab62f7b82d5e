package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "lotkeeper/internal/errors"
	"lotkeeper/internal/models"
	"lotkeeper/internal/pagination"
	"lotkeeper/internal/services"
)

// SecurityHandler handles security and market-price requests.
type SecurityHandler struct {
	securityService services.SecurityServicer
}

// NewSecurityHandler creates a new SecurityHandler.
func NewSecurityHandler(securityService services.SecurityServicer) *SecurityHandler {
	return &SecurityHandler{securityService: securityService}
}

// CreateSecurityRequest represents the request payload for registering a security.
type CreateSecurityRequest struct {
	Symbol    string           `json:"symbol" binding:"required,min=1,max=20"`
	Name      string           `json:"name" binding:"required,min=1,max=200"`
	AssetType models.AssetType `json:"asset_type" binding:"required,asset_type"`
	Currency  string           `json:"currency" binding:"omitempty,iso4217"`
	Exchange  string           `json:"exchange" binding:"max=50"`
}

// RecordPriceRequest represents the request payload for recording a market price.
type RecordPriceRequest struct {
	Price      int64      `json:"price" binding:"gte=0"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

// CreateSecurity handles registering a new security.
func (h *SecurityHandler) CreateSecurity(c *gin.Context) {
	var req CreateSecurityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	security, err := h.securityService.CreateSecurity(req.Symbol, req.Name, req.AssetType, req.Currency, req.Exchange)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, security)
}

// GetSecurities handles listing securities with an optional search filter.
func (h *SecurityHandler) GetSecurities(c *gin.Context) {
	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	securities, err := h.securityService.GetSecurities(page, c.Query("search"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, securities)
}

// GetSecurityByID handles fetching a single security.
func (h *SecurityHandler) GetSecurityByID(c *gin.Context) {
	securityID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	security, err := h.securityService.GetSecurityByID(securityID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, security)
}

// RecordPrice handles storing a market price observation for a security.
func (h *SecurityHandler) RecordPrice(c *gin.Context) {
	securityID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req RecordPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	price, err := h.securityService.RecordPrice(securityID, req.Price, req.RecordedAt)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, price)
}

// GetLatestPrice handles fetching the most recent price for a security.
func (h *SecurityHandler) GetLatestPrice(c *gin.Context) {
	securityID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	price, err := h.securityService.LatestPrice(securityID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, price)
}
