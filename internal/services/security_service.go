package services

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	apperrors "lotkeeper/internal/errors"
	"lotkeeper/internal/models"
	"lotkeeper/internal/pagination"
)

// latestPrices fetches the most recent price for each security ID from
// security_prices. Returns a map of security_id -> SecurityPrice. Securities
// with no price entries are not included in the map: absence means the price
// is unknown, and callers must treat it that way rather than default to zero.
func latestPrices(db *gorm.DB, securityIDs []string) (map[string]models.SecurityPrice, error) {
	if len(securityIDs) == 0 {
		return map[string]models.SecurityPrice{}, nil
	}

	var rows []models.SecurityPrice

	subq := db.Table("security_prices").
		Select("security_id, MAX(recorded_at) AS max_recorded").
		Where("security_id IN ?", securityIDs).
		Group("security_id")

	if err := db.Table("security_prices sp").
		Select("sp.id, sp.security_id, sp.price, sp.recorded_at").
		Joins("INNER JOIN (?) latest ON sp.security_id = latest.security_id AND sp.recorded_at = latest.max_recorded", subq).
		Scan(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := make(map[string]models.SecurityPrice, len(rows))
	for _, r := range rows {
		result[r.SecurityID] = r
	}
	return result, nil
}

// securityService handles security and market-price logic.
type securityService struct {
	db *gorm.DB
}

// NewSecurityService creates a new SecurityServicer.
func NewSecurityService(db *gorm.DB) SecurityServicer {
	return &securityService{db: db}
}

// CreateSecurity registers a new security.
func (s *securityService) CreateSecurity(symbol, name string, assetType models.AssetType, currency, exchange string) (*models.Security, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "symbol is required")
	}
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "name is required")
	}
	if currency == "" {
		currency = "USD"
	}

	var existing models.Security
	err := s.db.Where("symbol = ? AND exchange = ?", symbol, exchange).First(&existing).Error
	if err == nil {
		return nil, apperrors.ErrDuplicateSymbol
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	security := &models.Security{
		Symbol:    symbol,
		Name:      name,
		AssetType: assetType,
		Currency:  currency,
		Exchange:  exchange,
	}
	if err := s.db.Create(security).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return security, nil
}

// GetSecurities returns a paginated list of securities, optionally filtered
// by a symbol/name substring.
func (s *securityService) GetSecurities(page pagination.PageRequest, search string) (*pagination.PageResponse[models.Security], error) {
	page.Defaults()

	base := s.db.Model(&models.Security{})
	if search != "" {
		like := "%" + strings.ToUpper(search) + "%"
		base = base.Where("UPPER(symbol) LIKE ? OR UPPER(name) LIKE ?", like, like)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var securities []models.Security
	if err := base.Order("symbol ASC").Scopes(pagination.Paginate(page)).Find(&securities).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(securities, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetSecurityByID returns a security by its ID.
func (s *securityService) GetSecurityByID(securityID string) (*models.Security, error) {
	var security models.Security
	if err := s.db.First(&security, "id = ?", securityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSecurityNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &security, nil
}

// RecordPrice stores a market price observation for a security. recordedAt
// defaults to now; the feed may backfill with explicit timestamps.
func (s *securityService) RecordPrice(securityID string, price int64, recordedAt *time.Time) (*models.SecurityPrice, error) {
	if price < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "price must not be negative")
	}
	if _, err := s.GetSecurityByID(securityID); err != nil {
		return nil, err
	}

	at := time.Now()
	if recordedAt != nil {
		at = *recordedAt
	}

	entry := &models.SecurityPrice{
		SecurityID: securityID,
		Price:      price,
		RecordedAt: at,
	}
	if err := s.db.Create(entry).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return entry, nil
}

// LatestPrice returns the most recent price observation for a security, or
// ErrNotFound when no price has ever been recorded.
func (s *securityService) LatestPrice(securityID string) (*models.SecurityPrice, error) {
	if _, err := s.GetSecurityByID(securityID); err != nil {
		return nil, err
	}

	prices, err := latestPrices(s.db, []string{securityID})
	if err != nil {
		return nil, err
	}
	p, ok := prices[securityID]
	if !ok {
		return nil, apperrors.WithMessage(apperrors.ErrNotFound, "No price recorded for this security")
	}
	return &p, nil
}
