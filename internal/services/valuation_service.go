package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "lotkeeper/internal/errors"
	"lotkeeper/internal/models"
)

// valuationService is a pure read-side projection over the lot ledger and
// recorded disposals. It never mutates state and takes no locks.
type valuationService struct {
	db *gorm.DB
}

// NewValuationService creates a new ValuationServicer.
func NewValuationService(db *gorm.DB) ValuationServicer {
	return &valuationService{db: db}
}

// HoldingValuation aggregates a holding's cost basis, market value,
// unrealized gain/loss and coverage from its lots and the latest market
// price. Gain/loss fields stay nil when no price is known.
func (s *valuationService) HoldingValuation(accountID, securityID string) (*HoldingValuation, error) {
	if err := s.db.First(&models.Account{}, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := s.db.First(&models.Security{}, "id = ?", securityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSecurityNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var lots []models.Lot
	if err := s.db.Where("account_id = ? AND security_id = ?", accountID, securityID).Find(&lots).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	valuation := &HoldingValuation{
		AccountID:      accountID,
		SecurityID:     securityID,
		TotalCostBasis: TotalCostBasis(lots),
	}
	for i := range lots {
		valuation.TotalQuantity += lots[i].CurrentQuantity
	}
	valuation.CoveragePercent = CoveragePercent(lots)
	valuation.Partial = valuation.CoveragePercent < 100

	prices, err := latestPrices(s.db, []string{securityID})
	if err != nil {
		return nil, err
	}
	if p, ok := prices[securityID]; ok {
		price := p.Price
		valuation.MarketPrice = &price
		valuation.PriceStale = priceIsStale(p)

		value := int64(valuation.TotalQuantity * float64(price))
		valuation.MarketValue = &value

		gl := UnrealizedGainLoss(lots, price)
		valuation.UnrealizedGainLoss = &gl
		if valuation.TotalCostBasis != 0 {
			pct := float64(gl) / float64(valuation.TotalCostBasis) * 100
			valuation.UnrealizedGainLossPct = &pct
		}
	}

	return valuation, nil
}

// RealizedGainLossYTD sums realized gain/loss over the disposal groups dated
// in the given calendar year, optionally restricted to one security. Groups
// consuming any lot with an unknown basis are excluded from the sum and
// counted separately.
func (s *valuationService) RealizedGainLossYTD(accountID string, securityID string, year int) (*RealizedSummary, error) {
	if err := s.db.First(&models.Account{}, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	query := s.db.Preload("Assignments").Preload("Assignments.Lot").
		Where("account_id = ? AND date >= ? AND date < ?", accountID, from, to)
	if securityID != "" {
		query = query.Where("security_id = ?", securityID)
	}

	var groups []models.DisposalGroup
	if err := query.Find(&groups).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	summary := &RealizedSummary{
		Year:       year,
		AccountID:  accountID,
		SecurityID: securityID,
		Groups:     len(groups),
	}
	for i := range groups {
		gl := RealizedGainLoss(&groups[i])
		if gl == nil {
			summary.GroupsWithUnknownBasis++
			continue
		}
		summary.RealizedGainLoss += *gl
	}
	return summary, nil
}
