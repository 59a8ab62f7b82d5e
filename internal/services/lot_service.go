package services

import (
	"errors"
	"fmt"
	"math"

	"gorm.io/gorm"

	apperrors "lotkeeper/internal/errors"
	"lotkeeper/internal/locking"
	"lotkeeper/internal/models"
)

// lotService implements the lot ledger. All mutations take the holding's
// (account, security) lock and run inside a single transaction.
type lotService struct {
	db    *gorm.DB
	locks *locking.KeyedLock
	audit AuditServicer
}

// NewLotService creates a new LotServicer.
func NewLotService(db *gorm.DB, locks *locking.KeyedLock, audit AuditServicer) LotServicer {
	return &lotService{db: db, locks: locks, audit: audit}
}

// validateLotCreate checks a lot creation payload. The lot API only creates
// manual, inferred and initial lots; activity lots come from ingestion.
func validateLotCreate(create LotCreate) error {
	if !create.Source.Valid() || !create.Source.Mutable() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, fmt.Sprintf("invalid lot source %q", create.Source))
	}
	if create.Quantity <= 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity must be positive")
	}
	if create.CostBasisPerUnit == nil {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "cost basis per unit is required")
	}
	if *create.CostBasisPerUnit < 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "cost basis must not be negative")
	}
	return nil
}

// applyLotUpdate mutates a loaded lot according to an update, enforcing
// source mutability and the rule that the original quantity can never drop
// below what disposals have already consumed.
func applyLotUpdate(tx *gorm.DB, lot *models.Lot, update LotUpdate) error {
	if !lot.Source.Mutable() {
		return apperrors.ErrImmutableSource
	}

	if update.AcquisitionDate != nil {
		lot.AcquisitionDate = update.AcquisitionDate
	}
	if update.CostBasisPerUnit != nil {
		if *update.CostBasisPerUnit < 0 {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "cost basis must not be negative")
		}
		lot.CostBasisPerUnit = update.CostBasisPerUnit
	}
	if update.Notes != nil {
		lot.Notes = *update.Notes
	}
	if update.Quantity != nil {
		newOriginal := *update.Quantity
		if newOriginal <= 0 {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity must be positive")
		}
		disposed := lot.DisposedQuantity()
		if newOriginal < disposed-models.QuantityTolerance {
			return apperrors.WithMessage(apperrors.ErrInvalidInput,
				fmt.Sprintf("quantity %.4f is below the already-disposed %.4f", newOriginal, disposed))
		}
		lot.OriginalQuantity = newOriginal
		lot.CurrentQuantity = newOriginal - disposed
		lot.SettleQuantity()
	}

	if err := tx.Save(lot).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// CreateLot creates a new open lot for a holding.
func (s *lotService) CreateLot(accountID, securityID string, create LotCreate) (*models.Lot, error) {
	if err := validateLotCreate(create); err != nil {
		return nil, err
	}

	var account models.Account
	if err := s.db.First(&account, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	var security models.Security
	if err := s.db.First(&security, "id = ?", securityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSecurityNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	lot := &models.Lot{
		AccountID:        accountID,
		SecurityID:       securityID,
		Ticker:           security.Symbol,
		AcquisitionDate:  create.AcquisitionDate,
		CostBasisPerUnit: create.CostBasisPerUnit,
		OriginalQuantity: create.Quantity,
		CurrentQuantity:  create.Quantity,
		Source:           create.Source,
		Notes:            create.Notes,
	}

	err := s.locks.WithLock(locking.Key(accountID, securityID), func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			if txErr := tx.Create(lot).Error; txErr != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log("lot.create", "lot", lot.ID, map[string]any{
		"source": lot.Source, "quantity": lot.OriginalQuantity,
	})
	return lot, nil
}

// EditLot updates a lot's acquisition date, cost basis, original quantity or
// notes. Activity-sourced lots are immutable.
func (s *lotService) EditLot(lotID string, update LotUpdate) (*models.Lot, error) {
	var lot models.Lot
	if err := s.db.First(&lot, "id = ?", lotID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrLotNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	err := s.locks.WithLock(locking.Key(lot.AccountID, lot.SecurityID), func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			// Reload under the lock; the unlocked read above was only for routing.
			if txErr := tx.First(&lot, "id = ?", lotID).Error; txErr != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
			}
			return applyLotUpdate(tx, &lot, update)
		})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log("lot.edit", "lot", lot.ID, map[string]any{
		"quantity": lot.OriginalQuantity, "closed": lot.Closed,
	})
	return &lot, nil
}

// DeleteLot removes a lot that has no disposal history. Lots referenced by
// disposal assignments must have those disposals reassigned or removed first,
// otherwise recorded realized gain/loss would silently change.
func (s *lotService) DeleteLot(lotID string) error {
	var lot models.Lot
	if err := s.db.First(&lot, "id = ?", lotID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrLotNotFound
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if !lot.Source.Mutable() {
		return apperrors.ErrImmutableSource
	}

	err := s.locks.WithLock(locking.Key(lot.AccountID, lot.SecurityID), func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			var refs int64
			if txErr := tx.Model(&models.DisposalAssignment{}).Where("lot_id = ?", lotID).Count(&refs).Error; txErr != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
			}
			if refs > 0 {
				return apperrors.ErrLotHasDisposals
			}
			if txErr := tx.Delete(&lot).Error; txErr != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.audit.Log("lot.delete", "lot", lot.ID, nil)
	return nil
}

// ListLotsBySecurity returns all lots (open and closed) for a holding,
// annotated with total cost and, when a market price is known, unrealized
// gain/loss, plus the holding's coverage summary.
func (s *lotService) ListLotsBySecurity(accountID, securityID string) (*HoldingLots, error) {
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
	if err := s.db.Where("account_id = ? AND security_id = ?", accountID, securityID).
		Order("acquisition_date ASC, created_at ASC").Find(&lots).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	prices, err := latestPrices(s.db, []string{securityID})
	if err != nil {
		return nil, err
	}

	holding := &HoldingLots{
		AccountID:  accountID,
		SecurityID: securityID,
		Lots:       make([]LotView, 0, len(lots)),
	}

	var marketPrice *int64
	if p, ok := prices[securityID]; ok {
		price := p.Price
		marketPrice = &price
		holding.MarketPrice = &price
		holding.PriceStale = priceIsStale(p)
	}

	for i := range lots {
		lot := lots[i]
		view := LotView{Lot: lot, TotalCost: lot.TotalCost()}
		if marketPrice != nil {
			view.UnrealizedGainLoss = lot.UnrealizedGainLoss(*marketPrice)
			if view.UnrealizedGainLoss != nil && view.TotalCost != nil && *view.TotalCost != 0 {
				pct := float64(*view.UnrealizedGainLoss) / float64(*view.TotalCost) * 100
				view.GainLossPct = &pct
			}
		}
		holding.Lots = append(holding.Lots, view)
		holding.TotalQuantity += lot.CurrentQuantity
	}

	holding.CoveragePercent = CoveragePercent(lots)
	holding.Partial = holding.CoveragePercent < 100
	return holding, nil
}

// ResolveRemainder computes the remainder lot quantity needed so that the
// user-entered lots plus the remainder reconcile to the holding's total
// quantity. A negative remainder (beyond rounding tolerance) means the
// entered lots would exceed the holding.
func ResolveRemainder(holdingQuantity, otherLotsTotal, newLotQuantity float64) (float64, error) {
	remainder := holdingQuantity - otherLotsTotal - newLotQuantity
	if remainder < -models.QuantityTolerance {
		return 0, apperrors.ErrExceedsHolding
	}
	return math.Max(remainder, 0), nil
}

// SaveBatch applies lot edits and creations (including a remainder lot, if
// any) as one atomic unit: if any item fails validation nothing is applied.
// After applying, the holding's lot quantities must reconcile with
// holdingQuantity — over by more than tolerance fails with ExceedsHolding,
// under means a remainder lot is missing and fails validation.
func (s *lotService) SaveBatch(accountID, securityID string, holdingQuantity float64, updates []LotUpdate, creates []LotCreate) ([]models.Lot, error) {
	if holdingQuantity < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "holding quantity must not be negative")
	}
	for _, create := range creates {
		if err := validateLotCreate(create); err != nil {
			return nil, err
		}
	}

	var security models.Security
	if err := s.db.First(&security, "id = ?", securityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSecurityNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := s.db.First(&models.Account{}, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var result []models.Lot
	err := s.locks.WithLock(locking.Key(accountID, securityID), func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			for _, update := range updates {
				var lot models.Lot
				if txErr := tx.First(&lot, "id = ?", update.LotID).Error; txErr != nil {
					if errors.Is(txErr, gorm.ErrRecordNotFound) {
						return apperrors.ErrLotNotFound
					}
					return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
				}
				if lot.AccountID != accountID || lot.SecurityID != securityID {
					return apperrors.WithMessage(apperrors.ErrInvalidInput, "lot does not belong to this holding")
				}
				if txErr := applyLotUpdate(tx, &lot, update); txErr != nil {
					return txErr
				}
			}

			for _, create := range creates {
				lot := models.Lot{
					AccountID:        accountID,
					SecurityID:       securityID,
					Ticker:           security.Symbol,
					AcquisitionDate:  create.AcquisitionDate,
					CostBasisPerUnit: create.CostBasisPerUnit,
					OriginalQuantity: create.Quantity,
					CurrentQuantity:  create.Quantity,
					Source:           create.Source,
					Notes:            create.Notes,
				}
				if txErr := tx.Create(&lot).Error; txErr != nil {
					return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
				}
			}

			// Reconcile the holding: lots must cover the holding's total
			// quantity exactly, no more and no less.
			var lots []models.Lot
			if txErr := tx.Where("account_id = ? AND security_id = ?", accountID, securityID).
				Order("acquisition_date ASC, created_at ASC").Find(&lots).Error; txErr != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
			}
			var total float64
			for i := range lots {
				total += lots[i].CurrentQuantity
			}
			if total > holdingQuantity+models.QuantityTolerance {
				return apperrors.ErrExceedsHolding
			}
			if total < holdingQuantity-models.QuantityTolerance {
				return apperrors.WithMessage(apperrors.ErrInvalidInput,
					fmt.Sprintf("lots cover %.4f of %.4f units; add a remainder lot for the gap", total, holdingQuantity))
			}

			result = lots
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log("lot.batch", "holding", accountID, map[string]any{
		"security_id": securityID, "updates": len(updates), "creates": len(creates),
		"holding_quantity": holdingQuantity,
	})
	return result, nil
}
