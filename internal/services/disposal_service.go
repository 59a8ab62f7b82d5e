package services

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	apperrors "lotkeeper/internal/errors"
	"lotkeeper/internal/locking"
	"lotkeeper/internal/models"
	"lotkeeper/internal/pagination"
)

// disposalService records sell events against lots and supports correcting
// their lot consumption afterwards. All mutations are serialized per holding
// and run in a single transaction.
type disposalService struct {
	db    *gorm.DB
	locks *locking.KeyedLock
	audit AuditServicer
}

// NewDisposalService creates a new DisposalServicer.
func NewDisposalService(db *gorm.DB, locks *locking.KeyedLock, audit AuditServicer) DisposalServicer {
	return &disposalService{db: db, locks: locks, audit: audit}
}

// validateAssignments checks the caller-supplied lot consumption against the
// required total: positive quantities, distinct lots, sum within tolerance.
func validateAssignments(assignments []AssignmentInput, totalQuantity float64) error {
	if len(assignments) == 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "at least one lot assignment is required")
	}
	seen := make(map[string]bool, len(assignments))
	var sum float64
	for _, a := range assignments {
		if a.LotID == "" {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "assignment lot id is required")
		}
		if a.Quantity <= 0 {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "assignment quantity must be positive")
		}
		if seen[a.LotID] {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "duplicate lot in assignments")
		}
		seen[a.LotID] = true
		sum += a.Quantity
	}
	if math.Abs(sum-totalQuantity) > models.QuantityTolerance {
		return apperrors.WithMessage(apperrors.ErrQuantityMismatch,
			fmt.Sprintf("assignments sum to %.4f, disposal total is %.4f", sum, totalQuantity))
	}
	return nil
}

// consumeLots applies assignments against their lots inside a transaction:
// each lot's current quantity is decremented and lots reaching zero close.
// One DisposalAssignment row is created per entry.
func consumeLots(tx *gorm.DB, group *models.DisposalGroup, assignments []AssignmentInput) error {
	for _, a := range assignments {
		var lot models.Lot
		if err := tx.First(&lot, "id = ?", a.LotID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrLotNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if lot.AccountID != group.AccountID || lot.SecurityID != group.SecurityID {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "lot does not belong to the disposal's holding")
		}
		if lot.CurrentQuantity < a.Quantity-models.QuantityTolerance {
			return apperrors.WithMessage(apperrors.ErrInsufficientLotQuantity,
				fmt.Sprintf("lot %s has %.4f units available, %.4f assigned", lot.ID, lot.CurrentQuantity, a.Quantity))
		}

		lot.CurrentQuantity -= a.Quantity
		lot.SettleQuantity()
		if err := tx.Save(&lot).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		assignment := models.DisposalAssignment{
			DisposalGroupID: group.ID,
			LotID:           lot.ID,
			Quantity:        a.Quantity,
		}
		if err := tx.Create(&assignment).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	return nil
}

// restoreLots reverses a group's assignments: each consumed quantity is added
// back to its lot, reopening lots that become non-zero. Applies uniformly to
// whichever lots were originally consumed, including since-closed ones.
func restoreLots(tx *gorm.DB, assignments []models.DisposalAssignment) error {
	for _, a := range assignments {
		var lot models.Lot
		if err := tx.First(&lot, "id = ?", a.LotID).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		lot.CurrentQuantity += a.Quantity
		lot.SettleQuantity()
		if err := tx.Save(&lot).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	return nil
}

// loadGroup fetches a disposal group with its assignments and their lots.
func (s *disposalService) loadGroup(db *gorm.DB, disposalGroupID string) (*models.DisposalGroup, error) {
	var group models.DisposalGroup
	if err := db.Preload("Assignments").Preload("Assignments.Lot").
		First(&group, "id = ?", disposalGroupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrDisposalNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &group, nil
}

// RecordDisposal records a sell event and its lot consumption atomically.
// Which lots are consumed is the caller's choice; the engine validates that
// the assignments sum to the disposal total and fit within each lot.
func (s *disposalService) RecordDisposal(accountID, securityID string, date time.Time, totalQuantity float64, proceedsPerUnit int64, assignments []AssignmentInput) (*DisposalView, error) {
	if totalQuantity <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "disposal quantity must be positive")
	}
	if proceedsPerUnit < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "proceeds must not be negative")
	}
	if err := validateAssignments(assignments, totalQuantity); err != nil {
		return nil, err
	}

	group := &models.DisposalGroup{
		AccountID:       accountID,
		SecurityID:      securityID,
		Date:            date,
		TotalQuantity:   totalQuantity,
		ProceedsPerUnit: proceedsPerUnit,
	}

	err := s.locks.WithLock(locking.Key(accountID, securityID), func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			if txErr := tx.Create(group).Error; txErr != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
			}
			return consumeLots(tx, group, assignments)
		})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log("disposal.record", "disposal_group", group.ID, map[string]any{
		"quantity": totalQuantity, "lots": len(assignments),
	})
	return s.GetDisposalGroup(group.ID)
}

// ReassignDisposal replaces which lots a historical disposal consumed without
// changing its total quantity, date or proceeds. The reversal of the old
// assignments and the application of the new set happen in one transaction;
// a validation failure rolls the reversal back too.
func (s *disposalService) ReassignDisposal(disposalGroupID string, assignments []AssignmentInput) (*DisposalView, error) {
	group, err := s.loadGroup(s.db, disposalGroupID)
	if err != nil {
		return nil, err
	}
	if err := validateAssignments(assignments, group.TotalQuantity); err != nil {
		return nil, err
	}

	err = s.locks.WithLock(locking.Key(group.AccountID, group.SecurityID), func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			// Reload under the lock so the reversal works from current state.
			current, txErr := s.loadGroup(tx, disposalGroupID)
			if txErr != nil {
				return txErr
			}

			if txErr := restoreLots(tx, current.Assignments); txErr != nil {
				return txErr
			}
			if len(current.Assignments) > 0 {
				if txErr := tx.Where("disposal_group_id = ?", current.ID).
					Delete(&models.DisposalAssignment{}).Error; txErr != nil {
					return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
				}
			}

			return consumeLots(tx, current, assignments)
		})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log("disposal.reassign", "disposal_group", group.ID, map[string]any{
		"lots": len(assignments),
	})
	return s.GetDisposalGroup(group.ID)
}

// DeleteDisposal removes a disposal record, restoring the consumed quantity
// to its lots.
func (s *disposalService) DeleteDisposal(disposalGroupID string) error {
	group, err := s.loadGroup(s.db, disposalGroupID)
	if err != nil {
		return err
	}

	err = s.locks.WithLock(locking.Key(group.AccountID, group.SecurityID), func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			current, txErr := s.loadGroup(tx, disposalGroupID)
			if txErr != nil {
				return txErr
			}
			if txErr := restoreLots(tx, current.Assignments); txErr != nil {
				return txErr
			}
			if txErr := tx.Where("disposal_group_id = ?", current.ID).
				Delete(&models.DisposalAssignment{}).Error; txErr != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
			}
			if txErr := tx.Delete(&models.DisposalGroup{}, "id = ?", current.ID).Error; txErr != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.audit.Log("disposal.delete", "disposal_group", group.ID, nil)
	return nil
}

// GetDisposalGroup returns a disposal group with assignments and realized
// gain/loss.
func (s *disposalService) GetDisposalGroup(disposalGroupID string) (*DisposalView, error) {
	group, err := s.loadGroup(s.db, disposalGroupID)
	if err != nil {
		return nil, err
	}
	return &DisposalView{
		DisposalGroup:    *group,
		RealizedGainLoss: RealizedGainLoss(group),
	}, nil
}

// ListDisposalsBySecurity returns a holding's disposal groups, newest first,
// annotated with realized gain/loss.
func (s *disposalService) ListDisposalsBySecurity(accountID, securityID string, page pagination.PageRequest) (*pagination.PageResponse[DisposalView], error) {
	page.Defaults()

	base := s.db.Model(&models.DisposalGroup{}).Where("account_id = ? AND security_id = ?", accountID, securityID)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var groups []models.DisposalGroup
	if err := s.db.Preload("Assignments").Preload("Assignments.Lot").
		Where("account_id = ? AND security_id = ?", accountID, securityID).
		Order("date DESC").Scopes(pagination.Paginate(page)).Find(&groups).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	views := make([]DisposalView, 0, len(groups))
	for i := range groups {
		views = append(views, DisposalView{
			DisposalGroup:    groups[i],
			RealizedGainLoss: RealizedGainLoss(&groups[i]),
		})
	}

	result := pagination.NewPageResponse(views, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// ReassignmentCandidates returns the lots a caller may target when
// reassigning a group: open lots of the same holding. The lots the group
// currently consumes are listed regardless, since reversal frees their
// quantity back up.
func (s *disposalService) ReassignmentCandidates(disposalGroupID string) ([]models.Lot, error) {
	group, err := s.loadGroup(s.db, disposalGroupID)
	if err != nil {
		return nil, err
	}

	consumed := make([]string, 0, len(group.Assignments))
	for _, a := range group.Assignments {
		consumed = append(consumed, a.LotID)
	}

	query := s.db.Where("account_id = ? AND security_id = ?", group.AccountID, group.SecurityID)
	if len(consumed) > 0 {
		query = query.Where("closed = ? OR id IN ?", false, consumed)
	} else {
		query = query.Where("closed = ?", false)
	}

	var lots []models.Lot
	if err := query.Order("acquisition_date ASC, created_at ASC").Find(&lots).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return lots, nil
}
