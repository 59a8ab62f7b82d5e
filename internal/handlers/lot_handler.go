package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "lotkeeper/internal/errors"
	"lotkeeper/internal/models"
	"lotkeeper/internal/services"
)

// LotHandler handles lot ledger requests.
type LotHandler struct {
	lotService services.LotServicer
}

// NewLotHandler creates a new LotHandler.
func NewLotHandler(lotService services.LotServicer) *LotHandler {
	return &LotHandler{lotService: lotService}
}

// CreateLotRequest represents the request payload for creating a lot.
// AcquisitionDate may be omitted ("Unknown" acquisition). Cost basis is in
// minor currency units (cents) per unit.
type CreateLotRequest struct {
	AccountID        string     `json:"account_id" binding:"required,uuid"`
	SecurityID       string     `json:"security_id" binding:"required,uuid"`
	Source           string     `json:"source" binding:"required,lot_source"`
	AcquisitionDate  *time.Time `json:"acquisition_date,omitempty"`
	CostBasisPerUnit *int64     `json:"cost_basis_per_unit" binding:"required"`
	Quantity         float64    `json:"quantity" binding:"required,gt=0"`
	Notes            string     `json:"notes" binding:"max=500"`
}

// EditLotRequest represents the request payload for editing a lot.
// Omitted fields are left unchanged; Quantity edits the original quantity.
type EditLotRequest struct {
	AcquisitionDate  *time.Time `json:"acquisition_date,omitempty"`
	CostBasisPerUnit *int64     `json:"cost_basis_per_unit,omitempty"`
	Quantity         *float64   `json:"quantity,omitempty" binding:"omitempty,gt=0"`
	Notes            *string    `json:"notes,omitempty"`
}

// BatchLotCreate is one lot creation inside a batch save.
type BatchLotCreate struct {
	Source           string     `json:"source" binding:"required,lot_source"`
	AcquisitionDate  *time.Time `json:"acquisition_date,omitempty"`
	CostBasisPerUnit *int64     `json:"cost_basis_per_unit" binding:"required"`
	Quantity         float64    `json:"quantity" binding:"required,gt=0"`
	Notes            string     `json:"notes" binding:"max=500"`
}

// BatchLotUpdate is one lot edit inside a batch save.
type BatchLotUpdate struct {
	LotID            string     `json:"lot_id" binding:"required,uuid"`
	AcquisitionDate  *time.Time `json:"acquisition_date,omitempty"`
	CostBasisPerUnit *int64     `json:"cost_basis_per_unit,omitempty"`
	Quantity         *float64   `json:"quantity,omitempty" binding:"omitempty,gt=0"`
	Notes            *string    `json:"notes,omitempty"`
}

// SaveBatchRequest represents the request payload for an atomic batch save.
// HoldingQuantity is the holding's total quantity the lots must reconcile to.
type SaveBatchRequest struct {
	HoldingQuantity float64          `json:"holding_quantity" binding:"gte=0"`
	Updates         []BatchLotUpdate `json:"updates"`
	Creates         []BatchLotCreate `json:"creates"`
}

// RemainderRequest represents the request payload for previewing the
// remainder lot quantity a batch would need.
type RemainderRequest struct {
	HoldingQuantity     float64 `json:"holding_quantity" binding:"gte=0"`
	OtherLotsQuantity   float64 `json:"other_lots_quantity" binding:"gte=0"`
	NewLotQuantity      float64 `json:"new_lot_quantity" binding:"gte=0"`
}

// CreateLot handles creating a new lot.
func (h *LotHandler) CreateLot(c *gin.Context) {
	var req CreateLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	lot, err := h.lotService.CreateLot(req.AccountID, req.SecurityID, services.LotCreate{
		Source:           models.LotSource(req.Source),
		AcquisitionDate:  req.AcquisitionDate,
		CostBasisPerUnit: req.CostBasisPerUnit,
		Quantity:         req.Quantity,
		Notes:            req.Notes,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, lot)
}

// EditLot handles editing a lot's date, cost basis, quantity or notes.
func (h *LotHandler) EditLot(c *gin.Context) {
	lotID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req EditLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	lot, err := h.lotService.EditLot(lotID, services.LotUpdate{
		LotID:            lotID,
		AcquisitionDate:  req.AcquisitionDate,
		CostBasisPerUnit: req.CostBasisPerUnit,
		Quantity:         req.Quantity,
		Notes:            req.Notes,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, lot)
}

// DeleteLot handles deleting a lot without disposal history.
func (h *LotHandler) DeleteLot(c *gin.Context) {
	lotID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.lotService.DeleteLot(lotID); err != nil {
		respondWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetHoldingLots handles listing a holding's lots with derived values.
func (h *LotHandler) GetHoldingLots(c *gin.Context) {
	accountID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	securityID, err := parsePathUUID(c, "securityId")
	if err != nil {
		respondWithError(c, err)
		return
	}

	holding, err := h.lotService.ListLotsBySecurity(accountID, securityID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, holding)
}

// SaveBatch handles applying lot edits and creations atomically.
func (h *LotHandler) SaveBatch(c *gin.Context) {
	accountID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	securityID, err := parsePathUUID(c, "securityId")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req SaveBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	updates := make([]services.LotUpdate, 0, len(req.Updates))
	for _, u := range req.Updates {
		updates = append(updates, services.LotUpdate{
			LotID:            u.LotID,
			AcquisitionDate:  u.AcquisitionDate,
			CostBasisPerUnit: u.CostBasisPerUnit,
			Quantity:         u.Quantity,
			Notes:            u.Notes,
		})
	}
	creates := make([]services.LotCreate, 0, len(req.Creates))
	for _, cr := range req.Creates {
		creates = append(creates, services.LotCreate{
			Source:           models.LotSource(cr.Source),
			AcquisitionDate:  cr.AcquisitionDate,
			CostBasisPerUnit: cr.CostBasisPerUnit,
			Quantity:         cr.Quantity,
			Notes:            cr.Notes,
		})
	}

	lots, err := h.lotService.SaveBatch(accountID, securityID, req.HoldingQuantity, updates, creates)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"lots": lots})
}

// ResolveRemainder handles previewing the remainder lot a batch would need.
func (h *LotHandler) ResolveRemainder(c *gin.Context) {
	var req RemainderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	remainder, err := services.ResolveRemainder(req.HoldingQuantity, req.OtherLotsQuantity, req.NewLotQuantity)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"remainder":          remainder,
		"remainder_required": remainder > 0,
	})
}
