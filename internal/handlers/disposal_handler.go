package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "lotkeeper/internal/errors"
	"lotkeeper/internal/pagination"
	"lotkeeper/internal/services"
)

// DisposalHandler handles disposal recording and reassignment requests.
type DisposalHandler struct {
	disposalService services.DisposalServicer
}

// NewDisposalHandler creates a new DisposalHandler.
func NewDisposalHandler(disposalService services.DisposalServicer) *DisposalHandler {
	return &DisposalHandler{disposalService: disposalService}
}

// AssignmentRequest is one (lot, quantity) consumption entry.
type AssignmentRequest struct {
	LotID    string  `json:"lot_id" binding:"required,uuid"`
	Quantity float64 `json:"quantity" binding:"required,gt=0"`
}

// RecordDisposalRequest represents the request payload for recording a
// disposal. Proceeds are in minor currency units (cents) per unit. Which lots
// to consume is the caller's selection policy.
type RecordDisposalRequest struct {
	AccountID       string              `json:"account_id" binding:"required,uuid"`
	SecurityID      string              `json:"security_id" binding:"required,uuid"`
	Date            time.Time           `json:"date" binding:"required"`
	TotalQuantity   float64             `json:"total_quantity" binding:"required,gt=0"`
	ProceedsPerUnit int64               `json:"proceeds_per_unit" binding:"gte=0"`
	Assignments     []AssignmentRequest `json:"assignments" binding:"required,min=1,dive"`
}

// ReassignDisposalRequest represents the request payload for replacing a
// disposal's lot consumption.
type ReassignDisposalRequest struct {
	Assignments []AssignmentRequest `json:"assignments" binding:"required,min=1,dive"`
}

func toAssignmentInputs(reqs []AssignmentRequest) []services.AssignmentInput {
	inputs := make([]services.AssignmentInput, 0, len(reqs))
	for _, r := range reqs {
		inputs = append(inputs, services.AssignmentInput{LotID: r.LotID, Quantity: r.Quantity})
	}
	return inputs
}

// RecordDisposal handles recording a sell event and its lot consumption.
func (h *DisposalHandler) RecordDisposal(c *gin.Context) {
	var req RecordDisposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	disposal, err := h.disposalService.RecordDisposal(
		req.AccountID, req.SecurityID, req.Date,
		req.TotalQuantity, req.ProceedsPerUnit,
		toAssignmentInputs(req.Assignments),
	)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, disposal)
}

// ReassignDisposal handles correcting which lots a disposal consumed.
func (h *DisposalHandler) ReassignDisposal(c *gin.Context) {
	disposalID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ReassignDisposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	disposal, err := h.disposalService.ReassignDisposal(disposalID, toAssignmentInputs(req.Assignments))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, disposal)
}

// DeleteDisposal handles removing a disposal record and restoring its lots.
func (h *DisposalHandler) DeleteDisposal(c *gin.Context) {
	disposalID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.disposalService.DeleteDisposal(disposalID); err != nil {
		respondWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetDisposal handles fetching one disposal group with realized gain/loss.
func (h *DisposalHandler) GetDisposal(c *gin.Context) {
	disposalID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	disposal, err := h.disposalService.GetDisposalGroup(disposalID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, disposal)
}

// GetReassignmentCandidates handles listing the lots eligible as targets for
// reassigning a disposal.
func (h *DisposalHandler) GetReassignmentCandidates(c *gin.Context) {
	disposalID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	lots, err := h.disposalService.ReassignmentCandidates(disposalID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"lots": lots})
}

// GetHoldingDisposals handles listing a holding's disposal groups.
func (h *DisposalHandler) GetHoldingDisposals(c *gin.Context) {
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

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	disposals, err := h.disposalService.ListDisposalsBySecurity(accountID, securityID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, disposals)
}
