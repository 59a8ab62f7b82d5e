package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "lotkeeper/internal/errors"
	"lotkeeper/internal/services"
	"lotkeeper/internal/uuid"
)

// ValuationHandler handles read-side valuation queries.
type ValuationHandler struct {
	valuationService services.ValuationServicer
}

// NewValuationHandler creates a new ValuationHandler.
func NewValuationHandler(valuationService services.ValuationServicer) *ValuationHandler {
	return &ValuationHandler{valuationService: valuationService}
}

// GetHoldingValuation handles fetching a holding's aggregate valuation.
func (h *ValuationHandler) GetHoldingValuation(c *gin.Context) {
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

	valuation, err := h.valuationService.HoldingValuation(accountID, securityID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, valuation)
}

// GetRealizedGainLoss handles the realized gain/loss summary for a calendar
// year (?year=, default current; optional ?security_id=).
func (h *ValuationHandler) GetRealizedGainLoss(c *gin.Context) {
	accountID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	year := time.Now().Year()
	if yearParam := c.Query("year"); yearParam != "" {
		year, err = strconv.Atoi(yearParam)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid year"))
			return
		}
	}

	securityID := c.Query("security_id")
	if securityID != "" && !uuid.IsValid(securityID) {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid security_id"))
		return
	}

	summary, err := h.valuationService.RealizedGainLossYTD(accountID, securityID, year)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
