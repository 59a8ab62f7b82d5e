package services

import (
	"math"
	"time"

	"lotkeeper/internal/models"
)

// priceFreshness is how old a market price may be before the valuation is
// flagged stale. This is a policy constant, not a protocol: weekends and
// market holidays are not special-cased.
const priceFreshness = 24 * time.Hour

// priceIsStale reports whether a price observation is older than the
// freshness threshold.
func priceIsStale(p models.SecurityPrice) bool {
	return time.Since(p.RecordedAt) > priceFreshness
}

// TotalCostBasis sums the total cost of lots with a known cost basis, in
// cents. Closed lots hold no quantity and contribute nothing.
func TotalCostBasis(lots []models.Lot) int64 {
	var total int64
	for i := range lots {
		if c := lots[i].TotalCost(); c != nil {
			total += *c
		}
	}
	return total
}

// UnrealizedGainLoss computes (marketPrice × held quantity) − total cost
// over the basis-known lots. Quantity with unknown basis is excluded from
// both sides; coverage flags it to the user. Callers must only invoke this
// with a known price — when none exists the figure is unavailable, not zero.
func UnrealizedGainLoss(lots []models.Lot, marketPrice int64) int64 {
	var value, cost int64
	for i := range lots {
		c := lots[i].TotalCost()
		if c == nil {
			continue
		}
		cost += *c
		value += int64(lots[i].CurrentQuantity * float64(marketPrice))
	}
	return value - cost
}

// CoveragePercent is the share of a holding's current quantity that comes
// from lots with a known cost basis, 0–100 rounded to the nearest integer.
// A holding with no quantity at all counts as fully covered.
func CoveragePercent(lots []models.Lot) int {
	var total, covered float64
	for i := range lots {
		total += lots[i].CurrentQuantity
		if lots[i].BasisKnown() {
			covered += lots[i].CurrentQuantity
		}
	}
	if total <= models.QuantityTolerance {
		return 100
	}
	return int(math.Round(covered / total * 100))
}

// RealizedGainLoss computes a disposal group's realized gain/loss in cents:
// Σ assignment quantity × (proceeds per unit − lot cost basis per unit).
// Requires the group's assignments and their lots to be loaded. Returns nil
// when any consumed lot has an unknown basis — the figure is then
// unavailable, not zero.
func RealizedGainLoss(group *models.DisposalGroup) *int64 {
	var total float64
	for _, a := range group.Assignments {
		if a.Lot.CostBasisPerUnit == nil {
			return nil
		}
		total += a.Quantity * float64(group.ProceedsPerUnit-*a.Lot.CostBasisPerUnit)
	}
	result := int64(math.Round(total))
	return &result
}
