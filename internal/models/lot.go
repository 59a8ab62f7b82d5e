package models

import "time"

// LotSource identifies where a lot came from. Mutability rules hang off the
// variant: lots ingested from brokerage activity are owned by the ingestion
// pipeline and can never be edited or deleted through the lot API.
type LotSource string

const (
	LotSourceManual   LotSource = "manual"   // entered by the user
	LotSourceInferred LotSource = "inferred" // synthesized remainder lot
	LotSourceInitial  LotSource = "initial"  // initial position entry
	LotSourceActivity LotSource = "activity" // created by activity ingestion
)

// Mutable reports whether lots from this source may be edited or deleted.
func (s LotSource) Mutable() bool {
	switch s {
	case LotSourceManual, LotSourceInferred, LotSourceInitial:
		return true
	}
	return false
}

// Valid reports whether s is a known lot source.
func (s LotSource) Valid() bool {
	switch s {
	case LotSourceManual, LotSourceInferred, LotSourceInitial, LotSourceActivity:
		return true
	}
	return false
}

// Lot represents one acquisition of a security: how many units were bought,
// when, and at what per-unit cost. CurrentQuantity tracks how much of the lot
// is still held after disposals; a lot is closed exactly when it reaches zero.
type Lot struct {
	Base
	AccountID  string `gorm:"type:uuid;not null;index:idx_lots_account_security" json:"account_id"`
	SecurityID string `gorm:"type:uuid;not null;index:idx_lots_account_security" json:"security_id"`
	Ticker     string `gorm:"not null" json:"ticker"` // denormalized security symbol

	AcquisitionDate  *time.Time `json:"acquisition_date"` // nil = unknown
	CostBasisPerUnit *int64     `gorm:"type:bigint" json:"cost_basis_per_unit"` // cents; nil = unknown basis

	OriginalQuantity float64   `gorm:"not null" json:"original_quantity"`
	CurrentQuantity  float64   `gorm:"not null" json:"current_quantity"`
	Closed           bool      `gorm:"not null;default:false" json:"closed"`
	Source           LotSource `gorm:"not null" json:"source"`
	Notes            string    `json:"notes,omitempty"`

	// Relationships
	Account     Account              `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	Security    Security             `gorm:"foreignKey:SecurityID" json:"security,omitempty"`
	Assignments []DisposalAssignment `gorm:"foreignKey:LotID" json:"assignments,omitempty"`
}

// BasisKnown reports whether the lot carries a real cost basis, as opposed to
// a placeholder awaiting data. Only basis-known quantity counts toward coverage.
func (l *Lot) BasisKnown() bool {
	return l.CostBasisPerUnit != nil
}

// TotalCost returns cost-basis-per-unit × current quantity in cents, or nil
// when the basis is unknown.
func (l *Lot) TotalCost() *int64 {
	if l.CostBasisPerUnit == nil {
		return nil
	}
	total := int64(l.CurrentQuantity * float64(*l.CostBasisPerUnit))
	return &total
}

// UnrealizedGainLoss returns (marketPrice × current quantity) − total cost in
// cents. Nil when the basis is unknown; callers must pass a known price.
func (l *Lot) UnrealizedGainLoss(marketPrice int64) *int64 {
	total := l.TotalCost()
	if total == nil {
		return nil
	}
	gl := int64(l.CurrentQuantity*float64(marketPrice)) - *total
	return &gl
}

// DisposedQuantity returns the quantity consumed by disposals so far.
func (l *Lot) DisposedQuantity() float64 {
	return l.OriginalQuantity - l.CurrentQuantity
}

// SettleQuantity clamps a current quantity within rounding distance of zero
// to exactly zero and maintains the closed flag, which must hold exactly when
// the current quantity is zero. Call after any quantity mutation.
func (l *Lot) SettleQuantity() {
	if l.CurrentQuantity <= QuantityTolerance {
		l.CurrentQuantity = 0
	}
	if l.CurrentQuantity > l.OriginalQuantity {
		l.CurrentQuantity = l.OriginalQuantity
	}
	l.Closed = l.CurrentQuantity == 0
}
