package models

import "time"

// QuantityTolerance absorbs floating-point rounding when comparing share
// quantities: two quantities within this distance are considered equal.
const QuantityTolerance = 1e-4

// DisposalGroup represents one sell/disposal event against a security in an
// account. Its assignments record which lots were consumed and by how much;
// they always sum (within QuantityTolerance) to TotalQuantity.
type DisposalGroup struct {
	Base
	AccountID       string    `gorm:"type:uuid;not null;index:idx_disposal_groups_account_security" json:"account_id"`
	SecurityID      string    `gorm:"type:uuid;not null;index:idx_disposal_groups_account_security" json:"security_id"`
	Date            time.Time `gorm:"not null" json:"date"`
	TotalQuantity   float64   `gorm:"not null" json:"total_quantity"`
	ProceedsPerUnit int64     `gorm:"type:bigint;not null" json:"proceeds_per_unit"` // cents

	// Relationships
	Account     Account              `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	Security    Security             `gorm:"foreignKey:SecurityID" json:"security,omitempty"`
	Assignments []DisposalAssignment `gorm:"foreignKey:DisposalGroupID" json:"assignments,omitempty"`
}

// DisposalAssignment records how much of a single lot one disposal group
// consumed. A lot may be consumed by many groups over its life and a group
// may span many lots.
type DisposalAssignment struct {
	Base
	DisposalGroupID string  `gorm:"type:uuid;not null;index" json:"disposal_group_id"`
	LotID           string  `gorm:"type:uuid;not null;index" json:"lot_id"`
	Quantity        float64 `gorm:"not null" json:"quantity"`

	// Relationships
	Lot Lot `gorm:"foreignKey:LotID" json:"lot,omitempty"`
}
