package models

// Account represents a brokerage account whose holdings are tracked lot by lot.
type Account struct {
	Base
	Name          string `gorm:"not null" json:"name"`
	Description   string `json:"description"`
	Broker        string `json:"broker,omitempty"` // E.g., Robinhood, Fidelity, etc.
	AccountNumber string `json:"account_number,omitempty"`
	Currency      string `gorm:"not null;default:'USD'" json:"currency"`
	IsActive      bool   `gorm:"default:true" json:"is_active"`

	// Relationships
	Lots []Lot `gorm:"foreignKey:AccountID" json:"lots,omitempty"`
}
