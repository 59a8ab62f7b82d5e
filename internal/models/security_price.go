package models

import (
	"time"

	"lotkeeper/internal/uuid"

	"gorm.io/gorm"
)

// SecurityPrice represents a market price observation for a security, supplied
// by an external feed or entered through the API. The engine never computes
// prices itself; the most recent row per security is the "current" price.
// This is immutable time-series data — no Base embed, no soft deletes.
type SecurityPrice struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	SecurityID string    `gorm:"type:uuid;not null;index" json:"security_id"`
	Price      int64     `gorm:"type:bigint;not null" json:"price"`
	RecordedAt time.Time `gorm:"not null" json:"recorded_at"`
	Security   Security  `gorm:"foreignKey:SecurityID" json:"security,omitempty"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (s *SecurityPrice) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New()
	}
	return nil
}
