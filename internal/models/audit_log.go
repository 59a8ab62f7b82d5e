package models

// AuditLog records every mutating engine operation so that after-the-fact
// corrections (edits, reassignments) leave a trail.
type AuditLog struct {
	Base
	Action       string `gorm:"not null" json:"action"`
	ResourceType string `gorm:"not null" json:"resource_type"`
	ResourceID   string `gorm:"type:uuid" json:"resource_id"`
	Changes      string `json:"changes,omitempty"`
}
