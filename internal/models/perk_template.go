package models

import (
	"time"

	"gorm.io/datatypes"
)

// PerkTemplate is a named perk set applied to newly generated cards.
type PerkTemplate struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string         `gorm:"type:varchar(120);not null;uniqueIndex"` // Template name.
	Description string         `gorm:"type:text"`                              // Optional description.
	PerkTypes   datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"`       // Ordered perk types.
	IsDefault   bool           `gorm:"not null;default:false"`                 // Used when a batch names no template.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
