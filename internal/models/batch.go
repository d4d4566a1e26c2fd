package models

import (
	"time"

	"gorm.io/datatypes"
)

// Batch groups cards generated by a single admin action.
//
// Cards of a batch own the contiguous card-number range
// [StartNumber, StartNumber+TotalCards).
type Batch struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	BatchNumber       string  `gorm:"type:varchar(64);not null;uniqueIndex"` // Human-readable batch number.
	IdempotencyKey    *string `gorm:"type:varchar(128);uniqueIndex"`         // Optional caller key for resumable generation.
	DistributionLabel string  `gorm:"type:text"`                             // Free-form distribution label.

	TotalCards     int `gorm:"not null"`           // Requested card count.
	CardsGenerated int `gorm:"not null;default:0"` // Cards committed so far.

	StartNumber   uint64 `gorm:"not null;uniqueIndex"`      // First global card number of the batch.
	ControlPrefix string `gorm:"type:varchar(16);not null"` // Control-number prefix used for the batch.

	PerkTemplateID *uint64        `gorm:"index"`                            // Template the perk set was taken from.
	PerkTemplate   *PerkTemplate  `gorm:"foreignKey:PerkTemplateID"`        // Template relation.
	PerkTypes      datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Perk types snapshot applied to every card.

	CreatedBy uint64 `gorm:"not null;index"`       // Admin who generated the batch.
	Creator   *Admin `gorm:"foreignKey:CreatedBy"` // Creating admin.
	Cards     []Card `gorm:"foreignKey:BatchID"`   // Generated cards.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Complete reports whether every requested card has been generated.
func (b *Batch) Complete() bool {
	return b != nil && b.CardsGenerated >= b.TotalCards
}
