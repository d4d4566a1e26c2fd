package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale records the commercial side of a card activation at a clinic.
type Sale struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CardID   uint64          `gorm:"not null;uniqueIndex"`        // Activated card; one sale per card.
	ClinicID uint64          `gorm:"not null;index"`              // Selling clinic.
	Amount   decimal.Decimal `gorm:"type:decimal(20,2);not null"` // Amount charged.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// Redemption records the service a clinic provided when a perk was claimed.
type Redemption struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CardID             uint64           `gorm:"not null;index"`       // Card the perk belongs to.
	PerkID             uint64           `gorm:"not null;uniqueIndex"` // Claimed perk; one redemption per perk.
	ClinicID           uint64           `gorm:"not null;index"`       // Redeeming clinic.
	ServiceDescription string           `gorm:"type:text;not null"`   // Service performed.
	Amount             *decimal.Decimal `gorm:"type:decimal(20,2)"`   // Optional billed amount.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName keeps redemptions in the perk_redemptions collection.
func (Redemption) TableName() string {
	return "perk_redemptions"
}
