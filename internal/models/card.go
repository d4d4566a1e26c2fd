package models

import (
	"time"

	"gorm.io/datatypes"
)

// CardStatus is the lifecycle state of a card.
type CardStatus string

// Card lifecycle states. Transitions only move forward:
// unactivated -> activated -> suspended|expired.
const (
	CardStatusUnactivated CardStatus = "unactivated"
	CardStatusActivated   CardStatus = "activated"
	CardStatusSuspended   CardStatus = "suspended"
	CardStatusExpired     CardStatus = "expired"
)

// PendingLocationCode marks a card whose passcode has not been completed by a clinic.
const PendingLocationCode = "---"

// Valid reports whether s is a known card status.
func (s CardStatus) Valid() bool {
	switch s {
	case CardStatusUnactivated, CardStatusActivated, CardStatusSuspended, CardStatusExpired:
		return true
	default:
		return false
	}
}

// Card is a physical or digital loyalty card.
type Card struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	BatchID    uint64 `gorm:"not null;uniqueIndex:idx_cards_batch_index"` // Owning batch.
	Batch      *Batch `gorm:"foreignKey:BatchID"`                         // Batch relation.
	BatchIndex int    `gorm:"not null;uniqueIndex:idx_cards_batch_index"` // Zero-based position inside the batch.

	CardNumber    uint64 `gorm:"not null;uniqueIndex"`                  // Global sequential card number.
	ControlNumber string `gorm:"type:varchar(32);not null;uniqueIndex"` // Printed control number.
	Passcode      string `gorm:"type:varchar(16);not null"`             // Incomplete (4 digits) or complete (location + 4 digits).
	LocationCode  string `gorm:"type:varchar(8);not null;default:'---'"`

	Status CardStatus `gorm:"type:varchar(16);not null;index;default:'unactivated'"` // Lifecycle state.

	AssignedClinicID *uint64 `gorm:"index"`                       // Clinic that activated the card.
	AssignedClinic   *Clinic `gorm:"foreignKey:AssignedClinicID"` // Clinic relation.

	ActivatedAt *time.Time // Activation time.
	ExpiresAt   *time.Time `gorm:"index"` // ActivatedAt + 1 year.

	CardMetadata datatypes.JSON `gorm:"type:jsonb"` // Creation timestamp, perk list, validity period.

	Perks []Perk `gorm:"foreignKey:CardID"` // Perks issued with the card.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// LocationAssigned reports whether a clinic has completed the passcode.
func (c *Card) LocationAssigned() bool {
	return c != nil && c.LocationCode != "" && c.LocationCode != PendingLocationCode
}
