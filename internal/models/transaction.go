package models

import (
	"time"

	"gorm.io/datatypes"
)

// TransactionType classifies an audit entry.
type TransactionType string

// Audit entry types, one per state-changing card or perk operation.
const (
	TransactionCreated          TransactionType = "created"
	TransactionLocationAssigned TransactionType = "location_assigned"
	TransactionActivated        TransactionType = "activated"
	TransactionPerkClaimed      TransactionType = "perk_claimed"
	TransactionSuspended        TransactionType = "suspended"
	TransactionExpired          TransactionType = "expired"
)

// ActorKind identifies who performed an operation.
type ActorKind string

// Actor kinds.
const (
	ActorAdmin  ActorKind = "admin"
	ActorClinic ActorKind = "clinic"
	ActorSystem ActorKind = "system"
)

// Transaction is an append-only audit log entry for a card.
type Transaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CardID          uint64          `gorm:"not null;index"`                  // Card the entry belongs to.
	TransactionType TransactionType `gorm:"type:varchar(32);not null;index"` // Entry type.
	PerformedBy     ActorKind       `gorm:"type:varchar(16);not null"`       // Actor kind.
	PerformedByID   *uint64         `gorm:"index"`                           // Actor id, empty for system entries.
	Details         datatypes.JSON  `gorm:"type:jsonb"`                      // Free-form details.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}

// TableName keeps audit entries in the card_transactions collection.
func (Transaction) TableName() string {
	return "card_transactions"
}
