package models

import "time"

// PerkType names a dental service a card entitles the holder to.
type PerkType string

// Perk vocabulary.
const (
	PerkConsultation PerkType = "consultation"
	PerkCleaning     PerkType = "cleaning"
	PerkExtraction   PerkType = "extraction"
	PerkFluoride     PerkType = "fluoride"
	PerkWhitening    PerkType = "whitening"
	PerkXray         PerkType = "xray"
	PerkDenture      PerkType = "denture"
	PerkBraces       PerkType = "braces"
	PerkFilling      PerkType = "filling"
	PerkRootCanal    PerkType = "root_canal"
)

// PerkTypes lists the full perk vocabulary in display order.
var PerkTypes = []PerkType{
	PerkConsultation,
	PerkCleaning,
	PerkExtraction,
	PerkFluoride,
	PerkWhitening,
	PerkXray,
	PerkDenture,
	PerkBraces,
	PerkFilling,
	PerkRootCanal,
}

// Valid reports whether t belongs to the perk vocabulary.
func (t PerkType) Valid() bool {
	for _, known := range PerkTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Perk is a single claimable benefit attached to a card.
type Perk struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CardID   uint64   `gorm:"not null;index"`            // Owning card.
	PerkType PerkType `gorm:"type:varchar(32);not null"` // Service type.

	Claimed           bool       `gorm:"not null;default:false"` // One-way claim flag.
	ClaimedAt         *time.Time // Claim time.
	ClaimedByClinicID *uint64    `gorm:"index"`                        // Clinic that redeemed the perk.
	ClaimedByClinic   *Clinic    `gorm:"foreignKey:ClaimedByClinicID"` // Clinic relation.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName keeps perks in the card_perks collection.
func (Perk) TableName() string {
	return "card_perks"
}
