package models

import "time"

// Clinic is a dental clinic allowed to activate cards and redeem perks.
type Clinic struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name     string `gorm:"type:text;not null"`                    // Display name.
	Code     string `gorm:"type:varchar(16);not null;uniqueIndex"` // Short clinic code.
	Username string `gorm:"type:text;not null;uniqueIndex"`        // Login name.
	Password string `gorm:"type:text;not null"`                    // Hashed password.
	Address  string `gorm:"type:text"`                             // Optional street address.

	Active bool `gorm:"not null;default:true"` // Whether the clinic can sign in.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
