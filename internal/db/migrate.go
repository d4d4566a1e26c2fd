package db

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/smileperks/cardhub/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultPerkTemplateName names the template seeded by Migrate.
const DefaultPerkTemplateName = "standard"

// DefaultPerkTypes is the perk set of the seeded template.
var DefaultPerkTypes = []models.PerkType{
	models.PerkConsultation,
	models.PerkCleaning,
	models.PerkExtraction,
	models.PerkFluoride,
	models.PerkWhitening,
	models.PerkXray,
	models.PerkFilling,
	models.PerkRootCanal,
}

// Migrate creates or updates every table and seeds required rows.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.Admin{},
		&models.Clinic{},
		&models.Setting{},
		&models.PerkTemplate{},
		&models.Batch{},
		&models.Card{},
		&models.Perk{},
		&models.Transaction{},
		&models.Sale{},
		&models.Redemption{},
	); errMigrate != nil {
		return fmt.Errorf("db: auto migrate: %w", errMigrate)
	}
	return seedDefaultPerkTemplate(conn)
}

// seedDefaultPerkTemplate inserts the standard template when no default exists.
func seedDefaultPerkTemplate(conn *gorm.DB) error {
	var count int64
	if errCount := conn.Model(&models.PerkTemplate{}).Where("is_default = ?", true).Count(&count).Error; errCount != nil {
		return fmt.Errorf("db: count default perk template: %w", errCount)
	}
	if count > 0 {
		return nil
	}
	raw, errMarshal := json.Marshal(DefaultPerkTypes)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal default perks: %w", errMarshal)
	}
	template := models.PerkTemplate{
		Name:        DefaultPerkTemplateName,
		Description: "Standard dental loyalty perk set",
		PerkTypes:   datatypes.JSON(raw),
		IsDefault:   true,
	}
	if errCreate := conn.Where(models.PerkTemplate{Name: DefaultPerkTemplateName}).
		Assign(models.PerkTemplate{IsDefault: true}).
		Attrs(template).
		FirstOrCreate(&template).Error; errCreate != nil {
		return fmt.Errorf("db: seed default perk template: %w", errCreate)
	}
	return nil
}
