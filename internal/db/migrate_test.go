package db

import (
	"encoding/json"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smileperks/cardhub/internal/models"
	"gorm.io/gorm"
)

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	return conn
}

func TestMigrateCreatesCardCollections(t *testing.T) {
	conn := openMemory(t)

	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	for _, table := range []string{"batches", "cards", "card_perks", "card_transactions", "sales", "perk_redemptions", "clinics", "admins", "perk_templates", "settings"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("missing table %s", table)
		}
	}
	for _, column := range []string{"control_number", "passcode", "location_code", "status", "assigned_clinic_id", "activated_at", "expires_at", "card_metadata"} {
		if !conn.Migrator().HasColumn(&models.Card{}, column) {
			t.Fatalf("cards missing column %s", column)
		}
	}
}

func TestMigrateSeedsDefaultPerkTemplateOnce(t *testing.T) {
	conn := openMemory(t)

	for i := 0; i < 2; i++ {
		if errMigrate := Migrate(conn); errMigrate != nil {
			t.Fatalf("migrate run %d: %v", i, errMigrate)
		}
	}

	var templates []models.PerkTemplate
	if errFind := conn.Where("is_default = ?", true).Find(&templates).Error; errFind != nil {
		t.Fatalf("find templates: %v", errFind)
	}
	if len(templates) != 1 {
		t.Fatalf("expected 1 default template, got %d", len(templates))
	}
	var perks []models.PerkType
	if errDecode := json.Unmarshal(templates[0].PerkTypes, &perks); errDecode != nil {
		t.Fatalf("decode perks: %v", errDecode)
	}
	if len(perks) != len(DefaultPerkTypes) {
		t.Fatalf("expected %d perks, got %d", len(DefaultPerkTypes), len(perks))
	}
}

func TestMigrateKeepsExistingDefaultTemplate(t *testing.T) {
	conn := openMemory(t)
	if errMigrate := conn.AutoMigrate(&models.PerkTemplate{}); errMigrate != nil {
		t.Fatalf("pre-migrate: %v", errMigrate)
	}
	custom := models.PerkTemplate{Name: "basic", PerkTypes: []byte(`["consultation","cleaning","xray","fluoride"]`), IsDefault: true}
	if errCreate := conn.Create(&custom).Error; errCreate != nil {
		t.Fatalf("create template: %v", errCreate)
	}

	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	var count int64
	conn.Model(&models.PerkTemplate{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected only the custom template, got %d rows", count)
	}
}
