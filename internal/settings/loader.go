package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/smileperks/cardhub/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RefreshDBConfigSnapshot reloads all settings from the database into the snapshot.
// It must run at startup; until then every accessor returns its fallback.
func RefreshDBConfigSnapshot(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("settings: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var rows []models.Setting
	if errFind := db.WithContext(ctx).Order("key ASC").Find(&rows).Error; errFind != nil {
		return errFind
	}

	values := make(map[string]json.RawMessage, len(rows))
	var newest time.Time
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		values[key] = row.Value
		if row.UpdatedAt.After(newest) {
			newest = row.UpdatedAt
		}
	}
	StoreDBConfig(newest, values)
	return nil
}

// Save validates and upserts a setting, then refreshes the snapshot.
func Save(ctx context.Context, db *gorm.DB, key string, raw json.RawMessage, adminID uint64) (json.RawMessage, error) {
	value, errValidate := ValidateValue(key, raw)
	if errValidate != nil {
		return nil, errValidate
	}
	row := models.Setting{Key: key, Value: value, UpdatedBy: &adminID, UpdatedAt: time.Now().UTC()}
	if errSave := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
	}).Create(&row).Error; errSave != nil {
		return nil, errSave
	}
	if errRefresh := RefreshDBConfigSnapshot(ctx, db); errRefresh != nil {
		return nil, errRefresh
	}
	return value, nil
}
