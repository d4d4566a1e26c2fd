package handlers

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/smileperks/cardhub/internal/settings"
	"gorm.io/gorm"
)

// SettingsHandler reads and writes runtime settings.
type SettingsHandler struct {
	db *gorm.DB
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(db *gorm.DB) *SettingsHandler {
	return &SettingsHandler{db: db}
}

// List returns every editable setting with its stored value, or null when unset.
func (h *SettingsHandler) List(c *gin.Context) {
	values := settings.DBConfigValues()
	out := make(gin.H, len(settings.Keys()))
	for _, key := range settings.Keys() {
		if raw, ok := values[key]; ok && len(raw) > 0 {
			out[key] = raw
			continue
		}
		out[key] = nil
	}
	c.JSON(http.StatusOK, gin.H{"settings": out, "updated_at": settings.DBConfigUpdatedAt()})
}

// updateSettingRequest defines the request body for setting updates.
type updateSettingRequest struct {
	Value json.RawMessage `json:"value"`
}

// Update stores a setting and refreshes the in-memory snapshot.
func (h *SettingsHandler) Update(c *gin.Context) {
	adminID, ok := readAdminIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
		return
	}
	key := strings.ToUpper(strings.TrimSpace(c.Param("key")))
	if !slices.Contains(settings.Keys(), key) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown setting"})
		return
	}
	var body updateSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || len(body.Value) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	value, errValidate := settings.ValidateValue(key, body.Value)
	if errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}
	if _, errSave := settings.Save(c.Request.Context(), h.db, key, value, adminID); errSave != nil {
		log.WithError(errSave).WithField("key", key).Error("settings: save failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	log.WithFields(log.Fields{"key": key, "admin_id": adminID}).Info("settings: updated")
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}
