package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smileperks/cardhub/internal/cards"
	cardhttp "github.com/smileperks/cardhub/internal/http"
	"github.com/smileperks/cardhub/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var errTemplateInUse = errors.New("template in use")

// PerkTemplateHandler manages the perk sets applied to new batches.
type PerkTemplateHandler struct {
	db *gorm.DB
}

// NewPerkTemplateHandler constructs a PerkTemplateHandler.
func NewPerkTemplateHandler(db *gorm.DB) *PerkTemplateHandler {
	return &PerkTemplateHandler{db: db}
}

func formatPerkTemplate(template *models.PerkTemplate) gin.H {
	return gin.H{
		"id":          template.ID,
		"name":        template.Name,
		"description": template.Description,
		"perk_types":  template.PerkTypes,
		"is_default":  template.IsDefault,
		"created_at":  template.CreatedAt,
		"updated_at":  template.UpdatedAt,
	}
}

// encodePerkTypes validates perk types against the vocabulary and marshals them.
func encodePerkTypes(c *gin.Context, raw []string) (datatypes.JSON, bool) {
	perkTypes := make([]models.PerkType, 0, len(raw))
	for _, item := range raw {
		perkTypes = append(perkTypes, models.PerkType(strings.ToLower(strings.TrimSpace(item))))
	}
	if errValidate := cards.ValidatePerkTypes(perkTypes); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return nil, false
	}
	encoded, errMarshal := json.Marshal(perkTypes)
	if errMarshal != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "marshal perk types failed"})
		return nil, false
	}
	return datatypes.JSON(encoded), true
}

// perkTemplateRequest defines the request body for template creation.
type perkTemplateRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	PerkTypes   []string `json:"perk_types"`
	IsDefault   bool     `json:"is_default"`
}

// Create adds a template. Marking it default clears the flag on the others.
func (h *PerkTemplateHandler) Create(c *gin.Context) {
	var body perkTemplateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}
	perkTypes, ok := encodePerkTypes(c, body.PerkTypes)
	if !ok {
		return
	}

	template := models.PerkTemplate{
		Name:        name,
		Description: strings.TrimSpace(body.Description),
		PerkTypes:   perkTypes,
		IsDefault:   body.IsDefault,
	}
	errCreate := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if template.IsDefault {
			if errClear := clearDefaultTemplate(tx, 0); errClear != nil {
				return errClear
			}
		}
		return tx.Create(&template).Error
	})
	if errCreate != nil {
		if errors.Is(errCreate, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "template name already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create template failed"})
		return
	}
	c.JSON(http.StatusCreated, formatPerkTemplate(&template))
}

func clearDefaultTemplate(tx *gorm.DB, keepID uint64) error {
	return tx.Model(&models.PerkTemplate{}).
		Where("is_default = ? AND id <> ?", true, keepID).
		Updates(map[string]any{"is_default": false, "updated_at": time.Now().UTC()}).Error
}

// List returns all templates, default first.
func (h *PerkTemplateHandler) List(c *gin.Context) {
	var rows []models.PerkTemplate
	if errFind := h.db.WithContext(c.Request.Context()).Order("is_default DESC, name ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list templates failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatPerkTemplate(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"perk_templates": out, "perk_vocabulary": models.PerkTypes})
}

// Get returns a template by ID.
func (h *PerkTemplateHandler) Get(c *gin.Context) {
	id, ok := cardhttp.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var template models.PerkTemplate
	if errFind := h.db.WithContext(c.Request.Context()).First(&template, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatPerkTemplate(&template))
}

// updatePerkTemplateRequest defines the request body for template updates.
type updatePerkTemplateRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	PerkTypes   *[]string `json:"perk_types"`
	IsDefault   *bool     `json:"is_default"`
}

// Update modifies a template. Existing batches keep the perk snapshot they were generated with.
func (h *PerkTemplateHandler) Update(c *gin.Context) {
	id, ok := cardhttp.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var body updatePerkTemplateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
			return
		}
		updates["name"] = name
	}
	if body.Description != nil {
		updates["description"] = strings.TrimSpace(*body.Description)
	}
	if body.PerkTypes != nil {
		perkTypes, okTypes := encodePerkTypes(c, *body.PerkTypes)
		if !okTypes {
			return
		}
		updates["perk_types"] = perkTypes
	}
	if body.IsDefault != nil {
		if !*body.IsDefault {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mark another template as default instead"})
			return
		}
		updates["is_default"] = true
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}
	updates["updated_at"] = time.Now().UTC()

	var affected int64
	errUpdate := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if body.IsDefault != nil {
			if errClear := clearDefaultTemplate(tx, id); errClear != nil {
				return errClear
			}
		}
		res := tx.Model(&models.PerkTemplate{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		if affected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errUpdate != nil {
		switch {
		case errors.Is(errUpdate, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(errUpdate, gorm.ErrDuplicatedKey):
			c.JSON(http.StatusConflict, gin.H{"error": "template name already exists"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a template that is neither the default nor referenced by a batch.
func (h *PerkTemplateHandler) Delete(c *gin.Context) {
	id, ok := cardhttp.ParseIDParam(c, "id")
	if !ok {
		return
	}
	errDelete := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var template models.PerkTemplate
		if errFind := tx.Select("id", "is_default").First(&template, id).Error; errFind != nil {
			return errFind
		}
		if template.IsDefault {
			return errTemplateInUse
		}
		var batches int64
		if errCount := tx.Model(&models.Batch{}).Where("perk_template_id = ?", id).Count(&batches).Error; errCount != nil {
			return errCount
		}
		if batches > 0 {
			return errTemplateInUse
		}
		return tx.Delete(&models.PerkTemplate{}, id).Error
	})
	if errDelete != nil {
		switch {
		case errors.Is(errDelete, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(errDelete, errTemplateInUse):
			c.JSON(http.StatusConflict, gin.H{"error": "template is the default or used by a batch"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		}
		return
	}
	c.Status(http.StatusNoContent)
}
