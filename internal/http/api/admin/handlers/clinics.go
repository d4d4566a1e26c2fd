package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smileperks/cardhub/internal/cards"
	dbutil "github.com/smileperks/cardhub/internal/db"
	cardhttp "github.com/smileperks/cardhub/internal/http"
	"github.com/smileperks/cardhub/internal/models"
	"github.com/smileperks/cardhub/internal/security"
	"gorm.io/gorm"
)

// ClinicHandler manages clinic accounts.
type ClinicHandler struct {
	db *gorm.DB
}

// NewClinicHandler constructs a ClinicHandler.
func NewClinicHandler(db *gorm.DB) *ClinicHandler {
	return &ClinicHandler{db: db}
}

// createClinicRequest defines the request body for clinic creation.
// Code doubles as the location code the clinic assigns to cards.
type createClinicRequest struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	Username string `json:"username"`
	Password string `json:"password"`
	Address  string `json:"address"`
}

// Create registers a clinic.
func (h *ClinicHandler) Create(c *gin.Context) {
	var body createClinicRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	username := strings.TrimSpace(body.Username)
	if name == "" || username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and username are required"})
		return
	}
	code, okCode := cards.NormalizeLocationCode(body.Code)
	if !okCode {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code must be three letters"})
		return
	}
	if errPassword := security.ValidatePassword(body.Password); errPassword != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errPassword.Error()})
		return
	}
	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	clinic := models.Clinic{
		Name:     name,
		Code:     code,
		Username: username,
		Password: hash,
		Address:  strings.TrimSpace(body.Address),
		Active:   true,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&clinic).Error; errCreate != nil {
		if errors.Is(errCreate, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "clinic code or username already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create clinic failed"})
		return
	}
	c.JSON(http.StatusCreated, cardhttp.FormatClinic(&clinic))
}

// List returns clinics with optional filters.
func (h *ClinicHandler) List(c *gin.Context) {
	var (
		nameQ   = strings.TrimSpace(c.Query("name"))
		codeQ   = strings.TrimSpace(c.Query("code"))
		activeQ = strings.TrimSpace(c.Query("active"))
	)

	q := h.db.WithContext(c.Request.Context()).Model(&models.Clinic{})
	if nameQ != "" {
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "name"), dbutil.ContainsPattern(h.db, nameQ))
	}
	if codeQ != "" {
		q = q.Where("code = ?", strings.ToUpper(codeQ))
	}
	if active, errParse := strconv.ParseBool(activeQ); errParse == nil {
		q = q.Where("active = ?", active)
	}

	var rows []models.Clinic
	if errFind := q.Order("name ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list clinics failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, cardhttp.FormatClinic(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"clinics": out})
}

// Get returns a clinic by ID.
func (h *ClinicHandler) Get(c *gin.Context) {
	id, ok := cardhttp.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var clinic models.Clinic
	if errFind := h.db.WithContext(c.Request.Context()).First(&clinic, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, cardhttp.FormatClinic(&clinic))
}

// updateClinicRequest defines the request body for clinic updates.
type updateClinicRequest struct {
	Name     *string `json:"name"`
	Code     *string `json:"code"`
	Username *string `json:"username"`
	Address  *string `json:"address"`
}

// Update modifies clinic fields.
func (h *ClinicHandler) Update(c *gin.Context) {
	id, ok := cardhttp.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var body updateClinicRequest
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
	if body.Code != nil {
		code, okCode := cards.NormalizeLocationCode(*body.Code)
		if !okCode {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code must be three letters"})
			return
		}
		updates["code"] = code
	}
	if body.Username != nil {
		username := strings.TrimSpace(*body.Username)
		if username == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username cannot be empty"})
			return
		}
		updates["username"] = username
	}
	if body.Address != nil {
		updates["address"] = strings.TrimSpace(*body.Address)
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}
	updates["updated_at"] = time.Now().UTC()

	res := h.db.WithContext(c.Request.Context()).Model(&models.Clinic{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "clinic code or username already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Disable blocks a clinic from signing in, activating and redeeming.
func (h *ClinicHandler) Disable(c *gin.Context) {
	h.setActive(c, false)
}

// Enable reactivates a clinic.
func (h *ClinicHandler) Enable(c *gin.Context) {
	h.setActive(c, true)
}

func (h *ClinicHandler) setActive(c *gin.Context, active bool) {
	id, ok := cardhttp.ParseIDParam(c, "id")
	if !ok {
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.Clinic{}).
		Where("id = ?", id).
		Updates(map[string]any{"active": active, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// changeClinicPasswordRequest defines the request body for clinic password resets.
type changeClinicPasswordRequest struct {
	Password string `json:"password"`
}

// ChangePassword resets a clinic password.
func (h *ClinicHandler) ChangePassword(c *gin.Context) {
	id, ok := cardhttp.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var body changeClinicPasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errPassword := security.ValidatePassword(body.Password); errPassword != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errPassword.Error()})
		return
	}
	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.Clinic{}).
		Where("id = ?", id).
		Updates(map[string]any{"password": hash, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "change password failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
