package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/smileperks/cardhub/internal/config"
	cardhttp "github.com/smileperks/cardhub/internal/http"
	"github.com/smileperks/cardhub/internal/models"
	"github.com/smileperks/cardhub/internal/security"
	"github.com/smileperks/cardhub/internal/session"
	"gorm.io/gorm"
)

// AuthHandler handles clinic sign-in.
type AuthHandler struct {
	db       *gorm.DB
	sessions *session.Manager
	jwtCfg   config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, sessions *session.Manager, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, sessions: sessions, jwtCfg: jwtCfg}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates a clinic account and issues a token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	var clinic models.Clinic
	if errFind := h.db.WithContext(c.Request.Context()).Where("username = ?", username).First(&clinic).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !clinic.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "clinic account is disabled"})
		return
	}
	if !security.CheckPassword(clinic.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	sess, errSession := h.sessions.Create(c.Request.Context(), session.KindClinic, clinic.ID, h.jwtCfg.ClinicExpiry)
	if errSession != nil {
		log.WithError(errSession).Error("clinic login: create session failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authentication service error"})
		return
	}
	token, errToken := security.GenerateClinicToken(h.jwtCfg.Secret, clinic.ID, clinic.Code, clinic.Username, sess.ID, h.jwtCfg.ClinicExpiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": sess.ExpiresAt,
		"clinic":     cardhttp.FormatClinic(&clinic),
	})
}

// Logout revokes the session of the presented token.
func (h *AuthHandler) Logout(c *gin.Context) {
	if errRevoke := h.sessions.Revoke(c.Request.Context(), cardhttp.SessionIDFromContext(c)); errRevoke != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me returns the authenticated clinic.
func (h *AuthHandler) Me(c *gin.Context) {
	clinicID, ok := readClinicIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "clinic not found"})
		return
	}
	var clinic models.Clinic
	if errFind := h.db.WithContext(c.Request.Context()).First(&clinic, clinicID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, cardhttp.FormatClinic(&clinic))
}
