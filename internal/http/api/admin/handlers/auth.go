package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	log "github.com/sirupsen/logrus"
	"github.com/smileperks/cardhub/internal/config"
	cardhttp "github.com/smileperks/cardhub/internal/http"
	"github.com/smileperks/cardhub/internal/models"
	"github.com/smileperks/cardhub/internal/security"
	"github.com/smileperks/cardhub/internal/session"
	"gorm.io/gorm"
)

const (
	loginChallengePurpose = "admin-login-totp"
	loginChallengeTTL     = 5 * time.Minute
)

// AuthHandler handles admin authentication endpoints.
type AuthHandler struct {
	db       *gorm.DB
	sessions *session.Manager
	jwtCfg   config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, sessions *session.Manager, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, sessions: sessions, jwtCfg: jwtCfg}
}

// loginRequest defines the request body for admin login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login checks the password and either issues a token or, for admins with
// TOTP enabled, a short-lived challenge to complete at /login/totp.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	username := strings.TrimSpace(body.Username)
	password := strings.TrimSpace(body.Password)
	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	var admin models.Admin
	if errFind := h.db.WithContext(c.Request.Context()).Where("username = ?", username).First(&admin).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !admin.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin account is disabled"})
		return
	}
	if !security.CheckPassword(admin.Password, password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if admin.MFAEnabled() {
		challenge := uuid.NewString()
		if errPut := h.sessions.PutPending(c.Request.Context(), loginChallengePurpose, challenge, strconv.FormatUint(admin.ID, 10), loginChallengeTTL); errPut != nil {
			log.WithError(errPut).Error("admin login: store challenge failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authentication service error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"mfa_required": true, "challenge": challenge})
		return
	}

	h.respondWithAdminToken(c, admin)
}

// loginTotpRequest defines the request body for the second login step.
type loginTotpRequest struct {
	Challenge string `json:"challenge"`
	Code      string `json:"code"`
}

// LoginTOTP completes a login challenge with a TOTP code. A wrong code burns the challenge.
func (h *AuthHandler) LoginTOTP(c *gin.Context) {
	var body loginTotpRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	challenge := strings.TrimSpace(body.Challenge)
	code := strings.TrimSpace(body.Code)
	if challenge == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "challenge and code are required"})
		return
	}

	ctx := c.Request.Context()
	rawID, errPending := h.sessions.TakePending(ctx, loginChallengePurpose, challenge)
	if errPending != nil {
		if session.IsNotFound(errPending) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "login challenge expired"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authentication service error"})
		return
	}
	adminID, errParse := strconv.ParseUint(rawID, 10, 64)
	if errParse != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login challenge expired"})
		return
	}

	var admin models.Admin
	if errFind := h.db.WithContext(ctx).First(&admin, adminID).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !admin.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin account is disabled"})
		return
	}
	if !admin.MFAEnabled() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "totp not enabled"})
		return
	}
	if !totp.Validate(code, admin.TOTPSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}

	h.respondWithAdminToken(c, admin)
}

// Logout revokes the session of the presented token.
func (h *AuthHandler) Logout(c *gin.Context) {
	if errRevoke := h.sessions.Revoke(c.Request.Context(), cardhttp.SessionIDFromContext(c)); errRevoke != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me returns the authenticated admin.
func (h *AuthHandler) Me(c *gin.Context) {
	adminID, ok := readAdminIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
		return
	}
	var admin models.Admin
	if errFind := h.db.WithContext(c.Request.Context()).First(&admin, adminID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatAdmin(&admin))
}

func (h *AuthHandler) respondWithAdminToken(c *gin.Context, admin models.Admin) {
	sess, errSession := h.sessions.Create(c.Request.Context(), session.KindAdmin, admin.ID, h.jwtCfg.Expiry)
	if errSession != nil {
		log.WithError(errSession).Error("admin login: create session failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authentication service error"})
		return
	}
	token, errToken := security.GenerateAdminToken(h.jwtCfg.Secret, admin.ID, admin.Username, sess.ID, h.jwtCfg.Expiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": sess.ExpiresAt,
		"admin":      formatAdmin(&admin),
	})
}
