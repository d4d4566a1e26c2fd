// Package admin wires the administrator API.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smileperks/cardhub/internal/cards"
	"github.com/smileperks/cardhub/internal/config"
	cardhttp "github.com/smileperks/cardhub/internal/http"
	"github.com/smileperks/cardhub/internal/http/api/admin/handlers"
	"github.com/smileperks/cardhub/internal/http/api/admin/permissions"
	"github.com/smileperks/cardhub/internal/models"
	"github.com/smileperks/cardhub/internal/security"
	"github.com/smileperks/cardhub/internal/session"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers the /v0/admin routes.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, manager *cards.Manager, sessions *session.Manager, jwtCfg config.JWTConfig) {
	if r == nil || db == nil || manager == nil || sessions == nil {
		return
	}

	group := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(db, sessions, jwtCfg)
	group.POST("/login", authHandler.Login)
	group.POST("/login/totp", authHandler.LoginTOTP)

	self := group.Group("")
	self.Use(
		cardhttp.AccessAuthMiddleware(adminTokenParser(jwtCfg), sessions),
		adminAuthMiddleware(db),
	)
	self.POST("/logout", authHandler.Logout)
	self.GET("/me", authHandler.Me)

	mfaHandler := handlers.NewMFAHandler(db, sessions)
	self.GET("/mfa/status", mfaHandler.Status)
	self.POST("/mfa/totp/prepare", mfaHandler.PrepareTOTP)
	self.POST("/mfa/totp/confirm", mfaHandler.ConfirmTOTP)
	self.POST("/mfa/totp/disable", mfaHandler.DisableTOTP)

	authed := self.Group("")
	authed.Use(adminPermissionMiddleware())

	permissionHandler := handlers.NewPermissionHandler()
	authed.GET("/permissions", permissionHandler.List)

	adminHandler := handlers.NewAdminHandler(db)
	authed.POST("/admins", adminHandler.Create)
	authed.GET("/admins", adminHandler.List)
	authed.GET("/admins/:id", adminHandler.Get)
	authed.PUT("/admins/:id", adminHandler.Update)
	authed.DELETE("/admins/:id", adminHandler.Delete)
	authed.POST("/admins/:id/disable", adminHandler.Disable)
	authed.POST("/admins/:id/enable", adminHandler.Enable)
	authed.PUT("/admins/:id/password", adminHandler.ChangePassword)

	clinicHandler := handlers.NewClinicHandler(db)
	authed.POST("/clinics", clinicHandler.Create)
	authed.GET("/clinics", clinicHandler.List)
	authed.GET("/clinics/:id", clinicHandler.Get)
	authed.PUT("/clinics/:id", clinicHandler.Update)
	authed.POST("/clinics/:id/disable", clinicHandler.Disable)
	authed.POST("/clinics/:id/enable", clinicHandler.Enable)
	authed.PUT("/clinics/:id/password", clinicHandler.ChangePassword)

	templateHandler := handlers.NewPerkTemplateHandler(db)
	authed.POST("/perk-templates", templateHandler.Create)
	authed.GET("/perk-templates", templateHandler.List)
	authed.GET("/perk-templates/:id", templateHandler.Get)
	authed.PUT("/perk-templates/:id", templateHandler.Update)
	authed.DELETE("/perk-templates/:id", templateHandler.Delete)

	batchHandler := handlers.NewBatchHandler(db, manager)
	authed.POST("/batches", batchHandler.Create)
	authed.GET("/batches", batchHandler.List)
	authed.GET("/batches/:id", batchHandler.Get)

	cardHandler := handlers.NewCardHandler(db, manager)
	authed.GET("/cards", cardHandler.List)
	authed.GET("/cards/:id", cardHandler.Get)
	authed.POST("/cards/:id/suspend", cardHandler.Suspend)
	authed.GET("/cards/:id/transactions", cardHandler.Transactions)

	transactionHandler := handlers.NewTransactionHandler(db)
	authed.GET("/transactions", transactionHandler.List)

	settingsHandler := handlers.NewSettingsHandler(db)
	authed.GET("/settings", settingsHandler.List)
	authed.PUT("/settings/:key", settingsHandler.Update)
}

// adminTokenParser validates admin JWTs.
func adminTokenParser(jwtCfg config.JWTConfig) cardhttp.TokenParser {
	return func(token string) (cardhttp.Principal, error) {
		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			return cardhttp.Principal{}, errJWT
		}
		return cardhttp.Principal{Kind: session.KindAdmin, SubjectID: claims.AdminID, SessionID: claims.ID}, nil
	}
}

// adminAuthMiddleware loads the authenticated admin and its permissions into context.
func adminAuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := cardhttp.PrincipalFromContext(c)
		if !ok || principal.Kind != session.KindAdmin {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).
			Select("id", "active", "is_super_admin", "permissions").
			First(&admin, principal.SubjectID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin account is disabled"})
			return
		}

		c.Set(handlers.ContextAdminID, admin.ID)
		c.Set(contextAdminPermissions, permissions.ParsePermissions(admin.Permissions))
		c.Set(contextAdminIsSuperAdmin, admin.IsSuperAdmin)
		c.Next()
	}
}
