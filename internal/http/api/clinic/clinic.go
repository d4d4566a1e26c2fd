// Package clinic wires the API used by clinic staff.
package clinic

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smileperks/cardhub/internal/cards"
	"github.com/smileperks/cardhub/internal/config"
	cardhttp "github.com/smileperks/cardhub/internal/http"
	"github.com/smileperks/cardhub/internal/http/api/clinic/handlers"
	"github.com/smileperks/cardhub/internal/models"
	"github.com/smileperks/cardhub/internal/security"
	"github.com/smileperks/cardhub/internal/session"
	"gorm.io/gorm"
)

// RegisterClinicRoutes registers the /v0/clinic routes.
func RegisterClinicRoutes(r *gin.Engine, db *gorm.DB, manager *cards.Manager, sessions *session.Manager, jwtCfg config.JWTConfig) {
	if r == nil || db == nil || manager == nil || sessions == nil {
		return
	}

	group := r.Group("/v0/clinic")

	authHandler := handlers.NewAuthHandler(db, sessions, jwtCfg)
	group.POST("/login", authHandler.Login)

	authed := group.Group("")
	authed.Use(
		cardhttp.AccessAuthMiddleware(clinicTokenParser(jwtCfg), sessions),
		clinicAuthMiddleware(db),
	)
	authed.POST("/logout", authHandler.Logout)
	authed.GET("/me", authHandler.Me)

	cardHandler := handlers.NewCardHandler(manager)
	authed.POST("/cards/activate", cardHandler.Activate)
	authed.POST("/cards/lookup", cardHandler.Lookup)
	authed.POST("/cards/:id/location", cardHandler.AssignLocation)
	authed.POST("/cards/:id/perks/:perk_id/redeem", cardHandler.Redeem)
}

// clinicTokenParser validates clinic JWTs.
func clinicTokenParser(jwtCfg config.JWTConfig) cardhttp.TokenParser {
	return func(token string) (cardhttp.Principal, error) {
		claims, errJWT := security.ParseClinicToken(jwtCfg.Secret, token)
		if errJWT != nil {
			return cardhttp.Principal{}, errJWT
		}
		return cardhttp.Principal{Kind: session.KindClinic, SubjectID: claims.ClinicID, SessionID: claims.ID}, nil
	}
}

// clinicAuthMiddleware loads the authenticated clinic into context.
func clinicAuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := cardhttp.PrincipalFromContext(c)
		if !ok || principal.Kind != session.KindClinic {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "clinic not found"})
			return
		}
		var clinic models.Clinic
		if errFind := db.WithContext(c.Request.Context()).
			Select("id", "code", "active").
			First(&clinic, principal.SubjectID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "clinic not found"})
			return
		}
		if !clinic.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "clinic account is disabled"})
			return
		}
		c.Set(handlers.ContextClinicID, clinic.ID)
		c.Set(handlers.ContextClinicCode, clinic.Code)
		c.Next()
	}
}
