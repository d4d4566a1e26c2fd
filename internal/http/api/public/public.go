// Package public wires the unauthenticated patient API.
package public

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smileperks/cardhub/internal/cards"
	cardhttp "github.com/smileperks/cardhub/internal/http"
	"github.com/smileperks/cardhub/internal/models"
)

// RegisterPublicRoutes registers the /v0/public routes.
func RegisterPublicRoutes(r *gin.Engine, manager *cards.Manager) {
	if r == nil || manager == nil {
		return
	}
	group := r.Group("/v0/public")
	handler := &lookupHandler{manager: manager}
	group.POST("/cards/lookup", handler.Lookup)
}

type lookupHandler struct {
	manager *cards.Manager
}

type lookupRequest struct {
	ControlNumber string `json:"control_number"`
	Passcode      string `json:"passcode"`
}

// Lookup lets a patient view a card with its control number and complete passcode.
func (h *lookupHandler) Lookup(c *gin.Context) {
	var body lookupRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	card, errLookup := h.manager.LookupCard(c.Request.Context(), body.ControlNumber, body.Passcode)
	if errLookup != nil {
		cardhttp.WriteError(c, errLookup)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"control_number": card.ControlNumber,
		"status":         card.Status,
		"activated_at":   card.ActivatedAt,
		"expires_at":     card.ExpiresAt,
		"clinic":         clinicName(card.AssignedClinic),
		"perks":          cardhttp.FormatCard(card, false)["perks"],
	})
}

func clinicName(clinic *models.Clinic) string {
	if clinic == nil {
		return ""
	}
	return clinic.Name
}
