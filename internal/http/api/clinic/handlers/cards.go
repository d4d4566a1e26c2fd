package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smileperks/cardhub/internal/cards"
	cardhttp "github.com/smileperks/cardhub/internal/http"
)

// CardHandler runs the clinic side of the card lifecycle.
type CardHandler struct {
	manager *cards.Manager
}

// NewCardHandler constructs a CardHandler.
func NewCardHandler(manager *cards.Manager) *CardHandler {
	return &CardHandler{manager: manager}
}

type assignLocationRequest struct {
	LocationCode string `json:"location_code"`
}

// AssignLocation completes a card passcode with the clinic's location code.
// The body may omit location_code; a code other than the clinic's own is refused.
func (h *CardHandler) AssignLocation(c *gin.Context) {
	clinicID, ok := readClinicIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "clinic not found"})
		return
	}
	cardID, ok := cardhttp.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var body assignLocationRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil && !errors.Is(errBind, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	clinicCode := c.GetString(ContextClinicCode)
	code := strings.ToUpper(strings.TrimSpace(body.LocationCode))
	if code == "" {
		code = clinicCode
	}
	if code != clinicCode {
		c.JSON(http.StatusForbidden, gin.H{"error": "location code does not belong to this clinic"})
		return
	}

	card, errAssign := h.manager.AssignLocation(c.Request.Context(), cardID, code, cards.ClinicActor(clinicID))
	if errAssign != nil {
		cardhttp.WriteError(c, errAssign)
		return
	}
	// The assigning clinic hands the complete passcode to the patient.
	c.JSON(http.StatusOK, cardhttp.FormatCard(card, true))
}

type activateRequest struct {
	ControlNumber string           `json:"control_number"`
	Passcode      string           `json:"passcode"`
	SaleAmount    *decimal.Decimal `json:"sale_amount"`
}

// Activate activates a card for a patient at this clinic.
func (h *CardHandler) Activate(c *gin.Context) {
	clinicID, ok := readClinicIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "clinic not found"})
		return
	}
	var body activateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	card, errActivate := h.manager.ActivateCard(c.Request.Context(), cards.ActivateInput{
		ControlNumber: body.ControlNumber,
		Passcode:      body.Passcode,
		ClinicID:      clinicID,
		SaleAmount:    body.SaleAmount,
	})
	if errActivate != nil {
		cardhttp.WriteError(c, errActivate)
		return
	}
	c.JSON(http.StatusOK, cardhttp.FormatCard(card, false))
}

type redeemRequest struct {
	ServiceDescription string           `json:"service_description"`
	Amount             *decimal.Decimal `json:"amount"`
}

// Redeem claims one perk of a card.
func (h *CardHandler) Redeem(c *gin.Context) {
	clinicID, ok := readClinicIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "clinic not found"})
		return
	}
	cardID, ok := cardhttp.ParseIDParam(c, "id")
	if !ok {
		return
	}
	perkID, ok := cardhttp.ParseIDParam(c, "perk_id")
	if !ok {
		return
	}
	var body redeemRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	perk, errRedeem := h.manager.RedeemPerk(c.Request.Context(), cards.RedeemInput{
		CardID:             cardID,
		PerkID:             perkID,
		ClinicID:           clinicID,
		ServiceDescription: body.ServiceDescription,
		Amount:             body.Amount,
	})
	if errRedeem != nil {
		cardhttp.WriteError(c, errRedeem)
		return
	}
	c.JSON(http.StatusOK, gin.H{"perk": cardhttp.FormatPerk(perk)})
}

type lookupRequest struct {
	ControlNumber string `json:"control_number"`
	Passcode      string `json:"passcode"`
}

// Lookup returns a card matching its full credential.
func (h *CardHandler) Lookup(c *gin.Context) {
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
	c.JSON(http.StatusOK, cardhttp.FormatCard(card, false))
}
