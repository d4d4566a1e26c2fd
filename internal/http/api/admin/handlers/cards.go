package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smileperks/cardhub/internal/cards"
	dbutil "github.com/smileperks/cardhub/internal/db"
	cardhttp "github.com/smileperks/cardhub/internal/http"
	"github.com/smileperks/cardhub/internal/models"
	"gorm.io/gorm"
)

// CardHandler serves the administrator view of cards.
type CardHandler struct {
	db      *gorm.DB
	manager *cards.Manager
}

// NewCardHandler constructs a CardHandler.
func NewCardHandler(db *gorm.DB, manager *cards.Manager) *CardHandler {
	return &CardHandler{db: db, manager: manager}
}

// List returns cards matching the filters, newest card numbers last.
func (h *CardHandler) List(c *gin.Context) {
	var (
		statusQ   = strings.TrimSpace(c.Query("status"))
		batchQ    = strings.TrimSpace(c.Query("batch_id"))
		clinicQ   = strings.TrimSpace(c.Query("clinic_id"))
		controlQ  = strings.TrimSpace(c.Query("control_number"))
		locationQ = strings.TrimSpace(c.Query("location_code"))
		page      = cardhttp.ParsePage(c)
	)

	q := h.db.WithContext(c.Request.Context()).Model(&models.Card{})
	if statusQ != "" {
		status := models.CardStatus(strings.ToLower(statusQ))
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		q = q.Where("status = ?", status)
	}
	if batchQ != "" {
		batchID, errParse := strconv.ParseUint(batchQ, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch_id"})
			return
		}
		q = q.Where("batch_id = ?", batchID)
	}
	if clinicQ != "" {
		clinicID, errParse := strconv.ParseUint(clinicQ, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid clinic_id"})
			return
		}
		q = q.Where("assigned_clinic_id = ?", clinicID)
	}
	if controlQ != "" {
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "control_number"), dbutil.ContainsPattern(h.db, controlQ))
	}
	if locationQ != "" {
		q = q.Where("location_code = ?", strings.ToUpper(locationQ))
	}

	var total int64
	if errCount := q.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list cards failed"})
		return
	}
	var rows []models.Card
	if errFind := page.Apply(q).Preload("AssignedClinic").Order("card_number ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list cards failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, cardhttp.FormatCard(&rows[i], true))
	}
	c.JSON(http.StatusOK, gin.H{"cards": out, "pagination": page.Meta(total)})
}

// Get returns a card by numeric id or by control number.
func (h *CardHandler) Get(c *gin.Context) {
	ref := strings.TrimSpace(c.Param("id"))
	var (
		card *models.Card
		err  error
	)
	if id, errParse := strconv.ParseUint(ref, 10, 64); errParse == nil {
		card, err = h.manager.GetCard(c.Request.Context(), id)
	} else {
		card, err = h.manager.GetCardByControlNumber(c.Request.Context(), ref)
	}
	if err != nil {
		cardhttp.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, cardhttp.FormatCard(card, true))
}

// suspendCardRequest defines the request body for card suspension.
type suspendCardRequest struct {
	Reason string `json:"reason"`
}

// Suspend moves an activated card to suspended.
func (h *CardHandler) Suspend(c *gin.Context) {
	adminID, ok := readAdminIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
		return
	}
	id, ok := cardhttp.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var body suspendCardRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil && !errors.Is(errBind, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	card, errSuspend := h.manager.SuspendCard(c.Request.Context(), id, cards.AdminActor(adminID), body.Reason)
	if errSuspend != nil {
		cardhttp.WriteError(c, errSuspend)
		return
	}
	c.JSON(http.StatusOK, cardhttp.FormatCard(card, true))
}

// Transactions returns the audit trail of a card.
func (h *CardHandler) Transactions(c *gin.Context) {
	id, ok := cardhttp.ParseIDParam(c, "id")
	if !ok {
		return
	}
	entries, errList := h.manager.ListTransactions(c.Request.Context(), id)
	if errList != nil {
		cardhttp.WriteError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(entries))
	for i := range entries {
		out = append(out, cardhttp.FormatTransaction(&entries[i]))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}
