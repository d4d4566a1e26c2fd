package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	cardhttp "github.com/smileperks/cardhub/internal/http"
	"github.com/smileperks/cardhub/internal/models"
	"gorm.io/gorm"
)

// TransactionHandler serves the global audit log.
type TransactionHandler struct {
	db *gorm.DB
}

// NewTransactionHandler constructs a TransactionHandler.
func NewTransactionHandler(db *gorm.DB) *TransactionHandler {
	return &TransactionHandler{db: db}
}

// List returns audit entries, newest first.
func (h *TransactionHandler) List(c *gin.Context) {
	var (
		cardQ  = strings.TrimSpace(c.Query("card_id"))
		typeQ  = strings.TrimSpace(c.Query("transaction_type"))
		actorQ = strings.TrimSpace(c.Query("performed_by"))
		sinceQ = strings.TrimSpace(c.Query("since"))
		page   = cardhttp.ParsePage(c)
	)

	q := h.db.WithContext(c.Request.Context()).Model(&models.Transaction{})
	if cardQ != "" {
		cardID, errParse := strconv.ParseUint(cardQ, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid card_id"})
			return
		}
		q = q.Where("card_id = ?", cardID)
	}
	if typeQ != "" {
		q = q.Where("transaction_type = ?", strings.ToLower(typeQ))
	}
	if actorQ != "" {
		q = q.Where("performed_by = ?", strings.ToLower(actorQ))
	}
	if sinceQ != "" {
		since, errParse := time.Parse(time.RFC3339, sinceQ)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since, expected RFC3339"})
			return
		}
		q = q.Where("created_at >= ?", since.UTC())
	}

	var total int64
	if errCount := q.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list transactions failed"})
		return
	}
	var rows []models.Transaction
	if errFind := page.Apply(q).Order("created_at DESC, id DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list transactions failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, cardhttp.FormatTransaction(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out, "pagination": page.Meta(total)})
}
