package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smileperks/cardhub/internal/cards"
	dbutil "github.com/smileperks/cardhub/internal/db"
	cardhttp "github.com/smileperks/cardhub/internal/http"
	"github.com/smileperks/cardhub/internal/models"
	"gorm.io/gorm"
)

// BatchHandler generates and lists card batches.
type BatchHandler struct {
	db      *gorm.DB
	manager *cards.Manager
}

// NewBatchHandler constructs a BatchHandler.
func NewBatchHandler(db *gorm.DB, manager *cards.Manager) *BatchHandler {
	return &BatchHandler{db: db, manager: manager}
}

// createBatchRequest defines the request body for batch generation.
type createBatchRequest struct {
	TotalCards        int     `json:"total_cards"`
	DistributionLabel string  `json:"distribution_label"`
	IdempotencyKey    string  `json:"idempotency_key"`
	PerkTemplateID    *uint64 `json:"perk_template_id"`
}

// Create generates a batch. Repeating a request with the same idempotency key
// resumes the stored batch instead of creating a new one.
func (h *BatchHandler) Create(c *gin.Context) {
	adminID, ok := readAdminIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
		return
	}
	var body createBatchRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	idempotencyKey := strings.TrimSpace(body.IdempotencyKey)
	if idempotencyKey == "" {
		idempotencyKey = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}

	result, errGenerate := h.manager.GenerateBatch(c.Request.Context(), cards.GenerateBatchInput{
		ActorID:           adminID,
		TotalCards:        body.TotalCards,
		DistributionLabel: body.DistributionLabel,
		IdempotencyKey:    idempotencyKey,
		PerkTemplateID:    body.PerkTemplateID,
	})
	if errGenerate != nil {
		cardhttp.WriteError(c, errGenerate)
		return
	}

	out := make([]gin.H, 0, len(result.Cards))
	for i := range result.Cards {
		out = append(out, cardhttp.FormatCard(&result.Cards[i], true))
	}
	status := http.StatusCreated
	if result.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"batch":   cardhttp.FormatBatch(&result.Batch),
		"cards":   out,
		"resumed": result.Resumed,
	})
}

// List returns batches, newest first.
func (h *BatchHandler) List(c *gin.Context) {
	var (
		batchNumberQ = strings.TrimSpace(c.Query("batch_number"))
		labelQ       = strings.TrimSpace(c.Query("distribution_label"))
		page         = cardhttp.ParsePage(c)
	)

	q := h.db.WithContext(c.Request.Context()).Model(&models.Batch{})
	if batchNumberQ != "" {
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "batch_number"), dbutil.ContainsPattern(h.db, batchNumberQ))
	}
	if labelQ != "" {
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "distribution_label"), dbutil.ContainsPattern(h.db, labelQ))
	}

	var total int64
	if errCount := q.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list batches failed"})
		return
	}
	var rows []models.Batch
	if errFind := page.Apply(q).Order("created_at DESC, id DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list batches failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, cardhttp.FormatBatch(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"batches": out, "pagination": page.Meta(total)})
}

// Get returns a batch with a page of its cards.
func (h *BatchHandler) Get(c *gin.Context) {
	id, ok := cardhttp.ParseIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var batch models.Batch
	if errFind := h.db.WithContext(ctx).First(&batch, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	page := cardhttp.ParsePage(c)
	var cardRows []models.Card
	if errFind := page.Apply(h.db.WithContext(ctx).
		Preload("Perks", func(q *gorm.DB) *gorm.DB { return q.Order("id ASC") }).
		Where("batch_id = ?", batch.ID)).
		Order("batch_index ASC").
		Find(&cardRows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	out := make([]gin.H, 0, len(cardRows))
	for i := range cardRows {
		out = append(out, cardhttp.FormatCard(&cardRows[i], true))
	}
	c.JSON(http.StatusOK, gin.H{
		"batch":      cardhttp.FormatBatch(&batch),
		"cards":      out,
		"pagination": page.Meta(int64(batch.CardsGenerated)),
	})
}
