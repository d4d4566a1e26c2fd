package cards

import (
	"context"
	"encoding/json"

	"github.com/smileperks/cardhub/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// newTransaction builds an audit entry for cardID.
func newTransaction(cardID uint64, kind models.TransactionType, actor Actor, details map[string]any) (models.Transaction, error) {
	entry := models.Transaction{
		CardID:          cardID,
		TransactionType: kind,
		PerformedBy:     actor.Kind,
		PerformedByID:   actor.idPtr(),
	}
	if len(details) > 0 {
		raw, errMarshal := json.Marshal(details)
		if errMarshal != nil {
			return entry, errMarshal
		}
		entry.Details = datatypes.JSON(raw)
	}
	return entry, nil
}

// recordTransaction appends one audit entry inside tx.
func recordTransaction(tx *gorm.DB, cardID uint64, kind models.TransactionType, actor Actor, details map[string]any) error {
	entry, errBuild := newTransaction(cardID, kind, actor, details)
	if errBuild != nil {
		return errBuild
	}
	return tx.Create(&entry).Error
}

// ListTransactions returns the audit trail of a card, oldest first.
func (m *Manager) ListTransactions(ctx context.Context, cardID uint64) ([]models.Transaction, error) {
	var card models.Card
	if errFind := m.db.WithContext(ctx).Select("id").First(&card, cardID).Error; errFind != nil {
		return nil, wrap("list transactions", notFoundAs(errFind, ErrCardNotFound))
	}
	var entries []models.Transaction
	if errFind := m.db.WithContext(ctx).
		Where("card_id = ?", cardID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error; errFind != nil {
		return nil, wrap("list transactions", errFind)
	}
	return entries, nil
}
