package cards

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/smileperks/cardhub/internal/db"
	"github.com/smileperks/cardhub/internal/models"
	"gorm.io/gorm"
)

// SuspendCard moves an activated card to suspended. Suspended cards cannot
// redeem perks and never return to activated.
func (m *Manager) SuspendCard(ctx context.Context, cardID uint64, actor Actor, reason string) (*models.Card, error) {
	const op = "suspend card"
	reason = strings.TrimSpace(reason)
	if len(reason) > 500 {
		return nil, invalid(op, "reason is too long")
	}

	errLocked := m.withCardLock(ctx, cardID, func() error {
		return m.inTx(ctx, op, func(tx *gorm.DB) error {
			if errActor := ensureActor(tx, actor); errActor != nil {
				return errActor
			}
			var card models.Card
			if errFind := db.ForUpdate(tx).Select("id", "status").First(&card, cardID).Error; errFind != nil {
				return notFoundAs(errFind, ErrCardNotFound)
			}
			if card.Status != models.CardStatusActivated {
				return ErrCardNotSuspendable
			}
			res := tx.Model(&models.Card{}).
				Where("id = ? AND status = ?", cardID, models.CardStatusActivated).
				Update("status", models.CardStatusSuspended)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrCardNotSuspendable
			}
			details := map[string]any{}
			if reason != "" {
				details["reason"] = reason
			}
			return recordTransaction(tx, cardID, models.TransactionSuspended, actor, details)
		})
	})
	if errLocked != nil {
		return nil, wrap(op, errLocked)
	}
	log.WithFields(log.Fields{"card_id": cardID, "actor_id": actor.ID}).Info("cards: card suspended")
	return m.GetCard(ctx, cardID)
}

// ExpireDue marks up to limit activated cards whose validity has ended as
// expired and returns how many were moved.
func (m *Manager) ExpireDue(ctx context.Context, limit int) (int, error) {
	const op = "expire cards"
	if limit <= 0 {
		limit = 500
	}
	expired := 0
	errTx := m.inTx(ctx, op, func(tx *gorm.DB) error {
		expired = 0
		now := m.clock()
		var due []models.Card
		if errFind := tx.Select("id", "expires_at").
			Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.CardStatusActivated, now).
			Order("expires_at ASC, id ASC").
			Limit(limit).
			Find(&due).Error; errFind != nil {
			return errFind
		}
		for _, card := range due {
			res := tx.Model(&models.Card{}).
				Where("id = ? AND status = ?", card.ID, models.CardStatusActivated).
				Update("status", models.CardStatusExpired)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			if errRecord := recordTransaction(tx, card.ID, models.TransactionExpired, SystemActor(), map[string]any{
				"expires_at": card.ExpiresAt,
			}); errRecord != nil {
				return errRecord
			}
			expired++
		}
		return nil
	})
	if errTx != nil {
		return 0, errTx
	}
	return expired, nil
}
