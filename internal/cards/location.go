package cards

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/smileperks/cardhub/internal/db"
	"github.com/smileperks/cardhub/internal/models"
	"github.com/smileperks/cardhub/internal/util"
	"gorm.io/gorm"
)

// AssignLocation completes the passcode of an unactivated card by prefixing
// its four-digit tail with a three-letter location code. A card accepts a
// location code exactly once.
func (m *Manager) AssignLocation(ctx context.Context, cardID uint64, locationCode string, actor Actor) (*models.Card, error) {
	const op = "assign location"
	code, ok := NormalizeLocationCode(locationCode)
	if !ok {
		return nil, invalid(op, "location code must be three letters")
	}
	if cardID == 0 {
		return nil, invalid(op, "card id is required")
	}

	errLocked := m.withCardLock(ctx, cardID, func() error {
		return m.inTx(ctx, op, func(tx *gorm.DB) error {
			if errActor := ensureActor(tx, actor); errActor != nil {
				return errActor
			}
			var card models.Card
			if errFind := db.ForUpdate(tx).First(&card, cardID).Error; errFind != nil {
				return notFoundAs(errFind, ErrCardNotFound)
			}
			if card.LocationAssigned() || !passcodeTailPattern.MatchString(card.Passcode) {
				return ErrLocationAlreadyAssigned
			}
			if card.Status != models.CardStatusUnactivated {
				return ErrCardNotActivatable
			}

			res := tx.Model(&models.Card{}).
				Where("id = ? AND location_code = ?", cardID, models.PendingLocationCode).
				Updates(map[string]any{
					"location_code": code,
					"passcode":      CompletePasscode(code, card.Passcode),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrLocationAlreadyAssigned
			}
			return recordTransaction(tx, cardID, models.TransactionLocationAssigned, actor, map[string]any{
				"location_code": code,
			})
		})
	})
	if errLocked != nil {
		return nil, wrap(op, errLocked)
	}

	card, errLoad := m.loadCard(ctx, m.db.Where("id = ?", cardID))
	if errLoad != nil {
		return nil, wrap(op, errLoad)
	}
	log.WithFields(log.Fields{
		"control_number": card.ControlNumber,
		"location_code":  code,
		"passcode":       util.MaskSecret(card.Passcode),
		"actor":          actor.Kind,
		"actor_id":       actor.ID,
	}).Info("cards: location assigned")
	return card, nil
}
