package cards

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/smileperks/cardhub/internal/db"
	"github.com/smileperks/cardhub/internal/models"
	"gorm.io/gorm"
)

// RedeemInput describes a clinic claiming one perk of a card.
type RedeemInput struct {
	CardID             uint64 `validate:"required"`
	PerkID             uint64 `validate:"required"`
	ClinicID           uint64 `validate:"required"`
	ServiceDescription string `validate:"required,max=500"`
	// Amount is recorded on the redemption when set.
	Amount *decimal.Decimal
}

// RedeemPerk claims an unclaimed perk of an active, unexpired card. The claim
// flag only ever moves from false to true.
func (m *Manager) RedeemPerk(ctx context.Context, in RedeemInput) (*models.Perk, error) {
	const op = "redeem perk"
	in.ServiceDescription = strings.TrimSpace(in.ServiceDescription)
	if errInput := m.checkInput(op, in); errInput != nil {
		return nil, errInput
	}
	if in.Amount != nil && in.Amount.IsNegative() {
		return nil, invalid(op, "amount must not be negative")
	}

	actor := ClinicActor(in.ClinicID)
	errLocked := m.withCardLock(ctx, in.CardID, func() error {
		return m.inTx(ctx, op, func(tx *gorm.DB) error {
			if errActor := ensureActor(tx, actor); errActor != nil {
				return errActor
			}
			var card models.Card
			if errFind := db.ForUpdate(tx).First(&card, in.CardID).Error; errFind != nil {
				return notFoundAs(errFind, ErrCardNotFound)
			}
			now := m.clock()
			if card.Status != models.CardStatusActivated || (card.ExpiresAt != nil && !now.Before(*card.ExpiresAt)) {
				return ErrCardNotRedeemable
			}

			var perk models.Perk
			if errFind := tx.Where("id = ? AND card_id = ?", in.PerkID, in.CardID).First(&perk).Error; errFind != nil {
				return notFoundAs(errFind, ErrPerkNotFound)
			}
			if perk.Claimed {
				return ErrPerkAlreadyClaimed
			}

			res := tx.Model(&models.Perk{}).
				Where("id = ? AND claimed = ?", perk.ID, false).
				Updates(map[string]any{
					"claimed":              true,
					"claimed_at":           now,
					"claimed_by_clinic_id": in.ClinicID,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrPerkAlreadyClaimed
			}

			redemption := models.Redemption{
				CardID:             card.ID,
				PerkID:             perk.ID,
				ClinicID:           in.ClinicID,
				ServiceDescription: in.ServiceDescription,
				Amount:             in.Amount,
			}
			if errCreate := tx.Create(&redemption).Error; errCreate != nil {
				return errCreate
			}
			details := map[string]any{
				"perk_id":             perk.ID,
				"perk_type":           perk.PerkType,
				"service_description": in.ServiceDescription,
			}
			if in.Amount != nil {
				details["amount"] = in.Amount.StringFixed(2)
			}
			return recordTransaction(tx, card.ID, models.TransactionPerkClaimed, actor, details)
		})
	})
	if errLocked != nil {
		return nil, wrap(op, errLocked)
	}

	var perk models.Perk
	if errLoad := m.db.WithContext(ctx).First(&perk, in.PerkID).Error; errLoad != nil {
		return nil, wrap(op, errLoad)
	}
	log.WithFields(log.Fields{
		"card_id":   in.CardID,
		"perk_id":   perk.ID,
		"perk_type": perk.PerkType,
		"clinic_id": in.ClinicID,
	}).Info("cards: perk redeemed")
	return &perk, nil
}
