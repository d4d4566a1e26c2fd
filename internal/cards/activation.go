package cards

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/smileperks/cardhub/internal/db"
	"github.com/smileperks/cardhub/internal/models"
	"gorm.io/gorm"
)

// ActivateInput describes a clinic activating a card for a patient.
type ActivateInput struct {
	ControlNumber string
	Passcode      string
	ClinicID      uint64 `validate:"required"`
	// SaleAmount records a Sale when set.
	SaleAmount *decimal.Decimal
}

// ExpiryFor returns the expiry of a card activated at t: one calendar year later.
func ExpiryFor(t time.Time) time.Time {
	return t.AddDate(1, 0, 0)
}

// ActivateCard moves an unactivated card matching the full credential to
// activated, assigns it to the clinic and starts its one-year validity.
//
// A malformed credential is a validation error, a credential matching no card
// is not found, and a matching card that is no longer unactivated is a conflict.
func (m *Manager) ActivateCard(ctx context.Context, in ActivateInput) (*models.Card, error) {
	const op = "activate card"
	controlNumber, ok := NormalizeControlNumber(in.ControlNumber)
	if !ok {
		return nil, invalid(op, "malformed control number")
	}
	passcode, ok := NormalizeCompletePasscode(in.Passcode)
	if !ok {
		return nil, invalid(op, "passcode must be a location code followed by four digits")
	}
	if errInput := m.checkInput(op, in); errInput != nil {
		return nil, errInput
	}
	if in.SaleAmount != nil && in.SaleAmount.IsNegative() {
		return nil, invalid(op, "sale amount must not be negative")
	}

	var target models.Card
	if errFind := m.db.WithContext(ctx).Select("id").Where("control_number = ?", controlNumber).First(&target).Error; errFind != nil {
		return nil, wrap(op, notFoundAs(errFind, ErrCardNotFound))
	}

	actor := ClinicActor(in.ClinicID)
	errLocked := m.withCardLock(ctx, target.ID, func() error {
		return m.inTx(ctx, op, func(tx *gorm.DB) error {
			if errActor := ensureActor(tx, actor); errActor != nil {
				return errActor
			}
			var card models.Card
			if errFind := db.ForUpdate(tx).First(&card, target.ID).Error; errFind != nil {
				return notFoundAs(errFind, ErrCardNotFound)
			}
			if subtle.ConstantTimeCompare([]byte(card.Passcode), []byte(passcode)) != 1 {
				return ErrCardNotFound
			}
			if card.Status != models.CardStatusUnactivated {
				return ErrCardNotActivatable
			}

			activatedAt := m.clock()
			expiresAt := ExpiryFor(activatedAt)
			res := tx.Model(&models.Card{}).
				Where("id = ? AND status = ?", card.ID, models.CardStatusUnactivated).
				Updates(map[string]any{
					"status":             models.CardStatusActivated,
					"assigned_clinic_id": in.ClinicID,
					"activated_at":       activatedAt,
					"expires_at":         expiresAt,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrCardNotActivatable
			}

			details := map[string]any{
				"clinic_id":  in.ClinicID,
				"expires_at": expiresAt.Format(time.RFC3339),
			}
			if in.SaleAmount != nil {
				sale := models.Sale{CardID: card.ID, ClinicID: in.ClinicID, Amount: *in.SaleAmount}
				if errSale := tx.Create(&sale).Error; errSale != nil {
					return errSale
				}
				details["sale_amount"] = in.SaleAmount.StringFixed(2)
			}
			return recordTransaction(tx, card.ID, models.TransactionActivated, actor, details)
		})
	})
	if errLocked != nil {
		return nil, wrap(op, errLocked)
	}

	card, errLoad := m.loadCard(ctx, m.db.Where("id = ?", target.ID))
	if errLoad != nil {
		return nil, wrap(op, errLoad)
	}
	log.WithFields(log.Fields{
		"control_number": card.ControlNumber,
		"clinic_id":      in.ClinicID,
		"expires_at":     card.ExpiresAt,
	}).Info("cards: card activated")
	return card, nil
}
