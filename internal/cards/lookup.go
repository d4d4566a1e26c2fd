package cards

import (
	"context"
	"crypto/subtle"

	"github.com/smileperks/cardhub/internal/models"
	"gorm.io/gorm"
)

// LookupCard returns the card matching the full credential, with its clinic
// and perks. A control number alone never resolves a card.
func (m *Manager) LookupCard(ctx context.Context, controlNumber, passcode string) (*models.Card, error) {
	const op = "lookup card"
	control, ok := NormalizeControlNumber(controlNumber)
	if !ok {
		return nil, invalid(op, "malformed control number")
	}
	code, ok := NormalizeCompletePasscode(passcode)
	if !ok {
		return nil, invalid(op, "passcode must be a location code followed by four digits")
	}

	card, errLoad := m.loadCard(ctx, m.db.Where("control_number = ?", control))
	if errLoad != nil {
		return nil, wrap(op, errLoad)
	}
	if subtle.ConstantTimeCompare([]byte(card.Passcode), []byte(code)) != 1 {
		return nil, wrap(op, ErrCardNotFound)
	}
	return card, nil
}

// GetCardByControlNumber returns a card by control number alone. It is meant for
// authenticated administrators.
func (m *Manager) GetCardByControlNumber(ctx context.Context, controlNumber string) (*models.Card, error) {
	control, ok := NormalizeControlNumber(controlNumber)
	if !ok {
		return nil, invalid("get card", "malformed control number")
	}
	card, errLoad := m.loadCard(ctx, m.db.Where("control_number = ?", control))
	if errLoad != nil {
		return nil, wrap("get card", errLoad)
	}
	return card, nil
}

// GetCard returns a card by id.
func (m *Manager) GetCard(ctx context.Context, cardID uint64) (*models.Card, error) {
	card, errLoad := m.loadCard(ctx, m.db.Where("id = ?", cardID))
	if errLoad != nil {
		return nil, wrap("get card", errLoad)
	}
	return card, nil
}

// loadCard loads the first card matching scope with its clinic and perks.
func (m *Manager) loadCard(ctx context.Context, scope *gorm.DB) (*models.Card, error) {
	var card models.Card
	if errFind := scope.WithContext(ctx).
		Preload("AssignedClinic").
		Preload("Perks", func(q *gorm.DB) *gorm.DB { return q.Order("id ASC") }).
		First(&card).Error; errFind != nil {
		return nil, notFoundAs(errFind, ErrCardNotFound)
	}
	return &card, nil
}
