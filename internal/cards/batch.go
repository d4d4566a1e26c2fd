package cards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"
	"github.com/smileperks/cardhub/internal/db"
	"github.com/smileperks/cardhub/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// reserveAttempts bounds how often a batch reservation is retried after losing
// a card-number range to a concurrent batch.
const reserveAttempts = 5

// GenerateBatchInput describes a batch generation request.
type GenerateBatchInput struct {
	ActorID           uint64  `validate:"required"`
	TotalCards        int     `validate:"required,min=1"`
	DistributionLabel string  `validate:"max=200"`
	IdempotencyKey    string  `validate:"omitempty,max=128,printascii"`
	PerkTemplateID    *uint64 `validate:"omitempty"`
}

// BatchResult is the outcome of GenerateBatch.
type BatchResult struct {
	Batch   models.Batch
	Cards   []models.Card
	Resumed bool
}

// GenerateBatch creates a batch of unactivated cards, each with its perk set
// and a created audit entry.
//
// Cards are committed in chunks. A call that fails midway can be repeated with
// the same idempotency key: it resumes the stored batch and creates only the
// missing cards, whose control numbers are fixed by the batch's number range.
func (m *Manager) GenerateBatch(ctx context.Context, in GenerateBatchInput) (*BatchResult, error) {
	const op = "generate batch"
	in.DistributionLabel = strings.TrimSpace(in.DistributionLabel)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if errInput := m.checkInput(op, in); errInput != nil {
		return nil, errInput
	}
	if in.TotalCards > m.maxBatchSize {
		return nil, invalid(op, "total cards must be at most %d", m.maxBatchSize)
	}

	batch, resumed, errReserve := m.reserveBatch(ctx, in)
	if errReserve != nil {
		return nil, wrap(op, errReserve)
	}

	fields := log.Fields{"batch_number": batch.BatchNumber, "total_cards": batch.TotalCards, "admin_id": in.ActorID}
	if resumed {
		log.WithFields(fields).WithField("cards_generated", batch.CardsGenerated).Info("cards: resuming batch")
	}

	perkTypes, errPerks := decodePerkTypes(batch.PerkTypes)
	if errPerks != nil {
		return nil, wrap(op, errPerks)
	}
	for !batch.Complete() {
		if errChunk := m.inTx(ctx, op, func(tx *gorm.DB) error {
			return m.generateChunk(tx, &batch, perkTypes, AdminActor(in.ActorID))
		}); errChunk != nil {
			log.WithFields(fields).WithError(errChunk).Error("cards: batch generation interrupted")
			return nil, errChunk
		}
	}

	var cards []models.Card
	if errLoad := m.db.WithContext(ctx).
		Preload("Perks", func(q *gorm.DB) *gorm.DB { return q.Order("id ASC") }).
		Where("batch_id = ?", batch.ID).
		Order("batch_index ASC").
		Find(&cards).Error; errLoad != nil {
		return nil, wrap(op, errLoad)
	}
	log.WithFields(fields).Info("cards: batch generated")
	return &BatchResult{Batch: batch, Cards: cards, Resumed: resumed}, nil
}

// reserveBatch stores the batch row and its card-number range, or returns the
// batch already stored under the idempotency key.
func (m *Manager) reserveBatch(ctx context.Context, in GenerateBatchInput) (models.Batch, bool, error) {
	var (
		batch   models.Batch
		resumed bool
		err     error
	)
	for attempt := 0; attempt < reserveAttempts; attempt++ {
		err = m.inTx(ctx, "reserve batch", func(tx *gorm.DB) error {
			resumed = false
			if errActor := ensureActor(tx, AdminActor(in.ActorID)); errActor != nil {
				return errActor
			}
			if in.IdempotencyKey != "" {
				var existing models.Batch
				errFind := tx.Where("idempotency_key = ?", in.IdempotencyKey).First(&existing).Error
				if errFind == nil {
					if errMatch := m.matchStoredBatch(tx, &existing, in); errMatch != nil {
						return errMatch
					}
					batch, resumed = existing, true
					return nil
				}
				if !errors.Is(errFind, gorm.ErrRecordNotFound) {
					return errFind
				}
			}

			template, errTemplate := m.resolveTemplate(tx, in.PerkTemplateID)
			if errTemplate != nil {
				return errTemplate
			}
			if _, errPerks := decodePerkTypes(template.PerkTypes); errPerks != nil {
				return errPerks
			}
			start, errStart := nextStartNumber(tx)
			if errStart != nil {
				return errStart
			}
			number, errNumber := m.batchNumber()
			if errNumber != nil {
				return errNumber
			}

			batch = models.Batch{
				BatchNumber:       number,
				DistributionLabel: in.DistributionLabel,
				TotalCards:        in.TotalCards,
				StartNumber:       start,
				ControlPrefix:     m.prefix(),
				PerkTemplateID:    &template.ID,
				PerkTypes:         template.PerkTypes,
				CreatedBy:         in.ActorID,
			}
			if in.IdempotencyKey != "" {
				key := in.IdempotencyKey
				batch.IdempotencyKey = &key
			}
			return tx.Create(&batch).Error
		})
		if err == nil || KindOf(err) != KindConflict || errors.Is(err, ErrIdempotencyMismatch) {
			break
		}
		log.WithError(err).WithField("attempt", attempt+1).Warn("cards: batch range taken concurrently, reserving again")
	}
	return batch, resumed, err
}

// matchStoredBatch reports ErrIdempotencyMismatch unless in asks for the batch
// already stored under its key. A request without a template is compared using
// the template a fresh call would pick.
func (m *Manager) matchStoredBatch(tx *gorm.DB, existing *models.Batch, in GenerateBatchInput) error {
	if existing.TotalCards != in.TotalCards || existing.CreatedBy != in.ActorID ||
		existing.DistributionLabel != in.DistributionLabel {
		return ErrIdempotencyMismatch
	}
	template, errTemplate := m.resolveTemplate(tx, in.PerkTemplateID)
	if errTemplate != nil {
		return errTemplate
	}
	if existing.PerkTemplateID == nil || *existing.PerkTemplateID != template.ID {
		return ErrIdempotencyMismatch
	}
	return nil
}

// nextStartNumber returns the first card number after every reserved range.
func nextStartNumber(tx *gorm.DB) (uint64, error) {
	var last models.Batch
	errFind := tx.Select("start_number", "total_cards").Order("start_number DESC").First(&last).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return 1, nil
	}
	if errFind != nil {
		return 0, errFind
	}
	return last.StartNumber + uint64(last.TotalCards), nil
}

func (m *Manager) batchNumber() (string, error) {
	m.randMu.Lock()
	defer m.randMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(m.clock()), m.random)
	if err != nil {
		return "", fmt.Errorf("batch number: %w", err)
	}
	return "B-" + id.String(), nil
}

// resolveTemplate picks the requested template, the configured default by name,
// or the template flagged as default.
func (m *Manager) resolveTemplate(tx *gorm.DB, id *uint64) (models.PerkTemplate, error) {
	var template models.PerkTemplate
	if id != nil {
		if errFind := tx.First(&template, *id).Error; errFind != nil {
			return template, notFoundAs(errFind, ErrTemplateNotFound)
		}
		return template, nil
	}
	if name := strings.TrimSpace(m.defaultTemplate()); name != "" {
		errFind := tx.Where("name = ?", name).First(&template).Error
		if errFind == nil {
			return template, nil
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return template, errFind
		}
		log.WithField("template", name).Warn("cards: configured default perk template missing, using flagged default")
	}
	if errFind := tx.Where("is_default = ?", true).Order("id ASC").First(&template).Error; errFind != nil {
		return template, notFoundAs(errFind, ErrTemplateNotFound)
	}
	return template, nil
}

// generateChunk commits the next chunk of cards and advances cards_generated.
func (m *Manager) generateChunk(tx *gorm.DB, batch *models.Batch, perkTypes []models.PerkType, actor Actor) error {
	var current models.Batch
	if errLock := db.ForUpdate(tx).Select("id", "cards_generated").First(&current, batch.ID).Error; errLock != nil {
		return notFoundAs(errLock, ErrBatchNotFound)
	}
	from := current.CardsGenerated
	to := min(from+m.chunkSize, batch.TotalCards)
	if from >= to {
		batch.CardsGenerated = current.CardsGenerated
		return nil
	}

	now := m.clock()
	cards := make([]models.Card, 0, to-from)
	for i := from; i < to; i++ {
		tail, errTail := m.passcodeTail()
		if errTail != nil {
			return errTail
		}
		cardNumber := batch.StartNumber + uint64(i)
		metadata, errMeta := cardMetadata(now, batch.BatchNumber, perkTypes)
		if errMeta != nil {
			return errMeta
		}
		cards = append(cards, models.Card{
			BatchID:       batch.ID,
			BatchIndex:    i,
			CardNumber:    cardNumber,
			ControlNumber: FormatControlNumber(batch.ControlPrefix, cardNumber),
			Passcode:      tail,
			LocationCode:  models.PendingLocationCode,
			Status:        models.CardStatusUnactivated,
			CardMetadata:  metadata,
		})
	}
	if errCreate := tx.Create(&cards).Error; errCreate != nil {
		return errCreate
	}

	perks := make([]models.Perk, 0, len(cards)*len(perkTypes))
	entries := make([]models.Transaction, 0, len(cards))
	for _, card := range cards {
		for _, perkType := range perkTypes {
			perks = append(perks, models.Perk{CardID: card.ID, PerkType: perkType})
		}
		entry, errEntry := newTransaction(card.ID, models.TransactionCreated, actor, map[string]any{
			"batch_number":   batch.BatchNumber,
			"batch_index":    card.BatchIndex,
			"control_number": card.ControlNumber,
		})
		if errEntry != nil {
			return errEntry
		}
		entries = append(entries, entry)
	}
	if len(perks) > 0 {
		if errCreate := tx.CreateInBatches(&perks, 500).Error; errCreate != nil {
			return errCreate
		}
	}
	if errCreate := tx.CreateInBatches(&entries, 500).Error; errCreate != nil {
		return errCreate
	}
	if errUpdate := tx.Model(&models.Batch{}).Where("id = ?", batch.ID).Update("cards_generated", to).Error; errUpdate != nil {
		return errUpdate
	}
	batch.CardsGenerated = to
	return nil
}

func cardMetadata(createdAt time.Time, batchNumber string, perkTypes []models.PerkType) (datatypes.JSON, error) {
	raw, err := json.Marshal(map[string]any{
		"created_at":      createdAt.Format(time.RFC3339),
		"batch_number":    batchNumber,
		"perks":           perkTypes,
		"validity_period": "1 year",
	})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// decodePerkTypes parses a perk-type list and checks it against the vocabulary.
func decodePerkTypes(raw datatypes.JSON) ([]models.PerkType, error) {
	var perkTypes []models.PerkType
	if len(raw) > 0 {
		if errDecode := json.Unmarshal(raw, &perkTypes); errDecode != nil {
			return nil, fmt.Errorf("%w: perk types: %v", ErrInvalidInput, errDecode)
		}
	}
	if errCheck := ValidatePerkTypes(perkTypes); errCheck != nil {
		return nil, errCheck
	}
	return perkTypes, nil
}

// ValidatePerkTypes checks a template perk list. Duplicates are allowed so a
// template can grant the same service more than once.
func ValidatePerkTypes(perkTypes []models.PerkType) error {
	if len(perkTypes) == 0 {
		return invalid("validate perks", "perk set is empty")
	}
	for _, perkType := range perkTypes {
		if !perkType.Valid() {
			return invalid("validate perks", "unknown perk type %q", perkType)
		}
	}
	return nil
}
