package http

import (
	"github.com/gin-gonic/gin"
	"github.com/smileperks/cardhub/internal/models"
)

// FormatCard renders a card. Passcodes are only included for administrators,
// who need them to print cards.
func FormatCard(card *models.Card, withPasscode bool) gin.H {
	if card == nil {
		return nil
	}
	out := gin.H{
		"id":                 card.ID,
		"batch_id":           card.BatchID,
		"card_number":        card.CardNumber,
		"control_number":     card.ControlNumber,
		"location_code":      card.LocationCode,
		"location_assigned":  card.LocationAssigned(),
		"status":             card.Status,
		"assigned_clinic_id": card.AssignedClinicID,
		"activated_at":       card.ActivatedAt,
		"expires_at":         card.ExpiresAt,
		"card_metadata":      card.CardMetadata,
		"created_at":         card.CreatedAt,
		"updated_at":         card.UpdatedAt,
	}
	if withPasscode {
		out["passcode"] = card.Passcode
	}
	if card.AssignedClinic != nil {
		out["assigned_clinic"] = gin.H{
			"id":   card.AssignedClinic.ID,
			"name": card.AssignedClinic.Name,
			"code": card.AssignedClinic.Code,
		}
	}
	if card.Perks != nil {
		perks := make([]gin.H, 0, len(card.Perks))
		for i := range card.Perks {
			perks = append(perks, FormatPerk(&card.Perks[i]))
		}
		out["perks"] = perks
	}
	return out
}

// FormatPerk renders a perk.
func FormatPerk(perk *models.Perk) gin.H {
	return gin.H{
		"id":                   perk.ID,
		"card_id":              perk.CardID,
		"perk_type":            perk.PerkType,
		"claimed":              perk.Claimed,
		"claimed_at":           perk.ClaimedAt,
		"claimed_by_clinic_id": perk.ClaimedByClinicID,
	}
}

// FormatTransaction renders an audit entry.
func FormatTransaction(entry *models.Transaction) gin.H {
	return gin.H{
		"id":               entry.ID,
		"card_id":          entry.CardID,
		"transaction_type": entry.TransactionType,
		"performed_by":     entry.PerformedBy,
		"performed_by_id":  entry.PerformedByID,
		"details":          entry.Details,
		"created_at":       entry.CreatedAt,
	}
}

// FormatBatch renders a batch without its cards.
func FormatBatch(batch *models.Batch) gin.H {
	return gin.H{
		"id":                 batch.ID,
		"batch_number":       batch.BatchNumber,
		"distribution_label": batch.DistributionLabel,
		"total_cards":        batch.TotalCards,
		"cards_generated":    batch.CardsGenerated,
		"complete":           batch.Complete(),
		"start_number":       batch.StartNumber,
		"control_prefix":     batch.ControlPrefix,
		"perk_template_id":   batch.PerkTemplateID,
		"perk_types":         batch.PerkTypes,
		"created_by":         batch.CreatedBy,
		"created_at":         batch.CreatedAt,
		"updated_at":         batch.UpdatedAt,
	}
}

// FormatClinic renders a clinic without its password hash.
func FormatClinic(clinic *models.Clinic) gin.H {
	return gin.H{
		"id":         clinic.ID,
		"name":       clinic.Name,
		"code":       clinic.Code,
		"username":   clinic.Username,
		"address":    clinic.Address,
		"active":     clinic.Active,
		"created_at": clinic.CreatedAt,
		"updated_at": clinic.UpdatedAt,
	}
}
