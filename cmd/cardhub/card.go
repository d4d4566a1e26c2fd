package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smileperks/cardhub/internal/app"
	"github.com/smileperks/cardhub/internal/cards"
	"github.com/smileperks/cardhub/internal/config"
	cardhttp "github.com/smileperks/cardhub/internal/http"
	"github.com/smileperks/cardhub/internal/models"
	"github.com/spf13/cobra"
)

func cardCmd(appCfg *config.AppConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Run card lifecycle operations on behalf of a clinic",
	}
	cmd.AddCommand(
		cardAssignLocationCmd(appCfg),
		cardActivateCmd(appCfg),
		cardRedeemCmd(appCfg),
		cardLookupCmd(appCfg),
	)
	return cmd
}

// resolveCard accepts a numeric card id or a control number.
func resolveCard(ctx context.Context, manager *cards.Manager, ref string) (*models.Card, error) {
	ref = strings.TrimSpace(ref)
	if id, errParse := strconv.ParseUint(ref, 10, 64); errParse == nil {
		return manager.GetCard(ctx, id)
	}
	return manager.GetCardByControlNumber(ctx, ref)
}

func parseAmount(raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, codeError(exitUsage, "invalid amount %q", raw)
	}
	return &amount, nil
}

func cardAssignLocationCmd(appCfg *config.AppConfig) *cobra.Command {
	var clinicCode string
	cmd := &cobra.Command{
		Use:   "assign-location <card-id|control-number>",
		Short: "Complete a card passcode with a clinic's location code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := app.Bootstrap(ctx, *appCfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			clinic, err := findClinic(svc.DB.WithContext(ctx), clinicCode)
			if err != nil {
				return err
			}
			card, err := resolveCard(ctx, svc.Manager, args[0])
			if err != nil {
				return cardError(err)
			}
			card, err = svc.Manager.AssignLocation(ctx, card.ID, clinic.Code, cards.ClinicActor(clinic.ID))
			if err != nil {
				return cardError(err)
			}
			return writeJSON(cmd.OutOrStdout(), cardhttp.FormatCard(card, true))
		},
	}
	cmd.Flags().StringVar(&clinicCode, "clinic", "", "Clinic code; also the location code written to the card")
	_ = cmd.MarkFlagRequired("clinic")
	return cmd
}

func cardActivateCmd(appCfg *config.AppConfig) *cobra.Command {
	var clinicCode, controlNumber, passcode, saleAmount string
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate a card for a patient at a clinic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := parseAmount(saleAmount)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := app.Bootstrap(ctx, *appCfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			clinic, err := findClinic(svc.DB.WithContext(ctx), clinicCode)
			if err != nil {
				return err
			}
			card, err := svc.Manager.ActivateCard(ctx, cards.ActivateInput{
				ControlNumber: controlNumber,
				Passcode:      passcode,
				ClinicID:      clinic.ID,
				SaleAmount:    amount,
			})
			if err != nil {
				return cardError(err)
			}
			return writeJSON(cmd.OutOrStdout(), cardhttp.FormatCard(card, false))
		},
	}
	f := cmd.Flags()
	f.StringVar(&clinicCode, "clinic", "", "Code of the activating clinic")
	f.StringVar(&controlNumber, "control", "", "Card control number")
	f.StringVar(&passcode, "passcode", "", "Complete passcode (location code and four digits)")
	f.StringVar(&saleAmount, "sale-amount", "", "Amount charged for the card, recorded as a sale")
	for _, name := range []string{"clinic", "control", "passcode"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func cardRedeemCmd(appCfg *config.AppConfig) *cobra.Command {
	var clinicCode, service, amountRaw string
	cmd := &cobra.Command{
		Use:   "redeem <card-id|control-number> <perk-id|perk-type>",
		Short: "Claim one perk of an active card",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(amountRaw)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := app.Bootstrap(ctx, *appCfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			clinic, err := findClinic(svc.DB.WithContext(ctx), clinicCode)
			if err != nil {
				return err
			}
			card, err := resolveCard(ctx, svc.Manager, args[0])
			if err != nil {
				return cardError(err)
			}
			perkID, ok := resolvePerk(card, args[1])
			if !ok {
				return codeError(exitNotFound, "card %s has no perk %q", card.ControlNumber, args[1])
			}
			perk, err := svc.Manager.RedeemPerk(ctx, cards.RedeemInput{
				CardID:             card.ID,
				PerkID:             perkID,
				ClinicID:           clinic.ID,
				ServiceDescription: service,
				Amount:             amount,
			})
			if err != nil {
				return cardError(err)
			}
			return writeJSON(cmd.OutOrStdout(), cardhttp.FormatPerk(perk))
		},
	}
	f := cmd.Flags()
	f.StringVar(&clinicCode, "clinic", "", "Code of the redeeming clinic")
	f.StringVar(&service, "service", "", "Description of the service rendered")
	f.StringVar(&amountRaw, "amount", "", "Amount charged for the service")
	for _, name := range []string{"clinic", "service"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// resolvePerk matches a perk by id, or by type among the card's unclaimed perks.
func resolvePerk(card *models.Card, ref string) (uint64, bool) {
	ref = strings.TrimSpace(ref)
	if id, errParse := strconv.ParseUint(ref, 10, 64); errParse == nil {
		for _, perk := range card.Perks {
			if perk.ID == id {
				return id, true
			}
		}
		return 0, false
	}
	perkType := models.PerkType(strings.ToLower(ref))
	var claimed uint64
	for _, perk := range card.Perks {
		if perk.PerkType != perkType {
			continue
		}
		if !perk.Claimed {
			return perk.ID, true
		}
		claimed = perk.ID
	}
	return claimed, claimed != 0
}

func cardLookupCmd(appCfg *config.AppConfig) *cobra.Command {
	var controlNumber, passcode string
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Show a card matching its control number and complete passcode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := app.Bootstrap(ctx, *appCfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			card, err := svc.Manager.LookupCard(ctx, controlNumber, passcode)
			if err != nil {
				return cardError(err)
			}
			return writeJSON(cmd.OutOrStdout(), cardhttp.FormatCard(card, false))
		},
	}
	cmd.Flags().StringVar(&controlNumber, "control", "", "Card control number")
	cmd.Flags().StringVar(&passcode, "passcode", "", "Complete passcode")
	_ = cmd.MarkFlagRequired("control")
	_ = cmd.MarkFlagRequired("passcode")
	return cmd
}
