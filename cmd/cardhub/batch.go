package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/smileperks/cardhub/internal/app"
	"github.com/smileperks/cardhub/internal/cards"
	"github.com/smileperks/cardhub/internal/config"
	cardhttp "github.com/smileperks/cardhub/internal/http"
	"github.com/smileperks/cardhub/internal/models"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func batchCmd(appCfg *config.AppConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Manage card batches",
	}
	cmd.AddCommand(batchGenerateCmd(appCfg))
	return cmd
}

type batchGenerateFlags struct {
	admin      string
	count      int
	label      string
	key        string
	templateID uint64
	format     string
}

func batchGenerateCmd(appCfg *config.AppConfig) *cobra.Command {
	var flags batchGenerateFlags
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a batch of unactivated cards",
		Long: `Generate a batch of unactivated cards.

Repeating the command with the same --key resumes the stored batch instead of
creating a new one. Output is JSON, or CSV rows of control number and passcode
for the card printer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.format != "json" && flags.format != "csv" {
				return codeError(exitUsage, "--format must be json or csv")
			}
			svc, err := app.Bootstrap(cmd.Context(), *appCfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			admin, err := findAdmin(svc.DB.WithContext(cmd.Context()), flags.admin)
			if err != nil {
				return err
			}
			in := cards.GenerateBatchInput{
				ActorID:           admin.ID,
				TotalCards:        flags.count,
				DistributionLabel: flags.label,
				IdempotencyKey:    strings.TrimSpace(flags.key),
			}
			if flags.templateID > 0 {
				in.PerkTemplateID = &flags.templateID
			}
			result, err := svc.Manager.GenerateBatch(cmd.Context(), in)
			if err != nil {
				return cardError(err)
			}
			if flags.format == "csv" {
				return writeBatchCSV(cmd.OutOrStdout(), result)
			}
			out := make([]any, 0, len(result.Cards))
			for i := range result.Cards {
				out = append(out, cardhttp.FormatCard(&result.Cards[i], true))
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"batch":   cardhttp.FormatBatch(&result.Batch),
				"cards":   out,
				"resumed": result.Resumed,
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.admin, "admin", "admin", "Username of the admin recorded as creator")
	f.IntVar(&flags.count, "count", 0, "Number of cards to generate")
	f.StringVar(&flags.label, "label", "", "Distribution label")
	f.StringVar(&flags.key, "key", "", "Idempotency key")
	f.Uint64Var(&flags.templateID, "template-id", 0, "Perk template id (default template when omitted)")
	f.StringVar(&flags.format, "format", "json", "Output format: json or csv")
	_ = cmd.MarkFlagRequired("count")
	return cmd
}

func writeBatchCSV(w io.Writer, result *cards.BatchResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"batch_number", "card_number", "control_number", "passcode"}); err != nil {
		return err
	}
	for _, card := range result.Cards {
		row := []string{result.Batch.BatchNumber, strconv.FormatUint(card.CardNumber, 10), card.ControlNumber, card.Passcode}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func findAdmin(conn *gorm.DB, username string) (*models.Admin, error) {
	var admin models.Admin
	if err := conn.Where("username = ?", strings.TrimSpace(username)).First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, codeError(exitNotFound, "admin %q not found", username)
		}
		return nil, fmt.Errorf("lookup admin: %w", err)
	}
	if !admin.Active {
		return nil, codeError(exitUsage, "admin %q is disabled", username)
	}
	return &admin, nil
}

func findClinic(conn *gorm.DB, code string) (*models.Clinic, error) {
	normalized, ok := cards.NormalizeLocationCode(code)
	if !ok {
		return nil, codeError(exitUsage, "--clinic must be a three letter clinic code")
	}
	var clinic models.Clinic
	if err := conn.Where("code = ?", normalized).First(&clinic).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, codeError(exitNotFound, "clinic %q not found", normalized)
		}
		return nil, fmt.Errorf("lookup clinic: %w", err)
	}
	if !clinic.Active {
		return nil, codeError(exitUsage, "clinic %q is disabled", normalized)
	}
	return &clinic, nil
}
