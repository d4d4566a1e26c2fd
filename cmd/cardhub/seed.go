package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/smileperks/cardhub/internal/app"
	"github.com/smileperks/cardhub/internal/config"
	"github.com/smileperks/cardhub/internal/models"
	"github.com/smileperks/cardhub/internal/security"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const envSeedPassword = "CARDHUB_ADMIN_PASSWORD"

func seedAdminCmd(appCfg *config.AppConfig) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create a super admin or reset its password",
		Long: `Create a super admin or reset its password.

The password is read from --password or $CARDHUB_ADMIN_PASSWORD. An existing
admin with the same username is re-enabled, promoted and given the new password.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			username = strings.TrimSpace(username)
			if username == "" {
				return codeError(exitUsage, "--username is required")
			}
			if password == "" {
				password = os.Getenv(envSeedPassword)
			}
			if errPassword := security.ValidatePassword(password); errPassword != nil {
				return codeError(exitUsage, "%s", errPassword)
			}

			svc, err := app.Bootstrap(cmd.Context(), *appCfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			hash, err := security.HashPassword(password)
			if err != nil {
				return err
			}
			conn := svc.DB.WithContext(cmd.Context())
			var existing models.Admin
			errFind := conn.Where("username = ?", username).First(&existing).Error
			switch {
			case errors.Is(errFind, gorm.ErrRecordNotFound):
				admin := models.Admin{Username: username, Password: hash, Active: true, IsSuperAdmin: true}
				if errCreate := conn.Create(&admin).Error; errCreate != nil {
					return fmt.Errorf("create admin: %w", errCreate)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created super admin %q (id=%d)\n", username, admin.ID)
			case errFind != nil:
				return fmt.Errorf("lookup admin: %w", errFind)
			default:
				if errUpdate := conn.Model(&models.Admin{}).Where("id = ?", existing.ID).Updates(map[string]any{
					"password":       hash,
					"active":         true,
					"is_super_admin": true,
					"updated_at":     time.Now().UTC(),
				}).Error; errUpdate != nil {
					return fmt.Errorf("update admin: %w", errUpdate)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated super admin %q (id=%d)\n", username, existing.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "admin", "Admin username")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (default $CARDHUB_ADMIN_PASSWORD)")
	return cmd
}
