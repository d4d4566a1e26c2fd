// Command cardhub runs the loyalty card service and its maintenance commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/smileperks/cardhub/internal/cards"
	"github.com/smileperks/cardhub/internal/config"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// Exit codes.
const (
	exitFailure  = 1
	exitUsage    = 2
	exitNotFound = 3
	exitConflict = 4
)

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

// cardError maps card lifecycle failures onto exit codes.
func cardError(err error) error {
	switch cards.KindOf(err) {
	case cards.KindValidation:
		return codeError(exitUsage, "%s", err)
	case cards.KindNotFound:
		return codeError(exitNotFound, "%s", err)
	case cards.KindConflict:
		return codeError(exitConflict, "%s", err)
	default:
		return codeError(exitFailure, "%s", err)
	}
}

func newRootCmd() *cobra.Command {
	appCfg := &config.AppConfig{}
	root := &cobra.Command{
		Use:           "cardhub",
		Short:         "Dental clinic loyalty card service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&appCfg.ConfigPath, "config", "", "Path to config.yaml (default $CARDHUB_CONFIG or ./config.yaml)")

	root.AddCommand(
		serveCmd(appCfg),
		migrateCmd(appCfg),
		seedAdminCmd(appCfg),
		batchCmd(appCfg),
		cardCmd(appCfg),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitFailure)
	}
}
