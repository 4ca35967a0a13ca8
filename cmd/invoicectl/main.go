// Command invoicectl runs maintenance tasks for the invoice service:
// schema migrations, vendor mapping seeds and API tokens.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/invoiceflow/backend/internal/infrastructure/config"
	"github.com/invoiceflow/backend/internal/infrastructure/logger"
)

// cli carries state shared by every subcommand
type cli struct {
	logLevel string
	cfg      *config.Config
	log      *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "invoicectl",
		Short:         "Maintenance commands for the invoice service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(&logger.Config{
				Level:      c.logLevel,
				Format:     "console",
				Output:     "stderr",
				TimeFormat: "2006-01-02 15:04:05",
			})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			c.log = log
			zap.ReplaceGlobals(log)

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			c.cfg = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.log != nil {
				_ = logger.Sync(c.log)
			}
		},
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(newMigrateCmd(c))
	root.AddCommand(newSeedCmd(c))
	root.AddCommand(newTokenCmd(c))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
