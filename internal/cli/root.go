package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogMode string
	Format  string // "json" | "text"

	log *logger.Logger
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the journeys command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "journeys",
		Short: "Journey progression service",
		Long:  "Serves journey assignments and task completion, and manages the catalog and schema.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.log == nil {
				log, err := logger.New(opts.LogMode)
				if err != nil {
					return fmt.Errorf("init logger: %w", err)
				}
				opts.log = log
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				opts.log.Sync()
			}
		},
		SilenceUsage: true,
	}

	defaultMode := os.Getenv("LOG_MODE")
	if defaultMode == "" {
		defaultMode = "development"
	}
	cmd.PersistentFlags().StringVar(&opts.LogMode, "log-mode", defaultMode, "logger mode (development|production)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewImportCatalogCommand(opts))
	cmd.AddCommand(NewIssueTokenCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
