package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/journeys-backend/internal/app"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(rootOpts.log)
			if err != nil {
				return err
			}
			theDB, err := app.OpenDB(rootOpts.log, cfg)
			if err != nil {
				return err
			}
			if sqlDB, err := theDB.DB(); err == nil {
				defer sqlDB.Close()
			}
			return writeResult(cmd, rootOpts,
				map[string]string{"driver": cfg.DBDriver},
				fmt.Sprintf("migrations applied (%s)", cfg.DBDriver),
			)
		},
	}
}
