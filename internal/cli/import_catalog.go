package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/journeys-backend/internal/app"
	"github.com/yungbote/journeys-backend/internal/services"
)

type importCatalogOptions struct {
	format string
	dryRun bool
}

func NewImportCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &importCatalogOptions{}
	cmd := &cobra.Command{
		Use:   "import-catalog <file>",
		Short: "Upsert journeys, chapters, quests and tasks from a YAML or TOML file",
		Long: `Upsert catalog content by slug. Importing the same file again leaves ids
unchanged, so assignments and completions keep pointing at the same rows.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImportCatalog(cmd, rootOpts, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.format, "catalog-format", "", "yaml|toml (default: from file extension)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "validate the file without writing")
	return cmd
}

func runImportCatalog(cmd *cobra.Command, rootOpts *RootOptions, opts *importCatalogOptions, path string) error {
	format := services.CatalogFormat(opts.format)
	if format == "" {
		f, err := services.CatalogFormatFromPath(path)
		if err != nil {
			return err
		}
		format = f
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}

	if opts.dryRun {
		doc, err := services.DecodeCatalog(format, raw)
		if err != nil {
			return err
		}
		return writeResult(cmd, rootOpts,
			map[string]int{"journeys": len(doc.Journeys)},
			fmt.Sprintf("%s is valid (%d journeys)", path, len(doc.Journeys)),
		)
	}

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

	res, err := app.NewCatalogImporter(rootOpts.log, theDB, nil).ImportCatalog(cmd.Context(), format, raw)
	if err != nil {
		return err
	}
	return writeResult(cmd, rootOpts, res, fmt.Sprintf(
		"imported %d journeys, %d chapters, %d quests, %d tasks",
		res.Journeys, res.Chapters, res.Quests, res.Tasks,
	))
}
