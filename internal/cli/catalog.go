package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"procwatch/internal/report"
)

type catalogOptions struct {
	json       bool
	outputPath string
}

func newCatalogCommand(app *App) *cobra.Command {
	var opts catalogOptions
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Compile the catalog and show its aliases",
		Long: `Compile the authoritative process, the other process catalogs and the
role table into one catalog, and print a summary of it.

Use --json to print the full dump, or --output to write it to a file.
Configuration errors in any catalog source are reported with the file and
the id involved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := loadCatalog(app.Config)
			if err != nil {
				app.Printer.Error("%v", err)
				return NewExitError(ExitConfig)
			}
			dump := report.BuildCatalogDump(u)

			if opts.outputPath != "" {
				if err := report.WriteJSON(opts.outputPath, dump); err != nil {
					app.Printer.Error("%v", err)
					return NewExitError(ExitFailure)
				}
			}
			if opts.json {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(dump); err != nil {
					app.Printer.Error("failed to write catalog: %v", err)
					return NewExitError(ExitFailure)
				}
				return nil
			}
			app.Printer.CatalogSummary(dump)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "print the full catalog dump as JSON")
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "write the catalog dump to a file")
	return cmd
}
