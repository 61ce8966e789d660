package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"procwatch/internal/canonical"
	"procwatch/internal/engine"
)

type canonicalizeOptions struct {
	instancesPath string
	asOf          string
	workers       int
}

// canonicalizeOutput is the JSON document printed by the canonicalize
// command.
type canonicalizeOutput struct {
	Instances []canonical.Instance `json:"instances"`
}

func newCanonicalizeCommand(app *App) *cobra.Command {
	var opts canonicalizeOptions
	cmd := &cobra.Command{
		Use:   "canonicalize --instances <file>",
		Short: "Canonicalize instances and print them as JSON",
		Long: `Canonicalize a batch of process instances against the catalog and print
the enriched instances as a JSON document. The store is not read or written.

Example:
  procwatch canonicalize --instances run/instances.jsonl > canonical.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runCanonicalize(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.instancesPath, "instances", "", "instances file (JSON document or JSON lines)")
	f.StringVar(&opts.asOf, "as-of", "", "reference time for health (default: now)")
	f.IntVar(&opts.workers, "workers", 0, "canonicalization workers (default: concurrency.workers)")
	_ = cmd.MarkFlagRequired("instances")

	return cmd
}

func (app *App) runCanonicalize(cmd *cobra.Command, opts canonicalizeOptions) error {
	u, err := loadCatalog(app.Config)
	if err != nil {
		app.Printer.Error("%v", err)
		return NewExitError(ExitConfig)
	}
	canon, _, err := app.components(u)
	if err != nil {
		app.Printer.Error("%v", err)
		return NewExitError(ExitConfig)
	}
	asOf, err := parseAsOf(opts.asOf, app.now())
	if err != nil {
		app.Printer.Error("%v", err)
		return NewExitError(ExitConfig)
	}

	batch, err := app.readInstances(opts.instancesPath)
	if err != nil {
		app.Printer.Error("%v", err)
		return NewExitError(ExitFailure)
	}

	workers := app.Config.Concurrency.Workers
	if opts.workers > 0 {
		workers = opts.workers
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out, err := engine.New(canon, nil, nil, app.Logger).Canonicalize(ctx, batch.Instances, asOf, workers)
	if err != nil {
		app.Printer.Error("%v", err)
		return NewExitError(ExitFailure)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(canonicalizeOutput{Instances: out}); err != nil {
		app.Printer.Error("failed to write canonical instances: %v", err)
		return NewExitError(ExitFailure)
	}
	return nil
}
