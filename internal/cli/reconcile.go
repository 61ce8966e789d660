package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"procwatch/internal/canonical"
	"procwatch/internal/catalog"
	"procwatch/internal/engine"
	"procwatch/internal/instance"
	"procwatch/internal/matcher"
	"procwatch/internal/store"
)

type reconcileOptions struct {
	instancesPath string
	runID         string
	asOf          string
	scope         []string
	workers       int
	dryRun        bool
	initFresh     bool
	quiet         bool
}

func newReconcileCommand(app *App) *cobra.Command {
	var opts reconcileOptions
	cmd := &cobra.Command{
		Use:   "reconcile --instances <file>",
		Short: "Reconcile process instances into the workflow store",
		Long: `Reconcile a batch of process instances:
  1. canonicalize every instance against the catalog
  2. match in-scope instances to stored workflows
  3. update the store and publish it atomically
  4. write the catalog, coverage, reconciliation and drift reports

Instances are read from a {"instances": [...]} JSON document or from JSON lines.

Example:
  procwatch reconcile --instances run/instances.jsonl --as-of 2024-05-10T12:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runReconcile(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.instancesPath, "instances", "", "instances file (JSON document or JSON lines)")
	f.StringVar(&opts.runID, "run-id", "", "run id (default: current UTC time as YYYYMMDD_HHMMSS)")
	f.StringVar(&opts.asOf, "as-of", "", "reference time for health (default: now)")
	f.StringSliceVar(&opts.scope, "scope", nil, "processes allowed into the store (default: scope.processes)")
	f.IntVar(&opts.workers, "workers", 0, "canonicalization workers (default: concurrency.workers)")
	f.BoolVar(&opts.dryRun, "dry-run", false, "compute the reports without writing the store")
	f.BoolVar(&opts.initFresh, "init-fresh", false, "replace a corrupt store with an empty one")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "do not print per-instance progress")
	_ = cmd.MarkFlagRequired("instances")

	return cmd
}

func (app *App) runReconcile(ctx context.Context, opts reconcileOptions) error {
	cfg := app.Config

	u, err := loadCatalog(cfg)
	if err != nil {
		app.Printer.Error("%v", err)
		return NewExitError(ExitConfig)
	}
	canon, m, err := app.components(u)
	if err != nil {
		app.Printer.Error("%v", err)
		return NewExitError(ExitConfig)
	}
	asOf, err := parseAsOf(opts.asOf, app.now())
	if err != nil {
		app.Printer.Error("%v", err)
		return NewExitError(ExitConfig)
	}

	scope, err := scopeFor(cfg, u, opts.scope)
	if err != nil {
		app.Printer.Error("%v", err)
		return NewExitError(ExitConfig)
	}

	batch, err := app.readInstances(opts.instancesPath)
	if err != nil {
		app.Printer.Error("%v", err)
		return NewExitError(ExitFailure)
	}

	runID := opts.runID
	if runID == "" {
		runID = engine.NewRunID(app.now())
	}
	workers := cfg.Concurrency.Workers
	if opts.workers > 0 {
		workers = opts.workers
	}
	storePath := store.ResolvePath(cfg.Store.Path)

	eng := engine.New(canon, m, engine.StoreOpener(storePath, store.SessionOptions{
		InitFresh: cfg.Store.InitFresh || opts.initFresh,
		Lock:      cfg.Store.Lock,
		Logger:    app.Logger,
	}), app.Logger)
	if !opts.quiet {
		eng.SetProgressCallback(app.Printer.Progress)
	}

	app.Printer.RunHeader(runID, len(batch.Instances), scope.Processes(), opts.dryRun)

	res, err := eng.Run(ctx, batch.Instances, engine.Options{
		RunID:        runID,
		AsOf:         asOf,
		Scope:        scope,
		Workers:      workers,
		DryRun:       opts.dryRun,
		ReportDir:    cfg.Reports.Dir,
		Files:        reportFiles(cfg),
		SnapshotFile: cfg.Reports.SnapshotFile,
	})
	if res != nil {
		if res.Fresh {
			app.Printer.Warning("store %s was corrupt and has been reinitialized", storePath)
		}
		app.Printer.RunSummary(res.Reports, opts.dryRun, res.RunDir)
	}
	if err != nil {
		switch {
		case errors.Is(err, store.ErrStoreLocked):
			app.Printer.Error("store %s is locked by another run", storePath)
		case errors.Is(err, store.ErrCorruptStore):
			app.Printer.Error("%v (rerun with --init-fresh to start from an empty store)", err)
		default:
			app.Printer.Error("reconcile failed: %v", err)
		}
		return NewExitError(ExitFailure)
	}
	return nil
}

// components builds the canonicalizer and the matcher from the configuration.
func (app *App) components(u *catalog.Unified) (*canonical.Canonicalizer, *matcher.Matcher, error) {
	rules := rulesFromConfig(app.Config)
	if err := rules.Validate(); err != nil {
		return nil, nil, err
	}
	mopts, err := matcherOptions(app.Config)
	if err != nil {
		return nil, nil, err
	}
	return canonical.New(u, rules), matcher.New(mopts), nil
}

// readInstances reads an instance file and logs the lines it had to skip.
func (app *App) readInstances(path string) (*instance.Batch, error) {
	batch, err := instance.ReadFromFile(path)
	if err != nil {
		return nil, err
	}
	for _, le := range batch.Skipped {
		app.Logger.Warn("skipped malformed instance line",
			zap.String("file", path),
			zap.Int("line", le.Line),
			zap.String("error", le.Err),
		)
	}
	return batch, nil
}
