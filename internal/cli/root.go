// Package cli implements the procwatch command line.
//
// Commands are built with cobra from an [App] that carries the loaded
// configuration, the logger and the terminal printer. Commands return an
// [ExitError] instead of exiting, so every command can be executed in tests.
//
// Commands:
//   - reconcile: canonicalize instances and update the workflow store
//   - canonicalize: canonicalize instances and print them as JSON
//   - catalog: compile the catalog and print or write its dump
//   - version: print the build version
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"procwatch/internal/config"
	"procwatch/internal/logging"
	"procwatch/internal/output"
)

// Version is the build version, set with -ldflags "-X procwatch/internal/cli.Version=...".
var Version = "dev"

// App holds the dependencies shared by all commands.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Printer *output.Printer

	// Now returns the current time. Nil means time.Now.
	Now func() time.Time
}

func (app *App) now() time.Time {
	if app.Now != nil {
		return app.Now()
	}
	return time.Now()
}

// NewRootCommand builds the command tree for app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "procwatch",
		Short: "Canonicalize process instances and reconcile them into durable workflows",
		Long: `procwatch maps noisy, inferred process instances onto a catalog of
known processes, phases and steps, and reconciles them into a persistent
store of workflows keyed by client, role and process.

Each reconcile run writes coverage, reconciliation and drift reports next to
a snapshot of the store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newReconcileCommand(app),
		newCanonicalizeCommand(app),
		newCatalogCommand(app),
		newVersionCommand(),
	)
	return root
}

// ExecuteResult is the outcome of a command line invocation.
type ExecuteResult struct {
	ExitCode int
	Err      error
}

// RunWithConfig validates cfg, builds the [App] and executes the command
// line given by args.
func RunWithConfig(ctx context.Context, cfg *config.Config, args []string) ExecuteResult {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
		return ExecuteResult{ExitCode: ExitConfig, Err: err}
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return ExecuteResult{ExitCode: ExitConfig, Err: err}
	}
	defer func() { _ = logger.Sync() }()

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Printer: output.NewPrinter(),
	}

	cmd := NewRootCommand(app)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if code, ok := IsExitError(err); ok {
			return ExecuteResult{ExitCode: code, Err: err}
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExecuteResult{ExitCode: ExitFailure, Err: err}
	}
	return ExecuteResult{}
}

// Execute loads the configuration, runs the command line and exits with the
// resulting code. An interrupt cancels the running command.
func Execute() {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(ExitConfig)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	result := RunWithConfig(ctx, cfg, os.Args[1:])
	stop()
	os.Exit(result.ExitCode)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the procwatch version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "procwatch %s\n", Version)
		},
	}
}
