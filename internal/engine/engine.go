// Package engine runs one reconciliation pass.
//
// A run canonicalizes every instance in parallel, then applies the in-scope
// instances to the workflow store one at a time in a stable order, derives
// the reports and finally publishes the store. The store is only written when
// every instance was applied; a cancelled run leaves the previous file as it
// was.
//
// Key concepts:
//   - [Engine] wires the canonicalizer, the matcher and the store session
//   - [ApplyOrder] is the total order instances are applied in
//   - [Opener] abstracts the store session for testing
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"procwatch/internal/canonical"
	"procwatch/internal/instance"
	"procwatch/internal/matcher"
	"procwatch/internal/report"
	"procwatch/internal/store"
)

// Session is the store session a run works against. [store.Session]
// implements it.
type Session interface {
	Store() *store.Store
	Fresh() bool
	Commit() error
	Release() error
}

// Opener opens the store session of a run.
type Opener func() (Session, error)

// StoreOpener returns an [Opener] for the store file at path.
func StoreOpener(path string, opts store.SessionOptions) Opener {
	return func() (Session, error) {
		return store.Open(path, opts)
	}
}

// ProgressCallback is invoked after each instance is applied with the
// 1-based position, the number of in-scope instances and the decision.
type ProgressCallback func(index, total int, d matcher.Decision)

// Options configures a single run.
type Options struct {
	RunID string

	// AsOf is the reference time for health. Zero means now.
	AsOf time.Time

	Scope store.Scope

	// Workers bounds parallel canonicalization. Values below 1 mean 1.
	Workers int

	// DryRun computes every report but never writes the store.
	DryRun bool

	// ReportDir is the parent of the per-run report directory. Empty
	// disables report files.
	ReportDir string
	Files     report.Files

	// SnapshotFile names the store snapshot inside the run directory.
	SnapshotFile string
}

// Result is the outcome of a run.
type Result struct {
	RunID     string
	RunDir    string
	Reports   report.Set
	Persisted bool
	Fresh     bool
}

// Engine runs reconciliation passes.
type Engine struct {
	canon    *canonical.Canonicalizer
	matcher  *matcher.Matcher
	open     Opener
	logger   *zap.Logger
	progress ProgressCallback
}

// New creates an [Engine]. A nil logger disables logging.
func New(c *canonical.Canonicalizer, m *matcher.Matcher, open Opener, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{canon: c, matcher: m, open: open, logger: logger}
}

// SetProgressCallback configures an optional per-instance progress callback.
func (e *Engine) SetProgressCallback(cb ProgressCallback) {
	e.progress = cb
}

// Canonicalize resolves every instance with up to workers goroutines. The
// result is in input order.
func (e *Engine) Canonicalize(ctx context.Context, instances []instance.Instance, asOf time.Time, workers int) ([]canonical.Instance, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]canonical.Instance, len(instances))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range instances {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = e.canon.Canonicalize(instances[i], asOf)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("canonicalization cancelled: %w", err)
	}
	return out, nil
}

// Run reconciles instances against the store.
//
// Reports are written even when the store cannot be published; in that case
// the reconciliation report has persisted set to false and Run returns the
// persistence error together with the result.
func (e *Engine) Run(ctx context.Context, instances []instance.Instance, opts Options) (*Result, error) {
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	log := e.logger.With(zap.String("run_id", opts.RunID))

	canonicalized, err := e.Canonicalize(ctx, instances, asOf, opts.Workers)
	if err != nil {
		return nil, err
	}
	log.Debug("canonicalized instances", zap.Int("count", len(canonicalized)))

	session, err := e.open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := session.Release(); err != nil {
			log.Warn("failed to release store", zap.Error(err))
		}
	}()

	st := session.Store()
	migrations := st.Migrate(e.canon.Catalog())
	for _, m := range migrations {
		log.Info("migrated legacy process id",
			zap.String("workflow_id", m.WorkflowID),
			zap.String("from", m.From),
			zap.String("to", m.To),
		)
	}
	before := st.Clone()

	entries := make([]report.Entry, len(canonicalized))
	for i := range canonicalized {
		entries[i] = report.Entry{
			Instance: &canonicalized[i],
			InScope:  opts.Scope.Allows(canonicalized[i].CanonicalProcess),
		}
	}

	order := ApplyOrder(canonicalized, opts.Scope)
	for n, i := range order {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("reconciliation cancelled: %w", err)
		}

		ci := &canonicalized[i]
		d := e.matcher.Match(ci, st)
		if _, err := st.Apply(ci, d, opts.Scope); err != nil {
			return nil, fmt.Errorf("failed to apply instance %q: %w", ci.InstanceID, err)
		}
		entries[i].Decision = &d

		for _, a := range d.Anomalies {
			log.Warn("store anomaly",
				zap.String("kind", a.Kind),
				zap.String("key", a.Key),
				zap.Strings("workflow_ids", a.WorkflowIDs),
			)
		}
		if e.progress != nil {
			e.progress(n+1, len(order), d)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("reconciliation cancelled: %w", err)
	}

	res := &Result{RunID: opts.RunID, Fresh: session.Fresh()}
	if opts.ReportDir != "" {
		res.RunDir = filepath.Join(opts.ReportDir, opts.RunID)
	}
	res.Reports = report.Build(report.Input{
		RunID:      opts.RunID,
		AsOf:       asOf,
		Catalog:    e.canon.Catalog(),
		Scope:      opts.Scope,
		Entries:    entries,
		Before:     before,
		After:      st.Clone(),
		Migrations: migrations,
	})

	var persistErr error
	if !opts.DryRun {
		persistErr = session.Commit()
		if persistErr == nil && res.RunDir != "" && opts.SnapshotFile != "" {
			persistErr = store.WriteSnapshot(filepath.Join(res.RunDir, opts.SnapshotFile), st)
		}
		res.Persisted = persistErr == nil
	}
	res.Reports.Reconciliation.Persisted = res.Persisted

	var reportErr error
	if res.RunDir != "" {
		reportErr = res.Reports.Write(res.RunDir, opts.Files)
	}

	rec := res.Reports.Reconciliation
	log.Info("reconciliation finished",
		zap.Int("instances", len(instances)),
		zap.Int("created", rec.Created),
		zap.Int("updated", rec.Updated),
		zap.Int("unchanged", rec.Unchanged),
		zap.Int("skipped", rec.Skipped),
		zap.Bool("persisted", res.Persisted),
	)

	if err := errors.Join(persistErr, reportErr); err != nil {
		return res, err
	}
	return res, nil
}

// NewRunID returns the default run id for a run started at t: the UTC time
// as YYYYMMDD_HHMMSS.
func NewRunID(t time.Time) string {
	return t.UTC().Format("20060102_150405")
}

// ApplyOrder returns the indices of the in-scope instances in the order they
// are applied: last_updated_at ascending with missing timestamps first, then
// instance id, then input position.
func ApplyOrder(instances []canonical.Instance, scope store.Scope) []int {
	var order []int
	for i := range instances {
		if scope.Allows(instances[i].CanonicalProcess) {
			order = append(order, i)
		}
	}

	sort.SliceStable(order, func(a, b int) bool {
		x, y := &instances[order[a]], &instances[order[b]]
		switch {
		case x.Timestamp == nil && y.Timestamp != nil:
			return true
		case x.Timestamp != nil && y.Timestamp == nil:
			return false
		case x.Timestamp != nil && !x.Timestamp.Equal(*y.Timestamp):
			return x.Timestamp.Before(*y.Timestamp)
		case x.InstanceID != y.InstanceID:
			return x.InstanceID < y.InstanceID
		default:
			return order[a] < order[b]
		}
	})
	return order
}
