// Package driver iterates targets, wiring discovery, numbering,
// scheduling and state commits into one run, optionally repeating on a
// fixed interval.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jfmartin/substack-archiver/internal/archive"
	"github.com/jfmartin/substack-archiver/internal/pipeline"
	"github.com/jfmartin/substack-archiver/internal/scheduler"
	"github.com/jfmartin/substack-archiver/internal/sequence"
)

// Config controls run behavior.
type Config struct {
	// Login performs the collaborator login once per run before any
	// fetch task executes.
	Login bool
	// Continuous repeats discovery+fetch on Interval until canceled.
	Continuous bool
	Interval   time.Duration
}

// Driver owns the per-run state machine. Targets execute sequentially;
// only fetch tasks within a target run concurrently.
type Driver struct {
	store      archive.StateStore
	discoverer archive.Discoverer
	sched      *scheduler.Scheduler
	pipe       *pipeline.Pipeline
	fetcher    archive.Fetcher
	clock      archive.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Driver.
func New(
	store archive.StateStore,
	discoverer archive.Discoverer,
	sched *scheduler.Scheduler,
	pipe *pipeline.Pipeline,
	fetcher archive.Fetcher,
	clock archive.Clock,
	cfg Config,
	logger *zap.Logger,
) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		store:      store,
		discoverer: discoverer,
		sched:      sched,
		pipe:       pipe,
		fetcher:    fetcher,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes one batch, or repeats batches on the configured
// interval in continuous mode until ctx is canceled. The returned
// BatchResult is the last completed batch. A ConfigError (corrupt
// state file) aborts before any fetching.
func (d *Driver) Run(ctx context.Context, targets []archive.Target) (archive.BatchResult, error) {
	var last archive.BatchResult
	for {
		start := d.clock.Now()
		result, err := d.runBatch(ctx, targets)
		if err != nil {
			return result, err
		}
		last = result

		if !d.cfg.Continuous || d.cfg.Interval <= 0 {
			return last, nil
		}

		wait := d.cfg.Interval - d.clock.Now().Sub(start)
		if wait < 0 {
			wait = 0
		}
		d.logger.Info("continuous mode: waiting for next pass",
			zap.String("run_id", last.RunID),
			zap.Duration("wait", wait),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, nil
		case <-timer.C:
		}
	}
}

func (d *Driver) runBatch(ctx context.Context, targets []archive.Target) (archive.BatchResult, error) {
	result := archive.BatchResult{RunID: uuid.NewString()}
	logger := d.logger.With(zap.String("run_id", result.RunID))

	// Load every target's state up front so a corrupt state file
	// surfaces before any fetching starts.
	states := make([]archive.CrawlState, len(targets))
	for i, t := range targets {
		st, err := d.store.Load(t)
		if err != nil {
			return result, err
		}
		states[i] = st
	}

	if d.cfg.Login {
		if err := d.fetcher.Login(ctx); err != nil {
			logger.Warn("login failed; premium posts will report auth required", zap.Error(err))
		}
	}

	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		tr := d.runTarget(ctx, logger, target, states[i])
		result.Targets = append(result.Targets, tr)
	}
	return result, nil
}

// runTarget discovers, numbers, schedules and commits one target. Any
// failure here is recorded in the TargetResult; it never aborts the
// batch.
func (d *Driver) runTarget(
	ctx context.Context,
	logger *zap.Logger,
	target archive.Target,
	st archive.CrawlState,
) archive.TargetResult {
	tr := archive.TargetResult{Target: target}
	logger = logger.With(zap.String("target", target.Writer))

	disc, err := d.discoverer.Discover(ctx, target, st)
	if err != nil {
		logger.Error("discovery failed", zap.Error(err))
		tr.DiscoveryErr = err
		return tr
	}
	tr.Skipped = disc.SkippedKnown

	if len(disc.Candidates) == 0 {
		logger.Info("no new posts")
		return tr
	}

	tasks := sequence.Assign(st.HighestNumber, disc.Candidates)
	runner := func(ctx context.Context, task sequence.Numbered) (*archive.PostRecord, error) {
		return d.pipe.Process(ctx, target, task)
	}

	for outcome := range d.sched.Run(ctx, target.Writer, tasks, runner) {
		if outcome.Err != nil {
			tr.Failed = append(tr.Failed, archive.Failure{
				URL: outcome.Candidate.URL,
				Err: outcome.Err,
			})
			continue
		}

		// Output artifacts are durably written; only now does state
		// advance, so a crash re-discovers the post instead of losing it.
		st.Advance(*outcome.Record)
		if err := d.store.Commit(target, st); err != nil {
			logger.Error("state commit failed",
				zap.String("url", outcome.Record.URL),
				zap.Error(err),
			)
			tr.Failed = append(tr.Failed, archive.Failure{
				URL: outcome.Record.URL,
				Err: err,
			})
			continue
		}
		tr.Succeeded = append(tr.Succeeded, *outcome.Record)
	}

	logger.Info("target complete",
		zap.Int("succeeded", len(tr.Succeeded)),
		zap.Int("failed", len(tr.Failed)),
		zap.Int("skipped_duplicates", tr.Skipped),
	)
	return tr
}

// ErrRunFailed is returned by callers mapping a failed batch onto a
// non-zero exit status.
var ErrRunFailed = errors.New("one or more targets failed")
