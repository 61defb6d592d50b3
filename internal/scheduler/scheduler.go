// Package scheduler runs fetch tasks on a bounded worker pool with
// rate-limited, jittered task starts.
package scheduler

import (
	"context"
	mrand "math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jfmartin/substack-archiver/internal/archive"
	"github.com/jfmartin/substack-archiver/internal/metrics"
	"github.com/jfmartin/substack-archiver/internal/sequence"
)

// Runner executes one numbered task end to end (fetch, transform,
// write) and returns the finished record.
type Runner func(ctx context.Context, task sequence.Numbered) (*archive.PostRecord, error)

// Config controls Scheduler behavior.
type Config struct {
	// Concurrency is the maximum number of tasks in flight at once.
	Concurrency int
	// DelayMin and DelayMax bound the randomized delay between task
	// starts on each worker, avoiding request bursts.
	DelayMin time.Duration
	DelayMax time.Duration
	// TaskTimeout bounds a single attempt; expiry is a transient
	// failure eligible for the single retry.
	TaskTimeout time.Duration
}

// Scheduler dispatches tasks for one target and streams outcomes back
// in completion order. A task failure never stops other tasks.
type Scheduler struct {
	cfg     Config
	limiter *rate.Limiter
	retry   *RetryPolicy
	logger  *zap.Logger
}

// New returns a Scheduler.
func New(cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 90 * time.Second
	}
	if cfg.DelayMax < cfg.DelayMin {
		cfg.DelayMax = cfg.DelayMin
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.DelayMin > 0 {
		limit = rate.Every(cfg.DelayMin)
	}
	return &Scheduler{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		retry:   NewRetryPolicy(),
		logger:  logger,
	}
}

// Run executes tasks with at most Concurrency in flight and returns a
// channel delivering outcomes as tasks complete. Cancelling ctx stops
// submitting queued tasks; in-flight tasks finish (or are abandoned by
// their attempt timeout) before the channel closes.
func (s *Scheduler) Run(
	ctx context.Context,
	target string,
	tasks []sequence.Numbered,
	run Runner,
) <-chan archive.Outcome {
	taskCh := make(chan sequence.Numbered)
	results := make(chan archive.Outcome, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, target, taskCh, results, run)
		}()
	}

	go func() {
		defer close(taskCh)
		for _, t := range tasks {
			select {
			case taskCh <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

func (s *Scheduler) worker(
	ctx context.Context,
	target string,
	taskCh <-chan sequence.Numbered,
	results chan<- archive.Outcome,
	run Runner,
) {
	for task := range taskCh {
		if err := s.pace(ctx); err != nil {
			results <- archive.Outcome{Candidate: task.Candidate, Err: err}
			continue
		}
		results <- s.execute(ctx, target, task, run)
	}
}

// pace enforces the minimum inter-start delay plus a random share of
// the configured delay spread.
func (s *Scheduler) pace(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	spread := s.cfg.DelayMax - s.cfg.DelayMin
	if spread <= 0 {
		return nil
	}
	timer := time.NewTimer(mrand.N(spread))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Scheduler) execute(
	ctx context.Context,
	target string,
	task sequence.Numbered,
	run Runner,
) archive.Outcome {
	var lastErr error
	for attempt := 1; ; attempt++ {
		start := time.Now()
		record, err := s.attempt(ctx, task, run)
		if err == nil {
			metrics.PostsFetched.WithLabelValues(target).Inc()
			metrics.ObserveFetchDuration(target, time.Since(start))
			s.logger.Info("post archived",
				zap.String("target", target),
				zap.String("url", task.Candidate.URL),
				zap.Int("number", task.Number),
				zap.Int("attempt", attempt),
			)
			return archive.Outcome{Candidate: task.Candidate, Record: record}
		}

		lastErr = err
		if !s.retry.ShouldRetry(err, attempt) {
			break
		}
		metrics.Retries.Inc()
		backoff := s.retry.Backoff(attempt)
		s.logger.Warn("transient task failure, retrying",
			zap.String("target", target),
			zap.String("url", task.Candidate.URL),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return archive.Outcome{Candidate: task.Candidate, Err: lastErr}
		case <-timer.C:
		}
	}

	metrics.PostFailures.WithLabelValues(target, string(archive.ClassOf(lastErr))).Inc()
	s.logger.Error("task failed",
		zap.String("target", target),
		zap.String("url", task.Candidate.URL),
		zap.String("class", string(archive.ClassOf(lastErr))),
		zap.Error(lastErr),
	)
	return archive.Outcome{Candidate: task.Candidate, Err: lastErr}
}

func (s *Scheduler) attempt(
	ctx context.Context,
	task sequence.Numbered,
	run Runner,
) (*archive.PostRecord, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.TaskTimeout)
	defer cancel()
	return run(attemptCtx, task)
}
