package fetch

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"carimages/internal/metrics"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Resolver turns an ordered list of alternative topics into an image URL.
// It reports failure with ok=false and never returns an error.
type Resolver interface {
	ResolveAny(ctx context.Context, topics []string) (imageURL string, ok bool)
}

type RunnerOptions struct {
	Fetcher  *Fetcher
	Resolver Resolver
	// DirectDelay follows a task fetched from a direct URL, LookupDelay a task
	// that went through topic resolution.
	DirectDelay time.Duration
	LookupDelay time.Duration
	Metrics     *metrics.Metrics
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
	// OnOutcome, when set, is called after every task in order.
	OnOutcome func(Outcome)
}

// Runner processes tasks strictly one at a time.
type Runner struct {
	fetcher     *Fetcher
	resolver    Resolver
	directDelay time.Duration
	lookupDelay time.Duration
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	onOutcome   func(Outcome)
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRunner(opts RunnerOptions) *Runner {
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = NewFetcher(Options{Metrics: opts.Metrics})
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Runner{
		fetcher:     fetcher,
		resolver:    opts.Resolver,
		directDelay: opts.DirectDelay,
		lookupDelay: opts.LookupDelay,
		metrics:     opts.Metrics,
		logger:      logger,
		onOutcome:   opts.OnOutcome,
		sleep:       sleepContext,
	}
}

// Run ensures every task's target exists above minBytes, in input order.
//
// Remote failures are counted and never stop the batch. A *StorageError stops
// it and is returned along with the partial result. Cancelling ctx stops the
// run between tasks (or during a politeness pause) and returns ctx.Err(); a
// task already in flight is allowed to finish.
func (r *Runner) Run(ctx context.Context, tasks []Task, minBytes int64) (Result, error) {
	result := Result{Outcomes: make([]Outcome, 0, len(tasks))}
	total := len(tasks)

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		logger := r.logger.With().
			Int("n", i+1).
			Int("total", total).
			Str("file", filepath.Base(task.Target)).
			Logger()

		outcome, networked, err := r.runTask(context.WithoutCancel(ctx), task, minBytes, logger)
		result.record(outcome)
		r.metrics.ObserveTask(string(outcome.State))
		if r.onOutcome != nil {
			r.onOutcome(outcome)
		}
		if err != nil {
			logger.Error().Err(err).Msg("output not writable, stopping batch")
			return result, err
		}

		if !networked {
			continue
		}
		if i == total-1 {
			result.pause = r.delayFor(task)
			continue
		}
		if err := r.sleep(ctx, r.delayFor(task)); err != nil {
			return result, err
		}
	}

	r.logger.Info().
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Int64("bytes", result.Bytes).
		Msg("batch complete")
	return result, nil
}

// Settle waits out the pause owed by the last task of prev. Call it before
// handing the runner the next list of tasks of the same batch.
func (r *Runner) Settle(ctx context.Context, prev Result) error {
	return r.sleep(ctx, prev.pause)
}

// runTask handles a single task. networked reports whether any request was made.
// The returned error is non-nil only for storage failures.
func (r *Runner) runTask(ctx context.Context, task Task, minBytes int64, logger zerolog.Logger) (Outcome, bool, error) {
	outcome := Outcome{Target: task.Target}

	if IsSatisfied(task.Target, minBytes) {
		outcome.State = StateSkipped
		logger.Info().Msg("skip: already present")
		return outcome, false, nil
	}

	imageURL := task.Source.URL
	if task.Source.IsLookup() {
		if r.resolver == nil {
			outcome.State = StateFailed
			outcome.Error = ErrNoResolver.Error()
			logger.Warn().Strs("topics", task.Source.Topics).Msg("failed: no resolver")
			return outcome, false, nil
		}
		resolved, ok := r.resolver.ResolveAny(ctx, task.Source.Topics)
		if !ok {
			outcome.State = StateFailed
			outcome.Error = ErrUnresolved.Error()
			logger.Warn().Strs("topics", task.Source.Topics).Msg("failed: no image found for topic")
			return outcome, true, nil
		}
		imageURL = resolved
		logger.Debug().Str("url", imageURL).Msg("topic resolved")
	}
	outcome.URL = imageURL

	written, err := r.fetcher.Save(ctx, imageURL, task.Target, minBytes)
	if err != nil {
		outcome.State = StateFailed
		outcome.Error = err.Error()
		if IsStorage(err) {
			return outcome, true, err
		}
		logger.Warn().Str("url", imageURL).Err(err).Msg("failed: download")
		return outcome, true, nil
	}

	outcome.State = StateFetched
	outcome.Bytes = written
	logger.Info().Int64("bytes", written).Msg("fetched")
	return outcome, true, nil
}

func (r *Runner) delayFor(task Task) time.Duration {
	if task.Source.IsLookup() {
		return r.lookupDelay
	}
	return r.directDelay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsCancelled reports whether err came from a cancelled or expired run context.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
