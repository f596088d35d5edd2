// Package executor drives computation of Outcomes for every distinct
// (planned-test, tuple) pair in a plan: bounded-concurrency dispatch to a
// Test Provider, retry/backoff, per-tuple timeout, dispatch throttling, and
// cooperative cancellation (§4.E).
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/gbif-norway/bdq-agent/internal/cancellation"
	"github.com/gbif-norway/bdq-agent/internal/model"
	"github.com/gbif-norway/bdq-agent/internal/provider"
	"github.com/gbif-norway/bdq-agent/internal/tuplecache"
)

// Options configures one Executor run. Zero-value fields fall back to the
// defaults named in §4.E.
type Options struct {
	// Concurrency is the worker pool size N. Default:
	// min(8, max(2, logical CPU count)).
	Concurrency int

	// PerTupleTimeout (T₁) bounds a single provider invocation attempt.
	// Default 30s.
	PerTupleTimeout time.Duration

	// Limiter throttles the rate of dispatch to the Test Provider,
	// smoothing bursts of identical work across workers. Nil means
	// unthrottled.
	Limiter *rate.Limiter

	// Cancellation is polled between queue pops and before each provider
	// call. Nil means the run can only be stopped via ctx.
	Cancellation cancellation.Handle

	// BackoffFactory builds the retry policy's backoff.BackOff for one
	// work item invocation. Nil uses the §4.E.4 default (exponential from
	// 1s, doubling, interval capped at 8s, symmetric jitter). Tests
	// substitute a millisecond-scale factory so retry assertions don't
	// sleep for real seconds; production callers should leave this nil.
	BackoffFactory func() backoff.BackOff
}

// DefaultConcurrency returns the default worker pool size named in §4.E:
// min(8, max(2, logical CPU count)).
func DefaultConcurrency() int {
	n := runtime.NumCPU()

	switch {
	case n < 2:
		return 2
	case n > 8:
		return 8
	default:
		return n
	}
}

// Executor dispatches a test plan's distinct tuples to a Test Provider,
// memoizing Outcomes in a Cache.
type Executor struct {
	cache    *tuplecache.Cache
	provider provider.Provider
	opts     Options
}

// New builds an Executor. cache and prov must be non-nil.
func New(cache *tuplecache.Cache, prov provider.Provider, opts Options) *Executor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency()
	}

	if opts.PerTupleTimeout <= 0 {
		opts.PerTupleTimeout = 30 * time.Second
	}

	return &Executor{cache: cache, provider: prov, opts: opts}
}

// workItem is one (planned-test, distinct-tuple) pair pending dispatch.
type workItem struct {
	test  model.PlannedTest
	tuple model.Tuple
}

// Run executes the full algorithm of §4.E: distinct-tuple collection,
// work-queue flattening in test-plan order, and bounded-concurrency
// dispatch with a Validation→Amendment barrier, fully populating cache for
// every (planned-test, distinct-tuple) pair in plan.
//
// Run returns model.ErrCancelled if cancellation is observed (via ctx or
// the configured cancellation.Handle) before every item dispatches. It
// otherwise always returns nil: per-item provider failures are captured as
// INTERNAL_PREREQUISITES_NOT_MET Outcomes, never surfaced as a Run error
// (§4.E.5 — the job does not abort on partial failure).
func (e *Executor) Run(ctx context.Context, plan []model.PlannedTest, ds *model.Dataset) error {
	items := buildWorkItems(plan, ds)

	// plan is already sorted Validation → Amendment → Issue → Measure
	// (planner.Build), so partitioning preserves test-plan order within
	// each stage. The barrier is the boundary between these two errgroup
	// stages, not a separate semaphore: no Amendment work item starts
	// dispatching until every non-Amendment item has finished.
	var validations, amendments []workItem

	for _, it := range items {
		if it.test.Descriptor.TestType == model.TestTypeAmendment {
			amendments = append(amendments, it)
		} else {
			validations = append(validations, it)
		}
	}

	if err := e.runStage(ctx, validations); err != nil {
		return err
	}

	return e.runStage(ctx, amendments)
}

func (e *Executor) runStage(ctx context.Context, items []workItem) error {
	if len(items) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for _, it := range items {
		it := it

		g.Go(func() error {
			return e.dispatch(gctx, it)
		})
	}

	return g.Wait()
}

// dispatch handles one work item: a cache lookup (which may block on an
// in-flight producer for the same key) and, on miss, a provider invocation
// with retry.
func (e *Executor) dispatch(ctx context.Context, it workItem) error {
	if e.cancelled(ctx) {
		return model.ErrCancelled
	}

	key := it.tuple.CacheKey(it.test.Descriptor.CacheID())

	_, err := e.cache.GetOrCompute(key, func() (model.Outcome, error) {
		return e.invoke(ctx, it)
	})

	return err
}

func (e *Executor) cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}

	return e.opts.Cancellation != nil && e.opts.Cancellation.IsCancelled()
}

// invoke runs the retry policy of §4.E.4 for one work item: up to 3
// additional attempts beyond the first, exponential backoff from 1s
// doubling (interval capped at 8s) with jitter, stopping immediately on a
// non-transient provider error. The three retried conditions are a
// provider timeout, a provider error marked transient, and a
// successful-but-EXTERNAL_PREREQUISITES_NOT_MET Outcome — the last of
// these only degrades to a final INTERNAL_PREREQUISITES_NOT_MET Outcome
// once the retry budget is exhausted, never on the first attempt. A
// failure that survives the retry budget is converted to that Outcome
// rather than returned as an error, so the Cache always finalizes a key
// exactly once (§4.E.5) — the one exception is cancellation, which is
// propagated as an error so Run can stop the stage.
func (e *Executor) invoke(ctx context.Context, it workItem) (model.Outcome, error) {
	args := buildArgs(it)

	bo := e.newBackoff()

	var result model.Outcome

	operation := func() error {
		if e.cancelled(ctx) {
			return backoff.Permanent(model.ErrCancelled)
		}

		if e.opts.Limiter != nil {
			if err := e.opts.Limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.opts.PerTupleTimeout)
		defer cancel()

		outcome, err := e.provider.Invoke(attemptCtx, it.test.Descriptor.Handle, args)
		if err != nil {
			if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("provider timeout after %s: %w", e.opts.PerTupleTimeout, attemptCtx.Err())
			}

			if provider.IsTransient(err) {
				return err
			}

			return backoff.Permanent(err)
		}

		if outcome.Status == model.StatusExternalPrereqNotMet {
			return fmt.Errorf("provider signaled external prerequisites not met")
		}

		switch outcome.Status {
		case model.StatusRunHasResult, model.StatusAmended, model.StatusNotAmended,
			model.StatusFilledIn, model.StatusInternalPrereqNotMet, model.StatusAmbiguous:
			result = outcome
		default:
			// A status outside the known set is mapped to
			// INTERNAL_PREREQUISITES_NOT_MET, keeping the original string.
			result = model.Outcome{
				Status:  model.StatusInternalPrereqNotMet,
				Comment: fmt.Sprintf("unknown provider status %q: %s", outcome.Status, outcome.Comment),
			}
		}

		return nil
	}

	retryErr := backoff.Retry(operation, backoff.WithMaxRetries(bo, 3))
	if retryErr == nil {
		return result, nil
	}

	if errors.Is(retryErr, model.ErrCancelled) || errors.Is(retryErr, context.Canceled) {
		return model.Outcome{}, model.ErrCancelled
	}

	return model.Outcome{
		Status:  model.StatusInternalPrereqNotMet,
		Comment: retryErr.Error(),
	}, nil
}

// newBackoff builds the retry policy's backoff.BackOff: the §4.E.4 default
// unless Options.BackoffFactory overrides it.
func (e *Executor) newBackoff() backoff.BackOff {
	if e.opts.BackoffFactory != nil {
		return e.opts.BackoffFactory()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 8 * time.Second
	// cenkalti/backoff jitters symmetrically around the interval
	// (±RandomizationFactor), not AWS-style full-jitter-from-zero, so an
	// actual sleep can run up to 2×MaxInterval; MaxInterval bounds the
	// pre-jitter interval, not the realized sleep.
	bo.RandomizationFactor = 1
	bo.MaxElapsedTime = 0 // bounded by WithMaxRetries, not wall clock

	return bo
}

// buildArgs projects a work item's tuple into the provider's named-
// parameter form: data-column values keyed by their namespaced column
// name, plus the test's resolved parameters (§6).
func buildArgs(it workItem) map[string]string {
	args := make(map[string]string, len(it.test.Columns)+len(it.test.Parameters))

	for i, col := range it.test.Columns {
		if i < len(it.tuple.Values) {
			args[col] = it.tuple.Values[i]
		}
	}

	for name, val := range it.test.Parameters {
		args[name] = val
	}

	return args
}

// buildWorkItems implements §4.E steps 1–2: per planned test, iterate
// records once and collapse to a per-test ordered set of distinct tuples
// (first-seen row order), then flatten into a single queue in plan order.
func buildWorkItems(plan []model.PlannedTest, ds *model.Dataset) []workItem {
	var items []workItem

	for _, pt := range plan {
		seen := make(map[string]struct{})

		for _, r := range ds.Records {
			t := model.TupleFor(ds.Header, pt, r)
			key := t.CacheKey(pt.Descriptor.CacheID())

			if _, exists := seen[key]; exists {
				continue
			}

			seen[key] = struct{}{}
			items = append(items, workItem{test: pt, tuple: t})
		}
	}

	return items
}
