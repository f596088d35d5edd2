// Package engine is the facade wiring the Registry, Dataset Reader, Plan
// Builder, Executor, Tuple Cache, and Result Projector together behind one
// entry point, `run_job` (§6).
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/gbif-norway/bdq-agent/internal/cancellation"
	"github.com/gbif-norway/bdq-agent/internal/config"
	"github.com/gbif-norway/bdq-agent/internal/dataset"
	"github.com/gbif-norway/bdq-agent/internal/executor"
	"github.com/gbif-norway/bdq-agent/internal/model"
	"github.com/gbif-norway/bdq-agent/internal/planner"
	"github.com/gbif-norway/bdq-agent/internal/projector"
	"github.com/gbif-norway/bdq-agent/internal/provider"
	"github.com/gbif-norway/bdq-agent/internal/registry"
	"github.com/gbif-norway/bdq-agent/internal/tuplecache"
)

// Overrides carries run_job's recognized `overrides` keys (§6). Zero
// values fall back to the defaults named in §4.E / §5: Concurrency to
// executor.DefaultConcurrency(), PerTupleTimeout to 30s, JobTimeout to
// 900s.
type Overrides struct {
	Concurrency        int
	PerTupleTimeout    time.Duration
	JobTimeout         time.Duration
	Parameters         map[string]string
	CancellationHandle cancellation.Handle
	DispatchRPS        float64 // 0 means unthrottled
}

// JobResult is run_job's success shape (§6): both tables serialized as
// delimiter-separated text with a header row, plus the structured digest
// and any non-fatal warnings accumulated across every stage.
type JobResult struct {
	JobID               string
	RawResultsTable     []byte
	AmendedDatasetTable []byte
	Digest              projector.Digest
	Warnings            []string
}

// JobError is run_job's failure shape (§6, §7): a fatal error kind, a
// human-readable message, and free-form context, generalized from the
// teacher's HTTP `ProblemDetail` payload (internal/api/errors.go) to a
// plain Go error with no HTTP framing, since the core has no public API.
type JobError struct {
	Kind    string
	Message string
	Context map[string]string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Engine holds the long-lived, read-only collaborators a job runs
// against: the loaded test Registry and the Test Provider. Both are safe
// for concurrent use across jobs.
type Engine struct {
	Registry *registry.Registry
	Provider provider.Provider
}

// New builds an Engine. reg and prov must be non-nil.
func New(reg *registry.Registry, prov provider.Provider) *Engine {
	return &Engine{Registry: reg, Provider: prov}
}

// RunJob implements run_job (§6): Reader → Plan Builder →
// (Executor ↔ Tuple Cache ↔ Test Provider) → Result Projector. Unknown
// override keys are the CLI/config layer's concern (§6's "unknown keys
// emit a warning and are ignored" applies to the YAML/env loading in
// cmd/bdqagent, which only ever populates the fields Overrides declares).
func (e *Engine) RunJob(ctx context.Context, input []byte, filename string, overrides Overrides) (JobResult, error) {
	jobID := uuid.New().String()
	concurrency, perTupleTimeout, jobTimeout := resolveOverrideDefaults(overrides)

	ds, stats, readWarnings, err := dataset.Read(input, filename)
	if err != nil {
		return JobResult{}, classify(err, filename, jobID)
	}

	plan, planWarnings, err := planner.Build(e.Registry, ds, overrides.Parameters)
	if err != nil {
		return JobResult{}, classify(err, filename, jobID)
	}

	warnings := append(append([]string{}, readWarnings...), planWarnings...)

	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	slog.Info("engine: job started",
		slog.String("job_id", jobID),
		slog.String("filename", filename),
		slog.Int("row_count", stats.RowCount),
		slog.Int("planned_tests", len(plan)))

	cache := tuplecache.New()

	var limiter *rate.Limiter
	if overrides.DispatchRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(overrides.DispatchRPS), int(overrides.DispatchRPS))
	}

	ex := executor.New(cache, e.Provider, executor.Options{
		Concurrency:     concurrency,
		PerTupleTimeout: perTupleTimeout,
		Limiter:         limiter,
		Cancellation:    overrides.CancellationHandle,
	})

	if err := ex.Run(jobCtx, plan, ds); err != nil {
		slog.Warn("engine: job did not complete",
			slog.String("job_id", jobID), slog.String("filename", filename), slog.Any("error", err))

		return JobResult{}, classifyExecutorError(err, jobCtx, filename, jobID)
	}

	result, err := projector.Project(ds, plan, e.Registry, cache, stats)
	if err != nil {
		return JobResult{}, classify(err, filename, jobID)
	}

	slog.Info("engine: job finished",
		slog.String("job_id", jobID),
		slog.String("filename", filename),
		slog.Int("skipped_tests", len(result.Digest.SkippedTests)))

	return JobResult{
		JobID:               jobID,
		RawResultsTable:     result.RawResultsCSV,
		AmendedDatasetTable: result.AmendedDatasetCSV,
		Digest:              result.Digest,
		Warnings:            append(warnings, result.Digest.Warnings...),
	}, nil
}

func resolveOverrideDefaults(o Overrides) (concurrency int, perTupleTimeout, jobTimeout time.Duration) {
	concurrency = o.Concurrency
	if concurrency <= 0 {
		concurrency = executor.DefaultConcurrency()
	}

	perTupleTimeout = o.PerTupleTimeout
	if perTupleTimeout <= 0 {
		perTupleTimeout = 30 * time.Second
	}

	jobTimeout = o.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 900 * time.Second
	}

	return concurrency, perTupleTimeout, jobTimeout
}

// classify maps a fatal sentinel error from model.errors.go to a JobError
// (§7). Every kind named in §7 is covered; an unrecognized error falls
// back to InternalBug rather than leaking an unclassified error shape.
func classify(err error, filename, jobID string) *JobError {
	ctx := map[string]string{"filename": filename, "job_id": jobID}

	for _, m := range []struct {
		sentinel error
		kind     string
	}{
		{model.ErrNoAttachment, "NoAttachment"},
		{model.ErrEmptyDataset, "EmptyDataset"},
		{model.ErrNoCoreColumn, "NoCoreColumn"},
		{model.ErrMalformedRow, "MalformedRow"},
		{model.ErrRegistryInvalid, "RegistryInvalid"},
		{model.ErrNoApplicableTests, "NoApplicableTests"},
		{model.ErrCancelled, "Cancelled"},
		{model.ErrJobTimeoutExceeded, "JobTimeoutExceeded"},
		{model.ErrInternalBug, "InternalBug"},
	} {
		if errors.Is(err, m.sentinel) {
			return &JobError{Kind: m.kind, Message: err.Error(), Context: ctx}
		}
	}

	return &JobError{Kind: "InternalBug", Message: err.Error(), Context: ctx}
}

// classifyExecutorError distinguishes a job-timeout from an explicit
// cancellation when the Executor stops early — both surface as
// model.ErrCancelled from the Executor itself, so the distinction is made
// here against jobCtx's own error.
func classifyExecutorError(err error, jobCtx context.Context, filename, jobID string) *JobError {
	if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		return classify(fmt.Errorf("%w: %v", model.ErrJobTimeoutExceeded, err), filename, jobID)
	}

	return classify(fmt.Errorf("%w: %v", model.ErrCancelled, err), filename, jobID)
}

// LoadConfig reads run_job's default overrides from BDQ_* environment
// variables, the same env-var-with-default shape as the teacher's
// internal/api/config.go, retargeted from CORRELATOR_* to BDQ_*.
func LoadConfig() Overrides {
	return Overrides{
		Concurrency:     config.GetEnvInt("BDQ_CONCURRENCY", executor.DefaultConcurrency()),
		PerTupleTimeout: config.GetEnvDuration("BDQ_PER_TUPLE_TIMEOUT", 30*time.Second),
		JobTimeout:      config.GetEnvDuration("BDQ_JOB_TIMEOUT", 900*time.Second),
		DispatchRPS:     float64(config.GetEnvInt("BDQ_DISPATCH_RPS", 0)),
	}
}
