package executor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/gbif-norway/bdq-agent/internal/model"
	"github.com/gbif-norway/bdq-agent/internal/provider"
	"github.com/gbif-norway/bdq-agent/internal/tuplecache"
)

func countryCodeDescriptor() model.Descriptor {
	return model.Descriptor{
		TestID:                  "VALIDATION_COUNTRYCODE_STANDARD",
		TestType:                model.TestTypeValidation,
		ActedUpon:               []string{"dwc:countryCode"},
		InformationElementClass: "Location",
		Handle:                  "VALIDATION_COUNTRYCODE_STANDARD",
	}
}

func planFor(d model.Descriptor, columns []string) model.PlannedTest {
	return model.PlannedTest{Descriptor: d, Columns: columns, Parameters: map[string]string{}}
}

func datasetWith(header *model.Header, rows [][]string) *model.Dataset {
	records := make([]model.Record, len(rows))
	for i, r := range rows {
		records[i] = model.Record{RowIndex: i, Values: r}
	}

	return &model.Dataset{Header: header, Records: records}
}

// countingProvider records every Invoke call and answers from a
// per-call-count script keyed by the country-code argument.
type countingProvider struct {
	calls   int64
	perCall func(n int64, args map[string]string) (model.Outcome, error)
}

func (p *countingProvider) Invoke(_ context.Context, _ model.ImplementationHandle, args map[string]string) (model.Outcome, error) {
	n := atomic.AddInt64(&p.calls, 1)

	return p.perCall(n, args)
}

func TestRunDedupMakesOneProviderCallPerDistinctTuple(t *testing.T) {
	header, _ := model.NewHeader([]string{"occurrenceID", "dwc:countryCode"})
	ds := datasetWith(header, [][]string{
		{"1", "US"}, {"2", "US"}, {"3", "GB"}, {"4", "us"}, {"5", "XX"},
	})

	plan := []model.PlannedTest{planFor(countryCodeDescriptor(), []string{"dwc:countryCode"})}

	p := &countingProvider{perCall: func(_ int64, args map[string]string) (model.Outcome, error) {
		if len(args["dwc:countryCode"]) == 2 {
			return model.Outcome{Status: model.StatusRunHasResult, ResultLabel: model.ResultCompliant}, nil
		}

		return model.Outcome{Status: model.StatusRunHasResult, ResultLabel: model.ResultNotCompliant}, nil
	}}

	cache := tuplecache.New()
	ex := New(cache, p, Options{})

	err := ex.Run(context.Background(), plan, ds)
	require.NoError(t, err)

	// 5 rows, 4 distinct values (US, GB, us, XX) — case is not folded.
	require.EqualValues(t, 4, atomic.LoadInt64(&p.calls))
	require.Equal(t, 4, cache.Len())
}

func TestRunTransientErrorRetriesThenSucceeds(t *testing.T) {
	header, _ := model.NewHeader([]string{"occurrenceID", "dwc:countryCode"})
	ds := datasetWith(header, [][]string{{"1", "US"}})

	plan := []model.PlannedTest{planFor(countryCodeDescriptor(), []string{"dwc:countryCode"})}

	p := &countingProvider{perCall: func(n int64, _ map[string]string) (model.Outcome, error) {
		if n == 1 {
			return model.Outcome{}, &provider.TransientError{Err: context.DeadlineExceeded}
		}

		return model.Outcome{Status: model.StatusRunHasResult, ResultLabel: model.ResultCompliant}, nil
	}}

	cache := tuplecache.New()
	ex := New(cache, p, Options{
		BackoffFactory: func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) },
	})

	err := ex.Run(context.Background(), plan, ds)
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt64(&p.calls))

	snap := cache.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, model.StatusRunHasResult, snap[0].Outcome.Status)
}

func TestRunExternalPrereqNotMetRetriesThenSucceeds(t *testing.T) {
	header, _ := model.NewHeader([]string{"occurrenceID", "dwc:countryCode"})
	ds := datasetWith(header, [][]string{{"1", "US"}})

	plan := []model.PlannedTest{planFor(countryCodeDescriptor(), []string{"dwc:countryCode"})}

	p := &countingProvider{perCall: func(n int64, _ map[string]string) (model.Outcome, error) {
		if n < 3 {
			return model.Outcome{Status: model.StatusExternalPrereqNotMet}, nil
		}

		return model.Outcome{Status: model.StatusRunHasResult, ResultLabel: model.ResultCompliant}, nil
	}}

	cache := tuplecache.New()
	ex := New(cache, p, Options{
		BackoffFactory: func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) },
	})

	err := ex.Run(context.Background(), plan, ds)
	require.NoError(t, err)
	require.EqualValues(t, 3, atomic.LoadInt64(&p.calls), "external-prereq-not-met must be retried, not accepted on the first attempt")

	snap := cache.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, model.StatusRunHasResult, snap[0].Outcome.Status)
}

func TestRunExternalPrereqNotMetDegradesAfterRetryBudgetExhausted(t *testing.T) {
	header, _ := model.NewHeader([]string{"occurrenceID", "dwc:countryCode"})
	ds := datasetWith(header, [][]string{{"1", "US"}})

	plan := []model.PlannedTest{planFor(countryCodeDescriptor(), []string{"dwc:countryCode"})}

	p := &countingProvider{perCall: func(_ int64, _ map[string]string) (model.Outcome, error) {
		return model.Outcome{Status: model.StatusExternalPrereqNotMet}, nil
	}}

	cache := tuplecache.New()
	ex := New(cache, p, Options{
		BackoffFactory: func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) },
	})

	err := ex.Run(context.Background(), plan, ds)
	require.NoError(t, err)
	require.EqualValues(t, 4, atomic.LoadInt64(&p.calls), "1 initial attempt + 3 retries")

	snap := cache.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, model.StatusInternalPrereqNotMet, snap[0].Outcome.Status,
		"exhausted retry budget must degrade to INTERNAL_PREREQUISITES_NOT_MET")
}

func TestRunNonTransientErrorIsNotRetried(t *testing.T) {
	header, _ := model.NewHeader([]string{"occurrenceID", "dwc:countryCode"})
	ds := datasetWith(header, [][]string{{"1", "US"}})

	plan := []model.PlannedTest{planFor(countryCodeDescriptor(), []string{"dwc:countryCode"})}

	p := &countingProvider{perCall: func(_ int64, _ map[string]string) (model.Outcome, error) {
		return model.Outcome{}, provider.ErrUnknownTestID
	}}

	cache := tuplecache.New()
	ex := New(cache, p, Options{
		BackoffFactory: func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) },
	})

	err := ex.Run(context.Background(), plan, ds)
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt64(&p.calls), "non-transient errors must not be retried")

	snap := cache.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, model.StatusInternalPrereqNotMet, snap[0].Outcome.Status)
}

func TestRunAmendmentsWaitForValidations(t *testing.T) {
	header, _ := model.NewHeader([]string{"occurrenceID", "dwc:countryCode"})
	ds := datasetWith(header, [][]string{{"1", "US"}})

	validation := countryCodeDescriptor()
	amendment := model.Descriptor{
		TestID:                  "AMENDMENT_COUNTRYCODE_FIX",
		TestType:                model.TestTypeAmendment,
		ActedUpon:               []string{"dwc:countryCode"},
		InformationElementClass: "Location",
		Handle:                  "AMENDMENT_COUNTRYCODE_FIX",
	}

	plan := []model.PlannedTest{
		planFor(validation, []string{"dwc:countryCode"}),
		planFor(amendment, []string{"dwc:countryCode"}),
	}

	p := &countingProvider{perCall: func(_ int64, _ map[string]string) (model.Outcome, error) {
		return model.Outcome{Status: model.StatusNotAmended}, nil
	}}

	cache := tuplecache.New()
	ex := New(cache, p, Options{})

	err := ex.Run(context.Background(), plan, ds)
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt64(&p.calls))
}

func TestRunRespectsCancellation(t *testing.T) {
	header, _ := model.NewHeader([]string{"occurrenceID", "dwc:countryCode"})
	ds := datasetWith(header, [][]string{{"1", "US"}})

	plan := []model.PlannedTest{planFor(countryCodeDescriptor(), []string{"dwc:countryCode"})}

	p := &countingProvider{perCall: func(_ int64, _ map[string]string) (model.Outcome, error) {
		return model.Outcome{Status: model.StatusRunHasResult}, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cache := tuplecache.New()
	ex := New(cache, p, Options{})

	err := ex.Run(ctx, plan, ds)
	require.Error(t, err)
}

func TestDefaultConcurrencyWithinBounds(t *testing.T) {
	n := DefaultConcurrency()
	require.GreaterOrEqual(t, n, 2)
	require.LessOrEqual(t, n, 8)
}
