// Package projector maps cached Outcomes back to every source row and
// derives the two output artifacts plus a structured digest (§4.F): the
// raw-results table, the amended-dataset table, and a per-test/per-class
// summary.
package projector

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/gbif-norway/bdq-agent/internal/model"
	"github.com/gbif-norway/bdq-agent/internal/tuplecache"
)

// Result bundles the three artifacts §4.F produces.
type Result struct {
	RawResultsCSV    []byte
	AmendedDatasetCSV []byte
	Digest           Digest
}

// Digest is the structured summary object of §4.F.3.
type Digest struct {
	TotalRows               int                     `json:"total_rows"`
	TotalPlannedTests       int                     `json:"total_planned_tests"`
	DistinctTuplesPerTest   map[string]int          `json:"distinct_tuples_per_test"`
	PerTest                 map[string]TestCounts   `json:"per_test"`
	PerInformationElement   map[string]TestCounts   `json:"per_information_element_class"`
	SkippedTests            []string                `json:"skipped_tests"`
	TopNonPassValues        map[string][]ValueCount `json:"top_non_pass_values"`
	Warnings                []string                `json:"warnings"`
}

// TestCounts is one test's (or one information-element class's) aggregated
// pass/fail/amended/filled/skipped counts.
type TestCounts struct {
	Pass     int `json:"pass"`
	Fail     int `json:"fail"`
	Amended  int `json:"amended"`
	Filled   int `json:"filled"`
	Skipped  int `json:"skipped"`
}

// ValueCount is one (rendered-result, occurrence-count) pair, used for the
// digest's top-K-most-common non-pass values per test.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// topK is the K in "top-K-most-common non-pass values per test" (§4.F.3).
const topK = 5

// rawResultsHeader is the fixed column order of §4.F.1.
var rawResultsHeader = []string{
	"record_id", "test_id", "test_type", "status", "result", "comment", "acted_upon", "values",
}

// Project computes the Result for a finished Executor run: cache must be
// fully populated for every (planned-test, distinct-tuple) pair in plan,
// per ds.
func Project(ds *model.Dataset, plan []model.PlannedTest, reg Registry, cache *tuplecache.Cache, stats model.Stats) (Result, error) {
	rows, err := buildRawResultRows(ds, plan, reg, cache)
	if err != nil {
		return Result{}, err
	}

	// Amendments are applied before the raw-results table is encoded, so the
	// overwrite comment buildAmendedDataset sets on a row is written out.
	amendedCSV, err := buildAmendedDataset(ds, plan, cache, rows)
	if err != nil {
		return Result{}, fmt.Errorf("encode amended dataset: %w", err)
	}

	rawCSV, err := encodeRawResults(rows)
	if err != nil {
		return Result{}, fmt.Errorf("encode raw results: %w", err)
	}

	digest := buildDigest(ds, plan, cache, rows, stats)

	return Result{RawResultsCSV: rawCSV, AmendedDatasetCSV: amendedCSV, Digest: digest}, nil
}

// Registry is the subset of registry.Registry's API the Projector needs
// (metadata lookups for the digest); kept narrow so this package doesn't
// import registry for the single method it calls.
type Registry interface {
	Lookup(testIDOrGUID string) (model.Descriptor, bool)
}

// rawRow is one raw-results table row plus the bookkeeping needed to also
// drive amended-dataset application and digest aggregation, so the cache
// is only walked once per (record, test) pair.
type rawRow struct {
	rowIndex     int
	recordID     string
	test         model.PlannedTest
	testID       string // canonical test-id for this row, per canonicalTestID
	tuple        model.Tuple
	outcome      model.Outcome
	overwritten  bool // set by buildAmendedDataset when a later amendment wins this row's cell
	overwriteMsg string
}

// buildRawResultRows walks every (record, planned-test) pair in
// (source-row-index, test-plan-order) order — already the order plan and
// ds.Records are in — looking up each tuple's finalized Outcome and
// keeping only the non-pass ones, per the pass semantics of §4.F.1. The
// test_id column prefers the Registry's current canonical spelling of a
// descriptor over the plan's own copy, in case the two have diverged since
// planning (e.g. a reloaded registry); reg may be nil, in which case the
// plan's own TestID is used unconditionally.
func buildRawResultRows(ds *model.Dataset, plan []model.PlannedTest, reg Registry, cache *tuplecache.Cache) ([]*rawRow, error) {
	var rows []*rawRow

	for _, r := range ds.Records {
		recordID := ds.Identifier(r)

		for _, pt := range plan {
			tuple := model.TupleFor(ds.Header, pt, r)
			key := tuple.CacheKey(pt.Descriptor.CacheID())

			outcome, ok := cache.Get(key)
			if !ok {
				return nil, fmt.Errorf("%w: no finalized outcome for test %q, row %d", model.ErrInternalBug, pt.Descriptor.TestID, r.RowIndex)
			}

			if outcome.Passes(pt.Descriptor.TestType) {
				continue
			}

			rows = append(rows, &rawRow{
				rowIndex: r.RowIndex,
				recordID: recordID,
				test:     pt,
				testID:   canonicalTestID(reg, pt.Descriptor),
				tuple:    tuple,
				outcome:  outcome,
			})
		}
	}

	return rows, nil
}

// canonicalTestID resolves a descriptor's current canonical test-id via
// reg, falling back to the descriptor's own TestID if reg is nil or
// doesn't recognize the descriptor's cache id (e.g. a synthetic descriptor
// in a test).
func canonicalTestID(reg Registry, d model.Descriptor) string {
	if reg == nil {
		return d.TestID
	}

	if canonical, ok := reg.Lookup(d.CacheID()); ok {
		return canonical.TestID
	}

	return d.TestID
}

func encodeRawResults(rows []*rawRow) ([]byte, error) {
	var buf bytes.Buffer

	w := csv.NewWriter(&buf)

	if err := w.Write(rawResultsHeader); err != nil {
		return nil, err
	}

	for _, row := range rows {
		comment := row.outcome.Comment
		if row.overwritten {
			comment = strings.TrimSpace(comment + " " + row.overwriteMsg)
		}

		record := []string{
			row.recordID,
			row.testID,
			string(row.test.Descriptor.TestType),
			string(row.outcome.Status),
			row.outcome.RenderResult(),
			comment,
			strings.Join(row.test.Descriptor.ActedUpon, ","),
			strings.Join(tupleValuesForRow(row), "|"),
		}

		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()

	return buf.Bytes(), w.Error()
}

func tupleValuesForRow(row *rawRow) []string {
	return row.tuple.Values
}

// buildAmendedDataset applies Amendment/FilledIn outcomes to a row-level
// copy of the input (§4.F.2): amendments are applied in test-plan order,
// last writer wins on a cell conflict, and the overwritten raw-results row
// (if one exists for that test) gets a comment describing the overwrite.
func buildAmendedDataset(ds *model.Dataset, plan []model.PlannedTest, cache *tuplecache.Cache, rows []*rawRow) ([]byte, error) {
	amendedRows := make([][]string, len(ds.Records))
	writers := make([]map[int]*rawRow, len(ds.Records)) // rowIndex -> col idx -> which planned test last wrote it

	for i, r := range ds.Records {
		cp := make([]string, len(r.Values))
		copy(cp, r.Values)
		amendedRows[i] = cp
		writers[i] = make(map[int]*rawRow)
	}

	rawRowByTestAndRow := indexRawRowsByTestAndRow(rows)

	for _, pt := range plan {
		if pt.Descriptor.TestType != model.TestTypeAmendment {
			continue
		}

		for i, r := range ds.Records {
			tuple := model.TupleFor(ds.Header, pt, r)
			key := tuple.CacheKey(pt.Descriptor.CacheID())

			outcome, ok := cache.Get(key)
			if !ok || len(outcome.Amendments) == 0 {
				continue
			}

			if outcome.Status != model.StatusAmended && outcome.Status != model.StatusFilledIn {
				continue
			}

			applyAmendment(ds, amendedRows[i], writers[i], pt, outcome, rawRowByTestAndRow, r.RowIndex)
		}
	}

	return encodeAmendedDataset(ds, amendedRows)
}

func indexRawRowsByTestAndRow(rows []*rawRow) map[string]*rawRow {
	idx := make(map[string]*rawRow, len(rows))

	for _, row := range rows {
		idx[rawRowKey(row.test.Descriptor.TestID, row.rowIndex)] = row
	}

	return idx
}

func rawRowKey(testID string, rowIndex int) string {
	return fmt.Sprintf("%s#%d", testID, rowIndex)
}

func applyAmendment(ds *model.Dataset, rowValues []string, writersForRow map[int]*rawRow, pt model.PlannedTest, outcome model.Outcome, rawRowByTestAndRow map[string]*rawRow, rowIndex int) {
	for _, pair := range outcome.Amendments {
		colIdx, ok := ds.Header.Resolve(pair.Column)
		if !ok || colIdx >= len(rowValues) {
			continue
		}

		if prevWriter, conflict := writersForRow[colIdx]; conflict {
			msg := fmt.Sprintf("overwritten by %s", pt.Descriptor.TestID)

			prevWriter.overwritten = true
			prevWriter.overwriteMsg = msg
		}

		rowValues[colIdx] = pair.Value

		if current, ok := rawRowByTestAndRow[rawRowKey(pt.Descriptor.TestID, rowIndex)]; ok {
			writersForRow[colIdx] = current
		} else {
			// No raw-results row exists for this amendment on this row.
			// Only AMENDED/FILLED_IN outcomes reach here and neither is a
			// pass status, so the placeholder only keeps conflict tracking
			// working if that ever changes.
			writersForRow[colIdx] = &rawRow{rowIndex: rowIndex, test: pt}
		}
	}
}

func encodeAmendedDataset(ds *model.Dataset, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer

	w := csv.NewWriter(&buf)
	w.Comma = ds.Delimiter
	if w.Comma == 0 {
		w.Comma = ','
	}

	if err := w.Write(ds.Header.Columns()); err != nil {
		return nil, err
	}

	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return nil, err
		}
	}

	w.Flush()

	return buf.Bytes(), w.Error()
}

// buildDigest computes §4.F.3's structured summary from the finalized
// cache and the raw-results rows already derived above: the top-K values
// reuse those rows, while the distinct-tuple, per-test and skipped-test
// aggregates each re-derive every record's tuple and read the cache.
func buildDigest(ds *model.Dataset, plan []model.PlannedTest, cache *tuplecache.Cache, rows []*rawRow, stats model.Stats) Digest {
	d := Digest{
		TotalRows:             len(ds.Records),
		TotalPlannedTests:     len(plan),
		DistinctTuplesPerTest: make(map[string]int, len(plan)),
		PerTest:               make(map[string]TestCounts, len(plan)),
		PerInformationElement: make(map[string]TestCounts),
	}

	if stats.DuplicateIDCount > 0 {
		d.Warnings = append(d.Warnings, fmt.Sprintf("%d duplicate record identifiers found: %s",
			stats.DuplicateIDCount, strings.Join(stats.DuplicateIDValues, ", ")))
	}

	countDistinctTuples(ds, plan, d.DistinctTuplesPerTest)
	tallyOutcomes(ds, plan, cache, d)
	d.SkippedTests = computeSkippedTests(ds, plan, cache)
	d.TopNonPassValues = computeTopNonPassValues(rows)

	return d
}

func countDistinctTuples(ds *model.Dataset, plan []model.PlannedTest, out map[string]int) {
	for _, pt := range plan {
		seen := make(map[string]struct{})

		for _, r := range ds.Records {
			tuple := model.TupleFor(ds.Header, pt, r)
			seen[tuple.CacheKey(pt.Descriptor.CacheID())] = struct{}{}
		}

		out[pt.Descriptor.TestID] = len(seen)
	}
}

func tallyOutcomes(ds *model.Dataset, plan []model.PlannedTest, cache *tuplecache.Cache, d Digest) {
	for _, pt := range plan {
		var counts TestCounts

		for _, r := range ds.Records {
			tuple := model.TupleFor(ds.Header, pt, r)
			outcome, ok := cache.Get(tuple.CacheKey(pt.Descriptor.CacheID()))
			if !ok {
				continue
			}

			tallyOne(&counts, pt.Descriptor.TestType, outcome)
		}

		d.PerTest[pt.Descriptor.TestID] = counts

		class := pt.Descriptor.InformationElementClass
		agg := d.PerInformationElement[class]
		addCounts(&agg, counts)
		d.PerInformationElement[class] = agg
	}
}

func tallyOne(counts *TestCounts, testType model.TestType, outcome model.Outcome) {
	switch {
	case outcome.Status.IsPrerequisiteNotMet():
		counts.Skipped++
	case outcome.Status == model.StatusAmended:
		counts.Amended++
	case outcome.Status == model.StatusFilledIn:
		counts.Filled++
	case outcome.Passes(testType):
		counts.Pass++
	default:
		counts.Fail++
	}
}

func addCounts(dst *TestCounts, src TestCounts) {
	dst.Pass += src.Pass
	dst.Fail += src.Fail
	dst.Amended += src.Amended
	dst.Filled += src.Filled
	dst.Skipped += src.Skipped
}

// computeSkippedTests returns the test-ids where every distinct tuple
// ended in a prerequisite-not-met status (§4.E.5, §4.F.3).
func computeSkippedTests(ds *model.Dataset, plan []model.PlannedTest, cache *tuplecache.Cache) []string {
	var skipped []string

	for _, pt := range plan {
		seen := make(map[string]struct{})

		total, notMet := 0, 0

		for _, r := range ds.Records {
			tuple := model.TupleFor(ds.Header, pt, r)
			key := tuple.CacheKey(pt.Descriptor.CacheID())

			if _, dup := seen[key]; dup {
				continue
			}

			seen[key] = struct{}{}

			outcome, ok := cache.Get(key)
			if !ok {
				continue
			}

			total++

			if outcome.Status.IsPrerequisiteNotMet() {
				notMet++
			}
		}

		if total > 0 && total == notMet {
			skipped = append(skipped, pt.Descriptor.TestID)
		}
	}

	sort.Strings(skipped)

	return skipped
}

// computeTopNonPassValues groups the already-collected raw-results rows by
// test-id then by rendered result, counting occurrences and sorting by
// count descending then value ascending for determinism, the same
// group-then-sort shape as the teacher's pattern suggester.
func computeTopNonPassValues(rows []*rawRow) map[string][]ValueCount {
	counts := make(map[string]map[string]int)

	for _, row := range rows {
		testID := row.test.Descriptor.TestID
		if counts[testID] == nil {
			counts[testID] = make(map[string]int)
		}

		counts[testID][row.outcome.RenderResult()]++
	}

	out := make(map[string][]ValueCount, len(counts))

	for testID, byValue := range counts {
		list := make([]ValueCount, 0, len(byValue))
		for value, n := range byValue {
			list = append(list, ValueCount{Value: value, Count: n})
		}

		sort.Slice(list, func(i, j int) bool {
			if list[i].Count != list[j].Count {
				return list[i].Count > list[j].Count
			}

			return list[i].Value < list[j].Value
		})

		if len(list) > topK {
			list = list[:topK]
		}

		out[testID] = list
	}

	return out
}
