package projector

import (
	"strings"
	"testing"

	"github.com/gbif-norway/bdq-agent/internal/model"
	"github.com/gbif-norway/bdq-agent/internal/tuplecache"
)

func header(t *testing.T, cols ...string) *model.Header {
	t.Helper()

	h, _ := model.NewHeader(cols)

	return h
}

func mustGetOrCompute(t *testing.T, c *tuplecache.Cache, key string, outcome model.Outcome) {
	t.Helper()

	_, err := c.GetOrCompute(key, func() (model.Outcome, error) { return outcome, nil })
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
}

func TestProjectDedupAndBackProjection(t *testing.T) {
	h := header(t, "occurrenceID", "dwc:countryCode")
	ds := &model.Dataset{
		Header:   h,
		IDColumn: "occurrenceID",
		Records: []model.Record{
			{RowIndex: 0, Values: []string{"1", "US"}},
			{RowIndex: 1, Values: []string{"2", "US"}},
			{RowIndex: 2, Values: []string{"3", "GB"}},
			{RowIndex: 3, Values: []string{"4", "us"}},
			{RowIndex: 4, Values: []string{"5", "XX"}},
		},
	}

	descriptor := model.Descriptor{TestID: "VALIDATION_COUNTRYCODE_STANDARD", TestType: model.TestTypeValidation}
	plan := []model.PlannedTest{{Descriptor: descriptor, Columns: []string{"dwc:countryCode"}, Parameters: map[string]string{}}}

	cache := tuplecache.New()

	labels := map[string]model.ResultLabel{
		"US": model.ResultCompliant,
		"GB": model.ResultCompliant,
		"us": model.ResultNotCompliant,
		"XX": model.ResultNotCompliant,
	}

	for code, label := range labels {
		tuple := model.NewTuple([]string{code})
		key := tuple.CacheKey(descriptor.CacheID())

		mustGetOrCompute(t, cache, key, model.Outcome{Status: model.StatusRunHasResult, ResultLabel: label})
	}

	result, err := Project(ds, plan, nil, cache, model.Stats{})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}

	raw := string(result.RawResultsCSV)
	lines := strings.Split(strings.TrimSpace(raw), "\n")

	// header + one row each for "us" (lowercase, not uppercase -> NOT_COMPLIANT) and "XX".
	if len(lines) != 1+2 {
		t.Fatalf("raw results lines = %d, want 3:\n%s", len(lines), raw)
	}

	amended := string(result.AmendedDatasetCSV)
	if !strings.Contains(amended, "US") || !strings.Contains(amended, "XX") {
		t.Errorf("amended dataset missing expected values:\n%s", amended)
	}
}

func TestProjectAmendmentConflictLastWriterWins(t *testing.T) {
	h := header(t, "occurrenceID", "dwc:eventDate")
	ds := &model.Dataset{
		Header:   h,
		IDColumn: "occurrenceID",
		Records:  []model.Record{{RowIndex: 0, Values: []string{"1", "8 May 1880"}}},
	}

	general := model.Descriptor{TestID: "AMENDMENT_EVENTDATE_GENERAL", TestType: model.TestTypeAmendment}
	specific := model.Descriptor{TestID: "AMENDMENT_EVENTDATE_SPECIFIC", TestType: model.TestTypeAmendment}

	plan := []model.PlannedTest{
		{Descriptor: general, Columns: []string{"dwc:eventDate"}, Parameters: map[string]string{}},
		{Descriptor: specific, Columns: []string{"dwc:eventDate"}, Parameters: map[string]string{}},
	}

	cache := tuplecache.New()

	tuple := model.NewTuple([]string{"8 May 1880"})

	mustGetOrCompute(t, cache, tuple.CacheKey(general.CacheID()), model.Outcome{
		Status:     model.StatusAmended,
		Amendments: []model.AmendmentPair{{Column: "dwc:eventDate", Value: "1880-05-08"}},
	})
	mustGetOrCompute(t, cache, tuple.CacheKey(specific.CacheID()), model.Outcome{
		Status:     model.StatusAmended,
		Amendments: []model.AmendmentPair{{Column: "dwc:eventDate", Value: "1880-05-08T00:00:00"}},
	})

	result, err := Project(ds, plan, nil, cache, model.Stats{})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}

	amended := string(result.AmendedDatasetCSV)
	if !strings.Contains(amended, "1880-05-08T00:00:00") {
		t.Fatalf("expected the later (specific) amendment to win:\n%s", amended)
	}

	if strings.Contains(amended, "1880-05-08\n") {
		t.Errorf("earlier amendment's value should have been overwritten:\n%s", amended)
	}

	raw := string(result.RawResultsCSV)
	if !strings.Contains(raw, "overwritten by AMENDMENT_EVENTDATE_SPECIFIC") {
		t.Errorf("expected overwrite comment on the general amendment's raw-results row:\n%s", raw)
	}
}

func TestProjectMultiFieldAmendmentRendering(t *testing.T) {
	h := header(t, "occurrenceID", "dwc:decimalLatitude", "dwc:decimalLongitude")
	ds := &model.Dataset{
		Header:   h,
		IDColumn: "occurrenceID",
		Records:  []model.Record{{RowIndex: 0, Values: []string{"1", "", ""}}},
	}

	descriptor := model.Descriptor{TestID: "AMENDMENT_COORDINATES_FROM_VERBATIM", TestType: model.TestTypeAmendment}
	plan := []model.PlannedTest{{Descriptor: descriptor, Columns: []string{"dwc:decimalLatitude", "dwc:decimalLongitude"}, Parameters: map[string]string{}}}

	cache := tuplecache.New()

	tuple := model.NewTuple([]string{"", ""})
	mustGetOrCompute(t, cache, tuple.CacheKey(descriptor.CacheID()), model.Outcome{
		Status: model.StatusFilledIn,
		Amendments: []model.AmendmentPair{
			{Column: "dwc:decimalLongitude", Value: "10.5"},
			{Column: "dwc:decimalLatitude", Value: "59.9"},
		},
	})

	result, err := Project(ds, plan, nil, cache, model.Stats{})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}

	raw := string(result.RawResultsCSV)
	if !strings.Contains(raw, "dwc:decimalLatitude=59.9|dwc:decimalLongitude=10.5") {
		t.Errorf("expected lexicographically sorted pipe-joined amendment pairs:\n%s", raw)
	}
}

func TestProjectDigestSkippedTests(t *testing.T) {
	h := header(t, "occurrenceID", "dwc:countryCode")
	ds := &model.Dataset{
		Header:   h,
		IDColumn: "occurrenceID",
		Records:  []model.Record{{RowIndex: 0, Values: []string{"1", "US"}}},
	}

	descriptor := model.Descriptor{TestID: "VALIDATION_ALWAYS_BROKEN", TestType: model.TestTypeValidation}
	plan := []model.PlannedTest{{Descriptor: descriptor, Columns: []string{"dwc:countryCode"}, Parameters: map[string]string{}}}

	cache := tuplecache.New()

	tuple := model.NewTuple([]string{"US"})
	mustGetOrCompute(t, cache, tuple.CacheKey(descriptor.CacheID()), model.Outcome{
		Status:  model.StatusInternalPrereqNotMet,
		Comment: "provider unreachable",
	})

	result, err := Project(ds, plan, nil, cache, model.Stats{})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}

	if len(result.Digest.SkippedTests) != 1 || result.Digest.SkippedTests[0] != "VALIDATION_ALWAYS_BROKEN" {
		t.Errorf("SkippedTests = %v, want [VALIDATION_ALWAYS_BROKEN]", result.Digest.SkippedTests)
	}
}

func TestProjectDuplicateIDWarning(t *testing.T) {
	h := header(t, "occurrenceID", "dwc:countryCode")
	ds := &model.Dataset{
		Header:   h,
		IDColumn: "occurrenceID",
		Records:  []model.Record{{RowIndex: 0, Values: []string{"1", "US"}}},
	}

	cache := tuplecache.New()

	result, err := Project(ds, nil, nil, cache, model.Stats{DuplicateIDCount: 2, DuplicateIDValues: []string{"7", "3"}})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}

	if len(result.Digest.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", result.Digest.Warnings)
	}

	if !strings.Contains(result.Digest.Warnings[0], "3") || !strings.Contains(result.Digest.Warnings[0], "7") {
		t.Errorf("warning %q should name the duplicate id values", result.Digest.Warnings[0])
	}
}
