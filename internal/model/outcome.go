package model

import (
	"sort"
	"strings"
)

type (
	// Status is the discriminant of an Outcome, exactly one of the values
	// a Test Provider may legitimately return (§3). Any status string a
	// Provider returns outside this set must be mapped by the caller to
	// StatusInternalPrereqNotMet with the original string preserved in the
	// comment (§9, Open Question) — Outcome itself does not perform that
	// mapping, since it has no way to distinguish "unknown" from
	// "malformed" without the raw provider response.
	Status string

	// ResultLabel is the pass/fail label a Validation or Issue outcome
	// carries. Amendment outcomes carry Amendments instead; ResultLabel is
	// empty for them.
	ResultLabel string

	// AmendmentPair is one proposed (column, value) correction within an
	// Amendment Outcome.
	AmendmentPair struct {
		Column string
		Value  string
	}

	// Outcome is the immutable `{status, result, comment}` value a test
	// produces for one (test-id, tuple) key. Once stored in the Tuple
	// Cache under that key, it never changes for the life of the job.
	Outcome struct {
		Status      Status
		ResultLabel ResultLabel
		Amendments  []AmendmentPair
		Comment     string
	}
)

const (
	StatusRunHasResult             Status = "RUN_HAS_RESULT"
	StatusAmended                  Status = "AMENDED"
	StatusNotAmended                Status = "NOT_AMENDED"
	StatusFilledIn                 Status = "FILLED_IN"
	StatusExternalPrereqNotMet     Status = "EXTERNAL_PREREQUISITES_NOT_MET"
	StatusInternalPrereqNotMet     Status = "INTERNAL_PREREQUISITES_NOT_MET"
	StatusAmbiguous                Status = "AMBIGUOUS"

	ResultCompliant     ResultLabel = "COMPLIANT"
	ResultNotCompliant  ResultLabel = "NOT_COMPLIANT"
	ResultPotentialIssue ResultLabel = "POTENTIAL_ISSUE"
	ResultNotIssue      ResultLabel = "NOT_ISSUE"
)

// IsPrerequisiteNotMet reports whether status is one of the two
// prerequisite-not-met statuses, which always contribute a raw-results row
// regardless of test type, "for transparency" (§4.F.1).
func (s Status) IsPrerequisiteNotMet() bool {
	return s == StatusExternalPrereqNotMet || s == StatusInternalPrereqNotMet
}

// Passes reports whether this Outcome counts as a "pass" for a test of the
// given type, per the pass semantics in §4.F.1. A passing Outcome
// contributes no row to the raw-results table (unless it is also a
// prerequisite-not-met status, which always contributes regardless of
// type).
func (o Outcome) Passes(t TestType) bool {
	if o.Status.IsPrerequisiteNotMet() {
		return false
	}

	switch t {
	case TestTypeValidation:
		return o.Status == StatusRunHasResult && o.ResultLabel == ResultCompliant
	case TestTypeAmendment:
		return o.Status == StatusNotAmended
	case TestTypeIssue:
		return o.Status == StatusRunHasResult && o.ResultLabel == ResultNotIssue
	case TestTypeMeasure:
		// Measures are never filtered; every Measure outcome is recorded.
		return false
	default:
		return false
	}
}

// RenderResult renders the canonical "result" column value for the
// raw-results table (§6, Wire formats): the pass-label string for
// Validations/Issues, a sorted pipe-joined key=value sequence for
// Amendments, or the empty string for prerequisite-not-met outcomes.
func (o Outcome) RenderResult() string {
	if o.Status.IsPrerequisiteNotMet() {
		return ""
	}

	if len(o.Amendments) > 0 {
		return renderAmendments(o.Amendments)
	}

	return string(o.ResultLabel)
}

// renderAmendments renders amendment pairs as "key1=value1|key2=value2|...",
// keys sorted lexicographically, no surrounding whitespace, per §6. Pairs
// are sorted by Column before rendering (not the rendered strings
// themselves), so the ordering depends only on column names, never on "="
// sorting below digits/letters in a rendered "field=..." vs "field2=..."
// comparison.
func renderAmendments(pairs []AmendmentPair) string {
	sorted := make([]AmendmentPair, len(pairs))
	copy(sorted, pairs)

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Column < sorted[j].Column
	})

	rendered := make([]string, len(sorted))
	for i, p := range sorted {
		rendered[i] = p.Column + "=" + p.Value
	}

	return strings.Join(rendered, "|")
}
