// Package model provides the core domain types shared by every stage of the
// BDQ pipeline: the record/dataset shape produced by the Reader, the test
// descriptor and plan shape produced by the Registry and Plan Builder, and
// the tuple/outcome shapes exchanged between the Executor, the Tuple Cache,
// and the Result Projector.
//
// This is a pure domain model without any I/O or concurrency concerns —
// those live in the packages that consume it.
package model

import (
	"strings"

	"github.com/gbif-norway/bdq-agent/internal/canonicalization"
)

type (
	// Header is the ordered, deduplicated set of column names detected by
	// the Reader. Column names keep their original (possibly namespaced)
	// form; lookups are case-insensitive on the local name and tolerant of
	// the namespace prefix, per Darwin Core convention.
	//
	// A Header is immutable after construction and safe for concurrent
	// reads — the same guarantee the teacher documents for its read-only,
	// post-load domain structures.
	Header struct {
		columns []string
		index   map[string]int // local name -> position in columns
		// rawLen and keptIndices let a Reader project a raw CSV row (still
		// at the original, pre-dedup width) down to this Header's shape,
		// without re-deriving which columns were dropped.
		rawLen      int
		keptIndices []int
	}
)

// NewHeader builds a Header from the raw column names seen on the input's
// header row, dropping duplicates by case-insensitive local name (first
// occurrence wins). It returns the Header plus the names of any columns
// that were dropped as duplicates, so the caller can emit a warning.
func NewHeader(rawColumns []string) (*Header, []string) {
	columns := make([]string, 0, len(rawColumns))
	index := make(map[string]int, len(rawColumns))
	keptIndices := make([]int, 0, len(rawColumns))
	dropped := make([]string, 0)

	for rawIdx, col := range rawColumns {
		local := canonicalization.LocalName(col)
		if _, exists := index[local]; exists {
			dropped = append(dropped, col)

			continue
		}

		index[local] = len(columns)
		columns = append(columns, col)
		keptIndices = append(keptIndices, rawIdx)
	}

	return &Header{
		columns:     columns,
		index:       index,
		rawLen:      len(rawColumns),
		keptIndices: keptIndices,
	}, dropped
}

// RawLen returns the width of the original (pre-dedup) header row, which
// every subsequent data row must match before projection.
func (h *Header) RawLen() int {
	return h.rawLen
}

// ProjectRow selects, from a raw data row of width RawLen(), the values at
// the positions this Header kept after deduplication, in Header order.
// ok is false if raw does not have exactly RawLen() fields.
func (h *Header) ProjectRow(raw []string) (values []string, ok bool) {
	if len(raw) != h.rawLen {
		return nil, false
	}

	values = make([]string, len(h.keptIndices))
	for i, rawIdx := range h.keptIndices {
		values[i] = raw[rawIdx]
	}

	return values, true
}

// Columns returns the deduplicated header in original order. The returned
// slice is a defensive copy; callers may not mutate the Header through it.
func (h *Header) Columns() []string {
	cp := make([]string, len(h.columns))
	copy(cp, h.columns)

	return cp
}

// Len reports the number of columns in the header.
func (h *Header) Len() int {
	return len(h.columns)
}

// Resolve finds the position of name in the header, matching
// case-insensitively on the local (unprefixed) name regardless of whether
// name or the header column carries a namespace prefix.
func (h *Header) Resolve(name string) (int, bool) {
	idx, ok := h.index[canonicalization.LocalName(name)]

	return idx, ok
}

// Has reports whether name resolves to a header column.
func (h *Header) Has(name string) bool {
	_, ok := h.Resolve(name)

	return ok
}

// ColumnName returns the header's own spelling of name (as it appeared in
// the input), if it resolves.
func (h *Header) ColumnName(name string) (string, bool) {
	idx, ok := h.Resolve(name)
	if !ok {
		return "", false
	}

	return h.columns[idx], true
}

// HasAll reports whether every name in names resolves to a header column.
func (h *Header) HasAll(names []string) bool {
	for _, n := range names {
		if !h.Has(n) {
			return false
		}
	}

	return true
}

// DetectCoreType inspects the header for the occurrenceID / taxonID
// core-type marker columns, namespace-tolerant, per §3 of the data model.
func (h *Header) DetectCoreType() (CoreType, bool) {
	switch {
	case h.Has("occurrenceID"):
		return CoreTypeOccurrence, true
	case h.Has("taxonID"):
		return CoreTypeTaxon, true
	default:
		return "", false
	}
}

// IDColumnFor returns the record-identifier column name for the given core
// type, in the header's own spelling.
func (h *Header) IDColumnFor(coreType CoreType) (string, bool) {
	marker := "occurrenceID"
	if coreType == CoreTypeTaxon {
		marker = "taxonID"
	}

	return h.ColumnName(marker)
}

// trimAndNormalize strips leading/trailing whitespace and folds a missing
// value to the empty string, per the Tuple normalization rule in §3.
func trimAndNormalize(v string) string {
	return strings.TrimSpace(v)
}
