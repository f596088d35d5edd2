package model

type (
	// Record is an ordered mapping from column name to string value for a
	// single row of the dataset. Values are aligned positionally with the
	// owning Dataset's Header; RowIndex is the record's immutable 0-based
	// position in the original input, preserved end-to-end.
	Record struct {
		RowIndex int
		Values   []string
	}

	// CoreType identifies whether a Dataset is keyed at the occurrence
	// level or the taxon level.
	CoreType string

	// Dataset is an ordered sequence of Records plus the metadata detected
	// by the Reader: the deduplicated header, the detected delimiter, the
	// detected core type, and the record-identifier column.
	//
	// A Dataset is read-only once the Reader has finished producing it —
	// safely shared across the Executor's workers without locking.
	Dataset struct {
		Header    *Header
		Records   []Record
		Delimiter rune
		CoreType  CoreType
		IDColumn  string
	}
)

const (
	// CoreTypeOccurrence marks a dataset keyed at the occurrence level
	// (one biological observation per row).
	CoreTypeOccurrence CoreType = "occurrence"

	// CoreTypeTaxon marks a dataset keyed at the taxon level (one taxon
	// concept per row).
	CoreTypeTaxon CoreType = "taxon"
)

// Get returns the value of column name for this record, resolved against
// header. Returns ("", false) if name does not resolve.
func (r Record) Get(header *Header, name string) (string, bool) {
	idx, ok := header.Resolve(name)
	if !ok || idx >= len(r.Values) {
		return "", false
	}

	return r.Values[idx], true
}

// Identifier returns the record's value at the dataset's record-identifier
// column.
func (d *Dataset) Identifier(r Record) string {
	idx, ok := d.Header.Resolve(d.IDColumn)
	if !ok || idx >= len(r.Values) {
		return ""
	}

	return r.Values[idx]
}

// Stats summarizes ambient properties of a Dataset gathered in the same
// streaming pass the Reader uses to build it, so the digest's duplicate-ID
// warning (§9, Open Question) never requires a second scan over the data.
type Stats struct {
	RowCount          int
	DuplicateIDCount  int
	DuplicateIDValues []string
}
