package model

import "github.com/gbif-norway/bdq-agent/internal/canonicalization"

// Tuple is the ordered sequence of string values a planned test consumes
// from a single record, used as a deduplication key. Values are trimmed of
// leading/trailing whitespace; a missing value normalizes to the empty
// string. Tuples compare for equality element-wise.
type Tuple struct {
	Values []string
}

// NewTuple builds a Tuple from raw record values, applying the
// whitespace-trim / missing-to-empty normalization rule (§3).
func NewTuple(values []string) Tuple {
	normalized := make([]string, len(values))
	for i, v := range values {
		normalized[i] = trimAndNormalize(v)
	}

	return Tuple{Values: normalized}
}

// TupleFor derives the Tuple a planned test would extract from record,
// resolved against header.
func TupleFor(header *Header, p PlannedTest, r Record) Tuple {
	values := make([]string, len(p.Columns))

	for i, col := range p.Columns {
		v, _ := r.Get(header, col)
		values[i] = v
	}

	return NewTuple(values)
}

// Equal reports whether t and other contain the same values in the same
// order.
func (t Tuple) Equal(other Tuple) bool {
	if len(t.Values) != len(other.Values) {
		return false
	}

	for i, v := range t.Values {
		if other.Values[i] != v {
			return false
		}
	}

	return true
}

// CacheKey derives the deterministic Tuple Cache key for this tuple under
// testID (a Descriptor's CacheID()), per §4.D: a stable, length-prefixed
// encoding of the test identity and the normalized tuple values, hashed
// with SHA-256 to keep the key a bounded-size string regardless of tuple
// width.
func (t Tuple) CacheKey(testID string) string {
	return canonicalization.TupleKey(testID, t.Values)
}
