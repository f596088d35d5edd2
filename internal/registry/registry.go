// Package registry holds the immutable test-descriptor table loaded at
// startup and exposes the read-only queries the Plan Builder and Result
// Projector use against it.
package registry

import "github.com/gbif-norway/bdq-agent/internal/model"

// Registry is the immutable, post-load test-descriptor table (§4.A). It is
// built once by Load and never mutated afterward, so every method is safe
// for concurrent use without locking — the same "read-only after
// construction" guarantee the teacher documents for its own domain
// structures.
type Registry struct {
	// byTestID indexes descriptors by TestID for lookup; the preferred
	// variant wins when two descriptors share a TestID.
	byTestID map[string]model.Descriptor
	// byGUID indexes the same preferred descriptors by GUID, when set.
	byGUID map[string]model.Descriptor
	// ordered preserves the registry's natural (first-seen) order for
	// List and applicability scans, a secondary index alongside the maps
	// in the same shape as the teacher's multi-index in-memory store.
	ordered []model.Descriptor
}

// New builds a Registry from a flat list of descriptors, resolving
// alias/label collisions by preferring the default-bearing variant (the
// one requiring fewer caller-supplied parameters), breaking remaining ties
// by first-seen order (§4.A).
func New(descriptors []model.Descriptor) *Registry {
	r := &Registry{
		byTestID: make(map[string]model.Descriptor, len(descriptors)),
		byGUID:   make(map[string]model.Descriptor, len(descriptors)),
		ordered:  make([]model.Descriptor, 0, len(descriptors)),
	}

	for _, d := range descriptors {
		r.insert(d)
	}

	return r
}

// insert adds d to the registry, preferring it over any existing
// descriptor sharing its TestID per the default-bearing / first-seen tie
// break.
func (r *Registry) insert(d model.Descriptor) {
	existing, seen := r.byTestID[d.TestID]
	if !seen {
		r.byTestID[d.TestID] = d
		r.ordered = append(r.ordered, d)

		if d.GUID != "" {
			r.byGUID[d.GUID] = d
		}

		return
	}

	if !preferOver(d, existing) {
		return
	}

	r.byTestID[d.TestID] = d

	if d.GUID != "" {
		r.byGUID[d.GUID] = d
	}

	for i, existingDesc := range r.ordered {
		if existingDesc.TestID == d.TestID {
			r.ordered[i] = d

			break
		}
	}
}

// preferOver reports whether candidate should replace incumbent as the
// registry's chosen variant for a shared alias (§4.A): prefer the
// descriptor requiring fewer required (no-default) parameters; on a tie,
// prefer the source-marked default variant (IsDefault); first-seen wins
// any remaining tie, so candidate never displaces an equally-qualified
// incumbent.
func preferOver(candidate, incumbent model.Descriptor) bool {
	candidateRequired := candidate.RequiredParameterCount()
	incumbentRequired := incumbent.RequiredParameterCount()

	if candidateRequired != incumbentRequired {
		return candidateRequired < incumbentRequired
	}

	return candidate.IsDefault && !incumbent.IsDefault
}

// List returns all descriptors in the registry's natural (first-seen,
// post-tie-break) order.
func (r *Registry) List() []model.Descriptor {
	out := make([]model.Descriptor, len(r.ordered))
	copy(out, r.ordered)

	return out
}

// Applicable returns the subsequence of descriptors whose acted-upon ∪
// consulted columns are all present in header, in registry natural order.
func (r *Registry) Applicable(header *model.Header) []model.Descriptor {
	out := make([]model.Descriptor, 0, len(r.ordered))

	for _, d := range r.ordered {
		if header.HasAll(d.ActedUpon) && header.HasAll(d.Consulted) {
			out = append(out, d)
		}
	}

	return out
}

// Lookup finds a descriptor by test-id or guid.
func (r *Registry) Lookup(testIDOrGUID string) (model.Descriptor, bool) {
	if d, ok := r.byTestID[testIDOrGUID]; ok {
		return d, true
	}

	d, ok := r.byGUID[testIDOrGUID]

	return d, ok
}

// Len reports the number of distinct descriptors in the registry.
func (r *Registry) Len() int {
	return len(r.ordered)
}
