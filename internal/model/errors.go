package model

import "errors"

// Fatal error kinds (§7). These are sentinel errors, checked with
// errors.Is, wrapped with context via fmt.Errorf("%w: ...") by the
// packages that raise them and surfaced to the caller as an
// engine.JobError — the same sentinel-error idiom the teacher uses
// throughout (ErrKeyNotFound, ErrInvalidTransition, ...).
var (
	// ErrNoAttachment indicates the job was given zero input bytes.
	ErrNoAttachment = errors.New("no dataset bytes provided")

	// ErrEmptyDataset indicates the input parsed to zero data rows.
	ErrEmptyDataset = errors.New("dataset has zero data rows")

	// ErrNoCoreColumn indicates neither occurrenceID nor taxonID is
	// present in the header.
	ErrNoCoreColumn = errors.New("dataset header contains neither occurrenceID nor taxonID")

	// ErrMalformedRow indicates a data row could not be aligned to the
	// header (ragged row). Policy: reject the job, never silently drop.
	ErrMalformedRow = errors.New("row cannot be aligned to header")

	// ErrRegistryInvalid indicates the registry source is missing,
	// malformed, or yields zero descriptors.
	ErrRegistryInvalid = errors.New("registry source is missing, malformed, or empty")

	// ErrNoApplicableTests indicates the plan built from Registry ∩
	// dataset columns is empty.
	ErrNoApplicableTests = errors.New("no applicable tests for this dataset")

	// ErrCancelled indicates the job was cancelled before completion.
	ErrCancelled = errors.New("job cancelled")

	// ErrJobTimeoutExceeded indicates the job's wall-clock budget expired.
	ErrJobTimeoutExceeded = errors.New("job timeout exceeded")

	// ErrInternalBug indicates an invariant violation detected by the
	// core itself (never a caller input problem).
	ErrInternalBug = errors.New("internal invariant violation")

	// ErrNotFound indicates a Registry.Lookup miss.
	ErrNotFound = errors.New("descriptor not found")
)
