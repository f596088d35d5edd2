package model

type (
	// TestType is the tagged variant distinguishing the four BDQ test
	// kinds. Behaviour that depends on it — pass semantics, amended-dataset
	// application, digest aggregation — is expressed as a switch on the
	// tag (see Outcome.Passes and the projector package), not through
	// subtype dispatch: each variant's semantics is small and fully
	// captured by the data model, so a type hierarchy would only add
	// indirection.
	TestType string

	// Parameter is one named scalar parameter a test descriptor declares,
	// with an optional default value.
	Parameter struct {
		Name       string
		Default    string
		HasDefault bool
	}

	// ImplementationHandle is the opaque pointer a Registry entry carries
	// into the Test Provider. The core never inspects its contents; it is
	// round-tripped from Registry to Executor to Provider unchanged.
	ImplementationHandle interface{}

	// Descriptor is an immutable test descriptor as loaded from the
	// Registry source, keyed by TestID.
	Descriptor struct {
		TestID                  string
		TestType                TestType
		ActedUpon               []string
		Consulted               []string
		Parameters              []Parameter
		InformationElementClass string
		GUID                    string
		Handle                  ImplementationHandle

		// IsDefault marks the variant of an aliased test-id/label that the
		// Registry should prefer when two descriptors share an alias: the
		// one accepting fewer required caller-supplied parameters (§4.A).
		IsDefault bool
	}

	// PlannedTest is a Descriptor resolved against one Dataset's header:
	// its acted-upon and consulted columns resolved to actual header
	// column names (acted-upon first, then consulted, preserving the
	// descriptor's declared order so every Tuple has a stable shape), and
	// its parameters resolved from defaults overlaid with job overrides.
	PlannedTest struct {
		Descriptor Descriptor
		Columns    []string
		Parameters map[string]string
	}
)

const (
	// TestTypeValidation checks a record against a rule and reports
	// compliance; never mutates data.
	TestTypeValidation TestType = "Validation"

	// TestTypeAmendment proposes corrected values for one or more columns.
	TestTypeAmendment TestType = "Amendment"

	// TestTypeMeasure computes a derived metric; always recorded.
	TestTypeMeasure TestType = "Measure"

	// TestTypeIssue flags a potential data-quality concern without
	// amending anything.
	TestTypeIssue TestType = "Issue"
)

// IsValid reports whether t is one of the four recognized test types.
func (t TestType) IsValid() bool {
	switch t {
	case TestTypeValidation, TestTypeAmendment, TestTypeMeasure, TestTypeIssue:
		return true
	default:
		return false
	}
}

// planOrder maps a TestType to its position in plan-order: Validations
// before Amendments before Issues before Measures, per §3.
func (t TestType) planOrder() int {
	switch t {
	case TestTypeValidation:
		return 0
	case TestTypeAmendment:
		return 1
	case TestTypeIssue:
		return 2
	case TestTypeMeasure:
		return 3
	default:
		return 4
	}
}

// PlanOrder returns the plan-order position of this planned test's type,
// for use when sorting a test plan or a work queue.
func (p PlannedTest) PlanOrder() int {
	return p.Descriptor.TestType.planOrder()
}

// CacheID returns the identity a Descriptor is keyed by in the Tuple Cache:
// its guid when present (an opaque stable identifier that survives
// aliasing), falling back to its TestID otherwise.
func (d Descriptor) CacheID() string {
	if d.GUID != "" {
		return d.GUID
	}

	return d.TestID
}

// RequiredParameterCount returns the number of parameters this descriptor
// declares with no default, i.e. the caller-supplied parameters it
// requires. Used by the Registry to prefer the "default-bearing" variant
// among aliased descriptors (§4.A): the variant requiring fewer of these.
func (d Descriptor) RequiredParameterCount() int {
	count := 0

	for _, p := range d.Parameters {
		if !p.HasDefault {
			count++
		}
	}

	return count
}
