// Package planner builds the test plan: resolving Registry descriptors
// against a Dataset's header and overlaying job-supplied parameter
// overrides, per §4.C.
package planner

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/gbif-norway/bdq-agent/internal/model"
	"github.com/gbif-norway/bdq-agent/internal/registry"
)

// Build produces the test plan for dataset against reg, applying
// overrides to resolved parameters (start from descriptor defaults,
// overlay overrides, warn on anything unrecognized — the same shape as
// the teacher's env-override-over-defaults config loading).
//
// Fails with model.ErrNoApplicableTests if the resulting plan is empty.
func Build(reg *registry.Registry, dataset *model.Dataset, overrides map[string]string) ([]model.PlannedTest, []string, error) {
	applicable := reg.Applicable(dataset.Header)

	plan := make([]model.PlannedTest, 0, len(applicable))

	declared := declaredParameterNames(applicable)
	warnings := unknownOverrideWarnings(overrides, declared)

	for _, d := range applicable {
		pt, ok := resolve(dataset.Header, d)
		if !ok {
			continue
		}

		pt.Parameters = resolveParameters(d, overrides)

		plan = append(plan, pt)
	}

	sortByPlanOrder(plan)

	if len(plan) == 0 {
		return nil, warnings, fmt.Errorf("%w", model.ErrNoApplicableTests)
	}

	return plan, warnings, nil
}

// declaredParameterNames is the union of parameter names declared by any
// applicable descriptor — an override is "unknown" per §4.C step 2 only
// when it's foreign to the whole plan, not merely to one descriptor.
func declaredParameterNames(applicable []model.Descriptor) map[string]bool {
	declared := make(map[string]bool)

	for _, d := range applicable {
		for _, p := range d.Parameters {
			declared[p.Name] = true
		}
	}

	return declared
}

// unknownOverrideWarnings emits one warning per override name absent from
// declared, regardless of how many descriptors are in the plan.
func unknownOverrideWarnings(overrides map[string]string, declared map[string]bool) []string {
	warnings := make([]string, 0)

	for name := range overrides {
		if declared[name] {
			continue
		}

		msg := fmt.Sprintf("ignoring unknown parameter override %q", name)
		warnings = append(warnings, msg)
		slog.Warn("planner: unknown parameter override ignored", slog.String("parameter", name))
	}

	return warnings
}

// resolve resolves one descriptor's acted-upon and consulted columns
// against header, in the descriptor's declared order (acted-upon first,
// then consulted) so every Tuple has a stable shape (§4.C step 3). Returns
// ok=false if any required column fails to resolve, per §4.C step 1.
func resolve(header *model.Header, d model.Descriptor) (model.PlannedTest, bool) {
	columns := make([]string, 0, len(d.ActedUpon)+len(d.Consulted))

	for _, name := range append(append([]string{}, d.ActedUpon...), d.Consulted...) {
		col, ok := header.ColumnName(name)
		if !ok {
			return model.PlannedTest{}, false
		}

		columns = append(columns, col)
	}

	return model.PlannedTest{Descriptor: d, Columns: columns}, true
}

// resolveParameters starts from d's declared defaults, then overlays any
// job-supplied overrides that d itself declares (§4.C step 2). Overrides
// foreign to d but declared by some other applicable descriptor are simply
// not this descriptor's concern — unknownOverrideWarnings handles the
// plan-wide "unrecognized anywhere" case once, in Build.
func resolveParameters(d model.Descriptor, overrides map[string]string) map[string]string {
	params := make(map[string]string, len(d.Parameters))

	declared := make(map[string]bool, len(d.Parameters))
	for _, p := range d.Parameters {
		declared[p.Name] = true

		if p.HasDefault {
			params[p.Name] = p.Default
		}
	}

	for name, value := range overrides {
		if !declared[name] {
			continue
		}

		params[name] = value
	}

	return params
}

// sortByPlanOrder orders plan in the registry's natural order (which
// Registry.Applicable already preserves) grouped by
// Validation→Amendment→Issue→Measure, stable within each group (§3).
func sortByPlanOrder(plan []model.PlannedTest) {
	sort.SliceStable(plan, func(i, j int) bool {
		return plan[i].PlanOrder() < plan[j].PlanOrder()
	})
}
