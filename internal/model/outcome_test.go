package model

import "testing"

func TestOutcomePasses(t *testing.T) {
	tests := []struct {
		name     string
		outcome  Outcome
		testType TestType
		want     bool
	}{
		{
			name:     "validation compliant passes",
			outcome:  Outcome{Status: StatusRunHasResult, ResultLabel: ResultCompliant},
			testType: TestTypeValidation,
			want:     true,
		},
		{
			name:     "validation not compliant does not pass",
			outcome:  Outcome{Status: StatusRunHasResult, ResultLabel: ResultNotCompliant},
			testType: TestTypeValidation,
			want:     false,
		},
		{
			name:     "amendment not amended passes",
			outcome:  Outcome{Status: StatusNotAmended},
			testType: TestTypeAmendment,
			want:     true,
		},
		{
			name:     "amendment amended does not pass",
			outcome:  Outcome{Status: StatusAmended, Amendments: []AmendmentPair{{Column: "dwc:eventDate", Value: "1880-05-08"}}},
			testType: TestTypeAmendment,
			want:     false,
		},
		{
			name:     "issue not-issue passes",
			outcome:  Outcome{Status: StatusRunHasResult, ResultLabel: ResultNotIssue},
			testType: TestTypeIssue,
			want:     true,
		},
		{
			name:     "measure never passes (always recorded)",
			outcome:  Outcome{Status: StatusRunHasResult},
			testType: TestTypeMeasure,
			want:     false,
		},
		{
			name:     "prerequisite-not-met never passes regardless of type",
			outcome:  Outcome{Status: StatusInternalPrereqNotMet},
			testType: TestTypeValidation,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.Passes(tt.testType); got != tt.want {
				t.Errorf("Passes(%v) = %v, want %v", tt.testType, got, tt.want)
			}
		})
	}
}

func TestOutcomeRenderResult(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    string
	}{
		{
			name:    "validation result renders pass label",
			outcome: Outcome{Status: StatusRunHasResult, ResultLabel: ResultNotCompliant},
			want:    "NOT_COMPLIANT",
		},
		{
			name: "amendment result renders sorted pipe-joined pairs",
			outcome: Outcome{
				Status: StatusAmended,
				Amendments: []AmendmentPair{
					{Column: "dwc:minimumDepthInMeters", Value: "3.048"},
					{Column: "dwc:maximumDepthInMeters", Value: "3.048"},
				},
			},
			want: "dwc:maximumDepthInMeters=3.048|dwc:minimumDepthInMeters=3.048",
		},
		{
			name:    "prerequisite-not-met renders empty",
			outcome: Outcome{Status: StatusExternalPrereqNotMet},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.RenderResult(); got != tt.want {
				t.Errorf("RenderResult() = %q, want %q", got, tt.want)
			}
		})
	}
}
