package provider

import (
	"context"
	"testing"

	"github.com/gbif-norway/bdq-agent/internal/model"
)

func TestReferenceProviderCountryCodeValidation(t *testing.T) {
	p := NewReferenceProvider()

	tests := []struct {
		name string
		code string
		want model.ResultLabel
	}{
		{"valid code", "US", model.ResultCompliant},
		{"invalid code", "USA", model.ResultNotCompliant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := p.Invoke(context.Background(), "VALIDATION_COUNTRYCODE_STANDARD", map[string]string{"dwc:countryCode": tt.code})
			if err != nil {
				t.Fatalf("Invoke() unexpected error: %v", err)
			}

			if outcome.ResultLabel != tt.want {
				t.Errorf("ResultLabel = %v, want %v", outcome.ResultLabel, tt.want)
			}
		})
	}
}

func TestReferenceProviderEventDateAmendment(t *testing.T) {
	p := NewReferenceProvider()

	outcome, err := p.Invoke(context.Background(), "AMENDMENT_EVENTDATE_STANDARDIZED", map[string]string{"dwc:eventDate": "8 May 1880"})
	if err != nil {
		t.Fatalf("Invoke() unexpected error: %v", err)
	}

	if outcome.Status != model.StatusAmended {
		t.Fatalf("Status = %v, want AMENDED", outcome.Status)
	}

	if len(outcome.Amendments) != 1 || outcome.Amendments[0].Value != "1880-05-08" {
		t.Errorf("Amendments = %+v, want eventDate=1880-05-08", outcome.Amendments)
	}
}

func TestReferenceProviderUnknownHandle(t *testing.T) {
	p := NewReferenceProvider()

	_, err := p.Invoke(context.Background(), "NOT_A_REAL_TEST", nil)
	if err != ErrUnknownTestID {
		t.Errorf("Invoke() error = %v, want ErrUnknownTestID", err)
	}
}
