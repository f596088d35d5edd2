package provider

import (
	"context"

	"github.com/gbif-norway/bdq-agent/internal/model"
)

// ReferenceProvider is a small in-memory stand-in for the real BDQ test
// library (out of scope, per spec's Non-goals), used by tests and the CLI
// demo. It implements two illustrative tests by handle name:
// "VALIDATION_COUNTRYCODE_STANDARD" (checks that the country code is
// exactly two characters long; it is not checked against the ISO list)
// and "AMENDMENT_EVENTDATE_STANDARDIZED" (a toy date normalizer), and
// returns ErrUnknownTestID for any other handle, the same minimal
// in-memory-stand-in-for-an-external-collaborator idiom as the teacher's
// MockAPIKeyStore.
type ReferenceProvider struct {
	// Handlers allows callers (notably tests) to register or override
	// handle behavior without subclassing.
	Handlers map[string]func(args map[string]string) (model.Outcome, error)
}

// NewReferenceProvider builds a ReferenceProvider with its two built-in
// demo handlers registered.
func NewReferenceProvider() *ReferenceProvider {
	p := &ReferenceProvider{Handlers: make(map[string]func(args map[string]string) (model.Outcome, error))}

	p.Handlers["VALIDATION_COUNTRYCODE_STANDARD"] = validateCountryCode
	p.Handlers["AMENDMENT_EVENTDATE_STANDARDIZED"] = amendEventDate

	return p
}

// Invoke implements Provider. handle is expected to be the string name
// registered in Handlers (the "implementation_handle" column value loaded
// by the registry).
func (p *ReferenceProvider) Invoke(ctx context.Context, handle model.ImplementationHandle, args map[string]string) (model.Outcome, error) {
	select {
	case <-ctx.Done():
		return model.Outcome{}, ctx.Err()
	default:
	}

	name, _ := handle.(string)

	fn, ok := p.Handlers[name]
	if !ok {
		return model.Outcome{}, ErrUnknownTestID
	}

	return fn(args)
}

func validateCountryCode(args map[string]string) (model.Outcome, error) {
	code := args["dwc:countryCode"]

	if len(code) != 2 {
		return model.Outcome{
			Status:      model.StatusRunHasResult,
			ResultLabel: model.ResultNotCompliant,
			Comment:     "country code must be exactly two characters",
		}, nil
	}

	return model.Outcome{
		Status:      model.StatusRunHasResult,
		ResultLabel: model.ResultCompliant,
		Comment:     "country code is well-formed",
	}, nil
}

// knownEventDates is a tiny fixed lookup standing in for a real date
// parser, sufficient to demonstrate the Amendment flow end to end.
var knownEventDates = map[string]string{
	"8 May 1880": "1880-05-08",
}

func amendEventDate(args map[string]string) (model.Outcome, error) {
	raw := args["dwc:eventDate"]

	standardized, ok := knownEventDates[raw]
	if !ok {
		return model.Outcome{
			Status:  model.StatusNotAmended,
			Comment: "event date already standardized or unrecognized",
		}, nil
	}

	return model.Outcome{
		Status:     model.StatusAmended,
		Amendments: []model.AmendmentPair{{Column: "dwc:eventDate", Value: standardized}},
		Comment:    "normalized to ISO 8601",
	}, nil
}
