// Package provider defines the Test Provider collaborator interface the
// Executor dispatches work to: the opaque library of actual BDQ test
// routines, treated as a uniform-invocation external collaborator (§6).
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/gbif-norway/bdq-agent/internal/model"
)

type (
	// Provider is the consumed Test Provider interface. Invoke must be
	// safe to call concurrently from multiple workers and must return
	// within the caller-supplied context's deadline or surface a
	// TransientError. args carries both resolved data-column values
	// (keyed by their namespaced Darwin Core name) and the test's
	// resolved parameters, as the provider's named-parameter form (§6).
	Provider interface {
		Invoke(ctx context.Context, handle model.ImplementationHandle, args map[string]string) (model.Outcome, error)
	}

	// TransientError wraps an error the Executor should retry (timeout,
	// provider-signaled EXTERNAL_PREREQUISITES_NOT_MET, or a generic
	// I/O/connection failure), distinguished from a permanent provider
	// error via errors.As rather than a magic status code, mirroring the
	// teacher's sentinel-error style throughout.
	TransientError struct {
		Err error
	}
)

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provider error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// ErrUnknownTestID indicates the provider was asked to invoke a handle it
// does not recognize — a permanent (non-retried) error per §4.E step 4.
var ErrUnknownTestID = errors.New("provider: unknown test id")

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var t *TransientError

	return errors.As(err, &t)
}
