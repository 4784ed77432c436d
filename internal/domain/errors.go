package domain

import "errors"

// NormalizationError reports that a required canonical field could not be
// derived from the raw payload. The attempt is stored as rejected and is never
// retried automatically.
type NormalizationError struct {
	Reason string
}

func (e *NormalizationError) Error() string {
	return e.Reason
}

var (
	// ErrSimulatedFailure is raised by the pipeline when failure injection is
	// requested for a call.
	ErrSimulatedFailure = errors.New("simulated storage failure")

	// ErrRaceRepair means the winning identity record vanished between losing
	// the registration race and the repair lookup. The stores are in an
	// inconsistent state and the caller must see the error.
	ErrRaceRepair = errors.New("identity owner not found after losing registration race")

	// ErrNotFound is returned by the stores for missing keys.
	ErrNotFound = errors.New("not found")
)
