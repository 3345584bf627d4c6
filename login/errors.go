package login

import "errors"

var (
	// ErrUnknownLabel indicates a persisted state carries a label this package does not know.
	ErrUnknownLabel = errors.New("unknown state label")
	// ErrUnsupportedVersion indicates a persisted state is missing its version or has one this package cannot read.
	ErrUnsupportedVersion = errors.New("unsupported state version")
	// ErrMissingField indicates a state was constructed or decoded without a required field.
	ErrMissingField = errors.New("missing required field")
	// ErrAdvanceInProgress indicates Advance was called while a previous Advance had not completed.
	ErrAdvanceInProgress = errors.New("advance already in progress")
	// ErrNoTransition indicates a state's Execute returned without reporting a transition.
	ErrNoTransition = errors.New("execute returned without a transition")
	// ErrNoCertificate indicates a certificate could not be read from a Married state.
	ErrNoCertificate = errors.New("no usable certificate")
)
