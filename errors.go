package fruition

import "errors"

// Non-fatal conditions reported per session, event, window or curve.
// Callers match them with errors.Is; the wrapping error carries the detail.
var (
	// ErrMissingCompanionData marks a session without its timestamps log.
	ErrMissingCompanionData = errors.New("missing companion timestamp data")

	// ErrInsufficientLookback marks an event too close to the start of its table.
	ErrInsufficientLookback = errors.New("insufficient lookback")

	// ErrIncompleteWindow marks a window that is clipped or has undefined values.
	ErrIncompleteWindow = errors.New("incomplete window")

	// ErrAlignmentUnderflow marks a curve that cannot be placed in the canonical frame.
	ErrAlignmentUnderflow = errors.New("alignment underflow")

	// ErrNoWindows is returned when a run produced no usable window at all.
	ErrNoWindows = errors.New("no valid windows")
)
