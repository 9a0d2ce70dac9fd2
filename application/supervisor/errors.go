package supervisor

import "errors"

// Handler-error family (spec §7 kind 4). These are sentinel values, so
// callers can compare them with errors.Is instead of string-matching
// messages; the dispatcher itself only forwards their text.
var (
	// ErrNotExecuted is returned by GetClash when no StartClash has
	// succeeded since the last reset.
	ErrNotExecuted = errors.New("clash not executed")

	// ErrRetryExceeded is returned by GetClash once the restart budget
	// has been fully consumed.
	ErrRetryExceeded = errors.New("clash terminated, retry count exceeded")
)
