package vrfcollect

import "errors"

// Errors a collection round can return (spec.md §4.3, §7).
var (
	// ErrInsufficientVRFs is returned when fewer than quorum distinct valid
	// announcements were collected by the deadline.
	ErrInsufficientVRFs = errors.New("vrfcollect: insufficient valid VRF announcements")
	// ErrRoundAborted is returned when the round's context was cancelled
	// before the collection deadline.
	ErrRoundAborted = errors.New("vrfcollect: round aborted")
)
