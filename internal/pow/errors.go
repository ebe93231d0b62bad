package pow

import "errors"

// ErrTimeout is returned when mining does not find a solution before its
// context is cancelled or its deadline elapses (spec.md §4.4, §7).
var ErrTimeout = errors.New("pow: mining timed out")
