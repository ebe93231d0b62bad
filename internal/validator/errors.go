package validator

import "errors"

// ErrMalformedInput names inputs too malformed to evaluate the five steps.
// Validate does not return it: it reports every failure as an Outcome,
// including a nil difficulty target (PoWFailure), and no step reports the
// MalformedBlock kind (spec.md §4.7, §7).
var ErrMalformedInput = errors.New("validator: malformed input")
