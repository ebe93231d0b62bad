package consensus

import (
	"errors"
	"fmt"
)

// ErrRoundTimedOut is returned from the WAIT phase when no matching block
// candidate arrives before block_production_timeout_ms elapses
// (spec.md §4.6, §7).
var ErrRoundTimedOut = errors.New("consensus: round timed out waiting for a candidate block")

// ErrHeightMismatch is returned when a candidate's height does not equal
// the chain tip's height plus one (spec.md §7's explicit redesign: unlike
// the source's updateChainHeight, which advanced by one regardless of the
// committed block's height, this chain treats any mismatch as a distinct,
// reported failure rather than silently resyncing).
var ErrHeightMismatch = errors.New("consensus: candidate height does not follow the chain tip")

// ValidationFailedError wraps a rejected block's validator outcome
// (spec.md §4.7, §7): the driver reports it and advances the round rather
// than retrying the same (height, round).
type ValidationFailedError struct {
	Kind   string
	Detail string
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("consensus: block rejected: %s: %s", e.Kind, e.Detail)
}
