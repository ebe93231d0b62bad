// Package score implements the proposer-weight calculator (spec.md §4.2, C3):
// a deterministic score derived from a node's VRF output, stake, tenure, and
// recent uptime, used to rank VRF announcements and pick a block proposer.
//
// Grounded on the teacher's pkg/consensus/l1_consensus.go selectProposer
// (stake/performance weighted selection, genesis validator performance
// defaults) and ValidatorSet.SortByPerformance, generalized from the
// teacher's randomized weighted draw into the spec's fully deterministic
// score formula.
package score

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/sanketsaagar/lightchain-vrf/internal/chaintypes"
	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
)

// Input bundles the per-node values the score formula needs (spec.md §4.2).
type Input struct {
	VRFOutput   cryptoprim.Hash
	Stake       uint64
	AvgStake    float64
	TenureDays  float64
	UptimeRatio float64
}

// baseFromVRF maps the first 8 bytes of the VRF output, read as a
// big-endian u64, onto [0, 1) (spec.md §4.2).
func baseFromVRF(output cryptoprim.Hash) float64 {
	v := binary.BigEndian.Uint64(output[:8])
	return float64(v) / math.MaxUint64
}

// stakeWeight is min(1, stake/avg_stake) (spec.md §4.2). An avg_stake of
// zero (no staked nodes yet) yields a zero weight rather than a division
// by zero.
func stakeWeight(stake uint64, avgStake float64) float64 {
	if avgStake <= 0 {
		return 0
	}
	w := float64(stake) / avgStake
	if w > 1 {
		return 1
	}
	return w
}

// decay is max(0.5, 1 - 0.0025*days): a slow tenure-based falloff that
// floors at half weight (spec.md §4.2).
func decay(tenureDays float64) float64 {
	d := 1 - 0.0025*tenureDays
	if d < 0.5 {
		return 0.5
	}
	return d
}

// perf buckets recent uptime into the four tiers spec.md §4.2 defines.
func perf(uptimeRatio float64) float64 {
	switch {
	case uptimeRatio >= 0.99:
		return 1.0
	case uptimeRatio >= 0.95:
		return 0.95
	case uptimeRatio >= 0.90:
		return 0.85
	default:
		return 0.70
	}
}

// Calc computes score = base(vrf_output) * stake_weight * decay * perf,
// clamped to [0, 1] (spec.md §4.2).
func Calc(in Input) float64 {
	s := baseFromVRF(in.VRFOutput) * stakeWeight(in.Stake, in.AvgStake) * decay(in.TenureDays) * perf(in.UptimeRatio)
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Ranked pairs an announcement with its computed score for sorting and
// selection.
type Ranked struct {
	Announcement chaintypes.VRFAnnouncement
	Score        float64
}

// SortByScore orders announcements by descending score, breaking ties by
// ascending (lexicographically smallest) VRF output so that selection is
// fully deterministic across nodes observing the same announcement set
// (spec.md §4.2).
func SortByScore(ranked []Ranked) {
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return compareHash(ranked[i].Announcement.VRFOutput, ranked[j].Announcement.VRFOutput) < 0
	})
}

func compareHash(a, b cryptoprim.Hash) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// SelectProposer returns the highest-ranked announcement once ranked has
// been sorted by SortByScore. Returns false if ranked is empty
// (spec.md §8: an empty VRF set can never select a proposer).
func SelectProposer(ranked []Ranked) (Ranked, bool) {
	if len(ranked) == 0 {
		return Ranked{}, false
	}
	return ranked[0], true
}

// SelectTopX returns the first k entries of a score-sorted slice, capped at
// len(ranked) when fewer than k announcements are available (spec.md §4.2).
func SelectTopX(ranked []Ranked, k int) []Ranked {
	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]Ranked, k)
	copy(out, ranked[:k])
	return out
}
