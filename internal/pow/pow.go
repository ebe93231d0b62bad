// Package pow implements the lightweight proof-of-work puzzle a block
// proposer must solve before broadcasting a block (spec.md §4.4, C5): find a
// nonce such that SHA-256(header-without-nonce || nonce) falls under a
// difficulty target, retargeted after every committed block from the time
// elapsed since its predecessor.
//
// Grounded on equa-blockchain-core's consensus/equa/pow.go: a worker-pool
// miner racing for a nonce under a big.Int target, plus its AdjustDifficulty
// clamped-adjustment formula. Reworked onto golang.org/x/sync/errgroup for
// the worker pool in place of the teacher's hand-rolled channel/stop-chan
// workers, and onto SHA-256 (this module's only hash primitive, C1) instead
// of Keccak256.
package pow

import (
	"context"
	"encoding/binary"
	"math/big"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
)

// maxTarget is 2^256-1, the largest valid difficulty target and the ceiling
// every difficulty target is derived from.
var maxTarget = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// TargetFromDifficulty converts an integer difficulty into the 256-bit
// target a solution hash must fall under: target = maxTarget / difficulty
// (spec.md §4.4). A non-positive difficulty yields the maximum target,
// accepting any hash, so callers must reject a non-positive configured
// difficulty before it reaches here.
func TargetFromDifficulty(difficulty int64) *big.Int {
	if difficulty <= 0 {
		return new(big.Int).Set(maxTarget)
	}
	return new(big.Int).Div(maxTarget, big.NewInt(difficulty))
}

// DifficultyFromTarget inverts TargetFromDifficulty: difficulty =
// maxTarget/target, the integer difficulty AdjustDifficulty retargets from
// a block's persisted difficulty_target (spec.md §4.4). A nil or
// non-positive target yields a difficulty of 1, the loosest non-degenerate
// value.
func DifficultyFromTarget(target *big.Int) int64 {
	if target == nil || target.Sign() <= 0 {
		return 1
	}
	difficulty := new(big.Int).Div(maxTarget, target)
	if !difficulty.IsInt64() {
		return 1
	}
	if d := difficulty.Int64(); d > 0 {
		return d
	}
	return 1
}

// solution is an internal message passed from a worker back to Mine.
type solution struct {
	nonce uint64
	hash  cryptoprim.Hash
}

// Mine searches for a nonce such that SHA-256(headerBytes || be64(nonce))
// is numerically at or below target, using a bounded pool of workers that
// partition the nonce space by stride (spec.md §4.4). It returns
// ErrTimeout if ctx is cancelled or its deadline elapses before a solution
// is found.
func Mine(ctx context.Context, headerBytes []byte, target *big.Int) (nonce uint64, hash cryptoprim.Hash, err error) {
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}

	mineCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan solution, workers)
	g, gctx := errgroup.WithContext(mineCtx)

	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			mineWorker(gctx, headerBytes, target, uint64(w), uint64(workers), results)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(results)
	}()

	select {
	case sol, ok := <-results:
		if !ok {
			return 0, cryptoprim.Hash{}, ErrTimeout
		}
		cancel()
		return sol.nonce, sol.hash, nil
	case <-mineCtx.Done():
		return 0, cryptoprim.Hash{}, ErrTimeout
	}
}

func mineWorker(ctx context.Context, headerBytes []byte, target *big.Int, start, stride uint64, results chan<- solution) {
	nonce := start
	buf := make([]byte, len(headerBytes)+8)
	copy(buf, headerBytes)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		binary.BigEndian.PutUint64(buf[len(headerBytes):], nonce)
		hash := cryptoprim.SHA256(buf)

		if meetsTarget(hash, target) {
			select {
			case results <- solution{nonce: nonce, hash: hash}:
			case <-ctx.Done():
			}
			return
		}

		nonce += stride
	}
}

// Verify reports whether nonce solves the puzzle for headerBytes under
// target (spec.md §4.4, §4.6 step 4).
func Verify(headerBytes []byte, nonce uint64, target *big.Int) bool {
	buf := make([]byte, len(headerBytes)+8)
	copy(buf, headerBytes)
	binary.BigEndian.PutUint64(buf[len(headerBytes):], nonce)
	hash := cryptoprim.SHA256(buf)
	return meetsTarget(hash, target)
}

func meetsTarget(hash cryptoprim.Hash, target *big.Int) bool {
	hashInt := new(big.Int).SetBytes(hash[:])
	return hashInt.Cmp(target) <= 0
}

// AdjustDifficulty retargets difficulty from the ratio of target to actual
// block time, clamped to [base/2, base*10] (spec.md §4.4):
//
//	new = prev * adjustment * penalty
//
// adjustment is targetBlockTime/actualBlockTime (blocks arriving too slowly
// lowers difficulty, too quickly raises it); penalty is an additional
// multiplier callers apply for missed rounds or proposer misbehavior, 1.0
// when none applies.
func AdjustDifficulty(prev, base int64, actualBlockTimeSeconds, targetBlockTimeSeconds, penalty float64) int64 {
	if actualBlockTimeSeconds <= 0 {
		actualBlockTimeSeconds = targetBlockTimeSeconds
	}
	adjustment := targetBlockTimeSeconds / actualBlockTimeSeconds
	next := float64(prev) * adjustment * penalty

	min := float64(base) / 2
	max := float64(base) * 10
	if next < min {
		next = min
	}
	if next > max {
		next = max
	}
	return int64(next)
}
