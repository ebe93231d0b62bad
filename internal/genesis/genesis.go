// Package genesis assembles the chain's height-zero block and its initial
// account allocations (spec.md §3, §9 supplement: the original distillation
// left genesis construction implicit, but every node needs a concrete
// height-0 block to seed ChainStore.LatestBlock).
//
// Grounded on the teacher's pkg/genesis/l1_genesis.go GenesisBuilder
// (fluent Set*/Add* builder culminating in Build()), trimmed of its
// EVM-specific fields (ChainConfig, gas limit, EIP activation blocks,
// governance/economics parameters) down to the VRF+PoW hybrid's data
// model: genesis carries initial account balances and the starting
// super-node set, nothing else. The genesis block is never VRF-elected or
// PoW-mined; it is the one block every node constructs identically and
// locally rather than receiving over the network.
package genesis

import (
	"math/big"
	"sort"

	"github.com/sanketsaagar/lightchain-vrf/internal/chaintypes"
	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
)

// Allocation is a single account's genesis balance and starting stake.
type Allocation struct {
	PublicKey   cryptoprim.PubKey
	Balance     uint64
	StakeAmount uint64
}

// Builder assembles a genesis block and its account set.
type Builder struct {
	timestamp   int64
	difficulty  *big.Int
	allocations []Allocation
}

// NewBuilder starts a genesis builder stamped with timestamp (spec.md §3's
// Block.timestamp unit: milliseconds since the Unix epoch).
func NewBuilder(timestamp int64) *Builder {
	// Default target for a base difficulty of 2,500,000: (2^256-1)/2,500,000.
	maxTarget := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	return &Builder{
		timestamp:  timestamp,
		difficulty: new(big.Int).Div(maxTarget, big.NewInt(2_500_000)),
	}
}

// SetDifficulty overrides the genesis difficulty target, the target block 1
// is mined against; AdjustDifficulty first retargets from it when block 1
// commits (spec.md §4.4).
func (b *Builder) SetDifficulty(difficulty *big.Int) *Builder {
	b.difficulty = difficulty
	return b
}

// AddAllocation registers an account's genesis balance and stake. Accounts
// with a non-zero StakeAmount become the chain's initial super-node
// candidates once score.Input's avg-stake computation has something to
// average over.
func (b *Builder) AddAllocation(alloc Allocation) *Builder {
	b.allocations = append(b.allocations, alloc)
	return b
}

// Build produces the genesis block and the matching account states. The
// genesis block has no VRF output, no proof, no proposer, and a zero nonce:
// it is not produced through a consensus round, so those fields stay at
// their zero values (spec.md §8 treats height 0 as a fixed precondition,
// not a validated block).
func (b *Builder) Build() (chaintypes.Block, []chaintypes.AccountState) {
	accounts := make([]chaintypes.AccountState, len(b.allocations))
	superNodes := make([]cryptoprim.PubKey, 0, len(b.allocations))

	sorted := make([]Allocation, len(b.allocations))
	copy(sorted, b.allocations)
	sort.Slice(sorted, func(i, j int) bool {
		return lessPubKey(sorted[i].PublicKey, sorted[j].PublicKey)
	})

	for i, alloc := range sorted {
		accounts[i] = chaintypes.AccountState{
			PublicKey:   alloc.PublicKey,
			Balance:     alloc.Balance,
			StakeAmount: alloc.StakeAmount,
			UpdatedAt:   b.timestamp,
		}
		if alloc.StakeAmount > 0 {
			superNodes = append(superNodes, alloc.PublicKey)
		}
	}

	block := chaintypes.Block{
		Height:           0,
		Round:            0,
		Timestamp:        b.timestamp,
		RewardedNodes:    superNodes,
		DifficultyTarget: b.difficulty,
		Signatures:       map[cryptoprim.PubKey]cryptoprim.Signature{},
	}
	block.MerkleRoot = cryptoprim.MerkleRoot(nil)

	return block, accounts
}

// ChainState derives the starting ChainState view for a freshly built
// genesis block (spec.md §3).
func ChainState(block chaintypes.Block, totalSupply uint64) chaintypes.ChainState {
	return chaintypes.ChainState{
		CurrentHeight:     block.Height,
		CurrentRound:      block.Round,
		CurrentEpoch:      0,
		TotalSupply:       totalSupply,
		ActiveSuperNodes:  block.RewardedNodes,
		CurrentDifficulty: block.DifficultyTarget,
	}
}

func lessPubKey(a, b cryptoprim.PubKey) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
