// Package proposer implements block assembly for the node that won a
// round's VRF lottery (spec.md §4.5, C6): selecting transactions,
// building the header, solving the PoW puzzle, and broadcasting the
// resulting block.
//
// Grounded on the teacher's pkg/mempool/mempool.go transaction-priority
// sorting (createParallelBatches' sort.Slice by Priority), generalized
// from gas-price priority onto the spec's fee-rate ordering, and on
// pkg/genesis/l1_genesis.go's header-field assembly.
package proposer

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/sanketsaagar/lightchain-vrf/internal/chaintypes"
	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
	"github.com/sanketsaagar/lightchain-vrf/internal/pow"
)

// txOverheadBytes is the fixed per-transaction size estimate feeRate divides
// a fee by; it does not vary with a transaction's encoded length
// (spec.md §4.5).
const txOverheadBytes = 192

// Broadcaster is the network collaborator proposer depends on to publish a
// finished block (spec.md §9).
type Broadcaster interface {
	BroadcastBlock(ctx context.Context, block chaintypes.Block) error
}

// Assembler builds and proposes blocks for rounds this node won.
type Assembler struct {
	broadcaster Broadcaster

	maxTxCount int
	maxBytes   int64
	powTimeout func() context.Context
}

// New constructs an Assembler. maxTxCount and maxBytes are
// max_transactions_per_block and max_block_size_bytes (spec.md §6).
func New(broadcaster Broadcaster, maxTxCount int, maxBytes int64) *Assembler {
	return &Assembler{
		broadcaster: broadcaster,
		maxTxCount:  maxTxCount,
		maxBytes:    maxBytes,
	}
}

// feeRate orders transactions by fee per estimated byte, descending, so
// proposers pack the highest-value transactions first within the block's
// size and count caps (spec.md §4.5).
func feeRate(tx chaintypes.Transaction) float64 {
	return float64(tx.Fee) / float64(txOverheadBytes)
}

// SelectTransactions orders candidates by descending fee rate and takes as
// many as fit under maxTxCount and maxBytes (spec.md §4.5).
func (a *Assembler) SelectTransactions(candidates []chaintypes.Transaction) []chaintypes.Transaction {
	sorted := make([]chaintypes.Transaction, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return feeRate(sorted[i]) > feeRate(sorted[j])
	})

	selected := make([]chaintypes.Transaction, 0, len(sorted))
	var usedBytes int64
	for _, tx := range sorted {
		if len(selected) >= a.maxTxCount {
			break
		}
		size := int64(len(tx.SerializeSigned()))
		if usedBytes+size > a.maxBytes {
			continue
		}
		selected = append(selected, tx)
		usedBytes += size
	}
	return selected
}

// AssembleInput bundles the round context needed to build a block
// (spec.md §4.5).
type AssembleInput struct {
	Height           uint64
	Round            uint32
	PreviousHash     cryptoprim.Hash
	Proposer         cryptoprim.PubKey
	VRFOutput        cryptoprim.Hash
	VRFProof         cryptoprim.Signature
	AllAnnouncements []chaintypes.VRFAnnouncement
	RewardedNodes    []cryptoprim.PubKey
	Transactions     []chaintypes.Transaction
	DifficultyTarget *big.Int
}

// Assemble builds a fully mined, unsigned-by-validators block: it computes
// the Merkle root, solves the PoW puzzle over the header, and sets the
// winning nonce (spec.md §4.5). ctx bounds the PoW search; the consensus
// driver bounds it by block_production_timeout_ms, and pow_timeout_seconds
// is not applied to it.
func (a *Assembler) Assemble(ctx context.Context, in AssembleInput) (chaintypes.Block, error) {
	block := chaintypes.Block{
		Height:              in.Height,
		Round:               in.Round,
		Timestamp:           chaintypes.NowMillis(),
		PreviousHash:        in.PreviousHash,
		Proposer:            in.Proposer,
		VRFOutput:           in.VRFOutput,
		VRFProof:            in.VRFProof,
		AllVRFAnnouncements: in.AllAnnouncements,
		RewardedNodes:       in.RewardedNodes,
		Transactions:        in.Transactions,
		DifficultyTarget:    in.DifficultyTarget,
		Signatures:          make(map[cryptoprim.PubKey]cryptoprim.Signature),
	}
	block.MerkleRoot = cryptoprim.MerkleRoot(chaintypes.MerkleLeaves(block.Transactions))

	nonce, _, err := pow.Mine(ctx, block.PoWPreimage(), in.DifficultyTarget)
	if err != nil {
		return chaintypes.Block{}, err
	}
	block.Nonce = nonce

	return block, nil
}

// Broadcast publishes an assembled block to the network (spec.md §4.5).
func (a *Assembler) Broadcast(ctx context.Context, block chaintypes.Block) error {
	return a.broadcaster.BroadcastBlock(ctx, block)
}

// ValidateProposal is the proposer's own sanity self-check before
// broadcast (spec.md §4.5's fourth operation): the assembled block must
// name the round's actual VRF winner as proposer, carry as many
// announcements as the winner was chosen from and as many rewarded nodes
// as were computed (only the counts are compared, not the entries), and
// its mined nonce must still satisfy its own difficulty target. A proposer that fails this check has built a
// block it should not put its name behind; it withholds the broadcast
// rather than let a malformed candidate reach the network.
func (a *Assembler) ValidateProposal(block chaintypes.Block, in AssembleInput) error {
	if block.Proposer != in.Proposer {
		return fmt.Errorf("proposer: proposal self-check: proposer %x does not match round winner %x", block.Proposer, in.Proposer)
	}
	if len(block.AllVRFAnnouncements) != len(in.AllAnnouncements) {
		return fmt.Errorf("proposer: proposal self-check: vrf announcement count %d does not match collected %d", len(block.AllVRFAnnouncements), len(in.AllAnnouncements))
	}
	if len(block.RewardedNodes) != len(in.RewardedNodes) {
		return fmt.Errorf("proposer: proposal self-check: rewarded node count %d does not match computed %d", len(block.RewardedNodes), len(in.RewardedNodes))
	}
	if !pow.Verify(block.PoWPreimage(), block.Nonce, block.DifficultyTarget) {
		return fmt.Errorf("proposer: proposal self-check: mined nonce %d does not satisfy difficulty target", block.Nonce)
	}
	return nil
}
