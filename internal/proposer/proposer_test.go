package proposer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sanketsaagar/lightchain-vrf/internal/chaintypes"
	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
	"github.com/sanketsaagar/lightchain-vrf/internal/pow"
)

type recordingBroadcaster struct {
	blocks []chaintypes.Block
}

func (r *recordingBroadcaster) BroadcastBlock(ctx context.Context, block chaintypes.Block) error {
	r.blocks = append(r.blocks, block)
	return nil
}

func tx(fee uint64, nonce uint64) chaintypes.Transaction {
	return chaintypes.Transaction{Fee: fee, Amount: 10, Nonce: nonce}
}

func TestSelectTransactionsOrdersByFeeRate(t *testing.T) {
	a := New(&recordingBroadcaster{}, 10, 1<<20)
	selected := a.SelectTransactions([]chaintypes.Transaction{
		tx(1, 1),
		tx(50, 2),
		tx(10, 3),
	})
	require.Len(t, selected, 3)
	require.Equal(t, uint64(50), selected[0].Fee)
	require.Equal(t, uint64(10), selected[1].Fee)
	require.Equal(t, uint64(1), selected[2].Fee)
}

func TestSelectTransactionsRespectsMaxCount(t *testing.T) {
	a := New(&recordingBroadcaster{}, 2, 1<<20)
	selected := a.SelectTransactions([]chaintypes.Transaction{tx(1, 1), tx(2, 2), tx(3, 3)})
	require.Len(t, selected, 2)
}

func TestAssembleProducesVerifiableProofOfWork(t *testing.T) {
	broadcaster := &recordingBroadcaster{}
	a := New(broadcaster, 10, 1<<20)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	block, err := a.Assemble(ctx, AssembleInput{
		Height:           1,
		Round:            1,
		Transactions:     []chaintypes.Transaction{tx(5, 1)},
		DifficultyTarget: pow.TargetFromDifficulty(16),
	})
	require.NoError(t, err)
	require.True(t, pow.Verify(block.PoWPreimage(), block.Nonce, block.DifficultyTarget))

	require.NoError(t, a.Broadcast(ctx, block))
	require.Len(t, broadcaster.blocks, 1)
}

func TestValidateProposalAcceptsMatchingBlock(t *testing.T) {
	a := New(&recordingBroadcaster{}, 10, 1<<20)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var winner cryptoprim.PubKey
	winner[0] = 0x07
	in := AssembleInput{
		Height:           1,
		Round:            1,
		Proposer:         winner,
		AllAnnouncements: []chaintypes.VRFAnnouncement{{Round: 1}},
		RewardedNodes:    []cryptoprim.PubKey{winner},
		DifficultyTarget: pow.TargetFromDifficulty(1),
	}
	block, err := a.Assemble(ctx, in)
	require.NoError(t, err)
	require.NoError(t, a.ValidateProposal(block, in))
}

func TestValidateProposalRejectsProposerMismatch(t *testing.T) {
	a := New(&recordingBroadcaster{}, 10, 1<<20)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var winner, other cryptoprim.PubKey
	winner[0] = 0x07
	other[0] = 0x08
	in := AssembleInput{Proposer: winner, DifficultyTarget: pow.TargetFromDifficulty(1)}
	block, err := a.Assemble(ctx, in)
	require.NoError(t, err)

	in.Proposer = other
	require.Error(t, a.ValidateProposal(block, in))
}

func TestValidateProposalRejectsRewardedNodeCountMismatch(t *testing.T) {
	a := New(&recordingBroadcaster{}, 10, 1<<20)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var node cryptoprim.PubKey
	node[0] = 0x09
	in := AssembleInput{DifficultyTarget: pow.TargetFromDifficulty(1)}
	block, err := a.Assemble(ctx, in)
	require.NoError(t, err)

	in.RewardedNodes = []cryptoprim.PubKey{node}
	require.Error(t, a.ValidateProposal(block, in))
}

func TestValidateProposalRejectsUnsolvedPoW(t *testing.T) {
	a := New(&recordingBroadcaster{}, 10, 1<<20)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	in := AssembleInput{DifficultyTarget: pow.TargetFromDifficulty(1)}
	block, err := a.Assemble(ctx, in)
	require.NoError(t, err)

	block.Nonce++
	block.DifficultyTarget = pow.TargetFromDifficulty(1 << 40)
	require.Error(t, a.ValidateProposal(block, in))
}

func TestAssembleComputesMerkleRoot(t *testing.T) {
	a := New(&recordingBroadcaster{}, 10, 1<<20)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	txs := []chaintypes.Transaction{tx(5, 1), tx(6, 2)}
	block, err := a.Assemble(ctx, AssembleInput{
		Transactions:     txs,
		DifficultyTarget: pow.TargetFromDifficulty(1), // trivially solvable target
	})
	require.NoError(t, err)
	require.Equal(t, cryptoprim.MerkleRoot(chaintypes.MerkleLeaves(txs)), block.MerkleRoot)
}
