package storage

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sanketsaagar/lightchain-vrf/internal/chaintypes"
	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
)

func sampleBlock(height uint64) chaintypes.Block {
	var proposer cryptoprim.PubKey
	proposer[0] = byte(height + 1)
	tx := chaintypes.Transaction{
		From:      proposer,
		Amount:    10,
		Timestamp: 1_700_000_000_000,
		Nonce:     height,
	}
	block := chaintypes.Block{
		Height:           height,
		Round:            1,
		Timestamp:        1_700_000_000_000,
		Proposer:         proposer,
		Transactions:     []chaintypes.Transaction{tx},
		DifficultyTarget: big.NewInt(1000),
		Signatures:       map[cryptoprim.PubKey]cryptoprim.Signature{},
	}
	block.MerkleRoot = cryptoprim.MerkleRoot(chaintypes.MerkleLeaves(block.Transactions))
	return block
}

func TestPutBlockRoundTripsByHeightAndLatest(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemKV())

	block := sampleBlock(1)
	require.NoError(t, store.PutBlock(ctx, block))

	byHeight, ok, err := store.GetBlockBytes(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	latest, ok, err := store.LatestBlockBytes(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, byHeight, latest)

	decoded, err := chaintypes.DeserializeBlock(latest)
	require.NoError(t, err)
	require.Equal(t, block.Height, decoded.Height)
	require.Equal(t, block.Hash(), decoded.Hash())
}

func TestGetBlockBytesMissingHeightReturnsNotFound(t *testing.T) {
	store := New(NewMemKV())
	_, ok, err := store.GetBlockBytes(context.Background(), 99)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutAccountStateRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemKV())

	var pk cryptoprim.PubKey
	pk[0] = 0x42
	acct := chaintypes.AccountState{
		PublicKey:   pk,
		Balance:     500,
		Nonce:       3,
		StakeAmount: 100,
		UpdatedAt:   1_700_000_000_000,
	}
	require.NoError(t, store.PutAccountState(ctx, acct))

	decoded, ok, err := store.GetAccountState(ctx, pk)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, acct, decoded)
}

func TestPutChainStateTypedRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemKV())

	var pk cryptoprim.PubKey
	pk[0] = 0x01
	state := chaintypes.ChainState{
		CurrentHeight:     7,
		CurrentRound:      2,
		CurrentEpoch:      1,
		TotalSupply:       1_000_000,
		ActiveSuperNodes:  []cryptoprim.PubKey{pk},
		CurrentDifficulty: big.NewInt(2048),
	}
	require.NoError(t, store.PutChainStateTyped(ctx, state))

	decoded, ok, err := store.GetChainStateTyped(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, state.CurrentHeight, decoded.CurrentHeight)
	require.Equal(t, state.ActiveSuperNodes, decoded.ActiveSuperNodes)
	require.Equal(t, 0, state.CurrentDifficulty.Cmp(decoded.CurrentDifficulty))
}

func TestGetChainStateTypedMissingReturnsNotFound(t *testing.T) {
	store := New(NewMemKV())
	_, ok, err := store.GetChainStateTyped(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutTransactionIndexesBySenderAndReceiver(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemKV())

	var from, to cryptoprim.PubKey
	from[0] = 0x01
	to[0] = 0x02
	tx := chaintypes.Transaction{From: from, To: to, Amount: 5, Timestamp: 1_700_000_000_000, Nonce: 1}
	require.NoError(t, store.PutTransaction(ctx, tx))

	h := tx.Hash()
	encoded, ok, err := store.kv.Get(ctx, txKey(h))
	require.NoError(t, err)
	require.True(t, ok)

	decoded, err := chaintypes.DeserializeTransaction(encoded)
	require.NoError(t, err)
	require.Equal(t, tx, decoded)
}

func TestScanTxPoolReturnsOnlyTxPoolNamespace(t *testing.T) {
	ctx := context.Background()
	kv := NewMemKV()
	store := New(kv)

	require.NoError(t, kv.Put(ctx, []byte(nsTxPool+"a"), []byte("pending-a")))
	require.NoError(t, kv.Put(ctx, []byte(nsTxPool+"b"), []byte("pending-b")))
	require.NoError(t, kv.Put(ctx, []byte(nsAccount+"unrelated"), []byte("ignored")))

	pool, err := store.ScanTxPool(ctx)
	require.NoError(t, err)
	require.Len(t, pool, 2)
	require.Equal(t, []byte("pending-a"), pool[nsTxPool+"a"])
	require.Equal(t, []byte("pending-b"), pool[nsTxPool+"b"])
}

func TestChainStoreLatestBlockEmptyReturnsNotFound(t *testing.T) {
	cs := NewChainStore(New(NewMemKV()))
	_, ok, err := cs.LatestBlock(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestChainStoreCommitBlockRoundTrips(t *testing.T) {
	ctx := context.Background()
	cs := NewChainStore(New(NewMemKV()))

	block := sampleBlock(1)
	require.NoError(t, cs.CommitBlock(ctx, block, 1, big.NewInt(2000)))

	latest, ok, err := cs.LatestBlock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, block.Height, latest.Height)
	require.Equal(t, block.Hash(), latest.Hash())
}

func TestChainStoreCommitBlockAdvancesAcrossHeights(t *testing.T) {
	ctx := context.Background()
	cs := NewChainStore(New(NewMemKV()))

	require.NoError(t, cs.CommitBlock(ctx, sampleBlock(1), 0, big.NewInt(1000)))
	require.NoError(t, cs.CommitBlock(ctx, sampleBlock(2), 0, big.NewInt(1000)))

	latest, ok, err := cs.LatestBlock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), latest.Height)
}

func TestChainStoreCommitBlockPersistsChainState(t *testing.T) {
	ctx := context.Background()
	cs := NewChainStore(New(NewMemKV()))

	require.NoError(t, cs.CommitBlock(ctx, sampleBlock(1), 3, big.NewInt(4096)))

	state, ok, err := cs.store.GetChainStateTyped(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), state.CurrentHeight)
	require.Equal(t, uint32(1), state.CurrentRound)
	require.Equal(t, uint64(3), state.CurrentEpoch)
	require.Equal(t, 0, state.CurrentDifficulty.Cmp(big.NewInt(4096)))
}

func TestChainStoreCommitBlockAppliesTransferEffects(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemKV())
	cs := NewChainStore(store)

	var from, to cryptoprim.PubKey
	from[0] = 0x01
	to[0] = 0x02
	require.NoError(t, store.PutAccountState(ctx, chaintypes.AccountState{PublicKey: from, Balance: 1000}))

	tx := chaintypes.Transaction{From: from, To: to, Amount: 100, Fee: 5, Timestamp: 1_700_000_000_000, Nonce: 1}
	block := chaintypes.Block{
		Height:       1,
		Round:        1,
		Timestamp:    1_700_000_000_000,
		Transactions: []chaintypes.Transaction{tx},
		Signatures:   map[cryptoprim.PubKey]cryptoprim.Signature{},
	}
	block.MerkleRoot = cryptoprim.MerkleRoot(chaintypes.MerkleLeaves(block.Transactions))
	require.NoError(t, cs.CommitBlock(ctx, block, 0, big.NewInt(1000)))

	senderAcct, ok, err := store.GetAccountState(ctx, from)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(895), senderAcct.Balance)
	require.Equal(t, uint64(1), senderAcct.Nonce)

	receiverAcct, ok, err := store.GetAccountState(ctx, to)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(100), receiverAcct.Balance)
}

func TestChainStoreCommitBlockRecordsSenderNonceForReplayLookup(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemKV())
	cs := NewChainStore(store)

	var from cryptoprim.PubKey
	from[0] = 0x01
	require.NoError(t, store.PutAccountState(ctx, chaintypes.AccountState{PublicKey: from, Balance: 1000}))

	tx := chaintypes.Transaction{From: from, Amount: 10, Fee: 1, Timestamp: 1_700_000_000_000, Nonce: 5}
	block := chaintypes.Block{Height: 1, Round: 1, Timestamp: 1_700_000_000_000, Transactions: []chaintypes.Transaction{tx}, Signatures: map[cryptoprim.PubKey]cryptoprim.Signature{}}
	block.MerkleRoot = cryptoprim.MerkleRoot(chaintypes.MerkleLeaves(block.Transactions))
	require.NoError(t, cs.CommitBlock(ctx, block, 0, big.NewInt(1000)))

	acct, ok, err := store.GetAccountState(ctx, from)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(5), acct.Nonce)
}
