package chaintypes

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
)

func sampleTx(nonce uint64) Transaction {
	return Transaction{
		Amount:    100,
		Fee:       1,
		Timestamp: 1_700_000_000_000,
		Nonce:     nonce,
		Type:      TxTransfer,
	}
}

func TestTransactionHashExcludesSignature(t *testing.T) {
	tx := sampleTx(1)
	before := tx.Hash()

	tx.Signature = cryptoprim.Signature{0xAA}
	after := tx.Hash()

	require.Equal(t, before, after)
}

func TestTransactionHashChangesWithFields(t *testing.T) {
	a := sampleTx(1)
	b := sampleTx(2)
	require.NotEqual(t, a.Hash(), b.Hash())
}

func TestBlockHashExcludesSignatures(t *testing.T) {
	block := Block{
		Height:           1,
		Round:            1,
		Timestamp:        1_700_000_000_000,
		Transactions:     []Transaction{sampleTx(1)},
		DifficultyTarget: big.NewInt(1_000_000),
		Signatures:       map[cryptoprim.PubKey]cryptoprim.Signature{},
	}
	block.MerkleRoot = cryptoprim.MerkleRoot(MerkleLeaves(block.Transactions))

	before := block.Hash()

	var pk cryptoprim.PubKey
	pk[0] = 0x01
	block.Signatures[pk] = cryptoprim.Signature{0xBB}
	after := block.Hash()

	require.Equal(t, before, after)
}

func TestBlockHashChangesWithNonce(t *testing.T) {
	block := Block{
		DifficultyTarget: big.NewInt(1_000_000),
		Signatures:       map[cryptoprim.PubKey]cryptoprim.Signature{},
	}
	h1 := block.Hash()
	block.Nonce = 42
	h2 := block.Hash()
	require.NotEqual(t, h1, h2)
}

func TestSerializeFullDeterministicAcrossSignatureOrder(t *testing.T) {
	var pk1, pk2 cryptoprim.PubKey
	pk1[0] = 0x01
	pk2[0] = 0x02

	block := Block{
		DifficultyTarget: big.NewInt(1),
		Signatures: map[cryptoprim.PubKey]cryptoprim.Signature{
			pk2: {0x02},
			pk1: {0x01},
		},
	}

	// Map iteration order is randomized; SerializeFull must still be stable
	// because it sorts signers by public key before encoding.
	first := block.SerializeFull()
	second := block.SerializeFull()
	require.Equal(t, first, second)
}

func TestMerkleLeavesMatchTransactionHashes(t *testing.T) {
	txs := []Transaction{sampleTx(1), sampleTx(2)}
	leaves := MerkleLeaves(txs)
	require.Equal(t, txs[0].Hash(), leaves[0])
	require.Equal(t, txs[1].Hash(), leaves[1])
}

func TestDeserializeTransactionRoundTrips(t *testing.T) {
	tx := sampleTx(7)
	tx.Signature = cryptoprim.Signature{0xAA, 0xBB}

	decoded, err := DeserializeTransaction(tx.SerializeSigned())
	require.NoError(t, err)
	require.Equal(t, tx, decoded)
}

func TestDeserializeBlockRoundTrips(t *testing.T) {
	var pk1, pk2 cryptoprim.PubKey
	pk1[0] = 0x01
	pk2[0] = 0x02

	txs := []Transaction{sampleTx(1), sampleTx(2)}
	block := Block{
		Height:    10,
		Round:     3,
		Timestamp: 1_700_000_000_000,
		Proposer:  pk1,
		AllVRFAnnouncements: []VRFAnnouncement{
			{Round: 3, PublicKey: pk1, Score: 0.5, Timestamp: 1_700_000_000_000},
		},
		RewardedNodes:    []cryptoprim.PubKey{pk1, pk2},
		Transactions:     txs,
		Nonce:            99,
		DifficultyTarget: big.NewInt(123_456),
		Signatures: map[cryptoprim.PubKey]cryptoprim.Signature{
			pk1: {0x01},
			pk2: {0x02},
		},
	}
	block.MerkleRoot = cryptoprim.MerkleRoot(MerkleLeaves(txs))

	decoded, err := DeserializeBlock(block.SerializeFull())
	require.NoError(t, err)
	require.Equal(t, block.Height, decoded.Height)
	require.Equal(t, block.Round, decoded.Round)
	require.Equal(t, block.Transactions, decoded.Transactions)
	require.Equal(t, block.RewardedNodes, decoded.RewardedNodes)
	require.Equal(t, block.Signatures, decoded.Signatures)
	require.Equal(t, 0, block.DifficultyTarget.Cmp(decoded.DifficultyTarget))
	require.Equal(t, block.Hash(), decoded.Hash())
}

func TestDeserializeBlockWithNilDifficultyRoundTrips(t *testing.T) {
	block := Block{Height: 1}
	decoded, err := DeserializeBlock(block.SerializeFull())
	require.NoError(t, err)
	require.Nil(t, decoded.DifficultyTarget)
}
