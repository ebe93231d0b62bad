package mempool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sanketsaagar/lightchain-vrf/internal/chaintypes"
	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
)

func tx(from cryptoprim.PubKey, nonce uint64) chaintypes.Transaction {
	return chaintypes.Transaction{From: from, Amount: 10, Fee: 1, Timestamp: 1_700_000_000_000, Nonce: nonce}
}

func TestAddIsIdempotentOnDuplicateHash(t *testing.T) {
	var pk cryptoprim.PubKey
	pk[0] = 0x01
	p := New()

	t1 := tx(pk, 1)
	p.Add(t1)
	p.Add(t1)

	require.Equal(t, 1, p.Len())
	require.Equal(t, 1, p.FromSender(pk))
}

func TestRemoveEvictsCommittedTransactions(t *testing.T) {
	var pk cryptoprim.PubKey
	pk[0] = 0x01
	p := New()

	t1 := tx(pk, 1)
	t2 := tx(pk, 2)
	p.Add(t1)
	p.Add(t2)
	require.Equal(t, 2, p.Len())

	p.Remove([]cryptoprim.Hash{t1.Hash()})
	require.Equal(t, 1, p.Len())
	require.Equal(t, 1, p.FromSender(pk))

	pending := p.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, t2.Hash(), pending[0].Hash())
}

func TestFromSenderZeroWhenNoTransactions(t *testing.T) {
	var pk cryptoprim.PubKey
	pk[0] = 0x01
	p := New()
	require.Equal(t, 0, p.FromSender(pk))
}
