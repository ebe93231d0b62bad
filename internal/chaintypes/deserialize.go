package chaintypes

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
)

// cursor walks a byte slice left to right, mirroring the put* helpers in
// serialize.go field for field. Every read method returns an error instead
// of panicking so storage corruption surfaces as a decode error, never a
// crash.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) take(n int) ([]byte, error) {
	if c.pos+n > len(c.buf) {
		return nil, fmt.Errorf("chaintypes: unexpected end of buffer reading %d bytes at offset %d", n, c.pos)
	}
	out := c.buf[c.pos : c.pos+n]
	c.pos += n
	return out, nil
}

func (c *cursor) uint32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *cursor) uint64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (c *cursor) int64() (int64, error) {
	v, err := c.uint64()
	return int64(v), err
}

func (c *cursor) float64() (float64, error) {
	v, err := c.uint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (c *cursor) hash() (cryptoprim.Hash, error) {
	b, err := c.take(len(cryptoprim.Hash{}))
	if err != nil {
		return cryptoprim.Hash{}, err
	}
	var h cryptoprim.Hash
	copy(h[:], b)
	return h, nil
}

func (c *cursor) pubKey() (cryptoprim.PubKey, error) {
	b, err := c.take(len(cryptoprim.PubKey{}))
	if err != nil {
		return cryptoprim.PubKey{}, err
	}
	var pk cryptoprim.PubKey
	copy(pk[:], b)
	return pk, nil
}

func (c *cursor) signature() (cryptoprim.Signature, error) {
	b, err := c.take(len(cryptoprim.Signature{}))
	if err != nil {
		return cryptoprim.Signature{}, err
	}
	var sig cryptoprim.Signature
	copy(sig[:], b)
	return sig, nil
}

// DeserializeTransaction parses a transaction encoded by SerializeSigned.
func DeserializeTransaction(data []byte) (Transaction, error) {
	c := &cursor{buf: data}
	tx, err := decodeTransaction(c)
	if err != nil {
		return Transaction{}, err
	}
	if c.pos != len(data) {
		return Transaction{}, fmt.Errorf("chaintypes: %d trailing bytes after transaction", len(data)-c.pos)
	}
	return tx, nil
}

func decodeTransaction(c *cursor) (Transaction, error) {
	var tx Transaction
	var err error
	if tx.From, err = c.pubKey(); err != nil {
		return Transaction{}, err
	}
	if tx.To, err = c.pubKey(); err != nil {
		return Transaction{}, err
	}
	if tx.Amount, err = c.uint64(); err != nil {
		return Transaction{}, err
	}
	if tx.Fee, err = c.uint64(); err != nil {
		return Transaction{}, err
	}
	if tx.Timestamp, err = c.int64(); err != nil {
		return Transaction{}, err
	}
	if tx.Nonce, err = c.uint64(); err != nil {
		return Transaction{}, err
	}
	typeByte, err := c.take(1)
	if err != nil {
		return Transaction{}, err
	}
	tx.Type = TxType(typeByte[0])
	if tx.Signature, err = c.signature(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

func decodeAnnouncement(c *cursor) (VRFAnnouncement, error) {
	var a VRFAnnouncement
	var err error
	if a.Round, err = c.uint32(); err != nil {
		return VRFAnnouncement{}, err
	}
	if a.PublicKey, err = c.pubKey(); err != nil {
		return VRFAnnouncement{}, err
	}
	if a.VRFOutput, err = c.hash(); err != nil {
		return VRFAnnouncement{}, err
	}
	if a.VRFProof, err = c.signature(); err != nil {
		return VRFAnnouncement{}, err
	}
	if a.Score, err = c.float64(); err != nil {
		return VRFAnnouncement{}, err
	}
	if a.Timestamp, err = c.int64(); err != nil {
		return VRFAnnouncement{}, err
	}
	return a, nil
}

// DeserializeAccountState parses an account encoded by SerializeAccountState.
func DeserializeAccountState(data []byte) (AccountState, error) {
	c := &cursor{buf: data}
	var a AccountState
	var err error
	if a.PublicKey, err = c.pubKey(); err != nil {
		return AccountState{}, err
	}
	if a.Balance, err = c.uint64(); err != nil {
		return AccountState{}, err
	}
	if a.Nonce, err = c.uint64(); err != nil {
		return AccountState{}, err
	}
	if a.StakeAmount, err = c.uint64(); err != nil {
		return AccountState{}, err
	}
	if a.UpdatedAt, err = c.int64(); err != nil {
		return AccountState{}, err
	}
	if c.pos != len(data) {
		return AccountState{}, fmt.Errorf("chaintypes: %d trailing bytes after account state", len(data)-c.pos)
	}
	return a, nil
}

// DeserializeChainState parses a chain state encoded by SerializeChainState.
func DeserializeChainState(data []byte) (ChainState, error) {
	c := &cursor{buf: data}
	var s ChainState
	var err error
	if s.CurrentHeight, err = c.uint64(); err != nil {
		return ChainState{}, err
	}
	if s.CurrentRound, err = c.uint32(); err != nil {
		return ChainState{}, err
	}
	if s.CurrentEpoch, err = c.uint64(); err != nil {
		return ChainState{}, err
	}
	if s.TotalSupply, err = c.uint64(); err != nil {
		return ChainState{}, err
	}
	nodeCount, err := c.uint32()
	if err != nil {
		return ChainState{}, err
	}
	s.ActiveSuperNodes = make([]cryptoprim.PubKey, nodeCount)
	for i := range s.ActiveSuperNodes {
		if s.ActiveSuperNodes[i], err = c.pubKey(); err != nil {
			return ChainState{}, err
		}
	}
	targetBytes, err := c.take(32)
	if err != nil {
		return ChainState{}, err
	}
	if !bytes.Equal(targetBytes, make([]byte, 32)) {
		s.CurrentDifficulty = new(big.Int).SetBytes(targetBytes)
	}
	if c.pos != len(data) {
		return ChainState{}, fmt.Errorf("chaintypes: %d trailing bytes after chain state", len(data)-c.pos)
	}
	return s, nil
}

// DeserializeBlock parses a block encoded by SerializeFull, the inverse of
// serializeHeader plus the trailing signature map (spec.md §3).
func DeserializeBlock(data []byte) (Block, error) {
	c := &cursor{buf: data}
	var b Block
	var err error

	if b.Height, err = c.uint64(); err != nil {
		return Block{}, err
	}
	if b.Round, err = c.uint32(); err != nil {
		return Block{}, err
	}
	if b.Timestamp, err = c.int64(); err != nil {
		return Block{}, err
	}
	if b.PreviousHash, err = c.hash(); err != nil {
		return Block{}, err
	}
	if b.Proposer, err = c.pubKey(); err != nil {
		return Block{}, err
	}
	if b.VRFOutput, err = c.hash(); err != nil {
		return Block{}, err
	}
	if b.VRFProof, err = c.signature(); err != nil {
		return Block{}, err
	}

	announcementCount, err := c.uint32()
	if err != nil {
		return Block{}, err
	}
	b.AllVRFAnnouncements = make([]VRFAnnouncement, announcementCount)
	for i := range b.AllVRFAnnouncements {
		if b.AllVRFAnnouncements[i], err = decodeAnnouncement(c); err != nil {
			return Block{}, err
		}
	}

	rewardedCount, err := c.uint32()
	if err != nil {
		return Block{}, err
	}
	b.RewardedNodes = make([]cryptoprim.PubKey, rewardedCount)
	for i := range b.RewardedNodes {
		if b.RewardedNodes[i], err = c.pubKey(); err != nil {
			return Block{}, err
		}
	}

	txCount, err := c.uint32()
	if err != nil {
		return Block{}, err
	}
	b.Transactions = make([]Transaction, txCount)
	for i := range b.Transactions {
		txLen, err := c.uint32()
		if err != nil {
			return Block{}, err
		}
		txBytes, err := c.take(int(txLen))
		if err != nil {
			return Block{}, err
		}
		tc := &cursor{buf: txBytes}
		if b.Transactions[i], err = decodeTransaction(tc); err != nil {
			return Block{}, err
		}
		if tc.pos != len(txBytes) {
			return Block{}, fmt.Errorf("chaintypes: %d trailing bytes after transaction %d", len(txBytes)-tc.pos, i)
		}
	}

	if b.MerkleRoot, err = c.hash(); err != nil {
		return Block{}, err
	}

	targetBytes, err := c.take(32)
	if err != nil {
		return Block{}, err
	}
	if !bytes.Equal(targetBytes, make([]byte, 32)) {
		b.DifficultyTarget = new(big.Int).SetBytes(targetBytes)
	}

	if b.Nonce, err = c.uint64(); err != nil {
		return Block{}, err
	}

	sigCount, err := c.uint32()
	if err != nil {
		return Block{}, err
	}
	if sigCount > 0 {
		b.Signatures = make(map[cryptoprim.PubKey]cryptoprim.Signature, sigCount)
		for i := uint32(0); i < sigCount; i++ {
			pk, err := c.pubKey()
			if err != nil {
				return Block{}, err
			}
			sig, err := c.signature()
			if err != nil {
				return Block{}, err
			}
			b.Signatures[pk] = sig
		}
	}

	if c.pos != len(data) {
		return Block{}, fmt.Errorf("chaintypes: %d trailing bytes after block", len(data)-c.pos)
	}

	return b, nil
}
