package chaintypes

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/big"
	"sort"

	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
)

// Canonical binary serialization (spec.md §6): fixed-width big-endian
// integers, u32 big-endian length prefixes ahead of every variable-length
// field, and IEEE-754 big-endian f64 for scores. Field order follows the
// struct declarations in types.go with two exceptions: a transaction's Type
// is written before its Signature, and a block's DifficultyTarget is
// written before its Nonce, which is the last header field.
// This encoding is never versioned or self-describing; it exists solely to
// be hashed and signed, not to be evolved across releases.

func putUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func putUint64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func putInt64(buf *bytes.Buffer, v int64) {
	putUint64(buf, uint64(v))
}

func putFloat64(buf *bytes.Buffer, v float64) {
	putUint64(buf, math.Float64bits(v))
}

// serializeUnsigned writes the transaction's canonical fields excluding the
// signature, in the order the fields are declared (spec.md §3).
func (tx Transaction) serializeUnsigned() []byte {
	var buf bytes.Buffer
	buf.Write(tx.From[:])
	buf.Write(tx.To[:])
	putUint64(&buf, tx.Amount)
	putUint64(&buf, tx.Fee)
	putInt64(&buf, tx.Timestamp)
	putUint64(&buf, tx.Nonce)
	buf.WriteByte(byte(tx.Type))
	return buf.Bytes()
}

// UnsignedBytes exposes the transaction's canonical encoding minus its
// signature, the exact payload an Ed25519 signature over the transaction
// covers (spec.md §3).
func (tx Transaction) UnsignedBytes() []byte {
	return tx.serializeUnsigned()
}

// SerializeSigned writes the full transaction including its signature, used
// for wire transfer and storage persistence.
func (tx Transaction) SerializeSigned() []byte {
	var buf bytes.Buffer
	buf.Write(tx.serializeUnsigned())
	buf.Write(tx.Signature[:])
	return buf.Bytes()
}

// serialize writes an announcement's canonical fields (spec.md §3); VRF
// announcements carry no separate signature field, the VRF proof serves
// that role, so this is also what gets hashed when an announcement needs
// a content address.
func (a VRFAnnouncement) serialize() []byte {
	var buf bytes.Buffer
	putUint32(&buf, a.Round)
	buf.Write(a.PublicKey[:])
	buf.Write(a.VRFOutput[:])
	buf.Write(a.VRFProof[:])
	putFloat64(&buf, a.Score)
	putInt64(&buf, a.Timestamp)
	return buf.Bytes()
}

// PoWPreimage writes every canonical header field up to but excluding the
// nonce (spec.md §4.4): the PoW puzzle is "find a nonce such that
// SHA-256(preimage || nonce) meets the difficulty target", so this is the
// fixed prefix the miner and verifier both hash the candidate nonce against.
func (b Block) PoWPreimage() []byte {
	var buf bytes.Buffer
	putUint64(&buf, b.Height)
	putUint32(&buf, b.Round)
	putInt64(&buf, b.Timestamp)
	buf.Write(b.PreviousHash[:])
	buf.Write(b.Proposer[:])
	buf.Write(b.VRFOutput[:])
	buf.Write(b.VRFProof[:])

	putUint32(&buf, uint32(len(b.AllVRFAnnouncements)))
	for _, a := range b.AllVRFAnnouncements {
		buf.Write(a.serialize())
	}

	putUint32(&buf, uint32(len(b.RewardedNodes)))
	for _, pk := range b.RewardedNodes {
		buf.Write(pk[:])
	}

	putUint32(&buf, uint32(len(b.Transactions)))
	for _, tx := range b.Transactions {
		txBytes := tx.SerializeSigned()
		putUint32(&buf, uint32(len(txBytes)))
		buf.Write(txBytes)
	}

	buf.Write(b.MerkleRoot[:])

	target := difficultyBytes(b.DifficultyTarget)
	buf.Write(target[:])

	return buf.Bytes()
}

// serializeHeader writes the block's canonical fields excluding
// per-validator signatures (spec.md §3 invariant 1: block_hash excludes
// signatures), including the winning nonce.
func (b Block) serializeHeader() []byte {
	var buf bytes.Buffer
	buf.Write(b.PoWPreimage())
	putUint64(&buf, b.Nonce)
	return buf.Bytes()
}

// difficultyBytes renders a difficulty target as a fixed 32-byte big-endian
// unsigned integer, zero-padded on the left. A nil target serializes as
// all-zero, which PoW verification against a zero target always fails
// (spec.md §8: malformed difficulty is rejected, never a false pass).
func difficultyBytes(target *big.Int) [32]byte {
	var out [32]byte
	if target == nil {
		return out
	}
	b := target.Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(out[32-len(b):], b)
	return out
}

// SerializeFull writes the block's header fields plus the accumulated
// validator signatures, sorted by public key for determinism. Used for
// storage persistence and network transfer, never for hashing.
func (b Block) SerializeFull() []byte {
	var buf bytes.Buffer
	buf.Write(b.serializeHeader())

	keys := make([]cryptoprim.PubKey, 0, len(b.Signatures))
	for k := range b.Signatures {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})

	putUint32(&buf, uint32(len(keys)))
	for _, k := range keys {
		buf.Write(k[:])
		sig := b.Signatures[k]
		buf.Write(sig[:])
	}

	return buf.Bytes()
}

// SerializeAccountState writes an account's canonical fields for storage
// persistence (spec.md §3, §6).
func (a AccountState) SerializeAccountState() []byte {
	var buf bytes.Buffer
	buf.Write(a.PublicKey[:])
	putUint64(&buf, a.Balance)
	putUint64(&buf, a.Nonce)
	putUint64(&buf, a.StakeAmount)
	putInt64(&buf, a.UpdatedAt)
	return buf.Bytes()
}

// SerializeChainState writes the node's running chain-tip view for storage
// persistence (spec.md §3, §6).
func (s ChainState) SerializeChainState() []byte {
	var buf bytes.Buffer
	putUint64(&buf, s.CurrentHeight)
	putUint32(&buf, s.CurrentRound)
	putUint64(&buf, s.CurrentEpoch)
	putUint64(&buf, s.TotalSupply)
	putUint32(&buf, uint32(len(s.ActiveSuperNodes)))
	for _, pk := range s.ActiveSuperNodes {
		buf.Write(pk[:])
	}
	target := difficultyBytes(s.CurrentDifficulty)
	buf.Write(target[:])
	return buf.Bytes()
}

// MerkleLeaves computes the per-transaction hashes used as Merkle leaves
// (spec.md §3 invariant 2).
func MerkleLeaves(txs []Transaction) []cryptoprim.Hash {
	leaves := make([]cryptoprim.Hash, len(txs))
	for i, tx := range txs {
		leaves[i] = tx.Hash()
	}
	return leaves
}
