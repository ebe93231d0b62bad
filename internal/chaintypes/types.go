// Package chaintypes defines the consensus data model (spec.md §3, C2):
// blocks, transactions, VRF artifacts, and the account/chain state views.
//
// Grounded on the teacher's pkg/genesis/l1_genesis.go (struct shape,
// json tags for wire/debug output) and pkg/consensus/l1_consensus.go
// (Proposal/Vote/Commit as the closest teacher analogue to VRF
// announcements and block commits), generalized to the spec's Ed25519-keyed,
// VRF+PoW hybrid data model instead of the teacher's secp256k1/BFT one.
package chaintypes

import (
	"math/big"
	"time"

	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
)

// TxType enumerates the transaction kinds of spec.md §3.
type TxType uint8

const (
	TxTransfer TxType = iota
	TxStake
	TxUnstake
)

func (t TxType) String() string {
	switch t {
	case TxTransfer:
		return "TRANSFER"
	case TxStake:
		return "STAKE"
	case TxUnstake:
		return "UNSTAKE"
	default:
		return "UNKNOWN"
	}
}

// Transaction is a signed transfer/stake/unstake instruction (spec.md §3).
type Transaction struct {
	From      cryptoprim.PubKey
	To        cryptoprim.PubKey
	Amount    uint64
	Fee       uint64
	Timestamp int64
	Nonce     uint64
	Signature cryptoprim.Signature
	Type      TxType
}

// Hash returns SHA-256 of the transaction's canonical encoding, excluding
// the signature (spec.md §3: "hash = SHA-256 of serialization minus signature").
func (tx Transaction) Hash() cryptoprim.Hash {
	return cryptoprim.SHA256(tx.serializeUnsigned())
}

// VRFAnnouncement is a single node's per-round VRF broadcast (spec.md §3).
type VRFAnnouncement struct {
	Round     uint32
	PublicKey cryptoprim.PubKey
	VRFOutput cryptoprim.Hash
	VRFProof  cryptoprim.Signature
	Score     float64
	Timestamp int64
}

// Block is the content-addressed unit of finality (spec.md §3).
type Block struct {
	Height              uint64
	Round               uint32
	Timestamp           int64
	PreviousHash        cryptoprim.Hash
	Proposer            cryptoprim.PubKey
	VRFOutput           cryptoprim.Hash
	VRFProof            cryptoprim.Signature
	AllVRFAnnouncements []VRFAnnouncement
	RewardedNodes       []cryptoprim.PubKey
	Transactions        []Transaction
	MerkleRoot          cryptoprim.Hash
	Nonce               uint64
	DifficultyTarget    *big.Int
	Signatures          map[cryptoprim.PubKey]cryptoprim.Signature
}

// Hash returns SHA-256 of the block's canonical encoding, excluding
// signatures (spec.md §3 invariant 1).
func (b Block) Hash() cryptoprim.Hash {
	return cryptoprim.SHA256(b.serializeHeader())
}

// AccountState is the per-account balance/stake ledger entry (spec.md §3).
type AccountState struct {
	PublicKey   cryptoprim.PubKey
	Balance     uint64
	Nonce       uint64
	StakeAmount uint64
	UpdatedAt   int64
}

// ChainState is the node's running chain-tip view (spec.md §3).
type ChainState struct {
	CurrentHeight     uint64
	CurrentRound      uint32
	CurrentEpoch      uint64
	TotalSupply       uint64
	ActiveSuperNodes  []cryptoprim.PubKey
	CurrentDifficulty *big.Int
}

// NowMillis returns the current wall-clock time in milliseconds since the
// Unix epoch, the unit spec.md §3 specifies for Block.timestamp.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
