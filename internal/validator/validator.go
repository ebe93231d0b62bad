// Package validator implements the five-step block validation contract
// (spec.md §4.7, C7): every committed block must pass VRF integrity,
// proposer legitimacy, reward distribution, proof-of-work, and transaction
// checks, in that order, with failures reported rather than retried.
//
// Grounded on the teacher's pkg/consensus/l1_consensus.go handleProposal/
// handleVote validation gates (validator membership checks before accepting
// a proposal or vote), generalized here into a single ordered five-step
// contract over the VRF+PoW data model instead of the teacher's BFT
// prevote/precommit scheme.
package validator

import (
	"math/big"

	"github.com/sanketsaagar/lightchain-vrf/internal/chaintypes"
	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
	"github.com/sanketsaagar/lightchain-vrf/internal/pow"
	"github.com/sanketsaagar/lightchain-vrf/internal/score"
)

// maxAnnouncementAgeMillis is the 30-second freshness bound on VRF
// announcements (spec.md §4.7 step 1).
const maxAnnouncementAgeMillis = 30_000

// maxTxAgeMillis is the 300-second freshness bound on transactions
// (spec.md §4.7 step 5).
const maxTxAgeMillis = 300_000

// maxTxsPerBlock is the hard transaction-count ceiling the validator
// enforces, independent of the proposer's configured inclusion cap
// (spec.md §4.7 step 5).
const maxTxsPerBlock = 10_000

// Kind enumerates the validator's failure taxonomy (spec.md §4.7, §7).
type Kind int

const (
	OK Kind = iota
	VRFFailure
	ProposerMismatch
	RewardMismatch
	PoWFailure
	TransactionFailure
	MalformedBlock
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "OK"
	case VRFFailure:
		return "VRFFailure"
	case ProposerMismatch:
		return "ProposerMismatch"
	case RewardMismatch:
		return "RewardMismatch"
	case PoWFailure:
		return "PoWFailure"
	case TransactionFailure:
		return "TransactionFailure"
	case MalformedBlock:
		return "MalformedBlock"
	default:
		return "Unknown"
	}
}

// Outcome is the validator's single return contract (spec.md §7):
// ValidationOutcome{ok | fail(kind, detail)}.
type Outcome struct {
	Kind   Kind
	Detail string
}

func (o Outcome) OK() bool { return o.Kind == OK }

func pass() Outcome { return Outcome{Kind: OK} }

func fail(k Kind, d string) Outcome { return Outcome{Kind: k, Detail: d} }

// NonceLookup resolves the last committed nonce for a sender, sourced from
// the account-state storage view (C9); ok is false if the sender has never
// transacted (spec.md §4.7 step 5, §9 nonce replay protection).
type NonceLookup func(pk cryptoprim.PubKey) (lastNonce uint64, ok bool)

// Validator runs the five-step contract against a candidate block.
type Validator struct {
	quorum      int
	rewardedTop int
	nonceOf     NonceLookup
}

// New constructs a Validator. quorum is ceil(2N/3) and rewardedTop is
// rewarded_top_x, both from configuration (spec.md §6).
func New(quorum, rewardedTop int, nonceOf NonceLookup) *Validator {
	return &Validator{quorum: quorum, rewardedTop: rewardedTop, nonceOf: nonceOf}
}

// Validate runs all five steps against block, recomputing the VRF input
// from previousHash/round/epoch (spec.md §4.1, §4.7). A step's failure
// short-circuits the remaining steps, matching the policy that failures
// are reported once, never retried inside the validator (spec.md §7).
func (v *Validator) Validate(block chaintypes.Block, epoch uint64) Outcome {
	input := cryptoprim.VRFInput(block.PreviousHash, block.Round, epoch)

	if o := v.stepVRFIntegrity(block, input); !o.OK() {
		return o
	}
	if o := v.stepProposerLegitimacy(block); !o.OK() {
		return o
	}
	if o := v.stepRewardDistribution(block); !o.OK() {
		return o
	}
	if o := v.stepPoW(block); !o.OK() {
		return o
	}
	if o := v.stepTransactions(block); !o.OK() {
		return o
	}
	return pass()
}

// stepVRFIntegrity is step 1 (spec.md §4.7).
func (v *Validator) stepVRFIntegrity(block chaintypes.Block, input cryptoprim.Hash) Outcome {
	seen := make(map[cryptoprim.PubKey]struct{}, len(block.AllVRFAnnouncements))

	for _, a := range block.AllVRFAnnouncements {
		if _, dup := seen[a.PublicKey]; dup {
			return fail(VRFFailure, "duplicate announcement public key")
		}
		seen[a.PublicKey] = struct{}{}

		if a.Round != block.Round {
			return fail(VRFFailure, "announcement round mismatch")
		}
		if a.Score < 0 || a.Score > 1 {
			return fail(VRFFailure, "announcement score out of range")
		}
		if !cryptoprim.VRFVerify(a.PublicKey, input, a.VRFOutput, a.VRFProof) {
			return fail(VRFFailure, "VRF verification failed")
		}
		age := block.Timestamp - a.Timestamp
		if age < 0 || age > maxAnnouncementAgeMillis {
			return fail(VRFFailure, "announcement stale or from the future")
		}
	}

	if len(block.AllVRFAnnouncements) < v.quorum {
		return fail(VRFFailure, "quorum not met")
	}
	return pass()
}

// rankAnnouncements returns announcements sorted by descending score with
// the lexicographic-min-VRF-output tie-break (spec.md §3 invariant 5, §4.2).
func rankAnnouncements(announcements []chaintypes.VRFAnnouncement) []score.Ranked {
	ranked := make([]score.Ranked, len(announcements))
	for i, a := range announcements {
		ranked[i] = score.Ranked{Announcement: a, Score: a.Score}
	}
	score.SortByScore(ranked)
	return ranked
}

// stepProposerLegitimacy is step 2 (spec.md §4.7).
func (v *Validator) stepProposerLegitimacy(block chaintypes.Block) Outcome {
	ranked := rankAnnouncements(block.AllVRFAnnouncements)
	winner, ok := score.SelectProposer(ranked)
	if !ok {
		return fail(ProposerMismatch, "no announcements to elect a proposer from")
	}
	if winner.Announcement.PublicKey != block.Proposer {
		return fail(ProposerMismatch, "block proposer is not the highest-ranked announcement")
	}
	if winner.Announcement.VRFOutput != block.VRFOutput || winner.Announcement.VRFProof != block.VRFProof {
		return fail(ProposerMismatch, "block VRF artifacts do not match the winning announcement")
	}
	return pass()
}

// stepRewardDistribution is step 3 (spec.md §4.7).
func (v *Validator) stepRewardDistribution(block chaintypes.Block) Outcome {
	if len(block.RewardedNodes) != v.rewardedTop {
		return fail(RewardMismatch, "rewarded node count mismatch")
	}

	ranked := rankAnnouncements(block.AllVRFAnnouncements)
	top := score.SelectTopX(ranked, v.rewardedTop)
	if len(top) != len(block.RewardedNodes) {
		return fail(RewardMismatch, "insufficient announcements for reward set")
	}

	seen := make(map[cryptoprim.PubKey]struct{}, len(block.RewardedNodes))
	for i, pk := range block.RewardedNodes {
		if _, dup := seen[pk]; dup {
			return fail(RewardMismatch, "duplicate rewarded node")
		}
		seen[pk] = struct{}{}
		if pk != top[i].Announcement.PublicKey {
			return fail(RewardMismatch, "rewarded node order does not match score ranking")
		}
	}
	return pass()
}

// stepPoW is step 4 (spec.md §4.7).
func (v *Validator) stepPoW(block chaintypes.Block) Outcome {
	if block.DifficultyTarget == nil || block.DifficultyTarget.Sign() <= 0 {
		return fail(PoWFailure, "difficulty target must be positive")
	}
	maxTarget := new(big.Int).Lsh(big.NewInt(1), 256)
	if block.DifficultyTarget.Cmp(maxTarget) >= 0 {
		return fail(PoWFailure, "difficulty target exceeds 2^256-1")
	}
	if !pow.Verify(block.PoWPreimage(), block.Nonce, block.DifficultyTarget) {
		return fail(PoWFailure, "proof of work does not meet target")
	}
	return pass()
}

// stepTransactions is step 5 (spec.md §4.7).
func (v *Validator) stepTransactions(block chaintypes.Block) Outcome {
	if len(block.Transactions) > maxTxsPerBlock {
		return fail(TransactionFailure, "too many transactions")
	}

	seenHashes := make(map[cryptoprim.Hash]struct{}, len(block.Transactions))
	lastNonceInBlock := make(map[cryptoprim.PubKey]uint64)

	for _, tx := range block.Transactions {
		h := tx.Hash()
		if _, dup := seenHashes[h]; dup {
			return fail(TransactionFailure, "duplicate transaction hash")
		}
		seenHashes[h] = struct{}{}

		if !cryptoprim.Verify(tx.From, txSignedPayload(tx), tx.Signature) {
			return fail(TransactionFailure, "invalid transaction signature")
		}

		age := block.Timestamp - tx.Timestamp
		if age < 0 || age > maxTxAgeMillis {
			return fail(TransactionFailure, "transaction stale or from the future")
		}

		prevNonce, hasPrev := lastNonceInBlock[tx.From]
		if !hasPrev {
			prevNonce, hasPrev = v.nonceOf(tx.From)
		}
		if hasPrev && tx.Nonce <= prevNonce {
			return fail(TransactionFailure, "transaction nonce is not strictly increasing")
		}
		lastNonceInBlock[tx.From] = tx.Nonce
	}

	recomputed := cryptoprim.MerkleRoot(chaintypes.MerkleLeaves(block.Transactions))
	if recomputed != block.MerkleRoot {
		return fail(TransactionFailure, "merkle root mismatch")
	}
	return pass()
}

// txSignedPayload is the byte payload an Ed25519 signature over a
// transaction covers: every canonical field except the signature itself
// (spec.md §3).
func txSignedPayload(tx chaintypes.Transaction) []byte {
	return tx.UnsignedBytes()
}
