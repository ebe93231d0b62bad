// Package consensus implements the per-round state machine that
// orchestrates VRF collection, block assembly, and block validation
// (spec.md §4.6, C8): IDLE → VRF_COLLECT → {BUILD | WAIT} → VERIFY →
// COMMIT → IDLE.
//
// Grounded on the teacher's pkg/consensus/l1_consensus.go consensusLoop/
// runConsensusRound (ticker-driven round loop dispatching into
// proposal/vote/commit phases), generalized from the teacher's BFT
// prevote/precommit scheme into the spec's single-candidate VRF+PoW round,
// and from its ad hoc `round`/`epoch` uint64 fields into atomic counters
// safe for the concurrent network-receive and mining goroutines described
// in spec.md §5.
package consensus

import (
	"context"
	"crypto/ed25519"
	"errors"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sanketsaagar/lightchain-vrf/internal/chaintypes"
	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
	"github.com/sanketsaagar/lightchain-vrf/internal/pow"
	"github.com/sanketsaagar/lightchain-vrf/internal/proposer"
	"github.com/sanketsaagar/lightchain-vrf/internal/score"
	"github.com/sanketsaagar/lightchain-vrf/internal/validator"
	"github.com/sanketsaagar/lightchain-vrf/internal/vrfcollect"
)

// Phase names the driver's current state (spec.md §4.6), exposed only for
// observability; it never gates behavior from outside Driver.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseVRFCollect
	PhaseBuild
	PhaseWait
	PhaseVerify
	PhaseCommit
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseVRFCollect:
		return "VRF_COLLECT"
	case PhaseBuild:
		return "BUILD"
	case PhaseWait:
		return "WAIT"
	case PhaseVerify:
		return "VERIFY"
	case PhaseCommit:
		return "COMMIT"
	default:
		return "UNKNOWN"
	}
}

// ChainStore is the storage facade the driver depends on to read the chain
// tip and persist newly committed blocks (spec.md §6, §9 C9). CommitBlock
// also applies every transaction's balance/nonce effects and persists the
// next round's retargeted difficulty. The storage implementation issues
// these writes one after another, not as one atomic batch: an error part
// way through leaves the writes made before it in place.
type ChainStore interface {
	LatestBlock(ctx context.Context) (chaintypes.Block, bool, error)
	CommitBlock(ctx context.Context, block chaintypes.Block, epoch uint64, nextDifficulty *big.Int) error
}

// SelfInput resolves this node's own stake/uptime parameters for the
// current round, sourced from the storage facade's account view (C9).
type SelfInput func() score.Input

// TxSource returns the candidate transactions available to a winning
// proposer, sourced from the external transaction pool.
type TxSource func() []chaintypes.Transaction

// Config bundles the round-level parameters the driver needs from
// configuration (spec.md §6).
type Config struct {
	Quorum               int
	RewardedTop          int
	VRFCollectionTimeout time.Duration
	BlockProductionTime  time.Duration
	EpochLength          uint64
	MaxTxCount           int
	MaxBlockBytes        int64
	DifficultyTarget     func() *big.Int
	BaseDifficulty       int64
	TargetBlockTime      time.Duration
}

// Driver runs the consensus state machine for one node.
type Driver struct {
	cfg Config

	selfPK cryptoprim.PubKey
	selfSK ed25519.PrivateKey

	collector *vrfcollect.Collector
	assembler *proposer.Assembler
	validate  *validator.Validator
	store     ChainStore
	selfInput SelfInput
	txSource  TxSource

	height atomic.Uint64
	round  atomic.Uint32
	epoch  atomic.Uint64
	phase  atomic.Int32

	blockInbox chan chaintypes.Block

	log *logrus.Entry
}

// New constructs a Driver wired to its collaborators.
func New(
	cfg Config,
	selfPK cryptoprim.PubKey,
	selfSK ed25519.PrivateKey,
	collector *vrfcollect.Collector,
	assembler *proposer.Assembler,
	v *validator.Validator,
	store ChainStore,
	selfInput SelfInput,
	txSource TxSource,
	log *logrus.Entry,
) *Driver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Driver{
		cfg:        cfg,
		selfPK:     selfPK,
		selfSK:     selfSK,
		collector:  collector,
		assembler:  assembler,
		validate:   v,
		store:      store,
		selfInput:  selfInput,
		txSource:   txSource,
		blockInbox: make(chan chaintypes.Block, 32),
		log:        log.WithField("component", "consensus"),
	}
}

// Phase returns the driver's current phase, safe to call concurrently.
func (d *Driver) Phase() Phase { return Phase(d.phase.Load()) }

// Height, Round, Epoch expose the driver's atomic counters (spec.md §4.6).
func (d *Driver) Height() uint64 { return d.height.Load() }
func (d *Driver) Round() uint32  { return d.round.Load() }
func (d *Driver) Epoch() uint64  { return d.epoch.Load() }

// SubmitBlock feeds a network-received block candidate into the driver's
// WAIT phase (spec.md §6 on_block callback).
func (d *Driver) SubmitBlock(block chaintypes.Block) {
	select {
	case d.blockInbox <- block:
	default:
		d.log.Warn("block inbox full, dropping candidate")
	}
}

// SubmitVRF feeds a network-received VRF announcement into the current
// round's collector (spec.md §6 on_vrf callback).
func (d *Driver) SubmitVRF(a chaintypes.VRFAnnouncement) {
	d.collector.Submit(a)
}

// Run drives rounds until ctx is cancelled, advancing round on every
// outcome (commit, timeout, or insufficient quorum) per spec.md §7's
// "never retries the same (height, round)" policy.
func (d *Driver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := d.RunRound(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			d.log.WithError(err).Warn("round did not commit")
		}
	}
}

// RunRound executes exactly one pass of the state machine (spec.md §4.6).
func (d *Driver) RunRound(ctx context.Context) error {
	defer d.round.Add(1)

	d.phase.Store(int32(PhaseIdle))
	prev, hasPrev, err := d.store.LatestBlock(ctx)
	if err != nil {
		return err
	}

	var prevHash cryptoprim.Hash
	nextHeight := uint64(0)
	if hasPrev {
		prevHash = prev.Hash()
		nextHeight = prev.Height + 1
	}

	round := d.round.Load()
	epoch := d.epoch.Load()
	input := cryptoprim.VRFInput(prevHash, round, epoch)

	d.phase.Store(int32(PhaseVRFCollect))
	if _, err := d.collector.EvaluateAndBroadcast(ctx, d.selfSK, d.selfPK, input, round, d.selfInput()); err != nil {
		return err
	}

	deadline := time.Now().Add(d.cfg.VRFCollectionTimeout)
	result, err := d.collector.Collect(ctx, deadline, round, input, d.cfg.Quorum)
	if err != nil {
		return err
	}

	var candidate chaintypes.Block
	if result.Winner.PublicKey == d.selfPK {
		d.phase.Store(int32(PhaseBuild))
		var assembleIn proposer.AssembleInput
		candidate, assembleIn, err = d.build(ctx, nextHeight, round, prevHash, result)
		if err != nil {
			return err
		}
		if err := d.assembler.ValidateProposal(candidate, assembleIn); err != nil {
			return err
		}
		if err := d.assembler.Broadcast(ctx, candidate); err != nil {
			d.log.WithError(err).Warn("failed to broadcast assembled block")
		}
	} else {
		d.phase.Store(int32(PhaseWait))
		candidate, err = d.wait(ctx, nextHeight, round, deadline.Add(d.cfg.BlockProductionTime))
		if err != nil {
			return err
		}
	}

	if candidate.Height != nextHeight {
		return ErrHeightMismatch
	}

	d.phase.Store(int32(PhaseVerify))
	outcome := d.validate.Validate(candidate, epoch)
	if !outcome.OK() {
		return &ValidationFailedError{Kind: outcome.Kind.String(), Detail: outcome.Detail}
	}

	d.phase.Store(int32(PhaseCommit))
	nextDifficulty := d.nextDifficultyTarget(candidate, prev, hasPrev)
	if err := d.store.CommitBlock(ctx, candidate, epoch, nextDifficulty); err != nil {
		return err
	}
	d.height.Store(candidate.Height)
	if d.cfg.EpochLength > 0 && (round+1)%uint32(d.cfg.EpochLength) == 0 {
		d.epoch.Add(1)
	}
	d.phase.Store(int32(PhaseIdle))
	return nil
}

// nextDifficultyTarget retargets difficulty from the ratio of the
// configured target block time to the actual gap between the previous and
// newly committed block, clamped per pow.AdjustDifficulty (spec.md §4.4).
// A block with no predecessor (the first block of an empty chain) has no
// earlier time to measure against, so it keeps the candidate's own
// difficulty unchanged.
func (d *Driver) nextDifficultyTarget(candidate, prev chaintypes.Block, hasPrev bool) *big.Int {
	if !hasPrev {
		return candidate.DifficultyTarget
	}
	actualSeconds := float64(candidate.Timestamp-prev.Timestamp) / 1000.0
	targetSeconds := d.cfg.TargetBlockTime.Seconds()
	current := pow.DifficultyFromTarget(candidate.DifficultyTarget)
	next := pow.AdjustDifficulty(current, d.cfg.BaseDifficulty, actualSeconds, targetSeconds, 1.0)
	return pow.TargetFromDifficulty(next)
}

func (d *Driver) build(ctx context.Context, height uint64, round uint32, prevHash cryptoprim.Hash, result vrfcollect.RoundResult) (chaintypes.Block, proposer.AssembleInput, error) {
	buildCtx, cancel := context.WithTimeout(ctx, d.cfg.BlockProductionTime)
	defer cancel()

	rewarded := make([]cryptoprim.PubKey, len(result.Top))
	for i, a := range result.Top {
		rewarded[i] = a.PublicKey
	}

	txs := d.assembler.SelectTransactions(d.txSource())

	in := proposer.AssembleInput{
		Height:           height,
		Round:            round,
		PreviousHash:     prevHash,
		Proposer:         result.Winner.PublicKey,
		VRFOutput:        result.Winner.VRFOutput,
		VRFProof:         result.Winner.VRFProof,
		AllAnnouncements: result.AllValid,
		RewardedNodes:    rewarded,
		Transactions:     txs,
		DifficultyTarget: d.cfg.DifficultyTarget(),
	}

	block, err := d.assembler.Assemble(buildCtx, in)
	return block, in, err
}

func (d *Driver) wait(ctx context.Context, height uint64, round uint32, deadline time.Time) (chaintypes.Block, error) {
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for {
		select {
		case block := <-d.blockInbox:
			if block.Height == height && block.Round == round {
				return block, nil
			}
		case <-waitCtx.Done():
			return chaintypes.Block{}, ErrRoundTimedOut
		}
	}
}
