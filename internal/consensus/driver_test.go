package consensus

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/sanketsaagar/lightchain-vrf/internal/chaintypes"
	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
	"github.com/sanketsaagar/lightchain-vrf/internal/pow"
	"github.com/sanketsaagar/lightchain-vrf/internal/proposer"
	"github.com/sanketsaagar/lightchain-vrf/internal/score"
	"github.com/sanketsaagar/lightchain-vrf/internal/validator"
	"github.com/sanketsaagar/lightchain-vrf/internal/vrfcollect"
)

type memStore struct {
	mu     sync.Mutex
	blocks []chaintypes.Block
}

func (m *memStore) LatestBlock(ctx context.Context) (chaintypes.Block, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.blocks) == 0 {
		return chaintypes.Block{}, false, nil
	}
	return m.blocks[len(m.blocks)-1], true, nil
}

func (m *memStore) CommitBlock(ctx context.Context, block chaintypes.Block, epoch uint64, nextDifficulty *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append(m.blocks, block)
	return nil
}

type noopVRFBroadcaster struct{}

func (noopVRFBroadcaster) BroadcastVRF(ctx context.Context, a chaintypes.VRFAnnouncement) error {
	return nil
}

type noopBlockBroadcaster struct{}

func (noopBlockBroadcaster) BroadcastBlock(ctx context.Context, block chaintypes.Block) error {
	return nil
}

func newSoloDriver(t *testing.T) *Driver {
	t.Helper()
	selfPK, selfSK, err := cryptoprim.GenerateKey()
	require.NoError(t, err)

	collector := vrfcollect.New(noopVRFBroadcaster{}, nil, 1)
	assembler := proposer.New(noopBlockBroadcaster{}, 10, 1<<20)
	v := validator.New(1, 1, func(cryptoprim.PubKey) (uint64, bool) { return 0, false })
	store := &memStore{}

	cfg := Config{
		Quorum:               1,
		RewardedTop:          1,
		VRFCollectionTimeout: 20 * time.Millisecond,
		BlockProductionTime:  2 * time.Second,
		EpochLength:          10,
		MaxTxCount:           10,
		MaxBlockBytes:        1 << 20,
		DifficultyTarget:     func() *big.Int { return pow.TargetFromDifficulty(1) },
		BaseDifficulty:       1,
		TargetBlockTime:      3 * time.Second,
	}

	selfInput := func() score.Input {
		return score.Input{Stake: 100, AvgStake: 100, UptimeRatio: 1.0}
	}
	txSource := func() []chaintypes.Transaction { return nil }

	return New(cfg, selfPK, selfSK, collector, assembler, v, store, selfInput, txSource, logrus.NewEntry(logrus.New()))
}

func TestRunRoundCommitsAsSoleProposer(t *testing.T) {
	d := newSoloDriver(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := d.RunRound(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), d.Height())
	require.Equal(t, uint32(1), d.Round())
}

func TestNextDifficultyTargetUnchangedWithoutPredecessor(t *testing.T) {
	d := newSoloDriver(t)
	candidate := chaintypes.Block{DifficultyTarget: pow.TargetFromDifficulty(1)}

	got := d.nextDifficultyTarget(candidate, chaintypes.Block{}, false)
	require.Equal(t, 0, got.Cmp(candidate.DifficultyTarget))
}

func TestNextDifficultyTargetRisesWhenBlocksArriveFast(t *testing.T) {
	d := newSoloDriver(t)
	d.cfg.BaseDifficulty = 1000
	d.cfg.TargetBlockTime = 3 * time.Second

	prev := chaintypes.Block{Timestamp: 0}
	candidate := chaintypes.Block{Timestamp: 100, DifficultyTarget: pow.TargetFromDifficulty(1000)}

	next := d.nextDifficultyTarget(candidate, prev, true)
	nextDifficulty := pow.DifficultyFromTarget(next)
	require.Greater(t, nextDifficulty, int64(1000))
}

// TestRunRoundAcceptsCandidateMatchingChainTipHeight pins down the
// non-mismatch side of the candidate.Height != nextHeight guard in
// RunRound: a solo proposer's own candidate always matches the height it
// was built for, so the guard never fires and the round commits normally.
// (ErrHeightMismatch itself guards a block arriving from the network at
// the wrong height; wait already filters WAIT candidates down to the
// requested (height, round) pair, so exercising the rejection branch
// requires a malicious peer bypassing that filter, outside this driver's
// own API surface.)
func TestRunRoundAcceptsCandidateMatchingChainTipHeight(t *testing.T) {
	d := newSoloDriver(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, d.RunRound(ctx))
	require.Equal(t, uint64(0), d.Height())
}

func TestRunRoundAdvancesRoundOnInsufficientQuorum(t *testing.T) {
	d := newSoloDriver(t)
	d.cfg.Quorum = 2 // unreachable by a lone node

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := d.RunRound(ctx)
	require.Error(t, err)
	require.Equal(t, uint32(1), d.Round())
}
