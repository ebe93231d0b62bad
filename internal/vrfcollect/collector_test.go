package vrfcollect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sanketsaagar/lightchain-vrf/internal/chaintypes"
	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
	"github.com/sanketsaagar/lightchain-vrf/internal/score"
)

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastVRF(ctx context.Context, a chaintypes.VRFAnnouncement) error {
	return nil
}

func flatStakeLookup(stake uint64, avg, tenure, uptime float64) StakeLookup {
	return func(cryptoprim.PubKey) (uint64, float64, float64, float64) {
		return stake, avg, tenure, uptime
	}
}

func announce(t *testing.T, c *Collector, round uint32, input cryptoprim.Hash, in score.Input) chaintypes.VRFAnnouncement {
	t.Helper()
	pk, sk, err := cryptoprim.GenerateKey()
	require.NoError(t, err)
	a, err := c.EvaluateAndBroadcast(context.Background(), sk, pk, input, round, in)
	require.NoError(t, err)
	return a
}

func TestCollectInsufficientBelowQuorum(t *testing.T) {
	c := New(noopBroadcaster{}, nil, 15)
	input := cryptoprim.VRFInput(cryptoprim.Hash{}, 1, 1)
	announce(t, c, 1, input, score.Input{Stake: 100, AvgStake: 100, UptimeRatio: 1})

	_, err := c.Collect(context.Background(), time.Now(), 1, input, 2)
	require.ErrorIs(t, err, ErrInsufficientVRFs)
}

func TestCollectFiltersWrongRound(t *testing.T) {
	c := New(noopBroadcaster{}, nil, 15)
	input := cryptoprim.VRFInput(cryptoprim.Hash{}, 1, 1)
	announce(t, c, 2, input, score.Input{Stake: 100, AvgStake: 100, UptimeRatio: 1})

	_, err := c.Collect(context.Background(), time.Now(), 1, input, 1)
	require.ErrorIs(t, err, ErrInsufficientVRFs)
}

func TestCollectSelectsWinnerAboveQuorum(t *testing.T) {
	c := New(noopBroadcaster{}, nil, 2)
	input := cryptoprim.VRFInput(cryptoprim.Hash{}, 1, 1)

	announce(t, c, 1, input, score.Input{Stake: 100, AvgStake: 100, UptimeRatio: 1})
	announce(t, c, 1, input, score.Input{Stake: 200, AvgStake: 100, UptimeRatio: 1})
	announce(t, c, 1, input, score.Input{Stake: 50, AvgStake: 100, UptimeRatio: 1})

	result, err := c.Collect(context.Background(), time.Now(), 1, input, 2)
	require.NoError(t, err)
	require.Len(t, result.AllValid, 3)
	require.LessOrEqual(t, len(result.Top), 2)

	for i := 1; i < len(result.AllValid); i++ {
		require.GreaterOrEqual(t, result.AllValid[i-1].Score, result.AllValid[i].Score)
	}
}

func TestCollectRejectsForgedScore(t *testing.T) {
	c := New(noopBroadcaster{}, flatStakeLookup(100, 100, 0, 1.0), 15)
	input := cryptoprim.VRFInput(cryptoprim.Hash{}, 1, 1)

	pk, sk, err := cryptoprim.GenerateKey()
	require.NoError(t, err)
	output, proof, err := cryptoprim.VRFEvaluate(sk, input)
	require.NoError(t, err)

	forged := chaintypes.VRFAnnouncement{
		Round:     1,
		PublicKey: pk,
		VRFOutput: output,
		VRFProof:  proof,
		Score:     1.0,
		Timestamp: chaintypes.NowMillis(),
	}
	c.Submit(forged)

	_, err = c.Collect(context.Background(), time.Now(), 1, input, 1)
	require.ErrorIs(t, err, ErrInsufficientVRFs)
}

func TestCollectFiltersStaleAnnouncement(t *testing.T) {
	c := New(noopBroadcaster{}, nil, 15)
	input := cryptoprim.VRFInput(cryptoprim.Hash{}, 1, 1)

	pk, sk, err := cryptoprim.GenerateKey()
	require.NoError(t, err)
	output, proof, err := cryptoprim.VRFEvaluate(sk, input)
	require.NoError(t, err)

	stale := chaintypes.VRFAnnouncement{
		Round:     1,
		PublicKey: pk,
		VRFOutput: output,
		VRFProof:  proof,
		Score:     0.1,
		Timestamp: chaintypes.NowMillis() - maxAnnouncementAgeMillis - 1,
	}
	c.Submit(stale)

	_, err = c.Collect(context.Background(), time.Now(), 1, input, 1)
	require.ErrorIs(t, err, ErrInsufficientVRFs)
}

func TestCollectAbortsOnCancelledContext(t *testing.T) {
	c := New(noopBroadcaster{}, nil, 15)
	input := cryptoprim.VRFInput(cryptoprim.Hash{}, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Collect(ctx, time.Now().Add(time.Hour), 1, input, 1)
	require.ErrorIs(t, err, ErrRoundAborted)
}
