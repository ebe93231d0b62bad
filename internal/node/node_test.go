package node

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/sanketsaagar/lightchain-vrf/internal/config"
	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
	"github.com/sanketsaagar/lightchain-vrf/internal/genesis"
	"github.com/sanketsaagar/lightchain-vrf/internal/storage"
)

func testConfig(listenAddr string) config.Config {
	cfg := config.Default()
	cfg.Network.ListenAddr = listenAddr
	cfg.Consensus.SuperNodeCount = 1
	cfg.Consensus.RewardedTopX = 1
	cfg.Consensus.VRFCollectionTimeoutMS = 50
	cfg.Consensus.BlockProductionTimeoutMS = 200
	cfg.Consensus.PoWBaseDifficulty = 1
	cfg.Consensus.MaxTransactionsPerBlock = 10
	return cfg
}

func TestBootstrapSeedsGenesisOnce(t *testing.T) {
	ctx := context.Background()
	pk, sk, err := cryptoprim.GenerateKey()
	require.NoError(t, err)

	n := New(testConfig("127.0.0.1:19101"), pk, sk, storage.NewMemKV(), logrus.NewEntry(logrus.New()))

	require.NoError(t, n.Bootstrap(ctx, []genesis.Allocation{{PublicKey: pk, Balance: 1000, StakeAmount: 500}}))

	latest, ok, err := n.chainStore.LatestBlock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0), latest.Height)

	require.NoError(t, n.Bootstrap(ctx, nil))
	stillGenesis, ok, err := n.chainStore.LatestBlock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0), stillGenesis.Height)
}

func TestStartRunsAtLeastOneRoundAsSoleValidator(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	pk, sk, err := cryptoprim.GenerateKey()
	require.NoError(t, err)

	n := New(testConfig("127.0.0.1:19102"), pk, sk, storage.NewMemKV(), logrus.NewEntry(logrus.New()))
	require.NoError(t, n.Bootstrap(ctx, []genesis.Allocation{{PublicKey: pk, Balance: 1000, StakeAmount: 500}}))

	require.NoError(t, n.Start(ctx))
	defer n.Stop()

	require.Eventually(t, func() bool {
		latest, ok, err := n.chainStore.LatestBlock(context.Background())
		return err == nil && ok && latest.Height >= 1
	}, 2*time.Second, 20*time.Millisecond)
}
