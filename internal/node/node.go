// Package node wires the consensus, storage, network, and mempool
// collaborators into one running validator process (spec.md §6, §9).
//
// Grounded on the teacher's internal/node/node.go lifecycle (a Config
// struct of pre-built collaborators, Start/Stop ordering components and
// tearing them down in reverse, a sync.WaitGroup tracking background
// goroutines), generalized from the teacher's state/network/consensus/
// AggLayer quartet to this spec's storage/network/consensus trio; there is
// no L2-to-L1 aggregation layer in a standalone consensus core, so that
// slot is simply absent rather than stubbed out.
package node

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"math"
	"math/big"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sanketsaagar/lightchain-vrf/internal/chaintypes"
	"github.com/sanketsaagar/lightchain-vrf/internal/config"
	"github.com/sanketsaagar/lightchain-vrf/internal/consensus"
	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
	"github.com/sanketsaagar/lightchain-vrf/internal/genesis"
	"github.com/sanketsaagar/lightchain-vrf/internal/mempool"
	"github.com/sanketsaagar/lightchain-vrf/internal/network"
	"github.com/sanketsaagar/lightchain-vrf/internal/pow"
	"github.com/sanketsaagar/lightchain-vrf/internal/proposer"
	"github.com/sanketsaagar/lightchain-vrf/internal/score"
	"github.com/sanketsaagar/lightchain-vrf/internal/storage"
	"github.com/sanketsaagar/lightchain-vrf/internal/validator"
	"github.com/sanketsaagar/lightchain-vrf/internal/vrfcollect"
)

// Node is a single running validator: it owns storage, the gossip network,
// the mempool, and the consensus driver, and drives rounds until stopped.
type Node struct {
	cfg config.Config

	selfPK cryptoprim.PubKey
	selfSK ed25519.PrivateKey

	store      *storage.Store
	chainStore *storage.ChainStore
	net        *network.Network
	pool       *mempool.Pool
	driver     *consensus.Driver

	log *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Node from configuration and this node's keypair. kv is
// the external KV engine the storage facade (C9) wraps; memory and
// leveldb-backed engines are both valid callers.
func New(cfg config.Config, selfPK cryptoprim.PubKey, selfSK ed25519.PrivateKey, kv storage.KV, log *logrus.Entry) *Node {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	store := storage.New(kv)

	return &Node{
		cfg:        cfg,
		selfPK:     selfPK,
		selfSK:     selfSK,
		store:      store,
		chainStore: storage.NewChainStore(store),
		pool:       mempool.New(),
		log:        log.WithField("component", "node"),
	}
}

// Bootstrap seeds storage with a genesis block if the chain has not been
// initialized yet, a no-op otherwise (spec.md §8: genesis is a fixed
// precondition, constructed once and never re-validated).
func (n *Node) Bootstrap(ctx context.Context, allocations []genesis.Allocation) error {
	_, exists, err := n.chainStore.LatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("node: bootstrap: read chain tip: %w", err)
	}
	if exists {
		return nil
	}

	builder := genesis.NewBuilder(chaintypes.NowMillis()).
		SetDifficulty(pow.TargetFromDifficulty(n.cfg.Consensus.PoWBaseDifficulty))
	for _, alloc := range allocations {
		builder.AddAllocation(alloc)
	}
	block, accounts := builder.Build()

	if err := n.chainStore.CommitBlock(ctx, block, 0, block.DifficultyTarget); err != nil {
		return fmt.Errorf("node: bootstrap: commit genesis: %w", err)
	}
	var totalSupply uint64
	for _, acct := range accounts {
		if err := n.store.PutAccountState(ctx, acct); err != nil {
			return fmt.Errorf("node: bootstrap: persist account: %w", err)
		}
		totalSupply += acct.Balance
	}
	if err := n.store.PutChainStateTyped(ctx, genesis.ChainState(block, totalSupply)); err != nil {
		return fmt.Errorf("node: bootstrap: persist chain state: %w", err)
	}

	n.log.WithField("super_nodes", len(block.RewardedNodes)).Info("genesis bootstrapped")
	return nil
}

// SubmitTransaction admits a transaction into the local mempool and
// rebroadcasts it (spec.md §6 client-facing entry point).
func (n *Node) SubmitTransaction(ctx context.Context, tx chaintypes.Transaction) error {
	n.pool.Add(tx)
	if n.net != nil {
		return n.net.BroadcastTransaction(ctx, tx)
	}
	return nil
}

// Start wires the network and consensus driver and begins running rounds
// in the background.
func (n *Node) Start(ctx context.Context) error {
	n.ctx, n.cancel = context.WithCancel(ctx)

	handler := network.Handler{
		OnVRF:         n.driverSubmitVRF,
		OnBlock:       n.driverSubmitBlock,
		OnTransaction: n.pool.Add,
	}
	n.net = network.New(n.selfPK, n.cfg.Network.ListenAddr, n.cfg.Network.MaxPeers, handler, n.log)
	if err := n.net.Start(n.ctx, n.cfg.Network.BootstrapNodes); err != nil {
		return fmt.Errorf("node: start network: %w", err)
	}

	quorum := n.cfg.Consensus.Quorum()
	collector := vrfcollect.New(n.net, n.stakeOf, n.cfg.Consensus.RewardedTopX)
	assembler := proposer.New(n.net, n.cfg.Consensus.MaxTransactionsPerBlock, n.cfg.Consensus.MaxBlockSizeBytes)
	v := validator.New(quorum, n.cfg.Consensus.RewardedTopX, n.nonceOf)

	driverCfg := consensus.Config{
		Quorum:               quorum,
		RewardedTop:          n.cfg.Consensus.RewardedTopX,
		VRFCollectionTimeout: n.cfg.Consensus.VRFCollectionTimeout(),
		BlockProductionTime:  n.cfg.Consensus.BlockProductionTimeout(),
		EpochLength:          n.cfg.Consensus.EpochLength,
		MaxTxCount:           n.cfg.Consensus.MaxTransactionsPerBlock,
		MaxBlockBytes:        n.cfg.Consensus.MaxBlockSizeBytes,
		DifficultyTarget:     n.currentDifficulty,
		BaseDifficulty:       n.cfg.Consensus.PoWBaseDifficulty,
		TargetBlockTime:      n.cfg.Consensus.BlockTime(),
	}
	n.driver = consensus.New(driverCfg, n.selfPK, n.selfSK, collector, assembler, v, n.chainStore, n.selfInput, n.pool.Pending, n.log)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.driver.Run(n.ctx); err != nil {
			n.log.WithError(err).Warn("consensus driver stopped")
		}
	}()

	n.log.Info("node started")
	return nil
}

// Stop cancels the running consensus loop and network, waiting for
// background goroutines to exit.
func (n *Node) Stop() error {
	if n.cancel != nil {
		n.cancel()
	}
	if n.net != nil {
		if err := n.net.Stop(); err != nil {
			n.log.WithError(err).Warn("error stopping network")
		}
	}
	n.wg.Wait()
	n.log.Info("node stopped")
	return nil
}

func (n *Node) driverSubmitVRF(a chaintypes.VRFAnnouncement) {
	if n.driver != nil {
		n.driver.SubmitVRF(a)
	}
}

func (n *Node) driverSubmitBlock(block chaintypes.Block) {
	if n.driver != nil {
		n.driver.SubmitBlock(block)
	}
}

// stakeOf resolves a node's stake parameters from persisted account and
// chain state for vrfcollect's score-forgery check (spec.md §4.2, §4.3).
func (n *Node) stakeOf(pk cryptoprim.PubKey) (stake uint64, avgStake float64, tenureDays float64, uptimeRatio float64) {
	acct, ok, err := n.store.GetAccountState(n.ctx, pk)
	if err != nil || !ok {
		return 0, 0, 0, 0
	}

	avgStake = float64(acct.StakeAmount)
	if state, ok, err := n.store.GetChainStateTyped(n.ctx); err == nil && ok && len(state.ActiveSuperNodes) > 0 {
		var total uint64
		for _, other := range state.ActiveSuperNodes {
			if otherAcct, found, err := n.store.GetAccountState(n.ctx, other); err == nil && found {
				total += otherAcct.StakeAmount
			}
		}
		if total > 0 {
			avgStake = float64(total) / float64(len(state.ActiveSuperNodes))
		}
	}

	tenureDays = math.Floor(float64(chaintypes.NowMillis()-acct.UpdatedAt) / float64(24*60*60*1000))
	if tenureDays < 0 {
		tenureDays = 0
	}
	return acct.StakeAmount, avgStake, tenureDays, 1.0
}

// nonceOf resolves an account's last-committed nonce for the validator's
// replay check (spec.md §4.7 step 5).
func (n *Node) nonceOf(pk cryptoprim.PubKey) (uint64, bool) {
	acct, ok, err := n.store.GetAccountState(n.ctx, pk)
	if err != nil || !ok {
		return 0, false
	}
	return acct.Nonce, true
}

// selfInput resolves this node's own score.Input for the current round from
// its persisted account state (spec.md §4.2).
func (n *Node) selfInput() score.Input {
	stake, avgStake, tenureDays, uptimeRatio := n.stakeOf(n.selfPK)
	return score.Input{
		Stake:       stake,
		AvgStake:    avgStake,
		TenureDays:  tenureDays,
		UptimeRatio: uptimeRatio,
	}
}

// currentDifficulty returns the running difficulty target, falling back to
// the configured base difficulty before genesis has been persisted.
func (n *Node) currentDifficulty() *big.Int {
	state, ok, err := n.store.GetChainStateTyped(n.ctx)
	if err != nil || !ok || state.CurrentDifficulty == nil {
		return pow.TargetFromDifficulty(n.cfg.Consensus.PoWBaseDifficulty)
	}
	return state.CurrentDifficulty
}
