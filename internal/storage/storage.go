// Package storage implements the block/transaction/state views over an
// external key-value engine (spec.md §6, §9, C9): consensus never talks to
// a database directly, only through this facade's namespaced key scheme.
//
// Grounded on the teacher's internal/node/node.go state manager wiring
// (the node owns a state manager instance handed to consensus), generalized
// into the spec's explicit KV contract. The read cache is promoted from the
// teacher's go.mod indirect dependency on github.com/VictoriaMetrics/fastcache
// (pulled in transitively through go-ethereum's trie/triedb packages) to a
// direct, exercised dependency: a bounded in-memory cache in front of every
// KV engine this facade wraps.
package storage

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/sanketsaagar/lightchain-vrf/internal/chaintypes"
	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
)

// KV is the storage collaborator the node depends on but does not
// implement (spec.md §6): an external persistent key-value engine.
type KV interface {
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	Put(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	Exists(ctx context.Context, key []byte) (bool, error)
	PutBatch(ctx context.Context, entries map[string][]byte) error
	GetBatch(ctx context.Context, keys [][]byte) (map[string][]byte, error)
	ScanNamespace(ctx context.Context, prefix []byte) (map[string][]byte, error)
}

// Namespaced key prefixes (spec.md §6).
const (
	nsBlock        = "block:"
	nsBlockHash    = "block_hash:"
	keyBlockLatest = "block:latest"
	nsTransaction  = "transaction:"
	nsTxSender     = "tx_sender:"
	nsTxReceiver   = "tx_receiver:"
	nsTxPool       = "tx_pool:"
	nsAccount      = "account:"
	keyChainState  = "chain:state"
)

// readCacheBytes bounds the fastcache instance fronting block/account reads
// (spec.md §5: many concurrent readers, a single writer on commit).
const readCacheBytes = 32 * 1024 * 1024

// Store is the C9 facade: block, transaction, and account/state views over
// a KV engine, with a bounded read-through cache.
type Store struct {
	kv    KV
	cache *fastcache.Cache
}

// New wraps a KV engine with the consensus-facing facade.
func New(kv KV) *Store {
	return &Store{kv: kv, cache: fastcache.New(readCacheBytes)}
}

func blockKey(height uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", nsBlock, height))
}

func blockHashKey(hash cryptoprim.Hash) []byte {
	return []byte(nsBlockHash + hex.EncodeToString(hash[:]))
}

func txKey(hash cryptoprim.Hash) []byte {
	return []byte(nsTransaction + hex.EncodeToString(hash[:]))
}

func accountKey(pk cryptoprim.PubKey) []byte {
	return []byte(nsAccount + hex.EncodeToString(pk[:]))
}

// PutBlock persists a block under its height key, its hash index, and the
// latest-block pointer, and primes the read cache (spec.md §6).
func (s *Store) PutBlock(ctx context.Context, block chaintypes.Block) error {
	encoded := block.SerializeFull()
	hash := block.Hash()

	entries := map[string][]byte{
		string(blockKey(block.Height)): encoded,
		string(blockHashKey(hash)):     encoded,
		keyBlockLatest:                 encoded,
	}
	if err := s.kv.PutBatch(ctx, entries); err != nil {
		return fmt.Errorf("storage: put block %d: %w", block.Height, err)
	}

	s.cache.Set(blockKey(block.Height), encoded)
	s.cache.Set([]byte(keyBlockLatest), encoded)
	return nil
}

// GetBlockBytes fetches a block's encoded bytes by height, checking the
// read cache first.
func (s *Store) GetBlockBytes(ctx context.Context, height uint64) ([]byte, bool, error) {
	key := blockKey(height)
	if cached, ok := s.cache.HasGet(nil, key); ok {
		return cached, true, nil
	}
	value, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("storage: get block %d: %w", height, err)
	}
	if ok {
		s.cache.Set(key, value)
	}
	return value, ok, nil
}

// LatestBlockBytes fetches the chain tip's encoded bytes.
func (s *Store) LatestBlockBytes(ctx context.Context) ([]byte, bool, error) {
	key := []byte(keyBlockLatest)
	if cached, ok := s.cache.HasGet(nil, key); ok {
		return cached, true, nil
	}
	value, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("storage: get latest block: %w", err)
	}
	if ok {
		s.cache.Set(key, value)
	}
	return value, ok, nil
}

// PutAccount persists an account's encoded state (spec.md §6).
func (s *Store) PutAccount(ctx context.Context, pk cryptoprim.PubKey, encoded []byte) error {
	key := accountKey(pk)
	if err := s.kv.Put(ctx, key, encoded); err != nil {
		return fmt.Errorf("storage: put account: %w", err)
	}
	s.cache.Set(key, encoded)
	return nil
}

// GetAccountBytes fetches an account's encoded state, checking the read
// cache first.
func (s *Store) GetAccountBytes(ctx context.Context, pk cryptoprim.PubKey) ([]byte, bool, error) {
	key := accountKey(pk)
	if cached, ok := s.cache.HasGet(nil, key); ok {
		return cached, true, nil
	}
	value, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("storage: get account: %w", err)
	}
	if ok {
		s.cache.Set(key, value)
	}
	return value, ok, nil
}

// PutChainState persists the node's running chain-tip view (spec.md §3/§6).
func (s *Store) PutChainState(ctx context.Context, encoded []byte) error {
	if err := s.kv.Put(ctx, []byte(keyChainState), encoded); err != nil {
		return fmt.Errorf("storage: put chain state: %w", err)
	}
	s.cache.Set([]byte(keyChainState), encoded)
	return nil
}

// GetChainStateBytes fetches the node's persisted chain-tip view.
func (s *Store) GetChainStateBytes(ctx context.Context) ([]byte, bool, error) {
	key := []byte(keyChainState)
	if cached, ok := s.cache.HasGet(nil, key); ok {
		return cached, true, nil
	}
	value, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("storage: get chain state: %w", err)
	}
	if ok {
		s.cache.Set(key, value)
	}
	return value, ok, nil
}

// PutAccountState encodes and persists an account's state.
func (s *Store) PutAccountState(ctx context.Context, acct chaintypes.AccountState) error {
	return s.PutAccount(ctx, acct.PublicKey, acct.SerializeAccountState())
}

// GetAccountState fetches and decodes an account's state.
func (s *Store) GetAccountState(ctx context.Context, pk cryptoprim.PubKey) (chaintypes.AccountState, bool, error) {
	encoded, ok, err := s.GetAccountBytes(ctx, pk)
	if err != nil || !ok {
		return chaintypes.AccountState{}, ok, err
	}
	acct, err := chaintypes.DeserializeAccountState(encoded)
	if err != nil {
		return chaintypes.AccountState{}, false, fmt.Errorf("storage: decode account: %w", err)
	}
	return acct, true, nil
}

// PutChainStateTyped encodes and persists the node's running chain-tip view.
func (s *Store) PutChainStateTyped(ctx context.Context, state chaintypes.ChainState) error {
	return s.PutChainState(ctx, state.SerializeChainState())
}

// GetChainStateTyped fetches and decodes the node's persisted chain-tip view.
func (s *Store) GetChainStateTyped(ctx context.Context) (chaintypes.ChainState, bool, error) {
	encoded, ok, err := s.GetChainStateBytes(ctx)
	if err != nil || !ok {
		return chaintypes.ChainState{}, ok, err
	}
	state, err := chaintypes.DeserializeChainState(encoded)
	if err != nil {
		return chaintypes.ChainState{}, false, fmt.Errorf("storage: decode chain state: %w", err)
	}
	return state, true, nil
}

// PutTransaction indexes a committed transaction by hash, sender, and
// receiver (spec.md §6).
func (s *Store) PutTransaction(ctx context.Context, tx chaintypes.Transaction) error {
	encoded := tx.SerializeSigned()
	h := tx.Hash()
	entries := map[string][]byte{
		string(txKey(h)): encoded,
		nsTxSender + hex.EncodeToString(tx.From[:]) + ":" + hex.EncodeToString(h[:]):   encoded,
		nsTxReceiver + hex.EncodeToString(tx.To[:]) + ":" + hex.EncodeToString(h[:]): encoded,
	}
	if err := s.kv.PutBatch(ctx, entries); err != nil {
		return fmt.Errorf("storage: put transaction: %w", err)
	}
	return nil
}

// ScanTxPool returns every pending transaction still under the tx_pool
// namespace (spec.md §6).
func (s *Store) ScanTxPool(ctx context.Context) (map[string][]byte, error) {
	values, err := s.kv.ScanNamespace(ctx, []byte(nsTxPool))
	if err != nil {
		return nil, fmt.Errorf("storage: scan tx pool: %w", err)
	}
	return values, nil
}
