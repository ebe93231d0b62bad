// Package mempool holds pending transactions awaiting inclusion in a block
// (spec.md §6's external tx-pool collaborator; §9 supplement: the
// distillation assumed a tx pool exists but never specified one).
//
// Grounded on the teacher's pkg/mempool/mempool.go (pending/queued/all maps
// keyed by hash, per-sender queuing, a dedicated RWMutex), trimmed of its
// parallel-execution dependency graph and EVM gas-price tracking: this
// chain's transactions never touch the EVM, so there is nothing to build a
// read/write-set dependency graph over. What survives is the pending-pool
// shape and per-sender accounting; ordering and packing are proposer.Assembler's
// job (C6), not the pool's.
package mempool

import (
	"sync"

	"github.com/sanketsaagar/lightchain-vrf/internal/chaintypes"
	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
)

// Pool is a concurrency-safe set of pending transactions.
type Pool struct {
	mu       sync.RWMutex
	pending  map[cryptoprim.Hash]chaintypes.Transaction
	bySender map[cryptoprim.PubKey][]cryptoprim.Hash
}

// New constructs an empty pool.
func New() *Pool {
	return &Pool{
		pending:  make(map[cryptoprim.Hash]chaintypes.Transaction),
		bySender: make(map[cryptoprim.PubKey][]cryptoprim.Hash),
	}
}

// Add admits a transaction into the pool, a no-op if its hash is already
// present (spec.md §8: duplicate submission is not an error).
func (p *Pool) Add(tx chaintypes.Transaction) {
	h := tx.Hash()

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.pending[h]; exists {
		return
	}
	p.pending[h] = tx
	p.bySender[tx.From] = append(p.bySender[tx.From], h)
}

// Remove evicts a transaction once it has been committed in a block.
func (p *Pool) Remove(hashes []cryptoprim.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range hashes {
		tx, ok := p.pending[h]
		if !ok {
			continue
		}
		delete(p.pending, h)
		p.removeFromSender(tx.From, h)
	}
}

func (p *Pool) removeFromSender(sender cryptoprim.PubKey, h cryptoprim.Hash) {
	hashes := p.bySender[sender]
	for i, candidate := range hashes {
		if candidate == h {
			p.bySender[sender] = append(hashes[:i], hashes[i+1:]...)
			break
		}
	}
	if len(p.bySender[sender]) == 0 {
		delete(p.bySender, sender)
	}
}

// Pending returns every transaction currently awaiting inclusion, in no
// particular order; proposer.Assembler is responsible for fee-rate
// ordering and byte/count packing (C6).
func (p *Pool) Pending() []chaintypes.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]chaintypes.Transaction, 0, len(p.pending))
	for _, tx := range p.pending {
		out = append(out, tx)
	}
	return out
}

// Len returns the number of pending transactions.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pending)
}

// FromSender returns the pending transaction count for a given sender. The
// node's network ingestion path does not consult it: transactions from
// peers are added with no per-sender limit.
func (p *Pool) FromSender(pk cryptoprim.PubKey) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.bySender[pk])
}
