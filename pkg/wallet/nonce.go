package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
)

// NonceSource reads the pending nonce of an account
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// TxRecord tracks one relayed transaction until it settles
type TxRecord struct {
	Hash      common.Hash
	Nonce     uint64
	CreatedAt time.Time
}

// NonceTracker allocates nonces for the relayer account and tracks what is in flight
type NonceTracker struct {
	mu           sync.Mutex
	current      uint64
	pending      map[uint64]*TxRecord
	byHash       map[common.Hash]uint64
	lastSync     time.Time
	syncInterval time.Duration
	now          func() time.Time
	logger       logger.Logger
}

// NewNonceTracker creates a tracker that resyncs with the chain after syncInterval
func NewNonceTracker(syncInterval time.Duration, log logger.Logger) *NonceTracker {
	if syncInterval <= 0 {
		syncInterval = 5 * time.Minute
	}
	return &NonceTracker{
		pending:      make(map[uint64]*TxRecord),
		byHash:       make(map[common.Hash]uint64),
		syncInterval: syncInterval,
		now:          time.Now,
		logger:       log,
	}
}

// Reserve allocates the next nonce, syncing with the chain when stale or when nothing is pending
func (nt *NonceTracker) Reserve(ctx context.Context, src NonceSource, address common.Address) (uint64, error) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	if nt.lastSync.IsZero() || len(nt.pending) == 0 || nt.now().Sub(nt.lastSync) > nt.syncInterval {
		nonce, err := src.PendingNonceAt(ctx, address)
		if err != nil {
			return 0, fmt.Errorf("failed to get pending nonce: %w", err)
		}
		if nonce > nt.current || len(nt.pending) == 0 {
			if nonce != nt.current {
				nt.logger.DebugWith(logger.Submit, "Updating relayer nonce: %d -> %d", nt.current, nonce)
			}
			nt.current = nonce
		}
		nt.lastSync = nt.now()
	}

	nonce := nt.current
	nt.current++
	return nonce, nil
}

// Release returns a reserved nonce that was never broadcast
func (nt *NonceTracker) Release(nonce uint64) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	if nonce+1 == nt.current {
		nt.current = nonce
	}
}

// Track records a broadcast transaction
func (nt *NonceTracker) Track(hash common.Hash, nonce uint64) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	nt.pending[nonce] = &TxRecord{
		Hash:      hash,
		Nonce:     nonce,
		CreatedAt: nt.now(),
	}
	nt.byHash[hash] = nonce
	nt.logger.DebugWith(logger.Submit, "Tracking relayed transaction with nonce %d: %s", nonce, hash.Hex())
}

// Lookup returns the record of a transaction still pending
func (nt *NonceTracker) Lookup(hash common.Hash) (TxRecord, bool) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	nonce, ok := nt.byHash[hash]
	if !ok {
		return TxRecord{}, false
	}
	return *nt.pending[nonce], true
}

// MarkConfirmed removes a mined transaction from the pending set
func (nt *NonceTracker) MarkConfirmed(hash common.Hash) bool {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	nonce, ok := nt.byHash[hash]
	if !ok {
		return false
	}
	delete(nt.byHash, hash)
	delete(nt.pending, nonce)
	return true
}

// MarkFailed drops a transaction that will not be mined. If it held the lowest pending
// nonce and nothing above it is pending, the nonce is handed out again.
func (nt *NonceTracker) MarkFailed(hash common.Hash) (uint64, bool) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	nonce, ok := nt.byHash[hash]
	if !ok {
		return 0, false
	}
	delete(nt.byHash, hash)
	delete(nt.pending, nonce)

	if len(nt.pending) == 0 && nonce+1 == nt.current {
		nt.current = nonce
		nt.logger.DebugWith(logger.Submit, "Reusing nonce %d after failed transaction", nonce)
		return nonce, true
	}
	return 0, false
}

// PendingCount returns the number of in-flight transactions
func (nt *NonceTracker) PendingCount() int {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	return len(nt.pending)
}
