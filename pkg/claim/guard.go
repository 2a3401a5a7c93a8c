package claim

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/semaphore"
)

// ErrClaimInFlight is returned when a submission chain is already running for the asset
var ErrClaimInFlight = errors.New("a claim for this gift is already in progress")

// inFlightGuard allows one submission chain per asset
type inFlightGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newInFlightGuard() *inFlightGuard {
	return &inFlightGuard{active: make(map[string]struct{})}
}

// acquire marks the asset busy and returns the release func
func (g *inFlightGuard) acquire(assetID string) (func(), error) {
	key := strings.TrimSpace(assetID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[key]; busy {
		return nil, ErrClaimInFlight
	}
	g.active[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, key)
			g.mu.Unlock()
		})
	}, nil
}

func (g *inFlightGuard) busy(assetID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[strings.TrimSpace(assetID)]
	return ok
}

// walletOwners hands out exclusive use of a wallet handle, keyed by its address
type walletOwners struct {
	mu    sync.Mutex
	locks map[common.Address]*semaphore.Weighted
}

func newWalletOwners() *walletOwners {
	return &walletOwners{locks: make(map[common.Address]*semaphore.Weighted)}
}

// own blocks until the wallet is free or ctx is done
func (w *walletOwners) own(ctx context.Context, addr common.Address) (func(), error) {
	w.mu.Lock()
	sem, ok := w.locks[addr]
	if !ok {
		sem = semaphore.NewWeighted(1)
		w.locks[addr] = sem
	}
	w.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}
