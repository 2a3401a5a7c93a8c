package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptogift-wallets/giftclaim/pkg/models"
	"github.com/cryptogift-wallets/giftclaim/pkg/wallet"
)

// SendStep scripts the result of one SignAndSend call
type SendStep struct {
	Hash  common.Hash
	Err   error
	Delay time.Duration
	// Hang blocks until the context is done
	Hang bool
}

// MockWallet is a scripted wallet.Handle
type MockWallet struct {
	Account   common.Address
	SignErr   error
	Steps     []SendStep
	WatchOK   bool
	WatchErr  error
	Endpoint  string
	Settled   map[common.Hash]models.ConfirmationStatus
	// Dropped lists the transactions Reconcile reports as dropped
	Dropped   map[common.Hash]bool
	mu        sync.Mutex
	sends     int
	watches   []models.AssetSpec
	sentSpecs []wallet.TransactionSpec
}

var (
	_ wallet.Handle           = (*MockWallet)(nil)
	_ wallet.EndpointReporter = (*MockWallet)(nil)
	_ wallet.Settler          = (*MockWallet)(nil)
	_ wallet.Reconciler       = (*MockWallet)(nil)
)

// NewMockWallet creates a wallet that plays back steps in order
func NewMockWallet(steps ...SendStep) *MockWallet {
	return &MockWallet{
		Account:  common.HexToAddress("0x00000000000000000000000000000000000000c1"),
		Steps:    steps,
		WatchOK:  true,
		Endpoint: "mock-rpc",
		Settled:  make(map[common.Hash]models.ConfirmationStatus),
	}
}

// Address returns the scripted account
func (m *MockWallet) Address() common.Address {
	return m.Account
}

// CanSign returns SignErr
func (m *MockWallet) CanSign(ctx context.Context) error {
	return m.SignErr
}

// SignAndSend plays the next step; extra calls repeat the last step
func (m *MockWallet) SignAndSend(ctx context.Context, tx wallet.TransactionSpec) (common.Hash, error) {
	m.mu.Lock()
	idx := m.sends
	m.sends++
	m.sentSpecs = append(m.sentSpecs, tx)
	var step SendStep
	if len(m.Steps) > 0 {
		if idx >= len(m.Steps) {
			idx = len(m.Steps) - 1
		}
		step = m.Steps[idx]
	}
	m.mu.Unlock()

	if step.Hang {
		<-ctx.Done()
		return common.Hash{}, ctx.Err()
	}
	if step.Delay > 0 {
		select {
		case <-time.After(step.Delay):
		case <-ctx.Done():
			return common.Hash{}, ctx.Err()
		}
	}
	return step.Hash, step.Err
}

// WatchAsset records the request and returns WatchOK, WatchErr
func (m *MockWallet) WatchAsset(ctx context.Context, asset models.AssetSpec) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watches = append(m.watches, asset)
	return m.WatchOK, m.WatchErr
}

// LastEndpoint returns Endpoint
func (m *MockWallet) LastEndpoint() string {
	return m.Endpoint
}

// Settle records the settled status
func (m *MockWallet) Settle(hash common.Hash, status models.ConfirmationStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Settled[hash] = status
}

// Reconcile reports whether hash is in Dropped
func (m *MockWallet) Reconcile(ctx context.Context, hash common.Hash) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Dropped[hash], nil
}

// SendCount returns how many times SignAndSend was called
func (m *MockWallet) SendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sends
}

// SentSpecs returns every transaction passed to SignAndSend
func (m *MockWallet) SentSpecs() []wallet.TransactionSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]wallet.TransactionSpec(nil), m.sentSpecs...)
}

// Watches returns every asset passed to WatchAsset
func (m *MockWallet) Watches() []models.AssetSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AssetSpec(nil), m.watches...)
}
