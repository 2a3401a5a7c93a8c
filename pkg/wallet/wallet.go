// Package wallet defines the signing capability used to submit claims and the
// relayer implementation backed by a local key.
package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/cryptogift-wallets/giftclaim/pkg/models"
)

// TransactionSpec describes a contract call to sign and broadcast
type TransactionSpec struct {
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *big.Int       `json:"value,omitempty"`
	// GasLimit overrides estimation when non-zero
	GasLimit uint64 `json:"gasLimit,omitempty"`
}

// Handle is the capability to sign and broadcast for one account.
// A handle is owned by one claim at a time; implementations need not be safe for concurrent use.
type Handle interface {
	// Address is the account that signs
	Address() common.Address
	// CanSign reports whether the handle is connected to the expected chain and able to sign
	CanSign(ctx context.Context) error
	// SignAndSend signs and broadcasts the transaction, returning its hash
	SignAndSend(ctx context.Context, tx TransactionSpec) (common.Hash, error)
	// WatchAsset asks the wallet to display an NFT; true means the wallet accepted it
	WatchAsset(ctx context.Context, asset models.AssetSpec) (bool, error)
}

// EndpointReporter is implemented by handles that broadcast through a known RPC endpoint
type EndpointReporter interface {
	LastEndpoint() string
}

// Settler is implemented by handles that track their own pending transactions
type Settler interface {
	Settle(hash common.Hash, status models.ConfirmationStatus)
}

// Reconciler is implemented by handles that can tell a transaction the node dropped
// from one that is merely slow. Dropped transactions will never be mined.
type Reconciler interface {
	Reconcile(ctx context.Context, hash common.Hash) (dropped bool, err error)
}

// ProviderError is an EIP-1193 style error returned by a wallet
type ProviderError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode implements rpc.Error
func (e *ProviderError) ErrorCode() int {
	return e.Code
}

// ErrorData implements rpc.DataError
func (e *ProviderError) ErrorData() interface{} {
	return e.Data
}
