package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
	"github.com/cryptogift-wallets/giftclaim/pkg/models"
	"github.com/cryptogift-wallets/giftclaim/pkg/transport"
)

// Router chooses the RPC endpoint used for a broadcast and receives the result
type Router interface {
	Primary() *transport.Endpoint
	Record(endpointID string, err error) transport.Classification
}

// KeyedWallet relays claims with a server-held key
type KeyedWallet struct {
	key           *ecdsa.PrivateKey
	address       common.Address
	chainID       *big.Int
	gasMultiplier float64
	router        Router
	nonces        *NonceTracker
	logger        logger.Logger

	mu           sync.Mutex
	lastEndpoint string
}

var (
	_ Handle           = (*KeyedWallet)(nil)
	_ EndpointReporter = (*KeyedWallet)(nil)
	_ Settler          = (*KeyedWallet)(nil)
	_ Reconciler       = (*KeyedWallet)(nil)
)

// DropGrace is how long a relayed transaction may be unknown to the node before it counts as dropped
const DropGrace = time.Minute

// NewKeyedWallet creates a relayer from a hex private key
func NewKeyedWallet(privateKeyHex string, chainID int64, gasMultiplier float64, router Router, nonces *NonceTracker, log logger.Logger) (*KeyedWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %v", err)
	}
	if gasMultiplier <= 0 {
		gasMultiplier = 1.1
	}
	return &KeyedWallet{
		key:           key,
		address:       crypto.PubkeyToAddress(key.PublicKey),
		chainID:       big.NewInt(chainID),
		gasMultiplier: gasMultiplier,
		router:        router,
		nonces:        nonces,
		logger:        log,
	}, nil
}

// Address returns the relayer account
func (w *KeyedWallet) Address() common.Address {
	return w.address
}

// CanSign checks that the primary endpoint serves the configured chain
func (w *KeyedWallet) CanSign(ctx context.Context) error {
	ep := w.router.Primary()
	chainID, err := ep.Client.ChainID(ctx)
	w.router.Record(ep.ID, err)
	if err != nil {
		return fmt.Errorf("failed to get chain ID: %w", err)
	}
	if chainID.Cmp(w.chainID) != 0 {
		return &ProviderError{
			Code:    transport.CodeChainDisconnected,
			Message: fmt.Sprintf("endpoint %s serves chain %s, expected %s", ep.ID, chainID, w.chainID),
		}
	}
	return nil
}

// SignAndSend builds a legacy transaction with a buffered gas price, signs it and broadcasts
// it through the primary endpoint only. Sends never fail over.
func (w *KeyedWallet) SignAndSend(ctx context.Context, spec TransactionSpec) (common.Hash, error) {
	ep := w.router.Primary()
	w.mu.Lock()
	w.lastEndpoint = ep.ID
	w.mu.Unlock()

	gasPrice, err := ep.Client.SuggestGasPrice(ctx)
	w.router.Record(ep.ID, err)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}
	gasPrice = w.applyMultiplier(gasPrice)

	value := spec.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit := spec.GasLimit
	if gasLimit == 0 {
		to := spec.To
		estimate, err := ep.Client.EstimateGas(ctx, ethereum.CallMsg{
			From:  w.address,
			To:    &to,
			Value: value,
			Data:  spec.Data,
		})
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "execution reverted") {
				w.router.Record(ep.ID, nil)
				return common.Hash{}, fmt.Errorf("%w: %v", transport.ErrRejectedBeforeSend, err)
			}
			w.router.Record(ep.ID, err)
			return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
		}
		w.router.Record(ep.ID, nil)
		gasLimit = w.applyMultiplier(new(big.Int).SetUint64(estimate)).Uint64()
	}

	nonce, err := w.nonces.Reserve(ctx, ep.Client, w.address)
	if err != nil {
		w.router.Record(ep.ID, err)
		return common.Hash{}, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &spec.To,
		Value:    value,
		Data:     spec.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		w.nonces.Release(nonce)
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %v", err)
	}

	err = ep.Client.SendTransaction(ctx, signed)
	class := w.router.Record(ep.ID, err)
	if err != nil {
		switch class.Kind {
		case transport.KindFatal, transport.KindRetryable:
			// the node refused it; the nonce is free again
			w.nonces.Release(nonce)
		default:
			w.nonces.Track(signed.Hash(), nonce)
		}
		return common.Hash{}, err
	}

	w.nonces.Track(signed.Hash(), nonce)
	w.logger.DebugWith(logger.Submit, "Relayed transaction %s with nonce %d via %s (gas price %s wei)",
		signed.Hash().Hex(), nonce, ep.ID, gasPrice.String())
	return signed.Hash(), nil
}

// WatchAsset is not available to a server-side relayer; the caller hands the asset to the user's wallet
func (w *KeyedWallet) WatchAsset(ctx context.Context, asset models.AssetSpec) (bool, error) {
	return false, &ProviderError{
		Code:    transport.CodeUnsupportedMethod,
		Message: "wallet_watchAsset is not supported by the relayer",
	}
}

// LastEndpoint returns the endpoint used by the most recent broadcast
func (w *KeyedWallet) LastEndpoint() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastEndpoint
}

// Settle releases the nonce bookkeeping of a transaction once its outcome is known
func (w *KeyedWallet) Settle(hash common.Hash, status models.ConfirmationStatus) {
	switch status {
	case models.ConfirmationSuccess:
		w.nonces.MarkConfirmed(hash)
	case models.ConfirmationReverted:
		// a reverted transaction still consumed its nonce
		w.nonces.MarkConfirmed(hash)
	}
}

// Reconcile asks the primary endpoint whether a still-pending relayed transaction exists.
// Only transactions this relayer sent, and that are older than DropGrace, can be dropped.
// A dropped transaction gives its nonce back.
func (w *KeyedWallet) Reconcile(ctx context.Context, hash common.Hash) (bool, error) {
	record, ok := w.nonces.Lookup(hash)
	if !ok || time.Since(record.CreatedAt) < DropGrace {
		return false, nil
	}

	ep := w.router.Primary()
	_, _, err := ep.Client.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		w.router.Record(ep.ID, nil)
		if nonce, reused := w.nonces.MarkFailed(hash); reused {
			w.logger.NoticeWith(logger.Submit, "Transaction %s was dropped, nonce %d is free again", hash.Hex(), nonce)
		} else {
			w.logger.NoticeWith(logger.Submit, "Transaction %s was dropped", hash.Hex())
		}
		return true, nil
	}
	w.router.Record(ep.ID, err)
	if err != nil {
		return false, fmt.Errorf("failed to look up transaction: %w", err)
	}
	return false, nil
}

func (w *KeyedWallet) applyMultiplier(v *big.Int) *big.Int {
	multiplied := new(big.Float).Mul(new(big.Float).SetInt(v), big.NewFloat(w.gasMultiplier))
	out := new(big.Int)
	multiplied.Int(out)
	return out
}
