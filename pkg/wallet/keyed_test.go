package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
	"github.com/cryptogift-wallets/giftclaim/pkg/models"
	"github.com/cryptogift-wallets/giftclaim/pkg/transport"
)

type fakeClient struct {
	chainID     int64
	nonce       uint64
	gasPrice    int64
	estimate    uint64
	estimateErr error
	sendErr     error
	sent        []*types.Transaction
	// known lists the transactions the node still has
	known     map[common.Hash]bool
	byHashErr error
}

func (f *fakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func (f *fakeClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if f.byHashErr != nil {
		return nil, false, f.byHashErr
	}
	if pending, ok := f.known[hash]; ok {
		return types.NewTx(&types.LegacyTx{}), pending, nil
	}
	return nil, false, ethereum.NotFound
}

func (f *fakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return f.sendErr
}

func (f *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(f.gasPrice), nil
}

func (f *fakeClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return f.estimate, f.estimateErr
}

func (f *fakeClient) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(f.chainID), nil
}

func (f *fakeClient) BlockNumber(ctx context.Context) (uint64, error) {
	return 1, nil
}

type fakeRouter struct {
	endpoint *transport.Endpoint
	records  []error
}

func (r *fakeRouter) Primary() *transport.Endpoint {
	return r.endpoint
}

func (r *fakeRouter) Record(endpointID string, err error) transport.Classification {
	r.records = append(r.records, err)
	if err == nil {
		return transport.Classification{}
	}
	return transport.Classify(err)
}

func newTestWallet(t *testing.T, client *fakeClient) (*KeyedWallet, *NonceTracker) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	nonces := NewNonceTracker(time.Minute, &logger.EmptyLogger{})
	router := &fakeRouter{endpoint: &transport.Endpoint{ID: "rpc-0", Client: client}}
	w, err := NewKeyedWallet(hexutil.Encode(crypto.FromECDSA(key)), 84532, 1.5, router, nonces, &logger.EmptyLogger{})
	require.NoError(t, err)
	return w, nonces
}

func TestNewKeyedWalletRejectsBadKey(t *testing.T) {
	_, err := NewKeyedWallet("not-a-key", 1, 1.1, &fakeRouter{}, NewNonceTracker(0, &logger.EmptyLogger{}), &logger.EmptyLogger{})
	assert.Error(t, err)
}

func TestKeyedWalletCanSign(t *testing.T) {
	w, _ := newTestWallet(t, &fakeClient{chainID: 84532})
	assert.NoError(t, w.CanSign(context.Background()))

	w, _ = newTestWallet(t, &fakeClient{chainID: 1})
	err := w.CanSign(context.Background())
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, transport.CodeChainDisconnected, pe.Code)
}

func TestKeyedWalletSignAndSend(t *testing.T) {
	client := &fakeClient{chainID: 84532, nonce: 7, gasPrice: 1000, estimate: 100000}
	w, nonces := newTestWallet(t, client)

	to := common.HexToAddress("0x00000000000000000000000000000000000000e5")
	hash, err := w.SignAndSend(context.Background(), TransactionSpec{To: to, Data: []byte{0xde, 0xad}})
	require.NoError(t, err)
	require.Len(t, client.sent, 1)

	tx := client.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, int64(1500), tx.GasPrice().Int64())
	assert.Equal(t, uint64(150000), tx.Gas())
	assert.Equal(t, to, *tx.To())
	assert.Equal(t, "rpc-0", w.LastEndpoint())
	assert.Equal(t, 1, nonces.PendingCount())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(84532)), tx)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), sender)

	w.Settle(hash, models.ConfirmationSuccess)
	assert.Equal(t, 0, nonces.PendingCount())
}

func TestKeyedWalletSimulationRevert(t *testing.T) {
	client := &fakeClient{chainID: 84532, gasPrice: 1, estimateErr: errors.New("execution reverted: invalid password")}
	w, _ := newTestWallet(t, client)

	_, err := w.SignAndSend(context.Background(), TransactionSpec{To: common.HexToAddress("0x01")})
	require.ErrorIs(t, err, transport.ErrRejectedBeforeSend)
	assert.Empty(t, client.sent)
	assert.Equal(t, transport.KindFatal, transport.Classify(err).Kind)
}

func TestKeyedWalletSendFailureReleasesNonce(t *testing.T) {
	client := &fakeClient{chainID: 84532, nonce: 3, gasPrice: 1, estimate: 21000, sendErr: errors.New("insufficient funds for gas * price + value")}
	w, nonces := newTestWallet(t, client)

	_, err := w.SignAndSend(context.Background(), TransactionSpec{To: common.HexToAddress("0x01")})
	require.Error(t, err)
	assert.Equal(t, 0, nonces.PendingCount())

	client.sendErr = nil
	_, err = w.SignAndSend(context.Background(), TransactionSpec{To: common.HexToAddress("0x01")})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), client.sent[1].Nonce(), "released nonce is reused")
}

func TestKeyedWalletAmbiguousSendKeepsNonce(t *testing.T) {
	client := &fakeClient{chainID: 84532, nonce: 3, gasPrice: 1, estimate: 21000, sendErr: errors.New("already known")}
	w, nonces := newTestWallet(t, client)

	_, err := w.SignAndSend(context.Background(), TransactionSpec{To: common.HexToAddress("0x01")})
	require.Error(t, err)
	assert.Equal(t, 1, nonces.PendingCount())
}

func TestKeyedWalletWatchAssetUnsupported(t *testing.T) {
	w, _ := newTestWallet(t, &fakeClient{chainID: 84532})

	ok, err := w.WatchAsset(context.Background(), models.AssetSpec{Type: "ERC721"})
	assert.False(t, ok)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, transport.CodeUnsupportedMethod, pe.Code)
}

func TestKeyedWalletReconcileDropped(t *testing.T) {
	client := &fakeClient{chainID: 84532, nonce: 5, gasPrice: 1, estimate: 21000}
	w, nonces := newTestWallet(t, client)
	nonces.now = func() time.Time { return time.Now().Add(-2 * DropGrace) }

	hash, err := w.SignAndSend(context.Background(), TransactionSpec{To: common.HexToAddress("0x01")})
	require.NoError(t, err)

	dropped, err := w.Reconcile(context.Background(), hash)
	require.NoError(t, err)
	assert.True(t, dropped)
	assert.Equal(t, 0, nonces.PendingCount())

	_, err = w.SignAndSend(context.Background(), TransactionSpec{To: common.HexToAddress("0x01")})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), client.sent[1].Nonce(), "dropped nonce is reused")
}

func TestKeyedWalletReconcileKeepsLiveTransactions(t *testing.T) {
	client := &fakeClient{chainID: 84532, nonce: 5, gasPrice: 1, estimate: 21000}
	w, nonces := newTestWallet(t, client)
	nonces.now = func() time.Time { return time.Now().Add(-2 * DropGrace) }

	hash, err := w.SignAndSend(context.Background(), TransactionSpec{To: common.HexToAddress("0x01")})
	require.NoError(t, err)
	client.known = map[common.Hash]bool{hash: true}

	dropped, err := w.Reconcile(context.Background(), hash)
	require.NoError(t, err)
	assert.False(t, dropped)
	assert.Equal(t, 1, nonces.PendingCount())

	client.known = nil
	client.byHashErr = errors.New("connection refused")
	dropped, err = w.Reconcile(context.Background(), hash)
	assert.Error(t, err)
	assert.False(t, dropped, "a failed lookup never counts as dropped")
	assert.Equal(t, 1, nonces.PendingCount())
}

func TestKeyedWalletReconcileIgnoresFreshAndForeignTransactions(t *testing.T) {
	client := &fakeClient{chainID: 84532, nonce: 5, gasPrice: 1, estimate: 21000}
	w, nonces := newTestWallet(t, client)

	hash, err := w.SignAndSend(context.Background(), TransactionSpec{To: common.HexToAddress("0x01")})
	require.NoError(t, err)

	dropped, err := w.Reconcile(context.Background(), hash)
	require.NoError(t, err)
	assert.False(t, dropped, "a just-sent transaction may not have propagated yet")

	dropped, err = w.Reconcile(context.Background(), common.HexToHash("0xf00"))
	require.NoError(t, err)
	assert.False(t, dropped)
	assert.Equal(t, 1, nonces.PendingCount())
}
