package confirm

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptogift-wallets/giftclaim/pkg/device"
	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
	"github.com/cryptogift-wallets/giftclaim/pkg/models"
)

// fakeReceipts returns NotFound until the given call, then the receipt
type fakeReceipts struct {
	mu       sync.Mutex
	readyAt  int
	receipt  *types.Receipt
	err      error
	requests int
}

func (f *fakeReceipts) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	if f.err != nil {
		return nil, f.err
	}
	if f.receipt == nil || f.requests < f.readyAt {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func testTimings() device.TimingSet {
	t := device.Timings{
		ConfirmTimeout:      60 * time.Millisecond,
		ConfirmPollInterval: 2 * time.Millisecond,
	}
	c := t
	c.ConfirmTimeout = 120 * time.Millisecond
	return device.TimingSet{Standard: t, Constrained: c}
}

func testReceipt(status uint64) *types.Receipt {
	return &types.Receipt{
		Status:      status,
		BlockNumber: big.NewInt(1234),
		BlockHash:   common.HexToHash("0xb10c"),
		GasUsed:     90000,
	}
}

func TestAwaitConfirmationSuccess(t *testing.T) {
	src := &fakeReceipts{readyAt: 3, receipt: testReceipt(types.ReceiptStatusSuccessful)}
	w := NewWaiter(src, testTimings(), &logger.EmptyLogger{})

	hash := common.HexToHash("0xabc")
	rec := w.AwaitConfirmation(context.Background(), hash, device.Standard)

	assert.Equal(t, models.ConfirmationSuccess, rec.Status)
	assert.Equal(t, hash, rec.TransactionHash)
	require.NotNil(t, rec.BlockNumber)
	assert.Equal(t, uint64(1234), *rec.BlockNumber)
	require.NotNil(t, rec.BlockHash)
	assert.Equal(t, common.HexToHash("0xb10c"), *rec.BlockHash)
	assert.Equal(t, uint64(90000), rec.GasUsed)
	assert.Equal(t, 3, src.requests)
}

func TestAwaitConfirmationReverted(t *testing.T) {
	src := &fakeReceipts{readyAt: 1, receipt: testReceipt(types.ReceiptStatusFailed)}
	w := NewWaiter(src, testTimings(), &logger.EmptyLogger{})

	rec := w.AwaitConfirmation(context.Background(), common.HexToHash("0xabc"), device.Standard)
	assert.Equal(t, models.ConfirmationReverted, rec.Status)
}

func TestAwaitConfirmationTimeoutIsUnknown(t *testing.T) {
	src := &fakeReceipts{}
	w := NewWaiter(src, testTimings(), &logger.EmptyLogger{})

	start := time.Now()
	rec := w.AwaitConfirmation(context.Background(), common.HexToHash("0xabc"), device.Standard)

	assert.Equal(t, models.ConfirmationUnknown, rec.Status)
	assert.Nil(t, rec.BlockNumber)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestAwaitConfirmationConstrainedWaitsLonger(t *testing.T) {
	src := &fakeReceipts{}
	w := NewWaiter(src, testTimings(), &logger.EmptyLogger{})

	start := time.Now()
	rec := w.AwaitConfirmation(context.Background(), common.HexToHash("0xabc"), device.Constrained)

	assert.Equal(t, models.ConfirmationUnknown, rec.Status)
	assert.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)
}

func TestAwaitConfirmationTransientErrors(t *testing.T) {
	src := &fakeReceipts{err: errors.New("connection refused")}
	w := NewWaiter(src, testTimings(), &logger.EmptyLogger{})

	rec := w.AwaitConfirmation(context.Background(), common.HexToHash("0xabc"), device.Standard)
	assert.Equal(t, models.ConfirmationUnknown, rec.Status)
	assert.Greater(t, src.requests, 1, "errors are retried until the timeout")
}

func TestAwaitConfirmationCanceled(t *testing.T) {
	src := &fakeReceipts{}
	w := NewWaiter(src, testTimings(), &logger.EmptyLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := w.AwaitConfirmation(ctx, common.HexToHash("0xabc"), device.Standard)
	assert.Equal(t, models.ConfirmationUnknown, rec.Status)
}

func TestCheckStatus(t *testing.T) {
	hash := common.HexToHash("0xabc")

	pending := NewWaiter(&fakeReceipts{}, testTimings(), &logger.EmptyLogger{})
	rec, err := pending.CheckStatus(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmationPending, rec.Status)

	mined := NewWaiter(&fakeReceipts{readyAt: 1, receipt: testReceipt(types.ReceiptStatusSuccessful)}, testTimings(), &logger.EmptyLogger{})
	rec, err = mined.CheckStatus(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmationSuccess, rec.Status)

	broken := NewWaiter(&fakeReceipts{err: errors.New("bad gateway")}, testTimings(), &logger.EmptyLogger{})
	rec, err = broken.CheckStatus(context.Background(), hash)
	assert.Error(t, err)
	assert.Equal(t, models.ConfirmationUnknown, rec.Status)
}

func TestPollWithBackoff(t *testing.T) {
	var pollTimes []time.Time
	start := time.Now()

	err := pollWithBackoff(context.Background(), time.Second, 10*time.Millisecond, func(ctx context.Context) (bool, error) {
		pollTimes = append(pollTimes, time.Now())
		return len(pollTimes) == 4, nil
	})
	require.NoError(t, err)
	require.Len(t, pollTimes, 4)

	var offsets []float64
	for _, p := range pollTimes[1:] {
		offsets = append(offsets, float64(p.Sub(start).Milliseconds()))
	}
	// polls at 0, 10, 30, 70ms
	require.InEpsilonSlice(t, []float64{10, 30, 70}, offsets, 0.5)
}

func TestPollWithBackoffTimeout(t *testing.T) {
	err := pollWithBackoff(context.Background(), 20*time.Millisecond, 5*time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, errPollTimeout)
}

func TestPollWithBackoffError(t *testing.T) {
	boom := errors.New("boom")
	err := pollWithBackoff(context.Background(), time.Second, time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}
