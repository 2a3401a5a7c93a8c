package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
)

type staticNonce struct {
	nonce uint64
	calls int
}

func (s *staticNonce) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	s.calls++
	return s.nonce, nil
}

func TestNonceTrackerReserveSequential(t *testing.T) {
	nt := NewNonceTracker(time.Minute, &logger.EmptyLogger{})
	src := &staticNonce{nonce: 10}
	addr := common.HexToAddress("0x01")

	n, err := nt.Reserve(context.Background(), src, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), n)
	nt.Track(common.HexToHash("0xa"), n)

	// chain still reports 10 while our transaction is pending
	n, err = nt.Reserve(context.Background(), src, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), n)
	assert.Equal(t, 1, src.calls, "no resync while pending and fresh")
}

func TestNonceTrackerResyncWhenIdle(t *testing.T) {
	nt := NewNonceTracker(time.Minute, &logger.EmptyLogger{})
	src := &staticNonce{nonce: 4}
	addr := common.HexToAddress("0x01")

	n, _ := nt.Reserve(context.Background(), src, addr)
	nt.Track(common.HexToHash("0xa"), n)
	nt.MarkConfirmed(common.HexToHash("0xa"))

	src.nonce = 5
	n, err := nt.Reserve(context.Background(), src, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)
}

func TestNonceTrackerMarkFailedReusesLowest(t *testing.T) {
	nt := NewNonceTracker(time.Minute, &logger.EmptyLogger{})
	src := &staticNonce{nonce: 1}
	addr := common.HexToAddress("0x01")

	n, _ := nt.Reserve(context.Background(), src, addr)
	nt.Track(common.HexToHash("0xa"), n)

	reused, ok := nt.MarkFailed(common.HexToHash("0xa"))
	assert.True(t, ok)
	assert.Equal(t, uint64(1), reused)

	_, ok = nt.MarkFailed(common.HexToHash("0xb"))
	assert.False(t, ok)
}

func TestNonceTrackerRelease(t *testing.T) {
	nt := NewNonceTracker(time.Minute, &logger.EmptyLogger{})
	src := &staticNonce{nonce: 2}
	addr := common.HexToAddress("0x01")

	first, _ := nt.Reserve(context.Background(), src, addr)
	nt.Track(common.HexToHash("0xa"), first)
	second, _ := nt.Reserve(context.Background(), src, addr)
	nt.Release(second)

	third, _ := nt.Reserve(context.Background(), src, addr)
	assert.Equal(t, second, third)
}
