// Package confirm waits for claim transactions to reach finality.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/cryptogift-wallets/giftclaim/pkg/device"
	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
	"github.com/cryptogift-wallets/giftclaim/pkg/metrics"
	"github.com/cryptogift-wallets/giftclaim/pkg/models"
)

var errPollTimeout = errors.New("polling timed out")

// ReceiptSource fetches transaction receipts; ethereum.NotFound means not mined yet
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Waiter waits for receipts with profile-dependent timeouts
type Waiter struct {
	receipts ReceiptSource
	timings  device.TimingSet
	logger   logger.Logger
}

// NewWaiter creates a confirmation waiter
func NewWaiter(receipts ReceiptSource, timings device.TimingSet, log logger.Logger) *Waiter {
	return &Waiter{
		receipts: receipts,
		timings:  timings,
		logger:   log,
	}
}

// AwaitConfirmation polls for the receipt until it is found or the profile timeout expires.
// It never returns an error: a timeout or cancellation yields status Unknown.
func (w *Waiter) AwaitConfirmation(ctx context.Context, hash common.Hash, profile device.Profile) models.ConfirmationRecord {
	t := w.timings.For(profile)
	record := models.ConfirmationRecord{TransactionHash: hash, Status: models.ConfirmationUnknown}

	var receipt *types.Receipt
	err := pollWithBackoff(ctx, t.ConfirmTimeout, t.ConfirmPollInterval, func(ctx context.Context) (bool, error) {
		r, err := w.receipts.TransactionReceipt(ctx, hash)
		if err != nil {
			if !errors.Is(err, ethereum.NotFound) {
				w.logger.DebugWith(logger.Confirm, "Receipt lookup for %s failed, will retry: %v", hash.Hex(), err)
			}
			return false, nil
		}
		receipt = r
		return r != nil, nil
	})

	if err != nil || receipt == nil {
		w.logger.NoticeWith(logger.Confirm, "No receipt for %s within %v; status unknown", hash.Hex(), t.ConfirmTimeout)
		metrics.ConfirmationResults.WithLabelValues(string(record.Status)).Inc()
		return record
	}

	record = recordFromReceipt(hash, receipt)
	metrics.ConfirmationResults.WithLabelValues(string(record.Status)).Inc()
	if record.Status == models.ConfirmationReverted {
		w.logger.ErrorWith(logger.Confirm, "Transaction %s reverted in block %d", hash.Hex(), *record.BlockNumber)
	} else {
		w.logger.InfoWith(logger.Confirm, "Transaction %s confirmed in block %d", hash.Hex(), *record.BlockNumber)
	}
	return record
}

// CheckStatus looks the receipt up once. A missing receipt yields status Pending.
func (w *Waiter) CheckStatus(ctx context.Context, hash common.Hash) (models.ConfirmationRecord, error) {
	receipt, err := w.receipts.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) || (err == nil && receipt == nil) {
		return models.ConfirmationRecord{TransactionHash: hash, Status: models.ConfirmationPending}, nil
	}
	if err != nil {
		return models.ConfirmationRecord{TransactionHash: hash, Status: models.ConfirmationUnknown}, fmt.Errorf("failed to get receipt: %w", err)
	}
	return recordFromReceipt(hash, receipt), nil
}

func recordFromReceipt(hash common.Hash, receipt *types.Receipt) models.ConfirmationRecord {
	record := models.ConfirmationRecord{
		TransactionHash: hash,
		Status:          models.ConfirmationSuccess,
		GasUsed:         receipt.GasUsed,
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		record.Status = models.ConfirmationReverted
	}
	if receipt.BlockNumber != nil {
		n := receipt.BlockNumber.Uint64()
		record.BlockNumber = &n
	} else {
		var zero uint64
		record.BlockNumber = &zero
	}
	if receipt.BlockHash != (common.Hash{}) {
		bh := receipt.BlockHash
		record.BlockHash = &bh
	}
	return record
}

// pollWithBackoff calls pollFunc until it reports done, returns an error, or timeout elapses.
// The interval doubles after each poll, up to 8 times the initial interval.
func pollWithBackoff(ctx context.Context, timeout, initialInterval time.Duration, pollFunc func(ctx context.Context) (bool, error)) error {
	const backoffMultiplier = 2
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxWait := initialInterval * 8
	wait := initialInterval
	nextPoll := time.NewTimer(0)
	defer nextPoll.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w after %s", errPollTimeout, timeout)
		case <-nextPoll.C:
			done, err := pollFunc(ctx)
			if done || err != nil {
				return err
			}
			nextPoll.Reset(wait)
			wait = wait * backoffMultiplier
			if wait > maxWait {
				wait = maxWait
			}
		}
	}
}
