// Package postclaim runs the best-effort work that follows a confirmed claim: pushing
// metadata to the backend and asking the wallet to display the asset. Nothing here can fail
// a claim.
package postclaim

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptogift-wallets/giftclaim/pkg/backend"
	"github.com/cryptogift-wallets/giftclaim/pkg/device"
	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
	"github.com/cryptogift-wallets/giftclaim/pkg/metrics"
	"github.com/cryptogift-wallets/giftclaim/pkg/models"
)

// DefaultSyncAttempts is the sync attempt ceiling
const DefaultSyncAttempts = 3

const resolveTimeout = 5 * time.Second

// MetadataResolver returns the display metadata of a token
type MetadataResolver interface {
	ResolveMetadata(ctx context.Context, contract common.Address, tokenID string) (*models.DisplayMetadata, error)
}

// MetadataBackend resolves and updates metadata
type MetadataBackend interface {
	MetadataResolver
	SyncMetadata(ctx context.Context, req backend.SyncRequest) error
}

// SyncInput identifies the claimed asset
type SyncInput struct {
	Asset           models.AssetInfo
	ClaimantAddress common.Address
	TransactionHash common.Hash
	Profile         device.Profile
}

// SyncReport is what the synchronizer did
type SyncReport struct {
	Attempts  []models.SyncAttempt
	Succeeded bool
	// Warning is set when every attempt failed
	Warning string
}

// Synchronizer pushes post-claim metadata with linear backoff
type Synchronizer struct {
	backend     MetadataBackend
	timings     device.TimingSet
	maxAttempts int
	logger      logger.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewSynchronizer creates a synchronizer
func NewSynchronizer(b MetadataBackend, timings device.TimingSet, maxAttempts int, log logger.Logger) *Synchronizer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultSyncAttempts
	}
	return &Synchronizer{
		backend:     b,
		timings:     timings,
		maxAttempts: maxAttempts,
		logger:      log,
		sleep:       device.Sleep,
	}
}

// Sync tries up to the attempt ceiling. Each attempt first asks the resolver for fresh display
// data and carries on without it when unavailable. Exhaustion yields a warning, never an error.
func (s *Synchronizer) Sync(ctx context.Context, in SyncInput) SyncReport {
	t := s.timings.For(in.Profile)
	var report SyncReport

	for i := 0; i < s.maxAttempts; i++ {
		display := s.resolve(ctx, in.Asset)
		err := s.backend.SyncMetadata(ctx, backend.SyncRequest{
			AssetID:         in.Asset.TokenID,
			ContractAddress: in.Asset.ContractAddress,
			ClaimantAddress: in.ClaimantAddress,
			TransactionHash: in.TransactionHash,
			DisplayData:     display,
		})

		attempt := models.SyncAttempt{AttemptIndex: i, WithDisplay: display != nil}
		if err == nil {
			attempt.Outcome = models.SyncSuccess
			report.Attempts = append(report.Attempts, attempt)
			report.Succeeded = true
			metrics.SyncAttempts.WithLabelValues(string(attempt.Outcome)).Inc()
			s.logger.InfoWith(logger.Sync, "Metadata for asset %s synced on attempt %d", in.Asset.TokenID, i+1)
			return report
		}

		attempt.Error = err.Error()
		attempt.Outcome = models.SyncRetryable
		last := i+1 >= s.maxAttempts
		if last {
			attempt.Outcome = models.SyncGiveUp
		}
		report.Attempts = append(report.Attempts, attempt)
		metrics.SyncAttempts.WithLabelValues(string(attempt.Outcome)).Inc()
		s.logger.ErrorWith(logger.Sync, "Metadata sync attempt %d for asset %s failed: %v", i+1, in.Asset.TokenID, err)
		if last {
			break
		}

		if err := s.sleep(ctx, t.SyncBackoff*time.Duration(i+1)); err != nil {
			report.Attempts[len(report.Attempts)-1].Outcome = models.SyncGiveUp
			break
		}
	}

	report.Warning = fmt.Sprintf("metadata sync gave up after %d attempts", len(report.Attempts))
	s.logger.ErrorWith(logger.Sync, "Asset %s: %s; the claim itself is unaffected", in.Asset.TokenID, report.Warning)
	return report
}

func (s *Synchronizer) resolve(ctx context.Context, asset models.AssetInfo) *models.DisplayMetadata {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	md, err := s.backend.ResolveMetadata(ctx, asset.ContractAddress, asset.TokenID)
	if err != nil {
		s.logger.DebugWith(logger.Sync, "Display data for asset %s unavailable, syncing without it: %v", asset.TokenID, err)
		return nil
	}
	return md
}
