// Package submitter sends the claim transaction through a wallet handle with a timeout race,
// adopting an already-mined transaction instead of resending whenever the outcome is unclear.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptogift-wallets/giftclaim/pkg/backend"
	"github.com/cryptogift-wallets/giftclaim/pkg/device"
	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
	"github.com/cryptogift-wallets/giftclaim/pkg/metrics"
	"github.com/cryptogift-wallets/giftclaim/pkg/models"
	"github.com/cryptogift-wallets/giftclaim/pkg/transport"
	"github.com/cryptogift-wallets/giftclaim/pkg/wallet"
)

// ErrTimedOut means the wallet did not answer before the attempt timeout
var ErrTimedOut = errors.New("wallet did not respond before the timeout")

// DefaultMaxAttempts is the submission attempt ceiling
const DefaultMaxAttempts = 3

const lookupTimeout = 10 * time.Second

// TransactionLookup is the side channel asking whether the claim transaction was already mined
type TransactionLookup interface {
	LookupRecentTransaction(ctx context.Context, q backend.RecentTransactionQuery) (*common.Hash, error)
}

// Request is everything needed to submit one claim
type Request struct {
	Claim           models.ClaimRequest
	InternalClaimID string
	Tx              wallet.TransactionSpec
	Profile         device.Profile
}

// Result is the outcome of Submit
type Result struct {
	// Attempt is the final attempt; it is Sent when the submission succeeded
	Attempt  models.TransactionAttempt
	Attempts []models.TransactionAttempt
	Reason   models.FailureReason
	Err      error
}

// Sent reports whether a transaction hash was obtained
func (r *Result) Sent() bool {
	return r.Reason == models.ReasonNone && r.Attempt.Outcome == models.AttemptSent
}

// Hash returns the sent transaction hash, nil if nothing was sent
func (r *Result) Hash() *common.Hash {
	if !r.Sent() {
		return nil
	}
	return r.Attempt.TransactionHash
}

// Submitter sends claim transactions
type Submitter struct {
	lookup      TransactionLookup
	timings     device.TimingSet
	maxAttempts int
	logger      logger.Logger
	sleep       func(ctx context.Context, d time.Duration) error
	rnd         func() float64
}

// New creates a submitter. lookup may be nil, in which case nothing is ever adopted.
func New(lookup TransactionLookup, timings device.TimingSet, maxAttempts int, log logger.Logger) *Submitter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Submitter{
		lookup:      lookup,
		timings:     timings,
		maxAttempts: maxAttempts,
		logger:      log,
		sleep:       device.Sleep,
		rnd:         rand.Float64,
	}
}

type sendResult struct {
	hash common.Hash
	err  error
}

// Submit runs the attempt chain for one claim. Attempts are strictly sequential and at most one
// of them reaches Sent. The caller owns handle for the duration of the call.
func (s *Submitter) Submit(ctx context.Context, req Request, handle wallet.Handle) *Result {
	t := s.timings.For(req.Profile)
	log := NewAttemptLog()

	if req.Profile.IsConstrained() && t.WarmupDelay > 0 {
		s.logger.DebugWith(logger.Submit, "Waiting %v for the wallet to become ready", t.WarmupDelay)
		if err := s.sleep(ctx, t.WarmupDelay); err != nil {
			return s.finish(log, models.ReasonTransportRetryable, fmt.Errorf("canceled before first attempt: %w", err))
		}
	}

	timeout := t.SubmitTimeout
	budget := s.maxAttempts
	extended := false
	retries := 0

	for i := 0; i < budget; i++ {
		id := log.Start(timeout)
		hash, late, err := s.send(ctx, handle, req.Tx, timeout)
		endpoint := endpointOf(handle)

		if err == nil {
			s.complete(log, id, Completion{EndpointID: endpoint, Outcome: models.AttemptSent, Hash: &hash})
			s.logger.InfoWith(logger.Submit, "Claim for asset %s sent on attempt %d: %s", req.Claim.AssetID, i+1, hash.Hex())
			return s.finish(log, models.ReasonNone, nil)
		}

		if ctx.Err() != nil {
			// the wallet may still have broadcast
			s.complete(log, id, Completion{EndpointID: endpoint, Outcome: models.AttemptFailed, Kind: models.ReasonAmbiguousFailure, Err: err})
			return s.finish(log, models.ReasonAmbiguousFailure, fmt.Errorf("submission abandoned: %w", ctx.Err()))
		}

		if errors.Is(err, ErrTimedOut) {
			s.logger.NoticeWith(logger.Submit, "Attempt %d for asset %s timed out after %v, checking for a mined transaction", i+1, req.Claim.AssetID, timeout)
			if found := s.adopt(ctx, req, "timeout"); found != nil {
				s.complete(log, id, Completion{EndpointID: endpoint, Outcome: models.AttemptSent, Hash: found, Adopted: true, Err: err})
				return s.finish(log, models.ReasonNone, nil)
			}
			if h, ok := s.awaitLate(ctx, late); ok {
				s.logger.InfoWith(logger.Submit, "Wallet answered late for asset %s: %s", req.Claim.AssetID, h.Hex())
				s.complete(log, id, Completion{EndpointID: endpoint, Outcome: models.AttemptSent, Hash: &h, Err: err})
				return s.finish(log, models.ReasonNone, nil)
			}
			if ctx.Err() != nil {
				s.complete(log, id, Completion{EndpointID: endpoint, Outcome: models.AttemptTimedOut, Kind: models.ReasonAmbiguousFailure, Err: err})
				return s.finish(log, models.ReasonAmbiguousFailure, fmt.Errorf("submission abandoned: %w", ctx.Err()))
			}
			s.complete(log, id, Completion{EndpointID: endpoint, Outcome: models.AttemptTimedOut, Kind: models.ReasonAmbiguousFailure, Err: err})

			if extended {
				return s.finish(log, models.ReasonAmbiguousFailure, fmt.Errorf("wallet did not respond after an extended retry: %w", err))
			}
			extended = true
			timeout = t.ExtendedSubmitTimeout
			if i+1 >= budget {
				budget++
			}
			s.logger.InfoWith(logger.Submit, "Retrying asset %s once with extended timeout %v", req.Claim.AssetID, timeout)
			continue
		}

		class := transport.Classify(err)
		switch class.Kind {
		case transport.KindAlreadySubmitted, transport.KindAmbiguous:
			s.logger.NoticeWith(logger.Submit, "Attempt %d for asset %s is %s (%s), checking for a mined transaction", i+1, req.Claim.AssetID, class.Kind, class.Rule)
			if found := s.adopt(ctx, req, class.Kind.String()); found != nil {
				s.complete(log, id, Completion{EndpointID: endpoint, Outcome: models.AttemptSent, Hash: found, Adopted: true, Err: err})
				return s.finish(log, models.ReasonNone, nil)
			}
			s.complete(log, id, Completion{EndpointID: endpoint, Outcome: models.AttemptFailed, Kind: class.Reason, Err: err})
			return s.finish(log, models.ReasonAmbiguousFailure, err)

		case transport.KindFatal:
			s.logger.ErrorWith(logger.Submit, "Attempt %d for asset %s failed (%s): %v", i+1, req.Claim.AssetID, class.Reason, err)
			s.complete(log, id, Completion{EndpointID: endpoint, Outcome: models.AttemptFailed, Kind: class.Reason, Err: err})
			return s.finish(log, class.Reason, err)
		}

		// retryable
		s.complete(log, id, Completion{EndpointID: endpoint, Outcome: models.AttemptFailed, Kind: class.Reason, Err: err})
		if i+1 >= budget {
			break
		}
		wait := Backoff(retries, t.RetryBackoff, t.RetryBackoffMax, t.RetryJitter, s.rnd)
		retries++
		s.logger.InfoWith(logger.Submit, "Attempt %d for asset %s failed with a retryable error (%s), retrying in %v", i+1, req.Claim.AssetID, class.Rule, wait)
		if err := s.sleep(ctx, wait); err != nil {
			// nothing reached the chain
			return s.finish(log, models.ReasonTransportRetryable, fmt.Errorf("canceled during backoff: %w", err))
		}
	}

	last, _ := log.Last()
	return s.finish(log, models.ReasonAmbiguousFailure, fmt.Errorf("no definitive answer after %d attempts: %s", log.Len(), last.Error))
}

// send races the wallet against timeout. On timeout it also returns the channel the wallet
// will eventually answer on.
func (s *Submitter) send(ctx context.Context, handle wallet.Handle, tx wallet.TransactionSpec, timeout time.Duration) (common.Hash, <-chan sendResult, error) {
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan sendResult, 1)
	go func() {
		h, err := handle.SignAndSend(sendCtx, tx)
		ch <- sendResult{hash: h, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return common.Hash{}, nil, fmt.Errorf("%w after %v: %v", ErrTimedOut, timeout, r.err)
		}
		if r.err == nil && r.hash == (common.Hash{}) {
			return common.Hash{}, nil, fmt.Errorf("wallet returned an empty transaction hash")
		}
		return r.hash, nil, r.err
	case <-sendCtx.Done():
		if ctx.Err() != nil {
			return common.Hash{}, ch, ctx.Err()
		}
		return common.Hash{}, ch, fmt.Errorf("%w after %v", ErrTimedOut, timeout)
	}
}

// awaitLate waits for a timed-out wallet call to return. Its send context is already canceled,
// so a well-behaved handle answers promptly; the handle is never called again before it does.
func (s *Submitter) awaitLate(ctx context.Context, late <-chan sendResult) (common.Hash, bool) {
	if late == nil {
		return common.Hash{}, false
	}
	select {
	case r := <-late:
		if r.err == nil && r.hash != (common.Hash{}) {
			return r.hash, true
		}
	case <-ctx.Done():
	}
	return common.Hash{}, false
}

// adopt asks the side channel for an already-mined transaction of this claim
func (s *Submitter) adopt(ctx context.Context, req Request, trigger string) *common.Hash {
	if s.lookup == nil {
		return nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	hash, err := s.lookup.LookupRecentTransaction(lookupCtx, backend.RecentTransactionQuery{
		ClaimantAddress: req.Claim.ClaimantAddress,
		AssetID:         req.Claim.AssetID,
		InternalClaimID: req.InternalClaimID,
	})
	if err != nil {
		s.logger.ErrorWith(logger.Submit, "Recent transaction lookup for asset %s failed: %v", req.Claim.AssetID, err)
		return nil
	}
	if hash == nil {
		s.logger.DebugWith(logger.Submit, "No recent transaction found for asset %s", req.Claim.AssetID)
		return nil
	}

	metrics.AdoptedTransactions.WithLabelValues(trigger).Inc()
	s.logger.InfoWith(logger.Submit, "Adopting mined transaction %s for asset %s (%s)", hash.Hex(), req.Claim.AssetID, trigger)
	return hash
}

func (s *Submitter) complete(log *AttemptLog, id string, c Completion) {
	if err := log.Finish(id, c); err != nil {
		s.logger.ErrorWith(logger.Submit, "Failed to record attempt outcome: %v", err)
		return
	}
	metrics.SubmissionAttempts.WithLabelValues(string(c.Outcome), string(c.Kind)).Inc()
}

func (s *Submitter) finish(log *AttemptLog, reason models.FailureReason, err error) *Result {
	res := &Result{
		Attempts: log.Entries(),
		Reason:   reason,
		Err:      err,
	}
	if last, ok := log.Last(); ok {
		res.Attempt = last
	}
	return res
}

func endpointOf(handle wallet.Handle) string {
	if r, ok := handle.(wallet.EndpointReporter); ok {
		if id := r.LastEndpoint(); id != "" {
			return id
		}
	}
	return "wallet"
}
