// Package claim drives one gift claim from request to outcome: validate, submit, wait for
// confirmation, then run the best-effort post-claim phase.
package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/cryptogift-wallets/giftclaim/pkg/backend"
	"github.com/cryptogift-wallets/giftclaim/pkg/contracts"
	"github.com/cryptogift-wallets/giftclaim/pkg/device"
	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
	"github.com/cryptogift-wallets/giftclaim/pkg/metrics"
	"github.com/cryptogift-wallets/giftclaim/pkg/models"
	"github.com/cryptogift-wallets/giftclaim/pkg/postclaim"
	"github.com/cryptogift-wallets/giftclaim/pkg/submitter"
	"github.com/cryptogift-wallets/giftclaim/pkg/wallet"
)

// DefaultBestEffortTimeout bounds the post-claim phase
const DefaultBestEffortTimeout = 2 * time.Minute

// Validator is the backend claim-validation API
type Validator interface {
	ValidateClaim(ctx context.Context, req models.ClaimRequest) (*backend.ValidationResult, error)
}

// Submitter sends the claim transaction
type Submitter interface {
	Submit(ctx context.Context, req submitter.Request, handle wallet.Handle) *submitter.Result
}

// Confirmer waits for finality
type Confirmer interface {
	AwaitConfirmation(ctx context.Context, hash common.Hash, profile device.Profile) models.ConfirmationRecord
	CheckStatus(ctx context.Context, hash common.Hash) (models.ConfirmationRecord, error)
}

// MetadataSyncer pushes post-claim metadata
type MetadataSyncer interface {
	Sync(ctx context.Context, in postclaim.SyncInput) postclaim.SyncReport
}

// DisplayRegistrar asks the wallet to display the asset. WarmUp only talks to the backend;
// Watch is the one call that uses the wallet.
type DisplayRegistrar interface {
	WarmUp(ctx context.Context, asset models.AssetInfo, profile device.Profile) models.DisplayRegistration
	Watch(ctx context.Context, reg models.DisplayRegistration, handle wallet.Handle, profile device.Profile) models.DisplayRegistration
}

// Deps are the collaborators of the orchestrator
type Deps struct {
	Validator Validator
	Submitter Submitter
	Confirmer Confirmer
	Syncer    MetadataSyncer
	Registrar DisplayRegistrar
	// Lookup finds a sent transaction when a manual check has no hash to go on
	Lookup submitter.TransactionLookup
}

// Options are the static settings of the orchestrator
type Options struct {
	EscrowAddress common.Address
	// NFTContract is used when the backend does not report the asset contract
	NFTContract       common.Address
	BestEffortTimeout time.Duration
	// SubmissionRetention is how long a sent claim refuses a new submission
	SubmissionRetention time.Duration
}

// Orchestrator runs claims
type Orchestrator struct {
	deps    Deps
	opts    Options
	guard   *inFlightGuard
	owners  *walletOwners
	ledger  *submissionLedger
	logger  logger.Logger
	nowFunc func() time.Time
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(deps Deps, opts Options, log logger.Logger) (*Orchestrator, error) {
	if deps.Validator == nil || deps.Submitter == nil || deps.Confirmer == nil {
		return nil, errors.New("validator, submitter and confirmer are required")
	}
	if opts.EscrowAddress == (common.Address{}) {
		return nil, errors.New("escrow address is required")
	}
	if opts.BestEffortTimeout <= 0 {
		opts.BestEffortTimeout = DefaultBestEffortTimeout
	}
	return &Orchestrator{
		deps:    deps,
		opts:    opts,
		guard:   newInFlightGuard(),
		owners:  newWalletOwners(),
		ledger:  newSubmissionLedger(opts.SubmissionRetention),
		logger:  log,
		nowFunc: time.Now,
	}, nil
}

// InFlight reports whether a submission chain is running for the asset
func (o *Orchestrator) InFlight(assetID string) bool {
	return o.guard.busy(assetID)
}

// Claim runs one claim to an outcome. It returns ErrClaimInFlight while another chain runs for
// the asset and an *AlreadySubmittedError once a transaction was sent for the asset and
// claimant; every other failure is expressed by the outcome.
func (o *Orchestrator) Claim(ctx context.Context, req models.ClaimRequest, handle wallet.Handle, profile device.Profile) (models.ClaimOutcome, error) {
	release, err := o.guard.acquire(req.AssetID)
	if err != nil {
		o.logger.NoticeWith(logger.Claim, "Refusing claim for asset %s: %v", req.AssetID, err)
		return models.ClaimOutcome{}, err
	}
	defer release()

	if sub, ok := o.ledger.get(req.AssetID, req.ClaimantAddress); ok {
		err := &AlreadySubmittedError{Submission: sub}
		o.logger.NoticeWith(logger.Claim, "Refusing claim for asset %s: %v", req.AssetID, err)
		return models.ClaimOutcome{}, err
	}

	start := o.nowFunc()
	metrics.ClaimsInFlight.Inc()
	defer metrics.ClaimsInFlight.Dec()

	outcome := o.run(ctx, req, handle, profile)
	outcome.Message = MessageFor(outcome.State, outcome.Reason)
	o.ledger.remember(req.AssetID, req.ClaimantAddress, outcome)

	metrics.ClaimsTotal.WithLabelValues(string(outcome.State), string(outcome.Reason), profile.String()).Inc()
	metrics.ClaimDuration.WithLabelValues(profile.String()).Observe(o.nowFunc().Sub(start).Seconds())
	o.logOutcome(req.AssetID, outcome)
	return outcome, nil
}

func (o *Orchestrator) run(ctx context.Context, req models.ClaimRequest, handle wallet.Handle, profile device.Profile) models.ClaimOutcome {
	if err := req.Validate(); err != nil {
		return o.failed(models.ReasonInvalidRequest, err)
	}
	if handle == nil {
		return o.failed(models.ReasonWalletUnavailable, errors.New("no wallet connected"))
	}
	if err := handle.CanSign(ctx); err != nil {
		return o.failed(models.ReasonWalletUnavailable, err)
	}

	validation, err := o.deps.Validator.ValidateClaim(ctx, req)
	if err != nil {
		return o.failed(models.ReasonTransportRetryable, fmt.Errorf("claim validation unavailable: %w", err))
	}
	if !validation.Valid {
		return o.failed(models.ReasonClaimRejected, fmt.Errorf("claim rejected: %s", validation.Reason))
	}
	asset := o.assetOf(req, validation.AssetInfo)

	tx, err := o.buildTransaction(req, handle.Address())
	if err != nil {
		return o.failed(models.ReasonInvalidRequest, err)
	}

	res, err := o.submit(ctx, submitter.Request{
		Claim:           req,
		InternalClaimID: validation.InternalClaimID,
		Tx:              tx,
		Profile:         profile,
	}, handle)
	if err != nil {
		return o.failed(models.ReasonTransportRetryable, err)
	}

	outcome := models.ClaimOutcome{
		InternalClaimID: validation.InternalClaimID,
		Asset:           &asset,
		Attempts:        res.Attempts,
	}
	if !res.Sent() {
		o.logger.ErrorWith(logger.Claim, "Submission for asset %s failed (%s): %v", req.AssetID, res.Reason, res.Err)
		outcome.State = models.ClaimFailed
		outcome.Reason = res.Reason
		outcome.Recheckable = res.Reason == models.ReasonAmbiguousFailure
		return outcome
	}

	hash := *res.Hash()
	outcome.TransactionHash = &hash
	record := o.deps.Confirmer.AwaitConfirmation(ctx, hash, profile)
	outcome.Confirmation = &record
	settle(handle, hash, record.Status)

	o.resolve(&outcome, record)
	if outcome.State == models.ClaimSuccess {
		o.bestEffort(ctx, &outcome, req.ClaimantAddress, handle, profile)
	}
	return outcome
}

// submit holds exclusive use of the wallet for the whole attempt chain
func (o *Orchestrator) submit(ctx context.Context, req submitter.Request, handle wallet.Handle) (*submitter.Result, error) {
	release, err := o.owners.own(ctx, handle.Address())
	if err != nil {
		return nil, fmt.Errorf("wallet busy: %w", err)
	}
	defer release()
	return o.deps.Submitter.Submit(ctx, req, handle), nil
}

// resolve maps a confirmation record onto the outcome state. Unknown never leads to a resend.
func (o *Orchestrator) resolve(outcome *models.ClaimOutcome, record models.ConfirmationRecord) {
	switch record.Status {
	case models.ConfirmationSuccess:
		outcome.State = models.ClaimSuccess
		outcome.Reason = models.ReasonNone
		outcome.Recheckable = false
	case models.ConfirmationReverted:
		outcome.State = models.ClaimFailed
		outcome.Reason = models.ReasonReverted
		outcome.Recheckable = false
	default:
		outcome.State = models.ClaimPendingConfirmation
		outcome.Reason = models.ReasonConfirmationUnknown
		outcome.Recheckable = true
	}
}

// bestEffort runs metadata sync and display registration concurrently. Their failures become
// warnings and never change the outcome state. The phase outlives caller cancellation so an
// abandoned request still finishes its idempotent side effects.
func (o *Orchestrator) bestEffort(ctx context.Context, outcome *models.ClaimOutcome, claimant common.Address, handle wallet.Handle, profile device.Profile) {
	if outcome.Asset == nil || outcome.TransactionHash == nil {
		return
	}
	asset := *outcome.Asset
	hash := *outcome.TransactionHash

	phaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.BestEffortTimeout)
	defer cancel()

	var (
		report       *postclaim.SyncReport
		registration *models.DisplayRegistration
	)
	g, gctx := errgroup.WithContext(phaseCtx)
	if o.deps.Syncer != nil {
		g.Go(func() error {
			r := o.deps.Syncer.Sync(gctx, postclaim.SyncInput{
				Asset:           asset,
				ClaimantAddress: claimant,
				TransactionHash: hash,
				Profile:         profile,
			})
			report = &r
			return nil
		})
	}
	if o.deps.Registrar != nil && handle != nil {
		g.Go(func() error {
			reg := o.deps.Registrar.WarmUp(gctx, asset, profile)
			release, err := o.owners.own(gctx, handle.Address())
			if err != nil {
				return fmt.Errorf("display registration skipped: %w", err)
			}
			reg = o.deps.Registrar.Watch(gctx, reg, handle, profile)
			release()
			registration = &reg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		o.logger.ErrorWith(logger.Claim, "Best-effort phase for asset %s: %v", asset.TokenID, err)
		outcome.Warnings = append(outcome.Warnings, err.Error())
	}

	if report != nil {
		outcome.Sync = report.Attempts
		if report.Warning != "" {
			outcome.Warnings = append(outcome.Warnings, report.Warning)
		}
	}
	if registration != nil {
		outcome.Display = registration
		if !registration.Registered && !registration.Benign {
			outcome.Warnings = append(outcome.Warnings, registration.Message)
		}
	}
}

// RecheckInput identifies a claim whose status is being re-queried
type RecheckInput struct {
	Claim           models.ClaimRequest
	InternalClaimID string
	// TransactionHash is nil when no hash was ever obtained
	TransactionHash *common.Hash
	Asset           *models.AssetInfo
	Profile         device.Profile
	// Handle is optional; without it the asset is not registered for display
	Handle wallet.Handle
}

// Recheck re-queries confirmation once. It never sends a transaction. Without a hash it asks
// the submissions sent by this orchestrator and then the recent-transaction lookup. A pending
// transaction the wallet reports as dropped fails with ReasonDropped and frees the gift.
func (o *Orchestrator) Recheck(ctx context.Context, in RecheckInput) models.ClaimOutcome {
	outcome := models.ClaimOutcome{
		InternalClaimID: in.InternalClaimID,
		Asset:           in.Asset,
		TransactionHash: in.TransactionHash,
	}

	if outcome.TransactionHash == nil {
		if sub, ok := o.ledger.get(in.Claim.AssetID, in.Claim.ClaimantAddress); ok {
			outcome.TransactionHash = sub.Outcome.TransactionHash
			if outcome.Asset == nil {
				outcome.Asset = sub.Outcome.Asset
			}
		}
	}
	if outcome.TransactionHash == nil {
		outcome.TransactionHash = o.lookup(ctx, in)
	}
	if outcome.TransactionHash == nil {
		outcome.State = models.ClaimFailed
		outcome.Reason = models.ReasonAmbiguousFailure
		outcome.Recheckable = true
		outcome.Message = MessageFor(outcome.State, outcome.Reason)
		o.logger.NoticeWith(logger.Claim, "Recheck for asset %s found no transaction", in.Claim.AssetID)
		return outcome
	}

	hash := *outcome.TransactionHash
	record, err := o.deps.Confirmer.CheckStatus(ctx, hash)
	if err != nil {
		o.logger.ErrorWith(logger.Claim, "Recheck of %s failed: %v", hash.Hex(), err)
	}
	outcome.Confirmation = &record
	o.resolve(&outcome, record)
	if in.Handle != nil {
		settle(in.Handle, hash, record.Status)
		if err == nil && outcome.State == models.ClaimPendingConfirmation && o.dropped(ctx, in.Handle, hash) {
			outcome.State = models.ClaimFailed
			outcome.Reason = models.ReasonDropped
			outcome.Recheckable = false
		}
	}
	if outcome.State == models.ClaimSuccess {
		o.bestEffort(ctx, &outcome, in.Claim.ClaimantAddress, in.Handle, in.Profile)
	}
	outcome.Message = MessageFor(outcome.State, outcome.Reason)
	o.ledger.remember(in.Claim.AssetID, in.Claim.ClaimantAddress, outcome)
	o.logOutcome(in.Claim.AssetID, outcome)
	return outcome
}

// dropped asks a reconciling wallet whether the node still knows the transaction
func (o *Orchestrator) dropped(ctx context.Context, handle wallet.Handle, hash common.Hash) bool {
	r, ok := handle.(wallet.Reconciler)
	if !ok {
		return false
	}
	dropped, err := r.Reconcile(ctx, hash)
	if err != nil {
		o.logger.ErrorWith(logger.Claim, "Reconciling %s failed: %v", hash.Hex(), err)
		return false
	}
	return dropped
}

func (o *Orchestrator) lookup(ctx context.Context, in RecheckInput) *common.Hash {
	if o.deps.Lookup == nil {
		return nil
	}
	hash, err := o.deps.Lookup.LookupRecentTransaction(ctx, backend.RecentTransactionQuery{
		ClaimantAddress: in.Claim.ClaimantAddress,
		AssetID:         in.Claim.AssetID,
		InternalClaimID: in.InternalClaimID,
	})
	if err != nil {
		o.logger.ErrorWith(logger.Claim, "Recent transaction lookup for asset %s failed: %v", in.Claim.AssetID, err)
		return nil
	}
	return hash
}

// buildTransaction uses claimGift when the wallet is the recipient, claimGiftFor otherwise
func (o *Orchestrator) buildTransaction(req models.ClaimRequest, sender common.Address) (wallet.TransactionSpec, error) {
	giftID, err := req.TokenID()
	if err != nil {
		return wallet.TransactionSpec{}, err
	}
	salt, err := req.Salt()
	if err != nil {
		return wallet.TransactionSpec{}, err
	}
	args := contracts.ClaimArgs{
		GiftID:   giftID,
		Password: req.UnlockSecret,
		Salt:     salt,
		GateData: req.EducationProof,
	}

	var data []byte
	if recipient := req.Recipient(); recipient == sender {
		data, err = contracts.PackClaimGift(args)
	} else {
		data, err = contracts.PackClaimGiftFor(args, recipient)
	}
	if err != nil {
		return wallet.TransactionSpec{}, fmt.Errorf("failed to encode claim: %w", err)
	}
	return wallet.TransactionSpec{To: o.opts.EscrowAddress, Data: data}, nil
}

func (o *Orchestrator) assetOf(req models.ClaimRequest, info models.AssetInfo) models.AssetInfo {
	if info.TokenID == "" {
		info.TokenID = req.AssetID
	}
	if info.ContractAddress == (common.Address{}) {
		info.ContractAddress = o.opts.NFTContract
	}
	return info
}

func (o *Orchestrator) failed(reason models.FailureReason, err error) models.ClaimOutcome {
	o.logger.ErrorWith(logger.Claim, "Claim failed before submission (%s): %v", reason, err)
	return models.ClaimOutcome{State: models.ClaimFailed, Reason: reason}
}

func (o *Orchestrator) logOutcome(assetID string, outcome models.ClaimOutcome) {
	hash := "none"
	if outcome.TransactionHash != nil {
		hash = outcome.TransactionHash.Hex()
	}
	switch outcome.State {
	case models.ClaimSuccess:
		o.logger.InfoWith(logger.Claim, "Asset %s claimed in %s (%d warnings)", assetID, hash, len(outcome.Warnings))
	case models.ClaimPendingConfirmation:
		o.logger.NoticeWith(logger.Claim, "Asset %s pending confirmation of %s", assetID, hash)
	default:
		o.logger.ErrorWith(logger.Claim, "Asset %s claim failed: %s (tx %s)", assetID, outcome.Reason, hash)
	}
}

func settle(handle wallet.Handle, hash common.Hash, status models.ConfirmationStatus) {
	if s, ok := handle.(wallet.Settler); ok {
		s.Settle(hash, status)
	}
}
