package models

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ClaimRequest is the input of a claim. It must not be modified once submission starts.
type ClaimRequest struct {
	AssetID           string          `json:"assetId"`
	UnlockSecret      string          `json:"unlockSecret"`
	SecretSalt        string          `json:"secretSalt"`
	ClaimantAddress   common.Address  `json:"claimantAddress"`
	EducationProof    hexutil.Bytes   `json:"educationProof,omitempty"`
	RecipientOverride *common.Address `json:"recipientOverrideAddress,omitempty"`
}

// Recipient returns the address that receives the gift
func (r ClaimRequest) Recipient() common.Address {
	if r.RecipientOverride != nil && *r.RecipientOverride != (common.Address{}) {
		return *r.RecipientOverride
	}
	return r.ClaimantAddress
}

// TokenID parses the asset id as a uint256 token id
func (r ClaimRequest) TokenID() (*big.Int, error) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(r.AssetID), 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid asset id: %q", r.AssetID)
	}
	return id, nil
}

// Salt decodes the secret salt into the bytes32 expected by the escrow
func (r ClaimRequest) Salt() ([32]byte, error) {
	var salt [32]byte
	raw, err := hexutil.Decode(r.SecretSalt)
	if err != nil {
		return salt, fmt.Errorf("invalid secret salt: %w", err)
	}
	if len(raw) != 32 {
		return salt, fmt.Errorf("secret salt must be 32 bytes, got %d", len(raw))
	}
	copy(salt[:], raw)
	return salt, nil
}

// Validate checks the request is well formed before anything is sent
func (r ClaimRequest) Validate() error {
	if _, err := r.TokenID(); err != nil {
		return err
	}
	if r.UnlockSecret == "" {
		return fmt.Errorf("unlock secret is required")
	}
	if _, err := r.Salt(); err != nil {
		return err
	}
	if r.ClaimantAddress == (common.Address{}) {
		return fmt.Errorf("claimant address is required")
	}
	return nil
}

// FailureReason is the closed taxonomy every failure is normalized into
type FailureReason string

const (
	ReasonNone                  FailureReason = ""
	ReasonUserRejected          FailureReason = "user_rejected"
	ReasonInsufficientResources FailureReason = "insufficient_resources"
	ReasonTransportRetryable    FailureReason = "transport_retryable"
	ReasonAlreadySubmitted      FailureReason = "already_submitted"
	ReasonConfirmationUnknown   FailureReason = "confirmation_unknown"
	ReasonAmbiguousFailure      FailureReason = "ambiguous_failure"
	ReasonSideEffectFailure     FailureReason = "side_effect_failure"
	ReasonClaimRejected         FailureReason = "claim_rejected"
	ReasonWalletUnavailable     FailureReason = "wallet_unavailable"
	ReasonReverted              FailureReason = "reverted"
	ReasonInvalidRequest        FailureReason = "invalid_request"
	ReasonDropped               FailureReason = "transaction_dropped"
)

// AttemptOutcome is the result of a single submission attempt
type AttemptOutcome string

const (
	AttemptPending  AttemptOutcome = "pending"
	AttemptSent     AttemptOutcome = "sent"
	AttemptTimedOut AttemptOutcome = "timed_out"
	AttemptFailed   AttemptOutcome = "failed"
)

// TransactionAttempt records one try at getting the claim transaction sent
type TransactionAttempt struct {
	ID              string         `json:"id"`
	EndpointID      string         `json:"endpointId"`
	AttemptIndex    int            `json:"attemptIndex"`
	StartedAt       time.Time      `json:"startedAt"`
	FinishedAt      time.Time      `json:"finishedAt"`
	Timeout         time.Duration  `json:"timeout"`
	Outcome         AttemptOutcome `json:"outcome"`
	FailureKind     FailureReason  `json:"failureKind,omitempty"`
	Adopted         bool           `json:"adopted,omitempty"`
	TransactionHash *common.Hash   `json:"transactionHash,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// ConfirmationStatus is the finality state of a sent transaction
type ConfirmationStatus string

const (
	ConfirmationSuccess  ConfirmationStatus = "success"
	ConfirmationReverted ConfirmationStatus = "reverted"
	ConfirmationPending  ConfirmationStatus = "pending"
	// ConfirmationUnknown means the wait timed out; the chain may still finalize the transaction.
	ConfirmationUnknown ConfirmationStatus = "unknown"
)

// ConfirmationRecord is the result of waiting for a transaction
type ConfirmationRecord struct {
	TransactionHash common.Hash        `json:"transactionHash"`
	Status          ConfirmationStatus `json:"status"`
	BlockNumber     *uint64            `json:"blockNumber,omitempty"`
	BlockHash       *common.Hash       `json:"blockHash,omitempty"`
	GasUsed         uint64             `json:"gasUsed,omitempty"`
}

// SyncOutcome is the result of one metadata sync attempt
type SyncOutcome string

const (
	SyncSuccess   SyncOutcome = "success"
	SyncRetryable SyncOutcome = "retryable"
	SyncGiveUp    SyncOutcome = "give_up"
)

// SyncAttempt records one push of post-claim metadata to the backend
type SyncAttempt struct {
	AttemptIndex int         `json:"attemptIndex"`
	Outcome      SyncOutcome `json:"outcome"`
	WithDisplay  bool        `json:"withDisplay"`
	Error        string      `json:"error,omitempty"`
}

// AssetInfo describes the gift asset as reported by the claim validation API
type AssetInfo struct {
	TokenID         string         `json:"tokenId"`
	ContractAddress common.Address `json:"contractAddress"`
	Name            string         `json:"name,omitempty"`
	Image           string         `json:"image,omitempty"`
}

// Attribute is a single NFT metadata trait
type Attribute struct {
	TraitType string      `json:"trait_type"`
	Value     interface{} `json:"value"`
}

// DisplayMetadata is what the metadata resolver returns for an asset
type DisplayMetadata struct {
	Name          string      `json:"name,omitempty"`
	Image         string      `json:"image"`
	Attributes    []Attribute `json:"attributes"`
	IsPlaceholder bool        `json:"isPlaceholder"`
}

// AssetSpec is what a wallet needs to display an asset
type AssetSpec struct {
	Type    string         `json:"type"`
	Address common.Address `json:"address"`
	TokenID string         `json:"tokenId"`
	Image   string         `json:"image,omitempty"`
}

// WarmupState tracks metadata readiness before display registration
type WarmupState string

const (
	WarmupPlaceholder WarmupState = "placeholder"
	WarmupWarming     WarmupState = "warming"
	WarmupReady       WarmupState = "ready"
	WarmupGaveUp      WarmupState = "gave_up"
)

// DisplayRegistration is the result of asking the wallet to show the claimed asset
type DisplayRegistration struct {
	Warmup     WarmupState `json:"warmup"`
	Polls      int         `json:"polls"`
	Registered bool        `json:"registered"`
	Benign     bool        `json:"benign,omitempty"`
	Message    string      `json:"message,omitempty"`
	Asset      AssetSpec   `json:"asset"`
}

// ClaimState is the final state reported to the caller
type ClaimState string

const (
	ClaimSuccess             ClaimState = "success"
	ClaimPendingConfirmation ClaimState = "pending_confirmation"
	ClaimFailed              ClaimState = "failed"
)

// UserMessage is the user-facing explanation of an outcome
type UserMessage struct {
	WhatHappened string `json:"whatHappened"`
	Safety       string `json:"safety"`
	NextAction   string `json:"nextAction"`
}

// ClaimOutcome is the orchestrator's answer; it is the only thing the UI reacts to
type ClaimOutcome struct {
	State           ClaimState           `json:"state"`
	Reason          FailureReason        `json:"reason,omitempty"`
	TransactionHash *common.Hash         `json:"transactionHash,omitempty"`
	InternalClaimID string               `json:"internalClaimId,omitempty"`
	Asset           *AssetInfo           `json:"asset,omitempty"`
	Message         UserMessage          `json:"message"`
	Recheckable     bool                 `json:"recheckable"`
	Warnings        []string             `json:"warnings,omitempty"`
	Attempts        []TransactionAttempt `json:"attempts"`
	Confirmation    *ConfirmationRecord  `json:"confirmation,omitempty"`
	Sync            []SyncAttempt        `json:"sync,omitempty"`
	Display         *DisplayRegistration `json:"display,omitempty"`
}
