package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
	"github.com/cryptogift-wallets/giftclaim/pkg/models"
)

// ValidateClaimRequest is the body of the claim validation call
type ValidateClaimRequest struct {
	AssetID         string         `json:"assetId"`
	UnlockSecret    string         `json:"unlockSecret"`
	SecretSalt      string         `json:"secretSalt"`
	ClaimantAddress common.Address `json:"claimantAddress"`
	EducationProof  hexutil.Bytes  `json:"educationProof,omitempty"`
}

// ValidationResult is the backend verdict on a claim
type ValidationResult struct {
	Valid           bool             `json:"valid"`
	InternalClaimID string           `json:"internalClaimId"`
	AssetInfo       models.AssetInfo `json:"assetInfo"`
	Reason          string           `json:"reason,omitempty"`
}

// ValidateClaim asks the backend whether the secret unlocks the gift. A valid:false answer
// is returned as a result, not an error.
func (c *Client) ValidateClaim(ctx context.Context, req models.ClaimRequest) (*ValidationResult, error) {
	body, err := c.do(ctx, "validate_claim", http.MethodPost, "/api/validate-claim", ValidateClaimRequest{
		AssetID:         req.AssetID,
		UnlockSecret:    req.UnlockSecret,
		SecretSalt:      req.SecretSalt,
		ClaimantAddress: req.ClaimantAddress,
		EducationProof:  req.EducationProof,
	})
	if err != nil {
		return nil, err
	}

	var result ValidationResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("validate_claim: failed to decode response: %v, body: %s", err, string(body))
	}
	return &result, nil
}

// RecentTransactionQuery identifies the claim whose transaction may already be mined
type RecentTransactionQuery struct {
	ClaimantAddress common.Address `json:"claimantAddress"`
	AssetID         string         `json:"assetId"`
	InternalClaimID string         `json:"internalClaimId,omitempty"`
}

type recentTransactionResponse struct {
	Found           bool         `json:"found"`
	TransactionHash *common.Hash `json:"transactionHash,omitempty"`
}

// LookupRecentTransaction asks whether a transaction for the claimant and asset was recently
// mined. It returns nil when none was found.
func (c *Client) LookupRecentTransaction(ctx context.Context, q RecentTransactionQuery) (*common.Hash, error) {
	body, err := c.do(ctx, "recent_transaction", http.MethodPost, "/api/claims/recent-transaction", q)
	if err != nil {
		return nil, err
	}

	var resp recentTransactionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("recent_transaction: failed to decode response: %v, body: %s", err, string(body))
	}
	if !resp.Found || resp.TransactionHash == nil || *resp.TransactionHash == (common.Hash{}) {
		return nil, nil
	}

	c.logger.DebugWith(logger.Submit, "Backend reports recent transaction %s for asset %s", resp.TransactionHash.Hex(), q.AssetID)
	return resp.TransactionHash, nil
}
