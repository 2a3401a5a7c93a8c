// Package transport normalizes wallet and RPC errors and chooses the RPC endpoint used for
// chain reads and sends.
package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/cryptogift-wallets/giftclaim/pkg/models"
)

// ErrorKind tells the caller what it may do after an error
type ErrorKind int

const (
	// KindFatal must not be retried and is surfaced to the user
	KindFatal ErrorKind = iota
	// KindRetryable did not reach the chain and may be retried with backoff
	KindRetryable
	// KindAlreadySubmitted means the transaction is already known; look up its hash instead of resending
	KindAlreadySubmitted
	// KindAmbiguous may have been processed; resending is unsafe
	KindAmbiguous
)

func (k ErrorKind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindRetryable:
		return "retryable"
	case KindAlreadySubmitted:
		return "already_submitted"
	case KindAmbiguous:
		return "ambiguous"
	}
	return "unknown"
}

// Classification is the normalized view of an error
type Classification struct {
	Kind   ErrorKind
	Reason models.FailureReason
	// Code is the JSON-RPC, provider or HTTP status code found in the error chain, 0 if none
	Code int
	// Rule names the rule that matched
	Rule string
}

// ErrRejectedBeforeSend marks a transaction the node refused during simulation; nothing was broadcast
var ErrRejectedBeforeSend = errors.New("transaction rejected before broadcast")

// EIP-1193 provider error codes
const (
	CodeUserRejected       = 4001
	CodeUnauthorized       = 4100
	CodeUnsupportedMethod  = 4200
	CodeDisconnected       = 4900
	CodeChainDisconnected  = 4901
	CodeParseError         = -32700
	CodeInvalidRequest     = -32600
	CodeMethodNotFound     = -32601
	CodeInternalError      = -32603
	CodeServerErrorMin     = -32099
	CodeServerErrorMax     = -32000
	CodeLimitExceeded      = -32005
	CodeTransactionPending = -32010
)

var alreadySubmittedPatterns = []string{
	"already known",
	"already pending",
	"known transaction",
	"nonce already used",
	"duplicate transaction",
}

var userRejectedPatterns = []string{
	"user rejected",
	"user denied",
	"user cancelled",
	"user canceled",
	"action_rejected",
	"rejected by user",
}

var walletUnavailablePatterns = []string{
	"unauthorized",
	"unsupported method",
	"method not supported",
	"disconnected",
}

var insufficientResourcePatterns = []string{
	"insufficient funds",
	"gas required exceeds allowance",
	"intrinsic gas too low",
	"out of gas",
	"gas too low",
	"exceeds block gas limit",
	"max fee per gas less than block base fee",
	"nonce too low",
	"nonce too high",
	"replacement transaction underpriced",
	"transaction underpriced",
}

var retryableInfraPatterns = []string{
	"rate limit",
	"too many requests",
	"txpool is full",
	"transaction pool is full",
	"pool is full",
	"limit exceeded",
}

var ambiguousPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"network error",
	"execution reverted",
}

var connectionPatterns = []string{
	"connection refused",
	"connection reset",
	"connection closed",
	"bad gateway",
	"service unavailable",
	"fetch failed",
	"failed to fetch",
	"no such host",
	"broken pipe",
	"eof",
}

// Classify maps any wallet, RPC or transport error onto the closed ErrorKind taxonomy.
// It is a pure function of the error chain. Rules are checked in order and the first match wins.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindAmbiguous, Reason: models.ReasonAmbiguousFailure, Rule: "nil_error"}
	}

	code, hasCode := errorCode(err)
	msg := strings.ToLower(err.Error())

	if errors.Is(err, ErrRejectedBeforeSend) {
		return Classification{Kind: KindFatal, Reason: models.ReasonReverted, Code: code, Rule: "rejected_before_send"}
	}

	// 1. the transaction is already in a mempool
	if containsAny(msg, alreadySubmittedPatterns) {
		return Classification{Kind: KindAlreadySubmitted, Reason: models.ReasonAlreadySubmitted, Code: code, Rule: "already_submitted"}
	}

	// 2. provider codes that end the flow
	if hasCode {
		switch code {
		case CodeUserRejected:
			return Classification{Kind: KindFatal, Reason: models.ReasonUserRejected, Code: code, Rule: "user_rejected_code"}
		case CodeUnauthorized, CodeUnsupportedMethod, CodeDisconnected, CodeChainDisconnected:
			return Classification{Kind: KindFatal, Reason: models.ReasonWalletUnavailable, Code: code, Rule: "provider_code"}
		case http.StatusUnauthorized, http.StatusForbidden:
			return Classification{Kind: KindFatal, Reason: models.ReasonWalletUnavailable, Code: code, Rule: "unauthorized_status"}
		}
	}
	if containsAny(msg, userRejectedPatterns) {
		return Classification{Kind: KindFatal, Reason: models.ReasonUserRejected, Code: code, Rule: "user_rejected_message"}
	}

	// 3. gas, funds and nonce problems are fatal even when wrapped in a generic server error code
	if containsAny(msg, insufficientResourcePatterns) {
		return Classification{Kind: KindFatal, Reason: models.ReasonInsufficientResources, Code: code, Rule: "insufficient_resources"}
	}
	if !hasCode && containsAny(msg, walletUnavailablePatterns) {
		return Classification{Kind: KindFatal, Reason: models.ReasonWalletUnavailable, Code: code, Rule: "wallet_unavailable_message"}
	}

	// nodes report reverts under the generic server error code too
	if strings.Contains(msg, "execution reverted") {
		return Classification{Kind: KindAmbiguous, Reason: models.ReasonAmbiguousFailure, Code: code, Rule: "reverted"}
	}

	// 4. JSON-RPC infrastructure codes
	if hasCode && isRetryableCode(code) {
		return Classification{Kind: KindRetryable, Reason: models.ReasonTransportRetryable, Code: code, Rule: "infrastructure_code"}
	}
	if containsAny(msg, retryableInfraPatterns) {
		return Classification{Kind: KindRetryable, Reason: models.ReasonTransportRetryable, Code: code, Rule: "infrastructure_message"}
	}

	// 5. the transaction may have been processed
	if errors.Is(err, context.DeadlineExceeded) || containsAny(msg, ambiguousPatterns) {
		return Classification{Kind: KindAmbiguous, Reason: models.ReasonAmbiguousFailure, Code: code, Rule: "ambiguous"}
	}

	// 6. connection-level failures never reached the node
	if containsAny(msg, connectionPatterns) {
		return Classification{Kind: KindRetryable, Reason: models.ReasonTransportRetryable, Code: code, Rule: "connection"}
	}

	return Classification{Kind: KindAmbiguous, Reason: models.ReasonAmbiguousFailure, Code: code, Rule: "unmatched"}
}

// errorCode extracts a JSON-RPC/provider code or an HTTP status from the error chain
func errorCode(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	return 0, false
}

func isRetryableCode(code int) bool {
	switch code {
	case CodeParseError, CodeInvalidRequest, CodeMethodNotFound, CodeInternalError, CodeLimitExceeded, CodeTransactionPending:
		return true
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return code >= CodeServerErrorMin && code <= CodeServerErrorMax
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
