package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"

	"github.com/cryptogift-wallets/giftclaim/pkg/models"
)

type codedError struct {
	code int
	msg  string
}

func (e *codedError) Error() string  { return e.msg }
func (e *codedError) ErrorCode() int { return e.code }

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   ErrorKind
		reason models.FailureReason
		rule   string
	}{
		{
			name:   "nil error is ambiguous",
			err:    nil,
			kind:   KindAmbiguous,
			reason: models.ReasonAmbiguousFailure,
			rule:   "nil_error",
		},
		{
			name:   "already known",
			err:    &codedError{code: -32000, msg: "already known"},
			kind:   KindAlreadySubmitted,
			reason: models.ReasonAlreadySubmitted,
			rule:   "already_submitted",
		},
		{
			name:   "nonce already used without code",
			err:    errors.New("Nonce already used"),
			kind:   KindAlreadySubmitted,
			reason: models.ReasonAlreadySubmitted,
			rule:   "already_submitted",
		},
		{
			name:   "provider user rejection code",
			err:    &codedError{code: CodeUserRejected, msg: "something"},
			kind:   KindFatal,
			reason: models.ReasonUserRejected,
			rule:   "user_rejected_code",
		},
		{
			name:   "user rejection message",
			err:    errors.New("MetaMask Tx Signature: User denied transaction signature."),
			kind:   KindFatal,
			reason: models.ReasonUserRejected,
			rule:   "user_rejected_message",
		},
		{
			name:   "disconnected provider",
			err:    &codedError{code: CodeDisconnected, msg: "provider disconnected"},
			kind:   KindFatal,
			reason: models.ReasonWalletUnavailable,
			rule:   "provider_code",
		},
		{
			name:   "insufficient funds under generic server code",
			err:    &codedError{code: -32000, msg: "insufficient funds for gas * price + value"},
			kind:   KindFatal,
			reason: models.ReasonInsufficientResources,
			rule:   "insufficient_resources",
		},
		{
			name:   "nonce too low",
			err:    &codedError{code: -32000, msg: "nonce too low"},
			kind:   KindFatal,
			reason: models.ReasonInsufficientResources,
			rule:   "insufficient_resources",
		},
		{
			name:   "simulation revert before broadcast",
			err:    fmt.Errorf("%w: execution reverted: invalid password", ErrRejectedBeforeSend),
			kind:   KindFatal,
			reason: models.ReasonReverted,
			rule:   "rejected_before_send",
		},
		{
			name:   "execution reverted",
			err:    &codedError{code: 3, msg: "execution reverted: gift already claimed"},
			kind:   KindAmbiguous,
			reason: models.ReasonAmbiguousFailure,
			rule:   "reverted",
		},
		{
			name:   "internal json-rpc error",
			err:    &codedError{code: CodeInternalError, msg: "Internal JSON-RPC error."},
			kind:   KindRetryable,
			reason: models.ReasonTransportRetryable,
			rule:   "infrastructure_code",
		},
		{
			name:   "generic server error range",
			err:    &codedError{code: -32050, msg: "header not found"},
			kind:   KindRetryable,
			reason: models.ReasonTransportRetryable,
			rule:   "infrastructure_code",
		},
		{
			name:   "http 429",
			err:    rpc.HTTPError{StatusCode: http.StatusTooManyRequests, Status: "429 Too Many Requests"},
			kind:   KindRetryable,
			reason: models.ReasonTransportRetryable,
			rule:   "infrastructure_code",
		},
		{
			name:   "http 401 bad rpc key",
			err:    rpc.HTTPError{StatusCode: http.StatusUnauthorized, Status: "401 Unauthorized", Body: []byte("invalid project id")},
			kind:   KindFatal,
			reason: models.ReasonWalletUnavailable,
			rule:   "unauthorized_status",
		},
		{
			name:   "http 403",
			err:    fmt.Errorf("dial: %w", rpc.HTTPError{StatusCode: http.StatusForbidden, Status: "403 Forbidden"}),
			kind:   KindFatal,
			reason: models.ReasonWalletUnavailable,
			rule:   "unauthorized_status",
		},
		{
			name:   "rate limit message",
			err:    errors.New("rate limit reached, retry later"),
			kind:   KindRetryable,
			reason: models.ReasonTransportRetryable,
			rule:   "infrastructure_message",
		},
		{
			name:   "context deadline",
			err:    fmt.Errorf("send: %w", context.DeadlineExceeded),
			kind:   KindAmbiguous,
			reason: models.ReasonAmbiguousFailure,
			rule:   "ambiguous",
		},
		{
			name:   "network error",
			err:    errors.New("Network Error"),
			kind:   KindAmbiguous,
			reason: models.ReasonAmbiguousFailure,
			rule:   "ambiguous",
		},
		{
			name:   "connection refused",
			err:    errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"),
			kind:   KindRetryable,
			reason: models.ReasonTransportRetryable,
			rule:   "connection",
		},
		{
			name:   "unknown error",
			err:    errors.New("something odd happened"),
			kind:   KindAmbiguous,
			reason: models.ReasonAmbiguousFailure,
			rule:   "unmatched",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.reason, got.Reason)
			assert.Equal(t, tt.rule, got.Rule)
		})
	}
}

func TestClassifyWrappedCode(t *testing.T) {
	err := fmt.Errorf("sendTransaction on rpc-0: %w", &codedError{code: CodeUserRejected, msg: "rejected"})

	got := Classify(err)
	assert.Equal(t, KindFatal, got.Kind)
	assert.Equal(t, CodeUserRejected, got.Code)
}

func TestClassifyIsStable(t *testing.T) {
	errs := []error{
		&codedError{code: -32603, msg: "Internal JSON-RPC error."},
		errors.New("user rejected the request"),
		errors.New("already known"),
		context.DeadlineExceeded,
	}

	for _, err := range errs {
		first := Classify(err)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, Classify(err))
		}
	}
}
