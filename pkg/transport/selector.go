package transport

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/cryptogift-wallets/giftclaim/pkg/circuitbreaker"
	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
)

// ChainClient is the subset of ethclient.Client used by the claim flow
type ChainClient interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

var _ ChainClient = (*ethclient.Client)(nil)

// Endpoint is one RPC backend
type Endpoint struct {
	ID     string
	URL    string
	Client ChainClient
}

// BreakerConfig configures the per-endpoint circuit breakers
type BreakerConfig struct {
	Enabled   bool
	Threshold int
	Window    time.Duration
	Reset     time.Duration
}

// EndpointStatus is reported by the status endpoint
type EndpointStatus struct {
	ID      string               `json:"id"`
	Host    string               `json:"host"`
	Breaker circuitbreaker.State `json:"breaker"`
	Stats   EndpointStats        `json:"stats"`
}

type guardedEndpoint struct {
	*Endpoint
	breaker *circuitbreaker.CircuitBreaker
}

// Selector picks the RPC endpoint for each call. Endpoints are tried in configured order,
// skipping those whose breaker is open; retryable failures fail over to the next one.
type Selector struct {
	endpoints []guardedEndpoint
	metrics   *TransportMetrics
	logger    logger.Logger
}

// NewSelector creates a selector over the given endpoints
func NewSelector(endpoints []*Endpoint, tm *TransportMetrics, cfg BreakerConfig, log logger.Logger) (*Selector, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}
	if tm == nil {
		return nil, fmt.Errorf("transport metrics are required")
	}

	guarded := make([]guardedEndpoint, 0, len(endpoints))
	for _, e := range endpoints {
		guarded = append(guarded, guardedEndpoint{
			Endpoint: e,
			breaker:  circuitbreaker.NewCircuitBreaker(e.ID, cfg.Enabled, cfg.Threshold, cfg.Window, cfg.Reset, log),
		})
	}

	return &Selector{
		endpoints: guarded,
		metrics:   tm,
		logger:    log,
	}, nil
}

// DialEndpoints connects to every RPC URL
func DialEndpoints(ctx context.Context, urls []string) ([]*Endpoint, error) {
	endpoints := make([]*Endpoint, 0, len(urls))
	for i, u := range urls {
		client, err := ethclient.DialContext(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to RPC endpoint %s: %w", redactURL(u), err)
		}
		endpoints = append(endpoints, &Endpoint{
			ID:     fmt.Sprintf("rpc-%d", i),
			URL:    u,
			Client: client,
		})
	}
	return endpoints, nil
}

// order returns the endpoints with closed breakers first, keeping configured order
func (s *Selector) order() []guardedEndpoint {
	closed := make([]guardedEndpoint, 0, len(s.endpoints))
	var open []guardedEndpoint
	for _, e := range s.endpoints {
		if e.breaker.IsOpen() {
			open = append(open, e)
			continue
		}
		closed = append(closed, e)
	}
	return append(closed, open...)
}

// Primary returns the endpoint a single-shot call should use
func (s *Selector) Primary() *Endpoint {
	return s.order()[0].Endpoint
}

// Do runs fn against endpoints until it succeeds, fails with a non-retryable error,
// or every endpoint has been tried. It returns the id of the last endpoint used.
func (s *Selector) Do(ctx context.Context, op string, fn func(ctx context.Context, client ChainClient) error) (string, error) {
	var lastErr error
	var lastID string
	for _, e := range s.order() {
		if err := ctx.Err(); err != nil {
			return lastID, err
		}
		lastID = e.ID

		err := fn(ctx, e.Client)
		if err == nil || errors.Is(err, ethereum.NotFound) {
			s.Record(e.ID, nil)
			return e.ID, err
		}

		class := s.Record(e.ID, err)
		lastErr = fmt.Errorf("%s on %s: %w", op, e.ID, err)
		if class.Kind != KindRetryable {
			return e.ID, lastErr
		}
		s.logger.DebugWith(logger.RPC, "%s failed on %s (%s), trying next endpoint", op, e.ID, class.Rule)
	}
	return lastID, lastErr
}

// Record feeds the result of a call on an endpoint into its breaker and the transport metrics
func (s *Selector) Record(endpointID string, err error) Classification {
	e := s.find(endpointID)
	if err == nil {
		s.metrics.RecordSuccess(endpointID)
		if e != nil {
			e.breaker.RecordSuccess()
		}
		return Classification{}
	}

	class := Classify(err)
	s.metrics.RecordFailure(endpointID, class, err)
	if e != nil && class.Kind == KindRetryable {
		e.breaker.RecordFailure()
	}
	return class
}

func (s *Selector) find(endpointID string) *guardedEndpoint {
	for i := range s.endpoints {
		if s.endpoints[i].ID == endpointID {
			return &s.endpoints[i]
		}
	}
	return nil
}

// TransactionReceipt fetches a receipt with failover; ethereum.NotFound means not mined yet
func (s *Selector) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	_, err := s.Do(ctx, "eth_getTransactionReceipt", func(ctx context.Context, c ChainClient) error {
		r, err := c.TransactionReceipt(ctx, hash)
		receipt = r
		return err
	})
	return receipt, err
}

// BlockNumber returns the head block of the first healthy endpoint
func (s *Selector) BlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	_, err := s.Do(ctx, "eth_blockNumber", func(ctx context.Context, c ChainClient) error {
		n, err := c.BlockNumber(ctx)
		head = n
		return err
	})
	return head, err
}

// Status reports breaker and counters of every endpoint
func (s *Selector) Status() []EndpointStatus {
	out := make([]EndpointStatus, 0, len(s.endpoints))
	for _, e := range s.endpoints {
		stats, _ := s.metrics.Stats(e.ID)
		out = append(out, EndpointStatus{
			ID:      e.ID,
			Host:    redactURL(e.URL),
			Breaker: e.breaker.GetState(),
			Stats:   stats,
		})
	}
	return out
}

// ResetBreaker closes the breaker of an endpoint. It reports false for an unknown id.
func (s *Selector) ResetBreaker(endpointID string) bool {
	e := s.find(endpointID)
	if e == nil {
		return false
	}
	e.breaker.Reset()
	return true
}

// redactURL keeps the host only; RPC URLs often embed API keys
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "invalid-url"
	}
	return u.Scheme + "://" + u.Host
}
