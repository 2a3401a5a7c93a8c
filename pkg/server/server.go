// Package server exposes the claim orchestrator to the frontend over HTTP, together with
// health, readiness, transport status and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cryptogift-wallets/giftclaim/pkg/claim"
	"github.com/cryptogift-wallets/giftclaim/pkg/config"
	"github.com/cryptogift-wallets/giftclaim/pkg/device"
	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
	"github.com/cryptogift-wallets/giftclaim/pkg/models"
	"github.com/cryptogift-wallets/giftclaim/pkg/transport"
	"github.com/cryptogift-wallets/giftclaim/pkg/wallet"
)

// ClaimService runs claims and manual status checks
type ClaimService interface {
	Claim(ctx context.Context, req models.ClaimRequest, handle wallet.Handle, profile device.Profile) (models.ClaimOutcome, error)
	Recheck(ctx context.Context, in claim.RecheckInput) models.ClaimOutcome
}

// TransportStatus is the RPC layer as seen by the diagnostics endpoints
type TransportStatus interface {
	Status() []transport.EndpointStatus
	ResetBreaker(endpointID string) bool
	BlockNumber(ctx context.Context) (uint64, error)
}

// Pinger reports whether the backend is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure the server
type Options struct {
	Port                string
	MetricsAPIKey       string
	CORSOrigins         []string
	SessionTTL          time.Duration
	HealthCacheDuration time.Duration
	// ChainID selects the block explorer used for transaction links
	ChainID int64
}

// Server is the HTTP API
type Server struct {
	opts      Options
	claims    ClaimService
	wallet    wallet.Handle
	transport TransportStatus
	backend   Pinger
	sessions  *SessionStore
	logger    logger.Logger
}

// NewServer creates a server. transport and backend may be nil, which removes their health checks.
func NewServer(opts Options, claims ClaimService, handle wallet.Handle, ts TransportStatus, backend Pinger, log logger.Logger) *Server {
	if opts.HealthCacheDuration <= 0 {
		opts.HealthCacheDuration = time.Second
	}
	return &Server{
		opts:      opts,
		claims:    claims,
		wallet:    handle,
		transport: ts,
		backend:   backend,
		sessions:  NewSessionStore(opts.SessionTTL),
		logger:    log,
	}
}

// Handler returns the fully wrapped router
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/claims", s.createClaim).Methods(http.MethodPost)
	api.HandleFunc("/claims/{id}", s.getClaim).Methods(http.MethodGet)
	api.HandleFunc("/claims/{id}/recheck", s.recheckClaim).Methods(http.MethodPost)
	api.HandleFunc("/claims/{id}/dismiss", s.dismissClaim).Methods(http.MethodPost)

	r.Handle("/health", s.healthCheckHandler()).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.ready).Methods(http.MethodGet)
	r.HandleFunc("/status", s.status).Methods(http.MethodGet)
	r.HandleFunc("/circuit/reset", s.resetCircuit).Methods(http.MethodPost)
	r.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler())).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(s.notFound)

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	var h http.Handler = r
	h = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.logger}))(h)
	return otelhttp.NewHandler(h, "giftclaim-api")
}

// Start serves until ctx is canceled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.opts.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoWith(logger.HTTP, "Starting claim API on port %s", s.opts.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("claim API server error: %w", err)
	case <-ctx.Done():
		s.logger.InfoWith(logger.HTTP, "Shutting down claim API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// metricsAuthMiddleware checks the bearer key when one is configured
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.MetricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.opts.MetricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.wallet == nil {
		writeError(w, http.StatusServiceUnavailable, "no signing wallet configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.wallet.CanSign(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("wallet not ready: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"sessions": s.sessions.Len(),
		"network":  config.GetNetworkName(s.opts.ChainID),
	}
	if s.transport != nil {
		status["endpoints"] = s.transport.Status()
	}
	if s.wallet != nil {
		status["relayer"] = s.wallet.Address().Hex()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) resetCircuit(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("endpoint")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing endpoint parameter")
		return
	}
	if s.transport == nil || !s.transport.ResetBreaker(id) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no circuit breaker for endpoint %s", id))
		return
	}
	s.logger.NoticeWith(logger.HTTP, "Circuit breaker for %s reset by operator", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("circuit breaker for %s reset", id)})
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "page not found")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// recoveryLogger routes recovered panics to the logger
type recoveryLogger struct {
	log logger.Logger
}

func (l recoveryLogger) Println(args ...interface{}) {
	l.log.ErrorWith(logger.HTTP, "Recovered from panic: %s", fmt.Sprint(args...))
}
