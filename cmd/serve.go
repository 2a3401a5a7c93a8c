package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cryptogift-wallets/giftclaim/pkg/backend"
	"github.com/cryptogift-wallets/giftclaim/pkg/claim"
	"github.com/cryptogift-wallets/giftclaim/pkg/config"
	"github.com/cryptogift-wallets/giftclaim/pkg/confirm"
	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
	"github.com/cryptogift-wallets/giftclaim/pkg/postclaim"
	"github.com/cryptogift-wallets/giftclaim/pkg/server"
	"github.com/cryptogift-wallets/giftclaim/pkg/submitter"
	"github.com/cryptogift-wallets/giftclaim/pkg/transport"
	"github.com/cryptogift-wallets/giftclaim/pkg/wallet"
)

const (
	flagPort = "port"

	// transportMetricsWindow is the number of recent calls kept per endpoint
	transportMetricsWindow = 50
)

// ServeCmd returns the command running the claim API.
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the claim API",
		Long: `Start the gift claim API.

The API validates claims with the CryptoGift backend, relays the claim transaction
through the configured RPC endpoints, waits for confirmation and then syncs the
gift metadata and registers the NFT for display.

Example:
  giftclaim serve --port 8080
`,
		RunE: runServe,
	}
	cmd.Flags().String(flagPort, "", "HTTP port, overrides PORT")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetString(flagPort); port != "" {
		cfg.Port = port
	}

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)
	log.Info("Starting gift claim service on %s", config.GetNetworkName(cfg.ChainID))

	selector, err := dialSelector(ctx, cfg, log)
	if err != nil {
		return err
	}

	relayer, err := wallet.NewKeyedWallet(
		cfg.RelayerPrivateKey,
		cfg.ChainID,
		cfg.GasMultiplier,
		selector,
		wallet.NewNonceTracker(0, log),
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create relayer wallet: %w", err)
	}
	log.Info("Relaying claims from %s", relayer.Address().Hex())

	api := backend.New(cfg.APIEndpoint, cfg.APIKey, log)

	orchestrator, err := claim.NewOrchestrator(claim.Deps{
		Validator: api,
		Submitter: submitter.New(api, cfg.Timings, cfg.SubmitMaxAttempts, log),
		Confirmer: confirm.NewWaiter(selector, cfg.Timings, log),
		Syncer:    postclaim.NewSynchronizer(api, cfg.Timings, cfg.SyncMaxAttempts, log),
		Registrar: postclaim.NewRegistrar(api, cfg.Timings, cfg.WarmupMaxAttempts, log),
		Lookup:    api,
	}, claim.Options{
		EscrowAddress: cfg.EscrowAddress,
		NFTContract:   cfg.NFTContract,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create claim orchestrator: %w", err)
	}

	srv := server.NewServer(server.Options{
		Port:          cfg.Port,
		MetricsAPIKey: cfg.MetricsAPIKey,
		CORSOrigins:   cfg.CORSOrigins,
		ChainID:       cfg.ChainID,
	}, orchestrator, relayer, selector, api, log)

	if err := srv.Start(ctx); err != nil {
		return err
	}
	log.Info("Gift claim service stopped")
	return nil
}

func dialSelector(ctx context.Context, cfg *config.Config, log logger.Logger) (*transport.Selector, error) {
	endpoints, err := transport.DialEndpoints(ctx, cfg.RPCURLs)
	if err != nil {
		return nil, err
	}
	return transport.NewSelector(
		endpoints,
		transport.NewTransportMetrics(transportMetricsWindow),
		cfg.CircuitBreaker.Breaker(),
		log,
	)
}
