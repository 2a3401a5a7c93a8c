package config

import (
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/cryptogift-wallets/giftclaim/pkg/device"
	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
	"github.com/cryptogift-wallets/giftclaim/pkg/transport"
)

// Config holds the configuration of the claim service
type Config struct {
	APIEndpoint       string
	APIKey            string
	RPCURLs           []string
	ChainID           int64
	EscrowAddress     common.Address
	NFTContract       common.Address
	RelayerPrivateKey string
	GasMultiplier     float64
	Port              string
	MetricsAPIKey     string
	CORSOrigins       []string
	SubmitMaxAttempts int
	SyncMaxAttempts   int
	WarmupMaxAttempts int
	Timings           device.TimingSet
	CircuitBreaker    CircuitBreakerConfig
	LoggerConfig      LoggerConfig
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// Breaker converts the config for the transport selector
func (c CircuitBreakerConfig) Breaker() transport.BreakerConfig {
	return transport.BreakerConfig{
		Enabled:   c.Enabled,
		Threshold: c.Threshold,
		Window:    c.WindowDuration,
		Reset:     c.ResetTimeout,
	}
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}
	return loadFromEnv()
}

func loadFromEnv() (*Config, error) {
	apiEndpoint, err := GetEnvAPIEndpoint()
	if err != nil {
		return nil, err
	}

	rpcURLs, err := GetEnvRPCURLs()
	if err != nil {
		return nil, err
	}

	chainID, err := GetEnvChainID()
	if err != nil {
		return nil, err
	}

	escrow, err := GetEnvEscrowAddress()
	if err != nil {
		return nil, err
	}

	nft, err := GetEnvNFTContractAddress()
	if err != nil {
		return nil, err
	}

	privateKey, err := GetEnvRelayerPrivateKey()
	if err != nil {
		return nil, err
	}

	gasMultiplier, err := GetEnvGasMultiplier()
	if err != nil {
		return nil, err
	}

	port, err := GetEnvPort()
	if err != nil {
		return nil, err
	}

	submitAttempts, err := GetEnvSubmitMaxAttempts()
	if err != nil {
		return nil, err
	}

	syncAttempts, err := GetEnvSyncMaxAttempts()
	if err != nil {
		return nil, err
	}

	warmupAttempts, err := GetEnvWarmupMaxAttempts()
	if err != nil {
		return nil, err
	}

	timings, err := loadTimings()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIEndpoint:       apiEndpoint,
		APIKey:            getEnv("API_KEY"),
		RPCURLs:           rpcURLs,
		ChainID:           chainID,
		EscrowAddress:     escrow,
		NFTContract:       nft,
		RelayerPrivateKey: privateKey,
		GasMultiplier:     gasMultiplier,
		Port:              port,
		MetricsAPIKey:     getEnv("METRICS_API_KEY"),
		CORSOrigins:       GetEnvCORSOrigins(),
		SubmitMaxAttempts: submitAttempts,
		SyncMaxAttempts:   syncAttempts,
		WarmupMaxAttempts: warmupAttempts,
		Timings:           timings,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadTimings overrides the configurable fields of the default timing set
func loadTimings() (device.TimingSet, error) {
	timings := device.DefaultTimingSet()

	submit, constrainedSubmit, err := GetEnvSubmitTimeouts()
	if err != nil {
		return timings, err
	}
	confirm, constrainedConfirm, err := GetEnvConfirmTimeouts()
	if err != nil {
		return timings, err
	}
	warmup, err := GetEnvConstrainedWarmupDelay()
	if err != nil {
		return timings, err
	}

	timings.Standard.SubmitTimeout = submit
	timings.Standard.ExtendedSubmitTimeout = 2 * submit
	timings.Standard.ConfirmTimeout = confirm
	timings.Constrained.SubmitTimeout = constrainedSubmit
	timings.Constrained.ExtendedSubmitTimeout = 2 * constrainedSubmit
	timings.Constrained.ConfirmTimeout = constrainedConfirm
	timings.Constrained.WarmupDelay = warmup
	return timings, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Timings.Constrained.SubmitTimeout < cfg.Timings.Standard.SubmitTimeout {
		return fmt.Errorf("CONSTRAINED_SUBMIT_TIMEOUT must not be shorter than SUBMIT_TIMEOUT")
	}
	if cfg.Timings.Constrained.ConfirmTimeout < cfg.Timings.Standard.ConfirmTimeout {
		return fmt.Errorf("CONSTRAINED_CONFIRM_TIMEOUT must not be shorter than CONFIRM_TIMEOUT")
	}
	return nil
}

// ValidateForServe checks the settings only the claim service needs
func (c *Config) ValidateForServe() error {
	if c.EscrowAddress == (common.Address{}) {
		return fmt.Errorf("ESCROW_ADDRESS environment variable is required")
	}
	if c.NFTContract == (common.Address{}) {
		return fmt.Errorf("NFT_CONTRACT_ADDRESS environment variable is required")
	}
	if c.RelayerPrivateKey == "" {
		return fmt.Errorf("RELAYER_PRIVATE_KEY environment variable is required")
	}
	return nil
}
