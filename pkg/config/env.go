package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
)

const (
	// DefaultAPIEndpoint is the CryptoGift backend
	DefaultAPIEndpoint = "https://cryptogift-wallets.vercel.app"

	// DefaultRPCURLs is the public Base Sepolia endpoint
	DefaultRPCURLs = "https://sepolia.base.org"

	// DefaultChainID is Base Sepolia
	DefaultChainID = 84532

	// DefaultGasMultiplier buffers the suggested gas price
	DefaultGasMultiplier = 1.1

	// DefaultPort is the HTTP API port
	DefaultPort = "8080"

	// DefaultCORSOrigins allows any frontend origin
	DefaultCORSOrigins = "*"

	// DefaultSubmitMaxAttempts is the submission attempt ceiling
	DefaultSubmitMaxAttempts = 3

	// DefaultSyncMaxAttempts is the metadata sync attempt ceiling
	DefaultSyncMaxAttempts = 3

	// DefaultWarmupMaxAttempts is the metadata warm-up poll ceiling
	DefaultWarmupMaxAttempts = 5

	DefaultSubmitTimeout            = 30 * time.Second
	DefaultConstrainedSubmitTimeout = 60 * time.Second

	DefaultConfirmTimeout            = 60 * time.Second
	DefaultConstrainedConfirmTimeout = 120 * time.Second

	// DefaultConstrainedWarmupDelay is waited before the first send on constrained devices
	DefaultConstrainedWarmupDelay = 1500 * time.Millisecond

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 5 * time.Second

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 15 * time.Second

	// DefaultLogLevel is the minimum level printed
	DefaultLogLevel = "info"
)

// GetEnvAPIEndpoint returns the backend API endpoint from environment variables
func GetEnvAPIEndpoint() (string, error) {
	apiEndpoint := os.Getenv("API_ENDPOINT")
	if apiEndpoint == "" {
		return DefaultAPIEndpoint, nil
	}

	// Validate URL format
	if _, err := url.ParseRequestURI(apiEndpoint); err != nil {
		return "", fmt.Errorf("invalid API_ENDPOINT value: %s, must be a valid URL", apiEndpoint)
	}
	return strings.TrimRight(apiEndpoint, "/"), nil
}

// GetEnvRPCURLs returns the RPC endpoints in selection order
func GetEnvRPCURLs() ([]string, error) {
	raw := os.Getenv("RPC_URLS")
	if raw == "" {
		raw = DefaultRPCURLs
	}

	var urls []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		u, err := url.ParseRequestURI(part)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid RPC_URLS entry: %s, must be a valid URL", part)
		}
		urls = append(urls, part)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("RPC_URLS must contain at least one URL")
	}
	return urls, nil
}

// GetEnvChainID returns the chain id from environment variables
func GetEnvChainID() (int64, error) {
	chainID := os.Getenv("CHAIN_ID")
	if chainID == "" {
		return DefaultChainID, nil
	}

	id, err := strconv.ParseInt(chainID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid CHAIN_ID value: %s, must be an integer", chainID)
	}
	if id <= 0 {
		return 0, fmt.Errorf("CHAIN_ID must be greater than 0")
	}
	return id, nil
}

// GetEnvEscrowAddress returns the gift escrow address; zero when unset
func GetEnvEscrowAddress() (common.Address, error) {
	return getEnvAddress("ESCROW_ADDRESS")
}

// GetEnvNFTContractAddress returns the gift NFT contract address; zero when unset
func GetEnvNFTContractAddress() (common.Address, error) {
	return getEnvAddress("NFT_CONTRACT_ADDRESS")
}

// GetEnvRelayerPrivateKey returns the relayer key without its 0x prefix
func GetEnvRelayerPrivateKey() (string, error) {
	key := strings.TrimPrefix(strings.TrimSpace(os.Getenv("RELAYER_PRIVATE_KEY")), "0x")
	if key == "" {
		return "", nil
	}
	if _, err := crypto.HexToECDSA(key); err != nil {
		return "", fmt.Errorf("invalid RELAYER_PRIVATE_KEY value: must be a hex encoded secp256k1 key")
	}
	return key, nil
}

// GetEnvGasMultiplier returns the gas price multiplier from environment variables
func GetEnvGasMultiplier() (float64, error) {
	multiplier := os.Getenv("GAS_MULTIPLIER")
	if multiplier == "" {
		return DefaultGasMultiplier, nil
	}

	parsed, err := strconv.ParseFloat(multiplier, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid GAS_MULTIPLIER value: %s, must be a number", multiplier)
	}
	if parsed < 1 {
		return 0, fmt.Errorf("GAS_MULTIPLIER must be at least 1")
	}
	return parsed, nil
}

// GetEnvPort returns the HTTP API port from environment variables
func GetEnvPort() (string, error) {
	port := os.Getenv("PORT")
	if port == "" {
		return DefaultPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid PORT value: %s, must be a valid integer", port)
	}
	return port, nil
}

// GetEnvCORSOrigins returns the allowed frontend origins
func GetEnvCORSOrigins() []string {
	raw := os.Getenv("CORS_ORIGINS")
	if raw == "" {
		raw = DefaultCORSOrigins
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// GetEnvSubmitMaxAttempts returns the submission attempt ceiling
func GetEnvSubmitMaxAttempts() (int, error) {
	return getEnvPositiveInt("SUBMIT_MAX_ATTEMPTS", DefaultSubmitMaxAttempts)
}

// GetEnvSyncMaxAttempts returns the metadata sync attempt ceiling
func GetEnvSyncMaxAttempts() (int, error) {
	return getEnvPositiveInt("SYNC_MAX_ATTEMPTS", DefaultSyncMaxAttempts)
}

// GetEnvWarmupMaxAttempts returns the metadata warm-up poll ceiling
func GetEnvWarmupMaxAttempts() (int, error) {
	return getEnvPositiveInt("WARMUP_MAX_ATTEMPTS", DefaultWarmupMaxAttempts)
}

// GetEnvSubmitTimeouts returns the standard and constrained send timeouts
func GetEnvSubmitTimeouts() (time.Duration, time.Duration, error) {
	standard, err := getEnvDuration("SUBMIT_TIMEOUT", DefaultSubmitTimeout)
	if err != nil {
		return 0, 0, err
	}
	constrained, err := getEnvDuration("CONSTRAINED_SUBMIT_TIMEOUT", DefaultConstrainedSubmitTimeout)
	if err != nil {
		return 0, 0, err
	}
	return standard, constrained, nil
}

// GetEnvConfirmTimeouts returns the standard and constrained confirmation timeouts
func GetEnvConfirmTimeouts() (time.Duration, time.Duration, error) {
	standard, err := getEnvDuration("CONFIRM_TIMEOUT", DefaultConfirmTimeout)
	if err != nil {
		return 0, 0, err
	}
	constrained, err := getEnvDuration("CONSTRAINED_CONFIRM_TIMEOUT", DefaultConstrainedConfirmTimeout)
	if err != nil {
		return 0, 0, err
	}
	return standard, constrained, nil
}

// GetEnvConstrainedWarmupDelay returns the delay before the first send on constrained devices
func GetEnvConstrainedWarmupDelay() (time.Duration, error) {
	return getEnvDuration("CONSTRAINED_WARMUP_DELAY", DefaultConstrainedWarmupDelay)
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	return getEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	return getEnvPositiveInt("CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold)
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow)
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset)
}

// GetEnvLogLevel returns the minimum log level
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = DefaultLogLevel
	}
	parsed, ok := logger.ParseLevel(level)
	if !ok {
		return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be one of debug, info, notice, error", level)
	}
	return parsed, nil
}

// GetEnvLogColoring returns whether log components are colored
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", true)
}

func getEnvAddress(name string) (common.Address, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return common.Address{}, nil
	}
	// Validate Ethereum address format
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s value: %s, must be a valid Ethereum address", name, raw)
	}
	return common.HexToAddress(raw), nil
}

func getEnvBool(name string, def bool) (bool, error) {
	value := os.Getenv(name)
	switch value {
	case "":
		return def, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", name, value)
}

func getEnvPositiveInt(name string, def int) (int, error) {
	value := os.Getenv(name)
	if value == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", name, value)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", name)
	}
	return parsed, nil
}

func getEnvDuration(name string, def time.Duration) (time.Duration, error) {
	value := os.Getenv(name)
	if value == "" {
		return def, nil
	}
	// Validate duration format
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", name, value)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", name)
	}
	return parsed, nil
}

func getEnv(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}
