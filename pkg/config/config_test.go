package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultAPIEndpoint, cfg.APIEndpoint)
	assert.Equal(t, []string{DefaultRPCURLs}, cfg.RPCURLs)
	assert.Equal(t, int64(DefaultChainID), cfg.ChainID)
	assert.Equal(t, DefaultSubmitMaxAttempts, cfg.SubmitMaxAttempts)
	assert.Equal(t, DefaultSubmitTimeout, cfg.Timings.Standard.SubmitTimeout)
	assert.Equal(t, 2*DefaultSubmitTimeout, cfg.Timings.Standard.ExtendedSubmitTimeout)
	assert.Equal(t, DefaultConstrainedWarmupDelay, cfg.Timings.Constrained.WarmupDelay)
	assert.Equal(t, logger.InfoLevel, cfg.LoggerConfig.Level)
	assert.True(t, cfg.CircuitBreaker.Enabled)

	assert.Error(t, cfg.ValidateForServe(), "escrow, contract and key are required to serve")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_ENDPOINT", "https://gift.example.org/")
	t.Setenv("RPC_URLS", "https://a.example.org, https://b.example.org")
	t.Setenv("CHAIN_ID", "8453")
	t.Setenv("ESCROW_ADDRESS", "0x00000000000000000000000000000000000000e1")
	t.Setenv("NFT_CONTRACT_ADDRESS", "0x00000000000000000000000000000000000000f1")
	t.Setenv("RELAYER_PRIVATE_KEY", "0x"+testKey)
	t.Setenv("SUBMIT_TIMEOUT", "10s")
	t.Setenv("CONSTRAINED_SUBMIT_TIMEOUT", "20s")
	t.Setenv("CIRCUIT_BREAKER_THRESHOLD", "3")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := loadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://gift.example.org", cfg.APIEndpoint)
	assert.Equal(t, []string{"https://a.example.org", "https://b.example.org"}, cfg.RPCURLs)
	assert.Equal(t, int64(8453), cfg.ChainID)
	assert.Equal(t, common.HexToAddress("0xe1"), cfg.EscrowAddress)
	assert.Equal(t, testKey, cfg.RelayerPrivateKey)
	assert.Equal(t, 10*time.Second, cfg.Timings.Standard.SubmitTimeout)
	assert.Equal(t, 40*time.Second, cfg.Timings.Constrained.ExtendedSubmitTimeout)
	assert.Equal(t, 3, cfg.CircuitBreaker.Breaker().Threshold)
	assert.Equal(t, logger.DebugLevel, cfg.LoggerConfig.Level)
	assert.NoError(t, cfg.ValidateForServe())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"RPC_URLS":                   "not a url",
		"CHAIN_ID":                   "-1",
		"ESCROW_ADDRESS":             "0x123",
		"RELAYER_PRIVATE_KEY":        "zz",
		"GAS_MULTIPLIER":             "0.5",
		"SUBMIT_MAX_ATTEMPTS":        "0",
		"CONFIRM_TIMEOUT":            "soon",
		"CIRCUIT_BREAKER_ENABLED":    "yes",
		"LOG_LEVEL":                  "verbose",
		"CONSTRAINED_SUBMIT_TIMEOUT": "1s",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			_, err := loadFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestNetworks(t *testing.T) {
	assert.Equal(t, "BASE_SEPOLIA", GetNetworkName(84532))
	assert.Equal(t, "CHAIN_1", GetNetworkName(1))
	assert.Equal(t, "https://basescan.org/tx/0xabc", TransactionURL(8453, "0xabc"))
	assert.Empty(t, TransactionURL(1, "0xabc"))
}
