package config

import "fmt"

// Network describes a chain the gift escrow is deployed on
type Network struct {
	Name     string
	Explorer string
}

var networks = map[int64]Network{
	8453:  {Name: "BASE", Explorer: "https://basescan.org"},
	84532: {Name: "BASE_SEPOLIA", Explorer: "https://sepolia.basescan.org"},
}

// GetNetwork returns the network of a chain id
func GetNetwork(chainID int64) (Network, bool) {
	n, ok := networks[chainID]
	return n, ok
}

// GetNetworkName returns the name of the chain for a given chain ID
func GetNetworkName(chainID int64) string {
	if n, ok := networks[chainID]; ok {
		return n.Name
	}
	return fmt.Sprintf("CHAIN_%d", chainID)
}

// TransactionURL returns the explorer link of a transaction; empty for unknown chains
func TransactionURL(chainID int64, txHash string) string {
	n, ok := networks[chainID]
	if !ok {
		return ""
	}
	return n.Explorer + "/tx/" + txHash
}
