package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cryptogift-wallets/giftclaim/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "giftclaim",
		Short: "CryptoGift claim service",
		Long: `Claim service for CryptoGift NFT wallets.

Relays gift claims to the escrow contract, follows them to confirmation
and finishes the metadata and wallet display steps afterwards.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cmd.ServeCmd())
	rootCmd.AddCommand(cmd.CheckCmd())
	rootCmd.AddCommand(cmd.VersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
