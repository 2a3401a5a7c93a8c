package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cryptogift-wallets/giftclaim/pkg/config"
	"github.com/cryptogift-wallets/giftclaim/pkg/confirm"
	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
	"github.com/cryptogift-wallets/giftclaim/pkg/models"
)

const flagTimeout = "timeout"

// CheckCmd returns the command looking up the status of a claim transaction.
func CheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <tx-hash>",
		Short: "Check the confirmation status of a claim transaction",
		Long: `Look the receipt of a claim transaction up once, through the configured RPC
endpoints. Nothing is sent.

Example:
  giftclaim check 0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060
`,
		Args: cobra.ExactArgs(1),
		RunE: runCheck,
	}
	cmd.Flags().Duration(flagTimeout, 15*time.Second, "lookup timeout")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	raw := args[0]
	if len(raw) != 66 || raw[:2] != "0x" {
		return fmt.Errorf("invalid transaction hash: %s", raw)
	}
	hash := common.HexToHash(raw)

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	timeout, _ := cmd.Flags().GetDuration(flagTimeout)
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	log := logger.NewStdLogger(cfg.LoggerConfig.Coloring, logger.ErrorLevel)
	selector, err := dialSelector(ctx, cfg, log)
	if err != nil {
		return err
	}

	record, err := confirm.NewWaiter(selector, cfg.Timings, log).CheckStatus(ctx, hash)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	fmt.Fprintln(cmd.OutOrStdout(), statusLine(record.Status))
	if link := config.TransactionURL(cfg.ChainID, hash.Hex()); link != "" {
		fmt.Fprintln(cmd.OutOrStdout(), link)
	}
	return nil
}

func statusLine(status models.ConfirmationStatus) string {
	switch status {
	case models.ConfirmationSuccess:
		return color.GreenString("confirmed")
	case models.ConfirmationReverted:
		return color.RedString("reverted")
	case models.ConfirmationPending:
		return color.YellowString("not mined yet")
	}
	return color.YellowString(string(status))
}
