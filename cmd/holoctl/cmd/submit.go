package cmd

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/chain"
	"github.com/holographxyz/holograph-sub000/internal/ethereum"
)

func newSubmitCmd(a *app) *cobra.Command {
	var (
		to       string
		nonce    int64
		gasLimit uint64
		wait     bool
		poll     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit <chain> <input-hex|@file|->",
		Short: "Send signed deploy call input to a chain",
		Long: `Decode signed call input, re-encode it and send it from the local signing
key. The transaction goes to --to, or to the configured factory.

Nonce and fees are fetched from the chain unless --nonce is given.

Examples:
  holoctl submit localhost @deploy.hex --wait
  holoctl submit 1338 0xdf6516bd... --key dev-1 --nonce 7`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := a.logger(cmd)

			cc, err := a.chainConfig(args[0])
			if err != nil {
				return err
			}
			raw, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			d, err := holograph.DecodeHex(raw)
			if err != nil {
				return err
			}

			var target common.Address
			if to != "" {
				if target, err = ethereum.DecodeAddress(to); err != nil {
					return holograph.NewValidationError("to", err.Error())
				}
			} else if target, err = a.factory(); err != nil {
				return err
			}

			key, err := a.localKey()
			if err != nil {
				return err
			}

			client, err := chain.Dial(ctx, cc, chain.WithLogger(logger))
			if err != nil {
				return err
			}
			defer client.Close()

			sub := chain.NewSubmitter(client, key.PrivateKey, logger)
			txc, err := sub.TxContext(ctx, gasLimit)
			if err != nil {
				return err
			}
			if nonce >= 0 {
				txc.Nonce = uint64(nonce)
			}

			hash, err := sub.SubmitDeployment(ctx, target, d, txc)
			if err != nil {
				return err
			}
			if !wait {
				fmt.Fprintln(cmd.OutOrStdout(), hash.Hex())
				return nil
			}
			receipt, err := sub.WaitForReceipt(ctx, hash, poll)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), receipt)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s in block %s (status %d, gas used %d)\n",
				hash.Hex(), receipt.BlockNumber, receipt.Status, receipt.GasUsed)
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "recipient (default: the configured factory)")
	cmd.Flags().Int64Var(&nonce, "nonce", -1, "nonce override (default: pending nonce from the chain)")
	cmd.Flags().Uint64Var(&gasLimit, "gas-limit", chain.DefaultDeployGasLimit, "gas limit")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the receipt")
	cmd.Flags().DurationVar(&poll, "poll", 2*time.Second, "receipt poll interval")
	return cmd
}
