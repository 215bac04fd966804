package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/ethereum"
)

func newPredictCmd(a *app) *cobra.Command {
	var (
		deployment string
		signer     string
		input      string
	)

	cmd := &cobra.Command{
		Use:   "predict [config-hash]",
		Short: "Predict the CREATE2 address of a deployment",
		Long: `Predict the address the factory deploys a config to:
CREATE2(factory, configHash, keccak256(enforcerBytecode)).

Pass a config hash, or a config with its signer (--deployment/--signer), or
call input (--input). --factory and --enforcer-bytecode (or their config
keys) are required.

Examples:
  holoctl predict 0xb96faa45... --factory 0x... --enforcer-bytecode 0x6080...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := a.predictor()
			if err != nil {
				return err
			}

			var hash common.Hash
			if len(args) == 1 {
				hash, err = ethereum.DecodeHash(args[0])
				if err != nil {
					return holograph.NewValidationError("config-hash", err.Error())
				}
			} else {
				cfg, addr, err := configAndSigner(cmd, deployment, signer, input)
				if err != nil {
					return err
				}
				hash = holograph.ComputeConfigHash(cfg, addr)
			}
			addr := p.Predict(hash)

			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"configHash": hash,
					"factory":    p.Factory(),
					"address":    addr,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), ethereum.EncodeAddress(addr))
			return nil
		},
	}

	cmd.Flags().StringVar(&deployment, "deployment", "", "deployment config JSON (inline, @file or -)")
	cmd.Flags().StringVar(&signer, "signer", "", "designated signer address")
	cmd.Flags().StringVar(&input, "input", "", "deploy call input hex (inline, @file or -)")
	cmd.MarkFlagsMutuallyExclusive("deployment", "input")
	return cmd
}
