package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/ethereum"
	"github.com/holographxyz/holograph-sub000/internal/metrics"
)

func newDecodeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <input-hex|@file|->",
		Short: "Decode a deploy, multi-chain deploy or operator job call",
		Long: `Decode the deployment config, signature and signer carried by call input.

Recognised calls:
  deployHolographableContract            (0xdf6516bd)
  deployHolographableContractMultiChain  (0x57b92d08)
  executeJob wrapping bridgeInRequest    (0x778fd1d1)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			input, err := ethereum.DecodeBytes(raw)
			if err != nil {
				return holograph.NewValidationError("input", err.Error())
			}

			shape, _ := holograph.ShapeOf(input)
			d, err := holograph.Decode(input)
			metrics.ObserveDecode(shape, err)
			if err != nil {
				return err
			}

			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), d)
			}
			return printDeployment(cmd, d)
		},
	}
	return cmd
}

func printDeployment(cmd *cobra.Command, d *holograph.Deployment) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Shape:\t%s\n", d.Shape)
	fmt.Fprintf(w, "Contract type:\t%s (%s)\n", ethereum.NamespaceName(d.Config.ContractType), ethereum.EncodeBytes(d.Config.ContractType[:]))
	fmt.Fprintf(w, "Chain type:\t%d\n", d.Config.ChainType)
	fmt.Fprintf(w, "Salt:\t%s\n", ethereum.EncodeBytes(d.Config.Salt[:]))
	fmt.Fprintf(w, "Bytecode:\t%d bytes (keccak %s)\n", len(d.Config.ByteCode), ethereum.EncodeHash(ethereum.Keccak256(d.Config.ByteCode)))
	fmt.Fprintf(w, "Init code:\t%d bytes (keccak %s)\n", len(d.Config.InitCode), ethereum.EncodeHash(ethereum.Keccak256(d.Config.InitCode)))
	fmt.Fprintf(w, "Signer:\t%s\n", ethereum.EncodeAddress(d.Signer))
	fmt.Fprintf(w, "Signature:\t%s\n", ethereum.EncodeBytes(d.Signature.Bytes()))
	fmt.Fprintf(w, "Config hash:\t%s\n", ethereum.EncodeHash(holograph.ComputeConfigHash(d.Config, d.Signer)))

	if job := d.Job; job != nil {
		fmt.Fprintf(w, "Job nonce:\t%s\n", job.Nonce)
		fmt.Fprintf(w, "From chain:\t%d\n", job.FromChain)
		fmt.Fprintf(w, "Holographable:\t%s\n", ethereum.EncodeAddress(job.HolographableContract))
		fmt.Fprintf(w, "Do not revert:\t%t\n", job.DoNotRevert)
		fmt.Fprintf(w, "Gas price:\t%s\n", job.GasPrice)
		fmt.Fprintf(w, "Gas limit:\t%s\n", job.GasLimit)
	}
	return w.Flush()
}
