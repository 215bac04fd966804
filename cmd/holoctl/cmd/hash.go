package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/ethereum"
)

func newHashCmd(a *app) *cobra.Command {
	var (
		deployment string
		signer     string
		input      string
	)

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Compute the config hash of a deployment config",
		Long: `Compute keccak256(contractType || chainType || salt || keccak256(byteCode) ||
keccak256(initCode) || signer) for a deployment config.

The config comes either from a JSON file written by "holoctl build" (with
--signer) or from deploy call input (--input), whose signer is used.

Examples:
  holoctl hash --deployment @config.json --signer 0xf39F...2266
  holoctl hash --input 0xdf6516bd...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, addr, err := configAndSigner(cmd, deployment, signer, input)
			if err != nil {
				return err
			}
			hash := holograph.ComputeConfigHash(cfg, addr)

			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"configHash": hash,
					"signer":     addr,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), ethereum.EncodeHash(hash))
			return nil
		},
	}

	cmd.Flags().StringVar(&deployment, "deployment", "", "deployment config JSON (inline, @file or -)")
	cmd.Flags().StringVar(&signer, "signer", "", "designated signer address")
	cmd.Flags().StringVar(&input, "input", "", "deploy call input hex (inline, @file or -)")
	cmd.MarkFlagsMutuallyExclusive("deployment", "input")
	return cmd
}

// configAndSigner loads a config and signer either from a config JSON plus
// signer address, or from call input.
func configAndSigner(cmd *cobra.Command, deployment, signer, input string) (holograph.DeploymentConfig, common.Address, error) {
	if input != "" {
		raw, err := readInput(cmd, input)
		if err != nil {
			return holograph.DeploymentConfig{}, common.Address{}, err
		}
		d, err := holograph.DecodeHex(raw)
		if err != nil {
			return holograph.DeploymentConfig{}, common.Address{}, err
		}
		return d.Config, d.Signer, nil
	}

	if deployment == "" {
		return holograph.DeploymentConfig{}, common.Address{}, fmt.Errorf("--deployment or --input is required")
	}
	raw, err := readInput(cmd, deployment)
	if err != nil {
		return holograph.DeploymentConfig{}, common.Address{}, err
	}
	cfg, err := parseDeploymentConfig(raw)
	if err != nil {
		return holograph.DeploymentConfig{}, common.Address{}, err
	}
	if signer == "" {
		return holograph.DeploymentConfig{}, common.Address{}, holograph.NewValidationError("signer", "is required")
	}
	addr, err := ethereum.DecodeAddress(signer)
	if err != nil {
		return holograph.DeploymentConfig{}, common.Address{}, holograph.NewValidationError("signer", err.Error())
	}
	return cfg, addr, nil
}

// parseDeploymentConfig accepts either a bare config or the output of
// holoctl build, which nests it under "config".
func parseDeploymentConfig(raw string) (holograph.DeploymentConfig, error) {
	var wrapped struct {
		Config *holograph.DeploymentConfig `json:"config"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && wrapped.Config != nil {
		return *wrapped.Config, nil
	}

	var cfg holograph.DeploymentConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return holograph.DeploymentConfig{}, fmt.Errorf("parse deployment config: %w", err)
	}
	return cfg, nil
}
