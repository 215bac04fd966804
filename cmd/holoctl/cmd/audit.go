package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/audit"
	"github.com/holographxyz/holograph-sub000/internal/chain"
	"github.com/holographxyz/holograph-sub000/internal/config"
	"github.com/holographxyz/holograph-sub000/internal/ethereum"
)

// errAuditFailed is returned after printing a report that did not pass.
var errAuditFailed = errors.New("audit failed")

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit deployment call input or transactions",
		Long: `Decode a deployment call, recompute its config hash and predicted address,
and check its signature. Reports are cached in redis and archived in
Postgres when those are configured.

Exits non-zero when the signature is invalid, the predicted address
differs from the expected one or the registry does not know the contract
type.`,
	}
	cmd.AddCommand(newAuditInputCmd(a), newAuditTxCmd(a), newAuditShowCmd(a), newAuditHistoryCmd(a))
	return cmd
}

func newAuditInputCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "input <input-hex|@file|->",
		Short: "Audit raw call input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			input, err := ethereum.DecodeBytes(raw)
			if err != nil {
				return holograph.NewValidationError("input", err.Error())
			}

			auditor, done, err := a.newAuditor(cmd.Context(), a.logger(cmd))
			if err != nil {
				return err
			}
			defer done.Close()

			report, err := auditor.AuditInput(cmd.Context(), input)
			if err != nil {
				return err
			}
			return a.printReport(cmd, report)
		},
	}
}

func newAuditTxCmd(a *app) *cobra.Command {
	var expected string

	cmd := &cobra.Command{
		Use:   "tx <chain> <tx-hash>",
		Short: "Fetch a transaction's input and audit it",
		Long: `Fetch the input of a deploy or operator job transaction and audit it.
<chain> is a configured chain name or chain id. When a registry is
configured it is asked whether the contract type is registered and whether
the predicted address is deployed; without --expected, also where the
config was deployed.

Examples:
  holoctl audit tx mainnet 0x5c50... --expected 0x39fe...6977`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := a.logger(cmd)

			cc, err := a.chainConfig(args[0])
			if err != nil {
				return err
			}
			txHash, err := ethereum.DecodeHash(args[1])
			if err != nil {
				return holograph.NewValidationError("tx-hash", err.Error())
			}
			var want *common.Address
			if expected != "" {
				addr, err := ethereum.DecodeAddress(expected)
				if err != nil {
					return holograph.NewValidationError("expected", err.Error())
				}
				want = &addr
			}

			client, err := chain.Dial(ctx, cc, chain.WithLogger(logger))
			if err != nil {
				return err
			}
			defer client.Close()

			auditor, done, err := a.newAuditor(ctx, logger, client)
			if err != nil {
				return err
			}
			defer done.Close()

			report, err := auditor.AuditTransaction(ctx, client.ChainID(), txHash, want)
			if err != nil {
				return err
			}
			return a.printReport(cmd, report)
		},
	}

	cmd.Flags().StringVar(&expected, "expected", "", "address the deployment is expected at")
	return cmd
}

func newAuditShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <report-id>",
		Short: "Print an archived audit report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			auditor, done, err := a.newAuditor(cmd.Context(), a.logger(cmd))
			if err != nil {
				return err
			}
			defer done.Close()

			report, err := auditor.ArchivedReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newAuditHistoryCmd(a *app) *cobra.Command {
	var (
		configHash string
		signer     string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived audit reports for a config hash or signer",
		Long: `List archived audit reports, newest first. Exactly one of --config-hash
and --signer selects the reports.

Examples:
  holoctl audit history --config-hash 0xb96faa45...
  holoctl audit history --signer 0xf39F...2266 --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (configHash == "") == (signer == "") {
				return holograph.NewValidationError("history", "exactly one of --config-hash and --signer is required")
			}

			auditor, done, err := a.newAuditor(cmd.Context(), a.logger(cmd))
			if err != nil {
				return err
			}
			defer done.Close()

			var reports []*audit.Report
			if configHash != "" {
				h, err := ethereum.DecodeHash(configHash)
				if err != nil {
					return holograph.NewValidationError("config-hash", err.Error())
				}
				reports, err = auditor.ReportsForConfig(cmd.Context(), h)
				if err != nil {
					return err
				}
			} else {
				addr, err := ethereum.DecodeAddress(signer)
				if err != nil {
					return holograph.NewValidationError("signer", err.Error())
				}
				reports, err = auditor.ReportsBySigner(cmd.Context(), addr, limit)
				if err != nil {
					return err
				}
			}
			if reports == nil {
				reports = []*audit.Report{}
			}
			return printJSON(cmd.OutOrStdout(), reports)
		},
	}

	cmd.Flags().StringVar(&configHash, "config-hash", "", "list reports for this config hash")
	cmd.Flags().StringVar(&signer, "signer", "", "list reports signed by this address")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum reports listed by --signer")
	return cmd
}

// chainConfig resolves a configured chain by name or id. An unconfigured
// value is an error: there is no RPC URL to dial.
func (a *app) chainConfig(ref string) (config.ChainConfig, error) {
	if cc, ok := a.cfg.Chain(ref); ok {
		return cc, nil
	}
	if _, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return config.ChainConfig{}, fmt.Errorf("%w: chain id %s is not configured", chain.ErrUnknownChain, ref)
	}
	return config.ChainConfig{}, fmt.Errorf("%w: %q is not configured", chain.ErrUnknownChain, ref)
}

func (a *app) printReport(cmd *cobra.Command, report *audit.Report) error {
	if err := printJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if !report.Passed() {
		return errAuditFailed
	}
	return nil
}
