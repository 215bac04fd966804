package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/ethereum"
	"github.com/holographxyz/holograph-sub000/internal/metrics"
)

func newVerifyCmd(a *app) *cobra.Command {
	var (
		signature string
		signer    string
		mode      string
	)

	cmd := &cobra.Command{
		Use:   "verify <config-hash>",
		Short: "Verify a config hash signature against a signer",
		Long: `Recover the signer of a 65-byte r||s||v signature over a config hash and
compare it with the claimed signer. Without --mode both signing modes are
tried and the matching one is reported.

Exits non-zero when the signature does not verify.

Examples:
  holoctl verify 0xb96faa45... --signature 0x<r><s><v> --signer 0xf39F...2266`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := ethereum.DecodeHash(args[0])
			if err != nil {
				return holograph.NewValidationError("config-hash", err.Error())
			}
			packed, err := ethereum.DecodeBytes(signature)
			if err != nil {
				return holograph.NewValidationError("signature", err.Error())
			}
			sig, err := holograph.SignatureFromBytes(packed)
			if err != nil {
				return err
			}
			claimed, err := ethereum.DecodeAddress(signer)
			if err != nil {
				return holograph.NewValidationError("signer", err.Error())
			}

			var (
				valid    bool
				detected holograph.SigningMode
			)
			if mode == "" {
				detected, valid = holograph.DetectSigningMode(hash, sig, claimed)
			} else {
				detected, err = holograph.ParseSigningMode(mode)
				if err != nil {
					return err
				}
				valid = holograph.Verify(hash, sig, claimed, detected)
			}
			metrics.ObserveVerify(valid)

			if a.jsonOut {
				out := map[string]interface{}{"valid": valid}
				if valid {
					out["signingMode"] = detected.String()
				}
				if err := printJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
			} else if valid {
				fmt.Fprintf(cmd.OutOrStdout(), "%s signature by %s (%s)\n", colorGreen("valid"), ethereum.EncodeAddress(claimed), detected)
			}
			if !valid {
				return holograph.ErrVerificationFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&signature, "signature", "", "65-byte r||s||v signature hex")
	cmd.Flags().StringVar(&signer, "signer", "", "claimed signer address")
	cmd.Flags().StringVar(&mode, "mode", "", "signing mode: raw or prefixed (default: try both)")
	_ = cmd.MarkFlagRequired("signature")
	_ = cmd.MarkFlagRequired("signer")
	return cmd
}
