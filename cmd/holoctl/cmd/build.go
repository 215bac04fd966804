package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/builder"
	"github.com/holographxyz/holograph-sub000/internal/chain"
	"github.com/holographxyz/holograph-sub000/internal/ethereum"
)

type buildOutput struct {
	Template         builder.Template           `json:"template"`
	Config           holograph.DeploymentConfig `json:"config"`
	Signer           *common.Address            `json:"signer,omitempty"`
	ConfigHash       *common.Hash               `json:"configHash,omitempty"`
	SigningDigest    *common.Hash               `json:"signingDigest,omitempty"`
	PredictedAddress *common.Address            `json:"predictedAddress,omitempty"`
}

func newBuildCmd(a *app) *cobra.Command {
	var (
		signer     string
		chainRef   string
		randomSalt bool
	)

	cmd := &cobra.Command{
		Use:   "build <request.json|@file|->",
		Short: "Build a deployment config from template parameters",
		Long: `Build a deployment config from a JSON template request.

The request names one of the templates (` + templateList() + `)
with its collection, owner and drop parameters. With --signer the config
hash is computed too, and the predicted address when the factory and
enforcer bytecode are configured.

Examples:
  holoctl build @request.json --signer 0xf39F...2266
  holoctl build @request.json --chain mainnet --random-salt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var req builder.Request
			if err := json.Unmarshal([]byte(raw), &req); err != nil {
				return fmt.Errorf("parse request: %w", err)
			}

			if chainRef != "" {
				ct, err := a.chainType(chainRef)
				if err != nil {
					return err
				}
				req.ChainType = ct
			}
			if randomSalt {
				salt, err := builder.RandomSalt()
				if err != nil {
					return err
				}
				req.Salt = builder.SaltHex(salt)
			}

			registry, err := a.registry()
			if err != nil {
				return err
			}
			cfg, err := builder.New(registry).Build(req)
			if err != nil {
				return err
			}

			out := buildOutput{Template: req.Template, Config: cfg}
			if signer != "" {
				addr, err := ethereum.DecodeAddress(signer)
				if err != nil {
					return holograph.NewValidationError("signer", err.Error())
				}
				mode, err := a.mode("")
				if err != nil {
					return err
				}
				hash := holograph.ComputeConfigHash(cfg, addr)
				digest := mode.Digest(hash)
				out.Signer = &addr
				out.ConfigHash = &hash
				out.SigningDigest = &digest
				if p, _, err := a.predictor(); err == nil {
					predicted := p.Predict(hash)
					out.PredictedAddress = &predicted
				}
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&signer, "signer", "", "designated signer; adds the config hash to the output")
	cmd.Flags().StringVar(&chainRef, "chain", "", "configured chain name or chain id; sets chainType")
	cmd.Flags().BoolVar(&randomSalt, "random-salt", false, "replace the request salt with 32 random bytes")
	return cmd
}

// chainType translates a configured chain name, or a decimal chain id,
// into its Holograph chain type.
func (a *app) chainType(ref string) (uint32, error) {
	table := chain.NewTable(a.cfg.Chains)
	if ch, ok := a.cfg.Chain(ref); ok {
		return table.ChainType(ch.ChainID)
	}
	id, err := strconv.ParseUint(ref, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", chain.ErrUnknownChain, ref)
	}
	return table.ChainType(id)
}

func templateList() string {
	s := ""
	for i, t := range builder.Templates() {
		if i > 0 {
			s += ", "
		}
		s += string(t)
	}
	return s
}
