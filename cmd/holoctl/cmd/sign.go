package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/config"
	"github.com/holographxyz/holograph-sub000/internal/ethereum"
	"github.com/holographxyz/holograph-sub000/internal/keystore"
	"github.com/holographxyz/holograph-sub000/internal/metrics"
)

type signOutput struct {
	ConfigHash common.Hash         `json:"configHash"`
	Signer     common.Address      `json:"signer"`
	Mode       string              `json:"signingMode"`
	Signature  holograph.Signature `json:"signature"`
	Packed     string              `json:"packed"`
	Input      string              `json:"input,omitempty"`
}

func newSignCmd(a *app) *cobra.Command {
	var (
		mode       string
		deployment string
		confirm    bool
		encode     bool
	)

	cmd := &cobra.Command{
		Use:   "sign [config-hash]",
		Short: "Sign a config hash with the configured signer",
		Long: `Sign a config hash with the local keystore or OpenBao.

Under the raw mode the 32-byte hash itself is signed; under the prefixed
mode the Ethereum signed-message hash of it. With --deployment the hash is
computed for the signing key's address, and --encode also prints the
complete deploy call input.

Examples:
  holoctl sign 0xb96faa45... --key dev-0
  holoctl sign --deployment @config.json --encode --confirm
  holoctl sign 0x... --backend openbao --key my-deployer
  holoctl sign 0x... --backend openbao --key 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.mode(mode)
			if err != nil {
				return err
			}

			signer, closeSigner, err := a.signer(ctx, a.logger(cmd))
			if err != nil {
				return err
			}
			defer closeSigner()
			if confirm {
				signer = &holograph.ConfirmingSigner{
					Signer:  signer,
					Confirm: promptConfirm(cmd.InOrStdin(), cmd.ErrOrStderr()),
				}
			}

			var (
				hash common.Hash
				cfg  *holograph.DeploymentConfig
			)
			switch {
			case len(args) == 1:
				hash, err = ethereum.DecodeHash(args[0])
				if err != nil {
					return holograph.NewValidationError("config-hash", err.Error())
				}
			case deployment != "":
				raw, err := readInput(cmd, deployment)
				if err != nil {
					return err
				}
				c, err := parseDeploymentConfig(raw)
				if err != nil {
					return err
				}
				cfg = &c
				hash = holograph.ComputeConfigHash(c, signer.Address())
			default:
				return fmt.Errorf("a config hash or --deployment is required")
			}
			if encode && cfg == nil {
				return fmt.Errorf("--encode needs --deployment")
			}

			sig, err := holograph.Sign(ctx, hash, signer, m)
			metrics.ObserveSign(m, err)
			if err != nil {
				return err
			}

			out := signOutput{
				ConfigHash: hash,
				Signer:     signer.Address(),
				Mode:       m.String(),
				Signature:  sig,
				Packed:     ethereum.EncodeBytes(sig.Bytes()),
			}
			if encode {
				input, err := holograph.EncodeDeployCall(*cfg, sig, signer.Address())
				if err != nil {
					return err
				}
				out.Input = ethereum.EncodeBytes(input)
			}

			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), out)
			}
			if encode {
				fmt.Fprintln(cmd.OutOrStdout(), out.Input)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Packed)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "signing mode override: raw or prefixed")
	cmd.Flags().StringVar(&deployment, "deployment", "", "deployment config JSON (inline, @file or -)")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "ask for confirmation before signing")
	cmd.Flags().BoolVar(&encode, "encode", false, "print the signed deploy call input")
	return cmd
}

// signer opens the configured signing back-end. The returned func releases
// it.
func (a *app) signer(ctx context.Context, logger *slog.Logger) (holograph.Signer, func(), error) {
	switch a.cfg.Signer.Backend {
	case config.BackendOpenBao:
		bc := a.cfg.Signer.OpenBao.BaoConfig()
		if ref, ok := a.keyOverride(); ok {
			bc.KeyName = ref
		}
		s, err := holograph.NewBaoSigner(ctx, bc, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		key, err := a.localKey()
		if err != nil {
			return nil, nil, err
		}
		return key.Signer(), func() {}, nil
	}
}

// keystore returns the dev keys plus the configured private key, if any.
func (a *app) keystore() (*keystore.Keystore, error) {
	ks := keystore.NewKeystore()
	keys, err := keystore.LoadDevKeys()
	if err != nil {
		return nil, err
	}
	if a.cfg.Signer.PrivateKey != "" {
		key, err := keystore.ParseKey("configured", a.cfg.Signer.PrivateKey)
		if err != nil {
			return nil, err
		}
		// The configured key is added first so it wins over a matching dev key.
		keys = append([]*keystore.Key{key}, keys...)
	}
	for _, key := range keys {
		if err := ks.AddKey(key); err != nil && !errors.Is(err, holograph.ErrKeyExists) {
			return nil, err
		}
	}
	return ks, nil
}

// localKey resolves the signing key: --key when given, else the configured
// private key, else signer.key.
func (a *app) localKey() (*keystore.Key, error) {
	ks, err := a.keystore()
	if err != nil {
		return nil, err
	}
	ref := a.cfg.Signer.Key
	if override, ok := a.keyOverride(); ok {
		ref = override
	} else if a.cfg.Signer.PrivateKey != "" {
		ref = "configured"
	}
	return ks.Lookup(ref)
}

// keyOverride reports the --key flag when it was given.
func (a *app) keyOverride() (string, bool) {
	f := a.flags.Lookup("key")
	if f == nil || !f.Changed {
		return "", false
	}
	return f.Value.String(), true
}

// promptConfirm asks on out and reads the answer from in.
func promptConfirm(in io.Reader, out io.Writer) holograph.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, signer common.Address, digest common.Hash) (bool, error) {
		fmt.Fprintf(out, "Sign digest %s as %s? [y/N]: ", ethereum.EncodeHash(digest), ethereum.EncodeAddress(signer))
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}
