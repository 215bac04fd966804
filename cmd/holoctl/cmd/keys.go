package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/config"
	"github.com/holographxyz/holograph-sub000/internal/keystore"
)

// errLocalBackend is returned by key management commands that need OpenBao.
var errLocalBackend = errors.New("key management requires signer.backend=openbao; local keys come from config")

func newKeysCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage signing keys",
		Long:  `List the signing keys available to the configured back-end, and create, import or delete OpenBao keys.`,
	}

	cmd.AddCommand(
		newKeysListCmd(a),
		newKeysCreateCmd(a),
		newKeysImportCmd(a),
		newKeysDeleteCmd(a),
	)
	return cmd
}

type keyRow struct {
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

func newKeysListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List signing keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows []keyRow
			if a.cfg.Signer.Backend == config.BackendOpenBao {
				s, err := holograph.NewBaoSigner(cmd.Context(), a.cfg.Signer.OpenBao.BaoConfig(), a.logger(cmd))
				if err != nil {
					return err
				}
				defer s.Close()

				keys, err := s.Keys()
				if err != nil {
					return err
				}
				for _, k := range keys {
					rows = append(rows, keyRow{Name: k.Name, Address: k.Address, Source: k.Source, CreatedAt: k.CreatedAt})
				}
			} else {
				ks, err := a.keystore()
				if err != nil {
					return err
				}
				for _, k := range ks.ListKeys() {
					rows = append(rows, keyRow{Name: k.Name, Address: k.Address, Source: config.BackendLocal, CreatedAt: k.CreatedAt})
				}
			}

			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No keys found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tADDRESS\tSOURCE")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Address, r.Source)
			}
			return w.Flush()
		},
	}
}

func (a *app) baoSigner(cmd *cobra.Command) (*holograph.BaoSigner, error) {
	if a.cfg.Signer.Backend != config.BackendOpenBao {
		return nil, errLocalBackend
	}
	return holograph.NewBaoSigner(cmd.Context(), a.cfg.Signer.OpenBao.BaoConfig(), a.logger(cmd))
}

func printKey(cmd *cobra.Command, jsonOut bool, verb string, meta *holograph.KeyMetadata) error {
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), meta)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Key %s\n\n", colorGreen("✓"), verb)
	fmt.Fprintf(cmd.OutOrStdout(), "  Name:    %s\n", meta.Name)
	fmt.Fprintf(cmd.OutOrStdout(), "  Address: %s\n", meta.Address)
	fmt.Fprintf(cmd.OutOrStdout(), "  Path:    %s\n", meta.BaoKeyPath)
	return nil
}

func newKeysCreateCmd(a *app) *cobra.Command {
	var exportable bool

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a secp256k1 key in OpenBao",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.baoSigner(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			meta, err := s.CreateKey(cmd.Context(), args[0], holograph.KeyOptions{Exportable: exportable})
			if err != nil {
				return err
			}
			return printKey(cmd, a.jsonOut, "created", meta)
		},
	}

	cmd.Flags().BoolVar(&exportable, "exportable", false, "allow the key to be exported later")
	return cmd
}

func newKeysImportCmd(a *app) *cobra.Command {
	var keyFile string

	cmd := &cobra.Command{
		Use:   "import <name>",
		Short: "Import a hex private key into OpenBao",
		Long: `Import a hex private key into OpenBao. The key is read from --file, or
from the HOLOGRAPH_IMPORT_KEY environment variable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := os.Getenv("HOLOGRAPH_IMPORT_KEY")
			if keyFile != "" {
				b, err := os.ReadFile(keyFile)
				if err != nil {
					return fmt.Errorf("read key file: %w", err)
				}
				raw = string(b)
			}
			if raw == "" {
				return holograph.NewValidationError("private_key", "is required")
			}

			key, err := keystore.ParseKey(args[0], strings.TrimSpace(raw))
			if err != nil {
				return holograph.NewValidationError("private_key", "invalid secp256k1 key")
			}

			s, err := a.baoSigner(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			meta, err := s.ImportKey(cmd.Context(), args[0], crypto.FromECDSA(key.PrivateKey))
			if err != nil {
				return err
			}
			return printKey(cmd, a.jsonOut, "imported", meta)
		},
	}

	cmd.Flags().StringVar(&keyFile, "file", "", "file holding the hex private key")
	return cmd
}

func newKeysDeleteCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an OpenBao key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to delete %s without --force", args[0])
			}
			s, err := a.baoSigner(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteKey(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Key %s deleted\n", colorGreen("✓"), args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "confirm deletion")
	return cmd
}
