package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holographxyz/holograph-sub000/internal/config"
)

const masked = "********"

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(newConfigShowCmd(a))
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := redact(*a.cfg)

			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"config_file": a.v.ConfigFileUsed(),
					"config":      cfg,
				})
			}

			file := a.v.ConfigFileUsed()
			if file == "" {
				file = colorYellow("(not set)")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# config file: %s\n", file)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return enc.Close()
		},
	}
}

// redact returns a copy of cfg with credentials replaced.
func redact(cfg config.Config) config.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = masked
		}
	}
	mask(&cfg.Signer.PrivateKey)
	mask(&cfg.Signer.OpenBao.Token)
	mask(&cfg.Database.Password)
	mask(&cfg.Redis.Password)

	return cfg
}
