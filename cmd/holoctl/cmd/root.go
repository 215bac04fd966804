package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/config"
)

// Version is set at build time.
var Version = "dev"

// app holds the state shared by every subcommand of one invocation.
type app struct {
	cfgFile string
	jsonOut bool
	verbose bool

	flags *pflag.FlagSet
	v     *viper.Viper
	cfg   *config.Config
}

// flagBindings maps persistent flags onto config keys.
var flagBindings = map[string]string{
	"factory":           "protocol.factory",
	"registry":          "protocol.registry",
	"enforcer-bytecode": "protocol.enforcer_bytecode",
	"signing-mode":      "protocol.signing_mode",
	"backend":           "signer.backend",
	"key":               "signer.key",
}

// NewRootCmd builds the holoctl command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "holoctl",
		Short: "Holograph deployment config toolkit",
		Long: `holoctl builds Holograph deployment configs, computes their hashes and
CREATE2 addresses, signs and verifies them, and decodes and audits the
factory and operator calls that carry them.

Configuration (in order of priority):
  1. Command-line flags (--factory, --enforcer-bytecode, --signing-mode, ...)
  2. Environment variables (HOLOGRAPH_PROTOCOL_FACTORY, BAO_ADDR, ...)
  3. Config file (./holograph.yaml, ./config/holograph.yaml, /etc/holograph/holograph.yaml)

Get started:
  $ holoctl decode 0xdf6516bd...              # Inspect a deploy call
  $ holoctl hash --input 0xdf6516bd...        # Recompute its config hash
  $ holoctl predict 0x<config hash>           # Predict the deployed address`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ./holograph.yaml)")
	pf.BoolVar(&a.jsonOut, "json", false, "output in JSON format")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")
	pf.String("factory", "", "factory address (or HOLOGRAPH_PROTOCOL_FACTORY)")
	pf.String("registry", "", "registry address (or HOLOGRAPH_PROTOCOL_REGISTRY)")
	pf.String("enforcer-bytecode", "", "enforcer creation bytecode hex (or HOLOGRAPH_PROTOCOL_ENFORCER_BYTECODE)")
	pf.String("signing-mode", "", "signing mode: raw or prefixed (or HOLOGRAPH_PROTOCOL_SIGNING_MODE)")
	pf.String("backend", "", "signer backend: local or openbao (or HOLOGRAPH_SIGNER_BACKEND)")
	pf.String("key", "", "signing key name or address (or HOLOGRAPH_SIGNER_KEY)")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.loadConfig(pf)
	}

	root.AddCommand(
		newVersionCmd(),
		newBuildCmd(a),
		newHashCmd(a),
		newPredictCmd(a),
		newSignCmd(a),
		newVerifyCmd(a),
		newDecodeCmd(a),
		newAuditCmd(a),
		newSubmitCmd(a),
		newServeCmd(a),
		newKeysCmd(a),
		newConfigCmd(a),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		printError(root.ErrOrStderr(), err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "holoctl version %s\n", Version)
		},
	}
}

// loadConfig reads the config file and environment, with flags on top.
func (a *app) loadConfig(pf *pflag.FlagSet) error {
	a.flags = pf
	a.v = config.New(a.cfgFile)
	for flag, key := range flagBindings {
		if err := a.v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	cfg, err := config.Read(a.v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// logger returns a text logger on stderr; debug with --verbose, warnings
// otherwise.
func (a *app) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (a *app) factory() (common.Address, error) {
	return a.cfg.Protocol.FactoryAddress()
}

func (a *app) enforcerBytecode() ([]byte, error) {
	return a.cfg.Protocol.Bytecode()
}

// predictor needs both the factory and the enforcer bytecode.
func (a *app) predictor() (*holograph.Predictor, []byte, error) {
	factory, err := a.factory()
	if err != nil {
		return nil, nil, err
	}
	code, err := a.enforcerBytecode()
	if err != nil {
		return nil, nil, err
	}
	return holograph.NewPredictor(factory, code), code, nil
}

// registry returns the configured registry, or the zero address when unset.
func (a *app) registry() (common.Address, error) {
	if a.cfg.Protocol.Registry == "" {
		return common.Address{}, nil
	}
	return a.cfg.Protocol.RegistryAddress()
}

// mode parses override when set, else the configured signing mode.
func (a *app) mode(override string) (holograph.SigningMode, error) {
	if override != "" {
		return holograph.ParseSigningMode(override)
	}
	return a.cfg.Protocol.Mode()
}

// readInput resolves an argument: "-" reads stdin, "@path" reads a file,
// anything else is used as given.
func readInput(cmd *cobra.Command, arg string) (string, error) {
	var raw []byte
	var err error
	switch {
	case arg == "-":
		raw, err = io.ReadAll(cmd.InOrStdin())
	case strings.HasPrefix(arg, "@"):
		raw, err = os.ReadFile(strings.TrimPrefix(arg, "@"))
	default:
		return strings.TrimSpace(arg), nil
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// Output helpers

// printJSON outputs data as formatted JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printError prints an error message, naming the field of validation
// errors.
func printError(w io.Writer, err error) {
	var ve *holograph.ValidationError
	if errors.As(err, &ve) {
		fmt.Fprintf(w, "%s %s: %s\n", colorRed("Error:"), ve.Field, ve.Message)
		return
	}
	fmt.Fprintf(w, "%s %s\n", colorRed("Error:"), err.Error())
}

// Terminal colors

func colorRed(s string) string {
	if !isTTY() {
		return s
	}
	return "\033[31m" + s + "\033[0m"
}

func colorGreen(s string) string {
	if !isTTY() {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

func colorYellow(s string) string {
	if !isTTY() {
		return s
	}
	return "\033[33m" + s + "\033[0m"
}

func isTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
