// Package config provides configuration loading for holoctl and the
// JSON-RPC service.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/ethereum"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "HOLOGRAPH"

// Signer back-ends.
const (
	BackendLocal   = "local"
	BackendOpenBao = "openbao"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Protocol ProtocolConfig `mapstructure:"protocol" yaml:"protocol"`
	Chains   []ChainConfig  `mapstructure:"chains" yaml:"chains"`
	Signer   SignerConfig   `mapstructure:"signer" yaml:"signer"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Audit    AuditConfig    `mapstructure:"audit" yaml:"audit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	Host            string        `mapstructure:"host" yaml:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	Environment     string        `mapstructure:"environment" yaml:"environment"` // dev, staging, prod
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ProtocolConfig pins the on-chain parameters every computation depends on.
type ProtocolConfig struct {
	Factory          string `mapstructure:"factory" yaml:"factory"`
	Registry         string `mapstructure:"registry" yaml:"registry"`
	EnforcerBytecode string `mapstructure:"enforcer_bytecode" yaml:"enforcer_bytecode"`
	SigningMode      string `mapstructure:"signing_mode" yaml:"signing_mode"`
}

// FactoryAddress parses Factory.
func (c ProtocolConfig) FactoryAddress() (common.Address, error) {
	return requiredAddress("protocol.factory", c.Factory)
}

// RegistryAddress parses Registry.
func (c ProtocolConfig) RegistryAddress() (common.Address, error) {
	return requiredAddress("protocol.registry", c.Registry)
}

// Bytecode decodes the enforcer creation bytecode.
func (c ProtocolConfig) Bytecode() ([]byte, error) {
	if c.EnforcerBytecode == "" {
		return nil, holograph.NewValidationError("protocol.enforcer_bytecode", "is required")
	}
	b, err := ethereum.DecodeBytes(c.EnforcerBytecode)
	if err != nil {
		return nil, holograph.NewValidationError("protocol.enforcer_bytecode", err.Error())
	}
	return b, nil
}

// Mode parses SigningMode.
func (c ProtocolConfig) Mode() (holograph.SigningMode, error) {
	return holograph.ParseSigningMode(c.SigningMode)
}

// ChainConfig describes one network. ChainType overrides the built-in
// translation of ChainID when non-zero.
type ChainConfig struct {
	Name      string `mapstructure:"name" yaml:"name"`
	ChainID   uint64 `mapstructure:"chain_id" yaml:"chain_id"`
	ChainType uint32 `mapstructure:"chain_type" yaml:"chain_type"`
	RPCURL    string `mapstructure:"rpc_url" yaml:"rpc_url"`
}

// SignerConfig selects and configures the signing back-end.
type SignerConfig struct {
	Backend    string        `mapstructure:"backend" yaml:"backend"` // local, openbao
	PrivateKey string        `mapstructure:"private_key" yaml:"private_key"`
	Key        string        `mapstructure:"key" yaml:"key"` // dev key name or address
	OpenBao    OpenBaoConfig `mapstructure:"openbao" yaml:"openbao"`
}

// OpenBaoConfig holds OpenBao configuration.
type OpenBaoConfig struct {
	Address       string        `mapstructure:"address" yaml:"address"`
	Token         string        `mapstructure:"token" yaml:"token"`
	Namespace     string        `mapstructure:"namespace" yaml:"namespace"`
	Secp256k1Path string        `mapstructure:"secp256k1_path" yaml:"secp256k1_path"`
	KeyName       string        `mapstructure:"key_name" yaml:"key_name"`
	StorePath     string        `mapstructure:"store_path" yaml:"store_path"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	SkipTLSVerify bool          `mapstructure:"skip_tls_verify" yaml:"skip_tls_verify"`
}

// BaoConfig converts to the OpenBao signer configuration.
func (c OpenBaoConfig) BaoConfig() holograph.Config {
	return holograph.Config{
		BaoAddr:       c.Address,
		BaoToken:      c.Token,
		BaoNamespace:  c.Namespace,
		Secp256k1Path: c.Secp256k1Path,
		StorePath:     c.StorePath,
		KeyName:       c.KeyName,
		HTTPTimeout:   c.Timeout,
		SkipTLSVerify: c.SkipTLSVerify,
	}.WithDefaults()
}

// DatabaseConfig holds PostgreSQL configuration. The audit archive is
// disabled when Host is empty.
type DatabaseConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	SSLMode  string `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// Enabled reports whether a database is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration. The report cache is disabled when
// Host is empty.
type RedisConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// Enabled reports whether redis is configured.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuditConfig tunes the auditor.
type AuditConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	Archive  bool          `mapstructure:"archive" yaml:"archive"`
}

// New returns a viper instance with defaults and environment bindings
// applied. When file is empty the usual search path is used.
func New(file string) *viper.Viper {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("holograph")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/holograph")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Secrets are usually only present in the environment, so AutomaticEnv
	// never sees them during Unmarshal unless bound.
	_ = v.BindEnv("signer.private_key", "HOLOGRAPH_SIGNER_PRIVATE_KEY")
	_ = v.BindEnv("signer.openbao.address", "HOLOGRAPH_SIGNER_OPENBAO_ADDRESS", "BAO_ADDR")
	_ = v.BindEnv("signer.openbao.token", "HOLOGRAPH_SIGNER_OPENBAO_TOKEN", "BAO_TOKEN")
	_ = v.BindEnv("signer.openbao.namespace", "HOLOGRAPH_SIGNER_OPENBAO_NAMESPACE")
	_ = v.BindEnv("database.password", "HOLOGRAPH_DATABASE_PASSWORD")
	_ = v.BindEnv("redis.password", "HOLOGRAPH_REDIS_PASSWORD")

	return v
}

// Load reads configuration from files and environment variables.
func Load(file string) (*Config, error) {
	return Read(New(file))
}

// Read loads the config file named by v, if any, and unmarshals v.
func Read(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the parts of the configuration that every command needs.
func (c *Config) Validate() error {
	if c.Protocol.SigningMode != "" {
		if _, err := c.Protocol.Mode(); err != nil {
			return err
		}
	}
	for _, field := range []struct{ name, value string }{
		{"protocol.factory", c.Protocol.Factory},
		{"protocol.registry", c.Protocol.Registry},
	} {
		if field.value == "" {
			continue
		}
		if _, err := requiredAddress(field.name, field.value); err != nil {
			return err
		}
	}

	switch c.Signer.Backend {
	case "", BackendLocal, BackendOpenBao:
	default:
		return holograph.NewValidationError("signer.backend", fmt.Sprintf("unknown backend %q", c.Signer.Backend))
	}

	seen := make(map[uint64]bool, len(c.Chains))
	for i, ch := range c.Chains {
		if ch.ChainID == 0 {
			return holograph.NewValidationError(fmt.Sprintf("chains[%d].chain_id", i), "is required")
		}
		if seen[ch.ChainID] {
			return holograph.NewValidationError(fmt.Sprintf("chains[%d].chain_id", i), fmt.Sprintf("duplicate chain id %d", ch.ChainID))
		}
		seen[ch.ChainID] = true
	}
	return nil
}

// Chain returns the configured chain matching ref by name or decimal id.
func (c *Config) Chain(ref string) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.Name == ref || fmt.Sprint(ch.ChainID) == ref {
			return ch, true
		}
	}
	return ChainConfig{}, false
}

func requiredAddress(field, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, holograph.NewValidationError(field, "is required")
	}
	addr, err := ethereum.DecodeAddress(s)
	if err != nil {
		return common.Address{}, holograph.NewValidationError(field, err.Error())
	}
	return addr, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8545)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.environment", "dev")

	// Protocol defaults
	v.SetDefault("protocol.signing_mode", "raw")

	// Signer defaults
	v.SetDefault("signer.backend", BackendLocal)
	v.SetDefault("signer.key", "dev-0")
	v.SetDefault("signer.openbao.address", "http://localhost:8200")
	v.SetDefault("signer.openbao.secp256k1_path", holograph.DefaultSecp256k1Path)
	v.SetDefault("signer.openbao.store_path", "holograph-keys.json")
	v.SetDefault("signer.openbao.timeout", "30s")

	// Database defaults (archive disabled unless host is set)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "holograph")
	v.SetDefault("database.database", "holograph")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)

	// Redis defaults (cache disabled unless host is set)
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Audit defaults
	v.SetDefault("audit.cache_ttl", "1h")
	v.SetDefault("audit.archive", false)
}
