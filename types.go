// Package holograph implements the deterministic deployment-configuration
// protocol for holographable contracts: hashing a DeploymentConfig, predicting
// its CREATE2 address, signing and verifying the config hash, and decoding a
// configuration back out of factory or operator call input.
package holograph

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/holographxyz/holograph-sub000/internal/ethereum"
)

// Algorithm constants
const (
	AlgorithmSecp256k1   = "secp256k1"
	DefaultSecp256k1Path = "secp256k1"
	DefaultHTTPTimeout   = 30 * time.Second
	DefaultStoreVersion  = 1
)

// Source constants
const (
	SourceGenerated = "generated"
	SourceImported  = "imported"
)

// DeploymentConfig is the canonical record of what to deploy. Field order and
// widths mirror the on-chain DeploymentConfig struct.
type DeploymentConfig struct {
	ContractType [32]byte `abi:"contractType"`
	ChainType    uint32   `abi:"chainType"`
	Salt         [32]byte `abi:"salt"`
	ByteCode     []byte   `abi:"byteCode"`
	InitCode     []byte   `abi:"initCode"`
}

// Equal reports whether c and o describe the same deployment: all five fields
// byte-identical.
func (c DeploymentConfig) Equal(o DeploymentConfig) bool {
	return c.ContractType == o.ContractType &&
		c.ChainType == o.ChainType &&
		c.Salt == o.Salt &&
		string(c.ByteCode) == string(o.ByteCode) &&
		string(c.InitCode) == string(o.InitCode)
}

type deploymentConfigJSON struct {
	ContractType string        `json:"contractType"`
	ChainType    uint32        `json:"chainType"`
	Salt         string        `json:"salt"`
	ByteCode     hexutil.Bytes `json:"byteCode"`
	InitCode     hexutil.Bytes `json:"initCode"`
}

// MarshalJSON renders the config with 0x-prefixed lowercase hex fields.
func (c DeploymentConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(deploymentConfigJSON{
		ContractType: ethereum.EncodeBytes(c.ContractType[:]),
		ChainType:    c.ChainType,
		Salt:         ethereum.EncodeBytes(c.Salt[:]),
		ByteCode:     c.ByteCode,
		InitCode:     c.InitCode,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *DeploymentConfig) UnmarshalJSON(data []byte) error {
	var raw deploymentConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	contractType, err := ethereum.DecodeHash(raw.ContractType)
	if err != nil {
		return NewValidationError("contractType", err.Error())
	}
	salt, err := ethereum.DecodeHash(raw.Salt)
	if err != nil {
		return NewValidationError("salt", err.Error())
	}
	*c = DeploymentConfig{
		ContractType: contractType,
		ChainType:    raw.ChainType,
		Salt:         salt,
		ByteCode:     raw.ByteCode,
		InitCode:     raw.InitCode,
	}
	return nil
}

// Signature is the {r, s, v} authorization signature carried on-chain as the
// Verification struct. V uses the 27/28 convention.
type Signature struct {
	R [32]byte `abi:"r"`
	S [32]byte `abi:"s"`
	V uint8    `abi:"v"`
}

// SignatureFromBytes splits a 65-byte r||s||v signature. A recovery id of 0
// or 1 is shifted to 27/28.
func SignatureFromBytes(sig []byte) (Signature, error) {
	var out Signature
	if len(sig) != 65 {
		return out, fmt.Errorf("%w: signature must be 65 bytes, got %d", ErrInvalidSignature, len(sig))
	}
	copy(out.R[:], sig[:32])
	copy(out.S[:], sig[32:64])
	out.V = sig[64]
	if out.V == 0 || out.V == 1 {
		out.V += 27
	}
	if out.V != 27 && out.V != 28 {
		return Signature{}, fmt.Errorf("%w: unexpected recovery id %d", ErrInvalidSignature, sig[64])
	}
	return out, nil
}

// Bytes returns the 65-byte r||s||v form with v in 27/28.
func (s Signature) Bytes() []byte {
	out := make([]byte, 65)
	copy(out[:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[64] = s.V
	return out
}

// RecoveryID returns v as 0 or 1.
func (s Signature) RecoveryID() byte {
	if s.V >= 27 {
		return s.V - 27
	}
	return s.V
}

// DecimalV renders v as a decimal string, the form deployment front-ends
// submit it in.
func (s Signature) DecimalV() string {
	return fmt.Sprintf("%d", s.V)
}

// IsZero reports whether r or s is all zeros.
func (s Signature) IsZero() bool {
	return s.R == [32]byte{} || s.S == [32]byte{}
}

type signatureJSON struct {
	R string `json:"r"`
	S string `json:"s"`
	V string `json:"v"`
}

// MarshalJSON renders r and s as hex and v as a decimal string.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(signatureJSON{
		R: ethereum.EncodeBytes(s.R[:]),
		S: ethereum.EncodeBytes(s.S[:]),
		V: s.DecimalV(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Signature) UnmarshalJSON(data []byte) error {
	var raw signatureJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r, err := ethereum.DecodeHash(raw.R)
	if err != nil {
		return NewValidationError("r", err.Error())
	}
	sv, err := ethereum.DecodeHash(raw.S)
	if err != nil {
		return NewValidationError("s", err.Error())
	}
	var v uint64
	if ethereum.Has0xPrefix(raw.V) {
		v, err = hexutil.DecodeUint64(raw.V)
	} else {
		_, err = fmt.Sscanf(raw.V, "%d", &v)
	}
	if v == 0 || v == 1 {
		v += 27
	}
	if err != nil || (v != 27 && v != 28) {
		return NewValidationError("v", fmt.Sprintf("invalid recovery id %q", raw.V))
	}
	*s = Signature{R: r, S: sv, V: uint8(v)}
	return nil
}

// CallShape identifies which of the supported call layouts carried a
// configuration.
type CallShape string

// Supported call shapes.
const (
	ShapeDeploy           CallShape = "deploy"
	ShapeDeployMultiChain CallShape = "deploy_multichain"
	ShapeJob              CallShape = "job"
)

// Deployment is the result of decoding call input: the configuration, its
// authorization signature and the designated signer.
type Deployment struct {
	Shape     CallShape        `json:"shape"`
	Config    DeploymentConfig `json:"config"`
	Signature Signature        `json:"signature"`
	Signer    common.Address   `json:"signer"`

	// Job is set only for ShapeJob.
	Job *JobEnvelope `json:"job,omitempty"`
}

// JobEnvelope holds the bridge-in request fields that wrap a deployment
// inside an operator job, plus the two trailing words appended by the
// operator. The trailing words are read as gas price then gas limit.
type JobEnvelope struct {
	Nonce                 *big.Int       `json:"nonce"`
	FromChain             uint32         `json:"fromChain"`
	HolographableContract common.Address `json:"holographableContract"`
	HToken                common.Address `json:"hToken"`
	HTokenRecipient       common.Address `json:"hTokenRecipient"`
	HTokenValue           *big.Int       `json:"hTokenValue"`
	DoNotRevert           bool           `json:"doNotRevert"`
	GasPrice              *big.Int       `json:"gasPrice"`
	GasLimit              *big.Int       `json:"gasLimit"`
}

// BridgeSettings is one entry of the per-chain settings array passed to the
// multi-chain deploy call.
type BridgeSettings struct {
	Value    *big.Int       `abi:"value"`
	Operator common.Address `abi:"operator"`
	ToChain  uint32         `abi:"toChain"`
	Data     []byte         `abi:"data"`
}

// Config holds configuration for the OpenBao-backed signer.
type Config struct {
	BaoAddr       string        // OpenBao server address
	BaoToken      string        // OpenBao authentication token
	BaoNamespace  string        // Optional: OpenBao namespace
	Secp256k1Path string        // Plugin mount path (default: "secp256k1")
	StorePath     string        // Path to local metadata store
	KeyName       string        // Signing key name, or the address of an indexed key
	HTTPTimeout   time.Duration // HTTP request timeout
	TLSConfig     *tls.Config   // Optional: custom TLS config
	SkipTLSVerify bool          // INSECURE: skip TLS verification
}

// WithDefaults returns Config with default values applied.
func (c Config) WithDefaults() Config {
	if c.Secp256k1Path == "" {
		c.Secp256k1Path = DefaultSecp256k1Path
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	return c
}

// Validate checks required configuration fields.
func (c *Config) Validate() error {
	if c.BaoAddr == "" {
		return ErrMissingBaoAddr
	}
	if c.BaoToken == "" {
		return ErrMissingBaoToken
	}
	if c.StorePath == "" {
		return ErrMissingStorePath
	}
	if c.KeyName == "" {
		return ErrMissingKeyName
	}
	return nil
}

// KeyMetadata contains locally stored key information.
type KeyMetadata struct {
	Name        string    `json:"name"`
	PubKeyBytes []byte    `json:"pub_key"`
	Address     string    `json:"address"`
	BaoKeyPath  string    `json:"bao_key_path"`
	Algorithm   string    `json:"algorithm"`
	Exportable  bool      `json:"exportable"`
	CreatedAt   time.Time `json:"created_at"`
	Source      string    `json:"source"`
}

// KeyInfo represents public key information from OpenBao.
type KeyInfo struct {
	Name       string    `json:"name"`
	PublicKey  string    `json:"public_key"`
	Address    string    `json:"address"`
	Exportable bool      `json:"exportable"`
	CreatedAt  time.Time `json:"created_at"`
}

// KeyOptions configures key creation.
type KeyOptions struct {
	Exportable bool
}

// SignResponse from OpenBao signing.
type SignResponse struct {
	Signature  string `json:"signature"`
	PublicKey  string `json:"public_key"`
	KeyVersion int    `json:"key_version"`
}

// StoreData is the persisted store format.
type StoreData struct {
	Version int                     `json:"version"`
	Keys    map[string]*KeyMetadata `json:"keys"`
}
