package holograph

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/holographxyz/holograph-sub000/internal/ethereum"
)

// configHashPreimageLen is contractType(32) + chainType(4) + salt(32) +
// keccak(byteCode)(32) + keccak(initCode)(32) + signer(20).
const configHashPreimageLen = 32 + 4 + 32 + 32 + 32 + common.AddressLength

// ConfigHashPreimage returns the packed bytes hashed by ComputeConfigHash.
func ConfigHashPreimage(cfg DeploymentConfig, signer common.Address) []byte {
	byteCodeHash := ethereum.Keccak256(cfg.ByteCode)
	initCodeHash := ethereum.Keccak256(cfg.InitCode)

	buf := make([]byte, 0, configHashPreimageLen)
	buf = append(buf, cfg.ContractType[:]...)
	buf = append(buf, ethereum.Uint32BE(cfg.ChainType)...)
	buf = append(buf, cfg.Salt[:]...)
	buf = append(buf, byteCodeHash[:]...)
	buf = append(buf, initCodeHash[:]...)
	buf = append(buf, signer[:]...)
	return buf
}

// ComputeConfigHash returns the hash the factory derives for cfg when it is
// submitted by signer.
func ComputeConfigHash(cfg DeploymentConfig, signer common.Address) common.Hash {
	return ethereum.Keccak256(ConfigHashPreimage(cfg, signer))
}

// PredictAddress returns the CREATE2 address the factory deploys the enforcer
// to for configHash.
func PredictAddress(configHash common.Hash, factory common.Address, enforcerBytecode []byte) common.Address {
	codeHash := ethereum.Keccak256(enforcerBytecode)
	return crypto.CreateAddress2(factory, configHash, codeHash[:])
}

// Predictor fixes the protocol-wide factory and enforcer bytecode so callers
// only supply the config hash.
type Predictor struct {
	factory  common.Address
	codeHash common.Hash
}

// NewPredictor hashes enforcerBytecode once and returns a Predictor.
func NewPredictor(factory common.Address, enforcerBytecode []byte) *Predictor {
	return &Predictor{
		factory:  factory,
		codeHash: ethereum.Keccak256(enforcerBytecode),
	}
}

// Factory returns the factory address.
func (p *Predictor) Factory() common.Address {
	return p.factory
}

// Predict returns the CREATE2 address for configHash.
func (p *Predictor) Predict(configHash common.Hash) common.Address {
	return crypto.CreateAddress2(p.factory, configHash, p.codeHash[:])
}

// PredictConfig hashes cfg for signer and returns both the hash and the
// resulting address.
func (p *Predictor) PredictConfig(cfg DeploymentConfig, signer common.Address) (common.Hash, common.Address) {
	h := ComputeConfigHash(cfg, signer)
	return h, p.Predict(h)
}
